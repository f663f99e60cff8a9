package webrtc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/ports"
	"roomlink/pkg/retry"

	"go.uber.org/zap"
)

// Orchestrator drives one connection state machine per remote participant
// in the joined room: it reacts to hub notifications, runs offer/answer
// exchange, buffers early candidates, aggregates inbound track arrival
// into presence decisions and renegotiates every link when the outgoing
// media source changes.
type Orchestrator struct {
	signaler   ports.Signaler
	transports ports.TransportFactory
	device     ports.MediaDevice
	screen     ports.ScreenSource
	grace      time.Duration
	retryCfg   retry.Config
	logger     *zap.SugaredLogger

	mu            sync.Mutex
	links         map[domain.ParticipantID]*PeerLink
	stream        ports.CaptureStream
	room          domain.RoomID
	audioEnabled  bool
	videoEnabled  bool
	screenSharing bool
	rooms         []domain.RoomSnapshot
	remoteAudio   map[domain.ParticipantID]bool
	remoteVideo   map[domain.ParticipantID]bool

	presence    chan PresenceEvent
	mediaStates chan MediaStateEvent
	errs        chan error

	runCtx    context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewOrchestrator(
	signaler ports.Signaler,
	transports ports.TransportFactory,
	device ports.MediaDevice,
	screen ports.ScreenSource,
	grace time.Duration,
	logger *zap.SugaredLogger,
) *Orchestrator {
	if grace <= 0 {
		grace = DefaultPresenceGrace
	}
	return &Orchestrator{
		signaler:    signaler,
		transports:  transports,
		device:      device,
		screen:      screen,
		grace:       grace,
		retryCfg:    retry.DefaultConfig(),
		logger:      logger,
		links:       make(map[domain.ParticipantID]*PeerLink),
		remoteAudio: make(map[domain.ParticipantID]bool),
		remoteVideo: make(map[domain.ParticipantID]bool),
		presence:    make(chan PresenceEvent, 16),
		mediaStates: make(chan MediaStateEvent, 64),
		errs:        make(chan error, 16),
	}
}

// Start acquires local capture through the fallback ladder, joins the room
// and begins processing signaling events. The capture handle is released
// on every exit path, including Start failing after acquisition.
func (o *Orchestrator) Start(ctx context.Context, room domain.RoomID) error {
	if !domain.ValidRoomID(room) {
		return domain.ErrInvalidRoomID
	}

	stream, _, err := AcquireUserMedia(ctx, o.device, o.logger)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())

	o.mu.Lock()
	o.stream = stream
	o.room = room
	o.audioEnabled = stream.AudioTrack() != nil
	o.videoEnabled = stream.VideoTrack() != nil
	o.runCtx = runCtx
	o.cancel = cancel
	o.mu.Unlock()

	if err := o.signaler.Join(ctx, room); err != nil {
		cancel()
		stream.Close()
		return fmt.Errorf("join room %s: %w", room, err)
	}

	o.wg.Add(1)
	go o.run(runCtx)
	return nil
}

func (o *Orchestrator) run(ctx context.Context) {
	defer o.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-o.signaler.Events():
			if !ok {
				return
			}
			o.handleEvent(ctx, ev)
		}
	}
}

func (o *Orchestrator) handleEvent(ctx context.Context, ev domain.SignalEvent) {
	switch e := ev.(type) {
	case domain.PeerAdded:
		o.handlePeerAdded(ctx, e)
	case domain.PeerRemoved:
		o.handlePeerRemoved(e.PeerID)
	case domain.RemoteDescription:
		o.handleRemoteDescription(ctx, e)
	case domain.RemoteCandidate:
		o.handleRemoteCandidate(ctx, e)
	case domain.RoomsShared:
		o.mu.Lock()
		o.rooms = e.Rooms
		o.mu.Unlock()
	case domain.PeerAudioState:
		o.setRemoteState(e.PeerID, domain.MediaKindAudio, e.Enabled)
	case domain.PeerVideoState:
		o.setRemoteState(e.PeerID, domain.MediaKindVideo, e.Enabled)
	}
}

func (o *Orchestrator) handlePeerAdded(ctx context.Context, ev domain.PeerAdded) {
	o.mu.Lock()
	if _, exists := o.links[ev.PeerID]; exists {
		o.mu.Unlock()
		o.logger.Warnw("already connected to peer", "peer_id", ev.PeerID)
		return
	}
	stream := o.stream
	o.mu.Unlock()

	transport, err := o.transports.NewTransport(ctx)
	if err != nil {
		o.reportError(fmt.Errorf("create transport for %s: %w", ev.PeerID, err))
		return
	}

	agg := newTrackAggregator(ev.PeerID, o.grace, o.onPresence, o.onMediaState)
	link := newPeerLink(ev.PeerID, transport, ev.CreateOffer, agg)

	o.mu.Lock()
	o.links[ev.PeerID] = link
	o.remoteAudio[ev.PeerID] = true
	o.remoteVideo[ev.PeerID] = true
	o.mu.Unlock()

	remote := ev.PeerID
	transport.OnICECandidate(func(cand domain.ICECandidate) {
		if err := o.signaler.RelayICE(o.runCtx, remote, cand); err != nil {
			o.logger.Warnw("failed to relay candidate", "peer_id", remote, "error", err)
		}
	})
	transport.OnTrack(func(t ports.InboundTrack) {
		link.mu.Lock()
		if link.state == domain.LinkDescriptionExchanged {
			link.state = domain.LinkTracksArriving
		}
		link.mu.Unlock()
		agg.trackArrived(t)
	})

	if stream != nil {
		for _, t := range stream.Tracks() {
			if _, err := transport.AttachTrack(ctx, t); err != nil {
				o.reportError(fmt.Errorf("attach %s track for %s: %w", t.Kind(), remote, err))
			}
		}
	}

	if ev.CreateOffer {
		if err := o.sendOffer(ctx, link); err != nil {
			o.reportError(fmt.Errorf("offer to %s: %w", remote, err))
		}
	} else {
		link.mu.Lock()
		link.state = domain.LinkAwaitingOffer
		link.mu.Unlock()
	}
}

func (o *Orchestrator) sendOffer(ctx context.Context, link *PeerLink) error {
	link.mu.Lock()
	defer link.mu.Unlock()
	return o.sendOfferLocked(ctx, link)
}

func (o *Orchestrator) sendOfferLocked(ctx context.Context, link *PeerLink) error {
	if link.state == domain.LinkClosed {
		return domain.ErrLinkClosed
	}

	offer, err := link.transport.CreateOffer(ctx)
	if err != nil {
		return err
	}
	link.offerPending = true
	link.state = domain.LinkOfferSent
	return o.signaler.RelaySDP(ctx, link.remoteID, offer)
}

func (o *Orchestrator) handleRemoteDescription(ctx context.Context, ev domain.RemoteDescription) {
	link := o.link(ev.PeerID)
	if link == nil {
		// Stale relay after removal, not an error.
		o.logger.Debugw("dropping description for unknown peer", "peer_id", ev.PeerID)
		return
	}

	link.mu.Lock()
	defer link.mu.Unlock()

	if link.state == domain.LinkClosed {
		return
	}

	desc := ev.Description
	switch {
	case desc.IsOffer():
		if link.offerPending {
			// Glare: both sides offered at once. The smaller participant ID
			// wins; the loser abandons its own offer and answers.
			if o.signaler.PeerID() < link.remoteID {
				o.logger.Infow("glare detected, ignoring remote offer", "peer_id", link.remoteID)
				return
			}
			o.logger.Infow("glare detected, yielding to remote offer", "peer_id", link.remoteID)
			link.offerPending = false
		}

		if err := link.transport.SetRemoteDescription(ctx, desc); err != nil {
			o.reportError(fmt.Errorf("set remote offer from %s: %w", link.remoteID, err))
			return
		}
		link.remoteDescSet = true
		o.applyPendingLocked(ctx, link)

		answer, err := link.transport.CreateAnswer(ctx)
		if err != nil {
			o.reportError(fmt.Errorf("answer to %s: %w", link.remoteID, err))
			return
		}
		link.state = o.negotiatedStateLocked(link)
		if err := o.signaler.RelaySDP(ctx, link.remoteID, answer); err != nil {
			o.reportError(fmt.Errorf("relay answer to %s: %w", link.remoteID, err))
		}

	case desc.IsAnswer():
		if !link.offerPending {
			o.logger.Debugw("dropping unexpected answer", "peer_id", link.remoteID)
			return
		}
		if err := link.transport.SetRemoteDescription(ctx, desc); err != nil {
			o.reportError(fmt.Errorf("set remote answer from %s: %w", link.remoteID, err))
			return
		}
		link.remoteDescSet = true
		link.offerPending = false
		o.applyPendingLocked(ctx, link)
		link.state = o.negotiatedStateLocked(link)

	default:
		o.logger.Warnw("unsupported session description type", "peer_id", link.remoteID, "type", desc.Type)
	}
}

// negotiatedStateLocked picks the post-exchange state: a renegotiation on
// a link whose media already arrived goes straight back to established.
func (o *Orchestrator) negotiatedStateLocked(link *PeerLink) domain.LinkState {
	if link.aggregator != nil && link.aggregator.hasEmitted() {
		return domain.LinkEstablished
	}
	return domain.LinkDescriptionExchanged
}

// applyPendingLocked flushes candidates buffered before the remote
// description existed, in arrival order.
func (o *Orchestrator) applyPendingLocked(ctx context.Context, link *PeerLink) {
	for _, cand := range link.drainPendingLocked() {
		if err := link.transport.AddICECandidate(ctx, cand); err != nil {
			o.logger.Warnw("failed to apply buffered candidate", "peer_id", link.remoteID, "error", err)
		}
	}
}

func (o *Orchestrator) handleRemoteCandidate(ctx context.Context, ev domain.RemoteCandidate) {
	link := o.link(ev.PeerID)
	if link == nil {
		o.logger.Debugw("dropping candidate for unknown peer", "peer_id", ev.PeerID)
		return
	}

	err := link.bufferOrApply(ev.Candidate, func(cand domain.ICECandidate) error {
		return link.transport.AddICECandidate(ctx, cand)
	})
	if err != nil {
		o.logger.Warnw("failed to apply candidate", "peer_id", ev.PeerID, "error", err)
	}
}

// handlePeerRemoved tears down the link unconditionally. Removing an
// unknown or already-closed peer is a no-op.
func (o *Orchestrator) handlePeerRemoved(id domain.ParticipantID) {
	o.mu.Lock()
	link := o.links[id]
	delete(o.links, id)
	delete(o.remoteAudio, id)
	delete(o.remoteVideo, id)
	o.mu.Unlock()

	if link != nil {
		link.close()
		o.logger.Infow("peer link closed", "peer_id", id)
	}
}

// ToggleAudio flips the local audio mute flag without touching the
// connection and broadcasts the new state to the room. Returns the new
// enabled state.
func (o *Orchestrator) ToggleAudio(ctx context.Context) (bool, error) {
	o.mu.Lock()
	if o.stream == nil || o.stream.AudioTrack() == nil {
		o.mu.Unlock()
		return false, nil
	}
	o.audioEnabled = !o.audioEnabled
	enabled := o.audioEnabled
	o.stream.AudioTrack().SetEnabled(enabled)
	room := o.room
	o.mu.Unlock()

	return enabled, o.signaler.ToggleAudio(ctx, room, enabled)
}

// ToggleVideo is the video counterpart of ToggleAudio.
func (o *Orchestrator) ToggleVideo(ctx context.Context) (bool, error) {
	o.mu.Lock()
	if o.stream == nil || o.stream.VideoTrack() == nil {
		o.mu.Unlock()
		return false, nil
	}
	o.videoEnabled = !o.videoEnabled
	enabled := o.videoEnabled
	o.stream.VideoTrack().SetEnabled(enabled)
	room := o.room
	o.mu.Unlock()

	return enabled, o.signaler.ToggleVideo(ctx, room, enabled)
}

// SetScreenShare switches the outgoing source between camera and screen
// capture, replacing tracks and renegotiating every current link.
func (o *Orchestrator) SetScreenShare(ctx context.Context, share bool) error {
	o.mu.Lock()
	if share == o.screenSharing {
		o.mu.Unlock()
		return nil
	}
	o.mu.Unlock()

	var newStream ports.CaptureStream
	if share {
		s, err := o.screen.Capture(ctx)
		if err != nil {
			return fmt.Errorf("acquire screen capture: %w", err)
		}
		s.OnEnded(func() {
			go o.screenEnded()
		})
		newStream = s
	} else {
		s, _, err := AcquireUserMedia(ctx, o.device, o.logger)
		if err != nil {
			return err
		}
		newStream = s
	}

	o.swapStream(ctx, newStream, share)
	return nil
}

// swapStream installs the new outgoing stream and fans the renegotiation
// out to every link. A failure on one link never aborts the others.
func (o *Orchestrator) swapStream(ctx context.Context, newStream ports.CaptureStream, sharing bool) {
	o.mu.Lock()
	old := o.stream
	o.stream = newStream
	o.screenSharing = sharing
	if t := newStream.AudioTrack(); t != nil {
		t.SetEnabled(o.audioEnabled)
	}
	if t := newStream.VideoTrack(); t != nil {
		t.SetEnabled(o.videoEnabled)
	}
	links := make([]*PeerLink, 0, len(o.links))
	for _, l := range o.links {
		links = append(links, l)
	}
	o.mu.Unlock()

	for _, link := range links {
		if err := o.renegotiate(ctx, link, newStream); err != nil {
			o.reportError(fmt.Errorf("renegotiate with %s: %w", link.remoteID, err))
		}
	}

	if old != nil {
		old.Close()
	}
}

// renegotiate replaces the outgoing tracks on one link and re-runs the
// same description-exchange sub-machine used for initial setup.
func (o *Orchestrator) renegotiate(ctx context.Context, link *PeerLink, stream ports.CaptureStream) error {
	link.mu.Lock()
	defer link.mu.Unlock()

	if link.state == domain.LinkClosed {
		return domain.ErrLinkClosed
	}

	for _, t := range []ports.LocalTrack{stream.AudioTrack(), stream.VideoTrack()} {
		if t == nil {
			continue
		}
		var sender ports.TrackSender
		for _, s := range link.transport.Senders() {
			if s.Kind() == t.Kind() {
				sender = s
				break
			}
		}
		if sender != nil {
			if err := sender.ReplaceTrack(ctx, t); err != nil {
				return fmt.Errorf("replace %s track: %w", t.Kind(), err)
			}
		} else {
			if _, err := link.transport.AttachTrack(ctx, t); err != nil {
				return fmt.Errorf("add %s track: %w", t.Kind(), err)
			}
		}
	}

	return o.sendOfferLocked(ctx, link)
}

// screenEnded handles the user stopping a screen share outside our
// control: reacquire the camera and renegotiate with every link.
func (o *Orchestrator) screenEnded() {
	o.mu.Lock()
	sharing := o.screenSharing
	ctx := o.runCtx
	o.mu.Unlock()
	if !sharing || ctx == nil {
		return
	}

	o.logger.Infow("screen capture ended, falling back to camera")
	stream, err := retry.RetryWithResult(ctx, o.retryCfg, func() (ports.CaptureStream, error) {
		s, _, err := AcquireUserMedia(ctx, o.device, o.logger)
		return s, err
	})
	if err != nil {
		o.reportError(fmt.Errorf("camera fallback after screen share: %w", err))
		o.mu.Lock()
		o.screenSharing = false
		o.mu.Unlock()
		return
	}

	o.swapStream(ctx, stream, false)
}

func (o *Orchestrator) onPresence(ev PresenceEvent) {
	if link := o.link(ev.PeerID); link != nil {
		link.mu.Lock()
		if link.state != domain.LinkClosed {
			link.state = domain.LinkEstablished
		}
		link.mu.Unlock()
	}

	o.setRemoteState(ev.PeerID, domain.MediaKindAudio, ev.AudioEnabled)
	o.setRemoteState(ev.PeerID, domain.MediaKindVideo, ev.VideoEnabled)

	select {
	case o.presence <- ev:
	default:
		o.logger.Warnw("presence channel full, dropping event", "peer_id", ev.PeerID)
	}
}

func (o *Orchestrator) onMediaState(ev MediaStateEvent) {
	o.setRemoteState(ev.PeerID, ev.Kind, ev.Enabled)
}

func (o *Orchestrator) setRemoteState(id domain.ParticipantID, kind domain.MediaKind, enabled bool) {
	o.mu.Lock()
	switch kind {
	case domain.MediaKindAudio:
		o.remoteAudio[id] = enabled
	case domain.MediaKindVideo:
		o.remoteVideo[id] = enabled
	}
	o.mu.Unlock()

	select {
	case o.mediaStates <- MediaStateEvent{PeerID: id, Kind: kind, Enabled: enabled}:
	default:
	}
}

func (o *Orchestrator) link(id domain.ParticipantID) *PeerLink {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.links[id]
}

func (o *Orchestrator) reportError(err error) {
	o.logger.Warnw("orchestrator error", "error", err)
	select {
	case o.errs <- err:
	default:
	}
}

// Presence delivers one event per remote participant arrival cycle.
func (o *Orchestrator) Presence() <-chan PresenceEvent {
	return o.presence
}

// MediaStates delivers remote audio/video availability changes, from both
// track-level events and relayed mute toggles.
func (o *Orchestrator) MediaStates() <-chan MediaStateEvent {
	return o.mediaStates
}

// Errors delivers isolated per-link failures that did not abort the
// session.
func (o *Orchestrator) Errors() <-chan error {
	return o.errs
}

// Rooms returns the latest broadcast room listing.
func (o *Orchestrator) Rooms() []domain.RoomSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]domain.RoomSnapshot(nil), o.rooms...)
}

// PeerMediaState reports the last known audio/video state for a remote.
func (o *Orchestrator) PeerMediaState(id domain.ParticipantID) (audio, video bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.remoteAudio[id], o.remoteVideo[id]
}

// LinkState reports the state of the link to one remote, or LinkClosed
// when no link exists.
func (o *Orchestrator) LinkState(id domain.ParticipantID) domain.LinkState {
	if link := o.link(id); link != nil {
		return link.State()
	}
	return domain.LinkClosed
}

func (o *Orchestrator) IsScreenSharing() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.screenSharing
}

// Close leaves the room, closes every link and releases the capture
// device before returning.
func (o *Orchestrator) Close() error {
	var err error
	o.closeOnce.Do(func() {
		ctx, cancelLeave := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelLeave()

		if leaveErr := o.signaler.Leave(ctx); leaveErr != nil {
			o.logger.Warnw("leave failed during shutdown", "error", leaveErr)
		}

		o.mu.Lock()
		if o.cancel != nil {
			o.cancel()
		}
		links := make([]*PeerLink, 0, len(o.links))
		for _, l := range o.links {
			links = append(links, l)
		}
		o.links = make(map[domain.ParticipantID]*PeerLink)
		stream := o.stream
		o.stream = nil
		o.mu.Unlock()

		for _, link := range links {
			link.close()
		}
		if stream != nil {
			stream.Close()
		}

		err = o.signaler.Close()
		o.wg.Wait()
	})
	return err
}
