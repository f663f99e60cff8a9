package webrtc

import (
	"sync"
	"time"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/ports"
)

// DefaultPresenceGrace is how long the aggregator waits after the first
// inbound track for a second one before declaring the remote participant
// present anyway. A debounce against partial-presence flicker, not a
// protocol guarantee: the sender never announces its track count.
const DefaultPresenceGrace = 500 * time.Millisecond

// PresenceEvent announces that a remote participant has enough inbound
// media to be surfaced, with per-kind availability derived from the
// tracks' initial enabled state.
type PresenceEvent struct {
	PeerID       domain.ParticipantID
	AudioEnabled bool
	VideoEnabled bool
}

// MediaStateEvent reflects a later change on one inbound track (ended,
// mute, unmute).
type MediaStateEvent struct {
	PeerID  domain.ParticipantID
	Kind    domain.MediaKind
	Enabled bool
}

// trackAggregator turns separate asynchronous audio/video track arrivals
// into a single presence decision per remote participant: emit on the
// second track, or after the grace window when only one kind exists.
type trackAggregator struct {
	peerID  domain.ParticipantID
	grace   time.Duration
	present func(PresenceEvent)
	changed func(MediaStateEvent)

	mu      sync.Mutex
	count   int
	audio   ports.InboundTrack
	video   ports.InboundTrack
	timer   *time.Timer
	emitted bool
	stopped bool
}

func newTrackAggregator(peerID domain.ParticipantID, grace time.Duration, present func(PresenceEvent), changed func(MediaStateEvent)) *trackAggregator {
	if grace <= 0 {
		grace = DefaultPresenceGrace
	}
	return &trackAggregator{
		peerID:  peerID,
		grace:   grace,
		present: present,
		changed: changed,
	}
}

func (a *trackAggregator) trackArrived(t ports.InboundTrack) {
	a.mu.Lock()

	if a.stopped {
		a.mu.Unlock()
		return
	}

	switch t.Kind() {
	case domain.MediaKindAudio:
		a.audio = t
	case domain.MediaKindVideo:
		a.video = t
	}
	a.registerListeners(t)

	if a.emitted {
		// Renegotiation replaces tracks on the existing link; presence was
		// already decided for this arrival cycle.
		a.mu.Unlock()
		return
	}

	a.count++
	switch a.count {
	case 1:
		a.timer = time.AfterFunc(a.grace, a.graceExpired)
		a.mu.Unlock()
	case 2:
		a.emitLocked()
	default:
		a.mu.Unlock()
	}
}

func (a *trackAggregator) graceExpired() {
	a.mu.Lock()
	if a.emitted || a.stopped {
		a.mu.Unlock()
		return
	}
	a.emitLocked()
}

// emitLocked fires the presence event and resets the counter. Unlocks.
func (a *trackAggregator) emitLocked() {
	a.emitted = true
	a.count = 0
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}

	ev := PresenceEvent{PeerID: a.peerID}
	if a.audio != nil {
		ev.AudioEnabled = a.audio.Enabled()
	}
	if a.video != nil {
		ev.VideoEnabled = a.video.Enabled()
	}
	a.mu.Unlock()

	a.present(ev)
}

func (a *trackAggregator) registerListeners(t ports.InboundTrack) {
	kind := t.Kind()
	t.OnEnded(func() {
		a.emitChange(kind, false)
	})
	t.OnMute(func() {
		a.emitChange(kind, false)
	})
	t.OnUnmute(func() {
		a.emitChange(kind, true)
	})
}

func (a *trackAggregator) emitChange(kind domain.MediaKind, enabled bool) {
	a.mu.Lock()
	stopped := a.stopped
	a.mu.Unlock()
	if stopped || a.changed == nil {
		return
	}
	a.changed(MediaStateEvent{PeerID: a.peerID, Kind: kind, Enabled: enabled})
}

func (a *trackAggregator) hasEmitted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.emitted
}

func (a *trackAggregator) stop() {
	a.mu.Lock()
	a.stopped = true
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.mu.Unlock()
}
