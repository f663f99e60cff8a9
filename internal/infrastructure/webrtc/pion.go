package webrtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/ports"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// FactoryConfig carries the transport-level WebRTC settings.
type FactoryConfig struct {
	ICEServers []webrtc.ICEServer
	PortRange  struct {
		Min uint16
		Max uint16
	}
}

// muteTimeout is how long an inbound track may go without RTP before we
// report it muted.
const muteTimeout = 2 * time.Second

// pliInterval paces keyframe requests for inbound video.
const pliInterval = 3 * time.Second

// PionBackedTrack is implemented by local tracks that wrap a pion track,
// which is what PionFactory transports require for attachment.
type PionBackedTrack interface {
	ports.LocalTrack
	PionTrack() webrtc.TrackLocal
}

// PionFactory builds one pion peer connection per remote participant.
type PionFactory struct {
	api    *webrtc.API
	config webrtc.Configuration
	logger *zap.SugaredLogger
}

func NewPionFactory(cfg FactoryConfig, logger *zap.SugaredLogger) (*PionFactory, error) {
	settingEngine := webrtc.SettingEngine{}
	if cfg.PortRange.Min > 0 && cfg.PortRange.Max > 0 {
		if err := settingEngine.SetEphemeralUDPPortRange(cfg.PortRange.Min, cfg.PortRange.Max); err != nil {
			return nil, fmt.Errorf("set udp port range: %w", err)
		}
	}

	return &PionFactory{
		api: webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine)),
		config: webrtc.Configuration{
			ICEServers:   cfg.ICEServers,
			SDPSemantics: webrtc.SDPSemanticsUnifiedPlanWithFallback,
		},
		logger: logger,
	}, nil
}

func (f *PionFactory) NewTransport(ctx context.Context) (ports.PeerTransport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pc, err := f.api.NewPeerConnection(f.config)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	return &pionTransport{pc: pc, logger: f.logger}, nil
}

type pionTransport struct {
	pc     *webrtc.PeerConnection
	logger *zap.SugaredLogger

	mu      sync.Mutex
	senders []ports.TrackSender
}

func (t *pionTransport) CreateOffer(ctx context.Context) (domain.SessionDescription, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return domain.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return domain.SessionDescription{}, fmt.Errorf("set local offer: %w", err)
	}
	return domain.SessionDescription{Type: offer.Type.String(), SDP: offer.SDP}, nil
}

func (t *pionTransport) CreateAnswer(ctx context.Context) (domain.SessionDescription, error) {
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return domain.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return domain.SessionDescription{}, fmt.Errorf("set local answer: %w", err)
	}
	return domain.SessionDescription{Type: answer.Type.String(), SDP: answer.SDP}, nil
}

func (t *pionTransport) SetRemoteDescription(ctx context.Context, desc domain.SessionDescription) error {
	return t.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.NewSDPType(desc.Type),
		SDP:  desc.SDP,
	})
}

func (t *pionTransport) AddICECandidate(ctx context.Context, cand domain.ICECandidate) error {
	return t.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:        cand.Candidate,
		SDPMid:           cand.SDPMid,
		SDPMLineIndex:    cand.SDPMLineIndex,
		UsernameFragment: cand.UsernameFragment,
	})
}

func (t *pionTransport) AttachTrack(ctx context.Context, track ports.LocalTrack) (ports.TrackSender, error) {
	backed, ok := track.(PionBackedTrack)
	if !ok {
		return nil, fmt.Errorf("track %s is not pion-backed", track.ID())
	}

	rtpSender, err := t.pc.AddTrack(backed.PionTrack())
	if err != nil {
		return nil, fmt.Errorf("add %s track: %w", track.Kind(), err)
	}

	// Pion requires sender RTCP to be drained or interceptors stall.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := rtpSender.Read(buf); err != nil {
				return
			}
		}
	}()

	sender := &pionSender{kind: track.Kind(), sender: rtpSender}
	t.mu.Lock()
	t.senders = append(t.senders, sender)
	t.mu.Unlock()
	return sender, nil
}

func (t *pionTransport) Senders() []ports.TrackSender {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]ports.TrackSender(nil), t.senders...)
}

func (t *pionTransport) OnICECandidate(fn func(domain.ICECandidate)) {
	t.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			// End-of-candidates marker, nothing to relay.
			return
		}
		init := c.ToJSON()
		fn(domain.ICECandidate{
			Candidate:        init.Candidate,
			SDPMid:           init.SDPMid,
			SDPMLineIndex:    init.SDPMLineIndex,
			UsernameFragment: init.UsernameFragment,
		})
	})
}

func (t *pionTransport) OnTrack(fn func(ports.InboundTrack)) {
	t.pc.OnTrack(func(remote *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		t.logger.Infow("inbound track",
			"track_id", remote.ID(),
			"kind", remote.Kind().String(),
			"codec", remote.Codec().MimeType,
		)

		inbound := newPionInboundTrack(remote)
		if remote.Kind() == webrtc.RTPCodecTypeVideo {
			go t.requestKeyframes(remote, inbound)
		}
		go inbound.readLoop()
		fn(inbound)
	})
}

// requestKeyframes sends periodic PLI so a freshly attached or replaced
// remote video track starts decodable.
func (t *pionTransport) requestKeyframes(remote *webrtc.TrackRemote, inbound *pionInboundTrack) {
	ticker := time.NewTicker(pliInterval)
	defer ticker.Stop()
	for {
		select {
		case <-inbound.done:
			return
		case <-ticker.C:
			err := t.pc.WriteRTCP([]rtcp.Packet{
				&rtcp.PictureLossIndication{MediaSSRC: uint32(remote.SSRC())},
			})
			if err != nil {
				return
			}
		}
	}
}

func (t *pionTransport) Close() error {
	return t.pc.Close()
}

type pionSender struct {
	kind   domain.MediaKind
	sender *webrtc.RTPSender
}

func (s *pionSender) Kind() domain.MediaKind {
	return s.kind
}

func (s *pionSender) ReplaceTrack(ctx context.Context, track ports.LocalTrack) error {
	backed, ok := track.(PionBackedTrack)
	if !ok {
		return fmt.Errorf("track %s is not pion-backed", track.ID())
	}
	return s.sender.ReplaceTrack(backed.PionTrack())
}

// pionInboundTrack adapts a remote pion track. Mute and unmute are
// inferred from RTP flow: a gap longer than muteTimeout counts as muted,
// the next packet as unmuted. A read error ends the track.
type pionInboundTrack struct {
	remote *webrtc.TrackRemote
	done   chan struct{}

	mu       sync.Mutex
	enabled  bool
	ended    bool
	onEnded  func()
	onMute   func()
	onUnmute func()
}

func newPionInboundTrack(remote *webrtc.TrackRemote) *pionInboundTrack {
	return &pionInboundTrack{
		remote:  remote,
		done:    make(chan struct{}),
		enabled: true,
	}
}

func (t *pionInboundTrack) Kind() domain.MediaKind {
	if t.remote.Kind() == webrtc.RTPCodecTypeAudio {
		return domain.MediaKindAudio
	}
	return domain.MediaKindVideo
}

func (t *pionInboundTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *pionInboundTrack) OnEnded(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onEnded = fn
}

func (t *pionInboundTrack) OnMute(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onMute = fn
}

func (t *pionInboundTrack) OnUnmute(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onUnmute = fn
}

func (t *pionInboundTrack) readLoop() {
	defer t.end()

	for {
		if err := t.remote.SetReadDeadline(time.Now().Add(muteTimeout)); err != nil {
			return
		}

		_, _, err := t.remote.ReadRTP()
		switch {
		case err == nil:
			t.setEnabled(true)
		case errors.Is(err, io.EOF):
			return
		case isTimeout(err):
			t.setEnabled(false)
		default:
			return
		}
	}
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (t *pionInboundTrack) setEnabled(enabled bool) {
	t.mu.Lock()
	if t.ended || t.enabled == enabled {
		t.mu.Unlock()
		return
	}
	t.enabled = enabled
	fn := t.onUnmute
	if !enabled {
		fn = t.onMute
	}
	t.mu.Unlock()

	if fn != nil {
		fn()
	}
}

func (t *pionInboundTrack) end() {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		return
	}
	t.ended = true
	fn := t.onEnded
	t.mu.Unlock()

	close(t.done)
	if fn != nil {
		fn()
	}
}
