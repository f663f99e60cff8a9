package webrtc

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/ports"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
)

// SyntheticDevice produces generated media streams so headless agents can
// participate in rooms without real capture hardware. Audio is Opus
// silence, video is a pattern of VP8 RTP packets.
type SyntheticDevice struct{}

func NewSyntheticDevice() *SyntheticDevice {
	return &SyntheticDevice{}
}

func (d *SyntheticDevice) Capture(ctx context.Context, profile domain.CaptureProfile) (ports.CaptureStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stream := newSyntheticStream()
	if profile.Audio {
		track, err := newSyntheticAudioTrack()
		if err != nil {
			stream.Close()
			return nil, domain.NewCaptureError(domain.CaptureOther, err)
		}
		stream.add(track)
	}
	if profile.Video {
		track, err := newSyntheticVideoTrack("camera")
		if err != nil {
			stream.Close()
			return nil, domain.NewCaptureError(domain.CaptureOther, err)
		}
		stream.add(track)
	}
	return stream, nil
}

// SyntheticScreen generates a video-only stream standing in for screen
// capture. End simulates the user stopping the share.
type SyntheticScreen struct {
	mu      sync.Mutex
	current *syntheticStream
}

func NewSyntheticScreen() *SyntheticScreen {
	return &SyntheticScreen{}
}

func (s *SyntheticScreen) Capture(ctx context.Context) (ports.CaptureStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stream := newSyntheticStream()
	track, err := newSyntheticVideoTrack("screen")
	if err != nil {
		return nil, domain.NewCaptureError(domain.CaptureOther, err)
	}
	stream.add(track)

	s.mu.Lock()
	s.current = stream
	s.mu.Unlock()
	return stream, nil
}

// End stops the active capture as if the user ended the share.
func (s *SyntheticScreen) End() {
	s.mu.Lock()
	stream := s.current
	s.current = nil
	s.mu.Unlock()

	if stream != nil {
		stream.end()
	}
}

type syntheticStream struct {
	mu      sync.Mutex
	tracks  []*syntheticTrack
	onEnded func()
	closed  bool
}

func newSyntheticStream() *syntheticStream {
	return &syntheticStream{}
}

func (s *syntheticStream) add(t *syntheticTrack) {
	s.mu.Lock()
	s.tracks = append(s.tracks, t)
	s.mu.Unlock()
}

func (s *syntheticStream) Tracks() []ports.LocalTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ports.LocalTrack, len(s.tracks))
	for i, t := range s.tracks {
		out[i] = t
	}
	return out
}

func (s *syntheticStream) AudioTrack() ports.LocalTrack {
	return s.byKind(domain.MediaKindAudio)
}

func (s *syntheticStream) VideoTrack() ports.LocalTrack {
	return s.byKind(domain.MediaKindVideo)
}

func (s *syntheticStream) byKind(kind domain.MediaKind) ports.LocalTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tracks {
		if t.Kind() == kind {
			return t
		}
	}
	return nil
}

func (s *syntheticStream) OnEnded(fn func()) {
	s.mu.Lock()
	s.onEnded = fn
	s.mu.Unlock()
}

func (s *syntheticStream) Close() error {
	s.stop()
	return nil
}

// end stops the stream and fires the ended callback, modelling the source
// going away rather than the owner releasing it.
func (s *syntheticStream) end() {
	fn := s.stop()
	if fn != nil {
		fn()
	}
}

func (s *syntheticStream) stop() func() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	tracks := s.tracks
	fn := s.onEnded
	s.mu.Unlock()

	for _, t := range tracks {
		t.stop()
	}
	return fn
}

type syntheticTrack struct {
	id    string
	kind  domain.MediaKind
	track webrtc.TrackLocal
	write func() error

	mu      sync.Mutex
	enabled bool
	done    chan struct{}
	once    sync.Once
}

func newSyntheticAudioTrack() (*syntheticTrack, error) {
	id := fmt.Sprintf("audio-%08x", rand.Uint32())
	local, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		id,
		"synthetic-audio",
	)
	if err != nil {
		return nil, err
	}

	// A minimal Opus frame encoding 20ms of silence.
	silence := []byte{0xf8, 0xff, 0xfe}
	t := &syntheticTrack{
		id:      id,
		kind:    domain.MediaKindAudio,
		track:   local,
		enabled: true,
		done:    make(chan struct{}),
	}
	t.write = func() error {
		return local.WriteSample(media.Sample{Data: silence, Duration: 20 * time.Millisecond})
	}
	go t.pace(20 * time.Millisecond)
	return t, nil
}

func newSyntheticVideoTrack(label string) (*syntheticTrack, error) {
	id := fmt.Sprintf("video-%08x", rand.Uint32())
	local, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		id,
		"synthetic-"+label,
	)
	if err != nil {
		return nil, err
	}

	ssrc := rand.Uint32()
	var seq uint16
	var ts uint32
	t := &syntheticTrack{
		id:      id,
		kind:    domain.MediaKindVideo,
		track:   local,
		enabled: true,
		done:    make(chan struct{}),
	}
	t.write = func() error {
		seq++
		ts += 3000 // one frame at 30fps on the 90kHz clock
		pkt := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         true,
				PayloadType:    96,
				SequenceNumber: seq,
				Timestamp:      ts,
				SSRC:           ssrc,
			},
			Payload: []byte{0x10, 0x00, 0x9d, 0x01, 0x2a},
		}
		return local.WriteRTP(pkt)
	}
	go t.pace(33 * time.Millisecond)
	return t, nil
}

// pace writes one sample per interval while the track is enabled. Writes
// before the track is attached anywhere are discarded by pion, so the
// loop runs from creation.
func (t *syntheticTrack) pace(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			if !t.Enabled() {
				continue
			}
			if err := t.write(); err != nil {
				return
			}
		}
	}
}

func (t *syntheticTrack) ID() string {
	return t.id
}

func (t *syntheticTrack) Kind() domain.MediaKind {
	return t.kind
}

func (t *syntheticTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *syntheticTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
}

func (t *syntheticTrack) PionTrack() webrtc.TrackLocal {
	return t.track
}

func (t *syntheticTrack) stop() {
	t.once.Do(func() {
		close(t.done)
	})
}
