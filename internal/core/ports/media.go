package ports

import (
	"context"

	"roomlink/internal/core/domain"
)

// Signaler is the client side of the signaling channel. Outbound calls are
// fire-and-forget relays through the hub; inbound traffic arrives as typed
// events on Events in the order the hub delivered it.
type Signaler interface {
	PeerID() domain.ParticipantID
	Join(ctx context.Context, room domain.RoomID) error
	Leave(ctx context.Context) error
	RelaySDP(ctx context.Context, to domain.ParticipantID, desc domain.SessionDescription) error
	RelayICE(ctx context.Context, to domain.ParticipantID, cand domain.ICECandidate) error
	ToggleAudio(ctx context.Context, room domain.RoomID, enabled bool) error
	ToggleVideo(ctx context.Context, room domain.RoomID, enabled bool) error
	Events() <-chan domain.SignalEvent
	Close() error
}

// LocalTrack is an outgoing media track attached to peer transports.
type LocalTrack interface {
	ID() string
	Kind() domain.MediaKind
	// Enabled is the local mute flag. Disabling does not detach the track.
	Enabled() bool
	SetEnabled(enabled bool)
}

// TrackSender is one attached outgoing track on a transport, replaceable
// in place during renegotiation.
type TrackSender interface {
	Kind() domain.MediaKind
	ReplaceTrack(ctx context.Context, t LocalTrack) error
}

// InboundTrack is one remote media track surfaced by a transport.
type InboundTrack interface {
	Kind() domain.MediaKind
	Enabled() bool
	OnEnded(fn func())
	OnMute(fn func())
	OnUnmute(fn func())
}

// PeerTransport abstracts one underlying peer connection. CreateOffer and
// CreateAnswer also set the local description, mirroring how every call
// site uses the pair.
type PeerTransport interface {
	CreateOffer(ctx context.Context) (domain.SessionDescription, error)
	CreateAnswer(ctx context.Context) (domain.SessionDescription, error)
	SetRemoteDescription(ctx context.Context, desc domain.SessionDescription) error
	AddICECandidate(ctx context.Context, cand domain.ICECandidate) error
	AttachTrack(ctx context.Context, t LocalTrack) (TrackSender, error)
	Senders() []TrackSender
	OnICECandidate(fn func(domain.ICECandidate))
	OnTrack(fn func(InboundTrack))
	Close() error
}

// TransportFactory builds one PeerTransport per remote participant.
type TransportFactory interface {
	NewTransport(ctx context.Context) (PeerTransport, error)
}

// CaptureStream is an acquired local capture (camera+mic or screen).
type CaptureStream interface {
	Tracks() []LocalTrack
	AudioTrack() LocalTrack // nil when the profile had no audio
	VideoTrack() LocalTrack // nil when the profile had no video
	// OnEnded fires when the source stops outside our control, for example
	// the user ends a screen share.
	OnEnded(fn func())
	Close() error
}

// MediaDevice acquires local capture according to one profile. Failures
// are reported as *domain.CaptureError so the fallback ladder can classify
// them.
type MediaDevice interface {
	Capture(ctx context.Context, profile domain.CaptureProfile) (CaptureStream, error)
}

// ScreenSource acquires a screen capture stream.
type ScreenSource interface {
	Capture(ctx context.Context) (CaptureStream, error)
}
