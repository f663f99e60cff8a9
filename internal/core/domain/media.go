package domain

// SessionDescription carries an SDP offer or answer between two
// participants. The hub forwards it verbatim and never parses the SDP.
type SessionDescription struct {
	Type string `json:"type"` // "offer" or "answer"
	SDP  string `json:"sdp"`
}

func (d SessionDescription) IsOffer() bool  { return d.Type == "offer" }
func (d SessionDescription) IsAnswer() bool { return d.Type == "answer" }

// ICECandidate mirrors the browser RTCIceCandidateInit shape so candidates
// relay unchanged between Go and web participants.
type ICECandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

type MediaKind string

const (
	MediaKindAudio MediaKind = "audio"
	MediaKindVideo MediaKind = "video"
)

// LinkState is the lifecycle state of one PeerLink.
type LinkState int

const (
	LinkCreated LinkState = iota
	LinkOfferSent
	LinkAwaitingOffer
	LinkDescriptionExchanged
	LinkTracksArriving
	LinkEstablished
	LinkClosed
)

func (s LinkState) String() string {
	switch s {
	case LinkCreated:
		return "created"
	case LinkOfferSent:
		return "offer_sent"
	case LinkAwaitingOffer:
		return "awaiting_offer"
	case LinkDescriptionExchanged:
		return "description_exchanged"
	case LinkTracksArriving:
		return "tracks_arriving"
	case LinkEstablished:
		return "established"
	case LinkClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// CaptureErrorKind classifies local capture-device failures for the
// user-facing message picked after the fallback ladder is exhausted.
type CaptureErrorKind string

const (
	CapturePermissionDenied CaptureErrorKind = "permission_denied"
	CaptureNotFound         CaptureErrorKind = "not_found"
	CaptureDeviceBusy       CaptureErrorKind = "device_busy"
	CaptureOverconstrained  CaptureErrorKind = "overconstrained"
	CaptureOther            CaptureErrorKind = "other"
)
