package signal

import (
	"encoding/json"
	"fmt"

	"roomlink/internal/core/domain"
)

// Signaling channel actions. Client-to-hub: join, leave, relay-sdp,
// relay-ice, toggle-audio, toggle-video. Hub-to-client: hello, share-rooms,
// add-peer, remove-peer, session-description, ice-candidate,
// audio-state-changed, video-state-changed.
const (
	ActionHello              = "hello"
	ActionJoin               = "join"
	ActionLeave              = "leave"
	ActionShareRooms         = "share-rooms"
	ActionAddPeer            = "add-peer"
	ActionRemovePeer         = "remove-peer"
	ActionRelaySDP           = "relay-sdp"
	ActionSessionDescription = "session-description"
	ActionRelayICE           = "relay-ice"
	ActionICECandidate       = "ice-candidate"
	ActionToggleAudio        = "toggle-audio"
	ActionToggleVideo        = "toggle-video"
	ActionAudioStateChanged  = "audio-state-changed"
	ActionVideoStateChanged  = "video-state-changed"
)

// Message is the envelope for every signaling channel frame.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type HelloPayload struct {
	PeerID domain.ParticipantID `json:"peerID"`
}

type JoinPayload struct {
	Room domain.RoomID `json:"room"`
}

type ShareRoomsPayload struct {
	Rooms []domain.RoomSnapshot `json:"rooms"`
}

type AddPeerPayload struct {
	PeerID      domain.ParticipantID `json:"peerID"`
	CreateOffer bool                 `json:"createOffer"`
}

type RemovePeerPayload struct {
	PeerID domain.ParticipantID `json:"peerID"`
}

// SDPPayload is used in both directions: peerID names the target on
// relay-sdp and the origin on session-description.
type SDPPayload struct {
	PeerID             domain.ParticipantID      `json:"peerID"`
	SessionDescription domain.SessionDescription `json:"sessionDescription"`
}

// ICEPayload is used in both directions, like SDPPayload.
type ICEPayload struct {
	PeerID       domain.ParticipantID `json:"peerID"`
	ICECandidate domain.ICECandidate  `json:"iceCandidate"`
}

type ToggleAudioPayload struct {
	RoomID         domain.RoomID `json:"roomID"`
	IsAudioEnabled bool          `json:"isAudioEnabled"`
}

type ToggleVideoPayload struct {
	RoomID         domain.RoomID `json:"roomID"`
	IsVideoEnabled bool          `json:"isVideoEnabled"`
}

type AudioStateChangedPayload struct {
	PeerID         domain.ParticipantID `json:"peerID"`
	IsAudioEnabled bool                 `json:"isAudioEnabled"`
}

type VideoStateChangedPayload struct {
	PeerID         domain.ParticipantID `json:"peerID"`
	IsVideoEnabled bool                 `json:"isVideoEnabled"`
}

func encodeMessage(action string, payload interface{}) ([]byte, error) {
	msg := Message{Action: action}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", action, err)
		}
		msg.Payload = raw
	}
	return json.Marshal(msg)
}
