package domain

// SignalEvent is a typed inbound message delivered to a participant over
// the signaling channel. PeerLink state machines are driven exclusively by
// these events plus local user actions.
type SignalEvent interface {
	signalEvent()
}

// PeerAdded tells the local participant about a new room member. The hub
// fans it out asymmetrically: existing members get CreateOffer=false, the
// newcomer gets CreateOffer=true for each existing member.
type PeerAdded struct {
	PeerID      ParticipantID
	CreateOffer bool
}

// PeerRemoved instructs the local participant to tear down its link to
// PeerID. Delivered symmetrically on any leave or disconnect.
type PeerRemoved struct {
	PeerID ParticipantID
}

// RemoteDescription is a relayed offer or answer originating from PeerID.
type RemoteDescription struct {
	PeerID      ParticipantID
	Description SessionDescription
}

// RemoteCandidate is a relayed ICE candidate originating from PeerID.
type RemoteCandidate struct {
	PeerID    ParticipantID
	Candidate ICECandidate
}

// RoomsShared is the broadcast room listing snapshot.
type RoomsShared struct {
	Rooms []RoomSnapshot
}

// PeerAudioState and PeerVideoState reflect a remote participant's mute
// toggles. Metadata only; the media-disabled bit on the track itself is
// observed independently.
type PeerAudioState struct {
	PeerID  ParticipantID
	Enabled bool
}

type PeerVideoState struct {
	PeerID  ParticipantID
	Enabled bool
}

func (PeerAdded) signalEvent()         {}
func (PeerRemoved) signalEvent()       {}
func (RemoteDescription) signalEvent() {}
func (RemoteCandidate) signalEvent()   {}
func (RoomsShared) signalEvent()       {}
func (PeerAudioState) signalEvent()    {}
func (PeerVideoState) signalEvent()    {}
