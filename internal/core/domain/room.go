package domain

import (
	"time"

	"github.com/google/uuid"
)

// RoomID identifies a session. Only version-4 UUID strings are rooms;
// every other channel label (for example a participant's private delivery
// channel) is transport plumbing and must never show up in a listing.
type RoomID string

// ParticipantID is assigned by the signaling transport at connect time and
// is stable for the lifetime of one connection.
type ParticipantID string

type Room struct {
	ID        RoomID
	Members   map[ParticipantID]struct{}
	CreatedAt time.Time
}

// RoomSnapshot is the read-only projection broadcast to every connected
// participant whenever any room's membership changes.
type RoomSnapshot struct {
	ID           RoomID `json:"id"`
	Participants int    `json:"participants"`
	CreatedAt    int64  `json:"createdAt"`
}

// ValidRoomID reports whether id parses as a version-4 UUID.
func ValidRoomID(id RoomID) bool {
	u, err := uuid.Parse(string(id))
	if err != nil {
		return false
	}
	return u.Version() == 4
}

// NewRoomID returns a fresh version-4 room identifier.
func NewRoomID() RoomID {
	return RoomID(uuid.NewString())
}
