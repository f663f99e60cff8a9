package ports

import (
	"context"

	"roomlink/internal/core/domain"
)

// RoomService coordinates membership changes and computes the mesh
// fan-out: who must be told about whom on every join and leave.
type RoomService interface {
	// Connect registers a fresh connection's private delivery channel.
	Connect(ctx context.Context, p domain.ParticipantID) error

	// Join adds p to room and returns the member set that existed before
	// the join, in other words the add-peer fan-out targets. Returns
	// domain.ErrAlreadyJoined on a duplicate join.
	Join(ctx context.Context, p domain.ParticipantID, room domain.RoomID) ([]domain.ParticipantID, error)

	// Leave removes p from every valid room it belongs to and returns the
	// remaining members per room, the remove-peer fan-out targets.
	Leave(ctx context.Context, p domain.ParticipantID) (map[domain.RoomID][]domain.ParticipantID, error)

	// Disconnect runs Leave and drops the private channel registration.
	Disconnect(ctx context.Context, p domain.ParticipantID) (map[domain.RoomID][]domain.ParticipantID, error)

	// MembersOf lists current members of room excluding p, used for the
	// audio/video state-changed room broadcasts.
	MembersOf(ctx context.Context, room domain.RoomID, exclude domain.ParticipantID) ([]domain.ParticipantID, error)

	// Snapshot returns the current room listing, valid v4 UUID rooms only,
	// computed fresh on every call.
	Snapshot(ctx context.Context) ([]domain.RoomSnapshot, error)
}
