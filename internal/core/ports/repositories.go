package ports

import (
	"context"

	"roomlink/internal/core/domain"
)

// RoomRepository is the membership table behind the hub. Channels are
// opaque labels: rooms are channels whose label is a v4 UUID, and every
// connection is also registered under its own private label for addressed
// delivery. Snapshot must filter private labels out.
//
// The hub serializes all mutations; implementations only need to be safe
// for concurrent reads.
type RoomRepository interface {
	Register(ctx context.Context, channel string, p domain.ParticipantID) error
	Unregister(ctx context.Context, channel string, p domain.ParticipantID) error
	Members(ctx context.Context, channel string) ([]domain.ParticipantID, error)
	ChannelsOf(ctx context.Context, p domain.ParticipantID) ([]string, error)
	Snapshot(ctx context.Context) ([]domain.RoomSnapshot, error)
}
