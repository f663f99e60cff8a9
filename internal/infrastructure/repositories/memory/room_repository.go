package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/ports"
)

type channelState struct {
	members   map[domain.ParticipantID]struct{}
	createdAt time.Time
}

// MemoryRoomRepository is the in-process membership table. A channel is
// implicitly created on first registration and destroyed when its last
// member unregisters.
type MemoryRoomRepository struct {
	channels map[string]*channelState
	mu       sync.RWMutex
}

func NewMemoryRoomRepository() ports.RoomRepository {
	return &MemoryRoomRepository{
		channels: make(map[string]*channelState),
	}
}

func (r *MemoryRoomRepository) Register(ctx context.Context, channel string, p domain.ParticipantID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.channels[channel]
	if !ok {
		ch = &channelState{
			members:   make(map[domain.ParticipantID]struct{}),
			createdAt: time.Now(),
		}
		r.channels[channel] = ch
	}
	ch.members[p] = struct{}{}
	return nil
}

func (r *MemoryRoomRepository) Unregister(ctx context.Context, channel string, p domain.ParticipantID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.channels[channel]
	if !ok {
		return nil
	}
	delete(ch.members, p)
	if len(ch.members) == 0 {
		delete(r.channels, channel)
	}
	return nil
}

func (r *MemoryRoomRepository) Members(ctx context.Context, channel string) ([]domain.ParticipantID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ch, ok := r.channels[channel]
	if !ok {
		return nil, nil
	}

	members := make([]domain.ParticipantID, 0, len(ch.members))
	for p := range ch.members {
		members = append(members, p)
	}
	sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
	return members, nil
}

func (r *MemoryRoomRepository) ChannelsOf(ctx context.Context, p domain.ParticipantID) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var channels []string
	for label, ch := range r.channels {
		if _, ok := ch.members[p]; ok {
			channels = append(channels, label)
		}
	}
	sort.Strings(channels)
	return channels, nil
}

func (r *MemoryRoomRepository) Snapshot(ctx context.Context) ([]domain.RoomSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshots := make([]domain.RoomSnapshot, 0, len(r.channels))
	for label, ch := range r.channels {
		roomID := domain.RoomID(label)
		if !domain.ValidRoomID(roomID) {
			continue
		}
		snapshots = append(snapshots, domain.RoomSnapshot{
			ID:           roomID,
			Participants: len(ch.members),
			CreatedAt:    ch.createdAt.UnixMilli(),
		})
	}
	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].ID < snapshots[j].ID })
	return snapshots, nil
}
