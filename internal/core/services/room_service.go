package services

import (
	"context"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/ports"
)

type roomService struct {
	repo ports.RoomRepository
}

// NewRoomService returns the membership coordinator backed by repo. The
// coordinator computes fan-out sets; the signaling hub is responsible for
// serializing calls and dispatching the resulting notifications.
func NewRoomService(repo ports.RoomRepository) ports.RoomService {
	return &roomService{repo: repo}
}

func (s *roomService) Connect(ctx context.Context, p domain.ParticipantID) error {
	// Every connection lives in its own private channel, labelled by its
	// participant id. Snapshot filters these out of listings.
	return s.repo.Register(ctx, string(p), p)
}

func (s *roomService) Join(ctx context.Context, p domain.ParticipantID, room domain.RoomID) ([]domain.ParticipantID, error) {
	if !domain.ValidRoomID(room) {
		return nil, domain.ErrInvalidRoomID
	}

	existing, err := s.repo.Members(ctx, string(room))
	if err != nil {
		return nil, err
	}
	for _, m := range existing {
		if m == p {
			return nil, domain.ErrAlreadyJoined
		}
	}

	if err := s.repo.Register(ctx, string(room), p); err != nil {
		return nil, err
	}
	return existing, nil
}

func (s *roomService) Leave(ctx context.Context, p domain.ParticipantID) (map[domain.RoomID][]domain.ParticipantID, error) {
	channels, err := s.repo.ChannelsOf(ctx, p)
	if err != nil {
		return nil, err
	}

	remaining := make(map[domain.RoomID][]domain.ParticipantID)
	for _, ch := range channels {
		room := domain.RoomID(ch)
		if !domain.ValidRoomID(room) {
			continue // private channel or other transport label
		}

		if err := s.repo.Unregister(ctx, ch, p); err != nil {
			return remaining, err
		}
		members, err := s.repo.Members(ctx, ch)
		if err != nil {
			return remaining, err
		}
		remaining[room] = members
	}
	return remaining, nil
}

func (s *roomService) Disconnect(ctx context.Context, p domain.ParticipantID) (map[domain.RoomID][]domain.ParticipantID, error) {
	remaining, err := s.Leave(ctx, p)
	if err != nil {
		return remaining, err
	}
	if err := s.repo.Unregister(ctx, string(p), p); err != nil {
		return remaining, err
	}
	return remaining, nil
}

func (s *roomService) MembersOf(ctx context.Context, room domain.RoomID, exclude domain.ParticipantID) ([]domain.ParticipantID, error) {
	if !domain.ValidRoomID(room) {
		return nil, domain.ErrInvalidRoomID
	}

	members, err := s.repo.Members(ctx, string(room))
	if err != nil {
		return nil, err
	}

	out := members[:0]
	for _, m := range members {
		if m != exclude {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *roomService) Snapshot(ctx context.Context) ([]domain.RoomSnapshot, error) {
	return s.repo.Snapshot(ctx)
}
