package services

import (
	"context"
	"testing"

	"roomlink/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockRoomRepository struct {
	mock.Mock
}

func (m *MockRoomRepository) Register(ctx context.Context, channel string, p domain.ParticipantID) error {
	args := m.Called(ctx, channel, p)
	return args.Error(0)
}

func (m *MockRoomRepository) Unregister(ctx context.Context, channel string, p domain.ParticipantID) error {
	args := m.Called(ctx, channel, p)
	return args.Error(0)
}

func (m *MockRoomRepository) Members(ctx context.Context, channel string) ([]domain.ParticipantID, error) {
	args := m.Called(ctx, channel)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ParticipantID), args.Error(1)
}

func (m *MockRoomRepository) ChannelsOf(ctx context.Context, p domain.ParticipantID) ([]string, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockRoomRepository) Snapshot(ctx context.Context) ([]domain.RoomSnapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RoomSnapshot), args.Error(1)
}

func TestRoomService_Connect(t *testing.T) {
	repo := new(MockRoomRepository)
	svc := NewRoomService(repo)

	p := domain.ParticipantID("participant-1")
	repo.On("Register", mock.Anything, "participant-1", p).Return(nil)

	err := svc.Connect(context.Background(), p)

	assert.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestRoomService_Join(t *testing.T) {
	room := domain.NewRoomID()
	alice := domain.ParticipantID("alice")
	bob := domain.ParticipantID("bob")

	t.Run("returns members present before the join", func(t *testing.T) {
		repo := new(MockRoomRepository)
		svc := NewRoomService(repo)

		repo.On("Members", mock.Anything, string(room)).Return([]domain.ParticipantID{alice}, nil)
		repo.On("Register", mock.Anything, string(room), bob).Return(nil)

		existing, err := svc.Join(context.Background(), bob, room)

		assert.NoError(t, err)
		assert.Equal(t, []domain.ParticipantID{alice}, existing)
		repo.AssertExpectations(t)
	})

	t.Run("first participant sees an empty room", func(t *testing.T) {
		repo := new(MockRoomRepository)
		svc := NewRoomService(repo)

		repo.On("Members", mock.Anything, string(room)).Return([]domain.ParticipantID{}, nil)
		repo.On("Register", mock.Anything, string(room), alice).Return(nil)

		existing, err := svc.Join(context.Background(), alice, room)

		assert.NoError(t, err)
		assert.Empty(t, existing)
	})

	t.Run("rejects malformed room ids", func(t *testing.T) {
		repo := new(MockRoomRepository)
		svc := NewRoomService(repo)

		_, err := svc.Join(context.Background(), alice, "not-a-uuid")

		assert.ErrorIs(t, err, domain.ErrInvalidRoomID)
		repo.AssertNotCalled(t, "Register")
	})

	t.Run("rejects joining the same room twice", func(t *testing.T) {
		repo := new(MockRoomRepository)
		svc := NewRoomService(repo)

		repo.On("Members", mock.Anything, string(room)).Return([]domain.ParticipantID{alice}, nil)

		_, err := svc.Join(context.Background(), alice, room)

		assert.ErrorIs(t, err, domain.ErrAlreadyJoined)
		repo.AssertNotCalled(t, "Register")
	})
}

func TestRoomService_Leave(t *testing.T) {
	room := domain.NewRoomID()
	alice := domain.ParticipantID("alice")
	bob := domain.ParticipantID("bob")

	repo := new(MockRoomRepository)
	svc := NewRoomService(repo)

	// The private channel shares the participant's label and is not a
	// valid room id, so leave must skip it.
	repo.On("ChannelsOf", mock.Anything, alice).Return([]string{string(alice), string(room)}, nil)
	repo.On("Unregister", mock.Anything, string(room), alice).Return(nil)
	repo.On("Members", mock.Anything, string(room)).Return([]domain.ParticipantID{bob}, nil)

	remaining, err := svc.Leave(context.Background(), alice)

	assert.NoError(t, err)
	assert.Equal(t, map[domain.RoomID][]domain.ParticipantID{room: {bob}}, remaining)
	repo.AssertNotCalled(t, "Unregister", mock.Anything, string(alice), alice)
}

func TestRoomService_Disconnect(t *testing.T) {
	room := domain.NewRoomID()
	alice := domain.ParticipantID("alice")

	repo := new(MockRoomRepository)
	svc := NewRoomService(repo)

	repo.On("ChannelsOf", mock.Anything, alice).Return([]string{string(alice), string(room)}, nil)
	repo.On("Unregister", mock.Anything, string(room), alice).Return(nil)
	repo.On("Members", mock.Anything, string(room)).Return([]domain.ParticipantID{}, nil)
	repo.On("Unregister", mock.Anything, string(alice), alice).Return(nil)

	remaining, err := svc.Disconnect(context.Background(), alice)

	assert.NoError(t, err)
	assert.Contains(t, remaining, room)
	repo.AssertExpectations(t)
}

func TestRoomService_MembersOf(t *testing.T) {
	room := domain.NewRoomID()
	alice := domain.ParticipantID("alice")
	bob := domain.ParticipantID("bob")

	repo := new(MockRoomRepository)
	svc := NewRoomService(repo)

	repo.On("Members", mock.Anything, string(room)).Return([]domain.ParticipantID{alice, bob}, nil)

	members, err := svc.MembersOf(context.Background(), room, alice)

	assert.NoError(t, err)
	assert.Equal(t, []domain.ParticipantID{bob}, members)
}
