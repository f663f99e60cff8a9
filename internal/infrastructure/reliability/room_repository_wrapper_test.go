package reliability

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"roomlink/internal/core/domain"
	"roomlink/pkg/circuitbreaker"
	"roomlink/pkg/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// flakyRepository fails the first failUntil calls of each method, then
// behaves like an empty backend.
type flakyRepository struct {
	mu        sync.Mutex
	calls     int
	failUntil int
}

func (r *flakyRepository) attempt() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.calls <= r.failUntil {
		return errors.New("connection refused")
	}
	return nil
}

func (r *flakyRepository) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *flakyRepository) Register(ctx context.Context, channel string, p domain.ParticipantID) error {
	return r.attempt()
}

func (r *flakyRepository) Unregister(ctx context.Context, channel string, p domain.ParticipantID) error {
	return r.attempt()
}

func (r *flakyRepository) Members(ctx context.Context, channel string) ([]domain.ParticipantID, error) {
	if err := r.attempt(); err != nil {
		return nil, err
	}
	return []domain.ParticipantID{"alice"}, nil
}

func (r *flakyRepository) ChannelsOf(ctx context.Context, p domain.ParticipantID) ([]string, error) {
	if err := r.attempt(); err != nil {
		return nil, err
	}
	return nil, nil
}

func (r *flakyRepository) Snapshot(ctx context.Context) ([]domain.RoomSnapshot, error) {
	if err := r.attempt(); err != nil {
		return nil, err
	}
	return nil, nil
}

func fastRetry() retry.Config {
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = 3
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 5 * time.Millisecond
	return cfg
}

func TestWrapper_RetriesTransientFailures(t *testing.T) {
	repo := &flakyRepository{failUntil: 2}
	w := NewRoomRepositoryWrapper(repo, fastRetry(), circuitbreaker.DefaultConfig(), zap.NewNop().Sugar())

	members, err := w.Members(context.Background(), "room")
	require.NoError(t, err)
	assert.Equal(t, []domain.ParticipantID{"alice"}, members)
	assert.Equal(t, 3, repo.callCount())
}

func TestWrapper_PassesThroughWhenRetryDisabled(t *testing.T) {
	repo := &flakyRepository{failUntil: 1}
	cfg := fastRetry()
	cfg.Enabled = false
	w := NewRoomRepositoryWrapper(repo, cfg, circuitbreaker.DefaultConfig(), zap.NewNop().Sugar())

	err := w.Register(context.Background(), "room", "alice")
	require.Error(t, err)
	assert.Equal(t, 1, repo.callCount(), "no retries when disabled")
}

func TestWrapper_CircuitOpensUnderSustainedFailure(t *testing.T) {
	repo := &flakyRepository{failUntil: 1000}
	cbCfg := circuitbreaker.DefaultConfig()
	cbCfg.FailureThreshold = 2
	w := NewRoomRepositoryWrapper(repo, fastRetry(), cbCfg, zap.NewNop().Sugar())

	err := w.Register(context.Background(), "room", "alice")
	require.Error(t, err)
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen, "breaker trips before the retries are exhausted")

	// While open, the backend is not touched at all.
	before := repo.callCount()
	err = w.Unregister(context.Background(), "room", "alice")
	require.Error(t, err)
	assert.Equal(t, before, repo.callCount())
}

func TestWrapper_SuccessPassesThrough(t *testing.T) {
	repo := &flakyRepository{}
	w := NewRoomRepositoryWrapper(repo, fastRetry(), circuitbreaker.DefaultConfig(), zap.NewNop().Sugar())

	require.NoError(t, w.Register(context.Background(), "room", "alice"))
	require.NoError(t, w.Unregister(context.Background(), "room", "alice"))

	channels, err := w.ChannelsOf(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, channels)

	rooms, err := w.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rooms)
}
