package reliability

import (
	"context"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/ports"
	"roomlink/pkg/circuitbreaker"
	"roomlink/pkg/retry"

	"go.uber.org/zap"
)

// RoomRepositoryWrapper guards a membership backend with retry and a
// circuit breaker. It exists for the Redis repository, where transient
// network failures should not surface as failed joins.
type RoomRepositoryWrapper struct {
	repo   ports.RoomRepository
	logger *zap.SugaredLogger

	retryConfig    retry.Config
	circuitBreaker *circuitbreaker.CircuitBreaker
}

func NewRoomRepositoryWrapper(
	repo ports.RoomRepository,
	retryConfig retry.Config,
	cbConfig circuitbreaker.Config,
	logger *zap.SugaredLogger,
) *RoomRepositoryWrapper {
	wrapper := &RoomRepositoryWrapper{
		repo:           repo,
		logger:         logger,
		retryConfig:    retryConfig,
		circuitBreaker: circuitbreaker.New(cbConfig),
	}

	wrapper.circuitBreaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Infow("room repository circuit breaker state changed",
			"from", from.String(),
			"to", to.String(),
		)
	})

	return wrapper
}

func (w *RoomRepositoryWrapper) execute(ctx context.Context, fn func() error) error {
	if !w.retryConfig.Enabled {
		return fn()
	}
	return retry.Retry(ctx, w.retryConfig, func() error {
		return w.circuitBreaker.Execute(ctx, fn)
	})
}

func (w *RoomRepositoryWrapper) Register(ctx context.Context, channel string, p domain.ParticipantID) error {
	return w.execute(ctx, func() error {
		return w.repo.Register(ctx, channel, p)
	})
}

func (w *RoomRepositoryWrapper) Unregister(ctx context.Context, channel string, p domain.ParticipantID) error {
	return w.execute(ctx, func() error {
		return w.repo.Unregister(ctx, channel, p)
	})
}

func (w *RoomRepositoryWrapper) Members(ctx context.Context, channel string) ([]domain.ParticipantID, error) {
	var members []domain.ParticipantID
	err := w.execute(ctx, func() error {
		var innerErr error
		members, innerErr = w.repo.Members(ctx, channel)
		return innerErr
	})
	return members, err
}

func (w *RoomRepositoryWrapper) ChannelsOf(ctx context.Context, p domain.ParticipantID) ([]string, error) {
	var channels []string
	err := w.execute(ctx, func() error {
		var innerErr error
		channels, innerErr = w.repo.ChannelsOf(ctx, p)
		return innerErr
	})
	return channels, err
}

func (w *RoomRepositoryWrapper) Snapshot(ctx context.Context) ([]domain.RoomSnapshot, error) {
	var rooms []domain.RoomSnapshot
	err := w.execute(ctx, func() error {
		var innerErr error
		rooms, innerErr = w.repo.Snapshot(ctx)
		return innerErr
	})
	return rooms, err
}
