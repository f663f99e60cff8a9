package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

const (
	channelKeyPrefix     = "roomlink:channel:"
	participantKeyPrefix = "roomlink:participant:"
	createdKeyPrefix     = "roomlink:created:"
	channelsKey          = "roomlink:channels"
)

// RedisRoomRepository keeps the membership table in Redis so the hub
// survives restarts without losing live room state. The hub remains the
// single writer; this backend adds durability, not multi-process scale.
type RedisRoomRepository struct {
	client *redis.Client
}

func NewRedisRoomRepository(client *redis.Client) ports.RoomRepository {
	return &RedisRoomRepository{client: client}
}

func channelKey(channel string) string {
	return channelKeyPrefix + channel
}

func participantKey(p domain.ParticipantID) string {
	return participantKeyPrefix + string(p)
}

func (r *RedisRoomRepository) Register(ctx context.Context, channel string, p domain.ParticipantID) error {
	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, channelKey(channel), string(p))
	pipe.SAdd(ctx, participantKey(p), channel)
	pipe.SAdd(ctx, channelsKey, channel)
	pipe.SetNX(ctx, createdKeyPrefix+channel, time.Now().UnixMilli(), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis register: %w", err)
	}
	return nil
}

func (r *RedisRoomRepository) Unregister(ctx context.Context, channel string, p domain.ParticipantID) error {
	pipe := r.client.TxPipeline()
	pipe.SRem(ctx, channelKey(channel), string(p))
	pipe.SRem(ctx, participantKey(p), channel)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis unregister: %w", err)
	}

	// Drop empty channels so listings never show zero-member rooms.
	size, err := r.client.SCard(ctx, channelKey(channel)).Result()
	if err != nil {
		return fmt.Errorf("redis unregister: %w", err)
	}
	if size == 0 {
		pipe := r.client.TxPipeline()
		pipe.SRem(ctx, channelsKey, channel)
		pipe.Del(ctx, createdKeyPrefix+channel)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("redis unregister: %w", err)
		}
	}
	return nil
}

func (r *RedisRoomRepository) Members(ctx context.Context, channel string) ([]domain.ParticipantID, error) {
	ids, err := r.client.SMembers(ctx, channelKey(channel)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis members: %w", err)
	}

	members := make([]domain.ParticipantID, 0, len(ids))
	for _, id := range ids {
		members = append(members, domain.ParticipantID(id))
	}
	return members, nil
}

func (r *RedisRoomRepository) ChannelsOf(ctx context.Context, p domain.ParticipantID) ([]string, error) {
	channels, err := r.client.SMembers(ctx, participantKey(p)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis channels of %s: %w", p, err)
	}
	return channels, nil
}

func (r *RedisRoomRepository) Snapshot(ctx context.Context) ([]domain.RoomSnapshot, error) {
	channels, err := r.client.SMembers(ctx, channelsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis snapshot: %w", err)
	}

	snapshots := make([]domain.RoomSnapshot, 0, len(channels))
	for _, label := range channels {
		roomID := domain.RoomID(label)
		if !domain.ValidRoomID(roomID) {
			continue
		}

		size, err := r.client.SCard(ctx, channelKey(label)).Result()
		if err != nil {
			return nil, fmt.Errorf("redis snapshot: %w", err)
		}
		if size == 0 {
			continue
		}

		createdAt := time.Now().UnixMilli()
		if raw, err := r.client.Get(ctx, createdKeyPrefix+label).Result(); err == nil {
			if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
				createdAt = ms
			}
		}

		snapshots = append(snapshots, domain.RoomSnapshot{
			ID:           roomID,
			Participants: int(size),
			CreatedAt:    createdAt,
		})
	}
	return snapshots, nil
}
