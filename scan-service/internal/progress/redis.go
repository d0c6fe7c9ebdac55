package progress

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/sortit/sortit-services/scan-service/internal/reward"
)

// RedisStore keeps each ledger under Key(userID) with no expiry.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Load(ctx context.Context, userID string) (reward.UserProgress, bool, error) {
	if err := checkUserID(userID); err != nil {
		return reward.UserProgress{}, false, err
	}
	val, err := s.client.Get(ctx, Key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return reward.UserProgress{}, false, nil
	}
	if err != nil {
		return reward.UserProgress{}, false, err
	}
	p, err := reward.Decode(val)
	if err != nil {
		return reward.UserProgress{}, true, err
	}
	return p, true, nil
}

func (s *RedisStore) Save(ctx context.Context, userID string, p reward.UserProgress) error {
	if err := checkUserID(userID); err != nil {
		return err
	}
	data, err := reward.Encode(p)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, Key(userID), data, 0).Err()
}

func (s *RedisStore) Delete(ctx context.Context, userID string) error {
	if err := checkUserID(userID); err != nil {
		return err
	}
	return s.client.Del(ctx, Key(userID)).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
