package pairing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	id "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain"
	"github.com/Malcan-Technologies/creditxpress-kyc/pkg/platform/sentinel"
)

// Redis key prefix for pairing token digests
const pairingKeyPrefix = "kyc:pairing:"

// RedisStore is the production credential store. Redis TTLs enforce the
// pairing deadline server-side, so revocation-by-expiry needs no sweeper.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Save(ctx context.Context, sessionID id.SessionID, digest string, ttl time.Duration) error {
	key := pairingKeyPrefix + sessionID.String()
	if err := s.client.Set(ctx, key, digest, ttl).Err(); err != nil {
		return fmt.Errorf("save pairing digest: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, sessionID id.SessionID) (string, error) {
	key := pairingKeyPrefix + sessionID.String()
	digest, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("pairing digest for session %s: %w", sessionID, sentinel.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get pairing digest: %w", err)
	}
	return digest, nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID id.SessionID) error {
	key := pairingKeyPrefix + sessionID.String()
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("delete pairing digest: %w", err)
	}
	return nil
}
