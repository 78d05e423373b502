package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisResetCodes stores password reset codes in Redis with a TTL.
// Codes are single use: a successful consume deletes the key.
type RedisResetCodes struct {
	client *redis.Client
}

// NewRedisResetCodes constructs the store.
func NewRedisResetCodes(client *redis.Client) *RedisResetCodes {
	return &RedisResetCodes{client: client}
}

func resetKey(email string) string {
	return "praxisdesk:reset:" + email
}

// Save writes the code with an expiry, replacing any previous one.
func (s *RedisResetCodes) Save(ctx context.Context, email, code string, ttl time.Duration) error {
	return s.client.Set(ctx, resetKey(email), code, ttl).Err()
}

// Consume validates the code and deletes it on success.
func (s *RedisResetCodes) Consume(ctx context.Context, email, code string) (bool, error) {
	stored, err := s.client.Get(ctx, resetKey(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		return false, nil
	}
	if err := s.client.Del(ctx, resetKey(email)).Err(); err != nil {
		return false, err
	}
	return true, nil
}
