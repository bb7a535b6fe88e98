package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// releaseScript deletes the key only while it still holds our token, so a
// lease that expired and was re-granted to someone else is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker backed by SET NX PX. It is safe across replicas.
type Redis struct {
	client    redis.UniversalClient
	prefix    string
	retryWait time.Duration
	log       zerolog.Logger
}

func NewRedis(client redis.UniversalClient, prefix string, log zerolog.Logger) *Redis {
	return &Redis{
		client:    client,
		prefix:    prefix,
		retryWait: 50 * time.Millisecond,
		log:       log.With().Str("component", "redis-lock").Logger(),
	}
}

func (r *Redis) TryAcquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	full := r.prefix + key
	token := uuid.New().String()

	ok, err := r.client.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", full, err)
	}
	if !ok {
		return nil, ErrNotAcquired
	}

	return releaseOnce(func() {
		// the caller's ctx may already be cancelled when it releases
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, r.client, []string{full}, token).Err(); err != nil {
			r.log.Warn().Err(err).Str("key", full).Msg("Failed to release lock")
		}
	}), nil
}

func (r *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	ticker := time.NewTicker(r.retryWait)
	defer ticker.Stop()

	for {
		release, err := r.TryAcquire(ctx, key, ttl)
		if err != ErrNotAcquired {
			return release, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
