package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"attestor/pkg/platform/sentinel"
)

const keyPrefix = "attestor:issuance-lock:"

// releaseScript deletes the lock only if this holder still owns it, so a
// holder whose TTL lapsed cannot release a successor's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared by all replicas. Each lock is a key holding a
// random token with a TTL; acquisition polls with capped backoff.
type Redis struct {
	client     redis.UniversalClient
	ttl        time.Duration
	minBackoff time.Duration
	maxBackoff time.Duration
}

// RedisOption configures a Redis locker.
type RedisOption func(*Redis)

// WithBackoff overrides polling intervals.
func WithBackoff(minWait, maxWait time.Duration) RedisOption {
	return func(r *Redis) {
		if minWait > 0 && maxWait >= minWait {
			r.minBackoff = minWait
			r.maxBackoff = maxWait
		}
	}
}

// NewRedis builds a Redis locker. ttl bounds how long a crashed holder can
// block an address.
func NewRedis(client redis.UniversalClient, ttl time.Duration, opts ...RedisOption) *Redis {
	r := &Redis{
		client:     client,
		ttl:        ttl,
		minBackoff: 10 * time.Millisecond,
		maxBackoff: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Lock acquires the distributed lock for key.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := keyPrefix + key
	token := uuid.NewString()
	backoff := r.minBackoff

	for {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("%w: %v", sentinel.ErrLockTimeout, ctxErr)
			}
			return nil, fmt.Errorf("%w: acquire issuance lock: %v", sentinel.ErrUnavailable, err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %v", sentinel.ErrLockTimeout, ctx.Err())
		case <-timer.C:
		}
		backoff *= 2
		if backoff > r.maxBackoff {
			backoff = r.maxBackoff
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// release must run even when the request context is already done
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			// on failure the TTL reclaims the key
			_ = releaseScript.Run(releaseCtx, r.client, []string{redisKey}, token).Err()
		})
	}, nil
}
