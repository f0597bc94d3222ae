package lease

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultTTL     = 30 * time.Second
	pollInterval   = 100 * time.Millisecond
	releaseTimeout = 5 * time.Second
)

// releaseScript deletes the lease key only when it still carries our token,
// so an expired lease re-acquired by another holder is never clobbered.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// extendScript refreshes the TTL only while the key still carries our token.
const extendScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
else
	return 0
end
`

// Redis is a cross-process lease backed by SET NX with a TTL. The TTL bounds
// how long a crashed holder can block everyone else.
type Redis struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedis creates a lease on the given key. The client is injected and
// stays owned by the caller.
func NewRedis(client *redis.Client, key string, ttl time.Duration, logger *zap.Logger) *Redis {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{
		client: client,
		key:    key,
		ttl:    ttl,
		logger: logger.Named("lease.redis"),
	}
}

// Acquire polls SET NX until the lease is ours or ctx ends. Each hold gets a
// fresh token; release is compare-and-delete on that token.
func (r *Redis) Acquire(ctx context.Context) (func(), error) {
	token := uuid.New().String()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(ctx, r.key, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquiring lease %q: %w", r.key, err)
		}
		if ok {
			stop := make(chan struct{})
			go r.heartbeat(token, stop)
			return r.releaseFunc(token, stop), nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// heartbeat re-extends the hold at a third of the TTL, so a holder whose
// dispatch outlasts the TTL is not silently evicted mid-action. It exits
// when release runs or when the key stops carrying our token.
func (r *Redis) heartbeat(token string, stop <-chan struct{}) {
	interval := r.ttl / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			res, err := r.client.Eval(ctx, extendScript, []string{r.key}, token, r.ttl.Milliseconds()).Result()
			cancel()
			if err != nil {
				r.logger.Warn("lease heartbeat failed",
					zap.String("key", r.key),
					zap.Error(err),
				)
				continue
			}
			if extended, ok := res.(int64); ok && extended == 0 {
				return
			}
		}
	}
}

// releaseFunc builds the idempotent release for one hold. Release runs on
// its own deadline because the caller's context may already be done.
func (r *Redis) releaseFunc(token string, stop chan struct{}) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			defer cancel()
			if err := r.client.Eval(ctx, releaseScript, []string{r.key}, token).Err(); err != nil {
				r.logger.Warn("failed to release lease",
					zap.String("key", r.key),
					zap.Error(err),
				)
			}
		})
	}
}
