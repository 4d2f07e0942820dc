package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/townhub/rollout-engine/internal/lock"
	goredis "github.com/redis/go-redis/v9"
)

const defaultLockTTL = 5 * time.Minute

// releaseScript deletes the lock key only when the caller still holds it, so
// an expired lease cannot release a lock re-acquired by someone else.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

var _ lock.RolloutLocker = (*RolloutLock)(nil)

// RolloutLock is a redis SET NX PX mutex keyed per rollout. It enforces the
// single-advancer invariant: no two batch advances for the same rollout run
// concurrently, while unrelated rollouts stay independent.
type RolloutLock struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewRolloutLock(client *goredis.Client, ttl time.Duration) (*RolloutLock, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}

	return &RolloutLock{
		client: client,
		ttl:    ttl,
	}, nil
}

func (l *RolloutLock) Acquire(ctx context.Context, rolloutID string) (lock.ReleaseFunc, bool, error) {
	if l == nil || l.client == nil {
		return nil, false, fmt.Errorf("rollout lock is not initialized")
	}

	trimmedID := strings.TrimSpace(rolloutID)
	if trimmedID == "" {
		return nil, false, fmt.Errorf("rollout id is required")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	key := lockKey(trimmedID)
	token := uuid.NewString()

	acquired, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire rollout lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}

	release := func(releaseCtx context.Context) error {
		if releaseCtx == nil {
			releaseCtx = context.Background()
		}
		if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("failed to release rollout lock: %w", err)
		}
		return nil
	}

	return release, true, nil
}

func lockKey(rolloutID string) string {
	return fmt.Sprintf("rollout:advance:lock:%s", rolloutID)
}
