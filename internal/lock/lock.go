package lock

import "context"

// ReleaseFunc releases a held lease. Safe to call once.
type ReleaseFunc func(ctx context.Context) error

// RolloutLocker provides per-rollout mutual exclusion for batch advancement.
// No two advance runs for the same rollout may overlap; different rollouts
// proceed independently.
type RolloutLocker interface {
	// Acquire attempts to take the lock for a rollout without blocking.
	// acquired is false when another holder has it.
	Acquire(ctx context.Context, rolloutID string) (release ReleaseFunc, acquired bool, err error)
}
