package ratelimit

import "context"

// RateLimiter controls outbound call throughput per external API.
type RateLimiter interface {
	Allow(ctx context.Context, apiName string) (bool, error)
	Wait(ctx context.Context, apiName string) error
}
