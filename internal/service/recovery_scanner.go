package service

import (
	"context"
	"fmt"
	"time"

	"github.com/townhub/rollout-engine/internal/observability"
	"github.com/townhub/rollout-engine/internal/queue"
	"github.com/townhub/rollout-engine/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultRecoveryInterval   = 30 * time.Second
	defaultRecoveryStaleAfter = 2 * time.Minute
	defaultRecoveryScanLimit  = 100
)

// RecoveryScanner periodically re-enqueues non-terminal rollouts that have not
// advanced recently. Advance messages can be lost to broker or worker crashes;
// the scanner is the safety net that keeps such rollouts from stalling
// forever. A duplicate message for a healthy rollout is harmless: the advance
// lock and batch selection are both idempotent.
type RecoveryScanner struct {
	rollouts   repository.RolloutRepository
	publisher  queue.Publisher
	logger     *zap.Logger
	metrics    *observability.Metrics
	interval   time.Duration
	staleAfter time.Duration
	limit      int
	now        func() time.Time
}

func NewRecoveryScanner(
	rollouts repository.RolloutRepository,
	publisher queue.Publisher,
	interval time.Duration,
	staleAfter time.Duration,
	logger *zap.Logger,
) (*RecoveryScanner, error) {
	if rollouts == nil {
		return nil, fmt.Errorf("rollout repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if interval <= 0 {
		interval = defaultRecoveryInterval
	}
	if staleAfter <= 0 {
		staleAfter = defaultRecoveryStaleAfter
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RecoveryScanner{
		rollouts:   rollouts,
		publisher:  publisher,
		logger:     logger,
		interval:   interval,
		staleAfter: staleAfter,
		limit:      defaultRecoveryScanLimit,
		now:        time.Now,
	}, nil
}

func (s *RecoveryScanner) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

func (s *RecoveryScanner) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Run an initial scan so rollouts stranded across a restart do not wait
	// for the first ticker edge.
	if err := s.scanStale(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("recovery scanner initial scan failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.scanStale(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("recovery scanner scan failed", zap.Error(err))
			}
		}
	}
}

func (s *RecoveryScanner) scanStale(ctx context.Context) error {
	olderThan := s.now().Add(-s.staleAfter)
	stale, err := s.rollouts.ListStale(ctx, olderThan, s.limit)
	if err != nil {
		return fmt.Errorf("failed to fetch stale rollouts: %w", err)
	}

	for i := range stale {
		rollout := stale[i]
		msg := queue.AdvanceMessage{RolloutID: rollout.ID, StateCode: rollout.StateCode}
		if err := s.publisher.Publish(ctx, queue.AdvanceQueue, msg); err != nil {
			s.logger.Error("failed to re-enqueue stale rollout",
				zap.String("rolloutId", rollout.ID),
				zap.Error(err),
			)
			continue
		}

		if s.metrics != nil {
			s.metrics.IncRecoveryEnqueued()
		}
		s.logger.Info("re-enqueued stale rollout",
			zap.String("rolloutId", rollout.ID),
			zap.String("state", rollout.StateCode),
			zap.String("status", rollout.Status.String()),
		)
	}

	return nil
}
