package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/townhub/rollout-engine/internal/domain"
	"github.com/townhub/rollout-engine/internal/lock"
	"github.com/townhub/rollout-engine/internal/observability"
	"github.com/townhub/rollout-engine/internal/queue"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultRequeueDelay = 2 * time.Second

// AdvanceWorker consumes advance messages and runs one batch per message under
// the rollout's distributed lock. Concurrent consumers process different
// rollouts in parallel; messages for a locked rollout are put back on the
// queue after a short delay.
type AdvanceWorker struct {
	advancer     *Advancer
	consumer     queue.Consumer
	publisher    queue.Publisher
	locker       lock.RolloutLocker
	logger       *zap.Logger
	metrics      *observability.Metrics
	concurrency  int
	requeueDelay time.Duration
	sleep        func(ctx context.Context, d time.Duration) error
}

func NewAdvanceWorker(
	advancer *Advancer,
	consumer queue.Consumer,
	publisher queue.Publisher,
	locker lock.RolloutLocker,
	concurrency int,
	logger *zap.Logger,
) (*AdvanceWorker, error) {
	if advancer == nil {
		return nil, fmt.Errorf("advancer is required")
	}
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if locker == nil {
		return nil, fmt.Errorf("rollout locker is required")
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AdvanceWorker{
		advancer:     advancer,
		consumer:     consumer,
		publisher:    publisher,
		locker:       locker,
		logger:       logger,
		concurrency:  concurrency,
		requeueDelay: defaultRequeueDelay,
		sleep:        sleepContext,
	}, nil
}

func (w *AdvanceWorker) SetMetrics(metrics *observability.Metrics) {
	if w == nil {
		return
	}
	w.metrics = metrics
}

// Start runs the consumer pool until ctx is cancelled.
func (w *AdvanceWorker) Start(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		group.Go(func() error {
			return w.consumer.Consume(groupCtx, queue.AdvanceQueue, w.processMessage)
		})
	}
	return group.Wait()
}

func (w *AdvanceWorker) processMessage(ctx context.Context, msg queue.AdvanceMessage) error {
	release, acquired, err := w.locker.Acquire(ctx, msg.RolloutID)
	if err != nil {
		return fmt.Errorf("acquire advance lock for rollout %s: %w", msg.RolloutID, err)
	}
	if !acquired {
		return w.requeue(ctx, msg)
	}
	defer func() {
		if releaseErr := release(context.WithoutCancel(ctx)); releaseErr != nil {
			w.logger.Warn("failed to release advance lock",
				zap.String("rolloutId", msg.RolloutID),
				zap.Error(releaseErr),
			)
		}
	}()

	result, err := w.advancer.AdvanceBatch(ctx, msg.RolloutID)
	if errors.Is(err, domain.ErrNotFound) {
		// The rollout row is gone; redelivery cannot help.
		w.logger.Warn("dropping advance message for unknown rollout",
			zap.String("rolloutId", msg.RolloutID),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("advance batch for rollout %s: %w", msg.RolloutID, err)
	}

	if result.HasMoreWork() {
		if err := w.publisher.Publish(ctx, queue.AdvanceQueue, msg); err != nil {
			// Nack instead: redelivering the original message schedules the
			// next batch just as well.
			return fmt.Errorf("republish advance for rollout %s: %w", msg.RolloutID, err)
		}
	}

	return nil
}

// requeue defers a message for a rollout whose lock is held elsewhere. The
// short sleep keeps the handoff from becoming a hot loop.
func (w *AdvanceWorker) requeue(ctx context.Context, msg queue.AdvanceMessage) error {
	if w.metrics != nil {
		w.metrics.IncAdvanceRequeued()
	}
	w.logger.Debug("rollout lock held, requeueing advance message",
		zap.String("rolloutId", msg.RolloutID),
	)

	if err := w.sleep(ctx, w.requeueDelay); err != nil {
		return err
	}
	if err := w.publisher.Publish(ctx, queue.AdvanceQueue, msg); err != nil {
		return fmt.Errorf("requeue advance for rollout %s: %w", msg.RolloutID, err)
	}
	return nil
}
