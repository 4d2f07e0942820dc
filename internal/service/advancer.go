package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/townhub/rollout-engine/internal/domain"
	"github.com/townhub/rollout-engine/internal/enrich"
	"github.com/townhub/rollout-engine/internal/observability"
	"github.com/townhub/rollout-engine/internal/ratelimit"
	"github.com/townhub/rollout-engine/internal/repository"
	"go.uber.org/zap"
)

// Advancer drives one rollout forward one batch at a time. Each batch takes up
// to batch_size runnable communities, earliest stage first and in position
// order within a stage, and advances every one of them a single phase,
// sleeping the rollout's throttle between communities.
type Advancer struct {
	rollouts    repository.RolloutRepository
	communities repository.CommunityRolloutRepository
	usage       repository.UsageRepository
	provider    enrich.Provider
	limiter     ratelimit.RateLimiter
	logger      *zap.Logger
	metrics     *observability.Metrics
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

// BatchResult reports what one AdvanceBatch call did.
type BatchResult struct {
	RolloutID string
	Processed int
	Advanced  int
	Failed    int
	Remaining int64
	Status    domain.RolloutStatus
}

// HasMoreWork reports whether another batch should be scheduled.
func (r *BatchResult) HasMoreWork() bool {
	return r != nil && r.Status == domain.RolloutStatusRunning && r.Remaining > 0
}

func NewAdvancer(
	rollouts repository.RolloutRepository,
	communities repository.CommunityRolloutRepository,
	usage repository.UsageRepository,
	provider enrich.Provider,
	limiter ratelimit.RateLimiter,
	logger *zap.Logger,
) (*Advancer, error) {
	if rollouts == nil {
		return nil, fmt.Errorf("rollout repository is required")
	}
	if communities == nil {
		return nil, fmt.Errorf("community rollout repository is required")
	}
	if usage == nil {
		return nil, fmt.Errorf("usage repository is required")
	}
	if provider == nil {
		return nil, fmt.Errorf("enrichment provider is required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Advancer{
		rollouts:    rollouts,
		communities: communities,
		usage:       usage,
		provider:    provider,
		limiter:     limiter,
		logger:      logger,
		now:         time.Now,
		sleep:       sleepContext,
	}, nil
}

func (a *Advancer) SetMetrics(metrics *observability.Metrics) {
	if a == nil {
		return
	}
	a.metrics = metrics
}

// AdvanceBatch processes one batch for the rollout. The caller must hold the
// rollout's advance lock. A paused or terminal rollout is a no-op. When no
// runnable communities remain after the batch, the parent is finalized to
// COMPLETED or FAILED.
func (a *Advancer) AdvanceBatch(ctx context.Context, rolloutID string) (*BatchResult, error) {
	rollout, err := a.rollouts.GetByID(ctx, rolloutID)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{RolloutID: rollout.ID, Status: rollout.Status}
	if rollout.Status == domain.RolloutStatusPaused || rollout.Status.IsTerminal() {
		return result, nil
	}

	if rollout.Status == domain.RolloutStatusQueued {
		if err := a.rollouts.UpdateStatus(ctx, rollout.ID, domain.RolloutStatusRunning); err != nil {
			return nil, err
		}
		rollout.Status = domain.RolloutStatusRunning
		result.Status = rollout.Status
	}

	batch, err := a.communities.NextBatch(ctx, rollout.ID, rollout.BatchSize)
	if err != nil {
		return nil, err
	}
	if len(batch) == 0 {
		return a.finalize(ctx, result)
	}

	if a.metrics != nil {
		a.metrics.IncBatchInFlight()
		defer a.metrics.DecBatchInFlight()
	}

	for i := range batch {
		if i > 0 {
			if err := a.sleep(ctx, rollout.Throttle()); err != nil {
				return result, err
			}

			// A pause issued mid-batch takes effect at the next community
			// boundary; the one in flight is finished first.
			current, err := a.rollouts.GetByID(ctx, rollout.ID)
			if err != nil {
				return result, err
			}
			if current.Status == domain.RolloutStatusPaused {
				result.Status = domain.RolloutStatusPaused
				return result, nil
			}
		}

		advanced, err := a.advanceCommunity(ctx, rollout, &batch[i])
		if err != nil {
			return result, err
		}

		result.Processed++
		if advanced {
			result.Advanced++
		} else {
			result.Failed++
		}
	}

	remaining, err := a.communities.CountRunnable(ctx, rollout.ID)
	if err != nil {
		return result, err
	}
	result.Remaining = remaining

	if remaining == 0 {
		return a.finalize(ctx, result)
	}

	// Refresh the parent's updated_at so the recovery scanner does not treat
	// an actively advancing rollout as stale. Status is deliberately left
	// alone: a pause that landed during the final community must survive.
	if err := a.rollouts.Touch(ctx, rollout.ID); err != nil {
		return result, err
	}

	a.logger.Debug("batch advanced",
		zap.String("rolloutId", rollout.ID),
		zap.Int("processed", result.Processed),
		zap.Int("failed", result.Failed),
		zap.Int64("remaining", remaining),
	)

	return result, nil
}

// advanceCommunity moves one record a single phase forward. A failed external
// call fails only this record and returns advanced=false; infrastructure
// errors propagate and abort the batch.
func (a *Advancer) advanceCommunity(ctx context.Context, rollout *domain.Rollout, c *domain.CommunityRollout) (bool, error) {
	switch c.Status {
	case domain.CommunityStatusQueued:
		return a.runDiscovery(ctx, rollout, c)
	case domain.CommunityStatusDiscovering:
		if rollout.SkipEnrichment {
			return a.complete(ctx, c)
		}
		return a.runEnrichment(ctx, rollout, c)
	case domain.CommunityStatusEnriching:
		// Enrichment already ran; completion is local bookkeeping.
		return a.complete(ctx, c)
	default:
		return false, nil
	}
}

func (a *Advancer) runDiscovery(ctx context.Context, rollout *domain.Rollout, c *domain.CommunityRollout) (bool, error) {
	if err := a.limiter.Wait(ctx, enrich.APIBusinessDiscovery); err != nil {
		return false, fmt.Errorf("rate limiter wait for %s: %w", enrich.APIBusinessDiscovery, err)
	}

	start := a.now()
	res, callErr := a.provider.DiscoverBusinesses(ctx, c.CommunityID)
	if a.metrics != nil {
		a.metrics.ObservePhaseDuration(domain.PhaseDiscovering.String(), a.now().Sub(start))
	}
	if callErr != nil {
		return false, a.failCommunity(ctx, c, domain.PhaseDiscovering, callErr)
	}

	if err := a.recordUsage(ctx, rollout.ID, c.ID, res.Usage); err != nil {
		return false, err
	}

	advance := repository.PhaseAdvance{
		Status:               domain.CommunityStatusDiscovering,
		Phase:                domain.PhaseDiscovering,
		BusinessesDiscovered: res.BusinessesFound,
		CostMicros:           res.Usage.EstimatedCostMicros,
	}
	if err := a.communities.ApplyAdvance(ctx, c.ID, advance); err != nil {
		return false, err
	}

	if a.metrics != nil {
		a.metrics.IncPhaseAdvance(domain.PhaseDiscovering.String())
	}
	return true, nil
}

func (a *Advancer) runEnrichment(ctx context.Context, rollout *domain.Rollout, c *domain.CommunityRollout) (bool, error) {
	if err := a.limiter.Wait(ctx, enrich.APICommunityEnrichment); err != nil {
		return false, fmt.Errorf("rate limiter wait for %s: %w", enrich.APICommunityEnrichment, err)
	}

	start := a.now()
	res, callErr := a.provider.EnrichCommunity(ctx, c.CommunityID)
	if a.metrics != nil {
		a.metrics.ObservePhaseDuration(domain.PhaseEnriching.String(), a.now().Sub(start))
	}
	if callErr != nil {
		return false, a.failCommunity(ctx, c, domain.PhaseEnriching, callErr)
	}

	if err := a.recordUsage(ctx, rollout.ID, c.ID, res.Usage); err != nil {
		return false, err
	}

	advance := repository.PhaseAdvance{
		Status:             domain.CommunityStatusEnriching,
		Phase:              domain.PhaseEnriching,
		NewsSourcesCreated: res.NewsSourcesCreated,
		CostMicros:         res.Usage.EstimatedCostMicros,
	}
	if err := a.communities.ApplyAdvance(ctx, c.ID, advance); err != nil {
		return false, err
	}

	if a.metrics != nil {
		a.metrics.IncPhaseAdvance(domain.PhaseEnriching.String())
	}
	return true, nil
}

func (a *Advancer) complete(ctx context.Context, c *domain.CommunityRollout) (bool, error) {
	advance := repository.PhaseAdvance{
		Status: domain.CommunityStatusCompleted,
		Phase:  domain.PhaseCompleted,
	}
	if err := a.communities.ApplyAdvance(ctx, c.ID, advance); err != nil {
		return false, err
	}

	if a.metrics != nil {
		a.metrics.IncPhaseAdvance(domain.PhaseCompleted.String())
	}
	return true, nil
}

// failCommunity fails a single record after an external call error. The phase
// column is not touched, so an operator retry resumes at the failed phase.
func (a *Advancer) failCommunity(ctx context.Context, c *domain.CommunityRollout, phase domain.Phase, callErr error) error {
	detail := fmt.Sprintf("%s failed: %v", phase, callErr)
	if err := a.communities.MarkFailed(ctx, c.ID, detail); err != nil {
		return err
	}

	reason := "permanent_error"
	if enrich.IsTransient(callErr) {
		reason = "transient_error"
	}
	if a.metrics != nil {
		a.metrics.IncCommunityFailure(phase.String(), reason)
	}

	a.logger.Warn("community advance failed",
		zap.String("rolloutId", c.RolloutID),
		zap.String("communityId", c.CommunityID),
		zap.String("phase", phase.String()),
		zap.String("reason", reason),
		zap.Error(callErr),
	)
	return nil
}

func (a *Advancer) recordUsage(ctx context.Context, rolloutID string, communityRolloutID string, usage enrich.Usage) error {
	row := &domain.APIUsage{
		RolloutID:           rolloutID,
		CommunityRolloutID:  &communityRolloutID,
		APIName:             usage.APIName,
		SKUTier:             usage.SKUTier,
		RequestCount:        usage.RequestCount,
		ActualResponseCount: usage.ActualResponseCount,
		EstimatedCostMicros: usage.EstimatedCostMicros,
	}
	if err := row.Validate(); err != nil {
		return err
	}
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if err := a.usage.Create(ctx, row); err != nil {
		return fmt.Errorf("append usage ledger row: %w", err)
	}

	if a.metrics != nil {
		a.metrics.AddAPICostMicros(usage.APIName, usage.SKUTier, usage.EstimatedCostMicros)
	}
	return nil
}

// finalize settles the parent status once no runnable communities remain.
// Paused children block finalization; any failed child fails the rollout.
func (a *Advancer) finalize(ctx context.Context, result *BatchResult) (*BatchResult, error) {
	rows, err := a.communities.StatusSummary(ctx, result.RolloutID)
	if err != nil {
		return result, err
	}

	anyFailed := false
	for _, row := range rows {
		switch row.Status {
		case domain.CommunityStatusPaused:
			return result, nil
		case domain.CommunityStatusFailed:
			anyFailed = true
		}
	}

	status := domain.RolloutStatusCompleted
	if anyFailed {
		status = domain.RolloutStatusFailed
	}
	if err := a.rollouts.UpdateStatus(ctx, result.RolloutID, status); err != nil {
		return result, err
	}
	result.Status = status
	result.Remaining = 0

	a.logger.Info("rollout finalized",
		zap.String("rolloutId", result.RolloutID),
		zap.String("status", status.String()),
	)
	return result, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
