package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/townhub/rollout-engine/internal/directory"
	"github.com/townhub/rollout-engine/internal/domain"
	"github.com/townhub/rollout-engine/internal/observability"
	"github.com/townhub/rollout-engine/internal/queue"
	"github.com/townhub/rollout-engine/internal/repository"
	"go.uber.org/zap"
)

// Orchestrator owns the rollout control plane: initiation, pause/resume,
// operator retries, and the read-side progress and cost aggregations.
// Batch advancement itself lives in Advancer and runs on the worker.
type Orchestrator struct {
	rollouts    repository.RolloutRepository
	communities repository.CommunityRolloutRepository
	usage       repository.UsageRepository
	directory   directory.Directory
	publisher   queue.Publisher
	logger      *zap.Logger
	metrics     *observability.Metrics

	defaultBatchSize  int
	defaultThrottleMs int
}

// InitiateParams carries the caller-supplied rollout options. Nil numeric
// fields fall back to defaults; out-of-range values are clamped, not rejected.
type InitiateParams struct {
	StateCode           string
	BatchSize           *int
	ThrottleMs          *int
	SkipEnrichment      bool
	PriorityCommunities []string
}

func NewOrchestrator(
	rollouts repository.RolloutRepository,
	communities repository.CommunityRolloutRepository,
	usage repository.UsageRepository,
	dir directory.Directory,
	publisher queue.Publisher,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if rollouts == nil {
		return nil, fmt.Errorf("rollout repository is required")
	}
	if communities == nil {
		return nil, fmt.Errorf("community rollout repository is required")
	}
	if usage == nil {
		return nil, fmt.Errorf("usage repository is required")
	}
	if dir == nil {
		return nil, fmt.Errorf("community directory is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Orchestrator{
		rollouts:          rollouts,
		communities:       communities,
		usage:             usage,
		directory:         dir,
		publisher:         publisher,
		logger:            logger,
		defaultBatchSize:  domain.DefaultBatchSize,
		defaultThrottleMs: domain.DefaultThrottleMs,
	}, nil
}

// SetDefaults overrides the fallback batch size and throttle used when a
// request leaves them unset. Values are clamped to the domain bounds.
func (o *Orchestrator) SetDefaults(batchSize int, throttleMs int) {
	if o == nil {
		return
	}
	o.defaultBatchSize = domain.ClampBatchSize(&batchSize)
	o.defaultThrottleMs = domain.ClampThrottleMs(&throttleMs)
}

func (o *Orchestrator) SetMetrics(metrics *observability.Metrics) {
	if o == nil {
		return
	}
	o.metrics = metrics
}

// Initiate creates a new rollout for a state: the parent record plus one
// queued community record per directory entry, all in one transaction.
// Priority communities are positioned first; the rest keep directory order.
// A state with zero communities still gets a rollout row, immediately failed,
// so the attempt is visible in history.
func (o *Orchestrator) Initiate(ctx context.Context, params InitiateParams) (*domain.Rollout, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	stateCode, err := domain.NormalizeStateCode(params.StateCode)
	if err != nil {
		return nil, err
	}

	batchSize := params.BatchSize
	if batchSize == nil {
		batchSize = &o.defaultBatchSize
	}
	throttleMs := params.ThrottleMs
	if throttleMs == nil {
		throttleMs = &o.defaultThrottleMs
	}

	rollout := &domain.Rollout{
		ID:                  uuid.NewString(),
		StateCode:           stateCode,
		Status:              domain.RolloutStatusQueued,
		BatchSize:           domain.ClampBatchSize(batchSize),
		ThrottleMs:          domain.ClampThrottleMs(throttleMs),
		SkipEnrichment:      params.SkipEnrichment,
		PriorityCommunities: normalizePriorities(params.PriorityCommunities),
	}

	discovered, err := o.directory.CommunitiesByState(ctx, stateCode)
	if err != nil {
		return nil, fmt.Errorf("community discovery failed for %s: %w", stateCode, err)
	}

	if len(discovered) == 0 {
		rollout.Status = domain.RolloutStatusFailed
		if createErr := o.rollouts.CreateWithCommunities(ctx, rollout, nil); createErr != nil {
			return nil, createErr
		}
		return nil, fmt.Errorf("%w: directory returned no communities for state %s", domain.ErrNoCommunities, stateCode)
	}

	children := buildCommunityRecords(rollout, discovered)
	if err := o.rollouts.CreateWithCommunities(ctx, rollout, children); err != nil {
		return nil, err
	}

	if o.metrics != nil {
		o.metrics.IncRolloutInitiated(stateCode)
	}
	o.logger.Info("rollout initiated",
		zap.String("rolloutId", rollout.ID),
		zap.String("state", stateCode),
		zap.Int("communities", len(children)),
		zap.Int("batchSize", rollout.BatchSize),
		zap.Bool("skipEnrichment", rollout.SkipEnrichment),
	)

	// Batch processing happens on the worker; a lost message here is picked
	// up by the recovery scanner, so initiation does not fail on publish.
	msg := queue.AdvanceMessage{RolloutID: rollout.ID, StateCode: stateCode}
	if err := o.publisher.Publish(ctx, queue.AdvanceQueue, msg); err != nil {
		o.logger.Error("failed to publish initial advance message",
			zap.String("rolloutId", rollout.ID),
			zap.Error(err),
		)
	}

	return rollout, nil
}

// Pause halts further batch processing. In-flight community records are
// marked paused with their phase preserved; completed and failed records are
// untouched. Pausing an already-paused rollout is a no-op.
func (o *Orchestrator) Pause(ctx context.Context, rolloutID string) (*domain.Rollout, error) {
	rollout, err := o.getRollout(ctx, rolloutID)
	if err != nil {
		return nil, err
	}

	if rollout.Status == domain.RolloutStatusPaused {
		return rollout, nil
	}
	if rollout.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: rollout %s is already %s", domain.ErrConflict, rollout.ID, rollout.Status)
	}

	// Parent first: the batch loop checks the parent between communities, so
	// this stops new work before the children are flipped.
	if err := o.rollouts.UpdateStatus(ctx, rollout.ID, domain.RolloutStatusPaused); err != nil {
		return nil, err
	}

	paused, err := o.communities.PauseInFlight(ctx, rollout.ID)
	if err != nil {
		return nil, err
	}

	o.logger.Info("rollout paused",
		zap.String("rolloutId", rollout.ID),
		zap.Int64("communitiesPaused", paused),
	)

	rollout.Status = domain.RolloutStatusPaused
	return rollout, nil
}

// Resume reverts paused community records to the in-flight status matching
// their preserved phase and re-enqueues batch processing.
func (o *Orchestrator) Resume(ctx context.Context, rolloutID string) (*domain.Rollout, error) {
	rollout, err := o.getRollout(ctx, rolloutID)
	if err != nil {
		return nil, err
	}

	if rollout.Status != domain.RolloutStatusPaused {
		return nil, fmt.Errorf("%w: rollout %s is %s", domain.ErrNotPaused, rollout.ID, rollout.Status)
	}

	resumed, err := o.communities.ResumePaused(ctx, rollout.ID)
	if err != nil {
		return nil, err
	}

	advanced, err := o.communities.CountAdvanced(ctx, rollout.ID)
	if err != nil {
		return nil, err
	}

	status := domain.RolloutStatusRunning
	if advanced == 0 {
		status = domain.RolloutStatusQueued
	}
	if err := o.rollouts.UpdateStatus(ctx, rollout.ID, status); err != nil {
		return nil, err
	}

	o.logger.Info("rollout resumed",
		zap.String("rolloutId", rollout.ID),
		zap.Int64("communitiesResumed", resumed),
		zap.String("status", status.String()),
	)

	msg := queue.AdvanceMessage{RolloutID: rollout.ID, StateCode: rollout.StateCode}
	if err := o.publisher.Publish(ctx, queue.AdvanceQueue, msg); err != nil {
		o.logger.Error("failed to publish advance message on resume",
			zap.String("rolloutId", rollout.ID),
			zap.Error(err),
		)
	}

	rollout.Status = status
	return rollout, nil
}

// RetryCommunity is the operator-triggered path out of FAILED for a single
// community record. Failed records are never retried automatically.
func (o *Orchestrator) RetryCommunity(ctx context.Context, rolloutID string, communityID string) (*domain.CommunityRollout, error) {
	rollout, err := o.getRollout(ctx, rolloutID)
	if err != nil {
		return nil, err
	}

	trimmedCommunity := strings.TrimSpace(communityID)
	if trimmedCommunity == "" {
		return nil, fmt.Errorf("%w: community id is required", domain.ErrValidation)
	}

	if err := o.communities.RetryFailed(ctx, rollout.ID, trimmedCommunity); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("%w: community %s is not in failed status", domain.ErrConflict, trimmedCommunity)
		}
		return nil, err
	}

	// A failed parent has runnable work again; paused parents stay paused
	// until an explicit resume.
	if rollout.Status != domain.RolloutStatusPaused {
		if err := o.rollouts.UpdateStatus(ctx, rollout.ID, domain.RolloutStatusRunning); err != nil {
			return nil, err
		}

		msg := queue.AdvanceMessage{RolloutID: rollout.ID, StateCode: rollout.StateCode}
		if err := o.publisher.Publish(ctx, queue.AdvanceQueue, msg); err != nil {
			o.logger.Error("failed to publish advance message on retry",
				zap.String("rolloutId", rollout.ID),
				zap.Error(err),
			)
		}
	}

	o.logger.Info("community retry requested",
		zap.String("rolloutId", rollout.ID),
		zap.String("communityId", trimmedCommunity),
	)

	return o.communities.GetByCommunityID(ctx, rollout.ID, trimmedCommunity)
}

func (o *Orchestrator) getRollout(ctx context.Context, rolloutID string) (*domain.Rollout, error) {
	trimmed := strings.TrimSpace(rolloutID)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: rollout id is required", domain.ErrValidation)
	}
	return o.rollouts.GetByID(ctx, trimmed)
}

func normalizePriorities(priorities []string) []string {
	if len(priorities) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(priorities))
	normalized := make([]string, 0, len(priorities))
	for _, p := range priorities {
		trimmed := strings.TrimSpace(p)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		normalized = append(normalized, trimmed)
	}

	if len(normalized) == 0 {
		return nil
	}
	return normalized
}

// buildCommunityRecords assigns batch positions: priority communities first in
// the order given, then the remaining directory entries in directory order.
func buildCommunityRecords(rollout *domain.Rollout, discovered []directory.Community) []*domain.CommunityRollout {
	byID := make(map[string]directory.Community, len(discovered))
	for _, c := range discovered {
		byID[c.ID] = c
	}

	ordered := make([]string, 0, len(discovered))
	taken := make(map[string]struct{}, len(discovered))
	for _, id := range rollout.PriorityCommunities {
		if _, ok := byID[id]; !ok {
			continue
		}
		if _, ok := taken[id]; ok {
			continue
		}
		taken[id] = struct{}{}
		ordered = append(ordered, id)
	}
	for _, c := range discovered {
		if _, ok := taken[c.ID]; ok {
			continue
		}
		taken[c.ID] = struct{}{}
		ordered = append(ordered, c.ID)
	}

	children := make([]*domain.CommunityRollout, 0, len(ordered))
	for i, id := range ordered {
		children = append(children, &domain.CommunityRollout{
			ID:           uuid.NewString(),
			RolloutID:    rollout.ID,
			CommunityID:  id,
			Status:       domain.CommunityStatusQueued,
			CurrentPhase: domain.PhaseQueued,
			Position:     i,
		})
	}

	return children
}
