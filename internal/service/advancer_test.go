package service

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/townhub/rollout-engine/internal/domain"
	"github.com/townhub/rollout-engine/internal/enrich"
	"github.com/townhub/rollout-engine/internal/repository"
)

func TestAdvanceBatchQueuedCommunitiesAdvanceToDiscovering(t *testing.T) {
	t.Parallel()

	rollout := &domain.Rollout{
		ID:         "r1",
		StateCode:  "FL",
		Status:     domain.RolloutStatusQueued,
		BatchSize:  2,
		ThrottleMs: 100,
	}
	batch := []domain.CommunityRollout{
		queuedCommunity("cr1", "c1"),
		queuedCommunity("cr2", "c2"),
	}

	var advances []repository.PhaseAdvance
	communities := &fakeCommunityRepo{
		nextBatchFn: func(ctx context.Context, rolloutID string, limit int) ([]domain.CommunityRollout, error) {
			if limit != 2 {
				t.Fatalf("batch limit = %d, want 2", limit)
			}
			return batch, nil
		},
		applyAdvanceFn: func(ctx context.Context, id string, advance repository.PhaseAdvance) error {
			advances = append(advances, advance)
			return nil
		},
		countRunnableFn: func(ctx context.Context, rolloutID string) (int64, error) {
			return 3, nil
		},
	}

	var ledger []domain.APIUsage
	usage := &fakeUsageRepo{
		createFn: func(ctx context.Context, u *domain.APIUsage) error {
			ledger = append(ledger, *u)
			return nil
		},
	}

	provider := &fakeEnrichProvider{
		discoverFn: func(ctx context.Context, communityID string) (*enrich.Result, error) {
			return &enrich.Result{
				BusinessesFound: 12,
				Usage: enrich.Usage{
					APIName:             enrich.APIBusinessDiscovery,
					SKUTier:             "standard",
					RequestCount:        1,
					ActualResponseCount: 1,
					EstimatedCostMicros: 32_000,
				},
			}, nil
		},
	}

	adv := newTestAdvancer(t, rolloutRepoFor(rollout), communities, usage, provider, &fakeRateLimiter{})

	result, err := adv.AdvanceBatch(context.Background(), "r1")
	if err != nil {
		t.Fatalf("AdvanceBatch() error = %v", err)
	}

	if result.Processed != 2 || result.Advanced != 2 || result.Failed != 0 {
		t.Fatalf("result = %+v, want 2 processed, 2 advanced, 0 failed", result)
	}
	if result.Remaining != 3 {
		t.Fatalf("remaining = %d, want 3", result.Remaining)
	}
	if !result.HasMoreWork() {
		t.Fatal("expected more work to be scheduled")
	}

	if len(advances) != 2 {
		t.Fatalf("advances = %d, want 2", len(advances))
	}
	for _, a := range advances {
		if a.Status != domain.CommunityStatusDiscovering || a.Phase != domain.PhaseDiscovering {
			t.Fatalf("advance = %+v, want DISCOVERING", a)
		}
		if a.BusinessesDiscovered != 12 {
			t.Fatalf("businesses = %d, want 12", a.BusinessesDiscovered)
		}
		if a.CostMicros != 32_000 {
			t.Fatalf("cost delta = %d, want 32000", a.CostMicros)
		}
	}

	if len(ledger) != 2 {
		t.Fatalf("ledger rows = %d, want 2", len(ledger))
	}
	if ledger[0].APIName != enrich.APIBusinessDiscovery {
		t.Fatalf("ledger api = %s, want %s", ledger[0].APIName, enrich.APIBusinessDiscovery)
	}
	if ledger[0].CommunityRolloutID == nil || *ledger[0].CommunityRolloutID != "cr1" {
		t.Fatal("ledger row must reference the community record")
	}
}

func TestAdvanceBatchThrottlesBetweenCommunities(t *testing.T) {
	t.Parallel()

	rollout := &domain.Rollout{
		ID:         "r1",
		Status:     domain.RolloutStatusRunning,
		BatchSize:  3,
		ThrottleMs: 250,
	}
	batch := []domain.CommunityRollout{
		queuedCommunity("cr1", "c1"),
		queuedCommunity("cr2", "c2"),
		queuedCommunity("cr3", "c3"),
	}

	communities := &fakeCommunityRepo{
		nextBatchFn: func(ctx context.Context, rolloutID string, limit int) ([]domain.CommunityRollout, error) {
			return batch, nil
		},
	}

	adv := newTestAdvancer(t, rolloutRepoFor(rollout), communities, &fakeUsageRepo{}, discoveryProvider(), &fakeRateLimiter{})

	var sleeps []time.Duration
	adv.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}

	if _, err := adv.AdvanceBatch(context.Background(), "r1"); err != nil {
		t.Fatalf("AdvanceBatch() error = %v", err)
	}

	// Throttle applies between communities, not before the first one.
	if len(sleeps) != 2 {
		t.Fatalf("sleeps = %d, want 2", len(sleeps))
	}
	for _, d := range sleeps {
		if d != 250*time.Millisecond {
			t.Fatalf("sleep = %v, want 250ms", d)
		}
	}
}

func TestAdvanceBatchProviderFailureIsIsolated(t *testing.T) {
	t.Parallel()

	rollout := &domain.Rollout{
		ID:         "r1",
		Status:     domain.RolloutStatusRunning,
		BatchSize:  2,
		ThrottleMs: 50,
	}
	batch := []domain.CommunityRollout{
		queuedCommunity("cr1", "bad"),
		queuedCommunity("cr2", "good"),
	}

	failedID := ""
	failDetail := ""
	var advanced []string
	communities := &fakeCommunityRepo{
		nextBatchFn: func(ctx context.Context, rolloutID string, limit int) ([]domain.CommunityRollout, error) {
			return batch, nil
		},
		markFailedFn: func(ctx context.Context, id string, detail string) error {
			failedID = id
			failDetail = detail
			return nil
		},
		applyAdvanceFn: func(ctx context.Context, id string, advance repository.PhaseAdvance) error {
			advanced = append(advanced, id)
			return nil
		},
		countRunnableFn: func(ctx context.Context, rolloutID string) (int64, error) {
			return 1, nil
		},
	}

	provider := &fakeEnrichProvider{
		discoverFn: func(ctx context.Context, communityID string) (*enrich.Result, error) {
			if communityID == "bad" {
				return nil, &enrich.ProviderError{StatusCode: 502, Message: "upstream down", Transient: true}
			}
			return &enrich.Result{Usage: discoveryUsage()}, nil
		},
	}

	adv := newTestAdvancer(t, rolloutRepoFor(rollout), communities, &fakeUsageRepo{}, provider, &fakeRateLimiter{})

	result, err := adv.AdvanceBatch(context.Background(), "r1")
	if err != nil {
		t.Fatalf("AdvanceBatch() error = %v", err)
	}

	if result.Processed != 2 || result.Advanced != 1 || result.Failed != 1 {
		t.Fatalf("result = %+v, want 2 processed, 1 advanced, 1 failed", result)
	}
	if failedID != "cr1" {
		t.Fatalf("failed record = %s, want cr1", failedID)
	}
	if failDetail == "" {
		t.Fatal("failure detail must be appended to the error log")
	}
	if len(advanced) != 1 || advanced[0] != "cr2" {
		t.Fatalf("advanced records = %v, want [cr2]", advanced)
	}
}

func TestAdvanceBatchSkipEnrichmentCompletesAfterDiscovery(t *testing.T) {
	t.Parallel()

	rollout := &domain.Rollout{
		ID:             "r1",
		Status:         domain.RolloutStatusRunning,
		BatchSize:      1,
		ThrottleMs:     50,
		SkipEnrichment: true,
	}
	record := queuedCommunity("cr1", "c1")
	record.Status = domain.CommunityStatusDiscovering
	record.CurrentPhase = domain.PhaseDiscovering

	var got repository.PhaseAdvance
	communities := &fakeCommunityRepo{
		nextBatchFn: func(ctx context.Context, rolloutID string, limit int) ([]domain.CommunityRollout, error) {
			return []domain.CommunityRollout{record}, nil
		},
		applyAdvanceFn: func(ctx context.Context, id string, advance repository.PhaseAdvance) error {
			got = advance
			return nil
		},
		countRunnableFn: func(ctx context.Context, rolloutID string) (int64, error) {
			return 1, nil
		},
	}

	provider := &fakeEnrichProvider{
		enrichFn: func(ctx context.Context, communityID string) (*enrich.Result, error) {
			t.Fatal("enrichment must not run when skip_enrichment is set")
			return nil, nil
		},
	}

	adv := newTestAdvancer(t, rolloutRepoFor(rollout), communities, &fakeUsageRepo{}, provider, &fakeRateLimiter{})

	if _, err := adv.AdvanceBatch(context.Background(), "r1"); err != nil {
		t.Fatalf("AdvanceBatch() error = %v", err)
	}
	if got.Status != domain.CommunityStatusCompleted || got.Phase != domain.PhaseCompleted {
		t.Fatalf("advance = %+v, want COMPLETED", got)
	}
}

func TestAdvanceBatchEnrichingCompletesWithoutProviderCall(t *testing.T) {
	t.Parallel()

	rollout := &domain.Rollout{
		ID:         "r1",
		Status:     domain.RolloutStatusRunning,
		BatchSize:  1,
		ThrottleMs: 50,
	}
	record := queuedCommunity("cr1", "c1")
	record.Status = domain.CommunityStatusEnriching
	record.CurrentPhase = domain.PhaseEnriching

	var got repository.PhaseAdvance
	communities := &fakeCommunityRepo{
		nextBatchFn: func(ctx context.Context, rolloutID string, limit int) ([]domain.CommunityRollout, error) {
			return []domain.CommunityRollout{record}, nil
		},
		applyAdvanceFn: func(ctx context.Context, id string, advance repository.PhaseAdvance) error {
			got = advance
			return nil
		},
	}

	provider := &fakeEnrichProvider{
		discoverFn: func(ctx context.Context, communityID string) (*enrich.Result, error) {
			t.Fatal("no external call expected for an ENRICHING record")
			return nil, nil
		},
		enrichFn: func(ctx context.Context, communityID string) (*enrich.Result, error) {
			t.Fatal("no external call expected for an ENRICHING record")
			return nil, nil
		},
	}

	adv := newTestAdvancer(t, rolloutRepoFor(rollout), communities, &fakeUsageRepo{}, provider, &fakeRateLimiter{})

	if _, err := adv.AdvanceBatch(context.Background(), "r1"); err != nil {
		t.Fatalf("AdvanceBatch() error = %v", err)
	}
	if got.Status != domain.CommunityStatusCompleted {
		t.Fatalf("advance = %+v, want COMPLETED", got)
	}
}

func TestAdvanceBatchPausedRolloutIsNoOp(t *testing.T) {
	t.Parallel()

	rollout := &domain.Rollout{ID: "r1", Status: domain.RolloutStatusPaused, BatchSize: 5, ThrottleMs: 50}
	communities := &fakeCommunityRepo{
		nextBatchFn: func(ctx context.Context, rolloutID string, limit int) ([]domain.CommunityRollout, error) {
			t.Fatal("paused rollout must not select a batch")
			return nil, nil
		},
	}

	adv := newTestAdvancer(t, rolloutRepoFor(rollout), communities, &fakeUsageRepo{}, discoveryProvider(), &fakeRateLimiter{})

	result, err := adv.AdvanceBatch(context.Background(), "r1")
	if err != nil {
		t.Fatalf("AdvanceBatch() error = %v", err)
	}
	if result.Status != domain.RolloutStatusPaused || result.Processed != 0 {
		t.Fatalf("result = %+v, want untouched PAUSED", result)
	}
}

func TestAdvanceBatchMidBatchPauseStopsAtBoundary(t *testing.T) {
	t.Parallel()

	calls := 0
	rollouts := &fakeRolloutRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Rollout, error) {
			calls++
			status := domain.RolloutStatusRunning
			// The re-check between communities observes the pause.
			if calls > 1 {
				status = domain.RolloutStatusPaused
			}
			return &domain.Rollout{ID: id, Status: status, BatchSize: 2, ThrottleMs: 50}, nil
		},
	}

	batch := []domain.CommunityRollout{
		queuedCommunity("cr1", "c1"),
		queuedCommunity("cr2", "c2"),
	}
	var advanced []string
	communities := &fakeCommunityRepo{
		nextBatchFn: func(ctx context.Context, rolloutID string, limit int) ([]domain.CommunityRollout, error) {
			return batch, nil
		},
		applyAdvanceFn: func(ctx context.Context, id string, advance repository.PhaseAdvance) error {
			advanced = append(advanced, id)
			return nil
		},
	}

	adv := newTestAdvancer(t, rollouts, communities, &fakeUsageRepo{}, discoveryProvider(), &fakeRateLimiter{})

	result, err := adv.AdvanceBatch(context.Background(), "r1")
	if err != nil {
		t.Fatalf("AdvanceBatch() error = %v", err)
	}
	if result.Status != domain.RolloutStatusPaused {
		t.Fatalf("status = %s, want PAUSED", result.Status)
	}
	if len(advanced) != 1 || advanced[0] != "cr1" {
		t.Fatalf("advanced = %v, want only cr1 before the pause", advanced)
	}
}

func TestAdvanceBatchFinalizesParent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		rows       []repository.StatusCount
		wantStatus domain.RolloutStatus
	}{
		{
			"all completed",
			[]repository.StatusCount{
				{Status: domain.CommunityStatusCompleted, Phase: domain.PhaseCompleted, Count: 4},
			},
			domain.RolloutStatusCompleted,
		},
		{
			"one failed",
			[]repository.StatusCount{
				{Status: domain.CommunityStatusCompleted, Phase: domain.PhaseCompleted, Count: 3},
				{Status: domain.CommunityStatusFailed, Phase: domain.PhaseDiscovering, Count: 1},
			},
			domain.RolloutStatusFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var updatedTo domain.RolloutStatus
			rollouts := &fakeRolloutRepo{
				getByIDFn: func(ctx context.Context, id string) (*domain.Rollout, error) {
					return &domain.Rollout{ID: id, Status: domain.RolloutStatusRunning, BatchSize: 5, ThrottleMs: 50}, nil
				},
				updateStatusFn: func(ctx context.Context, id string, status domain.RolloutStatus) error {
					updatedTo = status
					return nil
				},
			}
			communities := &fakeCommunityRepo{
				statusSummaryFn: func(ctx context.Context, rolloutID string) ([]repository.StatusCount, error) {
					return tt.rows, nil
				},
			}

			adv := newTestAdvancer(t, rollouts, communities, &fakeUsageRepo{}, discoveryProvider(), &fakeRateLimiter{})

			result, err := adv.AdvanceBatch(context.Background(), "r1")
			if err != nil {
				t.Fatalf("AdvanceBatch() error = %v", err)
			}
			if updatedTo != tt.wantStatus {
				t.Fatalf("parent updated to %s, want %s", updatedTo, tt.wantStatus)
			}
			if result.Status != tt.wantStatus {
				t.Fatalf("result status = %s, want %s", result.Status, tt.wantStatus)
			}
		})
	}
}

func TestAdvanceBatchLedgerFailureAbortsBatch(t *testing.T) {
	t.Parallel()

	rollout := &domain.Rollout{ID: "r1", Status: domain.RolloutStatusRunning, BatchSize: 2, ThrottleMs: 50}
	batch := []domain.CommunityRollout{
		queuedCommunity("cr1", "c1"),
		queuedCommunity("cr2", "c2"),
	}

	communities := &fakeCommunityRepo{
		nextBatchFn: func(ctx context.Context, rolloutID string, limit int) ([]domain.CommunityRollout, error) {
			return batch, nil
		},
		applyAdvanceFn: func(ctx context.Context, id string, advance repository.PhaseAdvance) error {
			t.Fatal("advance must not be applied when the ledger append fails")
			return nil
		},
	}
	usage := &fakeUsageRepo{
		createFn: func(ctx context.Context, u *domain.APIUsage) error {
			return errors.New("database unavailable")
		},
	}

	adv := newTestAdvancer(t, rolloutRepoFor(rollout), communities, usage, discoveryProvider(), &fakeRateLimiter{})

	result, err := adv.AdvanceBatch(context.Background(), "r1")
	if err == nil {
		t.Fatal("AdvanceBatch() expected error, got nil")
	}
	if result.Processed != 0 {
		t.Fatalf("processed = %d, want 0", result.Processed)
	}
}

func TestAdvanceBatchProgressesBreadthFirstAcrossBatches(t *testing.T) {
	t.Parallel()

	rollout := &domain.Rollout{
		ID:        "r1",
		StateCode: "FL",
		Status:    domain.RolloutStatusRunning,
		BatchSize: 2,
	}

	records := []*domain.CommunityRollout{}
	for i, id := range []string{"c1", "c2", "c3", "c4", "c5"} {
		record := queuedCommunity("cr"+id[1:], id)
		record.Position = i
		records = append(records, &record)
	}

	adv := newTestAdvancer(t, rolloutRepoFor(rollout), statefulCommunities(records), &fakeUsageRepo{}, discoveryProvider(), &fakeRateLimiter{})

	// Three batches of two must bring every community into discovery before
	// any of them is driven further toward completion.
	for i := 0; i < 3; i++ {
		if _, err := adv.AdvanceBatch(context.Background(), "r1"); err != nil {
			t.Fatalf("AdvanceBatch() #%d error = %v", i+1, err)
		}
	}

	for _, record := range records {
		if record.CurrentPhase == domain.PhaseQueued {
			t.Errorf("community %s never entered discovery; status = %s", record.CommunityID, record.Status)
		}
		if record.Status == domain.CommunityStatusCompleted {
			t.Errorf("community %s completed before the queue drained", record.CommunityID)
		}
	}
}

func TestAdvanceBatchPreservesPauseDuringFinalCommunity(t *testing.T) {
	t.Parallel()

	parent := &domain.Rollout{ID: "r1", Status: domain.RolloutStatusRunning, BatchSize: 2, ThrottleMs: 50}
	touched := false
	rollouts := &fakeRolloutRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Rollout, error) {
			copied := *parent
			return &copied, nil
		},
		updateStatusFn: func(ctx context.Context, id string, status domain.RolloutStatus) error {
			parent.Status = status
			return nil
		},
		touchFn: func(ctx context.Context, id string) error {
			touched = true
			return nil
		},
	}

	batch := []domain.CommunityRollout{
		queuedCommunity("cr1", "c1"),
		queuedCommunity("cr2", "c2"),
	}
	communities := &fakeCommunityRepo{
		nextBatchFn: func(ctx context.Context, rolloutID string, limit int) ([]domain.CommunityRollout, error) {
			return batch, nil
		},
		applyAdvanceFn: func(ctx context.Context, id string, advance repository.PhaseAdvance) error {
			// An operator pause lands while the last community is in flight.
			if id == "cr2" {
				parent.Status = domain.RolloutStatusPaused
			}
			return nil
		},
		countRunnableFn: func(ctx context.Context, rolloutID string) (int64, error) {
			return 3, nil
		},
	}

	adv := newTestAdvancer(t, rollouts, communities, &fakeUsageRepo{}, discoveryProvider(), &fakeRateLimiter{})

	if _, err := adv.AdvanceBatch(context.Background(), "r1"); err != nil {
		t.Fatalf("AdvanceBatch() error = %v", err)
	}

	if parent.Status != domain.RolloutStatusPaused {
		t.Fatalf("parent status = %s, want the pause preserved as PAUSED", parent.Status)
	}
	if !touched {
		t.Fatal("batch tail must still refresh updated_at for the recovery scanner")
	}
}

// statefulCommunities mirrors the Gorm repository's batch selection over an
// in-memory record set: runnable records ordered by earliest stage, then
// position, with advances mutating the records.
func statefulCommunities(records []*domain.CommunityRollout) *fakeCommunityRepo {
	stageRank := func(s domain.CommunityStatus) int {
		switch s {
		case domain.CommunityStatusQueued:
			return 0
		case domain.CommunityStatusDiscovering:
			return 1
		default:
			return 2
		}
	}
	runnable := func() []*domain.CommunityRollout {
		out := make([]*domain.CommunityRollout, 0, len(records))
		for _, r := range records {
			if r.Status.IsRunnable() {
				out = append(out, r)
			}
		}
		return out
	}

	return &fakeCommunityRepo{
		nextBatchFn: func(ctx context.Context, rolloutID string, limit int) ([]domain.CommunityRollout, error) {
			candidates := runnable()
			sort.SliceStable(candidates, func(i, j int) bool {
				if stageRank(candidates[i].Status) != stageRank(candidates[j].Status) {
					return stageRank(candidates[i].Status) < stageRank(candidates[j].Status)
				}
				return candidates[i].Position < candidates[j].Position
			})
			if len(candidates) > limit {
				candidates = candidates[:limit]
			}

			batch := make([]domain.CommunityRollout, 0, len(candidates))
			for _, r := range candidates {
				batch = append(batch, *r)
			}
			return batch, nil
		},
		applyAdvanceFn: func(ctx context.Context, id string, advance repository.PhaseAdvance) error {
			for _, r := range records {
				if r.ID == id {
					r.Status = advance.Status
					r.CurrentPhase = advance.Phase
					return nil
				}
			}
			return domain.ErrNotFound
		},
		countRunnableFn: func(ctx context.Context, rolloutID string) (int64, error) {
			return int64(len(runnable())), nil
		},
	}
}

func newTestAdvancer(
	t *testing.T,
	rollouts repository.RolloutRepository,
	communities repository.CommunityRolloutRepository,
	usage repository.UsageRepository,
	provider enrich.Provider,
	limiter *fakeRateLimiter,
) *Advancer {
	t.Helper()

	adv, err := NewAdvancer(rollouts, communities, usage, provider, limiter, nil)
	if err != nil {
		t.Fatalf("NewAdvancer() error = %v", err)
	}
	adv.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return adv
}

func rolloutRepoFor(rollout *domain.Rollout) *fakeRolloutRepo {
	return &fakeRolloutRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Rollout, error) {
			copied := *rollout
			return &copied, nil
		},
		updateStatusFn: func(ctx context.Context, id string, status domain.RolloutStatus) error {
			rollout.Status = status
			return nil
		},
	}
}

func queuedCommunity(id string, communityID string) domain.CommunityRollout {
	return domain.CommunityRollout{
		ID:           id,
		RolloutID:    "r1",
		CommunityID:  communityID,
		Status:       domain.CommunityStatusQueued,
		CurrentPhase: domain.PhaseQueued,
	}
}

func discoveryUsage() enrich.Usage {
	return enrich.Usage{
		APIName:             enrich.APIBusinessDiscovery,
		SKUTier:             "standard",
		RequestCount:        1,
		ActualResponseCount: 1,
		EstimatedCostMicros: 32_000,
	}
}

func discoveryProvider() *fakeEnrichProvider {
	return &fakeEnrichProvider{
		discoverFn: func(ctx context.Context, communityID string) (*enrich.Result, error) {
			return &enrich.Result{BusinessesFound: 5, Usage: discoveryUsage()}, nil
		},
	}
}

type fakeEnrichProvider struct {
	discoverFn func(ctx context.Context, communityID string) (*enrich.Result, error)
	enrichFn   func(ctx context.Context, communityID string) (*enrich.Result, error)
}

func (f *fakeEnrichProvider) DiscoverBusinesses(ctx context.Context, communityID string) (*enrich.Result, error) {
	if f.discoverFn != nil {
		return f.discoverFn(ctx, communityID)
	}
	return &enrich.Result{Usage: discoveryUsage()}, nil
}

func (f *fakeEnrichProvider) EnrichCommunity(ctx context.Context, communityID string) (*enrich.Result, error) {
	if f.enrichFn != nil {
		return f.enrichFn(ctx, communityID)
	}
	return &enrich.Result{Usage: enrich.Usage{
		APIName:             enrich.APICommunityEnrichment,
		SKUTier:             "standard",
		RequestCount:        1,
		ActualResponseCount: 1,
		EstimatedCostMicros: 50_000,
	}}, nil
}

type fakeRateLimiter struct {
	waitFn func(ctx context.Context, apiName string) error
}

func (f *fakeRateLimiter) Allow(ctx context.Context, apiName string) (bool, error) {
	return true, nil
}

func (f *fakeRateLimiter) Wait(ctx context.Context, apiName string) error {
	if f.waitFn != nil {
		return f.waitFn(ctx, apiName)
	}
	return nil
}
