package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/townhub/rollout-engine/internal/domain"
	"github.com/townhub/rollout-engine/internal/repository"
)

// ProgressSummary is the derived progress view of one rollout. Everything here
// comes from aggregating community rows at read time; nothing is cached on the
// parent record.
type ProgressSummary struct {
	RolloutID       string
	Total           int
	Completed       int
	Failed          int
	PercentComplete float64
	ByStatus        map[domain.CommunityStatus]int
	ByPhase         map[domain.Phase]int
}

// RolloutWithProgress pairs a rollout with its derived progress for list views.
type RolloutWithProgress struct {
	Rollout  domain.Rollout
	Progress ProgressSummary
}

// RolloutDetail is the full read model for one state: the latest rollout, its
// progress, and every community record in batch order.
type RolloutDetail struct {
	Rollout     domain.Rollout
	Progress    ProgressSummary
	Communities []domain.CommunityRollout
}

// CommunityDetail pairs one community record with its usage ledger rows.
type CommunityDetail struct {
	Community domain.CommunityRollout
	Usage     []domain.APIUsage
}

// CostLine is one aggregated row of the cost report.
type CostLine struct {
	APIName             string
	SKUTier             string
	RequestCount        int64
	ActualResponseCount int64
	EstimatedCostMicros int64
	EstimatedCostUSD    float64
}

type CostReport struct {
	Lines       []CostLine
	TotalMicros int64
	TotalUSD    float64
}

// Progress derives the progress summary for one rollout from its community
// rows.
func (o *Orchestrator) Progress(ctx context.Context, rolloutID string) (*ProgressSummary, error) {
	rollout, err := o.getRollout(ctx, rolloutID)
	if err != nil {
		return nil, err
	}

	rows, err := o.communities.StatusSummary(ctx, rollout.ID)
	if err != nil {
		return nil, err
	}

	summary := summarize(rollout.ID, rows)
	return &summary, nil
}

// StateDetail resolves the most recent rollout for a state together with its
// progress and full community listing.
func (o *Orchestrator) StateDetail(ctx context.Context, stateCode string) (*RolloutDetail, error) {
	normalized, err := domain.NormalizeStateCode(stateCode)
	if err != nil {
		return nil, err
	}

	rollout, err := o.rollouts.LatestByState(ctx, normalized)
	if err != nil {
		return nil, err
	}

	communities, err := o.communities.ListByRollout(ctx, rollout.ID)
	if err != nil {
		return nil, err
	}

	rows, err := o.communities.StatusSummary(ctx, rollout.ID)
	if err != nil {
		return nil, err
	}

	return &RolloutDetail{
		Rollout:     *rollout,
		Progress:    summarize(rollout.ID, rows),
		Communities: communities,
	}, nil
}

// CommunityStateDetail resolves one community's record within the most recent
// rollout for a state, together with its usage ledger.
func (o *Orchestrator) CommunityStateDetail(ctx context.Context, stateCode string, communityID string) (*CommunityDetail, error) {
	normalized, err := domain.NormalizeStateCode(stateCode)
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(communityID)
	if trimmed == "" {
		return nil, domain.ErrNotFound
	}

	rollout, err := o.rollouts.LatestByState(ctx, normalized)
	if err != nil {
		return nil, err
	}

	community, err := o.communities.GetByCommunityID(ctx, rollout.ID, trimmed)
	if err != nil {
		return nil, err
	}

	usage, err := o.usage.ListByCommunityRollout(ctx, community.ID)
	if err != nil {
		return nil, err
	}

	return &CommunityDetail{Community: *community, Usage: usage}, nil
}

// List returns a page of rollouts, each with its derived progress.
func (o *Orchestrator) List(ctx context.Context, params repository.ListParams) ([]RolloutWithProgress, int64, error) {
	rollouts, total, err := o.rollouts.List(ctx, params)
	if err != nil {
		return nil, 0, err
	}

	rows, err := o.communities.StatusSummaryAll(ctx)
	if err != nil {
		return nil, 0, err
	}

	byRollout := make(map[string][]repository.StatusCount)
	for _, row := range rows {
		byRollout[row.RolloutID] = append(byRollout[row.RolloutID], row)
	}

	result := make([]RolloutWithProgress, 0, len(rollouts))
	for i := range rollouts {
		result = append(result, RolloutWithProgress{
			Rollout:  rollouts[i],
			Progress: summarize(rollouts[i].ID, byRollout[rollouts[i].ID]),
		})
	}

	return result, total, nil
}

// RecordUsage appends one row to the cost ledger.
func (o *Orchestrator) RecordUsage(ctx context.Context, usage *domain.APIUsage) error {
	if usage == nil {
		return domain.ErrValidation
	}
	if err := usage.Validate(); err != nil {
		return err
	}

	if usage.ID == "" {
		usage.ID = uuid.NewString()
	}
	if err := o.usage.Create(ctx, usage); err != nil {
		return err
	}

	if o.metrics != nil {
		o.metrics.AddAPICostMicros(usage.APIName, usage.SKUTier, usage.EstimatedCostMicros)
	}
	return nil
}

// CostBreakdown aggregates the entire usage ledger grouped by API and SKU tier.
func (o *Orchestrator) CostBreakdown(ctx context.Context) (*CostReport, error) {
	rows, err := o.usage.CostBreakdown(ctx)
	if err != nil {
		return nil, err
	}

	report := &CostReport{Lines: make([]CostLine, 0, len(rows))}
	for _, row := range rows {
		report.Lines = append(report.Lines, CostLine{
			APIName:             row.APIName,
			SKUTier:             row.SKUTier,
			RequestCount:        row.RequestCount,
			ActualResponseCount: row.ActualResponseCount,
			EstimatedCostMicros: row.EstimatedCostMicros,
			EstimatedCostUSD:    float64(row.EstimatedCostMicros) / domain.MicrosPerUSD,
		})
		report.TotalMicros += row.EstimatedCostMicros
	}
	report.TotalUSD = float64(report.TotalMicros) / domain.MicrosPerUSD

	return report, nil
}

func summarize(rolloutID string, rows []repository.StatusCount) ProgressSummary {
	summary := ProgressSummary{
		RolloutID: rolloutID,
		ByStatus:  make(map[domain.CommunityStatus]int),
		ByPhase:   make(map[domain.Phase]int),
	}

	for _, row := range rows {
		summary.Total += row.Count
		summary.ByStatus[row.Status] += row.Count
		summary.ByPhase[row.Phase] += row.Count
	}
	summary.Completed = summary.ByStatus[domain.CommunityStatusCompleted]
	summary.Failed = summary.ByStatus[domain.CommunityStatusFailed]

	if summary.Total > 0 {
		summary.PercentComplete = float64(summary.Completed) / float64(summary.Total) * 100
	}

	return summary
}
