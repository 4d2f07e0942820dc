package repository

import (
	"context"
	"errors"

	"github.com/townhub/rollout-engine/internal/domain"
	"gorm.io/gorm"
)

// PhaseAdvance captures the outcome of advancing one community record by one
// phase. Counter fields are deltas added to the stored values.
type PhaseAdvance struct {
	Status               domain.CommunityStatus
	Phase                domain.Phase
	BusinessesDiscovered int
	NewsSourcesCreated   int
	CostMicros           int64
}

type CommunityRolloutRepository interface {
	NextBatch(ctx context.Context, rolloutID string, limit int) ([]domain.CommunityRollout, error)
	GetByCommunityID(ctx context.Context, rolloutID string, communityID string) (*domain.CommunityRollout, error)
	ListByRollout(ctx context.Context, rolloutID string) ([]domain.CommunityRollout, error)
	ApplyAdvance(ctx context.Context, id string, advance PhaseAdvance) error
	MarkFailed(ctx context.Context, id string, detail string) error
	PauseInFlight(ctx context.Context, rolloutID string) (int64, error)
	ResumePaused(ctx context.Context, rolloutID string) (int64, error)
	RetryFailed(ctx context.Context, rolloutID string, communityID string) error
	CountRunnable(ctx context.Context, rolloutID string) (int64, error)
	CountAdvanced(ctx context.Context, rolloutID string) (int64, error)
	StatusSummary(ctx context.Context, rolloutID string) ([]StatusCount, error)
	StatusSummaryAll(ctx context.Context) ([]StatusCount, error)
}

type GormCommunityRolloutRepo struct {
	db *gorm.DB
}

func NewGormCommunityRolloutRepo(db *gorm.DB) *GormCommunityRolloutRepo {
	return &GormCommunityRolloutRepo{db: db}
}

// NextBatch selects up to limit runnable records, earliest stage first so
// untouched communities enter the pipeline before in-flight ones are driven
// further. Within a stage, position carries the priority-then-creation order
// assigned at initiation.
func (r *GormCommunityRolloutRepo) NextBatch(ctx context.Context, rolloutID string, limit int) ([]domain.CommunityRollout, error) {
	if limit < 1 {
		limit = 1
	}

	var models []CommunityRolloutModel
	err := r.db.WithContext(ctx).
		Where("rollout_id = ? AND status IN ?", rolloutID, []domain.CommunityStatus{
			domain.CommunityStatusQueued,
			domain.CommunityStatusDiscovering,
			domain.CommunityStatusEnriching,
		}).
		Order("CASE status WHEN 'QUEUED' THEN 0 WHEN 'DISCOVERING' THEN 1 ELSE 2 END, position ASC, created_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	communities := make([]domain.CommunityRollout, 0, len(models))
	for i := range models {
		communities = append(communities, *communityModelToDomain(&models[i]))
	}

	return communities, nil
}

func (r *GormCommunityRolloutRepo) GetByCommunityID(ctx context.Context, rolloutID string, communityID string) (*domain.CommunityRollout, error) {
	var model CommunityRolloutModel
	err := r.db.WithContext(ctx).
		Where("rollout_id = ? AND community_id = ?", rolloutID, communityID).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return communityModelToDomain(&model), nil
}

func (r *GormCommunityRolloutRepo) ListByRollout(ctx context.Context, rolloutID string) ([]domain.CommunityRollout, error) {
	var models []CommunityRolloutModel
	err := r.db.WithContext(ctx).
		Where("rollout_id = ?", rolloutID).
		Order("position ASC, created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	communities := make([]domain.CommunityRollout, 0, len(models))
	for i := range models {
		communities = append(communities, *communityModelToDomain(&models[i]))
	}

	return communities, nil
}

func (r *GormCommunityRolloutRepo) ApplyAdvance(ctx context.Context, id string, advance PhaseAdvance) error {
	updates := map[string]any{
		"status":        advance.Status,
		"current_phase": advance.Phase,
	}
	if advance.BusinessesDiscovered != 0 {
		updates["businesses_discovered"] = gorm.Expr("businesses_discovered + ?", advance.BusinessesDiscovered)
	}
	if advance.NewsSourcesCreated != 0 {
		updates["news_sources_created"] = gorm.Expr("news_sources_created + ?", advance.NewsSourcesCreated)
	}
	if advance.CostMicros != 0 {
		updates["api_cost_micros"] = gorm.Expr("api_cost_micros + ?", advance.CostMicros)
	}

	result := r.db.WithContext(ctx).
		Model(&CommunityRolloutModel{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkFailed fails the record and appends detail to the error log, keeping
// prior failure history intact.
func (r *GormCommunityRolloutRepo) MarkFailed(ctx context.Context, id string, detail string) error {
	result := r.db.WithContext(ctx).
		Model(&CommunityRolloutModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":    domain.CommunityStatusFailed,
			"error_log": gorm.Expr("COALESCE(error_log || E'\\n', '') || ?", detail),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// PauseInFlight marks every runnable record paused. current_phase is left
// untouched so resume knows where each record was.
func (r *GormCommunityRolloutRepo) PauseInFlight(ctx context.Context, rolloutID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&CommunityRolloutModel{}).
		Where("rollout_id = ? AND status IN ?", rolloutID, []domain.CommunityStatus{
			domain.CommunityStatusQueued,
			domain.CommunityStatusDiscovering,
			domain.CommunityStatusEnriching,
		}).
		Update("status", domain.CommunityStatusPaused)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// ResumePaused reverts paused records to the status matching their preserved
// phase. Phase values mirror in-flight statuses, so the column copy suffices.
func (r *GormCommunityRolloutRepo) ResumePaused(ctx context.Context, rolloutID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&CommunityRolloutModel{}).
		Where("rollout_id = ? AND status = ?", rolloutID, domain.CommunityStatusPaused).
		Update("status", gorm.Expr("current_phase"))
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// RetryFailed is the operator-triggered path out of FAILED: the record becomes
// runnable again at the phase it had reached, so completed work is not redone.
func (r *GormCommunityRolloutRepo) RetryFailed(ctx context.Context, rolloutID string, communityID string) error {
	result := r.db.WithContext(ctx).
		Model(&CommunityRolloutModel{}).
		Where("rollout_id = ? AND community_id = ? AND status = ?",
			rolloutID, communityID, domain.CommunityStatusFailed).
		Update("status", gorm.Expr("current_phase"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormCommunityRolloutRepo) CountRunnable(ctx context.Context, rolloutID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&CommunityRolloutModel{}).
		Where("rollout_id = ? AND status IN ?", rolloutID, []domain.CommunityStatus{
			domain.CommunityStatusQueued,
			domain.CommunityStatusDiscovering,
			domain.CommunityStatusEnriching,
		}).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// CountAdvanced counts records that have left the initial queued phase. Resume
// uses it to decide whether the parent goes back to QUEUED or RUNNING.
func (r *GormCommunityRolloutRepo) CountAdvanced(ctx context.Context, rolloutID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&CommunityRolloutModel{}).
		Where("rollout_id = ? AND current_phase <> ?", rolloutID, domain.PhaseQueued).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// StatusSummary aggregates child records by status and phase with a single
// group-by; progress is always derived from rows, never from stored counters.
func (r *GormCommunityRolloutRepo) StatusSummary(ctx context.Context, rolloutID string) ([]StatusCount, error) {
	var summaries []StatusCount
	err := r.db.WithContext(ctx).
		Model(&CommunityRolloutModel{}).
		Select("rollout_id, status, current_phase, COUNT(*) as count").
		Where("rollout_id = ?", rolloutID).
		Group("rollout_id, status, current_phase").
		Scan(&summaries).Error
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

// StatusSummaryAll aggregates child records across every rollout, grouped by
// rollout, for the list endpoint.
func (r *GormCommunityRolloutRepo) StatusSummaryAll(ctx context.Context) ([]StatusCount, error) {
	var summaries []StatusCount
	err := r.db.WithContext(ctx).
		Model(&CommunityRolloutModel{}).
		Select("rollout_id, status, current_phase, COUNT(*) as count").
		Group("rollout_id, status, current_phase").
		Scan(&summaries).Error
	if err != nil {
		return nil, err
	}
	return summaries, nil
}
