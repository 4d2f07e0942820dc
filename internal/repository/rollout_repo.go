package repository

import (
	"context"
	"errors"
	"time"

	"github.com/townhub/rollout-engine/internal/domain"
	"gorm.io/gorm"
)

type ListParams struct {
	Status   *domain.RolloutStatus
	Page     int
	PageSize int
}

// StatusCount is one row of a group-by aggregation over community records.
type StatusCount struct {
	RolloutID string                 `gorm:"column:rollout_id"`
	Status    domain.CommunityStatus `gorm:"column:status"`
	Phase     domain.Phase           `gorm:"column:current_phase"`
	Count     int                    `gorm:"column:count"`
}

type RolloutRepository interface {
	CreateWithCommunities(ctx context.Context, r *domain.Rollout, communities []*domain.CommunityRollout) error
	GetByID(ctx context.Context, id string) (*domain.Rollout, error)
	LatestByState(ctx context.Context, stateCode string) (*domain.Rollout, error)
	List(ctx context.Context, params ListParams) ([]domain.Rollout, int64, error)
	UpdateStatus(ctx context.Context, id string, status domain.RolloutStatus) error
	Touch(ctx context.Context, id string) error
	ListStale(ctx context.Context, olderThan time.Time, limit int) ([]domain.Rollout, error)
}

type GormRolloutRepo struct {
	db *gorm.DB
}

func NewGormRolloutRepo(db *gorm.DB) *GormRolloutRepo {
	return &GormRolloutRepo{db: db}
}

// CreateWithCommunities inserts the parent rollout and all of its community
// records in one transaction: either the full set exists afterwards or nothing
// does.
func (r *GormRolloutRepo) CreateWithCommunities(
	ctx context.Context,
	rollout *domain.Rollout,
	communities []*domain.CommunityRollout,
) error {
	rolloutModel := rolloutModelFromDomain(rollout)

	communityModels := make([]CommunityRolloutModel, 0, len(communities))
	modelIndexes := make([]int, 0, len(communities))
	for i, c := range communities {
		model := communityModelFromDomain(c)
		if model != nil {
			communityModels = append(communityModels, *model)
			modelIndexes = append(modelIndexes, i)
		}
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(rolloutModel).Error; err != nil {
			return err
		}
		if len(communityModels) == 0 {
			return nil
		}
		return tx.CreateInBatches(&communityModels, 100).Error
	})
	if err != nil {
		return err
	}

	if rollout != nil {
		*rollout = *rolloutModelToDomain(rolloutModel)
	}
	for i := range communityModels {
		idx := modelIndexes[i]
		if idx < len(communities) && communities[idx] != nil {
			*communities[idx] = *communityModelToDomain(&communityModels[i])
		}
	}

	return nil
}

func (r *GormRolloutRepo) GetByID(ctx context.Context, id string) (*domain.Rollout, error) {
	var model RolloutModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rolloutModelToDomain(&model), nil
}

// LatestByState resolves the authoritative rollout for a state: the most
// recently created row wins, older rows are history.
func (r *GormRolloutRepo) LatestByState(ctx context.Context, stateCode string) (*domain.Rollout, error) {
	var model RolloutModel
	err := r.db.WithContext(ctx).
		Where("state_code = ?", stateCode).
		Order("created_at DESC").
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rolloutModelToDomain(&model), nil
}

func (r *GormRolloutRepo) List(ctx context.Context, params ListParams) ([]domain.Rollout, int64, error) {
	query := r.db.WithContext(ctx).Model(&RolloutModel{})

	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []RolloutModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	rollouts := make([]domain.Rollout, 0, len(models))
	for i := range models {
		rollouts = append(rollouts, *rolloutModelToDomain(&models[i]))
	}

	return rollouts, total, nil
}

func (r *GormRolloutRepo) UpdateStatus(ctx context.Context, id string, status domain.RolloutStatus) error {
	result := r.db.WithContext(ctx).
		Model(&RolloutModel{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Touch bumps updated_at without changing status, so an in-flight batch can
// signal liveness to the recovery scanner without clobbering a concurrent
// pause.
func (r *GormRolloutRepo) Touch(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&RolloutModel{}).
		Where("id = ?", id).
		Update("updated_at", time.Now())
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListStale returns non-terminal rollouts that have not been touched since
// olderThan. The recovery scanner re-enqueues them after lost advance messages.
func (r *GormRolloutRepo) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]domain.Rollout, error) {
	var models []RolloutModel
	err := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at <= ?",
			[]domain.RolloutStatus{domain.RolloutStatusQueued, domain.RolloutStatusRunning},
			olderThan,
		).
		Order("updated_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	rollouts := make([]domain.Rollout, 0, len(models))
	for i := range models {
		rollouts = append(rollouts, *rolloutModelToDomain(&models[i]))
	}

	return rollouts, nil
}
