package repository

import (
	"context"

	"github.com/townhub/rollout-engine/internal/domain"
	"gorm.io/gorm"
)

// CostRow is one aggregated cost line grouped by API and SKU tier.
type CostRow struct {
	APIName             string `gorm:"column:api_name"`
	SKUTier             string `gorm:"column:sku_tier"`
	RequestCount        int64  `gorm:"column:request_count"`
	ActualResponseCount int64  `gorm:"column:actual_response_count"`
	EstimatedCostMicros int64  `gorm:"column:estimated_cost_micros"`
}

type UsageRepository interface {
	Create(ctx context.Context, u *domain.APIUsage) error
	ListByCommunityRollout(ctx context.Context, communityRolloutID string) ([]domain.APIUsage, error)
	CostBreakdown(ctx context.Context) ([]CostRow, error)
}

type GormUsageRepo struct {
	db *gorm.DB
}

func NewGormUsageRepo(db *gorm.DB) *GormUsageRepo {
	return &GormUsageRepo{db: db}
}

// Create appends one ledger row. The ledger is insert-only: no update or
// delete methods exist on this repository.
func (r *GormUsageRepo) Create(ctx context.Context, u *domain.APIUsage) error {
	model := usageModelFromDomain(u)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if u != nil {
		*u = *usageModelToDomain(model)
	}
	return nil
}

func (r *GormUsageRepo) ListByCommunityRollout(ctx context.Context, communityRolloutID string) ([]domain.APIUsage, error) {
	var models []APIUsageModel
	err := r.db.WithContext(ctx).
		Where("community_rollout_id = ?", communityRolloutID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	usages := make([]domain.APIUsage, 0, len(models))
	for i := range models {
		usages = append(usages, *usageModelToDomain(&models[i]))
	}

	return usages, nil
}

// CostBreakdown aggregates the whole ledger grouped by (api_name, sku_tier).
// Totals are derived here on every read so retries can never double-count.
func (r *GormUsageRepo) CostBreakdown(ctx context.Context) ([]CostRow, error) {
	var rows []CostRow
	err := r.db.WithContext(ctx).
		Model(&APIUsageModel{}).
		Select(`api_name, sku_tier,
			SUM(request_count) as request_count,
			SUM(actual_response_count) as actual_response_count,
			SUM(estimated_cost_micros) as estimated_cost_micros`).
		Group("api_name, sku_tier").
		Order("api_name ASC, sku_tier ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
