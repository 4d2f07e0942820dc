package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/townhub/rollout-engine/internal/repository"
	"gorm.io/gorm"
)

func createAPIUsageTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_api_usage",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.APIUsageModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_api_usage_rollout_id ON api_usage (rollout_id)`,
				`CREATE INDEX IF NOT EXISTS idx_api_usage_community ON api_usage (community_rollout_id) WHERE community_rollout_id IS NOT NULL`,
				`CREATE INDEX IF NOT EXISTS idx_api_usage_api_sku ON api_usage (api_name, sku_tier)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.APIUsageModel{})
		},
	}
}
