package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/townhub/rollout-engine/internal/repository"
	"gorm.io/gorm"
)

func createRolloutsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_rollouts",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.RolloutModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_rollouts_state_created ON rollouts (state_code, created_at DESC)`,
				`CREATE INDEX IF NOT EXISTS idx_rollouts_status_updated ON rollouts (status, updated_at)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.RolloutModel{})
		},
	}
}
