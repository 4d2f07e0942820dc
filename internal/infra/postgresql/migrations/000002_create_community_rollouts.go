package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/townhub/rollout-engine/internal/repository"
	"gorm.io/gorm"
)

func createCommunityRolloutsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_community_rollouts",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.CommunityRolloutModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_community_rollouts_rollout_community ON community_rollouts (rollout_id, community_id)`,
				`CREATE INDEX IF NOT EXISTS idx_community_rollouts_batch ON community_rollouts (rollout_id, status, position)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.CommunityRolloutModel{})
		},
	}
}
