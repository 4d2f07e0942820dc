package repository

import (
	"encoding/json"
	"time"

	"github.com/townhub/rollout-engine/internal/domain"
	"gorm.io/datatypes"
)

// RolloutModel is the persistence model for the rollouts table.
type RolloutModel struct {
	ID                  string               `gorm:"type:uuid;primaryKey"`
	StateCode           string               `gorm:"type:varchar(2);not null"`
	Status              domain.RolloutStatus `gorm:"type:varchar(20);not null"`
	BatchSize           int                  `gorm:"not null;default:5"`
	ThrottleMs          int                  `gorm:"not null;default:250"`
	SkipEnrichment      bool                 `gorm:"not null;default:false"`
	PriorityCommunities datatypes.JSON       `gorm:"type:jsonb"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (RolloutModel) TableName() string {
	return "rollouts"
}

// CommunityRolloutModel is the persistence model for community_rollouts.
type CommunityRolloutModel struct {
	ID                   string                 `gorm:"type:uuid;primaryKey"`
	RolloutID            string                 `gorm:"type:uuid;not null"`
	CommunityID          string                 `gorm:"type:varchar(64);not null"`
	Status               domain.CommunityStatus `gorm:"type:varchar(20);not null"`
	CurrentPhase         domain.Phase           `gorm:"type:varchar(20);not null"`
	Position             int                    `gorm:"not null;default:0"`
	BusinessesDiscovered int                    `gorm:"not null;default:0"`
	NewsSourcesCreated   int                    `gorm:"not null;default:0"`
	APICostMicros        int64                  `gorm:"not null;default:0"`
	ErrorLog             *string                `gorm:"type:text"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (CommunityRolloutModel) TableName() string {
	return "community_rollouts"
}

// APIUsageModel is the persistence model for the append-only api_usage ledger.
type APIUsageModel struct {
	ID                  string  `gorm:"type:uuid;primaryKey"`
	RolloutID           string  `gorm:"type:uuid;not null"`
	CommunityRolloutID  *string `gorm:"type:uuid"`
	APIName             string  `gorm:"type:varchar(64);not null"`
	SKUTier             string  `gorm:"type:varchar(64);not null"`
	RequestCount        int     `gorm:"not null;default:0"`
	ActualResponseCount int     `gorm:"not null;default:0"`
	EstimatedCostMicros int64   `gorm:"not null;default:0"`
	CreatedAt           time.Time
}

func (APIUsageModel) TableName() string {
	return "api_usage"
}

func rolloutModelFromDomain(r *domain.Rollout) *RolloutModel {
	if r == nil {
		return nil
	}

	var priorities datatypes.JSON
	if len(r.PriorityCommunities) > 0 {
		if raw, err := json.Marshal(r.PriorityCommunities); err == nil {
			priorities = raw
		}
	}

	return &RolloutModel{
		ID:                  r.ID,
		StateCode:           r.StateCode,
		Status:              r.Status,
		BatchSize:           r.BatchSize,
		ThrottleMs:          r.ThrottleMs,
		SkipEnrichment:      r.SkipEnrichment,
		PriorityCommunities: priorities,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
}

func rolloutModelToDomain(m *RolloutModel) *domain.Rollout {
	if m == nil {
		return nil
	}

	var priorities []string
	if len(m.PriorityCommunities) > 0 {
		_ = json.Unmarshal(m.PriorityCommunities, &priorities)
	}

	return &domain.Rollout{
		ID:                  m.ID,
		StateCode:           m.StateCode,
		Status:              m.Status,
		BatchSize:           m.BatchSize,
		ThrottleMs:          m.ThrottleMs,
		SkipEnrichment:      m.SkipEnrichment,
		PriorityCommunities: priorities,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
}

func communityModelFromDomain(c *domain.CommunityRollout) *CommunityRolloutModel {
	if c == nil {
		return nil
	}

	return &CommunityRolloutModel{
		ID:                   c.ID,
		RolloutID:            c.RolloutID,
		CommunityID:          c.CommunityID,
		Status:               c.Status,
		CurrentPhase:         c.CurrentPhase,
		Position:             c.Position,
		BusinessesDiscovered: c.BusinessesDiscovered,
		NewsSourcesCreated:   c.NewsSourcesCreated,
		APICostMicros:        c.APICostMicros,
		ErrorLog:             c.ErrorLog,
		CreatedAt:            c.CreatedAt,
		UpdatedAt:            c.UpdatedAt,
	}
}

func communityModelToDomain(m *CommunityRolloutModel) *domain.CommunityRollout {
	if m == nil {
		return nil
	}

	return &domain.CommunityRollout{
		ID:                   m.ID,
		RolloutID:            m.RolloutID,
		CommunityID:          m.CommunityID,
		Status:               m.Status,
		CurrentPhase:         m.CurrentPhase,
		Position:             m.Position,
		BusinessesDiscovered: m.BusinessesDiscovered,
		NewsSourcesCreated:   m.NewsSourcesCreated,
		APICostMicros:        m.APICostMicros,
		ErrorLog:             m.ErrorLog,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
}

func usageModelFromDomain(u *domain.APIUsage) *APIUsageModel {
	if u == nil {
		return nil
	}

	return &APIUsageModel{
		ID:                  u.ID,
		RolloutID:           u.RolloutID,
		CommunityRolloutID:  u.CommunityRolloutID,
		APIName:             u.APIName,
		SKUTier:             u.SKUTier,
		RequestCount:        u.RequestCount,
		ActualResponseCount: u.ActualResponseCount,
		EstimatedCostMicros: u.EstimatedCostMicros,
		CreatedAt:           u.CreatedAt,
	}
}

func usageModelToDomain(m *APIUsageModel) *domain.APIUsage {
	if m == nil {
		return nil
	}

	return &domain.APIUsage{
		ID:                  m.ID,
		RolloutID:           m.RolloutID,
		CommunityRolloutID:  m.CommunityRolloutID,
		APIName:             m.APIName,
		SKUTier:             m.SKUTier,
		RequestCount:        m.RequestCount,
		ActualResponseCount: m.ActualResponseCount,
		EstimatedCostMicros: m.EstimatedCostMicros,
		CreatedAt:           m.CreatedAt,
	}
}
