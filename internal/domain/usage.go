package domain

import (
	"fmt"
	"strings"
	"time"
)

// MicrosPerUSD converts between the ledger's integer micro-USD unit and dollars.
const MicrosPerUSD = 1_000_000

// APIUsage is one append-only ledger row for a billable external API call.
// Rows are never updated; cost totals are always derived by aggregation so
// retries cannot double-count or overwrite history.
type APIUsage struct {
	ID                  string
	RolloutID           string
	CommunityRolloutID  *string
	APIName             string
	SKUTier             string
	RequestCount        int
	ActualResponseCount int
	EstimatedCostMicros int64
	CreatedAt           time.Time
}

func (u *APIUsage) Validate() error {
	if strings.TrimSpace(u.RolloutID) == "" {
		return fmt.Errorf("%w: rollout id is required", ErrValidation)
	}
	if strings.TrimSpace(u.APIName) == "" {
		return fmt.Errorf("%w: api name is required", ErrValidation)
	}
	if u.RequestCount < 0 {
		return fmt.Errorf("%w: request count must not be negative", ErrValidation)
	}
	if u.ActualResponseCount < 0 {
		return fmt.Errorf("%w: actual response count must not be negative", ErrValidation)
	}
	if u.EstimatedCostMicros < 0 {
		return fmt.Errorf("%w: estimated cost must not be negative", ErrValidation)
	}
	return nil
}

// CostUSD returns the estimated cost in dollars for display purposes.
func (u *APIUsage) CostUSD() float64 {
	return float64(u.EstimatedCostMicros) / MicrosPerUSD
}
