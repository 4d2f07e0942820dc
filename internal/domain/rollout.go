package domain

import (
	"fmt"
	"strings"
	"time"
)

// RolloutStatus represents the lifecycle state of a state-level rollout.
type RolloutStatus string

const (
	RolloutStatusQueued    RolloutStatus = "QUEUED"
	RolloutStatusRunning   RolloutStatus = "RUNNING"
	RolloutStatusPaused    RolloutStatus = "PAUSED"
	RolloutStatusCompleted RolloutStatus = "COMPLETED"
	RolloutStatusFailed    RolloutStatus = "FAILED"
)

func (s RolloutStatus) String() string { return string(s) }

func (s RolloutStatus) IsValid() bool {
	switch s {
	case RolloutStatusQueued, RolloutStatusRunning, RolloutStatusPaused, RolloutStatusCompleted, RolloutStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the rollout can never advance again.
func (s RolloutStatus) IsTerminal() bool {
	return s == RolloutStatusCompleted || s == RolloutStatusFailed
}

func ParseRolloutStatusFromString(s string) (RolloutStatus, error) {
	st := RolloutStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid rollout status %q", ErrValidation, s)
	}
	return st, nil
}

// Batch and throttle bounds enforced at initiation.
const (
	MinBatchSize     = 1
	MaxBatchSize     = 20
	DefaultBatchSize = 5

	MinThrottleMs     = 50
	MaxThrottleMs     = 5000
	DefaultThrottleMs = 250
)

// stateCodes is the recognized set of two-letter US state codes plus DC.
var stateCodes = map[string]struct{}{
	"AL": {}, "AK": {}, "AZ": {}, "AR": {}, "CA": {}, "CO": {}, "CT": {},
	"DE": {}, "DC": {}, "FL": {}, "GA": {}, "HI": {}, "ID": {}, "IL": {},
	"IN": {}, "IA": {}, "KS": {}, "KY": {}, "LA": {}, "ME": {}, "MD": {},
	"MA": {}, "MI": {}, "MN": {}, "MS": {}, "MO": {}, "MT": {}, "NE": {},
	"NV": {}, "NH": {}, "NJ": {}, "NM": {}, "NY": {}, "NC": {}, "ND": {},
	"OH": {}, "OK": {}, "OR": {}, "PA": {}, "RI": {}, "SC": {}, "SD": {},
	"TN": {}, "TX": {}, "UT": {}, "VT": {}, "VA": {}, "WA": {}, "WV": {},
	"WI": {}, "WY": {},
}

// NormalizeStateCode uppercases and validates a two-letter state code.
func NormalizeStateCode(code string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if len(normalized) != 2 {
		return "", fmt.Errorf("%w: state code must be 2 letters, got %q", ErrValidation, code)
	}
	if _, ok := stateCodes[normalized]; !ok {
		return "", fmt.Errorf("%w: unrecognized state code %q", ErrValidation, normalized)
	}
	return normalized, nil
}

// Rollout is one state-level onboarding campaign. The most recent rollout per
// state code is authoritative; older rows are kept as history.
type Rollout struct {
	ID                  string
	StateCode           string
	Status              RolloutStatus
	BatchSize           int
	ThrottleMs          int
	SkipEnrichment      bool
	PriorityCommunities []string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Throttle returns the per-community delay within a batch.
func (r *Rollout) Throttle() time.Duration {
	return time.Duration(r.ThrottleMs) * time.Millisecond
}

func (r *Rollout) Validate() error {
	if _, err := NormalizeStateCode(r.StateCode); err != nil {
		return err
	}
	if !r.Status.IsValid() {
		return fmt.Errorf("%w: invalid rollout status %q", ErrValidation, r.Status)
	}
	if r.BatchSize < MinBatchSize || r.BatchSize > MaxBatchSize {
		return fmt.Errorf("%w: batch size must be between %d and %d (got %d)", ErrValidation, MinBatchSize, MaxBatchSize, r.BatchSize)
	}
	if r.ThrottleMs < MinThrottleMs || r.ThrottleMs > MaxThrottleMs {
		return fmt.Errorf("%w: throttle must be between %dms and %dms (got %d)", ErrValidation, MinThrottleMs, MaxThrottleMs, r.ThrottleMs)
	}
	return nil
}

// ClampBatchSize folds an optional requested batch size into the allowed range.
func ClampBatchSize(requested *int) int {
	if requested == nil {
		return DefaultBatchSize
	}
	if *requested < MinBatchSize {
		return MinBatchSize
	}
	if *requested > MaxBatchSize {
		return MaxBatchSize
	}
	return *requested
}

// ClampThrottleMs folds an optional requested throttle into the allowed range.
func ClampThrottleMs(requested *int) int {
	if requested == nil {
		return DefaultThrottleMs
	}
	if *requested < MinThrottleMs {
		return MinThrottleMs
	}
	if *requested > MaxThrottleMs {
		return MaxThrottleMs
	}
	return *requested
}
