package domain

import (
	"fmt"
	"strings"
	"time"
)

// CommunityStatus represents the lifecycle state of one community within a rollout.
type CommunityStatus string

const (
	CommunityStatusQueued      CommunityStatus = "QUEUED"
	CommunityStatusDiscovering CommunityStatus = "DISCOVERING"
	CommunityStatusEnriching   CommunityStatus = "ENRICHING"
	CommunityStatusCompleted   CommunityStatus = "COMPLETED"
	CommunityStatusFailed      CommunityStatus = "FAILED"
	CommunityStatusPaused      CommunityStatus = "PAUSED"
)

func (s CommunityStatus) String() string { return string(s) }

func (s CommunityStatus) IsValid() bool {
	switch s {
	case CommunityStatusQueued, CommunityStatusDiscovering, CommunityStatusEnriching,
		CommunityStatusCompleted, CommunityStatusFailed, CommunityStatusPaused:
		return true
	}
	return false
}

// IsRunnable reports whether the record may be picked up by the next batch.
func (s CommunityStatus) IsRunnable() bool {
	switch s {
	case CommunityStatusQueued, CommunityStatusDiscovering, CommunityStatusEnriching:
		return true
	}
	return false
}

func ParseCommunityStatusFromString(s string) (CommunityStatus, error) {
	st := CommunityStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid community status %q", ErrValidation, s)
	}
	return st, nil
}

// Phase is the named processing step a community record has reached. Phase
// values mirror the in-flight statuses so a paused record can revert to the
// status matching its preserved phase on resume.
type Phase string

const (
	PhaseQueued      Phase = "QUEUED"
	PhaseDiscovering Phase = "DISCOVERING"
	PhaseEnriching   Phase = "ENRICHING"
	PhaseCompleted   Phase = "COMPLETED"
)

func (p Phase) String() string { return string(p) }

func (p Phase) IsValid() bool {
	switch p {
	case PhaseQueued, PhaseDiscovering, PhaseEnriching, PhaseCompleted:
		return true
	}
	return false
}

// Status maps a phase back to the in-flight community status it corresponds to.
func (p Phase) Status() CommunityStatus {
	switch p {
	case PhaseDiscovering:
		return CommunityStatusDiscovering
	case PhaseEnriching:
		return CommunityStatusEnriching
	case PhaseCompleted:
		return CommunityStatusCompleted
	default:
		return CommunityStatusQueued
	}
}

// Next returns the phase reached after advancing one step. Enrichment is
// skipped entirely when the rollout was initiated with skip_enrichment.
func (p Phase) Next(skipEnrichment bool) Phase {
	switch p {
	case PhaseQueued:
		return PhaseDiscovering
	case PhaseDiscovering:
		if skipEnrichment {
			return PhaseCompleted
		}
		return PhaseEnriching
	default:
		return PhaseCompleted
	}
}

// CommunityRollout tracks one community's progress within a state rollout.
type CommunityRollout struct {
	ID                   string
	RolloutID            string
	CommunityID          string
	Status               CommunityStatus
	CurrentPhase         Phase
	Position             int
	BusinessesDiscovered int
	NewsSourcesCreated   int
	APICostMicros        int64
	ErrorLog             *string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (c *CommunityRollout) Validate() error {
	if strings.TrimSpace(c.RolloutID) == "" {
		return fmt.Errorf("%w: rollout id is required", ErrValidation)
	}
	if strings.TrimSpace(c.CommunityID) == "" {
		return fmt.Errorf("%w: community id is required", ErrValidation)
	}
	if !c.Status.IsValid() {
		return fmt.Errorf("%w: invalid community status %q", ErrValidation, c.Status)
	}
	if !c.CurrentPhase.IsValid() {
		return fmt.Errorf("%w: invalid phase %q", ErrValidation, c.CurrentPhase)
	}
	return nil
}
