package queue

import (
	"fmt"
	"strings"
)

// AdvanceMessage is the broker payload asking the worker to advance one batch
// of a rollout. A rollout re-publishes itself after each batch until no
// runnable community records remain.
type AdvanceMessage struct {
	RolloutID string `json:"rolloutId"`
	StateCode string `json:"stateCode,omitempty"`
}

func (m AdvanceMessage) Validate() error {
	if strings.TrimSpace(m.RolloutID) == "" {
		return fmt.Errorf("rolloutId is required")
	}
	return nil
}
