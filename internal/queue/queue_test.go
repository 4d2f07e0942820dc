package queue

import (
	"strings"
	"testing"
)

func TestAdvanceMessageValidate(t *testing.T) {
	t.Parallel()

	valid := AdvanceMessage{RolloutID: "r1", StateCode: "FL"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error = %v", err)
	}

	missing := AdvanceMessage{RolloutID: "  "}
	err := missing.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for missing rollout id")
	}
	if !strings.Contains(err.Error(), "rolloutId") {
		t.Fatalf("Validate() error = %v, want mention of rolloutId", err)
	}
}

func TestQueueNames(t *testing.T) {
	t.Parallel()

	if AdvanceQueue != "rollout.advance" {
		t.Fatalf("AdvanceQueue = %s, want rollout.advance", AdvanceQueue)
	}
	if AdvanceDLQ != "dlq.rollout.advance" {
		t.Fatalf("AdvanceDLQ = %s, want dlq.rollout.advance", AdvanceDLQ)
	}
}
