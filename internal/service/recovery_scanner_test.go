package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/townhub/rollout-engine/internal/domain"
	"github.com/townhub/rollout-engine/internal/queue"
)

func TestRecoveryScannerReenqueuesStaleRollouts(t *testing.T) {
	t.Parallel()

	fixedNow := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	rollouts := &fakeRolloutRepo{
		listStaleFn: func(ctx context.Context, olderThan time.Time, limit int) ([]domain.Rollout, error) {
			want := fixedNow.Add(-2 * time.Minute)
			if !olderThan.Equal(want) {
				t.Fatalf("olderThan = %v, want %v", olderThan, want)
			}
			return []domain.Rollout{
				{ID: "r1", StateCode: "FL", Status: domain.RolloutStatusRunning},
				{ID: "r2", StateCode: "TX", Status: domain.RolloutStatusQueued},
			}, nil
		},
	}

	var published []queue.AdvanceMessage
	publisher := &fakePublisher{
		publishFn: func(ctx context.Context, queueName string, msg queue.AdvanceMessage) error {
			if queueName != queue.AdvanceQueue {
				t.Fatalf("queue = %s, want %s", queueName, queue.AdvanceQueue)
			}
			published = append(published, msg)
			return nil
		},
	}

	scanner, err := NewRecoveryScanner(rollouts, publisher, time.Minute, 2*time.Minute, nil)
	if err != nil {
		t.Fatalf("NewRecoveryScanner() error = %v", err)
	}
	scanner.now = func() time.Time { return fixedNow }

	if err := scanner.scanStale(context.Background()); err != nil {
		t.Fatalf("scanStale() error = %v", err)
	}

	if len(published) != 2 {
		t.Fatalf("published = %d messages, want 2", len(published))
	}
	if published[0].RolloutID != "r1" || published[1].RolloutID != "r2" {
		t.Fatalf("published = %v, want r1 then r2", published)
	}
	if published[0].StateCode != "FL" {
		t.Fatalf("state code = %s, want FL", published[0].StateCode)
	}
}

func TestRecoveryScannerContinuesPastPublishFailures(t *testing.T) {
	t.Parallel()

	rollouts := &fakeRolloutRepo{
		listStaleFn: func(ctx context.Context, olderThan time.Time, limit int) ([]domain.Rollout, error) {
			return []domain.Rollout{
				{ID: "r1", StateCode: "FL", Status: domain.RolloutStatusRunning},
				{ID: "r2", StateCode: "TX", Status: domain.RolloutStatusRunning},
			}, nil
		},
	}

	var published []string
	publisher := &fakePublisher{
		publishFn: func(ctx context.Context, queueName string, msg queue.AdvanceMessage) error {
			if msg.RolloutID == "r1" {
				return errors.New("broker unavailable")
			}
			published = append(published, msg.RolloutID)
			return nil
		},
	}

	scanner, err := NewRecoveryScanner(rollouts, publisher, time.Minute, 2*time.Minute, nil)
	if err != nil {
		t.Fatalf("NewRecoveryScanner() error = %v", err)
	}

	if err := scanner.scanStale(context.Background()); err != nil {
		t.Fatalf("scanStale() error = %v", err)
	}
	if len(published) != 1 || published[0] != "r2" {
		t.Fatalf("published = %v, want [r2]", published)
	}
}

func TestRecoveryScannerStartStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	scanner, err := NewRecoveryScanner(&fakeRolloutRepo{}, &fakePublisher{}, 10*time.Millisecond, time.Minute, nil)
	if err != nil {
		t.Fatalf("NewRecoveryScanner() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- scanner.Start(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not stop after context cancellation")
	}
}
