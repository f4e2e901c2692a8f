package queue

import (
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/CyntientOps/opsync/models"
)

type testQueue struct {
	queue *Queue
	dir   string
}

func (t *testQueue) Cleanup() error {
	t.queue.Close()
	return os.RemoveAll(t.dir)
}

func createTestQueue(t *testing.T) *testQueue {
	t.Helper()
	dir, err := os.MkdirTemp(os.TempDir(), "opsync_queue_test_*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	q, err := New(Config{
		Logger: slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelWarn,
		})),
		Directory: dir,
	})
	if err != nil {
		t.Fatalf("failed to create queue: %v", err)
	}
	return &testQueue{queue: q, dir: dir}
}

func update(id string, typ models.EventType) models.DashboardUpdate {
	return models.DashboardUpdate{
		ID:         id,
		Source:     models.RoleWorker,
		Type:       typ,
		BuildingID: "b1",
		WorkerID:   "w1",
		Timestamp:  time.Now(),
	}
}

func TestQueue_DrainOrder(t *testing.T) {
	tq := createTestQueue(t)
	defer tq.Cleanup()
	q := tq.queue

	// Enqueue out of priority order; same-priority entries keep arrival order.
	if err := q.Enqueue(update("med-1", models.EventTaskCompleted), models.PriorityMedium); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if err := q.Enqueue(update("low-1", models.EventPhotoCaptured), models.PriorityLow); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if err := q.Enqueue(update("crit-1", models.EventEmergency), models.PriorityCritical); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if err := q.Enqueue(update("med-2", models.EventTaskCompleted), models.PriorityMedium); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if err := q.Enqueue(update("high-1", models.EventComplianceIssue), models.PriorityHigh); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	var order []string
	delivered, failed, err := q.Drain(0, func(u models.DashboardUpdate) error {
		order = append(order, u.ID)
		return nil
	})
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if delivered != 5 || failed != 0 {
		t.Fatalf("Drain() = (%d, %d), want (5, 0)", delivered, failed)
	}

	want := []string{"crit-1", "high-1", "med-1", "med-2", "low-1"}
	for i, id := range want {
		if order[i] != id {
			t.Fatalf("drain order = %v, want %v", order, want)
		}
	}

	count, err := q.PendingCount()
	if err != nil {
		t.Fatalf("PendingCount() error = %v", err)
	}
	if count != 0 {
		t.Errorf("PendingCount() = %d after full drain, want 0", count)
	}
}

func TestQueue_IdempotentEnqueue(t *testing.T) {
	tq := createTestQueue(t)
	defer tq.Cleanup()
	q := tq.queue

	u := update("dup", models.EventTaskCompleted)
	for i := 0; i < 3; i++ {
		if err := q.Enqueue(u, models.PriorityMedium); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	count, err := q.PendingCount()
	if err != nil {
		t.Fatalf("PendingCount() error = %v", err)
	}
	if count != 1 {
		t.Errorf("PendingCount() = %d after duplicate enqueues, want 1", count)
	}
}

func TestQueue_PartialFailureDrain(t *testing.T) {
	tq := createTestQueue(t)
	defer tq.Cleanup()
	q := tq.queue

	for _, id := range []string{"a", "b", "c"} {
		if err := q.Enqueue(update(id, models.EventTaskCompleted), models.PriorityMedium); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	// Fail the middle entry only; the drain must continue past it.
	delivered, failed, err := q.Drain(0, func(u models.DashboardUpdate) error {
		if u.ID == "b" {
			return errors.New("simulated network error")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if delivered != 2 || failed != 1 {
		t.Fatalf("Drain() = (%d, %d), want (2, 1)", delivered, failed)
	}

	count, _ := q.PendingCount()
	if count != 1 {
		t.Fatalf("PendingCount() = %d, want 1 retained failure", count)
	}

	// The retained entry delivers on the next pass.
	delivered, failed, err = q.Drain(0, func(u models.DashboardUpdate) error {
		if u.ID != "b" {
			t.Errorf("unexpected retained entry %q", u.ID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if delivered != 1 || failed != 0 {
		t.Fatalf("second Drain() = (%d, %d), want (1, 0)", delivered, failed)
	}
}

func TestQueue_PendingCriticalCount(t *testing.T) {
	tq := createTestQueue(t)
	defer tq.Cleanup()
	q := tq.queue

	q.Enqueue(update("c1", models.EventEmergency), models.PriorityCritical)
	q.Enqueue(update("c2", models.EventEmergency), models.PriorityCritical)
	q.Enqueue(update("m1", models.EventTaskCompleted), models.PriorityMedium)

	critical, err := q.PendingCriticalCount()
	if err != nil {
		t.Fatalf("PendingCriticalCount() error = %v", err)
	}
	if critical != 2 {
		t.Errorf("PendingCriticalCount() = %d, want 2", critical)
	}
}

func TestQueue_MaxBatchRespected(t *testing.T) {
	tq := createTestQueue(t)
	defer tq.Cleanup()
	q := tq.queue

	for _, id := range []string{"a", "b", "c", "d"} {
		q.Enqueue(update(id, models.EventTaskCompleted), models.PriorityMedium)
	}

	delivered, failed, err := q.Drain(2, func(models.DashboardUpdate) error { return nil })
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if delivered != 2 || failed != 0 {
		t.Fatalf("Drain(2) = (%d, %d), want (2, 0)", delivered, failed)
	}

	count, _ := q.PendingCount()
	if count != 2 {
		t.Errorf("PendingCount() = %d after batched drain, want 2", count)
	}
}

func TestQueue_SurvivesReopen(t *testing.T) {
	dir, err := os.MkdirTemp(os.TempDir(), "opsync_queue_restart_*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	q, err := New(Config{Logger: logger, Directory: dir})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := q.Enqueue(update("persisted", models.EventTaskCompleted), models.PriorityHigh); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := New(Config{Logger: logger, Directory: dir})
	if err != nil {
		t.Fatalf("reopen New() error = %v", err)
	}
	defer reopened.Close()

	count, err := reopened.PendingCount()
	if err != nil {
		t.Fatalf("PendingCount() error = %v", err)
	}
	if count != 1 {
		t.Errorf("PendingCount() = %d after reopen, want 1", count)
	}
}
