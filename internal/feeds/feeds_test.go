package feeds

import (
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CyntientOps/opsync/models"
)

func newTestProjector(t *testing.T) *Projector {
	t.Helper()
	p := New(slog.New(slog.NewTextHandler(os.Stdout, nil)))
	t.Cleanup(p.Stop)
	return p
}

func workerUpdate(id string, ts time.Time) models.DashboardUpdate {
	return models.DashboardUpdate{
		ID:         id,
		Source:     models.RoleWorker,
		Type:       models.EventWorkerClockIn,
		BuildingID: "b1",
		WorkerID:   "w1",
		Payload:    map[string]any{"workerName": "Kevin"},
		Timestamp:  ts,
	}
}

func TestProjector_BoundedWorkerFeed(t *testing.T) {
	p := newTestProjector(t)

	base := time.Now()
	for i := 0; i < 60; i++ {
		p.Project(workerUpdate(fmt.Sprintf("u%03d", i), base.Add(time.Duration(i)*time.Second)))
	}

	feed := p.WorkerFeed()
	require.Len(t, feed, FeedCapacity)

	// Oldest evicted first: the surviving window is u010..u059 in order.
	assert.Equal(t, "u010", feed[0].ID)
	assert.Equal(t, "u059", feed[len(feed)-1].ID)
}

func TestProjector_Routing(t *testing.T) {
	p := newTestProjector(t)

	// Worker-sourced clock-in lands only in the worker feed.
	p.Project(workerUpdate("clock", time.Now()))
	assert.Len(t, p.WorkerFeed(), 1)
	assert.Len(t, p.AdminFeed(), 0)
	assert.Len(t, p.ClientFeed(), 0)

	// Worker-sourced task completion fans out to all three.
	p.Project(models.DashboardUpdate{
		ID:         "task",
		Source:     models.RoleWorker,
		Type:       models.EventTaskCompleted,
		BuildingID: "b1",
		WorkerID:   "w1",
		Payload:    map[string]any{"taskName": "Boiler inspection"},
		Timestamp:  time.Now(),
	})
	assert.Len(t, p.WorkerFeed(), 2)
	require.Len(t, p.AdminFeed(), 1)
	assert.Equal(t, "Boiler inspection", p.AdminFeed()[0].Summary)
	assert.Len(t, p.ClientFeed(), 1)

	// Admin-sourced compliance issue skips the worker feed.
	p.Project(models.DashboardUpdate{
		ID:         "issue",
		Source:     models.RoleAdmin,
		Type:       models.EventComplianceIssue,
		BuildingID: "b1",
		Payload:    map[string]any{"severity": "high", "description": "Expired permit"},
		Timestamp:  time.Now(),
	})
	assert.Len(t, p.WorkerFeed(), 2)
	require.Len(t, p.AdminFeed(), 2)
	assert.Equal(t, "high", p.AdminFeed()[1].Severity)
}

func TestProjector_ReplayDeduped(t *testing.T) {
	p := newTestProjector(t)

	u := workerUpdate("dup", time.Now())
	p.Project(u)
	p.Project(u)
	p.Project(u)

	assert.Len(t, p.WorkerFeed(), 1)
}

func TestProjector_InvalidInputIgnored(t *testing.T) {
	p := newTestProjector(t)

	p.Project(models.DashboardUpdate{})
	p.Project(models.DashboardUpdate{ID: "x"})

	assert.Len(t, p.WorkerFeed(), 0)
	assert.Len(t, p.AdminFeed(), 0)
	assert.Len(t, p.ClientFeed(), 0)
}

func TestProjector_Clear(t *testing.T) {
	p := newTestProjector(t)

	p.Project(workerUpdate("a", time.Now()))
	p.Clear()

	assert.Len(t, p.WorkerFeed(), 0)

	// The dedupe window resets with the feeds.
	p.Project(workerUpdate("a", time.Now()))
	assert.Len(t, p.WorkerFeed(), 1)
}
