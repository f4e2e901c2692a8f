package feeds

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/CyntientOps/opsync/models"
)

// FeedCapacity bounds every live feed; the oldest entry is evicted first.
const FeedCapacity = 50

var DefaultSeenTTL = 1 * time.Hour

// Projector routes dashboard updates into the three role-specific live feeds.
// A replayed update (same id, e.g. from a retried offline drain) is dropped so
// feeds never hold duplicates. The projector performs no I/O.
type Projector struct {
	logger *slog.Logger

	mu     sync.RWMutex
	worker []models.WorkerFeedEntry
	admin  []models.AdminAlertEntry
	client []models.ClientMetricEntry

	seen *ttlcache.Cache[string, struct{}]
}

func New(logger *slog.Logger) *Projector {
	// Touch-on-hit is disabled so a frequently replayed id still ages out and
	// the cache stays a bounded window rather than a permanent set.
	seen := ttlcache.New[string, struct{}](
		ttlcache.WithTTL[string, struct{}](DefaultSeenTTL),
		ttlcache.WithDisableTouchOnHit[string, struct{}](),
	)
	go seen.Start()

	return &Projector{
		logger: logger.WithGroup("feeds"),
		seen:   seen,
	}
}

// Project pushes the update into zero or more feeds based on its type and
// source. Invalid input is ignored, logged at debug level only.
func (p *Projector) Project(u models.DashboardUpdate) {
	if u.ID == "" || u.Type == "" {
		p.logger.Debug("ignoring update without id or type")
		return
	}

	if p.seen.Has(u.ID) {
		p.logger.Debug("duplicate update dropped", "id", u.ID)
		return
	}
	p.seen.Set(u.ID, struct{}{}, ttlcache.DefaultTTL)

	p.mu.Lock()
	defer p.mu.Unlock()

	if u.Source == models.RoleWorker {
		p.worker = append(p.worker, models.WorkerFeedEntry{
			ID:         u.ID,
			WorkerID:   u.WorkerID,
			BuildingID: u.BuildingID,
			Type:       u.Type,
			Summary:    u.Summary(),
			Timestamp:  u.Timestamp,
		})
		if len(p.worker) > FeedCapacity {
			p.worker = p.worker[len(p.worker)-FeedCapacity:]
		}
	}

	if adminAlertType(u.Type) {
		severity, _ := u.Payload["severity"].(string)
		p.admin = append(p.admin, models.AdminAlertEntry{
			ID:         u.ID,
			BuildingID: u.BuildingID,
			Type:       u.Type,
			Severity:   severity,
			Summary:    u.Summary(),
			Timestamp:  u.Timestamp,
		})
		if len(p.admin) > FeedCapacity {
			p.admin = p.admin[len(p.admin)-FeedCapacity:]
		}
	}

	if clientMetricType(u.Type) {
		p.client = append(p.client, models.ClientMetricEntry{
			ID:         u.ID,
			BuildingID: u.BuildingID,
			Type:       u.Type,
			Summary:    u.Summary(),
			Timestamp:  u.Timestamp,
		})
		if len(p.client) > FeedCapacity {
			p.client = p.client[len(p.client)-FeedCapacity:]
		}
	}
}

// Admin sees anything alert-like or operational; clients see building metrics,
// routine status, and budget movement.
func adminAlertType(t models.EventType) bool {
	switch t {
	case models.EventTaskCompleted,
		models.EventEmergency,
		models.EventComplianceIssue,
		models.EventAlertCreated,
		models.EventBudgetAlert,
		models.EventWeatherAlert:
		return true
	}
	return false
}

func clientMetricType(t models.EventType) bool {
	switch t {
	case models.EventInsightGenerated,
		models.EventTaskCompleted,
		models.EventBudgetAlert:
		return true
	}
	return false
}

func (p *Projector) WorkerFeed() []models.WorkerFeedEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]models.WorkerFeedEntry, len(p.worker))
	copy(out, p.worker)
	return out
}

func (p *Projector) AdminFeed() []models.AdminAlertEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]models.AdminAlertEntry, len(p.admin))
	copy(out, p.admin)
	return out
}

func (p *Projector) ClientFeed() []models.ClientMetricEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]models.ClientMetricEntry, len(p.client))
	copy(out, p.client)
	return out
}

// Clear resets all three feeds and the dedupe window.
func (p *Projector) Clear() {
	p.mu.Lock()
	p.worker = nil
	p.admin = nil
	p.client = nil
	p.mu.Unlock()
	p.seen.DeleteAll()
}

// Stop halts the dedupe cache's expiry loop.
func (p *Projector) Stop() {
	p.seen.Stop()
}
