package resolve

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/CyntientOps/opsync/models"
)

// Decision is the outcome of comparing a remotely received update against the
// locally held version of the same entity.
type Decision int

const (
	KeepLocal Decision = iota
	ApplyIncoming
)

func (d Decision) String() string {
	if d == ApplyIncoming {
		return "apply_incoming"
	}
	return "keep_local"
}

// Resolve implements last-write-wins by timestamp. Equal timestamps fall back
// to the optional version counter; when neither side can break the tie the
// local copy stands. No local version means no conflict at all.
func Resolve(local *models.DashboardUpdate, incoming models.DashboardUpdate) Decision {
	if local == nil {
		return ApplyIncoming
	}
	if incoming.Timestamp.After(local.Timestamp) {
		return ApplyIncoming
	}
	if incoming.Timestamp.Equal(local.Timestamp) &&
		incoming.Version != 0 && local.Version != 0 &&
		incoming.Version > local.Version {
		return ApplyIncoming
	}
	return KeepLocal
}

var DefaultTrackerTTL = 24 * time.Hour

// Tracker remembers the newest applied update per entity so the resolver has
// a local version to compare remote updates against. Only the receive path
// consults it; locally originated updates are recorded but never gated.
type Tracker struct {
	logger *slog.Logger
	last   *ttlcache.Cache[string, models.DashboardUpdate]
}

func NewTracker(logger *slog.Logger) *Tracker {
	last := ttlcache.New[string, models.DashboardUpdate](
		ttlcache.WithTTL[string, models.DashboardUpdate](DefaultTrackerTTL),
	)
	go last.Start()

	return &Tracker{
		logger: logger.WithGroup("resolve"),
		last:   last,
	}
}

// entityKey groups updates that describe the same dashboard entity. Two
// updates conflict only when they collide on this key.
func entityKey(u models.DashboardUpdate) string {
	return fmt.Sprintf("%s|%s|%s", u.Type, u.BuildingID, u.WorkerID)
}

// Gate decides whether the incoming remote update supersedes local state.
func (t *Tracker) Gate(incoming models.DashboardUpdate) Decision {
	var local *models.DashboardUpdate
	if item := t.last.Get(entityKey(incoming)); item != nil {
		held := item.Value()
		local = &held
	}

	decision := Resolve(local, incoming)
	t.logger.Debug("conflict gate", "id", incoming.ID, "decision", decision.String())
	return decision
}

// Record stores the update as the newest local state for its entity.
func (t *Tracker) Record(u models.DashboardUpdate) {
	t.last.Set(entityKey(u), u, ttlcache.DefaultTTL)
}

func (t *Tracker) Stop() {
	t.last.Stop()
}
