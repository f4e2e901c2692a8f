package registry

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/CyntientOps/opsync/models"
)

// Callback receives every event whose type and target roles match the
// subscription. Callbacks are invoked from the engine's processing loop and
// are expected to be fast and non-blocking.
type Callback func(ev models.Event)

type Subscription struct {
	ID        string
	EventType models.EventType
	Role      models.Role
	Callback  Callback
}

// Registry is the in-memory subscription index. It holds no persistent state;
// dashboard surfaces re-subscribe on every process start.
type Registry struct {
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[string]Subscription
}

func New(logger *slog.Logger) *Registry {
	return &Registry{
		logger: logger.WithGroup("registry"),
		subs:   make(map[string]Subscription),
	}
}

func (r *Registry) Add(eventType models.EventType, role models.Role, cb Callback) string {
	id := uuid.NewString()
	r.mu.Lock()
	r.subs[id] = Subscription{
		ID:        id,
		EventType: eventType,
		Role:      role,
		Callback:  cb,
	}
	r.mu.Unlock()
	r.logger.Debug("subscription added", "id", id, "event_type", eventType, "role", role)
	return id
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.subs, id)
	r.mu.Unlock()
	r.logger.Debug("subscription removed", "id", id)
}

// Match returns the subscriptions interested in the event: same event type and
// a role contained in the event's target roles. Linear scan is fine here,
// subscription counts are bounded by the number of mounted dashboard widgets.
func (r *Registry) Match(ev models.Event) []Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []Subscription
	for _, sub := range r.subs {
		if sub.EventType == ev.Type && ev.Targets(sub.Role) {
			matched = append(matched, sub)
		}
	}
	return matched
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

func (r *Registry) Clear() {
	r.mu.Lock()
	r.subs = make(map[string]Subscription)
	r.mu.Unlock()
}
