package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/CyntientOps/opsync/internal/feeds"
	"github.com/CyntientOps/opsync/internal/monitor"
	"github.com/CyntientOps/opsync/internal/queue"
	"github.com/CyntientOps/opsync/internal/registry"
	"github.com/CyntientOps/opsync/internal/resolve"
	"github.com/CyntientOps/opsync/internal/transport"
	"github.com/CyntientOps/opsync/models"
)

var (
	ErrShuttingDown = errors.New("engine is shutting down")
)

// ErrMalformedEvent is returned at publish time for events missing required
// fields. Malformed events are never enqueued.
type ErrMalformedEvent struct {
	Reason string
}

func (e *ErrMalformedEvent) Error() string {
	return fmt.Sprintf("malformed event: %s", e.Reason)
}

var (
	DefaultDrainBatch    = 64
	DefaultDrainInterval = 5 * time.Minute
)

type Config struct {
	Logger   *slog.Logger
	StoreDir string

	Transport transport.Adapter
	Sessions  monitor.SessionProvider

	DrainBatch           int
	DrainInterval        time.Duration
	ConnectivityInterval time.Duration
	SessionInterval      time.Duration
}

/*
	Engine is the orchestrator: it owns the subscription registry, the live-feed
	projector, the offline durable queue, and the single processing loop that
	gives every published event a total order of side effects.

	One engine instance is constructed at process start and passed to every
	publisher and subscriber. There is no package-level singleton.
*/

type Engine struct {
	logger   *slog.Logger
	reg      *registry.Registry
	feeds    *feeds.Projector
	queue    *queue.Queue
	tracker  *resolve.Tracker
	tr       transport.Adapter
	mon      *monitor.Monitor
	sessions monitor.SessionProvider

	drainBatch int

	// fifo admission is the only synchronization publishers contend on; the
	// loop goroutine is the sole consumer.
	mu   sync.Mutex
	fifo []models.Event
	wake chan struct{}

	drainMu sync.Mutex
	halted  atomic.Bool // session invalid: no sends until a new session arrives

	ctx      context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}
	shutdown sync.Once
}

func New(cfg Config) (*Engine, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Transport == nil {
		return nil, errors.New("transport cannot be nil")
	}
	if cfg.StoreDir == "" {
		return nil, errors.New("store directory cannot be empty")
	}
	if cfg.DrainBatch == 0 {
		cfg.DrainBatch = DefaultDrainBatch
	}
	if cfg.DrainInterval == 0 {
		cfg.DrainInterval = DefaultDrainInterval
	}

	logger := cfg.Logger.WithGroup("engine")

	q, err := queue.New(queue.Config{
		Logger:    cfg.Logger,
		Directory: cfg.StoreDir,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		logger:     logger,
		reg:        registry.New(cfg.Logger),
		feeds:      feeds.New(cfg.Logger),
		queue:      q,
		tracker:    resolve.NewTracker(cfg.Logger),
		tr:         cfg.Transport,
		sessions:   cfg.Sessions,
		drainBatch: cfg.DrainBatch,
		wake:       make(chan struct{}, 1),
		ctx:        ctx,
		cancel:     cancel,
		loopDone:   make(chan struct{}),
	}

	e.tr.SetReceiver(e.handleRemote)

	e.mon = monitor.New(monitor.Config{
		Logger:               cfg.Logger,
		ConnectivityInterval: cfg.ConnectivityInterval,
		SessionInterval:      cfg.SessionInterval,
		Connected:            e.tr.IsConnected,
		OnOnline:             func() { e.Drain() },
		OnOffline:            e.reconnect,
		OnSessionInvalid:     e.haltSession,
		Sessions:             cfg.Sessions,
	})

	go e.loop()
	go e.drainTimer(cfg.DrainInterval)
	e.mon.Start()

	return e, nil
}

// newEventID builds a creation-ordered id: nanosecond prefix for ordering,
// uuid suffix for uniqueness under concurrent publishers.
func newEventID() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixNano(), uuid.NewString()[:8])
}

func validate(ev models.Event) error {
	if ev.Type == "" {
		return &ErrMalformedEvent{Reason: "missing event type"}
	}
	if !ev.SourceRole.Valid() {
		return &ErrMalformedEvent{Reason: "invalid source role"}
	}
	if len(ev.TargetRoles) == 0 {
		return &ErrMalformedEvent{Reason: "no target roles"}
	}
	for _, r := range ev.TargetRoles {
		if !r.Valid() {
			return &ErrMalformedEvent{Reason: fmt.Sprintf("invalid target role %q", r)}
		}
	}
	if ev.Payload == nil {
		return &ErrMalformedEvent{Reason: "missing payload"}
	}
	if ev.Priority != "" && !ev.Priority.Valid() {
		return &ErrMalformedEvent{Reason: fmt.Sprintf("invalid priority %q", ev.Priority)}
	}
	return nil
}

// Publish stamps the event and admits it. Critical events are processed
// synchronously before Publish returns; everything else goes through the FIFO
// and is processed by the loop in admission order. Publishing from inside a
// subscriber callback is legal.
func (e *Engine) Publish(ev models.Event) error {
	if err := validate(ev); err != nil {
		return err
	}
	if e.ctx.Err() != nil {
		return ErrShuttingDown
	}

	ev.ID = newEventID()
	ev.Timestamp = time.Now()
	if ev.Priority == "" {
		ev.Priority = models.PriorityMedium
	}

	if ev.Priority == models.PriorityCritical {
		e.process(ev)
		return nil
	}

	e.mu.Lock()
	e.fifo = append(e.fifo, ev)
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
	return nil
}

func (e *Engine) Subscribe(eventType models.EventType, role models.Role, cb registry.Callback) string {
	return e.reg.Add(eventType, role, cb)
}

func (e *Engine) Unsubscribe(subscriptionID string) {
	e.reg.Remove(subscriptionID)
}

// loop is the single consumer of the FIFO. It drains strictly in admission
// order, which preserves per-producer ordering.
func (e *Engine) loop() {
	defer close(e.loopDone)
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-e.wake:
		}
		for {
			e.mu.Lock()
			if len(e.fifo) == 0 {
				e.mu.Unlock()
				break
			}
			ev := e.fifo[0]
			e.fifo = e.fifo[1:]
			e.mu.Unlock()

			e.process(ev)

			if e.ctx.Err() != nil {
				return
			}
		}
	}
}

// process runs the full side-effect sequence for one event: subscriber
// notification, feed projection, then delivery or offline persistence. All
// touched components synchronize internally, so critical events can run here
// from the publisher's goroutine while the loop is mid-event.
func (e *Engine) process(ev models.Event) {
	for _, sub := range e.reg.Match(ev) {
		e.dispatch(sub, ev)
	}

	u := models.UpdateFromEvent(ev)
	e.feeds.Project(u)
	e.tracker.Record(u)
	e.deliver(u, ev.Priority)
}

// dispatch isolates one subscriber callback. A panicking callback is logged
// and skipped; siblings and the loop are unaffected.
func (e *Engine) dispatch(sub registry.Subscription, ev models.Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("subscriber callback panicked",
				"subscription", sub.ID,
				"event_type", ev.Type,
				"panic", r,
			)
		}
	}()
	sub.Callback(ev)
}

// deliver attempts the remote send, falling back to the offline queue. A
// delivery failure is never fatal to the loop.
func (e *Engine) deliver(u models.DashboardUpdate, prio models.Priority) {
	if e.halted.Load() || !e.tr.IsConnected() {
		e.enqueueOffline(u, prio)
		return
	}
	if err := e.tr.Send(u); err != nil {
		e.logger.Warn("delivery failed, queueing offline", "id", u.ID, "error", err)
		e.enqueueOffline(u, prio)
	}
}

func (e *Engine) enqueueOffline(u models.DashboardUpdate, prio models.Priority) {
	if err := e.queue.Enqueue(u, prio); err != nil {
		e.logger.Error("failed to persist offline update", "id", u.ID, "error", err)
	}
}

// handleRemote applies an update received from the sync service. The conflict
// gate runs first; superseded updates are dropped without side effects.
func (e *Engine) handleRemote(u models.DashboardUpdate) {
	if e.tracker.Gate(u) == resolve.KeepLocal {
		e.logger.Debug("remote update superseded by local state", "id", u.ID)
		return
	}
	e.feeds.Project(u)
	e.tracker.Record(u)
}

// Drain pushes pending offline updates through the transport. Triggered on
// reconnect by the monitor, on a safety-net timer, and available to callers
// as a manual kick. Concurrent drains coalesce behind one lock.
func (e *Engine) Drain() (delivered int, failed int) {
	e.drainMu.Lock()
	defer e.drainMu.Unlock()

	if e.halted.Load() || !e.tr.IsConnected() {
		return 0, 0
	}

	delivered, failed, err := e.queue.Drain(e.drainBatch, e.tr.Send)
	if err != nil {
		e.logger.Error("offline drain failed", "error", err)
	}
	return delivered, failed
}

func (e *Engine) drainTimer(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.Drain()
		case <-e.ctx.Done():
			return
		}
	}
}

// reconnect is the monitor's offline-tick hook. A halted session never
// reconnects automatically; a fresh token has to arrive through Connect.
func (e *Engine) reconnect() {
	if e.halted.Load() || e.sessions == nil {
		return
	}
	s := e.sessions.CurrentSession()
	if !s.Valid {
		return
	}
	if err := e.tr.Connect(e.ctx, s.Token); err != nil {
		e.logger.Debug("reconnect attempt failed", "error", err)
		return
	}
	e.Drain()
}

// haltSession is the fatal-for-session path: disconnect and stop sending
// until a new session token is supplied through Connect.
func (e *Engine) haltSession() {
	e.halted.Store(true)
	if err := e.tr.Disconnect(); err != nil {
		e.logger.Error("disconnect after invalid session failed", "error", err)
	}
}

// Connect establishes (or re-establishes, after a session invalidation) the
// transport connection and immediately drains anything queued while offline.
func (e *Engine) Connect(authToken string) error {
	if err := e.tr.Connect(e.ctx, authToken); err != nil {
		return err
	}
	e.halted.Store(false)
	e.Drain()
	return nil
}

type Stats struct {
	PendingUpdates  int
	PendingCritical int
	WorkerFeedLen   int
	AdminFeedLen    int
	ClientFeedLen   int
	Subscriptions   int
	Connected       bool
}

func (e *Engine) Stats() Stats {
	pending, err := e.queue.PendingCount()
	if err != nil {
		e.logger.Error("pending count unavailable", "error", err)
	}
	critical, err := e.queue.PendingCriticalCount()
	if err != nil {
		e.logger.Error("pending critical count unavailable", "error", err)
	}
	return Stats{
		PendingUpdates:  pending,
		PendingCritical: critical,
		WorkerFeedLen:   len(e.feeds.WorkerFeed()),
		AdminFeedLen:    len(e.feeds.AdminFeed()),
		ClientFeedLen:   len(e.feeds.ClientFeed()),
		Subscriptions:   e.reg.Len(),
		Connected:       e.tr.IsConnected(),
	}
}

// WorkerFeed returns a copy of the worker activity feed, newest last.
func (e *Engine) WorkerFeed() []models.WorkerFeedEntry { return e.feeds.WorkerFeed() }

// AdminFeed returns a copy of the admin alert feed, newest last.
func (e *Engine) AdminFeed() []models.AdminAlertEntry { return e.feeds.AdminFeed() }

// ClientFeed returns a copy of the client metric feed, newest last.
func (e *Engine) ClientFeed() []models.ClientMetricEntry { return e.feeds.ClientFeed() }

// Shutdown stops the loop after the event in flight finishes, halts the
// monitors, clears the in-memory registries, and closes the transport and the
// offline store. Queued-but-unprocessed events are dropped; critical events
// were already handled synchronously.
func (e *Engine) Shutdown() {
	e.shutdown.Do(func() {
		e.cancel()
		select {
		case e.wake <- struct{}{}:
		default:
		}
		<-e.loopDone

		e.mon.Stop()

		e.mu.Lock()
		dropped := len(e.fifo)
		e.fifo = nil
		e.mu.Unlock()
		if dropped > 0 {
			e.logger.Warn("unprocessed events dropped at shutdown", "count", dropped)
		}

		e.reg.Clear()
		e.feeds.Clear()
		e.feeds.Stop()
		e.tracker.Stop()

		if err := e.tr.Disconnect(); err != nil {
			e.logger.Error("transport close failed", "error", err)
		}
		if err := e.queue.Close(); err != nil {
			e.logger.Error("queue close failed", "error", err)
		}
		e.logger.Info("engine stopped")
	})
}
