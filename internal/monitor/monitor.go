package monitor

import (
	"log/slog"
	"sync"
	"time"
)

// Session is the externally supplied auth state. The monitor never creates or
// refreshes sessions, it only observes validity.
type Session struct {
	Token string
	Valid bool
}

type SessionProvider interface {
	CurrentSession() Session
}

// StaticSession is a provider for fixed-token deployments and tests.
type StaticSession struct {
	mu      sync.Mutex
	session Session
}

func NewStaticSession(token string) *StaticSession {
	return &StaticSession{session: Session{Token: token, Valid: token != ""}}
}

func (s *StaticSession) CurrentSession() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

func (s *StaticSession) Invalidate() {
	s.mu.Lock()
	s.session.Valid = false
	s.mu.Unlock()
}

// probe is a ticker loop that can be stopped deterministically; Stop does not
// return until the loop goroutine has exited.
type probe struct {
	name     string
	interval time.Duration
	fn       func()
	stop     chan struct{}
	done     chan struct{}
}

func newProbe(name string, interval time.Duration, fn func()) *probe {
	return &probe{
		name:     name,
		interval: interval,
		fn:       fn,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (p *probe) start() {
	go func() {
		defer close(p.done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.fn()
			case <-p.stop:
				return
			}
		}
	}()
}

func (p *probe) halt() {
	close(p.stop)
	<-p.done
}

var (
	DefaultConnectivityInterval = 30 * time.Second
	DefaultSessionInterval      = 60 * time.Second
)

type Config struct {
	Logger               *slog.Logger
	ConnectivityInterval time.Duration
	SessionInterval      time.Duration

	// Connected reports the transport's connection state.
	Connected func() bool
	// OnOnline fires once per offline->online transition.
	OnOnline func()
	// OnOffline fires on every connectivity tick spent offline, giving the
	// owner a chance to attempt a reconnect.
	OnOffline func()
	// OnSessionInvalid fires when the session provider reports an invalid
	// session. Fatal for the session: the owner must disconnect and halt sends.
	OnSessionInvalid func()

	Sessions SessionProvider
}

// Monitor runs the connectivity and session probes that drive the engine's
// online/offline transitions.
type Monitor struct {
	logger *slog.Logger
	cfg    Config

	stateMu   sync.Mutex
	wasOnline bool

	connectivity *probe
	session      *probe
	started      bool
}

func New(cfg Config) *Monitor {
	if cfg.ConnectivityInterval == 0 {
		cfg.ConnectivityInterval = DefaultConnectivityInterval
	}
	if cfg.SessionInterval == 0 {
		cfg.SessionInterval = DefaultSessionInterval
	}

	m := &Monitor{
		logger: cfg.Logger.WithGroup("monitor"),
		cfg:    cfg,
	}
	m.connectivity = newProbe("connectivity", cfg.ConnectivityInterval, m.checkConnectivity)
	m.session = newProbe("session", cfg.SessionInterval, m.checkSession)
	return m
}

func (m *Monitor) Start() {
	if m.started {
		return
	}
	m.started = true

	m.stateMu.Lock()
	m.wasOnline = m.cfg.Connected()
	m.stateMu.Unlock()

	m.connectivity.start()
	m.session.start()
	m.logger.Info("monitors started",
		"connectivity_interval", m.cfg.ConnectivityInterval,
		"session_interval", m.cfg.SessionInterval,
	)
}

func (m *Monitor) Stop() {
	if !m.started {
		return
	}
	m.started = false
	m.connectivity.halt()
	m.session.halt()
	m.logger.Info("monitors stopped")
}

func (m *Monitor) checkConnectivity() {
	online := m.cfg.Connected()

	m.stateMu.Lock()
	regained := online && !m.wasOnline
	lost := !online && m.wasOnline
	m.wasOnline = online
	m.stateMu.Unlock()

	if regained {
		m.logger.Info("connectivity regained")
		if m.cfg.OnOnline != nil {
			m.cfg.OnOnline()
		}
	}
	if lost {
		m.logger.Warn("connectivity lost")
	}
	if !online && m.cfg.OnOffline != nil {
		m.cfg.OnOffline()
	}
}

func (m *Monitor) checkSession() {
	if m.cfg.Sessions == nil {
		return
	}
	if m.cfg.Sessions.CurrentSession().Valid {
		return
	}
	m.logger.Warn("session invalid, halting sends")
	if m.cfg.OnSessionInvalid != nil {
		m.cfg.OnSessionInvalid()
	}
}
