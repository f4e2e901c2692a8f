package transport

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/CyntientOps/opsync/models"
)

const (
	writeWait        = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait         = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod       = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	handshakeTimeout = 10 * time.Second
)

var (
	ErrNotConnected = errors.New("transport not connected")
	ErrSendFailed   = errors.New("transport send failed")
)

// Adapter wraps the persistent bidirectional connection to the remote sync
// service. Send returning an error is the sole failure signal the engine
// consumes; the adapter never retries internally — retry policy belongs to
// the offline queue.
type Adapter interface {
	Connect(ctx context.Context, authToken string) error
	Send(u models.DashboardUpdate) error
	IsConnected() bool
	Disconnect() error
	SetReceiver(fn func(models.DashboardUpdate))
}

type Config struct {
	Logger     *slog.Logger
	Endpoint   string // e.g. wss://sync.example.com/v1/updates
	SkipVerify bool
	SendLimit  rate.Limit
	SendBurst  int
}

type WS struct {
	logger   *slog.Logger
	endpoint string
	dialer   websocket.Dialer
	limiter  *rate.Limiter

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	cancel    context.CancelFunc
	receiver  func(models.DashboardUpdate)
}

var _ Adapter = &WS{}

func New(cfg Config) (*WS, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint cannot be empty")
	}
	if _, err := url.Parse(cfg.Endpoint); err != nil {
		return nil, err
	}

	if cfg.SendLimit == 0 {
		cfg.SendLimit = rate.Inf
	}
	if cfg.SendBurst == 0 {
		cfg.SendBurst = 1
	}

	return &WS{
		logger:   cfg.Logger.WithGroup("transport"),
		endpoint: cfg.Endpoint,
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.SkipVerify,
			},
		},
		limiter: rate.NewLimiter(cfg.SendLimit, cfg.SendBurst),
	}, nil
}

func (w *WS) SetReceiver(fn func(models.DashboardUpdate)) {
	w.mu.Lock()
	w.receiver = fn
	w.mu.Unlock()
}

// Connect dials the remote sync endpoint. The token travels both as a query
// parameter and an Authorization header so either upgrade-time check works.
func (w *WS) Connect(ctx context.Context, authToken string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.connected {
		return nil
	}

	wsURL, err := url.Parse(w.endpoint)
	if err != nil {
		return err
	}
	query := wsURL.Query()
	query.Set("token", authToken)
	wsURL.RawQuery = query.Encode()

	header := http.Header{}
	header.Set("Authorization", authToken)

	conn, resp, err := w.dialer.DialContext(ctx, wsURL.String(), header)
	if err != nil {
		if resp != nil {
			w.logger.Error("websocket dial failed", "endpoint", w.endpoint, "status", resp.Status, "error", err)
		} else {
			w.logger.Error("websocket dial failed", "endpoint", w.endpoint, "error", err)
		}
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.conn = conn
	w.connected = true
	w.cancel = cancel

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go w.pingLoop(loopCtx, conn)
	go w.readPump(loopCtx, conn)

	w.logger.Info("connected to sync service", "endpoint", w.endpoint)
	return nil
}

func (w *WS) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.mu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			w.mu.Unlock()
			if err != nil {
				w.logger.Debug("ping failed, stopping keepalive", "error", err)
				w.markDisconnected(conn)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (w *WS) readPump(ctx context.Context, conn *websocket.Conn) {
	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && ctx.Err() == nil {
				w.logger.Error("error reading from sync service", "error", err)
			} else {
				w.logger.Info("sync connection closed", "error", err)
			}
			w.markDisconnected(conn)
			return
		}

		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}

		var u models.DashboardUpdate
		if err := json.Unmarshal(message, &u); err != nil {
			w.logger.Error("failed to unmarshal remote update", "error", err)
			continue
		}

		w.mu.Lock()
		receiver := w.receiver
		w.mu.Unlock()
		if receiver != nil {
			receiver(u)
		}
	}
}

// Send writes one update envelope. Failures are returned to the caller, never
// retried here.
func (w *WS) Send(u models.DashboardUpdate) error {
	if !w.limiter.Allow() {
		if err := w.limiter.Wait(context.Background()); err != nil {
			return err
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.connected || w.conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(u)
	if err != nil {
		return err
	}

	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := w.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		w.logger.Warn("send failed, marking disconnected", "id", u.ID, "error", err)
		w.closeLocked()
		return errors.Join(ErrSendFailed, err)
	}
	return nil
}

func (w *WS) IsConnected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.connected
}

// markDisconnected tears down state when a pump observes a dead connection.
// A stale conn pointer from an older session is ignored.
func (w *WS) markDisconnected(conn *websocket.Conn) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != conn {
		return
	}
	w.closeLocked()
}

func (w *WS) closeLocked() {
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	w.connected = false
}

// Disconnect performs the close handshake and drops the connection.
func (w *WS) Disconnect() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn != nil {
		deadline := time.Now().Add(writeWait)
		if err := w.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			deadline,
		); err != nil {
			w.logger.Debug("close message not delivered", "error", err)
		}
	}
	w.closeLocked()
	return nil
}
