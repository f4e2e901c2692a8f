package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CyntientOps/opsync/models"
)

// syncServer is a minimal stand-in for the remote sync service: it records
// received envelopes and can push updates back down the wire.
type syncServer struct {
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conn     *websocket.Conn
	received []models.DashboardUpdate
	tokens   []string
}

func (s *syncServer) handler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.tokens = append(s.tokens, r.URL.Query().Get("token"))
	s.mu.Unlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var u models.DashboardUpdate
		if json.Unmarshal(message, &u) == nil {
			s.mu.Lock()
			s.received = append(s.received, u)
			s.mu.Unlock()
		}
	}
}

func (s *syncServer) push(t *testing.T, u models.DashboardUpdate) {
	t.Helper()
	data, err := json.Marshal(u)
	require.NoError(t, err)
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotNil(t, s.conn)
	require.NoError(t, s.conn.WriteMessage(websocket.TextMessage, data))
}

func (s *syncServer) receivedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received)
}

func newTestAdapter(t *testing.T) (*WS, *syncServer) {
	t.Helper()
	srv := &syncServer{}
	httpSrv := httptest.NewServer(http.HandlerFunc(srv.handler))
	t.Cleanup(httpSrv.Close)

	endpoint := "ws" + strings.TrimPrefix(httpSrv.URL, "http")
	ws, err := New(Config{
		Logger:   slog.New(slog.NewTextHandler(os.Stdout, nil)),
		Endpoint: endpoint,
	})
	require.NoError(t, err)
	t.Cleanup(func() { ws.Disconnect() })
	return ws, srv
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached within timeout")
}

func TestWS_SendRoundTrip(t *testing.T) {
	ws, srv := newTestAdapter(t)

	require.NoError(t, ws.Connect(context.Background(), "token-123"))
	assert.True(t, ws.IsConnected())

	u := models.DashboardUpdate{
		ID:         "u1",
		Source:     models.RoleWorker,
		Type:       models.EventTaskCompleted,
		BuildingID: "b1",
		WorkerID:   "w1",
		Timestamp:  time.Now().UTC(),
	}
	require.NoError(t, ws.Send(u))

	waitFor(t, 2*time.Second, func() bool { return srv.receivedCount() == 1 })

	srv.mu.Lock()
	assert.Equal(t, "u1", srv.received[0].ID)
	assert.Equal(t, []string{"token-123"}, srv.tokens)
	srv.mu.Unlock()
}

func TestWS_ReceivesRemoteUpdates(t *testing.T) {
	ws, srv := newTestAdapter(t)

	var mu sync.Mutex
	var got []models.DashboardUpdate
	ws.SetReceiver(func(u models.DashboardUpdate) {
		mu.Lock()
		got = append(got, u)
		mu.Unlock()
	})

	require.NoError(t, ws.Connect(context.Background(), "tok"))

	srv.push(t, models.DashboardUpdate{
		ID:   "remote-1",
		Type: models.EventComplianceIssue,
	})

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})

	mu.Lock()
	assert.Equal(t, "remote-1", got[0].ID)
	mu.Unlock()
}

func TestWS_SendWhileDisconnected(t *testing.T) {
	ws, _ := newTestAdapter(t)

	err := ws.Send(models.DashboardUpdate{ID: "u1"})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestWS_DisconnectDropsConnection(t *testing.T) {
	ws, _ := newTestAdapter(t)

	require.NoError(t, ws.Connect(context.Background(), "tok"))
	require.True(t, ws.IsConnected())

	require.NoError(t, ws.Disconnect())
	assert.False(t, ws.IsConnected())

	err := ws.Send(models.DashboardUpdate{ID: "u1"})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestWS_ConnectIsIdempotent(t *testing.T) {
	ws, _ := newTestAdapter(t)

	require.NoError(t, ws.Connect(context.Background(), "tok"))
	require.NoError(t, ws.Connect(context.Background(), "tok"))
	assert.True(t, ws.IsConnected())
}

func TestNew_RejectsEmptyEndpoint(t *testing.T) {
	_, err := New(Config{Logger: slog.New(slog.NewTextHandler(os.Stdout, nil))})
	assert.Error(t, err)
}
