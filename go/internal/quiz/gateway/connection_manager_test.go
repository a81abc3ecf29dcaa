package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/quizarena/go/internal/quiz/events"
	"github.com/mcdev12/quizarena/go/internal/quiz/metrics"
)

type disconnect struct {
	client    Client
	remaining int
}

type recordingHandler struct {
	mu          sync.Mutex
	reject      string
	connects    []Client
	messages    []string
	disconnects []disconnect
}

func (h *recordingHandler) HandleConnect(c Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.WalletID == h.reject {
		return errors.New("room is full")
	}
	h.connects = append(h.connects, c)
	return nil
}

func (h *recordingHandler) HandleMessage(c Client, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, c.WalletID+":"+string(data))
}

func (h *recordingHandler) HandleDisconnect(c Client, remaining int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnects = append(h.disconnects, disconnect{client: c, remaining: remaining})
}

func (h *recordingHandler) snapshot() ([]string, []disconnect) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.messages...), append([]disconnect(nil), h.disconnects...)
}

type harness struct {
	cm      *ConnectionManager
	handler *recordingHandler
	server  *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cm := NewConnectionManager(DefaultConnectionConfig(), nil)
	handler := &recordingHandler{reject: "banned"}
	cm.SetHandler(handler)

	mux := http.NewServeMux()
	NewWebSocketHandler(cm).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)

	ctx, cancel := context.WithCancel(context.Background())
	go cm.Start(ctx)

	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return &harness{cm: cm, handler: handler, server: srv}
}

func (h *harness) dial(t *testing.T, roomID, walletID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws/room?room_id=" + roomID + "&wallet_id=" + walletID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (h *harness) waitForConnections(t *testing.T, roomID string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.cm.RoomConnectionCount(roomID) == n
	}, 2*time.Second, 5*time.Millisecond)
}

func readEnvelope(t *testing.T, conn *websocket.Conn) events.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env events.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestConnectionManager_BroadcastReachesRoomOnly(t *testing.T) {
	h := newHarness(t)
	a := h.dial(t, "room-1", "w1")
	b := h.dial(t, "room-1", "w2")
	other := h.dial(t, "room-2", "w3")
	h.waitForConnections(t, "room-1", 2)
	h.waitForConnections(t, "room-2", 1)

	h.cm.BroadcastToRoom("room-1", events.MustEnvelope(events.TypePong, nil, time.Now()))
	h.cm.BroadcastToRoom("room-2", events.MustEnvelope(events.TypeGameSync, nil, time.Now()))

	assert.Equal(t, events.TypePong, readEnvelope(t, a).Type)
	assert.Equal(t, events.TypePong, readEnvelope(t, b).Type)
	assert.Equal(t, events.TypeGameSync, readEnvelope(t, other).Type)
}

func TestConnectionManager_SendToPlayerUsesNewestConnection(t *testing.T) {
	h := newHarness(t)
	first := h.dial(t, "room-1", "w1")
	h.waitForConnections(t, "room-1", 1)
	second := h.dial(t, "room-1", "w1")
	h.waitForConnections(t, "room-1", 2)
	assert.Equal(t, 2, h.cm.PlayerConnectionCount("room-1", "w1"))

	h.cm.SendToPlayer("room-1", "w1", events.MustEnvelope(events.TypeAnswerSubmitted, nil, time.Now()))
	h.cm.BroadcastToRoom("room-1", events.MustEnvelope(events.TypeQuestionResult, nil, time.Now()))

	assert.Equal(t, events.TypeAnswerSubmitted, readEnvelope(t, second).Type)
	assert.Equal(t, events.TypeQuestionResult, readEnvelope(t, second).Type)
	// The older tab only sees the broadcast.
	assert.Equal(t, events.TypeQuestionResult, readEnvelope(t, first).Type)
}

func TestConnectionManager_ForwardsClientMessages(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, "room-1", "w1")
	h.waitForConnections(t, "room-1", 1)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))

	require.Eventually(t, func() bool {
		msgs, _ := h.handler.snapshot()
		return len(msgs) == 1 && msgs[0] == `w1:{"type":"ping"}`
	}, 2*time.Second, 5*time.Millisecond)
}

func TestConnectionManager_DisconnectReportsRemaining(t *testing.T) {
	h := newHarness(t)
	first := h.dial(t, "room-1", "w1")
	h.waitForConnections(t, "room-1", 1)
	second := h.dial(t, "room-1", "w1")
	h.waitForConnections(t, "room-1", 2)

	require.NoError(t, first.Close())
	require.Eventually(t, func() bool {
		_, d := h.handler.snapshot()
		return len(d) == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, second.Close())
	require.Eventually(t, func() bool {
		_, d := h.handler.snapshot()
		return len(d) == 2
	}, 2*time.Second, 5*time.Millisecond)

	_, d := h.handler.snapshot()
	assert.Equal(t, 1, d[0].remaining)
	assert.Equal(t, 0, d[1].remaining)
	assert.Equal(t, "w1", d[1].client.WalletID)
}

func TestConnectionManager_RejectedConnectGetsError(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, "room-1", "banned")

	env := readEnvelope(t, conn)
	assert.Equal(t, events.TypeError, env.Type)
	assert.Contains(t, string(env.Payload), "room is full")

	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Zero(t, h.cm.RoomConnectionCount("room-1"))
}

func TestConnectionManager_CloseRoomFlushesThenCloses(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, "room-1", "w1")
	h.waitForConnections(t, "room-1", 1)

	h.cm.BroadcastToRoom("room-1", events.MustEnvelope(events.TypeRoomClosed, events.RoomClosedPayload{RoomID: "room-1"}, time.Now()))
	h.cm.CloseRoom("room-1")

	assert.Equal(t, events.TypeRoomClosed, readEnvelope(t, conn).Type)
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	h.waitForConnections(t, "room-1", 0)

	// Server-initiated closes are not reported as player disconnects.
	_, d := h.handler.snapshot()
	assert.Empty(t, d)
}

func TestConnectionManager_IdleClose(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cm := NewConnectionManager(DefaultConnectionConfig(), clock)

	var fired int32
	cm.ScheduleIdleClose("room-1", 30*time.Second, func() { atomic.AddInt32(&fired, 1) })
	clock.Advance(29 * time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Zero(t, atomic.LoadInt32(&fired))

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&fired) == 1 }, time.Second, 5*time.Millisecond)

	cm.ScheduleIdleClose("room-2", 30*time.Second, func() { atomic.AddInt32(&fired, 1) })
	cm.ClearIdleClose("room-2")
	clock.Advance(time.Minute)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
}

func droppedBroadcasts(t *testing.T) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, metrics.BroadcastsDropped.Write(&m))
	return m.GetCounter().GetValue()
}

func TestConnectionManager_FullQueueCountsDrops(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig(), nil)
	env := events.MustEnvelope(events.TypePong, struct{}{}, time.Now())

	before := droppedBroadcasts(t)
	for i := 0; i < cap(cm.broadcastCh); i++ {
		cm.BroadcastToRoom("room-1", env)
	}
	assert.Equal(t, before, droppedBroadcasts(t))

	cm.BroadcastToRoom("room-1", env)
	cm.SendToConnection("conn-1", env)
	assert.Equal(t, before+2, droppedBroadcasts(t))
	assert.Len(t, cm.broadcastCh, cap(cm.broadcastCh))
}

func TestExtractRoomIDFromPath(t *testing.T) {
	assert.Equal(t, "abc", extractRoomIDFromPath("/api/rooms/abc/state"))
	assert.Equal(t, "", extractRoomIDFromPath("/api/rooms/state"))
	assert.Equal(t, "", extractRoomIDFromPath("/api/rooms/a/b/state"))
	assert.Equal(t, "", extractRoomIDFromPath("/api/games/abc/state"))
}
