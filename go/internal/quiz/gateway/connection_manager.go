package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizarena/go/internal/quiz/events"
	"github.com/mcdev12/quizarena/go/internal/quiz/metrics"
)

// Client identifies the player behind a connection.
type Client struct {
	ConnectionID string
	RoomID       string
	WalletID     string
	Username     string
}

// MessageHandler receives connection lifecycle callbacks and client messages.
// HandleConnect runs before the pumps start; a non-nil error is sent to the
// client and the connection is closed.
type MessageHandler interface {
	HandleConnect(client Client) error
	HandleMessage(client Client, data []byte)
	HandleDisconnect(client Client, remaining int)
}

// ConnectionManager manages WebSocket connections for quiz rooms
type ConnectionManager struct {
	// Connection pools organized by room and by (room, wallet)
	roomConnections   map[string]map[*Connection]bool
	playerConnections map[playerKey]map[*Connection]bool
	connections       map[string]*Connection
	mu                sync.RWMutex

	// Upgrader for WebSocket connections
	upgrader websocket.Upgrader

	// Connection configuration
	config ConnectionConfig

	// Outbound messages, processed in order by Start
	broadcastCh chan outbound

	handler MessageHandler
	clock   clockwork.Clock

	idleTimers   map[string]*idleTimer
	idleTimersMu sync.Mutex
}

type idleTimer struct {
	timer clockwork.Timer
	done  chan struct{}
}

func (t *idleTimer) stop() {
	stopAndDrainTimer(t.timer)
	close(t.done)
}

type playerKey struct {
	roomID   string
	walletID string
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID       string
	RoomID   string
	WalletID string
	Username string
	Conn     *websocket.Conn
	Send     chan []byte
	Manager  *ConnectionManager

	// Connection metadata
	ConnectedAt time.Time
}

func (c *Connection) client() Client {
	return Client{ConnectionID: c.ID, RoomID: c.RoomID, WalletID: c.WalletID, Username: c.Username}
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

type outboundKind int

const (
	toRoom outboundKind = iota
	toConnection
	toPlayer
	closeRoom
	closePlayer
)

type outbound struct {
	kind     outboundKind
	roomID   string
	walletID string
	connID   string
	env      *events.Envelope
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig, clock clockwork.Clock) *ConnectionManager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = 256
	}
	return &ConnectionManager{
		roomConnections:   make(map[string]map[*Connection]bool),
		playerConnections: make(map[playerKey]map[*Connection]bool),
		connections:       make(map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan outbound, 1000), // Buffer for high throughput
		clock:       clock,
		idleTimers:  make(map[string]*idleTimer),
	}
}

// SetHandler installs the receiver of client messages. It must be called before serving.
func (cm *ConnectionManager) SetHandler(h MessageHandler) {
	cm.handler = h
}

// Start begins processing outbound messages
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.stopIdleTimers()
			return
		case message := <-cm.broadcastCh:
			cm.handleOutbound(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and admits it to the room
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, roomID, walletID, username string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		RoomID:      roomID,
		WalletID:    walletID,
		Username:    username,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: cm.clock.Now(),
	}

	cm.registerConnection(connection)

	if cm.handler != nil {
		if err := cm.handler.HandleConnect(connection.client()); err != nil {
			log.Warn().
				Err(err).
				Str("connection_id", connection.ID).
				Str("room_id", roomID).
				Str("wallet_id", walletID).
				Msg("connection rejected")
			cm.rejectConnection(connection, err)
			return nil
		}
	}

	// Start connection handlers
	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("wallet_id", walletID).
		Str("room_id", roomID).
		Msg("WebSocket connection established")

	return nil
}

// rejectConnection writes an error envelope directly and closes the socket.
func (cm *ConnectionManager) rejectConnection(conn *Connection, reason error) {
	cm.unregisterConnection(conn, false)
	env := events.MustEnvelope(events.TypeError, events.ErrorPayload{Message: reason.Error()}, cm.clock.Now())
	_ = conn.Conn.SetWriteDeadline(time.Now().Add(cm.config.WriteTimeout))
	if err := conn.Conn.WriteJSON(env); err == nil {
		_ = conn.Conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason.Error()))
	}
	conn.Conn.Close()
}

// registerConnection adds a connection to the manager
func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.roomConnections[conn.RoomID] == nil {
		cm.roomConnections[conn.RoomID] = make(map[*Connection]bool)
	}
	cm.roomConnections[conn.RoomID][conn] = true

	key := playerKey{roomID: conn.RoomID, walletID: conn.WalletID}
	if cm.playerConnections[key] == nil {
		cm.playerConnections[key] = make(map[*Connection]bool)
	}
	cm.playerConnections[key][conn] = true
	cm.connections[conn.ID] = conn
	metrics.ActiveConnections.Inc()

	log.Debug().
		Str("connection_id", conn.ID).
		Str("room_id", conn.RoomID).
		Int("total_connections", len(cm.roomConnections[conn.RoomID])).
		Msg("connection registered")
}

// unregisterConnection removes a connection from the manager. The handler is
// told about the disconnect once, with the player's remaining connection count.
func (cm *ConnectionManager) unregisterConnection(conn *Connection, notify bool) {
	cm.mu.Lock()
	if _, exists := cm.connections[conn.ID]; !exists {
		cm.mu.Unlock()
		return
	}
	delete(cm.connections, conn.ID)
	close(conn.Send)
	metrics.ActiveConnections.Dec()

	if connections, exists := cm.roomConnections[conn.RoomID]; exists {
		delete(connections, conn)
		// Clean up empty room connection pools
		if len(connections) == 0 {
			delete(cm.roomConnections, conn.RoomID)
		}
	}
	key := playerKey{roomID: conn.RoomID, walletID: conn.WalletID}
	remaining := 0
	if connections, exists := cm.playerConnections[key]; exists {
		delete(connections, conn)
		remaining = len(connections)
		if remaining == 0 {
			delete(cm.playerConnections, key)
		}
	}
	cm.mu.Unlock()

	log.Info().
		Str("connection_id", conn.ID).
		Str("wallet_id", conn.WalletID).
		Str("room_id", conn.RoomID).
		Int("remaining", remaining).
		Msg("connection unregistered")

	if notify && cm.handler != nil {
		cm.handler.HandleDisconnect(conn.client(), remaining)
	}
}

// BroadcastToRoom sends an envelope to every connection in a room
func (cm *ConnectionManager) BroadcastToRoom(roomID string, env *events.Envelope) {
	cm.enqueue(outbound{kind: toRoom, roomID: roomID, env: env})
}

// SendToConnection sends an envelope to one connection
func (cm *ConnectionManager) SendToConnection(connectionID string, env *events.Envelope) {
	cm.enqueue(outbound{kind: toConnection, connID: connectionID, env: env})
}

// SendToPlayer sends an envelope to the player's most recent connection
func (cm *ConnectionManager) SendToPlayer(roomID, walletID string, env *events.Envelope) {
	cm.enqueue(outbound{kind: toPlayer, roomID: roomID, walletID: walletID, env: env})
}

// DisconnectPlayer closes every connection a player holds in a room, after
// anything already queued for them has been delivered.
func (cm *ConnectionManager) DisconnectPlayer(roomID, walletID string) {
	cm.enqueue(outbound{kind: closePlayer, roomID: roomID, walletID: walletID})
}

// CloseRoom closes every connection in a room after pending messages are flushed.
func (cm *ConnectionManager) CloseRoom(roomID string) {
	cm.ClearIdleClose(roomID)
	cm.enqueue(outbound{kind: closeRoom, roomID: roomID})
}

// PlayerConnectionCount returns how many live connections a player holds in a room.
func (cm *ConnectionManager) PlayerConnectionCount(roomID, walletID string) int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.playerConnections[playerKey{roomID: roomID, walletID: walletID}])
}

// RoomConnectionCount returns how many live connections a room has.
func (cm *ConnectionManager) RoomConnectionCount(roomID string) int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.roomConnections[roomID])
}

func (cm *ConnectionManager) enqueue(message outbound) {
	select {
	case cm.broadcastCh <- message:
	default:
		metrics.BroadcastsDropped.Inc()
		event := log.Warn().
			Str("room_id", message.roomID).
			Str("wallet_id", message.walletID).
			Str("connection_id", message.connID).
			Int("queued", len(cm.broadcastCh))
		if message.env != nil {
			event = event.Str("type", string(message.env.Type))
		}
		event.Msg("broadcast queue full, dropping message")
	}
}

// handleOutbound processes a queued message
func (cm *ConnectionManager) handleOutbound(message outbound) {
	switch message.kind {
	case closeRoom, closePlayer:
		cm.closeTargets(message)
		return
	}

	// Marshal the event once
	data, err := json.Marshal(message.env)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	var slow []*Connection
	delivered := 0

	// Sends happen under the read lock so unregisterConnection cannot close a
	// Send channel mid-broadcast.
	cm.mu.RLock()
	for _, conn := range cm.targetsLocked(message) {
		select {
		case conn.Send <- data:
			delivered++
		default:
			slow = append(slow, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		// Connection is slow/dead, close it
		log.Warn().
			Str("connection_id", conn.ID).
			Str("wallet_id", conn.WalletID).
			Msg("connection send buffer full, closing connection")
		metrics.SlowConnectionsPruned.Inc()
		cm.unregisterConnection(conn, true)
		conn.Conn.Close()
	}

	metrics.MessagesBroadcast.WithLabelValues(string(message.env.Type), scopeLabel(message.kind)).Inc()

	log.Debug().
		Str("event_type", string(message.env.Type)).
		Str("room_id", message.roomID).
		Int("connections", delivered).
		Msg("event sent")
}

func (cm *ConnectionManager) targetsLocked(message outbound) []*Connection {
	switch message.kind {
	case toRoom:
		targets := make([]*Connection, 0, len(cm.roomConnections[message.roomID]))
		for conn := range cm.roomConnections[message.roomID] {
			targets = append(targets, conn)
		}
		return targets
	case toConnection:
		if conn, ok := cm.connections[message.connID]; ok {
			return []*Connection{conn}
		}
	case toPlayer:
		var newest *Connection
		for conn := range cm.playerConnections[playerKey{roomID: message.roomID, walletID: message.walletID}] {
			if newest == nil || conn.ConnectedAt.After(newest.ConnectedAt) {
				newest = conn
			}
		}
		if newest != nil {
			return []*Connection{newest}
		}
	}
	return nil
}

func (cm *ConnectionManager) closeTargets(message outbound) {
	cm.mu.RLock()
	var targets []*Connection
	if message.kind == closeRoom {
		for conn := range cm.roomConnections[message.roomID] {
			targets = append(targets, conn)
		}
	} else {
		for conn := range cm.playerConnections[playerKey{roomID: message.roomID, walletID: message.walletID}] {
			targets = append(targets, conn)
		}
	}
	cm.mu.RUnlock()

	// Closing Send lets writePump flush what is buffered, then send a close frame.
	for _, conn := range targets {
		cm.unregisterConnection(conn, false)
	}

	log.Info().
		Str("room_id", message.roomID).
		Str("wallet_id", message.walletID).
		Int("connections", len(targets)).
		Msg("connections closed")
}

func scopeLabel(kind outboundKind) string {
	switch kind {
	case toRoom:
		return "room"
	case toConnection:
		return "connection"
	default:
		return "player"
	}
}

// ScheduleIdleClose arms (or re-arms) the room's idle timer. onIdle runs on its
// own goroutine when the timer fires and must re-check whether the room is
// still idle.
func (cm *ConnectionManager) ScheduleIdleClose(roomID string, after time.Duration, onIdle func()) {
	it := &idleTimer{timer: cm.clock.NewTimer(after), done: make(chan struct{})}

	cm.idleTimersMu.Lock()
	if existing, ok := cm.idleTimers[roomID]; ok {
		existing.stop()
	}
	cm.idleTimers[roomID] = it
	cm.idleTimersMu.Unlock()

	go func() {
		select {
		case <-it.done:
			return
		case <-it.timer.Chan():
		}

		cm.idleTimersMu.Lock()
		if cm.idleTimers[roomID] != it {
			cm.idleTimersMu.Unlock()
			return
		}
		delete(cm.idleTimers, roomID)
		cm.idleTimersMu.Unlock()

		log.Info().Str("room_id", roomID).Dur("after", after).Msg("idle timer fired")
		onIdle()
	}()
}

// ClearIdleClose cancels the room's idle timer, if any.
func (cm *ConnectionManager) ClearIdleClose(roomID string) {
	cm.idleTimersMu.Lock()
	defer cm.idleTimersMu.Unlock()
	if it, ok := cm.idleTimers[roomID]; ok {
		it.stop()
		delete(cm.idleTimers, roomID)
	}
}

func (cm *ConnectionManager) stopIdleTimers() {
	cm.idleTimersMu.Lock()
	defer cm.idleTimersMu.Unlock()
	for roomID, it := range cm.idleTimers {
		it.stop()
		delete(cm.idleTimers, roomID)
	}
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	totalConnections := 0
	roomCounts := make(map[string]int)

	for roomID, connections := range cm.roomConnections {
		count := len(connections)
		totalConnections += count
		roomCounts[roomID] = count
	}

	return map[string]interface{}{
		"total_connections": totalConnections,
		"active_rooms":      len(cm.roomConnections),
		"room_connections":  roomCounts,
	}
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				// Channel was closed
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				c.Manager.unregisterConnection(c, true)
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				c.Manager.unregisterConnection(c, true)
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c, true)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		if c.Manager.handler != nil {
			c.Manager.handler.HandleMessage(c.client(), message)
		}
		_ = c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
