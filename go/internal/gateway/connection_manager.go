package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/gavel/go/internal/metrics"
	"github.com/rs/zerolog/log"
)

// ConnectionManager owns the realtime sessions and their room memberships.
// Nothing here is durable: a reconnecting client rebuilds its rooms by
// joining again.
type ConnectionManager struct {
	connections map[*Connection]bool
	rooms       map[string]map[*Connection]bool
	users       map[uuid.UUID]map[*Connection]bool
	mu          sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	state    StateProvider

	// All broadcasts pass through this FIFO so that one room sees events in
	// the order they were enqueued.
	broadcastCh chan Broadcast
	done        chan struct{}
	stopOnce    sync.Once

	relay      Relay
	instanceID string
}

// Connection is one authenticated client socket.
type Connection struct {
	ID      string
	UserID  uuid.UUID
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	rooms map[string]bool // guarded by Manager.mu

	ConnectedAt time.Time
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
	BroadcastBuffer int
	CommandTimeout  time.Duration
	CheckOrigin     func(r *http.Request) bool
}

// Broadcast addresses an event to a room or to every session of one user.
type Broadcast struct {
	Room   string     `json:"room,omitempty"`
	UserID *uuid.UUID `json:"user_id,omitempty"`
	Event  *Event     `json:"event"`
	// Origin is the instance that produced the event. It is empty for events
	// produced locally that have not been relayed yet.
	Origin string `json:"origin,omitempty"`
}

// Stats describes the sessions held by this instance.
type Stats struct {
	InstanceID  string         `json:"instance_id"`
	Connections int            `json:"total_connections"`
	Users       int            `json:"connected_users"`
	Rooms       map[string]int `json:"rooms"`
	QueueDepth  int            `json:"queue_depth"`
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		BroadcastBuffer: 4096,
		CommandTimeout:  5 * time.Second,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a connection manager. relay may be nil when
// only one instance serves clients.
func NewConnectionManager(config ConnectionConfig, state StateProvider, relay Relay) *ConnectionManager {
	if relay == nil {
		relay = noopRelay{}
	}
	return &ConnectionManager{
		connections: make(map[*Connection]bool),
		rooms:       make(map[string]map[*Connection]bool),
		users:       make(map[uuid.UUID]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		state:       state,
		broadcastCh: make(chan Broadcast, config.BroadcastBuffer),
		done:        make(chan struct{}),
		relay:       relay,
		instanceID:  uuid.New().String()[:8],
	}
}

// InstanceID identifies this process on the relay.
func (cm *ConnectionManager) InstanceID() string { return cm.instanceID }

// Start drains the broadcast queue and consumes the relay until ctx is done.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Str("instance", cm.instanceID).Msg("connection manager started")
	defer cm.stop()

	go func() {
		err := cm.relay.Subscribe(ctx, func(b Broadcast) {
			if b.Origin == cm.instanceID {
				return
			}
			metrics.RecordRelay("in", nil)
			cm.enqueue(b)
		})
		if err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("relay subscription ended")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("instance", cm.instanceID).Msg("connection manager shutting down")
			cm.closeAll()
			return
		case b := <-cm.broadcastCh:
			cm.handleBroadcast(ctx, b)
		}
	}
}

func (cm *ConnectionManager) stop() {
	cm.stopOnce.Do(func() { close(cm.done) })
}

// BroadcastToRoom queues an event for every session in room.
func (cm *ConnectionManager) BroadcastToRoom(room string, event *Event) {
	cm.enqueue(Broadcast{Room: room, Event: event})
}

// BroadcastToUser queues an event for every session of userID, whichever
// rooms they are in.
func (cm *ConnectionManager) BroadcastToUser(userID uuid.UUID, event *Event) {
	cm.enqueue(Broadcast{UserID: &userID, Event: event})
}

// enqueue blocks while the queue is full so that no event is lost, unless
// the manager has stopped.
func (cm *ConnectionManager) enqueue(b Broadcast) {
	select {
	case cm.broadcastCh <- b:
	case <-cm.done:
		log.Warn().Str("event", string(b.Event.Type)).Msg("connection manager stopped, dropping broadcast")
	}
}

func (cm *ConnectionManager) handleBroadcast(ctx context.Context, b Broadcast) {
	cm.deliver(b)

	if b.Origin != "" {
		return
	}
	b.Origin = cm.instanceID
	pubCtx, cancel := context.WithTimeout(ctx, cm.config.WriteTimeout)
	defer cancel()
	err := cm.relay.Publish(pubCtx, b)
	if _, isNoop := cm.relay.(noopRelay); !isNoop {
		metrics.RecordRelay("out", err)
	}
	if err != nil {
		log.Error().Err(err).Str("event", string(b.Event.Type)).Str("room", b.Room).Msg("failed to relay broadcast")
	}
}

// deliver writes the event to the matching local sessions.
func (cm *ConnectionManager) deliver(b Broadcast) {
	data, err := json.Marshal(b.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	// Send channels are only closed under the write lock, so holding the read
	// lock keeps every member's channel open while we write to it.
	cm.mu.RLock()
	members := cm.rooms[b.Room]
	if b.UserID != nil {
		members = cm.users[*b.UserID]
	}
	var slow []*Connection
	for conn := range members {
		if !conn.trySend(data) {
			slow = append(slow, conn)
		}
	}
	delivered := len(members) - len(slow)
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Str("user_id", conn.UserID.String()).
			Msg("connection send buffer full, closing connection")
		metrics.RecordDroppedMessage()
		cm.unregisterConnection(conn)
	}
	if delivered > 0 {
		metrics.RecordBroadcast(string(b.Event.Type))
	}

	log.Debug().
		Str("event", string(b.Event.Type)).
		Str("room", b.Room).
		Int("connections", delivered).
		Msg("event broadcasted")
}

// UpgradeConnection upgrades an HTTP connection for an already authenticated
// user and starts its pumps. greet, if set, runs before the read pump starts,
// so what it queues reaches the client ahead of any command reply.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, userID uuid.UUID, greet func(*Connection)) (*Connection, error) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		UserID:      userID,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		rooms:       make(map[string]bool),
		ConnectedAt: time.Now(),
	}
	cm.registerConnection(connection)
	if greet != nil {
		greet(connection)
	}

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("user_id", userID.String()).
		Msg("WebSocket connection established")
	return connection, nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.connections[conn] = true
	if cm.users[conn.UserID] == nil {
		cm.users[conn.UserID] = make(map[*Connection]bool)
	}
	cm.users[conn.UserID][conn] = true
	metrics.SessionOpened()
}

// unregisterConnection drops the session from every room. It is safe to call
// more than once.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if !cm.connections[conn] {
		return
	}
	delete(cm.connections, conn)
	for room := range conn.rooms {
		cm.removeFromRoomLocked(conn, room)
	}
	if sessions := cm.users[conn.UserID]; sessions != nil {
		delete(sessions, conn)
		if len(sessions) == 0 {
			delete(cm.users, conn.UserID)
		}
	}
	close(conn.Send)
	metrics.SessionClosed()

	log.Info().
		Str("connection_id", conn.ID).
		Str("user_id", conn.UserID.String()).
		Msg("connection unregistered")
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.connections))
	for conn := range cm.connections {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()
	for _, conn := range conns {
		cm.unregisterConnection(conn)
	}
}

// JoinRoom adds the session to room.
func (cm *ConnectionManager) JoinRoom(conn *Connection, room string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if !cm.connections[conn] {
		return
	}
	if cm.rooms[room] == nil {
		cm.rooms[room] = make(map[*Connection]bool)
	}
	cm.rooms[room][conn] = true
	conn.rooms[room] = true
}

// LeaveRoom removes the session from room.
func (cm *ConnectionManager) LeaveRoom(conn *Connection, room string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.removeFromRoomLocked(conn, room)
}

func (cm *ConnectionManager) removeFromRoomLocked(conn *Connection, room string) {
	delete(conn.rooms, room)
	if members := cm.rooms[room]; members != nil {
		delete(members, conn)
		if len(members) == 0 {
			delete(cm.rooms, room)
		}
	}
}

// RoomSize returns the number of local sessions in room.
func (cm *ConnectionManager) RoomSize(room string) int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.rooms[room])
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() Stats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	rooms := make(map[string]int, len(cm.rooms))
	for room, members := range cm.rooms {
		rooms[room] = len(members)
	}
	return Stats{
		InstanceID:  cm.instanceID,
		Connections: len(cm.connections),
		Users:       len(cm.users),
		Rooms:       rooms,
		QueueDepth:  len(cm.broadcastCh),
	}
}

// trySend hands data to the write pump without blocking. It reports false
// when the session's buffer is full.
func (c *Connection) trySend(data []byte) bool {
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// sendEvent writes an event to this session only.
func (c *Connection) sendEvent(t EventType, payload any) {
	ev, err := NewEvent(t, payload)
	if err != nil {
		log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to build event")
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to marshal event")
		return
	}

	cm := c.Manager
	cm.mu.RLock()
	if !cm.connections[c] {
		cm.mu.RUnlock()
		return
	}
	ok := c.trySend(data)
	cm.mu.RUnlock()
	if !ok {
		metrics.RecordDroppedMessage()
		cm.unregisterConnection(c)
	}
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().Err(err).Str("connection_id", c.ID).Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("connection_id", c.ID).Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("unexpected WebSocket close error")
			}
			return
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
