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
	"github.com/rs/zerolog/log"

	"github.com/twinsuns/draftdeck/go/internal/events"
)

// ConnectionManager owns every WebSocket connection, grouped by the room it
// subscribes to, and fans room broadcasts out to them. It implements
// room.Broadcaster: rooms publish here and never see connections.
type ConnectionManager struct {
	roomConnections map[uuid.UUID]map[*Connection]bool
	mu              sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	router   *Router

	broadcastCh chan broadcastMessage
}

// Connection is one subscribed client. A connection starts as a spectator;
// binding to a seat happens when the room answers its join.
type Connection struct {
	ID      string
	RoomID  uuid.UUID
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	// Seat binding, set from the room's Joined reply. Guarded by bindMu
	// because the reply runs on the room's worker goroutine.
	bindMu    sync.Mutex
	seat      int
	seatToken uuid.UUID

	ConnectedAt time.Time
	LastPing    time.Time
}

// broadcastMessage targets every subscriber of a room, or only the
// connections bound to one seat when Seat >= 0.
type broadcastMessage struct {
	RoomID uuid.UUID
	Seat   int
	Event  events.Event
}

// ConnectionConfig holds transport tuning for WebSocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		roomConnections: make(map[uuid.UUID]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan broadcastMessage, 1000),
	}
}

// SetRouter wires the inbound event router. Must be called before Start.
func (cm *ConnectionManager) SetRouter(r *Router) {
	cm.router = r
}

// Start processes broadcast messages until ctx is cancelled. A single
// drainer keeps fan-out in room-sequence order.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP request to a subscribed WebSocket
// connection for the given room.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, roomID uuid.UUID) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		RoomID:      roomID,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		seat:        -1,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("room_id", roomID.String()).
		Msg("WebSocket connection established")

	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.roomConnections[conn.RoomID] == nil {
		cm.roomConnections[conn.RoomID] = make(map[*Connection]bool)
	}
	cm.roomConnections[conn.RoomID][conn] = true
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	connections, exists := cm.roomConnections[conn.RoomID]
	if !exists {
		return
	}
	if _, exists := connections[conn]; !exists {
		return
	}
	delete(connections, conn)
	close(conn.Send)
	if len(connections) == 0 {
		delete(cm.roomConnections, conn.RoomID)
	}

	log.Info().
		Str("connection_id", conn.ID).
		Str("room_id", conn.RoomID.String()).
		Msg("connection unregistered")
}

// Broadcast implements room.Broadcaster for room-wide events.
func (cm *ConnectionManager) Broadcast(roomID uuid.UUID, ev events.Event) {
	select {
	case cm.broadcastCh <- broadcastMessage{RoomID: roomID, Seat: -1, Event: ev}:
	default:
		log.Warn().Str("room_id", roomID.String()).Msg("broadcast channel full, dropping message")
	}
}

// SendToSeat implements room.Broadcaster for occupant-only events, such as
// unrevealed pack contents.
func (cm *ConnectionManager) SendToSeat(roomID uuid.UUID, seat int, ev events.Event) {
	select {
	case cm.broadcastCh <- broadcastMessage{RoomID: roomID, Seat: seat, Event: ev}:
	default:
		log.Warn().
			Str("room_id", roomID.String()).
			Int("seat", seat).
			Msg("broadcast channel full, dropping seat message")
	}
}

func (cm *ConnectionManager) handleBroadcast(message broadcastMessage) {
	cm.mu.RLock()
	connections, exists := cm.roomConnections[message.RoomID]
	if !exists {
		cm.mu.RUnlock()
		return
	}
	var targets []*Connection
	for conn := range connections {
		if message.Seat >= 0 && conn.Seat() != message.Seat {
			continue
		}
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	eventData, err := json.Marshal(message.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	for _, conn := range targets {
		select {
		case conn.Send <- eventData:
		default:
			// Slow or dead consumer; it resyncs via snapshot on reconnect.
			log.Warn().
				Str("connection_id", conn.ID).
				Msg("connection send buffer full, closing connection")
			cm.unregisterConnection(conn)
			conn.Conn.Close()
		}
	}
}

// Stats summarizes live connections for health reporting.
type Stats struct {
	TotalConnections int            `json:"total_connections"`
	SubscribedRooms  int            `json:"subscribed_rooms"`
	RoomConnections  map[string]int `json:"room_connections"`
}

func (cm *ConnectionManager) GetStats() Stats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := Stats{RoomConnections: make(map[string]int)}
	for roomID, connections := range cm.roomConnections {
		stats.TotalConnections += len(connections)
		stats.RoomConnections[roomID.String()] = len(connections)
	}
	stats.SubscribedRooms = len(cm.roomConnections)
	return stats
}

// Seat returns the bound seat index, -1 for spectators.
func (c *Connection) Seat() int {
	c.bindMu.Lock()
	defer c.bindMu.Unlock()
	return c.seat
}

// SeatToken returns the bound seat token, uuid.Nil for spectators.
func (c *Connection) SeatToken() uuid.UUID {
	c.bindMu.Lock()
	defer c.bindMu.Unlock()
	return c.seatToken
}

func (c *Connection) bindSeat(seat int, token uuid.UUID) {
	c.bindMu.Lock()
	c.seat = seat
	c.seatToken = token
	c.bindMu.Unlock()
}

// Reply delivers a private event to this connection. Used by the router as
// the reply path for submitted commands; runs on the room worker, so it only
// enqueues. Joined replies also bind the connection to its seat.
func (c *Connection) Reply(ev events.Event) {
	if ev.Type == events.TypeJoined {
		var payload events.JoinedPayload
		if err := json.Unmarshal(ev.Data, &payload); err == nil {
			if token, err := uuid.Parse(payload.SeatToken); err == nil {
				c.bindSeat(payload.Seat, token)
			}
		}
	}

	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal reply event")
		return
	}
	select {
	case c.Send <- data:
	default:
		log.Warn().Str("connection_id", c.ID).Msg("reply dropped, send buffer full")
	}
}

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
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to write message")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to send ping")
				return
			}
			c.LastPing = time.Now()
		}
	}
}

func (c *Connection) readPump() {
	defer func() {
		c.Manager.router.ConnectionClosed(c)
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("unexpected WebSocket close")
			}
			break
		}
		c.Manager.router.Dispatch(c, message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
