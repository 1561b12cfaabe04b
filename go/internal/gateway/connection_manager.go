package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ankianan/passingstone/go/internal/channel"
	"github.com/ankianan/passingstone/go/internal/models"
	"github.com/ankianan/passingstone/go/internal/round"
	"github.com/ankianan/passingstone/go/internal/session"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ConnectionManager fans room snapshots out to WebSocket clients. Each room
// with at least one connection holds one channel subscription, and each
// connection runs a session actor that derives its view and reports round
// expiry when its countdown runs out.
type ConnectionManager struct {
	rooms map[uuid.UUID]*roomFeed
	mu    sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	channel  channel.Channel
	clock    clockwork.Clock
	expirer  round.Expirer

	broadcastCh chan BroadcastMessage

	ctx    context.Context
	cancel context.CancelFunc
}

type roomFeed struct {
	sub         channel.Subscription
	connections map[*Connection]bool
	last        *models.RoomSnapshot
}

// Connection represents a WebSocket connection to one participant
type Connection struct {
	ID            string
	ParticipantID uuid.UUID
	RoomID        uuid.UUID
	Conn          *websocket.Conn
	Send          chan []byte
	Manager       *ConnectionManager

	actor *session.Actor
	stop  context.CancelFunc

	ConnectedAt time.Time
	LastPing    time.Time
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int           // Also bounds each connection's session inbox
	RoundDuration   time.Duration // Used to derive the countdown in each view
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage is a snapshot waiting to be delivered to a room
type BroadcastMessage struct {
	RoomID   uuid.UUID
	Snapshot models.RoomSnapshot
}

// Message is what clients receive: the raw snapshot plus the view derived
// for the receiving participant.
type Message struct {
	Type     string               `json:"type"`
	Snapshot *models.RoomSnapshot `json:"snapshot"`
	View     session.View         `json:"view"`
}

const MessageTypeSnapshot = "snapshot"

func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  64,
		RoundDuration:   60 * time.Second,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager. expirer
// receives the round expiry reported by each connection's countdown.
func NewConnectionManager(config ConnectionConfig, ch channel.Channel, clock clockwork.Clock, expirer round.Expirer) *ConnectionManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &ConnectionManager{
		rooms: make(map[uuid.UUID]*roomFeed),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		channel:     ch,
		clock:       clock,
		expirer:     expirer,
		broadcastCh: make(chan BroadcastMessage, 1000),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start processes broadcasts until ctx is cancelled
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")
	defer cm.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case <-cm.ctx.Done():
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// Stop releases every room subscription and closes all connections
func (cm *ConnectionManager) Stop() {
	cm.cancel()

	cm.mu.Lock()
	rooms := cm.rooms
	cm.rooms = make(map[uuid.UUID]*roomFeed)
	cm.mu.Unlock()

	for _, feed := range rooms {
		_ = feed.sub.Close()
		for conn := range feed.connections {
			conn.stop()
			close(conn.Send)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and attaches it
// to the room's feed
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, participantID, roomID uuid.UUID) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	now := cm.clock.Now()
	connection := &Connection{
		ID:            uuid.New().String(),
		ParticipantID: participantID,
		RoomID:        roomID,
		Conn:          conn,
		Send:          make(chan []byte, cm.config.SendBufferSize),
		Manager:       cm,
		ConnectedAt:   now,
		LastPing:      now,
	}
	connection.actor = session.NewActor(session.Config{
		Self:      participantID,
		RoomID:    roomID,
		Duration:  cm.config.RoundDuration,
		InboxSize: cm.config.SendBufferSize,
	}, cm.clock, cm.expirer, func(snap models.RoomSnapshot, view session.View) {
		cm.push(connection, snap, view)
	})
	actorCtx, stop := context.WithCancel(cm.ctx)
	connection.stop = stop

	if err := cm.registerConnection(connection); err != nil {
		stop()
		conn.Close()
		return err
	}

	go connection.actor.Run(actorCtx)
	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("participant_id", participantID.String()).
		Str("room_id", roomID.String()).
		Msg("WebSocket connection established")

	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	feed, ok := cm.rooms[conn.RoomID]
	if !ok {
		sub, err := cm.channel.Subscribe(cm.ctx, conn.RoomID)
		if err != nil {
			return fmt.Errorf("failed to subscribe to room %s: %w", conn.RoomID, err)
		}
		feed = &roomFeed{sub: sub, connections: make(map[*Connection]bool)}
		cm.rooms[conn.RoomID] = feed
		go cm.pump(conn.RoomID, sub)
	}
	feed.connections[conn] = true

	// Late joiners start from the newest snapshot the room has seen
	if feed.last != nil {
		conn.actor.Deliver(*feed.last)
	}

	log.Debug().
		Str("connection_id", conn.ID).
		Str("room_id", conn.RoomID.String()).
		Int("total_connections", len(feed.connections)).
		Msg("connection registered")
	return nil
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	feed, ok := cm.rooms[conn.RoomID]
	if !ok || !feed.connections[conn] {
		return
	}
	delete(feed.connections, conn)
	conn.stop()
	close(conn.Send)

	if len(feed.connections) == 0 {
		delete(cm.rooms, conn.RoomID)
		if err := feed.sub.Close(); err != nil {
			log.Warn().Err(err).Str("room_id", conn.RoomID.String()).Msg("failed to close room subscription")
		}
	}

	log.Info().
		Str("connection_id", conn.ID).
		Str("participant_id", conn.ParticipantID.String()).
		Str("room_id", conn.RoomID.String()).
		Msg("connection unregistered")
}

func (cm *ConnectionManager) pump(roomID uuid.UUID, sub channel.Subscription) {
	for {
		select {
		case <-cm.ctx.Done():
			return
		case snap, ok := <-sub.C():
			if !ok {
				return
			}
			cm.BroadcastToRoom(roomID, snap)
		}
	}
}

// BroadcastToRoom queues a snapshot for every connection in the room
func (cm *ConnectionManager) BroadcastToRoom(roomID uuid.UUID, snap models.RoomSnapshot) {
	select {
	case cm.broadcastCh <- BroadcastMessage{RoomID: roomID, Snapshot: snap}:
	default:
		log.Warn().Str("room_id", roomID.String()).Msg("broadcast channel full, dropping snapshot")
	}
}

func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	feed, ok := cm.rooms[message.RoomID]
	if !ok {
		return
	}
	snap := message.Snapshot
	feed.last = &snap

	for conn := range feed.connections {
		conn.actor.Deliver(snap)
	}

	log.Debug().
		Str("room_id", message.RoomID.String()).
		Str("status", string(snap.Room.Status)).
		Int("connections", len(feed.connections)).
		Msg("snapshot broadcasted")
}

// push queues the view a connection's actor derived. A connection that
// cannot keep up is closed.
func (cm *ConnectionManager) push(conn *Connection, snap models.RoomSnapshot, view session.View) {
	data, err := json.Marshal(Message{
		Type:     MessageTypeSnapshot,
		Snapshot: &snap,
		View:     view,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal snapshot for broadcast")
		return
	}

	// Send is only closed under the write lock after the connection leaves
	// its feed, so checking membership under the read lock makes this safe
	cm.mu.RLock()
	feed, ok := cm.rooms[conn.RoomID]
	live := ok && feed.connections[conn]
	sent := false
	if live {
		select {
		case conn.Send <- data:
			sent = true
		default:
		}
	}
	cm.mu.RUnlock()

	if live && !sent {
		log.Warn().
			Str("connection_id", conn.ID).
			Str("participant_id", conn.ParticipantID.String()).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}
}

// ConnectionStats summarises live connections
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveRooms      int            `json:"active_rooms"`
	RoomConnections  map[string]int `json:"room_connections"`
}

func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{
		ActiveRooms:     len(cm.rooms),
		RoomConnections: make(map[string]int, len(cm.rooms)),
	}
	for roomID, feed := range cm.rooms {
		stats.TotalConnections += len(feed.connections)
		stats.RoomConnections[roomID.String()] = len(feed.connections)
	}
	return stats
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
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

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
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		// Intents go through the RPC service; anything sent here is only logged
		log.Debug().
			Str("connection_id", c.ID).
			Str("participant_id", c.ParticipantID.String()).
			Int("bytes", len(message)).
			Msg("ignoring client message")
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
