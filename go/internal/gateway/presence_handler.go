package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/ankianan/passingstone/go/internal/models"
	"github.com/ankianan/passingstone/go/internal/presence"
	"github.com/ankianan/passingstone/go/internal/roster"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	MessageTypePresence = "presence"
	MessageTypeError    = "error"

	PresenceCommandPass = "pass"
)

// PresenceMessage is what a presence client receives after every change
type PresenceMessage struct {
	Type     string                   `json:"type"`
	HolderID uuid.UUID                `json:"holder_id"`
	HasStone bool                     `json:"has_stone"`
	Members  []models.PresencePayload `json:"members,omitempty"`
	Error    string                   `json:"error,omitempty"`
}

// PresenceCommand is what a presence client sends
type PresenceCommand struct {
	Type      string           `json:"type"`
	Direction roster.Direction `json:"direction"`
}

// PresenceHandler serves the ephemeral variant of the game: each socket is a
// presence member, and the stone lives only in the members' payloads.
type PresenceHandler struct {
	registry *presence.Registry
	clock    clockwork.Clock
	upgrader websocket.Upgrader
	config   ConnectionConfig
}

func NewPresenceHandler(config ConnectionConfig, registry *presence.Registry, clock clockwork.Clock) *PresenceHandler {
	return &PresenceHandler{
		registry: registry,
		clock:    clock,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
	}
}

func (h *PresenceHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/presence", h.HandlePresence)
	log.Info().Msg("presence routes registered")
}

// HandlePresence upgrades /ws/presence?room_id=...&participant_id=...&name=...
// and keeps the member present until the socket closes.
func (h *PresenceHandler) HandlePresence(w http.ResponseWriter, r *http.Request) {
	roomID, err := uuid.Parse(r.URL.Query().Get("room_id"))
	if err != nil {
		http.Error(w, "invalid room_id", http.StatusBadRequest)
		return
	}
	raw := r.URL.Query().Get("participant_id")
	if raw == "" {
		raw = r.Header.Get("X-Session-Id")
	}
	participantID, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, "invalid participant_id", http.StatusBadRequest)
		return
	}
	name := r.URL.Query().Get("name")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID.String()).Msg("failed to upgrade presence connection")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	member, err := presence.Join(ctx, h.registry, h.clock, roomID, participantID, name)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID.String()).Msg("failed to join presence")
		_ = h.write(conn, PresenceMessage{Type: MessageTypeError, Error: err.Error()})
		return
	}
	defer func() {
		if err := member.Leave(context.Background()); err != nil {
			log.Warn().Err(err).Str("participant_id", participantID.String()).Msg("failed to leave presence")
		}
	}()

	commands := make(chan PresenceCommand)
	go h.readCommands(ctx, conn, commands)

	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	if err := h.write(conn, h.stateMessage(member)); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-member.Changes():
			if err := h.write(conn, h.stateMessage(member)); err != nil {
				return
			}
		case cmd, ok := <-commands:
			if !ok {
				return
			}
			if err := h.apply(ctx, member, cmd); err != nil {
				if err := h.write(conn, PresenceMessage{Type: MessageTypeError, Error: err.Error()}); err != nil {
					return
				}
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *PresenceHandler) apply(ctx context.Context, member *presence.Member, cmd PresenceCommand) error {
	switch cmd.Type {
	case PresenceCommandPass:
		return member.Pass(ctx, cmd.Direction)
	default:
		log.Debug().Str("type", cmd.Type).Msg("ignoring presence command")
		return nil
	}
}

func (h *PresenceHandler) readCommands(ctx context.Context, conn *websocket.Conn, out chan<- PresenceCommand) {
	defer close(out)

	conn.SetReadLimit(h.config.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
		return nil
	})

	for {
		var cmd PresenceCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Msg("unexpected presence close error")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
		select {
		case out <- cmd:
		case <-ctx.Done():
			return
		}
	}
}

func (h *PresenceHandler) stateMessage(member *presence.Member) PresenceMessage {
	state := member.State()
	return PresenceMessage{
		Type:     MessageTypePresence,
		HolderID: state.Holder,
		HasStone: state.Holder == member.ID(),
		Members:  state.Members,
	}
}

func (h *PresenceHandler) write(conn *websocket.Conn, msg PresenceMessage) error {
	conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		log.Debug().Err(err).Msg("failed to write presence message")
		return err
	}
	return nil
}
