package gateway

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/twinsuns/draftdeck/go/internal/events"
	"github.com/twinsuns/draftdeck/go/internal/registry"
	"github.com/twinsuns/draftdeck/go/internal/room"
)

// ClientMessage is the inbound wire envelope.
type ClientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Inbound event kinds.
const (
	MsgJoin     = "join"
	MsgPick     = "pick"
	MsgLeave    = "leave"
	MsgStart    = "start"
	MsgChat     = "chat"
	MsgSnapshot = "snapshot"
)

type joinMessage struct {
	Name      string `json:"name"`
	SeatToken string `json:"seat_token,omitempty"`
}

type pickMessage struct {
	CardID   string `json:"card_id"`
	Sequence uint64 `json:"sequence"`
}

type chatMessage struct {
	Text string `json:"text"`
}

// Router accepts inbound client events and serializes them onto the owning
// room's command queue. Submitting returns once the event is enqueued, never
// after processing, so transport goroutines stay non-blocking.
type Router struct {
	registry *registry.Registry
}

func NewRouter(reg *registry.Registry) *Router {
	return &Router{registry: reg}
}

// Dispatch parses one inbound frame from a connection and submits it to the
// connection's room. Parse and routing failures are answered on the same
// connection as typed error events; they never tear the connection down.
func (rt *Router) Dispatch(conn *Connection, raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		rt.replyError(conn, "stale_action", "malformed message")
		return
	}

	rm, err := rt.registry.GetRoom(conn.RoomID)
	if err != nil {
		rt.replyError(conn, "not_found", "room not found")
		return
	}

	token := conn.SeatToken()

	switch msg.Type {
	case MsgJoin:
		var join joinMessage
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &join); err != nil {
				rt.replyError(conn, "stale_action", "malformed join payload")
				return
			}
		}
		reconnectToken := uuid.Nil
		if join.SeatToken != "" {
			reconnectToken, err = uuid.Parse(join.SeatToken)
			if err != nil {
				rt.replyError(conn, "not_found", "malformed seat token")
				return
			}
		}
		err = rm.SubmitJoin(reconnectToken, join.Name, conn.Reply)

	case MsgPick:
		var pick pickMessage
		if err := json.Unmarshal(msg.Data, &pick); err != nil {
			rt.replyError(conn, "stale_action", "malformed pick payload")
			return
		}
		err = rm.SubmitPick(token, pick.CardID, pick.Sequence, conn.Reply)

	case MsgLeave:
		err = rm.SubmitLeave(token, conn.Reply)
		conn.bindSeat(-1, uuid.Nil)

	case MsgStart:
		err = rm.SubmitStart(token, conn.Reply)

	case MsgChat:
		var chat chatMessage
		if err := json.Unmarshal(msg.Data, &chat); err != nil {
			rt.replyError(conn, "stale_action", "malformed chat payload")
			return
		}
		err = rm.SubmitChat(token, chat.Text, conn.Reply)

	case MsgSnapshot:
		err = rm.SubmitSnapshot(token, conn.Reply)

	default:
		rt.replyError(conn, "stale_action", "unknown event type: "+msg.Type)
		return
	}

	if err != nil {
		rt.submitError(conn, err)
	}
}

// ConnectionClosed tells the room a bound seat lost its transport, starting
// the grace window. Spectator connections just unsubscribe.
func (rt *Router) ConnectionClosed(conn *Connection) {
	token := conn.SeatToken()
	if token == uuid.Nil {
		return
	}
	rm, err := rt.registry.GetRoom(conn.RoomID)
	if err != nil {
		return
	}
	if err := rm.SubmitDisconnect(token); err != nil {
		log.Warn().Err(err).
			Str("room_id", conn.RoomID.String()).
			Str("connection_id", conn.ID).
			Msg("failed to submit disconnect")
	}
}

func (rt *Router) submitError(conn *Connection, err error) {
	switch {
	case errors.Is(err, room.ErrClosed), errors.Is(err, registry.ErrNotFound):
		rt.replyError(conn, "not_found", "room not found")
	case errors.Is(err, room.ErrQueueFull):
		rt.replyError(conn, "stale_action", "room busy, retry")
	default:
		rt.replyError(conn, "internal_error", err.Error())
	}
}

func (rt *Router) replyError(conn *Connection, code, message string) {
	conn.Reply(events.New(conn.RoomID, events.TypeError, time.Now(), events.ErrorPayload{
		Code:    code,
		Message: message,
	}))
}
