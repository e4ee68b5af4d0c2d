package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/twinsuns/draftdeck/go/internal/cards"
	"github.com/twinsuns/draftdeck/go/internal/events"
	"github.com/twinsuns/draftdeck/go/internal/registry"
	"github.com/twinsuns/draftdeck/go/internal/room"
)

// RoomDefaults are the server-side bounds applied to create requests.
type RoomDefaults struct {
	SeatCount    int
	MinSeats     int
	PacksPerSeat int
	PackSize     int
	PickTimeout  time.Duration
	GracePeriod  time.Duration
	RoundBreak   time.Duration
}

// RoomsHandler serves room creation and the state snapshot used for
// sequence-gap resync.
type RoomsHandler struct {
	registry *registry.Registry
	defaults RoomDefaults
}

func NewRoomsHandler(reg *registry.Registry, defaults RoomDefaults) *RoomsHandler {
	return &RoomsHandler{registry: reg, defaults: defaults}
}

type createRoomRequest struct {
	SetCode      string `json:"set_code"`
	SeatCount    int    `json:"seat_count,omitempty"`
	PacksPerSeat int    `json:"packs_per_seat,omitempty"`
	PackSize     int    `json:"pack_size,omitempty"`
	Seed         int64  `json:"seed,omitempty"`
}

type createRoomResponse struct {
	RoomID string `json:"room_id"`
}

// HandleCreateRoom handles POST /api/rooms.
func (h *RoomsHandler) HandleCreateRoom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if req.SetCode == "" {
		http.Error(w, "set_code is required", http.StatusBadRequest)
		return
	}

	cfg := room.Config{
		SetCode:      req.SetCode,
		SeatCount:    h.defaults.SeatCount,
		MinSeats:     h.defaults.MinSeats,
		PacksPerSeat: h.defaults.PacksPerSeat,
		PackSize:     h.defaults.PackSize,
		PickTimeout:  h.defaults.PickTimeout,
		GracePeriod:  h.defaults.GracePeriod,
		RoundBreak:   h.defaults.RoundBreak,
		Seed:         req.Seed,
	}
	if req.SeatCount > 0 {
		cfg.SeatCount = req.SeatCount
	}
	if req.PacksPerSeat > 0 {
		cfg.PacksPerSeat = req.PacksPerSeat
	}
	if req.PackSize > 0 {
		cfg.PackSize = req.PackSize
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	roomID, err := h.registry.CreateRoom(r.Context(), cfg)
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrCapacity):
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
		case errors.Is(err, cards.ErrConfiguration), errors.Is(err, cards.ErrSetNotFound):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			log.Error().Err(err).Msg("room creation failed")
			http.Error(w, "room creation failed", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(createRoomResponse{RoomID: roomID.String()})
}

// HandleRoomState handles GET /api/rooms/{id}/state. The spectator snapshot
// is public; a seat_token query parameter unlocks the occupant view.
func (h *RoomsHandler) HandleRoomState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	roomIDStr := extractRoomID(r.URL.Path)
	roomID, err := uuid.Parse(roomIDStr)
	if err != nil {
		http.Error(w, "invalid room id", http.StatusBadRequest)
		return
	}

	rm, err := h.registry.GetRoom(roomID)
	if err != nil {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	token := uuid.Nil
	if t := r.URL.Query().Get("seat_token"); t != "" {
		if token, err = uuid.Parse(t); err != nil {
			http.Error(w, "malformed seat token", http.StatusBadRequest)
			return
		}
	}

	// The snapshot rides the room's command queue like everything else, so
	// it reflects a consistent point in the event order.
	replyCh := make(chan events.Event, 1)
	err = rm.SubmitSnapshot(token, func(ev events.Event) {
		select {
		case replyCh <- ev:
		default:
		}
	})
	if err != nil {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	select {
	case ev := <-replyCh:
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ev)
	case <-time.After(5 * time.Second):
		http.Error(w, "snapshot timed out", http.StatusGatewayTimeout)
	case <-r.Context().Done():
	}
}

// extractRoomID pulls the id out of /api/rooms/{id}/state.
func extractRoomID(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, part := range parts {
		if part == "rooms" && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return ""
}

// RegisterRoutes registers the room HTTP routes.
func (h *RoomsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/rooms", h.HandleCreateRoom)
	mux.HandleFunc("/api/rooms/", h.HandleRoomState)
}
