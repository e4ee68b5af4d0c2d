package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twinsuns/draftdeck/go/internal/cards"
	"github.com/twinsuns/draftdeck/go/internal/events"
	"github.com/twinsuns/draftdeck/go/internal/registry"
	"github.com/twinsuns/draftdeck/go/internal/room"
)

type nopBroadcaster struct{}

func (nopBroadcaster) Broadcast(uuid.UUID, events.Event)       {}
func (nopBroadcaster) SendToSeat(uuid.UUID, int, events.Event) {}

type nopSink struct{}

func (nopSink) RecordPick(uuid.UUID, room.PickRecord) {}
func (nopSink) RoomCompleted(uuid.UUID, time.Time)    {}

func makeCards(n int) []cards.Card {
	out := make([]cards.Card, n)
	for i := range out {
		out[i] = cards.Card{ID: fmt.Sprintf("c%03d", i), Name: fmt.Sprintf("Card %d", i)}
	}
	return out
}

func testRegistry() *registry.Registry {
	catalog := cards.NewStaticCatalog(map[string][]cards.Card{"TWI": makeCards(60)})
	return registry.New(registry.DefaultConfig(), catalog, nopBroadcaster{}, nopSink{}, clockwork.NewRealClock())
}

func testDefaults() RoomDefaults {
	return RoomDefaults{
		SeatCount:    2,
		MinSeats:     2,
		PacksPerSeat: 2,
		PackSize:     3,
		PickTimeout:  time.Minute,
		GracePeriod:  time.Minute,
	}
}

func TestHandleCreateRoom(t *testing.T) {
	h := NewRoomsHandler(testRegistry(), testDefaults())

	req := httptest.NewRequest(http.MethodPost, "/api/rooms",
		strings.NewReader(`{"set_code":"TWI"}`))
	rec := httptest.NewRecorder()
	h.HandleCreateRoom(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp createRoomResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	_, err := uuid.Parse(resp.RoomID)
	assert.NoError(t, err)
}

func TestHandleCreateRoomValidation(t *testing.T) {
	h := NewRoomsHandler(testRegistry(), testDefaults())

	cases := []struct {
		name string
		body string
		want int
	}{
		{"missing set code", `{}`, http.StatusBadRequest},
		{"unknown set", `{"set_code":"NOPE"}`, http.StatusBadRequest},
		{"impossible shape", `{"set_code":"TWI","pack_size":500}`, http.StatusBadRequest},
		{"malformed body", `{`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/rooms", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			h.HandleCreateRoom(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestHandleCreateRoomAtCapacity(t *testing.T) {
	reg := registry.New(registry.Config{MaxRooms: 0, SweepInterval: time.Minute, Retention: time.Minute, FillTimeout: time.Minute},
		cards.NewStaticCatalog(map[string][]cards.Card{"TWI": makeCards(60)}),
		nopBroadcaster{}, nopSink{}, clockwork.NewRealClock())
	h := NewRoomsHandler(reg, testDefaults())

	req := httptest.NewRequest(http.MethodPost, "/api/rooms",
		strings.NewReader(`{"set_code":"TWI"}`))
	rec := httptest.NewRecorder()
	h.HandleCreateRoom(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleRoomState(t *testing.T) {
	reg := testRegistry()
	h := NewRoomsHandler(reg, testDefaults())

	cfg := room.Config{
		SetCode: "TWI", SeatCount: 2, MinSeats: 2, PacksPerSeat: 2, PackSize: 3,
		PickTimeout: time.Minute, GracePeriod: time.Minute, Seed: 1,
	}
	id, err := reg.CreateRoom(httptest.NewRequest(http.MethodGet, "/", nil).Context(), cfg)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/rooms/"+id.String()+"/state", nil)
	rec := httptest.NewRecorder()
	h.HandleRoomState(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var ev events.Event
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&ev))
	assert.Equal(t, events.TypeStateSnapshot, ev.Type)

	var snap events.StateSnapshotPayload
	require.NoError(t, json.Unmarshal(ev.Data, &snap))
	assert.Equal(t, "WAITING", snap.Phase)
	assert.Len(t, snap.Seats, 2)
	assert.Nil(t, snap.Pack, "spectator view carries no pack")
}

func TestHandleRoomStateErrors(t *testing.T) {
	h := NewRoomsHandler(testRegistry(), testDefaults())

	req := httptest.NewRequest(http.MethodGet, "/api/rooms/not-a-uuid/state", nil)
	rec := httptest.NewRecorder()
	h.HandleRoomState(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/rooms/"+uuid.NewString()+"/state", nil)
	rec = httptest.NewRecorder()
	h.HandleRoomState(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExtractRoomID(t *testing.T) {
	assert.Equal(t, "abc", extractRoomID("/api/rooms/abc/state"))
	assert.Equal(t, "abc", extractRoomID("/api/rooms/abc"))
	assert.Equal(t, "", extractRoomID("/api/rooms"))
	assert.Equal(t, "", extractRoomID("/healthz"))
}
