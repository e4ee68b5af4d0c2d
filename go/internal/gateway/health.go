package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/twinsuns/draftdeck/go/internal/registry"
	"github.com/twinsuns/draftdeck/go/internal/room"
)

// HealthStatus is the monitoring view of the coordinator: live room counts
// by phase plus transport and collaborator connectivity.
type HealthStatus struct {
	Healthy          bool           `json:"healthy"`
	ActiveRooms      int            `json:"active_rooms"`
	RoomsByPhase     map[string]int `json:"rooms_by_phase"`
	TotalConnections int            `json:"total_connections"`
	ArchiveConnected *bool          `json:"archive_connected,omitempty"`
	Errors           []string       `json:"errors"`
}

// ArchiveHealth is implemented by archive publishers that can report their
// bus connectivity. Optional; nil means no archive is configured.
type ArchiveHealth interface {
	Connected() bool
}

// HealthChecker aggregates coordinator health for the /health endpoint. It
// only reads summaries; it has no mutation access to any room.
type HealthChecker struct {
	registry *registry.Registry
	cm       *ConnectionManager
	archive  ArchiveHealth
}

func NewHealthChecker(reg *registry.Registry, cm *ConnectionManager, archive ArchiveHealth) *HealthChecker {
	return &HealthChecker{registry: reg, cm: cm, archive: archive}
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy:      true,
		RoomsByPhase: make(map[string]int),
		Errors:       []string{},
	}

	summaries := h.registry.ListActive()
	for _, sum := range summaries {
		status.RoomsByPhase[string(sum.Phase)]++
		if sum.Phase == room.PhaseWaiting || sum.Phase == room.PhaseActive || sum.Phase == room.PhaseRoundBreak {
			status.ActiveRooms++
		}
	}

	status.TotalConnections = h.cm.GetStats().TotalConnections

	if h.archive != nil {
		connected := h.archive.Connected()
		status.ArchiveConnected = &connected
		if !connected {
			status.Healthy = false
			status.Errors = append(status.Errors, "archive bus disconnected")
		}
	}

	return status
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(status)
}
