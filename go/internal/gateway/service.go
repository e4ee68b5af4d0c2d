package gateway

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/twinsuns/draftdeck/go/internal/registry"
)

// Service is the draft gateway: WebSocket subscriptions in, room broadcasts
// out, plus the room HTTP surface.
type Service struct {
	connectionManager *ConnectionManager
	router            *Router
	wsHandler         *WebSocketHandler
	roomsHandler      *RoomsHandler
	health            *HealthChecker
}

// Config holds configuration for the draft gateway service.
type Config struct {
	ConnectionConfig ConnectionConfig
	RoomDefaults     RoomDefaults
}

// NewService wires the gateway around an existing ConnectionManager. The
// manager is built first by the caller because the registry needs it as the
// rooms' broadcaster before the gateway itself exists.
func NewService(config Config, reg *registry.Registry, cm *ConnectionManager, archive ArchiveHealth) *Service {
	router := NewRouter(reg)
	cm.SetRouter(router)

	return &Service{
		connectionManager: cm,
		router:            router,
		wsHandler:         NewWebSocketHandler(cm),
		roomsHandler:      NewRoomsHandler(reg, config.RoomDefaults),
		health:            NewHealthChecker(reg, cm, archive),
	}
}

// Start runs the broadcast drain until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	s.connectionManager.Start(ctx)
}

// RegisterRoutes registers the gateway's HTTP routes.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.roomsHandler.RegisterRoutes(mux)
	mux.Handle("/health", s.health)
	log.Info().Msg("draft gateway routes registered")
}
