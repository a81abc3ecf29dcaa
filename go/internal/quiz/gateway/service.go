package gateway

import (
	"context"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Service is the quiz gateway: WebSocket connections plus the room HTTP API
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
	}
}

// NewService creates a new gateway service. The state provider and message
// handler are attached later, once the engine exists.
func NewService(config Config, clock clockwork.Clock) *Service {
	connectionManager := NewConnectionManager(config.ConnectionConfig, clock)
	return &Service{
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager),
	}
}

// ConnectionManager exposes the manager so the engine can broadcast through it.
func (s *Service) ConnectionManager() *ConnectionManager {
	return s.connectionManager
}

// Attach wires the engine into the gateway.
func (s *Service) Attach(handler MessageHandler, provider StateProvider) {
	s.connectionManager.SetHandler(handler)
	s.stateHandler = NewStateHandler(provider)
}

// Start begins the gateway service and blocks until ctx is cancelled
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting quiz gateway service")

	s.connectionManager.Start(ctx)

	log.Info().Msg("quiz gateway service stopped")
	return nil
}

// RegisterRoutes registers the WebSocket and HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	if s.stateHandler != nil {
		s.stateHandler.RegisterStateRoutes(mux)
	}
	log.Info().Msg("quiz gateway routes registered")
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() map[string]interface{} {
	stats := s.connectionManager.GetConnectionStats()
	stats["service"] = "quiz_gateway"
	stats["status"] = "running"
	return stats
}
