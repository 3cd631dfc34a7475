package gateway

import (
	"context"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Service is the realtime gateway: it owns viewer sessions, fans committed
// events out to rooms and relays them to other instances.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	relay             Relay
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

// NewService creates a new gateway service. relay may be nil.
func NewService(config Config, state StateProvider, auth Authenticator, relay Relay) *Service {
	if relay == nil {
		relay = noopRelay{}
	}
	cm := NewConnectionManager(config.ConnectionConfig, state, relay)
	return &Service{
		connectionManager: cm,
		wsHandler:         NewWebSocketHandler(cm, auth, state),
		relay:             relay,
	}
}

// Start runs the gateway until ctx is done, then closes the relay.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting auction gateway service")
	s.connectionManager.Start(ctx)

	if err := s.relay.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close relay")
		return err
	}
	log.Info().Msg("auction gateway service stopped")
	return nil
}

// RegisterRoutes mounts the socket endpoint and the stats endpoint.
func (s *Service) RegisterRoutes(r chi.Router) {
	r.Get("/ws", s.wsHandler.HandleConnection)
	r.Get("/api/gateway/stats", s.wsHandler.HandleConnectionStats)
	log.Info().Msg("auction gateway routes registered")
}

// Stats returns statistics about the gateway service
func (s *Service) Stats() Stats {
	return s.connectionManager.GetConnectionStats()
}

// Publish builds an event and queues it for room.
func (s *Service) Publish(room string, t EventType, payload any) {
	ev, err := NewEvent(t, payload)
	if err != nil {
		log.Error().Err(err).Str("room", room).Msg("failed to build event")
		return
	}
	s.connectionManager.BroadcastToRoom(room, ev)
}

// PublishToUser builds an event and queues it for every session of userID.
func (s *Service) PublishToUser(userID uuid.UUID, t EventType, payload any) {
	ev, err := NewEvent(t, payload)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID.String()).Msg("failed to build event")
		return
	}
	s.connectionManager.BroadcastToUser(userID, ev)
}
