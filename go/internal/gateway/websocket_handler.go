package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mcdev12/gavel/go/internal/apperr"
	"github.com/mcdev12/gavel/go/internal/auth"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler authenticates and upgrades viewer connections.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	auth              Authenticator
	state             StateProvider
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager, authn Authenticator, state StateProvider) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		auth:              authn,
		state:             state,
	}
}

// sessionToken reads the credential from the token query parameter, falling
// back to a bearer Authorization header.
func sessionToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	return auth.BearerToken(r.Header.Get("Authorization"))
}

// HandleConnection rejects the handshake when the credential is missing,
// invalid or belongs to a blocked user. An accepted session immediately
// receives the list of active auctions.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	token := sessionToken(r)
	if token == "" {
		http.Error(w, "authentication token required", http.StatusUnauthorized)
		return
	}

	userID, err := h.auth.AuthenticateSession(r.Context(), token)
	if err != nil {
		log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("rejected WebSocket connection")
		http.Error(w, apperr.PublicMessage(err), apperr.HTTPStatus(err))
		return
	}

	if _, err := h.connectionManager.UpgradeConnection(w, r, userID, h.sendActiveAuctions); err != nil {
		// The upgrader has already written the HTTP error response.
		log.Error().
			Err(err).
			Str("user_id", userID.String()).
			Msg("failed to upgrade WebSocket connection")
		return
	}
}

func (h *WebSocketHandler) sendActiveAuctions(conn *Connection) {
	ctx, cancel := context.WithTimeout(context.Background(), h.connectionManager.config.CommandTimeout)
	defer cancel()
	auctions, err := h.state.ActiveAuctions(ctx)
	if err != nil {
		conn.replyError("connect", err)
		return
	}
	conn.sendEvent(EventAuctionsActive, auctions)
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.connectionManager.GetConnectionStats()); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}
