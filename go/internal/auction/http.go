package auction

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/mcdev12/gavel/go/internal/apperr"
	"github.com/mcdev12/gavel/go/internal/auth"
	"github.com/mcdev12/gavel/go/internal/gateway"
	"github.com/mcdev12/gavel/go/internal/models"
	"github.com/rs/zerolog/log"
)

// ReadApp defines what the read endpoints need from the coordinator
type ReadApp interface {
	GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error)
	ActiveAuctions(ctx context.Context) ([]models.Auction, error)
	JoinState(ctx context.Context, auctionID uuid.UUID) (*gateway.AuctionState, error)
	ItemBids(ctx context.Context, itemID uuid.UUID) ([]models.Bid, error)
	UserBids(ctx context.Context, userID uuid.UUID) ([]models.Bid, error)
	UserWinningBids(ctx context.Context, userID uuid.UUID) ([]models.Bid, error)
}

// ReadHandler serves the JSON read endpoints.
type ReadHandler struct {
	app ReadApp
}

// NewReadHandler creates a new read handler
func NewReadHandler(app ReadApp) *ReadHandler {
	return &ReadHandler{app: app}
}

// RegisterRoutes mounts the read endpoints on r. Callers are expected to
// install authentication middleware on r.
func (h *ReadHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/auctions/active", h.handleActiveAuctions)
	r.Get("/api/auctions/{id}", h.handleGetAuction)
	r.Get("/api/auctions/{id}/state", h.handleAuctionState)
	r.Get("/api/items/{id}/bids", h.handleItemBids)
	r.Get("/api/users/{id}/bids", h.handleUserBids)
	r.Get("/api/users/{id}/winning-bids", h.handleUserWinningBids)
}

func (h *ReadHandler) handleActiveAuctions(w http.ResponseWriter, r *http.Request) {
	auctions, err := h.app.ActiveAuctions(r.Context())
	respond(w, auctions, err)
}

func (h *ReadHandler) handleGetAuction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	auction, err := h.app.GetAuction(r.Context(), id)
	respond(w, auction, err)
}

func (h *ReadHandler) handleAuctionState(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	state, err := h.app.JoinState(r.Context(), id)
	respond(w, state, err)
}

func (h *ReadHandler) handleItemBids(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	bids, err := h.app.ItemBids(r.Context(), id)
	respond(w, bids, err)
}

func (h *ReadHandler) handleUserBids(w http.ResponseWriter, r *http.Request) {
	id, err := h.ownUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	bids, err := h.app.UserBids(r.Context(), id)
	respond(w, bids, err)
}

func (h *ReadHandler) handleUserWinningBids(w http.ResponseWriter, r *http.Request) {
	id, err := h.ownUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	bids, err := h.app.UserWinningBids(r.Context(), id)
	respond(w, bids, err)
}

// ownUserID returns the user in the path if the caller is that user or an
// admin. "me" names the caller.
func (h *ReadHandler) ownUserID(r *http.Request) (uuid.UUID, error) {
	p, err := auth.RequirePrincipal(r.Context())
	if err != nil {
		return uuid.Nil, err
	}
	if chi.URLParam(r, "id") == "me" {
		return p.UserID, nil
	}
	id, err := pathID(r)
	if err != nil {
		return uuid.Nil, err
	}
	if id != p.UserID && !p.IsAdmin() {
		return uuid.Nil, apperr.Forbidden("cannot read another user's bids")
	}
	return id, nil
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid id %q", chi.URLParam(r, "id"))
	}
	return id, nil
}

func respond(w http.ResponseWriter, body any, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func writeError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Msg("read endpoint failed")
	}
	writeJSON(w, status, map[string]string{
		"error":   apperr.KindOf(err).String(),
		"message": apperr.PublicMessage(err),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
