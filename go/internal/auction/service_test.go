package auction_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/go-chi/chi/v5"
	"github.com/mcdev12/gavel/go/internal/auction"
	"github.com/mcdev12/gavel/go/internal/auth"
	"github.com/mcdev12/gavel/go/internal/gateway"
	"github.com/mcdev12/gavel/go/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (h *harness) token(t *testing.T, u models.User) string {
	t.Helper()
	tok, err := h.Issuer.Issue(u.ID, u.Role)
	require.NoError(t, err)
	return tok
}

func (h *harness) connectServer(t *testing.T) *httptest.Server {
	t.Helper()
	path, handler := auction.NewHandler(auction.NewService(h.App), connect.WithInterceptors(auth.NewInterceptor(h.Issuer)))
	mux := http.NewServeMux()
	mux.Handle(path, handler)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func call[Req, Res any](t *testing.T, server *httptest.Server, procedure, token string, msg *Req) (*Res, error) {
	t.Helper()
	client := connect.NewClient[Req, Res](server.Client(), server.URL+procedure, connect.WithCodec(auction.JSONCodec{}))
	req := connect.NewRequest(msg)
	if token != "" {
		req.Header().Set("Authorization", "Bearer "+token)
	}
	res, err := client.CallUnary(context.Background(), req)
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func TestConnectPlaceBid(t *testing.T) {
	h := newHarness(t)
	server := h.connectServer(t)

	started, err := call[auction.AuctionRequest, auction.AuctionResponse](t, server, auction.StartAuctionProcedure,
		h.token(t, h.Admin), &auction.AuctionRequest{AuctionID: h.Scheduled.ID})
	require.NoError(t, err)
	assert.Equal(t, models.AuctionStatusActive, started.Auction.Status)

	res, err := call[auction.PlaceBidRequest, auction.PlaceBidResponse](t, server, auction.PlaceBidProcedure,
		h.token(t, h.Alice), &auction.PlaceBidRequest{ItemID: h.Vase.ID, Amount: decimal.RequireFromString("110")})
	require.NoError(t, err)
	assert.Equal(t, h.Alice.ID, res.Bid.BidderID)
	assert.True(t, res.Bid.Amount.Equal(decimal.RequireFromString("110")))
	assert.Equal(t, models.BidStatusWinning, res.Bid.Status)

	tests := []struct {
		name   string
		token  string
		amount string
		code   connect.Code
	}{
		{name: "no credential", amount: "200", code: connect.CodeUnauthenticated},
		{name: "bad credential", token: "nope", amount: "200", code: connect.CodeUnauthenticated},
		{name: "lost race", token: h.token(t, h.Bob), amount: "110", code: connect.CodeAborted},
		{name: "below increment", token: h.token(t, h.Bob), amount: "115", code: connect.CodeInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := call[auction.PlaceBidRequest, auction.PlaceBidResponse](t, server, auction.PlaceBidProcedure,
				tt.token, &auction.PlaceBidRequest{ItemID: h.Vase.ID, Amount: decimal.RequireFromString(tt.amount)})
			require.Error(t, err)
			assert.Equal(t, tt.code, connect.CodeOf(err))
		})
	}
}

func TestConnectAdminProcedures(t *testing.T) {
	h := newHarness(t)
	server := h.connectServer(t)

	_, err := call[auction.AuctionRequest, auction.AuctionResponse](t, server, auction.StartAuctionProcedure,
		h.token(t, h.Alice), &auction.AuctionRequest{AuctionID: h.Scheduled.ID})
	assert.Equal(t, connect.CodePermissionDenied, connect.CodeOf(err))

	admin := h.token(t, h.Admin)
	created, err := call[auction.CreateAuctionRequest, auction.AuctionResponse](t, server, auction.CreateAuctionProcedure,
		admin, &auction.CreateAuctionRequest{
			Name:            "Late sale",
			StartDate:       h.Clock.Now(),
			ExpectedEndDate: h.Clock.Now().Add(-1),
		})
	assert.Nil(t, created)
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	blocked, err := call[auction.UserRequest, auction.UserResponse](t, server, auction.BlockUserProcedure,
		admin, &auction.UserRequest{UserID: h.Bob.ID})
	require.NoError(t, err)
	assert.Equal(t, models.UserStatusBlocked, blocked.User.Status)

	_, err = call[auction.UserRequest, auction.UserResponse](t, server, auction.BlockUserProcedure,
		admin, &auction.UserRequest{UserID: h.Bob.ID})
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))

	entries, err := call[auction.ListAuditRequest, auction.ListAuditResponse](t, server, auction.ListAuditProcedure,
		admin, &auction.ListAuditRequest{})
	require.NoError(t, err)
	require.Len(t, entries.Entries, 1)
	assert.Equal(t, models.AuditUserBlocked, entries.Entries[0].Action)
}

func TestReadEndpoints(t *testing.T) {
	h := newHarness(t)
	a := h.start(t)
	h.bid(t, h.Alice, h.Vase, "110")

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(h.Issuer))
		auction.NewReadHandler(h.App).RegisterRoutes(r)
	})
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	get := func(t *testing.T, path, token string) *http.Response {
		t.Helper()
		req, err := http.NewRequest(http.MethodGet, server.URL+path, nil)
		require.NoError(t, err)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		res, err := server.Client().Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { res.Body.Close() })
		return res
	}

	alice := h.token(t, h.Alice)

	res := get(t, "/api/auctions/"+a.ID.String()+"/state", alice)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var state gateway.AuctionState
	require.NoError(t, json.NewDecoder(res.Body).Decode(&state))
	assert.Equal(t, h.Vase.ID, state.CurrentItem.ID)
	assert.Len(t, state.Bids, 1)

	res = get(t, "/api/auctions/active", alice)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var active []models.Auction
	require.NoError(t, json.NewDecoder(res.Body).Decode(&active))
	require.Len(t, active, 1)
	assert.Equal(t, a.ID, active[0].ID)

	res = get(t, "/api/users/me/bids", alice)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var bids []models.Bid
	require.NoError(t, json.NewDecoder(res.Body).Decode(&bids))
	assert.Len(t, bids, 1)

	assert.Equal(t, http.StatusForbidden, get(t, "/api/users/"+h.Alice.ID.String()+"/bids", h.token(t, h.Bob)).StatusCode)
	assert.Equal(t, http.StatusOK, get(t, "/api/users/"+h.Alice.ID.String()+"/winning-bids", h.token(t, h.Admin)).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, get(t, "/api/auctions/active", "").StatusCode)
	assert.Equal(t, http.StatusBadRequest, get(t, "/api/items/not-a-uuid/bids", alice).StatusCode)

	res = get(t, "/api/auctions/"+h.Vase.ID.String(), alice)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, "not_found", body["error"])
}
