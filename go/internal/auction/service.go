package auction

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/mcdev12/gavel/go/internal/apperr"
	"github.com/mcdev12/gavel/go/internal/audit"
	"github.com/mcdev12/gavel/go/internal/auth"
	"github.com/mcdev12/gavel/go/internal/ledger"
	"github.com/mcdev12/gavel/go/internal/models"
)

// ServiceName is the Connect service name.
const ServiceName = "gavel.auction.v1.AuctionService"

// Procedure paths of AuctionService.
const (
	PlaceBidProcedure       = "/" + ServiceName + "/PlaceBid"
	CancelBidProcedure      = "/" + ServiceName + "/CancelBid"
	CreateAuctionProcedure  = "/" + ServiceName + "/CreateAuction"
	UpdateAuctionProcedure  = "/" + ServiceName + "/UpdateAuction"
	StartAuctionProcedure   = "/" + ServiceName + "/StartAuction"
	AdvanceAuctionProcedure = "/" + ServiceName + "/AdvanceAuction"
	ExtendAuctionProcedure  = "/" + ServiceName + "/ExtendAuction"
	EndAuctionProcedure     = "/" + ServiceName + "/EndAuction"
	BlockUserProcedure      = "/" + ServiceName + "/BlockUser"
	UnblockUserProcedure    = "/" + ServiceName + "/UnblockUser"
	ListAuditProcedure      = "/" + ServiceName + "/ListAudit"
)

// CoordinatorApp defines what the service layer needs from the coordinator
type CoordinatorApp interface {
	PlaceBid(ctx context.Context, bidderID uuid.UUID, req PlaceBidRequest) (*models.Bid, error)
	CancelBid(ctx context.Context, adminID uuid.UUID, req CancelBidRequest) (*ledger.CancelBidResult, error)
	CreateAuction(ctx context.Context, adminID uuid.UUID, req CreateAuctionRequest) (*models.Auction, error)
	UpdateAuction(ctx context.Context, adminID uuid.UUID, req UpdateAuctionRequest) (*models.Auction, error)
	StartAuction(ctx context.Context, adminID, auctionID uuid.UUID) (*models.Auction, error)
	AdvanceAuction(ctx context.Context, adminID uuid.UUID, req AdvanceAuctionRequest) (*models.Auction, error)
	ExtendAuction(ctx context.Context, adminID uuid.UUID, req ExtendAuctionRequest) (*models.Auction, error)
	EndAuction(ctx context.Context, adminID, auctionID uuid.UUID) (*models.Auction, error)
	BlockUser(ctx context.Context, adminID, userID uuid.UUID) (*models.User, error)
	UnblockUser(ctx context.Context, adminID, userID uuid.UUID) (*models.User, error)
	ListAudit(ctx context.Context, adminID uuid.UUID, filter audit.Filter) ([]models.AuditEntry, error)
}

// Service implements the AuctionService Connect handlers. Every call must
// carry a bearer credential; the interceptor installed by NewHandler
// resolves it to the caller.
type Service struct {
	app CoordinatorApp
}

// NewService creates a new auction Connect service
func NewService(app CoordinatorApp) *Service {
	return &Service{app: app}
}

// NewHandler builds the HTTP handler serving every procedure, in the shape
// of a generated Connect service handler: mount it at the returned path.
func NewHandler(svc *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(JSONCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(PlaceBidProcedure, connect.NewUnaryHandler(PlaceBidProcedure, svc.PlaceBid, opts...))
	mux.Handle(CancelBidProcedure, connect.NewUnaryHandler(CancelBidProcedure, svc.CancelBid, opts...))
	mux.Handle(CreateAuctionProcedure, connect.NewUnaryHandler(CreateAuctionProcedure, svc.CreateAuction, opts...))
	mux.Handle(UpdateAuctionProcedure, connect.NewUnaryHandler(UpdateAuctionProcedure, svc.UpdateAuction, opts...))
	mux.Handle(StartAuctionProcedure, connect.NewUnaryHandler(StartAuctionProcedure, svc.StartAuction, opts...))
	mux.Handle(AdvanceAuctionProcedure, connect.NewUnaryHandler(AdvanceAuctionProcedure, svc.AdvanceAuction, opts...))
	mux.Handle(ExtendAuctionProcedure, connect.NewUnaryHandler(ExtendAuctionProcedure, svc.ExtendAuction, opts...))
	mux.Handle(EndAuctionProcedure, connect.NewUnaryHandler(EndAuctionProcedure, svc.EndAuction, opts...))
	mux.Handle(BlockUserProcedure, connect.NewUnaryHandler(BlockUserProcedure, svc.BlockUser, opts...))
	mux.Handle(UnblockUserProcedure, connect.NewUnaryHandler(UnblockUserProcedure, svc.UnblockUser, opts...))
	mux.Handle(ListAuditProcedure, connect.NewUnaryHandler(ListAuditProcedure, svc.ListAudit, opts...))
	return "/" + ServiceName + "/", mux
}

func caller(ctx context.Context) (uuid.UUID, error) {
	p, err := auth.RequirePrincipal(ctx)
	if err != nil {
		return uuid.Nil, apperr.ToConnect(err)
	}
	return p.UserID, nil
}

// PlaceBid places a bid for the caller
func (s *Service) PlaceBid(ctx context.Context, req *connect.Request[PlaceBidRequest]) (*connect.Response[PlaceBidResponse], error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	bid, err := s.app.PlaceBid(ctx, userID, *req.Msg)
	if err != nil {
		return nil, apperr.ToConnect(err)
	}
	return connect.NewResponse(&PlaceBidResponse{Bid: bid}), nil
}

// CancelBid cancels a bid (admin)
func (s *Service) CancelBid(ctx context.Context, req *connect.Request[CancelBidRequest]) (*connect.Response[CancelBidResponse], error) {
	adminID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	res, err := s.app.CancelBid(ctx, adminID, *req.Msg)
	if err != nil {
		return nil, apperr.ToConnect(err)
	}
	return connect.NewResponse(&CancelBidResponse{
		Bid:          res.Bid,
		CurrentValue: res.Item.CurrentValue,
		Promoted:     res.Promoted,
	}), nil
}

// CreateAuction creates an auction (admin)
func (s *Service) CreateAuction(ctx context.Context, req *connect.Request[CreateAuctionRequest]) (*connect.Response[AuctionResponse], error) {
	adminID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	auction, err := s.app.CreateAuction(ctx, adminID, *req.Msg)
	return auctionResponse(auction, err)
}

// UpdateAuction updates an auction (admin)
func (s *Service) UpdateAuction(ctx context.Context, req *connect.Request[UpdateAuctionRequest]) (*connect.Response[AuctionResponse], error) {
	adminID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	auction, err := s.app.UpdateAuction(ctx, adminID, *req.Msg)
	return auctionResponse(auction, err)
}

// StartAuction starts an auction (admin)
func (s *Service) StartAuction(ctx context.Context, req *connect.Request[AuctionRequest]) (*connect.Response[AuctionResponse], error) {
	adminID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	auction, err := s.app.StartAuction(ctx, adminID, req.Msg.AuctionID)
	return auctionResponse(auction, err)
}

// AdvanceAuction moves an auction to its next item (admin)
func (s *Service) AdvanceAuction(ctx context.Context, req *connect.Request[AdvanceAuctionRequest]) (*connect.Response[AuctionResponse], error) {
	adminID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	auction, err := s.app.AdvanceAuction(ctx, adminID, *req.Msg)
	return auctionResponse(auction, err)
}

// ExtendAuction extends the current item's deadline (admin)
func (s *Service) ExtendAuction(ctx context.Context, req *connect.Request[ExtendAuctionRequest]) (*connect.Response[AuctionResponse], error) {
	adminID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	auction, err := s.app.ExtendAuction(ctx, adminID, *req.Msg)
	return auctionResponse(auction, err)
}

// EndAuction ends an auction early (admin)
func (s *Service) EndAuction(ctx context.Context, req *connect.Request[AuctionRequest]) (*connect.Response[AuctionResponse], error) {
	adminID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	auction, err := s.app.EndAuction(ctx, adminID, req.Msg.AuctionID)
	return auctionResponse(auction, err)
}

// BlockUser blocks a participant (admin)
func (s *Service) BlockUser(ctx context.Context, req *connect.Request[UserRequest]) (*connect.Response[UserResponse], error) {
	adminID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	user, err := s.app.BlockUser(ctx, adminID, req.Msg.UserID)
	if err != nil {
		return nil, apperr.ToConnect(err)
	}
	return connect.NewResponse(&UserResponse{User: user}), nil
}

// UnblockUser unblocks a participant (admin)
func (s *Service) UnblockUser(ctx context.Context, req *connect.Request[UserRequest]) (*connect.Response[UserResponse], error) {
	adminID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	user, err := s.app.UnblockUser(ctx, adminID, req.Msg.UserID)
	if err != nil {
		return nil, apperr.ToConnect(err)
	}
	return connect.NewResponse(&UserResponse{User: user}), nil
}

// ListAudit lists audit entries (admin)
func (s *Service) ListAudit(ctx context.Context, req *connect.Request[ListAuditRequest]) (*connect.Response[ListAuditResponse], error) {
	adminID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := s.app.ListAudit(ctx, adminID, audit.Filter{
		Action: req.Msg.Action,
		UserID: req.Msg.UserID,
		Limit:  req.Msg.Limit,
	})
	if err != nil {
		return nil, apperr.ToConnect(err)
	}
	return connect.NewResponse(&ListAuditResponse{Entries: entries}), nil
}

func auctionResponse(auction *models.Auction, err error) (*connect.Response[AuctionResponse], error) {
	if err != nil {
		return nil, apperr.ToConnect(err)
	}
	return connect.NewResponse(&AuctionResponse{Auction: auction}), nil
}
