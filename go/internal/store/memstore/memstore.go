// Package memstore is an in-process implementation of every repository the
// engine uses. It backs tests and single-instance development runs.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/mcdev12/gavel/go/internal/apperr"
	"github.com/mcdev12/gavel/go/internal/audit"
	"github.com/mcdev12/gavel/go/internal/ledger"
	"github.com/mcdev12/gavel/go/internal/models"
	"github.com/mcdev12/gavel/go/internal/sequencer"
	"github.com/mcdev12/gavel/go/internal/users"
	"github.com/shopspring/decimal"
)

// Store keeps all records in maps guarded by one mutex. Units of work hold
// the mutex for their whole duration and restore a snapshot on failure.
type Store struct {
	mu         sync.RWMutex
	users      map[uuid.UUID]*models.User
	categories map[uuid.UUID]*models.Category
	items      map[uuid.UUID]*models.Item
	auctions   map[uuid.UUID]*models.Auction
	bids       map[uuid.UUID]*models.Bid
	itemBids   map[uuid.UUID][]uuid.UUID // insertion order
	audit      []models.AuditEntry
}

var (
	_ ledger.BidRepository        = (*Store)(nil)
	_ sequencer.AuctionRepository = (*Store)(nil)
	_ audit.AuditRepository       = (*Store)(nil)
	_ users.UsersRepository       = (*Store)(nil)
)

// New creates an empty store
func New() *Store {
	return &Store{
		users:      make(map[uuid.UUID]*models.User),
		categories: make(map[uuid.UUID]*models.Category),
		items:      make(map[uuid.UUID]*models.Item),
		auctions:   make(map[uuid.UUID]*models.Auction),
		bids:       make(map[uuid.UUID]*models.Bid),
		itemBids:   make(map[uuid.UUID][]uuid.UUID),
	}
}

// Users

func (s *Store) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return apperr.Conflict("user with email %s already exists", user.Email)
		}
	}
	c := *user
	s.users[user.ID] = &c
	return nil
}

func (s *Store) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, apperr.NotFound("user %s not found", id)
	}
	c := *u
	return &c, nil
}

func (s *Store) ListUsers(_ context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })
	return users, nil
}

func (s *Store) SetUserStatus(_ context.Context, id uuid.UUID, status models.UserStatus) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, apperr.NotFound("user %s not found", id)
	}
	u.Status = status
	c := *u
	return &c, nil
}

// Catalog

// CreateCategory adds a category
func (s *Store) CreateCategory(_ context.Context, c *models.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := *c
	s.categories[c.ID] = &v
	return nil
}

// CreateItem adds an item. Its current value starts at the initial value.
func (s *Store) CreateItem(_ context.Context, item *models.Item) error {
	if !item.InitialValue.IsPositive() || !item.MinimumIncrement.IsPositive() {
		return apperr.Validation("initial value and minimum increment must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categories[item.CategoryID]; !ok {
		return apperr.NotFound("category %s not found", item.CategoryID)
	}
	c := item.Clone()
	c.AuctionID = nil
	c.CurrentValue = item.InitialValue
	s.items[item.ID] = c
	return nil
}

func (s *Store) GetItem(_ context.Context, id uuid.UUID) (*models.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return nil, apperr.NotFound("item %s not found", id)
	}
	return item.Clone(), nil
}

func (s *Store) GetItems(_ context.Context, ids []uuid.UUID) ([]models.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var items []models.Item
	for _, id := range ids {
		if item, ok := s.items[id]; ok {
			items = append(items, *item.Clone())
		}
	}
	return items, nil
}

// Bids

func (s *Store) GetBid(_ context.Context, id uuid.UUID) (*models.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bidLocked(id)
}

func (s *Store) GetLeadingBid(_ context.Context, itemID uuid.UUID) (*models.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.leadingLocked(itemID)
}

func (s *Store) ListItemBids(_ context.Context, itemID uuid.UUID) ([]models.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.itemBidsLocked(itemID, nil), nil
}

func (s *Store) ListUserBids(_ context.Context, userID uuid.UUID) ([]models.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userBidsLocked(userID, func(*models.Bid) bool { return true }), nil
}

func (s *Store) ListUserWinningBids(_ context.Context, userID uuid.UUID) ([]models.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userBidsLocked(userID, (*models.Bid).IsLeading), nil
}

func (s *Store) bidLocked(id uuid.UUID) (*models.Bid, error) {
	b, ok := s.bids[id]
	if !ok {
		return nil, apperr.NotFound("bid %s not found", id)
	}
	return s.withName(b), nil
}

func (s *Store) withName(b *models.Bid) *models.Bid {
	c := b.Clone()
	if u, ok := s.users[b.BidderID]; ok {
		c.BidderName = u.Name
	}
	return c
}

func (s *Store) leadingLocked(itemID uuid.UUID) (*models.Bid, error) {
	for _, id := range s.itemBids[itemID] {
		if b := s.bids[id]; b.IsLeading() {
			return s.withName(b), nil
		}
	}
	return nil, ledger.ErrNoWinningBid
}

// itemBidsLocked returns the item's bids newest first, optionally filtered.
func (s *Store) itemBidsLocked(itemID uuid.UUID, keep func(*models.Bid) bool) []models.Bid {
	ids := s.itemBids[itemID]
	bids := make([]models.Bid, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		b := s.bids[ids[i]]
		if keep == nil || keep(b) {
			bids = append(bids, *s.withName(b))
		}
	}
	sort.SliceStable(bids, func(i, j int) bool { return bids[i].CreatedAt.After(bids[j].CreatedAt) })
	return bids
}

func (s *Store) userBidsLocked(userID uuid.UUID, keep func(*models.Bid) bool) []models.Bid {
	var bids []models.Bid
	for itemID := range s.itemBids {
		bids = append(bids, s.itemBidsLocked(itemID, func(b *models.Bid) bool {
			return b.BidderID == userID && keep(b)
		})...)
	}
	sort.SliceStable(bids, func(i, j int) bool { return bids[i].CreatedAt.After(bids[j].CreatedAt) })
	return bids
}

// WithItemTx runs fn as one unit of work over the item's rows.
func (s *Store) WithItemTx(ctx context.Context, itemID uuid.UUID, fn func(tx ledger.ItemTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[itemID]; !ok {
		return apperr.NotFound("item %s not found", itemID)
	}
	snap := s.snapshotItems([]uuid.UUID{itemID})
	if err := fn(&itemTx{s: s, itemID: itemID}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type itemTx struct {
	s      *Store
	itemID uuid.UUID
}

func (t *itemTx) Item(context.Context) (*models.Item, error) {
	return t.s.items[t.itemID].Clone(), nil
}

func (t *itemTx) Auction(context.Context) (*models.Auction, error) {
	item := t.s.items[t.itemID]
	if item.AuctionID == nil {
		return nil, nil
	}
	a, ok := t.s.auctions[*item.AuctionID]
	if !ok {
		return nil, nil
	}
	return a.Clone(), nil
}

func (t *itemTx) Bid(_ context.Context, id uuid.UUID) (*models.Bid, error) {
	b, err := t.s.bidLocked(id)
	if err != nil {
		return nil, err
	}
	if b.ItemID != t.itemID {
		return nil, apperr.NotFound("bid %s not found on item %s", id, t.itemID)
	}
	return b, nil
}

func (t *itemTx) LeadingBid(context.Context) (*models.Bid, error) {
	return t.s.leadingLocked(t.itemID)
}

func (t *itemTx) LatestOutbidBid(context.Context) (*models.Bid, error) {
	bids := t.s.itemBidsLocked(t.itemID, func(b *models.Bid) bool { return b.Status == models.BidStatusOutbid })
	if len(bids) == 0 {
		return nil, nil
	}
	return &bids[0], nil
}

func (t *itemTx) InsertBid(_ context.Context, bid *models.Bid) error {
	if _, dup := t.s.bids[bid.ID]; dup {
		return apperr.Conflict("bid %s already exists", bid.ID)
	}
	if bid.IsLeading() {
		if _, err := t.s.leadingLocked(t.itemID); err == nil {
			return apperr.Conflict("item %s already has a winning bid", t.itemID)
		}
	}
	t.s.bids[bid.ID] = bid.Clone()
	t.s.itemBids[t.itemID] = append(t.s.itemBids[t.itemID], bid.ID)
	return nil
}

func (t *itemTx) SetBidStatus(_ context.Context, bidID uuid.UUID, status models.BidStatus) error {
	b, ok := t.s.bids[bidID]
	if !ok || b.ItemID != t.itemID {
		return apperr.NotFound("bid %s not found", bidID)
	}
	b.Status = status
	return nil
}

func (t *itemTx) MarkCancelled(_ context.Context, bid *models.Bid) error {
	b, ok := t.s.bids[bid.ID]
	if !ok || b.ItemID != t.itemID {
		return apperr.NotFound("bid %s not found", bid.ID)
	}
	c := bid.Clone()
	c.Status = models.BidStatusCancelled
	t.s.bids[bid.ID] = c
	return nil
}

func (t *itemTx) SetCurrentValue(_ context.Context, value decimal.Decimal) error {
	t.s.items[t.itemID].CurrentValue = value
	return nil
}

// Auctions

func (s *Store) CreateAuction(ctx context.Context, a *models.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.auctions[a.ID]; dup {
		return apperr.Conflict("auction %s already exists", a.ID)
	}
	snap := s.snapshotItems(a.ItemIDs)
	c := a.Clone()
	c.Items = nil
	c.ItemIDs = nil
	s.auctions[a.ID] = c
	if err := (&auctionTx{s: s, id: a.ID}).ReplaceItems(ctx, a.ItemIDs); err != nil {
		delete(s.auctions, a.ID)
		s.restore(snap)
		return err
	}
	return nil
}

func (s *Store) GetAuction(_ context.Context, id uuid.UUID) (*models.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.auctionLocked(id)
}

func (s *Store) ListAuctions(_ context.Context, status *models.AuctionStatus) ([]models.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var auctions []models.Auction
	for id, a := range s.auctions {
		if status != nil && a.Status != *status {
			continue
		}
		full, err := s.auctionLocked(id)
		if err != nil {
			return nil, err
		}
		auctions = append(auctions, *full)
	}
	sort.Slice(auctions, func(i, j int) bool { return auctions[i].StartDate.After(auctions[j].StartDate) })
	return auctions, nil
}

func (s *Store) auctionLocked(id uuid.UUID) (*models.Auction, error) {
	a, ok := s.auctions[id]
	if !ok {
		return nil, apperr.NotFound("auction %s not found", id)
	}
	c := a.Clone()
	c.Items = make([]models.Item, 0, len(c.ItemIDs))
	for _, itemID := range c.ItemIDs {
		if item, ok := s.items[itemID]; ok {
			c.Items = append(c.Items, *item.Clone())
		}
	}
	return c, nil
}

// WithAuctionTx runs fn as one unit of work over the auction, its item links
// and its items' bids.
func (s *Store) WithAuctionTx(_ context.Context, id uuid.UUID, fn func(tx sequencer.AuctionTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.auctions[id]
	if !ok {
		return apperr.NotFound("auction %s not found", id)
	}
	before := a.Clone()
	snap := s.snapshotAllItemLinks(a.ItemIDs)
	if err := fn(&auctionTx{s: s, id: id}); err != nil {
		s.auctions[id] = before
		s.restore(snap)
		return err
	}
	return nil
}

type auctionTx struct {
	s  *Store
	id uuid.UUID
}

func (t *auctionTx) Auction(context.Context) (*models.Auction, error) {
	return t.s.auctionLocked(t.id)
}

func (t *auctionTx) Save(_ context.Context, a *models.Auction) error {
	cur := t.s.auctions[t.id]
	cur.Status = a.Status
	cur.CurrentItemID = a.CurrentItemID
	cur.CurrentItemDeadline = a.CurrentItemDeadline
	cur.StartedAt = a.StartedAt
	cur.ActualEndDate = a.ActualEndDate
	cur.UpdatedAt = a.UpdatedAt
	t.s.auctions[t.id] = cur.Clone()
	return nil
}

func (t *auctionTx) SaveDetails(_ context.Context, a *models.Auction) error {
	cur := t.s.auctions[t.id]
	cur.Name = a.Name
	cur.Description = a.Description
	cur.StartDate = a.StartDate
	cur.ExpectedEndDate = a.ExpectedEndDate
	cur.UpdatedAt = a.UpdatedAt
	return nil
}

func (t *auctionTx) ReplaceItems(_ context.Context, itemIDs []uuid.UUID) error {
	cur := t.s.auctions[t.id]
	for _, itemID := range cur.ItemIDs {
		if item, ok := t.s.items[itemID]; ok && item.AuctionID != nil && *item.AuctionID == t.id {
			item.AuctionID = nil
		}
	}
	for _, itemID := range itemIDs {
		item, ok := t.s.items[itemID]
		if !ok {
			return apperr.NotFound("item %s not found", itemID)
		}
		if item.AuctionID != nil && *item.AuctionID != t.id {
			if other, ok := t.s.auctions[*item.AuctionID]; ok && other.Status != models.AuctionStatusCompleted {
				return apperr.State("item %s already belongs to another auction", itemID)
			}
		}
		if t.s.soldLocked(itemID) {
			return apperr.State("item %s has already been sold", itemID)
		}
		id := t.id
		item.AuctionID = &id
	}
	cur.ItemIDs = append([]uuid.UUID(nil), itemIDs...)
	return nil
}

// soldLocked reports whether the item carries a settled Won bid.
func (s *Store) soldLocked(itemID uuid.UUID) bool {
	for _, bidID := range s.itemBids[itemID] {
		if s.bids[bidID].Status == models.BidStatusWon {
			return true
		}
	}
	return false
}

func (t *auctionTx) SettleWinningBids(context.Context) ([]models.Bid, error) {
	var won []models.Bid
	for _, itemID := range t.s.auctions[t.id].ItemIDs {
		for _, bidID := range t.s.itemBids[itemID] {
			b := t.s.bids[bidID]
			if b.Status == models.BidStatusWinning {
				b.Status = models.BidStatusWon
				won = append(won, *t.s.withName(b))
			}
		}
	}
	return won, nil
}

// Audit

func (s *Store) InsertAuditEntry(_ context.Context, entry *models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, *entry)
	return nil
}

func (s *Store) ListAuditEntries(_ context.Context, filter audit.Filter) ([]models.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.AuditEntry
	for i := len(s.audit) - 1; i >= 0; i-- {
		e := s.audit[i]
		if filter.Action != nil && e.Action != *filter.Action {
			continue
		}
		if filter.UserID != nil && (e.UserID == nil || *e.UserID != *filter.UserID) {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// Snapshots

type snapshot struct {
	items    map[uuid.UUID]*models.Item
	bids     map[uuid.UUID]*models.Bid
	itemBids map[uuid.UUID][]uuid.UUID
}

// snapshotItems copies the items and all their bids.
func (s *Store) snapshotItems(itemIDs []uuid.UUID) snapshot {
	snap := snapshot{
		items:    make(map[uuid.UUID]*models.Item, len(itemIDs)),
		bids:     make(map[uuid.UUID]*models.Bid),
		itemBids: make(map[uuid.UUID][]uuid.UUID, len(itemIDs)),
	}
	for _, itemID := range itemIDs {
		if item, ok := s.items[itemID]; ok {
			snap.items[itemID] = item.Clone()
		}
		ids := s.itemBids[itemID]
		snap.itemBids[itemID] = append([]uuid.UUID(nil), ids...)
		for _, id := range ids {
			snap.bids[id] = s.bids[id].Clone()
		}
	}
	return snap
}

// snapshotAllItemLinks covers the auction's items plus every item that could
// be linked by ReplaceItems.
func (s *Store) snapshotAllItemLinks(auctionItemIDs []uuid.UUID) snapshot {
	snap := s.snapshotItems(auctionItemIDs)
	for id, item := range s.items {
		if _, ok := snap.items[id]; !ok {
			snap.items[id] = item.Clone()
		}
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	for id, item := range snap.items {
		s.items[id] = item
	}
	for itemID, ids := range snap.itemBids {
		keep := make(map[uuid.UUID]bool, len(ids))
		for _, id := range ids {
			keep[id] = true
		}
		for _, id := range s.itemBids[itemID] {
			if !keep[id] {
				delete(s.bids, id)
			}
		}
		s.itemBids[itemID] = ids
	}
	for id, b := range snap.bids {
		s.bids[id] = b
	}
}
