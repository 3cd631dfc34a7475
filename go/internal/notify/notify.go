// Package notify delivers participant notifications (outbid, won, auction
// started) off the bidding path. Delivery is best effort: a failed or dropped
// notification is logged and never surfaces to the operation that caused it.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/gavel/go/internal/metrics"
	"github.com/mcdev12/gavel/go/internal/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Kind names a notification template.
type Kind string

const (
	KindOutbid         Kind = "outbid"
	KindWon            Kind = "won"
	KindAuctionStarted Kind = "auction_started"
)

// Notification is one message to one recipient.
type Notification struct {
	ID          uuid.UUID       `json:"id"`
	Kind        Kind            `json:"kind"`
	UserID      uuid.UUID       `json:"userId"`
	Email       string          `json:"email"`
	Name        string          `json:"name"`
	AuctionName string          `json:"auctionName,omitempty"`
	ItemName    string          `json:"itemName,omitempty"`
	Amount      decimal.Decimal `json:"amount,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Sender delivers a notification to its recipient.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

var errQueueFull = errors.New("notification queue full")

// Config holds configuration for the dispatcher
type Config struct {
	QueueSize   int
	Workers     int
	SendTimeout time.Duration
}

// DefaultConfig returns default dispatcher configuration
func DefaultConfig() Config {
	return Config{
		QueueSize:   1024,
		Workers:     2,
		SendTimeout: 10 * time.Second,
	}
}

// Dispatcher queues notifications and sends them from a small worker pool.
type Dispatcher struct {
	sender Sender
	config Config
	queue  chan Notification
	wg     sync.WaitGroup
	logger zerolog.Logger
}

// NewDispatcher creates a dispatcher. Call Start before notifications are
// expected to leave the process.
func NewDispatcher(sender Sender, cfg Config) *Dispatcher {
	def := DefaultConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = def.SendTimeout
	}
	return &Dispatcher{
		sender: sender,
		config: cfg,
		queue:  make(chan Notification, cfg.QueueSize),
		logger: log.With().Str("component", "notify").Logger(),
	}
}

// Start runs the workers until ctx is done. Notifications still queued at
// that point are sent before the workers exit.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.config.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
}

// Wait blocks until every worker has exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case n := <-d.queue:
			d.send(n)
		case <-ctx.Done():
			for {
				select {
				case n := <-d.queue:
					d.send(n)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) send(n Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), d.config.SendTimeout)
	defer cancel()

	err := d.sender.Send(ctx, n)
	metrics.RecordNotification(string(n.Kind), err)
	if err != nil {
		d.logger.Error().
			Err(err).
			Str("kind", string(n.Kind)).
			Str("user_id", n.UserID.String()).
			Msg("failed to send notification")
	}
}

func (d *Dispatcher) enqueue(n Notification) {
	n.ID = uuid.New()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	select {
	case d.queue <- n:
	default:
		metrics.RecordNotification(string(n.Kind), errQueueFull)
		d.logger.Warn().
			Str("kind", string(n.Kind)).
			Str("user_id", n.UserID.String()).
			Msg("notification queue full, dropping notification")
	}
}

// Outbid tells user that someone bid amount on the item they were leading.
func (d *Dispatcher) Outbid(user *models.User, itemName string, amount decimal.Decimal) {
	d.enqueue(Notification{
		Kind:     KindOutbid,
		UserID:   user.ID,
		Email:    user.Email,
		Name:     user.Name,
		ItemName: itemName,
		Amount:   amount,
	})
}

// Won tells user they won the item for amount.
func (d *Dispatcher) Won(user *models.User, itemName string, amount decimal.Decimal) {
	d.enqueue(Notification{
		Kind:     KindWon,
		UserID:   user.ID,
		Email:    user.Email,
		Name:     user.Name,
		ItemName: itemName,
		Amount:   amount,
	})
}

// AuctionStarted tells every user in users that the auction has opened.
func (d *Dispatcher) AuctionStarted(users []models.User, auctionName string) {
	for i := range users {
		d.enqueue(Notification{
			Kind:        KindAuctionStarted,
			UserID:      users[i].ID,
			Email:       users[i].Email,
			Name:        users[i].Name,
			AuctionName: auctionName,
		})
	}
}
