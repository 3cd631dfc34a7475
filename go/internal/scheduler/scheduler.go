// Package scheduler periodically advances auctions whose current item has
// expired and pushes countdown ticks for the rest.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/gavel/go/internal/metrics"
	"github.com/mcdev12/gavel/go/internal/models"
	"github.com/mcdev12/gavel/go/internal/sequencer"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultInterval = 5 * time.Second
	DefaultWorkers  = 4
)

// Sequencer is what the scheduler drives.
type Sequencer interface {
	ListActive(ctx context.Context) ([]models.Auction, error)
	AdvanceIfExpired(ctx context.Context, auctionID, itemID uuid.UUID) (*sequencer.Transition, error)
}

// TimerSink receives the countdown of every live auction that has not expired.
type TimerSink interface {
	TimerTick(ctx context.Context, auction *models.Auction, remainingSeconds int)
}

type noopTimerSink struct{}

func (noopTimerSink) TimerTick(context.Context, *models.Auction, int) {}

// Config holds scheduler settings.
type Config struct {
	Interval time.Duration
	Workers  int
}

// TickResult summarizes one pass.
type TickResult struct {
	Active   int
	Expired  int
	Advanced int
	Skipped  int
	Failed   int
}

type job struct {
	auctionID uuid.UUID
	itemID    uuid.UUID
}

// Scheduler polls active auctions on a fixed interval.
type Scheduler struct {
	seq        Sequencer
	sink       TimerSink
	clock      clockwork.Clock
	interval   time.Duration
	numWorkers int
	instanceID string
	logger     zerolog.Logger

	// Track in-flight advances to prevent duplicate processing
	inFlight   map[uuid.UUID]bool
	inFlightMu sync.Mutex
}

// New creates a scheduler. A nil sink disables timer ticks.
func New(seq Sequencer, sink TimerSink, clock clockwork.Clock, cfg Config) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if sink == nil {
		sink = noopTimerSink{}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	instanceID := uuid.New().String()[:8]
	return &Scheduler{
		seq:        seq,
		sink:       sink,
		clock:      clock,
		interval:   cfg.Interval,
		numWorkers: cfg.Workers,
		instanceID: instanceID,
		logger:     log.With().Str("component", "scheduler").Str("instance", instanceID).Logger(),
		inFlight:   make(map[uuid.UUID]bool),
	}
}

// Run ticks until ctx is cancelled. A failed pass is logged and retried on
// the next interval.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info().
		Dur("interval", s.interval).
		Int("workers", s.numWorkers).
		Msg("expiry scheduler started")

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.runTick(ctx)

		select {
		case <-ctx.Done():
			s.logger.Info().Msg("expiry scheduler shutting down")
			return nil
		case <-ticker.Chan():
		}
	}
}

func (s *Scheduler) runTick(ctx context.Context) {
	defer func() {
		// A store that is not ready yet must not take the process down.
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("scheduler tick panicked")
			metrics.RecordSchedulerTick("error", 0)
		}
	}()
	if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
		s.logger.Warn().Err(err).Msg("scheduler tick failed, retrying next interval")
	}
}

// Tick makes one pass: expired auctions are advanced on the worker pool and
// every other live auction gets a countdown tick. Failures of one auction do
// not stop the others; only a failure to list active auctions is returned.
func (s *Scheduler) Tick(ctx context.Context) (TickResult, error) {
	start := s.clock.Now()
	var res TickResult

	auctions, err := s.seq.ListActive(ctx)
	if err != nil {
		metrics.RecordSchedulerTick("error", s.clock.Since(start))
		return res, err
	}
	res.Active = len(auctions)

	now := s.clock.Now()
	var due []job
	for i := range auctions {
		a := &auctions[i]
		if !a.IsLive() {
			continue
		}
		if !now.Before(*a.CurrentItemDeadline) {
			due = append(due, job{auctionID: a.ID, itemID: *a.CurrentItemID})
			continue
		}
		s.sink.TimerTick(ctx, a, a.RemainingSeconds(now))
	}
	res.Expired = len(due)

	if len(due) > 0 {
		advanced, skipped, failed := s.dispatch(ctx, due)
		res.Advanced, res.Skipped, res.Failed = advanced, skipped, failed
		s.logger.Info().
			Int("expired", res.Expired).
			Int("advanced", advanced).
			Int("skipped", skipped).
			Int("failed", failed).
			Msg("processed expired auctions")
	}

	metrics.RecordSchedulerTick("ok", s.clock.Since(start))
	return res, nil
}

// dispatch fans the jobs out to at most numWorkers goroutines and waits.
func (s *Scheduler) dispatch(ctx context.Context, jobs []job) (advanced, skipped, failed int) {
	workCh := make(chan job)
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	workers := s.numWorkers
	if workers > len(jobs) {
		workers = len(jobs)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for j := range workCh {
				ok, err := s.handleExpiry(ctx, j, workerID)
				mu.Lock()
				switch {
				case err != nil:
					failed++
				case ok:
					advanced++
				default:
					skipped++
				}
				mu.Unlock()
			}
		}(i)
	}

	for _, j := range jobs {
		if !s.claim(j.auctionID) {
			s.logger.Debug().Str("auction_id", j.auctionID.String()).Msg("skipping auction already in flight")
			mu.Lock()
			skipped++
			mu.Unlock()
			continue
		}
		workCh <- j
	}
	close(workCh)
	wg.Wait()
	return advanced, skipped, failed
}

func (s *Scheduler) claim(auctionID uuid.UUID) bool {
	s.inFlightMu.Lock()
	defer s.inFlightMu.Unlock()
	if s.inFlight[auctionID] {
		return false
	}
	s.inFlight[auctionID] = true
	return true
}

func (s *Scheduler) release(auctionID uuid.UUID) {
	s.inFlightMu.Lock()
	defer s.inFlightMu.Unlock()
	delete(s.inFlight, auctionID)
}

func (s *Scheduler) handleExpiry(ctx context.Context, j job, workerID int) (advanced bool, err error) {
	defer s.release(j.auctionID)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Str("auction_id", j.auctionID.String()).Msg("advance panicked")
			metrics.RecordAdvanceError()
			advanced, err = false, errPanicked
		}
	}()

	t, err := s.seq.AdvanceIfExpired(ctx, j.auctionID, j.itemID)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("auction_id", j.auctionID.String()).
			Str("item_id", j.itemID.String()).
			Int("worker_id", workerID).
			Msg("failed to advance expired auction")
		metrics.RecordAdvanceError()
		return false, err
	}
	if t == nil {
		return false, nil
	}

	ev := s.logger.Info().
		Str("auction_id", j.auctionID.String()).
		Str("expired_item_id", j.itemID.String()).
		Int("worker_id", workerID)
	if t.Completed {
		ev.Msg("last item expired, auction completed")
	} else {
		ev.Str("item_id", t.Auction.CurrentItemID.String()).Msg("item expired, advanced")
	}
	return true, nil
}

var errPanicked = errors.New("advance panicked")
