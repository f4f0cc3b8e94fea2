package ingestion

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-threat-telemetry/internal/config"
	"github.com/mr1hm/go-threat-telemetry/internal/models"
	"github.com/mr1hm/go-threat-telemetry/internal/observability"
)

type State int

const (
	StateIdle State = iota
	StatePolling
	StateWaiting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateWaiting:
		return "waiting"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type Outcome int

const (
	OutcomeData Outcome = iota
	OutcomeEmpty
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeData:
		return "data"
	case OutcomeEmpty:
		return "empty"
	default:
		return "error"
	}
}

// Fetcher performs one live feed request.
type Fetcher interface {
	FetchLive(ctx context.Context) ([]models.RawRecord, error)
}

// HandlerFunc receives every poll result. records is non-empty only for
// OutcomeData; err is set only for OutcomeError.
type HandlerFunc func(ctx context.Context, outcome Outcome, records []models.RawRecord, err error)

// Scheduler is the adaptive poll loop. One goroutine owns the loop and its
// timer; at most one fetch is in flight. Stop cancels only the pending
// timer: a fetch already in flight still completes and is handed to the
// handler, but nothing is rescheduled after it.
type Scheduler struct {
	fetcher Fetcher
	handle  HandlerFunc
	cfg     config.PollConfig
	clock   clockwork.Clock
	metrics *observability.Metrics

	mu        sync.Mutex
	state     State
	enabled   bool
	running   bool
	nextDelay time.Duration
	kick      chan struct{}
	wg        sync.WaitGroup
}

func NewScheduler(fetcher Fetcher, handle HandlerFunc, cfg config.PollConfig, clock clockwork.Clock, metrics *observability.Metrics) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		fetcher: fetcher,
		handle:  handle,
		cfg:     cfg,
		clock:   clock,
		metrics: metrics,
		kick:    make(chan struct{}, 1),
	}
}

// Start enables polling and fetches immediately. Calling Start on a
// running scheduler only re-enables it.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.enabled = true
	if s.running {
		return
	}

	// drop any wake-up left over from a previous run
	select {
	case <-s.kick:
	default:
	}

	s.running = true
	s.state = StatePolling
	s.metrics.SchedulerRunning.Set(1)
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop disables polling and cancels the pending timer. It is idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.enabled = false
	s.wake()
}

// ScanNow re-arms the loop to poll immediately. While a fetch is in flight
// the trigger is deferred until it resolves, so fetches never overlap.
func (s *Scheduler) ScanNow() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled {
		return
	}
	s.wake()
}

// Wait blocks until the loop goroutine has exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// NextDelay is the delay armed after the most recent poll.
func (s *Scheduler) NextDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextDelay
}

func (s *Scheduler) wake() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()
	slog.Info("poll loop started")

	for {
		delay := s.pollOnce(ctx)

		if !s.transition(ctx, StateWaiting, delay) {
			return
		}

		timer := s.clock.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-s.kick:
			timer.Stop()
		case <-timer.Chan():
		}

		if !s.transition(ctx, StatePolling, delay) {
			return
		}
	}
}

// transition moves to next unless polling was disabled or the context
// ended, in which case the loop is marked stopped and false is returned.
func (s *Scheduler) transition(ctx context.Context, next State, delay time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled || ctx.Err() != nil {
		s.state = StateStopped
		s.running = false
		s.metrics.SchedulerRunning.Set(0)
		slog.Info("poll loop stopped")
		return false
	}

	s.state = next
	if next == StateWaiting {
		s.nextDelay = delay
		s.metrics.PollDelay.Set(delay.Seconds())
	}
	return true
}

func (s *Scheduler) pollOnce(ctx context.Context) time.Duration {
	slog.Debug("polling live feed")

	records, err := s.fetcher.FetchLive(ctx)

	var (
		outcome Outcome
		delay   time.Duration
	)
	switch {
	case err != nil:
		outcome, delay = OutcomeError, s.cfg.ErrorRetry
		slog.Error("poll failed", "error", err, "retry_in", delay)
	case len(records) == 0:
		outcome, delay = OutcomeEmpty, s.cfg.EmptyRetry
		slog.Info("feed warming up", "retry_in", delay)
	default:
		outcome, delay = OutcomeData, s.cfg.Interval
		slog.Debug("poll complete", "count", len(records))
	}
	s.metrics.Polls.WithLabelValues(outcome.String()).Inc()

	if s.handle != nil {
		s.handle(ctx, outcome, records, err)
	}
	return delay
}
