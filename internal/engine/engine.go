// Package engine holds the Aggregator: the one object that owns the threat
// cache, filter state, user and viewport coordinates, DEFCON level and the
// components that feed them.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-threat-telemetry/internal/cache"
	"github.com/mr1hm/go-threat-telemetry/internal/classifier"
	"github.com/mr1hm/go-threat-telemetry/internal/config"
	"github.com/mr1hm/go-threat-telemetry/internal/filter"
	"github.com/mr1hm/go-threat-telemetry/internal/forecast"
	"github.com/mr1hm/go-threat-telemetry/internal/ingestion"
	"github.com/mr1hm/go-threat-telemetry/internal/models"
	"github.com/mr1hm/go-threat-telemetry/internal/observability"
	"github.com/mr1hm/go-threat-telemetry/internal/repository"
	"github.com/mr1hm/go-threat-telemetry/internal/stream"
	"github.com/mr1hm/go-threat-telemetry/internal/telemetry"
	"github.com/mr1hm/go-threat-telemetry/internal/worker"
)

// Link status texts.
const (
	LinkOffline  = "OFFLINE"
	LinkScanning = "SCANNING..."
	LinkOnline   = "ONLINE"
	LinkLost     = "UPLINK LOST"
)

const (
	DefconMin     = 1
	DefconMax     = 5
	DefconDefault = 5
)

// Remote is everything the engine asks of the upstream services.
type Remote interface {
	ingestion.Fetcher
	forecast.Remote
	Scram(ctx context.Context) error
}

type Deps struct {
	Config  *config.Config
	Remote  Remote
	Alerts  repository.AlertRepository
	Hub     *stream.Hub
	Metrics *observability.Metrics
	Clock   clockwork.Clock
	Anchors []classifier.Anchor
}

type Aggregator struct {
	cfg     *config.Config
	remote  Remote
	alerts  repository.AlertRepository
	hub     *stream.Hub
	metrics *observability.Metrics
	clock   clockwork.Clock

	cache      *cache.Cache
	scheduler  *ingestion.Scheduler
	forecaster *forecast.Service
	monitor    *telemetry.Monitor
	dispatch   *worker.Pool[models.Alert]

	// polling and training run on ctx, not on the context of whichever
	// request triggered them
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	filters   *filter.State
	viewport  *models.Coordinates
	defcon    int
	link      string
	histogram models.Histogram
	lastPoll  time.Time

	closeOnce sync.Once
}

// New wires the aggregator and starts its alert dispatch workers. Polling
// and the telemetry stream stay off until Enable.
func New(ctx context.Context, d Deps) *Aggregator {
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Metrics == nil {
		d.Metrics = observability.NewMetricsForTesting()
	}
	if d.Hub == nil {
		d.Hub = stream.NewHub()
	}

	ctx, cancel := context.WithCancel(ctx)
	a := &Aggregator{
		cfg:     d.Config,
		remote:  d.Remote,
		alerts:  d.Alerts,
		hub:     d.Hub,
		metrics: d.Metrics,
		clock:   d.Clock,
		cache:   cache.New(d.Anchors),
		ctx:     ctx,
		cancel:  cancel,
		filters: filter.DefaultState(),
		defcon:  DefconDefault,
		link:    LinkOffline,
	}

	a.scheduler = ingestion.NewScheduler(d.Remote, a.handlePoll, d.Config.Poll, d.Clock, d.Metrics)
	a.forecaster = forecast.NewService(d.Remote, a.cache, d.Config.Forecast.RadiusKm, d.Config.Forecast.Enabled, d.Metrics)
	if d.Config.Forecast.Enabled {
		_, _ = a.filters.Toggle(filter.KeyPredict)
	}
	a.monitor = telemetry.NewMonitor(
		d.Config.Upstream.StreamURL,
		d.Config.Telemetry.CoreTempCritical,
		d.Config.Telemetry.WindowSize,
		d.Metrics,
		telemetry.Hooks{
			Sample:   a.onTelemetrySample,
			Critical: a.onCoreCritical,
			Status:   a.onReactorStatus,
		},
	)
	a.dispatch = worker.NewPool("alerts", d.Config.Worker.Count, d.Config.Worker.BufferSize, a.processAlert)
	// alert writes outlive cancellation so Close can drain the queue
	a.dispatch.Start(context.WithoutCancel(ctx))

	return a
}

// Enable starts polling and connects the telemetry stream. A stream dial
// failure is returned but polling keeps running.
func (a *Aggregator) Enable(ctx context.Context) error {
	a.setLink(LinkScanning)
	a.scheduler.Start(a.ctx)
	slog.Info("uplink enabled")

	if err := a.monitor.Connect(ctx); err != nil {
		slog.Error("telemetry stream unavailable", "error", err)
		return fmt.Errorf("connect telemetry stream: %w", err)
	}
	return nil
}

// Disable stops polling and closes the stream. A poll already in flight
// is still applied when it returns.
func (a *Aggregator) Disable() {
	a.scheduler.Stop()
	a.monitor.Disconnect()
	a.setLink(LinkOffline)
	slog.Info("uplink disabled")
}

func (a *Aggregator) Enabled() bool {
	return a.scheduler.Enabled()
}

// ScanNow polls immediately if the link is enabled.
func (a *Aggregator) ScanNow() bool {
	if !a.scheduler.Enabled() {
		return false
	}
	a.scheduler.ScanNow()
	return true
}

// Close disables the link, cancels background calls and drains pending
// alerts. Safe to call more than once.
func (a *Aggregator) Close() {
	a.closeOnce.Do(func() {
		a.Disable()
		a.cancel()
		a.scheduler.Wait()
		a.forecaster.Wait()
		a.dispatch.Stop()
	})
}

func (a *Aggregator) setLink(link string) {
	a.mu.Lock()
	changed := a.link != link
	a.link = link
	a.mu.Unlock()

	if changed {
		a.publish(stream.UpdateStatus, a.Status())
	}
}
