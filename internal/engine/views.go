package engine

import (
	"context"
	"time"

	"github.com/mr1hm/go-threat-telemetry/internal/filter"
	"github.com/mr1hm/go-threat-telemetry/internal/geo"
	"github.com/mr1hm/go-threat-telemetry/internal/models"
	"github.com/mr1hm/go-threat-telemetry/internal/repository"
	"github.com/mr1hm/go-threat-telemetry/internal/telemetry"
)

// RenderView is the payload pushed to stream subscribers on every change.
type RenderView struct {
	Threats []models.ThreatEvent `json:"threats"`
	Rings   int                  `json:"rings"`
}

type NearestThreat struct {
	Found      bool        `json:"found"`
	Kind       models.Kind `json:"kind,omitempty"`
	Label      string      `json:"label,omitempty"`
	Place      string      `json:"place,omitempty"`
	DistanceKm float64     `json:"distance_km,omitempty"`
	BearingDeg float64     `json:"bearing_deg,omitempty"`
	Sector     string      `json:"sector,omitempty"`
}

type StatusReport struct {
	Link            string           `json:"link"`
	Reactor         telemetry.Status `json:"reactor"`
	Enabled         bool             `json:"enabled"`
	Scheduler       string           `json:"scheduler"`
	NextPollMs      int64            `json:"next_poll_ms"`
	LastPoll        time.Time        `json:"last_poll,omitzero"`
	CachedEvents    int              `json:"cached_events"`
	Defcon          int              `json:"defcon"`
	Prediction      bool             `json:"prediction"`
	Training        bool             `json:"training"`
	StreamConnected bool             `json:"stream_connected"`
}

// RenderList projects the cache through the current filters.
func (a *Aggregator) RenderList() []models.ThreatEvent {
	snap := a.cache.Snapshot()

	a.mu.RLock()
	st := a.filters.Clone()
	a.mu.RUnlock()

	return filter.Project(snap.Events, st, snap.User, snap.Predictions)
}

func (a *Aggregator) RingEligible() []models.ThreatEvent {
	return filter.RingEligible(a.RenderList())
}

// Histogram is the per-category tally of the last applied poll.
func (a *Aggregator) Histogram() models.Histogram {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.histogram
}

// NearestThreat reports the closest event to the user marker. Found is
// false without a marker or with an empty cache.
func (a *Aggregator) NearestThreat() NearestThreat {
	user, ok := a.cache.User()
	if !ok {
		return NearestThreat{}
	}
	n, ok := a.cache.NearestTo(user.Lat, user.Lon)
	if !ok {
		return NearestThreat{}
	}

	bearing := geo.BearingDeg(user.Lat, user.Lon, n.Event.Lat, n.Event.Lon)
	return NearestThreat{
		Found:      true,
		Kind:       n.Event.Kind,
		Label:      n.Event.Label,
		Place:      n.Event.Place,
		DistanceKm: n.DistanceKm,
		BearingDeg: bearing,
		Sector:     geo.Sector(bearing),
	}
}

func (a *Aggregator) Telemetry() telemetry.Snapshot {
	return a.monitor.Snapshot()
}

func (a *Aggregator) Status() StatusReport {
	a.mu.RLock()
	link, defcon, lastPoll := a.link, a.defcon, a.lastPoll
	a.mu.RUnlock()

	return StatusReport{
		Link:            link,
		Reactor:         a.monitor.Status(),
		Enabled:         a.scheduler.Enabled(),
		Scheduler:       a.scheduler.State().String(),
		NextPollMs:      a.scheduler.NextDelay().Milliseconds(),
		LastPoll:        lastPoll,
		CachedEvents:    a.cache.Len(),
		Defcon:          defcon,
		Prediction:      a.forecaster.Enabled(),
		Training:        a.forecaster.Training(),
		StreamConnected: a.monitor.Connected(),
	}
}

// Alerts lists the alert log newest first.
func (a *Aggregator) Alerts(ctx context.Context, opts repository.Filter) ([]models.Alert, error) {
	return a.alerts.ListAlerts(ctx, opts)
}
