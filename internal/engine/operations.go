package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mr1hm/go-threat-telemetry/internal/filter"
	"github.com/mr1hm/go-threat-telemetry/internal/forecast"
	"github.com/mr1hm/go-threat-telemetry/internal/models"
	"github.com/mr1hm/go-threat-telemetry/internal/stream"
)

// Target sources, in order of precedence.
const (
	TargetUser     = "user"
	TargetViewport = "viewport"
	TargetDefault  = "default"
)

type Target struct {
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Source string  `json:"source"`
}

type ForecastOutcome struct {
	Target Target          `json:"target"`
	Result forecast.Result `json:"result"`
}

type LocationUpdate struct {
	Marker   models.ThreatEvent `json:"marker"`
	Nearest  NearestThreat      `json:"nearest"`
	Forecast *ForecastOutcome   `json:"forecast,omitempty"`
}

func validLocation(lat, lon float64) error {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return fmt.Errorf("%w: (%v, %v)", models.ErrInvalidLocation, lat, lon)
	}
	return nil
}

// SetUserLocation replaces the home marker, then recomputes the nearest
// threat and, when predictions are on, the forecast. A forecast failure is
// returned alongside the applied marker.
func (a *Aggregator) SetUserLocation(ctx context.Context, lat, lon float64) (LocationUpdate, error) {
	if err := validLocation(lat, lon); err != nil {
		return LocationUpdate{}, err
	}

	marker := a.cache.SetUser(lat, lon)
	slog.Info("user location locked", "lat", lat, "lon", lon)
	a.publishRender(a.RenderList())

	update := LocationUpdate{
		Marker:  marker,
		Nearest: a.NearestThreat(),
	}
	if !a.forecaster.Enabled() {
		return update, nil
	}

	out, err := a.RunForecast(ctx)
	if err != nil {
		return update, err
	}
	update.Forecast = &out
	return update, nil
}

// SetViewport records the camera focal point used as forecast target when
// no user location is locked.
func (a *Aggregator) SetViewport(lat, lon float64) error {
	if err := validLocation(lat, lon); err != nil {
		return err
	}
	a.mu.Lock()
	a.viewport = &models.Coordinates{Latitude: lat, Longitude: lon}
	a.mu.Unlock()
	return nil
}

// ForecastTarget resolves user lock > viewport > configured default.
func (a *Aggregator) ForecastTarget() Target {
	if u, ok := a.cache.User(); ok {
		return Target{Lat: u.Lat, Lon: u.Lon, Source: TargetUser}
	}

	a.mu.RLock()
	vp := a.viewport
	a.mu.RUnlock()
	if vp != nil {
		return Target{Lat: vp.Latitude, Lon: vp.Longitude, Source: TargetViewport}
	}

	return Target{
		Lat:    a.cfg.Forecast.DefaultLat,
		Lon:    a.cfg.Forecast.DefaultLon,
		Source: TargetDefault,
	}
}

// RunForecast forecasts at the resolved target. It is a no-op while
// predictions are off.
func (a *Aggregator) RunForecast(ctx context.Context) (ForecastOutcome, error) {
	target := a.ForecastTarget()
	res, err := a.forecaster.Forecast(ctx, target.Lat, target.Lon)
	out := ForecastOutcome{Target: target, Result: res}
	if err != nil {
		slog.Warn("forecast not applied", "error", err, "target", target.Source)
		return out, err
	}
	if res.Skipped {
		return out, nil
	}

	a.publish(stream.UpdateForecast, out)
	a.publishRender(a.RenderList())
	if res.Critical() {
		a.raiseAlert(models.AlertSourceForecast, models.AlertSeverityCritical,
			fmt.Sprintf("forecast risk %.2f near %.3f, %.3f", res.Risk, target.Lat, target.Lon), res.Risk)
	}
	return out, nil
}

// Train starts a training call in the background unless one is running.
func (a *Aggregator) Train() bool {
	return a.forecaster.Train(a.ctx)
}

// ToggleFilter flips one visibility flag by name and returns its new value.
func (a *Aggregator) ToggleFilter(ctx context.Context, name string) (bool, error) {
	key, err := filter.ParseKey(name)
	if err != nil {
		return false, err
	}
	if key == filter.KeyPredict {
		return a.TogglePrediction(ctx), nil
	}

	a.mu.Lock()
	on, err := a.filters.Toggle(key)
	a.mu.Unlock()
	if err != nil {
		return false, err
	}

	slog.Info("filter toggled", "key", key, "visible", on)
	a.publishRender(a.RenderList())
	return on, nil
}

// TogglePrediction flips prediction visibility together with the forecast
// guard. Turning it on runs a forecast right away.
func (a *Aggregator) TogglePrediction(ctx context.Context) bool {
	a.mu.Lock()
	on, _ := a.filters.Toggle(filter.KeyPredict)
	a.forecaster.SetEnabled(on)
	a.mu.Unlock()

	slog.Info("prediction toggled", "enabled", on)

	if !on {
		a.publishRender(a.RenderList())
		return on
	}
	if _, err := a.RunForecast(ctx); err != nil {
		// the flag stays on; the next trigger retries
		a.publishRender(a.RenderList())
	}
	return on
}

func (a *Aggregator) Filters() map[filter.Key]bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.filters.Flags()
}

func (a *Aggregator) SetDefcon(level int) error {
	if level < DefconMin || level > DefconMax {
		return fmt.Errorf("%w: %d", models.ErrInvalidDefcon, level)
	}

	a.mu.Lock()
	prev := a.defcon
	a.defcon = level
	a.mu.Unlock()

	if prev != level {
		a.raiseAlert(models.AlertSourceDefcon, models.AlertSeverityInfo,
			fmt.Sprintf("DEFCON %d (was %d)", level, prev), float64(level))
	}
	return nil
}

func (a *Aggregator) Defcon() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.defcon
}

// Scram asks the reactor service for an emergency shutdown.
func (a *Aggregator) Scram(ctx context.Context) error {
	if err := a.remote.Scram(ctx); err != nil {
		slog.Error("scram request failed", "error", err)
		return err
	}
	a.raiseAlert(models.AlertSourceReactor, models.AlertSeverityWarning, "manual SCRAM requested", 0)
	return nil
}
