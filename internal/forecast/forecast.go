// Package forecast calls the remote risk model and keeps the transient
// prediction set in the threat cache.
package forecast

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mr1hm/go-threat-telemetry/internal/cache"
	"github.com/mr1hm/go-threat-telemetry/internal/classifier"
	"github.com/mr1hm/go-threat-telemetry/internal/models"
	"github.com/mr1hm/go-threat-telemetry/internal/observability"
	"github.com/mr1hm/go-threat-telemetry/internal/upstream"
)

const (
	AlertLevelCritical = "CRITICAL"

	criticalRingRadius = 15
	normalRingRadius   = 8
	predictionAltitude = 0.3
	predictionLabel    = "AI PREDICTION"
)

// Remote is the slice of the upstream client the service needs.
type Remote interface {
	Forecast(ctx context.Context, req upstream.ForecastRequest) (upstream.ForecastResponse, error)
	Train(ctx context.Context) (int, error)
}

// Result describes one forecast round trip.
type Result struct {
	Feature    float64             `json:"feature"`
	Risk       float64             `json:"predicted_risk"`
	AlertLevel string              `json:"alert_level"`
	Prediction *models.ThreatEvent `json:"prediction,omitempty"`
	Skipped    bool                `json:"skipped"`
}

func (r Result) Critical() bool {
	return r.AlertLevel == AlertLevelCritical
}

// Service guards forecasts with the enabled flag and discards responses
// overtaken by a newer request or by a toggle. Training is single-flight.
type Service struct {
	remote   Remote
	cache    *cache.Cache
	radiusKm float64
	metrics  *observability.Metrics

	enabled  atomic.Bool
	training atomic.Bool
	epoch    atomic.Uint64

	// held across the staleness check and the cache write
	mu sync.Mutex
	wg sync.WaitGroup
}

func NewService(remote Remote, c *cache.Cache, radiusKm float64, enabled bool, metrics *observability.Metrics) *Service {
	s := &Service{
		remote:   remote,
		cache:    c,
		radiusKm: radiusKm,
		metrics:  metrics,
	}
	s.enabled.Store(enabled)
	return s
}

func (s *Service) Enabled() bool {
	return s.enabled.Load()
}

// SetEnabled flips the guard. In-flight responses become stale either way,
// and disabling clears the prediction set.
func (s *Service) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.enabled.Store(enabled)
	s.epoch.Add(1)
	if !enabled {
		s.cache.ReplacePredictions(nil)
	}
}

// Forecast computes the local risk feature around the target, asks the
// remote model for a prediction and replaces the prediction set with the
// answer. It is a no-op while disabled. Transport failures leave the
// previous set in place.
func (s *Service) Forecast(ctx context.Context, lat, lon float64) (Result, error) {
	if !s.enabled.Load() {
		s.metrics.Forecasts.WithLabelValues("disabled").Inc()
		return Result{Skipped: true}, nil
	}

	ticket := s.epoch.Add(1)
	feature := s.cache.LocalRiskFeature(lat, lon, s.radiusKm)

	start := time.Now()
	resp, err := s.remote.Forecast(ctx, upstream.ForecastRequest{
		Lat:             lat,
		Lon:             lon,
		SimulatedEnergy: feature,
	})
	s.metrics.ForecastDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.Forecasts.WithLabelValues("error").Inc()
		if !models.IsTransient(err) {
			err = &models.TransientError{Op: "forecast", Err: err}
		}
		return Result{}, err
	}

	result := Result{
		Feature:    feature,
		Risk:       resp.PredictedRisk,
		AlertLevel: resp.AlertLevel,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled.Load() || s.epoch.Load() != ticket {
		s.metrics.Forecasts.WithLabelValues("stale").Inc()
		slog.Debug("discarding stale forecast", "lat", lat, "lon", lon)
		return result, models.ErrStaleResponse
	}

	var predictions []models.ThreatEvent
	if p, ok := Prediction(lat, lon, resp); ok {
		predictions = []models.ThreatEvent{p}
		result.Prediction = &p
	}
	s.cache.ReplacePredictions(predictions)
	s.metrics.Forecasts.WithLabelValues("applied").Inc()

	slog.Info("forecast applied",
		"lat", lat,
		"lon", lon,
		"feature", feature,
		"risk", resp.PredictedRisk,
		"alert_level", resp.AlertLevel,
	)
	return result, nil
}

// Prediction builds the marker for a forecast response. There is none when
// the predicted risk is not positive.
func Prediction(lat, lon float64, resp upstream.ForecastResponse) (models.ThreatEvent, bool) {
	if resp.PredictedRisk <= 0 {
		return models.ThreatEvent{}, false
	}

	e := models.ThreatEvent{
		Kind:                 models.KindAIPrediction,
		Lat:                  lat,
		Lon:                  lon,
		Severity:             resp.PredictedRisk * 10,
		DisplayAltitude:      predictionAltitude,
		Label:                predictionLabel,
		Place:                resp.AlertLevel,
		RingRadius:           normalRingRadius,
		RingPropagationSpeed: 2,
		RingRepeatPeriod:     1000,
		Color:                classifier.ColorSolar,
	}
	if resp.AlertLevel == AlertLevelCritical {
		e.RingRadius = criticalRingRadius
		e.Color = classifier.ColorCritical
	}
	return e, true
}

// Train starts a background training call unless one is already running.
// It reports whether a call was started.
func (s *Service) Train(ctx context.Context) bool {
	if !s.training.CompareAndSwap(false, true) {
		s.metrics.TrainingRuns.WithLabelValues("dropped").Inc()
		slog.Debug("training already in flight, dropping trigger")
		return false
	}
	s.metrics.TrainingRuns.WithLabelValues("started").Inc()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.training.Store(false)

		n, err := s.remote.Train(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.metrics.TrainingRuns.WithLabelValues("error").Inc()
			slog.Error("training failed", "error", err)
			return
		}
		slog.Info("training complete", "events_learned", n)
	}()
	return true
}

func (s *Service) Training() bool {
	return s.training.Load()
}

// Wait blocks until any background training call returns.
func (s *Service) Wait() {
	s.wg.Wait()
}
