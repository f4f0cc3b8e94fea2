package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mr1hm/go-threat-telemetry/internal/models"
	"github.com/mr1hm/go-threat-telemetry/internal/stream"
	"github.com/mr1hm/go-threat-telemetry/internal/telemetry"
	"github.com/mr1hm/go-threat-telemetry/internal/worker"
)

type TelemetryUpdate struct {
	Sample models.TelemetrySample `json:"sample"`
	Window []float64              `json:"k_eff_window"`
}

// raiseAlert hands an alert to the dispatch workers. It never blocks: when
// the queue is full the alert is logged and dropped.
func (a *Aggregator) raiseAlert(source models.AlertSource, severity models.AlertSeverity, message string, value float64) {
	alert := models.Alert{
		ID:        uuid.NewString(),
		Source:    source,
		Severity:  severity,
		Message:   message,
		Value:     value,
		CreatedAt: a.clock.Now(),
	}
	a.metrics.Alerts.WithLabelValues(string(source), string(severity)).Inc()
	slog.Warn("alert raised", "id", alert.ID, "source", source, "severity", severity, "message", message)

	if err := a.dispatch.TrySubmit(alert); err != nil {
		level := slog.LevelWarn
		if errors.Is(err, worker.ErrPoolStopped) {
			level = slog.LevelDebug
		}
		slog.Log(context.Background(), level, "alert not dispatched", "id", alert.ID, "error", err)
	}
}

// processAlert runs on the dispatch workers: log first, then fan out.
func (a *Aggregator) processAlert(ctx context.Context, alert models.Alert) error {
	if err := a.alerts.AddAlert(ctx, &alert); err != nil {
		return fmt.Errorf("record alert: %w", err)
	}
	a.publish(stream.UpdateAlert, alert)
	return nil
}

func (a *Aggregator) onTelemetrySample(sample models.TelemetrySample, window []float64) {
	a.publish(stream.UpdateTelemetry, TelemetryUpdate{Sample: sample, Window: window})
}

func (a *Aggregator) onCoreCritical(sample models.TelemetrySample) {
	a.raiseAlert(models.AlertSourceReactor, models.AlertSeverityCritical,
		fmt.Sprintf("core temperature %.0f exceeds %.0f", sample.CoreTemp, a.cfg.Telemetry.CoreTempCritical),
		sample.CoreTemp)
}

func (a *Aggregator) onReactorStatus(_ telemetry.Status) {
	a.publish(stream.UpdateStatus, a.Status())
}
