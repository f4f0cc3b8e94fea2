package engine

import (
	"context"
	"log/slog"

	"github.com/mr1hm/go-threat-telemetry/internal/classifier"
	"github.com/mr1hm/go-threat-telemetry/internal/filter"
	"github.com/mr1hm/go-threat-telemetry/internal/ingestion"
	"github.com/mr1hm/go-threat-telemetry/internal/models"
	"github.com/mr1hm/go-threat-telemetry/internal/stream"
)

// handlePoll receives every scheduler outcome. A response that lands after
// Disable is still applied, but the link status is left alone.
func (a *Aggregator) handlePoll(_ context.Context, outcome ingestion.Outcome, records []models.RawRecord, _ error) {
	live := a.scheduler.Enabled()

	switch outcome {
	case ingestion.OutcomeError:
		if live {
			a.setLink(LinkLost)
		}
	case ingestion.OutcomeEmpty:
		if live {
			a.setLink(LinkScanning)
		}
	case ingestion.OutcomeData:
		a.onPollSuccess(records)
		if live {
			a.setLink(LinkOnline)
		}
	}
}

// onPollSuccess runs the poll pipeline in order: classify, rebuild the
// cache, project, publish, then kick off training.
func (a *Aggregator) onPollSuccess(records []models.RawRecord) {
	events, hist := a.classify(records)
	a.rebuild(events, hist)
	list := a.RenderList()
	a.publishRender(list)
	a.triggerTraining()
}

func (a *Aggregator) classify(records []models.RawRecord) ([]models.ThreatEvent, models.Histogram) {
	return classifier.ClassifyBatch(records, a.cache.Anchors())
}

func (a *Aggregator) rebuild(events []models.ThreatEvent, hist models.Histogram) {
	a.mu.Lock()
	a.cache.ReplaceAll(events)
	a.histogram = hist
	a.lastPoll = a.clock.Now()
	a.mu.Unlock()

	a.metrics.CachedEvents.Set(float64(len(events)))
	slog.Info("threat cache rebuilt", "events", len(events), "feed_events", hist.Total())
}

func (a *Aggregator) publishRender(list []models.ThreatEvent) {
	a.publish(stream.UpdateRender, RenderView{
		Threats: list,
		Rings:   len(filter.RingEligible(list)),
	})
}

func (a *Aggregator) triggerTraining() {
	a.forecaster.Train(a.ctx)
}

func (a *Aggregator) publish(t stream.UpdateType, payload any) {
	a.hub.Publish(stream.Update{Type: t, Payload: payload, At: a.clock.Now()})
}
