package cache

import (
	"math"
	"sync"

	"github.com/mr1hm/go-threat-telemetry/internal/classifier"
	"github.com/mr1hm/go-threat-telemetry/internal/geo"
	"github.com/mr1hm/go-threat-telemetry/internal/models"
)

// Cache is the single store of current threat events. The polled event set
// is swapped wholesale on every rebuild; the user marker and the prediction
// set are owned separately and survive rebuilds.
type Cache struct {
	mu          sync.RWMutex
	anchors     []classifier.Anchor
	events      []models.ThreatEvent
	user        *models.ThreatEvent
	predictions []models.ThreatEvent
}

type Nearest struct {
	Event      models.ThreatEvent `json:"event"`
	DistanceKm float64            `json:"distance_km"`
}

// Snapshot is a consistent copy of everything the projector needs.
type Snapshot struct {
	Events      []models.ThreatEvent
	User        *models.ThreatEvent
	Predictions []models.ThreatEvent
}

func New(anchors []classifier.Anchor) *Cache {
	a := make([]classifier.Anchor, len(anchors))
	copy(a, anchors)
	return &Cache{anchors: a}
}

func (c *Cache) Anchors() []classifier.Anchor {
	return c.anchors
}

// ReplaceAll swaps the whole event collection. The slice is owned by the
// cache afterwards.
func (c *Cache) ReplaceAll(events []models.ThreatEvent) {
	c.mu.Lock()
	c.events = events
	c.mu.Unlock()
}

func (c *Cache) Events() []models.ThreatEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return clone(c.events)
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.events)
}

// SetUser replaces the single user location marker.
func (c *Cache) SetUser(lat, lon float64) models.ThreatEvent {
	marker := models.ThreatEvent{
		Kind:                 models.KindUserLocation,
		Lat:                  lat,
		Lon:                  lon,
		DisplayAltitude:      0.02,
		Label:                "USER_LOC",
		Place:                "HOME BASE",
		RingRadius:           5,
		RingPropagationSpeed: 1,
		RingRepeatPeriod:     2000,
		Color:                classifier.ColorCyan,
	}

	c.mu.Lock()
	c.user = &marker
	c.mu.Unlock()
	return marker
}

func (c *Cache) User() (models.ThreatEvent, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.user == nil {
		return models.ThreatEvent{}, false
	}
	return *c.user, true
}

// ReplacePredictions swaps the prediction set. It is never merged.
func (c *Cache) ReplacePredictions(predictions []models.ThreatEvent) {
	c.mu.Lock()
	c.predictions = clone(predictions)
	c.mu.Unlock()
}

func (c *Cache) Predictions() []models.ThreatEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return clone(c.predictions)
}

func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Events:      clone(c.events),
		Predictions: clone(c.predictions),
	}
	if c.user != nil {
		u := *c.user
		s.User = &u
	}
	return s
}

// NearestTo returns the closest non-user event. Ties keep the first event
// in cache order.
func (c *Cache) NearestTo(lat, lon float64) (Nearest, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	best := Nearest{DistanceKm: math.Inf(1)}
	found := false
	for _, e := range c.events {
		if e.Kind == models.KindUserLocation {
			continue
		}
		d := geo.DistanceKm(lat, lon, e.Lat, e.Lon)
		if d < best.DistanceKm {
			best = Nearest{Event: e, DistanceKm: d}
			found = true
		}
	}
	return best, found
}

// LocalRiskFeature is a heuristic inverse-distance density of nearby event
// impact, normalized to [0, 1]. Each event within radiusKm contributes
// displayAltitude*2*(1 - d/radiusKm); the sum is halved and clamped.
// User markers and solar events do not contribute.
func (c *Cache) LocalRiskFeature(lat, lon, radiusKm float64) float64 {
	if radiusKm <= 0 {
		return 0
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var sum float64
	for _, e := range c.events {
		if e.Kind == models.KindUserLocation || e.Kind == models.KindSolar {
			continue
		}
		d := geo.DistanceKm(lat, lon, e.Lat, e.Lon)
		if d > radiusKm {
			continue
		}
		sum += math.Max(0, e.DisplayAltitude*2*(1-d/radiusKm))
	}
	return math.Min(sum/2.0, 1.0)
}

func clone(events []models.ThreatEvent) []models.ThreatEvent {
	if events == nil {
		return nil
	}
	out := make([]models.ThreatEvent, len(events))
	copy(out, events)
	return out
}
