package api

import (
	"strings"

	"github.com/mr1hm/go-threat-telemetry/internal/models"
)

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}
type Feature struct {
	Type       string         `json:"type"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}
type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

func toGeoJSON(events []models.ThreatEvent) FeatureCollection {
	features := make([]Feature, 0, len(events))

	for _, e := range events {
		props := map[string]any{
			"kind":             strings.ToLower(string(e.Kind)),
			"label":            e.Label,
			"place":            e.Place,
			"severity":         e.Severity,
			"display_altitude": e.DisplayAltitude,
			"color":            e.Color,
		}
		if e.Subcategory != models.SubcategoryNone {
			props["subcategory"] = string(e.Subcategory)
		}
		if e.HasRing() {
			props["ring_radius"] = e.RingRadius
			props["ring_speed"] = e.RingPropagationSpeed
			props["ring_period_ms"] = e.RingRepeatPeriod
		}

		features = append(features, Feature{
			Type: "Feature",
			Geometry: Geometry{
				Type:        "Point",
				Coordinates: []float64{e.Lon, e.Lat},
			},
			Properties: props,
		})
	}

	return FeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
	}
}
