// Package classifier turns raw feed records into ThreatEvents.
//
// Records are matched against an ordered rule table on the upper-cased
// type tag; the first rule whose keyword is a substring wins. The order
// is significant: "SOLAR STORM" is a storm, "EARTHQUAKE SWARM" is a quake.
package classifier

import (
	"fmt"
	"strings"

	"github.com/mr1hm/go-threat-telemetry/internal/models"
)

const (
	ColorCritical = "#ff003c"
	ColorAmber    = "#ffd700"
	ColorCyan     = "#00f3ff"
	ColorWildfire = "#ff6600"
	ColorVolcano  = "#ff00cc"
	ColorStorm    = "#bd00ff"
	ColorSolar    = "#ffffff"
	ColorNeutral  = "#aaaaaa"
	ColorNuclear  = "#ccff00"

	ringPropagationSpeed = 5
	ringRepeatPeriod     = 800

	solarRingRadius = 50
)

type rule struct {
	keyword string
	kind    models.Kind
	apply   func(e *models.ThreatEvent, rec models.RawRecord)
}

var rules = []rule{
	{
		keyword: "EARTHQUAKE",
		kind:    models.KindQuake,
		apply: func(e *models.ThreatEvent, rec models.RawRecord) {
			mag := rec.RawValue
			e.Severity = mag
			e.Color = quakeColor(mag)
			if mag > 5 {
				e.RingRadius = mag * 5
			}
			e.Label = fmt.Sprintf("QUAKE (M%.1f)", mag)
		},
	},
	{
		keyword: "WILDFIRE",
		kind:    models.KindWildfire,
		apply:   func(e *models.ThreatEvent, _ models.RawRecord) { e.Color = ColorWildfire },
	},
	{
		keyword: "VOLCANO",
		kind:    models.KindVolcano,
		apply:   func(e *models.ThreatEvent, _ models.RawRecord) { e.Color = ColorVolcano },
	},
	{
		keyword: "STORM",
		kind:    models.KindStorm,
		apply: func(e *models.ThreatEvent, _ models.RawRecord) {
			e.Color = ColorStorm
			e.Subcategory = models.SubcategoryStormCell
		},
	},
	{
		keyword: "SOLAR",
		kind:    models.KindSolar,
		apply: func(e *models.ThreatEvent, _ models.RawRecord) {
			e.Color = ColorSolar
			e.RingRadius = solarRingRadius
		},
	},
}

// Anchor is a static nuclear plant location.
type Anchor struct {
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Country string  `json:"country"`
}

// NuclearPlants is the built-in anchor set.
var NuclearPlants = []Anchor{
	{Name: "Fukushima Daiichi", Lat: 37.421, Lon: 141.033, Country: "Japan"},
	{Name: "Zaporizhzhia", Lat: 47.512, Lon: 34.586, Country: "Ukraine"},
	{Name: "Kashiwazaki-Kariwa", Lat: 37.429, Lon: 138.596, Country: "Japan"},
	{Name: "Diablo Canyon", Lat: 35.211, Lon: -120.855, Country: "USA"},
	{Name: "Kori Nuclear Power Plant", Lat: 35.316, Lon: 129.292, Country: "South Korea"},
	{Name: "Bruce Nuclear Gen", Lat: 44.325, Lon: -81.599, Country: "Canada"},
	{Name: "Gravelines", Lat: 51.015, Lon: 2.136, Country: "France"},
}

// Classify maps one raw record onto a ThreatEvent.
func Classify(rec models.RawRecord) models.ThreatEvent {
	e := models.ThreatEvent{
		Kind:                 models.KindOther,
		Lat:                  rec.Lat,
		Lon:                  rec.Lon,
		Severity:             rec.RawValue,
		DisplayAltitude:      rec.EnergyLevel * 0.5,
		Label:                rec.Type,
		Place:                rec.Place,
		RingPropagationSpeed: ringPropagationSpeed,
		RingRepeatPeriod:     ringRepeatPeriod,
		Color:                ColorNeutral,
	}

	tag := strings.ToUpper(rec.Type)
	for _, r := range rules {
		if !strings.Contains(tag, r.keyword) {
			continue
		}
		e.Kind = r.kind
		r.apply(&e, rec)
		return e
	}

	return e
}

// ClassifyBatch classifies every record, appends the anchor set and returns
// the batch histogram. The result is a complete cache rebuild.
func ClassifyBatch(records []models.RawRecord, anchors []Anchor) ([]models.ThreatEvent, models.Histogram) {
	var hist models.Histogram
	events := make([]models.ThreatEvent, 0, len(records)+len(anchors))

	for _, rec := range records {
		e := Classify(rec)
		hist.Add(e.Kind)
		events = append(events, e)
	}
	for _, a := range anchors {
		events = append(events, AnchorEvent(a))
	}

	return events, hist
}

func AnchorEvent(a Anchor) models.ThreatEvent {
	return models.ThreatEvent{
		Kind:                 models.KindNuclearPlant,
		Lat:                  a.Lat,
		Lon:                  a.Lon,
		Severity:             10,
		DisplayAltitude:      0.1,
		Label:                "NUCLEAR PLANT",
		Place:                a.Name,
		RingRadius:           20,
		RingPropagationSpeed: 1,
		RingRepeatPeriod:     3000,
		Color:                ColorNuclear,
	}
}

func quakeColor(mag float64) string {
	switch {
	case mag > 7:
		return ColorCritical
	case mag > 5:
		return ColorAmber
	default:
		return ColorCyan
	}
}
