package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr1hm/go-threat-telemetry/internal/models"
)

func TestClassify_Earthquake(t *testing.T) {
	tests := []struct {
		name  string
		mag   float64
		color string
		ring  float64
		label string
	}{
		{"critical tier", 7.1, ColorCritical, 35.5, "QUAKE (M7.1)"},
		{"amber tier", 6.0, ColorAmber, 30, "QUAKE (M6.0)"},
		{"exactly five has no ring", 5.0, ColorCyan, 0, "QUAKE (M5.0)"},
		{"minor", 3.24, ColorCyan, 0, "QUAKE (M3.2)"},
		{"exactly seven is amber", 7.0, ColorAmber, 35, "QUAKE (M7.0)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Classify(models.RawRecord{
				Type:        "EARTHQUAKE",
				Lat:         35.0,
				Lon:         139.0,
				RawValue:    tt.mag,
				EnergyLevel: 0.8,
				Place:       "off the coast of Honshu",
			})

			assert.Equal(t, models.KindQuake, e.Kind)
			assert.Equal(t, tt.color, e.Color)
			assert.InDelta(t, tt.ring, e.RingRadius, 1e-9)
			assert.Equal(t, tt.label, e.Label)
			assert.Equal(t, tt.mag, e.Severity)
			assert.InDelta(t, 0.4, e.DisplayAltitude, 1e-9)
			assert.Equal(t, "off the coast of Honshu", e.Place)
			assert.Equal(t, 5.0, e.RingPropagationSpeed)
			assert.Equal(t, 800, e.RingRepeatPeriod)
		})
	}
}

func TestClassify_FixedCategories(t *testing.T) {
	tests := []struct {
		tag         string
		kind        models.Kind
		color       string
		ring        float64
		subcategory models.Subcategory
	}{
		{"WILDFIRE", models.KindWildfire, ColorWildfire, 0, models.SubcategoryNone},
		{"Volcano eruption", models.KindVolcano, ColorVolcano, 0, models.SubcategoryNone},
		{"TROPICAL STORM", models.KindStorm, ColorStorm, 0, models.SubcategoryStormCell},
		{"solar flare", models.KindSolar, ColorSolar, 50, models.SubcategoryNone},
		{"FLOOD", models.KindOther, ColorNeutral, 0, models.SubcategoryNone},
		{"", models.KindOther, ColorNeutral, 0, models.SubcategoryNone},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			e := Classify(models.RawRecord{Type: tt.tag, RawValue: 9.9, EnergyLevel: 1})
			assert.Equal(t, tt.kind, e.Kind)
			assert.Equal(t, tt.color, e.Color)
			assert.Equal(t, tt.ring, e.RingRadius)
			assert.Equal(t, tt.subcategory, e.Subcategory)
			assert.Equal(t, tt.tag, e.Label)
		})
	}
}

func TestClassify_PriorityOrder(t *testing.T) {
	tests := []struct {
		tag  string
		want models.Kind
	}{
		{"EARTHQUAKE STORM", models.KindQuake},
		{"WILDFIRE near VOLCANO", models.KindWildfire},
		{"VOLCANIC STORM", models.KindStorm},
		{"SOLAR STORM", models.KindStorm},
		{"earthquake-triggered wildfire", models.KindQuake},
	}
	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(models.RawRecord{Type: tt.tag}).Kind)
		})
	}
}

func TestClassifyBatch_AppendsAnchorsAndTallies(t *testing.T) {
	records := []models.RawRecord{
		{Type: "EARTHQUAKE", RawValue: 6.2},
		{Type: "EARTHQUAKE", RawValue: 4.0},
		{Type: "WILDFIRE"},
		{Type: "STORM"},
		{Type: "SOLAR"},
		{Type: "LANDSLIDE"},
	}

	events, hist := ClassifyBatch(records, NuclearPlants)
	require.Len(t, events, len(records)+len(NuclearPlants))

	assert.Equal(t, models.Histogram{Quake: 2, Fire: 1, Storm: 1, Other: 1}, hist)

	anchor := events[len(records)]
	assert.Equal(t, models.KindNuclearPlant, anchor.Kind)
	assert.Equal(t, "Fukushima Daiichi", anchor.Place)
	assert.Equal(t, 10.0, anchor.Severity)
	assert.Equal(t, 20.0, anchor.RingRadius)
	assert.Equal(t, ColorNuclear, anchor.Color)
	assert.Equal(t, 3000, anchor.RingRepeatPeriod)
}

func TestClassifyBatch_EmptyStillCarriesAnchors(t *testing.T) {
	events, hist := ClassifyBatch(nil, NuclearPlants)
	assert.Len(t, events, len(NuclearPlants))
	assert.Zero(t, hist.Total())
}
