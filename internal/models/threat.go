package models

// Kind is the normalized hazard category of a ThreatEvent.
type Kind string

const (
	KindQuake        Kind = "QUAKE"
	KindWildfire     Kind = "WILDFIRE"
	KindVolcano      Kind = "VOLCANO"
	KindStorm        Kind = "STORM"
	KindSolar        Kind = "SOLAR"
	KindNuclearPlant Kind = "NUCLEAR_PLANT"
	KindOther        Kind = "OTHER"
	KindUserLocation Kind = "USER_LOCATION"
	KindAIPrediction Kind = "AI_PREDICTION"
)

// Subcategory refines a Kind where filter matching needs more than the kind.
type Subcategory string

const (
	SubcategoryNone Subcategory = ""
	// SubcategoryStormCell marks storms produced by the storm classification
	// rule. Only these are governed by the STORM filter.
	SubcategoryStormCell Subcategory = "storm-cell"
)

type ThreatEvent struct {
	Kind                 Kind        `json:"kind"`
	Subcategory          Subcategory `json:"subcategory,omitempty"`
	Lat                  float64     `json:"lat"`
	Lon                  float64     `json:"lon"`
	Severity             float64     `json:"severity"`
	DisplayAltitude      float64     `json:"display_altitude"`
	Label                string      `json:"label"`
	Place                string      `json:"place"`
	RingRadius           float64     `json:"ring_radius"`
	RingPropagationSpeed float64     `json:"ring_propagation_speed"`
	RingRepeatPeriod     int         `json:"ring_repeat_period"`
	Color                string      `json:"color"`
}

// HasRing reports whether the event carries a propagating ring.
func (e ThreatEvent) HasRing() bool {
	return e.RingRadius > 0
}

type Coordinates struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// RawRecord is one entry of the live disaster feed's data array.
type RawRecord struct {
	Type        string  `json:"type"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	RawValue    float64 `json:"raw_val"`
	EnergyLevel float64 `json:"energy_level"`
	Place       string  `json:"place"`
}

// Histogram is the per-category tally of one classified batch.
type Histogram struct {
	Quake   int `json:"quake"`
	Fire    int `json:"fire"`
	Volcano int `json:"volcano"`
	Storm   int `json:"storm"`
	Other   int `json:"other"`
}

func (h Histogram) Total() int {
	return h.Quake + h.Fire + h.Volcano + h.Storm + h.Other
}

// Add tallies one classified event. Solar activity and anchors are not charted.
func (h *Histogram) Add(k Kind) {
	switch k {
	case KindQuake:
		h.Quake++
	case KindWildfire:
		h.Fire++
	case KindVolcano:
		h.Volcano++
	case KindStorm:
		h.Storm++
	case KindOther:
		h.Other++
	}
}
