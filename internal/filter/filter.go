// Package filter projects the threat cache into the render list.
package filter

import (
	"fmt"
	"strings"

	"github.com/mr1hm/go-threat-telemetry/internal/models"
)

// Key names one category visibility flag.
type Key string

const (
	KeyQuake   Key = "QUAKE"
	KeyFire    Key = "FIRE"
	KeyVolcano Key = "VOLCANO"
	KeyStorm   Key = "STORM"
	KeySolar   Key = "SOLAR"
	KeyOther   Key = "OTHER"
	KeyNuke    Key = "NUKE"
	// KeyPredict governs the prediction set rather than a cache category.
	KeyPredict Key = "PREDICT"
)

var categoryKeys = []Key{KeyQuake, KeyFire, KeyVolcano, KeyStorm, KeySolar, KeyOther, KeyNuke}

// State holds category visibility plus prediction visibility. It changes
// only through Toggle.
type State struct {
	flags       map[Key]bool
	predictions bool
}

// DefaultState shows every category and hides predictions.
func DefaultState() *State {
	s := &State{flags: make(map[Key]bool, len(categoryKeys))}
	for _, k := range categoryKeys {
		s.flags[k] = true
	}
	return s
}

// ParseKey normalizes user input like "quakes" or "fire" to a Key.
func ParseKey(s string) (Key, error) {
	k := Key(strings.TrimSuffix(strings.ToUpper(strings.TrimSpace(s)), "S"))
	if k == KeyPredict {
		return k, nil
	}
	for _, known := range categoryKeys {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", models.ErrUnknownFilter, s)
}

// Toggle flips a flag and returns its new value.
func (s *State) Toggle(k Key) (bool, error) {
	if k == KeyPredict {
		s.predictions = !s.predictions
		return s.predictions, nil
	}
	if _, ok := s.flags[k]; !ok {
		return false, fmt.Errorf("%w: %q", models.ErrUnknownFilter, k)
	}
	s.flags[k] = !s.flags[k]
	return s.flags[k], nil
}

func (s *State) Enabled(k Key) bool {
	if k == KeyPredict {
		return s.predictions
	}
	return s.flags[k]
}

func (s *State) Predictions() bool {
	return s.predictions
}

// Clone returns an independent copy, safe to hand to readers.
func (s *State) Clone() *State {
	c := &State{flags: make(map[Key]bool, len(s.flags)), predictions: s.predictions}
	for k, v := range s.flags {
		c.flags[k] = v
	}
	return c
}

// Flags returns every flag including PREDICT, for display.
func (s *State) Flags() map[Key]bool {
	out := make(map[Key]bool, len(s.flags)+1)
	for k, v := range s.flags {
		out[k] = v
	}
	out[KeyPredict] = s.predictions
	return out
}

// Keys lists the category keys in display order followed by PREDICT.
func Keys() []Key {
	keys := append([]Key(nil), categoryKeys...)
	return append(keys, KeyPredict)
}

// KeyFor returns the flag governing an event. Storms without the storm-cell
// subcategory fall under OTHER. User markers and predictions have no
// category flag.
func KeyFor(e models.ThreatEvent) (Key, bool) {
	switch e.Kind {
	case models.KindQuake:
		return KeyQuake, true
	case models.KindWildfire:
		return KeyFire, true
	case models.KindVolcano:
		return KeyVolcano, true
	case models.KindStorm:
		if e.Subcategory == models.SubcategoryStormCell {
			return KeyStorm, true
		}
		return KeyOther, true
	case models.KindSolar:
		return KeySolar, true
	case models.KindNuclearPlant:
		return KeyNuke, true
	case models.KindOther:
		return KeyOther, true
	default:
		return "", false
	}
}

// Project builds the render list: visible cache events, then the user
// marker if set, then the prediction set when predictions are shown.
// Inputs are not modified.
func Project(events []models.ThreatEvent, st *State, user *models.ThreatEvent, predictions []models.ThreatEvent) []models.ThreatEvent {
	out := make([]models.ThreatEvent, 0, len(events)+1+len(predictions))

	for _, e := range events {
		if e.Kind == models.KindUserLocation {
			out = append(out, e)
			continue
		}
		k, ok := KeyFor(e)
		if !ok || !st.Enabled(k) {
			continue
		}
		out = append(out, e)
	}

	if user != nil {
		out = append(out, *user)
	}

	if st.Predictions() {
		out = append(out, predictions...)
	}

	return out
}

// RingEligible is the subset of a render list carrying a ring.
func RingEligible(list []models.ThreatEvent) []models.ThreatEvent {
	out := make([]models.ThreatEvent, 0, len(list))
	for _, e := range list {
		if e.HasRing() {
			out = append(out, e)
		}
	}
	return out
}
