// Package archetype assigns a deck to one of six fixed strategic archetypes.
//
// Classification is deterministic and total: every card list maps to exactly one
// archetype, with Hybrid as the catch-all. The same Classify function is used for
// the meta corpus and for individual player analytics, so tables built from either
// are comparable.
package archetype

import (
	"fmt"
	"sort"
)

// Archetype is a strategic deck category
type Archetype string

const (
	Siege      Archetype = "Siege"
	Bait       Archetype = "Bait"
	Cycle      Archetype = "Cycle"
	BridgeSpam Archetype = "Bridge Spam"
	Beatdown   Archetype = "Beatdown"
	Hybrid     Archetype = "Hybrid"
)

// Rule thresholds
const (
	cycleMaxFourCardCost = 9.0
	bridgeSpamMinPieces  = 2
	beatdownMinAvgElixir = 3.5
	deckSize             = 8.0
	defaultAvgElixir     = 3.0
	defaultFourCardCycle = 12.0
	goblinBarrel         = "Goblin Barrel"
	xBow                 = "X-Bow"
	mortar               = "Mortar"
)

// All returns every archetype in rule precedence order, Hybrid last
func All() []Archetype {
	return []Archetype{Siege, Bait, Cycle, BridgeSpam, Beatdown, Hybrid}
}

// Required returns the archetypes that carry a coverage floor (Hybrid is exempt)
func Required() []Archetype {
	return []Archetype{Siege, Bait, Cycle, BridgeSpam, Beatdown}
}

// Parse converts a display name back into an Archetype
func Parse(name string) (Archetype, error) {
	for _, a := range All() {
		if string(a) == name {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown archetype %q", name)
}

// String implements fmt.Stringer
func (a Archetype) String() string {
	return string(a)
}

// DeckValues are the derived deck features the rules look at
type DeckValues struct {
	AvgElixir         float64
	FourCardCycleCost float64
	HasXBow           bool
	HasMortar         bool
	BaitPieces        int
	HasBaitCore       bool
	BridgeSpamPieces  int
	BigTanks          int
}

// Classifier applies the ordered archetype rules against a card catalog
type Classifier struct {
	catalog *Catalog
}

// NewClassifier creates a classifier over the given catalog
func NewClassifier(catalog *Catalog) *Classifier {
	return &Classifier{catalog: catalog}
}

var defaultClassifier = NewClassifier(DefaultCatalog())

// Classify classifies a deck with the embedded card catalog
func Classify(cards []string) Archetype {
	return defaultClassifier.Classify(cards)
}

// Values computes the rule inputs for a deck
func (c *Classifier) Values(cards []string) DeckValues {
	var v DeckValues

	elixirs := make([]float64, 0, len(cards))
	names := make(map[string]struct{}, len(cards))
	for _, name := range cards {
		names[name] = struct{}{}

		meta, ok := c.catalog.Lookup(name)
		if !ok {
			continue
		}
		if meta.Elixir != nil {
			elixirs = append(elixirs, *meta.Elixir)
		}
		if meta.IsBaitPiece {
			v.BaitPieces++
		}
		if meta.IsBridgeSpamPiece {
			v.BridgeSpamPieces++
		}
		if meta.IsBigTank {
			v.BigTanks++
		}
	}

	if len(elixirs) == 0 {
		v.AvgElixir = defaultAvgElixir
		v.FourCardCycleCost = defaultFourCardCycle
	} else {
		var total float64
		for _, e := range elixirs {
			total += e
		}
		// Always over a full deck so missing metadata lowers the average rather than skewing it
		v.AvgElixir = total / deckSize

		sort.Float64s(elixirs)
		n := len(elixirs)
		if n > 4 {
			n = 4
		}
		for _, e := range elixirs[:n] {
			v.FourCardCycleCost += e
		}
	}

	_, v.HasXBow = names[xBow]
	_, v.HasMortar = names[mortar]

	// Goblin Barrel counts as bait even when its own catalog flag is off,
	// so the core is barrel plus at least one other flagged piece.
	if _, ok := names[goblinBarrel]; ok {
		v.HasBaitCore = v.BaitPieces >= 1
	}

	return v
}

// Classify returns the first archetype whose rule matches. Rule order matters:
// Siege, Bait, Cycle, Bridge Spam, Beatdown, then Hybrid.
func (c *Classifier) Classify(cards []string) Archetype {
	if len(cards) == 0 {
		return Hybrid
	}

	v := c.Values(cards)

	switch {
	case v.HasXBow, v.HasMortar:
		return Siege
	case v.HasBaitCore:
		return Bait
	case v.FourCardCycleCost <= cycleMaxFourCardCost:
		return Cycle
	case v.BridgeSpamPieces >= bridgeSpamMinPieces:
		return BridgeSpam
	case v.BigTanks >= 1 && v.AvgElixir >= beatdownMinAvgElixir:
		return Beatdown
	default:
		return Hybrid
	}
}
