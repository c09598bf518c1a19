// Package battle turns raw battlelog entries into normalized match records.
package battle

import (
	"sort"
	"time"

	"meta-analyzer/internal/archetype"
	"meta-analyzer/internal/royale"
)

// DefaultMatchCap is the number of most recent eligible matches kept per participant
const DefaultMatchCap = 10

// DefaultEligibleTypes are the ranked ladder-progression 1v1 battle types
var DefaultEligibleTypes = []string{"PvP", "pathOfLegend"}

// Match is one eligible 1v1 battle seen from the sampled player's side
type Match struct {
	PlayerTag         string              `json:"playerTag"`
	OpponentTag       string              `json:"opponentTag"`
	BattleTime        time.Time           `json:"battleTime"`
	BattleType        string              `json:"battleType"`
	PlayerCards       []string            `json:"playerCards"`
	OpponentCards     []string            `json:"opponentCards"`
	PlayerArchetype   archetype.Archetype `json:"playerArchetype"`
	OpponentArchetype archetype.Archetype `json:"opponentArchetype"`
	Won               bool                `json:"won"`
	Draw              bool                `json:"draw,omitempty"`
}

// Result returns "win", "loss" or "draw" from the player's side
func (m Match) Result() string {
	switch {
	case m.Won:
		return "win"
	case m.Draw:
		return "draw"
	default:
		return "loss"
	}
}

// Normalizer filters and reshapes battlelogs. It holds no mutable state.
type Normalizer struct {
	eligible   map[string]struct{}
	cap        int
	classifier func([]string) archetype.Archetype
}

// NewNormalizer creates a normalizer. cap <= 0 keeps every eligible match.
// An empty eligibleTypes uses DefaultEligibleTypes.
func NewNormalizer(eligibleTypes []string, cap int) *Normalizer {
	if len(eligibleTypes) == 0 {
		eligibleTypes = DefaultEligibleTypes
	}
	eligible := make(map[string]struct{}, len(eligibleTypes))
	for _, t := range eligibleTypes {
		eligible[t] = struct{}{}
	}
	return &Normalizer{
		eligible:   eligible,
		cap:        cap,
		classifier: archetype.Classify,
	}
}

// Cap returns the per-invocation record cap (0 = unlimited)
func (n *Normalizer) Cap() int {
	if n.cap < 0 {
		return 0
	}
	return n.cap
}

// IsEligible reports whether a battle is a ranked ladder 1v1
func (n *Normalizer) IsEligible(b royale.Battle) bool {
	if _, ok := n.eligible[b.Type]; !ok {
		return false
	}
	return len(b.Team) == 1 && len(b.Opponent) == 1
}

// Normalize keeps eligible battles, orders them newest first, applies the cap,
// then classifies both decks. The input slice is not modified.
func (n *Normalizer) Normalize(raw []royale.Battle) []Match {
	type dated struct {
		battle royale.Battle
		at     time.Time
	}

	eligible := make([]dated, 0, len(raw))
	for _, b := range raw {
		if !n.IsEligible(b) {
			continue
		}
		eligible = append(eligible, dated{battle: b, at: b.Time()})
	}

	// The API returns newest first, but nothing guarantees it
	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].at.After(eligible[j].at)
	})

	if limit := n.Cap(); limit > 0 && len(eligible) > limit {
		eligible = eligible[:limit]
	}

	matches := make([]Match, 0, len(eligible))
	for _, d := range eligible {
		matches = append(matches, n.toMatch(d.battle, d.at))
	}
	return matches
}

func (n *Normalizer) toMatch(b royale.Battle, at time.Time) Match {
	me := b.Team[0]
	opp := b.Opponent[0]

	myCards := me.CardNames()
	oppCards := opp.CardNames()

	return Match{
		PlayerTag:         me.Tag,
		OpponentTag:       opp.Tag,
		BattleTime:        at,
		BattleType:        b.Type,
		PlayerCards:       myCards,
		OpponentCards:     oppCards,
		PlayerArchetype:   n.classifier(myCards),
		OpponentArchetype: n.classifier(oppCards),
		Won:               me.Crowns > opp.Crowns,
		Draw:              me.Crowns == opp.Crowns,
	}
}
