package sampler

import (
	"fmt"

	"meta-analyzer/internal/archetype"
	"meta-analyzer/internal/battle"
)

// StopReason explains a Stop decision
type StopReason int

const (
	StopPoolExhausted StopReason = iota + 1
	StopMaxRounds
)

func (r StopReason) String() string {
	switch r {
	case StopPoolExhausted:
		return "pool exhausted"
	case StopMaxRounds:
		return "max rounds reached"
	default:
		return "unknown"
	}
}

// Decision is the evaluator's verdict after a round. It is one of
// Enough, NeedMore or Stop.
type Decision interface {
	fmt.Stringer
	decision()
}

// Enough means coverage is satisfied
type Enough struct{}

// NeedMore asks for another round of BatchSize participants
type NeedMore struct {
	BatchSize int
}

// Stop ends sampling with whatever has been gathered
type Stop struct {
	Reason StopReason
}

func (Enough) decision()   {}
func (NeedMore) decision() {}
func (Stop) decision()     {}

func (Enough) String() string     { return "enough" }
func (d NeedMore) String() string { return fmt.Sprintf("need_more(%d)", d.BatchSize) }
func (d Stop) String() string     { return "stop: " + d.Reason.String() }

// Snapshot is the coverage of a corpus, recomputed from scratch every round
type Snapshot struct {
	Total  int
	Counts map[archetype.Archetype]int
}

// TakeSnapshot counts matches in total and per archetype. A match counts
// once for an archetype played by either side, so a mirror counts once.
func TakeSnapshot(corpus []battle.Match) Snapshot {
	counts := make(map[archetype.Archetype]int)
	for _, m := range corpus {
		counts[m.PlayerArchetype]++
		if m.OpponentArchetype != m.PlayerArchetype {
			counts[m.OpponentArchetype]++
		}
	}
	return Snapshot{Total: len(corpus), Counts: counts}
}

// Count returns the matches featuring an archetype
func (s Snapshot) Count(a archetype.Archetype) int {
	return s.Counts[a]
}

// Thresholds are the coverage targets and round budget
type Thresholds struct {
	MinTotal   int
	MinPerType int
	Required   []archetype.Archetype
	BatchSize  int
	MaxRounds  int
}

// Evaluator applies Thresholds to a corpus. It is stateless.
type Evaluator struct {
	th Thresholds
}

// NewEvaluator creates an evaluator. A nil Required list uses archetype.Required().
func NewEvaluator(th Thresholds) Evaluator {
	if th.Required == nil {
		th.Required = archetype.Required()
	}
	if th.BatchSize <= 0 {
		th.BatchSize = DefaultBatchSize
	}
	return Evaluator{th: th}
}

// Thresholds returns the evaluator's effective configuration
func (e Evaluator) Thresholds() Thresholds {
	return e.th
}

// Satisfied reports whether a snapshot meets every coverage floor
func (e Evaluator) Satisfied(s Snapshot) bool {
	if s.Total < e.th.MinTotal {
		return false
	}
	for _, a := range e.th.Required {
		if s.Count(a) < e.th.MinPerType {
			return false
		}
	}
	return true
}

// Shortfall returns how many more matches each unmet floor needs.
// The total floor is reported under the empty archetype key.
func (e Evaluator) Shortfall(s Snapshot) map[archetype.Archetype]int {
	out := make(map[archetype.Archetype]int)
	if s.Total < e.th.MinTotal {
		out[""] = e.th.MinTotal - s.Total
	}
	for _, a := range e.th.Required {
		if c := s.Count(a); c < e.th.MinPerType {
			out[a] = e.th.MinPerType - c
		}
	}
	return out
}

// Evaluate decides what the controller does next. Budget and exhaustion
// are checked before coverage, so a satisfied corpus at the round limit
// still yields Stop.
func (e Evaluator) Evaluate(corpus []battle.Match, roundsSoFar int, poolExhausted bool) Decision {
	switch {
	case poolExhausted:
		return Stop{Reason: StopPoolExhausted}
	case roundsSoFar >= e.th.MaxRounds:
		return Stop{Reason: StopMaxRounds}
	case e.Satisfied(TakeSnapshot(corpus)):
		return Enough{}
	default:
		return NeedMore{BatchSize: e.th.BatchSize}
	}
}
