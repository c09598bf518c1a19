// Package report reshapes a frozen corpus into participant rows and
// archetype summary tables.
package report

import (
	"sort"

	"meta-analyzer/internal/archetype"
	"meta-analyzer/internal/battle"
)

// Row is one participant's view of one match
type Row struct {
	Archetype         archetype.Archetype `json:"archetype"`
	OpponentArchetype archetype.Archetype `json:"opponent_archetype"`
	Won               bool                `json:"won"`
}

// DeckSummary aggregates every row played with one archetype
type DeckSummary struct {
	Archetype archetype.Archetype `json:"archetype"`
	Games     int                 `json:"games"`
	Wins      int                 `json:"wins"`
	Losses    int                 `json:"losses"`
	WinRate   float64             `json:"win_rate"`
	MetaShare float64             `json:"meta_share"`
}

// Matchup aggregates rows for an ordered archetype pair
type Matchup struct {
	Archetype         archetype.Archetype `json:"archetype"`
	OpponentArchetype archetype.Archetype `json:"opponent_archetype"`
	Games             int                 `json:"games"`
	Wins              int                 `json:"wins"`
	WinRate           float64             `json:"win_rate"`
}

// Mirror reports whether both sides played the same archetype
func (m Matchup) Mirror() bool {
	return m.Archetype == m.OpponentArchetype
}

// Tables is the finalized output of a sampling run
type Tables struct {
	Rows     []Row         `json:"rows"`
	Decks    []DeckSummary `json:"decks"`
	Matchups []Matchup     `json:"matchups"`
}

// Empty reports whether the tables hold no rows
func (t Tables) Empty() bool {
	return len(t.Rows) == 0
}

// Deck returns the summary for one archetype
func (t Tables) Deck(a archetype.Archetype) (DeckSummary, bool) {
	for _, d := range t.Decks {
		if d.Archetype == a {
			return d, true
		}
	}
	return DeckSummary{}, false
}

// VersusOthers returns matchups without mirrors, for presentation
func (t Tables) VersusOthers() []Matchup {
	out := make([]Matchup, 0, len(t.Matchups))
	for _, m := range t.Matchups {
		if !m.Mirror() {
			out = append(out, m)
		}
	}
	return out
}

// Finalize builds the participant rows and summary tables for a corpus.
// Each match yields two rows, one per side. A draw is a non-win for both.
// The corpus is only read.
func Finalize(corpus []battle.Match) Tables {
	rows := make([]Row, 0, 2*len(corpus))
	for _, m := range corpus {
		rows = append(rows,
			Row{Archetype: m.PlayerArchetype, OpponentArchetype: m.OpponentArchetype, Won: m.Won},
			Row{Archetype: m.OpponentArchetype, OpponentArchetype: m.PlayerArchetype, Won: !m.Won && !m.Draw},
		)
	}

	return Tables{
		Rows:     rows,
		Decks:    summarizeDecks(rows),
		Matchups: summarizeMatchups(rows),
	}
}

func summarizeDecks(rows []Row) []DeckSummary {
	byType := make(map[archetype.Archetype]*DeckSummary)
	for _, r := range rows {
		d, ok := byType[r.Archetype]
		if !ok {
			d = &DeckSummary{Archetype: r.Archetype}
			byType[r.Archetype] = d
		}
		d.Games++
		if r.Won {
			d.Wins++
		}
	}

	out := make([]DeckSummary, 0, len(byType))
	for _, d := range byType {
		d.Losses = d.Games - d.Wins
		d.WinRate = ratio(d.Wins, d.Games)
		d.MetaShare = ratio(d.Games, len(rows))
		out = append(out, *d)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Games != out[j].Games {
			return out[i].Games > out[j].Games
		}
		return out[i].Archetype < out[j].Archetype
	})
	return out
}

type pair struct {
	a, b archetype.Archetype
}

func summarizeMatchups(rows []Row) []Matchup {
	byPair := make(map[pair]*Matchup)
	for _, r := range rows {
		k := pair{r.Archetype, r.OpponentArchetype}
		m, ok := byPair[k]
		if !ok {
			m = &Matchup{Archetype: r.Archetype, OpponentArchetype: r.OpponentArchetype}
			byPair[k] = m
		}
		m.Games++
		if r.Won {
			m.Wins++
		}
	}

	out := make([]Matchup, 0, len(byPair))
	for _, m := range byPair {
		m.WinRate = ratio(m.Wins, m.Games)
		out = append(out, *m)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Archetype != out[j].Archetype {
			return out[i].Archetype < out[j].Archetype
		}
		if out[i].Games != out[j].Games {
			return out[i].Games > out[j].Games
		}
		return out[i].OpponentArchetype < out[j].OpponentArchetype
	})
	return out
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}
