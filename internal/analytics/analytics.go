// Package analytics summarizes one player's recent matches: overall record,
// card and deck performance, and archetype breakdowns on both sides.
package analytics

import (
	"sort"
	"strings"

	"meta-analyzer/internal/archetype"
	"meta-analyzer/internal/battle"
)

// DefaultMinGames is the sample floor for card and deck rankings
const DefaultMinGames = 3

// Record is a win/loss/draw tally
type Record struct {
	Games   int     `json:"games"`
	Wins    int     `json:"wins"`
	Losses  int     `json:"losses"`
	Draws   int     `json:"draws"`
	WinRate float64 `json:"win_rate"`
}

func (r *Record) add(result string) {
	r.Games++
	switch result {
	case "win":
		r.Wins++
	case "loss":
		r.Losses++
	default:
		r.Draws++
	}
}

func (r *Record) finish() {
	if r.Games > 0 {
		r.WinRate = float64(r.Wins) / float64(r.Games)
	}
}

// CardStat is a Record for one card
type CardStat struct {
	Card string `json:"card"`
	Record
}

// DeckStat is a Record for one exact deck list (sorted card names)
type DeckStat struct {
	Deck []string `json:"deck"`
	Record
}

// TypeStat is a Record for one archetype
type TypeStat struct {
	Archetype archetype.Archetype `json:"type"`
	Record
}

// Report is the full per-player breakdown. Opponent card and deck
// records are from the opponent's side (a win is the player's loss);
// OpponentTypes records are from the player's side.
type Report struct {
	Summary Record `json:"summary"`

	BestCards     []CardStat `json:"best_cards"`
	WorstCards    []CardStat `json:"worst_cards"`
	ToughOppCards []CardStat `json:"tough_opp_cards"`
	EasyOppCards  []CardStat `json:"easy_opp_cards"`

	BestDecks     []DeckStat `json:"best_decks"`
	WorstDecks    []DeckStat `json:"worst_decks"`
	ToughMatchups []DeckStat `json:"tough_matchups"`
	EasyMatchups  []DeckStat `json:"easy_matchups"`

	MyDeckTypes   []TypeStat `json:"my_deck_types"`
	OpponentTypes []TypeStat `json:"opp_deck_types"`
}

// Options tunes the ranking floors
type Options struct {
	MinCardGames int
	MinDeckGames int
}

// Compute builds a Report from normalized matches
func Compute(matches []battle.Match, opts Options) Report {
	if opts.MinCardGames <= 0 {
		opts.MinCardGames = DefaultMinGames
	}
	if opts.MinDeckGames <= 0 {
		opts.MinDeckGames = DefaultMinGames
	}

	var rep Report
	for _, m := range matches {
		rep.Summary.add(m.Result())
	}
	rep.Summary.finish()

	rep.BestCards, rep.ToughOppCards = cardStats(matches, opts.MinCardGames)
	rep.WorstCards = reversed(rep.BestCards)
	rep.EasyOppCards = reversed(rep.ToughOppCards)

	rep.BestDecks, rep.ToughMatchups = deckStats(matches, opts.MinDeckGames)
	rep.WorstDecks = reversed(rep.BestDecks)
	rep.EasyMatchups = reversed(rep.ToughMatchups)

	rep.MyDeckTypes, rep.OpponentTypes = typeStats(matches)
	return rep
}

// flip turns a player result into the opponent's
func flip(result string) string {
	switch result {
	case "win":
		return "loss"
	case "loss":
		return "win"
	default:
		return result
	}
}

func cardStats(matches []battle.Match, minGames int) (mine, theirs []CardStat) {
	my := make(map[string]*Record)
	opp := make(map[string]*Record)
	for _, m := range matches {
		result := m.Result()
		for _, c := range m.PlayerCards {
			tally(my, c).add(result)
		}
		for _, c := range m.OpponentCards {
			tally(opp, c).add(flip(result))
		}
	}
	return rankCards(my, minGames), rankCards(opp, minGames)
}

func deckStats(matches []battle.Match, minGames int) (mine, theirs []DeckStat) {
	my := make(map[string]*Record)
	opp := make(map[string]*Record)
	for _, m := range matches {
		result := m.Result()
		tally(my, deckKey(m.PlayerCards)).add(result)
		tally(opp, deckKey(m.OpponentCards)).add(flip(result))
	}
	return rankDecks(my, minGames), rankDecks(opp, minGames)
}

func typeStats(matches []battle.Match) (mine, theirs []TypeStat) {
	my := make(map[string]*Record)
	opp := make(map[string]*Record)
	for _, m := range matches {
		result := m.Result()
		tally(my, string(m.PlayerArchetype)).add(result)
		tally(opp, string(m.OpponentArchetype)).add(result)
	}
	return rankTypes(my), rankTypes(opp)
}

func tally(m map[string]*Record, key string) *Record {
	r, ok := m[key]
	if !ok {
		r = &Record{}
		m[key] = r
	}
	return r
}

const deckSep = "|"

func deckKey(cards []string) string {
	sorted := append([]string(nil), cards...)
	sort.Strings(sorted)
	return strings.Join(sorted, deckSep)
}

// byRate orders by win rate then games, highest first, with key as tiebreak
func byRate(a, b Record, ka, kb string) bool {
	if a.WinRate != b.WinRate {
		return a.WinRate > b.WinRate
	}
	if a.Games != b.Games {
		return a.Games > b.Games
	}
	return ka < kb
}

func rankCards(m map[string]*Record, minGames int) []CardStat {
	out := make([]CardStat, 0, len(m))
	for card, r := range m {
		if r.Games < minGames {
			continue
		}
		r.finish()
		out = append(out, CardStat{Card: card, Record: *r})
	}
	sort.Slice(out, func(i, j int) bool {
		return byRate(out[i].Record, out[j].Record, out[i].Card, out[j].Card)
	})
	return out
}

func rankDecks(m map[string]*Record, minGames int) []DeckStat {
	type keyed struct {
		key string
		DeckStat
	}
	tmp := make([]keyed, 0, len(m))
	for key, r := range m {
		if r.Games < minGames {
			continue
		}
		r.finish()
		var deck []string
		if key != "" {
			deck = strings.Split(key, deckSep)
		}
		tmp = append(tmp, keyed{key: key, DeckStat: DeckStat{Deck: deck, Record: *r}})
	}
	sort.Slice(tmp, func(i, j int) bool {
		return byRate(tmp[i].Record, tmp[j].Record, tmp[i].key, tmp[j].key)
	})

	out := make([]DeckStat, len(tmp))
	for i, k := range tmp {
		out[i] = k.DeckStat
	}
	return out
}

// rankTypes orders archetypes by games played
func rankTypes(m map[string]*Record) []TypeStat {
	out := make([]TypeStat, 0, len(m))
	for a, r := range m {
		r.finish()
		out = append(out, TypeStat{Archetype: archetype.Archetype(a), Record: *r})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Games != out[j].Games {
			return out[i].Games > out[j].Games
		}
		return out[i].Archetype < out[j].Archetype
	})
	return out
}

func reversed[T any](in []T) []T {
	out := make([]T, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}
