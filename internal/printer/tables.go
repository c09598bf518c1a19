package printer

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"meta-analyzer/internal/analytics"
	"meta-analyzer/internal/report"

	"github.com/olekukonko/tablewriter"
)

func pct(f float64) string {
	return fmt.Sprintf("%.1f%%", f*100)
}

func render(w io.Writer, header []string, rows [][]string) error {
	cols := make([]any, len(header))
	for i, h := range header {
		cols[i] = h
	}
	table := tablewriter.NewWriter(w)
	table.Header(cols...)
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return fmt.Errorf("append row: %w", err)
		}
	}
	return table.Render()
}

// DeckTable prints the per-archetype meta summary
func DeckTable(w io.Writer, decks []report.DeckSummary) error {
	rows := make([][]string, 0, len(decks))
	for _, d := range decks {
		rows = append(rows, []string{
			d.Archetype.String(),
			strconv.Itoa(d.Games),
			strconv.Itoa(d.Wins),
			strconv.Itoa(d.Losses),
			pct(d.WinRate),
			pct(d.MetaShare),
		})
	}
	return render(w, []string{"Archetype", "Games", "Wins", "Losses", "Win Rate", "Meta Share"}, rows)
}

// MatchupTable prints archetype-vs-archetype win rates, mirrors excluded
// by the caller when wanted
func MatchupTable(w io.Writer, matchups []report.Matchup) error {
	rows := make([][]string, 0, len(matchups))
	for _, m := range matchups {
		rows = append(rows, []string{
			m.Archetype.String(),
			m.OpponentArchetype.String(),
			strconv.Itoa(m.Games),
			strconv.Itoa(m.Wins),
			pct(m.WinRate),
		})
	}
	return render(w, []string{"Archetype", "Opponent", "Games", "Wins", "Win Rate"}, rows)
}

// RecordTable prints a single win/loss summary
func RecordTable(w io.Writer, r analytics.Record) error {
	return render(w, []string{"Games", "Wins", "Losses", "Draws", "Win Rate"}, [][]string{{
		strconv.Itoa(r.Games),
		strconv.Itoa(r.Wins),
		strconv.Itoa(r.Losses),
		strconv.Itoa(r.Draws),
		pct(r.WinRate),
	}})
}

// CardTable prints up to limit card records
func CardTable(w io.Writer, cards []analytics.CardStat, limit int) error {
	var rows [][]string
	for i, c := range cards {
		if limit > 0 && i == limit {
			break
		}
		rows = append(rows, []string{c.Card, strconv.Itoa(c.Games), strconv.Itoa(c.Wins), pct(c.WinRate)})
	}
	return render(w, []string{"Card", "Games", "Wins", "Win Rate"}, rows)
}

// DeckListTable prints up to limit exact-deck records
func DeckListTable(w io.Writer, decks []analytics.DeckStat, limit int) error {
	var rows [][]string
	for i, d := range decks {
		if limit > 0 && i == limit {
			break
		}
		rows = append(rows, []string{strings.Join(d.Deck, ", "), strconv.Itoa(d.Games), strconv.Itoa(d.Wins), pct(d.WinRate)})
	}
	return render(w, []string{"Deck", "Games", "Wins", "Win Rate"}, rows)
}

// TypeTable prints per-archetype records for one side of a player's matches
func TypeTable(w io.Writer, types []analytics.TypeStat) error {
	rows := make([][]string, 0, len(types))
	for _, t := range types {
		rows = append(rows, []string{
			t.Archetype.String(),
			strconv.Itoa(t.Games),
			strconv.Itoa(t.Wins),
			strconv.Itoa(t.Losses),
			pct(t.WinRate),
		})
	}
	return render(w, []string{"Archetype", "Games", "Wins", "Losses", "Win Rate"}, rows)
}
