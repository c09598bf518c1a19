package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"meta-analyzer/internal/analytics"
	"meta-analyzer/internal/battle"
	"meta-analyzer/internal/cache"
	"meta-analyzer/internal/coach"
	"meta-analyzer/internal/printer"
	"meta-analyzer/internal/royale"

	"github.com/spf13/cobra"
)

var (
	playerMinGames int
	playerTop      int
)

var playerCmd = &cobra.Command{
	Use:   "player TAG",
	Short: "Summarize one player's recent ranked battles",
	Long: `Fetch a player's battlelog, keep every eligible 1v1 ranked battle, and
print their record, best and worst cards and decks, and results per
archetype on both sides.

Example:
  metasampler player "#8C8JJQLG" --min-games 2`,
	Args: cobra.ExactArgs(1),
	RunE: runPlayer,
}

func init() {
	playerCmd.Flags().IntVar(&playerMinGames, "min-games", analytics.DefaultMinGames, "Minimum games for a card or deck to be ranked")
	playerCmd.Flags().IntVar(&playerTop, "top", 5, "Rows per ranked table")
}

// fetchPlayer returns the analytics for tag, or a printed error
func fetchPlayer(ctx context.Context, up cache.Upstream, tag string) (*analytics.Report, []battle.Match, error) {
	raw, err := up.FetchBattleLog(ctx, tag)
	if err != nil {
		switch {
		case errors.Is(err, royale.ErrNotFound):
			return nil, nil, printer.Error(fmt.Sprintf("Player %s not found", royale.NormalizeTag(tag)),
				"The API has no player with that tag.", []string{"Check the tag in the in-game profile"})
		case royale.IsAuthError(err):
			return nil, nil, printer.Error("API token rejected", err.Error(),
				[]string{"Run `metasampler checkkey --wait` to pick up a new token"})
		}
		return nil, nil, err
	}

	matches := cfg.PlayerNormalizer().Normalize(raw)
	rep := analytics.Compute(matches, analytics.Options{MinCardGames: playerMinGames, MinDeckGames: playerMinGames})
	return &rep, matches, nil
}

func runPlayer(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	up, cleanup, err := upstream(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	tag := royale.NormalizeTag(args[0])
	rep, matches, err := fetchPlayer(ctx, up, tag)
	if err != nil {
		return err
	}

	out := os.Stdout
	printer.Info("%s: %d eligible ranked battles\n", tag, len(matches))
	if len(matches) == 0 {
		printer.Warning("No eligible battles in the recent battlelog\n")
		return nil
	}

	sections := []struct {
		title  string
		render func() error
	}{
		{"Summary", func() error { return printer.RecordTable(out, rep.Summary) }},
		{"Your deck types", func() error { return printer.TypeTable(out, rep.MyDeckTypes) }},
		{"Opponent deck types (your results)", func() error { return printer.TypeTable(out, rep.OpponentTypes) }},
		{"Best cards", func() error { return printer.CardTable(out, rep.BestCards, playerTop) }},
		{"Worst cards", func() error { return printer.CardTable(out, rep.WorstCards, playerTop) }},
		{"Toughest opponent cards", func() error { return printer.CardTable(out, rep.ToughOppCards, playerTop) }},
		{"Best decks", func() error { return printer.DeckListTable(out, rep.BestDecks, playerTop) }},
		{"Toughest opponent decks", func() error { return printer.DeckListTable(out, rep.ToughMatchups, playerTop) }},
	}
	for _, s := range sections {
		printer.Heading(out, s.title)
		if err := s.render(); err != nil {
			return err
		}
	}

	if w := coach.LowDataWarning(coach.CategoryUser, rep.Summary.Games); w != "" {
		printer.Warning("%s\n", w)
	}
	return nil
}
