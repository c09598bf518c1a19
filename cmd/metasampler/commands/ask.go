package commands

import (
	"strings"

	"meta-analyzer/internal/coach"
	"meta-analyzer/internal/printer"
	"meta-analyzer/internal/royale"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	askTag   string
	askDir   string
	askNotes bool
)

var askCmd = &cobra.Command{
	Use:   "ask QUESTION",
	Short: "Ask the coach about your games or the current meta",
	Long: `Answer a free-form question using the latest meta tables and, with --tag,
the player's recent battles. A small model routes the question to the
tables it needs; a larger model writes the answer. Requires GEMINI_API_KEY.

Examples:
  metasampler ask --tag "#8C8JJQLG" "why do I keep losing to Golem?"
  metasampler ask "which archetype has the best win rate right now?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askTag, "tag", "t", "", "Player tag for personal stats")
	askCmd.Flags().StringVar(&askDir, "dir", "", "Checkpoint directory for meta tables (default BLOB_STORAGE_PATH)")
	askCmd.Flags().BoolVar(&askNotes, "notes", false, "Print how the answer was reached")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	if cfg.Secrets.GeminiAPIKey == "" {
		return printer.Error("GEMINI_API_KEY is not set",
			"The coach needs a Gemini API key for its models.",
			[]string{"Add GEMINI_API_KEY to .env"})
	}
	question := strings.Join(args, " ")

	dir := askDir
	if dir == "" {
		dir = cfg.Secrets.StoragePath
	}
	meta, source, err := loadMetaTables(ctx, dir, "")
	if err != nil {
		printer.Warning("No meta tables (%v); answering from player data only\n", err)
	} else {
		logger.Debug("meta tables loaded", zap.String("source", source))
	}
	data := coach.Data{Meta: meta}

	if askTag != "" {
		up, cleanup, err := upstream(ctx)
		if err != nil {
			return err
		}
		defer cleanup()
		rep, _, err := fetchPlayer(ctx, up, royale.NormalizeTag(askTag))
		if err != nil {
			return err
		}
		data.Player = rep
	}

	llm, err := coach.NewGenAI(ctx, cfg.Secrets.GeminiAPIKey)
	if err != nil {
		return err
	}
	c := coach.New(llm, logger)
	c.ClassifierModel = cfg.Coach.ClassifierModel
	c.ExpertModel = cfg.Coach.ExpertModel

	ans, err := c.Ask(ctx, question, data)
	if err != nil {
		return err
	}

	if ans.Warning != "" {
		printer.Warning("%s\n", ans.Warning)
	}
	printer.Println(ans.Text)
	if askNotes {
		printer.Heading(cmd.OutOrStdout(), "Notes")
		for _, n := range ans.Notes {
			printer.Println("  " + n)
		}
	}
	return nil
}
