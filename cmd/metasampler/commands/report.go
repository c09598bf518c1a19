package commands

import (
	"os"

	"meta-analyzer/internal/printer"

	"github.com/spf13/cobra"
)

var (
	reportRun     string
	reportDir     string
	reportMirrors bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the archetype and matchup tables of a saved run",
	Long: `Print the latest saved tables. DATABASE_URL is tried first; without a
database (or with --run) the corpus is rebuilt from checkpoint files under
BLOB_STORAGE_PATH, including gzipped cold files.

Examples:
  metasampler report
  metasampler report --run 5f1c... --dir ./corpus --mirrors`,
	Args: cobra.NoArgs,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportRun, "run", "", "Run ID to rebuild from checkpoint files")
	reportCmd.Flags().StringVar(&reportDir, "dir", "", "Checkpoint directory (default BLOB_STORAGE_PATH)")
	reportCmd.Flags().BoolVar(&reportMirrors, "mirrors", false, "Include mirror matchups")
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	dir := reportDir
	if dir == "" {
		dir = cfg.Secrets.StoragePath
	}
	tables, source, err := loadMetaTables(ctx, dir, reportRun)
	if err != nil {
		return printer.Error("No tables to report", err.Error(), []string{
			"Run `metasampler build` first",
			"Point DATABASE_URL or BLOB_STORAGE_PATH at an existing run",
		})
	}

	out := os.Stdout
	printer.Info("Source: %s (%d matches)\n", source, len(tables.Rows)/2)
	if tables.Empty() {
		printer.Warning("Run has no matches\n")
		return nil
	}

	printer.Heading(out, "Archetypes")
	if err := printer.DeckTable(out, tables.Decks); err != nil {
		return err
	}
	printer.Heading(out, "Matchups")
	matchups := tables.VersusOthers()
	if reportMirrors {
		matchups = tables.Matchups
	}
	return printer.MatchupTable(out, matchups)
}
