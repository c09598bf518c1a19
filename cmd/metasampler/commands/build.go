package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"meta-analyzer/internal/db"
	"meta-analyzer/internal/discord"
	"meta-analyzer/internal/printer"
	"meta-analyzer/internal/royale"
	"meta-analyzer/internal/sampler"
	"meta-analyzer/internal/storage"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	buildPlayers  int
	buildOutDir   string
	buildColdDir  string
	buildNoSave   bool
	buildCompress bool
	buildMirrors  bool
	buildNotes    bool
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Sample the ladder into a balanced corpus and derive archetype tables",
	Long: `Fetch the top of the Path of Legend leaderboard once, then sample players
from it until the corpus holds enough battles in total and for every
required archetype, the candidate pool runs out, or the round budget is
spent.

Each completed round is checkpointed to BLOB_STORAGE_PATH (hot/ then warm/),
final tables are saved to DATABASE_URL, and a summary is posted to
DISCORD_WEBHOOK_URL when those are set. Ctrl-C discards the round in flight
and keeps everything before it.

Examples:
  # Default thresholds (2000 battles, 400 per archetype)
  metasampler build

  # Smaller pool, checkpoints to ./corpus, gzip closed files afterwards
  metasampler build --players 150 --out ./corpus --compress`,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().IntVar(&buildPlayers, "players", 0, "Leaderboard players in the candidate pool (default from config)")
	buildCmd.Flags().StringVarP(&buildOutDir, "out", "o", "", "Checkpoint directory (default BLOB_STORAGE_PATH)")
	buildCmd.Flags().StringVar(&buildColdDir, "cold-dir", "", "Directory for compressed checkpoints (default <out>/cold)")
	buildCmd.Flags().BoolVar(&buildNoSave, "no-save", false, "Skip saving tables to DATABASE_URL")
	buildCmd.Flags().BoolVar(&buildCompress, "compress", false, "Gzip closed checkpoint files to cold/ when done")
	buildCmd.Flags().BoolVar(&buildMirrors, "mirrors", false, "Include mirror matchups in the printed matchup table")
	buildCmd.Flags().BoolVar(&buildNotes, "notes", false, "Print the run notes")
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	up, cleanup, err := upstream(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	controller := sampler.NewController(cfg.SamplerConfig(), up, cfg.MetaNormalizer(), logger)
	runID := uuid.NewString()
	controller.SetRunID(runID)

	outDir := buildOutDir
	if outDir == "" {
		outDir = cfg.Secrets.StoragePath
	}
	var rotator *storage.FileRotator
	if outDir != "" {
		rotator, err = storage.NewFileRotator(outDir, runID, logger)
		if err != nil {
			return fmt.Errorf("failed to create file rotator: %w", err)
		}
		if buildColdDir != "" {
			if err := rotator.SetColdDir(buildColdDir); err != nil {
				rotator.Close()
				return err
			}
		}
		controller.SetRoundSink(rotator)
		printer.Step("Checkpointing rounds to %s\n", outDir)
	}

	players := buildPlayers
	if players <= 0 {
		players = cfg.Sampling.LeaderboardSize
	}
	printer.Step("Sampling up to %d leaderboard players (run %s)\n", players, runID)

	hook := webhook()
	res, runErr := controller.RunFromLeaderboard(ctx, up, players)

	if rotator != nil {
		if err := rotator.Close(); err != nil {
			logger.Error("error closing rotator", zap.Error(err))
		}
		if buildCompress {
			n, err := rotator.CompressWarm()
			if err != nil {
				logger.Error("failed to compress checkpoints", zap.Error(err))
			} else {
				printer.Success("Compressed %d checkpoint files\n", n)
			}
		}
	}

	if res == nil {
		if royale.IsAuthError(runErr) && hook != nil {
			// Fresh context: ctx may already be cancelled
			notifyCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := hook.SendTokenRejected(notifyCtx, 0, 0); err != nil {
				logger.Warn("failed to send token notification", zap.Error(err))
			}
		}
		if errors.Is(runErr, sampler.ErrEmptyPool) {
			return printer.Error("Leaderboard returned no players",
				fmt.Sprintf("Location %q has no Path of Legend rankings.", cfg.API.Location),
				[]string{"Set api.location to \"global\" or a country location ID"})
		}
		return runErr
	}

	printBuildResult(res)

	if !buildNoSave {
		if err := saveRun(ctx, res); err != nil {
			printer.Warning("Tables not saved: %v\n", err)
		}
	}
	notifyRun(hook, res)

	if runErr != nil {
		printer.Warning("Run aborted; tables cover the %d matches from completed rounds\n", len(res.Corpus))
		return runErr
	}
	return nil
}

func printBuildResult(res *sampler.Result) {
	out := os.Stdout
	switch res.Outcome {
	case sampler.OutcomeComplete:
		printer.Success("Corpus complete: %d matches from %d players in %d rounds\n",
			len(res.Corpus), res.Participants, res.Rounds)
	default:
		printer.Warning("Corpus %s: %d matches from %d players in %d rounds\n",
			res.Outcome, len(res.Corpus), res.Participants, res.Rounds)
	}

	if buildNotes {
		printer.Heading(out, "Notes")
		for _, n := range res.Notes {
			printer.Println("  " + n)
		}
	}

	if res.Tables.Empty() {
		printer.Warning("No eligible matches collected\n")
		return
	}
	printer.Heading(out, "Archetypes")
	if err := printer.DeckTable(out, res.Tables.Decks); err != nil {
		logger.Error("failed to render deck table", zap.Error(err))
	}
	printer.Heading(out, "Matchups")
	matchups := res.Tables.VersusOthers()
	if buildMirrors {
		matchups = res.Tables.Matchups
	}
	if err := printer.MatchupTable(out, matchups); err != nil {
		logger.Error("failed to render matchup table", zap.Error(err))
	}
}

func saveRun(ctx context.Context, res *sampler.Result) error {
	// The run is over; a Ctrl-C during the run must not block saving it
	ctx = context.WithoutCancel(ctx)
	store, err := openStore(ctx)
	if err != nil || store == nil {
		return err
	}
	defer store.Close()

	run := db.RunInfo{
		ID:        res.RunID,
		Outcome:   string(res.Outcome),
		Matches:   len(res.Corpus),
		CreatedAt: res.FinishedAt,
	}
	if err := store.SaveTables(ctx, run, res.Tables); err != nil {
		return err
	}
	printer.Success("Saved tables for run %s\n", res.RunID)
	return nil
}

func notifyRun(hook *discord.WebhookClient, res *sampler.Result) {
	if hook == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	summary := discord.RunSummary{
		RunID:        res.RunID,
		Outcome:      string(res.Outcome),
		Matches:      len(res.Corpus),
		Participants: res.Participants,
		Rounds:       res.Rounds,
		Failures:     res.Failures,
		Duration:     res.FinishedAt.Sub(res.StartedAt),
		Decks:        res.Tables.Decks,
	}
	if err := hook.SendRunComplete(ctx, summary); err != nil {
		logger.Warn("failed to send run notification", zap.Error(err))
	}
	if res.Outcome == sampler.OutcomeBestEffort {
		if err := hook.SendCoverageWarning(ctx, res.RunID, len(res.Corpus), res.Shortfall); err != nil {
			logger.Warn("failed to send coverage warning", zap.Error(err))
		}
	}
}
