package commands

import (
	"fmt"

	"meta-analyzer/internal/config"
	"meta-analyzer/internal/logging"
	"meta-analyzer/internal/printer"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	logLevel   string
	jsonLogs   bool

	cfg    *config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "metasampler",
	Short: "Balanced Clash Royale meta corpus builder and coach",
	Long: `metasampler samples top ladder players until every deck archetype is
represented well enough to trust, then derives archetype and matchup tables
from the resulting corpus.

The same tables back per-player reports and an LLM coach that answers
questions about a player's recent form against the current meta.

Secrets and endpoints come from the environment (or a .env file):
  CR_API_TOKEN         Clash Royale API token (required for build/player/ask)
  BLOB_STORAGE_PATH    directory for corpus checkpoint files
  DATABASE_URL         SQLite path, libsql:// (Turso) or postgres:// URL
  REDIS_URL            battlelog cache
  DISCORD_WEBHOOK_URL  run notifications
  GEMINI_API_KEY       coach models`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config.LoadDotEnv()

		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if logLevel != "" {
			loaded.Log.Level = logLevel
		}
		if cmd.Flags().Changed("json-logs") {
			loaded.Log.JSON = jsonLogs
		}

		l, err := logging.New(loaded.Log.Level, loaded.Log.JSON)
		if err != nil {
			return err
		}
		cfg, logger = loaded, l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute runs the root command
func Execute() error {
	// The printer package prints formatted errors itself
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	err := rootCmd.Execute()
	if err != nil && !printer.IsReported(err) {
		printer.Error("Error", err.Error(), nil)
	}
	return err
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (defaults apply when omitted)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Emit JSON log lines")

	rootCmd.AddCommand(buildCmd, reportCmd, playerCmd, askCmd, checkKeyCmd)
}
