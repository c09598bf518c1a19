package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"meta-analyzer/internal/discord"
	"meta-analyzer/internal/printer"
	"meta-analyzer/internal/royale"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	checkKeyWait     bool
	checkKeyTimeout  time.Duration
	checkKeyInterval time.Duration
	checkKeyEnvFile  string
)

var checkKeyCmd = &cobra.Command{
	Use:   "checkkey",
	Short: "Validate CR_API_TOKEN, optionally waiting for a replacement on Discord",
	Long: `Check the configured API token with a lightweight request.

Developer tokens are tied to an IP address, so a moved machine gets 403s.
With --wait, a rejected token is reported to DISCORD_WEBHOOK_URL and the
command then watches DISCORD_CHANNEL_ID (as the DISCORD_BOT_TOKEN bot) for a
new token. A token that validates is announced in the channel and, with
--env-file, written back as CR_API_TOKEN.

Examples:
  metasampler checkkey
  metasampler checkkey --wait --timeout 2h --env-file .env`,
	Args: cobra.NoArgs,
	RunE: runCheckKey,
}

func init() {
	checkKeyCmd.Flags().BoolVar(&checkKeyWait, "wait", false, "Wait on Discord for a replacement token when rejected")
	checkKeyCmd.Flags().DurationVar(&checkKeyTimeout, "timeout", time.Hour, "How long to wait for a replacement")
	checkKeyCmd.Flags().DurationVar(&checkKeyInterval, "interval", 10*time.Second, "Discord polling interval")
	checkKeyCmd.Flags().StringVar(&checkKeyEnvFile, "env-file", "", "Write an accepted replacement to this .env file")
}

func newValidator() *royale.KeyValidator {
	if cfg.API.BaseURL != "" {
		return royale.NewKeyValidator(royale.WithBaseURL(cfg.API.BaseURL))
	}
	return royale.NewKeyValidator()
}

func runCheckKey(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	validator := newValidator()
	token := cfg.Secrets.APIToken

	if token != "" {
		valid, err := validator.ValidateKey(ctx, token)
		if err != nil {
			return printer.Error("Could not validate token", err.Error(),
				[]string{"Check network access to the API and try again"})
		}
		if valid {
			printer.Success("API token accepted\n")
			return nil
		}
		printer.Warning("API token rejected (expired or not whitelisted for this IP)\n")
	} else {
		printer.Warning("CR_API_TOKEN is not set\n")
	}

	if hook := webhook(); hook != nil {
		if err := hook.SendTokenRejected(ctx, 0, 0); err != nil {
			logger.Warn("failed to send token notification", zap.Error(err))
		}
	}

	if !checkKeyWait {
		return printer.Error("No valid API token", "",
			[]string{"Create a token for this IP at https://developer.clashroyale.com, or rerun with --wait"})
	}
	if cfg.Secrets.DiscordBotToken == "" || cfg.Secrets.DiscordChannelID == "" {
		return printer.Error("Cannot wait for a token",
			"--wait needs DISCORD_BOT_TOKEN and DISCORD_CHANNEL_ID.", nil)
	}

	finder := discord.NewKeyFinder(cfg.Secrets.DiscordBotToken, cfg.Secrets.DiscordChannelID,
		discord.WithPollInterval(checkKeyInterval),
		discord.WithKeyFinderLogger(logger),
	)
	replacement, err := awaitValidToken(ctx, finder, validator, checkKeyTimeout)
	if err != nil {
		return printer.Error("No replacement token", err.Error(), nil)
	}

	if err := finder.SendEmbed(ctx, discord.NewSessionStartedPayload(replacement)); err != nil {
		logger.Warn("failed to announce token", zap.Error(err))
	}
	printer.Success("Replacement token accepted\n")

	if checkKeyEnvFile == "" {
		printer.Info("Set CR_API_TOKEN to the new token to use it\n")
		return nil
	}
	if err := writeEnvToken(checkKeyEnvFile, replacement); err != nil {
		return err
	}
	printer.Success("Wrote CR_API_TOKEN to %s\n", checkKeyEnvFile)
	return nil
}

// awaitValidToken waits for posted tokens until one validates or timeout passes
func awaitValidToken(ctx context.Context, finder *discord.KeyFinder, validator *royale.KeyValidator, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	printer.Step("Waiting up to %s for a new token on Discord\n", timeout)
	since := time.Now()
	for {
		candidate, err := finder.WaitForKey(ctx, since)
		if err != nil {
			return "", fmt.Errorf("waiting for token: %w", err)
		}
		valid, err := validator.ValidateKey(ctx, candidate)
		if err == nil && valid {
			return candidate, nil
		}
		logger.Warn("posted token did not validate", zap.Bool("rejected", err == nil), zap.Error(err))
		// Only look at messages after the bad one
		since = time.Now()
	}
}

// writeEnvToken sets CR_API_TOKEN in path, keeping its other entries
func writeEnvToken(path, token string) error {
	env, err := godotenv.Read(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		env = map[string]string{}
	}
	env["CR_API_TOKEN"] = token
	if err := godotenv.Write(env, path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return os.Chmod(path, 0600)
}
