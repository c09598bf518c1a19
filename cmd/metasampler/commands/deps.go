package commands

import (
	"context"
	"errors"
	"fmt"

	"meta-analyzer/internal/cache"
	"meta-analyzer/internal/db"
	"meta-analyzer/internal/discord"
	"meta-analyzer/internal/printer"
	"meta-analyzer/internal/report"
	"meta-analyzer/internal/royale"
	"meta-analyzer/internal/storage"

	"go.uber.org/zap"
)

// upstream builds the API client, behind the Redis cache when REDIS_URL is set.
// The returned cleanup closes the Redis connection.
func upstream(ctx context.Context) (cache.Upstream, func(), error) {
	if cfg.Secrets.APIToken == "" {
		return nil, nil, printer.Error(
			"CR_API_TOKEN is not set",
			"The Clash Royale API needs a developer token whitelisted for this machine's IP.",
			[]string{"Create one at https://developer.clashroyale.com and add CR_API_TOKEN to .env"},
		)
	}

	opts := []royale.ClientOption{
		royale.WithLogger(logger.Named("royale")),
		royale.WithLocation(cfg.API.Location),
		royale.WithRateLimit(cfg.API.RequestsPerSecond, cfg.API.RequestsPerMinute),
	}
	if cfg.API.BaseURL != "" {
		opts = append(opts, royale.WithClientBaseURL(cfg.API.BaseURL))
	}
	client, err := royale.NewClient(cfg.Secrets.APIToken, opts...)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Secrets.RedisURL == "" {
		return client, func() {}, nil
	}
	rdb, err := cache.Connect(ctx, cfg.Secrets.RedisURL)
	if err != nil {
		logger.Warn("battlelog cache unavailable, fetching directly", zap.Error(err))
		return client, func() {}, nil
	}
	cached := cache.New(client, rdb, cfg.Cache.TTL, logger)
	return cached, func() {
		hits, misses := cached.Stats()
		logger.Debug("battlelog cache", zap.Int64("hits", hits), zap.Int64("misses", misses))
		rdb.Close()
	}, nil
}

// openStore opens DATABASE_URL; a nil store means no database is configured
func openStore(ctx context.Context) (db.Store, error) {
	if cfg.Secrets.DatabaseURL == "" {
		return nil, nil
	}
	store, err := db.Open(ctx, cfg.Secrets.DatabaseURL, cfg.Secrets.DatabaseAuthToken)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := store.CreateTables(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return store, nil
}

// webhook returns nil when DISCORD_WEBHOOK_URL is unset
func webhook() *discord.WebhookClient {
	if cfg.Secrets.DiscordWebhookURL == "" {
		return nil
	}
	return discord.NewWebhookClient(cfg.Secrets.DiscordWebhookURL)
}

// loadMetaTables returns the latest saved tables: from the database when
// one is configured, otherwise from checkpoint files under storageDir.
func loadMetaTables(ctx context.Context, storageDir, runID string) (report.Tables, string, error) {
	if runID == "" {
		store, err := openStore(ctx)
		if err != nil {
			return report.Tables{}, "", err
		}
		if store != nil {
			defer store.Close()
			run, tables, err := store.LoadTables(ctx)
			if err == nil {
				return tables, "database run " + run.ID, nil
			}
			if !errors.Is(err, db.ErrNoRuns) {
				return report.Tables{}, "", err
			}
			logger.Info("no runs in database, trying checkpoint files")
		}
	}

	if storageDir == "" {
		return report.Tables{}, "", errors.New("no saved tables: set DATABASE_URL or BLOB_STORAGE_PATH")
	}
	if runID == "" {
		latest, err := storage.LatestRun(storageDir)
		if err != nil {
			return report.Tables{}, "", err
		}
		runID = latest
	}
	records, err := storage.ReadCorpus(storageDir, runID)
	if err != nil {
		return report.Tables{}, "", err
	}
	if len(records) == 0 {
		return report.Tables{}, "", fmt.Errorf("no checkpoints for run %s", runID)
	}
	return report.Finalize(storage.Matches(records)), "checkpoint run " + runID, nil
}
