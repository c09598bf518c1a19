// Package db persists finalized archetype tables. SQLStore covers local
// SQLite files and Turso; PGStore covers Postgres.
package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"meta-analyzer/internal/report"
)

// ErrNoRuns is returned by LoadTables when nothing has been saved yet
var ErrNoRuns = errors.New("no saved runs")

// RunInfo describes a saved run
type RunInfo struct {
	ID        string
	Outcome   string
	Matches   int
	CreatedAt time.Time
}

// Store saves and loads finalized tables
type Store interface {
	CreateTables(ctx context.Context) error
	SaveTables(ctx context.Context, run RunInfo, tables report.Tables) error
	LoadTables(ctx context.Context) (RunInfo, report.Tables, error)
	Close() error
}

// Open picks a backend from the URL scheme: postgres:// and postgresql://
// use pgx, libsql:// and https:// use Turso, anything else is a SQLite path.
func Open(ctx context.Context, url, authToken string) (Store, error) {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return NewPGStore(ctx, url)
	case strings.HasPrefix(url, "libsql://"), strings.HasPrefix(url, "https://"), strings.HasPrefix(url, "wss://"):
		return NewTursoStore(ctx, url, authToken)
	case url == "":
		return nil, fmt.Errorf("database url is empty")
	default:
		return NewSQLiteStore(ctx, strings.TrimPrefix(url, "sqlite://"))
	}
}

const batchSize = 100

// Fixed width so created_at sorts as text
const createdLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Schema shared by both backends; only placeholders differ
var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		outcome TEXT NOT NULL,
		matches INTEGER NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS participant_rows (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		archetype TEXT NOT NULL,
		opponent_archetype TEXT NOT NULL,
		won BOOLEAN NOT NULL,
		PRIMARY KEY (run_id, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS deck_stats (
		run_id TEXT NOT NULL,
		archetype TEXT NOT NULL,
		games INTEGER NOT NULL,
		wins INTEGER NOT NULL,
		losses INTEGER NOT NULL,
		win_rate REAL NOT NULL,
		meta_share REAL NOT NULL,
		PRIMARY KEY (run_id, archetype)
	)`,
	`CREATE TABLE IF NOT EXISTS matchup_stats (
		run_id TEXT NOT NULL,
		archetype TEXT NOT NULL,
		opponent_archetype TEXT NOT NULL,
		games INTEGER NOT NULL,
		wins INTEGER NOT NULL,
		win_rate REAL NOT NULL,
		PRIMARY KEY (run_id, archetype, opponent_archetype)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at)`,
}
