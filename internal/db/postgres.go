package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"meta-analyzer/internal/archetype"
	"meta-analyzer/internal/report"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore stores tables in Postgres
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a connection pool and checks it
func NewPGStore(ctx context.Context, url string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PGStore{pool: pool}, nil
}

// Close closes the connection pool
func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}

// Pool returns the underlying connection pool for custom queries
func (s *PGStore) Pool() *pgxpool.Pool {
	return s.pool
}

// CreateTables creates the schema if it doesn't exist
func (s *PGStore) CreateTables(ctx context.Context) error {
	for _, query := range schema {
		if _, err := s.pool.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// SaveTables writes a run and its tables in one transaction. Participant
// rows go through COPY.
func (s *PGStore) SaveTables(ctx context.Context, run RunInfo, tables report.Tables) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO runs (id, outcome, matches, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET outcome = EXCLUDED.outcome, matches = EXCLUDED.matches, created_at = EXCLUDED.created_at
	`, run.ID, run.Outcome, run.Matches, run.CreatedAt.UTC().Format(createdLayout)); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	for _, table := range []string{"participant_rows", "deck_stats", "matchup_stats"} {
		if _, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE run_id = $1", table), run.ID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"participant_rows"},
		[]string{"run_id", "seq", "archetype", "opponent_archetype", "won"},
		pgx.CopyFromSlice(len(tables.Rows), func(i int) ([]any, error) {
			r := tables.Rows[i]
			return []any{run.ID, i, string(r.Archetype), string(r.OpponentArchetype), r.Won}, nil
		}),
	); err != nil {
		return fmt.Errorf("failed to copy rows: %w", err)
	}

	batch := &pgx.Batch{}
	for _, d := range tables.Decks {
		batch.Queue(`
			INSERT INTO deck_stats (run_id, archetype, games, wins, losses, win_rate, meta_share)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, run.ID, string(d.Archetype), d.Games, d.Wins, d.Losses, d.WinRate, d.MetaShare)
	}
	for _, m := range tables.Matchups {
		batch.Queue(`
			INSERT INTO matchup_stats (run_id, archetype, opponent_archetype, games, wins, win_rate)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, run.ID, string(m.Archetype), string(m.OpponentArchetype), m.Games, m.Wins, m.WinRate)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert summaries: %w", err)
	}

	return tx.Commit(ctx)
}

// LoadTables returns the most recently saved run
func (s *PGStore) LoadTables(ctx context.Context) (RunInfo, report.Tables, error) {
	var run RunInfo
	var created string
	err := s.pool.QueryRow(ctx,
		`SELECT id, outcome, matches, created_at FROM runs ORDER BY created_at DESC LIMIT 1`).
		Scan(&run.ID, &run.Outcome, &run.Matches, &created)
	if errors.Is(err, pgx.ErrNoRows) {
		return RunInfo{}, report.Tables{}, ErrNoRuns
	}
	if err != nil {
		return RunInfo{}, report.Tables{}, fmt.Errorf("failed to load run: %w", err)
	}
	run.CreatedAt, _ = time.Parse(createdLayout, created)

	tables := report.Tables{
		Rows:     []report.Row{},
		Decks:    []report.DeckSummary{},
		Matchups: []report.Matchup{},
	}

	rows, err := s.pool.Query(ctx,
		`SELECT archetype, opponent_archetype, won FROM participant_rows WHERE run_id = $1 ORDER BY seq`, run.ID)
	if err != nil {
		return run, tables, err
	}
	tables.Rows, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (report.Row, error) {
		var r report.Row
		var a, o string
		err := row.Scan(&a, &o, &r.Won)
		r.Archetype, r.OpponentArchetype = archetype.Archetype(a), archetype.Archetype(o)
		return r, err
	})
	if err != nil {
		return run, tables, err
	}

	rows, err = s.pool.Query(ctx, `
		SELECT archetype, games, wins, losses, win_rate, meta_share FROM deck_stats
		WHERE run_id = $1 ORDER BY games DESC, archetype
	`, run.ID)
	if err != nil {
		return run, tables, err
	}
	tables.Decks, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (report.DeckSummary, error) {
		var d report.DeckSummary
		var a string
		err := row.Scan(&a, &d.Games, &d.Wins, &d.Losses, &d.WinRate, &d.MetaShare)
		d.Archetype = archetype.Archetype(a)
		return d, err
	})
	if err != nil {
		return run, tables, err
	}

	rows, err = s.pool.Query(ctx, `
		SELECT archetype, opponent_archetype, games, wins, win_rate FROM matchup_stats
		WHERE run_id = $1 ORDER BY archetype, games DESC, opponent_archetype
	`, run.ID)
	if err != nil {
		return run, tables, err
	}
	tables.Matchups, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (report.Matchup, error) {
		var m report.Matchup
		var a, o string
		err := row.Scan(&a, &o, &m.Games, &m.Wins, &m.WinRate)
		m.Archetype, m.OpponentArchetype = archetype.Archetype(a), archetype.Archetype(o)
		return m, err
	})
	return run, tables, err
}
