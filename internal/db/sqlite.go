package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"meta-analyzer/internal/archetype"
	"meta-analyzer/internal/report"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

// SQLStore stores tables through database/sql with ? placeholders
type SQLStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a local SQLite file
func NewSQLiteStore(ctx context.Context, path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// SQLite allows one writer
	db.SetMaxOpenConns(1)
	return newSQLStore(ctx, db, "sqlite")
}

// NewTursoStore connects to a Turso database
func NewTursoStore(ctx context.Context, url, authToken string) (*SQLStore, error) {
	connStr := url
	if authToken != "" {
		connStr = fmt.Sprintf("%s?authToken=%s", url, authToken)
	}

	db, err := sql.Open("libsql", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Turso: %w", err)
	}
	return newSQLStore(ctx, db, "Turso")
}

func newSQLStore(ctx context.Context, db *sql.DB, name string) (*SQLStore, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", name, err)
	}
	return &SQLStore{db: db}, nil
}

// Close closes the connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// CreateTables creates the schema if it doesn't exist
func (s *SQLStore) CreateTables(ctx context.Context) error {
	for _, query := range schema {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// SaveTables writes a run and its tables
func (s *SQLStore) SaveTables(ctx context.Context, run RunInfo, tables report.Tables) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (id, outcome, matches, created_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Outcome, run.Matches, run.CreatedAt.UTC().Format(createdLayout)); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	for _, table := range []string{"participant_rows", "deck_stats", "matchup_stats"} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE run_id = ?", table), run.ID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	if err := insertRows(ctx, tx, run.ID, tables.Rows); err != nil {
		return err
	}

	deckStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO deck_stats (run_id, archetype, games, wins, losses, win_rate, meta_share) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer deckStmt.Close()
	for _, d := range tables.Decks {
		if _, err := deckStmt.ExecContext(ctx, run.ID, string(d.Archetype), d.Games, d.Wins, d.Losses, d.WinRate, d.MetaShare); err != nil {
			return fmt.Errorf("failed to insert deck %s: %w", d.Archetype, err)
		}
	}

	matchupStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO matchup_stats (run_id, archetype, opponent_archetype, games, wins, win_rate) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer matchupStmt.Close()
	for _, m := range tables.Matchups {
		if _, err := matchupStmt.ExecContext(ctx, run.ID, string(m.Archetype), string(m.OpponentArchetype), m.Games, m.Wins, m.WinRate); err != nil {
			return fmt.Errorf("failed to insert matchup %s/%s: %w", m.Archetype, m.OpponentArchetype, err)
		}
	}

	return tx.Commit()
}

// insertRows writes participant rows as multi-value inserts of batchSize
func insertRows(ctx context.Context, tx *sql.Tx, runID string, rows []report.Row) error {
	for i := 0; i < len(rows); i += batchSize {
		end := i + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[i:end]

		query := `INSERT INTO participant_rows (run_id, seq, archetype, opponent_archetype, won) VALUES `
		args := make([]any, 0, len(batch)*5)
		for j, r := range batch {
			if j > 0 {
				query += ", "
			}
			query += "(?, ?, ?, ?, ?)"
			args = append(args, runID, i+j, string(r.Archetype), string(r.OpponentArchetype), r.Won)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert rows %d-%d: %w", i, end, err)
		}
	}
	return nil
}

// LoadTables returns the most recently saved run
func (s *SQLStore) LoadTables(ctx context.Context) (RunInfo, report.Tables, error) {
	var run RunInfo
	var created string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, outcome, matches, created_at FROM runs ORDER BY created_at DESC LIMIT 1`).
		Scan(&run.ID, &run.Outcome, &run.Matches, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return RunInfo{}, report.Tables{}, ErrNoRuns
	}
	if err != nil {
		return RunInfo{}, report.Tables{}, fmt.Errorf("failed to load run: %w", err)
	}
	run.CreatedAt, _ = time.Parse(createdLayout, created)

	tables, err := s.loadRun(ctx, run.ID)
	if err != nil {
		return RunInfo{}, report.Tables{}, err
	}
	return run, tables, nil
}

func (s *SQLStore) loadRun(ctx context.Context, runID string) (report.Tables, error) {
	tables := report.Tables{
		Rows:     []report.Row{},
		Decks:    []report.DeckSummary{},
		Matchups: []report.Matchup{},
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT archetype, opponent_archetype, won FROM participant_rows WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return tables, err
	}
	for rows.Next() {
		var r report.Row
		var a, o string
		if err := rows.Scan(&a, &o, &r.Won); err != nil {
			rows.Close()
			return tables, err
		}
		r.Archetype, r.OpponentArchetype = archetype.Archetype(a), archetype.Archetype(o)
		tables.Rows = append(tables.Rows, r)
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx,
		`SELECT archetype, games, wins, losses, win_rate, meta_share FROM deck_stats
		 WHERE run_id = ? ORDER BY games DESC, archetype`, runID)
	if err != nil {
		return tables, err
	}
	for rows.Next() {
		var d report.DeckSummary
		var a string
		if err := rows.Scan(&a, &d.Games, &d.Wins, &d.Losses, &d.WinRate, &d.MetaShare); err != nil {
			rows.Close()
			return tables, err
		}
		d.Archetype = archetype.Archetype(a)
		tables.Decks = append(tables.Decks, d)
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx,
		`SELECT archetype, opponent_archetype, games, wins, win_rate FROM matchup_stats
		 WHERE run_id = ? ORDER BY archetype, games DESC, opponent_archetype`, runID)
	if err != nil {
		return tables, err
	}
	defer rows.Close()
	for rows.Next() {
		var m report.Matchup
		var a, o string
		if err := rows.Scan(&a, &o, &m.Games, &m.Wins, &m.WinRate); err != nil {
			return tables, err
		}
		m.Archetype, m.OpponentArchetype = archetype.Archetype(a), archetype.Archetype(o)
		tables.Matchups = append(tables.Matchups, m)
	}
	return tables, rows.Err()
}
