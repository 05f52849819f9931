package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tradesim/internal/domain"
	"tradesim/internal/stats"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ RunStore = (*SQLiteStore)(nil)

// SQLiteStore implements RunStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		strategy    TEXT NOT NULL,
		symbol      TEXT NOT NULL,
		pair_symbol TEXT NOT NULL DEFAULT '',
		sizing      TEXT NOT NULL,
		start_ts    INTEGER NOT NULL,
		end_ts      INTEGER NOT NULL,
		created_at  INTEGER NOT NULL,
		config      TEXT NOT NULL,
		summary     TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS runs_created_at ON runs (created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS run_states (
		run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq      INTEGER NOT NULL,
		ts       INTEGER NOT NULL,
		price    REAL,
		signal   REAL,
		target   REAL,
		cash     REAL,
		holdings REAL,
		total    REAL,
		ret      REAL,
		PRIMARY KEY (run_id, seq)
	)`,
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	for _, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate %s: %w", dbPath, err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// RunStore implementation
// ---------------------------------------------------------------------------

// SaveRun inserts a run and its states in one transaction.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *Run, states []domain.PortfolioState) error {
	summary, err := json.Marshal(run.Summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	cfg := run.Config
	if cfg == nil {
		cfg = []byte("{}")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, strategy, symbol, pair_symbol, sizing, start_ts, end_ts, created_at, config, summary)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Strategy, run.Symbol, run.PairSymbol, run.Sizing,
		run.Start.UnixNano(), run.End.UnixNano(), run.CreatedAt.UnixNano(),
		string(cfg), string(summary),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO run_states (run_id, seq, ts, price, signal, target, cash, holdings, total, ret)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, st := range states {
		_, err := stmt.ExecContext(ctx, run.ID, i, st.Timestamp.UnixNano(),
			nullFloat(st.Price), nullFloat(st.Signal), nullFloat(st.Target),
			nullFloat(st.Cash), nullFloat(st.Holdings), nullFloat(st.Total), nullFloat(st.Return))
		if err != nil {
			return fmt.Errorf("insert state %d of run %s: %w", i, run.ID, err)
		}
	}
	return tx.Commit()
}

// GetRun retrieves a single run by its ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, strategy, symbol, pair_symbol, sizing, start_ts, end_ts, created_at, config, summary
		 FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return run, err
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, strategy, symbol, pair_symbol, sizing, start_ts, end_ts, created_at, config, summary
		 FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// ReadStates returns the states of a run in bar order.
func (s *SQLiteStore) ReadStates(ctx context.Context, id string) ([]domain.PortfolioState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, price, signal, target, cash, holdings, total, ret
		 FROM run_states WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var states []domain.PortfolioState
	for rows.Next() {
		var (
			ts                                          int64
			price, signal, target, cash, hold, tot, ret sql.NullFloat64
		)
		if err := rows.Scan(&ts, &price, &signal, &target, &cash, &hold, &tot, &ret); err != nil {
			return nil, err
		}
		states = append(states, domain.PortfolioState{
			Timestamp: time.Unix(0, ts).UTC(),
			Price:     floatOrNaN(price),
			Signal:    floatOrNaN(signal),
			Target:    floatOrNaN(target),
			Cash:      floatOrNaN(cash),
			Holdings:  floatOrNaN(hold),
			Total:     floatOrNaN(tot),
			Return:    floatOrNaN(ret),
		})
	}
	return states, rows.Err()
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run                 Run
		start, end, created int64
		cfg, summary        string
	)
	err := row.Scan(&run.ID, &run.Strategy, &run.Symbol, &run.PairSymbol, &run.Sizing,
		&start, &end, &created, &cfg, &summary)
	if err != nil {
		return nil, err
	}
	run.Start = time.Unix(0, start).UTC()
	run.End = time.Unix(0, end).UTC()
	run.CreatedAt = time.Unix(0, created).UTC()
	run.Config = []byte(cfg)
	if err := json.Unmarshal([]byte(summary), &run.Summary); err != nil {
		return nil, fmt.Errorf("decode summary of run %s: %w", run.ID, err)
	}
	return &run, nil
}

// nullFloat stores undefined values as NULL; SQLite has no NaN.
func nullFloat(v float64) sql.NullFloat64 {
	if stats.IsUndefined(v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func floatOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return stats.Undefined()
	}
	return v.Float64
}
