package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

const createTrialsTable = `
CREATE TABLE IF NOT EXISTS trials (
	study_id     TEXT    NOT NULL,
	number       INTEGER NOT NULL,
	rsi_period   INTEGER NOT NULL,
	ema_span     INTEGER NOT NULL,
	rsi_buy      INTEGER NOT NULL,
	rsi_sell     INTEGER NOT NULL,
	stop_loss    REAL    NOT NULL,
	take_profit  REAL    NOT NULL,
	objective    REAL,
	calmar       REAL,
	sharpe       REAL,
	sortino      REAL,
	max_drawdown REAL,
	win_rate     REAL,
	final_value  REAL,
	trade_count  INTEGER NOT NULL DEFAULT 0,
	error        TEXT    NOT NULL DEFAULT '',
	created_at   INTEGER NOT NULL,
	PRIMARY KEY (study_id, number)
)`

const trialColumns = `study_id, number, rsi_period, ema_span, rsi_buy, rsi_sell,
	stop_loss, take_profit, objective, calmar, sharpe, sortino, max_drawdown,
	win_rate, final_value, trade_count, error, created_at`

// SQLiteStore implements TrialStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and creates
// the trials table if needed.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createTrialsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create trials table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveTrial inserts or replaces a trial. Non-finite metrics are stored as NULL.
func (s *SQLiteStore) SaveTrial(ctx context.Context, t *TrialRecord) error {
	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO trials (`+trialColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.StudyID, t.Number, t.RSIPeriod, t.EMASpan, t.RSIBuy, t.RSISell,
		t.StopLoss, t.TakeProfit,
		nullFloat(t.Objective), nullFloat(t.Calmar), nullFloat(t.Sharpe),
		nullFloat(t.Sortino), nullFloat(t.MaxDrawdown), nullFloat(t.WinRate),
		nullFloat(t.FinalValue), t.TradeCount, t.Error, createdAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save trial %d: %w", t.Number, err)
	}
	return nil
}

// ListTrials returns the study's trials ordered by number.
func (s *SQLiteStore) ListTrials(ctx context.Context, studyID string) ([]TrialRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+trialColumns+` FROM trials WHERE study_id = ? ORDER BY number`, studyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list trials: %w", err)
	}
	defer rows.Close()

	var out []TrialRecord
	for rows.Next() {
		t, err := scanTrial(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// BestTrial returns the highest objective among non-failed trials. NULL
// objectives sort after every value.
func (s *SQLiteStore) BestTrial(ctx context.Context, studyID string) (*TrialRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+trialColumns+` FROM trials
		 WHERE study_id = ? AND error = ''
		 ORDER BY objective IS NULL, objective DESC, number
		 LIMIT 1`, studyID)

	t, err := scanTrial(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTrial(row scanner) (*TrialRecord, error) {
	var (
		t         TrialRecord
		createdAt int64

		objective, calmar, sharpe, sortino sql.NullFloat64
		maxDD, winRate, fv                 sql.NullFloat64
	)
	err := row.Scan(&t.StudyID, &t.Number, &t.RSIPeriod, &t.EMASpan, &t.RSIBuy, &t.RSISell,
		&t.StopLoss, &t.TakeProfit, &objective, &calmar, &sharpe, &sortino, &maxDD,
		&winRate, &fv, &t.TradeCount, &t.Error, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan trial: %w", err)
	}

	t.Objective = floatOrNaN(objective)
	t.Calmar = floatOrNaN(calmar)
	t.Sharpe = floatOrNaN(sharpe)
	t.Sortino = floatOrNaN(sortino)
	t.MaxDrawdown = floatOrNaN(maxDD)
	t.WinRate = floatOrNaN(winRate)
	t.FinalValue = floatOrNaN(fv)
	t.CreatedAt = time.UnixMilli(createdAt)
	return &t, nil
}

func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func floatOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
