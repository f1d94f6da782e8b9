package history

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jpequegn/testguard/internal/aggregator"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements RunStore using SQLite, adapted from the
// teacher's SQLiteStorage.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (and migrates) a SQLite-backed RunStore at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{db: db, path: path}
	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL UNIQUE,
		started_at DATETIME NOT NULL,
		duration_ns INTEGER NOT NULL,
		passed_count INTEGER NOT NULL,
		failed_count INTEGER NOT NULL,
		skipped_count INTEGER NOT NULL,
		timed_out_count INTEGER NOT NULL,
		isolated_hanging_count INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

	CREATE TABLE IF NOT EXISTS identifier_outcomes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		identifier TEXT NOT NULL,
		classification TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_identifier_outcomes_run_id ON identifier_outcomes(run_id);
	CREATE INDEX IF NOT EXISTS idx_identifier_outcomes_identifier ON identifier_outcomes(identifier);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Save persists result transactionally: one runs row, then one
// identifier_outcomes row per test named in any outcome set.
func (s *SQLiteStore) Save(result *aggregator.RunResult) error {
	if result == nil {
		return fmt.Errorf("result cannot be nil")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT INTO runs (run_id, started_at, duration_ns, passed_count, failed_count, skipped_count, timed_out_count, isolated_hanging_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, result.RunID, result.StartedAt, result.Duration.Nanoseconds(),
		result.PassedCount, result.FailedCount, result.SkippedCount,
		result.TimedOutCount, result.IsolatedHangingCount)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO identifier_outcomes (run_id, identifier, classification, started_at)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	insertAll := func(ids []string, classification string) error {
		for _, id := range ids {
			if _, err := stmt.Exec(result.RunID, id, classification, result.StartedAt); err != nil {
				return fmt.Errorf("failed to insert identifier outcome: %w", err)
			}
		}
		return nil
	}

	if err := insertAll(result.Passed, "passed"); err != nil {
		return err
	}
	if err := insertAll(result.Failed, "failed"); err != nil {
		return err
	}
	if err := insertAll(result.Skipped, "skipped"); err != nil {
		return err
	}
	if err := insertAll(result.TimedOut, "timedOut"); err != nil {
		return err
	}
	if err := insertAll(result.IsolatedHanging, "isolatedHanging"); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetLatest returns the most recently started run.
func (s *SQLiteStore) GetLatest() (*aggregator.RunResult, error) {
	row := s.db.QueryRow(`
		SELECT run_id, started_at, duration_ns, passed_count, failed_count, skipped_count, timed_out_count, isolated_hanging_count
		FROM runs
		ORDER BY started_at DESC
		LIMIT 1
	`)

	var runID string
	var startedAt time.Time
	var durationNs int64
	var passedCount, failedCount, skippedCount, timedOutCount, isolatedCount int

	err := row.Scan(&runID, &startedAt, &durationNs, &passedCount, &failedCount, &skippedCount, &timedOutCount, &isolatedCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest run: %w", err)
	}

	result := &aggregator.RunResult{
		RunID:                runID,
		StartedAt:            startedAt,
		Duration:             time.Duration(durationNs),
		PassedCount:          passedCount,
		FailedCount:          failedCount,
		SkippedCount:         skippedCount,
		TimedOutCount:        timedOutCount,
		IsolatedHangingCount: isolatedCount,
	}

	if err := s.loadIdentifiers(result); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *SQLiteStore) loadIdentifiers(result *aggregator.RunResult) error {
	rows, err := s.db.Query(`
		SELECT identifier, classification
		FROM identifier_outcomes
		WHERE run_id = ?
		ORDER BY identifier
	`, result.RunID)
	if err != nil {
		return fmt.Errorf("failed to query identifier outcomes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var identifier, classification string
		if err := rows.Scan(&identifier, &classification); err != nil {
			return fmt.Errorf("failed to scan identifier outcome: %w", err)
		}
		switch classification {
		case "passed":
			result.Passed = append(result.Passed, identifier)
		case "failed":
			result.Failed = append(result.Failed, identifier)
		case "skipped":
			result.Skipped = append(result.Skipped, identifier)
		case "timedOut":
			result.TimedOut = append(result.TimedOut, identifier)
		case "isolatedHanging":
			result.IsolatedHanging = append(result.IsolatedHanging, identifier)
		}
	}
	return rows.Err()
}

// GetHistory returns every recorded outcome for identifier across all
// runs, most recent first.
func (s *SQLiteStore) GetHistory(identifier string, limit int) ([]*IdentifierOutcome, error) {
	query := `
		SELECT run_id, identifier, classification, started_at
		FROM identifier_outcomes
		WHERE identifier = ?
		ORDER BY started_at DESC
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.Query(query, identifier)
	if err != nil {
		return nil, fmt.Errorf("failed to query identifier history: %w", err)
	}
	defer rows.Close()

	var outcomes []*IdentifierOutcome
	for rows.Next() {
		var o IdentifierOutcome
		if err := rows.Scan(&o.RunID, &o.Identifier, &o.Classification, &o.StartedAt); err != nil {
			return nil, fmt.Errorf("failed to scan identifier history row: %w", err)
		}
		outcomes = append(outcomes, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating identifier history: %w", err)
	}
	return outcomes, nil
}
