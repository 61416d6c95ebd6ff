package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"toolwatch/internal/model"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

// SQLiteJournalRepository implements JournalRepository using SQLite.
// Thread-safe with WAL mode for concurrent reads.
type SQLiteJournalRepository struct {
	db     *sql.DB
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewSQLiteJournalRepository creates a new SQLite journal repository.
// dbPath is the path to the SQLite database file (e.g., "./data/journal.db").
func NewSQLiteJournalRepository(dbPath string, logger *zap.Logger) (*SQLiteJournalRepository, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports 1 writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := createSQLiteTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info("sqlite journal initialized", zap.String("path", dbPath))
	return &SQLiteJournalRepository{db: db, logger: logger}, nil
}

func createSQLiteTables(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS tool_events (
		id TEXT PRIMARY KEY,
		ts INTEGER NOT NULL,
		kind TEXT NOT NULL,
		drawer TEXT NOT NULL,
		user_id TEXT NOT NULL,
		tool_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		recorded_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_tool_events_ts ON tool_events(ts);
	CREATE INDEX IF NOT EXISTS idx_tool_events_tool ON tool_events(tool_id);
	`
	_, err := db.Exec(query)
	return err
}

const sqliteInsertEvent = `
	INSERT INTO tool_events (id, ts, kind, drawer, user_id, tool_id, payload)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO NOTHING`

// AppendEvent stores one event.
func (r *SQLiteJournalRepository) AppendEvent(ctx context.Context, ev model.Event) error {
	row, err := rowOf(ev)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err = r.db.ExecContext(ctx, sqliteInsertEvent,
		row.ID, row.Timestamp, row.Kind, row.Drawer, row.UserID, row.ToolID, string(row.Payload))
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// BatchAppendEvents stores many events in one transaction.
func (r *SQLiteJournalRepository) BatchAppendEvents(ctx context.Context, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, sqliteInsertEvent)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		row, err := rowOf(ev)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			row.ID, row.Timestamp, row.Kind, row.Drawer, row.UserID, row.ToolID, string(row.Payload)); err != nil {
			return fmt.Errorf("failed to append event %s: %w", ev.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListEvents returns stored events newest first.
func (r *SQLiteJournalRepository) ListEvents(ctx context.Context, limit int) ([]model.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := `SELECT payload FROM tool_events ORDER BY ts DESC, rowid DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev, err := decodeEvent([]byte(payload))
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// DeleteEventsBefore removes events older than cutoff.
func (r *SQLiteJournalRepository) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result, err := r.db.ExecContext(ctx, `DELETE FROM tool_events WHERE ts < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete events: %w", err)
	}
	return result.RowsAffected()
}

// GetStats returns statistics about the journal database.
func (r *SQLiteJournalRepository) GetStats(ctx context.Context) (map[string]interface{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make(map[string]interface{})

	var count int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tool_events").Scan(&count); err != nil {
		return nil, err
	}
	stats["total_events"] = count

	var last sql.NullInt64
	if err := r.db.QueryRowContext(ctx, "SELECT MAX(ts) FROM tool_events").Scan(&last); err == nil && last.Valid {
		stats["last_event"] = time.Unix(last.Int64, 0).UTC()
	}

	// Database file size (approximate from page count)
	var pageCount, pageSize int64
	r.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	r.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
	stats["db_size_bytes"] = pageCount * pageSize

	return stats, nil
}

// Close closes the database connection.
func (r *SQLiteJournalRepository) Close() error {
	return r.db.Close()
}

// Ensure SQLiteJournalRepository implements JournalRepository
var _ JournalRepository = (*SQLiteJournalRepository)(nil)
