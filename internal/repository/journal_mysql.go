package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"toolwatch/internal/model"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

// MySQLJournalRepository implements JournalRepository using MySQL.
type MySQLJournalRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMySQLJournalRepository opens a MySQL journal. dsn is a go-sql-driver
// data source name, e.g. "user:pass@tcp(host:3306)/toolwatch?parseTime=true".
func NewMySQLJournalRepository(dsn string, logger *zap.Logger) (*MySQLJournalRepository, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	if err := createMySQLTables(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info("mysql journal initialized")
	return &MySQLJournalRepository{db: db, logger: logger}, nil
}

func createMySQLTables(ctx context.Context, db *sql.DB) error {
	// One statement per Exec; the driver rejects multi-statement strings by default.
	query := `CREATE TABLE IF NOT EXISTS tool_events (
			seq BIGINT AUTO_INCREMENT UNIQUE,
			id VARCHAR(64) NOT NULL PRIMARY KEY,
			ts BIGINT NOT NULL,
			kind VARCHAR(16) NOT NULL,
			drawer VARCHAR(255) NOT NULL,
			user_id VARCHAR(255) NOT NULL,
			tool_id VARCHAR(255) NOT NULL,
			payload JSON NOT NULL,
			recorded_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_tool_events_ts (ts),
			INDEX idx_tool_events_tool (tool_id)
		)`
	_, err := db.ExecContext(ctx, query)
	return err
}

const mysqlInsertEvent = `
	INSERT IGNORE INTO tool_events (id, ts, kind, drawer, user_id, tool_id, payload)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

// AppendEvent stores one event.
func (r *MySQLJournalRepository) AppendEvent(ctx context.Context, ev model.Event) error {
	row, err := rowOf(ev)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, mysqlInsertEvent,
		row.ID, row.Timestamp, row.Kind, row.Drawer, row.UserID, row.ToolID, string(row.Payload))
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// BatchAppendEvents stores many events in one transaction.
func (r *MySQLJournalRepository) BatchAppendEvents(ctx context.Context, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, mysqlInsertEvent)
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
func (r *MySQLJournalRepository) ListEvents(ctx context.Context, limit int) ([]model.Event, error) {
	query := `SELECT payload FROM tool_events ORDER BY ts DESC, seq DESC`
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
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev, err := decodeEvent(payload)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// DeleteEventsBefore removes events older than cutoff.
func (r *MySQLJournalRepository) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tool_events WHERE ts < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete events: %w", err)
	}
	return result.RowsAffected()
}

// GetStats returns statistics about the journal database.
func (r *MySQLJournalRepository) GetStats(ctx context.Context) (map[string]interface{}, error) {
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

	dbStats := r.db.Stats()
	stats["connections"] = map[string]interface{}{
		"open":     dbStats.OpenConnections,
		"in_use":   dbStats.InUse,
		"idle":     dbStats.Idle,
		"max_open": dbStats.MaxOpenConnections,
	}

	return stats, nil
}

// Close closes the database connection pool.
func (r *MySQLJournalRepository) Close() error {
	return r.db.Close()
}

// Ensure MySQLJournalRepository implements JournalRepository
var _ JournalRepository = (*MySQLJournalRepository)(nil)
