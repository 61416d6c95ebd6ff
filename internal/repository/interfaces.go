package repository

import (
	"context"
	"time"

	"toolwatch/internal/model"
)

// JournalRepository is the durable mirror of the in-memory event ledger.
// Appends are idempotent on event id.
type JournalRepository interface {
	// AppendEvent stores one event. Re-appending an existing id is a no-op.
	AppendEvent(ctx context.Context, ev model.Event) error

	// BatchAppendEvents stores many events in one round trip.
	BatchAppendEvents(ctx context.Context, events []model.Event) error

	// ListEvents returns stored events newest first. limit <= 0 means all.
	ListEvents(ctx context.Context, limit int) ([]model.Event, error)

	// DeleteEventsBefore removes events with a timestamp before cutoff.
	DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// GetStats returns statistics about the journal store.
	GetStats(ctx context.Context) (map[string]interface{}, error)

	// Close closes the repository connection.
	Close() error
}
