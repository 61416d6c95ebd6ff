package cache

import (
	"context"
	"time"

	"toolwatch/internal/model"
)

// Buffer configuration
const (
	MaxBatchSize    = 50
	FlushTimeout    = 30 * time.Second
	CleanupInterval = 5 * time.Minute
)

// FlushFunc is called to persist buffered events to the journal.
type FlushFunc func(ctx context.Context, items []*model.BufferedEvent) error

// JournalBuffer is a write-behind buffer in front of the durable journal.
// Implementations flush in the background and on Close.
type JournalBuffer interface {
	// Add queues an event for persistence. Adding an id twice keeps one copy.
	Add(ctx context.Context, ev model.Event) error

	// Count returns the number of pending events.
	Count(ctx context.Context) (int64, error)

	// FlushBatch persists up to MaxBatchSize events and returns how many.
	FlushBatch(ctx context.Context) (int, error)

	// Flush persists everything pending.
	Flush(ctx context.Context) error

	// Close stops background work after a final flush.
	Close() error
}

// CacheError is a sentinel error of the cache package.
type CacheError string

func (e CacheError) Error() string { return string(e) }

const (
	// ErrClosed is returned by Add after Close.
	ErrClosed CacheError = "buffer closed"
)
