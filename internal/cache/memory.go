package cache

import (
	"context"
	"sync"
	"time"

	"toolwatch/internal/model"

	"go.uber.org/zap"
)

// MemoryJournalBuffer is an in-process JournalBuffer. Pending events are lost
// if the process dies before a flush. Use this for development or
// single-instance deployments without Redis.
type MemoryJournalBuffer struct {
	mu      sync.Mutex
	pending map[string]*model.BufferedEvent
	order   []string
	closed  bool

	// flushMu serialises flushes so the head of order is owned by one flush.
	flushMu     sync.Mutex
	flushFunc   FlushFunc
	flushTicker *time.Ticker
	stopFlush   chan struct{}
	done        chan struct{}
	stopOnce    sync.Once
	logger      *zap.Logger
}

// NewMemoryJournalBuffer creates a buffer flushing every flushInterval.
func NewMemoryJournalBuffer(flushInterval time.Duration, flushFunc FlushFunc, logger *zap.Logger) *MemoryJournalBuffer {
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	b := &MemoryJournalBuffer{
		pending:     make(map[string]*model.BufferedEvent),
		flushFunc:   flushFunc,
		flushTicker: time.NewTicker(flushInterval),
		stopFlush:   make(chan struct{}),
		done:        make(chan struct{}),
		logger:      logger.Named("memory_buffer"),
	}

	go b.backgroundFlush()

	return b
}

// Add queues an event.
func (b *MemoryJournalBuffer) Add(ctx context.Context, ev model.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if _, exists := b.pending[ev.ID]; exists {
		return nil
	}
	b.pending[ev.ID] = &model.BufferedEvent{Event: ev, QueuedAt: time.Now()}
	b.order = append(b.order, ev.ID)
	return nil
}

// Count returns the number of pending events.
func (b *MemoryJournalBuffer) Count(ctx context.Context) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.order)), nil
}

// FlushBatch persists the oldest MaxBatchSize events. Events stay queued
// when the flush fails.
func (b *MemoryJournalBuffer) FlushBatch(ctx context.Context) (int, error) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	n := len(b.order)
	if n > MaxBatchSize {
		n = MaxBatchSize
	}
	if n == 0 {
		b.mu.Unlock()
		return 0, nil
	}
	ids := make([]string, n)
	copy(ids, b.order[:n])
	items := make([]*model.BufferedEvent, n)
	for i, id := range ids {
		items[i] = b.pending[id]
	}
	b.mu.Unlock()

	if err := b.flushFunc(ctx, items); err != nil {
		b.logger.Error("flush failed", zap.Int("events", n), zap.Error(err))
		return 0, err
	}

	b.mu.Lock()
	for _, id := range ids {
		delete(b.pending, id)
	}
	b.order = b.order[n:]
	b.mu.Unlock()

	b.logger.Debug("flushed events", zap.Int("events", n))
	return n, nil
}

// Flush persists everything pending.
func (b *MemoryJournalBuffer) Flush(ctx context.Context) error {
	for {
		n, err := b.FlushBatch(ctx)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
}

func (b *MemoryJournalBuffer) backgroundFlush() {
	defer close(b.done)
	for {
		select {
		case <-b.flushTicker.C:
			ctx, cancel := context.WithTimeout(context.Background(), FlushTimeout)
			b.FlushBatch(ctx)
			cancel()
		case <-b.stopFlush:
			ctx, cancel := context.WithTimeout(context.Background(), FlushTimeout)
			if err := b.Flush(ctx); err != nil {
				b.logger.Error("shutdown flush failed", zap.Error(err))
			}
			cancel()
			return
		}
	}
}

// Close stops the background loop after a final flush.
func (b *MemoryJournalBuffer) Close() error {
	b.stopOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()
		b.flushTicker.Stop()
		close(b.stopFlush)
	})
	<-b.done
	return nil
}

// Ensure MemoryJournalBuffer implements JournalBuffer
var _ JournalBuffer = (*MemoryJournalBuffer)(nil)
