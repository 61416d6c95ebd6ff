package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"toolwatch/internal/cache"
	"toolwatch/internal/model"
	"toolwatch/internal/repository"

	"go.uber.org/zap"
)

// ErrJournalDisabled is returned by reads when no journal is configured.
var ErrJournalDisabled = errors.New("journal disabled")

const journalWriteTimeout = 10 * time.Second

// JournalService mirrors ledger events into the durable journal. Publish
// never blocks the tracker: events go through a bounded queue to a single
// writer goroutine, which hands them to the write-behind buffer when one is
// configured and to the repository otherwise.
type JournalService struct {
	repo   repository.JournalRepository
	buffer cache.JournalBuffer
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan model.Event
	done   chan struct{}

	written atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

// NewJournalService starts the writer. buffer may be nil. queueSize below one
// is treated as one.
func NewJournalService(repo repository.JournalRepository, buffer cache.JournalBuffer, queueSize int, logger *zap.Logger) *JournalService {
	if queueSize < 1 {
		queueSize = 1
	}
	s := &JournalService{
		repo:   repo,
		buffer: buffer,
		logger: logger.Named("journal"),
		queue:  make(chan model.Event, queueSize),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

// Publish queues ev for persistence. When the queue is full the event is
// dropped from the journal and counted; the in-memory ledger is unaffected.
// Without a repository Publish does nothing.
func (s *JournalService) Publish(ev model.Event) {
	if s.repo == nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.queue <- ev:
	default:
		s.dropped.Add(1)
		s.logger.Warn("journal queue full, event not persisted", zap.String("event_id", ev.ID))
	}
}

func (s *JournalService) run() {
	defer close(s.done)
	for ev := range s.queue {
		s.write(ev)
	}
}

func (s *JournalService) write(ev model.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
	defer cancel()

	var err error
	if s.buffer != nil {
		err = s.buffer.Add(ctx, ev)
	} else {
		err = s.repo.AppendEvent(ctx, ev)
	}
	if err != nil {
		s.failed.Add(1)
		s.logger.Error("failed to persist event", zap.String("event_id", ev.ID), zap.Error(err))
		return
	}
	s.written.Add(1)
}

// ListEvents reads back the durable journal, newest first.
func (s *JournalService) ListEvents(ctx context.Context, limit int) ([]model.Event, error) {
	if s.repo == nil {
		return nil, ErrJournalDisabled
	}
	return s.repo.ListEvents(ctx, limit)
}

// Stats reports writer counters and buffer depth.
func (s *JournalService) Stats(ctx context.Context) map[string]interface{} {
	stats := map[string]interface{}{
		"queued":  len(s.queue),
		"written": s.written.Load(),
		"dropped": s.dropped.Load(),
		"failed":  s.failed.Load(),
	}
	if s.buffer != nil {
		if n, err := s.buffer.Count(ctx); err == nil {
			stats["buffer_pending"] = n
		}
	}
	return stats
}

// Close drains the queue and waits for the writer to finish. The buffer and
// repository are owned by the caller.
func (s *JournalService) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	<-s.done
}

// CreateFlushFunc creates a flush function for the write-behind buffer.
func CreateFlushFunc(repo repository.JournalRepository) cache.FlushFunc {
	return func(ctx context.Context, items []*model.BufferedEvent) error {
		events := make([]model.Event, len(items))
		for i, item := range items {
			events[i] = item.Event
		}
		return repo.BatchAppendEvents(ctx, events)
	}
}
