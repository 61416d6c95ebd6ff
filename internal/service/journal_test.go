package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"toolwatch/internal/cache"
	"toolwatch/internal/model"

	"go.uber.org/zap"
)

type fakeJournal struct {
	mu      sync.Mutex
	events  []model.Event
	deleted time.Time
	fail    error
}

func (f *fakeJournal) AppendEvent(ctx context.Context, ev model.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeJournal) BatchAppendEvents(ctx context.Context, events []model.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, events...)
	return nil
}

func (f *fakeJournal) ListEvents(ctx context.Context, limit int) ([]model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Event, len(f.events))
	copy(out, f.events)
	return out, nil
}

func (f *fakeJournal) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = cutoff
	return 2, nil
}

func (f *fakeJournal) GetStats(ctx context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{}, nil
}

func (f *fakeJournal) Close() error { return nil }

func (f *fakeJournal) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func TestJournalService_WritesDirectly(t *testing.T) {
	repo := &fakeJournal{}
	s := NewJournalService(repo, nil, 8, zap.NewNop())

	s.Publish(model.Event{ID: "e1"})
	s.Publish(model.Event{ID: "e2"})
	s.Close()

	if repo.count() != 2 {
		t.Fatalf("persisted = %d, want 2", repo.count())
	}
	stats := s.Stats(context.Background())
	if stats["written"] != int64(2) {
		t.Errorf("stats = %v", stats)
	}

	s.Publish(model.Event{ID: "late"})
	if s.Stats(context.Background())["dropped"] != int64(1) {
		t.Errorf("publish after close was not counted as dropped")
	}
}

func TestJournalService_WritesThroughBuffer(t *testing.T) {
	repo := &fakeJournal{}
	buf := cache.NewMemoryJournalBuffer(time.Hour, CreateFlushFunc(repo), zap.NewNop())
	s := NewJournalService(repo, buf, 8, zap.NewNop())

	s.Publish(model.Event{ID: "e1"})
	s.Close()

	if repo.count() != 0 {
		t.Errorf("event bypassed the buffer")
	}
	if err := buf.Close(); err != nil {
		t.Fatalf("buffer close: %v", err)
	}
	if repo.count() != 1 {
		t.Errorf("persisted = %d after buffer close, want 1", repo.count())
	}
}

func TestJournalService_CountsFailures(t *testing.T) {
	repo := &fakeJournal{fail: errors.New("disk full")}
	s := NewJournalService(repo, nil, 1, zap.NewNop())

	s.Publish(model.Event{ID: "e1"})
	s.Close()

	if got := s.Stats(context.Background())["failed"]; got != int64(1) {
		t.Errorf("failed = %v, want 1", got)
	}
}

func TestJournalService_ListEventsDisabled(t *testing.T) {
	s := NewJournalService(nil, nil, 1, zap.NewNop())
	defer s.Close()

	if _, err := s.ListEvents(context.Background(), 10); !errors.Is(err, ErrJournalDisabled) {
		t.Errorf("err = %v, want ErrJournalDisabled", err)
	}
}

func TestRetentionScheduler_RunNow(t *testing.T) {
	repo := &fakeJournal{}
	s := NewRetentionScheduler(repo, RetentionConfig{Retention: time.Hour}, zap.NewNop())
	now := time.Unix(100_000, 0)
	s.now = func() time.Time { return now }

	deleted, err := s.RunNow()
	if err != nil || deleted != 2 {
		t.Fatalf("RunNow = %d, %v", deleted, err)
	}
	if want := now.Add(-time.Hour); !repo.deleted.Equal(want) {
		t.Errorf("cutoff = %v, want %v", repo.deleted, want)
	}

	s.Start()
	s.Start()
	s.Stop()
	s.Stop()
}
