package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"toolwatch/internal/model"

	"go.uber.org/zap"
)

type flushRecorder struct {
	mu      sync.Mutex
	batches [][]string
	fail    error
}

func (r *flushRecorder) flush(ctx context.Context, items []*model.BufferedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.Event.ID
	}
	r.batches = append(r.batches, ids)
	return nil
}

func (r *flushRecorder) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.batches {
		n += len(b)
	}
	return n
}

func newTestBuffer(t *testing.T, rec *flushRecorder) *MemoryJournalBuffer {
	t.Helper()
	b := NewMemoryJournalBuffer(time.Hour, rec.flush, zap.NewNop())
	t.Cleanup(func() { b.Close() })
	return b
}

func TestMemoryJournalBuffer_FlushInOrder(t *testing.T) {
	rec := &flushRecorder{}
	b := newTestBuffer(t, rec)
	ctx := context.Background()

	for _, id := range []string{"e1", "e2", "e3"} {
		if err := b.Add(ctx, model.Event{ID: id}); err != nil {
			t.Fatalf("Add(%s): %v", id, err)
		}
	}
	b.Add(ctx, model.Event{ID: "e2"})

	if n, _ := b.Count(ctx); n != 3 {
		t.Errorf("count = %d, want 3 (duplicate id collapsed)", n)
	}

	flushed, err := b.FlushBatch(ctx)
	if err != nil || flushed != 3 {
		t.Fatalf("FlushBatch = %d, %v", flushed, err)
	}
	got := rec.batches[0]
	if got[0] != "e1" || got[1] != "e2" || got[2] != "e3" {
		t.Errorf("batch = %v, want [e1 e2 e3]", got)
	}
	if n, _ := b.Count(ctx); n != 0 {
		t.Errorf("count after flush = %d", n)
	}
}

func TestMemoryJournalBuffer_FailedFlushKeepsEvents(t *testing.T) {
	rec := &flushRecorder{fail: errors.New("db down")}
	b := newTestBuffer(t, rec)
	ctx := context.Background()

	b.Add(ctx, model.Event{ID: "e1"})
	if _, err := b.FlushBatch(ctx); err == nil {
		t.Fatal("expected flush error")
	}
	if n, _ := b.Count(ctx); n != 1 {
		t.Errorf("count = %d, want event retained", n)
	}

	rec.mu.Lock()
	rec.fail = nil
	rec.mu.Unlock()
	if err := b.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if rec.total() != 1 {
		t.Errorf("flushed %d, want 1", rec.total())
	}
}

func TestMemoryJournalBuffer_BatchesLargeBacklog(t *testing.T) {
	rec := &flushRecorder{}
	b := newTestBuffer(t, rec)
	ctx := context.Background()

	for i := 0; i < MaxBatchSize*2+1; i++ {
		b.Add(ctx, model.Event{ID: time.Unix(int64(i), 0).String()})
	}
	if err := b.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(rec.batches) != 3 {
		t.Errorf("batches = %d, want 3", len(rec.batches))
	}
	if rec.total() != MaxBatchSize*2+1 {
		t.Errorf("total = %d", rec.total())
	}
}

func TestMemoryJournalBuffer_CloseFlushesAndRejects(t *testing.T) {
	rec := &flushRecorder{}
	b := NewMemoryJournalBuffer(time.Hour, rec.flush, zap.NewNop())
	ctx := context.Background()

	b.Add(ctx, model.Event{ID: "e1"})
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if rec.total() != 1 {
		t.Errorf("close did not flush pending events")
	}
	if err := b.Add(ctx, model.Event{ID: "e2"}); !errors.Is(err, ErrClosed) {
		t.Errorf("Add after close = %v, want ErrClosed", err)
	}
	b.Close()
}
