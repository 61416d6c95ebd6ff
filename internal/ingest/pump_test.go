package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"toolwatch/internal/catalog"
	"toolwatch/internal/model"
	"toolwatch/internal/sensor"

	"go.uber.org/zap"
)

type recordingTarget struct {
	mu    sync.Mutex
	ticks []model.Tick
}

func (r *recordingTarget) Observe(t model.Tick) []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks = append(r.ticks, t)
	return nil
}

func (r *recordingTarget) seen() []model.Tick {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Tick, len(r.ticks))
	copy(out, r.ticks)
	return out
}

type countingRecorder struct {
	mu       sync.Mutex
	accepted map[string]int
	rejected map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{accepted: map[string]int{}, rejected: map[string]int{}}
}

func (c *countingRecorder) TickAccepted(source string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accepted[source]++
}

func (c *countingRecorder) TickRejected(source, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejected[source+"/"+reason]++
}

var t0 = time.Unix(1_700_000_000, 0)

func TestPump_AppliesInOrder(t *testing.T) {
	target := &recordingTarget{}
	p := NewPump(target, nil, 8, zap.NewNop())

	for i := 0; i < 3; i++ {
		tick := model.Tick{At: t0.Add(time.Duration(i) * time.Second), User: "u"}
		if err := p.Enqueue(tick, SourceHTTP); err != nil {
			t.Fatalf("Enqueue %d: %v", i, err)
		}
	}
	p.Close()
	p.Run(context.Background())

	got := target.seen()
	if len(got) != 3 {
		t.Fatalf("applied = %d, want 3", len(got))
	}
	for i, tick := range got {
		if want := t0.Add(time.Duration(i) * time.Second); !tick.At.Equal(want) {
			t.Errorf("tick %d at %v, want %v", i, tick.At, want)
		}
	}
	if stats := p.Stats(); stats["applied"] != int64(3) {
		t.Errorf("stats = %v", stats)
	}
}

func TestPump_StampsMissingTimestamp(t *testing.T) {
	target := &recordingTarget{}
	p := NewPump(target, nil, 1, zap.NewNop(), WithClock(func() time.Time { return t0 }))

	if err := p.Enqueue(model.Tick{}, SourceMQTT); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	p.Close()
	p.Run(context.Background())

	if got := target.seen(); len(got) != 1 || !got[0].At.Equal(t0) {
		t.Errorf("ticks = %+v", got)
	}
}

func TestPump_QueueFull(t *testing.T) {
	rec := newCountingRecorder()
	p := NewPump(&recordingTarget{}, nil, 1, zap.NewNop(), WithRecorder(rec))

	if err := p.Enqueue(model.Tick{At: t0}, SourceHTTP); err != nil {
		t.Fatalf("first Enqueue: %v", err)
	}
	if err := p.Enqueue(model.Tick{At: t0}, SourceHTTP); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("second Enqueue = %v, want ErrQueueFull", err)
	}
	if rec.accepted["http"] != 1 || rec.rejected["http/queue_full"] != 1 {
		t.Errorf("recorder = %+v / %+v", rec.accepted, rec.rejected)
	}
}

func TestPump_EnqueueBatchStopsAtFull(t *testing.T) {
	p := NewPump(&recordingTarget{}, nil, 2, zap.NewNop())
	ticks := []model.Tick{{At: t0}, {At: t0}, {At: t0}}

	n, err := p.EnqueueBatch(ticks, SourceHTTP)
	if n != 2 || !errors.Is(err, ErrQueueFull) {
		t.Errorf("EnqueueBatch = %d, %v", n, err)
	}
}

func TestPump_RejectsAfterClose(t *testing.T) {
	p := NewPump(&recordingTarget{}, nil, 1, zap.NewNop())
	p.Close()
	p.Close()
	if err := p.Enqueue(model.Tick{At: t0}, SourceHTTP); !errors.Is(err, ErrClosed) {
		t.Errorf("Enqueue = %v, want ErrClosed", err)
	}
}

func TestPump_ResolvesDepth(t *testing.T) {
	target := &recordingTarget{}
	cls := sensor.NewClassifier(catalog.Default().Depth)
	p := NewPump(target, cls, 1, zap.NewNop())

	right := 850
	if err := p.Enqueue(model.Tick{At: t0, Depth: &model.DepthReading{Right: &right}}, SourceMQTT); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	p.Close()
	p.Run(context.Background())

	got := target.seen()
	if len(got) != 1 || got[0].Drawer == nil || got[0].Drawer.Identifier != "clamps" {
		t.Errorf("ticks = %+v", got)
	}
}

func TestPump_ResolvesDecodedSampleWindow(t *testing.T) {
	target := &recordingTarget{}
	p := NewPump(target, sensor.NewClassifier(catalog.Default().Depth), 1, zap.NewNop())

	tick, err := DecodeTick([]byte(`{"at":"2023-11-14T22:13:20Z","depth":{"left_samples":[831,0,829,830]}}`))
	if err != nil {
		t.Fatalf("DecodeTick: %v", err)
	}
	if err := p.Enqueue(tick, SourceHTTP); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	p.Close()
	p.Run(context.Background())

	got := target.seen()
	if len(got) != 1 || got[0].Drawer == nil || got[0].Drawer.Identifier != "hammers" {
		t.Errorf("ticks = %+v", got)
	}
}

func TestPump_RunStopsOnCancel(t *testing.T) {
	p := NewPump(&recordingTarget{}, nil, 1, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
