// Package ingest carries producer ticks from the transports to the tracker.
// Transports only enqueue; a single Pump goroutine applies ticks in arrival
// order, so the tracker sees one producer.
package ingest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"toolwatch/internal/model"
	"toolwatch/internal/sensor"

	"go.uber.org/zap"
)

var (
	// ErrQueueFull is returned when the tick queue has no room.
	ErrQueueFull = errors.New("tick queue full")
	// ErrClosed is returned after the pump has been closed.
	ErrClosed = errors.New("tick queue closed")
)

// Source names the transport a tick arrived on.
type Source string

const (
	SourceHTTP   Source = "http"
	SourceMQTT   Source = "mqtt"
	SourceReplay Source = "replay"
)

// TickObserver applies one tick. *tracker.Manager implements it.
type TickObserver interface {
	Observe(t model.Tick) []model.Event
}

// Recorder is notified of accepted and rejected ticks, typically for metrics.
type Recorder interface {
	TickAccepted(source string)
	TickRejected(source, reason string)
}

type nopRecorder struct{}

func (nopRecorder) TickAccepted(string)         {}
func (nopRecorder) TickRejected(string, string) {}

type envelope struct {
	tick   model.Tick
	source Source
}

// Pump is the single consumer of the tick queue.
type Pump struct {
	target     TickObserver
	classifier *sensor.Classifier
	recorder   Recorder
	logger     *zap.Logger
	now        func() time.Time

	mu     sync.RWMutex
	closed bool
	queue  chan envelope

	applied atomic.Int64
	events  atomic.Int64
}

// PumpOption configures a Pump.
type PumpOption func(*Pump)

// WithRecorder sets the tick recorder.
func WithRecorder(r Recorder) PumpOption {
	return func(p *Pump) { p.recorder = r }
}

// WithClock sets the clock used to stamp ticks without a timestamp.
func WithClock(now func() time.Time) PumpOption {
	return func(p *Pump) { p.now = now }
}

// NewPump creates a pump with a queue of size ticks. classifier may be nil,
// in which case depth readings are ignored.
func NewPump(target TickObserver, classifier *sensor.Classifier, size int, logger *zap.Logger, opts ...PumpOption) *Pump {
	if size < 1 {
		size = 1
	}
	p := &Pump{
		target:     target,
		classifier: classifier,
		recorder:   nopRecorder{},
		logger:     logger.Named("pump"),
		now:        time.Now,
		queue:      make(chan envelope, size),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Enqueue queues one tick without blocking. Ticks without a timestamp are
// stamped on arrival so queueing delay does not skew the settle window.
func (p *Pump) Enqueue(t model.Tick, src Source) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.recorder.TickRejected(string(src), "closed")
		return ErrClosed
	}
	if t.At.IsZero() {
		t.At = p.now()
	}

	select {
	case p.queue <- envelope{tick: t, source: src}:
		p.recorder.TickAccepted(string(src))
		return nil
	default:
		p.recorder.TickRejected(string(src), "queue_full")
		return ErrQueueFull
	}
}

// EnqueueBatch queues ticks in order and stops at the first failure. It
// returns how many were accepted.
func (p *Pump) EnqueueBatch(ticks []model.Tick, src Source) (int, error) {
	for i, t := range ticks {
		if err := p.Enqueue(t, src); err != nil {
			return i, err
		}
	}
	return len(ticks), nil
}

// Run applies queued ticks until ctx is done or the pump is closed and
// drained.
func (p *Pump) Run(ctx context.Context) {
	p.logger.Info("tick pump started", zap.Int("queue_size", cap(p.queue)))
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("tick pump stopped", zap.Error(ctx.Err()))
			return
		case env, ok := <-p.queue:
			if !ok {
				p.logger.Info("tick pump drained")
				return
			}
			p.apply(env)
		}
	}
}

func (p *Pump) apply(env envelope) {
	t := env.tick
	if p.classifier != nil {
		t = p.classifier.Resolve(t)
	}
	evs := p.target.Observe(t)
	p.applied.Add(1)
	p.events.Add(int64(len(evs)))

	if ce := p.logger.Check(zap.DebugLevel, "tick applied"); ce != nil {
		ce.Write(
			zap.String("source", string(env.source)),
			zap.Time("at", t.At),
			zap.Bool("drawer_reading", t.Drawer != nil),
			zap.Int("tools", len(t.Tools)),
			zap.Int("events", len(evs)),
		)
	}
}

// Close stops accepting ticks. Run returns once the queue is drained.
func (p *Pump) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
}

// Stats reports queue depth and counters.
func (p *Pump) Stats() map[string]interface{} {
	return map[string]interface{}{
		"queued":   len(p.queue),
		"capacity": cap(p.queue),
		"applied":  p.applied.Load(),
		"events":   p.events.Load(),
	}
}
