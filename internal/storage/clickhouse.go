package storage

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

const (
	bufferSize    = 1_000
	flushInterval = time.Second
	flushBatch    = 100
	drainTimeout  = 2 * time.Second
)

const createToolEventsTable = `
	CREATE TABLE IF NOT EXISTS tool_events (
		event_id   String,
		timestamp  DateTime,
		kind       LowCardinality(String),
		drawer     LowCardinality(String),
		tool_id    String,
		tool_name  String,
		tool_type  LowCardinality(String),
		tool_cost  Float64,
		user_id    String,
		user_name  String,
		user_email String,
		image_url  String
	) ENGINE = ReplacingMergeTree
	ORDER BY (timestamp, event_id)
`

// ClickHouseWriter writes tool events to ClickHouse asynchronously.
// Write() is non-blocking; events are buffered and batch-inserted in a background goroutine.
type ClickHouseWriter struct {
	conn    driver.Conn
	buffer  chan *ToolEvent
	done    chan struct{}
	flushed chan struct{}
	logger  *zap.Logger
}

// NewClickHouseWriter creates a ClickHouseWriter, ensures the table exists and
// starts the background flush loop.
func NewClickHouseWriter(dsn string, secure bool, logger *zap.Logger) (*ClickHouseWriter, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}

	if secure && opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	if err := conn.Exec(ctx, createToolEventsTable); err != nil {
		conn.Close()
		return nil, err
	}

	w := &ClickHouseWriter{
		conn:    conn,
		buffer:  make(chan *ToolEvent, bufferSize),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
		logger:  logger,
	}

	go w.flushLoop()
	return w, nil
}

// Write queues a tool event for async insertion.
// Non-blocking: drops the event if the buffer is full.
func (w *ClickHouseWriter) Write(event *ToolEvent) {
	select {
	case w.buffer <- event:
	default:
		w.logger.Warn("clickhouse buffer full, dropping event",
			zap.String("event_id", event.EventID),
		)
	}
}

// Close signals the flush loop to drain remaining events.
func (w *ClickHouseWriter) Close() {
	close(w.done)
	<-w.flushed
	w.conn.Close()
}

func (w *ClickHouseWriter) flushLoop() {
	defer close(w.flushed)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*ToolEvent, 0, flushBatch)

	for {
		select {
		case event := <-w.buffer:
			batch = append(batch, event)
			if len(batch) >= flushBatch {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-w.done:
			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
		drainLoop:
			for {
				select {
				case event := <-w.buffer:
					batch = append(batch, event)
				case <-drainCtx.Done():
					break drainLoop
				default:
					break drainLoop
				}
			}
			if len(batch) > 0 {
				w.flush(batch)
			}
			return
		}
	}
}

func (w *ClickHouseWriter) flush(events []*ToolEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	batch, err := w.conn.PrepareBatch(ctx, `
		INSERT INTO tool_events (
			event_id, timestamp, kind, drawer,
			tool_id, tool_name, tool_type, tool_cost,
			user_id, user_name, user_email, image_url
		)
	`)
	if err != nil {
		w.logger.Error("clickhouse prepare batch failed", zap.Error(err))
		return
	}

	for _, e := range events {
		if err := batch.Append(
			e.EventID,
			e.Timestamp,
			e.Kind,
			e.Drawer,
			e.ToolID,
			e.ToolName,
			e.ToolType,
			e.ToolCost,
			e.UserID,
			e.UserName,
			e.UserEmail,
			e.ImageURL,
		); err != nil {
			w.logger.Error("clickhouse append event failed",
				zap.String("event_id", e.EventID),
				zap.Error(err),
			)
		}
	}

	if err := batch.Send(); err != nil {
		w.logger.Error("clickhouse batch send failed",
			zap.Int("batch_size", len(events)),
			zap.Error(err),
		)
	}
}

// LogWriter is a fallback EventWriter for local development.
type LogWriter struct {
	logger *zap.Logger
}

// NewLogWriter creates a LogWriter that outputs events to the given logger.
func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

func (w *LogWriter) Write(event *ToolEvent) {
	w.logger.Info("tool_event",
		zap.String("event_id", event.EventID),
		zap.String("kind", event.Kind),
		zap.String("drawer", event.Drawer),
		zap.String("tool_id", event.ToolID),
		zap.String("tool_name", event.ToolName),
		zap.String("user_id", event.UserID),
		zap.Time("timestamp", event.Timestamp),
	)
}

func (w *LogWriter) Close() {}

var (
	_ EventWriter = (*ClickHouseWriter)(nil)
	_ EventWriter = (*LogWriter)(nil)
)
