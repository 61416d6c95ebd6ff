package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"toolwatch/internal/model"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var deleteIfUnchangedScript = redis.NewScript(`
	if redis.call("HGET", KEYS[1], ARGV[1]) == ARGV[2] then
		redis.call("HDEL", KEYS[1], ARGV[1])
		redis.call("SREM", KEYS[2], ARGV[1])
		return 1
	else
		return 0
	end
`)

// RedisJournalBuffer uses Redis for write-behind persistence of ledger
// events. Pending events survive a process restart and are flushed by the
// next instance.
type RedisJournalBuffer struct {
	client        *redis.Client
	flushFunc     FlushFunc
	flushTicker   *time.Ticker
	cleanupTicker *time.Ticker
	stopFlush     chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
	keyPrefix     string
	logger        *zap.Logger
}

// RedisBufferConfig holds configuration for Redis buffer.
type RedisBufferConfig struct {
	Addr          string
	Password      string
	DB            int
	FlushInterval time.Duration
	KeyPrefix     string
}

// NewRedisJournalBuffer creates a Redis-backed journal buffer.
func NewRedisJournalBuffer(cfg RedisBufferConfig, flushFunc FlushFunc, logger *zap.Logger) (*RedisJournalBuffer, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		MinIdleConns: 2,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "toolwatch:journal"
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}

	b := &RedisJournalBuffer{
		client:        client,
		flushFunc:     flushFunc,
		flushTicker:   time.NewTicker(flushInterval),
		cleanupTicker: time.NewTicker(CleanupInterval),
		stopFlush:     make(chan struct{}),
		keyPrefix:     keyPrefix,
		logger:        logger.Named("redis_buffer"),
	}

	b.wg.Add(2)
	go b.backgroundFlush()
	go b.backgroundCleanup()

	b.logger.Info("redis journal buffer started",
		zap.Int("db", cfg.DB),
		zap.String("prefix", keyPrefix),
		zap.Duration("flush_interval", flushInterval),
		zap.Int("batch", MaxBatchSize),
	)
	return b, nil
}

func (b *RedisJournalBuffer) bufferKey() string {
	return b.keyPrefix + ":buffer"
}

func (b *RedisJournalBuffer) pendingKey() string {
	return b.keyPrefix + ":pending"
}

// Add buffers an event in Redis.
func (b *RedisJournalBuffer) Add(ctx context.Context, ev model.Event) error {
	data, err := json.Marshal(&model.BufferedEvent{Event: ev, QueuedAt: time.Now()})
	if err != nil {
		return err
	}

	pipe := b.client.Pipeline()
	pipe.HSetNX(ctx, b.bufferKey(), ev.ID, data)
	pipe.SAdd(ctx, b.pendingKey(), ev.ID)
	_, err = pipe.Exec(ctx)
	return err
}

// Count returns the number of pending events.
func (b *RedisJournalBuffer) Count(ctx context.Context) (int64, error) {
	return b.client.SCard(ctx, b.pendingKey()).Result()
}

// FlushBatch writes up to MaxBatchSize events to the journal.
func (b *RedisJournalBuffer) FlushBatch(ctx context.Context) (int, error) {
	ids, err := b.client.SRandMemberN(ctx, b.pendingKey(), MaxBatchSize).Result()
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	items := make([]*model.BufferedEvent, 0, len(ids))
	originalData := make(map[string]string, len(ids))

	for _, id := range ids {
		data, err := b.client.HGet(ctx, b.bufferKey(), id).Bytes()
		if errors.Is(err, redis.Nil) {
			b.client.SRem(ctx, b.pendingKey(), id)
			continue
		}
		if err != nil {
			b.logger.Warn("failed to read buffered event", zap.String("event_id", id), zap.Error(err))
			continue
		}

		var item model.BufferedEvent
		if err := json.Unmarshal(data, &item); err != nil {
			b.logger.Error("dropping malformed buffered event", zap.String("event_id", id), zap.Error(err))
			b.client.HDel(ctx, b.bufferKey(), id)
			b.client.SRem(ctx, b.pendingKey(), id)
			continue
		}
		originalData[id] = string(data)
		items = append(items, &item)
	}

	if len(items) == 0 {
		return 0, nil
	}

	if err := b.flushFunc(ctx, items); err != nil {
		b.logger.Error("flush failed", zap.Int("events", len(items)), zap.Error(err))
		return 0, err
	}

	pipe := b.client.Pipeline()
	for id, raw := range originalData {
		deleteIfUnchangedScript.Run(ctx, pipe, []string{b.bufferKey(), b.pendingKey()}, id, raw)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		b.logger.Warn("failed to clear flushed events", zap.Error(err))
	}

	b.logger.Debug("flushed events", zap.Int("events", len(items)))
	return len(items), nil
}

// Flush writes all buffered events to the journal.
func (b *RedisJournalBuffer) Flush(ctx context.Context) error {
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

// CleanupOrphans removes pending ids whose payload is gone.
func (b *RedisJournalBuffer) CleanupOrphans(ctx context.Context) (int, error) {
	ids, err := b.client.SMembers(ctx, b.pendingKey()).Result()
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	orphaned := 0
	pipe := b.client.Pipeline()
	for _, id := range ids {
		exists, err := b.client.HExists(ctx, b.bufferKey(), id).Result()
		if err != nil {
			continue
		}
		if !exists {
			pipe.SRem(ctx, b.pendingKey(), id)
			orphaned++
		}
	}

	if orphaned > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return 0, err
		}
		b.logger.Info("removed orphaned pending ids", zap.Int("count", orphaned))
	}
	return orphaned, nil
}

func (b *RedisJournalBuffer) backgroundFlush() {
	defer b.wg.Done()
	for {
		select {
		case <-b.flushTicker.C:
			ctx, cancel := context.WithTimeout(context.Background(), FlushTimeout)
			b.FlushBatch(ctx)
			cancel()
		case <-b.stopFlush:
			b.logger.Info("shutdown: flushing remaining events")
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			if err := b.Flush(ctx); err != nil {
				b.logger.Error("shutdown flush failed", zap.Error(err))
			}
			cancel()
			return
		}
	}
}

func (b *RedisJournalBuffer) backgroundCleanup() {
	defer b.wg.Done()
	for {
		select {
		case <-b.cleanupTicker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if _, err := b.CleanupOrphans(ctx); err != nil {
				b.logger.Warn("orphan cleanup failed", zap.Error(err))
			}
			cancel()
		case <-b.stopFlush:
			return
		}
	}
}

// Close stops the buffer and performs a final flush.
func (b *RedisJournalBuffer) Close() error {
	var err error
	b.stopOnce.Do(func() {
		b.flushTicker.Stop()
		b.cleanupTicker.Stop()
		close(b.stopFlush)
		b.wg.Wait()
		err = b.client.Close()
	})
	return err
}

// Ensure RedisJournalBuffer implements JournalBuffer
var _ JournalBuffer = (*RedisJournalBuffer)(nil)
