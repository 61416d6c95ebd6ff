package service

import (
	"context"
	"sync"
	"time"

	"toolwatch/internal/repository"

	"go.uber.org/zap"
)

// RetentionConfig holds configuration for the journal retention scheduler.
type RetentionConfig struct {
	// Retention is how long journal events are kept.
	// Default: 90 days
	Retention time.Duration

	// Interval is how often the cleanup runs.
	// Default: 24 hours
	Interval time.Duration

	// InitialDelay postpones the first run after Start.
	InitialDelay time.Duration
}

// RetentionScheduler periodically deletes journal events past retention.
// The in-memory ledger is not affected.
type RetentionScheduler struct {
	repo      repository.JournalRepository
	config    RetentionConfig
	now       func() time.Time
	logger    *zap.Logger
	ticker    *time.Ticker
	stopCh    chan struct{}
	stopOnce  sync.Once
	isRunning bool
	mu        sync.Mutex
}

// NewRetentionScheduler creates a new retention scheduler.
func NewRetentionScheduler(repo repository.JournalRepository, config RetentionConfig, logger *zap.Logger) *RetentionScheduler {
	if config.Retention == 0 {
		config.Retention = 90 * 24 * time.Hour
	}
	if config.Interval == 0 {
		config.Interval = 24 * time.Hour
	}

	return &RetentionScheduler{
		repo:   repo,
		config: config,
		now:    time.Now,
		logger: logger.Named("retention"),
		stopCh: make(chan struct{}),
	}
}

// Start begins the retention scheduler.
func (s *RetentionScheduler) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.ticker = time.NewTicker(s.config.Interval)
	s.mu.Unlock()

	s.logger.Info("retention scheduler started",
		zap.Duration("interval", s.config.Interval),
		zap.Duration("retention", s.config.Retention),
	)

	go s.run()
}

func (s *RetentionScheduler) run() {
	if s.config.InitialDelay > 0 {
		select {
		case <-time.After(s.config.InitialDelay):
			s.runCleanup()
		case <-s.stopCh:
			return
		}
	}
	for {
		select {
		case <-s.ticker.C:
			s.runCleanup()
		case <-s.stopCh:
			s.logger.Info("retention scheduler stopped")
			return
		}
	}
}

func (s *RetentionScheduler) runCleanup() {
	deleted, err := s.RunNow()
	if err != nil {
		s.logger.Error("journal cleanup failed", zap.Error(err))
		return
	}
	if deleted > 0 {
		s.logger.Info("journal cleanup", zap.Int64("deleted", deleted))
	} else {
		s.logger.Debug("journal cleanup, nothing to delete")
	}
}

// Stop stops the retention scheduler.
func (s *RetentionScheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
		s.isRunning = false
	})
}

// RunNow triggers an immediate cleanup run.
func (s *RetentionScheduler) RunNow() (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	return s.repo.DeleteEventsBefore(ctx, s.now().Add(-s.config.Retention))
}
