package arbitrage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Ticker receives scheduler ticks
type Ticker interface {
	Tick(ctx context.Context) error
}

// Scheduler fires ticks on a fixed interval. Every tick is dispatched on its
// own goroutine; the receiver decides whether to drop it.
type Scheduler struct {
	target   Ticker
	interval time.Duration
	logger   *zap.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	loop     sync.WaitGroup
	inFlight sync.WaitGroup
}

// NewScheduler creates a new scheduler
func NewScheduler(target Ticker, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		target:   target,
		interval: interval,
		logger:   logger,
	}
}

// Start begins ticking until ctx is done or Stop is called
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return fmt.Errorf("scheduler already started")
	}
	if s.interval <= 0 {
		return fmt.Errorf("invalid poll interval: %s", s.interval)
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.loop.Add(1)
	go s.run(ctx)

	s.logger.Info("Scheduler started", zap.Duration("interval", s.interval))
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.loop.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.inFlight.Add(1)
			go func() {
				defer s.inFlight.Done()
				_ = s.target.Tick(ctx)
			}()
		}
	}
}

// Stop stops issuing ticks and waits for dispatched ticks to return
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	s.loop.Wait()
	s.inFlight.Wait()

	s.logger.Info("Scheduler stopped")
}
