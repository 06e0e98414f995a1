package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/MrSnakeDoc/markd/internal/logger"
)

// DefaultSweepInterval is how often owner indexes are checked for entries
// without a row.
const DefaultSweepInterval = time.Hour

// Pruner removes index entries that no longer point at a row.
type Pruner interface {
	PruneDangling(ctx context.Context) (int, error)
}

// Sweeper periodically prunes dangling owner index entries on the server.
type Sweeper struct {
	store    Pruner
	logger   logger.Logger
	interval time.Duration
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewSweeper creates a sweeper. interval <= 0 uses DefaultSweepInterval.
func NewSweeper(store Pruner, log logger.Logger, interval time.Duration) *Sweeper {
	if log == nil {
		log = logger.Nop()
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		store:    store,
		logger:   log,
		interval: interval,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start sweeps once, then on every tick until Stop or ctx ends.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		defer close(s.done)

		s.Sweep(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep(ctx)
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the loop and waits for it. Start must have been called.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.done
}

// Sweep runs one pass and returns how many entries it removed.
func (s *Sweeper) Sweep(ctx context.Context) int {
	pruned, err := s.store.PruneDangling(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("index sweep failed", logger.Error(err))
		}
		return pruned
	}
	if pruned > 0 {
		s.logger.Info("index sweep completed", logger.Int("pruned", pruned))
	} else {
		s.logger.Debug("no dangling index entries")
	}
	return pruned
}
