package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/MrSnakeDoc/markd/internal/logger"
)

// Resyncable is anything that can rebuild its state from the source of
// truth.
type Resyncable interface {
	Resync(ctx context.Context) error
}

// Resyncer runs resyncs on demand (after a feed reconnect) and optionally
// on a fixed interval. Resyncs never overlap.
type Resyncer struct {
	target   Resyncable
	logger   logger.Logger
	interval time.Duration
	timeout  time.Duration

	manualTrigger chan struct{}
	stopCh        chan struct{}
	done          chan struct{}
	startOnce     sync.Once
	stopOnce      sync.Once
}

// NewResyncer creates a resyncer. interval <= 0 disables periodic runs;
// timeout <= 0 bounds nothing beyond the Start context.
func NewResyncer(target Resyncable, log logger.Logger, interval, timeout time.Duration) *Resyncer {
	if log == nil {
		log = logger.Nop()
	}
	return &Resyncer{
		target:        target,
		logger:        log,
		interval:      interval,
		timeout:       timeout,
		manualTrigger: make(chan struct{}, 1),
		stopCh:        make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Start launches the loop. Calling it twice has no effect.
func (r *Resyncer) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		go r.loop(ctx)
	})
}

// Trigger asks for a resync. Requests coalesce while one is pending.
func (r *Resyncer) Trigger() {
	select {
	case r.manualTrigger <- struct{}{}:
	default:
		r.logger.Debug("resync already pending")
	}
}

// Stop ends the loop and waits for a running resync to return. Safe to call
// more than once, and before Start.
func (r *Resyncer) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	// Never started: nothing will close done, and Start must stay a no-op.
	r.startOnce.Do(func() { close(r.done) })
	<-r.done
}

func (r *Resyncer) loop(ctx context.Context) {
	defer close(r.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-r.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	var tick <-chan time.Time
	if r.interval > 0 {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-tick:
			r.run(ctx, "interval")
		case <-r.manualTrigger:
			r.run(ctx, "trigger")
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (r *Resyncer) run(ctx context.Context, reason string) {
	if ctx.Err() != nil {
		return
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	if err := r.target.Resync(ctx); err != nil {
		if ctx.Err() == nil {
			r.logger.Error("resync failed",
				logger.String("reason", reason),
				logger.Error(err))
		}
		return
	}
	r.logger.Debug("resync done",
		logger.String("reason", reason),
		logger.Duration("took", time.Since(start)))
}
