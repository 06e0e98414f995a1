package reconcile

import (
	"sync"

	"github.com/MrSnakeDoc/markd/internal/domain"
	"github.com/MrSnakeDoc/markd/internal/logger"
)

// Tracker maps feed lifecycle reports to the connection state shown to the
// user. It holds the most recent report only and never retries by itself.
type Tracker struct {
	logger logger.Logger

	mu        sync.Mutex
	state     domain.ConnectionState
	observers []func(from, to domain.ConnectionState)
}

// NewTracker starts in StateConnecting.
func NewTracker(log logger.Logger) *Tracker {
	if log == nil {
		log = logger.Nop()
	}
	return &Tracker{logger: log, state: domain.StateConnecting}
}

// State returns the current connection state.
func (t *Tracker) State() domain.ConnectionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Report applies a lifecycle transition from the subscriber.
func (t *Tracker) Report(status domain.ChannelStatus) {
	switch status {
	case domain.StatusSubscribed:
		t.set(domain.StateConnected)
	case domain.StatusClosed, domain.StatusChannelError:
		t.set(domain.StateDisconnected)
	default:
		t.logger.Warn("ignoring unknown channel status", logger.String("status", string(status)))
	}
}

// Fail records a subscription that could not be set up.
func (t *Tracker) Fail(err error) {
	t.logger.Warn("feed subscription failed", logger.Error(err))
	t.set(domain.StateDisconnected)
}

// OnTransition registers fn to run after every actual state change, outside
// the tracker's lock.
func (t *Tracker) OnTransition(fn func(from, to domain.ConnectionState)) {
	t.mu.Lock()
	t.observers = append(t.observers, fn)
	t.mu.Unlock()
}

func (t *Tracker) set(to domain.ConnectionState) {
	t.mu.Lock()
	from := t.state
	if from == to {
		t.mu.Unlock()
		return
	}
	t.state = to
	observers := append([]func(from, to domain.ConnectionState){}, t.observers...)
	t.mu.Unlock()

	t.logger.Info("connection state changed",
		logger.String("from", string(from)),
		logger.String("to", string(to)))

	for _, fn := range observers {
		fn(from, to)
	}
}
