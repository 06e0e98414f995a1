package reconcile

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrSnakeDoc/markd/internal/domain"
	"github.com/MrSnakeDoc/markd/internal/logger"
	"github.com/MrSnakeDoc/markd/internal/scheduler"
)

// Subscription is a live change feed. Unsubscribe must release it and
// guarantee no callback runs after it returns.
type Subscription interface {
	Unsubscribe()
}

// Subscriber opens owner-scoped change feeds. A returned error means the
// feed could not be set up at all.
type Subscriber interface {
	Subscribe(
		ctx context.Context,
		owner string,
		onEvent func(domain.Event),
		onStatus func(domain.ChannelStatus),
	) (Subscription, error)
}

// SubscribeFunc adapts a function to Subscriber.
type SubscribeFunc func(
	ctx context.Context,
	owner string,
	onEvent func(domain.Event),
	onStatus func(domain.ChannelStatus),
) (Subscription, error)

func (f SubscribeFunc) Subscribe(
	ctx context.Context,
	owner string,
	onEvent func(domain.Event),
	onStatus func(domain.ChannelStatus),
) (Subscription, error) {
	return f(ctx, owner, onEvent, onStatus)
}

// Options tune a session.
type Options struct {
	Logger logger.Logger
	// ResyncInterval adds periodic resyncs on top of the reconnect ones.
	// 0 disables them.
	ResyncInterval time.Duration
	// ResyncTimeout bounds one background resync. 0 means no bound.
	ResyncTimeout time.Duration
}

// Session binds an engine, a tracker and a feed subscription to one owner
// for a scoped lifetime. Close it on every exit path.
type Session struct {
	owner    string
	engine   *Engine
	tracker  *Tracker
	resyncer *scheduler.Resyncer
	sub      Subscription
	logger   logger.Logger

	closed    atomic.Bool
	closeOnce sync.Once
}

// NewSession seeds the collection from the repository and subscribes to the
// owner's feed. Neither a failed seed nor a failed subscription fails the
// session: the first leaves the collection empty, the second leaves the
// tracker disconnected.
func NewSession(ctx context.Context, owner string, repo Repository, subscriber Subscriber, opts Options) (*Session, error) {
	if owner == "" {
		return nil, errors.New("reconcile: owner is required")
	}
	if repo == nil || subscriber == nil {
		return nil, errors.New("reconcile: repository and subscriber are required")
	}

	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Owner(owner))

	s := &Session{
		owner:   owner,
		engine:  NewEngine(owner, repo, log),
		tracker: NewTracker(log),
		logger:  log,
	}
	s.resyncer = scheduler.NewResyncer(s.engine, log, opts.ResyncInterval, opts.ResyncTimeout)

	if err := s.engine.Resync(ctx); err != nil {
		log.Warn("initial list failed, starting empty", logger.Error(err))
	}

	// Every (re)connection catches up on changes the feed could not carry:
	// those published between the seed and the first subscribe, and those
	// published while disconnected.
	s.tracker.OnTransition(func(from, to domain.ConnectionState) {
		if to == domain.StateConnected && !s.closed.Load() {
			s.resyncer.Trigger()
		}
	})
	s.resyncer.Start(context.WithoutCancel(ctx))

	sub, err := subscriber.Subscribe(ctx, owner, s.onEvent, s.onStatus)
	if err != nil {
		var subErr *domain.SubscriptionError
		if !errors.As(err, &subErr) {
			err = &domain.SubscriptionError{Owner: owner, Err: err}
		}
		s.tracker.Fail(err)
	} else {
		s.sub = sub
	}

	log.Info("session started",
		logger.Int("bookmarks", s.engine.Len()),
		logger.String("state", string(s.tracker.State())))
	return s, nil
}

// Owner returns the owner the session is bound to.
func (s *Session) Owner() string { return s.owner }

// Engine returns the session's reconciliation engine.
func (s *Session) Engine() *Engine { return s.engine }

// Tracker returns the session's connection state tracker.
func (s *Session) Tracker() *Tracker { return s.tracker }

// Close unsubscribes, stops background resyncs and freezes the engine.
// Idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.sub != nil {
			s.sub.Unsubscribe()
		}
		s.resyncer.Stop()
		s.engine.Close()
		s.logger.Info("session closed")
	})
}

func (s *Session) onEvent(evt domain.Event) {
	if s.closed.Load() {
		return
	}
	s.engine.IngestFeedEvent(evt)
}

func (s *Session) onStatus(status domain.ChannelStatus) {
	if s.closed.Load() {
		return
	}
	s.tracker.Report(status)
}

// Manager holds at most one session and switches owners by tearing the old
// session down before the next one starts.
type Manager struct {
	repo       Repository
	subscriber Subscriber
	opts       Options

	mu      sync.Mutex
	current *Session
}

// NewManager returns a manager without a session.
func NewManager(repo Repository, subscriber Subscriber, opts Options) *Manager {
	return &Manager{repo: repo, subscriber: subscriber, opts: opts}
}

// Switch makes owner the current session. The same owner keeps the running
// session.
func (m *Manager) Switch(ctx context.Context, owner string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		if m.current.Owner() == owner {
			return m.current, nil
		}
		m.current.Close()
		m.current = nil
	}

	s, err := NewSession(ctx, owner, m.repo, m.subscriber, m.opts)
	if err != nil {
		return nil, err
	}
	m.current = s
	return s, nil
}

// Current returns the running session, or nil.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Close ends the running session, if any.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.current.Close()
		m.current = nil
	}
}
