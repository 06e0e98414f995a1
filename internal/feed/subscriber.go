// Package feed subscribes to one owner's change feed over a websocket and
// turns frames into domain events and lifecycle reports.
package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MrSnakeDoc/markd/internal/backoff"
	"github.com/MrSnakeDoc/markd/internal/domain"
	"github.com/MrSnakeDoc/markd/internal/logger"
	"github.com/MrSnakeDoc/markd/internal/version"
	"github.com/MrSnakeDoc/markd/internal/wire"
)

const feedPath = "/api/feed"

// Config describes how to reach the feed.
type Config struct {
	ServerURL        string         // http(s) base, rewritten to ws(s)
	Token            string         // bearer JWT
	Retry            backoff.Policy // reconnect policy
	HandshakeTimeout time.Duration
	// ReadTimeout drops the connection when nothing (frame or ping) arrived
	// for that long. 0 disables it.
	ReadTimeout time.Duration
}

// Subscriber opens owner-scoped subscriptions.
type Subscriber struct {
	base   *url.URL
	token  string
	retry  backoff.Policy
	read   time.Duration
	dialer *websocket.Dialer
	logger logger.Logger
}

// New validates cfg and returns a Subscriber.
func New(cfg Config, log logger.Logger) (*Subscriber, error) {
	base, err := url.Parse(cfg.ServerURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("feed: invalid server url %q", cfg.ServerURL)
	}
	switch base.Scheme {
	case "http":
		base.Scheme = "ws"
	case "https":
		base.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("feed: unsupported scheme %q", base.Scheme)
	}
	base.Path = strings.TrimRight(base.Path, "/") + feedPath

	if cfg.Token == "" {
		return nil, errors.New("feed: token is required")
	}
	if err := cfg.Retry.Validate(); err != nil {
		return nil, fmt.Errorf("feed: invalid retry policy: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}

	hs := cfg.HandshakeTimeout
	if hs <= 0 {
		hs = 10 * time.Second
	}

	return &Subscriber{
		base:   base,
		token:  cfg.Token,
		retry:  cfg.Retry,
		read:   cfg.ReadTimeout,
		dialer: &websocket.Dialer{Proxy: http.ProxyFromEnvironment, HandshakeTimeout: hs},
		logger: log,
	}, nil
}

// Subscription is one live feed. Unsubscribe releases it.
type Subscription struct {
	owner    string
	sub      *Subscriber
	onEvent  func(domain.Event)
	onStatus func(domain.ChannelStatus)
	logger   logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	mu   sync.Mutex
	conn *websocket.Conn
}

// Subscribe opens the owner's feed. The first connection is attempted
// before returning: a rejected handshake (bad token, foreign owner) is a
// setup error and is returned. A transient failure is not; the
// subscription reports CHANNEL_ERROR and keeps reconnecting.
//
// Callbacks run on the subscription's reader goroutine, one at a time.
// They must not call Unsubscribe.
func (s *Subscriber) Subscribe(
	ctx context.Context,
	owner string,
	onEvent func(domain.Event),
	onStatus func(domain.ChannelStatus),
) (*Subscription, error) {
	if owner == "" {
		return nil, &domain.SubscriptionError{Owner: owner, Err: errors.New("owner is required")}
	}
	if onEvent == nil || onStatus == nil {
		return nil, &domain.SubscriptionError{Owner: owner, Err: errors.New("callbacks are required")}
	}

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub := &Subscription{
		owner:    owner,
		sub:      s,
		onEvent:  onEvent,
		onStatus: onStatus,
		logger:   s.logger.With(logger.Owner(owner)),
		ctx:      subCtx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	conn, err := s.dial(ctx, owner)
	if err != nil && isRejected(err) {
		cancel()
		return nil, &domain.SubscriptionError{Owner: owner, Err: err}
	}
	if err != nil {
		sub.logger.Warn("feed unreachable, retrying in background", logger.Error(err))
	}

	go sub.run(conn)
	return sub, nil
}

// Unsubscribe stops the reader goroutine and closes the socket. No
// callback runs once it returns. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.cancel()

		s.mu.Lock()
		if s.conn != nil {
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = s.conn.Close()
		}
		s.mu.Unlock()

		<-s.done
		s.logger.Debug("feed unsubscribed")
	})
}

// Owner returns the owner the subscription is scoped to.
func (s *Subscription) Owner() string { return s.owner }

func (s *Subscription) run(conn *websocket.Conn) {
	defer close(s.done)

	b := backoff.New(s.sub.retry)
	if conn == nil {
		s.report(domain.StatusChannelError)
	}

	for {
		if conn == nil {
			if !backoff.Sleep(s.ctx, b.Next()) {
				return
			}
			var err error
			conn, err = s.sub.dial(s.ctx, s.owner)
			if err != nil {
				if s.ctx.Err() != nil {
					return
				}
				s.logger.Warn("feed reconnect failed",
					logger.Int("attempt", b.Attempt()),
					logger.Error(err))
				continue
			}
		}

		if !s.attach(conn) {
			_ = conn.Close()
			return
		}

		status := s.readLoop(conn, b)
		s.detach()
		_ = conn.Close()
		conn = nil

		if s.ctx.Err() != nil {
			return
		}
		s.report(status)
	}
}

// attach publishes conn so Unsubscribe can close it. It fails once the
// subscription is cancelled.
func (s *Subscription) attach(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	s.conn = conn
	return true
}

func (s *Subscription) detach() {
	s.mu.Lock()
	s.conn = nil
	s.mu.Unlock()
}

// readLoop dispatches frames until the connection fails and returns the
// status that describes how it ended.
func (s *Subscription) readLoop(conn *websocket.Conn, b *backoff.Backoff) domain.ChannelStatus {
	if s.sub.read > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.sub.read))
		conn.SetPingHandler(func(data string) error {
			_ = conn.SetReadDeadline(time.Now().Add(s.sub.read))
			return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		})
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Info("feed closed by server")
				return domain.StatusClosed
			}
			if s.ctx.Err() == nil {
				s.logger.Warn("feed read failed", logger.Error(err))
			}
			return domain.StatusChannelError
		}
		if s.sub.read > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.sub.read))
		}

		evt, status, err := wire.Decode(data)
		if err != nil {
			s.logger.Warn("dropping feed frame", logger.Error(err))
			continue
		}
		if status != "" {
			if status == domain.StatusSubscribed {
				b.Reset()
			}
			s.report(status)
			continue
		}
		s.deliver(evt)
	}
}

func (s *Subscription) report(status domain.ChannelStatus) {
	if s.ctx.Err() != nil {
		return
	}
	s.onStatus(status)
}

func (s *Subscription) deliver(evt domain.Event) {
	if s.ctx.Err() != nil {
		return
	}
	s.onEvent(evt)
}

func (s *Subscriber) dial(ctx context.Context, owner string) (*websocket.Conn, error) {
	target := *s.base
	target.RawQuery = url.Values{"owner": {owner}}.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.token)
	header.Set("User-Agent", version.UserAgent())

	conn, resp, err := s.dialer.DialContext(ctx, target.String(), header)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
			return nil, &HandshakeError{StatusCode: resp.StatusCode, Err: err}
		}
		return nil, err
	}
	return conn, nil
}

// HandshakeError is a websocket upgrade the server answered with a non-101
// status.
type HandshakeError struct {
	StatusCode int
	Err        error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("feed handshake rejected with %d: %v", e.StatusCode, e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// isRejected reports whether retrying cannot help.
func isRejected(err error) bool {
	var hs *HandshakeError
	if !errors.As(err, &hs) {
		return false
	}
	switch hs.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}
