// Package relay bridges an owner's Redis change channel to a websocket.
// Each connection gets its own pub/sub subscription; frames are forwarded
// as published.
package relay

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/markd/internal/domain"
	"github.com/MrSnakeDoc/markd/internal/logger"
	"github.com/MrSnakeDoc/markd/internal/wire"
)

const maxClientMessage = 512

var ErrClosed = errors.New("relay closed")

// FeedSource opens owner-scoped change subscriptions.
type FeedSource interface {
	SubscribeFeed(ctx context.Context, owner string) *redis.PubSub
}

type Config struct {
	// PingInterval keeps idle connections alive through proxies. A client
	// that misses two pings in a row is dropped.
	PingInterval time.Duration
	WriteTimeout time.Duration
}

// Relay serves feed websockets. It is safe for concurrent use.
type Relay struct {
	source   FeedSource
	cfg      Config
	logger   logger.Logger
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	active atomic.Int64
}

func New(source FeedSource, cfg Config, log logger.Logger) *Relay {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Relay{
		source: source,
		cfg:    cfg,
		logger: log,
		upgrader: websocket.Upgrader{
			// Callers authenticate with a bearer token, not cookies.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Active returns the number of open feed connections.
func (rl *Relay) Active() int64 {
	return rl.active.Load()
}

// Close drops every connection with a going-away frame and waits for the
// handlers to return. Serve refuses new connections afterwards.
func (rl *Relay) Close() {
	rl.mu.Lock()
	rl.closed = true
	rl.mu.Unlock()

	rl.cancel()
	rl.wg.Wait()
}

func (rl *Relay) acquire() error {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.closed {
		return ErrClosed
	}
	rl.wg.Add(1)
	return nil
}

// Serve subscribes to owner's channel, upgrades the request and streams
// frames until the client leaves, the subscription fails or the relay
// closes. The owner must already be authenticated.
func (rl *Relay) Serve(w http.ResponseWriter, r *http.Request, owner string) {
	if err := rl.acquire(); err != nil {
		http.Error(w, "feed unavailable", http.StatusServiceUnavailable)
		return
	}
	defer rl.wg.Done()

	log := rl.logger.With(logger.Owner(owner))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(rl.ctx, cancel)
	defer stop()

	// Subscribe before the upgrade so that SUBSCRIBED is only sent once
	// Redis has confirmed the channel.
	pubsub := rl.source.SubscribeFeed(ctx, owner)
	defer func() { _ = pubsub.Close() }()
	if _, err := pubsub.Receive(ctx); err != nil {
		log.Warn("feed subscription failed", logger.Error(err))
		http.Error(w, "feed unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := rl.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already answered the request.
		log.Debug("feed upgrade failed", logger.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	rl.active.Add(1)
	defer rl.active.Add(-1)
	log.Info("feed connected", logger.String("remote", r.RemoteAddr))

	status, err := wire.EncodeStatus(domain.StatusSubscribed)
	if err != nil {
		log.Error("failed to encode status frame", logger.Error(err))
		return
	}
	if err := rl.write(conn, status); err != nil {
		log.Debug("feed write failed", logger.Error(err))
		return
	}

	go rl.readLoop(conn, cancel)

	code := rl.pump(ctx, conn, pubsub.Channel(), log)
	if code != 0 {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, ""),
			time.Now().Add(rl.cfg.WriteTimeout))
	}
	log.Info("feed disconnected", logger.Int("close_code", code))
}

// pump forwards channel messages until something ends the stream. It
// returns the close code to send, or 0 when the client is already gone.
func (rl *Relay) pump(ctx context.Context, conn *websocket.Conn, ch <-chan *redis.Message, log logger.Logger) int {
	ticker := time.NewTicker(rl.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if rl.ctx.Err() != nil {
				return websocket.CloseGoingAway
			}
			return 0

		case msg, ok := <-ch:
			if !ok {
				log.Warn("feed channel closed")
				return websocket.CloseInternalServerErr
			}
			payload := []byte(msg.Payload)
			if _, _, err := wire.Decode(payload); err != nil {
				log.Warn("dropping malformed feed frame", logger.Error(err))
				continue
			}
			if err := rl.write(conn, payload); err != nil {
				log.Debug("feed write failed", logger.Error(err))
				return 0
			}

		case <-ticker.C:
			deadline := time.Now().Add(rl.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				log.Debug("feed ping failed", logger.Error(err))
				return 0
			}
		}
	}
}

func (rl *Relay) write(conn *websocket.Conn, data []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(rl.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop discards client messages and processes control frames. Any read
// error means the client is gone.
func (rl *Relay) readLoop(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	wait := 2 * rl.cfg.PingInterval
	conn.SetReadLimit(maxClientMessage)
	_ = conn.SetReadDeadline(time.Now().Add(wait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wait))
	})

	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}
