package cli

import (
	"context"

	"github.com/MrSnakeDoc/markd/internal/backoff"
	"github.com/MrSnakeDoc/markd/internal/config"
	"github.com/MrSnakeDoc/markd/internal/domain"
	"github.com/MrSnakeDoc/markd/internal/feed"
	"github.com/MrSnakeDoc/markd/internal/identity"
	"github.com/MrSnakeDoc/markd/internal/logger"
	"github.com/MrSnakeDoc/markd/internal/reconcile"
	"github.com/MrSnakeDoc/markd/internal/repository"
)

// clientEnv is what every bookmark command starts from: the caller's
// identity and a repository client for the configured server.
type clientEnv struct {
	cfg   *config.ClientConfig
	owner string
	repo  *repository.Client
	log   logger.Logger
}

func loadClient(opts *RootOptions) (*clientEnv, error) {
	cfg, err := config.LoadClient()
	if err != nil {
		return nil, err
	}

	log := logger.Nop()
	if opts.Verbose {
		log = logger.New(cfg.LogLevel, cfg.PrettyLog)
	}

	// The server verifies the token on every call; the client only needs
	// to know whose collection it is building.
	owner, err := identity.OwnerFromToken(cfg.Token)
	if err != nil {
		return nil, err
	}

	repo, err := repository.New(repository.Config{
		BaseURL: cfg.ServerURL,
		Token:   cfg.Token,
		Timeout: cfg.RequestTimeout,
	}, log)
	if err != nil {
		return nil, err
	}

	return &clientEnv{cfg: cfg, owner: owner, repo: repo, log: log}, nil
}

// engine returns a feed-less engine for one-shot commands.
func (c *clientEnv) engine() *reconcile.Engine {
	return reconcile.NewEngine(c.owner, c.repo, c.log)
}

// subscriber adapts the websocket feed to the session's Subscriber.
func (c *clientEnv) subscriber() (reconcile.Subscriber, error) {
	sub, err := feed.New(feed.Config{
		ServerURL:   c.cfg.ServerURL,
		Token:       c.cfg.Token,
		Retry:       backoff.Policy{Initial: c.cfg.RetryInterval, MaxWait: c.cfg.RetryMaxWait},
		ReadTimeout: c.cfg.FeedTimeout,
	}, c.log)
	if err != nil {
		return nil, err
	}

	return reconcile.SubscribeFunc(func(
		ctx context.Context,
		owner string,
		onEvent func(domain.Event),
		onStatus func(domain.ChannelStatus),
	) (reconcile.Subscription, error) {
		s, err := sub.Subscribe(ctx, owner, onEvent, onStatus)
		if err != nil {
			// A nil *feed.Subscription must not become a non-nil interface.
			return nil, err
		}
		return s, nil
	}), nil
}

// session starts a live session for the caller's owner.
func (c *clientEnv) session(ctx context.Context) (*reconcile.Session, error) {
	sub, err := c.subscriber()
	if err != nil {
		return nil, err
	}
	return reconcile.NewSession(ctx, c.owner, c.repo, sub, reconcile.Options{
		Logger:         c.log,
		ResyncInterval: c.cfg.ResyncInterval,
		ResyncTimeout:  c.cfg.RequestTimeout,
	})
}
