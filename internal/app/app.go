package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/markd/internal/config"
	"github.com/MrSnakeDoc/markd/internal/httpserver"
	"github.com/MrSnakeDoc/markd/internal/httpserver/deps"
	"github.com/MrSnakeDoc/markd/internal/identity"
	"github.com/MrSnakeDoc/markd/internal/logger"
	"github.com/MrSnakeDoc/markd/internal/redis"
	"github.com/MrSnakeDoc/markd/internal/relay"
	"github.com/MrSnakeDoc/markd/internal/scheduler"
	redisstore "github.com/MrSnakeDoc/markd/internal/store/redis"
	"github.com/MrSnakeDoc/markd/internal/version"
)

// App is the markd server: the bookmark API and the change feed relay.
type App struct {
	cfg         *config.Config
	logger      logger.Logger
	server      *httpserver.Server
	redisClient *goredis.Client
	relay       *relay.Relay
	sweeper     *scheduler.Sweeper
	homepage    *scheduler.HomepageSync // nil unless MARKD_HOMEPAGE_FILE is set
}

// New wires the server. Redis must be reachable: it is the row store and
// the feed bus, so there is nothing useful to serve without it.
func New(cfg *config.Config, loggerClient logger.Logger) (*App, error) {
	tokens, err := identity.NewHMAC(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return nil, err
	}

	loggerClient.Infof("Connecting to Redis at %s", cfg.RedisAddr)
	redisClient, err := redis.New(redis.ConnectOptions{
		Addr:           cfg.RedisAddr,
		User:           cfg.RedisUser,
		Password:       cfg.RedisPassword,
		RedisDB:        cfg.RedisDB,
		DialTimeout:    cfg.RedisDT,
		ReadTimeout:    cfg.RedisRT,
		WriteTimeout:   cfg.RedisWT,
		PoolSize:       cfg.RedisPoolSize,
		ConnectTimeout: cfg.RedisConnectTimeout,
		RetryInterval:  cfg.RedisRetryInterval,
		MaxWait:        cfg.RedisMaxWait,
		PingTimeout:    cfg.RedisPingTimeout,
		WarnThreshold:  cfg.RedisWarnThreshold,
	}, loggerClient)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	loggerClient.Info("Redis initialized successfully")

	store := redisstore.NewStore(redisClient, loggerClient)
	feedRelay := relay.New(store, relay.Config{
		PingInterval: cfg.FeedPingInterval,
		WriteTimeout: cfg.FeedWriteTimeout,
	}, loggerClient)

	d := deps.Deps{
		Logger:         loggerClient,
		StartTime:      time.Now(),
		Version:        version.Version,
		Commit:         version.Commit,
		BuildDate:      version.BuildDate,
		GoVersion:      version.GoVersion,
		AllowedHosts:   cfg.AllowedHosts,
		AllowedCIDRS:   cfg.AllowedCIDRS,
		TrustProxy:     cfg.TrustProxy,
		RedisClient:    redisClient,
		Store:          store,
		Relay:          feedRelay,
		Identity:       tokens,
		RequestTimeout: cfg.RequestTimeout,
		RateBurst:      cfg.RateBurst,
		RateRefill:     cfg.RateRefillPerMin,
	}

	a := &App{
		cfg:         cfg,
		logger:      loggerClient,
		server:      httpserver.New(cfg, loggerClient, d),
		redisClient: redisClient,
		relay:       feedRelay,
		sweeper:     scheduler.NewSweeper(store, loggerClient, cfg.SweepInterval),
	}
	if cfg.HomepageFile != "" {
		a.homepage = scheduler.NewHomepageSync(cfg.HomepageFile, cfg.HomepageOwner, store, loggerClient, cfg.HomepageInterval)
	}
	return a, nil
}

// Run serves until ctx is cancelled, SIGINT/SIGTERM arrives or the listener
// fails, then shuts down: HTTP first, feed connections next, Redis last.
func (a *App) Run(ctx context.Context) error {
	a.logger.Infof("🚀 Starting markd %s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Infof("markd %s (commit=%s, built=%s, go=%s)",
		version.Version, version.Commit, version.BuildDate, version.GoVersion)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.homepage != nil {
		if err := a.homepage.Start(ctx); err != nil {
			_ = a.redisClient.Close()
			return err
		}
		a.logger.Infof("importing %s into %s every %s", a.cfg.HomepageFile, a.cfg.HomepageOwner, a.cfg.HomepageInterval)
	}
	a.sweeper.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case runErr = <-errCh:
		a.logger.Error("http server failed, shutting down", logger.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to stop server: %w", err)
	}

	a.sweeper.Stop()
	if a.homepage != nil {
		a.homepage.Stop()
	}

	// Hijacked websockets are invisible to Shutdown.
	a.relay.Close()
	a.logger.Info("feed relay closed")

	if err := a.redisClient.Close(); err != nil {
		a.logger.Warnf("failed to close redis: %v", err)
	} else {
		a.logger.Info("✅ Redis closed cleanly")
	}

	a.logger.Info("✅ markd stopped cleanly")
	return runErr
}
