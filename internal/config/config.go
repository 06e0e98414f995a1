package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the server configuration.
type Config struct {
	ListenPort      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 5s
	RequestTimeout  time.Duration // per-request timeout on REST routes

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	// Identity
	JWTSecret string        // HS256 signing key, at least 16 bytes
	TokenTTL  time.Duration // lifetime of issued tokens (0 = no expiry)

	// Feed relay
	FeedPingInterval time.Duration
	FeedWriteTimeout time.Duration

	// Rate limiting, per owner
	RateBurst        int
	RateRefillPerMin int

	// Redis
	RedisAddr             string        // ex: "localhost:6379"
	RedisUser             string        // optional
	RedisPassword         string        // optional
	RedisPasswordRequired bool          // true => require password, false => allow empty password
	RedisDB               int           // Redis DB number
	RedisDT               time.Duration // Redis dial timeout (ex: 5s)
	RedisRT               time.Duration // Redis read timeout (ex: 3s)
	RedisWT               time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait          time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout      time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize         int           // Redis connection pool size
	RedisConnectTimeout   time.Duration // Total time to retry connecting (ex: 30s)
	RedisRetryInterval    time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold    int           // warn after this many attempts

	// Maintenance
	SweepInterval    time.Duration // how often dangling owner index entries are pruned
	HomepageFile     string        // optional Homepage services/bookmarks YAML to import
	HomepageOwner    string        // owner the Homepage file is imported into
	HomepageInterval time.Duration // re-import interval (0 = once at startup)

	AllowedHosts []string // optional, restrict /api to specific Host headers
	AllowedCIDRS []string // optional, restrict readyz/infra to specific IPs (e.g. "1.2.3.4, 10.0.0.0/8")
	TrustProxy   bool     // true => trust X-Forwarded-For headers (e.g. cloudflared)
}

// Load reads the server configuration. Missing required values are fatal.
func Load() *Config {
	cfg := &Config{
		// Server settings
		ListenPort:      getenv("MARKD_LISTEN_PORT", ":8080"),
		ShutdownTimeout: mustDuration("MARKD_SHUTDOWN_TIMEOUT", 5*time.Second),
		RequestTimeout:  mustDuration("MARKD_REQUEST_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:  getenv("MARKD_LOG_LEVEL", "info"),
		PrettyLog: mustBool("MARKD_PRETTY_LOG", true),

		// Identity
		JWTSecret: requireEnv("MARKD_JWT_SECRET"),
		TokenTTL:  mustDuration("MARKD_TOKEN_TTL", 30*24*time.Hour),

		// Feed relay
		FeedPingInterval: mustDuration("MARKD_FEED_PING_INTERVAL", 30*time.Second),
		FeedWriteTimeout: mustDuration("MARKD_FEED_WRITE_TIMEOUT", 5*time.Second),

		// Rate limiting
		RateBurst:        getenvInt("MARKD_RATE_BURST", 60),
		RateRefillPerMin: getenvInt("MARKD_RATE_REFILL_PER_MIN", 120),

		// Redis settings
		RedisAddr:             requireEnv("MARKD_REDIS_ADDR"),
		RedisUser:             getenv("MARKD_REDIS_USERNAME", "default"),
		RedisPasswordRequired: mustBool("MARKD_REDIS_PASSWORD_REQUIRED", true),
		RedisPassword:         getenv("MARKD_REDIS_PASSWORD", ""),
		RedisDB:               requireEnvInt("MARKD_REDIS_DB"),
		RedisDT:               mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:               mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:               mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:          mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:      mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:         getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout:   mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:    mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:    getenvInt("REDIS_WARN_THRESHOLD", 3),

		// Maintenance
		SweepInterval:    mustDuration("MARKD_SWEEP_INTERVAL", time.Hour),
		HomepageFile:     getenv("MARKD_HOMEPAGE_FILE", ""),
		HomepageOwner:    getenv("MARKD_HOMEPAGE_OWNER", ""),
		HomepageInterval: mustDuration("MARKD_HOMEPAGE_INTERVAL", 5*time.Minute),

		// Access restrictions
		AllowedHosts: splitAndTrim(getenv("MARKD_ALLOWED_HOSTS", "")),
		AllowedCIDRS: parseAllowedIPs(getenv("MARKD_ALLOWED_CIDRS", "")),
		TrustProxy:   mustBool("MARKD_TRUST_PROXY", false),
	}

	if cfg.RedisPasswordRequired && cfg.RedisPassword == "" {
		panic("❌ FATAL: MARKD_REDIS_PASSWORD is required when MARKD_REDIS_PASSWORD_REQUIRED=true")
	}
	if cfg.HomepageFile != "" && cfg.HomepageOwner == "" {
		panic("❌ FATAL: MARKD_HOMEPAGE_OWNER is required when MARKD_HOMEPAGE_FILE is set")
	}
	if len(cfg.JWTSecret) < 16 {
		panic("❌ FATAL: MARKD_JWT_SECRET must be at least 16 bytes")
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		cfgCopy.RedisPassword = "***REDACTED***"
		cfgCopy.JWTSecret = "***REDACTED***"
		if cfg.RedisUser != "" {
			cfgCopy.RedisUser = "***REDACTED***"
		}
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
}

// ClientConfig configures the CLI side: the repository client, the feed
// subscriber and the session's background resyncs.
type ClientConfig struct {
	ServerURL      string        // ex: "http://localhost:8080"
	Token          string        // bearer token issued by `markd token`
	RequestTimeout time.Duration // per API call
	ResyncInterval time.Duration // periodic resync on top of reconnect resyncs (0 = off)
	RetryInterval  time.Duration // first feed reconnect wait, grows exponentially
	RetryMaxWait   time.Duration // cap on the feed reconnect wait
	FeedTimeout    time.Duration // drop a feed that stayed silent, pings included (0 = never)

	LogLevel  string
	PrettyLog bool
}

var ErrMissingToken = errors.New("MARKD_TOKEN is not set (issue one with `markd token <owner>`)")

// LoadClient reads the client configuration. Unlike Load it returns an
// error: a CLI reports bad input instead of panicking.
func LoadClient() (*ClientConfig, error) {
	cfg := &ClientConfig{
		ServerURL:      getenv("MARKD_SERVER_URL", "http://localhost:8080"),
		Token:          strings.TrimSpace(os.Getenv("MARKD_TOKEN")),
		RequestTimeout: mustDuration("MARKD_REQUEST_TIMEOUT", 10*time.Second),
		ResyncInterval: mustDuration("MARKD_RESYNC_INTERVAL", 0),
		RetryInterval:  mustDuration("MARKD_FEED_RETRY_INTERVAL", time.Second),
		RetryMaxWait:   mustDuration("MARKD_FEED_MAX_WAIT", 30*time.Second),
		FeedTimeout:    mustDuration("MARKD_FEED_READ_TIMEOUT", 90*time.Second),
		LogLevel:       getenv("MARKD_LOG_LEVEL", "warn"),
		PrettyLog:      mustBool("MARKD_PRETTY_LOG", true),
	}

	if cfg.Token == "" {
		return nil, ErrMissingToken
	}
	u, err := url.Parse(cfg.ServerURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("MARKD_SERVER_URL must be an http(s) URL, got %q", cfg.ServerURL)
	}
	if cfg.RetryInterval <= 0 || cfg.RetryMaxWait < cfg.RetryInterval {
		return nil, fmt.Errorf("feed retry: need 0 < MARKD_FEED_RETRY_INTERVAL <= MARKD_FEED_MAX_WAIT, got %v and %v",
			cfg.RetryInterval, cfg.RetryMaxWait)
	}
	return cfg, nil
}

// SigningConfig is what `markd token` needs to mint tokens offline, with
// the same secret the server verifies against.
type SigningConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

func LoadSigning() (*SigningConfig, error) {
	cfg := &SigningConfig{
		JWTSecret: os.Getenv("MARKD_JWT_SECRET"),
		TokenTTL:  mustDuration("MARKD_TOKEN_TTL", 30*24*time.Hour),
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("MARKD_JWT_SECRET is not set")
	}
	return cfg, nil
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	return v
}

func requireEnvInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		panic(fmt.Sprintf("❌ FATAL: Invalid integer value for %s: %s", key, v))
	}
	return i
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func parseAllowedIPs(allowed string) []string {
	if allowed == "" {
		return nil
	}
	ips := make([]string, 0, 4)
	for _, ip := range splitAndTrim(allowed) {
		if ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
