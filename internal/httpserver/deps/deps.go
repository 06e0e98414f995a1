package deps

import (
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/markd/internal/logger"
	"github.com/MrSnakeDoc/markd/internal/relay"
	redisstore "github.com/MrSnakeDoc/markd/internal/store/redis"
)

// Verifier turns a bearer token into the owner id it was issued for.
type Verifier interface {
	Verify(token string) (string, error)
}

type Deps struct {
	Logger         logger.Logger
	StartTime      time.Time
	Version        string
	Commit         string
	BuildDate      string
	GoVersion      string
	AllowedHosts   []string          // Host headers allowed on /api (empty = any)
	AllowedCIDRS   []string          // IPs allowed to access readyz/infra endpoints
	TrustProxy     bool              // true if running behind a trusted reverse proxy (e.g., cloudflared)
	RedisClient    *redis.Client     // Redis client connection
	Store          *redisstore.Store // Bookmark rows + change publication
	Relay          *relay.Relay      // Feed websocket relay
	Identity       Verifier          // Bearer token verification
	RequestTimeout time.Duration     // Per-request timeout on the REST routes
	RateBurst      int               // Requests an owner may burst
	RateRefill     int               // Tokens refilled per owner per minute
}
