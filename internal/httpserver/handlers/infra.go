package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/markd/internal/httpserver/deps"
)

type componentStatus struct {
	OK          bool   `json:"ok"`
	Connections *int64 `json:"connections,omitempty"`
	Impact      string `json:"impact,omitempty"`
	Error       string `json:"error,omitempty"`
}

type infraResponse struct {
	Mode       string                     `json:"mode"`
	Components map[string]componentStatus `json:"components"`
}

// Infra reports the health of the row store and the feed relay.
func Infra(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		active := d.Relay.Active()
		components := map[string]componentStatus{
			"redis": checkRedis(r.Context(), d),
			"feed": {
				OK:          true,
				Connections: &active,
			},
		}

		writeJSON(w, http.StatusOK, infraResponse{
			Mode:       determineMode(components),
			Components: components,
		})
	}
}

// Without Redis nothing works: rows and the feed both live there.
func determineMode(components map[string]componentStatus) string {
	if redis, exists := components["redis"]; exists && !redis.OK {
		return "critical"
	}
	return "operational"
}

func checkRedis(parent context.Context, d deps.Deps) componentStatus {
	if d.RedisClient == nil {
		return componentStatus{
			OK:     false,
			Impact: "bookmarks-and-feed-unavailable",
			Error:  "client not initialized",
		}
	}

	ctx, cancel := context.WithTimeout(parent, 2*time.Second)
	defer cancel()

	if err := d.RedisClient.Ping(ctx).Err(); err != nil {
		return componentStatus{
			OK:     false,
			Impact: "bookmarks-and-feed-unavailable",
			Error:  err.Error(),
		}
	}

	return componentStatus{OK: true}
}
