package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/markd/internal/domain"
	"github.com/MrSnakeDoc/markd/internal/httpserver/deps"
	"github.com/MrSnakeDoc/markd/internal/identity"
	"github.com/MrSnakeDoc/markd/internal/logger"
	"github.com/MrSnakeDoc/markd/internal/relay"
	redisstore "github.com/MrSnakeDoc/markd/internal/store/redis"
	"github.com/MrSnakeDoc/markd/internal/wire"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type harness struct {
	t       *testing.T
	mr      *miniredis.Miniredis
	handler http.Handler
	tokens  *identity.HMAC
	relay   *relay.Relay
}

func newHarness(t *testing.T, tweak func(*deps.Deps)) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := redisstore.NewStore(client, nil)
	rl := relay.New(store, relay.Config{PingInterval: time.Second}, nil)
	t.Cleanup(rl.Close)

	tokens, err := identity.NewHMAC(testSecret, time.Hour)
	require.NoError(t, err)

	d := deps.Deps{
		Logger:         logger.Nop(),
		StartTime:      time.Now(),
		Version:        "test",
		RedisClient:    client,
		Store:          store,
		Relay:          rl,
		Identity:       tokens,
		RequestTimeout: 2 * time.Second,
		RateBurst:      100,
		RateRefill:     100,
	}
	if tweak != nil {
		tweak(&d)
	}

	return &harness{t: t, mr: mr, handler: NewRouter(d), tokens: tokens, relay: rl}
}

func (h *harness) token(owner string) string {
	h.t.Helper()
	tok, err := h.tokens.Issue(owner)
	require.NoError(h.t, err)
	return tok
}

func (h *harness) do(method, target, owner, body string) *httptest.ResponseRecorder {
	h.t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if owner != "" {
		req.Header.Set("Authorization", "Bearer "+h.token(owner))
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func TestAPIRequiresToken(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(http.MethodGet, "/api/bookmarks", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "unauthorized")

	req := httptest.NewRequest(http.MethodGet, "/api/bookmarks", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec = httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBookmarkLifecycle(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(http.MethodPost, "/api/bookmarks", "alice", `{"url":"example.com","title":"","user_id":"alice"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created domain.Bookmark
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "https://example.com", created.URL)
	assert.Equal(t, "https://example.com", created.Title)
	assert.Equal(t, "alice", created.Owner)

	// Owner defaults to the token's subject.
	rec = h.do(http.MethodPost, "/api/bookmarks", "alice", `{"url":"https://go.dev","title":"Go"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = h.do(http.MethodGet, "/api/bookmarks?owner=alice", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []domain.Bookmark
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "https://go.dev", rows[0].URL, "newest first")

	rec = h.do(http.MethodDelete, "/api/bookmarks/"+created.ID+"?owner=alice", "alice", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Nothing matches any more: still 204.
	rec = h.do(http.MethodDelete, "/api/bookmarks/"+created.ID+"?owner=alice", "alice", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(http.MethodGet, "/api/bookmarks", "alice", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	assert.Len(t, rows, 1)
}

func TestBookmarkRequestErrors(t *testing.T) {
	h := newHarness(t, nil)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		want   int
	}{
		{"invalid url", http.MethodPost, "/api/bookmarks", `{"url":"   "}`, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/api/bookmarks", `{"url":`, http.StatusBadRequest},
		{"create for someone else", http.MethodPost, "/api/bookmarks", `{"url":"go.dev","user_id":"bob"}`, http.StatusForbidden},
		{"list someone else", http.MethodGet, "/api/bookmarks?owner=bob", "", http.StatusForbidden},
		{"delete someone else", http.MethodDelete, "/api/bookmarks/x?owner=bob", "", http.StatusForbidden},
		{"feed for someone else", http.MethodGet, "/api/feed?owner=bob", "", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(tt.method, tt.target, "alice", tt.body)
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestDeleteIsOwnerScoped(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(http.MethodPost, "/api/bookmarks", "bob", `{"url":"go.dev"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var bobs domain.Bookmark
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bobs))

	rec = h.do(http.MethodDelete, "/api/bookmarks/"+bobs.ID, "alice", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(http.MethodGet, "/api/bookmarks", "bob", "")
	var rows []domain.Bookmark
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	assert.Len(t, rows, 1, "alice cannot delete bob's row")
}

func TestFeedRelaysAPIWrites(t *testing.T) {
	h := newHarness(t, nil)
	srv := httptest.NewServer(h.handler)
	t.Cleanup(srv.Close)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+h.token("alice"))
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/feed?owner=alice"
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	read := func() (domain.Event, domain.ChannelStatus) {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		evt, status, err := wire.Decode(data)
		require.NoError(t, err)
		return evt, status
	}

	_, status := read()
	assert.Equal(t, domain.StatusSubscribed, status)

	rec := h.do(http.MethodPost, "/api/bookmarks", "alice", `{"url":"go.dev"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	evt, _ := read()
	ins, ok := evt.(domain.Inserted)
	require.True(t, ok, "want Inserted, got %T", evt)
	assert.Equal(t, "https://go.dev", ins.Row.URL)
}

func TestFeedRejectsMissingToken(t *testing.T) {
	h := newHarness(t, nil)
	srv := httptest.NewServer(h.handler)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/feed"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestProbes(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = h.do(http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodGet, "/infra", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var infra infraBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infra))
	assert.Equal(t, "operational", infra.Mode)
	assert.True(t, infra.Components["redis"].OK)

	h.mr.Close()

	rec = h.do(http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = h.do(http.MethodGet, "/infra", "", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infra))
	assert.Equal(t, "critical", infra.Mode)

	rec = h.do(http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code, "liveness does not depend on redis")
}

type infraBody struct {
	Mode       string `json:"mode"`
	Components map[string]struct {
		OK bool `json:"ok"`
	} `json:"components"`
}

func TestOperatorEndpointsHonourCIDRs(t *testing.T) {
	h := newHarness(t, func(d *deps.Deps) {
		d.AllowedCIDRS = []string{"10.0.0.0/8"}
	})

	// httptest requests come from 192.0.2.1.
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodGet, "/readyz", "", "").Code)
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodGet, "/infra", "", "").Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/healthz", "", "").Code)
}

func TestRateLimitIsPerOwner(t *testing.T) {
	h := newHarness(t, func(d *deps.Deps) {
		d.RateBurst = 2
		d.RateRefill = 1
	})

	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/bookmarks", "alice", "").Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/bookmarks", "alice", "").Code)

	rec := h.do(http.MethodGet, "/api/bookmarks", "alice", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/bookmarks", "bob", "").Code)
}

func TestEnforceHost(t *testing.T) {
	h := newHarness(t, func(d *deps.Deps) {
		d.AllowedHosts = []string{"*.example.com"}
	})

	req := httptest.NewRequest(http.MethodGet, "/api/bookmarks", nil)
	req.Host = "markd.example.com:8080"
	req.Header.Set("Authorization", "Bearer "+h.token("alice"))
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// httptest's default host is example.com, which the wildcard excludes.
	assert.Equal(t, http.StatusMisdirectedRequest, h.do(http.MethodGet, "/api/bookmarks", "alice", "").Code)
}
