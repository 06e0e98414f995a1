package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/markd/internal/config"
	"github.com/MrSnakeDoc/markd/internal/domain"
	"github.com/MrSnakeDoc/markd/internal/httpserver"
	"github.com/MrSnakeDoc/markd/internal/httpserver/deps"
	"github.com/MrSnakeDoc/markd/internal/identity"
	"github.com/MrSnakeDoc/markd/internal/logger"
	"github.com/MrSnakeDoc/markd/internal/relay"
	redisstore "github.com/MrSnakeDoc/markd/internal/store/redis"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// syncBuffer lets watch write from feed callbacks while the test reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type testServer struct {
	store  *redisstore.Store
	tokens *identity.HMAC
}

// startServer runs the real router against miniredis and points the
// client configuration at it as owner.
func startServer(t *testing.T, owner string) *testServer {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := redisstore.NewStore(client, nil)
	rl := relay.New(store, relay.Config{PingInterval: time.Second}, nil)

	tokens, err := identity.NewHMAC(testSecret, time.Hour)
	require.NoError(t, err)

	srv := httptest.NewServer(httpserver.NewRouter(deps.Deps{
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
	}))
	t.Cleanup(srv.Close)
	// Feed connections are hijacked: close them before the server.
	t.Cleanup(rl.Close)

	token, err := tokens.Issue(owner)
	require.NoError(t, err)

	t.Setenv("MARKD_SERVER_URL", srv.URL)
	t.Setenv("MARKD_TOKEN", token)
	t.Setenv("MARKD_FEED_RETRY_INTERVAL", "50ms")
	t.Setenv("MARKD_FEED_MAX_WAIT", "200ms")
	t.Setenv("MARKD_RESYNC_INTERVAL", "0s")

	return &testServer{store: store, tokens: tokens}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestRootCommandWiring(t *testing.T) {
	cmd := NewRootCommand()

	for _, name := range []string{"serve", "token", "ls", "add", "rm", "watch", "import"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}

	assert.NotNil(t, cmd.PersistentFlags().Lookup("format"))
	assert.NotNil(t, cmd.PersistentFlags().Lookup("verbose"))

	add, _, _ := cmd.Find([]string{"add"})
	assert.NotNil(t, add.Flags().Lookup("title"))
	imp, _, _ := cmd.Find([]string{"import"})
	assert.NotNil(t, imp.Flags().Lookup("dry-run"))
}

func TestInvalidFormat(t *testing.T) {
	_, err := run(t, "ls", "--format", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestCommandsNeedToken(t *testing.T) {
	t.Setenv("MARKD_TOKEN", "")

	_, err := run(t, "ls")
	require.ErrorIs(t, err, config.ErrMissingToken)
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("MARKD_JWT_SECRET", testSecret)

	out, err := run(t, "token", "alice", "--ttl", "1h", "--format", "json")
	require.NoError(t, err)

	var res tokenResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "alice", res.Owner)
	require.NotNil(t, res.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *res.ExpiresAt, time.Minute)

	verifier, err := identity.NewHMAC(testSecret, 0)
	require.NoError(t, err)
	owner, err := verifier.Verify(res.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", owner)
}

func TestTokenCommandNeedsSecret(t *testing.T) {
	t.Setenv("MARKD_JWT_SECRET", "")

	_, err := run(t, "token", "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MARKD_JWT_SECRET")
}

func TestAddListRemove(t *testing.T) {
	srv := startServer(t, "alice")
	ctx := context.Background()

	out, err := run(t, "add", "go.dev", "--title", "Go", "--format", "json")
	require.NoError(t, err)
	var added domain.Bookmark
	require.NoError(t, json.Unmarshal([]byte(out), &added))
	assert.Equal(t, "https://go.dev", added.URL)
	assert.Equal(t, "Go", added.Title)
	assert.Equal(t, "alice", added.Owner)

	out, err = run(t, "add", "https://example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "added ")
	assert.Contains(t, out, "https://example.com")

	// Someone else's row never shows up.
	_, err = srv.store.Create(ctx, "https://bob.example", "", "bob")
	require.NoError(t, err)

	out, err = run(t, "ls", "--format", "json")
	require.NoError(t, err)
	var rows []domain.Bookmark
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "https://example.com", rows[0].URL, "newest first")
	assert.Equal(t, added.ID, rows[1].ID)

	out, err = run(t, "ls")
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "https://go.dev")

	out, err = run(t, "ls", "--search", "go", "--format", "json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, added.ID, rows[0].ID)

	out, err = run(t, "rm", added.ID, "missing-id", "--format", "json")
	require.NoError(t, err)
	var results []removeResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	assert.Equal(t, []removeResult{
		{ID: added.ID, Removed: true},
		{ID: "missing-id", Removed: false},
	}, results)

	remaining, err := srv.store.ListByOwner(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "https://example.com", remaining[0].URL)
}

func TestAddRejectsInvalidURL(t *testing.T) {
	startServer(t, "alice")

	_, err := run(t, "add", "   ")
	require.ErrorIs(t, err, domain.ErrInvalidURL)
}

func TestImport(t *testing.T) {
	srv := startServer(t, "alice")
	_, err := srv.store.Create(context.Background(), "https://go.dev", "Go", "alice")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "bookmarks.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`---
- Developer:
    - Go:
        - abbr: GO
          href: https://go.dev
    - Github:
        - abbr: GH
          href: https://github.com
- Infra:
    - Traefik:
        href: traefik.example
`), 0o644))

	out, err := run(t, "import", path, "--dry-run", "--format", "json")
	require.NoError(t, err)
	var res importResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, importResult{Added: 2, Skipped: 1, DryRun: true}, res)

	rows, err := srv.store.ListByOwner(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, rows, 1, "dry run writes nothing")

	out, err = run(t, "import", path)
	require.NoError(t, err)
	assert.Contains(t, out, "2 added, 1 skipped, 0 failed")

	// A second run finds everything already there.
	out, err = run(t, "import", path)
	require.NoError(t, err)
	assert.Contains(t, out, "0 added, 3 skipped, 0 failed")

	rows, err = srv.store.ListByOwner(context.Background(), "alice")
	require.NoError(t, err)
	urls := make([]string, 0, len(rows))
	for _, r := range rows {
		urls = append(urls, r.URL)
	}
	assert.ElementsMatch(t, []string{"https://go.dev", "https://github.com", "https://traefik.example"}, urls)
}

func TestImportMissingFile(t *testing.T) {
	startServer(t, "alice")

	_, err := run(t, "import", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func lastFrame(out string) (watchFrame, bool) {
	var last watchFrame
	found := false
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		var f watchFrame
		if json.Unmarshal(sc.Bytes(), &f) == nil {
			last, found = f, true
		}
	}
	return last, found
}

func TestWatchFollowsFeed(t *testing.T) {
	srv := startServer(t, "alice")
	_, err := srv.store.Create(context.Background(), "https://go.dev", "Go", "alice")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &syncBuffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"watch", "--format", "json"})

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool {
		f, ok := lastFrame(out.String())
		return ok && f.State == domain.StateConnected && f.Count == 1
	}, 5*time.Second, 20*time.Millisecond, "initial resync and live indicator")

	row, err := srv.store.Create(context.Background(), "https://example.com", "Example", "alice")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		f, ok := lastFrame(out.String())
		return ok && f.Count == 2 && f.Bookmarks[0].ID == row.ID
	}, 5*time.Second, 20*time.Millisecond, "feed insert")

	_, err = srv.store.Delete(context.Background(), row.ID, "alice")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		f, ok := lastFrame(out.String())
		return ok && f.Count == 1 && f.Label == "live"
	}, 5*time.Second, 20*time.Millisecond, "feed delete")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop on cancel")
	}
}

func TestWatchTextRendering(t *testing.T) {
	startServer(t, "alice")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &syncBuffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"watch"})

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "[live] 0 bookmarks")
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
