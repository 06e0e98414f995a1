package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/MrSnakeDoc/markd/internal/domain"
)

var errBoom = errors.New("boom")

// fakeRepo is an in-memory row store with switchable failures.
type fakeRepo struct {
	mu      sync.Mutex
	rows    map[string]domain.Bookmark
	clock   time.Time
	seq     int
	calls   map[string]int
	failOps map[string]error
	// onCreate runs after a row is stored, before Create returns.
	onCreate func(domain.Bookmark)
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		rows:    make(map[string]domain.Bookmark),
		clock:   time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
		calls:   make(map[string]int),
		failOps: make(map[string]error),
	}
}

func (f *fakeRepo) fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failOps, op)
		return
	}
	f.failOps[op] = err
}

func (f *fakeRepo) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// put stores a row as if another session created it.
func (f *fakeRepo) put(b domain.Bookmark) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[b.ID] = b
}

func (f *fakeRepo) Create(ctx context.Context, url, title, owner string) (domain.Bookmark, error) {
	f.mu.Lock()
	f.calls["create"]++
	if err := f.failOps["create"]; err != nil {
		f.mu.Unlock()
		return domain.Bookmark{}, err
	}
	f.seq++
	f.clock = f.clock.Add(time.Second)
	b := domain.Bookmark{
		ID:        fmt.Sprintf("row-%03d", f.seq),
		URL:       url,
		Title:     title,
		Owner:     owner,
		CreatedAt: f.clock,
	}
	f.rows[b.ID] = b
	hook := f.onCreate
	f.mu.Unlock()

	if hook != nil {
		hook(b)
	}
	return b, nil
}

func (f *fakeRepo) Delete(ctx context.Context, id, owner string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["delete"]++
	if err := f.failOps["delete"]; err != nil {
		return err
	}
	if b, ok := f.rows[id]; ok && b.Owner == owner {
		delete(f.rows, id)
	}
	return nil
}

func (f *fakeRepo) ListByOwner(ctx context.Context, owner string) ([]domain.Bookmark, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["list"]++
	if err := f.failOps["list"]; err != nil {
		return nil, err
	}
	out := make([]domain.Bookmark, 0, len(f.rows))
	for _, b := range f.rows {
		if b.Owner == owner {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Newer(out[j]) })
	return out, nil
}

// fakeSubscriber hands the session's callbacks to the test.
type fakeSubscriber struct {
	mu       sync.Mutex
	err      error
	subs     []*fakeSubscription
	onEvent  func(domain.Event)
	onStatus func(domain.ChannelStatus)
}

type fakeSubscription struct {
	owner        string
	unsubscribed bool
	mu           *sync.Mutex
}

func (s *fakeSubscription) Unsubscribe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsubscribed = true
}

func (f *fakeSubscriber) Subscribe(
	ctx context.Context,
	owner string,
	onEvent func(domain.Event),
	onStatus func(domain.ChannelStatus),
) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	sub := &fakeSubscription{owner: owner, mu: &f.mu}
	f.subs = append(f.subs, sub)
	f.onEvent = onEvent
	f.onStatus = onStatus
	return sub, nil
}

func (f *fakeSubscriber) emit(evt domain.Event) {
	f.mu.Lock()
	fn := f.onEvent
	f.mu.Unlock()
	fn(evt)
}

func (f *fakeSubscriber) status(s domain.ChannelStatus) {
	f.mu.Lock()
	fn := f.onStatus
	f.mu.Unlock()
	fn(s)
}

func (f *fakeSubscriber) eventHandler() func(domain.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.onEvent
}

func (f *fakeSubscriber) subscription(i int) *fakeSubscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[i]
}

func (f *fakeSubscriber) unsubscribed(i int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[i].unsubscribed
}

func bookmark(id, owner string, at time.Time) domain.Bookmark {
	return domain.Bookmark{
		ID:        id,
		URL:       "https://" + id + ".example",
		Title:     id,
		Owner:     owner,
		CreatedAt: at,
	}
}

func idsOf(rows []domain.Bookmark) []string {
	out := make([]string, len(rows))
	for i, b := range rows {
		out[i] = b.ID
	}
	return out
}
