package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/markd/internal/domain"
)

func TestTrackerTransitions(t *testing.T) {
	tr := NewTracker(nil)
	assert.Equal(t, domain.StateConnecting, tr.State())

	var got [][2]domain.ConnectionState
	tr.OnTransition(func(from, to domain.ConnectionState) {
		got = append(got, [2]domain.ConnectionState{from, to})
	})

	tr.Report(domain.StatusSubscribed)
	assert.Equal(t, domain.StateConnected, tr.State())
	tr.Report(domain.StatusSubscribed)
	tr.Report(domain.StatusChannelError)
	assert.Equal(t, domain.StateDisconnected, tr.State())
	tr.Report(domain.StatusClosed)
	tr.Report("NOT_A_STATUS")
	assert.Equal(t, domain.StateDisconnected, tr.State())
	tr.Report(domain.StatusSubscribed)

	assert.Equal(t, [][2]domain.ConnectionState{
		{domain.StateConnecting, domain.StateConnected},
		{domain.StateConnected, domain.StateDisconnected},
		{domain.StateDisconnected, domain.StateConnected},
	}, got, "only actual changes are reported")
}

func TestTrackerFail(t *testing.T) {
	tr := NewTracker(nil)
	tr.Fail(errBoom)
	assert.Equal(t, domain.StateDisconnected, tr.State())
	assert.Equal(t, "offline", tr.State().Label())
}

func TestSessionSeedsAndFollowsFeed(t *testing.T) {
	repo := newFakeRepo()
	repo.put(bookmark("seeded", owner, base))
	sub := &fakeSubscriber{}

	s, err := NewSession(context.Background(), owner, repo, sub, Options{})
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, []string{"seeded"}, idsOf(s.Engine().Snapshot()))
	assert.Equal(t, domain.StateConnecting, s.Tracker().State())
	assert.Equal(t, owner, sub.subscription(0).owner)

	sub.status(domain.StatusSubscribed)
	assert.Equal(t, domain.StateConnected, s.Tracker().State())

	live := bookmark("live", owner, base.Add(time.Minute))
	repo.put(live)
	sub.emit(domain.Inserted{Row: live})
	assert.Equal(t, []string{"live", "seeded"}, idsOf(s.Engine().Snapshot()))
}

func TestSessionSubscribeErrorMarksDisconnected(t *testing.T) {
	repo := newFakeRepo()
	sub := &fakeSubscriber{err: errBoom}

	s, err := NewSession(context.Background(), owner, repo, sub, Options{})
	require.NoError(t, err, "a subscribe failure does not fail the session")
	defer s.Close()

	assert.Equal(t, domain.StateDisconnected, s.Tracker().State())

	// The engine still works without a feed.
	_, err = s.Engine().AddBookmark(context.Background(), "go.dev", "")
	require.NoError(t, err)
	assert.Equal(t, 1, s.Engine().Len())
}

func TestSessionSeedFailureStartsEmpty(t *testing.T) {
	repo := newFakeRepo()
	repo.put(bookmark("a", owner, base))
	repo.fail("list", errBoom)

	s, err := NewSession(context.Background(), owner, repo, &fakeSubscriber{}, Options{})
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, 0, s.Engine().Len())
}

func TestSessionResyncsOnReconnect(t *testing.T) {
	repo := newFakeRepo()
	sub := &fakeSubscriber{}

	s, err := NewSession(context.Background(), owner, repo, sub, Options{})
	require.NoError(t, err)
	defer s.Close()

	sub.status(domain.StatusSubscribed)
	require.Eventually(t, func() bool { return repo.count("list") == 2 }, time.Second, 5*time.Millisecond)

	sub.status(domain.StatusChannelError)
	// Published while the feed was down; never delivered.
	repo.put(bookmark("missed", owner, base))
	sub.status(domain.StatusSubscribed)

	require.Eventually(t, func() bool { return s.Engine().Contains("missed") }, time.Second, 5*time.Millisecond)
	assert.Equal(t, domain.StateConnected, s.Tracker().State())
}

func TestSessionCloseUnsubscribesAndDropsEvents(t *testing.T) {
	repo := newFakeRepo()
	sub := &fakeSubscriber{}

	s, err := NewSession(context.Background(), owner, repo, sub, Options{})
	require.NoError(t, err)

	s.Close()
	s.Close()

	assert.True(t, sub.unsubscribed(0))

	sub.emit(domain.Inserted{Row: bookmark("late", owner, base)})
	sub.status(domain.StatusSubscribed)
	assert.Equal(t, 0, s.Engine().Len())
	assert.Equal(t, domain.StateConnecting, s.Tracker().State())
}

func TestNewSessionValidates(t *testing.T) {
	_, err := NewSession(context.Background(), "", newFakeRepo(), &fakeSubscriber{}, Options{})
	assert.Error(t, err)

	_, err = NewSession(context.Background(), owner, nil, &fakeSubscriber{}, Options{})
	assert.Error(t, err)
}

func TestManagerSwitchTearsDownPreviousOwner(t *testing.T) {
	repo := newFakeRepo()
	repo.put(bookmark("a1", "alice", base))
	repo.put(bookmark("b1", "bob", base))
	sub := &fakeSubscriber{}

	m := NewManager(repo, sub, Options{})
	defer m.Close()

	alice, err := m.Switch(context.Background(), "alice")
	require.NoError(t, err)
	aliceEvent := sub.eventHandler()

	same, err := m.Switch(context.Background(), "alice")
	require.NoError(t, err)
	assert.Same(t, alice, same)

	bob, err := m.Switch(context.Background(), "bob")
	require.NoError(t, err)
	assert.True(t, sub.unsubscribed(0), "the old subscription is released first")
	assert.Same(t, bob, m.Current())

	// A straggler from alice's feed reaches neither collection.
	aliceEvent(domain.Inserted{Row: bookmark("a2", "alice", base.Add(time.Second))})
	assert.Equal(t, []string{"a1"}, idsOf(alice.Engine().Snapshot()))
	assert.Equal(t, []string{"b1"}, idsOf(bob.Engine().Snapshot()))

	// Alice's rows can never enter bob's session.
	sub.emit(domain.Inserted{Row: bookmark("a3", "alice", base.Add(time.Minute))})
	assert.Equal(t, []string{"b1"}, idsOf(bob.Engine().Snapshot()))
}

func TestSubscribeFuncAdapts(t *testing.T) {
	called := false
	var s Subscriber = SubscribeFunc(func(ctx context.Context, o string, _ func(domain.Event), _ func(domain.ChannelStatus)) (Subscription, error) {
		called = true
		return nil, errors.New("nope")
	})

	_, err := s.Subscribe(context.Background(), owner, func(domain.Event) {}, func(domain.ChannelStatus) {})
	assert.Error(t, err)
	assert.True(t, called)
}
