package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPruneDangling(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	kept, err := store.Create(ctx, "https://go.dev", "Go", "alice")
	require.NoError(t, err)
	lost, err := store.Create(ctx, "https://example.com", "", "alice")
	require.NoError(t, err)
	bobs, err := store.Create(ctx, "https://bob.example", "", "bob")
	require.NoError(t, err)

	// A row that vanished behind the index, and one filed under the
	// wrong owner.
	mr.Del(BookmarkKey(lost.ID))
	_, err = mr.ZAdd(OwnerBookmarksKey("alice"), 1, bobs.ID)
	require.NoError(t, err)

	pruned, err := store.PruneDangling(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, pruned)

	members, err := mr.ZMembers(OwnerBookmarksKey("alice"))
	require.NoError(t, err)
	assert.Equal(t, []string{kept.ID}, members)

	members, err = mr.ZMembers(OwnerBookmarksKey("bob"))
	require.NoError(t, err)
	assert.Equal(t, []string{bobs.ID}, members)

	pruned, err = store.PruneDangling(ctx)
	require.NoError(t, err)
	assert.Zero(t, pruned)
}
