package redis

const (
	// KeyPrefixBookmark is the prefix for bookmark row keys
	KeyPrefixBookmark = "markd:bookmark:"
	// KeyPrefixOwner is the prefix for per-owner keys
	KeyPrefixOwner = "markd:owner:"
	// KeyPrefixFeed is the prefix for per-owner change channels
	KeyPrefixFeed = "markd:feed:"
)

// BookmarkKey returns the Redis key holding one bookmark row
func BookmarkKey(id string) string {
	return KeyPrefixBookmark + id
}

// OwnerBookmarksKey returns the sorted set of an owner's bookmark IDs,
// scored by created-at in microseconds.
func OwnerBookmarksKey(owner string) string {
	return KeyPrefixOwner + owner + ":bookmarks"
}

// FeedChannel returns the pub/sub channel carrying an owner's changes
func FeedChannel(owner string) string {
	return KeyPrefixFeed + owner
}
