package social

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "agrolink:feed:"

// DefaultSeenTTL is how long seen entries are kept in Redis.
const DefaultSeenTTL = 7 * 24 * time.Hour

// Key kinds for the per-viewer Redis sets.
const (
	kindHidden = "hidden"
	kindMuted  = "muted"
	kindSeen   = "seen"
)

// setKey builds the Redis key for one of a viewer's sets.
func setKey(kind, viewerID string) string {
	return keyPrefix + kind + ":" + viewerID
}

// RedisStore implements ExclusionStore on Redis sets.
type RedisStore struct {
	client  redis.UniversalClient
	seenTTL time.Duration
}

// NewRedisStore creates a Redis-backed exclusion store. A non-positive
// seenTTL uses DefaultSeenTTL.
func NewRedisStore(client redis.UniversalClient, seenTTL time.Duration) *RedisStore {
	if seenTTL <= 0 {
		seenTTL = DefaultSeenTTL
	}
	return &RedisStore{client: client, seenTTL: seenTTL}
}

// Exclusions reads all three sets in a single pipeline round trip.
func (s *RedisStore) Exclusions(ctx context.Context, viewerID string) (*ExclusionSet, error) {
	pipe := s.client.Pipeline()
	hidden := pipe.SMembers(ctx, setKey(kindHidden, viewerID))
	muted := pipe.SMembers(ctx, setKey(kindMuted, viewerID))
	seen := pipe.SMembers(ctx, setKey(kindSeen, viewerID))

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to read exclusion sets: %w", err)
	}

	set := NewExclusionSet()
	for _, r := range []struct {
		cmd *redis.StringSliceCmd
		dst map[string]struct{}
	}{
		{hidden, set.HiddenPosts},
		{muted, set.MutedAuthors},
		{seen, set.SeenPosts},
	} {
		members, err := r.cmd.Result()
		if err != nil && err != redis.Nil {
			return nil, fmt.Errorf("failed to read exclusion set: %w", err)
		}
		for _, m := range members {
			r.dst[m] = struct{}{}
		}
	}
	return set, nil
}

// MarkSeen adds post IDs to the viewer's seen set and refreshes its TTL.
func (s *RedisStore) MarkSeen(ctx context.Context, viewerID string, postIDs []string) error {
	if len(postIDs) == 0 {
		return nil
	}
	members := make([]any, len(postIDs))
	for i, id := range postIDs {
		members[i] = id
	}

	key := setKey(kindSeen, viewerID)
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, key, members...)
	pipe.Expire(ctx, key, s.seenTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to mark posts seen: %w", err)
	}
	return nil
}

// Hide adds post IDs to the viewer's hidden set.
func (s *RedisStore) Hide(ctx context.Context, viewerID string, postIDs ...string) error {
	return s.addMembers(ctx, setKey(kindHidden, viewerID), postIDs)
}

// Mute adds author IDs to the viewer's muted set.
func (s *RedisStore) Mute(ctx context.Context, viewerID string, authorIDs ...string) error {
	return s.addMembers(ctx, setKey(kindMuted, viewerID), authorIDs)
}

func (s *RedisStore) addMembers(ctx context.Context, key string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	members := make([]any, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	return s.client.SAdd(ctx, key, members...).Err()
}
