// Package social reads the viewer's hidden, muted and seen sets from the
// social graph. Sets are only honored as feed filters here; writes other than
// seen tracking happen elsewhere.
package social

import (
	"context"
	"sort"
	"sync"
)

// ExclusionSet holds the three independent exclusion sets for one viewer.
type ExclusionSet struct {
	HiddenPosts  map[string]struct{}
	MutedAuthors map[string]struct{}
	SeenPosts    map[string]struct{}
}

// NewExclusionSet returns an empty set with all maps allocated.
func NewExclusionSet() *ExclusionSet {
	return &ExclusionSet{
		HiddenPosts:  make(map[string]struct{}),
		MutedAuthors: make(map[string]struct{}),
		SeenPosts:    make(map[string]struct{}),
	}
}

// PostIDs returns the union of hidden and seen post IDs, sorted.
func (e *ExclusionSet) PostIDs() []string {
	if e == nil {
		return nil
	}
	ids := make([]string, 0, len(e.HiddenPosts)+len(e.SeenPosts))
	for id := range e.HiddenPosts {
		ids = append(ids, id)
	}
	for id := range e.SeenPosts {
		if _, dup := e.HiddenPosts[id]; !dup {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// AuthorIDs returns the muted author IDs, sorted.
func (e *ExclusionSet) AuthorIDs() []string {
	if e == nil {
		return nil
	}
	ids := make([]string, 0, len(e.MutedAuthors))
	for id := range e.MutedAuthors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ExcludesPost reports whether the post or its author is excluded.
func (e *ExclusionSet) ExcludesPost(postID, authorID string) bool {
	if e == nil {
		return false
	}
	if _, ok := e.HiddenPosts[postID]; ok {
		return true
	}
	if _, ok := e.SeenPosts[postID]; ok {
		return true
	}
	_, ok := e.MutedAuthors[authorID]
	return ok
}

// ExclusionStore reads a viewer's exclusion sets and records seen posts.
type ExclusionStore interface {
	Exclusions(ctx context.Context, viewerID string) (*ExclusionSet, error)
	MarkSeen(ctx context.Context, viewerID string, postIDs []string) error
}

// InMemoryStore is an in-memory ExclusionStore. Seen entries never expire.
type InMemoryStore struct {
	mu     sync.RWMutex
	hidden map[string]map[string]struct{}
	muted  map[string]map[string]struct{}
	seen   map[string]map[string]struct{}
}

// NewInMemoryStore creates an empty in-memory exclusion store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		hidden: make(map[string]map[string]struct{}),
		muted:  make(map[string]map[string]struct{}),
		seen:   make(map[string]map[string]struct{}),
	}
}

// Hide adds post IDs to the viewer's hidden set.
func (s *InMemoryStore) Hide(viewerID string, postIDs ...string) {
	s.add(s.hidden, viewerID, postIDs)
}

// Mute adds author IDs to the viewer's muted set.
func (s *InMemoryStore) Mute(viewerID string, authorIDs ...string) {
	s.add(s.muted, viewerID, authorIDs)
}

// Exclusions implements ExclusionStore.
func (s *InMemoryStore) Exclusions(ctx context.Context, viewerID string) (*ExclusionSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := NewExclusionSet()
	copyInto(set.HiddenPosts, s.hidden[viewerID])
	copyInto(set.MutedAuthors, s.muted[viewerID])
	copyInto(set.SeenPosts, s.seen[viewerID])
	return set, nil
}

// MarkSeen implements ExclusionStore.
func (s *InMemoryStore) MarkSeen(ctx context.Context, viewerID string, postIDs []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.add(s.seen, viewerID, postIDs)
	return nil
}

func (s *InMemoryStore) add(sets map[string]map[string]struct{}, viewerID string, ids []string) {
	if len(ids) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := sets[viewerID]
	if !ok {
		set = make(map[string]struct{}, len(ids))
		sets[viewerID] = set
	}
	for _, id := range ids {
		set[id] = struct{}{}
	}
}

func copyInto(dst, src map[string]struct{}) {
	for id := range src {
		dst[id] = struct{}{}
	}
}
