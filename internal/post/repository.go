package post

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrPostNotFound is returned when a post does not exist or is deleted.
var ErrPostNotFound = errors.New("post not found")

// CandidateQuery describes the filtered read the feed ranker needs.
// Storage returns public, non-deleted posts ordered by id descending
// (ids are time-ordered, so this is newest first).
type CandidateQuery struct {
	ExcludedPostIDs   []string
	ExcludedAuthorIDs []string
	Category          string // optional, matched case-insensitively
	Crop              string // optional, matched case-insensitively
	Cursor            string // optional; only ids strictly less than Cursor
	Limit             int
}

// TrendingQuery selects public, non-deleted posts created at or after Since,
// newest first, capped at Limit.
type TrendingQuery struct {
	Since time.Time
	Limit int
}

// CandidateRepository is the storage collaborator consumed by the ranker.
type CandidateRepository interface {
	// FetchCandidates returns up to q.Limit posts with AuthorSnapshot attached.
	FetchCandidates(ctx context.Context, q CandidateQuery) ([]*Post, error)

	// FetchTrending returns up to q.Limit posts inside the trending window.
	FetchTrending(ctx context.Context, q TrendingQuery) ([]*Post, error)
}

// NewID returns a new time-ordered (UUIDv7) post identifier.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// InMemoryPostRepository is an in-memory implementation of CandidateRepository.
// Thread-safe via RWMutex.
type InMemoryPostRepository struct {
	mu      sync.RWMutex
	posts   map[string]*Post          // post ID -> Post
	authors map[string]AuthorSnapshot // author ID -> snapshot
}

// NewInMemoryPostRepository creates a new in-memory post repository.
func NewInMemoryPostRepository() *InMemoryPostRepository {
	return &InMemoryPostRepository{
		posts:   make(map[string]*Post),
		authors: make(map[string]AuthorSnapshot),
	}
}

// PutAuthor stores the snapshot joined onto posts by that author.
func (r *InMemoryPostRepository) PutAuthor(authorID string, snap AuthorSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.authors[authorID] = snap
}

// Create stores a post. A missing ID is generated; a zero CreatedAt is set
// to now. Crop tags are normalized.
func (r *InMemoryPostRepository) Create(p *Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.ID == "" {
		p.ID = NewID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	if p.Visibility == "" {
		p.Visibility = VisibilityPublic
	}
	p.Crops = NormalizeCrops(p.Crops)

	r.posts[p.ID] = p.Clone()
	return nil
}

// Delete soft-deletes a post by setting DeletedAt.
func (r *InMemoryPostRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.posts[id]
	if !ok || p.DeletedAt != nil {
		return ErrPostNotFound
	}
	now := time.Now()
	p.DeletedAt = &now
	return nil
}

// GetByID retrieves a post by ID, excluding soft-deleted posts.
func (r *InMemoryPostRepository) GetByID(id string) (*Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.posts[id]
	if !ok || p.DeletedAt != nil {
		return nil, ErrPostNotFound
	}
	return r.withAuthor(p), nil
}

// FetchCandidates implements CandidateRepository.
func (r *InMemoryPostRepository) FetchCandidates(ctx context.Context, q CandidateQuery) ([]*Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	excludedPosts := toSet(q.ExcludedPostIDs)
	excludedAuthors := toSet(q.ExcludedAuthorIDs)
	category := NormalizeTag(q.Category)

	var candidates []*Post
	for _, p := range r.posts {
		if !p.IsRankable() {
			continue
		}
		if _, ok := excludedPosts[p.ID]; ok {
			continue
		}
		if _, ok := excludedAuthors[p.AuthorID]; ok {
			continue
		}
		if category != "" && NormalizeTag(p.Category) != category {
			continue
		}
		if q.Crop != "" && !p.HasCrop(q.Crop) {
			continue
		}
		if q.Cursor != "" && p.ID >= q.Cursor {
			continue
		}
		candidates = append(candidates, p)
	}

	sortPostsByIDDesc(candidates)
	return r.limitAndCopy(candidates, q.Limit), nil
}

// FetchTrending implements CandidateRepository.
func (r *InMemoryPostRepository) FetchTrending(ctx context.Context, q TrendingQuery) ([]*Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var candidates []*Post
	for _, p := range r.posts {
		if !p.IsRankable() || p.CreatedAt.Before(q.Since) {
			continue
		}
		candidates = append(candidates, p)
	}

	sortPostsByCreatedDesc(candidates)
	return r.limitAndCopy(candidates, q.Limit), nil
}

// limitAndCopy trims to limit (<= 0 means no limit) and returns deep copies
// with author snapshots attached. Caller must hold the read lock.
func (r *InMemoryPostRepository) limitAndCopy(posts []*Post, limit int) []*Post {
	if limit > 0 && len(posts) > limit {
		posts = posts[:limit]
	}
	copies := make([]*Post, len(posts))
	for i, p := range posts {
		copies[i] = r.withAuthor(p)
	}
	return copies
}

func (r *InMemoryPostRepository) withAuthor(p *Post) *Post {
	c := p.Clone()
	if snap, ok := r.authors[p.AuthorID]; ok {
		snap.Badges = append([]string(nil), snap.Badges...)
		c.Author = &snap
	}
	return c
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// sortPostsByIDDesc sorts posts by ID descending. IDs are UUIDv7, so this is
// creation order, newest first.
func sortPostsByIDDesc(posts []*Post) {
	sort.Slice(posts, func(i, j int) bool {
		return posts[i].ID > posts[j].ID
	})
}

// sortPostsByCreatedDesc sorts posts by created_at DESC, then by ID DESC.
func sortPostsByCreatedDesc(posts []*Post) {
	sort.Slice(posts, func(i, j int) bool {
		if !posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].CreatedAt.After(posts[j].CreatedAt)
		}
		return posts[i].ID > posts[j].ID
	})
}
