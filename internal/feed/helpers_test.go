package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/agrolink/internal/post"
	"github.com/onnwee/agrolink/internal/social"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var errStorageDown = errors.New("storage down")

// stubRepo is a CandidateRepository with scripted results.
type stubRepo struct {
	mu        sync.Mutex
	posts     []*post.Post
	err       error
	delay     time.Duration
	calls     int
	lastQuery post.CandidateQuery
}

func (s *stubRepo) FetchCandidates(ctx context.Context, q post.CandidateQuery) ([]*post.Post, error) {
	s.mu.Lock()
	s.calls++
	s.lastQuery = q
	s.mu.Unlock()
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	out := make([]*post.Post, len(s.posts))
	for i, p := range s.posts {
		if p == nil {
			continue
		}
		out[i] = p.Clone()
	}
	return out, nil
}

func (s *stubRepo) FetchTrending(ctx context.Context, q post.TrendingQuery) ([]*post.Post, error) {
	return s.FetchCandidates(ctx, post.CandidateQuery{Limit: q.Limit})
}

// failingExclusions always errors.
type failingExclusions struct{}

func (failingExclusions) Exclusions(context.Context, string) (*social.ExclusionSet, error) {
	return nil, errStorageDown
}

func (failingExclusions) MarkSeen(context.Context, string, []string) error {
	return errStorageDown
}

func newSelector(repo post.CandidateRepository, excl social.ExclusionStore) *CandidateSelector {
	return NewCandidateSelector(repo, excl, time.Second, DefaultBreakerConfig(), newTestLogger(), nil)
}

func publicPost(id, author string, createdAt time.Time) *post.Post {
	return &post.Post{
		ID:         id,
		AuthorID:   author,
		Visibility: post.VisibilityPublic,
		CreatedAt:  createdAt,
	}
}
