package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/onnwee/agrolink/internal/feed"
	"github.com/onnwee/agrolink/internal/middleware"
	"github.com/onnwee/agrolink/internal/post"
	"github.com/onnwee/agrolink/internal/profile"
	"github.com/onnwee/agrolink/internal/social"
)

const testViewerID = "viewer-1"

type feedFixture struct {
	repo       *post.InMemoryPostRepository
	viewers    *profile.InMemoryStore
	exclusions *social.InMemoryStore
	handlers   *FeedHandlers
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRankerFor(repo post.CandidateRepository, excl social.ExclusionStore) *feed.Ranker {
	sel := feed.NewCandidateSelector(repo, excl, time.Second, feed.DefaultBreakerConfig(), discardLogger(), nil)
	return feed.NewRanker(sel, feed.Config{Logger: discardLogger()})
}

func newFeedFixture(t *testing.T) *feedFixture {
	t.Helper()
	repo := post.NewInMemoryPostRepository()
	viewers := profile.NewInMemoryStore()
	viewers.Put(profile.Viewer{
		ID:              testViewerID,
		Crops:           []string{"wheat"},
		State:           "Maharashtra",
		District:        "Pune",
		Role:            "farmer",
		ExperienceLevel: "intermediate",
	})
	excl := social.NewInMemoryStore()
	return &feedFixture{
		repo:       repo,
		viewers:    viewers,
		exclusions: excl,
		handlers:   NewFeedHandlers(newRankerFor(repo, excl), viewers, excl, discardLogger()),
	}
}

// seed creates n wheat posts, each an hour older than the previous.
func (f *feedFixture) seed(t *testing.T, n int) []*post.Post {
	t.Helper()
	now := time.Now()
	posts := make([]*post.Post, n)
	for i := range n {
		p := &post.Post{
			AuthorID:   "author-1",
			Content:    "rust on wheat leaves",
			Category:   "question",
			Crops:      []string{"wheat"},
			Location:   &post.Location{State: "Maharashtra", District: "Pune"},
			LikesCount: 3,
			CreatedAt:  now.Add(-time.Duration(i) * time.Hour),
		}
		if err := f.repo.Create(p); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		posts[i] = p
	}
	return posts
}

func authedRequest(target, viewerID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if viewerID != "" {
		req = req.WithContext(middleware.SetUserID(req.Context(), viewerID))
	}
	return req
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error body: %v (%s)", err, w.Body.String())
	}
	return resp
}

func TestGetFeed_Success(t *testing.T) {
	f := newFeedFixture(t)
	posts := f.seed(t, 3)

	w := httptest.NewRecorder()
	f.handlers.GetFeed(w, authedRequest("/feed?limit=2", testViewerID))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var page feed.FeedPage
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(page.Posts) != 2 {
		t.Fatalf("expected 2 posts, got %d", len(page.Posts))
	}
	if !page.HasMore {
		t.Error("expected has_more to be true")
	}
	if page.NextCursor == nil || *page.NextCursor != page.Posts[1].Post.ID {
		t.Errorf("next_cursor = %v, want %s", page.NextCursor, page.Posts[1].Post.ID)
	}
	// Identical posts rank newest first.
	if page.Posts[0].Post.ID != posts[0].ID {
		t.Errorf("first post = %s, want newest %s", page.Posts[0].Post.ID, posts[0].ID)
	}
	if page.Posts[0].Breakdown != nil {
		t.Error("breakdown should be omitted without explain")
	}
}

func TestGetFeed_LastPageHasNullCursor(t *testing.T) {
	f := newFeedFixture(t)
	f.seed(t, 2)

	w := httptest.NewRecorder()
	f.handlers.GetFeed(w, authedRequest("/feed?limit=5", testViewerID))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if string(raw["next_cursor"]) != "null" {
		t.Errorf("next_cursor = %s, want null", raw["next_cursor"])
	}
	if string(raw["has_more"]) != "false" {
		t.Errorf("has_more = %s, want false", raw["has_more"])
	}
}

func TestGetFeed_Explain(t *testing.T) {
	f := newFeedFixture(t)
	f.seed(t, 1)

	w := httptest.NewRecorder()
	f.handlers.GetFeed(w, authedRequest("/feed?explain=true", testViewerID))

	var page feed.FeedPage
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(page.Posts) != 1 || page.Posts[0].Breakdown == nil {
		t.Fatalf("expected one post with breakdown, got %+v", page.Posts)
	}
	if page.Posts[0].Breakdown.Total != page.Posts[0].FeedScore {
		t.Errorf("breakdown total %v != feed score %v", page.Posts[0].Breakdown.Total, page.Posts[0].FeedScore)
	}
}

func TestGetFeed_TrackSeenExcludesNextTime(t *testing.T) {
	f := newFeedFixture(t)
	f.seed(t, 3)

	w := httptest.NewRecorder()
	f.handlers.GetFeed(w, authedRequest("/feed?limit=2&track_seen=true", testViewerID))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	set, err := f.exclusions.Exclusions(context.Background(), testViewerID)
	if err != nil {
		t.Fatalf("Exclusions() error = %v", err)
	}
	if len(set.SeenPosts) != 2 {
		t.Fatalf("expected 2 seen posts, got %d", len(set.SeenPosts))
	}

	w = httptest.NewRecorder()
	f.handlers.GetFeed(w, authedRequest("/feed", testViewerID))
	var page feed.FeedPage
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(page.Posts) != 1 {
		t.Fatalf("expected 1 unseen post, got %d", len(page.Posts))
	}
	if _, seen := set.SeenPosts[page.Posts[0].Post.ID]; seen {
		t.Error("seen post returned again")
	}
}

func TestGetFeed_Errors(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		viewerID string
		wantCode int
		wantErr  string
	}{
		{"unauthenticated", "/feed", "", http.StatusUnauthorized, ErrCodeAuthFailed},
		{"bad limit", "/feed?limit=ten", testViewerID, http.StatusBadRequest, ErrCodeValidation},
		{"negative limit", "/feed?limit=-1", testViewerID, http.StatusBadRequest, ErrCodeValidation},
		{"bad cursor", "/feed?cursor=not-a-uuid", testViewerID, http.StatusBadRequest, ErrCodeValidation},
		{"bad explain", "/feed?explain=maybe", testViewerID, http.StatusBadRequest, ErrCodeValidation},
		{"unknown viewer", "/feed", "nobody", http.StatusNotFound, ErrCodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFeedFixture(t)
			w := httptest.NewRecorder()
			f.handlers.GetFeed(w, authedRequest(tt.target, tt.viewerID))

			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantCode, w.Body.String())
			}
			if got := decodeError(t, w).Error.Code; got != tt.wantErr {
				t.Errorf("code = %q, want %q", got, tt.wantErr)
			}
		})
	}
}

func TestGetFeed_LargeLimitIsClamped(t *testing.T) {
	f := newFeedFixture(t)
	f.seed(t, 3)

	w := httptest.NewRecorder()
	f.handlers.GetFeed(w, authedRequest("/feed?limit=5000", testViewerID))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

type brokenRepo struct{}

func (brokenRepo) FetchCandidates(context.Context, post.CandidateQuery) ([]*post.Post, error) {
	return nil, errors.New("connection reset")
}

func (brokenRepo) FetchTrending(context.Context, post.TrendingQuery) ([]*post.Post, error) {
	return nil, errors.New("connection reset")
}

func TestGetFeed_FetchFailure(t *testing.T) {
	f := newFeedFixture(t)
	h := NewFeedHandlers(newRankerFor(brokenRepo{}, f.exclusions), f.viewers, f.exclusions, discardLogger())

	w := httptest.NewRecorder()
	h.GetFeed(w, authedRequest("/feed", testViewerID))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	if got := decodeError(t, w).Error.Code; got != ErrCodeFetchFailed {
		t.Errorf("code = %q, want %q", got, ErrCodeFetchFailed)
	}
}

func TestGetFeed_ClientCanceledWritesNothing(t *testing.T) {
	f := newFeedFixture(t)
	f.seed(t, 2)

	ctx, cancel := context.WithCancel(middleware.SetUserID(context.Background(), testViewerID))
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/feed", nil).WithContext(ctx)

	w := httptest.NewRecorder()
	f.handlers.GetFeed(w, req)

	if w.Body.Len() != 0 {
		t.Errorf("expected empty body, got %s", w.Body.String())
	}
}

func TestGetTrending(t *testing.T) {
	f := newFeedFixture(t)
	now := time.Now()
	old := &post.Post{AuthorID: "a", LikesCount: 500, CreatedAt: now.Add(-100 * time.Hour)}
	hot := &post.Post{AuthorID: "a", LikesCount: 40, CreatedAt: now.Add(-2 * time.Hour)}
	cool := &post.Post{AuthorID: "a", LikesCount: 1, CreatedAt: now.Add(-3 * time.Hour)}
	for _, p := range []*post.Post{old, hot, cool} {
		if err := f.repo.Create(p); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	w := httptest.NewRecorder()
	f.handlers.GetTrending(w, httptest.NewRequest(http.MethodGet, "/feed/trending?window_hours=24", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	var page feed.TrendingPage
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if page.WindowHours != 24 {
		t.Errorf("window_hours = %d, want 24", page.WindowHours)
	}
	if len(page.Posts) != 2 {
		t.Fatalf("expected 2 posts in window, got %d", len(page.Posts))
	}
	if page.Posts[0].Post.ID != hot.ID {
		t.Errorf("first = %s, want hot post %s", page.Posts[0].Post.ID, hot.ID)
	}
}

func TestGetTrending_Errors(t *testing.T) {
	tests := []struct {
		name   string
		target string
	}{
		{"negative window", "/feed/trending?window_hours=-1"},
		{"non-numeric limit", "/feed/trending?limit=many"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFeedFixture(t)
			w := httptest.NewRecorder()
			f.handlers.GetTrending(w, httptest.NewRequest(http.MethodGet, tt.target, nil))
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			if got := decodeError(t, w).Error.Code; got != ErrCodeValidation {
				t.Errorf("code = %q, want %q", got, ErrCodeValidation)
			}
		})
	}
}

func TestGetTrending_DefaultWindow(t *testing.T) {
	f := newFeedFixture(t)
	w := httptest.NewRecorder()
	f.handlers.GetTrending(w, httptest.NewRequest(http.MethodGet, "/feed/trending", nil))

	var page feed.TrendingPage
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if page.WindowHours != feed.DefaultWindowHours {
		t.Errorf("window_hours = %d, want %d", page.WindowHours, feed.DefaultWindowHours)
	}
}
