package post

import (
	"context"
	"testing"
	"time"
)

// TestFetchCandidates_CursorWalk pages through all posts by id cursor and
// checks for duplicates, gaps and ordering.
func TestFetchCandidates_CursorWalk(t *testing.T) {
	repo := NewInMemoryPostRepository()

	totalPosts := 25
	expected := make(map[string]bool)
	for i := 0; i < totalPosts; i++ {
		p := newTestPost("author-1", time.Now().Add(-time.Duration(i)*time.Minute))
		if err := repo.Create(p); err != nil {
			t.Fatalf("failed to create post %d: %v", i, err)
		}
		expected[p.ID] = true
	}

	pageSize := 10
	cursor := ""
	seen := make(map[string]bool)
	lastID := ""
	pages := 0

	for {
		pages++
		if pages > 10 {
			t.Fatal("pagination exceeded max pages, possible infinite loop")
		}

		results, err := repo.FetchCandidates(context.Background(), CandidateQuery{Cursor: cursor, Limit: pageSize})
		if err != nil {
			t.Fatalf("fetch failed on page %d: %v", pages, err)
		}
		if len(results) == 0 {
			break
		}

		for _, p := range results {
			if seen[p.ID] {
				t.Errorf("duplicate post ID %s on page %d", p.ID, pages)
			}
			seen[p.ID] = true
			if lastID != "" && p.ID >= lastID {
				t.Errorf("ids not strictly descending: %s after %s", p.ID, lastID)
			}
			lastID = p.ID
		}

		if len(results) < pageSize {
			break
		}
		cursor = results[len(results)-1].ID
	}

	if len(seen) != totalPosts {
		t.Errorf("expected %d posts across pages, got %d", totalPosts, len(seen))
	}
	for id := range expected {
		if !seen[id] {
			t.Errorf("post %s never returned", id)
		}
	}
}

func TestNewID_TimeOrdered(t *testing.T) {
	prev := NewID()
	for i := 0; i < 100; i++ {
		next := NewID()
		if next <= prev {
			t.Fatalf("expected increasing ids, got %s after %s", next, prev)
		}
		prev = next
	}
}
