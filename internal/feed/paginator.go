package feed

import (
	"sort"

	"github.com/onnwee/agrolink/internal/post"
	"github.com/onnwee/agrolink/internal/ranking"
)

// Page size limits shared by the feed and trending views.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// ScoredPost pairs a candidate with its feed score.
type ScoredPost struct {
	Post      *post.Post              `json:"post"`
	FeedScore float64                 `json:"feed_score"`
	Breakdown *ranking.ScoreBreakdown `json:"breakdown,omitempty"`
}

// NormalizeLimit applies the default and the upper bound.
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// Paginate trims sorted candidates to limit. When more than limit were
// supplied, hasMore is true and nextCursor is the id of the last kept post.
func Paginate(sorted []ScoredPost, limit int) (page []ScoredPost, hasMore bool, nextCursor string) {
	if limit <= 0 || len(sorted) <= limit {
		return sorted, false, ""
	}
	page = sorted[:limit]
	return page, true, page[limit-1].Post.ID
}

// sortScored orders by score desc, then createdAt desc, then id desc.
func sortScored(posts []ScoredPost) {
	sort.SliceStable(posts, func(i, j int) bool {
		return rankedBefore(posts[i].FeedScore, posts[i].Post, posts[j].FeedScore, posts[j].Post)
	})
}

func rankedBefore(si float64, pi *post.Post, sj float64, pj *post.Post) bool {
	if si != sj {
		return si > sj
	}
	if !pi.CreatedAt.Equal(pj.CreatedAt) {
		return pi.CreatedAt.After(pj.CreatedAt)
	}
	return pi.ID > pj.ID
}
