package ranking

import (
	"testing"
	"time"

	"github.com/onnwee/agrolink/internal/post"
	"github.com/onnwee/agrolink/internal/profile"
)

// BenchmarkScorePost benchmarks a full feed score for one candidate.
func BenchmarkScorePost(b *testing.B) {
	now := time.Now()
	viewer := &profile.Viewer{Crops: []string{"wheat", "onion"}, State: "Maharashtra", District: "Pune", Role: "farmer", ExperienceLevel: "intermediate"}
	p := &post.Post{
		Crops:         []string{"wheat", "rice"},
		Location:      &post.Location{State: "Maharashtra", District: "Nashik"},
		LikesCount:    42,
		CommentsCount: 7,
		CreatedAt:     now.Add(-3 * time.Hour),
		Author:        &post.AuthorSnapshot{Role: "expert", ExperienceLevel: "expert", Badges: []string{"mentor"}},
	}
	w := DefaultWeights()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ScorePost(viewer, p, now, w)
	}
}

// BenchmarkTrendingScore benchmarks the trending score calculation.
func BenchmarkTrendingScore(b *testing.B) {
	now := time.Now()
	p := &post.Post{LikesCount: 120, CommentsCount: 14, SharesCount: 3, CreatedAt: now.Add(-8 * time.Hour)}
	w := DefaultWeights()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		TrendingScore(p, now, w)
	}
}

// BenchmarkCombine benchmarks the weighted combination.
func BenchmarkCombine(b *testing.B) {
	s := SubScores{Relevance: 0.8, Engagement: 0.4, Recency: 0.7, Trust: 0.3}
	fw := DefaultWeights().Feed

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Combine(s, fw)
	}
}
