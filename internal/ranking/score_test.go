package ranking

import (
	"math"
	"math/rand"
	"strconv"
	"testing"
	"time"

	"github.com/onnwee/agrolink/internal/post"
	"github.com/onnwee/agrolink/internal/profile"
)

func TestRecency(t *testing.T) {
	c := DefaultWeights().Recency

	tests := []struct {
		ageHours float64
		want     float64
	}{
		{0, 1.0},
		{0.99, 1.0},
		{1, 0.9},
		{5.99, 0.9},
		{6.0, 0.7},
		{23.9, 0.7},
		{24, 0.5},
		{71.9, 0.5},
		{72, 0.3},
		{167.9, 0.3},
		{168, 0.1},
		{10000, 0.1},
	}

	for _, tt := range tests {
		if got := Recency(tt.ageHours, c); got != tt.want {
			t.Errorf("Recency(%v) = %v, want %v", tt.ageHours, got, tt.want)
		}
	}
}

func TestRecency_NonIncreasing(t *testing.T) {
	c := DefaultWeights().Recency
	prev := math.Inf(1)
	for age := 0.0; age <= 200; age += 0.25 {
		got := Recency(age, c)
		if got > prev {
			t.Fatalf("recency increased at %vh: %v > %v", age, got, prev)
		}
		prev = got
	}
}

func TestEngagement_Monotonic(t *testing.T) {
	c := DefaultWeights().Engagement
	now := time.Now()

	t.Run("increasing raw", func(t *testing.T) {
		prev := -1.0
		for likes := int64(0); likes <= 10000; likes += 50 {
			p := &post.Post{LikesCount: likes, CreatedAt: now.Add(-5 * time.Hour)}
			got := Engagement(p, now, c)
			if got < prev {
				t.Fatalf("engagement decreased at likes=%d: %v < %v", likes, got, prev)
			}
			if got < 0 || got > 1 {
				t.Fatalf("engagement %v outside [0,1]", got)
			}
			prev = got
		}
	})

	t.Run("increasing age", func(t *testing.T) {
		prev := math.Inf(1)
		for hours := 0; hours <= 500; hours += 5 {
			p := &post.Post{LikesCount: 40, CommentsCount: 5, CreatedAt: now.Add(-time.Duration(hours) * time.Hour)}
			got := Engagement(p, now, c)
			if got > prev {
				t.Fatalf("engagement increased at %dh: %v > %v", hours, got, prev)
			}
			prev = got
		}
	})
}

func TestEngagement_Values(t *testing.T) {
	c := DefaultWeights().Engagement
	now := time.Now()

	zero := &post.Post{CreatedAt: now}
	if got := Engagement(zero, now, c); got != 0 {
		t.Errorf("expected 0 for no interactions, got %v", got)
	}

	negative := &post.Post{LikesCount: -100, CommentsCount: -3, CreatedAt: now}
	if got := Engagement(negative, now, c); got != 0 {
		t.Errorf("expected negative counters to clamp to 0, got %v", got)
	}

	future := &post.Post{LikesCount: 10, CreatedAt: now.Add(time.Hour)}
	atNow := &post.Post{LikesCount: 10, CreatedAt: now}
	if Engagement(future, now, c) != Engagement(atNow, now, c) {
		t.Error("future createdAt should be treated as age 0")
	}

	huge := &post.Post{LikesCount: math.MaxInt32, SharesCount: math.MaxInt32, CreatedAt: now}
	if got := Engagement(huge, now, c); got != 1 {
		t.Errorf("expected engagement capped at 1, got %v", got)
	}

	// raw = 16 at age 0.5h
	p := &post.Post{LikesCount: 10, CommentsCount: 2, CreatedAt: now.Add(-30 * time.Minute)}
	decay := math.Log10(0.5+2) + 1
	want := math.Log10(16/decay+1) / 2
	if got := Engagement(p, now, c); !almostEqual(got, want) {
		t.Errorf("Engagement() = %v, want %v", got, want)
	}
}

func TestTrust(t *testing.T) {
	c := DefaultWeights().Trust
	badges := func(n int) *post.AuthorSnapshot {
		a := &post.AuthorSnapshot{}
		for i := 0; i < n; i++ {
			a.Badges = append(a.Badges, "badge-"+strconv.Itoa(i))
		}
		return a
	}

	tests := []struct {
		name string
		post *post.Post
		want float64
	}{
		{"nothing", &post.Post{}, 0},
		{"verified", &post.Post{IsVerified: true}, 0.3},
		{"two badges", &post.Post{Author: badges(2)}, 0.2},
		{"badges capped", &post.Post{Author: badges(9)}, 0.5},
		{"duplicate badges count once", &post.Post{Author: &post.AuthorSnapshot{Badges: []string{"organic", "Organic ", "organic", "mentor"}}}, 0.2},
		{"empty badge ignored", &post.Post{Author: &post.AuthorSnapshot{Badges: []string{"", "  "}}}, 0},
		{"helpful ratio met", &post.Post{CommentsCount: 10, HelpfulMarksCount: 3}, 0.2},
		{"helpful ratio not met", &post.Post{CommentsCount: 10, HelpfulMarksCount: 2}, 0},
		{"no comments", &post.Post{HelpfulMarksCount: 5}, 0},
		{"missing author", &post.Post{IsVerified: true, Author: nil}, 0.3},
		{"cap is exactly one", &post.Post{IsVerified: true, Author: badges(5), CommentsCount: 10, HelpfulMarksCount: 5}, 1.0},
		{"cap with extra badges", &post.Post{IsVerified: true, Author: badges(20), CommentsCount: 1, HelpfulMarksCount: 1}, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Trust(tt.post, c); !almostEqual(got, tt.want) {
				t.Errorf("Trust() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCombine(t *testing.T) {
	fw := DefaultWeights().Feed

	t.Run("weights applied", func(t *testing.T) {
		got := Combine(SubScores{Relevance: 1, Engagement: 0.5, Recency: 0.7, Trust: 0.2}, fw)
		want := 0.4 + 0.15 + 0.14 + 0.02
		if !almostEqual(got.Total, want) {
			t.Errorf("Combine().Total = %v, want %v", got.Total, want)
		}
		if !almostEqual(got.Contributions.Engagement, 0.15) {
			t.Errorf("engagement contribution = %v, want 0.15", got.Contributions.Engagement)
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		s := SubScores{Relevance: 0.123456789, Engagement: 0.987654321, Recency: 0.5, Trust: 0.3}
		a := Combine(s, fw)
		b := Combine(s, fw)
		if math.Float64bits(a.Total) != math.Float64bits(b.Total) {
			t.Errorf("Combine not bit-identical: %v vs %v", a.Total, b.Total)
		}
	})

	t.Run("out of range inputs clamp", func(t *testing.T) {
		got := Combine(SubScores{Relevance: 5, Engagement: -1, Recency: math.NaN(), Trust: 2}, fw)
		if got.Scores.Relevance != 1 || got.Scores.Engagement != 0 || got.Scores.Recency != 0 || got.Scores.Trust != 1 {
			t.Errorf("expected clamped sub-scores, got %+v", got.Scores)
		}
	})

	t.Run("total stays in unit interval", func(t *testing.T) {
		r := rand.New(rand.NewSource(42))
		for i := 0; i < 10000; i++ {
			s := SubScores{Relevance: r.Float64(), Engagement: r.Float64(), Recency: r.Float64(), Trust: r.Float64()}
			got := Combine(s, fw).Total
			if got < 0 || got > 1 {
				t.Fatalf("total %v outside [0,1] for %+v", got, s)
			}
		}
		if got := Combine(SubScores{1, 1, 1, 1}, fw).Total; got > 1 {
			t.Errorf("all-ones total %v exceeds 1", got)
		}
	})
}

// TestScorePost_Scenario scores a wheat post from Pune for a Pune wheat farmer.
func TestScorePost_Scenario(t *testing.T) {
	now := time.Now()
	viewer := &profile.Viewer{
		Crops:           []string{"wheat"},
		State:           "Maharashtra",
		District:        "Pune",
		Role:            "farmer",
		ExperienceLevel: "intermediate",
	}
	p := &post.Post{
		Crops:         []string{"wheat"},
		Location:      &post.Location{State: "Maharashtra", District: "Pune"},
		LikesCount:    10,
		CommentsCount: 2,
		CreatedAt:     now.Add(-30 * time.Minute),
		Author:        &post.AuthorSnapshot{Role: "farmer", ExperienceLevel: "intermediate"},
	}

	b := ScorePost(viewer, p, now, DefaultWeights())

	if b.Relevance.Crop != 1 || b.Relevance.Location != 1 || b.Relevance.Role != 1 || b.Relevance.Experience != 1 {
		t.Errorf("expected all relevance signals 1.0, got %+v", b.Relevance)
	}
	if !almostEqual(b.Scores.Relevance, 1.0) {
		t.Errorf("expected relevance 1.0, got %v", b.Scores.Relevance)
	}
	if b.Scores.Recency != 1.0 {
		t.Errorf("expected recency 1.0, got %v", b.Scores.Recency)
	}
	if b.Scores.Trust != 0 {
		t.Errorf("expected trust 0, got %v", b.Scores.Trust)
	}
	if b.Scores.Engagement <= 0 {
		t.Errorf("expected positive engagement, got %v", b.Scores.Engagement)
	}
	if b.Total <= 0.7 {
		t.Errorf("expected total > 0.7, got %v", b.Total)
	}
}

func TestTrendingScore(t *testing.T) {
	now := time.Now()
	w := DefaultWeights()

	tests := []struct {
		name string
		post *post.Post
		want float64
	}{
		{
			name: "fresh boost, age below one hour uses divisor 1",
			post: &post.Post{LikesCount: 10, CommentsCount: 2, SharesCount: 1, CreatedAt: now.Add(-30 * time.Minute)},
			want: (10 + 6 + 5) * 1.5,
		},
		{
			name: "fresh boost",
			post: &post.Post{LikesCount: 40, CreatedAt: now.Add(-4 * time.Hour)},
			want: 10 * 1.5,
		},
		{
			name: "warm boost",
			post: &post.Post{LikesCount: 120, CreatedAt: now.Add(-12 * time.Hour)},
			want: 10 * 1.2,
		},
		{
			name: "no boost",
			post: &post.Post{LikesCount: 480, CreatedAt: now.Add(-48 * time.Hour)},
			want: 10,
		},
		{
			name: "helpful marks ignored",
			post: &post.Post{HelpfulMarksCount: 100, CreatedAt: now.Add(-48 * time.Hour)},
			want: 0,
		},
		{
			name: "negative counters clamp",
			post: &post.Post{LikesCount: -10, CreatedAt: now.Add(-48 * time.Hour)},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TrendingScore(tt.post, now, w); !almostEqual(got, tt.want) {
				t.Errorf("TrendingScore() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAgeHours(t *testing.T) {
	now := time.Now()
	if got := AgeHours(now.Add(-90*time.Minute), now); !almostEqual(got, 1.5) {
		t.Errorf("AgeHours() = %v, want 1.5", got)
	}
	if got := AgeHours(now.Add(time.Hour), now); got != 0 {
		t.Errorf("future timestamps should yield 0, got %v", got)
	}
}

func TestTrendingScore_NeverNegative(t *testing.T) {
	now := time.Now()
	w := DefaultWeights()
	w.Trending.Like = -1

	p := &post.Post{LikesCount: 5, CreatedAt: now.Add(-2 * time.Hour)}
	if got := TrendingScore(p, now, w); got != 0 {
		t.Errorf("TrendingScore() = %v, want 0", got)
	}
}
