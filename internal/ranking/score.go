package ranking

import (
	"math"
	"time"

	"github.com/onnwee/agrolink/internal/post"
	"github.com/onnwee/agrolink/internal/profile"
)

// SubScores are the four feed sub-scores, each in [0, 1].
type SubScores struct {
	Relevance  float64 `json:"relevance"`
	Engagement float64 `json:"engagement"`
	Recency    float64 `json:"recency"`
	Trust      float64 `json:"trust"`
}

// ScoreBreakdown is the per-request explanation of one post's feed score.
type ScoreBreakdown struct {
	Scores        SubScores          `json:"scores"`
	Contributions SubScores          `json:"contributions"` // score * weight
	Relevance     RelevanceBreakdown `json:"relevance"`
	Total         float64            `json:"total"`
}

// Combine applies the feed weights to the sub-scores. Inputs are clamped to
// [0, 1]; the result is deterministic for identical inputs.
func Combine(s SubScores, fw FeedWeights) ScoreBreakdown {
	s = SubScores{
		Relevance:  clamp01(s.Relevance),
		Engagement: clamp01(s.Engagement),
		Recency:    clamp01(s.Recency),
		Trust:      clamp01(s.Trust),
	}
	c := SubScores{
		Relevance:  s.Relevance * fw.Relevance,
		Engagement: s.Engagement * fw.Engagement,
		Recency:    s.Recency * fw.Recency,
		Trust:      s.Trust * fw.Trust,
	}
	return ScoreBreakdown{
		Scores:        s,
		Contributions: c,
		Total:         clamp01(c.Relevance + c.Engagement + c.Recency + c.Trust),
	}
}

// ScorePost computes the full feed score of p for viewer v at time now.
func ScorePost(v *profile.Viewer, p *post.Post, now time.Time, w *Weights) ScoreBreakdown {
	if w == nil {
		w = DefaultWeights()
	}
	rel := Relevance(v, p, w)
	b := Combine(SubScores{
		Relevance:  rel.Total,
		Engagement: Engagement(p, now, w.Engagement),
		Recency:    Recency(AgeHours(p.CreatedAt, now), w.Recency),
		Trust:      Trust(p, w.Trust),
	}, w.Feed)
	b.Relevance = rel
	return b
}

// AgeHours returns the age in hours at now, never negative.
func AgeHours(createdAt, now time.Time) float64 {
	age := now.Sub(createdAt).Hours()
	if age < 0 || math.IsNaN(age) {
		return 0
	}
	return age
}

// RawEngagement is the weighted interaction sum.
func RawEngagement(p *post.Post, c EngagementConfig) float64 {
	return float64(nonNeg(p.LikesCount))*c.Like +
		float64(nonNeg(p.CommentsCount))*c.Comment +
		float64(nonNeg(p.SharesCount))*c.Share +
		float64(nonNeg(p.HelpfulMarksCount))*c.HelpfulMark
}

// Engagement compresses interaction volume into [0, 1] with a logarithmic
// time decay:
//
//	decay = log10(ageHours + 2) + 1
//	score = min(1, log10(raw/decay + 1) / 2)
func Engagement(p *post.Post, now time.Time, c EngagementConfig) float64 {
	raw := RawEngagement(p, c)
	decay := math.Log10(AgeHours(p.CreatedAt, now)+2) + 1
	return clamp01(math.Log10(raw/decay+1) / 2)
}

// Recency maps an age to the first bucket whose bound exceeds it.
func Recency(ageHours float64, c RecencyConfig) float64 {
	for _, b := range c.Buckets {
		if ageHours < b.MaxAgeHours {
			return b.Score
		}
	}
	return c.Floor
}

// Trust sums the verification, badge and helpfulness bonuses. Badges count
// once each regardless of case or repetition; a missing author snapshot
// counts zero badges.
func Trust(p *post.Post, c TrustConfig) float64 {
	score := 0.0
	if p.IsVerified {
		score += c.Verified
	}
	if p.Author != nil {
		score += math.Min(c.MaxBadge, float64(distinctBadges(p.Author.Badges))*c.PerBadge)
	}
	comments := nonNeg(p.CommentsCount)
	if comments > 0 && float64(nonNeg(p.HelpfulMarksCount))/float64(comments) >= c.HelpfulRatio {
		score += c.Helpful
	}
	return clamp01(score)
}

// TrendingScore is the viewer-independent velocity score:
//
//	velocity = (likes + comments*3 + shares*5) / max(1, ageHours)
//	score    = velocity * boost
//
// where boost depends on how fresh the post is.
func TrendingScore(p *post.Post, now time.Time, w *Weights) float64 {
	if w == nil {
		w = DefaultWeights()
	}
	c := w.Trending
	age := AgeHours(p.CreatedAt, now)

	interactions := float64(nonNeg(p.LikesCount))*c.Like +
		float64(nonNeg(p.CommentsCount))*c.Comment +
		float64(nonNeg(p.SharesCount))*c.Share
	velocity := interactions / math.Max(1, age)

	boost := 1.0
	switch {
	case age < c.FreshHours:
		boost = c.FreshBoost
	case age < c.WarmHours:
		boost = c.WarmBoost
	}
	return math.Max(0, velocity*boost)
}

func distinctBadges(badges []string) int {
	seen := make(map[string]struct{}, len(badges))
	for _, b := range badges {
		if b = normalize(b); b != "" {
			seen[b] = struct{}{}
		}
	}
	return len(seen)
}

func nonNeg(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
