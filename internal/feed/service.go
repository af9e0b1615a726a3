package feed

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/onnwee/agrolink/internal/post"
	"github.com/onnwee/agrolink/internal/profile"
	"github.com/onnwee/agrolink/internal/ranking"
	"github.com/onnwee/agrolink/internal/tracing"
)

// Trending window bounds in hours.
const (
	DefaultWindowHours = 72
	MinWindowHours     = 1
	MaxWindowHours     = 720
)

// DefaultTrendingPoolSize caps how many recent posts trending considers.
const DefaultTrendingPoolSize = 500

// parallelScoreThreshold is the batch size above which scoring fans out.
const parallelScoreThreshold = 64

// FeedRequest is one personalized feed request.
type FeedRequest struct {
	Viewer   *profile.Viewer
	Category string
	Crop     string
	Cursor   string
	Limit    int
	Profile  string // weight profile name; empty or unknown uses default
	Explain  bool   // attach a ScoreBreakdown to each post
	Now      time.Time
}

// FeedPage is one page of the ranked feed.
type FeedPage struct {
	Posts      []ScoredPost `json:"posts"`
	HasMore    bool         `json:"has_more"`
	NextCursor *string      `json:"next_cursor"`
}

// TrendingRequest is one trending view request.
type TrendingRequest struct {
	Limit       int
	WindowHours int
	Now         time.Time
}

// TrendingPost pairs a post with its trending score.
type TrendingPost struct {
	Post          *post.Post `json:"post"`
	TrendingScore float64    `json:"trending_score"`
}

// TrendingPage is the top-N trending result.
type TrendingPage struct {
	Posts       []TrendingPost `json:"posts"`
	WindowHours int            `json:"window_hours"`
}

// Config configures the Ranker.
type Config struct {
	Profiles           *ranking.Profiles
	DefaultWindowHours int
	TrendingPoolSize   int
	Cache              TrendingCache
	Logger             *slog.Logger
	Metrics            *Metrics
}

// Ranker orchestrates fetch, score, sort and paginate.
type Ranker struct {
	selector *CandidateSelector
	config   Config
	logger   *slog.Logger
	metrics  *Metrics
}

// NewRanker creates a Ranker. Zero config fields fall back to defaults.
func NewRanker(selector *CandidateSelector, cfg Config) *Ranker {
	if cfg.Profiles == nil {
		cfg.Profiles = ranking.NewProfiles(nil)
	}
	if cfg.DefaultWindowHours <= 0 {
		cfg.DefaultWindowHours = DefaultWindowHours
	}
	cfg.DefaultWindowHours = clampWindow(cfg.DefaultWindowHours)
	if cfg.TrendingPoolSize <= 0 {
		cfg.TrendingPoolSize = DefaultTrendingPoolSize
	}
	if cfg.Cache == nil {
		cfg.Cache = NopTrendingCache{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Ranker{
		selector: selector,
		config:   cfg,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
}

// RankFeed returns one page of the viewer's personalized feed.
func (r *Ranker) RankFeed(ctx context.Context, req FeedRequest) (page *FeedPage, err error) {
	start := time.Now()
	var viewerID string
	if req.Viewer != nil {
		viewerID = req.Viewer.ID
	}
	ctx, endSpan := tracing.StartSpan(ctx, "feed.rank_feed",
		tracing.AttrViewerID.String(viewerID),
		tracing.AttrProfile.String(req.Profile))
	defer func() {
		endSpan(err)
		r.metrics.ObserveRequest(KindFeed, statusOf(err), time.Since(start).Seconds())
	}()

	limit := NormalizeLimit(req.Limit)
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	weights := r.config.Profiles.Get(req.Profile)

	candidates, err := r.selector.Select(ctx, SelectQuery{
		ViewerID: viewerID,
		Category: req.Category,
		Crop:     req.Crop,
		Cursor:   req.Cursor,
		Limit:    limit,
	})
	if err != nil {
		return nil, err
	}

	scored, err := r.scoreAll(ctx, req.Viewer, candidates, now, weights, req.Explain)
	if err != nil {
		return nil, err
	}
	sortScored(scored)

	kept, hasMore, next := Paginate(scored, limit)
	page = &FeedPage{Posts: kept, HasMore: hasMore}
	if hasMore {
		page.NextCursor = &next
	}
	if page.Posts == nil {
		page.Posts = []ScoredPost{}
	}

	tracing.SetAttributes(ctx,
		tracing.AttrCandidateCount.Int(len(candidates)),
		tracing.AttrReturnedCount.Int(len(page.Posts)))
	r.logger.DebugContext(ctx, "ranked feed",
		"viewer_id", viewerID,
		"candidates", len(candidates),
		"returned", len(page.Posts),
		"has_more", hasMore)
	return page, nil
}

// scoreAll scores candidates, fanning out across GOMAXPROCS chunks for large
// batches. Cancellation is checked per chunk.
func (r *Ranker) scoreAll(ctx context.Context, viewer *profile.Viewer, candidates []*post.Post, now time.Time, w *ranking.Weights, explain bool) ([]ScoredPost, error) {
	out := make([]ScoredPost, len(candidates))
	scoreRange := func(from, to int) {
		for i := from; i < to; i++ {
			b := ranking.ScorePost(viewer, candidates[i], now, w)
			out[i] = ScoredPost{Post: candidates[i], FeedScore: b.Total}
			if explain {
				out[i].Breakdown = &b
			}
		}
	}

	if len(candidates) <= parallelScoreThreshold {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		scoreRange(0, len(candidates))
	} else {
		workers := runtime.GOMAXPROCS(0)
		chunk := (len(candidates) + workers - 1) / workers

		g, gctx := errgroup.WithContext(ctx)
		for from := 0; from < len(candidates); from += chunk {
			to := min(from+chunk, len(candidates))
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				scoreRange(from, to)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.metrics.AddCandidatesScored(len(candidates))
	return out, nil
}

// RankTrending returns the top trending posts inside the window.
func (r *Ranker) RankTrending(ctx context.Context, req TrendingRequest) (page *TrendingPage, err error) {
	start := time.Now()
	ctx, endSpan := tracing.StartSpan(ctx, "feed.rank_trending")
	defer func() {
		endSpan(err)
		r.metrics.ObserveRequest(KindTrending, statusOf(err), time.Since(start).Seconds())
	}()

	limit := NormalizeLimit(req.Limit)
	window := r.config.DefaultWindowHours
	if req.WindowHours != 0 {
		window = clampWindow(req.WindowHours)
	}
	tracing.SetAttributes(ctx, tracing.AttrWindowHours.Int(window))

	if cached, ok, cacheErr := r.config.Cache.Get(ctx, limit, window); cacheErr != nil {
		r.logger.WarnContext(ctx, "trending cache read failed", "error", cacheErr)
	} else if ok {
		r.metrics.IncTrendingCacheHits()
		return cached, nil
	}

	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	since := now.Add(-time.Duration(window) * time.Hour)

	candidates, err := r.selector.SelectTrending(ctx, since, r.config.TrendingPoolSize)
	if err != nil {
		return nil, err
	}

	weights := r.config.Profiles.Get(ranking.DefaultProfile)
	scored := make([]TrendingPost, len(candidates))
	for i, p := range candidates {
		scored[i] = TrendingPost{Post: p, TrendingScore: ranking.TrendingScore(p, now, weights)}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.metrics.AddCandidatesScored(len(candidates))
	tracing.SetAttributes(ctx, tracing.AttrCandidateCount.Int(len(candidates)))

	sort.SliceStable(scored, func(i, j int) bool {
		return rankedBefore(scored[i].TrendingScore, scored[i].Post, scored[j].TrendingScore, scored[j].Post)
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}

	page = &TrendingPage{Posts: scored, WindowHours: window}
	if err := r.config.Cache.Set(ctx, limit, window, page); err != nil {
		r.logger.WarnContext(ctx, "trending cache write failed", "error", err)
	}
	return page, nil
}

func clampWindow(hours int) int {
	return max(MinWindowHours, min(MaxWindowHours, hours))
}

func statusOf(err error) string {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrFetchFailed):
		return StatusError
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return StatusCancelled
	default:
		return StatusError
	}
}
