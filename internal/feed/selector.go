package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/onnwee/agrolink/internal/post"
	"github.com/onnwee/agrolink/internal/social"
	"github.com/onnwee/agrolink/internal/tracing"
)

// DefaultFetchTimeout bounds each storage round trip.
const DefaultFetchTimeout = 2 * time.Second

// BreakerConfig configures the candidate fetch circuit breaker.
type BreakerConfig struct {
	MaxRequests      uint32        // requests allowed while half-open
	Interval         time.Duration // closed-state count reset interval
	Timeout          time.Duration // open duration before probing
	FailureThreshold uint32        // consecutive failures that open the circuit
}

// DefaultBreakerConfig returns the breaker settings used in production.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// SelectQuery is the viewer-scoped candidate request.
type SelectQuery struct {
	ViewerID string
	Category string
	Crop     string
	Cursor   string
	Limit    int // page size; the selector fetches Limit+1
}

// CandidateSelector builds the eligible candidate set for a request. It reads
// the viewer's exclusions, delegates filtering to storage and re-checks the
// result in process.
type CandidateSelector struct {
	repo       post.CandidateRepository
	exclusions social.ExclusionStore
	breaker    *gobreaker.CircuitBreaker[[]*post.Post]
	timeout    time.Duration
	logger     *slog.Logger
	metrics    *Metrics
}

// NewCandidateSelector creates a selector. A nil exclusion store means no
// exclusions; a non-positive timeout uses DefaultFetchTimeout.
func NewCandidateSelector(
	repo post.CandidateRepository,
	exclusions social.ExclusionStore,
	timeout time.Duration,
	breakerCfg BreakerConfig,
	logger *slog.Logger,
	metrics *Metrics,
) *CandidateSelector {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &CandidateSelector{
		repo:       repo,
		exclusions: exclusions,
		timeout:    timeout,
		logger:     logger,
		metrics:    metrics,
	}
	s.breaker = newFetchBreaker(breakerCfg, logger, metrics)
	return s
}

func newFetchBreaker(cfg BreakerConfig, logger *slog.Logger, metrics *Metrics) *gobreaker.CircuitBreaker[[]*post.Post] {
	if cfg.FailureThreshold == 0 {
		cfg = DefaultBreakerConfig()
	}
	metrics.SetBreakerState(0)

	return gobreaker.NewCircuitBreaker[[]*post.Post](gobreaker.Settings{
		Name:        "candidate-fetch",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		// A caller hanging up says nothing about storage health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
			metrics.SetBreakerState(breakerStateValue(to))
		},
	})
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// BreakerState returns the current breaker state name.
func (s *CandidateSelector) BreakerState() string {
	return s.breaker.State().String()
}

// Select returns at most q.Limit+1 eligible candidates for the viewer.
func (s *CandidateSelector) Select(ctx context.Context, q SelectQuery) ([]*post.Post, error) {
	excl, err := s.loadExclusions(ctx, q.ViewerID)
	if err != nil {
		return nil, err
	}

	query := post.CandidateQuery{
		ExcludedPostIDs:   excl.PostIDs(),
		ExcludedAuthorIDs: excl.AuthorIDs(),
		Category:          q.Category,
		Crop:              q.Crop,
		Cursor:            q.Cursor,
		Limit:             q.Limit + 1,
	}

	candidates, err := s.fetch(ctx, func(ctx context.Context) ([]*post.Post, error) {
		return s.repo.FetchCandidates(ctx, query)
	})
	if err != nil {
		return nil, err
	}

	kept := candidates[:0]
	for _, p := range candidates {
		if p == nil || !eligible(p, excl, query) {
			continue
		}
		kept = append(kept, p)
	}
	if dropped := len(candidates) - len(kept); dropped > 0 {
		s.logger.WarnContext(ctx, "storage returned ineligible candidates",
			"dropped", dropped)
	}
	if len(kept) > query.Limit {
		kept = kept[:query.Limit]
	}
	return kept, nil
}

// SelectTrending returns up to poolSize rankable posts created at or after since.
func (s *CandidateSelector) SelectTrending(ctx context.Context, since time.Time, poolSize int) ([]*post.Post, error) {
	candidates, err := s.fetch(ctx, func(ctx context.Context) ([]*post.Post, error) {
		return s.repo.FetchTrending(ctx, post.TrendingQuery{Since: since, Limit: poolSize})
	})
	if err != nil {
		return nil, err
	}

	kept := candidates[:0]
	for _, p := range candidates {
		if p != nil && p.IsRankable() && !p.CreatedAt.Before(since) {
			kept = append(kept, p)
		}
	}
	return kept, nil
}

func (s *CandidateSelector) loadExclusions(ctx context.Context, viewerID string) (*social.ExclusionSet, error) {
	if s.exclusions == nil || viewerID == "" {
		return social.NewExclusionSet(), nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	excl, err := s.exclusions.Exclusions(fetchCtx, viewerID)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.metrics.IncFetchFailures()
		s.logger.WarnContext(ctx, "exclusion fetch failed",
			"viewer_id", viewerID,
			"error", err)
		return nil, fmt.Errorf("%w: exclusions: %w", ErrFetchFailed, err)
	}
	if excl == nil {
		excl = social.NewExclusionSet()
	}
	return excl, nil
}

// fetch runs one storage call under the fetch timeout and the breaker.
// Caller cancellation is returned as ctx.Err(); everything else is wrapped
// in ErrFetchFailed.
func (s *CandidateSelector) fetch(ctx context.Context, fn func(context.Context) ([]*post.Post, error)) ([]*post.Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	posts, err := s.breaker.Execute(func() ([]*post.Post, error) {
		fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		return fn(fetchCtx)
	})
	if err == nil {
		return posts, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		s.metrics.IncBreakerRejects()
		tracing.AddEvent(ctx, "fetch rejected by circuit breaker")
	}
	s.metrics.IncFetchFailures()
	s.logger.WarnContext(ctx, "candidate fetch failed",
		"breaker_state", s.breaker.State().String(),
		"error", err)
	return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
}

// eligible re-applies the storage predicates in process.
func eligible(p *post.Post, excl *social.ExclusionSet, q post.CandidateQuery) bool {
	if !p.IsRankable() {
		return false
	}
	if excl.ExcludesPost(p.ID, p.AuthorID) {
		return false
	}
	if q.Category != "" && post.NormalizeTag(p.Category) != post.NormalizeTag(q.Category) {
		return false
	}
	if q.Crop != "" && !p.HasCrop(q.Crop) {
		return false
	}
	if q.Cursor != "" && p.ID >= q.Cursor {
		return false
	}
	return true
}
