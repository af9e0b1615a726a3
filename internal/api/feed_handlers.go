package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/onnwee/agrolink/internal/feed"
	"github.com/onnwee/agrolink/internal/middleware"
	"github.com/onnwee/agrolink/internal/profile"
	"github.com/onnwee/agrolink/internal/social"
)

// FeedHandlers serves the personalized feed and the trending view.
type FeedHandlers struct {
	ranker     *feed.Ranker
	viewers    profile.Store
	exclusions social.ExclusionStore
	validate   *validator.Validate
	logger     *slog.Logger
}

// NewFeedHandlers creates feed handlers. exclusions may be nil, in which case
// track_seen is accepted and ignored.
func NewFeedHandlers(ranker *feed.Ranker, viewers profile.Store, exclusions social.ExclusionStore, logger *slog.Logger) *FeedHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &FeedHandlers{
		ranker:     ranker,
		viewers:    viewers,
		exclusions: exclusions,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		logger:     logger,
	}
}

// GetFeed handles GET /feed for the authenticated viewer.
func (h *FeedHandlers) GetFeed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	viewerID := middleware.GetUserID(ctx)
	if viewerID == "" {
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	params, err := parseFeedParams(r.URL.Query())
	if err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}
	if err := h.validate.Struct(params); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, validationMessage(err))
		return
	}

	viewer, err := h.viewers.GetViewer(ctx, viewerID)
	if err != nil {
		if errors.Is(err, profile.ErrViewerNotFound) {
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Viewer profile not found")
			return
		}
		h.writeRankError(w, ctx, err)
		return
	}

	page, err := h.ranker.RankFeed(ctx, feed.FeedRequest{
		Viewer:   viewer,
		Category: params.Category,
		Crop:     params.Crop,
		Cursor:   params.Cursor,
		Limit:    params.Limit,
		Profile:  params.Profile,
		Explain:  params.Explain,
	})
	if err != nil {
		h.writeRankError(w, ctx, err)
		return
	}

	if params.TrackSeen && h.exclusions != nil && len(page.Posts) > 0 {
		ids := make([]string, len(page.Posts))
		for i, sp := range page.Posts {
			ids[i] = sp.Post.ID
		}
		if err := h.exclusions.MarkSeen(ctx, viewerID, ids); err != nil {
			h.logger.WarnContext(ctx, "failed to record seen posts",
				"viewer_id", viewerID, "count", len(ids), "error", err)
		}
	}

	writeJSON(w, ctx, http.StatusOK, page)
}

// GetTrending handles GET /feed/trending.
func (h *FeedHandlers) GetTrending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	params, err := parseTrendingParams(r.URL.Query())
	if err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}
	if err := h.validate.Struct(params); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, validationMessage(err))
		return
	}

	page, err := h.ranker.RankTrending(ctx, feed.TrendingRequest{
		Limit:       params.Limit,
		WindowHours: params.WindowHours,
	})
	if err != nil {
		h.writeRankError(w, ctx, err)
		return
	}

	writeJSON(w, ctx, http.StatusOK, page)
}

// writeRankError maps ranking and lookup errors to responses. A request the
// client already abandoned gets no body.
func (h *FeedHandlers) writeRankError(w http.ResponseWriter, ctx context.Context, err error) {
	switch {
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		h.logger.DebugContext(ctx, "client canceled feed request")
	case errors.Is(err, feed.ErrFetchFailed):
		h.logger.WarnContext(ctx, "candidate fetch failed", "error", err)
		WriteError(w, ctx, http.StatusServiceUnavailable, ErrCodeFetchFailed, "Feed is temporarily unavailable")
	default:
		h.logger.ErrorContext(ctx, "feed request failed", "error", err)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
	}
}
