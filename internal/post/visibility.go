package post

import (
	"errors"
	"slices"
)

// Visibility controls who may see a post. Only public posts are rankable.
type Visibility string

// Visibility values.
const (
	// VisibilityPublic posts are eligible for feeds and trending.
	VisibilityPublic Visibility = "public"

	// VisibilityFollowers posts are shown to followers only and never ranked.
	VisibilityFollowers Visibility = "followers"

	// VisibilityPrivate posts are visible to their author only.
	VisibilityPrivate Visibility = "private"
)

// AllowedVisibilities is the exhaustive list of visibility values.
var AllowedVisibilities = []Visibility{
	VisibilityPublic,
	VisibilityFollowers,
	VisibilityPrivate,
}

// ErrInvalidVisibility is returned for an unrecognized visibility value.
var ErrInvalidVisibility = errors.New("invalid visibility")

// ValidateVisibility checks that v is one of AllowedVisibilities.
func ValidateVisibility(v Visibility) error {
	if !slices.Contains(AllowedVisibilities, v) {
		return ErrInvalidVisibility
	}
	return nil
}

// IsRankable reports whether the post may appear in a ranked feed:
// it must be public and not soft-deleted.
func (p *Post) IsRankable() bool {
	return p.Visibility == VisibilityPublic && !p.IsDeleted()
}
