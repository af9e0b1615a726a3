// Package post provides the candidate post model and repositories that
// serve filtered candidate batches to the feed ranker.
package post

import (
	"strings"
	"time"
)

// Location is a coarse administrative location attached to a post or author.
type Location struct {
	State    string `json:"state,omitempty"`
	District string `json:"district,omitempty"`
}

// IsZero reports whether neither state nor district is set.
func (l *Location) IsZero() bool {
	return l == nil || (strings.TrimSpace(l.State) == "" && strings.TrimSpace(l.District) == "")
}

// AuthorSnapshot is the denormalized view of a post's author fetched with the
// post. It may be missing or stale; consumers must tolerate a nil snapshot.
type AuthorSnapshot struct {
	Role            string   `json:"role,omitempty"`
	ExperienceLevel string   `json:"experience_level,omitempty"`
	Badges          []string `json:"badges,omitempty"`
	State           string   `json:"state,omitempty"`
	District        string   `json:"district,omitempty"`
}

// Post represents a farmer's post as seen by the ranking engine.
type Post struct {
	ID         string     `json:"id"`
	AuthorID   string     `json:"author_id"`
	Content    string     `json:"content"`
	Category   string     `json:"category,omitempty"`
	Crops      []string   `json:"crops,omitempty"`
	Location   *Location  `json:"location,omitempty"`
	Visibility Visibility `json:"visibility"`

	LikesCount        int64 `json:"likes_count"`
	CommentsCount     int64 `json:"comments_count"`
	SharesCount       int64 `json:"shares_count"`
	HelpfulMarksCount int64 `json:"helpful_marks_count"`
	ViewsCount        int64 `json:"views_count"`

	IsVerified bool            `json:"is_verified"`
	Author     *AuthorSnapshot `json:"author,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// IsDeleted reports whether the post has been soft-deleted.
func (p *Post) IsDeleted() bool {
	return p.DeletedAt != nil
}

// HasCrop reports whether the post is tagged with crop (case-insensitive).
func (p *Post) HasCrop(crop string) bool {
	crop = NormalizeTag(crop)
	for _, c := range p.Crops {
		if NormalizeTag(c) == crop {
			return true
		}
	}
	return false
}

// EffectiveLocation returns the post's own location, falling back to the
// author's state and district when the post carries none.
func (p *Post) EffectiveLocation() *Location {
	if !p.Location.IsZero() {
		return p.Location
	}
	if p.Author == nil {
		return nil
	}
	loc := &Location{State: p.Author.State, District: p.Author.District}
	if loc.IsZero() {
		return nil
	}
	return loc
}

// Clone returns a deep copy so callers can't mutate repository state.
func (p *Post) Clone() *Post {
	c := *p
	if p.Crops != nil {
		c.Crops = append([]string(nil), p.Crops...)
	}
	if p.Location != nil {
		loc := *p.Location
		c.Location = &loc
	}
	if p.Author != nil {
		a := *p.Author
		a.Badges = append([]string(nil), p.Author.Badges...)
		c.Author = &a
	}
	if p.DeletedAt != nil {
		d := *p.DeletedAt
		c.DeletedAt = &d
	}
	return &c
}

// NormalizeTag lower-cases and trims a crop tag or category.
func NormalizeTag(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeCrops lower-cases, trims and de-duplicates crop tags, dropping
// empty entries. Order of first occurrence is preserved.
func NormalizeCrops(crops []string) []string {
	if len(crops) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(crops))
	out := make([]string, 0, len(crops))
	for _, c := range crops {
		n := NormalizeTag(c)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
