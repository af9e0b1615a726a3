package post

import (
	"database/sql"
	"time"

	"github.com/lib/pq"
)

// Row is the nullable shape of a posts row joined with its author. It is
// converted into a Post immediately after scanning.
type Row struct {
	ID                string
	AuthorID          string
	Content           sql.NullString
	Category          sql.NullString
	Crops             pq.StringArray
	State             sql.NullString
	District          sql.NullString
	Visibility        sql.NullString
	LikesCount        sql.NullInt64
	CommentsCount     sql.NullInt64
	SharesCount       sql.NullInt64
	HelpfulMarksCount sql.NullInt64
	ViewsCount        sql.NullInt64
	IsVerified        sql.NullBool
	CreatedAt         time.Time
	DeletedAt         sql.NullTime

	// Author columns come from a LEFT JOIN and are all NULL when the author
	// row is missing.
	AuthorFound      sql.NullString
	AuthorRole       sql.NullString
	AuthorExperience sql.NullString
	AuthorBadges     pq.StringArray
	AuthorState      sql.NullString
	AuthorDistrict   sql.NullString
}

// scanDest returns the destinations matching candidateColumns.
func (r *Row) scanDest() []any {
	return []any{
		&r.ID, &r.AuthorID, &r.Content, &r.Category, &r.Crops,
		&r.State, &r.District, &r.Visibility,
		&r.LikesCount, &r.CommentsCount, &r.SharesCount, &r.HelpfulMarksCount, &r.ViewsCount,
		&r.IsVerified, &r.CreatedAt, &r.DeletedAt,
		&r.AuthorFound, &r.AuthorRole, &r.AuthorExperience, &r.AuthorBadges,
		&r.AuthorState, &r.AuthorDistrict,
	}
}

// FromRow converts a scanned row into a Post. Negative counters clamp to
// zero, crop tags are normalized, an empty location becomes nil and an
// unknown visibility becomes private.
func FromRow(r Row) *Post {
	p := &Post{
		ID:                r.ID,
		AuthorID:          r.AuthorID,
		Content:           r.Content.String,
		Category:          NormalizeTag(r.Category.String),
		Crops:             NormalizeCrops(r.Crops),
		Visibility:        Visibility(r.Visibility.String),
		LikesCount:        nonNegative(r.LikesCount),
		CommentsCount:     nonNegative(r.CommentsCount),
		SharesCount:       nonNegative(r.SharesCount),
		HelpfulMarksCount: nonNegative(r.HelpfulMarksCount),
		ViewsCount:        nonNegative(r.ViewsCount),
		IsVerified:        r.IsVerified.Valid && r.IsVerified.Bool,
		CreatedAt:         r.CreatedAt,
	}
	p.Visibility = normalizeVisibility(p.Visibility)

	loc := &Location{State: r.State.String, District: r.District.String}
	if !loc.IsZero() {
		p.Location = loc
	}

	if r.DeletedAt.Valid {
		d := r.DeletedAt.Time
		p.DeletedAt = &d
	}

	if r.AuthorFound.Valid {
		p.Author = &AuthorSnapshot{
			Role:            r.AuthorRole.String,
			ExperienceLevel: r.AuthorExperience.String,
			Badges:          append([]string(nil), r.AuthorBadges...),
			State:           r.AuthorState.String,
			District:        r.AuthorDistrict.String,
		}
	}

	return p
}

// normalizeVisibility maps NULL to public and any unrecognized value to
// private, which keeps the row out of ranked results.
func normalizeVisibility(v Visibility) Visibility {
	v = Visibility(NormalizeTag(string(v)))
	if v == "" {
		return VisibilityPublic
	}
	if ValidateVisibility(v) != nil {
		return VisibilityPrivate
	}
	return v
}

func nonNegative(n sql.NullInt64) int64 {
	if !n.Valid || n.Int64 < 0 {
		return 0
	}
	return n.Int64
}
