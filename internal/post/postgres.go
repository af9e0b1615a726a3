package post

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/onnwee/agrolink/internal/tracing"
)

const candidateColumns = `
	p.id::text, p.author_id::text, p.content, p.category, p.crops,
	p.state, p.district, p.visibility,
	p.likes_count, p.comments_count, p.shares_count, p.helpful_marks_count, p.views_count,
	p.is_verified, p.created_at, p.deleted_at,
	u.id::text, u.role, u.experience_level, u.badges, u.state, u.district`

// PostgresRepository implements CandidateRepository using PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FetchCandidates implements CandidateRepository.
func (r *PostgresRepository) FetchCandidates(ctx context.Context, q CandidateQuery) (posts []*Post, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "posts", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query, args := buildCandidateQuery(q)
	return r.query(ctx, query, args...)
}

// FetchTrending implements CandidateRepository.
func (r *PostgresRepository) FetchTrending(ctx context.Context, q TrendingQuery) (posts []*Post, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "posts", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query := `
		SELECT ` + candidateColumns + `
		FROM posts p
		LEFT JOIN users u ON u.id = p.author_id
		WHERE p.deleted_at IS NULL
		  AND p.visibility = 'public'
		  AND p.created_at >= $1
		ORDER BY p.created_at DESC, p.id DESC
		LIMIT $2
	`
	return r.query(ctx, query, q.Since, q.Limit)
}

// buildCandidateQuery assembles the filtered candidate query. Optional
// filters add positional parameters in order.
func buildCandidateQuery(q CandidateQuery) (string, []any) {
	var b strings.Builder
	b.WriteString(`
		SELECT ` + candidateColumns + `
		FROM posts p
		LEFT JOIN users u ON u.id = p.author_id
		WHERE p.deleted_at IS NULL
		  AND p.visibility = 'public'
		  AND p.id::text <> ALL($1::text[])
		  AND p.author_id::text <> ALL($2::text[])`)

	args := []any{pq.Array(nonNil(q.ExcludedPostIDs)), pq.Array(nonNil(q.ExcludedAuthorIDs))}
	next := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if c := NormalizeTag(q.Category); c != "" {
		b.WriteString("\n\t\t  AND lower(p.category) = " + next(c))
	}
	if c := NormalizeTag(q.Crop); c != "" {
		b.WriteString("\n\t\t  AND " + next(c) + " = ANY(p.crops)")
	}
	if q.Cursor != "" {
		b.WriteString("\n\t\t  AND p.id < " + next(q.Cursor) + "::uuid")
	}
	b.WriteString("\n\t\tORDER BY p.id DESC")
	if q.Limit > 0 {
		b.WriteString("\n\t\tLIMIT " + next(q.Limit))
	}
	return b.String(), args
}

func (r *PostgresRepository) query(ctx context.Context, query string, args ...any) ([]*Post, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer rows.Close()

	var posts []*Post
	for rows.Next() {
		var row Row
		if err := rows.Scan(row.scanDest()...); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		posts = append(posts, FromRow(row))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candidates: %w", err)
	}
	return posts, nil
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
