// Package profile resolves the requesting viewer's farming profile used to
// personalize the feed.
package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/lib/pq"

	"github.com/onnwee/agrolink/internal/post"
	"github.com/onnwee/agrolink/internal/tracing"
)

// ErrViewerNotFound is returned when no profile exists for the viewer ID.
var ErrViewerNotFound = errors.New("viewer not found")

// Viewer is the requesting user's profile. Immutable for one ranking request.
type Viewer struct {
	ID              string   `json:"id"`
	Crops           []string `json:"crops,omitempty"`
	State           string   `json:"state,omitempty"`
	District        string   `json:"district,omitempty"`
	Role            string   `json:"role,omitempty"`
	ExperienceLevel string   `json:"experience_level,omitempty"`
}

// Store looks up viewer profiles.
type Store interface {
	GetViewer(ctx context.Context, id string) (*Viewer, error)
}

// InMemoryStore is an in-memory Store. Thread-safe via RWMutex.
type InMemoryStore struct {
	mu      sync.RWMutex
	viewers map[string]Viewer
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{viewers: make(map[string]Viewer)}
}

// Put stores or replaces a viewer profile. Crop tags are normalized.
func (s *InMemoryStore) Put(v Viewer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v.Crops = post.NormalizeCrops(v.Crops)
	s.viewers[v.ID] = v
}

// GetViewer implements Store.
func (s *InMemoryStore) GetViewer(ctx context.Context, id string) (*Viewer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.viewers[id]
	if !ok {
		return nil, ErrViewerNotFound
	}
	v.Crops = append([]string(nil), v.Crops...)
	return &v, nil
}

// PostgresStore reads viewer profiles from the users table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// GetViewer implements Store.
func (s *PostgresStore) GetViewer(ctx context.Context, id string) (v *Viewer, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "users", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query := `
		SELECT id::text, crops, state, district, role, experience_level
		FROM users
		WHERE id::text = $1
	`

	var crops pq.StringArray
	v = &Viewer{}
	err = s.db.QueryRowContext(ctx, query, id).Scan(
		&v.ID,
		&crops,
		&v.State,
		&v.District,
		&v.Role,
		&v.ExperienceLevel,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrViewerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get viewer: %w", err)
	}

	v.Crops = post.NormalizeCrops(crops)
	return v, nil
}
