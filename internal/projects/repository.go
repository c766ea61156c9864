// Package projects reads project membership snapshots from PostgreSQL.
package projects

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/workboard/projectguard/internal/platform/httpx"
	"github.com/workboard/projectguard/internal/policy"
)

// Repository provides PostgreSQL backed membership lookups. It never caches:
// projects can change hands between requests.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const membershipQuery = `SELECT p.manager_user_id,
       COALESCE(array_agg(m.user_id ORDER BY m.user_id) FILTER (WHERE m.user_id IS NOT NULL), '{}')
  FROM projects p
  LEFT JOIN project_members m ON m.project_id = p.id
 WHERE p.id = $1
 GROUP BY p.id, p.manager_user_id`

// Membership returns the snapshot for projectID or httpx.ErrNotFound.
func (r *Repository) Membership(ctx context.Context, projectID string) (policy.Membership, error) {
	var (
		managerID string
		members   []string
	)
	err := r.pool.QueryRow(ctx, membershipQuery, projectID).Scan(&managerID, &members)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return policy.Membership{}, fmt.Errorf("project %s: %w", projectID, httpx.ErrNotFound)
		}
		return policy.Membership{}, fmt.Errorf("projects: membership: %w", err)
	}
	return policy.NewMembership(projectID, managerID, members...), nil
}
