package grants

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/workboard/projectguard/internal/platform/db"
	"github.com/workboard/projectguard/internal/platform/httpx"
	"github.com/workboard/projectguard/internal/policy"
	"github.com/workboard/projectguard/internal/shared"
)

const pgForeignKeyViolation = "23503"

// Repository provides PostgreSQL backed persistence for project_permissions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectColumns = `project_id, user_id, tokens, revision, updated_by, updated_at`

// Get loads one grant or returns httpx.ErrNotFound.
func (r *Repository) Get(ctx context.Context, projectID, userID string) (Record, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM project_permissions WHERE project_id = $1 AND user_id = $2`, projectID, userID)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, httpx.ErrNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

// List returns one page of a project's grants ordered by user and the total count.
func (r *Repository) List(ctx context.Context, projectID string, limit, offset int) ([]Record, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM project_permissions WHERE project_id = $1`, projectID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+selectColumns+` FROM project_permissions WHERE project_id = $1 ORDER BY user_id LIMIT $2 OFFSET $3`, projectID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Save upserts the grant and writes the audit entry in one transaction.
func (r *Repository) Save(ctx context.Context, rec Record, audit shared.AuditLog) (Record, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `INSERT INTO project_permissions (project_id, user_id, tokens, revision, updated_by, updated_at)
VALUES ($1, $2, $3, $4, $5, NOW())
ON CONFLICT (project_id, user_id) DO UPDATE
   SET tokens = EXCLUDED.tokens, revision = EXCLUDED.revision, updated_by = EXCLUDED.updated_by, updated_at = NOW()
RETURNING updated_at`, rec.ProjectID, rec.UserID, rec.Tokens.Tokens(), rec.Revision, rec.UpdatedBy).Scan(&rec.UpdatedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
				return fmt.Errorf("grants: project %s: %w", rec.ProjectID, httpx.ErrNotFound)
			}
			return err
		}
		return shared.RecordAudit(ctx, tx, audit)
	})
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Delete removes one grant and writes the audit entry in one transaction.
func (r *Repository) Delete(ctx context.Context, projectID, userID string, audit shared.AuditLog) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM project_permissions WHERE project_id = $1 AND user_id = $2`, projectID, userID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return httpx.ErrNotFound
		}
		return shared.RecordAudit(ctx, tx, audit)
	})
}

// DeleteByProject removes every grant of a project.
func (r *Repository) DeleteByProject(ctx context.Context, projectID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM project_permissions WHERE project_id = $1`, projectID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteByUser removes every grant held by a user.
func (r *Repository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM project_permissions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteOrphans removes grants whose holder left the project.
func (r *Repository) DeleteOrphans(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM project_permissions pp
 WHERE NOT EXISTS (
   SELECT 1 FROM project_members m WHERE m.project_id = pp.project_id AND m.user_id = pp.user_id
 )`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// scanRecord validates stored tokens on the way out; a row holding an unknown
// token is an error, never a silently narrower grant.
func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec    Record
		tokens []string
	)
	if err := row.Scan(&rec.ProjectID, &rec.UserID, &tokens, &rec.Revision, &rec.UpdatedBy, &rec.UpdatedAt); err != nil {
		return Record{}, err
	}
	set, err := policy.Validate(tokens)
	if err != nil {
		return Record{}, fmt.Errorf("grants: stored tokens for %s: %w", entityID(rec.ProjectID, rec.UserID), err)
	}
	rec.Tokens = set
	return rec, nil
}
