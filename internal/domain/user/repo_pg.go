package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Drewww17/m2-sa-luminarias/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type RepoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) *RepoPG {
	return &RepoPG{pool: pool}
}

func (r *RepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const userCols = `id, system_id, first_name, last_name, full_name, email, role,
	professional_id, approval_status, created_at, updated_at`

func scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.SystemID, &p.FirstName, &p.LastName, &p.FullName, &p.Email, &p.Role,
		&p.ProfessionalID, &p.ApprovalStatus, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *RepoPG) Create(ctx context.Context, p *Profile) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO users (`+userCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.SystemID, p.FirstName, p.LastName, p.FullName, p.Email, p.Role,
		p.ProfessionalID, p.ApprovalStatus, p.CreatedAt, p.UpdatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		if strings.Contains(pgErr.ConstraintName, "system_id") {
			return ErrSystemIDTaken
		}
		return ErrExists
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *RepoPG) GetByID(ctx context.Context, id string) (*Profile, error) {
	return scanProfile(r.conn(ctx).QueryRow(ctx, "SELECT "+userCols+" FROM users WHERE id = $1", id))
}

func (r *RepoPG) UpdateApproval(ctx context.Context, id, status string) (*Profile, error) {
	return scanProfile(r.conn(ctx).QueryRow(ctx, `
		UPDATE users SET approval_status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+userCols, id, status))
}

func (r *RepoPG) ListByRole(ctx context.Context, role, approval string, limit, offset int) ([]*Profile, int, error) {
	where := []string{}
	args := []interface{}{}
	if role != "" {
		args = append(args, role)
		where = append(where, fmt.Sprintf("role = $%d", len(args)))
	}
	if approval != "" {
		args = append(args, approval)
		where = append(where, fmt.Sprintf("approval_status = $%d", len(args)))
	}
	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, "SELECT COUNT(*) FROM users "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	q := fmt.Sprintf("SELECT %s FROM users %s ORDER BY created_at ASC LIMIT $%d OFFSET $%d",
		userCols, whereClause, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var items []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}
