package scan

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Drewww17/m2-sa-luminarias/internal/integrity"
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

const scanCols = `id, patient_id, patient_name, diagnosis, confidence, risk_level, risk_score,
	recommendation, reliability_score, agreement_percentage, confidence_std_dev, is_ulcer,
	model_results, system_version, model_version, review_status, doctor_notes, reviewed_by,
	reviewed_at, scan_hash, hash_scheme, hashed_at, created_at, updated_at`

func scanRow(row pgx.Row) (*Scan, error) {
	var s Scan
	var scheme int16
	err := row.Scan(
		&s.ID, &s.PatientID, &s.PatientName, &s.Diagnosis, &s.Confidence, &s.RiskLevel, &s.RiskScore,
		&s.Recommendation, &s.ReliabilityScore, &s.AgreementPercentage, &s.ConfidenceStdDev, &s.IsUlcer,
		&s.ModelResults, &s.SystemVersion, &s.ModelVersion, &s.ReviewStatus, &s.DoctorNotes, &s.ReviewedBy,
		&s.ReviewedAt, &s.ScanHash, &scheme, &s.HashedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.HashScheme = integrity.Scheme(scheme)
	return &s, nil
}

func (r *RepoPG) Create(ctx context.Context, s *Scan) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO scans (`+scanCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24)`,
		s.ID, s.PatientID, s.PatientName, s.Diagnosis, s.Confidence, s.RiskLevel, s.RiskScore,
		s.Recommendation, s.ReliabilityScore, s.AgreementPercentage, s.ConfidenceStdDev, s.IsUlcer,
		s.ModelResults, s.SystemVersion, s.ModelVersion, s.ReviewStatus, s.DoctorNotes, s.ReviewedBy,
		s.ReviewedAt, s.ScanHash, int16(s.HashScheme), s.HashedAt, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert scan: %w", err)
	}
	return nil
}

func (r *RepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Scan, error) {
	return scanRow(r.conn(ctx).QueryRow(ctx, "SELECT "+scanCols+" FROM scans WHERE id = $1", id))
}

func (r *RepoPG) List(ctx context.Context, p ListParams, limit, offset int) ([]*Scan, int, error) {
	where := []string{}
	args := []interface{}{}
	if p.PatientID != "" {
		args = append(args, p.PatientID)
		where = append(where, fmt.Sprintf("patient_id = $%d", len(args)))
	}
	if p.ReviewStatus != "" {
		args = append(args, p.ReviewStatus)
		where = append(where, fmt.Sprintf("review_status = $%d", len(args)))
	}
	if p.Since != nil {
		args = append(args, *p.Since)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if p.UlcerOnly {
		where = append(where, "is_ulcer")
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, "SELECT COUNT(*) FROM scans "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count scans: %w", err)
	}

	q := fmt.Sprintf("SELECT %s FROM scans %s ORDER BY created_at DESC", scanCols, whereClause)
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
		args = append(args, limit, offset)
	}

	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()

	var items []*Scan
	for rows.Next() {
		s, err := scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

func (r *RepoPG) Modify(ctx context.Context, id uuid.UUID, fn func(s *Scan) error) (*Scan, error) {
	var out *Scan
	err := db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		s, err := scanRow(r.conn(ctx).QueryRow(ctx, "SELECT "+scanCols+" FROM scans WHERE id = $1 FOR UPDATE", id))
		if err != nil {
			return err
		}
		if err := fn(s); err != nil {
			return err
		}
		_, err = r.conn(ctx).Exec(ctx, `
			UPDATE scans SET
				diagnosis = $2, confidence = $3, risk_level = $4, risk_score = $5,
				recommendation = $6, system_version = $7, model_version = $8,
				review_status = $9, doctor_notes = $10, reviewed_by = $11, reviewed_at = $12,
				scan_hash = $13, hash_scheme = $14, hashed_at = $15, updated_at = $16,
				is_ulcer = $17
			WHERE id = $1`,
			s.ID, s.Diagnosis, s.Confidence, s.RiskLevel, s.RiskScore,
			s.Recommendation, s.SystemVersion, s.ModelVersion,
			s.ReviewStatus, s.DoctorNotes, s.ReviewedBy, s.ReviewedAt,
			s.ScanHash, int16(s.HashScheme), s.HashedAt, s.UpdatedAt,
			s.IsUlcer)
		if err != nil {
			return fmt.Errorf("update scan: %w", err)
		}
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *RepoPG) ForEach(ctx context.Context, fn func(s *Scan) error) error {
	rows, err := r.conn(ctx).Query(ctx, "SELECT "+scanCols+" FROM scans ORDER BY created_at")
	if err != nil {
		return fmt.Errorf("iterate scans: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		s, err := scanRow(rows)
		if err != nil {
			return err
		}
		if err := fn(s); err != nil {
			return err
		}
	}
	return rows.Err()
}
