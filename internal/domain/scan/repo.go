package scan

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("scan not found")

type Repository interface {
	Create(ctx context.Context, s *Scan) error
	GetByID(ctx context.Context, id uuid.UUID) (*Scan, error)
	// List returns scans newest first. A limit of zero or less returns all.
	List(ctx context.Context, p ListParams, limit, offset int) ([]*Scan, int, error)
	// Modify loads the scan, applies fn and stores the result atomically.
	// Nothing is written when fn returns an error.
	Modify(ctx context.Context, id uuid.UUID, fn func(s *Scan) error) (*Scan, error)
	ForEach(ctx context.Context, fn func(s *Scan) error) error
}
