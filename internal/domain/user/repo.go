package user

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("user not found")
	// ErrExists is returned when the subject already has a profile.
	ErrExists = errors.New("user already registered")
	// ErrSystemIDTaken is returned when the generated system id collides.
	ErrSystemIDTaken = errors.New("system id already in use")
)

type Repository interface {
	Create(ctx context.Context, p *Profile) error
	GetByID(ctx context.Context, id string) (*Profile, error)
	UpdateApproval(ctx context.Context, id, status string) (*Profile, error)
	ListByRole(ctx context.Context, role, approval string, limit, offset int) ([]*Profile, int, error)
}
