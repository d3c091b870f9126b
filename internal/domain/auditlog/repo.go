package auditlog

import "context"

type Repository interface {
	Create(ctx context.Context, e *Entry) error
	// List returns entries newest first and the total count.
	List(ctx context.Context, action string, limit, offset int) ([]*Entry, int, error)
}
