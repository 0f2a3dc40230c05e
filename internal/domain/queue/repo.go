package queue

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Create inserts a waiting entry stamped with the database clock.
	Create(ctx context.Context, e *Entry) error
	GetByID(ctx context.Context, id uuid.UUID) (*Entry, error)
	// ListWaiting returns waiting entries in serving order, optionally
	// restricted to one priority class.
	ListWaiting(ctx context.Context, priority *bool) ([]*WaitingEntry, error)
	CountWaiting(ctx context.Context) (int, error)
	// Attend and Cancel move a waiting entry to a terminal state. They fail
	// with NotFound for unknown ids and Conflict for entries already closed.
	Attend(ctx context.Context, id uuid.UUID) (*Entry, error)
	Cancel(ctx context.Context, id uuid.UUID) (*Entry, error)
}
