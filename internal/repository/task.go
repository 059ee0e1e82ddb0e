package repository

import (
	"context"
	"errors"

	"ytgrab/internal/domain"
)

// ErrNotFound is returned by Get when no task exists for the given id.
var ErrNotFound = errors.New("task not found")

// TaskStore is the durable record of every task ever created. Implementations
// must tolerate concurrent callers: the control plane, the progress drain
// goroutine and workers all mutate through the same store.
type TaskStore interface {
	Create(ctx context.Context, task *domain.Task) error
	// Update merges the given fields into the stored record. An unknown id
	// is logged and ignored, matching fire-and-forget progress writes.
	Update(ctx context.Context, id string, update domain.TaskUpdate) error
	Get(ctx context.Context, id string) (*domain.Task, error)
	// List returns all records in creation order.
	List(ctx context.Context) ([]domain.Task, error)
	// Clear removes every record.
	Clear(ctx context.Context) error
}
