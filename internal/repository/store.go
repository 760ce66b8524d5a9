package repository

import (
	"context"

	"taskd/internal/models"
)

// Store is the persistence contract both backends implement.
type Store interface {
	// EnsureReady prepares the backend; it must succeed before any other call.
	EnsureReady(ctx context.Context) error
	Add(ctx context.Context, t models.NewTask) (models.Task, error)
	// List returns matching tasks ordered by id ascending.
	List(ctx context.Context, f models.Filter) ([]models.Task, error)
	Complete(ctx context.Context, id int64) (models.Task, error)
	Delete(ctx context.Context, id int64) error
	UpdatePriority(ctx context.Context, id int64, p models.Priority) (models.Task, error)
}

// Backend names the variant a Facade is bound to.
type Backend string

const (
	BackendPostgres Backend = "postgres"
	BackendFile     Backend = "file"
)
