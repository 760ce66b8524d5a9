package repository

import (
	"context"
	"fmt"
	"io"
	"time"

	"taskd/internal/database"
	"taskd/internal/models"
	"taskd/pkg/logger"
)

// Options selects and configures the backends.
type Options struct {
	// DatabaseURL, when set, makes Open try PostgreSQL first.
	DatabaseURL string
	DBPoolSize  int
	DBTimeout   time.Duration
	Table       string

	File FileOptions
}

// Facade routes every operation to the one backend chosen by Open. The
// choice is fixed for the Facade's lifetime.
type Facade struct {
	store   Store
	backend Backend
}

// Open picks the backend. With a database URL it opens the pool and
// prepares the schema; any failure there is logged and the file store is
// used instead. It only returns an error if the file store itself cannot
// be prepared.
func Open(ctx context.Context, opts Options) (*Facade, error) {
	if opts.DatabaseURL != "" {
		pg, err := openPostgres(ctx, opts)
		if err == nil {
			logger.Info(ctx, "Storage bound", "backend", BackendPostgres)
			return &Facade{store: pg, backend: BackendPostgres}, nil
		}
		logger.Warn(ctx, "Database unavailable, falling back to file storage", "error", err, "path", opts.File.Path)
	}

	fs := NewFileStore(opts.File)
	if err := fs.EnsureReady(ctx); err != nil {
		return nil, fmt.Errorf("prepare file storage: %w", err)
	}
	logger.Info(ctx, "Storage bound", "backend", BackendFile, "path", fs.Path())
	return &Facade{store: fs, backend: BackendFile}, nil
}

// NewFacade binds a Facade to an already prepared store.
func NewFacade(store Store, backend Backend) *Facade {
	return &Facade{store: store, backend: backend}
}

func openPostgres(ctx context.Context, opts Options) (*PostgresStore, error) {
	db, err := database.Open(ctx, database.PoolOptions{
		URL:         opts.DatabaseURL,
		MaxOpen:     opts.DBPoolSize,
		ConnTimeout: opts.DBTimeout,
	})
	if err != nil {
		return nil, err
	}
	pg, err := NewPostgresStore(db, PostgresOptions{Table: opts.Table, Timeout: opts.DBTimeout})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := pg.EnsureReady(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return pg, nil
}

// Backend reports which variant serves requests.
func (f *Facade) Backend() Backend { return f.backend }

// Store exposes the bound backend, e.g. for backend-specific maintenance.
func (f *Facade) Store() Store { return f.store }

func (f *Facade) EnsureReady(ctx context.Context) error { return f.store.EnsureReady(ctx) }

func (f *Facade) Add(ctx context.Context, t models.NewTask) (models.Task, error) {
	return f.store.Add(ctx, t)
}

func (f *Facade) List(ctx context.Context, filter models.Filter) ([]models.Task, error) {
	return f.store.List(ctx, filter)
}

func (f *Facade) Complete(ctx context.Context, id int64) (models.Task, error) {
	return f.store.Complete(ctx, id)
}

func (f *Facade) Delete(ctx context.Context, id int64) error { return f.store.Delete(ctx, id) }

func (f *Facade) UpdatePriority(ctx context.Context, id int64, p models.Priority) (models.Task, error) {
	return f.store.UpdatePriority(ctx, id, p)
}

// Ping checks the bound backend for readiness probes.
func (f *Facade) Ping(ctx context.Context) error {
	if p, ok := f.store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return f.store.EnsureReady(ctx)
}

// Close releases backend resources.
func (f *Facade) Close() error {
	if c, ok := f.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
