package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/lib/pq"

	"taskd/internal/models"
	"taskd/pkg/logger"
)

// PoolOptions sizes the connection pool.
type PoolOptions struct {
	URL         string
	MaxOpen     int
	ConnTimeout time.Duration
}

// Open creates the connection pool and verifies it with a bounded ping.
// A failure here is always classified as ErrStorageUnavailable.
func Open(ctx context.Context, opts PoolOptions) (*sql.DB, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("%w: DATABASE_URL is not set", models.ErrStorageUnavailable)
	}
	db, err := sql.Open("postgres", opts.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %w", models.ErrStorageUnavailable, err)
	}
	maxOpen := opts.MaxOpen
	if maxOpen <= 0 {
		maxOpen = 10
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(max(1, maxOpen/2))
	db.SetConnMaxLifetime(30 * time.Minute)

	timeout := opts.ConnTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping database: %w", models.ErrStorageUnavailable, err)
	}
	logger.Info(ctx, "Database pool initialized", "max_open", maxOpen)
	return db, nil
}

// IsConnectionError reports whether err is a pool or connection level
// failure rather than an error in the statement itself.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", // connection exception
			"28", // invalid authorization
			"53", // insufficient resources
			"57": // operator intervention (shutdown)
			return true
		}
	}
	return false
}

// Classify maps a database error onto the shared error kinds. parent is the
// caller's context; a deadline hit by the per-operation bound (and not by
// the caller) counts as the backend being unavailable.
func Classify(parent context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
		return fmt.Errorf("%w: database operation timed out: %w", models.ErrStorageUnavailable, err)
	}
	if IsConnectionError(err) {
		return fmt.Errorf("%w: %w", models.ErrStorageUnavailable, err)
	}
	return err
}
