package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"

	"taskd/internal/database"
	"taskd/internal/models"
	"taskd/pkg/logger"
)

const taskColumns = `id, title, priority, due_date, created, completed, completed_at`

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// PostgresOptions configures a PostgresStore.
type PostgresOptions struct {
	Table   string
	Timeout time.Duration // per-operation bound, including connection acquisition
}

// PostgresStore keeps one row per task in a single table.
type PostgresStore struct {
	db      *sql.DB
	table   string // quoted identifier
	rawName string
	timeout time.Duration

	mu    sync.Mutex
	ready bool
}

// NewPostgresStore wraps an open pool. The schema is not touched until EnsureReady.
func NewPostgresStore(db *sql.DB, opts PostgresOptions) (*PostgresStore, error) {
	name := opts.Table
	if name == "" {
		name = "tasks"
	}
	if !tableNamePattern.MatchString(name) {
		return nil, fmt.Errorf("%w: invalid table name %q", models.ErrInvalidArgument, name)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PostgresStore{
		db:      db,
		table:   pq.QuoteIdentifier(name),
		rawName: name,
		timeout: timeout,
	}, nil
}

// EnsureReady runs EnsureSchema the first time it succeeds; later calls are free.
func (s *PostgresStore) EnsureReady(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}
	if err := s.EnsureSchema(ctx); err != nil {
		return err
	}
	s.ready = true
	return nil
}

// EnsureSchema creates the table if it is absent and moves the id sequence
// past the largest stored id. Safe to call any number of times.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.db.ExecContext(opCtx, `
		CREATE TABLE IF NOT EXISTS `+s.table+` (
			id BIGSERIAL PRIMARY KEY,
			title TEXT NOT NULL,
			priority TEXT NOT NULL DEFAULT 'medium',
			due_date TEXT,
			created TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			completed BOOLEAN NOT NULL DEFAULT FALSE,
			completed_at TIMESTAMPTZ
		)`)
	if err != nil {
		logger.Error(ctx, "Ensure schema failed", "table", s.rawName, "error", err)
		return database.Classify(ctx, fmt.Errorf("create table %s: %w", s.rawName, err))
	}
	if err := s.syncSequence(opCtx); err != nil {
		return database.Classify(ctx, err)
	}
	return nil
}

// syncSequence advances the id sequence to MAX(id). It never moves it
// backwards, so ids of deleted rows stay consumed.
func (s *PostgresStore) syncSequence(ctx context.Context) error {
	var seq sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT pg_get_serial_sequence($1, 'id')`, s.rawName).Scan(&seq); err != nil {
		return fmt.Errorf("look up id sequence: %w", err)
	}
	if !seq.Valid {
		return nil
	}
	var maxID int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM `+s.table).Scan(&maxID); err != nil {
		return fmt.Errorf("read max id: %w", err)
	}
	if maxID == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		SELECT setval($1::regclass, $2::bigint)
		WHERE $2::bigint > (SELECT CASE WHEN is_called THEN last_value ELSE last_value - 1 END FROM `+seqIdentifier(seq.String)+`)`,
		seq.String, maxID)
	if err != nil {
		return fmt.Errorf("advance id sequence: %w", err)
	}
	return nil
}

// Add inserts the task and lets the sequence assign its id.
func (s *PostgresStore) Add(ctx context.Context, nt models.NewTask) (models.Task, error) {
	if err := s.EnsureReady(ctx); err != nil {
		return models.Task{}, err
	}
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	created := nt.Created
	if created.IsZero() {
		created = models.Now()
	}
	row := s.db.QueryRowContext(opCtx,
		`INSERT INTO `+s.table+` (title, priority, due_date, created, completed)
		 VALUES ($1, $2, $3, $4, FALSE)
		 RETURNING `+taskColumns,
		nt.Title, string(nt.Priority), dueDateArg(nt.DueDate), created)
	t, err := scanTask(row)
	if err != nil {
		logger.Error(ctx, "Repository Add failed", "error", err)
		return models.Task{}, database.Classify(ctx, err)
	}
	return t, nil
}

// List returns the tasks matching f ordered by id. Rows that fail to
// decode are logged and skipped.
func (s *PostgresStore) List(ctx context.Context, f models.Filter) ([]models.Task, error) {
	if err := s.EnsureReady(ctx); err != nil {
		return nil, err
	}
	where, args := filterClause(f)
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(opCtx, `SELECT `+taskColumns+` FROM `+s.table+where+` ORDER BY id`, args...)
	if err != nil {
		logger.Error(ctx, "Repository List failed", "filter", f.String(), "error", err)
		return nil, database.Classify(ctx, err)
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			if errors.Is(err, models.ErrMalformedRecord) {
				logger.Warn(ctx, "Skipping malformed task row", "error", err)
				continue
			}
			return nil, database.Classify(ctx, err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Classify(ctx, err)
	}
	return tasks, nil
}

// Complete marks the task done; a repeat call keeps the first completed_at.
func (s *PostgresStore) Complete(ctx context.Context, id int64) (models.Task, error) {
	return s.updateReturning(ctx, id,
		`SET completed = TRUE, completed_at = CASE WHEN completed THEN completed_at ELSE $2 END`,
		models.Now())
}

// UpdatePriority sets a new priority.
func (s *PostgresStore) UpdatePriority(ctx context.Context, id int64, p models.Priority) (models.Task, error) {
	if !p.Valid() {
		return models.Task{}, fmt.Errorf("%w: unknown priority %q", models.ErrInvalidArgument, p)
	}
	return s.updateReturning(ctx, id, `SET priority = $2`, string(p))
}

// Delete removes the row.
func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	if err := s.EnsureReady(ctx); err != nil {
		return err
	}
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.db.ExecContext(opCtx, `DELETE FROM `+s.table+` WHERE id = $1`, id)
	if err != nil {
		logger.Error(ctx, "Repository Delete failed", "error", err, "id", id)
		return database.Classify(ctx, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return database.Classify(ctx, err)
	}
	if n == 0 {
		return models.NotFound(id)
	}
	return nil
}

// Import inserts tasks with their existing ids, leaving rows whose id is
// already taken untouched, then advances the id sequence. It returns the
// number of rows inserted.
func (s *PostgresStore) Import(ctx context.Context, tasks []models.Task) (int, error) {
	if err := s.EnsureReady(ctx); err != nil {
		return 0, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, database.Classify(ctx, err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO `+s.table+` (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (id) DO NOTHING`)
	if err != nil {
		return 0, database.Classify(ctx, err)
	}
	defer stmt.Close()

	inserted := 0
	for _, t := range tasks {
		var completedAt any
		if t.CompletedAt != nil {
			completedAt = *t.CompletedAt
		}
		res, err := stmt.ExecContext(ctx, t.ID, t.Title, string(t.Priority), dueDateArg(t.DueDate), t.Created, t.Completed, completedAt)
		if err != nil {
			return 0, database.Classify(ctx, fmt.Errorf("import task %d: %w", t.ID, err))
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, database.Classify(ctx, err)
	}
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.syncSequence(opCtx); err != nil {
		return inserted, database.Classify(ctx, err)
	}
	return inserted, nil
}

// Ping checks that a pooled connection is usable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return database.Classify(ctx, s.db.PingContext(opCtx))
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) updateReturning(ctx context.Context, id int64, set string, arg any) (models.Task, error) {
	if err := s.EnsureReady(ctx); err != nil {
		return models.Task{}, err
	}
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	row := s.db.QueryRowContext(opCtx, `UPDATE `+s.table+` `+set+` WHERE id = $1 RETURNING `+taskColumns, id, arg)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Task{}, models.NotFound(id)
	}
	if err != nil {
		logger.Error(ctx, "Repository update failed", "error", err, "id", id)
		return models.Task{}, database.Classify(ctx, err)
	}
	return t, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanTask decodes a typed row through the record codec so both backends
// apply the same validation.
func scanTask(row rowScanner) (models.Task, error) {
	var (
		rec         models.Record
		dueDate     sql.NullString
		created     time.Time
		completedAt sql.NullTime
	)
	if err := row.Scan(&rec.ID, &rec.Title, &rec.Priority, &dueDate, &created, &rec.Completed, &completedAt); err != nil {
		return models.Task{}, err
	}
	rec.Created = models.FormatDateTime(created)
	if dueDate.Valid {
		rec.DueDate = &dueDate.String
	}
	if completedAt.Valid {
		s := models.FormatDateTime(completedAt.Time)
		rec.CompletedAt = &s
	}
	return models.Decode(rec)
}

func filterClause(f models.Filter) (string, []any) {
	switch f.Kind {
	case models.FilterPending:
		return ` WHERE NOT completed`, nil
	case models.FilterCompleted:
		return ` WHERE completed`, nil
	case models.FilterPriority:
		return ` WHERE priority = $1`, []any{string(f.Priority)}
	case models.FilterID:
		return ` WHERE id = $1`, []any{f.ID}
	default:
		return "", nil
	}
}

func dueDateArg(d *time.Time) any {
	if d == nil {
		return nil
	}
	return models.FormatDate(*d)
}

// seqIdentifier quotes each part of a schema-qualified sequence name as
// returned by pg_get_serial_sequence.
func seqIdentifier(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(strings.Trim(p, `"`))
	}
	return strings.Join(parts, ".")
}
