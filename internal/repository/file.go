package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"taskd/internal/models"
	"taskd/pkg/logger"
)

const (
	defaultLockTimeout = 5 * time.Second
	defaultRetryDelay  = 10 * time.Millisecond
	lockSuffix         = ".lock"
)

// FileOptions configures a FileStore.
type FileOptions struct {
	Path        string
	LockTimeout time.Duration
	RetryDelay  time.Duration
}

// FileStore keeps the whole task collection in one document. Every
// operation holds an OS lock on a sidecar file for its full read or
// read-modify-write span, so goroutines and other processes using the same
// path never interleave.
type FileStore struct {
	path        string
	lockPath    string
	format      documentFormat
	lockTimeout time.Duration
	retryDelay  time.Duration
}

// NewFileStore returns a store for opts.Path. The document format follows
// the extension: .yaml/.yml for YAML, anything else JSON.
func NewFileStore(opts FileOptions) *FileStore {
	path := opts.Path
	if path == "" {
		path = "tasks.json"
	}
	s := &FileStore{
		path:        path,
		lockPath:    path + lockSuffix,
		format:      formatFor(path),
		lockTimeout: opts.LockTimeout,
		retryDelay:  opts.RetryDelay,
	}
	if s.lockTimeout <= 0 {
		s.lockTimeout = defaultLockTimeout
	}
	if s.retryDelay <= 0 {
		s.retryDelay = defaultRetryDelay
	}
	return s
}

// Path returns the document path.
func (s *FileStore) Path() string { return s.path }

// EnsureReady creates the parent directory and an empty document if none exists.
func (s *FileStore) EnsureReady(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("%w: create data directory: %w", models.ErrStorageUnavailable, err)
	}
	return s.withLock(ctx, true, func() error {
		if _, err := os.Stat(s.path); err == nil {
			return nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: stat %s: %w", models.ErrStorageUnavailable, s.path, err)
		}
		logger.Info(ctx, "Creating task file", "path", s.path)
		return s.save(&snapshot{})
	})
}

// Add assigns the next id and appends the task.
func (s *FileStore) Add(ctx context.Context, nt models.NewTask) (models.Task, error) {
	var created models.Task
	err := s.withLock(ctx, true, func() error {
		snap, err := s.load()
		if err != nil {
			return err
		}
		created = models.Task{
			ID:       snap.nextID(),
			Title:    nt.Title,
			Priority: nt.Priority,
			DueDate:  nt.DueDate,
			Created:  nt.Created,
		}
		if created.Created.IsZero() {
			created.Created = models.Now()
		}
		t := created
		snap.entries = append(snap.entries, entry{id: t.ID, task: &t})
		return s.save(snap)
	})
	if err != nil {
		return models.Task{}, err
	}
	return created, nil
}

// List returns the matching tasks ordered by id. Malformed entries are
// logged and skipped.
func (s *FileStore) List(ctx context.Context, f models.Filter) ([]models.Task, error) {
	var snap *snapshot
	err := s.withLock(ctx, false, func() error {
		var err error
		snap, err = s.load()
		return err
	})
	if err != nil {
		return nil, err
	}
	tasks := make([]models.Task, 0, len(snap.entries))
	for _, e := range snap.entries {
		if e.task == nil {
			logger.Warn(ctx, "Skipping malformed task record", "path", s.path, "error", e.err)
			continue
		}
		if f.Match(*e.task) {
			tasks = append(tasks, *e.task)
		}
	}
	slices.SortFunc(tasks, func(a, b models.Task) int { return compareIDs(a.ID, b.ID) })
	return tasks, nil
}

// Complete marks the task done. Completing a done task keeps its original completed_at.
func (s *FileStore) Complete(ctx context.Context, id int64) (models.Task, error) {
	return s.mutate(ctx, id, func(t *models.Task) bool {
		if t.Completed {
			return false
		}
		now := models.Now()
		t.Completed = true
		t.CompletedAt = &now
		return true
	})
}

// UpdatePriority sets a new priority.
func (s *FileStore) UpdatePriority(ctx context.Context, id int64, p models.Priority) (models.Task, error) {
	if !p.Valid() {
		return models.Task{}, fmt.Errorf("%w: unknown priority %q", models.ErrInvalidArgument, p)
	}
	return s.mutate(ctx, id, func(t *models.Task) bool {
		if t.Priority == p {
			return false
		}
		t.Priority = p
		return true
	})
}

// Delete removes the task permanently. Its id stays consumed.
func (s *FileStore) Delete(ctx context.Context, id int64) error {
	return s.withLock(ctx, true, func() error {
		snap, err := s.load()
		if err != nil {
			return err
		}
		i := snap.index(id)
		if i < 0 {
			return models.NotFound(id)
		}
		snap.entries = slices.Delete(snap.entries, i, i+1)
		return s.save(snap)
	})
}

func (s *FileStore) mutate(ctx context.Context, id int64, apply func(*models.Task) bool) (models.Task, error) {
	var out models.Task
	err := s.withLock(ctx, true, func() error {
		snap, err := s.load()
		if err != nil {
			return err
		}
		i := snap.index(id)
		if i < 0 {
			return models.NotFound(id)
		}
		e := snap.entries[i]
		if e.task == nil {
			return e.err
		}
		changed := apply(e.task)
		out = *e.task
		if !changed {
			return nil
		}
		return s.save(snap)
	})
	if err != nil {
		return models.Task{}, err
	}
	return out, nil
}

// withLock runs fn while holding the sidecar lock, shared or exclusive.
// The lock is released on every exit path.
func (s *FileStore) withLock(ctx context.Context, exclusive bool, fn func() error) error {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	fl := flock.New(s.lockPath)
	var (
		locked bool
		err    error
	)
	if exclusive {
		locked, err = fl.TryLockContext(lockCtx, s.retryDelay)
	} else {
		locked, err = fl.TryRLockContext(lockCtx, s.retryDelay)
	}
	if err != nil || !locked {
		_ = fl.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			err = errors.New("lock not acquired")
		}
		return fmt.Errorf("%w: lock %s: %w", models.ErrStorageUnavailable, s.lockPath, err)
	}
	defer func() {
		if err := fl.Unlock(); err != nil {
			logger.Error(ctx, "Release task file lock failed", "path", s.lockPath, "error", err)
		}
	}()
	return fn()
}

func (s *FileStore) load() (*snapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &snapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", models.ErrStorageUnavailable, s.path, err)
	}
	snap, err := s.format.decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", models.ErrCorruptStore, s.path, err)
	}
	return snap, nil
}

// save writes the document to a temp file and renames it into place.
func (s *FileStore) save(snap *snapshot) error {
	data, err := s.format.encode(snap)
	if err != nil {
		return fmt.Errorf("encode task document: %w", err)
	}
	dir, base := filepath.Split(s.path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, strings.TrimPrefix(base, ".")+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %w", models.ErrStorageUnavailable, err)
	}
	tmpPath := tmp.Name()
	ok := false
	defer func() {
		if !ok {
			_ = os.Remove(tmpPath)
		}
	}()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	ok = true
	return nil
}

func compareIDs(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
