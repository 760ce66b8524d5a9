package service

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"taskd/internal/models"
	"taskd/internal/repository"
	"taskd/pkg/logger"
)

// Cache holds list results keyed by filter.
type Cache interface {
	GetTasks(ctx context.Context, key string) ([]models.Task, bool)
	SetTasks(ctx context.Context, key string, tasks []models.Task)
	Invalidate(ctx context.Context)
}

// Publisher receives one event per successful mutation.
type Publisher interface {
	Publish(ctx context.Context, ev models.TaskEvent) error
}

// Service implements the task verbs on top of the bound store. Every verb
// validates its arguments before the store is touched.
type Service struct {
	store  repository.Store
	cache  Cache
	events Publisher
	reads  singleflight.Group
	// generation advances after every mutation; reads started earlier
	// neither serve later callers nor fill the cache.
	generation atomic.Uint64
}

type Option func(*Service)

// WithCache enables the list cache.
func WithCache(c Cache) Option { return func(s *Service) { s.cache = c } }

// WithPublisher enables the event feed.
func WithPublisher(p Publisher) Option { return func(s *Service) { s.events = p } }

func New(store repository.Store, opts ...Option) *Service {
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddTaskInput is the caller-supplied data for a new task. Priority and
// DueDate may be empty.
type AddTaskInput struct {
	Title    string `json:"title"`
	Priority string `json:"priority"`
	DueDate  string `json:"due_date"`
}

func (s *Service) AddTask(ctx context.Context, in AddTaskInput) (models.Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return models.Task{}, fmt.Errorf("%w: title must not be empty", models.ErrInvalidArgument)
	}
	p, err := models.ParsePriority(in.Priority)
	if err != nil {
		return models.Task{}, err
	}
	due, err := models.ParseDueDate(in.DueDate)
	if err != nil {
		return models.Task{}, err
	}
	t, err := s.store.Add(ctx, models.NewTask{Title: title, Priority: p, DueDate: due})
	if err != nil {
		return models.Task{}, err
	}
	s.afterMutation(ctx, models.EventCreated, t.ID, &t)
	return t, nil
}

// ListTasks returns the tasks matching f in ascending id order.
func (s *Service) ListTasks(ctx context.Context, f models.Filter) ([]models.Task, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	key := f.String()
	if s.cache != nil {
		if tasks, ok := s.cache.GetTasks(ctx, key); ok {
			return tasks, nil
		}
	}
	gen := s.generation.Load()
	v, err, _ := s.reads.Do(key+"@"+strconv.FormatUint(gen, 10), func() (any, error) {
		shared := context.WithoutCancel(ctx)
		tasks, err := s.store.List(shared, f)
		if err != nil {
			return nil, err
		}
		if s.cache != nil && s.generation.Load() == gen {
			s.cache.SetTasks(shared, key, tasks)
			if s.generation.Load() != gen {
				s.cache.Invalidate(shared)
			}
		}
		return tasks, nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]models.Task)), nil
}

// GetTask returns a single task.
func (s *Service) GetTask(ctx context.Context, id int64) (models.Task, error) {
	if err := validateID(id); err != nil {
		return models.Task{}, err
	}
	tasks, err := s.ListTasks(ctx, models.ByID(id))
	if err != nil {
		return models.Task{}, err
	}
	if len(tasks) == 0 {
		return models.Task{}, models.NotFound(id)
	}
	return tasks[0], nil
}

func (s *Service) CompleteTask(ctx context.Context, id int64) (models.Task, error) {
	if err := validateID(id); err != nil {
		return models.Task{}, err
	}
	t, err := s.store.Complete(ctx, id)
	if err != nil {
		return models.Task{}, err
	}
	s.afterMutation(ctx, models.EventCompleted, id, &t)
	return t, nil
}

func (s *Service) UpdateTaskPriority(ctx context.Context, id int64, priority string) (models.Task, error) {
	if err := validateID(id); err != nil {
		return models.Task{}, err
	}
	if strings.TrimSpace(priority) == "" {
		return models.Task{}, fmt.Errorf("%w: priority is required", models.ErrInvalidArgument)
	}
	p, err := models.ParsePriority(priority)
	if err != nil {
		return models.Task{}, err
	}
	t, err := s.store.UpdatePriority(ctx, id, p)
	if err != nil {
		return models.Task{}, err
	}
	s.afterMutation(ctx, models.EventPriorityChanged, id, &t)
	return t, nil
}

func (s *Service) DeleteTask(ctx context.Context, id int64) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.afterMutation(ctx, models.EventDeleted, id, nil)
	return nil
}

// Stats summarises every readable task.
func (s *Service) Stats(ctx context.Context) (models.Stats, error) {
	tasks, err := s.ListTasks(ctx, models.AllTasks())
	if err != nil {
		return models.Stats{}, err
	}
	return models.ComputeStats(tasks), nil
}

// Ping reports whether the bound store can serve requests.
func (s *Service) Ping(ctx context.Context) error {
	if p, ok := s.store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return s.store.EnsureReady(ctx)
}

// afterMutation drops cached lists and emits the event. Neither step can
// fail the mutation that already happened.
func (s *Service) afterMutation(ctx context.Context, kind string, id int64, t *models.Task) {
	s.generation.Add(1)
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
	if s.events == nil {
		return
	}
	ev := models.TaskEvent{Type: kind, TaskID: id, Task: t, At: models.Now()}
	if err := s.events.Publish(ctx, ev); err != nil {
		logger.Warn(ctx, "Publish task event failed", "type", kind, "id", id, "error", err)
	}
}

func validateID(id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: task id must be positive", models.ErrInvalidArgument)
	}
	return nil
}

// ParseListFilter maps the status and priority query words onto a Filter.
// A priority takes precedence over a status.
func ParseListFilter(status, priority string) (models.Filter, error) {
	if strings.TrimSpace(priority) != "" {
		p, err := models.ParsePriority(priority)
		if err != nil {
			return models.Filter{}, err
		}
		return models.ByPriority(p), nil
	}
	return models.ParseStatusFilter(status)
}
