package models

import (
	"fmt"
	"strconv"
	"strings"
)

// FilterKind selects which tasks a list operation returns.
type FilterKind int

const (
	FilterAll FilterKind = iota
	FilterPending
	FilterCompleted
	FilterPriority
	FilterID
)

// Filter narrows a list operation. Priority is used with FilterPriority,
// ID with FilterID.
type Filter struct {
	Kind     FilterKind
	Priority Priority
	ID       int64
}

func AllTasks() Filter       { return Filter{Kind: FilterAll} }
func PendingTasks() Filter   { return Filter{Kind: FilterPending} }
func CompletedTasks() Filter { return Filter{Kind: FilterCompleted} }

// ByPriority filters on p. p must be valid; use ParsePriority first.
func ByPriority(p Priority) Filter { return Filter{Kind: FilterPriority, Priority: p} }

// ByID selects a single task.
func ByID(id int64) Filter { return Filter{Kind: FilterID, ID: id} }

// ParseStatusFilter maps the status words all, pending and completed.
func ParseStatusFilter(status string) (Filter, error) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "", "all":
		return AllTasks(), nil
	case "pending":
		return PendingTasks(), nil
	case "completed":
		return CompletedTasks(), nil
	default:
		return Filter{}, fmt.Errorf("%w: status must be one of: all, pending, completed (got %q)", ErrInvalidArgument, status)
	}
}

// Validate rejects filters that could only ever match nothing by accident.
func (f Filter) Validate() error {
	switch f.Kind {
	case FilterAll, FilterPending, FilterCompleted:
		return nil
	case FilterPriority:
		if !f.Priority.Valid() {
			return fmt.Errorf("%w: unknown priority %q", ErrInvalidArgument, f.Priority)
		}
		return nil
	case FilterID:
		if f.ID <= 0 {
			return fmt.Errorf("%w: task id must be positive", ErrInvalidArgument)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown filter", ErrInvalidArgument)
	}
}

// Match reports whether t passes the filter.
func (f Filter) Match(t Task) bool {
	switch f.Kind {
	case FilterPending:
		return !t.Completed
	case FilterCompleted:
		return t.Completed
	case FilterPriority:
		return t.Priority == f.Priority
	case FilterID:
		return t.ID == f.ID
	default:
		return true
	}
}

// String is a stable name for the filter, used in cache keys and logs.
func (f Filter) String() string {
	switch f.Kind {
	case FilterPending:
		return "pending"
	case FilterCompleted:
		return "completed"
	case FilterPriority:
		return "priority:" + string(f.Priority)
	case FilterID:
		return "id:" + strconv.FormatInt(f.ID, 10)
	default:
		return "all"
	}
}
