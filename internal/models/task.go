package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Priority is the urgency level of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Priorities lists every valid priority, lowest first.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

// ParsePriority validates s. An empty string yields the default (medium).
func ParsePriority(s string) (Priority, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return PriorityMedium, nil
	}
	for _, p := range Priorities {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: priority must be one of: low, medium, high, urgent (got %q)", ErrInvalidArgument, s)
}

// Valid reports whether p is one of the enumerated priorities.
func (p Priority) Valid() bool {
	for _, v := range Priorities {
		if v == p {
			return true
		}
	}
	return false
}

// Rank orders priorities for planning, most pressing first (urgent=0).
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// Task represents a todo item.
type Task struct {
	ID          int64
	Title       string
	Priority    Priority
	DueDate     *time.Time // date only, midnight UTC
	Created     time.Time
	Completed   bool
	CompletedAt *time.Time
}

// NewTask carries the caller-supplied fields of a task that has no id yet.
type NewTask struct {
	Title    string
	Priority Priority
	DueDate  *time.Time
	Created  time.Time
}

// MarshalJSON writes the canonical record form.
func (t Task) MarshalJSON() ([]byte, error) {
	return json.Marshal(Encode(t))
}

// UnmarshalJSON reads the canonical record form.
func (t *Task) UnmarshalJSON(b []byte) error {
	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		return err
	}
	decoded, err := Decode(r)
	if err != nil {
		return err
	}
	*t = decoded
	return nil
}

// Stats summarises a task collection.
type Stats struct {
	TotalTasks        int              `json:"total_tasks"`
	CompletedTasks    int              `json:"completed_tasks"`
	PendingTasks      int              `json:"pending_tasks"`
	CompletionRate    float64          `json:"completion_rate"`
	PriorityBreakdown map[Priority]int `json:"priority_breakdown"`
}

// ComputeStats counts tasks by status and priority.
func ComputeStats(tasks []Task) Stats {
	s := Stats{PriorityBreakdown: map[Priority]int{}}
	for _, t := range tasks {
		s.TotalTasks++
		if t.Completed {
			s.CompletedTasks++
		}
		s.PriorityBreakdown[t.Priority]++
	}
	s.PendingTasks = s.TotalTasks - s.CompletedTasks
	if s.TotalTasks > 0 {
		rate := float64(s.CompletedTasks) / float64(s.TotalTasks) * 100
		s.CompletionRate = float64(int64(rate*10+0.5)) / 10
	}
	return s
}

// Event types published after a successful mutation.
const (
	EventCreated         = "created"
	EventCompleted       = "completed"
	EventDeleted         = "deleted"
	EventPriorityChanged = "priority_changed"
)

// TaskEvent is the message payload for the Kafka event feed.
type TaskEvent struct {
	Type   string    `json:"type"`
	TaskID int64     `json:"task_id"`
	Task   *Task     `json:"task,omitempty"`
	At     time.Time `json:"at"`
}

// Command actions accepted by the worker.
const (
	ActionAdd            = "add"
	ActionComplete       = "complete"
	ActionDelete         = "delete"
	ActionUpdatePriority = "update_priority"
)

// TaskCommand is the message payload read by the command worker.
type TaskCommand struct {
	Action   string `json:"action"` // add, complete, delete, update_priority
	ID       int64  `json:"id,omitempty"`
	Title    string `json:"title,omitempty"`
	Priority string `json:"priority,omitempty"`
	DueDate  string `json:"due_date,omitempty"`
}
