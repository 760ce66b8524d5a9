package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Canonical text layouts for dates crossing a serialization boundary.
const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = time.RFC3339Nano
)

// legacyDateTimeLayout is the naive form written by older task files.
const legacyDateTimeLayout = "2006-01-02T15:04:05.999999999"

// Record is the serialized form of a Task.
type Record struct {
	ID          int64   `json:"id" yaml:"id"`
	Title       string  `json:"title" yaml:"title"`
	Priority    string  `json:"priority" yaml:"priority"`
	DueDate     *string `json:"due_date" yaml:"due_date"`
	Created     string  `json:"created" yaml:"created"`
	Completed   bool    `json:"completed" yaml:"completed"`
	CompletedAt *string `json:"completed_at" yaml:"completed_at"`
}

// Encode converts t to its canonical record.
func Encode(t Task) Record {
	r := Record{
		ID:        t.ID,
		Title:     t.Title,
		Priority:  string(t.Priority),
		Created:   FormatDateTime(t.Created),
		Completed: t.Completed,
	}
	if t.DueDate != nil {
		s := FormatDate(*t.DueDate)
		r.DueDate = &s
	}
	if t.CompletedAt != nil {
		s := FormatDateTime(*t.CompletedAt)
		r.CompletedAt = &s
	}
	return r
}

// Decode converts r back into a Task, returning a *MalformedRecordError
// when a required field is missing or a date does not parse.
func Decode(r Record) (Task, error) {
	t := Task{ID: r.ID, Completed: r.Completed}
	if r.ID <= 0 {
		return Task{}, &MalformedRecordError{ID: r.ID, Field: "id", Err: errors.New("must be positive")}
	}
	if strings.TrimSpace(r.Title) == "" {
		return Task{}, &MalformedRecordError{ID: r.ID, Field: "title", Err: errors.New("empty")}
	}
	t.Title = r.Title

	p := Priority(r.Priority)
	if !p.Valid() {
		return Task{}, &MalformedRecordError{ID: r.ID, Field: "priority", Err: fmt.Errorf("unknown value %q", r.Priority)}
	}
	t.Priority = p

	if r.Created == "" {
		return Task{}, &MalformedRecordError{ID: r.ID, Field: "created", Err: errors.New("missing")}
	}
	created, err := ParseDateTime(r.Created)
	if err != nil {
		return Task{}, &MalformedRecordError{ID: r.ID, Field: "created", Err: err}
	}
	t.Created = created

	if r.DueDate != nil && *r.DueDate != "" {
		due, err := ParseDate(*r.DueDate)
		if err != nil {
			return Task{}, &MalformedRecordError{ID: r.ID, Field: "due_date", Err: err}
		}
		t.DueDate = &due
	}

	if r.CompletedAt != nil && *r.CompletedAt != "" {
		at, err := ParseDateTime(*r.CompletedAt)
		if err != nil {
			return Task{}, &MalformedRecordError{ID: r.ID, Field: "completed_at", Err: err}
		}
		t.CompletedAt = &at
	}
	if t.Completed != (t.CompletedAt != nil) {
		return Task{}, &MalformedRecordError{ID: r.ID, Field: "completed_at", Err: errors.New("must be set exactly when completed")}
	}
	return t, nil
}

// Now returns the current time in canonical precision.
func Now() time.Time {
	return CanonicalTime(time.Now())
}

// CanonicalTime normalises t to UTC with microsecond precision, the finest
// precision both backends store.
func CanonicalTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// FormatDate renders a due date.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// FormatDateTime renders a timestamp.
func FormatDateTime(t time.Time) string {
	return CanonicalTime(t).Format(DateTimeLayout)
}

// ParseDate accepts YYYY-MM-DD or a full timestamp and returns midnight UTC
// of that calendar date.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if d, err := time.Parse(DateLayout, s); err == nil {
		return d, nil
	}
	ts, err := ParseDateTime(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC), nil
}

// ParseDateTime accepts RFC 3339 or the legacy naive form (read as UTC).
func ParseDateTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if ts, err := time.Parse(DateTimeLayout, s); err == nil {
		return CanonicalTime(ts), nil
	}
	ts, err := time.Parse(legacyDateTimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid datetime %q", s)
	}
	return CanonicalTime(ts), nil
}

// ParseDueDate validates caller input; empty means no due date.
func ParseDueDate(s string) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	d, err := ParseDate(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return &d, nil
}
