package mcpserver

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"taskd/internal/models"
)

var priorityIcons = map[models.Priority]string{
	models.PriorityLow:    "🔵",
	models.PriorityMedium: "🟡",
	models.PriorityHigh:   "🟠",
	models.PriorityUrgent: "🔴",
}

func priorityIcon(p models.Priority) string {
	if icon, ok := priorityIcons[p]; ok {
		return icon
	}
	return "⚪"
}

func statusIcon(t models.Task) string {
	if t.Completed {
		return "✅"
	}
	return "⏳"
}

func dueSuffix(t models.Task, format string) string {
	if t.DueDate == nil {
		return ""
	}
	return fmt.Sprintf(format, models.FormatDate(*t.DueDate))
}

// taskLine renders "⏳ 🟠 [3] Title (Due: 2024-06-01)".
func taskLine(t models.Task) string {
	return fmt.Sprintf("%s %s [%d] %s%s", statusIcon(t), priorityIcon(t.Priority), t.ID, t.Title, dueSuffix(t, " (Due: %s)"))
}

// plainLine renders a task without the status marker, for pending lists.
func plainLine(t models.Task) string {
	return fmt.Sprintf("%s [%d] %s%s", priorityIcon(t.Priority), t.ID, t.Title, dueSuffix(t, " (Due: %s)"))
}

// detailLine adds priority and creation date.
func detailLine(t models.Task) string {
	return fmt.Sprintf("%s [%d] %s | Priority: %s%s | Created: %s",
		priorityIcon(t.Priority), t.ID, t.Title, t.Priority, dueSuffix(t, " | Due: %s"), models.FormatDate(t.Created))
}

func formatList(label string, tasks []models.Task) string {
	if len(tasks) == 0 {
		return fmt.Sprintf("📝 No %s tasks found.", strings.ToLower(label))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📋 %s Tasks (%d total):\n", titleCase(label), len(tasks))
	for i, t := range tasks {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(taskLine(t))
	}
	return b.String()
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// planningOrder sorts pending work most pressing first: priority, then
// tasks with a due date before those without, then earliest due date.
func planningOrder(tasks []models.Task) []models.Task {
	out := slices.Clone(tasks)
	slices.SortStableFunc(out, func(a, b models.Task) int {
		if d := a.Priority.Rank() - b.Priority.Rank(); d != 0 {
			return d
		}
		switch {
		case a.DueDate == nil && b.DueDate == nil:
			return 0
		case a.DueDate == nil:
			return 1
		case b.DueDate == nil:
			return -1
		}
		return a.DueDate.Compare(*b.DueDate)
	})
	return out
}

// calendarDay returns midnight UTC of t's local calendar date, comparable
// with stored due dates.
func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}
