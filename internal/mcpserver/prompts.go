package mcpserver

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"taskd/internal/models"
	"taskd/internal/service"
)

// dueSoonDays is how far ahead overdue_tasks_prompt looks.
const dueSoonDays = 3

//go:embed prompts/*.tmpl
var promptFS embed.FS

var promptTemplates = template.Must(template.New("prompts").Funcs(template.FuncMap{
	"plainLine":  plainLine,
	"detailLine": detailLine,
}).ParseFS(promptFS, "prompts/*.tmpl"))

type promptBuilder struct {
	svc *service.Service
	now func() time.Time
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := promptTemplates.ExecuteTemplate(&buf, name+".tmpl", data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func promptResult(desc, text string) *mcp.GetPromptResult {
	return &mcp.GetPromptResult{
		Description: desc,
		Messages: []*mcp.PromptMessage{
			{Role: "user", Content: &mcp.TextContent{Text: text}},
		},
	}
}

func requiredArg(req *mcp.GetPromptRequest, name string) (string, error) {
	v := strings.TrimSpace(req.Params.Arguments[name])
	if v == "" {
		return "", fmt.Errorf("%w: argument %q is required", models.ErrInvalidArgument, name)
	}
	return v, nil
}

// templatePrompt registers a prompt that only fills caller arguments into a template.
func templatePrompt(s *mcp.Server, p *mcp.Prompt, tmpl string, data func(*mcp.GetPromptRequest) (any, error)) {
	s.AddPrompt(p, func(_ context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		d, err := data(req)
		if err != nil {
			return nil, err
		}
		text, err := render(tmpl, d)
		if err != nil {
			return nil, err
		}
		return promptResult(p.Description, text), nil
	})
}

func registerPrompts(s *mcp.Server, b *promptBuilder) {
	templatePrompt(s, &mcp.Prompt{
		Name:        "task_prioritization_prompt",
		Description: "Ask for help prioritizing a list of tasks.",
		Arguments:   []*mcp.PromptArgument{{Name: "task_list", Description: "the tasks to prioritize", Required: true}},
	}, "prioritization", func(req *mcp.GetPromptRequest) (any, error) {
		list, err := requiredArg(req, "task_list")
		return map[string]any{"TaskList": list}, err
	})

	templatePrompt(s, &mcp.Prompt{
		Name:        "daily_planning_prompt",
		Description: "Ask for a daily plan for the given pending tasks.",
		Arguments: []*mcp.PromptArgument{
			{Name: "pending_tasks", Description: "the pending tasks", Required: true},
			{Name: "available_hours", Description: "hours available today (default 8)"},
		},
	}, "daily_planning", func(req *mcp.GetPromptRequest) (any, error) {
		pending, err := requiredArg(req, "pending_tasks")
		if err != nil {
			return nil, err
		}
		hours := 8
		if raw := strings.TrimSpace(req.Params.Arguments["available_hours"]); raw != "" {
			hours, err = strconv.Atoi(raw)
			if err != nil || hours <= 0 {
				return nil, fmt.Errorf("%w: available_hours must be a positive integer", models.ErrInvalidArgument)
			}
		}
		return map[string]any{"PendingTasks": pending, "AvailableHours": hours}, nil
	})

	templatePrompt(s, &mcp.Prompt{
		Name:        "task_breakdown_prompt",
		Description: "Ask for a complex task to be broken into steps.",
		Arguments:   []*mcp.PromptArgument{{Name: "complex_task", Description: "the task to break down", Required: true}},
	}, "breakdown", func(req *mcp.GetPromptRequest) (any, error) {
		task, err := requiredArg(req, "complex_task")
		return map[string]any{"ComplexTask": task}, err
	})

	templatePrompt(s, &mcp.Prompt{
		Name:        "weekly_review_prompt",
		Description: "Ask for a weekly review of completed and pending work.",
		Arguments: []*mcp.PromptArgument{
			{Name: "completed_tasks", Description: "what was completed this week", Required: true},
			{Name: "pending_tasks", Description: "what is still pending", Required: true},
		},
	}, "weekly_review", func(req *mcp.GetPromptRequest) (any, error) {
		done, err := requiredArg(req, "completed_tasks")
		if err != nil {
			return nil, err
		}
		pending, err := requiredArg(req, "pending_tasks")
		return map[string]any{"CompletedTasks": done, "PendingTasks": pending}, err
	})

	s.AddPrompt(&mcp.Prompt{
		Name:        "smart_daily_planning_prompt",
		Description: "Daily planning prompt built from the stored pending tasks.",
	}, b.smartDailyPlanning)

	s.AddPrompt(&mcp.Prompt{
		Name:        "smart_prioritization_prompt",
		Description: "Prioritization prompt built from stored tasks and statistics.",
	}, b.smartPrioritization)

	s.AddPrompt(&mcp.Prompt{
		Name:        "overdue_tasks_prompt",
		Description: "Action plan prompt for overdue tasks and tasks due within three days.",
	}, b.overdueTasks)
}

func (b *promptBuilder) smartDailyPlanning(ctx context.Context, _ *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	pending, err := b.svc.ListTasks(ctx, models.PendingTasks())
	if err != nil {
		return nil, err
	}
	text, err := render("smart_daily_planning", map[string]any{"Tasks": planningOrder(pending)})
	if err != nil {
		return nil, err
	}
	return promptResult("Smart daily planning", text), nil
}

type priorityCount struct {
	Icon  string
	Label string
	Count int
}

func (b *promptBuilder) smartPrioritization(ctx context.Context, _ *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	all, err := b.svc.ListTasks(ctx, models.AllTasks())
	if err != nil {
		return nil, err
	}
	var pending []models.Task
	counts := map[models.Priority]int{}
	for _, t := range all {
		if !t.Completed {
			pending = append(pending, t)
			counts[t.Priority]++
		}
	}
	var breakdown []priorityCount
	for _, p := range []models.Priority{models.PriorityUrgent, models.PriorityHigh, models.PriorityMedium, models.PriorityLow} {
		if counts[p] > 0 {
			breakdown = append(breakdown, priorityCount{Icon: priorityIcon(p), Label: titleCase(string(p)), Count: counts[p]})
		}
	}
	text, err := render("smart_prioritization", map[string]any{
		"Tasks":     pending,
		"Stats":     models.ComputeStats(all),
		"Breakdown": breakdown,
	})
	if err != nil {
		return nil, err
	}
	return promptResult("Smart prioritization", text), nil
}

type deadline struct {
	Task models.Task
	Icon string
	Days int
}

func (b *promptBuilder) overdueTasks(ctx context.Context, _ *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	pending, err := b.svc.ListTasks(ctx, models.PendingTasks())
	if err != nil {
		return nil, err
	}
	today := calendarDay(b.now())
	var overdue, soon []deadline
	for _, t := range pending {
		if t.DueDate == nil {
			continue
		}
		days := daysBetween(today, *t.DueDate)
		switch {
		case days < 0:
			overdue = append(overdue, deadline{Task: t, Icon: priorityIcon(t.Priority), Days: -days})
		case days <= dueSoonDays:
			soon = append(soon, deadline{Task: t, Icon: priorityIcon(t.Priority), Days: days})
		}
	}
	text, err := render("overdue", map[string]any{"Overdue": overdue, "Soon": soon, "Window": dueSoonDays})
	if err != nil {
		return nil, err
	}
	return promptResult("Deadline management", text), nil
}
