package mcpserver

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"taskd/internal/models"
	"taskd/internal/service"
)

type addTaskArgs struct {
	Title    string `json:"title" jsonschema:"short description of the task"`
	Priority string `json:"priority,omitempty" jsonschema:"low, medium, high or urgent; defaults to medium"`
	DueDate  string `json:"due_date,omitempty" jsonschema:"due date as YYYY-MM-DD"`
}

type taskIDArgs struct {
	TaskID int64 `json:"task_id" jsonschema:"id of the task"`
}

type updatePriorityArgs struct {
	TaskID   int64  `json:"task_id" jsonschema:"id of the task"`
	Priority string `json:"priority" jsonschema:"low, medium, high or urgent"`
}

type listTasksArgs struct {
	Status   string `json:"status,omitempty" jsonschema:"all, pending or completed; defaults to all"`
	Priority string `json:"priority,omitempty" jsonschema:"only tasks with this priority"`
}

func textResult(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}}}
}

func registerTools(s *mcp.Server, svc *service.Service) {
	mcp.AddTool(s, &mcp.Tool{
		Name:        "add_task",
		Description: "Add a new task to the todo list.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in addTaskArgs) (*mcp.CallToolResult, any, error) {
		t, err := svc.AddTask(ctx, service.AddTaskInput{Title: in.Title, Priority: in.Priority, DueDate: in.DueDate})
		if err != nil {
			return nil, nil, err
		}
		return textResult("✅ Added task [%d]: '%s' (Priority: %s)", t.ID, t.Title, t.Priority), nil, nil
	})

	mcp.AddTool(s, &mcp.Tool{
		Name:        "complete_task",
		Description: "Mark a task as completed.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in taskIDArgs) (*mcp.CallToolResult, any, error) {
		t, err := svc.CompleteTask(ctx, in.TaskID)
		if err != nil {
			return nil, nil, err
		}
		return textResult("🎉 Completed task: '%s'", t.Title), nil, nil
	})

	mcp.AddTool(s, &mcp.Tool{
		Name:        "delete_task",
		Description: "Delete a task from the todo list.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in taskIDArgs) (*mcp.CallToolResult, any, error) {
		if err := svc.DeleteTask(ctx, in.TaskID); err != nil {
			return nil, nil, err
		}
		return textResult("🗑️ Deleted task %d", in.TaskID), nil, nil
	})

	mcp.AddTool(s, &mcp.Tool{
		Name:        "update_task_priority",
		Description: "Update the priority of a task.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in updatePriorityArgs) (*mcp.CallToolResult, any, error) {
		t, err := svc.UpdateTaskPriority(ctx, in.TaskID, in.Priority)
		if err != nil {
			return nil, nil, err
		}
		return textResult("📝 Updated priority for '%s' to %s", t.Title, t.Priority), nil, nil
	})

	mcp.AddTool(s, &mcp.Tool{
		Name:        "list_tasks",
		Description: "List tasks, optionally filtered by status or priority.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in listTasksArgs) (*mcp.CallToolResult, any, error) {
		f, err := service.ParseListFilter(in.Status, in.Priority)
		if err != nil {
			return nil, nil, err
		}
		tasks, err := svc.ListTasks(ctx, f)
		if err != nil {
			return nil, nil, err
		}
		return textResult("%s", formatList(listLabel(f), tasks)), nil, nil
	})
}

func listLabel(f models.Filter) string {
	if f.Kind == models.FilterPriority {
		return string(f.Priority) + " priority"
	}
	return f.String()
}
