package mcpserver

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskd/internal/models"
	"taskd/internal/repository"
	"taskd/internal/service"
)

var fixedNow = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

func newSession(t *testing.T) (*mcp.ClientSession, *service.Service) {
	t.Helper()
	fs := repository.NewFileStore(repository.FileOptions{Path: filepath.Join(t.TempDir(), "tasks.json")})
	require.NoError(t, fs.EnsureReady(context.Background()))
	svc := service.New(fs)

	server := New(svc, Options{Name: "taskd-test", Version: "test", Now: func() time.Time { return fixedNow }})
	clientTransport, serverTransport := mcp.NewInMemoryTransports()

	serverCtx, cancel := context.WithCancel(context.Background())
	serverSession, err := server.Connect(serverCtx, serverTransport, nil)
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "test"}, nil)
	session, err := client.Connect(context.Background(), clientTransport, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = session.Close()
		_ = serverSession.Close()
		cancel()
	})
	return session, svc
}

func callTool(t *testing.T, s *mcp.ClientSession, name string, args map[string]any) (string, bool) {
	t.Helper()
	res, err := s.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	var parts []string
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n"), res.IsError
}

func readJSON(t *testing.T, s *mcp.ClientSession, uri string, into any) {
	t.Helper()
	res, err := s.ReadResource(context.Background(), &mcp.ReadResourceParams{URI: uri})
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	assert.Equal(t, "application/json", res.Contents[0].MIMEType)
	require.NoError(t, json.Unmarshal([]byte(res.Contents[0].Text), into))
}

func promptText(t *testing.T, s *mcp.ClientSession, name string, args map[string]string) string {
	t.Helper()
	res, err := s.GetPrompt(context.Background(), &mcp.GetPromptParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
	tc, ok := res.Messages[0].Content.(*mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestListsEverything(t *testing.T) {
	s, _ := newSession(t)
	ctx := context.Background()

	tools, err := s.ListTools(ctx, nil)
	require.NoError(t, err)
	var toolNames []string
	for _, tool := range tools.Tools {
		toolNames = append(toolNames, tool.Name)
	}
	assert.ElementsMatch(t, []string{"add_task", "complete_task", "delete_task", "update_task_priority", "list_tasks"}, toolNames)

	resources, err := s.ListResources(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, resources.Resources, 4)

	templates, err := s.ListResourceTemplates(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, templates.ResourceTemplates, 2)

	prompts, err := s.ListPrompts(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, prompts.Prompts, 7)
}

func TestTools(t *testing.T) {
	s, _ := newSession(t)

	text, isErr := callTool(t, s, "add_task", map[string]any{"title": "Buy milk", "priority": "high"})
	require.False(t, isErr, text)
	assert.Equal(t, "✅ Added task [1]: 'Buy milk' (Priority: high)", text)

	text, isErr = callTool(t, s, "add_task", map[string]any{"title": "File taxes", "due_date": "2025-04-15"})
	require.False(t, isErr, text)

	text, _ = callTool(t, s, "list_tasks", map[string]any{})
	assert.Equal(t, "📋 All Tasks (2 total):\n⏳ 🟠 [1] Buy milk\n⏳ 🟡 [2] File taxes (Due: 2025-04-15)", text)

	text, isErr = callTool(t, s, "complete_task", map[string]any{"task_id": 1})
	require.False(t, isErr, text)
	assert.Equal(t, "🎉 Completed task: 'Buy milk'", text)

	text, _ = callTool(t, s, "update_task_priority", map[string]any{"task_id": 2, "priority": "urgent"})
	assert.Equal(t, "📝 Updated priority for 'File taxes' to urgent", text)

	text, _ = callTool(t, s, "list_tasks", map[string]any{"status": "completed"})
	assert.Equal(t, "📋 Completed Tasks (1 total):\n✅ 🟠 [1] Buy milk", text)

	text, _ = callTool(t, s, "list_tasks", map[string]any{"priority": "low"})
	assert.Equal(t, "📝 No low priority tasks found.", text)

	text, _ = callTool(t, s, "delete_task", map[string]any{"task_id": 1})
	assert.Equal(t, "🗑️ Deleted task 1", text)
}

func TestToolErrors(t *testing.T) {
	s, _ := newSession(t)

	text, isErr := callTool(t, s, "complete_task", map[string]any{"task_id": 2})
	assert.True(t, isErr)
	assert.Contains(t, text, "not found")

	text, isErr = callTool(t, s, "update_task_priority", map[string]any{"task_id": 1, "priority": "someday"})
	assert.True(t, isErr)
	assert.Contains(t, text, "priority must be one of")

	_, isErr = callTool(t, s, "list_tasks", map[string]any{"status": "archived"})
	assert.True(t, isErr)

	_, isErr = callTool(t, s, "add_task", map[string]any{"title": "  "})
	assert.True(t, isErr)
}

func TestResources(t *testing.T) {
	s, svc := newSession(t)
	ctx := context.Background()
	for _, in := range []service.AddTaskInput{
		{Title: "a", Priority: "urgent"},
		{Title: "b", Priority: "low"},
		{Title: "c", Priority: "urgent"},
	} {
		_, err := svc.AddTask(ctx, in)
		require.NoError(t, err)
	}
	_, err := svc.CompleteTask(ctx, 3)
	require.NoError(t, err)

	var all, pending, urgent []models.Task
	readJSON(t, s, "tasks://all", &all)
	assert.Len(t, all, 3)
	readJSON(t, s, "tasks://pending", &pending)
	assert.Len(t, pending, 2)
	readJSON(t, s, "tasks://priority/urgent", &urgent)
	require.Len(t, urgent, 2)
	assert.Equal(t, int64(1), urgent[0].ID)
	assert.Equal(t, int64(3), urgent[1].ID)

	var st models.Stats
	readJSON(t, s, "tasks://stats", &st)
	assert.Equal(t, 3, st.TotalTasks)
	assert.Equal(t, 33.3, st.CompletionRate)
	assert.Equal(t, 2, st.PriorityBreakdown[models.PriorityUrgent])

	var one models.Task
	readJSON(t, s, "tasks://task/2", &one)
	assert.Equal(t, "b", one.Title)

	_, err = s.ReadResource(ctx, &mcp.ReadResourceParams{URI: "tasks://task/99"})
	assert.Error(t, err)
	_, err = s.ReadResource(ctx, &mcp.ReadResourceParams{URI: "tasks://task/abc"})
	assert.Error(t, err)
	_, err = s.ReadResource(ctx, &mcp.ReadResourceParams{URI: "tasks://priority/someday"})
	assert.Error(t, err)
}

func TestArgumentPrompts(t *testing.T) {
	s, _ := newSession(t)

	text := promptText(t, s, "daily_planning_prompt", map[string]string{"pending_tasks": "- write report"})
	assert.Contains(t, text, "- write report")
	assert.Contains(t, text, "about 8 hours")

	text = promptText(t, s, "daily_planning_prompt", map[string]string{"pending_tasks": "x", "available_hours": "5"})
	assert.Contains(t, text, "about 5 hours")

	text = promptText(t, s, "task_breakdown_prompt", map[string]string{"complex_task": "Move house"})
	assert.Contains(t, text, `"Move house"`)

	text = promptText(t, s, "weekly_review_prompt", map[string]string{"completed_tasks": "shipped v1", "pending_tasks": "docs"})
	assert.Contains(t, text, "shipped v1")
	assert.Contains(t, text, "docs")

	text = promptText(t, s, "task_prioritization_prompt", map[string]string{"task_list": "1. a\n2. b"})
	assert.Contains(t, text, "1. a\n2. b")

	_, err := s.GetPrompt(context.Background(), &mcp.GetPromptParams{Name: "task_breakdown_prompt"})
	assert.Error(t, err)
}

func TestSmartPrompts(t *testing.T) {
	s, svc := newSession(t)
	ctx := context.Background()

	assert.Contains(t, promptText(t, s, "smart_daily_planning_prompt", nil), "no pending tasks")
	assert.Contains(t, promptText(t, s, "smart_prioritization_prompt", nil), "no pending tasks")
	assert.Contains(t, promptText(t, s, "overdue_tasks_prompt", nil), "Nothing overdue")

	for _, in := range []service.AddTaskInput{
		{Title: "low later", Priority: "low", DueDate: "2025-03-12"},
		{Title: "urgent undated", Priority: "urgent"},
		{Title: "urgent overdue", Priority: "urgent", DueDate: "2025-03-07"},
		{Title: "far away", Priority: "medium", DueDate: "2025-06-01"},
		{Title: "due today", Priority: "high", DueDate: "2025-03-10"},
	} {
		_, err := svc.AddTask(ctx, in)
		require.NoError(t, err)
	}

	daily := promptText(t, s, "smart_daily_planning_prompt", nil)
	iOverdue := strings.Index(daily, "urgent overdue")
	iUndated := strings.Index(daily, "urgent undated")
	iLow := strings.Index(daily, "low later")
	require.True(t, iOverdue >= 0 && iUndated >= 0 && iLow >= 0, daily)
	assert.Less(t, iOverdue, iUndated, "dated tasks sort before undated at equal priority")
	assert.Less(t, iUndated, iLow)

	prio := promptText(t, s, "smart_prioritization_prompt", nil)
	assert.Contains(t, prio, "Pending tasks: 5")
	assert.Contains(t, prio, "🔴 Urgent: 2 tasks")
	assert.Contains(t, prio, "| Priority: high | Due: 2025-03-10 | Created: ")

	overdue := promptText(t, s, "overdue_tasks_prompt", nil)
	assert.Contains(t, overdue, "🔴 [3] urgent overdue - 3 days overdue")
	assert.Contains(t, overdue, "🟠 [5] due today - Due today")
	assert.Contains(t, overdue, "🔵 [1] low later - Due in 2 days")
	assert.NotContains(t, overdue, "far away")
}
