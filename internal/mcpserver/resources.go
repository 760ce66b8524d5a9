package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"taskd/internal/models"
	"taskd/internal/service"
)

const jsonMIME = "application/json"

func jsonContents(uri string, v any) (*mcp.ReadResourceResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", uri, err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{URI: uri, MIMEType: jsonMIME, Text: string(b)}},
	}, nil
}

func listResource(svc *service.Service, f models.Filter) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		tasks, err := svc.ListTasks(ctx, f)
		if err != nil {
			return nil, err
		}
		return jsonContents(req.Params.URI, tasks)
	}
}

func registerResources(s *mcp.Server, svc *service.Service) {
	fixed := []struct {
		uri, name, desc string
		filter          models.Filter
	}{
		{"tasks://all", "all_tasks", "Every task in the todo list.", models.AllTasks()},
		{"tasks://pending", "pending_tasks", "Tasks not yet completed.", models.PendingTasks()},
		{"tasks://completed", "completed_tasks", "Completed tasks.", models.CompletedTasks()},
	}
	for _, r := range fixed {
		s.AddResource(&mcp.Resource{URI: r.uri, Name: r.name, Description: r.desc, MIMEType: jsonMIME}, listResource(svc, r.filter))
	}

	s.AddResource(&mcp.Resource{
		URI:         "tasks://stats",
		Name:        "task_statistics",
		Description: "Counts by status and priority plus the completion rate.",
		MIMEType:    jsonMIME,
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		st, err := svc.Stats(ctx)
		if err != nil {
			return nil, err
		}
		return jsonContents(req.Params.URI, st)
	})

	s.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "tasks://priority/{priority}",
		Name:        "tasks_by_priority",
		Description: "Tasks with the given priority (low, medium, high, urgent).",
		MIMEType:    jsonMIME,
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		p, err := models.ParsePriority(strings.TrimPrefix(req.Params.URI, "tasks://priority/"))
		if err != nil {
			return nil, err
		}
		return listResource(svc, models.ByPriority(p))(ctx, req)
	})

	s.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "tasks://task/{task_id}",
		Name:        "task_details",
		Description: "A single task by id.",
		MIMEType:    jsonMIME,
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		raw := strings.TrimPrefix(req.Params.URI, "tasks://task/")
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid task id format %q, task id must be a number", models.ErrInvalidArgument, raw)
		}
		t, err := svc.GetTask(ctx, id)
		if errors.Is(err, models.ErrNotFound) {
			return nil, mcp.ResourceNotFoundError(req.Params.URI)
		}
		if err != nil {
			return nil, err
		}
		return jsonContents(req.Params.URI, t)
	})
}
