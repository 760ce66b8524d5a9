package repository

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"taskd/internal/models"
)

// entry is one element of the stored task list. Malformed elements keep
// their raw form so a rewrite never drops them.
type entry struct {
	id   int64
	task *models.Task
	raw  any // json.RawMessage or *yaml.Node when task is nil
	err  error
}

// snapshot is the decoded document.
type snapshot struct {
	lastID  int64 // largest id ever issued: stored next_id or any loaded id
	entries []entry
}

// raiseLastID folds the loaded ids, malformed ones included, into lastID so
// deleting the top entry of a legacy or stale document cannot lower it.
func (s *snapshot) raiseLastID() {
	for _, e := range s.entries {
		s.lastID = max(s.lastID, e.id)
	}
}

func (s *snapshot) nextID() int64 {
	tasks := make([]models.Task, 0, len(s.entries))
	for _, e := range s.entries {
		tasks = append(tasks, models.Task{ID: e.id})
	}
	return nextID(tasks, s.lastID)
}

func (s *snapshot) index(id int64) int {
	for i, e := range s.entries {
		if e.id == id {
			return i
		}
	}
	return -1
}

type documentFormat interface {
	decode(data []byte) (*snapshot, error)
	encode(s *snapshot) ([]byte, error)
}

func formatFor(path string) documentFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yamlFormat{}
	default:
		return jsonFormat{}
	}
}

// jsonFormat reads {"next_id": N, "tasks": [...]} and the legacy bare array.
type jsonFormat struct{}

type jsonDocument struct {
	NextID int64             `json:"next_id"`
	Tasks  []json.RawMessage `json:"tasks"`
}

func (jsonFormat) decode(data []byte) (*snapshot, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return &snapshot{}, nil
	}
	var doc jsonDocument
	if data[0] == '[' {
		if err := json.Unmarshal(data, &doc.Tasks); err != nil {
			return nil, err
		}
	} else {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil, err
		}
		tasks, ok := fields["tasks"]
		if !ok {
			return nil, errors.New(`document has no "tasks" list`)
		}
		if err := json.Unmarshal(tasks, &doc.Tasks); err != nil {
			return nil, fmt.Errorf("tasks: %w", err)
		}
		if next, ok := fields["next_id"]; ok {
			if err := json.Unmarshal(next, &doc.NextID); err != nil {
				return nil, fmt.Errorf("next_id: %w", err)
			}
		}
	}

	snap := &snapshot{lastID: max(doc.NextID-1, 0)}
	for _, raw := range doc.Tasks {
		var rec models.Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			var probe struct {
				ID int64 `json:"id"`
			}
			_ = json.Unmarshal(raw, &probe)
			snap.entries = append(snap.entries, entry{
				id:  probe.ID,
				raw: raw,
				err: &models.MalformedRecordError{ID: probe.ID, Field: "record", Err: err},
			})
			continue
		}
		snap.entries = append(snap.entries, decodeEntry(rec, raw))
	}
	snap.raiseLastID()
	return snap, nil
}

func (jsonFormat) encode(s *snapshot) ([]byte, error) {
	doc := jsonDocument{NextID: s.nextID(), Tasks: make([]json.RawMessage, 0, len(s.entries))}
	for _, e := range s.entries {
		if e.task == nil {
			doc.Tasks = append(doc.Tasks, e.raw.(json.RawMessage))
			continue
		}
		b, err := json.Marshal(models.Encode(*e.task))
		if err != nil {
			return nil, err
		}
		doc.Tasks = append(doc.Tasks, b)
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

// yamlFormat mirrors jsonFormat: a next_id/tasks mapping or a bare sequence.
type yamlFormat struct{}

type yamlDocument struct {
	NextID int64 `yaml:"next_id"`
	Tasks  []any `yaml:"tasks"`
}

func (yamlFormat) decode(data []byte) (*snapshot, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		return &snapshot{}, nil
	}
	top := root.Content[0]
	snap := &snapshot{}
	var items []*yaml.Node
	switch top.Kind {
	case yaml.SequenceNode:
		items = top.Content
	case yaml.MappingNode:
		hasTasks := false
		for i := 0; i+1 < len(top.Content); i += 2 {
			key, val := top.Content[i], top.Content[i+1]
			switch key.Value {
			case "next_id":
				var next int64
				if err := val.Decode(&next); err != nil {
					return nil, fmt.Errorf("next_id: %w", err)
				}
				snap.lastID = max(next-1, 0)
			case "tasks":
				if val.Kind != yaml.SequenceNode && val.Tag != "!!null" {
					return nil, errors.New("tasks is not a list")
				}
				items = val.Content
				hasTasks = true
			}
		}
		if !hasTasks {
			return nil, errors.New(`document has no "tasks" list`)
		}
	default:
		return nil, errors.New("document is neither a mapping nor a list")
	}

	for _, item := range items {
		var rec models.Record
		if err := item.Decode(&rec); err != nil {
			var probe struct {
				ID int64 `yaml:"id"`
			}
			_ = item.Decode(&probe)
			snap.entries = append(snap.entries, entry{
				id:  probe.ID,
				raw: item,
				err: &models.MalformedRecordError{ID: probe.ID, Field: "record", Err: err},
			})
			continue
		}
		snap.entries = append(snap.entries, decodeEntry(rec, item))
	}
	snap.raiseLastID()
	return snap, nil
}

func (yamlFormat) encode(s *snapshot) ([]byte, error) {
	doc := yamlDocument{NextID: s.nextID(), Tasks: make([]any, 0, len(s.entries))}
	for _, e := range s.entries {
		if e.task == nil {
			doc.Tasks = append(doc.Tasks, e.raw)
			continue
		}
		doc.Tasks = append(doc.Tasks, models.Encode(*e.task))
	}
	return yaml.Marshal(doc)
}

func decodeEntry(rec models.Record, raw any) entry {
	t, err := models.Decode(rec)
	if err != nil {
		return entry{id: rec.ID, raw: raw, err: err}
	}
	return entry{id: t.ID, task: &t}
}
