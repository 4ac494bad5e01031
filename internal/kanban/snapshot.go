package kanban

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedSnapshot marks a board blob that does not parse or lacks
	// required fields.
	ErrMalformedSnapshot = errors.New("malformed board snapshot")
	// ErrDanglingReference marks a task whose column does not exist.
	ErrDanglingReference = errors.New("task references missing column")
)

// Snapshot is the serialized shape of a board:
// {"columns":[{"id","title"}],"tasks":[{"id","columnId","content"}]}.
type Snapshot struct {
	Columns []Column `json:"columns"`
	Tasks   []Task   `json:"tasks"`
}

type rawColumn struct {
	ID    *string `json:"id"`
	Title *string `json:"title"`
}

type rawTask struct {
	ID       *string `json:"id"`
	ColumnID *string `json:"columnId"`
	Content  *string `json:"content"`
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedSnapshot, fmt.Sprintf(format, args...))
}

// Decode parses and validates an untrusted board blob. Both arrays must be
// present, every column needs an id and a title, every task an id, a
// columnId and a content. Dangling column references are not checked here.
func Decode(data []byte) (Snapshot, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return Snapshot{}, malformed("%v", err)
	}
	if top == nil {
		return Snapshot{}, malformed("not an object")
	}
	rawCols, ok := top["columns"]
	if !ok || !isArray(rawCols) {
		return Snapshot{}, malformed("columns must be an array")
	}
	rawTasks, ok := top["tasks"]
	if !ok || !isArray(rawTasks) {
		return Snapshot{}, malformed("tasks must be an array")
	}
	var cols []rawColumn
	if err := json.Unmarshal(rawCols, &cols); err != nil {
		return Snapshot{}, malformed("columns: %v", err)
	}
	var tasks []rawTask
	if err := json.Unmarshal(rawTasks, &tasks); err != nil {
		return Snapshot{}, malformed("tasks: %v", err)
	}
	s := Snapshot{
		Columns: make([]Column, 0, len(cols)),
		Tasks:   make([]Task, 0, len(tasks)),
	}
	for i, c := range cols {
		if c.ID == nil || strings.TrimSpace(*c.ID) == "" {
			return Snapshot{}, malformed("columns[%d].id is required", i)
		}
		if c.Title == nil {
			return Snapshot{}, malformed("columns[%d].title is required", i)
		}
		s.Columns = append(s.Columns, Column{ID: *c.ID, Title: *c.Title})
	}
	for i, t := range tasks {
		if t.ID == nil || strings.TrimSpace(*t.ID) == "" {
			return Snapshot{}, malformed("tasks[%d].id is required", i)
		}
		if t.ColumnID == nil || strings.TrimSpace(*t.ColumnID) == "" {
			return Snapshot{}, malformed("tasks[%d].columnId is required", i)
		}
		if t.Content == nil {
			return Snapshot{}, malformed("tasks[%d].content is required", i)
		}
		s.Tasks = append(s.Tasks, Task{ID: *t.ID, ColumnID: *t.ColumnID, Content: *t.Content})
	}
	return s, nil
}

func isArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}

// Encode serializes a snapshot. Empty lists are written as [].
func Encode(s Snapshot) ([]byte, error) {
	if s.Columns == nil {
		s.Columns = []Column{}
	}
	if s.Tasks == nil {
		s.Tasks = []Task{}
	}
	return json.Marshal(s)
}

// FromSnapshot builds a board from s. Duplicate ids make the snapshot
// malformed; tasks pointing at a missing column are dropped and returned.
func FromSnapshot(s Snapshot, opts ...Option) (*Board, []Task, error) {
	b := NewBoard(opts...)
	cols, err := NewSequence(s.Columns...)
	if err != nil {
		return nil, nil, malformed("columns: %v", err)
	}
	var kept, dropped []Task
	for _, t := range s.Tasks {
		if !cols.Contains(t.ColumnID) {
			dropped = append(dropped, t)
			continue
		}
		kept = append(kept, t)
	}
	tasks, err := NewSequence(kept...)
	if err != nil {
		return nil, nil, malformed("tasks: %v", err)
	}
	for _, c := range s.Columns {
		b.seen[c.ID] = struct{}{}
	}
	for _, t := range s.Tasks {
		b.seen[t.ID] = struct{}{}
	}
	b.columns, b.tasks = cols, tasks
	return b, dropped, nil
}

// LoadReport describes how a stored blob became a board.
type LoadReport struct {
	// Empty is set when there was no stored board.
	Empty bool
	// Malformed holds the decode error when the blob was rejected and an
	// empty board was used instead.
	Malformed error
	// Dropped lists tasks removed because their column did not exist.
	Dropped []Task
}

// Notice is a short user-facing message, empty when nothing went wrong.
func (r LoadReport) Notice() string {
	switch {
	case r.Malformed != nil:
		return "stored board could not be read; starting from an empty board"
	case len(r.Dropped) > 0:
		return fmt.Sprintf("%d task(s) referencing missing columns were removed", len(r.Dropped))
	default:
		return ""
	}
}

// Restore turns a stored blob into a board and never fails: an empty blob
// gives an empty board, a malformed one gives an empty board with the error
// recorded in the report.
func Restore(blob string, opts ...Option) (*Board, LoadReport) {
	if strings.TrimSpace(blob) == "" {
		return NewBoard(opts...), LoadReport{Empty: true}
	}
	s, err := Decode([]byte(blob))
	if err != nil {
		return NewBoard(opts...), LoadReport{Malformed: err}
	}
	b, dropped, err := FromSnapshot(s, opts...)
	if err != nil {
		return NewBoard(opts...), LoadReport{Malformed: err}
	}
	return b, LoadReport{Dropped: dropped}
}

// EncodeBoard serializes the board as a storage blob.
func EncodeBoard(b *Board) (string, error) {
	data, err := Encode(b.Snapshot())
	if err != nil {
		return "", err
	}
	return string(data), nil
}
