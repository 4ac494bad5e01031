package kanban

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// Column is a named lane. Its position in the board is its order.
type Column struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func (c Column) ItemID() string { return c.ID }

// Task is a work item. Tasks of every column share one flat sequence;
// ColumnID decides membership.
type Task struct {
	ID       string `json:"id"`
	ColumnID string `json:"columnId"`
	Content  string `json:"content"`
}

func (t Task) ItemID() string { return t.ID }

type reconcileOp int

const (
	opNone reconcileOp = iota
	opColumns
	opTasks
)

// reconcileMark remembers the last reorder so an identical follow-up call on
// an unchanged board is a no-op.
type reconcileMark struct {
	op     reconcileOp
	active string
	over   string
	rev    uint64
}

// Board holds the ordered columns and tasks of one record.
// A Board is owned by a single goroutine.
type Board struct {
	columns Sequence[Column]
	tasks   Sequence[Task]
	newID   func() string
	seen    map[string]struct{}
	rev     uint64
	last    reconcileMark
}

// Option configures a Board.
type Option func(*Board)

// WithIDGenerator replaces the default uuid generator.
func WithIDGenerator(fn func() string) Option {
	return func(b *Board) {
		if fn != nil {
			b.newID = fn
		}
	}
}

// NewBoard returns an empty board.
func NewBoard(opts ...Option) *Board {
	b := &Board{
		newID: uuid.NewString,
		seen:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

const maxIDAttempts = 16

// freshID draws ids until one has never been held by this board. After
// maxIDAttempts draws the attempt number is appended, so a generator that
// keeps repeating itself or returns "" still yields a distinct id.
func (b *Board) freshID() string {
	for i := 0; ; i++ {
		id := b.newID()
		if i >= maxIDAttempts {
			if id == "" {
				id = "id"
			}
			id = id + "-" + strconv.Itoa(i)
		}
		if id == "" {
			continue
		}
		if _, used := b.seen[id]; used {
			continue
		}
		b.seen[id] = struct{}{}
		return id
	}
}

func (b *Board) touch() {
	b.rev++
	b.last = reconcileMark{}
}

func (b *Board) repeated(op reconcileOp, active, over string) bool {
	return b.last.op == op && b.last.active == active && b.last.over == over && b.last.rev == b.rev
}

func (b *Board) remember(op reconcileOp, active, over string) {
	b.last = reconcileMark{op: op, active: active, over: over, rev: b.rev}
}

// Columns returns the columns in order.
func (b *Board) Columns() []Column { return b.columns.Items() }

// Tasks returns the flat task sequence in order.
func (b *Board) Tasks() []Task { return b.tasks.Items() }

// TasksIn returns the tasks of one column, preserving their relative order.
func (b *Board) TasksIn(columnID string) []Task {
	return b.tasks.Filter(func(t Task) bool { return t.ColumnID == columnID })
}

func (b *Board) Column(id string) (Column, bool) { return b.columns.Get(id) }

func (b *Board) Task(id string) (Task, bool) { return b.tasks.Get(id) }

// Revision increases on every successful mutation.
func (b *Board) Revision() uint64 { return b.rev }

// CreateColumn appends a column titled "Column N+1", bumping N until the
// title is not already taken.
func (b *Board) CreateColumn() Column {
	taken := make(map[string]struct{}, b.columns.Len())
	for _, c := range b.columns.items {
		taken[c.Title] = struct{}{}
	}
	n := b.columns.Len() + 1
	title := fmt.Sprintf("Column %d", n)
	for {
		if _, dup := taken[title]; !dup {
			break
		}
		n++
		title = fmt.Sprintf("Column %d", n)
	}
	col := Column{ID: b.freshID(), Title: title}
	b.columns, _ = b.columns.Append(col)
	b.touch()
	return col
}

// DeleteColumn removes the column and every task assigned to it.
func (b *Board) DeleteColumn(id string) bool {
	cols, ok := b.columns.Remove(id)
	if !ok {
		return false
	}
	b.columns = cols
	b.tasks, _ = b.tasks.RemoveFunc(func(t Task) bool { return t.ColumnID == id })
	b.touch()
	return true
}

func (b *Board) RenameColumn(id, title string) bool {
	cols, ok := b.columns.Replace(id, func(c Column) Column {
		c.Title = title
		return c
	})
	if !ok {
		return false
	}
	b.columns = cols
	b.touch()
	return true
}

// CreateTask appends a task to columnID. It does nothing when the column is
// unknown so no task can point at a missing column.
func (b *Board) CreateTask(columnID string) (Task, bool) {
	if !b.columns.Contains(columnID) {
		return Task{}, false
	}
	t := Task{
		ID:       b.freshID(),
		ColumnID: columnID,
		Content:  fmt.Sprintf("Task %d", b.tasks.Len()+1),
	}
	b.tasks, _ = b.tasks.Append(t)
	b.touch()
	return t, true
}

func (b *Board) DeleteTask(id string) bool {
	tasks, ok := b.tasks.Remove(id)
	if !ok {
		return false
	}
	b.tasks = tasks
	b.touch()
	return true
}

func (b *Board) UpdateTaskContent(id, content string) bool {
	tasks, ok := b.tasks.Replace(id, func(t Task) Task {
		t.Content = content
		return t
	})
	if !ok {
		return false
	}
	b.tasks = tasks
	b.touch()
	return true
}

// ReorderColumns moves activeID to the position of overID.
func (b *Board) ReorderColumns(activeID, overID string) bool {
	if activeID == overID || b.repeated(opColumns, activeID, overID) {
		return false
	}
	from, to := b.columns.IndexOf(activeID), b.columns.IndexOf(overID)
	if from < 0 || to < 0 {
		return false
	}
	b.columns = b.columns.Move(from, to)
	b.touch()
	b.remember(opColumns, activeID, overID)
	return true
}

// ReorderOrReassignTask reconciles a task hovered or dropped over overID,
// which may be another task or a column.
//
// Over a task of the same column the active task takes the over task's
// index. Over a task of another column the active task joins that column and
// is moved to overIndex-1, using the index from before the move, so it lands
// just above the hovered task. Over a column it joins the column and keeps
// its position. A repeated call with the same pair on an unchanged board does
// nothing, so a stream of identical hover events cannot drift.
func (b *Board) ReorderOrReassignTask(activeID, overID string) bool {
	if activeID == overID || b.repeated(opTasks, activeID, overID) {
		return false
	}
	from := b.tasks.IndexOf(activeID)
	if from < 0 {
		return false
	}
	active := b.tasks.At(from)

	if to := b.tasks.IndexOf(overID); to >= 0 {
		over := b.tasks.At(to)
		if active.ColumnID == over.ColumnID {
			b.tasks = b.tasks.Move(from, to)
		} else {
			b.tasks = b.assign(activeID, over.ColumnID)
			b.tasks = b.tasks.Move(from, to-1)
		}
	} else if b.columns.Contains(overID) {
		if active.ColumnID == overID {
			return false
		}
		b.tasks = b.assign(activeID, overID)
	} else {
		return false
	}
	b.touch()
	b.remember(opTasks, activeID, overID)
	return true
}

func (b *Board) assign(taskID, columnID string) Sequence[Task] {
	tasks, _ := b.tasks.Replace(taskID, func(t Task) Task {
		t.ColumnID = columnID
		return t
	})
	return tasks
}

// Snapshot returns a copy of the board contents.
func (b *Board) Snapshot() Snapshot {
	return Snapshot{Columns: b.columns.Items(), Tasks: b.tasks.Items()}
}

// Validate checks that every task points at an existing column.
func (b *Board) Validate() error {
	for _, t := range b.tasks.items {
		if !b.columns.Contains(t.ColumnID) {
			return fmt.Errorf("%w: task %s -> column %s", ErrDanglingReference, t.ID, t.ColumnID)
		}
	}
	return nil
}
