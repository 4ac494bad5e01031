package kanban

import (
	"errors"
	"fmt"
	"math"
)

// DefaultActivationDistance is the pointer travel needed before a grab
// becomes a drag.
const DefaultActivationDistance = 10.0

// ErrInvalidPointerEvent is returned by Replay for an unknown event type.
var ErrInvalidPointerEvent = errors.New("invalid pointer event")

// ItemKind tells columns and tasks apart in drag targets.
type ItemKind string

const (
	KindColumn ItemKind = "column"
	KindTask   ItemKind = "task"
)

// Target is a draggable or droppable element. The zero Target means the
// pointer is over nothing.
type Target struct {
	Kind ItemKind `json:"kind,omitempty" enum:"column,task"`
	ID   string   `json:"id,omitempty"`
}

func (t Target) IsZero() bool { return t.ID == "" }

// Point is a pointer position.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) distance(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// DragKind is the state of a DragSession.
type DragKind int

const (
	DragNone DragKind = iota
	DragColumn
	DragTask
)

func (k DragKind) String() string {
	switch k {
	case DragColumn:
		return "column"
	case DragTask:
		return "task"
	default:
		return "none"
	}
}

type grab struct {
	target Target
	at     Point
}

// DragSession turns pointer events into board reorders. It holds a pending
// grab until the pointer has travelled the activation distance, so plain
// clicks never start a drag. A session is owned by the same goroutine as its
// board.
type DragSession struct {
	board       *Board
	minDistance float64

	kind         DragKind
	activeID     string
	activeColumn Column
	activeTask   Task
	pending      *grab
	hoverColumn  string

	editing map[string]struct{}
}

// NewDragSession binds a session to b. A non-positive minDistance uses
// DefaultActivationDistance.
func NewDragSession(b *Board, minDistance float64) *DragSession {
	if minDistance <= 0 {
		minDistance = DefaultActivationDistance
	}
	return &DragSession{
		board:       b,
		minDistance: minDistance,
		editing:     make(map[string]struct{}),
	}
}

func (s *DragSession) Kind() DragKind { return s.kind }

func (s *DragSession) ActiveID() string { return s.activeID }

// HoverColumn is the column a dragged column was last moved over.
func (s *DragSession) HoverColumn() string { return s.hoverColumn }

// ActiveColumn returns the copy of the column captured when the drag started.
func (s *DragSession) ActiveColumn() (Column, bool) {
	return s.activeColumn, s.kind == DragColumn
}

// ActiveTask returns the copy of the task captured when the drag started.
func (s *DragSession) ActiveTask() (Task, bool) {
	return s.activeTask, s.kind == DragTask
}

// PointerDown records a pending grab. It refuses while a drag is running,
// when the target is not on the board, or when the target is being edited.
func (s *DragSession) PointerDown(target Target, at Point) bool {
	if s.kind != DragNone || s.pending != nil || target.IsZero() {
		return false
	}
	if !s.exists(target) || s.Editing(target.ID) {
		return false
	}
	s.pending = &grab{target: target, at: at}
	return true
}

// PointerMove reports whether the board changed. While a task is dragged
// every hover reconciles the board; column drags only track the hovered
// column until the drop.
func (s *DragSession) PointerMove(over Target, at Point) bool {
	if s.pending != nil {
		if s.pending.at.distance(at) < s.minDistance {
			return false
		}
		if !s.activate() {
			return false
		}
	}
	switch s.kind {
	case DragTask:
		if over.IsZero() {
			return false
		}
		return s.board.ReorderOrReassignTask(s.activeID, over.ID)
	case DragColumn:
		if over.Kind == KindColumn {
			s.hoverColumn = over.ID
		}
	}
	return false
}

// DropResult describes what a PointerUp did.
type DropResult struct {
	Kind     DragKind `json:"-"`
	ActiveID string   `json:"activeId,omitempty"`
	Changed  bool     `json:"changed"`
	// Clicked is set when the grab never became a drag.
	Clicked bool `json:"clicked"`
}

// PointerUp ends the gesture. A grab that never activated is a click: it
// puts the column or task into edit mode until EndEdit. A drag is
// applied a final time when over is set. The session is idle afterwards.
func (s *DragSession) PointerUp(over Target) DropResult {
	defer s.reset()
	if s.pending != nil {
		t := s.pending.target
		s.BeginEdit(t.ID)
		return DropResult{ActiveID: t.ID, Clicked: true}
	}
	res := DropResult{Kind: s.kind, ActiveID: s.activeID}
	if over.IsZero() {
		return res
	}
	switch s.kind {
	case DragTask:
		res.Changed = s.board.ReorderOrReassignTask(s.activeID, over.ID)
	case DragColumn:
		if over.Kind == KindColumn {
			res.Changed = s.board.ReorderColumns(s.activeID, over.ID)
		}
	}
	return res
}

// Cancel drops the gesture without applying anything more.
func (s *DragSession) Cancel() { s.reset() }

// BeginEdit puts a column or task into edit mode. Editing and dragging the
// same element are exclusive, so an element being dragged cannot enter edit
// mode.
func (s *DragSession) BeginEdit(id string) bool {
	if id == "" || (s.kind != DragNone && s.activeID == id) {
		return false
	}
	if _, ok := s.board.Column(id); !ok {
		if _, ok := s.board.Task(id); !ok {
			return false
		}
	}
	s.editing[id] = struct{}{}
	return true
}

func (s *DragSession) EndEdit(id string) { delete(s.editing, id) }

func (s *DragSession) Editing(id string) bool {
	_, ok := s.editing[id]
	return ok
}

func (s *DragSession) activate() bool {
	g := s.pending
	s.pending = nil
	switch g.target.Kind {
	case KindColumn:
		c, ok := s.board.Column(g.target.ID)
		if !ok {
			return false
		}
		s.kind, s.activeID, s.activeColumn = DragColumn, c.ID, c
	case KindTask:
		t, ok := s.board.Task(g.target.ID)
		if !ok {
			return false
		}
		s.kind, s.activeID, s.activeTask = DragTask, t.ID, t
	default:
		return false
	}
	return true
}

func (s *DragSession) exists(t Target) bool {
	switch t.Kind {
	case KindColumn:
		_, ok := s.board.Column(t.ID)
		return ok
	case KindTask:
		_, ok := s.board.Task(t.ID)
		return ok
	}
	return false
}

func (s *DragSession) reset() {
	s.kind = DragNone
	s.activeID = ""
	s.activeColumn = Column{}
	s.activeTask = Task{}
	s.pending = nil
	s.hoverColumn = ""
}

// PointerEventType names a recorded pointer event.
type PointerEventType string

const (
	EventDown   PointerEventType = "down"
	EventMove   PointerEventType = "move"
	EventUp     PointerEventType = "up"
	EventCancel PointerEventType = "cancel"
)

// PointerEvent is one step of a recorded gesture. Target is the grabbed
// element for down and the hovered element for move and up.
type PointerEvent struct {
	Type   PointerEventType `json:"type" enum:"down,move,up,cancel"`
	Target Target           `json:"target,omitempty"`
	X      float64          `json:"x,omitempty"`
	Y      float64          `json:"y,omitempty"`
}

// ReplayResult summarizes a replayed gesture stream.
type ReplayResult struct {
	Changed bool         `json:"changed"`
	Drops   []DropResult `json:"drops"`
}

// Replay feeds recorded events to the session in order. It stops at the
// first event with an unknown type.
func (s *DragSession) Replay(events []PointerEvent) (ReplayResult, error) {
	res := ReplayResult{Drops: []DropResult{}}
	for i, ev := range events {
		at := Point{X: ev.X, Y: ev.Y}
		switch ev.Type {
		case EventDown:
			s.PointerDown(ev.Target, at)
		case EventMove:
			if s.PointerMove(ev.Target, at) {
				res.Changed = true
			}
		case EventUp:
			drop := s.PointerUp(ev.Target)
			res.Changed = res.Changed || drop.Changed
			res.Drops = append(res.Drops, drop)
		case EventCancel:
			s.Cancel()
		default:
			return res, fmt.Errorf("%w: event %d has type %q", ErrInvalidPointerEvent, i, ev.Type)
		}
	}
	return res, nil
}
