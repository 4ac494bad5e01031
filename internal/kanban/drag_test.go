package kanban

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func task(id string) Target   { return Target{Kind: KindTask, ID: id} }
func column(id string) Target { return Target{Kind: KindColumn, ID: id} }

func TestDragNeedsActivationDistance(t *testing.T) {
	b := scenarioBoard(t)
	s := NewDragSession(b, 0)
	if !s.PointerDown(task("1"), Point{}) {
		t.Fatalf("pointer down refused")
	}
	if s.PointerMove(task("3"), Point{X: 3, Y: 4}) {
		t.Fatalf("moved before activation")
	}
	if s.Kind() != DragNone {
		t.Fatalf("kind = %v before activation", s.Kind())
	}
	if !s.PointerMove(task("3"), Point{X: 6, Y: 8}) {
		t.Fatalf("expected live reorder once activated")
	}
	if got, ok := s.ActiveTask(); !ok || got.ColumnID != "todo" {
		t.Fatalf("captured task = %+v ok=%v", got, ok)
	}
	if diff := cmp.Diff([]string{"1", "3"}, taskIDs(b.TasksIn("doing"))); diff != "" {
		t.Fatalf("doing (-want +got):\n%s", diff)
	}
	// hover events repeat while the pointer rests over the same task
	for i := 0; i < 3; i++ {
		if s.PointerMove(task("3"), Point{X: 6, Y: 9 + float64(i)}) {
			t.Fatalf("repeat hover %d changed board", i)
		}
	}
	res := s.PointerUp(task("3"))
	if res.Changed || res.Kind != DragTask || res.ActiveID != "1" {
		t.Fatalf("drop = %+v", res)
	}
	if s.Kind() != DragNone || s.ActiveID() != "" {
		t.Fatalf("session not reset")
	}
}

func TestClickOnColumnEntersEditMode(t *testing.T) {
	b := scenarioBoard(t)
	s := NewDragSession(b, 10)
	s.PointerDown(column("todo"), Point{X: 1, Y: 1})
	s.PointerMove(column("todo"), Point{X: 2, Y: 2})
	res := s.PointerUp(column("todo"))
	if !res.Clicked || res.Changed {
		t.Fatalf("drop = %+v", res)
	}
	if !s.Editing("todo") {
		t.Fatalf("column not in edit mode")
	}
	if s.PointerDown(column("todo"), Point{}) {
		t.Fatalf("grabbed a column being edited")
	}
	s.EndEdit("todo")
	if !s.PointerDown(column("todo"), Point{}) {
		t.Fatalf("grab refused after edit ended")
	}
}

func TestClickEditsTaskUntilEndEdit(t *testing.T) {
	s := NewDragSession(scenarioBoard(t), 10)
	s.PointerDown(task("2"), Point{})
	if res := s.PointerUp(Target{}); !res.Clicked {
		t.Fatalf("expected click, got %+v", res)
	}
	if !s.Editing("2") {
		t.Fatalf("task not in edit mode")
	}
	if s.PointerDown(task("2"), Point{}) {
		t.Fatalf("grab accepted on a task being edited")
	}
	s.EndEdit("2")
	if s.Editing("2") {
		t.Fatalf("edit mode survived EndEdit")
	}
	if !s.PointerDown(task("2"), Point{}) {
		t.Fatalf("grab refused after EndEdit")
	}
	s.PointerUp(Target{})
	if !s.Editing("2") {
		t.Fatalf("second click did not enter edit mode")
	}
}

func TestColumnDragAppliesOnDrop(t *testing.T) {
	b := scenarioBoard(t)
	s := NewDragSession(b, 10)
	s.PointerDown(column("todo"), Point{})
	if s.PointerMove(column("done"), Point{X: 40}) {
		t.Fatalf("column hover changed board")
	}
	if diff := cmp.Diff([]string{"todo", "doing", "done"}, columnIDs(b.Columns())); diff != "" {
		t.Fatalf("columns moved on hover:\n%s", diff)
	}
	if s.HoverColumn() != "done" {
		t.Fatalf("hover = %q", s.HoverColumn())
	}
	if s.BeginEdit("todo") {
		t.Fatalf("edit allowed on dragged column")
	}
	res := s.PointerUp(column("done"))
	if !res.Changed || res.Kind != DragColumn {
		t.Fatalf("drop = %+v", res)
	}
	if diff := cmp.Diff([]string{"doing", "done", "todo"}, columnIDs(b.Columns())); diff != "" {
		t.Fatalf("columns (-want +got):\n%s", diff)
	}
}

func TestDropWithoutTargetResets(t *testing.T) {
	b := scenarioBoard(t)
	s := NewDragSession(b, 10)
	s.PointerDown(task("1"), Point{})
	s.PointerMove(Target{}, Point{X: 50})
	if s.Kind() != DragTask {
		t.Fatalf("kind = %v", s.Kind())
	}
	before := b.Snapshot()
	res := s.PointerUp(Target{})
	if res.Changed {
		t.Fatalf("drop without target changed board")
	}
	if diff := cmp.Diff(before, b.Snapshot()); diff != "" {
		t.Fatalf("board changed:\n%s", diff)
	}
	if s.Kind() != DragNone {
		t.Fatalf("session not reset")
	}
}

func TestCancelSkipsFinalApplication(t *testing.T) {
	b := scenarioBoard(t)
	s := NewDragSession(b, 10)
	s.PointerDown(column("todo"), Point{})
	s.PointerMove(column("done"), Point{X: 20})
	s.Cancel()
	if s.Kind() != DragNone {
		t.Fatalf("kind = %v", s.Kind())
	}
	if diff := cmp.Diff([]string{"todo", "doing", "done"}, columnIDs(b.Columns())); diff != "" {
		t.Fatalf("columns changed:\n%s", diff)
	}
}

func TestPointerDownRefusals(t *testing.T) {
	s := NewDragSession(scenarioBoard(t), 10)
	if s.PointerDown(task("missing"), Point{}) {
		t.Fatalf("grabbed missing task")
	}
	if s.PointerDown(Target{}, Point{}) {
		t.Fatalf("grabbed nothing")
	}
	s.PointerDown(task("1"), Point{})
	s.PointerMove(task("2"), Point{X: 20})
	if s.PointerDown(task("2"), Point{}) {
		t.Fatalf("second grab during drag")
	}
}

func TestReplay(t *testing.T) {
	b := scenarioBoard(t)
	s := NewDragSession(b, 10)
	res, err := s.Replay([]PointerEvent{
		{Type: EventDown, Target: task("2")},
		{Type: EventMove, Target: task("3"), X: 15},
		{Type: EventUp, Target: task("3"), X: 15},
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !res.Changed || len(res.Drops) != 1 {
		t.Fatalf("result = %+v", res)
	}
	if diff := cmp.Diff([]string{"2", "3"}, taskIDs(b.TasksIn("doing"))); diff != "" {
		t.Fatalf("doing (-want +got):\n%s", diff)
	}
	_, err = s.Replay([]PointerEvent{{Type: "wiggle"}})
	if !errors.Is(err, ErrInvalidPointerEvent) {
		t.Fatalf("expected ErrInvalidPointerEvent, got %v", err)
	}
}
