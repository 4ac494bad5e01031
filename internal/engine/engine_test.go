package engine_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	log "github.com/sirupsen/logrus"

	"medboard/internal/analysis"
	"medboard/internal/config"
	"medboard/internal/db"
	"medboard/internal/engine"
	"medboard/internal/engine/auth"
	"medboard/internal/events"
	"medboard/internal/kanban"
	"medboard/internal/migrate"
	"medboard/internal/repo"
)

const owner = "ada@example.com"

type stubAnalyzer struct {
	analysis string
	plan     string
	err      error
	block    chan struct{}
	entered  chan struct{}
	calls    int
}

func (s *stubAnalyzer) wait() {
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.block != nil {
		<-s.block
	}
}

func (s *stubAnalyzer) AnalyzeDocument(_ context.Context, _ analysis.Document) (string, error) {
	s.calls++
	s.wait()
	return s.analysis, s.err
}

func (s *stubAnalyzer) GeneratePlan(_ context.Context, _ string) (string, error) {
	s.calls++
	s.wait()
	return s.plan, s.err
}

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Stub   *stubAnalyzer
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	n := 0
	eng.NewID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	logger := log.New()
	logger.SetOutput(io.Discard)
	eng.Log = logger
	stub := &stubAnalyzer{
		analysis: "Findings: benign.",
		plan:     "```json\n" + planJSON + "\n```",
	}
	eng.Analyzer = stub
	ctx := context.Background()
	if _, err := eng.Onboard(ctx, owner, engine.OnboardOptions{Username: "ada", Age: 36, Location: "London"}); err != nil {
		t.Fatalf("onboard: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx, Stub: stub}
}

const planJSON = `{"columns":[{"id":"todo","title":"Todo"},{"id":"doing","title":"Work in progress"},{"id":"done","title":"Done"}],
"tasks":[{"id":"1","columnId":"todo","content":"Book oncology consult"},{"id":"2","columnId":"todo","content":"Blood panel"},{"id":"3","columnId":"doing","content":"Imaging"},{"id":"4","columnId":"ghost","content":"orphan"}]}`

func taskIDs(b *kanban.Board, column string) []string {
	var ids []string
	for _, t := range b.TasksIn(column) {
		ids = append(ids, t.ID)
	}
	return ids
}

func TestOnboarding(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.Onboard(env.Ctx, "ADA@example.com", engine.OnboardOptions{Username: "x", Age: 1, Location: "y"}); !errors.Is(err, engine.ErrAlreadyOnboarded) {
		t.Fatalf("expected ErrAlreadyOnboarded, got %v", err)
	}
	if _, err := env.Engine.Onboard(env.Ctx, "bob@example.com", engine.OnboardOptions{Username: "bob", Age: 0, Location: "Paris"}); !errors.Is(err, engine.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	if _, err := env.Engine.CurrentUser(env.Ctx, "bob@example.com"); !errors.Is(err, engine.ErrNotOnboarded) {
		t.Fatalf("expected ErrNotOnboarded, got %v", err)
	}
	if _, err := env.Engine.CreateRecord(env.Ctx, "bob@example.com", "Scan"); !errors.Is(err, engine.ErrNotOnboarded) {
		t.Fatalf("expected ErrNotOnboarded, got %v", err)
	}
	evts, err := env.Engine.TailEvents(env.Ctx, owner, 10)
	if err != nil || len(evts) != 1 || evts[0].Type != events.UserOnboarded {
		t.Fatalf("events = %+v err=%v", evts, err)
	}
}

func TestRecordNamesUniquePerUser(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CreateRecord(env.Ctx, owner, "Biopsy"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := env.Engine.CreateRecord(env.Ctx, owner, " Biopsy "); !errors.Is(err, engine.ErrDuplicateRecordName) {
		t.Fatalf("expected ErrDuplicateRecordName, got %v", err)
	}
	if _, err := env.Engine.CreateRecord(env.Ctx, owner, "  "); !errors.Is(err, engine.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	recs, err := env.Engine.ListRecords(env.Ctx, owner)
	if err != nil || len(recs) != 1 {
		t.Fatalf("records = %v err=%v", recs, err)
	}
}

func TestRecordOwnership(t *testing.T) {
	env := newTestEnv(t)
	rec, err := env.Engine.CreateRecord(env.Ctx, owner, "Scan")
	if err != nil {
		t.Fatal(err)
	}
	var fe auth.ForbiddenError
	if _, err := env.Engine.GetRecord(env.Ctx, "eve@example.com", rec.ID); !errors.As(err, &fe) {
		t.Fatalf("expected ForbiddenError, got %v", err)
	}
	if _, err := env.Engine.LoadBoard(env.Ctx, "eve@example.com", rec.ID); !errors.As(err, &fe) {
		t.Fatalf("expected ForbiddenError on board, got %v", err)
	}
	if _, err := env.Engine.GetRecord(env.Ctx, owner, "missing"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAnalyzeThenPlan(t *testing.T) {
	env := newTestEnv(t)
	rec, err := env.Engine.CreateRecord(env.Ctx, owner, "Scan")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.GeneratePlan(env.Ctx, owner, rec.ID); !errors.Is(err, engine.ErrNoAnalysis) {
		t.Fatalf("expected ErrNoAnalysis, got %v", err)
	}
	doc := analysis.Document{MIMEType: "application/pdf", Data: []byte("%PDF")}
	rec, err = env.Engine.AnalyzeRecord(env.Ctx, owner, rec.ID, doc)
	if err != nil || rec.AnalysisResult != "Findings: benign." {
		t.Fatalf("analyze: %+v err=%v", rec, err)
	}
	out, err := env.Engine.GeneratePlan(env.Ctx, owner, rec.ID)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if !out.Generated || len(out.Report.Dropped) != 1 {
		t.Fatalf("outcome = %+v", out)
	}
	if diff := cmp.Diff([]string{"1", "2"}, taskIDs(out.Board, "todo")); diff != "" {
		t.Fatalf("todo (-want +got):\n%s", diff)
	}
	calls := env.Stub.calls
	again, err := env.Engine.GeneratePlan(env.Ctx, owner, rec.ID)
	if err != nil || again.Generated {
		t.Fatalf("second plan: %+v err=%v", again, err)
	}
	if env.Stub.calls != calls {
		t.Fatalf("existing board should short-circuit the analyzer")
	}
	if diff := cmp.Diff(out.Board.Snapshot(), again.Board.Snapshot()); diff != "" {
		t.Fatalf("stored board differs (-want +got):\n%s", diff)
	}

	// a fresh analysis invalidates the plan
	if _, err := env.Engine.AnalyzeRecord(env.Ctx, owner, rec.ID, doc); err != nil {
		t.Fatal(err)
	}
	view, err := env.Engine.LoadBoard(env.Ctx, owner, rec.ID)
	if err != nil || !view.Report.Empty {
		t.Fatalf("board not cleared: %+v err=%v", view.Report, err)
	}
}

func TestInvalidPlanRejected(t *testing.T) {
	env := newTestEnv(t)
	rec, _ := env.Engine.CreateRecord(env.Ctx, owner, "Scan")
	if _, err := env.Engine.AnalyzeRecord(env.Ctx, owner, rec.ID, analysis.Document{MIMEType: "image/png", Data: []byte{1}}); err != nil {
		t.Fatal(err)
	}
	env.Stub.plan = `{"columns": "not-an-array"}`
	_, err := env.Engine.GeneratePlan(env.Ctx, owner, rec.ID)
	if !errors.Is(err, engine.ErrInvalidPlan) || !errors.Is(err, kanban.ErrMalformedSnapshot) {
		t.Fatalf("expected ErrInvalidPlan, got %v", err)
	}
	got, _ := env.Engine.GetRecord(env.Ctx, owner, rec.ID)
	if got.HasBoard() {
		t.Fatalf("invalid plan stored")
	}
}

func TestAnalyzeBusy(t *testing.T) {
	env := newTestEnv(t)
	rec, _ := env.Engine.CreateRecord(env.Ctx, owner, "Scan")
	env.Stub.block = make(chan struct{})
	env.Stub.entered = make(chan struct{}, 1)
	doc := analysis.Document{MIMEType: "image/png", Data: []byte{1}}
	done := make(chan error, 1)
	go func() {
		_, err := env.Engine.AnalyzeRecord(env.Ctx, owner, rec.ID, doc)
		done <- err
	}()
	select {
	case <-env.Stub.entered:
	case <-time.After(5 * time.Second):
		t.Fatalf("analysis never started")
	}
	if !env.Engine.Busy("analyze", rec.ID) {
		t.Fatalf("busy flag not set")
	}
	if _, err := env.Engine.AnalyzeRecord(env.Ctx, owner, rec.ID, doc); !errors.Is(err, engine.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	close(env.Stub.block)
	if err := <-done; err != nil {
		t.Fatalf("first analysis: %v", err)
	}
	if env.Engine.Busy("analyze", rec.ID) {
		t.Fatalf("busy flag not cleared")
	}
}

func TestBoardOpsAndSave(t *testing.T) {
	env := newTestEnv(t)
	rec, _ := env.Engine.CreateRecord(env.Ctx, owner, "Scan")
	out, err := env.Engine.ApplyOps(env.Ctx, owner, rec.ID, []engine.BoardOp{
		{Op: engine.OpSeedColumns},
	}, true)
	if err != nil || !out.Saved {
		t.Fatalf("seed: %+v err=%v", out, err)
	}
	cols := out.Board.Columns()
	if len(cols) != 3 || cols[0].Title != "Todo" || cols[2].Title != "Done" {
		t.Fatalf("columns = %+v", cols)
	}
	out, err = env.Engine.ApplyOps(env.Ctx, owner, rec.ID, []engine.BoardOp{
		{Op: engine.OpAddTask, ColumnID: cols[0].ID, Content: "Call clinic"},
		{Op: engine.OpAddTask, ColumnID: "missing"},
		{Op: engine.OpMoveColumn, ActiveID: cols[2].ID, OverID: cols[0].ID},
	}, true)
	if err != nil {
		t.Fatalf("ops: %v", err)
	}
	if !out.Results[0].Changed || out.Results[1].Changed || !out.Results[2].Changed {
		t.Fatalf("results = %+v", out.Results)
	}
	view, err := env.Engine.LoadBoard(env.Ctx, owner, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(out.Board.Snapshot(), view.Board.Snapshot()); diff != "" {
		t.Fatalf("persisted board (-want +got):\n%s", diff)
	}
	if _, err := env.Engine.ApplyOps(env.Ctx, owner, rec.ID, []engine.BoardOp{{Op: "explode"}}, false); !errors.Is(err, engine.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	evts, err := env.Engine.RecordEvents(env.Ctx, owner, rec.ID, 10, 0)
	if err != nil || len(evts) != 3 || evts[0].Type != events.BoardSaved || evts[0].Actor != owner {
		t.Fatalf("events = %+v err=%v", evts, err)
	}
}

func TestSaveBoardRejectsDanglingTasks(t *testing.T) {
	env := newTestEnv(t)
	rec, _ := env.Engine.CreateRecord(env.Ctx, owner, "Scan")
	_, err := env.Engine.SaveBoard(env.Ctx, owner, rec.ID, kanban.Snapshot{
		Columns: []kanban.Column{{ID: "c", Title: "Todo"}},
		Tasks:   []kanban.Task{{ID: "t", ColumnID: "nope", Content: "x"}},
	})
	if !errors.Is(err, kanban.ErrDanglingReference) || !errors.Is(err, engine.ErrInvalid) {
		t.Fatalf("expected dangling reference error, got %v", err)
	}
}

func TestReplayDrag(t *testing.T) {
	env := newTestEnv(t)
	rec, _ := env.Engine.CreateRecord(env.Ctx, owner, "Scan")
	_, err := env.Engine.SaveBoard(env.Ctx, owner, rec.ID, kanban.Snapshot{
		Columns: []kanban.Column{{ID: "todo", Title: "Todo"}, {ID: "doing", Title: "Doing"}, {ID: "done", Title: "Done"}},
		Tasks: []kanban.Task{
			{ID: "1", ColumnID: "todo", Content: "a"},
			{ID: "2", ColumnID: "todo", Content: "b"},
			{ID: "3", ColumnID: "doing", Content: "c"},
		},
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	task := func(id string) kanban.Target { return kanban.Target{Kind: kanban.KindTask, ID: id} }
	out, err := env.Engine.ReplayDrag(env.Ctx, owner, rec.ID, []kanban.PointerEvent{
		{Type: kanban.EventDown, Target: task("2")},
		{Type: kanban.EventMove, Target: task("3"), X: 12},
		{Type: kanban.EventUp, Target: task("3"), X: 12},
	}, true)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !out.Saved || !out.Replay.Changed {
		t.Fatalf("outcome = %+v", out)
	}
	view, _ := env.Engine.LoadBoard(env.Ctx, owner, rec.ID)
	if diff := cmp.Diff([]string{"2", "3"}, taskIDs(view.Board, "doing")); diff != "" {
		t.Fatalf("doing (-want +got):\n%s", diff)
	}
}

func TestAPIKeys(t *testing.T) {
	env := newTestEnv(t)
	key, secret, err := env.Engine.CreateAPIKey(env.Ctx, owner, "cli")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	email, err := env.Engine.ResolveAPIKey(env.Ctx, secret)
	if err != nil || email != owner {
		t.Fatalf("resolve = %q err=%v", email, err)
	}
	if _, err := env.Engine.ResolveAPIKey(env.Ctx, "mbk_wrong"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := env.Engine.DeleteAPIKey(env.Ctx, owner, key.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	keys, _ := env.Engine.ListAPIKeys(env.Ctx, owner)
	if len(keys) != 0 {
		t.Fatalf("keys = %v", keys)
	}
}
