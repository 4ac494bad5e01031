package repo_test

import (
	"context"
	"errors"
	"testing"

	"medboard/internal/db"
	"medboard/internal/domain"
	"medboard/internal/migrate"
	"medboard/internal/repo"
)

func newRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{DB: conn}
}

func seedUser(t *testing.T, r repo.Repo) domain.User {
	t.Helper()
	u := domain.User{ID: "u1", Username: "ada", Age: 36, Location: "London", CreatedBy: "ada@example.com"}
	if err := r.InsertUser(context.Background(), nil, u); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	return u
}

func TestUsersUniquePerEmail(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	u := seedUser(t, r)
	got, err := r.UserByEmail(ctx, u.CreatedBy)
	if err != nil || got.Username != "ada" || got.CreatedAt == "" {
		t.Fatalf("user = %+v err=%v", got, err)
	}
	err = r.InsertUser(ctx, nil, domain.User{ID: "u2", Username: "x", CreatedBy: u.CreatedBy})
	if !errors.Is(err, repo.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if _, err := r.UserByEmail(ctx, "nobody@example.com"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordsLifecycle(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	u := seedUser(t, r)
	rec := domain.Record{ID: "r1", UserID: u.ID, RecordName: "Biopsy", CreatedBy: u.CreatedBy}
	if err := r.InsertRecord(ctx, nil, rec); err != nil {
		t.Fatalf("insert record: %v", err)
	}
	dup := domain.Record{ID: "r2", UserID: u.ID, RecordName: "Biopsy", CreatedBy: u.CreatedBy}
	if err := r.InsertRecord(ctx, nil, dup); !errors.Is(err, repo.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := r.UpdateKanbanRecord(ctx, "r1", `{"columns":[],"tasks":[]}`); err != nil {
		t.Fatalf("update board: %v", err)
	}
	blob, err := r.KanbanRecord(ctx, "r1")
	if err != nil || blob == "" {
		t.Fatalf("board = %q err=%v", blob, err)
	}
	if err := r.UpdateAnalysis(ctx, nil, "r1", "benign"); err != nil {
		t.Fatalf("update analysis: %v", err)
	}
	got, err := r.GetRecord(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if got.AnalysisResult != "benign" || got.KanbanRecord != "" {
		t.Fatalf("analysis should clear board: %+v", got)
	}
	list, err := r.ListRecordsByOwner(ctx, u.CreatedBy)
	if err != nil || len(list) != 1 {
		t.Fatalf("list = %v err=%v", list, err)
	}
	if err := r.UpdateKanbanRecord(ctx, "missing", "{}"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := r.KanbanRecord(ctx, "missing"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAPIKeys(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	key := domain.APIKey{ID: "k1", Email: "ada@example.com", Name: "cli", KeyHash: repo.HashAPIKey(" secret ")}
	if err := r.InsertAPIKey(ctx, nil, key); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := r.GetAPIKeyByHash(ctx, repo.HashAPIKey("secret"))
	if err != nil || got.Email != key.Email {
		t.Fatalf("lookup = %+v err=%v", got, err)
	}
	if err := r.DeleteAPIKey(ctx, "someone@else", "k1"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("deleted another identity's key: %v", err)
	}
	if err := r.DeleteAPIKey(ctx, key.Email, "k1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	keys, err := r.ListAPIKeys(ctx, key.Email)
	if err != nil || len(keys) != 0 {
		t.Fatalf("keys = %v err=%v", keys, err)
	}
}

func TestWebhookCursor(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	if _, ok, err := r.WebhookCursor(ctx, "hook"); err != nil || ok {
		t.Fatalf("fresh cursor ok=%v err=%v", ok, err)
	}
	if err := r.SetWebhookCursor(ctx, "hook", 7); err != nil {
		t.Fatal(err)
	}
	if err := r.SetWebhookCursor(ctx, "hook", 9); err != nil {
		t.Fatal(err)
	}
	cur, ok, err := r.WebhookCursor(ctx, "hook")
	if err != nil || !ok || cur != 9 {
		t.Fatalf("cursor = %d ok=%v err=%v", cur, ok, err)
	}
}
