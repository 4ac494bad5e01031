package app

import (
	"context"
	"errors"
	"testing"

	"medboard/internal/engine"
	"medboard/internal/engine/auth"
)

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	env, err := Open(ctx, Options{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer env.Close()

	s := NewSession(env.Engine)
	if _, err := s.User(); !errors.Is(err, ErrLoggedOut) {
		t.Fatalf("expected ErrLoggedOut before login, got %v", err)
	}
	if err := s.Login(ctx, "Ada@Example.com"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if s.Email() != "ada@example.com" || s.Onboarded() {
		t.Fatalf("unexpected session state email=%s onboarded=%v", s.Email(), s.Onboarded())
	}
	if _, err := s.User(); !errors.Is(err, engine.ErrNotOnboarded) {
		t.Fatalf("expected ErrNotOnboarded, got %v", err)
	}
	if _, err := s.Onboard(ctx, engine.OnboardOptions{Username: "ada", Age: 36, Location: "London"}); err != nil {
		t.Fatalf("onboard: %v", err)
	}
	rec, err := env.Engine.CreateRecord(ctx, s.Email(), "Scan")
	if err != nil {
		t.Fatalf("create record: %v", err)
	}
	if _, err := s.ActiveBoard(ctx); !errors.Is(err, ErrNoActiveRecord) {
		t.Fatalf("expected ErrNoActiveRecord, got %v", err)
	}
	if _, err := s.SelectRecord(ctx, rec.ID); err != nil || s.ActiveRecord() != rec.ID {
		t.Fatalf("select record: %v (active=%q)", err, s.ActiveRecord())
	}
	view, err := s.ActiveBoard(ctx)
	if err != nil {
		t.Fatalf("active board: %v", err)
	}
	if view.RecordID != rec.ID || len(view.Board.Columns()) != 0 {
		t.Fatalf("unexpected board view %+v", view)
	}

	s.Logout()
	if s.LoggedIn() || s.Onboarded() || s.ActiveRecord() != "" {
		t.Fatalf("logout left state behind")
	}

	if err := s.Login(ctx, "bob@example.com"); err != nil {
		t.Fatalf("login bob: %v", err)
	}
	var fe auth.ForbiddenError
	if _, err := s.SelectRecord(ctx, rec.ID); !errors.As(err, &fe) {
		t.Fatalf("expected forbidden for another user's record, got %v", err)
	}
}
