package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"medboard/internal/config"
	"medboard/internal/engine"
)

func TestOpenWithoutConfig(t *testing.T) {
	ctx := context.Background()
	env, err := Open(ctx, Options{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer env.Close()
	if env.Engine.Cache != nil || env.Engine.Analyzer != nil {
		t.Fatalf("expected no cache or analyzer without configuration")
	}
	if got := env.Config.Server.BasePath; got != "/v1" {
		t.Fatalf("expected default base path, got %q", got)
	}
	if _, err := env.Engine.Onboard(ctx, "ada@example.com", engine.OnboardOptions{Username: "ada", Age: 30, Location: "Paris"}); err != nil {
		t.Fatalf("onboard: %v", err)
	}
}

func TestOpenWiresRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	ws := t.TempDir()
	env, err := Open(ctx, Options{Workspace: ws, RedisURL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer env.Close()
	if env.Engine.Cache == nil {
		t.Fatalf("expected record cache")
	}
	e := env.Engine
	if _, err := e.Onboard(ctx, "ada@example.com", engine.OnboardOptions{Username: "ada", Age: 30, Location: "Paris"}); err != nil {
		t.Fatalf("onboard: %v", err)
	}
	if _, err := e.CreateRecord(ctx, "ada@example.com", "Scan"); err != nil {
		t.Fatalf("create record: %v", err)
	}
	recs, err := e.ListRecords(ctx, "ada@example.com")
	if err != nil || len(recs) != 1 {
		t.Fatalf("list records: %v %v", recs, err)
	}
	if len(mr.Keys()) == 0 {
		t.Fatalf("expected record list to be cached")
	}
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	ws := t.TempDir()
	if err := os.WriteFile(filepath.Join(ws, config.FileName), []byte("board:\n  drag_activation_distance: -1\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Open(context.Background(), Options{Workspace: ws}); err == nil {
		t.Fatalf("expected invalid config to fail")
	}
}

func TestIdentity(t *testing.T) {
	if got, err := Identity("  Ada@Example.COM "); err != nil || got != "ada@example.com" {
		t.Fatalf("identity = %q, %v", got, err)
	}
	if _, err := Identity(""); !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("expected ErrNoIdentity, got %v", err)
	}
	if _, err := Identity("nobody"); err == nil {
		t.Fatalf("expected invalid email error")
	}
}
