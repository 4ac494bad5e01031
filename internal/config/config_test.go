package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Analysis.Model != "gemini-1.5-pro" {
		t.Fatalf("model = %q", cfg.Analysis.Model)
	}
	if len(cfg.Board.DefaultColumns) != 3 || cfg.Board.DragActivationDistance != 10 {
		t.Fatalf("board defaults = %+v", cfg.Board)
	}
	if cfg.CacheTTL() != 5*time.Minute {
		t.Fatalf("ttl = %v", cfg.CacheTTL())
	}
}

func TestFromYAMLKeepsDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("server:\n  addr: \":9000\"\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Server.Addr != ":9000" || cfg.Analysis.Model != "gemini-1.5-pro" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if strings.Join(cfg.Board.DefaultColumns, ",") != "Todo,Doing,Done" {
		t.Fatalf("columns = %v", cfg.Board.DefaultColumns)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"bad base path":  "server:\n  base_path: v1\n",
		"empty column":   "board:\n  default_columns: [Todo, \"\"]\n",
		"dup column":     "board:\n  default_columns: [Todo, Todo]\n",
		"bad ttl":        "cache:\n  ttl: soon\n",
		"webhook no url": "webhooks:\n  - id: a\n    url: nope\n",
		"webhook dup id": "webhooks:\n  - id: a\n    url: http://x\n  - id: a\n    url: http://y\n",
		"negative drag":  "board:\n  drag_activation_distance: -1\n",
	}
	for name, doc := range cases {
		if _, err := FromYAML([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil || cfg == nil {
		t.Fatalf("missing file: %v", err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatalf("Load should fail without a file")
	}
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(GenerateDefault()), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err != nil {
		t.Fatalf("load generated: %v", err)
	}
}

func TestWebhookEnabledDefault(t *testing.T) {
	off := false
	if !(Webhook{}).IsEnabled() || (Webhook{Enabled: &off}).IsEnabled() {
		t.Fatalf("enabled semantics wrong")
	}
}
