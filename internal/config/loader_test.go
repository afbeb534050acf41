package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	content := `{
	// This is a JSONC comment
	"storage": {
		"dir": "/tmp/handoff-chains"
	},
	"delegate": {
		"max_depth": 5,
		"default_timeout": "90s",
		"work_dir": "${{ .Env.HANDOFF_TEST_WORKDIR }}"
	},
	"mcp": {
		"github": {
			"command": "github-mcp",
			"args": ["--stdio"],
			"env": {"GITHUB_TOKEN": "${{ .Env.HANDOFF_TEST_TOKEN }}"}
		}
	}
}`

	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("HANDOFF_TEST_WORKDIR", "/srv/work")
	t.Setenv("HANDOFF_TEST_TOKEN", "tok-123")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Storage.Dir != "/tmp/handoff-chains" {
		t.Errorf("expected storage dir /tmp/handoff-chains, got %s", cfg.Storage.Dir)
	}
	if cfg.Delegate.MaxDepth != 5 {
		t.Errorf("expected max_depth 5, got %d", cfg.Delegate.MaxDepth)
	}
	if cfg.Delegate.DefaultTimeout.Duration() != 90*time.Second {
		t.Errorf("expected default_timeout 90s, got %s", cfg.Delegate.DefaultTimeout.Duration())
	}
	if cfg.Delegate.WorkDir != "/srv/work" {
		t.Errorf("expected work_dir /srv/work, got %s", cfg.Delegate.WorkDir)
	}

	srv, ok := cfg.MCP["github"]
	if !ok {
		t.Fatal("expected github mcp server")
	}
	if srv.Command != "github-mcp" {
		t.Errorf("expected command github-mcp, got %s", srv.Command)
	}
	if srv.Env["GITHUB_TOKEN"] != "tok-123" {
		t.Errorf("expected env token tok-123, got %s", srv.Env["GITHUB_TOKEN"])
	}
}

func TestLoadDefaults(t *testing.T) {
	content := `{}`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Storage.Dir == "" {
		t.Error("expected default storage dir")
	}
	if cfg.Delegate.MaxDepth != 3 {
		t.Errorf("expected default max_depth 3, got %d", cfg.Delegate.MaxDepth)
	}
	if cfg.Delegate.DefaultTimeout.Duration() != 2*time.Minute {
		t.Errorf("expected default timeout 2m, got %s", cfg.Delegate.DefaultTimeout.Duration())
	}
	if cfg.Events.BufferSize != 1024 {
		t.Errorf("expected default buffer size 1024, got %d", cfg.Events.BufferSize)
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.jsonc"))
	if err != nil {
		t.Fatalf("missing config should yield defaults, got error: %v", err)
	}
	if cfg.Delegate.MaxDepth != 3 {
		t.Errorf("expected default max_depth 3, got %d", cfg.Delegate.MaxDepth)
	}
}
