package config

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func validConfig(dir string) Config {
	cfg := *Defaults()
	cfg.ProjectDir = dir
	cfg.ReportsDir = filepath.Join(dir, "reports")
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.SchwabAPIKey = "key"
	cfg.SchwabAppSecret = "secret"
	cfg.OpenAIAPIKey = "sk-test"
	return cfg
}

func TestManagerLoadsFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := WriteFile(path, validConfig(dir)); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	mgr, err := NewManager(WithConfigPath(path))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if got := mgr.Get().SchwabAPIKey; got != "key" {
		t.Fatalf("expected schwab key %q, got %q", "key", got)
	}
	if mgr.Path() != path {
		t.Fatalf("expected path %s, got %s", path, mgr.Path())
	}
}

func TestManagerRejectsInvalidFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	cfg := validConfig(dir)
	cfg.RiskTolerance = 42
	if err := WriteFile(path, cfg); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := NewManager(WithConfigPath(path)); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestManagerWatchReloads(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := WriteFile(path, validConfig(dir)); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	mgr, err := NewManager(WithConfigPath(path), WithDebounce(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan Config, 1)
	if err := mgr.Watch(ctx, func(cfg Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	}); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	cfg := mgr.Get()
	cfg.MaxTradesPerSession = 2
	if err := WriteFile(path, cfg); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	select {
	case got := <-reloaded:
		if got.MaxTradesPerSession != 2 {
			t.Fatalf("expected reloaded max trades 2, got %d", got.MaxTradesPerSession)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("watcher did not fire on config change")
	}
}
