package config

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestManagerCreatesDefaultConfig(t *testing.T) {
	dir := t.TempDir()

	mgr, err := NewManager(WithConfigDir(dir))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "config.json")); err != nil {
		t.Fatalf("config file not created: %v", err)
	}

	cfg := mgr.Get()
	if cfg.MaxDebateRounds != 3 {
		t.Errorf("MaxDebateRounds = %d, want 3", cfg.MaxDebateRounds)
	}
	if cfg.SupermajorityThreshold != 0.75 {
		t.Errorf("SupermajorityThreshold = %v, want 0.75", cfg.SupermajorityThreshold)
	}
}

func TestManagerUpdatePersists(t *testing.T) {
	dir := t.TempDir()

	mgr, err := NewManager(WithConfigDir(dir))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	cfg := mgr.Get()
	cfg.MaxDebateRounds = 5
	cfg.Watchlist = []string{"AAPL", "NVDA"}
	if err := mgr.Update(cfg); err != nil {
		t.Fatalf("Update: %v", err)
	}

	data, err := os.ReadFile(mgr.Path())
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	var onDisk Config
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if onDisk.MaxDebateRounds != 5 {
		t.Errorf("persisted MaxDebateRounds = %d, want 5", onDisk.MaxDebateRounds)
	}
	if len(onDisk.Watchlist) != 2 || onDisk.Watchlist[0] != "AAPL" {
		t.Errorf("persisted Watchlist = %v", onDisk.Watchlist)
	}
}

func TestManagerUpdateRejectsInvalid(t *testing.T) {
	dir := t.TempDir()

	mgr, err := NewManager(WithConfigDir(dir))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	cfg := mgr.Get()
	cfg.SupermajorityThreshold = 1.5
	if err := mgr.Update(cfg); err == nil {
		t.Fatal("Update accepted out-of-range supermajority threshold")
	}
	if mgr.Get().SupermajorityThreshold != 0.75 {
		t.Errorf("in-memory config mutated after rejected update")
	}
}

func TestManagerWatchReloads(t *testing.T) {
	dir := t.TempDir()

	mgr, err := NewManager(WithConfigDir(dir), WithDebounce(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan Config, 1)
	if err := mgr.Watch(ctx, func(cfg Config) {
		select {
		case changed <- cfg:
		default:
		}
	}); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	cfg := mgr.Get()
	cfg.AgentTimeoutSec = 60
	data, err := json.MarshalIndent(&cfg, "", "  ")
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(mgr.Path(), data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	select {
	case got := <-changed:
		if got.AgentTimeoutSec != 60 {
			t.Errorf("reloaded AgentTimeoutSec = %d, want 60", got.AgentTimeoutSec)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("config change was not observed")
	}

	if mgr.Get().AgentTimeoutSec != 60 {
		t.Errorf("Get after reload = %d, want 60", mgr.Get().AgentTimeoutSec)
	}
}
