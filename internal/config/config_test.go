package config

import (
	"path/filepath"
	"testing"
)

func TestDefaultConfigWithRoot(t *testing.T) {
	root := t.TempDir()
	cfg := DefaultConfigWithRoot(root)

	if cfg.ProjectDir != root {
		t.Errorf("ProjectDir = %q, want %q", cfg.ProjectDir, root)
	}
	if cfg.AuditDBPath != filepath.Join(root, "data", "audit.db") {
		t.Errorf("AuditDBPath = %q", cfg.AuditDBPath)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("MAX_DEBATE_ROUNDS", "4")
	t.Setenv("WATCHLIST", "TSLA, AMD ,GOOG")
	t.Setenv("VERDICTGO_DEBUG", "true")

	cfg := DefaultConfigWithRoot(t.TempDir())

	if cfg.LLMProvider != "openai" {
		t.Errorf("LLMProvider = %q, want openai", cfg.LLMProvider)
	}
	if cfg.MaxDebateRounds != 4 {
		t.Errorf("MaxDebateRounds = %d, want 4", cfg.MaxDebateRounds)
	}
	want := []string{"TSLA", "AMD", "GOOG"}
	if len(cfg.Watchlist) != len(want) {
		t.Fatalf("Watchlist = %v, want %v", cfg.Watchlist, want)
	}
	for i := range want {
		if cfg.Watchlist[i] != want[i] {
			t.Errorf("Watchlist[%d] = %q, want %q", i, cfg.Watchlist[i], want[i])
		}
	}
	if !cfg.Debug {
		t.Error("Debug not set from VERDICTGO_DEBUG")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero debate rounds", func(c *Config) { c.MaxDebateRounds = 0 }},
		{"negative degraded fraction", func(c *Config) { c.DegradedClaimFraction = -0.1 }},
		{"supermajority above one", func(c *Config) { c.SupermajorityThreshold = 1.01 }},
		{"zero agent timeout", func(c *Config) { c.AgentTimeoutSec = 0 }},
		{"negative persist retries", func(c *Config) { c.PersistRetries = -1 }},
		{"unknown provider", func(c *Config) { c.LLMProvider = "claude" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfigWithRoot(t.TempDir())
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate accepted invalid config")
			}
		})
	}
}
