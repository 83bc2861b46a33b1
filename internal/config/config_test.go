package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"bonfire.gg/internal/claims"
	"bonfire.gg/internal/render"
)

func TestLoad_BonfireYAML(t *testing.T) {
	cfg, err := Load("../../configs/bonfire.yaml")
	if err != nil {
		t.Fatalf("load bonfire.yaml: %v", err)
	}
	if cfg.MergeWindow() != 15*time.Second {
		t.Fatalf("merge window=%v", cfg.MergeWindow())
	}
	if r := cfg.Rules(); r != (claims.Rules{}) {
		t.Fatalf("default rules should deny everything: %+v", r)
	}
	lc := cfg.LimitConfig()
	if lc.BaseChunks != 16 || len(lc.Tiers) != 3 {
		t.Fatalf("limits=%+v", lc)
	}
	if cfg.Render.LabelFormat != "Claimed by %s" || cfg.Render.MaxY != 320 {
		t.Fatalf("render=%+v", cfg.Render)
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if cfg.Style() != render.DefaultStyle() {
		t.Fatalf("default style drifted from render.DefaultStyle: %+v", cfg.Style())
	}
	if cfg.MergeConfirmWindowMs != 15000 {
		t.Fatalf("merge window=%d", cfg.MergeConfirmWindowMs)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bonfire.yaml")
	raw := "default_rules:\n  allow_entity_interact: onlyMounts\nmerge_confirm_window_ms: 0\n"
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Rules().AllowEntityInteract != claims.EntityOnlyMounts {
		t.Fatalf("entity rule not applied")
	}
	if cfg.MergeConfirmWindowMs != 15000 {
		t.Fatalf("non-positive window must normalize to the default")
	}
	if cfg.Limits.BaseChunks != 16 {
		t.Fatalf("unset limits must keep defaults")
	}
}

func TestValidate_Rejects(t *testing.T) {
	cases := map[string]func(*Config){
		"entity rule": func(c *Config) { c.DefaultRules.AllowEntityInteract = "maybe" },
		"tier hours":  func(c *Config) { c.Limits.Tiers = []TierSpec{{PlaytimeHours: -1}} },
		"dup tiers":   func(c *Config) { c.Limits.Tiers = []TierSpec{{PlaytimeHours: 1}, {PlaytimeHours: 1}} },
		"heights":     func(c *Config) { c.Render.MinY, c.Render.MaxY = 100, 100 },
		"label":       func(c *Config) { c.Render.LabelFormat = "Claimed" },
		"alpha":       func(c *Config) { c.Render.FillColor.A = 2 },
	}
	for name, mutate := range cases {
		cfg := defaults()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}
