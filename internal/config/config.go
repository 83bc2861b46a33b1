// Package config loads the server's YAML configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"bonfire.gg/internal/claims"
	"bonfire.gg/internal/limits"
	"bonfire.gg/internal/render"
)

type Config struct {
	DefaultRules         RulesSpec  `yaml:"default_rules"`
	Limits               LimitsSpec `yaml:"limits"`
	MergeConfirmWindowMs int        `yaml:"merge_confirm_window_ms"`
	Render               RenderSpec `yaml:"render"`
}

type RulesSpec struct {
	AllowBlockBreak     bool   `yaml:"allow_block_break"`
	AllowBlockInteract  bool   `yaml:"allow_block_interact"`
	AllowEntityInteract string `yaml:"allow_entity_interact"`
}

type LimitsSpec struct {
	BaseChunks int        `yaml:"base_chunks"`
	BaseClaims int        `yaml:"base_claims"`
	Tiers      []TierSpec `yaml:"tiers,omitempty"`
}

type TierSpec struct {
	PlaytimeHours float64 `yaml:"playtime_hours"`
	MaxChunks     int     `yaml:"max_chunks"`
	MaxClaims     int     `yaml:"max_claims"`
}

type RenderSpec struct {
	MarkerSetID    string `yaml:"marker_set_id"`
	MarkerSetLabel string `yaml:"marker_set_label"`
	// LabelFormat takes the owner name as its only verb.
	LabelFormat string `yaml:"label_format"`
	LineColor   Color  `yaml:"line_color"`
	FillColor   Color  `yaml:"fill_color"`
	LineWidth   int    `yaml:"line_width"`
	MinY        int    `yaml:"min_y"`
	MaxY        int    `yaml:"max_y"`
}

type Color struct {
	R uint8   `yaml:"r" json:"r"`
	G uint8   `yaml:"g" json:"g"`
	B uint8   `yaml:"b" json:"b"`
	A float64 `yaml:"a" json:"a"`
}

func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("bonfire.yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("bonfire.yaml: %w", err)
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		DefaultRules: RulesSpec{
			AllowBlockBreak:     false,
			AllowBlockInteract:  false,
			AllowEntityInteract: "false",
		},
		Limits: LimitsSpec{
			BaseChunks: 16,
			BaseClaims: 2,
			Tiers: []TierSpec{
				{PlaytimeHours: 10, MaxChunks: 48, MaxClaims: 3},
				{PlaytimeHours: 50, MaxChunks: 128, MaxClaims: 5},
			},
		},
		MergeConfirmWindowMs: 15000,
		Render: RenderSpec{
			MarkerSetID:    "bonfire_claims",
			MarkerSetLabel: "Bonfire Claims",
			LabelFormat:    "Claimed by %s",
			LineColor:      Color{R: 255, G: 221, B: 161, A: 0.4},
			FillColor:      Color{R: 255, G: 231, B: 161, A: 0.1},
			LineWidth:      2,
			MinY:           64,
			MaxY:           320,
		},
	}
}

func (c *Config) Normalize() {
	if c == nil {
		return
	}
	c.DefaultRules.AllowEntityInteract = strings.TrimSpace(c.DefaultRules.AllowEntityInteract)
	if c.DefaultRules.AllowEntityInteract == "" {
		c.DefaultRules.AllowEntityInteract = "false"
	}
	if c.MergeConfirmWindowMs <= 0 {
		c.MergeConfirmWindowMs = 15000
	}
	if strings.TrimSpace(c.Render.LabelFormat) == "" {
		c.Render.LabelFormat = "Claimed by %s"
	}
	if c.Render.MarkerSetID == "" {
		c.Render.MarkerSetID = "bonfire_claims"
	}
	if c.Render.LineWidth <= 0 {
		c.Render.LineWidth = 1
	}
}

func (c Config) Validate() error {
	c.Normalize()
	if _, ok := claims.ParseEntityRule(c.DefaultRules.AllowEntityInteract); !ok {
		return fmt.Errorf("default_rules.allow_entity_interact must be true, false or onlyMounts, got %q", c.DefaultRules.AllowEntityInteract)
	}
	if c.Limits.BaseChunks < 0 || c.Limits.BaseClaims < 0 {
		return fmt.Errorf("limits.base_chunks and limits.base_claims must be >= 0")
	}
	seen := map[float64]bool{}
	for i, t := range c.Limits.Tiers {
		if t.PlaytimeHours < 0 {
			return fmt.Errorf("limits.tiers[%d].playtime_hours must be >= 0", i)
		}
		if seen[t.PlaytimeHours] {
			return fmt.Errorf("limits.tiers[%d] duplicate playtime_hours %v", i, t.PlaytimeHours)
		}
		seen[t.PlaytimeHours] = true
		if t.MaxChunks < 0 || t.MaxClaims < 0 {
			return fmt.Errorf("limits.tiers[%d] limits must be >= 0", i)
		}
	}
	if c.Render.MinY >= c.Render.MaxY {
		return fmt.Errorf("render.min_y must be < render.max_y")
	}
	if strings.Count(c.Render.LabelFormat, "%s") != 1 {
		return fmt.Errorf("render.label_format must contain exactly one %%s")
	}
	for name, col := range map[string]Color{"line_color": c.Render.LineColor, "fill_color": c.Render.FillColor} {
		if col.A < 0 || col.A > 1 {
			return fmt.Errorf("render.%s.a must be in [0, 1]", name)
		}
	}
	return nil
}

// Rules returns the default rules for new claims. Validate has already
// checked the entity rule.
func (c Config) Rules() claims.Rules {
	r, _ := claims.ParseEntityRule(c.DefaultRules.AllowEntityInteract)
	return claims.Rules{
		AllowBlockBreak:     c.DefaultRules.AllowBlockBreak,
		AllowBlockInteract:  c.DefaultRules.AllowBlockInteract,
		AllowEntityInteract: r,
	}
}

func (c Config) LimitConfig() limits.Config {
	out := limits.Config{BaseChunks: c.Limits.BaseChunks, BaseClaims: c.Limits.BaseClaims}
	for _, t := range c.Limits.Tiers {
		out.Tiers = append(out.Tiers, limits.Tier{PlaytimeHours: t.PlaytimeHours, MaxChunks: t.MaxChunks, MaxClaims: t.MaxClaims})
	}
	return out
}

func (c Config) MergeWindow() time.Duration {
	return time.Duration(c.MergeConfirmWindowMs) * time.Millisecond
}

func (c Config) Style() render.Style {
	conv := func(col Color) render.Color { return render.Color{R: col.R, G: col.G, B: col.B, A: col.A} }
	return render.Style{
		MarkerSetID:    c.Render.MarkerSetID,
		MarkerSetLabel: c.Render.MarkerSetLabel,
		LabelFormat:    c.Render.LabelFormat,
		LineColor:      conv(c.Render.LineColor),
		FillColor:      conv(c.Render.FillColor),
		LineWidth:      c.Render.LineWidth,
		MinY:           c.Render.MinY,
		MaxY:           c.Render.MaxY,
	}
}
