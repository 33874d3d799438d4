package config

import (
	"strings"
	"testing"
)

func TestInterpolate(t *testing.T) {
	t.Setenv("RG_TOKEN", "abc123")
	t.Setenv("RG_EMPTY", "")

	tests := []struct {
		in, want, errHas string
	}{
		{in: "Bearer ${RG_TOKEN}", want: "Bearer abc123"},
		{in: "x${RG_EMPTY}y", want: "xy"},
		{in: "$HOME and ${} stay", want: "$HOME and ${} stay"},
		{in: "no refs", want: "no refs"},
		{in: "${RG_MISSING_A}:${RG_TOKEN}:${RG_MISSING_B}", errHas: "RG_MISSING_A, RG_MISSING_B"},
	}
	for _, tt := range tests {
		got, err := Interpolate(tt.in)
		if tt.errHas != "" {
			if err == nil || !strings.Contains(err.Error(), tt.errHas) {
				t.Errorf("Interpolate(%q) error = %v, want %q", tt.in, err, tt.errHas)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("Interpolate(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestExpandEnvLeavesScriptSource(t *testing.T) {
	t.Setenv("RG_DIR", "/srv")
	c := Config{
		Specs:           []SpecSource{{File: "${RG_DIR}/a.yaml"}},
		CustomResolvers: []CustomResolver{{Source: "return `${args.id}`"}},
	}
	if err := c.ExpandEnv(); err != nil {
		t.Fatal(err)
	}
	if c.Specs[0].File != "/srv/a.yaml" {
		t.Errorf("file = %q", c.Specs[0].File)
	}
	if c.CustomResolvers[0].Source != "return `${args.id}`" {
		t.Errorf("source rewritten: %q", c.CustomResolvers[0].Source)
	}
}
