package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	got, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != Defaults() {
		t.Fatalf("got %+v want defaults", got)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	raw := []byte("planner:\n  already_exists_coef: 0.5\nmetrics:\n  log_dir: ./data/metrics\n")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Planner.AlreadyExistsCoef != 0.5 {
		t.Fatalf("coef=%v want 0.5", got.Planner.AlreadyExistsCoef)
	}
	if got.Planner.MaxExpanded != Defaults().Planner.MaxExpanded {
		t.Fatalf("unset field lost its default: %d", got.Planner.MaxExpanded)
	}
	if got.Metrics.LogDir != "./data/metrics" || got.TickRateHz != 10 {
		t.Fatalf("got %+v", got)
	}
}

func TestLoadRejectsBadCoefficient(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("planner:\n  already_exists_coef: 1.5\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("planner: [unterminated\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}
