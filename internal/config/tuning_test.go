package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadPartialConfig(t *testing.T) {
	path := writeConfig(t, "tuning.json", `{
		"profile": "performance",
		"checkpoint_interval": "45s",
		"target_regions": 300
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := cfg.GetProfile("balanced"); got != "performance" {
		t.Errorf("profile = %q, want performance", got)
	}
	if got := cfg.GetCheckpointInterval(30 * time.Second); got != 45*time.Second {
		t.Errorf("checkpoint interval = %v, want 45s", got)
	}
	// Omitted fields fall back.
	if got := cfg.GetSampleInterval(time.Second); got != time.Second {
		t.Errorf("sample interval = %v, want fallback 1s", got)
	}

	cov := cfg.CoverageConfig()
	if cov.TargetRegions != 300 {
		t.Errorf("target regions = %d, want 300", cov.TargetRegions)
	}
	if cov.CellSize != 0 {
		t.Errorf("cell size should stay zero for default filling, got %v", cov.CellSize)
	}

	// Kernel params untouched keep their defaults.
	p := cfg.ProcessingParameters()
	if p.SpatialSigma != 0.01 || p.ConfidenceThreshold != 0.3 {
		t.Errorf("kernel params changed unexpectedly: %+v", p)
	}
}

func TestLoadKernelOverrides(t *testing.T) {
	path := writeConfig(t, "tuning.json", `{
		"spatial_sigma": 0.02,
		"confidence_threshold": 0.5
	}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	p := cfg.ProcessingParameters()
	if p.SpatialSigma != 0.02 || p.ConfidenceThreshold != 0.5 {
		t.Errorf("overrides not applied: %+v", p)
	}
	if p.RangeSigma != 0.05 {
		t.Errorf("untouched param changed: %+v", p)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"bad profile":   `{"profile": "ultra"}`,
		"bad duration":  `{"checkpoint_interval": "soon"}`,
		"zero cell":     `{"coverage_cell_size": 0}`,
		"bad fraction":  `{"complete_fraction": 1.5}`,
		"bad threshold": `{"confidence_threshold": -0.1}`,
		"bad json":      `{`,
	}
	for name, content := range cases {
		path := writeConfig(t, "tuning.json", content)
		if _, err := Load(path); err == nil {
			t.Errorf("%s: Load should fail", name)
		}
	}
}

func TestLoadRejectsNonJSONExtension(t *testing.T) {
	path := writeConfig(t, "tuning.yaml", `{}`)
	if _, err := Load(path); err == nil {
		t.Fatalf("non-json extension should be rejected")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatalf("missing file should be an error")
	}
}

func TestNilConfigGetters(t *testing.T) {
	var cfg *TuningConfig
	if got := cfg.GetProfile("balanced"); got != "balanced" {
		t.Errorf("nil config profile = %q", got)
	}
	if got := cfg.GetCheckpointInterval(30 * time.Second); got != 30*time.Second {
		t.Errorf("nil config interval = %v", got)
	}
	if cov := cfg.CoverageConfig(); cov.TargetRegions != 0 {
		t.Errorf("nil config coverage = %+v", cov)
	}
}
