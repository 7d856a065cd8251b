// Package config loads optional tuning overrides from JSON. All fields
// are pointers so a partial file only overrides what it names; getters
// fall back to the built-in defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/scalpscan/scancore/internal/scan/coverage"
	"github.com/scalpscan/scancore/internal/scan/kernel"
)

// TuningConfig is the root of the tuning file. The schema is stable so
// the same JSON works for startup configuration and saved presets.
type TuningConfig struct {
	// Session params
	Profile               *string `json:"profile,omitempty"`             // high|balanced|performance|custom
	CheckpointInterval    *string `json:"checkpoint_interval,omitempty"` // duration string like "30s"
	CheckpointRetryBudget *int    `json:"checkpoint_retry_budget,omitempty"`
	MaxRecoveryAttempts   *int    `json:"max_recovery_attempts,omitempty"`

	// Coverage params
	CoverageCellSize   *float64 `json:"coverage_cell_size,omitempty"`
	TargetRegions      *int     `json:"target_regions,omitempty"`
	MinPointsPerRegion *int     `json:"min_points_per_region,omitempty"`
	CompleteFraction   *float64 `json:"complete_fraction,omitempty"`

	// Kernel params
	GroupSize           *int     `json:"group_size,omitempty"`
	SpatialSigma        *float64 `json:"spatial_sigma,omitempty"`
	RangeSigma          *float64 `json:"range_sigma,omitempty"`
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`
	FeatureWeight       *float64 `json:"feature_weight,omitempty"`

	// Resource monitor params
	SampleInterval *string `json:"sample_interval,omitempty"` // duration string like "1s"
	HistorySamples *int    `json:"history_samples,omitempty"`
}

// Empty returns a TuningConfig with every field nil.
func Empty() *TuningConfig { return &TuningConfig{} }

// Load reads a TuningConfig from a JSON file. Fields omitted from the
// file stay nil, so partial configs are safe.
func Load(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate rejects values that would put the pipeline into a broken
// state. Nil fields are always valid.
func (c *TuningConfig) Validate() error {
	if c.Profile != nil {
		switch *c.Profile {
		case "high", "balanced", "performance", "custom":
		default:
			return fmt.Errorf("unknown profile %q", *c.Profile)
		}
	}
	if c.CheckpointInterval != nil {
		if _, err := time.ParseDuration(*c.CheckpointInterval); err != nil {
			return fmt.Errorf("bad checkpoint_interval: %w", err)
		}
	}
	if c.SampleInterval != nil {
		if _, err := time.ParseDuration(*c.SampleInterval); err != nil {
			return fmt.Errorf("bad sample_interval: %w", err)
		}
	}
	if c.CoverageCellSize != nil && *c.CoverageCellSize <= 0 {
		return fmt.Errorf("coverage_cell_size must be positive")
	}
	if c.TargetRegions != nil && *c.TargetRegions < 1 {
		return fmt.Errorf("target_regions must be at least 1")
	}
	if c.MinPointsPerRegion != nil && *c.MinPointsPerRegion < 1 {
		return fmt.Errorf("min_points_per_region must be at least 1")
	}
	if c.CompleteFraction != nil && (*c.CompleteFraction <= 0 || *c.CompleteFraction > 1) {
		return fmt.Errorf("complete_fraction must be in (0, 1]")
	}
	if c.GroupSize != nil && *c.GroupSize < 1 {
		return fmt.Errorf("group_size must be at least 1")
	}
	if c.ConfidenceThreshold != nil && (*c.ConfidenceThreshold < 0 || *c.ConfidenceThreshold > 1) {
		return fmt.Errorf("confidence_threshold must be in [0, 1]")
	}
	if c.HistorySamples != nil && *c.HistorySamples < 1 {
		return fmt.Errorf("history_samples must be at least 1")
	}
	return nil
}

// GetCheckpointInterval returns the configured checkpoint interval or
// fallback. The duration string was validated at load time.
func (c *TuningConfig) GetCheckpointInterval(fallback time.Duration) time.Duration {
	if c == nil || c.CheckpointInterval == nil {
		return fallback
	}
	d, err := time.ParseDuration(*c.CheckpointInterval)
	if err != nil {
		return fallback
	}
	return d
}

// GetSampleInterval returns the resource sampling cadence or fallback.
func (c *TuningConfig) GetSampleInterval(fallback time.Duration) time.Duration {
	if c == nil || c.SampleInterval == nil {
		return fallback
	}
	d, err := time.ParseDuration(*c.SampleInterval)
	if err != nil {
		return fallback
	}
	return d
}

// GetProfile returns the configured profile name or fallback.
func (c *TuningConfig) GetProfile(fallback string) string {
	if c == nil || c.Profile == nil {
		return fallback
	}
	return *c.Profile
}

// CoverageConfig folds the coverage overrides into a coverage.Config.
// Nil fields stay zero and take the package defaults in NewTracker.
func (c *TuningConfig) CoverageConfig() coverage.Config {
	var cfg coverage.Config
	if c == nil {
		return cfg
	}
	if c.CoverageCellSize != nil {
		cfg.CellSize = *c.CoverageCellSize
	}
	if c.TargetRegions != nil {
		cfg.TargetRegions = *c.TargetRegions
	}
	if c.MinPointsPerRegion != nil {
		cfg.MinPointsPerRegion = *c.MinPointsPerRegion
	}
	if c.CompleteFraction != nil {
		cfg.CompleteFraction = *c.CompleteFraction
	}
	return cfg
}

// ProcessingParameters folds the kernel overrides into the default
// processing parameters.
func (c *TuningConfig) ProcessingParameters() kernel.ProcessingParameters {
	p := kernel.DefaultProcessingParameters()
	if c == nil {
		return p
	}
	if c.SpatialSigma != nil {
		p.SpatialSigma = *c.SpatialSigma
	}
	if c.RangeSigma != nil {
		p.RangeSigma = *c.RangeSigma
	}
	if c.ConfidenceThreshold != nil {
		p.ConfidenceThreshold = *c.ConfidenceThreshold
	}
	if c.FeatureWeight != nil {
		p.FeatureWeight = *c.FeatureWeight
	}
	return p
}
