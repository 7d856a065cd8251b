package scan

import "time"

// Acceptance thresholds for a finished capture. These are fixed product
// requirements, not tunables: a mesh below any of them is not suitable
// for treatment planning.
const (
	MinPointDensity        = 100.0 // points per unit area
	MinSurfaceCompleteness = 0.95
	MinSurfaceContinuity   = 0.90
	MinNormalConsistency   = 0.90
	MinFeatureQuality      = 0.80
	MaxNoiseLevel          = 0.02 // fraction of characteristic scan dimension
)

// QualityMetrics is the output of one quality-kernel pass over the
// accumulated point set. All values except PointDensity and NoiseLevel
// are in [0,1]; NoiseLevel is non-negative.
type QualityMetrics struct {
	PointDensity        float64   `json:"point_density"`
	SurfaceCompleteness float64   `json:"surface_completeness"`
	SurfaceContinuity   float64   `json:"surface_continuity"`
	NormalConsistency   float64   `json:"normal_consistency"`
	FeatureQuality      float64   `json:"feature_quality"`
	NoiseLevel          float64   `json:"noise_level"`
	Timestamp           time.Time `json:"timestamp"`
}

// IsAcceptable reports whether every metric clears its acceptance
// threshold. Pure predicate; no side effects.
func (m QualityMetrics) IsAcceptable() bool {
	return m.PointDensity >= MinPointDensity &&
		m.SurfaceCompleteness >= MinSurfaceCompleteness &&
		m.SurfaceContinuity >= MinSurfaceContinuity &&
		m.NormalConsistency >= MinNormalConsistency &&
		m.FeatureQuality >= MinFeatureQuality &&
		m.NoiseLevel <= MaxNoiseLevel
}

// Score folds the metrics into one scalar in [0,1] used by the capture
// acceptance gate. Weighted contributions, each clamped before weighting:
//
//	0.30 surface completeness
//	0.25 normal consistency
//	0.20 feature quality
//	0.15 noise (inverted, normalised against MaxNoiseLevel)
//	0.10 surface continuity
func (m QualityMetrics) Score() float64 {
	noiseScore := 1.0 - m.NoiseLevel/MaxNoiseLevel
	if noiseScore < 0 {
		noiseScore = 0
	}
	return 0.30*Clamp01(m.SurfaceCompleteness) +
		0.25*Clamp01(m.NormalConsistency) +
		0.20*Clamp01(m.FeatureQuality) +
		0.15*noiseScore +
		0.10*Clamp01(m.SurfaceContinuity)
}

// FrameMetrics holds the per-frame scalar metrics produced by the frame
// metric extractor. A zero value for any metric means the corresponding
// input was absent; absence is signal, not failure.
type FrameMetrics struct {
	Intensity        float64   `json:"intensity"`         // mean normalised luminance
	Uniformity       float64   `json:"uniformity"`        // 1 - normalised luminance spread
	ColorTemperature float64   `json:"color_temperature"` // estimated Kelvin
	MotionStability  float64   `json:"motion_stability"`  // min of rotation/translation stability
	FeatureQuality   float64   `json:"feature_quality"`
	DepthAccuracy    float64   `json:"depth_accuracy"` // confidence-weighted
	Timestamp        time.Time `json:"timestamp"`
}

// EnvironmentMetrics summarises recent frame metrics for the adaptive
// controller: one lighting level and one motion stability figure.
type EnvironmentMetrics struct {
	LightLevel      float64 `json:"light_level"`
	LightingStable  bool    `json:"lighting_stable"`
	MotionStability float64 `json:"motion_stability"`
}

// QualityAnalysis is the per-frame snapshot published for live guidance.
type QualityAnalysis struct {
	Frame          FrameMetrics   `json:"frame"`
	Mesh           QualityMetrics `json:"mesh"`
	ScanningScore  float64        `json:"scanning_score"`
	Coverage       float64        `json:"coverage"`
	Recommendation string         `json:"recommendation"`
}
