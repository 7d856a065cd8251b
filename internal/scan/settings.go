package scan

// ScanResolutionFloor is the hard lower bound for scan resolution. The
// capture never drops below half resolution regardless of pressure.
const ScanResolutionFloor = 0.5

// ProcessingQualityFloor bounds how far the controller may degrade
// processing quality before the session has to abort instead.
const ProcessingQualityFloor = 0.2

// QualitySettings is the control vector published by the adaptive
// controller. Every dimension lives in [0,1]; ScanResolution is further
// floored at ScanResolutionFloor. Only the controller mutates settings.
type QualitySettings struct {
	MeshDensity          float64 `json:"mesh_density"`
	ProcessingQuality    float64 `json:"processing_quality"`
	ScanResolution       float64 `json:"scan_resolution"`
	LightingCompensation float64 `json:"lighting_compensation"`
	MotionTolerance      float64 `json:"motion_tolerance"`
}

// Clamped returns a copy with every dimension clamped into its legal range.
func (s QualitySettings) Clamped() QualitySettings {
	s.MeshDensity = Clamp01(s.MeshDensity)
	s.ProcessingQuality = Clamp01(s.ProcessingQuality)
	s.ScanResolution = Clamp01(s.ScanResolution)
	if s.ScanResolution < ScanResolutionFloor {
		s.ScanResolution = ScanResolutionFloor
	}
	s.LightingCompensation = Clamp01(s.LightingCompensation)
	s.MotionTolerance = Clamp01(s.MotionTolerance)
	return s
}

// Profile selects the starting point for quality settings before the
// controller begins adapting them.
type Profile string

const (
	ProfileHigh        Profile = "high"
	ProfileBalanced    Profile = "balanced"
	ProfilePerformance Profile = "performance"
	ProfileCustom      Profile = "custom"
)

// SettingsForProfile returns the initial settings for a capture profile.
// ProfileCustom returns balanced values; callers overwrite them with the
// region-supplied configuration.
func SettingsForProfile(p Profile) QualitySettings {
	switch p {
	case ProfileHigh:
		return QualitySettings{
			MeshDensity:          1.0,
			ProcessingQuality:    1.0,
			ScanResolution:       1.0,
			LightingCompensation: 0.5,
			MotionTolerance:      0.3,
		}
	case ProfilePerformance:
		return QualitySettings{
			MeshDensity:          0.6,
			ProcessingQuality:    0.6,
			ScanResolution:       0.7,
			LightingCompensation: 0.5,
			MotionTolerance:      0.5,
		}
	default: // balanced and custom
		return QualitySettings{
			MeshDensity:          0.8,
			ProcessingQuality:    0.8,
			ScanResolution:       0.9,
			LightingCompensation: 0.5,
			MotionTolerance:      0.4,
		}
	}
}
