package session

import (
	"fmt"

	"github.com/scalpscan/scancore/internal/scan"
)

// Guidance severity, most severe first. The guidance stream never goes
// silent: when nothing is wrong, the positive signal is itself the
// message.
const (
	guidanceResource = "The device is overloaded. Pause and let it cool down."
	guidanceMotion   = "Hold the device steadier."
	guidanceLighting = "Improve the lighting before continuing."
	guidanceFlicker  = "Lighting is fluctuating; move away from flickering light sources."
	guidanceQuality  = "Keep scanning; surface detail is not yet sufficient."
	guidanceAllGood  = "Scan looks good. Ready to capture."
)

// Analysis returns the live quality snapshot for UI guidance.
func (s *Session) Analysis() scan.QualityAnalysis {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.analysisLocked()
}

// Guidance returns the most severe outstanding issue as an actionable
// message.
func (s *Session) Guidance() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.guidanceLocked()
}

func (s *Session) analysisLocked() scan.QualityAnalysis {
	return scan.QualityAnalysis{
		Frame:          s.lastFrame,
		Mesh:           s.lastMetrics,
		ScanningScore:  s.lastMetrics.Score(),
		Coverage:       s.coverageFrac,
		Recommendation: s.guidanceLocked(),
	}
}

func (s *Session) guidanceLocked() string {
	if s.reason != nil {
		return s.reason.Guidance
	}
	if s.cfg.Monitor != nil && s.cfg.Monitor.Critical() {
		return guidanceResource
	}
	if s.lastEnv.MotionStability < minStartMotionStability {
		return guidanceMotion
	}
	if s.lastEnv.LightLevel < minStartLightLevel {
		return guidanceLighting
	}
	if !s.lastEnv.LightingStable {
		return guidanceFlicker
	}
	if s.lastMetrics.Score() < CaptureMinScore {
		return guidanceQuality
	}
	if !s.cfg.Coverage.Complete() {
		if pos, _, ok := s.cfg.Coverage.LeastCovered(); ok {
			return fmt.Sprintf("Move toward the least covered area near (%.2f, %.2f, %.2f).", pos[0], pos[1], pos[2])
		}
		return "Start moving the device over the scan target."
	}
	return guidanceAllGood
}
