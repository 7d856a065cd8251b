// Package framemetrics computes per-frame scalar quality signals:
// lighting, motion stability, feature quality, and depth accuracy.
// Extraction is cheap by construction (fixed sampling grid, no full-image
// passes) so it can run synchronously on the frame delivery path.
package framemetrics

import (
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/scalpscan/scancore/internal/scan"
)

// Motion thresholds beyond which an axis contributes zero stability.
const (
	maxRotationRate    = 0.5 // rad/s
	maxTranslationRate = 0.2 // m/s
)

// Lighting constants.
const (
	samplingGridSize    = 16  // luminance sampled on a 16x16 grid, not per pixel
	intensityHistoryMax = 10  // rolling window for stability
	stableStdDev        = 0.1 // lighting is stable below this spread
)

// featureCountIdeal is the empirical feature count for a full-quality
// frame; quality saturates at 1.0 above it.
const featureCountIdeal = 200

// Extractor computes FrameMetrics from single frames. It keeps a bounded
// rolling history of intensity samples to answer LightingStable; all
// other computation is side-effect free.
type Extractor struct {
	mu        sync.Mutex
	intensity []float64
}

// NewExtractor creates an Extractor with an empty lighting history.
func NewExtractor() *Extractor {
	return &Extractor{intensity: make([]float64, 0, intensityHistoryMax)}
}

// Extract computes metrics for one frame. Missing depth, color, or
// feature data yields a zero for the corresponding metric; absence is
// signal, not failure.
func (e *Extractor) Extract(f *scan.Frame) scan.FrameMetrics {
	m := scan.FrameMetrics{Timestamp: f.Timestamp}

	m.Intensity, m.Uniformity, m.ColorTemperature = e.lighting(f.Color)
	m.MotionStability = motionStability(f.Motion)
	m.DepthAccuracy = depthAccuracy(f.Depth)

	if f.FeatureCount > 0 {
		m.FeatureQuality = scan.Clamp01(float64(f.FeatureCount) / featureCountIdeal)
	}

	e.mu.Lock()
	if len(e.intensity) == intensityHistoryMax {
		copy(e.intensity, e.intensity[1:])
		e.intensity = e.intensity[:intensityHistoryMax-1]
	}
	e.intensity = append(e.intensity, m.Intensity)
	e.mu.Unlock()

	return m
}

// LightingStable reports whether recent intensity samples have settled.
// Fewer than two samples is treated as stable: there is no evidence of
// flicker yet and the pre-scan gate should not block on it.
func (e *Extractor) LightingStable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.intensity) < 2 {
		return true
	}
	return stat.StdDev(e.intensity, nil) < stableStdDev
}

// Reset clears the lighting history at session boundaries.
func (e *Extractor) Reset() {
	e.mu.Lock()
	e.intensity = e.intensity[:0]
	e.mu.Unlock()
}

// lighting samples the color image on a fixed grid and derives mean
// luminance, uniformity, and an estimated color temperature.
func (e *Extractor) lighting(img *scan.ColorImage) (intensity, uniformity, colorTemp float64) {
	if img == nil || img.Width == 0 || img.Height == 0 {
		return 0, 0, 0
	}

	lum := make([]float64, 0, samplingGridSize*samplingGridSize)
	var rSum, bSum float64
	for gy := 0; gy < samplingGridSize; gy++ {
		for gx := 0; gx < samplingGridSize; gx++ {
			x := gx * img.Width / samplingGridSize
			y := gy * img.Height / samplingGridSize
			px := img.At(x, y)
			// Rec. 601 luma weights.
			lum = append(lum, 0.299*float64(px[0])+0.587*float64(px[1])+0.114*float64(px[2]))
			rSum += float64(px[0])
			bSum += float64(px[2])
		}
	}

	intensity = stat.Mean(lum, nil)
	spread := stat.StdDev(lum, nil)
	uniformity = scan.Clamp01(1 - spread*2)
	colorTemp = estimateColorTemperature(rSum, bSum)
	return intensity, uniformity, colorTemp
}

// estimateColorTemperature maps the red/blue channel balance onto an
// approximate Kelvin value. Warm light (red-heavy) maps low, cool light
// (blue-heavy) maps high. 6500K is the neutral point.
func estimateColorTemperature(rSum, bSum float64) float64 {
	const (
		neutralKelvin = 6500.0
		minKelvin     = 2000.0
		maxKelvin     = 10000.0
	)
	if rSum <= 0 && bSum <= 0 {
		return 0
	}
	if rSum <= 0 {
		return maxKelvin
	}
	ratio := bSum / rSum
	k := neutralKelvin * ratio
	if k < minKelvin {
		k = minKelvin
	}
	if k > maxKelvin {
		k = maxKelvin
	}
	return k
}

// motionStability combines rotation-rate and translation-rate stability
// conservatively: either axis alone degrades quality, so the minimum
// wins rather than the average.
func motionStability(m scan.MotionSample) float64 {
	rot := 1 - m.RotationRate/maxRotationRate
	trans := 1 - m.TranslationRate/maxTranslationRate
	return scan.Clamp01(min(rot, trans))
}

// depthAccuracy is the mean sensor confidence over valid depth returns
// on the sampling grid. No depth data yields zero.
func depthAccuracy(d *scan.DepthMap) float64 {
	if d == nil || d.Width == 0 || d.Height == 0 || len(d.Confidence) != len(d.Values) {
		return 0
	}
	var sum float64
	var n int
	for gy := 0; gy < samplingGridSize; gy++ {
		for gx := 0; gx < samplingGridSize; gx++ {
			x := gx * d.Width / samplingGridSize
			y := gy * d.Height / samplingGridSize
			if d.At(x, y) <= 0 {
				continue
			}
			sum += float64(d.ConfidenceAt(x, y))
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
