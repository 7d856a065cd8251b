// Package scan defines the shared data model for the capture pipeline:
// frames, accumulated points, quality metrics and settings, resource
// snapshots, and the error taxonomy surfaced to the session owner.
package scan

import "time"

// Phase identifies which capture phase produced a frame. Threshold
// profiles differ per phase because the compute cost of each differs.
type Phase string

const (
	PhaseLidar          Phase = "lidar"
	PhasePhotogrammetry Phase = "photogrammetry"
	PhaseFusion         Phase = "fusion"
)

// IsValid returns true if the phase is a known valid value.
func (p Phase) IsValid() bool {
	switch p {
	case PhaseLidar, PhasePhotogrammetry, PhaseFusion:
		return true
	default:
		return false
	}
}

// Pose is a rigid transform (sensor -> scan) as a 4x4 row-major matrix
// (m00..m03, m10..m13, m20..m23, m30..m33).
type Pose struct {
	T [16]float64
}

// IdentityPose returns the identity transform.
func IdentityPose() Pose {
	return Pose{T: [16]float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}}
}

// MotionSample is one device-motion reading attached to a frame.
type MotionSample struct {
	RotationRate    float64 // rad/s, magnitude across axes
	TranslationRate float64 // m/s, magnitude across axes
	Gravity         [3]float64
}

// DepthMap holds per-pixel depth and sensor confidence for one frame.
// Values holds Width*Height samples in row-major order; a zero value
// means no depth return at that pixel. Confidence is in [0,1] per pixel.
type DepthMap struct {
	Width      int
	Height     int
	Values     []float32
	Confidence []float32
}

// At returns the depth sample at (x, y). Out-of-range coordinates
// return zero, matching the missing-return convention.
func (d *DepthMap) At(x, y int) float32 {
	if d == nil || x < 0 || y < 0 || x >= d.Width || y >= d.Height {
		return 0
	}
	return d.Values[y*d.Width+x]
}

// ConfidenceAt returns the sensor confidence at (x, y), zero when out of range.
func (d *DepthMap) ConfidenceAt(x, y int) float32 {
	if d == nil || x < 0 || y < 0 || x >= d.Width || y >= d.Height {
		return 0
	}
	if len(d.Confidence) != len(d.Values) {
		return 0
	}
	return d.Confidence[y*d.Width+x]
}

// ColorImage is a downsampled RGB image carried with each frame. Pixels
// holds Width*Height triples of [0,1] channel values in row-major order.
type ColorImage struct {
	Width  int
	Height int
	Pixels [][3]float32
}

// At returns the RGB pixel at (x, y), black when out of range.
func (c *ColorImage) At(x, y int) [3]float32 {
	if c == nil || x < 0 || y < 0 || x >= c.Width || y >= c.Height {
		return [3]float32{}
	}
	return c.Pixels[y*c.Width+x]
}

// Frame is one sensor sample: depth, color, pose, and motion captured at
// the same instant. Frames are immutable once handed to the pipeline and
// are owned by it only for the duration of one processing step.
type Frame struct {
	Timestamp    time.Time
	Phase        Phase
	Depth        *DepthMap
	Color        *ColorImage
	Pose         Pose
	Motion       MotionSample
	FeatureCount int // tracked visual features reported by the frame source
}

// Point3D is one captured surface point in scanner-local coordinates.
// Points are append-only: once inserted into the accumulation buffer
// they are never mutated.
type Point3D struct {
	Position   [3]float32
	Normal     [3]float32
	Confidence float32
}

// BoundingBox is an axis-aligned box over accumulated points.
type BoundingBox struct {
	Min [3]float32
	Max [3]float32
	set bool
}

// Expand grows the box to include p. The first point sets both corners;
// initialization is tracked explicitly so a point at the exact origin is
// still a point, not an empty box.
func (b *BoundingBox) Expand(p [3]float32) {
	if !b.set {
		b.Min, b.Max = p, p
		b.set = true
		return
	}
	for i := 0; i < 3; i++ {
		if p[i] < b.Min[i] {
			b.Min[i] = p[i]
		}
		if p[i] > b.Max[i] {
			b.Max[i] = p[i]
		}
	}
}

// Volume returns the box volume. Degenerate boxes report a small epsilon
// volume so density computations never divide by zero.
func (b BoundingBox) Volume() float64 {
	const minVolume = 1e-9
	v := float64(b.Max[0]-b.Min[0]) * float64(b.Max[1]-b.Min[1]) * float64(b.Max[2]-b.Min[2])
	if v < minVolume {
		return minVolume
	}
	return v
}

// Mesh is a sealed triangle mesh produced by the processing stage.
type Mesh struct {
	Vertices []Point3D
	Faces    [][3]int // indices into Vertices
}

// Clamp01 clamps v into [0,1]. Shared by metric and settings code.
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
