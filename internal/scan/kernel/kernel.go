package kernel

import (
	"context"
	"math"

	"github.com/scalpscan/scancore/internal/scan"
)

// ProcessingParameters tunes the fused quality pass. The layout mirrors
// the processing parameter block shared with the capture-side compute
// path.
type ProcessingParameters struct {
	SpatialSigma        float64 `json:"spatial_sigma"`
	RangeSigma          float64 `json:"range_sigma"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	FeatureWeight       float64 `json:"feature_weight"`
}

// DefaultProcessingParameters returns the empirically tuned defaults.
func DefaultProcessingParameters() ProcessingParameters {
	return ProcessingParameters{
		SpatialSigma:        0.01,
		RangeSigma:          0.05,
		ConfidenceThreshold: 0.3,
		FeatureWeight:       1.0,
	}
}

// Neighborhood constants for the fused pass.
const (
	// NeighborRadius is the local neighborhood radius, in scan units
	// (~5 cm equivalent).
	NeighborRadius = 0.05

	// minCompleteNeighbors is how many neighbors a point needs before
	// its local surface counts as complete.
	minCompleteNeighbors = 4

	// featureCountIdeal is the empirical detected-feature count of a
	// fully textured capture; feature quality saturates there.
	featureCountIdeal = 200
)

// Config configures a Kernel. Zero fields take defaults in New.
type Config struct {
	Accelerator Accelerator
	GroupSize   int
	Params      ProcessingParameters
}

// Kernel computes QualityMetrics over an accumulated point snapshot.
type Kernel struct {
	acc       Accelerator
	groupSize int
	params    ProcessingParameters
}

// New creates a Kernel. A nil Accelerator is rejected with
// AcceleratorUnavailable so callers cannot construct a silently
// degraded kernel.
func New(cfg Config) (*Kernel, error) {
	if cfg.Accelerator == nil {
		return nil, scan.NewScanError(scan.AcceleratorUnavailable, "kernel requires an accelerator")
	}
	if cfg.GroupSize <= 0 {
		cfg.GroupSize = DefaultGroupSize
	}
	if cfg.Params == (ProcessingParameters{}) {
		cfg.Params = DefaultProcessingParameters()
	}
	return &Kernel{acc: cfg.Accelerator, groupSize: cfg.GroupSize, params: cfg.Params}, nil
}

// groupPartial holds one work item's contribution to the reduction.
// Work items write only their own slot, so the pass needs no locks.
type groupPartial struct {
	evaluated     int
	completeCount int
	continuous    int
	withNeighbors int
	normalSum     float64
	normalCount   int
	noiseSum      float64
	noiseCount    int
}

// Compute runs the fused quality pass over points. featureCount is the
// detected-feature total reported by the capture side. The call blocks
// until the dispatched pass joins; metrics are never read from a
// partially written pass. Cancellation is cooperative and surfaces as
// ctx.Err().
func (k *Kernel) Compute(ctx context.Context, points []scan.Point3D, featureCount int) (scan.QualityMetrics, error) {
	m := scan.QualityMetrics{}
	if featureCount > 0 {
		m.FeatureQuality = scan.Clamp01(float64(featureCount) / featureCountIdeal)
	}
	if len(points) == 0 {
		// 0 points: density 0, nothing acceptable, but not an error.
		return m, nil
	}

	var bbox scan.BoundingBox
	for i := range points {
		bbox.Expand(points[i].Position)
	}
	m.PointDensity = float64(len(points)) / bbox.Volume()

	grid := buildVoxelIndex(points, NeighborRadius)

	groupSize := k.groupSize
	groupCount := (len(points) + groupSize - 1) / groupSize
	partials := make([]groupPartial, groupCount)
	confThreshold := float32(k.params.ConfidenceThreshold)

	job := Job{
		Items:     len(points),
		GroupSize: groupSize,
		Run: func(start, end int) error {
			part := &partials[start/groupSize]
			var neighborBuf []int
			var posBuf [][3]float32
			for i := start; i < end; i++ {
				p := &points[i]
				if p.Confidence < confThreshold {
					continue
				}
				part.evaluated++

				neighborBuf = grid.neighbors(points, i, NeighborRadius, neighborBuf[:0])
				if len(neighborBuf) == 0 {
					continue
				}
				part.withNeighbors++
				if len(neighborBuf) >= minCompleteNeighbors {
					part.completeCount++
				}

				// Continuity: the nearest neighbor must sit within half
				// the neighborhood radius, otherwise the surface has a
				// local gap.
				nearest := math.MaxFloat64
				var dotSum float64
				for _, j := range neighborBuf {
					q := &points[j]
					d := dist(p.Position, q.Position)
					if d < nearest {
						nearest = d
					}
					dotSum += dot(p.Normal, q.Normal)
				}
				if nearest <= NeighborRadius/2 {
					part.continuous++
				}
				part.normalSum += scan.Clamp01(dotSum / float64(len(neighborBuf)))
				part.normalCount++

				// Noise: deviation of the local neighborhood from its
				// least-squares plane.
				posBuf = posBuf[:0]
				posBuf = append(posBuf, p.Position)
				for _, j := range neighborBuf {
					posBuf = append(posBuf, points[j].Position)
				}
				if res, ok := fitPlaneResidual(posBuf); ok {
					part.noiseSum += res
					part.noiseCount++
				}
			}
			return nil
		},
	}

	if err := k.acc.Dispatch(ctx, job); err != nil {
		if ctx.Err() != nil {
			return scan.QualityMetrics{}, err
		}
		return scan.QualityMetrics{}, scan.NewScanError(scan.AcceleratorUnavailable, "quality pass dispatch failed").WithCause(err)
	}

	// Join point reached: reduce the partials.
	var total groupPartial
	for i := range partials {
		p := &partials[i]
		total.evaluated += p.evaluated
		total.completeCount += p.completeCount
		total.continuous += p.continuous
		total.withNeighbors += p.withNeighbors
		total.normalSum += p.normalSum
		total.normalCount += p.normalCount
		total.noiseSum += p.noiseSum
		total.noiseCount += p.noiseCount
	}

	if total.evaluated > 0 {
		m.SurfaceCompleteness = float64(total.completeCount) / float64(total.evaluated)
	}
	if total.withNeighbors > 0 {
		m.SurfaceContinuity = float64(total.continuous) / float64(total.withNeighbors)
	}
	if total.normalCount > 0 {
		m.NormalConsistency = total.normalSum / float64(total.normalCount)
	}
	if total.noiseCount > 0 {
		// Noise is reported as a fraction of the characteristic scan
		// dimension so it stays comparable across scan sizes.
		m.NoiseLevel = (total.noiseSum / float64(total.noiseCount)) / characteristicDim(bbox)
	}
	return m, nil
}

// characteristicDim is the longest bounding-box edge, floored at 1 so
// noise normalisation never divides by zero.
func characteristicDim(b scan.BoundingBox) float64 {
	dx := float64(b.Max[0] - b.Min[0])
	dy := float64(b.Max[1] - b.Min[1])
	dz := float64(b.Max[2] - b.Min[2])
	d := math.Max(dx, math.Max(dy, dz))
	if d <= 0 {
		return 1
	}
	return d
}

func dist(a, b [3]float32) float64 {
	dx := float64(a[0] - b[0])
	dy := float64(a[1] - b[1])
	dz := float64(a[2] - b[2])
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func dot(a, b [3]float32) float64 {
	return float64(a[0])*float64(b[0]) + float64(a[1])*float64(b[1]) + float64(a[2])*float64(b[2])
}
