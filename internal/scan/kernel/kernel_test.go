package kernel

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/scalpscan/scancore/internal/scan"
)

// planarPatch builds an n x n grid of points in the XY plane with the
// given spacing, all normals +Z, full confidence.
func planarPatch(n int, spacing float32, jitter float32, rng *rand.Rand) []scan.Point3D {
	pts := make([]scan.Point3D, 0, n*n)
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			z := float32(0)
			if jitter > 0 {
				z = (rng.Float32()*2 - 1) * jitter
			}
			pts = append(pts, scan.Point3D{
				Position:   [3]float32{float32(x) * spacing, float32(y) * spacing, z},
				Normal:     [3]float32{0, 0, 1},
				Confidence: 1,
			})
		}
	}
	return pts
}

func newTestKernel(t *testing.T, acc Accelerator) *Kernel {
	t.Helper()
	k, err := New(Config{Accelerator: acc})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return k
}

func TestComputeEmptyPointSet(t *testing.T) {
	acc, err := NewParallelAccelerator(2)
	if err != nil {
		t.Fatalf("NewParallelAccelerator: %v", err)
	}
	k := newTestKernel(t, acc)

	m, err := k.Compute(context.Background(), nil, 0)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if m.PointDensity != 0 {
		t.Fatalf("density = %v, want 0", m.PointDensity)
	}
	if m.IsAcceptable() {
		t.Fatalf("empty capture must not be acceptable")
	}
}

func TestComputeCleanPlanarSurface(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	pts := planarPatch(30, 0.02, 0, rng)

	acc, _ := NewParallelAccelerator(4)
	k := newTestKernel(t, acc)
	m, err := k.Compute(context.Background(), pts, 250)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	if m.SurfaceCompleteness < 0.95 {
		t.Errorf("completeness = %v, want >= 0.95 on a dense patch", m.SurfaceCompleteness)
	}
	if m.SurfaceContinuity < 0.95 {
		t.Errorf("continuity = %v, want >= 0.95", m.SurfaceContinuity)
	}
	if m.NormalConsistency < 0.99 {
		t.Errorf("normal consistency = %v, want ~1 for identical normals", m.NormalConsistency)
	}
	if m.NoiseLevel > 1e-6 {
		t.Errorf("noise = %v, want ~0 for a perfect plane", m.NoiseLevel)
	}
	if m.FeatureQuality != 1 {
		t.Errorf("feature quality = %v, want capped at 1 for 250 features", m.FeatureQuality)
	}
	if m.PointDensity <= 0 {
		t.Errorf("density must be positive")
	}
}

func TestComputeNoiseRisesWithJitter(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	clean := planarPatch(20, 0.02, 0, rng)
	noisy := planarPatch(20, 0.02, 0.01, rng)

	acc, _ := NewParallelAccelerator(4)
	k := newTestKernel(t, acc)

	mClean, err := k.Compute(context.Background(), clean, 0)
	if err != nil {
		t.Fatalf("Compute clean: %v", err)
	}
	mNoisy, err := k.Compute(context.Background(), noisy, 0)
	if err != nil {
		t.Fatalf("Compute noisy: %v", err)
	}
	if mNoisy.NoiseLevel <= mClean.NoiseLevel {
		t.Fatalf("noise should rise with jitter: clean=%v noisy=%v", mClean.NoiseLevel, mNoisy.NoiseLevel)
	}
}

func TestParallelAndSequentialAgree(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	pts := planarPatch(16, 0.02, 0.005, rng)

	par, _ := NewParallelAccelerator(8)
	kp := newTestKernel(t, par)
	ks := newTestKernel(t, SequentialFallback{})

	mp, err := kp.Compute(context.Background(), pts, 100)
	if err != nil {
		t.Fatalf("parallel: %v", err)
	}
	ms, err := ks.Compute(context.Background(), pts, 100)
	if err != nil {
		t.Fatalf("sequential: %v", err)
	}

	const tol = 1e-9
	if math.Abs(mp.SurfaceCompleteness-ms.SurfaceCompleteness) > tol ||
		math.Abs(mp.SurfaceContinuity-ms.SurfaceContinuity) > tol ||
		math.Abs(mp.NormalConsistency-ms.NormalConsistency) > tol ||
		math.Abs(mp.NoiseLevel-ms.NoiseLevel) > tol {
		t.Fatalf("parallel %+v and sequential %+v disagree", mp, ms)
	}
}

// failingAccelerator simulates a lost compute device.
type failingAccelerator struct{}

func (failingAccelerator) Workers() int { return 0 }
func (failingAccelerator) Dispatch(context.Context, Job) error {
	return errors.New("device lost")
}

func TestComputeAcceleratorUnavailable(t *testing.T) {
	k := newTestKernel(t, failingAccelerator{})
	pts := planarPatch(4, 0.02, 0, rand.New(rand.NewSource(4)))

	_, err := k.Compute(context.Background(), pts, 0)
	if scan.CodeOf(err) != scan.AcceleratorUnavailable {
		t.Fatalf("expected AcceleratorUnavailable, got %v", err)
	}
}

func TestComputeCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	acc, _ := NewParallelAccelerator(2)
	k := newTestKernel(t, acc)
	pts := planarPatch(20, 0.02, 0, rand.New(rand.NewSource(5)))

	_, err := k.Compute(ctx, pts, 0)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewRejectsNilAccelerator(t *testing.T) {
	_, err := New(Config{})
	if scan.CodeOf(err) != scan.AcceleratorUnavailable {
		t.Fatalf("expected AcceleratorUnavailable, got %v", err)
	}
}

func TestLowConfidencePointsSkipped(t *testing.T) {
	pts := planarPatch(10, 0.02, 0, rand.New(rand.NewSource(6)))
	for i := range pts {
		pts[i].Confidence = 0.1 // below the default 0.3 threshold
	}
	acc, _ := NewParallelAccelerator(2)
	k := newTestKernel(t, acc)
	m, err := k.Compute(context.Background(), pts, 0)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if m.SurfaceCompleteness != 0 || m.NormalConsistency != 0 {
		t.Fatalf("low-confidence points must not contribute: %+v", m)
	}
	if m.PointDensity == 0 {
		t.Fatalf("density still counts raw points")
	}
}
