package kernel

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// fitPlaneResidual fits a least-squares plane through the given
// positions and returns the mean absolute point-to-plane distance. The
// plane normal is the eigenvector of the 3x3 covariance matrix with the
// smallest eigenvalue. Returns ok=false with fewer than three points or
// a degenerate covariance.
func fitPlaneResidual(positions [][3]float32) (residual float64, ok bool) {
	n := len(positions)
	if n < 3 {
		return 0, false
	}

	var cx, cy, cz float64
	for _, p := range positions {
		cx += float64(p[0])
		cy += float64(p[1])
		cz += float64(p[2])
	}
	inv := 1.0 / float64(n)
	cx, cy, cz = cx*inv, cy*inv, cz*inv

	// Covariance accumulation (upper triangle).
	var xx, xy, xz, yy, yz, zz float64
	for _, p := range positions {
		dx := float64(p[0]) - cx
		dy := float64(p[1]) - cy
		dz := float64(p[2]) - cz
		xx += dx * dx
		xy += dx * dy
		xz += dx * dz
		yy += dy * dy
		yz += dy * dz
		zz += dz * dz
	}

	cov := mat.NewSymDense(3, []float64{
		xx, xy, xz,
		xy, yy, yz,
		xz, yz, zz,
	})

	var eig mat.EigenSym
	if !eig.Factorize(cov, true) {
		return 0, false
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	// EigenSym returns eigenvalues in ascending order; the first
	// eigenvector is the plane normal.
	nx := vecs.At(0, 0)
	ny := vecs.At(1, 0)
	nz := vecs.At(2, 0)
	norm := math.Sqrt(nx*nx + ny*ny + nz*nz)
	if norm == 0 {
		return 0, false
	}
	nx, ny, nz = nx/norm, ny/norm, nz/norm

	var sum float64
	for _, p := range positions {
		d := nx*(float64(p[0])-cx) + ny*(float64(p[1])-cy) + nz*(float64(p[2])-cz)
		sum += math.Abs(d)
	}
	return sum / float64(n), true
}
