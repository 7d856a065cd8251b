package kernel

import (
	"math"

	"github.com/scalpscan/scancore/internal/scan"
)

// voxelKey addresses one cell of the spatial hash.
type voxelKey struct{ x, y, z int32 }

// voxelIndex is a spatial hash over point indices with cell edge equal
// to the neighborhood radius, so a neighbor query touches at most the
// 27 cells around a point. Built once per pass and read-only afterwards,
// which makes it safe to share across work items without locks.
type voxelIndex struct {
	cellSize float64
	cells    map[voxelKey][]int32
}

func buildVoxelIndex(points []scan.Point3D, cellSize float64) *voxelIndex {
	idx := &voxelIndex{
		cellSize: cellSize,
		cells:    make(map[voxelKey][]int32, len(points)/4+1),
	}
	for i := range points {
		k := idx.keyFor(points[i].Position)
		idx.cells[k] = append(idx.cells[k], int32(i))
	}
	return idx
}

func (v *voxelIndex) keyFor(p [3]float32) voxelKey {
	return voxelKey{
		x: int32(math.Floor(float64(p[0]) / v.cellSize)),
		y: int32(math.Floor(float64(p[1]) / v.cellSize)),
		z: int32(math.Floor(float64(p[2]) / v.cellSize)),
	}
}

// neighbors appends the indices of points within radius of points[i]
// (excluding i itself) to buf and returns it.
func (v *voxelIndex) neighbors(points []scan.Point3D, i int, radius float64, buf []int) []int {
	center := points[i].Position
	ck := v.keyFor(center)
	r2 := radius * radius
	for dx := int32(-1); dx <= 1; dx++ {
		for dy := int32(-1); dy <= 1; dy++ {
			for dz := int32(-1); dz <= 1; dz++ {
				key := voxelKey{ck.x + dx, ck.y + dy, ck.z + dz}
				for _, j := range v.cells[key] {
					if int(j) == i {
						continue
					}
					q := points[j].Position
					ddx := float64(q[0] - center[0])
					ddy := float64(q[1] - center[1])
					ddz := float64(q[2] - center[2])
					if ddx*ddx+ddy*ddy+ddz*ddz <= r2 {
						buf = append(buf, int(j))
					}
				}
			}
		}
	}
	return buf
}
