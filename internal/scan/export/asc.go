package export

import (
	"bufio"
	"fmt"
	"io"

	"github.com/scalpscan/scancore/internal/scan"
)

// WritePointsASC writes points as a CloudCompare-compatible .asc file:
// a commented header followed by one "X Y Z confidence" row per point.
func WritePointsASC(w io.Writer, points []scan.Point3D) error {
	if len(points) == 0 {
		return fmt.Errorf("no points to export")
	}
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "# Exported points\n")
	fmt.Fprintf(bw, "# Format: X Y Z Confidence\n")
	for _, p := range points {
		fmt.Fprintf(bw, "%.6f %.6f %.6f %.6f\n",
			p.Position[0], p.Position[1], p.Position[2], p.Confidence)
	}
	return bw.Flush()
}
