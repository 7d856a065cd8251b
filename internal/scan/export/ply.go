// Package export writes sealed capture results in portable interchange
// formats: ASCII PLY for meshes and CloudCompare-compatible ASC for raw
// point clouds.
package export

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/scalpscan/scancore/internal/scan"
)

// WriteMeshPLY writes the mesh as ASCII PLY 1.0: per-vertex position,
// normal, and confidence, followed by triangle faces with 0-based
// vertex indices. Coordinates are printed with enough precision to
// round-trip through ReadMeshPLY within 1e-5.
func WriteMeshPLY(w io.Writer, mesh *scan.Mesh) error {
	if mesh == nil {
		return fmt.Errorf("nil mesh")
	}
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "ply")
	fmt.Fprintln(bw, "format ascii 1.0")
	fmt.Fprintf(bw, "element vertex %d\n", len(mesh.Vertices))
	fmt.Fprintln(bw, "property float x")
	fmt.Fprintln(bw, "property float y")
	fmt.Fprintln(bw, "property float z")
	fmt.Fprintln(bw, "property float nx")
	fmt.Fprintln(bw, "property float ny")
	fmt.Fprintln(bw, "property float nz")
	fmt.Fprintln(bw, "property float confidence")
	fmt.Fprintf(bw, "element face %d\n", len(mesh.Faces))
	fmt.Fprintln(bw, "property list uchar int vertex_indices")
	fmt.Fprintln(bw, "end_header")

	for _, v := range mesh.Vertices {
		fmt.Fprintf(bw, "%g %g %g %g %g %g %g\n",
			v.Position[0], v.Position[1], v.Position[2],
			v.Normal[0], v.Normal[1], v.Normal[2],
			v.Confidence)
	}
	for _, f := range mesh.Faces {
		for _, idx := range f {
			if idx < 0 || idx >= len(mesh.Vertices) {
				return fmt.Errorf("face references vertex %d of %d", idx, len(mesh.Vertices))
			}
		}
		fmt.Fprintf(bw, "3 %d %d %d\n", f[0], f[1], f[2])
	}
	return bw.Flush()
}

// ReadMeshPLY parses an ASCII PLY mesh previously written by
// WriteMeshPLY. It tolerates extra whitespace but not binary encodings
// or unknown vertex layouts.
func ReadMeshPLY(r io.Reader) (*scan.Mesh, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	vertexCount, faceCount, err := readPLYHeader(sc)
	if err != nil {
		return nil, err
	}

	mesh := &scan.Mesh{
		Vertices: make([]scan.Point3D, 0, vertexCount),
	}
	for i := 0; i < vertexCount; i++ {
		fields, err := nextFields(sc)
		if err != nil {
			return nil, fmt.Errorf("vertex %d: %w", i, err)
		}
		if len(fields) != 7 {
			return nil, fmt.Errorf("vertex %d: want 7 fields, got %d", i, len(fields))
		}
		var vals [7]float64
		for j, f := range fields {
			if vals[j], err = strconv.ParseFloat(f, 32); err != nil {
				return nil, fmt.Errorf("vertex %d field %d: %w", i, j, err)
			}
		}
		mesh.Vertices = append(mesh.Vertices, scan.Point3D{
			Position:   [3]float32{float32(vals[0]), float32(vals[1]), float32(vals[2])},
			Normal:     [3]float32{float32(vals[3]), float32(vals[4]), float32(vals[5])},
			Confidence: float32(vals[6]),
		})
	}

	if faceCount > 0 {
		mesh.Faces = make([][3]int, 0, faceCount)
	}
	for i := 0; i < faceCount; i++ {
		fields, err := nextFields(sc)
		if err != nil {
			return nil, fmt.Errorf("face %d: %w", i, err)
		}
		if len(fields) != 4 || fields[0] != "3" {
			return nil, fmt.Errorf("face %d: only triangles are supported", i)
		}
		var face [3]int
		for j := 0; j < 3; j++ {
			idx, err := strconv.Atoi(fields[j+1])
			if err != nil {
				return nil, fmt.Errorf("face %d index %d: %w", i, j, err)
			}
			if idx < 0 || idx >= vertexCount {
				return nil, fmt.Errorf("face %d references vertex %d of %d", i, idx, vertexCount)
			}
			face[j] = idx
		}
		mesh.Faces = append(mesh.Faces, face)
	}
	return mesh, nil
}

// readPLYHeader consumes through end_header and returns the declared
// vertex and face counts.
func readPLYHeader(sc *bufio.Scanner) (vertexCount, faceCount int, err error) {
	if _, err := expectLine(sc, "ply"); err != nil {
		return 0, 0, err
	}
	if _, err := expectLine(sc, "format ascii 1.0"); err != nil {
		return 0, 0, err
	}
	vertexCount, faceCount = -1, -1
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "end_header":
			if vertexCount < 0 {
				return 0, 0, fmt.Errorf("header missing vertex element")
			}
			if faceCount < 0 {
				faceCount = 0
			}
			return vertexCount, faceCount, nil
		case strings.HasPrefix(line, "element vertex "):
			if vertexCount, err = strconv.Atoi(strings.TrimPrefix(line, "element vertex ")); err != nil {
				return 0, 0, fmt.Errorf("bad vertex count: %w", err)
			}
		case strings.HasPrefix(line, "element face "):
			if faceCount, err = strconv.Atoi(strings.TrimPrefix(line, "element face ")); err != nil {
				return 0, 0, fmt.Errorf("bad face count: %w", err)
			}
		case strings.HasPrefix(line, "property ") || strings.HasPrefix(line, "comment "):
			// Property order is fixed by WriteMeshPLY; comments pass through.
		default:
			return 0, 0, fmt.Errorf("unsupported header line %q", line)
		}
	}
	return 0, 0, fmt.Errorf("truncated header")
}

func expectLine(sc *bufio.Scanner, want string) (string, error) {
	if !sc.Scan() {
		return "", fmt.Errorf("unexpected end of input, want %q", want)
	}
	line := strings.TrimSpace(sc.Text())
	if line != want {
		return "", fmt.Errorf("got %q, want %q", line, want)
	}
	return line, nil
}

func nextFields(sc *bufio.Scanner) ([]string, error) {
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		return fields, nil
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("unexpected end of input")
}
