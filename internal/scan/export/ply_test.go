package export

import (
	"bytes"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/scalpscan/scancore/internal/scan"
)

func randomMesh(nVerts, nFaces int) *scan.Mesh {
	rng := rand.New(rand.NewSource(3))
	mesh := &scan.Mesh{
		Vertices: make([]scan.Point3D, nVerts),
		Faces:    make([][3]int, nFaces),
	}
	for i := range mesh.Vertices {
		mesh.Vertices[i] = scan.Point3D{
			Position:   [3]float32{rng.Float32()*2 - 1, rng.Float32()*2 - 1, rng.Float32()},
			Normal:     [3]float32{0, 0, 1},
			Confidence: rng.Float32(),
		}
	}
	for i := range mesh.Faces {
		mesh.Faces[i] = [3]int{rng.Intn(nVerts), rng.Intn(nVerts), rng.Intn(nVerts)}
	}
	return mesh
}

func TestPLYRoundTrip(t *testing.T) {
	want := randomMesh(137, 61)

	var buf bytes.Buffer
	if err := WriteMeshPLY(&buf, want); err != nil {
		t.Fatalf("WriteMeshPLY failed: %v", err)
	}
	got, err := ReadMeshPLY(&buf)
	if err != nil {
		t.Fatalf("ReadMeshPLY failed: %v", err)
	}

	if len(got.Vertices) != len(want.Vertices) {
		t.Fatalf("vertices = %d, want %d", len(got.Vertices), len(want.Vertices))
	}
	if len(got.Faces) != len(want.Faces) {
		t.Fatalf("faces = %d, want %d", len(got.Faces), len(want.Faces))
	}
	for i := range want.Vertices {
		for axis := 0; axis < 3; axis++ {
			delta := math.Abs(float64(got.Vertices[i].Position[axis] - want.Vertices[i].Position[axis]))
			if delta > 1e-5 {
				t.Fatalf("vertex %d axis %d off by %v", i, axis, delta)
			}
		}
		if got.Vertices[i] != want.Vertices[i] {
			t.Fatalf("vertex %d not bit-stable: %+v vs %+v", i, got.Vertices[i], want.Vertices[i])
		}
	}
	for i := range want.Faces {
		if got.Faces[i] != want.Faces[i] {
			t.Fatalf("face %d = %v, want %v", i, got.Faces[i], want.Faces[i])
		}
	}
}

func TestPLYHeaderShape(t *testing.T) {
	mesh := &scan.Mesh{
		Vertices: []scan.Point3D{
			{Position: [3]float32{1, 2, 3}, Normal: [3]float32{0, 0, 1}, Confidence: 0.5},
		},
		Faces: [][3]int{{0, 0, 0}},
	}
	var buf bytes.Buffer
	if err := WriteMeshPLY(&buf, mesh); err != nil {
		t.Fatalf("WriteMeshPLY failed: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"ply\n",
		"format ascii 1.0\n",
		"element vertex 1\n",
		"element face 1\n",
		"end_header\n",
		"3 0 0 0\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	// Faces use 0-based indices: a single-vertex mesh references index 0.
	if strings.Contains(out, "3 1 1 1") {
		t.Errorf("face indices look 1-based:\n%s", out)
	}
}

func TestPLYEmptyMesh(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMeshPLY(&buf, &scan.Mesh{}); err != nil {
		t.Fatalf("WriteMeshPLY failed on empty mesh: %v", err)
	}
	got, err := ReadMeshPLY(&buf)
	if err != nil {
		t.Fatalf("ReadMeshPLY failed on empty mesh: %v", err)
	}
	if len(got.Vertices) != 0 || len(got.Faces) != 0 {
		t.Fatalf("empty mesh grew on round trip: %+v", got)
	}

	if err := WriteMeshPLY(&buf, nil); err == nil {
		t.Fatalf("nil mesh should be rejected")
	}
}

func TestPLYRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"not ply":          "obj\n",
		"binary format":    "ply\nformat binary_little_endian 1.0\nend_header\n",
		"truncated header": "ply\nformat ascii 1.0\nelement vertex 3\n",
		"missing vertices": "ply\nformat ascii 1.0\nelement vertex 2\nproperty float x\nend_header\n1 2 3 0 0 1 0.5\n",
		"face out of range": "ply\nformat ascii 1.0\nelement vertex 1\nproperty float x\n" +
			"element face 1\nproperty list uchar int vertex_indices\nend_header\n" +
			"1 2 3 0 0 1 0.5\n3 0 0 9\n",
	}
	for name, input := range cases {
		if _, err := ReadMeshPLY(strings.NewReader(input)); err == nil {
			t.Errorf("%s: parse should fail", name)
		}
	}
}

func TestWriteRejectsBadFace(t *testing.T) {
	mesh := &scan.Mesh{
		Vertices: []scan.Point3D{{}},
		Faces:    [][3]int{{0, 1, 0}},
	}
	var buf bytes.Buffer
	if err := WriteMeshPLY(&buf, mesh); err == nil {
		t.Fatalf("face referencing a missing vertex should be rejected")
	}
}

func TestWritePointsASC(t *testing.T) {
	points := []scan.Point3D{
		{Position: [3]float32{1, 2, 3}, Confidence: 0.25},
		{Position: [3]float32{-0.5, 0, 4.125}, Confidence: 1},
	}
	var buf bytes.Buffer
	if err := WritePointsASC(&buf, points); err != nil {
		t.Fatalf("WritePointsASC failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 2 header + 2 points", len(lines))
	}
	if !strings.HasPrefix(lines[0], "#") || !strings.Contains(lines[1], "X Y Z Confidence") {
		t.Fatalf("header malformed: %q %q", lines[0], lines[1])
	}
	if lines[2] != "1.000000 2.000000 3.000000 0.250000" {
		t.Fatalf("point row = %q", lines[2])
	}

	if err := WritePointsASC(&buf, nil); err == nil {
		t.Fatalf("empty point set should be rejected")
	}
}
