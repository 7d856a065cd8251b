package checkpoint

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"fmt"

	"github.com/scalpscan/scancore/internal/scan"
	"github.com/scalpscan/scancore/internal/scan/coverage"
)

// serializePoints compresses captured points using gob encoding and
// gzip compression. A nil or empty slice yields a nil blob.
func serializePoints(points []scan.Point3D) ([]byte, error) {
	if len(points) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := gob.NewEncoder(gz)
	if err := enc.Encode(points); err != nil {
		gz.Close()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// deserializePoints decompresses and decodes a point blob. A nil blob
// round-trips to a nil slice.
func deserializePoints(blob []byte) ([]scan.Point3D, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	gz, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("open gzip reader: %w", err)
	}
	defer gz.Close()

	var points []scan.Point3D
	if err := gob.NewDecoder(gz).Decode(&points); err != nil {
		return nil, fmt.Errorf("decode points: %w", err)
	}
	return points, nil
}

func serializeCoverage(cells []coverage.CellRecord) ([]byte, error) {
	if len(cells) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := gob.NewEncoder(gz)
	if err := enc.Encode(cells); err != nil {
		gz.Close()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func deserializeCoverage(blob []byte) ([]coverage.CellRecord, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	gz, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("open gzip reader: %w", err)
	}
	defer gz.Close()

	var cells []coverage.CellRecord
	if err := gob.NewDecoder(gz).Decode(&cells); err != nil {
		return nil, fmt.Errorf("decode coverage cells: %w", err)
	}
	return cells, nil
}
