// Package coverage tracks how much of the target surface has been
// captured. Points are binned into a fixed spatial grid; per-region
// densities only ever grow within a session, so the reported coverage
// fraction is monotonically non-decreasing until an explicit Reset.
package coverage

import (
	"math"
	"sync"
)

// Config configures a Tracker. Zero fields take defaults in NewTracker.
type Config struct {
	// CellSize is the region edge length in scan units (~1 cm
	// equivalent by default).
	CellSize float64 `json:"cell_size"`

	// TargetRegions is how many covered regions constitute a full
	// capture of the expected surface.
	TargetRegions int `json:"target_regions"`

	// MinPointsPerRegion is the density at which a region counts as
	// covered rather than merely touched.
	MinPointsPerRegion int `json:"min_points_per_region"`

	// CompleteFraction is the coverage fraction at which the capture
	// gate considers coverage complete.
	CompleteFraction float64 `json:"complete_fraction"`
}

// DefaultConfig returns the tuned defaults for a scalp capture. A
// head-sized dome (radius ~0.09) crosses roughly 500 cells at 1 cm
// edges, so the 250-region target is reachable with dense capture.
func DefaultConfig() Config {
	return Config{
		CellSize:           0.01,
		TargetRegions:      250,
		MinPointsPerRegion: 5,
		CompleteFraction:   0.9,
	}
}

type cellKey struct{ x, y, z int32 }

// RegionDensity is one heatmap sample: a region center position and the
// cumulative point count captured there.
type RegionDensity struct {
	Position [3]float64 `json:"position"`
	Density  int        `json:"density"`
}

// Tracker maintains the spatial occupancy field. Safe for concurrent
// use; updates come from the capture path while heatmap reads come from
// guidance consumers.
type Tracker struct {
	mu    sync.RWMutex
	cfg   Config
	cells map[cellKey]int
}

// NewTracker creates a Tracker, filling zero config fields with defaults.
func NewTracker(cfg Config) *Tracker {
	def := DefaultConfig()
	if cfg.CellSize <= 0 {
		cfg.CellSize = def.CellSize
	}
	if cfg.TargetRegions <= 0 {
		cfg.TargetRegions = def.TargetRegions
	}
	if cfg.MinPointsPerRegion <= 0 {
		cfg.MinPointsPerRegion = def.MinPointsPerRegion
	}
	if cfg.CompleteFraction <= 0 {
		cfg.CompleteFraction = def.CompleteFraction
	}
	return &Tracker{cfg: cfg, cells: make(map[cellKey]int)}
}

// UpdateCoverage accumulates new point positions and returns the
// resulting coverage fraction in [0,1].
func (t *Tracker) UpdateCoverage(positions [][3]float32) float64 {
	t.mu.Lock()
	for _, p := range positions {
		t.cells[t.keyFor(p)]++
	}
	frac := t.fractionLocked()
	t.mu.Unlock()
	return frac
}

// Fraction returns the current coverage fraction in [0,1].
func (t *Tracker) Fraction() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.fractionLocked()
}

// Complete reports whether the coverage gate passes.
func (t *Tracker) Complete() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.fractionLocked() >= t.cfg.CompleteFraction
}

// LeastCovered returns the center of the occupied region with the lowest
// density. The scan is O(regions), not O(points). ok is false when no
// region has been touched yet.
func (t *Tracker) LeastCovered() (pos [3]float64, density int, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	best := math.MaxInt
	var bestKey cellKey
	for k, n := range t.cells {
		if n < best {
			best = n
			bestKey = k
		}
	}
	if best == math.MaxInt {
		return [3]float64{}, 0, false
	}
	return t.center(bestKey), best, true
}

// Reset clears all coverage state at session end.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.cells = make(map[cellKey]int)
	t.mu.Unlock()
}

// Heatmap returns a restartable snapshot iterator over (position,
// density) samples. The snapshot is taken at call time; later updates
// do not affect an iterator already handed out.
func (t *Tracker) Heatmap() *HeatmapIter {
	t.mu.RLock()
	samples := make([]RegionDensity, 0, len(t.cells))
	for k, n := range t.cells {
		samples = append(samples, RegionDensity{Position: t.center(k), Density: n})
	}
	t.mu.RUnlock()
	return &HeatmapIter{samples: samples}
}

// CellRecord is one occupancy cell in serialized form, used by the
// checkpoint store.
type CellRecord struct {
	X, Y, Z int32
	Count   int
}

// Export snapshots the occupancy field for persistence.
func (t *Tracker) Export() []CellRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]CellRecord, 0, len(t.cells))
	for k, n := range t.cells {
		out = append(out, CellRecord{X: k.x, Y: k.y, Z: k.z, Count: n})
	}
	return out
}

// Restore replaces the occupancy field with a previously exported
// snapshot. Used when resuming a session from a checkpoint.
func (t *Tracker) Restore(cells []CellRecord) {
	t.mu.Lock()
	t.cells = make(map[cellKey]int, len(cells))
	for _, c := range cells {
		t.cells[cellKey{x: c.X, y: c.Y, z: c.Z}] = c.Count
	}
	t.mu.Unlock()
}

func (t *Tracker) keyFor(p [3]float32) cellKey {
	return cellKey{
		x: int32(math.Floor(float64(p[0]) / t.cfg.CellSize)),
		y: int32(math.Floor(float64(p[1]) / t.cfg.CellSize)),
		z: int32(math.Floor(float64(p[2]) / t.cfg.CellSize)),
	}
}

func (t *Tracker) center(k cellKey) [3]float64 {
	return [3]float64{
		(float64(k.x) + 0.5) * t.cfg.CellSize,
		(float64(k.y) + 0.5) * t.cfg.CellSize,
		(float64(k.z) + 0.5) * t.cfg.CellSize,
	}
}

// fractionLocked counts covered regions against the target. Caller
// holds at least a read lock.
func (t *Tracker) fractionLocked() float64 {
	covered := 0
	for _, n := range t.cells {
		if n >= t.cfg.MinPointsPerRegion {
			covered++
		}
	}
	frac := float64(covered) / float64(t.cfg.TargetRegions)
	if frac > 1 {
		frac = 1
	}
	return frac
}

// HeatmapIter iterates a coverage snapshot. Restart with Rewind.
type HeatmapIter struct {
	samples []RegionDensity
	next    int
}

// Next returns the next sample, ok=false when exhausted.
func (it *HeatmapIter) Next() (RegionDensity, bool) {
	if it.next >= len(it.samples) {
		return RegionDensity{}, false
	}
	s := it.samples[it.next]
	it.next++
	return s, true
}

// Rewind restarts the iterator at the first sample.
func (it *HeatmapIter) Rewind() { it.next = 0 }

// Len returns the number of samples in the snapshot.
func (it *HeatmapIter) Len() int { return len(it.samples) }
