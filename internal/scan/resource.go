package scan

import "time"

// ThermalState is the device thermal pressure level. Ordering matters:
// higher values gate processing aggressiveness harder.
type ThermalState int

const (
	ThermalNominal ThermalState = iota
	ThermalFair
	ThermalSerious
	ThermalCritical
)

// String returns the lower-case name used in logs and persistence.
func (t ThermalState) String() string {
	switch t {
	case ThermalNominal:
		return "nominal"
	case ThermalFair:
		return "fair"
	case ThermalSerious:
		return "serious"
	case ThermalCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Throttling reports whether the state requires the controller to apply
// its thermal penalty.
func (t ThermalState) Throttling() bool {
	return t >= ThermalSerious
}

// ResourceMetrics is a point-in-time snapshot of system load. Usage
// values are fractions in [0,1].
type ResourceMetrics struct {
	CPUUsage    float64      `json:"cpu_usage"`
	MemoryUsage float64      `json:"memory_usage"`
	GPUUsage    float64      `json:"gpu_usage"`
	Thermal     ThermalState `json:"thermal"`
	FrameRate   float64      `json:"frame_rate"`
	Timestamp   time.Time    `json:"timestamp"`
}

// ResourceHistory is a bounded ring buffer of resource snapshots used
// for trend smoothing. Not safe for concurrent use; the monitor owns it.
type ResourceHistory struct {
	samples []ResourceMetrics
	next    int
	filled  bool
}

// NewResourceHistory creates a ring holding up to capacity samples.
// Capacity is clamped into [10, 300].
func NewResourceHistory(capacity int) *ResourceHistory {
	if capacity < 10 {
		capacity = 10
	}
	if capacity > 300 {
		capacity = 300
	}
	return &ResourceHistory{samples: make([]ResourceMetrics, capacity)}
}

// Push appends a sample, overwriting the oldest once full.
func (h *ResourceHistory) Push(m ResourceMetrics) {
	h.samples[h.next] = m
	h.next++
	if h.next == len(h.samples) {
		h.next = 0
		h.filled = true
	}
}

// Len returns the number of samples currently held.
func (h *ResourceHistory) Len() int {
	if h.filled {
		return len(h.samples)
	}
	return h.next
}

// Recent returns up to n samples, oldest first.
func (h *ResourceHistory) Recent(n int) []ResourceMetrics {
	total := h.Len()
	if n > total {
		n = total
	}
	out := make([]ResourceMetrics, 0, n)
	start := h.next - n
	for i := 0; i < n; i++ {
		idx := start + i
		if idx < 0 {
			idx += len(h.samples)
		}
		out = append(out, h.samples[idx%len(h.samples)])
	}
	return out
}

// MeanCPU returns the average CPU usage over the retained window.
func (h *ResourceHistory) MeanCPU() float64 {
	n := h.Len()
	if n == 0 {
		return 0
	}
	var sum float64
	for _, m := range h.Recent(n) {
		sum += m.CPUUsage
	}
	return sum / float64(n)
}
