// Package resource samples system load at a fixed cadence, tracks frame
// rate, and applies ordered optimization actions when a phase-specific
// threshold is crossed.
package resource

import (
	"fmt"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/scalpscan/scancore/internal/scan"
)

// Sampler produces one resource snapshot. FrameRate and Timestamp are
// filled in by the Monitor, not the sampler.
type Sampler interface {
	Sample() (scan.ResourceMetrics, error)
}

// SystemSampler reads CPU and memory usage via gopsutil. GPU usage and
// thermal state have no portable host API; embedders running on capture
// hardware wrap SystemSampler and overlay those two fields from the
// platform SDK.
type SystemSampler struct{}

// Sample reads current CPU and memory usage as fractions in [0,1].
func (SystemSampler) Sample() (scan.ResourceMetrics, error) {
	var m scan.ResourceMetrics

	percents, err := cpu.Percent(0, false)
	if err != nil {
		return m, fmt.Errorf("cpu sample: %w", err)
	}
	if len(percents) > 0 {
		m.CPUUsage = percents[0] / 100
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		return m, fmt.Errorf("memory sample: %w", err)
	}
	m.MemoryUsage = vm.UsedPercent / 100
	m.Thermal = scan.ThermalNominal
	return m, nil
}

// StubSampler returns whatever metrics were last set. Used in tests and
// by the simulator to script load scenarios.
type StubSampler struct {
	mu sync.Mutex
	m  scan.ResourceMetrics
}

// NewStubSampler creates a StubSampler primed with m.
func NewStubSampler(m scan.ResourceMetrics) *StubSampler {
	return &StubSampler{m: m}
}

// Set replaces the metrics returned by subsequent Sample calls.
func (s *StubSampler) Set(m scan.ResourceMetrics) {
	s.mu.Lock()
	s.m = m
	s.mu.Unlock()
}

// Sample returns the scripted metrics.
func (s *StubSampler) Sample() (scan.ResourceMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m, nil
}
