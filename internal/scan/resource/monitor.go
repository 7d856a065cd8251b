package resource

import (
	"context"
	"sync"
	"time"

	"github.com/scalpscan/scancore/internal/monitoring"
	"github.com/scalpscan/scancore/internal/scan"
	"github.com/scalpscan/scancore/internal/timeutil"
)

// ThresholdProfile holds the usage fractions above which a capture
// phase is considered under pressure.
type ThresholdProfile struct {
	CPU    float64 `json:"cpu"`
	Memory float64 `json:"memory"`
	GPU    float64 `json:"gpu"`
}

// profileFor returns the threshold profile for a capture phase. The
// photogrammetry phase tolerates more load because it is inherently
// compute-bound; fusion runs tightest because it shares the accelerator
// with the quality kernel.
func profileFor(p scan.Phase) ThresholdProfile {
	switch p {
	case scan.PhasePhotogrammetry:
		return ThresholdProfile{CPU: 0.90, Memory: 0.85, GPU: 0.90}
	case scan.PhaseFusion:
		return ThresholdProfile{CPU: 0.70, Memory: 0.70, GPU: 0.80}
	default: // lidar
		return ThresholdProfile{CPU: 0.80, Memory: 0.75, GPU: 0.85}
	}
}

// Config configures a Monitor. Zero fields take defaults in NewMonitor.
type Config struct {
	Sampler  Sampler
	Sink     ActionSink
	Bus      *scan.Bus
	Clock    timeutil.Clock
	Interval time.Duration // sampling cadence, default 1s
	History  int           // ring capacity, default 120
}

// Monitor samples system metrics at a fixed cadence and escalates
// optimization actions while a threshold violation persists. One
// violation applies the single cheapest unapplied action; only if the
// condition is still present on the next sample does the monitor move
// to the next action.
type Monitor struct {
	sampler  Sampler
	sink     ActionSink
	bus      *scan.Bus
	clock    timeutil.Clock
	interval time.Duration

	mu          sync.Mutex
	phase       scan.Phase
	history     *scan.ResourceHistory
	latest      scan.ResourceMetrics
	applied     [actionCount]bool
	nextAction  Action
	frameCount  int64
	lastFrameTS time.Time
	critical    bool
}

// NewMonitor creates a Monitor.
func NewMonitor(cfg Config) *Monitor {
	if cfg.Sampler == nil {
		cfg.Sampler = SystemSampler{}
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.Real{}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.History <= 0 {
		cfg.History = 120
	}
	return &Monitor{
		sampler:  cfg.Sampler,
		sink:     cfg.Sink,
		bus:      cfg.Bus,
		clock:    cfg.Clock,
		interval: cfg.Interval,
		phase:    scan.PhaseLidar,
		history:  scan.NewResourceHistory(cfg.History),
	}
}

// SetPhase switches the active threshold profile.
func (m *Monitor) SetPhase(p scan.Phase) {
	if !p.IsValid() {
		return
	}
	m.mu.Lock()
	m.phase = p
	m.mu.Unlock()
}

// AddFrame records one delivered frame for frame-rate tracking.
func (m *Monitor) AddFrame() {
	m.mu.Lock()
	m.frameCount++
	m.mu.Unlock()
}

// Latest returns the most recent snapshot.
func (m *Monitor) Latest() scan.ResourceMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest
}

// Critical reports whether the last sample forced an abort condition:
// critical thermal state, or memory exhausted beyond recovery.
func (m *Monitor) Critical() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.critical
}

// Run samples on the configured cadence until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			m.Poll()
		}
	}
}

// Poll performs one sampling step: read metrics, update history and
// frame rate, and apply at most one optimization action if a threshold
// is violated. Exposed so tests and the session can drive sampling
// deterministically.
func (m *Monitor) Poll() scan.ResourceMetrics {
	sampled, err := m.sampler.Sample()
	if err != nil {
		monitoring.Logf("resource: sample failed: %v", err)
		return m.Latest()
	}

	now := m.clock.Now()
	m.mu.Lock()
	sampled.Timestamp = now
	if !m.lastFrameTS.IsZero() {
		elapsed := now.Sub(m.lastFrameTS).Seconds()
		if elapsed > 0 {
			sampled.FrameRate = float64(m.frameCount) / elapsed
		}
	}
	m.frameCount = 0
	m.lastFrameTS = now

	m.latest = sampled
	m.history.Push(sampled)
	profile := profileFor(m.phase)

	violated := sampled.CPUUsage > profile.CPU ||
		sampled.MemoryUsage > profile.Memory ||
		sampled.GPUUsage > profile.GPU ||
		sampled.Thermal.Throttling()

	m.critical = sampled.Thermal == scan.ThermalCritical || sampled.MemoryUsage > 0.95

	var act *Action
	if violated {
		if m.nextAction < actionCount {
			a := m.nextAction
			m.applied[a] = true
			m.nextAction++
			act = &a
		}
	} else {
		// Condition cleared: later violations start from the cheapest
		// action again.
		m.applied = [actionCount]bool{}
		m.nextAction = ActionReduceResolution
	}
	sink := m.sink
	bus := m.bus
	m.mu.Unlock()

	if act != nil {
		monitoring.Logf("resource: threshold exceeded (cpu=%.2f mem=%.2f gpu=%.2f thermal=%s), applying %s",
			sampled.CPUUsage, sampled.MemoryUsage, sampled.GPUUsage, sampled.Thermal, *act)
		if sink != nil {
			sink.Apply(*act)
		}
		if bus != nil {
			bus.Publish(scan.Event{
				Kind:      scan.EventOptimizationAction,
				Timestamp: now,
				Action:    act.String(),
			})
		}
	}
	return sampled
}

// History returns up to n recent samples, oldest first.
func (m *Monitor) History(n int) []scan.ResourceMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.history.Recent(n)
}
