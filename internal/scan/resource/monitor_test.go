package resource

import (
	"testing"
	"time"

	"github.com/scalpscan/scancore/internal/scan"
	"github.com/scalpscan/scancore/internal/timeutil"
)

func calmMetrics() scan.ResourceMetrics {
	return scan.ResourceMetrics{CPUUsage: 0.3, MemoryUsage: 0.4, GPUUsage: 0.2, Thermal: scan.ThermalNominal}
}

func hotMetrics() scan.ResourceMetrics {
	return scan.ResourceMetrics{CPUUsage: 0.95, MemoryUsage: 0.5, GPUUsage: 0.3, Thermal: scan.ThermalNominal}
}

func newTestMonitor(sampler Sampler, sink ActionSink) (*Monitor, *timeutil.Mock) {
	clk := timeutil.NewMock(time.Unix(1000, 0))
	m := NewMonitor(Config{Sampler: sampler, Sink: sink, Clock: clk})
	return m, clk
}

func TestNoActionUnderCalmLoad(t *testing.T) {
	var applied []Action
	sink := ActionSinkFunc(func(a Action) { applied = append(applied, a) })
	m, _ := newTestMonitor(NewStubSampler(calmMetrics()), sink)

	for i := 0; i < 5; i++ {
		m.Poll()
	}
	if len(applied) != 0 {
		t.Fatalf("calm load applied actions: %v", applied)
	}
	if m.Critical() {
		t.Fatalf("calm load must not be critical")
	}
}

func TestMinimalActionThenEscalation(t *testing.T) {
	var applied []Action
	sink := ActionSinkFunc(func(a Action) { applied = append(applied, a) })
	sampler := NewStubSampler(hotMetrics())
	m, _ := newTestMonitor(sampler, sink)

	m.Poll()
	if len(applied) != 1 || applied[0] != ActionReduceResolution {
		t.Fatalf("first violation should apply only the cheapest action, got %v", applied)
	}

	// Condition persists: next sample escalates to the next action.
	m.Poll()
	if len(applied) != 2 || applied[1] != ActionIncreaseFrameInterval {
		t.Fatalf("persistent violation should escalate, got %v", applied)
	}

	// Condition clears: escalation state resets.
	sampler.Set(calmMetrics())
	m.Poll()
	sampler.Set(hotMetrics())
	m.Poll()
	if applied[len(applied)-1] != ActionReduceResolution {
		t.Fatalf("new violation after recovery should restart at the cheapest action, got %v", applied)
	}
}

func TestEscalationStopsAtLastAction(t *testing.T) {
	var applied []Action
	sink := ActionSinkFunc(func(a Action) { applied = append(applied, a) })
	m, _ := newTestMonitor(NewStubSampler(hotMetrics()), sink)

	for i := 0; i < 12; i++ {
		m.Poll()
	}
	if len(applied) != int(actionCount) {
		t.Fatalf("applied %d actions, want exactly %d (ordered set, no repeats)", len(applied), actionCount)
	}
	if applied[len(applied)-1] != ActionEnterLowPowerMode {
		t.Fatalf("last escalation should be low-power mode, got %v", applied[len(applied)-1])
	}
}

func TestThermalThrottlingTriggersAction(t *testing.T) {
	var applied []Action
	sink := ActionSinkFunc(func(a Action) { applied = append(applied, a) })
	metrics := calmMetrics()
	metrics.Thermal = scan.ThermalSerious
	m, _ := newTestMonitor(NewStubSampler(metrics), sink)

	m.Poll()
	if len(applied) != 1 {
		t.Fatalf("serious thermal state should trigger optimization, got %v", applied)
	}
}

func TestCriticalConditions(t *testing.T) {
	metrics := calmMetrics()
	metrics.Thermal = scan.ThermalCritical
	sampler := NewStubSampler(metrics)
	m, _ := newTestMonitor(sampler, nil)

	m.Poll()
	if !m.Critical() {
		t.Fatalf("critical thermal state should be critical")
	}

	metrics = calmMetrics()
	metrics.MemoryUsage = 0.97
	sampler.Set(metrics)
	m.Poll()
	if !m.Critical() {
		t.Fatalf("near-exhausted memory should be critical")
	}

	sampler.Set(calmMetrics())
	m.Poll()
	if m.Critical() {
		t.Fatalf("critical flag should clear with the condition")
	}
}

func TestPhaseProfiles(t *testing.T) {
	// 0.85 CPU violates the fusion profile (0.70) but not photogrammetry (0.90).
	metrics := calmMetrics()
	metrics.CPUUsage = 0.85

	var applied []Action
	sink := ActionSinkFunc(func(a Action) { applied = append(applied, a) })
	m, _ := newTestMonitor(NewStubSampler(metrics), sink)

	m.SetPhase(scan.PhasePhotogrammetry)
	m.Poll()
	if len(applied) != 0 {
		t.Fatalf("photogrammetry profile should tolerate 0.85 cpu")
	}

	m.SetPhase(scan.PhaseFusion)
	m.Poll()
	if len(applied) != 1 {
		t.Fatalf("fusion profile should flag 0.85 cpu")
	}
}

func TestFrameRateTracking(t *testing.T) {
	m, clk := newTestMonitor(NewStubSampler(calmMetrics()), nil)

	m.Poll() // establish the window start
	for i := 0; i < 30; i++ {
		m.AddFrame()
	}
	clk.Advance(time.Second)
	got := m.Poll()
	if got.FrameRate < 29 || got.FrameRate > 31 {
		t.Fatalf("frame rate = %v, want ~30", got.FrameRate)
	}
}

func TestOptimizationEventPublished(t *testing.T) {
	bus := scan.NewBus(4)
	clk := timeutil.NewMock(time.Unix(0, 0))
	m := NewMonitor(Config{Sampler: NewStubSampler(hotMetrics()), Bus: bus, Clock: clk})

	m.Poll()
	select {
	case e := <-bus.Events():
		if e.Kind != scan.EventOptimizationAction || e.Action != "reduce_resolution" {
			t.Fatalf("event = %+v", e)
		}
	default:
		t.Fatalf("expected an optimization event on the bus")
	}
}
