// Package adaptive implements the closed feedback loop that turns
// resource and environment signals into one smoothed QualitySettings
// vector. The controller only ever degrades gracefully: it has no error
// path, and under sustained pressure it slides settings toward their
// floors and leaves aborting to the session state machine.
package adaptive

import (
	"sync"
	"time"

	"github.com/scalpscan/scancore/internal/scan"
	"github.com/scalpscan/scancore/internal/scan/resource"
	"github.com/scalpscan/scancore/internal/timeutil"
)

// Control-loop constants.
const (
	// MinUpdateInterval rate-limits recalculation to avoid visible
	// oscillation between consecutive settings.
	MinUpdateInterval = 2 * time.Second

	// smoothingAlpha blends current settings toward the target each
	// tick instead of snapping.
	smoothingAlpha = 0.3

	// thermalPenalty scales every dimension down under serious or
	// critical thermal state. Applied after the per-dimension targets,
	// not instead of them.
	thermalPenalty = 0.7

	// targetFrameRate is the capture rate the mesh-density term is
	// normalised against.
	targetFrameRate = 30.0

	// lightDivisorFloor bounds the lighting-compensation divisor so a
	// dark room cannot blow the term up.
	lightDivisorFloor = 0.2
)

// Config configures a Controller.
type Config struct {
	Profile scan.Profile
	Clock   timeutil.Clock
	Bus     *scan.Bus

	// Initial overrides the profile preset when Profile is
	// ProfileCustom and a non-zero value is supplied.
	Initial *scan.QualitySettings
}

// Controller owns QualitySettings. All mutation happens inside Update
// and Apply under one lock, so settings have a single writer by
// construction.
type Controller struct {
	clock timeutil.Clock
	bus   *scan.Bus

	mu          sync.Mutex
	current     scan.QualitySettings
	lastUpdate  time.Time
	accDegraded bool
	lowPower    bool
}

// NewController creates a Controller seeded from the capture profile.
func NewController(cfg Config) *Controller {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.Real{}
	}
	initial := scan.SettingsForProfile(cfg.Profile)
	if cfg.Profile == scan.ProfileCustom && cfg.Initial != nil {
		initial = cfg.Initial.Clamped()
	}
	return &Controller{
		clock:   cfg.Clock,
		bus:     cfg.Bus,
		current: initial,
	}
}

// Settings returns the current settings vector.
func (c *Controller) Settings() scan.QualitySettings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Update runs one controller tick. Ticks closer together than
// MinUpdateInterval return the current settings unchanged. The returned
// vector is what capture/render consumers should use next.
func (c *Controller) Update(res scan.ResourceMetrics, env scan.EnvironmentMetrics) scan.QualitySettings {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if !c.lastUpdate.IsZero() && now.Sub(c.lastUpdate) < MinUpdateInterval {
		return c.current
	}
	c.lastUpdate = now

	target := c.targetFor(res, env)

	// Exponential smoothing toward the target; never snap.
	c.current.MeshDensity += (target.MeshDensity - c.current.MeshDensity) * smoothingAlpha
	c.current.ProcessingQuality += (target.ProcessingQuality - c.current.ProcessingQuality) * smoothingAlpha
	c.current.ScanResolution += (target.ScanResolution - c.current.ScanResolution) * smoothingAlpha
	c.current.LightingCompensation += (target.LightingCompensation - c.current.LightingCompensation) * smoothingAlpha
	c.current.MotionTolerance += (target.MotionTolerance - c.current.MotionTolerance) * smoothingAlpha
	c.current = c.current.Clamped()

	if c.bus != nil {
		s := c.current
		c.bus.Publish(scan.Event{
			Kind:      scan.EventSettingsUpdated,
			Timestamp: now,
			Settings:  &s,
		})
	}
	return c.current
}

// targetFor computes the per-dimension target settings. Caller holds
// the lock.
func (c *Controller) targetFor(res scan.ResourceMetrics, env scan.EnvironmentMetrics) scan.QualitySettings {
	frameFactor := 1.0
	if res.FrameRate > 0 {
		frameFactor = res.FrameRate / targetFrameRate
		if frameFactor > 1 {
			frameFactor = 1
		}
	}

	light := env.LightLevel
	if light < lightDivisorFloor {
		light = lightDivisorFloor
	}

	t := scan.QualitySettings{
		// Mesh density follows GPU headroom and achieved frame rate.
		MeshDensity: (1 - res.GPUUsage) * frameFactor,

		// Processing quality follows CPU headroom.
		ProcessingQuality: 1 - res.CPUUsage,

		// Scan resolution follows memory headroom; Clamped floors it.
		ScanResolution: 1 - res.MemoryUsage,

		// Lighting compensation grows as the room darkens.
		LightingCompensation: scan.Clamp01(0.25 / light),

		// Motion tolerance rises as stability falls: be forgiving of an
		// unsteady hand instead of rejecting the capture outright.
		MotionTolerance: scan.Clamp01(0.3 + 0.7*(1-env.MotionStability)),
	}

	if c.accDegraded {
		t.ProcessingQuality = scan.ProcessingQualityFloor
	}
	if c.lowPower {
		t.MeshDensity *= 0.5
		t.ProcessingQuality *= 0.5
		t.ScanResolution *= 0.5
	}

	if res.Thermal.Throttling() {
		t.MeshDensity *= thermalPenalty
		t.ProcessingQuality *= thermalPenalty
		t.ScanResolution *= thermalPenalty
		t.LightingCompensation *= thermalPenalty
		t.MotionTolerance *= thermalPenalty
	}
	return t.Clamped()
}

// OnAcceleratorUnavailable pins the processing-quality target at its
// floor until OnAcceleratorRestored. The session keeps running; only
// the per-point pass degrades.
func (c *Controller) OnAcceleratorUnavailable() {
	c.mu.Lock()
	c.accDegraded = true
	c.mu.Unlock()
}

// OnAcceleratorRestored lifts the accelerator degradation.
func (c *Controller) OnAcceleratorRestored() {
	c.mu.Lock()
	c.accDegraded = false
	c.mu.Unlock()
}

// Apply implements resource.ActionSink for the settings-shaped subset
// of optimization actions. Each branch assigns a fixed reduced value,
// so re-applying an action is a no-op by construction. Actions that
// concern capture buffers are handled by the session, not here.
func (c *Controller) Apply(a resource.Action) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch a {
	case resource.ActionReduceResolution:
		if c.current.ScanResolution > scan.ScanResolutionFloor {
			c.current.ScanResolution = scan.ScanResolutionFloor
		}
	case resource.ActionReduceVisualizationQuality:
		if c.current.MeshDensity > 0.4 {
			c.current.MeshDensity = 0.4
		}
	case resource.ActionDisableNonEssentialCompute:
		if c.current.ProcessingQuality > 0.5 {
			c.current.ProcessingQuality = 0.5
		}
	case resource.ActionEnterLowPowerMode:
		c.lowPower = true
	}
	c.current = c.current.Clamped()
}
