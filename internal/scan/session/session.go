// Package session owns the capture lifecycle: the state machine driving
// a scan from idle through scanning and processing to completion, the
// append-only point accumulation buffer, quality-kernel batching,
// periodic checkpointing, and bounded recovery after failure.
//
// Frame handling is single-writer: HandleFrame must be called from one
// goroutine (the frame delivery path). Kernel batches and checkpoint
// writes run on background goroutines owned by the session; Wait joins
// them, and Stop or Capture joins them implicitly.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scalpscan/scancore/internal/monitoring"
	"github.com/scalpscan/scancore/internal/scan"
	"github.com/scalpscan/scancore/internal/scan/adaptive"
	"github.com/scalpscan/scancore/internal/scan/checkpoint"
	"github.com/scalpscan/scancore/internal/scan/coverage"
	"github.com/scalpscan/scancore/internal/scan/framemetrics"
	"github.com/scalpscan/scancore/internal/scan/kernel"
	"github.com/scalpscan/scancore/internal/scan/resource"
	"github.com/scalpscan/scancore/internal/timeutil"
)

// State is the session lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateScanning   State = "scanning"
	StateProcessing State = "processing"
	StateComplete   State = "complete"
	StateError      State = "error"
)

const (
	// CaptureMinScore is the quality gate a capture attempt must clear
	// before coverage is even considered.
	CaptureMinScore = 0.7

	defaultCheckpointInterval = 30 * time.Second
	defaultCheckpointBudget   = 3
	defaultRecoveryAttempts   = 2

	// Pre-scan environment gate.
	minStartMotionStability = 0.5
	minStartLightLevel      = 0.2
)

// CheckpointStore is the durable storage the session checkpoints into.
// Implemented by *checkpoint.Store.
type CheckpointStore interface {
	Save(cp *checkpoint.Checkpoint) (int64, error)
	Latest(sessionID string) (*checkpoint.Checkpoint, error)
	Delete(sessionID string) (int64, error)
}

// Config assembles a Session. Zero fields take defaults in NewSession;
// Monitor and Checkpoints are optional.
type Config struct {
	Profile scan.Profile
	Phase   scan.Phase

	Extractor  *framemetrics.Extractor
	Kernel     *kernel.Kernel
	Coverage   *coverage.Tracker
	Controller *adaptive.Controller
	Monitor    *resource.Monitor
	Bus        *scan.Bus
	Clock      timeutil.Clock

	Checkpoints        CheckpointStore
	CheckpointInterval time.Duration
	// CheckpointRetryBudget is how many consecutive checkpoint failures
	// are absorbed silently before a warning event is published.
	CheckpointRetryBudget int

	// MaxRecoveryAttempts bounds checkpoint-restore attempts from the
	// error state before recovery itself fails.
	MaxRecoveryAttempts int
}

// Session is one capture session. All exported methods are safe for
// concurrent use except HandleFrame, which is single-writer.
type Session struct {
	id    string
	cfg   Config
	clock timeutil.Clock
	bus   *scan.Bus

	mu     sync.Mutex
	state  State
	reason *scan.ScanError

	// Append-only for the life of the session; restored wholesale on
	// recovery. Kernel batches read a length-bounded snapshot, never
	// the live tail.
	points     []scan.Point3D
	generation int64

	frameCount   int64
	featureCount int
	lastFrame    scan.FrameMetrics
	lastEnv      scan.EnvironmentMetrics

	// Kernel batching: one in-flight batch; arrivals during a batch
	// coalesce into a single pending batch.
	batchRunning bool
	batchPending bool
	batchCancel  context.CancelFunc
	publishedGen int64
	lastMetrics  scan.QualityMetrics
	coverageFrac float64

	lastCheckpointAt time.Time
	checkpointBusy   bool
	checkpointFails  int

	recoveryAttempts int

	wg sync.WaitGroup
}

// NewSession builds a Session, filling optional collaborators with
// defaults. The kernel falls back to a sequential accelerator if a
// parallel one cannot be constructed; that is a degraded mode, not a
// failure.
func NewSession(cfg Config) (*Session, error) {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.Real{}
	}
	if cfg.Bus == nil {
		cfg.Bus = scan.NewBus(64)
	}
	if cfg.Extractor == nil {
		cfg.Extractor = framemetrics.NewExtractor()
	}
	if cfg.Coverage == nil {
		cfg.Coverage = coverage.NewTracker(coverage.Config{})
	}
	if cfg.Controller == nil {
		cfg.Controller = adaptive.NewController(adaptive.Config{
			Profile: cfg.Profile,
			Clock:   cfg.Clock,
			Bus:     cfg.Bus,
		})
	}
	if cfg.Phase == "" {
		cfg.Phase = scan.PhaseLidar
	}
	if cfg.CheckpointInterval <= 0 {
		cfg.CheckpointInterval = defaultCheckpointInterval
	}
	if cfg.CheckpointRetryBudget <= 0 {
		cfg.CheckpointRetryBudget = defaultCheckpointBudget
	}
	if cfg.MaxRecoveryAttempts <= 0 {
		cfg.MaxRecoveryAttempts = defaultRecoveryAttempts
	}
	if cfg.Kernel == nil {
		acc, err := kernel.NewParallelAccelerator(0)
		if err != nil {
			monitoring.Logf("session: parallel accelerator unavailable, using sequential fallback: %v", err)
			acc = nil
		}
		var k *kernel.Kernel
		if acc != nil {
			k, err = kernel.New(kernel.Config{Accelerator: acc})
		}
		if k == nil {
			k, err = kernel.New(kernel.Config{Accelerator: kernel.SequentialFallback{}})
			if err != nil {
				return nil, err
			}
			cfg.Controller.OnAcceleratorUnavailable()
		}
		cfg.Kernel = k
	}

	return &Session{
		id:    uuid.NewString(),
		cfg:   cfg,
		clock: cfg.Clock,
		bus:   cfg.Bus,
		state: StateIdle,
	}, nil
}

// ID returns the session identifier used for checkpoint keys.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the typed failure that put the session into StateError,
// or nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reason == nil {
		return nil
	}
	return s.reason
}

// Events returns the session event stream.
func (s *Session) Events() <-chan scan.Event { return s.bus.Events() }

// Metrics returns the most recently published mesh quality metrics.
func (s *Session) Metrics() scan.QualityMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastMetrics
}

// PointCount returns the number of accumulated points.
func (s *Session) PointCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.points)
}

// Wait joins all background work (kernel batches, checkpoint writes).
func (s *Session) Wait() { s.wg.Wait() }

// Start moves idle → scanning if the environment passes the pre-scan
// gate, otherwise the session stays idle and the returned error carries
// operator guidance.
func (s *Session) Start(env scan.EnvironmentMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return errors.New("session already started")
	}
	if env.MotionStability < minStartMotionStability ||
		env.LightLevel < minStartLightLevel || !env.LightingStable {
		err := scan.NewScanError(scan.EnvironmentNotReady, "environment gate failed before start")
		s.publishGuidanceLocked(err.Guidance)
		return err
	}

	s.lastEnv = env
	s.lastCheckpointAt = s.clock.Now()
	s.setStateLocked(StateScanning)
	return nil
}

// HandleFrame ingests one frame and its unprojected points. Metric
// extraction and accumulation happen synchronously; quality-kernel
// recomputation is scheduled in the background with at most one batch
// in flight. Frames arriving outside StateScanning are dropped.
func (s *Session) HandleFrame(frame *scan.Frame, points []scan.Point3D) {
	// Drop before touching any collaborator so an idle or completed
	// session stays inert. The locked check below still guards against
	// a stop racing the rest of this call.
	if s.State() != StateScanning {
		return
	}

	if s.cfg.Monitor != nil {
		s.cfg.Monitor.AddFrame()
	}

	fm := s.cfg.Extractor.Extract(frame)
	env := scan.EnvironmentMetrics{
		LightLevel:      fm.Intensity,
		LightingStable:  s.cfg.Extractor.LightingStable(),
		MotionStability: fm.MotionStability,
	}

	var res scan.ResourceMetrics
	if s.cfg.Monitor != nil {
		res = s.cfg.Monitor.Latest()
	}
	s.cfg.Controller.Update(res, env)

	positions := make([][3]float32, len(points))
	for i, p := range points {
		positions[i] = p.Position
	}
	frac := s.cfg.Coverage.UpdateCoverage(positions)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateScanning {
		return
	}

	s.frameCount++
	s.lastFrame = fm
	s.lastEnv = env
	s.coverageFrac = frac
	if frame.FeatureCount > 0 {
		s.featureCount = frame.FeatureCount
	}
	if len(points) > 0 {
		s.points = append(s.points, points...)
		s.generation++
		s.startBatchLocked()
	}

	if s.cfg.Monitor != nil && s.cfg.Monitor.Critical() {
		s.failLocked(scan.NewScanError(scan.ResourceCritical, "thermal or memory pressure forced an abort"))
		return
	}

	s.maybeCheckpointLocked()
	s.publishAnalysisLocked()
}

// startBatchLocked schedules a kernel batch over a snapshot of the
// buffer. If a batch is already in flight the request coalesces: the
// next batch covers everything accumulated meanwhile.
func (s *Session) startBatchLocked() {
	if s.batchRunning {
		s.batchPending = true
		return
	}
	s.batchRunning = true
	snapshot := s.points[:len(s.points):len(s.points)]
	gen := s.generation
	features := s.featureCount

	ctx, cancel := context.WithCancel(context.Background())
	s.batchCancel = cancel
	s.wg.Add(1)
	go s.runBatch(ctx, snapshot, gen, features)
}

func (s *Session) runBatch(ctx context.Context, snapshot []scan.Point3D, gen int64, features int) {
	defer s.wg.Done()
	metrics, err := s.cfg.Kernel.Compute(ctx, snapshot, features)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.batchRunning = false

	switch {
	case err == nil:
		// Stale results are dropped so published metrics stay
		// monotonic in batch order.
		if gen > s.publishedGen {
			s.publishedGen = gen
			s.lastMetrics = metrics
			s.publishMetricsLocked()
		}
	case errors.Is(err, context.Canceled):
		// Cooperative cancel on stop; points are retained.
	case scan.CodeOf(err) == scan.AcceleratorUnavailable:
		monitoring.Logf("session %s: accelerator unavailable, degrading: %v", s.id, err)
		s.cfg.Controller.OnAcceleratorUnavailable()
	default:
		monitoring.Logf("session %s: kernel batch failed: %v", s.id, err)
	}

	if s.batchPending && s.state == StateScanning {
		s.batchPending = false
		s.startBatchLocked()
	}
}

// Capture attempts to accept the scan. The quality gate is checked first
// and independently of coverage; on either failure the session remains
// scanning. On acceptance the session runs processing and completes.
func (s *Session) Capture(ctx context.Context) (*scan.Mesh, error) {
	s.mu.Lock()
	if s.state != StateScanning {
		s.mu.Unlock()
		return nil, errors.New("capture requires an active scan")
	}
	snapshot := s.points[:len(s.points):len(s.points)]
	features := s.featureCount
	s.mu.Unlock()

	metrics, err := s.cfg.Kernel.Compute(ctx, snapshot, features)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.lastMetrics = metrics
	if score := metrics.Score(); score < CaptureMinScore {
		err := scan.NewScanError(scan.QualityBelowThreshold, "capture gate: scanning score below threshold")
		s.publishGuidanceLocked(err.Guidance)
		s.mu.Unlock()
		return nil, err
	}
	if !s.cfg.Coverage.Complete() {
		err := scan.NewScanError(scan.InsufficientCoverage, "capture gate: coverage incomplete")
		s.publishGuidanceLocked(err.Guidance)
		s.mu.Unlock()
		return nil, err
	}
	s.mu.Unlock()

	return s.finish(metrics, true)
}

// Stop ends the scan unconditionally: scanning → processing → complete.
// Any in-flight kernel batch is cancelled cooperatively; accumulated
// points are retained and a final quality pass runs over all of them.
func (s *Session) Stop(ctx context.Context) (*scan.Mesh, error) {
	s.mu.Lock()
	if s.state != StateScanning {
		s.mu.Unlock()
		return nil, errors.New("stop requires an active scan")
	}
	if s.batchCancel != nil {
		s.batchCancel()
	}
	s.mu.Unlock()
	s.wg.Wait()

	s.mu.Lock()
	snapshot := s.points[:len(s.points):len(s.points)]
	features := s.featureCount
	s.mu.Unlock()

	metrics, err := s.cfg.Kernel.Compute(ctx, snapshot, features)
	if err != nil {
		s.mu.Lock()
		var se *scan.ScanError
		if !errors.As(err, &se) {
			se = scan.NewScanError(scan.AcceleratorUnavailable, "final quality pass failed").WithCause(err)
		}
		s.failLocked(se)
		s.mu.Unlock()
		return nil, err
	}
	return s.finish(metrics, false)
}

// finish runs the processing phase: seal the mesh, clear checkpoints,
// and complete.
func (s *Session) finish(metrics scan.QualityMetrics, fromCapture bool) (*scan.Mesh, error) {
	s.mu.Lock()
	if s.batchCancel != nil {
		s.batchCancel()
	}
	s.setStateLocked(StateProcessing)
	s.mu.Unlock()
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	mesh := &scan.Mesh{Vertices: s.points[:len(s.points):len(s.points)]}
	s.lastMetrics = metrics
	s.setStateLocked(StateComplete)

	if s.cfg.Checkpoints != nil {
		if _, err := s.cfg.Checkpoints.Delete(s.id); err != nil {
			monitoring.Logf("session %s: clearing checkpoints failed: %v", s.id, err)
		}
	}
	monitoring.Logf("session %s: complete, %d points, score %.3f (capture gate: %v)",
		s.id, len(mesh.Vertices), metrics.Score(), fromCapture)
	return mesh, nil
}

// Recover restores the latest checkpoint into a fresh scanning state.
// Attempts are bounded; once exhausted, or when restore itself fails,
// the session fails with RecoveryFailed and no retry affordance.
func (s *Session) Recover() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateError {
		return errors.New("recover requires the error state")
	}
	if s.reason != nil && !s.reason.CanRetry {
		return scan.NewScanError(scan.RecoveryFailed, "failure is not retryable")
	}
	if s.recoveryAttempts >= s.cfg.MaxRecoveryAttempts {
		err := scan.NewScanError(scan.RecoveryFailed, "recovery attempts exhausted")
		s.reason = err
		return err
	}
	s.recoveryAttempts++

	if s.cfg.Checkpoints == nil {
		err := scan.NewScanError(scan.RecoveryFailed, "no checkpoint store configured")
		s.reason = err
		return err
	}
	cp, err := s.cfg.Checkpoints.Latest(s.id)
	if err != nil {
		serr := scan.NewScanError(scan.RecoveryFailed, "checkpoint restore failed").WithCause(err)
		s.reason = serr
		return serr
	}

	s.points = cp.Points
	s.generation++
	s.publishedGen = 0
	s.lastMetrics = cp.Metrics
	s.frameCount = cp.FrameCount
	s.cfg.Coverage.Restore(cp.Coverage)
	s.reason = nil
	s.batchPending = false
	s.lastCheckpointAt = s.clock.Now()
	s.setStateLocked(StateScanning)
	monitoring.Logf("session %s: recovered from checkpoint %d (%d points)", s.id, cp.ID, len(cp.Points))
	return nil
}

// maybeCheckpointLocked starts a background checkpoint save when the
// interval has elapsed. Saves are fire and forget: a failure leaves the
// last-save timestamp untouched so the next frame retries, and only a
// run of failures past the budget surfaces a warning event.
func (s *Session) maybeCheckpointLocked() {
	if s.cfg.Checkpoints == nil || s.checkpointBusy {
		return
	}
	if s.clock.Since(s.lastCheckpointAt) < s.cfg.CheckpointInterval {
		return
	}
	s.checkpointBusy = true

	cp := &checkpoint.Checkpoint{
		SessionID:  s.id,
		Phase:      s.cfg.Phase,
		TakenAt:    s.clock.Now(),
		FrameCount: s.frameCount,
		Points:     s.points[:len(s.points):len(s.points)],
		Coverage:   s.cfg.Coverage.Export(),
		Metrics:    s.lastMetrics,
		Settings:   s.cfg.Controller.Settings(),
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_, err := s.cfg.Checkpoints.Save(cp)

		s.mu.Lock()
		defer s.mu.Unlock()
		s.checkpointBusy = false
		if err != nil {
			s.checkpointFails++
			monitoring.Logf("session %s: checkpoint save failed (%d consecutive): %v", s.id, s.checkpointFails, err)
			// Warn once per run of failures; a successful save
			// resets the count and re-arms the warning.
			if s.checkpointFails == s.cfg.CheckpointRetryBudget {
				s.bus.Publish(scan.Event{
					Kind:      scan.EventCheckpointWarning,
					Timestamp: s.clock.Now(),
					Err:       err,
				})
			}
			return
		}
		s.checkpointFails = 0
		s.lastCheckpointAt = s.clock.Now()
		s.bus.Publish(scan.Event{Kind: scan.EventCheckpointSaved, Timestamp: s.lastCheckpointAt})
	}()
}

func (s *Session) failLocked(err *scan.ScanError) {
	s.reason = err
	s.setStateLocked(StateError)
	s.publishGuidanceLocked(err.Guidance)
}

func (s *Session) setStateLocked(next State) {
	if s.state == next {
		return
	}
	s.state = next
	s.bus.Publish(scan.Event{
		Kind:      scan.EventStateChanged,
		Timestamp: s.clock.Now(),
		State:     string(next),
	})
}

func (s *Session) publishMetricsLocked() {
	analysis := s.analysisLocked()
	s.bus.Publish(scan.Event{
		Kind:      scan.EventMetricsPublished,
		Timestamp: s.clock.Now(),
		Analysis:  &analysis,
	})
}

func (s *Session) publishAnalysisLocked() {
	s.publishGuidanceLocked(s.guidanceLocked())
}

func (s *Session) publishGuidanceLocked(g string) {
	s.bus.Publish(scan.Event{
		Kind:      scan.EventGuidance,
		Timestamp: s.clock.Now(),
		Guidance:  g,
	})
}
