package resource

// Action is one optimization step the monitor can request. Actions form
// an ordered set: earlier actions are cheaper and tried first, later
// ones are progressively more intrusive. Appliers must be idempotent --
// applying the same action twice has no effect beyond the first.
type Action int

const (
	ActionReduceResolution Action = iota
	ActionIncreaseFrameInterval
	ActionClearBuffers
	ActionCompressOlderFrames
	ActionReduceVisualizationQuality
	ActionDisableNonEssentialCompute
	ActionEnterLowPowerMode

	actionCount
)

// String returns the snake_case action name used in events and logs.
func (a Action) String() string {
	switch a {
	case ActionReduceResolution:
		return "reduce_resolution"
	case ActionIncreaseFrameInterval:
		return "increase_frame_interval"
	case ActionClearBuffers:
		return "clear_buffers"
	case ActionCompressOlderFrames:
		return "compress_older_frames"
	case ActionReduceVisualizationQuality:
		return "reduce_visualization_quality"
	case ActionDisableNonEssentialCompute:
		return "disable_non_essential_compute"
	case ActionEnterLowPowerMode:
		return "enter_low_power_mode"
	default:
		return "unknown"
	}
}

// ActionSink receives optimization actions. Implementations must be
// idempotent per action.
type ActionSink interface {
	Apply(a Action)
}

// ActionSinkFunc adapts a function to ActionSink.
type ActionSinkFunc func(a Action)

// Apply calls f.
func (f ActionSinkFunc) Apply(a Action) { f(a) }
