package lbvh

import (
	"fmt"
	"time"
)

// Stage names one step of a build.
type Stage int

const (
	// StageAllocate allocates the build context.
	StageAllocate Stage = iota

	// StageExtract computes boxes and Morton keys and uploads them.
	StageExtract

	// StageSort radix-sorts (key, triangle) pairs on the device.
	StageSort

	// StageUniquify reads keys back and makes them strictly increasing.
	StageUniquify

	// StageConstruct gathers sorted boxes, builds the tree and merges boxes.
	StageConstruct

	// StageReadback copies the finished hierarchy to the host.
	StageReadback

	// StageValidate checks the finished hierarchy when validation is on.
	StageValidate

	stageCount
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageAllocate:
		return "allocate"
	case StageExtract:
		return "extract"
	case StageSort:
		return "sort"
	case StageUniquify:
		return "uniquify"
	case StageConstruct:
		return "construct"
	case StageReadback:
		return "readback"
	case StageValidate:
		return "validate"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// State is the builder lifecycle state.
type State int

const (
	// StateEmpty means no hierarchy is available: nothing was built yet,
	// the last scene had no triangles, or Reset was called.
	StateEmpty State = iota

	// StateReady means the last build succeeded.
	StateReady

	// StateDegraded means a build failed fatally. Build returns
	// ErrDegraded until Reset.
	StateDegraded
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateEmpty:
		return "Empty"
	case StateReady:
		return "Ready"
	case StateDegraded:
		return "Degraded"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// BuildStats records the size and stage timings of the last build.
type BuildStats struct {
	Triangles uint32
	Internal  uint32

	// Durations is indexed by Stage.
	Durations [stageCount]time.Duration

	Total time.Duration
}

// Duration returns the time spent in stage s.
func (s BuildStats) Duration(stage Stage) time.Duration {
	if stage < 0 || stage >= stageCount {
		return 0
	}
	return s.Durations[stage]
}

// Stages returns the build stages in execution order.
func Stages() []Stage {
	return []Stage{StageAllocate, StageExtract, StageSort, StageUniquify, StageConstruct, StageReadback, StageValidate}
}
