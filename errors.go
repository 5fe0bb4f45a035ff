package lbvh

import (
	"errors"
	"fmt"
)

// Build errors. A *BuildError matches the sentinel of its Kind with
// errors.Is.
var (
	// ErrCapacityExceeded is matched by builds whose triangle count exceeds
	// the builder capacity.
	ErrCapacityExceeded = errors.New("lbvh: capacity exceeded")

	// ErrDeviceFailure is matched by allocation, dispatch and copy failures.
	ErrDeviceFailure = errors.New("lbvh: device failure")

	// ErrInvariantViolation is matched when sorted keys or the finished
	// hierarchy break a structural invariant.
	ErrInvariantViolation = errors.New("lbvh: invariant violation")

	// ErrDegraded is returned by Build after a fatal build error, until
	// Reset is called.
	ErrDegraded = errors.New("lbvh: builder degraded, global illumination disabled")

	// ErrClosed is returned when using a builder after Close.
	ErrClosed = errors.New("lbvh: builder is closed")

	// ErrInvalidMesh is returned by NewMeshSet for malformed index buffers.
	ErrInvalidMesh = errors.New("lbvh: invalid mesh")
)

// ErrorKind classifies a BuildError.
type ErrorKind int

const (
	// CapacityExceeded means the scene does not fit the fixed buffers.
	CapacityExceeded ErrorKind = iota + 1

	// DeviceFailure means the compute device failed.
	DeviceFailure

	// InvariantViolation means the data broke an ordering or tree invariant.
	InvariantViolation
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case CapacityExceeded:
		return "CapacityExceeded"
	case DeviceFailure:
		return "DeviceFailure"
	case InvariantViolation:
		return "InvariantViolation"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case CapacityExceeded:
		return ErrCapacityExceeded
	case DeviceFailure:
		return ErrDeviceFailure
	case InvariantViolation:
		return ErrInvariantViolation
	default:
		return nil
	}
}

// BuildError reports which stage of a build failed and why.
type BuildError struct {
	Kind  ErrorKind
	Stage Stage
	Err   error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("lbvh: %s in %s stage: %v", e.Kind, e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *BuildError) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel of e.Kind.
func (e *BuildError) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}
