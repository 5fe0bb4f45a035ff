package lbvh

import (
	"time"

	"github.com/gogpu/lbvh/compute"
	"github.com/gogpu/lbvh/geom"
)

// DefaultCapacity is the maximum triangle count of a builder created
// without WithCapacity.
const DefaultCapacity = 1 << 19

// DefaultBlockSize is the number of elements per radix sort block.
const DefaultBlockSize = 1024

// DefaultSceneBounds returns the box that Morton keys are normalized into.
// Centroids outside it clamp to the nearest face.
func DefaultSceneBounds() geom.AABB {
	return geom.AABB{
		Min: geom.Vec3{-50, -30, -50},
		Max: geom.Vec3{50, 50, 50},
	}
}

// Option configures a Builder.
//
// Example:
//
//	b, err := lbvh.NewBuilder(
//	    lbvh.WithCapacity(100_000),
//	    lbvh.WithTimeout(5*time.Second),
//	)
type Option func(*options)

type options struct {
	capacity  uint32
	blockSize uint32
	device    compute.Device
	backend   string
	bounds    geom.AABB
	timeout   time.Duration
	validate  bool
	workers   int
}

func defaultOptions() options {
	return options{
		capacity:  DefaultCapacity,
		blockSize: DefaultBlockSize,
		bounds:    DefaultSceneBounds(),
	}
}

// WithCapacity sets the maximum number of triangles per build. All buffers
// are allocated for this many triangles when the builder is created; a
// larger scene fails with ErrCapacityExceeded.
func WithCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.capacity = uint32(n)
		}
	}
}

// WithBlockSize sets the radix sort block size. It must be a multiple of
// compute.WorkgroupSize.
func WithBlockSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.blockSize = uint32(n)
		}
	}
}

// WithDevice makes the builder run on dev. The builder does not close a
// device passed this way.
func WithDevice(dev compute.Device) Option {
	return func(o *options) {
		o.device = dev
	}
}

// WithBackend opens the named registered backend (see package backend).
// WithDevice takes precedence.
func WithBackend(name string) Option {
	return func(o *options) {
		o.backend = name
	}
}

// WithSceneBounds sets the box that triangle centroids are normalized into
// before Morton encoding.
func WithSceneBounds(b geom.AABB) Option {
	return func(o *options) {
		o.bounds = b
	}
}

// WithTimeout bounds every build. Zero means no timeout beyond the
// caller's context.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithValidation reads keys back after the sort to assert ordering and
// validates the finished hierarchy. Failures are InvariantViolation errors.
func WithValidation(enabled bool) Option {
	return func(o *options) {
		o.validate = enabled
	}
}

// WithWorkers sets the worker count of the software device created when
// neither WithDevice nor WithBackend is given.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}
