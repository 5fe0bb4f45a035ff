package lbvh

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/gogpu/lbvh/backend"
	"github.com/gogpu/lbvh/backend/soft"
	"github.com/gogpu/lbvh/compute"
	"github.com/gogpu/lbvh/geom"
	"github.com/gogpu/lbvh/internal/bvhbuild"
	"github.com/gogpu/lbvh/internal/sorter"
)

// Builder rebuilds a linear BVH over triangle geometry on a compute device.
//
// All device buffers are allocated once at capacity by NewBuilder. Every
// Build runs the full pipeline:
//
//  1. extract: boxes, Morton keys and payloads are computed and uploaded
//  2. sort: (key, triangle) pairs are radix-sorted on the device
//  3. uniquify: keys are read back, made strictly increasing and re-uploaded
//  4. construct: boxes are gathered into sorted order, the radix tree is
//     built and boxes are merged bottom-up
//  5. readback: the hierarchy is copied into the returned BVH
//
// Each stage blocks until the device is idle. A fatal error moves the
// builder into StateDegraded, where Build fails fast with ErrDegraded until
// Reset is called.
//
// Builder is safe for concurrent use; builds are serialized.
type Builder struct {
	mu sync.Mutex

	opts       options
	device     compute.Device
	ownsDevice bool
	disp       *compute.Dispatcher
	sorter     *sorter.Sorter
	cons       *bvhbuild.Constructor
	bc         *BuildContext

	state   State
	lastErr error
	stats   BuildStats
	closed  bool
}

// NewBuilder allocates a builder and all of its buffers.
//
// Without WithDevice or WithBackend the builder runs on a software device
// that it owns and closes in Close.
func NewBuilder(opts ...Option) (*Builder, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	cfg := sorter.Config{
		BlockSize: o.blockSize,
		MaxBlocks: max((o.capacity+o.blockSize-1)/o.blockSize, 1),
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("lbvh: capacity %d with block size %d: %w", o.capacity, o.blockSize, err)
	}

	dev, owned, err := openDevice(o)
	if err != nil {
		return nil, &BuildError{Kind: DeviceFailure, Stage: StageAllocate, Err: err}
	}

	b := &Builder{
		opts:       o,
		device:     dev,
		ownsDevice: owned,
		disp:       compute.NewDispatcher(dev),
	}
	b.cons = bvhbuild.New(b.disp)
	if b.sorter, err = sorter.New(b.disp, cfg); err != nil {
		b.release()
		return nil, &BuildError{Kind: DeviceFailure, Stage: StageAllocate, Err: err}
	}
	if b.bc, err = NewBuildContext(context.Background(), dev, o.capacity, cfg.Capacity()); err != nil {
		b.release()
		return nil, &BuildError{Kind: DeviceFailure, Stage: StageAllocate, Err: err}
	}

	Logger().Info("lbvh: builder ready",
		"device", dev.Name(),
		"capacity", o.capacity,
		"sort_capacity", cfg.Capacity(),
		"block_size", cfg.BlockSize)
	return b, nil
}

func openDevice(o options) (compute.Device, bool, error) {
	switch {
	case o.device != nil:
		return o.device, false, nil
	case o.backend != "":
		dev, err := backend.Open(o.backend)
		return dev, true, err
	default:
		return soft.New(soft.WithWorkers(o.workers)), true, nil
	}
}

// Build rebuilds the hierarchy from g. A scene with no triangles returns an
// empty BVH and leaves the builder in StateEmpty.
//
// Errors other than cancellation are *BuildError values; match them with
// errors.Is against ErrCapacityExceeded, ErrDeviceFailure or
// ErrInvariantViolation.
func (b *Builder) Build(ctx context.Context, g Geometry) (*BVH, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}
	if b.state == StateDegraded {
		return nil, ErrDegraded
	}
	if b.opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.timeout)
		defer cancel()
	}

	start := time.Now()
	var stats BuildStats
	run := func(s Stage, fn func(context.Context) error) error {
		t := time.Now()
		err := fn(ctx)
		stats.Durations[s] += time.Since(t)
		if err != nil {
			return b.fail(s, err)
		}
		return nil
	}

	var m uint32
	if err := run(StageExtract, func(ctx context.Context) error {
		var err error
		m, err = b.extract(ctx, g)
		return err
	}); err != nil {
		return nil, err
	}
	stats.Triangles = m
	if m > 1 {
		stats.Internal = m - 1
	}

	if m == 0 {
		b.state = StateEmpty
		stats.Total = time.Since(start)
		b.stats = stats
		Logger().Debug("lbvh: empty scene, nothing to build")
		return &BVH{}, nil
	}

	if err := run(StageSort, func(ctx context.Context) error { return b.sort(ctx, m) }); err != nil {
		return nil, err
	}
	if err := run(StageUniquify, func(ctx context.Context) error { return b.uniquify(ctx, m) }); err != nil {
		return nil, err
	}
	if err := run(StageConstruct, func(ctx context.Context) error { return b.construct(ctx, m) }); err != nil {
		return nil, err
	}

	var out *BVH
	if err := run(StageReadback, func(ctx context.Context) error {
		var err error
		out, err = b.collect(ctx, m)
		return err
	}); err != nil {
		return nil, err
	}
	if b.opts.validate {
		if err := run(StageValidate, func(context.Context) error { return out.Validate() }); err != nil {
			return nil, err
		}
	}

	stats.Total = time.Since(start)
	b.stats = stats
	b.state = StateReady

	Logger().Info("lbvh: build complete",
		"device", b.device.Name(),
		"triangles", m,
		"internal", stats.Internal,
		"elapsed", stats.Total)
	return out, nil
}

// fail classifies err, enters degraded mode and returns the BuildError.
// Cancellation by the caller is returned as is and does not degrade.
func (b *Builder) fail(s Stage, err error) error {
	if errors.Is(err, context.Canceled) {
		b.state = StateEmpty
		return err
	}
	be := classify(s, err)
	b.state = StateDegraded
	b.lastErr = be
	Logger().Warn("lbvh: build failed, global illumination disabled",
		"stage", s.String(),
		"kind", be.Kind.String(),
		"err", be.Err)
	return be
}

func classify(s Stage, err error) *BuildError {
	var be *BuildError
	if errors.As(err, &be) {
		return be
	}
	kind := DeviceFailure
	switch {
	case errors.Is(err, sorter.ErrCapacity):
		kind = CapacityExceeded
	case errors.Is(err, sorter.ErrUnsorted), errors.Is(err, ErrInvariantViolation):
		kind = InvariantViolation
	}
	return &BuildError{Kind: kind, Stage: s, Err: err}
}

// extract fills the key, index, box and payload mirrors and uploads the
// live range. The capacity check happens before any buffer is touched.
func (b *Builder) extract(ctx context.Context, g Geometry) (uint32, error) {
	n := g.NumTriangles()
	if n < 0 || uint64(n) > uint64(b.bc.capacity) {
		return 0, &BuildError{
			Kind:  CapacityExceeded,
			Stage: StageExtract,
			Err:   fmt.Errorf("%d triangles, capacity %d", n, b.bc.capacity),
		}
	}
	m := uint32(n)
	b.bc.live = m
	if m == 0 {
		return 0, nil
	}

	keys := b.bc.Keys.Local()
	indices := b.bc.SortedIndices.Local()
	boxes := b.bc.TriangleAABB.Local()
	payloads := b.bc.Payloads.Local()
	for i := range n {
		t := g.Triangle(i)
		box := t.Bounds()
		keys[i] = MortonKey(box, b.opts.bounds)
		indices[i] = uint32(i)
		boxes[i] = box
		payloads[i] = geom.TrianglePayload{
			TriangleIndex:  uint32(i),
			MeshIndex:      t.MeshIndex,
			MaterialIndex:  t.MaterialIndex,
			TransformIndex: t.TransformIndex,
		}
	}

	if err := b.bc.Keys.UploadRange(ctx, 0, n); err != nil {
		return 0, err
	}
	if err := b.bc.SortedIndices.UploadRange(ctx, 0, n); err != nil {
		return 0, err
	}
	if err := b.bc.TriangleAABB.UploadRange(ctx, 0, n); err != nil {
		return 0, err
	}
	if err := b.bc.Payloads.UploadRange(ctx, 0, n); err != nil {
		return 0, err
	}
	Logger().Debug("lbvh: triangles extracted", "triangles", m)
	return m, nil
}

func (b *Builder) sort(ctx context.Context, m uint32) error {
	if err := b.sorter.Sort(ctx, b.bc.Keys, b.bc.SortedIndices, m); err != nil {
		return err
	}
	if b.opts.validate {
		return sorter.Verify(ctx, b.bc.Keys, m)
	}
	return nil
}

// uniquify makes the sorted keys strictly increasing on the host.
func (b *Builder) uniquify(ctx context.Context, m uint32) error {
	if err := b.bc.Keys.ReadbackRange(ctx, 0, int(m)); err != nil {
		return err
	}
	keys := b.bc.Keys.Local()[:m]

	dups := 0
	for i := 1; i < len(keys); i++ {
		switch {
		case keys[i-1] > keys[i]:
			return fmt.Errorf("%w: sorted keys[%d] = %#x above keys[%d] = %#x",
				ErrInvariantViolation, i-1, keys[i-1], i, keys[i])
		case keys[i-1] == keys[i]:
			dups++
		}
	}
	UniquifyKeys(keys)
	if i := strictlyIncreasing(keys); i >= 0 {
		return fmt.Errorf("%w: uniquified keys[%d] = %#x not above keys[%d] = %#x",
			ErrInvariantViolation, i, keys[i], i-1, keys[i-1])
	}

	if err := b.bc.Keys.UploadRange(ctx, 0, int(m)); err != nil {
		return err
	}
	Logger().Debug("lbvh: keys uniquified", "keys", m, "duplicates", dups)
	return nil
}

func (b *Builder) construct(ctx context.Context, m uint32) error {
	bufs := b.bc.constructorBuffers()
	if err := b.cons.Gather(ctx, bufs, m); err != nil {
		return err
	}
	if err := b.cons.ConstructTree(ctx, bufs, m); err != nil {
		return err
	}
	return b.cons.ConstructBVH(ctx, bufs, m)
}

// collect reads the hierarchy back and copies it out of the mirrors, so
// the result stays valid across later builds.
func (b *Builder) collect(ctx context.Context, m uint32) (*BVH, error) {
	n := int(m)
	if err := b.bc.SortedIndices.ReadbackRange(ctx, 0, n); err != nil {
		return nil, err
	}
	if err := b.bc.SortedAABB.ReadbackRange(ctx, 0, n); err != nil {
		return nil, err
	}
	if err := b.bc.Leaf.ReadbackRange(ctx, 0, n); err != nil {
		return nil, err
	}
	if err := b.bc.Internal.ReadbackRange(ctx, 0, n-1); err != nil {
		return nil, err
	}
	if err := b.bc.BVH.ReadbackRange(ctx, 0, n-1); err != nil {
		return nil, err
	}

	return &BVH{
		SortedTriangleIndices: slices.Clone(b.bc.SortedIndices.Local()[:n]),
		SortedAABBs:           slices.Clone(b.bc.SortedAABB.Local()[:n]),
		TriangleAABBs:         slices.Clone(b.bc.TriangleAABB.Local()[:n]),
		Payloads:              slices.Clone(b.bc.Payloads.Local()[:n]),
		MortonKeys:            slices.Clone(b.bc.Keys.Local()[:n]),
		InternalNodes:         slices.Clone(b.bc.Internal.Local()[:n-1]),
		LeafNodes:             slices.Clone(b.bc.Leaf.Local()[:n]),
		Boxes:                 slices.Clone(b.bc.BVH.Local()[:n-1]),
	}, nil
}

// State returns the lifecycle state.
func (b *Builder) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// LastError returns the error that degraded the builder, or nil.
func (b *Builder) LastError() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}

// Reset leaves degraded mode. The next Build starts from scratch.
func (b *Builder) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateDegraded {
		Logger().Info("lbvh: builder reset", "cause", b.lastErr)
	}
	b.state = StateEmpty
	b.lastErr = nil
}

// Stats returns the statistics of the last successful build.
func (b *Builder) Stats() BuildStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// DispatchStats returns the accumulated device submission statistics.
func (b *Builder) DispatchStats() compute.DispatchStats {
	return b.disp.Stats()
}

// Capacity returns the maximum number of triangles per build.
func (b *Builder) Capacity() int { return int(b.opts.capacity) }

// Device returns the device the builder runs on.
func (b *Builder) Device() compute.Device { return b.device }

// Context returns the device arrays, for kernels that consume the
// hierarchy in place. The arrays are overwritten by the next Build.
func (b *Builder) Context() *BuildContext { return b.bc }

// Close releases all buffers and closes the device if the builder opened
// it. Close is idempotent.
func (b *Builder) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.release()
}

func (b *Builder) release() {
	if b.bc != nil {
		b.bc.Destroy()
	}
	if b.sorter != nil {
		b.sorter.Destroy()
	}
	if b.ownsDevice {
		b.device.Close()
	}
}
