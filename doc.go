// Package lbvh builds linear bounding volume hierarchies over triangle
// geometry on a compute device.
//
// # Overview
//
// A build sorts triangles along a 30-bit Morton curve with a block-parallel
// LSD radix sort, derives a binary radix tree from the sorted keys (Karras
// 2012) and merges boxes bottom-up, where the second child thread to reach
// a node merges it. Every stage runs as compute kernels; the host only
// extracts keys and makes them unique between the sort and the tree build.
//
// # Quick Start
//
//	b, err := lbvh.NewBuilder(lbvh.WithCapacity(100_000))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer b.Close()
//
//	bvh, err := b.Build(ctx, lbvh.TriangleSlice(triangles))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(bvh.Len(), bvh.RootBox())
//
// # Devices
//
// By default builds run on the software device in backend/soft, which runs
// each kernel workgroup on a goroutine pool. Importing backend/wgpu
// registers a GPU device that runs the same kernels as WGSL compute
// shaders:
//
//	import _ "github.com/gogpu/lbvh/backend/wgpu"
//
//	b, err := lbvh.NewBuilder(lbvh.WithBackend("wgpu"))
//
// # Failure Handling
//
// Buffers are sized once. A scene larger than the capacity fails with
// ErrCapacityExceeded before any buffer is written. Device and invariant
// failures are reported as *BuildError and put the builder into
// StateDegraded; callers are expected to disable the features that consume
// the hierarchy until they call Reset.
//
// # Logging
//
// lbvh is silent by default. Use SetLogger to route its slog output.
package lbvh
