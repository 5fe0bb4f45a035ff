// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compute

import "fmt"

// WorkgroupSize is the thread count of every per-element kernel.
// It matches WG_SIZE in the WGSL shaders.
const WorkgroupSize = 256

// ParamsWords is the number of u32 words in the params uniform at binding 0.
const ParamsWords = 4

// Kernel identifies a compute kernel.
type Kernel int

const (
	// KernelLocalRadixSort bucket-sorts one block by the current digit.
	// Params: {bitOffset, numBlocks, blockSize, count}. One group per block.
	KernelLocalRadixSort Kernel = iota

	// KernelPreScan exclusive-scans blockSize-sized chunks of the bucket
	// sizes and emits one partial sum per chunk.
	KernelPreScan

	// KernelBlockSum exclusive-scans the chunk partial sums in one group.
	KernelBlockSum

	// KernelGlobalScan adds each chunk's scanned partial sum back into the
	// chunk, producing global bucket offsets.
	KernelGlobalScan

	// KernelGlobalScatter writes each element of a locally sorted block to
	// its global position for the current digit.
	KernelGlobalScatter

	// KernelGatherAABB permutes triangle boxes into sorted order.
	// Params: {count}.
	KernelGatherAABB

	// KernelConstructTree builds the binary radix tree topology.
	// Params: {count}.
	KernelConstructTree

	// KernelConstructBVH merges boxes bottom-up with per-node atomic counters.
	// Params: {count}.
	KernelConstructBVH

	// KernelCount is the number of kernels.
	KernelCount
)

// String returns the kernel name used for labels and shader entry lookup.
func (k Kernel) String() string {
	switch k {
	case KernelLocalRadixSort:
		return "local_radix_sort"
	case KernelPreScan:
		return "pre_scan"
	case KernelBlockSum:
		return "block_sum"
	case KernelGlobalScan:
		return "global_scan"
	case KernelGlobalScatter:
		return "global_scatter"
	case KernelGatherAABB:
		return "gather_aabb"
	case KernelConstructTree:
		return "construct_tree"
	case KernelConstructBVH:
		return "construct_bvh"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// Access describes how a kernel uses a storage binding.
type Access int

const (
	// AccessRead is a read-only storage binding.
	AccessRead Access = iota
	// AccessReadWrite is a read-write storage binding.
	AccessReadWrite
)

// String returns the string representation of Access.
func (a Access) String() string {
	switch a {
	case AccessRead:
		return "read"
	case AccessReadWrite:
		return "read_write"
	default:
		return fmt.Sprintf("Unknown(%d)", int(a))
	}
}

const (
	r  = AccessRead
	rw = AccessReadWrite
)

// kernelSlots lists storage bindings 1..N for each kernel.
// Binding 0 is the params uniform and is not listed.
var kernelSlots = [KernelCount][]Access{
	// keys, values, blockKeys, blockValues, blockOffsets, bucketSizes
	KernelLocalRadixSort: {r, r, rw, rw, rw, rw},
	// bucketSizes, groupSums
	KernelPreScan: {rw, rw},
	// groupSums
	KernelBlockSum: {rw},
	// bucketSizes, groupSums
	KernelGlobalScan: {rw, r},
	// blockKeys, blockValues, blockOffsets, bucketSizes, keys, values
	KernelGlobalScatter: {r, r, r, r, rw, rw},
	// sortedIndices, triangleAABB, sortedAABB
	KernelGatherAABB: {r, r, rw},
	// keys, internal, leaf
	KernelConstructTree: {r, rw, rw},
	// sortedAABB, internal, leaf, atomics, bvh
	KernelConstructBVH: {r, r, r, rw, rw},
}

// Slots returns the access mode of each storage binding, in binding order
// starting at binding 1.
func (k Kernel) Slots() []Access {
	if k < 0 || k >= KernelCount {
		return nil
	}
	return kernelSlots[k]
}

// Pass is one recorded kernel dispatch.
type Pass struct {
	// Kernel selects the compute kernel.
	Kernel Kernel

	// Label is an optional debug label.
	Label string

	// Params is uploaded as the uniform at binding 0.
	Params [ParamsWords]uint32

	// Groups is the number of workgroups along X.
	Groups uint32

	// Buffers are the storage bindings, in the order given by Kernel.Slots.
	Buffers []Buffer
}

// Validate checks the pass against the kernel's binding table.
func (p *Pass) Validate() error {
	slots := p.Kernel.Slots()
	if slots == nil {
		return fmt.Errorf("%w: unknown kernel %s", ErrInvalidPass, p.Kernel)
	}
	if len(p.Buffers) != len(slots) {
		return fmt.Errorf("%w: %s expects %d bindings, got %d",
			ErrInvalidPass, p.Kernel, len(slots), len(p.Buffers))
	}
	for i, b := range p.Buffers {
		if b == nil {
			return fmt.Errorf("%w: %s binding %d is nil", ErrInvalidPass, p.Kernel, i+1)
		}
	}
	return nil
}

// GroupsFor returns the workgroup count covering n elements at
// WorkgroupSize threads per group.
func GroupsFor(n uint32) uint32 {
	return (n + WorkgroupSize - 1) / WorkgroupSize
}
