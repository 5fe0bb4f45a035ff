// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package bvhbuild records the LBVH construction passes: gathering triangle
// boxes into sorted order, building the radix tree topology (Karras 2012),
// and merging boxes bottom-up with per-node atomic counters.
package bvhbuild

import (
	"context"
	"fmt"

	"github.com/gogpu/lbvh/compute"
	"github.com/gogpu/lbvh/geom"
	"github.com/gogpu/lbvh/internal/kernels"
)

// Buffers are the device arrays the constructor reads and writes. All of
// them are allocated at capacity by the caller; only the first m (or m-1)
// entries are live during a build.
type Buffers struct {
	// Keys are the sorted, strictly increasing sort keys.
	Keys *compute.DataBuffer[uint32]

	// SortedIndices maps sorted position to original triangle ordinal.
	SortedIndices *compute.DataBuffer[uint32]

	// TriangleAABB holds boxes in original triangle order.
	TriangleAABB *compute.DataBuffer[geom.AABB]

	// SortedAABB receives boxes in sorted order.
	SortedAABB *compute.DataBuffer[geom.AABB]

	Internal *compute.DataBuffer[geom.InternalNode]
	Leaf     *compute.DataBuffer[geom.LeafNode]

	// Atomics holds one merge counter per internal node.
	Atomics *compute.DataBuffer[uint32]

	// BVH receives the merged box of every internal node.
	BVH *compute.DataBuffer[geom.AABB]
}

// Constructor records and runs the construction passes.
type Constructor struct {
	disp *compute.Dispatcher
}

// New creates a constructor submitting through disp.
func New(disp *compute.Dispatcher) *Constructor {
	return &Constructor{disp: disp}
}

func treeParams(m uint32) [compute.ParamsWords]uint32 {
	return [compute.ParamsWords]uint32{kernels.ParamTreeCount: m}
}

// Gather writes SortedAABB[i] = TriangleAABB[SortedIndices[i]] for i < m.
func (c *Constructor) Gather(ctx context.Context, b *Buffers, m uint32) error {
	if m == 0 {
		return nil
	}
	cl := c.disp.GetCommandList()
	cl.Dispatch(compute.Pass{
		Kernel:  compute.KernelGatherAABB,
		Params:  treeParams(m),
		Groups:  compute.GroupsFor(m),
		Buffers: []compute.Buffer{b.SortedIndices.Buffer(), b.TriangleAABB.Buffer(), b.SortedAABB.Buffer()},
	})
	if err := c.disp.ExecuteAndWait(ctx); err != nil {
		return fmt.Errorf("bvhbuild: gather: %w", err)
	}
	return nil
}

// ConstructTree builds m-1 internal nodes and m leaves over the first m
// keys. For m == 1 no kernel runs; the single leaf is written from the host
// with an invalid parent.
func (c *Constructor) ConstructTree(ctx context.Context, b *Buffers, m uint32) error {
	switch m {
	case 0:
		return nil
	case 1:
		b.Leaf.Local()[0] = geom.LeafNode{Parent: geom.InvalidIndex, Index: 0}
		if err := b.Leaf.UploadRange(ctx, 0, 1); err != nil {
			return fmt.Errorf("bvhbuild: single leaf: %w", err)
		}
		return nil
	}

	cl := c.disp.GetCommandList()
	cl.Dispatch(compute.Pass{
		Kernel:  compute.KernelConstructTree,
		Params:  treeParams(m),
		Groups:  compute.GroupsFor(m),
		Buffers: []compute.Buffer{b.Keys.Buffer(), b.Internal.Buffer(), b.Leaf.Buffer()},
	})
	if err := c.disp.ExecuteAndWait(ctx); err != nil {
		return fmt.Errorf("bvhbuild: construct tree: %w", err)
	}
	compute.Logger().Debug("bvhbuild: tree constructed", "leaves", m, "internal", m-1)
	return nil
}

// ConstructBVH resets the merge counters and merges boxes bottom-up, one
// thread per leaf. It requires Gather and ConstructTree to have run.
func (c *Constructor) ConstructBVH(ctx context.Context, b *Buffers, m uint32) error {
	if m < 2 {
		return nil
	}
	counters := b.Atomics.Local()[:m-1]
	clear(counters)
	if err := b.Atomics.UploadRange(ctx, 0, int(m-1)); err != nil {
		return fmt.Errorf("bvhbuild: reset atomics: %w", err)
	}

	cl := c.disp.GetCommandList()
	cl.Dispatch(compute.Pass{
		Kernel: compute.KernelConstructBVH,
		Params: treeParams(m),
		Groups: compute.GroupsFor(m),
		Buffers: []compute.Buffer{
			b.SortedAABB.Buffer(), b.Internal.Buffer(), b.Leaf.Buffer(),
			b.Atomics.Buffer(), b.BVH.Buffer(),
		},
	})
	if err := c.disp.ExecuteAndWait(ctx); err != nil {
		return fmt.Errorf("bvhbuild: construct bvh: %w", err)
	}
	compute.Logger().Debug("bvhbuild: boxes merged", "internal", m-1)
	return nil
}
