// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package bvhbuild

import (
	"context"
	"math/rand"
	"testing"

	"github.com/gogpu/lbvh/backend/soft"
	"github.com/gogpu/lbvh/compute"
	"github.com/gogpu/lbvh/geom"
)

func alloc[T any](t *testing.T, dev compute.Device, label string, layout compute.Layout[T], n int) *compute.DataBuffer[T] {
	t.Helper()
	b, err := compute.NewDataBuffer(dev, label, layout, n)
	if err != nil {
		t.Fatalf("NewDataBuffer(%s) error = %v", label, err)
	}
	t.Cleanup(b.Destroy)
	return b
}

func newBuffers(t *testing.T, dev compute.Device, capacity int) *Buffers {
	return &Buffers{
		Keys:          alloc(t, dev, "keys", compute.Uint32Layout, capacity),
		SortedIndices: alloc(t, dev, "sorted_indices", compute.Uint32Layout, capacity),
		TriangleAABB:  alloc(t, dev, "triangle_aabb", geom.AABBLayout, capacity),
		SortedAABB:    alloc(t, dev, "sorted_aabb", geom.AABBLayout, capacity),
		Internal:      alloc(t, dev, "internal", geom.InternalNodeLayout, capacity),
		Leaf:          alloc(t, dev, "leaf", geom.LeafNodeLayout, capacity),
		Atomics:       alloc(t, dev, "atomics", compute.Uint32Layout, capacity),
		BVH:           alloc(t, dev, "bvh", geom.AABBLayout, capacity),
	}
}

// upload fills keys 0, 3, 6, ... and a reversed sorted->original mapping.
func upload(t *testing.T, b *Buffers, boxes []geom.AABB) {
	t.Helper()
	ctx := context.Background()
	m := len(boxes)
	for i := range m {
		b.Keys.Local()[i] = uint32(i * 3)
		b.SortedIndices.Local()[i] = uint32(m - 1 - i)
		b.TriangleAABB.Local()[i] = boxes[i]
	}
	for _, err := range []error{b.Keys.Upload(ctx), b.SortedIndices.Upload(ctx), b.TriangleAABB.Upload(ctx)} {
		if err != nil {
			t.Fatal(err)
		}
	}
}

func randomBoxes(rng *rand.Rand, m int) []geom.AABB {
	boxes := make([]geom.AABB, m)
	for i := range boxes {
		a := geom.Vec3{rng.Float32() * 10, rng.Float32() * 10, rng.Float32() * 10}
		boxes[i] = geom.TriangleAABB(a, geom.Vec3{a[0] + rng.Float32(), a[1], a[2]}, geom.Vec3{a[0], a[1] + rng.Float32(), a[2]})
	}
	return boxes
}

func build(t *testing.T, c *Constructor, b *Buffers, m uint32) {
	t.Helper()
	ctx := context.Background()
	if err := c.Gather(ctx, b, m); err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if err := c.ConstructTree(ctx, b, m); err != nil {
		t.Fatalf("ConstructTree() error = %v", err)
	}
	if err := c.ConstructBVH(ctx, b, m); err != nil {
		t.Fatalf("ConstructBVH() error = %v", err)
	}
	for _, err := range []error{
		b.SortedAABB.Readback(ctx), b.Internal.Readback(ctx), b.Leaf.Readback(ctx),
		b.Atomics.Readback(ctx), b.BVH.Readback(ctx),
	} {
		if err != nil {
			t.Fatal(err)
		}
	}
}

func TestConstructContainment(t *testing.T) {
	dev := soft.New(soft.WithWorkers(4))
	defer dev.Close()
	c := New(compute.NewDispatcher(dev))
	rng := rand.New(rand.NewSource(3))

	for _, m := range []int{2, 3, 64, 257, 1500} {
		b := newBuffers(t, dev, 1500)
		boxes := randomBoxes(rng, m)
		upload(t, b, boxes)
		build(t, c, b, uint32(m))

		want := geom.EmptyAABB()
		for i, box := range boxes {
			want = want.Union(box)
			if got := b.SortedAABB.Local()[m-1-i]; got != box {
				t.Fatalf("m=%d: sorted box %d = %v, want %v", m, m-1-i, got, box)
			}
		}
		if got := b.BVH.Local()[0]; got != want {
			t.Errorf("m=%d: root box = %v, want %v", m, got, want)
		}
		if got := b.Internal.Local()[0].Parent; got != geom.InvalidIndex {
			t.Errorf("m=%d: root parent = %d", m, got)
		}

		childBox := func(idx uint32, nt geom.NodeType) geom.AABB {
			if nt == geom.NodeLeaf {
				return b.SortedAABB.Local()[idx]
			}
			return b.BVH.Local()[idx]
		}
		for i := range m - 1 {
			node := b.Internal.Local()[i]
			box := b.BVH.Local()[i]
			l, r := childBox(node.Left, node.LeftType), childBox(node.Right, node.RightType)
			if !box.Contains(l) || !box.Contains(r) {
				t.Fatalf("m=%d: node %d box %v misses a child (%v, %v)", m, i, box, l, r)
			}
			if box != l.Union(r) {
				t.Fatalf("m=%d: node %d box %v is not the union of its children", m, i, box)
			}
			if got := b.Atomics.Local()[i]; got != 2 {
				t.Fatalf("m=%d: counter %d = %d, want 2", m, i, got)
			}
		}
	}
}

func TestConstructSingle(t *testing.T) {
	dev := soft.New()
	defer dev.Close()
	c := New(compute.NewDispatcher(dev))

	b := newBuffers(t, dev, 4)
	boxes := randomBoxes(rand.New(rand.NewSource(5)), 1)
	upload(t, b, boxes)
	build(t, c, b, 1)

	if got := b.Leaf.Local()[0]; got.Parent != geom.InvalidIndex || got.Index != 0 {
		t.Errorf("leaf = %+v, want {Parent: invalid, Index: 0}", got)
	}
	if got := b.SortedAABB.Local()[0]; got != boxes[0] {
		t.Errorf("sorted box = %v, want %v", got, boxes[0])
	}
	if st := c.disp.Stats(); st.Passes != 1 {
		t.Errorf("passes = %d, want only the gather pass", st.Passes)
	}
}

func TestConstructEmpty(t *testing.T) {
	dev := soft.New()
	defer dev.Close()
	c := New(compute.NewDispatcher(dev))
	b := newBuffers(t, dev, 4)

	build(t, c, b, 0)
	if st := c.disp.Stats(); st.Batches != 0 {
		t.Errorf("batches = %d, want 0", st.Batches)
	}
}

func TestRebuildIsIdempotent(t *testing.T) {
	dev := soft.New(soft.WithWorkers(8))
	defer dev.Close()
	c := New(compute.NewDispatcher(dev))

	const m = 900
	b := newBuffers(t, dev, m)
	upload(t, b, randomBoxes(rand.New(rand.NewSource(9)), m))

	build(t, c, b, m)
	internal := append([]geom.InternalNode(nil), b.Internal.Local()[:m-1]...)
	boxes := append([]geom.AABB(nil), b.BVH.Local()[:m-1]...)

	build(t, c, b, m)
	for i := range m - 1 {
		if b.Internal.Local()[i] != internal[i] {
			t.Fatalf("node %d changed: %+v -> %+v", i, internal[i], b.Internal.Local()[i])
		}
		if b.BVH.Local()[i] != boxes[i] {
			t.Fatalf("box %d changed: %v -> %v", i, boxes[i], b.BVH.Local()[i])
		}
	}
}
