package lbvh

import (
	"context"

	"github.com/gogpu/lbvh/compute"
	"github.com/gogpu/lbvh/geom"
	"github.com/gogpu/lbvh/internal/bvhbuild"
	"github.com/gogpu/lbvh/internal/sorter"
)

// BuildContext holds every device array of a build. It is allocated once at
// capacity and reused; only the first Live() entries are meaningful after
// a build.
type BuildContext struct {
	capacity uint32
	live     uint32

	// Keys and SortedIndices span the sort capacity, which rounds the
	// triangle capacity up to whole blocks.
	Keys          *compute.DataBuffer[uint32]
	SortedIndices *compute.DataBuffer[uint32]

	TriangleAABB *compute.DataBuffer[geom.AABB]
	SortedAABB   *compute.DataBuffer[geom.AABB]
	Payloads     *compute.DataBuffer[geom.TrianglePayload]

	Internal *compute.DataBuffer[geom.InternalNode]
	Leaf     *compute.DataBuffer[geom.LeafNode]
	Atomics  *compute.DataBuffer[uint32]
	BVH      *compute.DataBuffer[geom.AABB]
}

// NewBuildContext allocates the arrays for capacity triangles. Keys and
// sorted indices hold sortCapacity elements and start filled with the sort
// sentinel.
func NewBuildContext(ctx context.Context, dev compute.Device, capacity, sortCapacity uint32) (*BuildContext, error) {
	c := &BuildContext{capacity: capacity}
	n := int(capacity)
	var err error

	if c.Keys, err = compute.NewDataBufferFilled(ctx, dev, "lbvh_keys", compute.Uint32Layout, int(sortCapacity), sorter.Sentinel); err != nil {
		return nil, c.fail(err)
	}
	if c.SortedIndices, err = compute.NewDataBufferFilled(ctx, dev, "lbvh_sorted_indices", compute.Uint32Layout, int(sortCapacity), sorter.Sentinel); err != nil {
		return nil, c.fail(err)
	}
	if c.TriangleAABB, err = compute.NewDataBuffer(dev, "lbvh_triangle_aabb", geom.AABBLayout, n); err != nil {
		return nil, c.fail(err)
	}
	if c.SortedAABB, err = compute.NewDataBuffer(dev, "lbvh_sorted_aabb", geom.AABBLayout, n); err != nil {
		return nil, c.fail(err)
	}
	if c.Payloads, err = compute.NewDataBuffer(dev, "lbvh_payloads", geom.PayloadLayout, n); err != nil {
		return nil, c.fail(err)
	}
	if c.Internal, err = compute.NewDataBuffer(dev, "lbvh_internal_nodes", geom.InternalNodeLayout, n); err != nil {
		return nil, c.fail(err)
	}
	if c.Leaf, err = compute.NewDataBuffer(dev, "lbvh_leaf_nodes", geom.LeafNodeLayout, n); err != nil {
		return nil, c.fail(err)
	}
	if c.Atomics, err = compute.NewDataBuffer(dev, "lbvh_atomics", compute.Uint32Layout, n); err != nil {
		return nil, c.fail(err)
	}
	if c.BVH, err = compute.NewDataBuffer(dev, "lbvh_bvh", geom.AABBLayout, n); err != nil {
		return nil, c.fail(err)
	}
	return c, nil
}

func (c *BuildContext) fail(err error) error {
	c.Destroy()
	return err
}

// Capacity returns the maximum number of triangles.
func (c *BuildContext) Capacity() uint32 { return c.capacity }

// Live returns the triangle count of the last extraction.
func (c *BuildContext) Live() uint32 { return c.live }

func (c *BuildContext) constructorBuffers() *bvhbuild.Buffers {
	return &bvhbuild.Buffers{
		Keys:          c.Keys,
		SortedIndices: c.SortedIndices,
		TriangleAABB:  c.TriangleAABB,
		SortedAABB:    c.SortedAABB,
		Internal:      c.Internal,
		Leaf:          c.Leaf,
		Atomics:       c.Atomics,
		BVH:           c.BVH,
	}
}

// Destroy releases every allocated array.
func (c *BuildContext) Destroy() {
	destroy(c.Keys)
	destroy(c.SortedIndices)
	destroy(c.TriangleAABB)
	destroy(c.SortedAABB)
	destroy(c.Payloads)
	destroy(c.Internal)
	destroy(c.Leaf)
	destroy(c.Atomics)
	destroy(c.BVH)
}

func destroy[T any](b *compute.DataBuffer[T]) {
	if b != nil {
		b.Destroy()
	}
}
