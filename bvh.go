package lbvh

import (
	"fmt"

	"github.com/gogpu/lbvh/geom"
)

// BVH is a finished hierarchy copied back to the host. Leaves are in sorted
// (Morton) order; SortedTriangleIndices maps a leaf to its original
// triangle ordinal. Internal node 0 is the root when Len() >= 2.
type BVH struct {
	// SortedTriangleIndices[i] is the triangle ordinal of leaf i.
	SortedTriangleIndices []uint32

	// SortedAABBs[i] is the box of leaf i.
	SortedAABBs []geom.AABB

	// TriangleAABBs and Payloads are in original triangle order.
	TriangleAABBs []geom.AABB
	Payloads      []geom.TrianglePayload

	// MortonKeys are the uniquified, strictly increasing sort keys.
	MortonKeys []uint32

	InternalNodes []geom.InternalNode
	LeafNodes     []geom.LeafNode

	// Boxes[i] is the merged box of internal node i.
	Boxes []geom.AABB
}

// Len returns the number of leaves.
func (b *BVH) Len() int { return len(b.LeafNodes) }

// Root returns the root node. ok is false for an empty hierarchy. With a
// single triangle the root is leaf 0.
func (b *BVH) Root() (index uint32, typ geom.NodeType, ok bool) {
	switch b.Len() {
	case 0:
		return 0, geom.NodeInternal, false
	case 1:
		return 0, geom.NodeLeaf, true
	default:
		return 0, geom.NodeInternal, true
	}
}

// RootBox returns the box enclosing every triangle, or an empty box.
func (b *BVH) RootBox() geom.AABB {
	idx, typ, ok := b.Root()
	if !ok {
		return geom.EmptyAABB()
	}
	return b.NodeBox(idx, typ)
}

// NodeBox returns the box of an internal node or leaf.
func (b *BVH) NodeBox(index uint32, typ geom.NodeType) geom.AABB {
	if typ == geom.NodeLeaf {
		return b.SortedAABBs[index]
	}
	return b.Boxes[index]
}

// Children returns the two children of internal node i.
func (b *BVH) Children(i uint32) (left, right uint32, leftType, rightType geom.NodeType) {
	n := b.InternalNodes[i]
	return n.Left, n.Right, n.LeftType, n.RightType
}

type nodeRef struct {
	index uint32
	typ   geom.NodeType
}

// walk visits nodes depth first, left child first. Children of a node are
// skipped when visit returns false.
func (b *BVH) walk(index uint32, typ geom.NodeType, visit func(nodeRef, int) bool) {
	type item struct {
		ref   nodeRef
		depth int
	}
	stack := []item{{nodeRef{index, typ}, 0}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !visit(it.ref, it.depth) || it.ref.typ == geom.NodeLeaf {
			continue
		}
		n := b.InternalNodes[it.ref.index]
		stack = append(stack,
			item{nodeRef{n.Right, n.RightType}, it.depth + 1},
			item{nodeRef{n.Left, n.LeftType}, it.depth + 1})
	}
}

// Leaves returns the original triangle ordinals below a node, in sorted
// order.
func (b *BVH) Leaves(index uint32, typ geom.NodeType) []uint32 {
	var out []uint32
	b.walk(index, typ, func(r nodeRef, _ int) bool {
		if r.typ == geom.NodeLeaf {
			out = append(out, b.SortedTriangleIndices[r.index])
		}
		return true
	})
	return out
}

// Depth returns the number of edges on the longest root-to-leaf path.
func (b *BVH) Depth() int {
	idx, typ, ok := b.Root()
	if !ok {
		return 0
	}
	depth := 0
	b.walk(idx, typ, func(r nodeRef, d int) bool {
		depth = max(depth, d)
		return true
	})
	return depth
}

// Query calls fn with the triangle ordinal of every leaf whose box overlaps
// box, pruning subtrees whose merged box does not. It stops early when fn
// returns false.
func (b *BVH) Query(box geom.AABB, fn func(triangle uint32) bool) {
	idx, typ, ok := b.Root()
	if !ok {
		return
	}
	stopped := false
	b.walk(idx, typ, func(r nodeRef, _ int) bool {
		if stopped || !b.NodeBox(r.index, r.typ).Overlaps(box) {
			return false
		}
		if r.typ == geom.NodeLeaf {
			stopped = !fn(b.SortedTriangleIndices[r.index])
		}
		return true
	})
}

// Validate checks node counts, parent links, that every leaf is reachable
// exactly once, that keys strictly increase, that SortedTriangleIndices is
// a permutation, and that every internal box contains both children.
// Failures wrap ErrInvariantViolation.
func (b *BVH) Validate() error {
	n := len(b.LeafNodes)
	if len(b.SortedAABBs) != n || len(b.SortedTriangleIndices) != n || len(b.MortonKeys) != n {
		return fmt.Errorf("%w: %d leaves but %d boxes, %d indices, %d keys", ErrInvariantViolation,
			n, len(b.SortedAABBs), len(b.SortedTriangleIndices), len(b.MortonKeys))
	}
	if n == 0 {
		if len(b.InternalNodes) != 0 || len(b.Boxes) != 0 {
			return fmt.Errorf("%w: empty hierarchy has internal nodes", ErrInvariantViolation)
		}
		return nil
	}
	if len(b.InternalNodes) != n-1 || len(b.Boxes) != n-1 {
		return fmt.Errorf("%w: %d leaves need %d internal nodes, have %d nodes and %d boxes",
			ErrInvariantViolation, n, n-1, len(b.InternalNodes), len(b.Boxes))
	}
	if i := strictlyIncreasing(b.MortonKeys); i >= 0 {
		return fmt.Errorf("%w: keys[%d] = %#x not above keys[%d] = %#x",
			ErrInvariantViolation, i, b.MortonKeys[i], i-1, b.MortonKeys[i-1])
	}
	seen := make([]bool, n)
	for i, t := range b.SortedTriangleIndices {
		if int(t) >= n || seen[t] {
			return fmt.Errorf("%w: sorted index %d = %d is not a permutation entry", ErrInvariantViolation, i, t)
		}
		seen[t] = true
	}
	for i, l := range b.LeafNodes {
		if l.Index != uint32(i) {
			return fmt.Errorf("%w: leaf %d has index %d", ErrInvariantViolation, i, l.Index)
		}
	}

	if n == 1 {
		if p := b.LeafNodes[0].Parent; p != geom.InvalidIndex {
			return fmt.Errorf("%w: single leaf has parent %d", ErrInvariantViolation, p)
		}
		return nil
	}

	if p := b.InternalNodes[0].Parent; p != geom.InvalidIndex {
		return fmt.Errorf("%w: root has parent %d", ErrInvariantViolation, p)
	}
	reached := make([]bool, n)
	for i := range b.InternalNodes {
		node := b.InternalNodes[i]
		box := b.Boxes[i]
		for _, c := range []nodeRef{{node.Left, node.LeftType}, {node.Right, node.RightType}} {
			if err := b.checkChild(uint32(i), box, c, reached); err != nil {
				return err
			}
		}
	}
	for i, ok := range reached {
		if !ok {
			return fmt.Errorf("%w: leaf %d is unreachable", ErrInvariantViolation, i)
		}
	}
	return nil
}

func (b *BVH) checkChild(parent uint32, box geom.AABB, c nodeRef, reached []bool) error {
	n := uint32(len(b.LeafNodes))
	switch c.typ {
	case geom.NodeLeaf:
		if c.index >= n {
			return fmt.Errorf("%w: node %d has leaf child %d out of range", ErrInvariantViolation, parent, c.index)
		}
		if reached[c.index] {
			return fmt.Errorf("%w: leaf %d has two parents", ErrInvariantViolation, c.index)
		}
		reached[c.index] = true
		if p := b.LeafNodes[c.index].Parent; p != parent {
			return fmt.Errorf("%w: leaf %d parent = %d, want %d", ErrInvariantViolation, c.index, p, parent)
		}
	case geom.NodeInternal:
		if c.index == 0 || c.index >= n-1 {
			return fmt.Errorf("%w: node %d has internal child %d out of range", ErrInvariantViolation, parent, c.index)
		}
		if p := b.InternalNodes[c.index].Parent; p != parent {
			return fmt.Errorf("%w: node %d parent = %d, want %d", ErrInvariantViolation, c.index, p, parent)
		}
	default:
		return fmt.Errorf("%w: node %d has child of type %v", ErrInvariantViolation, parent, c.typ)
	}
	if !box.Contains(b.NodeBox(c.index, c.typ)) {
		return fmt.Errorf("%w: box of node %d %v does not contain %v child %d %v",
			ErrInvariantViolation, parent, box, c.typ, c.index, b.NodeBox(c.index, c.typ))
	}
	return nil
}
