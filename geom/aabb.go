// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package geom

import (
	"fmt"
	"math"

	"golang.org/x/image/math/f32"
)

// Vec3 is a 3-component float32 vector.
type Vec3 = f32.Vec3

// Epsilon is the inflation applied to triangle boxes so that flat triangles
// never produce zero-volume boxes.
const Epsilon = 0.001

// AABB is an axis-aligned bounding box.
type AABB struct {
	Min Vec3
	Max Vec3
}

// EmptyAABB returns the identity for Union: Min at +Inf, Max at -Inf.
func EmptyAABB() AABB {
	inf := float32(math.Inf(1))
	return AABB{
		Min: Vec3{inf, inf, inf},
		Max: Vec3{-inf, -inf, -inf},
	}
}

// TriangleAABB returns the epsilon-inflated box of a triangle.
func TriangleAABB(a, b, c Vec3) AABB {
	return EmptyAABB().Extend(a).Extend(b).Extend(c).Inflate(Epsilon)
}

// IsEmpty reports whether the box contains no points.
func (b AABB) IsEmpty() bool {
	return b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] || b.Min[2] > b.Max[2]
}

// Extend returns the smallest box containing b and p.
func (b AABB) Extend(p Vec3) AABB {
	for i := 0; i < 3; i++ {
		b.Min[i] = min(b.Min[i], p[i])
		b.Max[i] = max(b.Max[i], p[i])
	}
	return b
}

// Union returns the smallest box containing b and o.
func (b AABB) Union(o AABB) AABB {
	for i := 0; i < 3; i++ {
		b.Min[i] = min(b.Min[i], o.Min[i])
		b.Max[i] = max(b.Max[i], o.Max[i])
	}
	return b
}

// Inflate grows the box by eps on every side.
func (b AABB) Inflate(eps float32) AABB {
	for i := 0; i < 3; i++ {
		b.Min[i] -= eps
		b.Max[i] += eps
	}
	return b
}

// Contains reports whether o lies componentwise inside b (inclusive).
func (b AABB) Contains(o AABB) bool {
	for i := 0; i < 3; i++ {
		if o.Min[i] < b.Min[i] || o.Max[i] > b.Max[i] {
			return false
		}
	}
	return true
}

// Overlaps reports whether b and o share at least one point.
func (b AABB) Overlaps(o AABB) bool {
	for i := 0; i < 3; i++ {
		if b.Max[i] < o.Min[i] || o.Max[i] < b.Min[i] {
			return false
		}
	}
	return true
}

// Centroid returns the box center.
func (b AABB) Centroid() Vec3 {
	return Vec3{
		(b.Min[0] + b.Max[0]) * 0.5,
		(b.Min[1] + b.Max[1]) * 0.5,
		(b.Min[2] + b.Max[2]) * 0.5,
	}
}

// Extent returns Max - Min.
func (b AABB) Extent() Vec3 {
	return Vec3{b.Max[0] - b.Min[0], b.Max[1] - b.Min[1], b.Max[2] - b.Min[2]}
}

// String formats the box as "[min..max]".
func (b AABB) String() string {
	return fmt.Sprintf("[(%g, %g, %g)..(%g, %g, %g)]",
		b.Min[0], b.Min[1], b.Min[2], b.Max[0], b.Max[1], b.Max[2])
}
