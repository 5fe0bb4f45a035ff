package lbvh

import "github.com/gogpu/lbvh/geom"

// ExpandBits spreads the low 10 bits of v so that two zero bits separate
// each pair of consecutive bits.
func ExpandBits(v uint32) uint32 {
	v = (v * 0x00010001) & 0xFF0000FF
	v = (v * 0x00000101) & 0x0F00F00F
	v = (v * 0x00000011) & 0xC30C30C3
	v = (v * 0x00000005) & 0x49249249
	return v
}

// Morton3D returns the 30-bit Morton code of a point in the unit cube.
// Coordinates are quantized to 10 bits and clamped to [0, 1023]; x lands in
// the most significant bit of each triple.
func Morton3D(x, y, z float32) uint32 {
	xx := ExpandBits(quantize(x))
	yy := ExpandBits(quantize(y))
	zz := ExpandBits(quantize(z))
	return xx*4 + yy*2 + zz
}

func quantize(v float32) uint32 {
	v *= 1024
	if !(v > 0) {
		return 0
	}
	if v > 1023 {
		return 1023
	}
	return uint32(v)
}

// NormalizeCentroid maps p into the unit cube spanned by bounds. Axes with
// zero extent map to 0.
func NormalizeCentroid(p geom.Vec3, bounds geom.AABB) geom.Vec3 {
	var r geom.Vec3
	for i := 0; i < 3; i++ {
		ext := bounds.Max[i] - bounds.Min[i]
		if ext > 0 {
			r[i] = (p[i] - bounds.Min[i]) / ext
		}
	}
	return r
}

// MortonKey returns the sort key of a triangle box within bounds.
func MortonKey(box geom.AABB, bounds geom.AABB) uint32 {
	c := NormalizeCentroid(box.Centroid(), bounds)
	return Morton3D(c[0], c[1], c[2])
}

// UniquifyKeys rewrites ascending keys in place so that they are strictly
// increasing. The first key becomes 0 and each following key advances by
// the original gap, or by 1 where the gap is 0. Relative order is kept.
func UniquifyKeys(keys []uint32) {
	if len(keys) == 0 {
		return
	}
	prev := keys[0]
	next := uint32(0)
	keys[0] = 0
	for i := 1; i < len(keys); i++ {
		k := keys[i]
		next += max(k-prev, 1)
		prev = k
		keys[i] = next
	}
}

// strictlyIncreasing returns the first index i with keys[i-1] >= keys[i],
// or -1.
func strictlyIncreasing(keys []uint32) int {
	for i := 1; i < len(keys); i++ {
		if keys[i-1] >= keys[i] {
			return i
		}
	}
	return -1
}
