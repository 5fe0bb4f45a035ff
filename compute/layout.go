// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compute

import "encoding/binary"

// Layout describes how a value of type T is packed into consecutive 32-bit
// words in device memory. Words are stored little-endian.
type Layout[T any] struct {
	// Words is the number of u32 words per element.
	Words int

	// Encode writes v into dst, which has exactly Words entries.
	Encode func(v T, dst []uint32)

	// Decode reads one element from src, which has exactly Words entries.
	Decode func(src []uint32) T
}

// Stride returns the element size in bytes.
func (l Layout[T]) Stride() int { return l.Words * 4 }

// EncodeBytes packs values into a little-endian byte slice.
func (l Layout[T]) EncodeBytes(values []T) []byte {
	words := make([]uint32, l.Words)
	out := make([]byte, len(values)*l.Stride())
	for i := range values {
		l.Encode(values[i], words)
		base := i * l.Stride()
		for w, v := range words {
			binary.LittleEndian.PutUint32(out[base+w*4:], v)
		}
	}
	return out
}

// DecodeBytes unpacks len(dst) elements from data into dst.
func (l Layout[T]) DecodeBytes(data []byte, dst []T) {
	words := make([]uint32, l.Words)
	for i := range dst {
		base := i * l.Stride()
		for w := range words {
			words[w] = binary.LittleEndian.Uint32(data[base+w*4:])
		}
		dst[i] = l.Decode(words)
	}
}

// Uint32Layout is the layout of a plain u32 array.
var Uint32Layout = Layout[uint32]{
	Words:  1,
	Encode: func(v uint32, dst []uint32) { dst[0] = v },
	Decode: func(src []uint32) uint32 { return src[0] },
}

// WordsToBytes converts u32 words to little-endian bytes.
func WordsToBytes(words []uint32) []byte {
	out := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}

// BytesToWords converts little-endian bytes to u32 words into dst.
// len(data) must be at least 4*len(dst).
func BytesToWords(data []byte, dst []uint32) {
	for i := range dst {
		dst[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
}
