// Copyright 2025 The Rift Language Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package layout models the in-memory shape of a type: size, stride,
// alignment, and the handful of bits (POD-ness, bitwise takability, inline
// storage) that decide which value witnesses a type can use.
//
// A published TypeLayout is immutable. The only mutation point in the whole
// runtime is [ValueWitnessTable.PublishLayout] in the abi package, which is
// serialized by the owning cache entry.
package layout

import (
	"fmt"

	"fortio.org/safecast"
)

// WordSize is the size of a pointer word, the unit most metadata offsets are
// measured in.
const WordSize = 8

// MaxInlineWords is the number of words in an opaque value buffer. Types that
// fit (and are bitwise takable) are stored inline in existential containers.
const MaxInlineWords = 3

// Flags describes the layout-relevant properties of a type.
//
// The low byte holds the alignment mask; the remaining bits are independent
// flags. The encoding is part of the metadata ABI and must not be reordered.
type Flags uint32

const (
	flagAlignmentMask       Flags = 0x0000_00ff
	flagNonPOD              Flags = 0x0001_0000
	flagNonInline           Flags = 0x0002_0000
	flagNonBitwiseTakable   Flags = 0x0010_0000
	flagHasEnumWitnesses    Flags = 0x0020_0000
	flagIncomplete          Flags = 0x0040_0000
)

// AlignmentMask returns the alignment mask (alignment - 1).
func (f Flags) AlignmentMask() uint32 { return uint32(f & flagAlignmentMask) }

// Alignment returns the required alignment in bytes.
func (f Flags) Alignment() uint32 { return f.AlignmentMask() + 1 }

// IsPOD reports whether values need no work to copy or destroy.
func (f Flags) IsPOD() bool { return f&flagNonPOD == 0 }

// IsBitwiseTakable reports whether a value may be moved by memcpy.
func (f Flags) IsBitwiseTakable() bool { return f&flagNonBitwiseTakable == 0 }

// IsInlineStorage reports whether values fit in an opaque value buffer.
func (f Flags) IsInlineStorage() bool { return f&flagNonInline == 0 }

// HasEnumWitnesses reports whether the owning table carries enum tag
// witnesses.
func (f Flags) HasEnumWitnesses() bool { return f&flagHasEnumWitnesses != 0 }

// IsIncomplete reports whether the owning metadata has not finished layout.
func (f Flags) IsIncomplete() bool { return f&flagIncomplete != 0 }

func (f Flags) with(bit Flags, set bool) Flags {
	if set {
		return f | bit
	}
	return f &^ bit
}

// WithAlignmentMask replaces the alignment mask.
func (f Flags) WithAlignmentMask(mask uint32) Flags {
	return (f &^ flagAlignmentMask) | Flags(mask)&flagAlignmentMask
}

// WithPOD sets or clears POD-ness.
func (f Flags) WithPOD(pod bool) Flags { return f.with(flagNonPOD, !pod) }

// WithBitwiseTakable sets or clears bitwise takability.
func (f Flags) WithBitwiseTakable(takable bool) Flags {
	return f.with(flagNonBitwiseTakable, !takable)
}

// WithInlineStorage sets or clears inline storage.
func (f Flags) WithInlineStorage(inline bool) Flags {
	return f.with(flagNonInline, !inline)
}

// WithEnumWitnesses marks the owning table as carrying enum tag witnesses.
func (f Flags) WithEnumWitnesses(has bool) Flags {
	return f.with(flagHasEnumWitnesses, has)
}

// WithIncomplete sets or clears the incomplete marker.
func (f Flags) WithIncomplete(incomplete bool) Flags {
	return f.with(flagIncomplete, incomplete)
}

// IsValueInline is the inline-storage predicate: a value is stored inline in
// an opaque buffer when it fits in MaxInlineWords words, does not demand more
// than word alignment, and can be moved bitwise. Takability is checked by the
// caller because it lives in Flags, not in (size, align).
func IsValueInline(size, align uint32) bool {
	return size <= MaxInlineWords*WordSize && align <= WordSize
}

// TypeLayout is the layout summary of one type.
//
// Invariants: Stride >= max(1, Size), and Stride is a multiple of the
// alignment. Immutable once published.
type TypeLayout struct {
	Size                 uint32
	Stride               uint32
	Flags                Flags
	ExtraInhabitantCount uint32
}

// Format implements [fmt.Formatter].
func (l TypeLayout) Format(s fmt.State, verb rune) {
	fmt.Fprintf(s, "{size: %d, stride: %d, align: %d, pod: %v}",
		l.Size, l.Stride, l.Flags.Alignment(), l.Flags.IsPOD())
}

// RoundUpToAlignMask rounds size up to the alignment described by mask.
func RoundUpToAlignMask(size, mask uint32) uint32 {
	return (size + mask) &^ mask
}

// POD returns the layout of a plain-old-data type with natural alignment.
func POD(size, align uint32) TypeLayout {
	stride := RoundUpToAlignMask(size, align-1)
	if stride == 0 {
		stride = 1
	}
	return TypeLayout{
		Size:   size,
		Stride: stride,
		Flags: Flags(0).
			WithAlignmentMask(align - 1).
			WithInlineStorage(IsValueInline(size, align)),
	}
}

// BasicLayout performs universal sequential layout: each element's offset is
// rounded up to its own alignment, and the aggregate's flags are the worst
// case across all elements. This one algorithm serves structs, tuples, and
// the instance portion of classes.
//
// get returns the layout of element i; set receives element i's assigned
// offset. The start layout seeds the running size and flags, which lets class
// layout begin after the superclass's fields.
func BasicLayout(start TypeLayout, n int, get func(i int) TypeLayout, set func(i int, offset uint32)) TypeLayout {
	size := int(start.Size)
	alignMask := start.Flags.AlignmentMask()
	isPOD := start.Flags.IsPOD()
	isTakable := start.Flags.IsBitwiseTakable()

	for i := 0; i < n; i++ {
		elt := get(i)
		size = int(RoundUpToAlignMask(mustU32(size), elt.Flags.AlignmentMask()))
		set(i, mustU32(size))

		size += int(elt.Size)
		alignMask = max(alignMask, elt.Flags.AlignmentMask())
		isPOD = isPOD && elt.Flags.IsPOD()
		isTakable = isTakable && elt.Flags.IsBitwiseTakable()
	}

	stride := max(1, int(RoundUpToAlignMask(mustU32(size), alignMask)))
	return TypeLayout{
		Size:   mustU32(size),
		Stride: mustU32(stride),
		Flags: Flags(0).
			WithAlignmentMask(alignMask).
			WithPOD(isPOD).
			WithBitwiseTakable(isTakable).
			WithInlineStorage(isTakable && IsValueInline(mustU32(size), alignMask+1)),
	}
}

// mustU32 narrows a size computation to the ABI's 32-bit offsets. A type
// whose layout overflows 4 GiB is malformed input from the descriptor
// producer, not something the runtime can recover from.
func mustU32(v int) uint32 {
	u, err := safecast.Conv[uint32](v)
	if err != nil {
		panic(fmt.Errorf("riftmeta: layout overflow: %w", err))
	}
	return u
}
