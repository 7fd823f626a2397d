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

package abi

import (
	"unsafe"

	"github.com/riftlang/riftmeta/internal/debug"
	"github.com/riftlang/riftmeta/internal/layout"
)

// ValueBuffer is the fixed-size opaque buffer used to store values of
// unknown type inline when they fit.
type ValueBuffer [layout.MaxInlineWords]uintptr

// ValueWitnessTable carries a type's layout together with the operations
// needed to manipulate values of that type by reference.
//
// Each metadata references exactly one table; one table may serve many
// metadata (every 8-byte POD shares the same canonical table). Tables
// returned by the standard-witness lookups are shared constants and must
// never be mutated; tables owned by a single metadata are mutated only
// through PublishLayout and InstallCommonValueWitnesses while the owning
// cache entry is initializing.
type ValueWitnessTable struct {
	Layout layout.TypeLayout

	InitializeWithCopy func(dst, src unsafe.Pointer, self *Metadata)
	AssignWithCopy     func(dst, src unsafe.Pointer, self *Metadata)
	InitializeWithTake func(dst, src unsafe.Pointer, self *Metadata)
	Destroy            func(value unsafe.Pointer, self *Metadata)

	AllocateBuffer   func(buf *ValueBuffer, self *Metadata) unsafe.Pointer
	DeallocateBuffer func(buf *ValueBuffer, self *Metadata)

	// Enum tag witnesses, present only on tables whose flags say so.
	GetEnumTag               func(value unsafe.Pointer, self *Metadata) uint32
	DestructiveInjectEnumTag func(value unsafe.Pointer, tag uint32, self *Metadata)
}

// IsIncomplete reports whether this is still an instantiation-pattern table
// whose layout cannot be trusted.
func (t *ValueWitnessTable) IsIncomplete() bool {
	return t.Layout.Flags.IsIncomplete()
}

// PublishLayout stores the computed layout into the table and clears the
// incomplete marker.
//
// This is a plain store: publication to other threads rides on the owning
// cache entry's atomic state transition, never on this write alone.
func (t *ValueWitnessTable) PublishLayout(l layout.TypeLayout) {
	t.Layout = l
	t.Layout.Flags = t.Layout.Flags.WithIncomplete(false)
}

// EnumTagWitness returns the enum tag witness.
//
// Asking a table without enum witnesses is a caller bug.
func (t *ValueWitnessTable) EnumTagWitness() func(unsafe.Pointer, *Metadata) uint32 {
	debug.Assert(t.Layout.Flags.HasEnumWitnesses(), "enum-tag witness requested from a non-enum table")
	return t.GetEnumTag
}

// memcopy copies n bytes between two raw values.
func memcopy(dst, src unsafe.Pointer, n uint32) {
	copy(unsafe.Slice((*byte)(dst), n), unsafe.Slice((*byte)(src), n))
}

// The generic witnesses work for any bitwise-copyable layout by consulting
// the table at runtime; InstallCommonValueWitnesses replaces them with
// fixed-size versions when the layout allows.

func genericCopy(dst, src unsafe.Pointer, self *Metadata) {
	memcopy(dst, src, self.Witnesses.Layout.Size)
}

func genericDestroy(unsafe.Pointer, *Metadata) {}

func genericAllocateBuffer(buf *ValueBuffer, self *Metadata) unsafe.Pointer {
	l := self.Witnesses.Layout
	if l.Flags.IsInlineStorage() {
		return unsafe.Pointer(buf)
	}
	out := unsafe.Pointer(unsafe.SliceData(make([]byte, l.Stride)))
	buf[0] = uintptr(out)
	return out
}

func genericDeallocateBuffer(buf *ValueBuffer, self *Metadata) {
	if !self.Witnesses.Layout.Flags.IsInlineStorage() {
		// Heap-backed; dropping the reference is the deallocation.
		buf[0] = 0
	}
}

// directCopy returns a copy witness specialized to a fixed size.
func directCopy(size uint32) func(dst, src unsafe.Pointer, self *Metadata) {
	switch size {
	case 1:
		return func(dst, src unsafe.Pointer, _ *Metadata) {
			*(*uint8)(dst) = *(*uint8)(src)
		}
	case 2:
		return func(dst, src unsafe.Pointer, _ *Metadata) {
			*(*uint16)(dst) = *(*uint16)(src)
		}
	case 4:
		return func(dst, src unsafe.Pointer, _ *Metadata) {
			*(*uint32)(dst) = *(*uint32)(src)
		}
	case 8:
		return func(dst, src unsafe.Pointer, _ *Metadata) {
			*(*uint64)(dst) = *(*uint64)(src)
		}
	case 16:
		return func(dst, src unsafe.Pointer, _ *Metadata) {
			*(*[2]uint64)(dst) = *(*[2]uint64)(src)
		}
	default:
		return func(dst, src unsafe.Pointer, _ *Metadata) {
			memcopy(dst, src, size)
		}
	}
}

// newPODTable builds a table for a trivially-copyable layout.
func newPODTable(l layout.TypeLayout) ValueWitnessTable {
	cp := directCopy(l.Size)
	return ValueWitnessTable{
		Layout:             l,
		InitializeWithCopy: cp,
		AssignWithCopy:     cp,
		InitializeWithTake: cp,
		Destroy:            genericDestroy,
		AllocateBuffer:     genericAllocateBuffer,
		DeallocateBuffer:   genericDeallocateBuffer,
	}
}

// The canonical witness tables for the common builtin shapes. Shared by
// every metadata whose layout matches; returned by address, never mutated.
var (
	podTables = [...]ValueWitnessTable{
		newPODTable(layout.POD(1, 1)),
		newPODTable(layout.POD(2, 2)),
		newPODTable(layout.POD(4, 4)),
		newPODTable(layout.POD(8, 8)),
		newPODTable(layout.POD(16, 8)),
		newPODTable(layout.POD(32, 8)),
		newPODTable(layout.POD(64, 8)),
	}

	// objectPointerTable is the shape of a single managed object reference.
	// Copies are pointer copies; the host garbage collector owns lifetime,
	// so there is no retain/release work, but the shape is deliberately not
	// POD so that reference fields keep poisoning aggregate flags.
	objectPointerTable = ValueWitnessTable{
		Layout: layout.TypeLayout{
			Size:   layout.WordSize,
			Stride: layout.WordSize,
			Flags: layout.Flags(0).
				WithAlignmentMask(layout.WordSize - 1).
				WithPOD(false).
				WithBitwiseTakable(true).
				WithInlineStorage(true),
			ExtraInhabitantCount: 1,
		},
		InitializeWithCopy: directCopy(8),
		AssignWithCopy:     directCopy(8),
		InitializeWithTake: directCopy(8),
		Destroy:            genericDestroy,
		AllocateBuffer:     genericAllocateBuffer,
		DeallocateBuffer:   genericDeallocateBuffer,
	}

	// thickFunctionTable is the two-word {code, context} pair of a function
	// value. The context word is a managed reference.
	thickFunctionTable = ValueWitnessTable{
		Layout: layout.TypeLayout{
			Size:   2 * layout.WordSize,
			Stride: 2 * layout.WordSize,
			Flags: layout.Flags(0).
				WithAlignmentMask(layout.WordSize - 1).
				WithPOD(false).
				WithBitwiseTakable(true).
				WithInlineStorage(true),
			ExtraInhabitantCount: 1,
		},
		InitializeWithCopy: directCopy(16),
		AssignWithCopy:     directCopy(16),
		InitializeWithTake: directCopy(16),
		Destroy:            genericDestroy,
		AllocateBuffer:     genericAllocateBuffer,
		DeallocateBuffer:   genericDeallocateBuffer,
	}

	// metatypePointerTable is the shape of a metatype value: one immortal
	// pointer, trivially copyable.
	metatypePointerTable = newPODTable(layout.TypeLayout{
		Size:   layout.WordSize,
		Stride: layout.WordSize,
		Flags: layout.Flags(0).
			WithAlignmentMask(layout.WordSize - 1).
			WithInlineStorage(true),
		ExtraInhabitantCount: 1,
	})
)

// PODWitnesses returns the canonical shared table for a POD layout of the
// given size and natural alignment, or nil if no canonical table matches.
func PODWitnesses(size, align uint32) *ValueWitnessTable {
	for i := range podTables {
		t := &podTables[i]
		if t.Layout.Size == size && t.Layout.Flags.Alignment() == align {
			return t
		}
	}
	return nil
}

// ObjectPointerWitnesses returns the canonical table for a managed object
// reference.
func ObjectPointerWitnesses() *ValueWitnessTable { return &objectPointerTable }

// ThickFunctionWitnesses returns the canonical table for a thick function
// value.
func ThickFunctionWitnesses() *ValueWitnessTable { return &thickFunctionTable }

// MetatypePointerWitnesses returns the canonical table for metatype values.
func MetatypePointerWitnesses() *ValueWitnessTable { return &metatypePointerTable }

// NewPatternTable returns a fresh mutable table pre-filled with the generic
// by-reference witnesses and an incomplete layout. Instantiation patterns
// start from one of these; completion publishes the real layout and installs
// better witnesses.
func NewPatternTable() *ValueWitnessTable {
	return &ValueWitnessTable{
		Layout: layout.TypeLayout{
			Flags: layout.Flags(0).WithIncomplete(true),
		},
		InitializeWithCopy: genericCopy,
		AssignWithCopy:     genericCopy,
		InitializeWithTake: genericCopy,
		Destroy:            genericDestroy,
		AllocateBuffer:     genericAllocateBuffer,
		DeallocateBuffer:   genericDeallocateBuffer,
	}
}

// InstallCommonValueWitnesses replaces the generic, by-reference witnesses in
// table with faster equivalents selected by pattern-matching on the layout.
// Purely an optimization; the replaced witnesses behave identically.
func InstallCommonValueWitnesses(l layout.TypeLayout, table *ValueWitnessTable) {
	if l.Flags.IsPOD() {
		cp := directCopy(l.Size)
		if l.Size == l.Stride && l.Flags.Alignment() == naturalAlignment(l.Size) {
			// Exactly a canonical POD shape; reuse its specialized copies.
			if std := PODWitnesses(l.Size, l.Flags.Alignment()); std != nil {
				cp = std.InitializeWithCopy
			}
		}
		table.InitializeWithCopy = cp
		table.AssignWithCopy = cp
		table.InitializeWithTake = cp
		table.Destroy = genericDestroy
		return
	}

	if l.Flags.IsBitwiseTakable() {
		// Takes can still be raw moves even when copies need real work.
		table.InitializeWithTake = genericCopy
	}
}

// naturalAlignment returns the alignment a POD of the given size would have
// if nothing forced otherwise.
func naturalAlignment(size uint32) uint32 {
	align := uint32(1)
	for align < size && align < layout.WordSize {
		align <<= 1
	}
	return align
}
