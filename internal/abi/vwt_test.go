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
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riftlang/riftmeta/internal/layout"
)

func TestPODWitnessesCatalog(t *testing.T) {
	t.Parallel()

	for _, size := range []uint32{1, 2, 4, 8} {
		tbl := PODWitnesses(size, size)
		require.NotNil(t, tbl, "size %d", size)
		assert.Equal(t, size, tbl.Layout.Size)
		assert.Equal(t, size, tbl.Layout.Stride)
		assert.True(t, tbl.Layout.Flags.IsPOD())
		assert.False(t, tbl.IsIncomplete())
	}

	// Over-word sizes align to the word.
	for _, size := range []uint32{16, 32, 64} {
		tbl := PODWitnesses(size, 8)
		require.NotNil(t, tbl, "size %d", size)
		assert.Equal(t, uint32(8), tbl.Layout.Flags.Alignment())
	}

	assert.Nil(t, PODWitnesses(3, 1), "no canonical table for odd sizes")

	// The catalog is shared: repeated lookups return the same table.
	assert.Same(t, PODWitnesses(8, 8), PODWitnesses(8, 8))
}

func TestPatternTableLifecycle(t *testing.T) {
	t.Parallel()

	tbl := NewPatternTable()
	assert.True(t, tbl.IsIncomplete())

	l := layout.POD(12, 4)
	tbl.PublishLayout(l)
	assert.False(t, tbl.IsIncomplete())
	assert.Equal(t, uint32(12), tbl.Layout.Size)
}

func TestInstallCommonValueWitnessesPOD(t *testing.T) {
	t.Parallel()

	tbl := NewPatternTable()
	l := layout.POD(8, 8)
	InstallCommonValueWitnesses(l, tbl)
	tbl.PublishLayout(l)

	md := &Metadata{Kind: KindOpaque, Witnesses: tbl}
	src := uint64(0xdead_beef_cafe_f00d)
	var dst uint64
	tbl.InitializeWithCopy(unsafe.Pointer(&dst), unsafe.Pointer(&src), md)
	assert.Equal(t, src, dst)
}

func TestInstallCommonValueWitnessesTakableNonPOD(t *testing.T) {
	t.Parallel()

	tbl := NewPatternTable()
	called := false
	tbl.InitializeWithCopy = func(_, _ unsafe.Pointer, _ *Metadata) { called = true }

	l := layout.TypeLayout{
		Size:   8,
		Stride: 8,
		Flags: layout.Flags(0).
			WithAlignmentMask(7).
			WithPOD(false).
			WithBitwiseTakable(true).
			WithInlineStorage(true),
	}
	InstallCommonValueWitnesses(l, tbl)
	tbl.PublishLayout(l)

	// Copies stay custom, but takes become raw moves.
	md := &Metadata{Kind: KindOpaque, Witnesses: tbl}
	src, dst := uintptr(42), uintptr(0)
	tbl.InitializeWithTake(unsafe.Pointer(&dst), unsafe.Pointer(&src), md)
	assert.Equal(t, uintptr(42), dst)

	tbl.InitializeWithCopy(nil, nil, md)
	assert.True(t, called)
}

func TestGenericBufferWitnesses(t *testing.T) {
	t.Parallel()

	t.Run("inline", func(t *testing.T) {
		t.Parallel()
		tbl := NewPatternTable()
		tbl.PublishLayout(layout.POD(16, 8))

		md := &Metadata{Kind: KindOpaque, Witnesses: tbl}
		var buf ValueBuffer
		p := tbl.AllocateBuffer(&buf, md)
		assert.Equal(t, unsafe.Pointer(&buf), p)
		tbl.DeallocateBuffer(&buf, md)
	})

	t.Run("out of line", func(t *testing.T) {
		t.Parallel()
		tbl := NewPatternTable()
		tbl.PublishLayout(layout.POD(64, 8))

		md := &Metadata{Kind: KindOpaque, Witnesses: tbl}
		var buf ValueBuffer
		p := tbl.AllocateBuffer(&buf, md)
		require.NotNil(t, p)
		assert.NotEqual(t, unsafe.Pointer(&buf), p)
		assert.Equal(t, uintptr(p), buf[0])
		tbl.DeallocateBuffer(&buf, md)
		assert.Zero(t, buf[0])
	})
}

func TestEnumTagWitnessRequiresEnumFlags(t *testing.T) {
	t.Parallel()

	tbl := NewPatternTable()
	tbl.PublishLayout(layout.POD(8, 8))
	assert.Panics(t, func() { tbl.EnumTagWitness() })
}

func TestVariantDowncasts(t *testing.T) {
	t.Parallel()

	s := &StructMetadata{}
	s.Kind = KindStruct
	md := s.AsMetadata()

	// The header and the variant are the same address.
	assert.Equal(t, unsafe.Pointer(s), unsafe.Pointer(md))

	back, ok := md.AsStruct()
	require.True(t, ok)
	assert.Same(t, s, back)

	_, ok = md.AsTuple()
	assert.False(t, ok)
	_, ok = md.AsClass()
	assert.False(t, ok)
}
