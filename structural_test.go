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

package riftmeta_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	meta "github.com/riftlang/riftmeta"
)

func TestFunctionMetadataUniquing(t *testing.T) {
	t.Parallel()

	u := newUniverse("Funcs")
	params := []meta.FunctionParam{{Type: u.int64T}, {Type: u.int8T}}

	a := meta.GetFunctionMetadata(0, params, u.int32T)
	b := meta.GetFunctionMetadata(0, params, u.int32T)
	assert.Same(t, a, b)

	throws := meta.GetFunctionMetadata(meta.FunctionThrows, params, u.int32T)
	assert.NotSame(t, a, throws, "flags are identity")

	inout := meta.GetFunctionMetadata(0,
		[]meta.FunctionParam{{Type: u.int64T, Flags: meta.ParamInOut}, {Type: u.int8T}}, u.int32T)
	assert.NotSame(t, a, inout, "parameter flags are identity")

	// Function values are two words no matter the signature.
	assert.Equal(t, uint32(16), a.Witnesses.Layout.Size)
	assert.Equal(t, meta.Complete, meta.CheckState(meta.NonBlocking(meta.Complete), a).State)

	assert.Equal(t, "(Int64, Int8) -> Int32", meta.NameForMetadata(a))
	assert.Equal(t, "(Int64, Int8) throws -> Int32", meta.NameForMetadata(throws))
}

func TestExistentialCanonicalization(t *testing.T) {
	t.Parallel()

	u := newUniverse("Existentials")
	p := meta.NewProtocol(u.module, "Printable", false, 1)
	q := meta.NewProtocol(u.module, "Comparable", false, 2)

	pq := meta.GetExistentialMetadata(nil, []*meta.ProtocolDescriptor{p, q})
	qp := meta.GetExistentialMetadata(nil, []*meta.ProtocolDescriptor{q, p})
	assert.Same(t, pq, qp, "composition order is not identity")

	dup := meta.GetExistentialMetadata(nil, []*meta.ProtocolDescriptor{p, p, q})
	assert.Same(t, pq, dup, "duplicates collapse")

	e, ok := pq.AsExistential()
	require.True(t, ok)
	assert.Equal(t, uint32(2), e.Flags.NumWitnessTables())
	assert.False(t, e.Flags.ClassConstrained())

	// Opaque existential: 3-word buffer + type + 2 witness tables.
	assert.Equal(t, uint32(48), e.Witnesses.Layout.Size)
	assert.False(t, e.Witnesses.Layout.Flags.IsBitwiseTakable())
}

func TestClassConstrainedExistential(t *testing.T) {
	t.Parallel()

	u := newUniverse("ClassExistentials")
	p := meta.NewProtocol(u.module, "Renderer", true, 1)

	md := meta.GetExistentialMetadata(nil, []*meta.ProtocolDescriptor{p})
	e, _ := md.AsExistential()
	assert.True(t, e.Flags.ClassConstrained())

	// One reference + one witness table.
	assert.Equal(t, uint32(16), e.Witnesses.Layout.Size)
	assert.True(t, e.Witnesses.Layout.Flags.IsBitwiseTakable())
	assert.False(t, e.Witnesses.Layout.Flags.IsPOD())
}

func TestEmptyCompositionNames(t *testing.T) {
	t.Parallel()

	anyMD := meta.GetExistentialMetadata(nil, nil)
	assert.Equal(t, "Any", meta.NameForMetadata(anyMD))
}

func TestMetatypeUniquing(t *testing.T) {
	t.Parallel()

	u := newUniverse("Metatypes")

	a := meta.GetMetatypeMetadata(u.int64T)
	b := meta.GetMetatypeMetadata(u.int64T)
	assert.Same(t, a, b)
	assert.NotSame(t, a, meta.GetMetatypeMetadata(u.int8T))

	// Metatypes of metatypes are fine.
	aa := meta.GetMetatypeMetadata(a)
	assert.Equal(t, "Int64.Type.Type", meta.NameForMetadata(aa))

	assert.Equal(t, uint32(8), a.Witnesses.Layout.Size)
	assert.True(t, a.Witnesses.Layout.Flags.IsPOD())
}

func TestExistentialMetatype(t *testing.T) {
	t.Parallel()

	u := newUniverse("ExMetatypes")
	p := meta.NewProtocol(u.module, "Printable", false, 1)
	ex := meta.GetExistentialMetadata(nil, []*meta.ProtocolDescriptor{p})

	a := meta.GetExistentialMetatypeMetadata(ex)
	b := meta.GetExistentialMetatypeMetadata(ex)
	assert.Same(t, a, b)

	em, ok := a.AsExistentialMetatype()
	require.True(t, ok)
	assert.Equal(t, uint32(1), em.Flags.NumWitnessTables())
	// Metatype word + one witness table.
	assert.Equal(t, uint32(16), em.Witnesses.Layout.Size)
	assert.Equal(t, "ExMetatypes.Printable.Type", meta.NameForMetadata(a))
}

func TestForeignMetadataUniquesByIdentity(t *testing.T) {
	t.Parallel()

	// Two images emit the same foreign descriptor; identity is the name
	// path, so both get one record.
	m1 := meta.NewModule("CLib")
	m2 := meta.NewModule("CLib")
	d1 := meta.NewForeignType(m1, "timeval")
	d2 := meta.NewForeignType(m2, "timeval")

	a := meta.GetForeignTypeMetadata(d1)
	b := meta.GetForeignTypeMetadata(d2)
	assert.Same(t, a, b)

	// The first registration's descriptor is canonical.
	f, _ := a.AsForeign()
	assert.Same(t, d1, f.Description)

	// A unique-flagged descriptor is its own identity.
	d3 := meta.NewForeignType(m1, "timeval", meta.WithUnique())
	assert.NotSame(t, a, meta.GetForeignTypeMetadata(d3))

	// A related-entity tag separates synthesized descriptors.
	d4 := meta.NewForeignType(m1, "timeval", meta.WithRelatedEntityTag("shadow"))
	assert.NotSame(t, a, meta.GetForeignTypeMetadata(d4))
}
