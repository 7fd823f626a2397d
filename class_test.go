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
	"sync/atomic"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	meta "github.com/riftlang/riftmeta"
)

// classOver builds a generic class whose stored fields are its type
// parameters.
func classOver(u *universe, name string, arity int, opts ...meta.TypeOption) *meta.ClassDescriptor {
	fields := make([]string, arity)
	for i := range fields {
		fields[i] = string(rune('a' + i))
	}
	all := append([]meta.TypeOption{
		meta.WithFields(fields...),
		meta.WithClassGenericParams(arity, meta.StandardClassPattern(nil, nil,
			func(args []meta.Argument) []*meta.Metadata {
				types := make([]*meta.Metadata, arity)
				for i := range types {
					types[i] = args[i].Type()
				}
				return types
			})),
	}, opts...)
	return meta.NewClassType(u.module, name, all...)
}

func TestClassInstantiation(t *testing.T) {
	t.Parallel()

	u := newUniverse("Classes")
	var called atomic.Bool
	box := meta.NewClassType(u.module, "Box",
		meta.WithFields("value"),
		meta.WithMethods(func(_, _ unsafe.Pointer) unsafe.Pointer {
			called.Store(true)
			return nil
		}),
		meta.WithClassGenericParams(1, meta.StandardClassPattern(nil, nil,
			func(args []meta.Argument) []*meta.Metadata {
				return []*meta.Metadata{args[0].Type()}
			})),
	)

	md := instantiate(t, &box.TypeDescriptor, u.int64T)
	c, ok := md.AsClass()
	require.True(t, ok)

	// One header word, then the field.
	assert.Equal(t, []uint32{8}, c.FieldOffsets)
	assert.Equal(t, uint32(16), c.InstanceSize)
	assert.Equal(t, uint32(7), c.InstanceAlignMask)

	// Key argument + one method + one field offset.
	assert.Equal(t, uint32(3), c.Bounds.PositiveWords)
	assert.Equal(t, int32(0), c.Bounds.ImmediateMembersOffset)

	require.Len(t, c.VTable, 1)
	c.VTable[0](nil, nil)
	assert.True(t, called.Load())

	// Class values are single references.
	assert.Equal(t, uint32(8), c.Witnesses.Layout.Size)
	assert.False(t, c.Witnesses.Layout.Flags.IsPOD())
}

func TestSubclassFieldsFollowSuperclass(t *testing.T) {
	t.Parallel()

	u := newUniverse("Inheritance")
	base := classOver(u, "Base", 1)
	derived := classOver(u, "Derived", 1,
		meta.WithSuperclass(base),
		meta.WithClassGenericParams(1, meta.StandardClassPattern(nil,
			func(args []meta.Argument) *meta.Metadata {
				return instantiateRaw(base, args)
			},
			func(args []meta.Argument) []*meta.Metadata {
				return []*meta.Metadata{args[0].Type()}
			})),
	)

	md := instantiate(t, &derived.TypeDescriptor, u.int8T)
	c, _ := md.AsClass()

	require.NotNil(t, c.Superclass)
	// Base<Int8>: header 8 + 1 byte field.
	assert.Equal(t, uint32(9), c.Superclass.InstanceSize)
	// Derived's field lands right after.
	assert.Equal(t, []uint32{9}, c.FieldOffsets)
	assert.Equal(t, uint32(10), c.InstanceSize)

	// Derived's immediate members sit after Base's.
	assert.Equal(t, int32(2), c.Bounds.ImmediateMembersOffset)
	assert.Equal(t, uint32(4), c.Bounds.PositiveWords)
}

func TestResilientSuperclassBoundsMemoized(t *testing.T) {
	t.Parallel()

	u := newUniverse("Resilient")
	base := classOver(u, "Base", 0, meta.WithFields())

	var fetches atomic.Int32
	derived := classOver(u, "Derived", 1,
		meta.WithResilientSuperclass(func(req meta.Request) meta.Response {
			fetches.Add(1)
			return meta.GetGenericMetadata(req, &base.TypeDescriptor, nil)
		}),
		meta.WithClassGenericParams(1, meta.StandardClassPattern(nil,
			func([]meta.Argument) *meta.Metadata {
				return instantiateRaw(base, nil)
			},
			func(args []meta.Argument) []*meta.Metadata {
				return []*meta.Metadata{args[0].Type()}
			})),
	)

	first := instantiate(t, &derived.TypeDescriptor, u.int8T)
	second := instantiate(t, &derived.TypeDescriptor, u.int64T)
	assert.NotSame(t, first, second)

	c1, _ := first.AsClass()
	c2, _ := second.AsClass()
	assert.Equal(t, c1.Bounds, c2.Bounds)

	// The second instantiation reused the memoized bounds.
	assert.Equal(t, int32(1), fetches.Load())

	got, ok := derived.ResilientBounds.TryGet()
	require.True(t, ok)
	assert.Equal(t, c1.Bounds, got)
}

// instantiateRaw is instantiate without the testing.T plumbing, for use
// inside patterns.
func instantiateRaw(desc *meta.ClassDescriptor, args []meta.Argument) *meta.Metadata {
	return meta.GetGenericMetadata(meta.Blocking(meta.Complete), &desc.TypeDescriptor, args).Metadata
}
