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
	"unsafe"

	"github.com/stretchr/testify/require"

	meta "github.com/riftlang/riftmeta"
)

func unsafePointerTo[T any](p *T) unsafe.Pointer { return unsafe.Pointer(p) }

// universe is a tiny type system for tests: a module, a few builtins, and
// constructors for the common generic shapes. Each test builds its own so
// descriptor caches never leak across tests.
type universe struct {
	module *meta.ContextDescriptor

	int8T  *meta.Metadata
	int16T *meta.Metadata
	int32T *meta.Metadata
	int64T *meta.Metadata
	refT   *meta.Metadata
}

func newUniverse(moduleName string) *universe {
	return &universe{
		module: meta.NewModule(moduleName),
		int8T:  meta.NewOpaqueType("Int8", 1, 1, true),
		int16T: meta.NewOpaqueType("Int16", 2, 2, true),
		int32T: meta.NewOpaqueType("Int32", 4, 4, true),
		int64T: meta.NewOpaqueType("Int64", 8, 8, true),
		refT:   meta.NewOpaqueType("Ref", 8, 8, false),
	}
}

// structOver builds a generic struct whose fields are exactly its type
// parameters, in order.
func (u *universe) structOver(name string, arity int) *meta.StructDescriptor {
	fields := make([]string, arity)
	for i := range fields {
		fields[i] = string(rune('a' + i))
	}
	return meta.NewStructType(u.module, name,
		meta.WithFields(fields...),
		meta.WithGenericParams(arity, meta.StructPattern(func(args []meta.Argument) []*meta.Metadata {
			types := make([]*meta.Metadata, arity)
			for i := range types {
				types[i] = args[i].Type()
			}
			return types
		})),
	)
}

// instantiate requests a fully complete instantiation and fails the test if
// it does not get one.
func instantiate(t *testing.T, desc *meta.TypeDescriptor, args ...*meta.Metadata) *meta.Metadata {
	t.Helper()
	vec := make([]meta.Argument, len(args))
	for i, a := range args {
		vec[i] = meta.TypeArgument(a)
	}
	resp := meta.GetGenericMetadata(meta.Blocking(meta.Complete), desc, vec)
	require.Equal(t, meta.Complete, resp.State)
	require.NotNil(t, resp.Metadata)
	return resp.Metadata
}
