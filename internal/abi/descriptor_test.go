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
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestEqualContexts(t *testing.T) {
	t.Parallel()

	moduleA := &ContextDescriptor{Kind: ContextModule, Name: "A"}
	moduleA2 := &ContextDescriptor{Kind: ContextModule, Name: "A"}
	moduleB := &ContextDescriptor{Kind: ContextModule, Name: "B"}

	structIn := func(parent *ContextDescriptor, name, tag string) *ContextDescriptor {
		return &ContextDescriptor{Kind: ContextStruct, Parent: parent, Name: name, RelatedEntityTag: tag}
	}

	uniqued := &ContextDescriptor{Kind: ContextStruct, Parent: moduleA, Name: "S", Unique: true}

	tests := []struct {
		name string
		a, b *ContextDescriptor
		want bool
	}{
		{"same pointer", moduleA, moduleA, true},
		{"nil vs nil", nil, nil, true},
		{"nil vs module", nil, moduleA, false},
		{"equal modules by name", moduleA, moduleA2, true},
		{"different module names", moduleA, moduleB, false},
		{"same struct in equal modules", structIn(moduleA, "S", ""), structIn(moduleA2, "S", ""), true},
		{"same name different parents", structIn(moduleA, "S", ""), structIn(moduleB, "S", ""), false},
		{"different names", structIn(moduleA, "S", ""), structIn(moduleA, "T", ""), false},
		{"different entity tags", structIn(moduleA, "S", "x"), structIn(moduleA, "S", "y"), false},
		{"matching entity tags", structIn(moduleA, "S", "x"), structIn(moduleA, "S", "x"), true},
		{"unique only equals itself", uniqued, structIn(moduleA, "S", ""), false},
		{"kind mismatch", moduleA, structIn(moduleA, "A", ""), false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, EqualContexts(tt.a, tt.b))
			assert.Equal(t, tt.want, EqualContexts(tt.b, tt.a), "must be symmetric")
		})
	}
}

func TestQualifiedName(t *testing.T) {
	t.Parallel()

	m := &ContextDescriptor{Kind: ContextModule, Name: "Core"}
	outer := &ContextDescriptor{Kind: ContextStruct, Parent: m, Name: "Outer"}
	inner := &ContextDescriptor{Kind: ContextStruct, Parent: outer, Name: "Inner"}
	assert.Equal(t, "Core.Outer.Inner", inner.QualifiedName())
}

func TestInstantiationCacheInitializesOnce(t *testing.T) {
	t.Parallel()

	var c InstantiationCache
	var inits atomic.Int32
	got := make([]any, 8)

	var eg errgroup.Group
	for i := range got {
		i := i
		eg.Go(func() error {
			got[i] = c.Get(func() any {
				inits.Add(1)
				return new(int)
			})
			return nil
		})
	}
	require.NoError(t, eg.Wait())

	assert.Equal(t, int32(1), inits.Load())
	for _, v := range got {
		assert.Same(t, got[0], v)
	}
}

func TestStoredClassBounds(t *testing.T) {
	t.Parallel()

	var s StoredClassBounds
	_, ok := s.TryGet()
	assert.False(t, ok)

	want := ClassBounds{NegativeWords: 2, PositiveWords: 10, ImmediateMembersOffset: 4}
	s.Store(want)

	got, ok := s.TryGet()
	require.True(t, ok)
	assert.Equal(t, want, got)
	assert.Equal(t, uint32(12), got.TotalWords())
}
