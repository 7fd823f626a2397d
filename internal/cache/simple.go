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

package cache

import "sync"

// Simple is a typed wrapper over [sync.Map] for metadata kinds that are born
// Complete and need no state machine, only uniquing.
//
// The zero value is empty and ready to use.
type Simple[K comparable, V any] struct {
	impl sync.Map
}

// Load looks up a key.
func (m *Simple[K, V]) Load(key K) (V, bool) {
	v, ok := m.impl.Load(key)
	if !ok {
		var z V
		return z, false
	}
	return v.(V), true
}

// LoadOrStore returns the value for key, calling make and publishing its
// result if the key is absent. make may be called and its result discarded
// when another thread wins the publication race; it must have no side
// effects a discarded loser would make observable.
func (m *Simple[K, V]) LoadOrStore(key K, make func() V) (V, bool) {
	if v, ok := m.impl.Load(key); ok {
		return v.(V), true
	}
	v, loaded := m.impl.LoadOrStore(key, make())
	return v.(V), loaded
}

// Range calls f for each published entry until f returns false.
func (m *Simple[K, V]) Range(f func(K, V) bool) {
	m.impl.Range(func(k, v any) bool {
		return f(k.(K), v.(V))
	})
}
