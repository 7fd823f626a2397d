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

// Package xunsafe contains the small set of pointer tricks the metadata
// runtime relies on, kept in one place so the rest of the codebase can stay
// honest about where unsafe conversions happen.
package xunsafe

import "unsafe"

// Cast performs an unchecked pointer cast.
//
// The caller is responsible for ensuring that From and To are
// layout-compatible at p; the metadata variants guarantee this by embedding
// their common header as the first field.
func Cast[To, From any](p *From) *To {
	return (*To)(unsafe.Pointer(p))
}

// Add adds a byte offset to p, preserving its type.
func Add[T any](p *T, off uintptr) *T {
	return (*T)(unsafe.Add(unsafe.Pointer(p), off))
}

// Key returns the raw address of p for use in fingerprint keys.
//
// Metadata and descriptors are immortal, so an address observed here can
// never be reused for a different object.
func Key[T any](p *T) uintptr {
	return uintptr(unsafe.Pointer(p))
}
