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

import "fmt"

// Kind discriminates the metadata variants. The numeric values are part of
// the metadata ABI; append, never reorder.
type Kind uint32

const (
	KindInvalid Kind = iota
	KindStruct
	KindEnum
	KindClass
	KindOpaque
	KindForeign
	KindTuple
	KindFunction
	KindExistential
	KindMetatype
	KindExistentialMetatype
)

// IsNominal reports whether metadata of this kind is described by a
// compiler-emitted type descriptor.
func (k Kind) IsNominal() bool {
	switch k {
	case KindStruct, KindEnum, KindClass, KindForeign:
		return true
	default:
		return false
	}
}

// String implements [fmt.Stringer].
func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindStruct:
		return "struct"
	case KindEnum:
		return "enum"
	case KindClass:
		return "class"
	case KindOpaque:
		return "opaque"
	case KindForeign:
		return "foreign"
	case KindTuple:
		return "tuple"
	case KindFunction:
		return "function"
	case KindExistential:
		return "existential"
	case KindMetatype:
		return "metatype"
	case KindExistentialMetatype:
		return "existential-metatype"
	default:
		return fmt.Sprintf("Kind(%d)", uint32(k))
	}
}
