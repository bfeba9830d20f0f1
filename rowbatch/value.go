// Copyright 2024 The ArangoDB-Go Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rowbatch

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/brennv/arangodb/common"
)

// RegisterID addresses a column slot assigned to a variable by the planner.
type RegisterID int

// NoRegister is the sentinel for an unset register.
const NoRegister RegisterID = -1

type Kind int8

const (
	KindEmpty Kind = iota
	KindNull
	KindBool
	KindInt
	KindDouble
	KindString
	KindDocument
)

// Value is a tagged cell value. Document values hold raw JSON bytes; the
// bytes are treated as immutable once the value is stored in a batch.
type Value struct {
	kind Kind
	b    bool
	i    int64
	d    float64
	s    string
	doc  []byte
}

func NullValue() Value {
	return Value{kind: KindNull}
}

func BoolValue(b bool) Value {
	return Value{kind: KindBool, b: b}
}

func IntValue(i int64) Value {
	return Value{kind: KindInt, i: i}
}

func DoubleValue(d float64) Value {
	return Value{kind: KindDouble, d: d}
}

func StringValue(s string) Value {
	return Value{kind: KindString, s: s}
}

func DocumentValue(doc []byte) Value {
	return Value{kind: KindDocument, doc: doc}
}

func (v Value) Kind() Kind {
	return v.kind
}

func (v Value) IsEmpty() bool {
	return v.kind == KindEmpty
}

func (v Value) IsNull() bool {
	return v.kind == KindNull
}

func (v Value) IsString() bool {
	return v.kind == KindString
}

func (v Value) IsDocument() bool {
	return v.kind == KindDocument
}

func (v Value) BoolVal() bool {
	return v.b
}

func (v Value) IntVal() int64 {
	return v.i
}

func (v Value) DoubleVal() float64 {
	return v.d
}

func (v Value) StringVal() string {
	return v.s
}

// Document returns the raw JSON bytes of a document value. Callers must not
// mutate the returned slice.
func (v Value) Document() []byte {
	return v.doc
}

// Clone returns a value owning its own copy of any backing storage.
func (v Value) Clone() Value {
	if v.kind == KindDocument {
		docCopy := make([]byte, len(v.doc))
		copy(docCopy, v.doc)
		return Value{kind: KindDocument, doc: docCopy}
	}
	return v
}

// Destroy releases the value in place, leaving an empty cell.
func (v *Value) Destroy() {
	*v = Value{}
}

// Fingerprint returns a content key usable for de-duplicating clones of the
// same source value within one operation.
func (v Value) Fingerprint() string {
	switch v.kind {
	case KindEmpty:
		return ""
	case KindNull:
		return "n"
	case KindBool:
		if v.b {
			return "bt"
		}
		return "bf"
	case KindInt:
		return "i" + strconv.FormatInt(v.i, 10)
	case KindDouble:
		return "d" + strconv.FormatFloat(v.d, 'g', -1, 64)
	case KindString:
		return "s" + v.s
	case KindDocument:
		return "o" + common.ByteSliceToStringZeroCopy(v.doc)
	default:
		panic(fmt.Sprintf("unknown value kind %d", v.kind))
	}
}

// typeWeight orders the kinds for cross-type comparison: empty and null sort
// before booleans, numbers, strings and documents, in that order.
func typeWeight(k Kind) int {
	switch k {
	case KindEmpty:
		return 0
	case KindNull:
		return 1
	case KindBool:
		return 2
	case KindInt, KindDouble:
		return 3
	case KindString:
		return 4
	case KindDocument:
		return 5
	default:
		panic(fmt.Sprintf("unknown value kind %d", k))
	}
}

// Compare is a three-way comparison over values, total across kinds.
func Compare(a Value, b Value) int {
	wa, wb := typeWeight(a.kind), typeWeight(b.kind)
	if wa != wb {
		if wa < wb {
			return -1
		}
		return 1
	}
	switch a.kind {
	case KindEmpty, KindNull:
		return 0
	case KindBool:
		if a.b == b.b {
			return 0
		}
		if !a.b {
			return -1
		}
		return 1
	case KindInt, KindDouble:
		da, db := a.numeric(), b.numeric()
		if da < db {
			return -1
		}
		if da > db {
			return 1
		}
		return 0
	case KindString:
		if a.s < b.s {
			return -1
		}
		if a.s > b.s {
			return 1
		}
		return 0
	case KindDocument:
		sa := common.ByteSliceToStringZeroCopy(a.doc)
		sb := common.ByteSliceToStringZeroCopy(b.doc)
		if sa < sb {
			return -1
		}
		if sa > sb {
			return 1
		}
		return 0
	default:
		panic(fmt.Sprintf("unknown value kind %d", a.kind))
	}
}

func (v Value) numeric() float64 {
	if v.kind == KindInt {
		return float64(v.i)
	}
	return v.d
}

type wireValue struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value,omitempty"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindEmpty:
		return []byte("null"), nil
	case KindNull:
		return json.Marshal(wireValue{Type: "null"})
	case KindBool:
		raw, err := json.Marshal(v.b)
		if err != nil {
			return nil, err
		}
		return json.Marshal(wireValue{Type: "bool", Value: raw})
	case KindInt:
		raw, err := json.Marshal(v.i)
		if err != nil {
			return nil, err
		}
		return json.Marshal(wireValue{Type: "int", Value: raw})
	case KindDouble:
		raw, err := json.Marshal(v.d)
		if err != nil {
			return nil, err
		}
		return json.Marshal(wireValue{Type: "double", Value: raw})
	case KindString:
		raw, err := json.Marshal(v.s)
		if err != nil {
			return nil, err
		}
		return json.Marshal(wireValue{Type: "string", Value: raw})
	case KindDocument:
		return json.Marshal(wireValue{Type: "doc", Value: json.RawMessage(v.doc)})
	default:
		panic(fmt.Sprintf("unknown value kind %d", v.kind))
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Value{}
		return nil
	}
	var wv wireValue
	if err := json.Unmarshal(data, &wv); err != nil {
		return err
	}
	switch wv.Type {
	case "null":
		*v = NullValue()
	case "bool":
		var b bool
		if err := json.Unmarshal(wv.Value, &b); err != nil {
			return err
		}
		*v = BoolValue(b)
	case "int":
		var i int64
		if err := json.Unmarshal(wv.Value, &i); err != nil {
			return err
		}
		*v = IntValue(i)
	case "double":
		var d float64
		if err := json.Unmarshal(wv.Value, &d); err != nil {
			return err
		}
		*v = DoubleValue(d)
	case "string":
		var s string
		if err := json.Unmarshal(wv.Value, &s); err != nil {
			return err
		}
		*v = StringValue(s)
	case "doc":
		doc := make([]byte, len(wv.Value))
		copy(doc, wv.Value)
		*v = DocumentValue(doc)
	default:
		return fmt.Errorf("unknown wire value type %q", wv.Type)
	}
	return nil
}
