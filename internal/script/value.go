/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind is the dynamic type held by a Value.
type Kind uint8

const (
	KindVoid Kind = iota
	KindNull
	KindBool
	KindInt
	KindReal
	KindString
	KindOctet
	KindDict
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindVoid:
		return "void"
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindReal:
		return "real"
	case KindString:
		return "string"
	case KindOctet:
		return "octet"
	case KindDict:
		return "dict"
	case KindArray:
		return "array"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is a node of the scenario document tree. The zero Value is void.
// Dict and Array values are shared by pointer so a record placed into a
// line can still be completed afterwards.
type Value struct {
	kind Kind
	num  int64
	real float64
	str  string
	oct  []byte
	dict *Dict
	arr  *Array
}

func VoidValue() Value { return Value{} }
func NullValue() Value { return Value{kind: KindNull} }

func BoolValue(b bool) Value {
	v := Value{kind: KindBool}
	if b {
		v.num = 1
	}
	return v
}

func IntValue(i int64) Value     { return Value{kind: KindInt, num: i} }
func RealValue(f float64) Value  { return Value{kind: KindReal, real: f} }
func StringValue(s string) Value { return Value{kind: KindString, str: s} }
func OctetValue(b []byte) Value  { return Value{kind: KindOctet, oct: b} }
func DictValue(d *Dict) Value    { return Value{kind: KindDict, dict: d} }
func ArrayValue(a *Array) Value  { return Value{kind: KindArray, arr: a} }

func (v Value) Kind() Kind    { return v.kind }
func (v Value) IsVoid() bool  { return v.kind == KindVoid }
func (v Value) IsNull() bool  { return v.kind == KindNull }
func (v Value) Dict() *Dict   { return v.dict }
func (v Value) Array() *Array { return v.arr }
func (v Value) Octet() []byte { return v.oct }

// Bool reports the boolean held by v and whether v is a boolean.
func (v Value) Bool() (bool, bool) { return v.num != 0, v.kind == KindBool }

// Int reports the integer held by v. Booleans convert to 0 or 1.
func (v Value) Int() (int64, bool) {
	switch v.kind {
	case KindInt, KindBool:
		return v.num, true
	}
	return 0, false
}

// Real reports the number held by v as a float.
func (v Value) Real() (float64, bool) {
	switch v.kind {
	case KindReal:
		return v.real, true
	case KindInt, KindBool:
		return float64(v.num), true
	}
	return 0, false
}

// Str returns the string held by v, or "" for any other kind.
func (v Value) Str() string {
	if v.kind == KindString {
		return v.str
	}
	return ""
}

// Negate changes the sign of a numeric value. Non-numeric values are
// returned unchanged.
func (v Value) Negate() Value {
	switch v.kind {
	case KindInt, KindBool:
		return IntValue(-v.num)
	case KindReal:
		return RealValue(-v.real)
	}
	return v
}

// Equal reports structural equality. NaN equals NaN so documents parsed
// twice from the same text compare equal.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindVoid, KindNull:
		return true
	case KindBool, KindInt:
		return v.num == o.num
	case KindReal:
		if math.IsNaN(v.real) && math.IsNaN(o.real) {
			return true
		}
		return v.real == o.real
	case KindString:
		return v.str == o.str
	case KindOctet:
		return bytes.Equal(v.oct, o.oct)
	case KindDict:
		return v.dict.Equal(o.dict)
	case KindArray:
		return v.arr.Equal(o.arr)
	}
	return false
}

// String renders v in a compact dictionary/array notation for logs and the REPL.
func (v Value) String() string {
	var b strings.Builder
	v.format(&b)
	return b.String()
}

func (v Value) format(b *strings.Builder) {
	switch v.kind {
	case KindVoid:
		b.WriteString("void")
	case KindNull:
		b.WriteString("null")
	case KindBool:
		b.WriteString(strconv.FormatBool(v.num != 0))
	case KindInt:
		b.WriteString(strconv.FormatInt(v.num, 10))
	case KindReal:
		b.WriteString(formatReal(v.real))
	case KindString:
		b.WriteString(strconv.Quote(v.str))
	case KindOctet:
		b.WriteString("<%")
		for _, c := range v.oct {
			fmt.Fprintf(b, " %02x", c)
		}
		b.WriteString(" %>")
	case KindDict:
		b.WriteString("%[")
		for i, k := range v.dict.Keys() {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(k)
			b.WriteString(":")
			val, _ := v.dict.Get(k)
			val.format(b)
		}
		b.WriteString("]")
	case KindArray:
		b.WriteString("[")
		for i, item := range v.arr.Items() {
			if i > 0 {
				b.WriteString(", ")
			}
			item.format(b)
		}
		b.WriteString("]")
	}
}

func formatReal(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Dict is an insertion-ordered string-keyed map.
type Dict struct {
	keys []string
	vals map[string]Value
}

func NewDict() *Dict {
	return &Dict{vals: map[string]Value{}}
}

// Set stores v under k and reports whether k was already present. An
// existing key keeps its position.
func (d *Dict) Set(k string, v Value) bool {
	if _, ok := d.vals[k]; ok {
		d.vals[k] = v
		return true
	}
	d.keys = append(d.keys, k)
	d.vals[k] = v
	return false
}

func (d *Dict) Get(k string) (Value, bool) {
	if d == nil {
		return Value{}, false
	}
	v, ok := d.vals[k]
	return v, ok
}

func (d *Dict) Has(k string) bool {
	_, ok := d.Get(k)
	return ok
}

// Str returns the string stored under k, or "".
func (d *Dict) Str(k string) string {
	v, _ := d.Get(k)
	return v.Str()
}

func (d *Dict) Len() int {
	if d == nil {
		return 0
	}
	return len(d.keys)
}

func (d *Dict) Keys() []string {
	if d == nil {
		return nil
	}
	return d.keys
}

// Equal compares keys and values; key order is not significant.
func (d *Dict) Equal(o *Dict) bool {
	if d.Len() != o.Len() {
		return false
	}
	for _, k := range d.Keys() {
		ov, ok := o.Get(k)
		if !ok {
			return false
		}
		if !d.vals[k].Equal(ov) {
			return false
		}
	}
	return true
}

// Array is an ordered list of values.
type Array struct {
	items []Value
}

func NewArray(items ...Value) *Array {
	return &Array{items: items}
}

func (a *Array) Append(v Value) { a.items = append(a.items, v) }

func (a *Array) Len() int {
	if a == nil {
		return 0
	}
	return len(a.items)
}

func (a *Array) At(i int) Value {
	if a == nil || i < 0 || i >= len(a.items) {
		return Value{}
	}
	return a.items[i]
}

func (a *Array) Items() []Value {
	if a == nil {
		return nil
	}
	return a.items
}

func (a *Array) Equal(o *Array) bool {
	if a.Len() != o.Len() {
		return false
	}
	for i, v := range a.Items() {
		if !v.Equal(o.items[i]) {
			return false
		}
	}
	return true
}
