/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"errors"
	"strings"
)

// Document holds one entry per physical line of a scenario:
//
//	0        blank line
//	void     comment, directive, or a line consumed by a multi-line tag
//	%[...]   a single record
//	[...]    text runs and records in line order
type Document struct {
	lines   []Value
	current int
	arr     *Array
}

func NewDocument() *Document { return &Document{} }

// SetCurrentLine selects the line that following writes go to. Lines that
// were skipped are filled with void.
func (d *Document) SetCurrentLine(n int) {
	if n != d.current {
		d.arr = nil
	}
	d.current = n
	for len(d.lines) <= n {
		d.lines = append(d.lines, Value{})
	}
}

func (d *Document) set(v Value) {
	d.SetCurrentLine(d.current)
	d.lines[d.current] = v
	d.arr = nil
}

// SetValue stores an integer entry; the parser only writes 0.
func (d *Document) SetValue(n int) { d.set(IntValue(int64(n))) }

func (d *Document) SetVoid() { d.set(Value{}) }

// SetTag stores rec as the whole entry. Empty records are ignored.
func (d *Document) SetTag(rec *Tag) {
	if v := rec.Value(); !v.IsVoid() {
		d.set(v)
	}
}

// AddValueToCurrentLine appends v to the line, turning the entry into a
// sequence on first use.
func (d *Document) AddValueToCurrentLine(v Value) {
	if d.arr == nil {
		d.SetCurrentLine(d.current)
		d.arr = NewArray()
		d.lines[d.current] = ArrayValue(d.arr)
	}
	d.arr.Append(v)
}

// AddTagToCurrentLine appends a record. Empty records are ignored.
func (d *Document) AddTagToCurrentLine(rec *Tag) {
	if v := rec.Value(); !v.IsVoid() {
		d.AddValueToCurrentLine(v)
	}
}

func (d *Document) Len() int { return len(d.lines) }

// Line returns the entry for the 0-based line i.
func (d *Document) Line(i int) Value {
	if i < 0 || i >= len(d.lines) {
		return Value{}
	}
	return d.lines[i]
}

func (d *Document) Lines() []Value { return d.lines }

// Value returns the document as %[lines: [...]].
func (d *Document) Value() Value {
	root := NewDict()
	root.Set(KeyLines, ArrayValue(NewArray(d.lines...)))
	return DictValue(root)
}

func (d *Document) Equal(o *Document) bool {
	return d.Value().Equal(o.Value())
}

func (d *Document) MarshalJSON() ([]byte, error) {
	return d.Value().MarshalJSON()
}

func (d *Document) UnmarshalJSON(data []byte) error {
	var v Value
	if err := v.UnmarshalJSON(data); err != nil {
		return err
	}
	lines, ok := v.Dict().Get(KeyLines)
	if !ok || lines.Kind() != KindArray {
		return errors.New("script: document has no lines array")
	}
	d.lines = append([]Value(nil), lines.Array().Items()...)
	d.current = 0
	d.arr = nil
	return nil
}

// LineText concatenates the text runs of a line entry in order. Records
// contribute nothing.
func LineText(v Value) string {
	if v.Kind() == KindString {
		return v.Str()
	}
	var b strings.Builder
	for _, item := range v.Array().Items() {
		if item.Kind() == KindString {
			b.WriteString(item.Str())
		}
	}
	return b.String()
}

// Records returns the records of a line entry in order.
func Records(v Value) []*Dict {
	switch v.Kind() {
	case KindDict:
		return []*Dict{v.Dict()}
	case KindArray:
		var out []*Dict
		for _, item := range v.Array().Items() {
			if item.Kind() == KindDict {
				out = append(out, item.Dict())
			}
		}
		return out
	}
	return nil
}

// SplitLines splits text at CR, LF and CRLF. A final line without a
// terminator is kept; a trailing terminator does not start a new line.
func SplitLines(text string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '\r':
			lines = append(lines, text[start:i])
			if i+1 < len(text) && text[i+1] == '\n' {
				i++
			}
			start = i + 1
		case '\n':
			lines = append(lines, text[start:i])
			start = i + 1
		}
	}
	if start < len(text) {
		lines = append(lines, text[start:])
	}
	return lines
}
