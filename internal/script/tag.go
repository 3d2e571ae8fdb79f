/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

// Tag builds one record of the scenario document. The record and its
// attribute, parameter and command containers are created on first write.
//
//	%[
//		name : "tag name",
//		command : [ "word", ... ],
//		attribute : %[ attr : "value", attr : %[ ref : "name" ], attr : %[ file : "f", prop : "p" ] ],
//		parameter : %[ name : "value" ],
//	]
type Tag struct {
	dict      *Dict
	attribute *Dict
	parameter *Dict
	command   *Array
}

// NewTag returns a builder for a record named name. An empty name leaves
// the record unallocated.
func NewTag(name string) *Tag {
	t := &Tag{}
	if name != "" {
		t.SetTagName(name)
	}
	return t
}

// WrapTag continues building an existing record, such as a placeholder that
// was already placed into a line.
func WrapTag(d *Dict) *Tag {
	t := &Tag{dict: d}
	if v, ok := d.Get(KeyAttribute); ok {
		t.attribute = v.Dict()
	}
	if v, ok := d.Get(KeyParameter); ok {
		t.parameter = v.Dict()
	}
	if v, ok := d.Get(KeyCommand); ok {
		t.command = v.Array()
	}
	return t
}

// Release drops the record. It is safe to call more than once.
func (t *Tag) Release() {
	t.dict, t.attribute, t.parameter, t.command = nil, nil, nil, nil
}

// Empty reports whether nothing has been written yet.
func (t *Tag) Empty() bool { return t.dict == nil }

func (t *Tag) createDict() *Dict {
	if t.dict == nil {
		t.dict = NewDict()
	}
	return t.dict
}

func (t *Tag) SetValue(key string, v Value) { t.createDict().Set(key, v) }

func (t *Tag) SetText(key, text string) { t.SetValue(key, StringValue(text)) }

func (t *Tag) SetTagName(name string) { t.SetText(KeyName, name) }

func (t *Tag) SetTypeName(name string) { t.SetText(KeyType, name) }

// Name returns the tag name, or "" when none was set.
func (t *Tag) Name() string { return t.dict.Str(KeyName) }

// SetAttribute stores an attribute and reports whether it already existed.
// The new value wins either way.
func (t *Tag) SetAttribute(name string, v Value) bool {
	if t.attribute == nil {
		t.attribute = NewDict()
		t.createDict().Set(KeyAttribute, DictValue(t.attribute))
	}
	return t.attribute.Set(name, v)
}

// SetParameter is SetAttribute for the parameter namespace.
func (t *Tag) SetParameter(name string, v Value) bool {
	if t.parameter == nil {
		t.parameter = NewDict()
		t.createDict().Set(KeyParameter, DictValue(t.parameter))
	}
	return t.parameter.Set(name, v)
}

func (t *Tag) set(name string, v Value, isParam bool) bool {
	if isParam {
		return t.SetParameter(name, v)
	}
	return t.SetAttribute(name, v)
}

// SetFileProperty stores %[file, prop] under name.
func (t *Tag) SetFileProperty(name, file, prop string, isParam bool) bool {
	d := NewDict()
	d.Set(KeyFile, StringValue(file))
	d.Set(KeyProp, StringValue(prop))
	return t.set(name, DictValue(d), isParam)
}

// SetReference stores %[ref] under name.
func (t *Tag) SetReference(name, ref string, isParam bool) bool {
	d := NewDict()
	d.Set(KeyRef, StringValue(ref))
	return t.set(name, DictValue(d), isParam)
}

func (t *Tag) AddCommand(word string) {
	if t.command == nil {
		t.command = NewArray()
		t.createDict().Set(KeyCommand, ArrayValue(t.command))
	}
	t.command.Append(StringValue(word))
}

// Dict returns the record, or nil while the tag is empty.
func (t *Tag) Dict() *Dict { return t.dict }

// Value returns the record as a document value; void while empty.
func (t *Tag) Value() Value {
	if t.dict == nil {
		return Value{}
	}
	return DictValue(t.dict)
}
