/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"encoding/json"
	"math"
	"testing"
)

func TestSplitLines(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"a\n", 1},
		{"a\n\n", 2},
		{"a\r\nb", 2},
		{"a\rb\rc", 3},
		{"\n", 1},
	}
	for _, tc := range cases {
		if got := len(SplitLines(tc.in)); got != tc.want {
			t.Fatalf("SplitLines(%q) = %d lines, want %d", tc.in, got, tc.want)
		}
	}
}

func TestDocumentJSON(t *testing.T) {
	doc := mustParse(t, "// c\n\n[se \"a.ogg\" vol=0.5 blob=<%01 02%> x=NaN]hi")
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"lines":[null,0,[{"name":"se","attribute":{"storage":"a.ogg","vol":0.5,"blob":"AQI=","x":"NaN"}},"hi"]]}`
	if string(data) != want {
		t.Fatalf("json = %s\nwant  %s", data, want)
	}

	var back Document
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Len() != 3 {
		t.Fatalf("lines = %d, want 3", back.Len())
	}
	if !back.Line(0).IsNull() {
		t.Fatalf("void line decodes as %v, want null", back.Line(0))
	}
	if got := LineText(back.Line(2)); got != "hi" {
		t.Fatalf("LineText = %q, want %q", got, "hi")
	}
}

func TestValueJSONKeepsOrder(t *testing.T) {
	var v Value
	if err := json.Unmarshal([]byte(`{"z":1,"a":[true,null,2.5],"m":"s"}`), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := v.Dict().Keys(); len(got) != 3 || got[0] != "z" || got[1] != "a" || got[2] != "m" {
		t.Fatalf("keys = %v", got)
	}
	out, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"z":1,"a":[true,null,2.5],"m":"s"}` {
		t.Fatalf("json = %s", out)
	}
	if err := json.Unmarshal([]byte(`1 2`), &v); err == nil {
		t.Fatalf("expected error for trailing data")
	}
}

func TestValueEqual(t *testing.T) {
	a := NewDict()
	a.Set("x", IntValue(1))
	a.Set("y", RealValue(math.NaN()))
	b := NewDict()
	b.Set("y", RealValue(math.NaN()))
	b.Set("x", IntValue(1))
	if !DictValue(a).Equal(DictValue(b)) {
		t.Fatalf("dicts with the same entries in a different order must be equal")
	}
	if IntValue(1).Equal(RealValue(1)) {
		t.Fatalf("int and real must differ")
	}
	if VoidValue().Equal(NullValue()) {
		t.Fatalf("void and null must differ")
	}
}

func TestTagBuilder(t *testing.T) {
	tag := NewTag("")
	if !tag.Empty() || !tag.Value().IsVoid() {
		t.Fatalf("unnamed tag should start empty")
	}
	if tag.SetAttribute("a", IntValue(1)) {
		t.Fatalf("first SetAttribute reported an existing key")
	}
	if !tag.SetAttribute("a", IntValue(2)) {
		t.Fatalf("second SetAttribute did not report the existing key")
	}
	if tag.SetParameter("a", IntValue(3)) {
		t.Fatalf("parameters are a separate namespace")
	}
	tag.SetReference("r", "target", false)
	tag.SetFileProperty("f", "file", "prop", true)
	tag.AddCommand("add")
	tag.AddCommand("all")

	want := `%[attribute:%[a:2, r:%[ref:"target"]], parameter:%[a:3, f:%[file:"file", prop:"prop"]], command:["add", "all"]]`
	if got := tag.Value().String(); got != want {
		t.Fatalf("tag = %s\nwant  %s", got, want)
	}

	placeholder := NewDict()
	WrapTag(placeholder).SetTagName(TagRuby)
	if placeholder.Str(KeyName) != TagRuby {
		t.Fatalf("WrapTag must write into the wrapped record")
	}

	tag.Release()
	tag.Release()
	if !tag.Empty() {
		t.Fatalf("released tag should be empty")
	}
}

func TestDocumentAccumulator(t *testing.T) {
	doc := NewDocument()
	doc.SetCurrentLine(2)
	doc.AddValueToCurrentLine(StringValue("a"))
	doc.AddTagToCurrentLine(NewTag(""))
	doc.AddTagToCurrentLine(NewTag("l"))
	doc.SetCurrentLine(3)
	doc.SetValue(0)

	if doc.Len() != 4 {
		t.Fatalf("lines = %d, want 4", doc.Len())
	}
	if !doc.Line(0).IsVoid() || !doc.Line(1).IsVoid() {
		t.Fatalf("skipped lines must be void")
	}
	if got := doc.Line(2).String(); got != `["a", %[name:"l"]]` {
		t.Fatalf("line 3 = %s", got)
	}
	if n, _ := doc.Line(3).Int(); n != 0 || doc.Line(3).Kind() != KindInt {
		t.Fatalf("line 4 = %v", doc.Line(3))
	}
}
