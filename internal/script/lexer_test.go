/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"testing"
)

type recorder struct {
	warnings []string
	errors   []string
}

func (r *recorder) Warning(msg string) { r.warnings = append(r.warnings, msg) }
func (r *recorder) Error(msg string)   { r.errors = append(r.errors, msg) }

func TestFirstToken(t *testing.T) {
	cases := []struct {
		line string
		want Token
	}{
		{">>>", BeginTrans},
		{">next", NextScenario},
		{"@alice", At},
		{"#start", Label},
		{"<<< fade", EndTrans},
		{"<=alice", BeginFixName},
		{"=>", EndFixName},
		{"// note", LineComments},
		{"\t\t", EOL},
		{"\t[tag]", BeginTag},
		{"hello", Text},
		{"/ not a comment", Text},
	}
	for _, tc := range cases {
		lx := NewLexer(nil)
		lx.Reset(tc.line)
		if got, _ := lx.FirstToken(); got != tc.want {
			t.Fatalf("FirstToken(%q) = %s, want %s", tc.line, got, tc.want)
		}
	}
}

func TestFirstTokenSelect(t *testing.T) {
	rec := &recorder{}
	lx := NewLexer(rec)
	lx.Reset("12.go left|west")
	tok, h := lx.FirstToken()
	if tok != Select {
		t.Fatalf("token = %s, want %s", tok, Select)
	}
	if n, _ := lx.Value(h).Int(); n != 12 {
		t.Fatalf("choice number = %d, want 12", n)
	}

	lx.Reset("12 apples")
	tok, h = lx.FirstToken()
	if tok != Text || lx.String(h) != "12 apples" {
		t.Fatalf("got %s %q, want Text %q", tok, lx.String(h), "12 apples")
	}
	if len(rec.warnings) != 1 {
		t.Fatalf("warnings = %v, want one", rec.warnings)
	}
}

func TestFirstTokenSelectOverflow(t *testing.T) {
	rec := &recorder{}
	lx := NewLexer(rec)
	lx.Reset("99999999999999999999.too many|x")
	tok, h := lx.FirstToken()
	if tok != Select || !lx.Value(h).IsVoid() {
		t.Fatalf("got %s %v, want Select with a void number", tok, lx.Value(h))
	}
	if len(rec.errors) != 1 || rec.errors[0] != "choice number is too large" {
		t.Fatalf("errors = %v", rec.errors)
	}

	rec.errors = nil
	lx.Reset("9223372036854775807.max|x")
	tok, h = lx.FirstToken()
	if n, _ := lx.Value(h).Int(); tok != Select || n != 9223372036854775807 || len(rec.errors) != 0 {
		t.Fatalf("got %s %v errors=%v", tok, lx.Value(h), rec.errors)
	}
}

func TestTextToken(t *testing.T) {
	lx := NewLexer(nil)
	lx.Reset(`a\[b|c《d》e{f}:(g):h:>`)
	want := []struct {
		tok  Token
		text string
	}{
		{Text, "a[b"}, {VertLine, ""}, {Text, "c"}, {BeginRuby, ""}, {Text, "d"},
		{EndRuby, ""}, {Text, "e"}, {BeginTextDecoration, ""}, {Text, "f}"},
		{InnerImage, ""}, {Text, "g)"}, {Colon, ""}, {Text, "h"}, {Colon, ""},
		{WaitReturn, ""}, {EOL, ""},
	}
	for i, w := range want {
		tok, h := lx.TextToken()
		if tok != w.tok || lx.String(h) != w.text {
			t.Fatalf("token %d = %s %q, want %s %q", i, tok, lx.String(h), w.tok, w.text)
		}
	}
}

func TestInTagToken(t *testing.T) {
	lx := NewLexer(nil)
	lx.Reset(`tag x=0x10 y="s" z=true n=null v=void int . :: : $ ] `)
	want := []Token{
		Symbol, Symbol, Equal, Number, Symbol, Equal, DoubleText, Symbol, Equal, Number,
		Symbol, Equal, ConstVal, Symbol, Equal, ConstVal, Symbol, Dot, DoubleColon, Colon,
		Dollar, RBracket, EOL,
	}
	var values []Value
	for i, w := range want {
		tok, h := lx.InTagToken()
		if tok != w {
			t.Fatalf("token %d = %s, want %s", i, tok, w)
		}
		values = append(values, lx.Value(h))
	}
	if n, _ := values[3].Int(); n != 16 {
		t.Fatalf("x = %v, want 16", values[3])
	}
	if values[6].Str() != "s" {
		t.Fatalf("y = %v, want \"s\"", values[6])
	}
	if b, ok := values[9].Bool(); !ok || !b {
		t.Fatalf("z = %v, want true", values[9])
	}
	if !values[12].IsNull() {
		t.Fatalf("n = %v, want null", values[12])
	}
	if !values[15].IsVoid() {
		t.Fatalf("v = %v, want void", values[15])
	}
	if values[16].Str() != "int" {
		t.Fatalf("int should be a plain symbol, got %v", values[16])
	}
}

func TestInTagTokenOctetAndJapanese(t *testing.T) {
	lx := NewLexer(nil)
	lx.Reset(`<%ff 01%> 名前 .5`)
	tok, h := lx.InTagToken()
	if tok != Octet || string(lx.Value(h).Octet()) != "\xff\x01" {
		t.Fatalf("got %s %v, want octet ff 01", tok, lx.Value(h))
	}
	tok, h = lx.InTagToken()
	if tok != Symbol || lx.String(h) != "名前" {
		t.Fatalf("got %s %v, want symbol 名前", tok, lx.Value(h))
	}
	tok, h = lx.InTagToken()
	if f, _ := lx.Value(h).Real(); tok != Number || f != 0.5 {
		t.Fatalf("got %s %v, want 0.5", tok, lx.Value(h))
	}
}

func TestBareWord(t *testing.T) {
	lx := NewLexer(nil)
	lx.Reset("true true")
	lx.SetNextIsBareWord()
	if tok, h := lx.InTagToken(); tok != Symbol || lx.String(h) != "true" {
		t.Fatalf("bare word: got %s %v", tok, lx.Value(h))
	}
	if tok, _ := lx.InTagToken(); tok != Number {
		t.Fatalf("flag should reset after one word, got %s", tok)
	}
}

func TestInvalidCharacterIsFatal(t *testing.T) {
	defer func() {
		r := recover()
		fe, ok := r.(*FatalError)
		if !ok {
			t.Fatalf("expected *FatalError panic, got %v", r)
		}
		if fe.Message != "Invalid character '`'" {
			t.Fatalf("message = %q", fe.Message)
		}
	}()
	lx := NewLexer(nil)
	lx.Reset("`")
	lx.InTagToken()
}

func TestNumberFailureIsReported(t *testing.T) {
	rec := &recorder{}
	lx := NewLexer(rec)
	lx.Reset("0p")
	tok, h := lx.InTagToken()
	if tok != Number || !lx.Value(h).IsVoid() {
		t.Fatalf("got %s %v, want void Number", tok, lx.Value(h))
	}
	if len(rec.errors) != 1 || rec.errors[0] != "cannot be parsed as a number" {
		t.Fatalf("errors = %v, want one", rec.errors)
	}
}

func TestReadHelpers(t *testing.T) {
	lx := NewLexer(nil)
	lx.Reset("abc|def")
	if h := lx.ReadToVerline(); lx.String(h) != "abc" {
		t.Fatalf("first run = %q", lx.String(h))
	}
	if h := lx.ReadToVerline(); lx.String(h) != "def" {
		t.Fatalf("second run = %q", lx.String(h))
	}
	if h := lx.ReadToVerline(); h != -1 {
		t.Fatalf("at end of line got %d, want -1", h)
	}

	lx.Reset("|x")
	if h := lx.ReadToVerline(); h != -1 {
		t.Fatalf("empty run got %d, want -1", h)
	}

	lx.Reset("abc")
	if h := lx.ReadToCharStrict('》'); h != -1 {
		t.Fatalf("strict read without terminator got %d, want -1", h)
	}
	if got := lx.RemainString(); got != "abc" {
		t.Fatalf("RemainString = %q, want %q", got, "abc")
	}

	lx.Reset("  if x == 1")
	if h := lx.ReadToSpace(); lx.String(h) != "if" {
		t.Fatalf("ReadToSpace = %q, want %q", lx.String(h), "if")
	}
	if got := lx.RemainString(); got != "x == 1" {
		t.Fatalf("RemainString = %q", got)
	}
}

func TestUnlexAndRewind(t *testing.T) {
	lx := NewLexer(nil)
	lx.Reset("a b")
	tok, h := lx.InTagToken()
	lx.Unlex(tok, h)
	if tok2, h2 := lx.InTagToken(); tok2 != tok || h2 != h {
		t.Fatalf("pushback returned %s/%d, want %s/%d", tok2, h2, tok, h)
	}
	_, h = lx.InTagToken()
	lx.Rewind()
	if _, h2 := lx.InTagToken(); lx.String(h2) != lx.String(h) {
		t.Fatalf("rewind rescanned %q, want %q", lx.String(h2), lx.String(h))
	}
	if tok, _ := lx.InTagToken(); tok != EOL {
		t.Fatalf("expected EOL, got %s", tok)
	}
}

func TestUnlexOverflowPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on pushback overflow")
		}
	}()
	lx := NewLexer(nil)
	for i := 0; i <= maxPushback; i++ {
		lx.Unlex(Symbol, 0)
	}
}

func TestFreeKeepsVoidHandle(t *testing.T) {
	lx := NewLexer(nil)
	lx.Reset("word")
	_, h := lx.InTagToken()
	if h == 0 {
		t.Fatalf("value handle must not be 0")
	}
	lx.Free()
	if !lx.Value(0).IsVoid() || !lx.Value(h).IsVoid() {
		t.Fatalf("after Free handle 0 must be void and %d unknown", h)
	}
}

func TestTokenize(t *testing.T) {
	lexemes, err := Tokenize("@alice 'v1'\nhi[l]")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	var got []Token
	for _, l := range lexemes {
		got = append(got, l.Token)
	}
	want := []Token{At, Symbol, SingleText, Text, BeginTag, Symbol, RBracket}
	if len(got) != len(want) {
		t.Fatalf("tokens = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tokens = %v, want %v", got, want)
		}
	}
	if lexemes[3].Line != 2 {
		t.Fatalf("line = %d, want 2", lexemes[3].Line)
	}

	if _, err := Tokenize("[a='x"); err == nil {
		t.Fatalf("expected fatal error for unterminated string")
	}
}
