/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"fmt"
	"math"
	"unicode"
)

// Reporter receives the non-fatal diagnostics raised while scanning.
type Reporter interface {
	Warning(msg string)
	Error(msg string)
}

type nopReporter struct{}

func (nopReporter) Warning(string) {}
func (nopReporter) Error(string)   {}

// maxPushback bounds the pushback queue. The parser never looks more than
// two tokens ahead, so exceeding it is a bug in the caller.
const maxPushback = 8

type pushed struct {
	tok Token
	h   int
}

// Lexer tokenizes one physical line at a time. Token values are stored in
// a table that lives until Free and are addressed by integer handle; handle
// 0 always holds void.
type Lexer struct {
	rep      Reporter
	c        cursor
	prevPos  int
	values   []Value
	queue    []pushed
	bareWord bool
	text     []rune
}

func NewLexer(rep Reporter) *Lexer {
	if rep == nil {
		rep = nopReporter{}
	}
	lx := &Lexer{rep: rep}
	lx.Free()
	return lx
}

// Reset loads the next line and moves the cursor to its start.
func (lx *Lexer) Reset(line string) {
	lx.c = cursor{src: []rune(line)}
	lx.prevPos = 0
	lx.queue = lx.queue[:0]
	lx.bareWord = false
}

// Free drops every stored value.
func (lx *Lexer) Free() {
	lx.values = append(lx.values[:0], Value{})
	lx.queue = lx.queue[:0]
}

// Value returns the value behind handle h, or void for an unknown handle.
func (lx *Lexer) Value(h int) Value {
	if h < 0 || h >= len(lx.values) {
		return Value{}
	}
	return lx.values[h]
}

// String returns the string value behind h.
func (lx *Lexer) String(h int) string { return lx.Value(h).Str() }

func (lx *Lexer) put(v Value) int {
	lx.values = append(lx.values, v)
	return len(lx.values) - 1
}

// Unlex queues tok so the next scan call returns it before reading on.
func (lx *Lexer) Unlex(tok Token, h int) {
	if len(lx.queue) >= maxPushback {
		panic(fmt.Sprintf("script: pushback queue overflow (%d tokens) at %s", len(lx.queue), tok))
	}
	lx.queue = append(lx.queue, pushed{tok, h})
}

// Rewind moves the cursor back to the start of the most recently scanned token.
func (lx *Lexer) Rewind() { lx.c.pos = lx.prevPos }

// SetNextIsBareWord makes the next word a symbol even if it is reserved.
func (lx *Lexer) SetNextIsBareWord() { lx.bareWord = true }

func (lx *Lexer) popQueue() (Token, int, bool) {
	if len(lx.queue) == 0 {
		return Empty, 0, false
	}
	p := lx.queue[0]
	lx.queue = lx.queue[1:]
	return p.tok, p.h, true
}

// FirstToken scans the line-leading sigil. Leading tabs are skipped; a
// line holding nothing else reports EOL.
func (lx *Lexer) FirstToken() (Token, int) {
	c := &lx.c
	lx.prevPos = c.pos
	for c.cur() == '\t' {
		c.next()
	}
	if c.atEnd() {
		return EOL, 0
	}
	switch c.cur() {
	case '>':
		if c.match(">>>", false) {
			return BeginTrans, 0
		}
		c.next()
		return NextScenario, 0
	case '@':
		c.next()
		return At, 0
	case '#':
		c.next()
		return Label, 0
	case '<':
		if c.match("<<<", false) {
			return EndTrans, 0
		}
		if c.match("<=", false) {
			return BeginFixName, 0
		}
	case '=':
		if c.peek(1) == '>' {
			c.pos += 2
			return EndFixName, 0
		}
	case '/':
		if c.peek(1) == '/' {
			c.pos = len(c.src)
			return LineComments, 0
		}
	case '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		p := c.pos
		var n int64
		overflow := false
		for p < len(c.src) && decDigit(c.src[p]) != -1 {
			d := int64(c.src[p] - '0')
			if n > (math.MaxInt64-d)/10 {
				overflow = true
			} else {
				n = n*10 + d
			}
			p++
		}
		if p < len(c.src) && c.src[p] == '.' {
			c.pos = p + 1
			if overflow {
				lx.rep.Error("choice number is too large")
				return Select, lx.put(VoidValue())
			}
			return Select, lx.put(IntValue(n))
		}
		lx.rep.Warning("a number at the start of the line has no '.'; not treated as a choice")
	}
	return lx.TextToken()
}

func (lx *Lexer) returnText() (Token, int) {
	if len(lx.text) == 0 {
		return EOL, 0
	}
	return Text, lx.put(StringValue(string(lx.text)))
}

// TextToken scans free text up to the next markup sigil. Pending text is
// returned first; the sigil is scanned on the following call.
func (lx *Lexer) TextToken() (Token, int) {
	if tok, h, ok := lx.popQueue(); ok {
		return tok, h
	}
	c := &lx.c
	if c.atEnd() {
		return EOL, 0
	}
	lx.prevPos = c.pos
	lx.text = lx.text[:0]
	for {
		if c.atEnd() {
			return lx.returnText()
		}
		var tok Token
		width := 1
		switch r := c.cur(); r {
		case '\\':
			if !c.next() {
				return lx.returnText()
			}
			lx.text = append(lx.text, c.cur())
			c.next()
			continue
		case '[':
			tok = BeginTag
		case '|':
			tok = VertLine
		case '>':
			tok = WaitReturn
		case '《':
			tok = BeginRuby
		case '》':
			tok = EndRuby
		case '{':
			tok = BeginTextDecoration
		case ':':
			tok = Colon
			if c.peek(1) == '(' {
				tok, width = InnerImage, 2
			}
		default:
			lx.text = append(lx.text, r)
			c.next()
			continue
		}
		if len(lx.text) > 0 {
			return lx.returnText()
		}
		c.pos += width
		return tok, 0
	}
}

// singleCharTokens maps the punctuation that always forms a token on its own
// inside a tag.
var singleCharTokens = map[rune]Token{
	'>': GT, '=': Equal, '!': Exclamation, '&': Ampersand, '|': VertLine,
	'+': Plus, '-': Minus, '*': Asterisk, '/': Slash, '\\': Backslash,
	'%': Percent, '^': Chevron, '[': LBracket, ']': RBracket, '(': LParen,
	')': RParen, '~': Tilde, '?': Question, ',': Comma, ';': Semicolon,
	'{': LBrace, '}': RBrace, '#': Sharp, '$': Dollar, '@': At,
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r > 0x100
}

// InTagToken scans the symbolic grammar used inside tags and attribute lists.
func (lx *Lexer) InTagToken() (Token, int) {
	if tok, h, ok := lx.popQueue(); ok {
		return tok, h
	}
	c := &lx.c
	if !c.skipSpace() {
		return EOL, 0
	}
	lx.prevPos = c.pos
	r := c.cur()
	switch r {
	case '<':
		if c.peek(1) == '%' {
			return Octet, lx.put(parseOctet(c))
		}
		c.next()
		return LT, 0
	case '.':
		if decDigit(c.peek(1)) != -1 {
			return lx.number()
		}
		c.next()
		return Dot, 0
	case ':':
		if c.peek(1) == ':' {
			c.pos += 2
			return DoubleColon, 0
		}
		c.next()
		return Colon, 0
	case '\'':
		return SingleText, lx.put(parseString(c))
	case '"':
		return DoubleText, lx.put(parseString(c))
	}
	if tok, ok := singleCharTokens[r]; ok {
		c.next()
		return tok, 0
	}
	if decDigit(r) != -1 {
		return lx.number()
	}
	if !unicode.IsLetter(r) && r != '_' && r <= 0x100 {
		fatalf("Invalid character '%c'", r)
	}

	start := c.pos
	for !c.atEnd() && isWordRune(c.cur()) {
		c.next()
	}
	word := string(c.src[start:c.pos])

	tok, reserved := Symbol, false
	if !lx.bareWord {
		tok, reserved = reservedWords[word]
	}
	lx.bareWord = false
	if !reserved {
		return Symbol, lx.put(StringValue(word))
	}
	switch tok {
	case True:
		return Number, lx.put(BoolValue(true))
	case False:
		return Number, lx.put(BoolValue(false))
	case Null:
		return ConstVal, lx.put(NullValue())
	case NaN:
		return Number, lx.put(RealValue(math.NaN()))
	case Infinity:
		return Number, lx.put(RealValue(math.Inf(1)))
	}
	return ConstVal, lx.put(VoidValue())
}

func (lx *Lexer) number() (Token, int) {
	v, ok := parseNumber(&lx.c)
	if !ok {
		lx.rep.Error("cannot be parsed as a number")
		return Number, 0
	}
	return Number, lx.put(v)
}

// ReadToChar reads a non-empty run up to end, consuming end, or to the end
// of the line. It returns -1 at the end of the line or when the run would
// be empty.
func (lx *Lexer) ReadToChar(end rune) int {
	return lx.readTo(func(r rune) bool { return r == end }, false)
}

// ReadToCharStrict is ReadToChar but also returns -1 when end never appears.
func (lx *Lexer) ReadToCharStrict(end rune) int {
	return lx.readTo(func(r rune) bool { return r == end }, true)
}

// ReadToVerline reads up to the next '|'.
func (lx *Lexer) ReadToVerline() int { return lx.ReadToChar('|') }

// ReadToSpace skips leading blanks and reads up to the next blank.
func (lx *Lexer) ReadToSpace() int {
	c := &lx.c
	for r := c.cur(); r == ' ' || r == '\t'; r = c.cur() {
		c.next()
	}
	return lx.readTo(func(r rune) bool { return r == ' ' || r == '\t' }, false)
}

func (lx *Lexer) readTo(stop func(rune) bool, strict bool) int {
	c := &lx.c
	if c.atEnd() {
		return -1
	}
	lx.prevPos = c.pos
	start := c.pos
	for p := start; p < len(c.src); p++ {
		if stop(c.src[p]) {
			if p == start {
				return -1
			}
			c.pos = p + 1
			return lx.put(StringValue(string(c.src[start:p])))
		}
	}
	if strict {
		return -1
	}
	c.pos = len(c.src)
	return lx.put(StringValue(string(c.src[start:])))
}

// RemainString returns and consumes the unread rest of the line.
func (lx *Lexer) RemainString() string {
	c := &lx.c
	s := string(c.src[c.pos:])
	c.pos = len(c.src)
	return s
}

// ReadRegExp reads a regular expression literal whose opening slash was
// just scanned.
func (lx *Lexer) ReadRegExp() int {
	return lx.put(parseRegExp(&lx.c))
}

// SkipChar consumes r if it is the next non-blank character.
func (lx *Lexer) SkipChar(r rune) bool {
	c := &lx.c
	save := c.pos
	if c.skipSpace() && c.cur() == r {
		c.next()
		return true
	}
	c.pos = save
	return false
}

// HasAhead reports whether r occurs in the unread rest of the line.
func (lx *Lexer) HasAhead(r rune) bool {
	for _, x := range lx.c.src[lx.c.pos:] {
		if x == r {
			return true
		}
	}
	return false
}
