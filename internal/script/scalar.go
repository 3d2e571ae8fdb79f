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
	"math"
	"strconv"
	"strings"
	"unicode"
)

const msgUnterminated = "Un-terminated string / regexp / octet literal"

// cursor walks a rune buffer. cur returns 0 past the end, matching the
// terminator the literal grammars are written against.
type cursor struct {
	src []rune
	pos int
}

func (c *cursor) cur() rune {
	if c.pos < len(c.src) {
		return c.src[c.pos]
	}
	return 0
}

func (c *cursor) peek(n int) rune {
	if p := c.pos + n; p < len(c.src) {
		return c.src[p]
	}
	return 0
}

// next advances one rune and reports whether input remains.
func (c *cursor) next() bool {
	if c.pos < len(c.src) {
		c.pos++
	}
	return c.pos < len(c.src)
}

func (c *cursor) atEnd() bool { return c.pos >= len(c.src) }

// skipSpace skips white space and reports whether input remains.
func (c *cursor) skipSpace() bool {
	for c.pos < len(c.src) && unicode.IsSpace(c.src[c.pos]) {
		c.pos++
	}
	return c.pos < len(c.src)
}

// match consumes word when it appears at the cursor. With isWord the match
// fails if a letter or underscore follows.
func (c *cursor) match(word string, isWord bool) bool {
	save := c.pos
	for _, r := range word {
		if c.cur() != r {
			c.pos = save
			return false
		}
		c.pos++
	}
	if isWord {
		if r := c.cur(); unicode.IsLetter(r) || r == '_' {
			c.pos = save
			return false
		}
	}
	return true
}

func hexDigit(r rune) int {
	switch {
	case r >= '0' && r <= '9':
		return int(r - '0')
	case r >= 'a' && r <= 'f':
		return int(r-'a') + 10
	case r >= 'A' && r <= 'F':
		return int(r-'A') + 10
	}
	return -1
}

func octDigit(r rune) int {
	if r >= '0' && r <= '7' {
		return int(r - '0')
	}
	return -1
}

func decDigit(r rune) int {
	if r >= '0' && r <= '9' {
		return int(r - '0')
	}
	return -1
}

func binDigit(r rune) int {
	if r == '0' || r == '1' {
		return int(r - '0')
	}
	return -1
}

// ParseNumber parses a numeric literal at the start of s.
func ParseNumber(s string) (Value, bool) {
	c := &cursor{src: []rune(s)}
	return parseNumber(c)
}

// parseNumber reads an optionally signed numeric literal. It fails when no
// digits can be consumed.
func parseNumber(c *cursor) (Value, bool) {
	neg := false
	switch c.cur() {
	case '+', '-':
		neg = c.cur() == '-'
		if !c.next() || !c.skipSpace() {
			return Value{}, false
		}
	}
	v, ok := parseUnsigned(c)
	if !ok {
		return Value{}, false
	}
	if neg {
		v = v.Negate()
	}
	return v, true
}

func parseUnsigned(c *cursor) (Value, bool) {
	switch {
	case c.match("true", true):
		return BoolValue(true), true
	case c.match("false", true):
		return BoolValue(false), true
	case c.match("NaN", true):
		return RealValue(math.NaN()), true
	case c.match("Infinity", true):
		return RealValue(math.Inf(1)), true
	}

	if c.cur() == '0' {
		save := c.pos
		if !c.next() {
			return IntValue(0), true
		}
		switch c.cur() {
		case 'x', 'X':
			if !c.next() {
				return Value{}, false
			}
			return parseNonDecimal(c, hexDigit, 4)
		case 'b', 'B':
			if !c.next() {
				return Value{}, false
			}
			return parseNonDecimal(c, binDigit, 1)
		case '.', 'e', 'E':
			c.pos = save
			return parseDecimal(c)
		case 'p', 'P':
			return Value{}, false
		}
		c.pos = save
		return parseNonDecimal(c, octDigit, 3)
	}
	return parseDecimal(c)
}

// extractNumber collects digits, one radix point and an exponent with an
// optional sign. Spaces after the exponent mark are skipped.
func extractNumber(c *cursor, digit func(rune) int, expMark string) (string, bool) {
	var b strings.Builder
	point, exp := false, false
	for !c.atEnd() {
		r := c.cur()
		switch {
		case !exp && digit(r) != -1:
			b.WriteRune(r)
			c.next()
		case !point && !exp && r == '.':
			point = true
			b.WriteRune(r)
			c.next()
		case !exp && strings.ContainsRune(expMark, r):
			exp = true
			b.WriteRune(r)
			if !c.next() || !c.skipSpace() {
				return b.String(), true
			}
			if r := c.cur(); r == '+' || r == '-' {
				b.WriteRune(r)
				if !c.next() || !c.skipSpace() {
					return b.String(), true
				}
			}
		case exp && decDigit(r) != -1:
			b.WriteRune(r)
			c.next()
		default:
			return b.String(), point || exp
		}
	}
	return b.String(), point || exp
}

func parseNonDecimal(c *cursor, digit func(rune) int, baseBits uint) (Value, bool) {
	s, isReal := extractNumber(c, digit, "Pp")
	if s == "" {
		return Value{}, false
	}
	if isReal {
		return RealValue(composeReal([]rune(s), digit, baseBits)), true
	}
	var v int64
	for _, r := range s {
		v <<= baseBits
		v += int64(digit(r))
	}
	return IntValue(v), true
}

const (
	significandBits = 52
	expMin          = -1022
	expMax          = 1023
)

// composeReal builds an IEEE-754 double from a non-decimal mantissa with an
// optional radix point and binary exponent. The first set bit is placed at
// the top of a 64-bit accumulator; exponents below the normal range give
// +0 and above it +Inf.
func composeReal(s []rune, digit func(rune) int, baseBits uint) float64 {
	var main uint64
	exp := 0
	numSignif := uint(0)
	pointPassed := false

	for i := 0; i < len(s); i++ {
		r := s[i]
		if r == '.' {
			pointPassed = true
			continue
		}
		if r == 'p' || r == 'P' {
			i++
			neg := false
			if i < len(s) && s[i] == '+' {
				i++
			}
			if i < len(s) && s[i] == '-' {
				neg = true
				i++
			}
			bias := 0
			for ; i < len(s); i++ {
				if d := decDigit(s[i]); d >= 0 {
					bias = bias*10 + d
				}
			}
			if neg {
				bias = -bias
			}
			exp += bias
			break
		}
		n := digit(r)
		if n < 0 {
			continue
		}
		if numSignif == 0 {
			b := int(baseBits) - 1
			for b >= 0 && n&(1<<b) == 0 {
				b--
			}
			b++
			if b > 0 {
				numSignif = uint(b)
				main |= uint64(n) << (64 - numSignif)
				if pointPassed {
					exp -= int(baseBits) - b + 1
				} else {
					exp = b - 1
				}
			} else if pointPassed {
				exp -= int(baseBits)
			}
			continue
		}
		if numSignif+baseBits < 64 {
			numSignif += baseBits
			main |= uint64(n) << (64 - numSignif)
		}
		if !pointPassed {
			exp += int(baseBits)
		}
	}

	main >>= 64 - 1 - significandBits
	if main == 0 {
		return 0
	}
	main &= (1 << significandBits) - 1
	if exp < expMin {
		return 0
	}
	if exp > expMax {
		return math.Inf(1)
	}
	return math.Float64frombits(uint64(exp+expMax)<<significandBits | main)
}

func parseDecimal(c *cursor) (Value, bool) {
	s, isReal := extractNumber(c, decDigit, "Ee")
	if s == "" {
		return Value{}, false
	}
	if isReal {
		return RealValue(parseDecimalReal(s)), true
	}
	var n int64
	for _, r := range s {
		n = n*10 + int64(r-'0')
	}
	return IntValue(n), true
}

// parseDecimalReal converts the longest valid prefix of s, like strtod.
func parseDecimalReal(s string) float64 {
	for s != "" {
		f, err := strconv.ParseFloat(s, 64)
		if err == nil || errors.Is(err, strconv.ErrRange) {
			return f
		}
		s = s[:len(s)-1]
	}
	return 0
}

// ParseString parses a quoted string literal at the start of s.
func ParseString(s string) (v Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			fe, ok := r.(*FatalError)
			if !ok {
				panic(r)
			}
			err = fe
		}
	}()
	c := &cursor{src: []rune(s)}
	return parseString(c), nil
}

func unescape(r rune) rune {
	switch r {
	case 'a':
		return 0x07
	case 'b':
		return 0x08
	case 'f':
		return 0x0c
	case 'n':
		return 0x0a
	case 'r':
		return 0x0d
	case 't':
		return 0x09
	case 'v':
		return 0x0b
	}
	return r
}

// maxHexEscape bounds the digits of a \x escape to one UTF-16 unit.
const maxHexEscape = 4

// parseString reads a literal delimited by the quote under the cursor.
// Adjacent literals with the same delimiter, separated only by white space,
// are joined. Reaching the end of the line first is fatal.
func parseString(c *cursor) Value {
	delim := c.cur()
	c.next()
	var b strings.Builder
	for !c.atEnd() {
		r := c.cur()
		switch {
		case r == '\\':
			if !c.next() {
				fatalf(msgUnterminated)
			}
			switch e := c.cur(); {
			case e == 'x' || e == 'X':
				if !c.next() {
					fatalf(msgUnterminated)
				}
				code, count := 0, 0
				for n := hexDigit(c.cur()); n != -1 && count < maxHexEscape; n = hexDigit(c.cur()) {
					code = code*16 + n
					count++
					if !c.next() {
						break
					}
				}
				if c.atEnd() {
					fatalf(msgUnterminated)
				}
				b.WriteRune(rune(code))
			case e == '0':
				if !c.next() {
					fatalf(msgUnterminated)
				}
				code := 0
				for n := octDigit(c.cur()); n != -1; n = octDigit(c.cur()) {
					code = code*8 + n
					if !c.next() {
						break
					}
				}
				if c.atEnd() {
					fatalf(msgUnterminated)
				}
				b.WriteRune(rune(code))
			default:
				b.WriteRune(unescape(e))
				c.next()
			}
		case r == delim:
			if !c.next() {
				return StringValue(b.String())
			}
			save := c.pos
			if c.skipSpace() && c.cur() == delim {
				c.next()
				continue
			}
			c.pos = save
			return StringValue(b.String())
		default:
			b.WriteRune(r)
			c.next()
		}
	}
	fatalf(msgUnterminated)
	return Value{}
}

// skipComment skips a block comment, which may nest, or a line comment at
// the cursor. It reports whether anything was skipped.
func skipComment(c *cursor) bool {
	if c.cur() != '/' {
		return false
	}
	switch c.peek(1) {
	case '/':
		c.pos = len(c.src)
		return true
	case '*':
		c.pos += 2
		level := 0
		for {
			if c.atEnd() {
				fatalf("Un-terminated comment")
			}
			if c.cur() == '/' && c.peek(1) == '*' {
				level++
			}
			if c.cur() == '*' && c.peek(1) == '/' {
				if level == 0 {
					c.pos += 2
					break
				}
				level--
			}
			c.next()
		}
		c.skipSpace()
		return true
	}
	return false
}

// parseOctet reads "<% hh hh, h ... %>". Hex digits pair into bytes; a comma
// flushes a pending single digit; comments and other characters are ignored.
func parseOctet(c *cursor) Value {
	c.pos += 2
	var buf []byte
	leading := true
	var cur byte
	for !c.atEnd() {
		if skipComment(c) {
			if c.atEnd() {
				break
			}
			continue
		}
		if c.cur() == '%' && c.peek(1) == '>' {
			c.pos += 2
			if !leading {
				buf = append(buf, cur)
			}
			if buf == nil {
				buf = []byte{}
			}
			return OctetValue(buf)
		}
		ch := c.cur()
		if n := hexDigit(ch); n != -1 {
			if leading {
				cur = byte(n)
				leading = false
			} else {
				cur = cur<<4 + byte(n)
				buf = append(buf, cur)
				leading = true
			}
		}
		if !leading && ch == ',' {
			buf = append(buf, cur)
			leading = true
		}
		c.next()
	}
	fatalf(msgUnterminated)
	return Value{}
}

// parseRegExp reads a regular expression whose opening slash has already
// been consumed and returns it as "//flags/pattern". Escapes are kept as
// written.
func parseRegExp(c *cursor) Value {
	var b strings.Builder
	lastBackslash := false
	for !c.atEnd() {
		r := c.cur()
		switch {
		case r == '\\':
			b.WriteRune(r)
			lastBackslash = !lastBackslash
		case r == '/' && !lastBackslash:
			c.next()
			var flags strings.Builder
			for f := c.cur(); f >= 'a' && f <= 'z'; f = c.cur() {
				flags.WriteRune(f)
				c.next()
			}
			return StringValue("//" + flags.String() + "/" + b.String())
		default:
			lastBackslash = false
			b.WriteRune(r)
		}
		c.next()
	}
	fatalf(msgUnterminated)
	return Value{}
}
