/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import "strconv"

// Token names a lexical category. Tokens carry no payload; values produced
// while scanning live in the lexer's value table and are addressed by handle.
type Token int

const (
	Empty Token = iota - 1
	EOL

	// line-leading sigils
	NextScenario // >
	BeginTrans   // >>>
	EndTrans     // <<<
	At           // @
	LineComments // //
	Select       // [0-9]+.
	Label        // #
	BeginFixName // <=
	EndFixName   // =>

	// free text
	BeginTag            // [
	Text                // plain text run
	VertLine            // |
	WaitReturn          // >
	BeginRuby           // 《
	EndRuby             // 》
	BeginTextDecoration // {
	EndTextDecoration   // }
	InnerImage          // :(

	// in tag
	GT // >
	ConstVal
	LT          // <
	Equal       // =
	Exclamation // !
	Ampersand   // &
	Dot         // .
	Plus        // +
	Minus       // -
	Asterisk    // *
	Slash       // /
	Backslash   // \
	Percent     // %
	Chevron     // ^
	LBracket    // [
	RBracket    // ]
	LParen      // (
	RParen      // )
	Tilde       // ~
	Question    // ?
	Colon       // :
	DoubleColon // ::
	Comma       // ,
	Semicolon   // ;
	LBrace      // {
	RBrace      // }
	Sharp       // #
	Dollar      // $
	SingleText  // '...'
	DoubleText  // "..."
	Number
	Octet // <% ... %>
	True
	False
	Null
	NaN
	Infinity
	Void
	Symbol
)

var tokenNames = [...]string{
	"EOL",
	"NEXT_SCENARIO", "BEGIN_TRANS", "END_TRANS", "AT", "LINE_COMMENTS", "SELECT", "LABEL", "BEGIN_FIX_NAME", "END_FIX_NAME",
	"BEGIN_TAG", "TEXT", "VERTLINE", "WAIT_RETURN", "BEGIN_RUBY", "END_RUBY", "BEGIN_TXT_DECORATION", "END_TXT_DECORATION", "INNER_IMAGE",
	"GT", "CONSTVAL", "LT", "EQUAL", "EXCLAMATION", "AMPERSAND", "DOT", "PLUS", "MINUS", "ASTERISK", "SLASH", "BACKSLASH",
	"PERCENT", "CHEVRON", "LBRACKET", "RBRACKET", "LPAREN", "RPAREN", "TILDE", "QUESTION", "COLON", "DOUBLE_COLON",
	"COMMA", "SEMICOLON", "LBRACE", "RBRACE", "SHARP", "DOLLAR", "SINGLE_TEXT", "DOUBLE_TEXT", "NUMBER", "OCTET",
	"TRUE", "FALSE", "NULL", "NAN", "INFINITY", "VOID", "SYMBOL",
}

func (t Token) String() string {
	if t == Empty {
		return "EMPTY"
	}
	if t >= 0 && int(t) < len(tokenNames) {
		return tokenNames[t]
	}
	return "Token(" + strconv.Itoa(int(t)) + ")"
}
