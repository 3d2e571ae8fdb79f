/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import "fmt"

// Lexeme is one scanned token with its value. Line is 1-based.
type Lexeme struct {
	Line  int
	Token Token
	Value Value
}

func (l Lexeme) String() string {
	if l.Value.IsVoid() {
		return fmt.Sprintf("%d: %s", l.Line, l.Token)
	}
	return fmt.Sprintf("%d: %s %s", l.Line, l.Token, l.Value)
}

// Tokenize scans text the way the parser would, switching to the in-tag
// grammar inside brackets and after cue, label and transition sigils. Lines
// after a choice sigil or a jump are reported as a single Text lexeme.
func Tokenize(text string) (out []Lexeme, err error) {
	lx := NewLexer(nil)
	line := 0
	defer func() {
		if r := recover(); r != nil {
			fe, ok := r.(*FatalError)
			if !ok {
				panic(r)
			}
			fe.Line = line
			err = fe
		}
	}()

	for i, src := range SplitLines(text) {
		line = i + 1
		lx.Reset(src)
		tok, h := lx.FirstToken()
		inTag := false
		for tok != EOL {
			out = append(out, Lexeme{Line: line, Token: tok, Value: lx.Value(h)})
			switch tok {
			case BeginTag, At, Label, EndTrans:
				inTag = true
			case RBracket:
				inTag = false
			case Select, NextScenario, BeginFixName:
				if rest := lx.RemainString(); rest != "" {
					out = append(out, Lexeme{Line: line, Token: Text, Value: StringValue(rest)})
				}
			}
			if inTag {
				tok, h = lx.InTagToken()
			} else {
				tok, h = lx.TextToken()
			}
		}
	}
	return out, nil
}
