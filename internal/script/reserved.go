/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

// reservedWords maps the keywords recognized inside tags. Any other word,
// including int, real and string, is a plain symbol.
var reservedWords = map[string]Token{
	"true":     True,
	"false":    False,
	"null":     Null,
	"NaN":      NaN,
	"Infinity": Infinity,
	"void":     Void,
}

// Record keys used in the scenario document.
const (
	KeyLines       = "lines"
	KeyName        = "name"
	KeyType        = "type"
	KeyAttribute   = "attribute"
	KeyParameter   = "parameter"
	KeyCommand     = "command"
	KeyRef         = "ref"
	KeyFile        = "file"
	KeyProp        = "prop"
	KeyText        = "text"
	KeyTarget      = "target"
	KeyImage       = "image"
	KeyNumber      = "number"
	KeyLabel       = "label"
	KeyDescription = "description"
	KeyCond        = "cond"
	KeyTrans       = "trans"
	KeyAlias       = "alias"
	KeyVoice       = "voice"
	KeyStorage     = "storage"
	KeyTime        = "time"
	KeyWait        = "wait"
	KeyFade        = "fade"
)

// Tag names produced by the parser.
const (
	TagBeginTrans   = "begintrans"
	TagEndTrans     = "endtrans"
	TagCharName     = "charname"
	TagLabel        = "label"
	TagSelect       = "select"
	TagSelOpt       = "selopt"
	TagNext         = "next"
	TagRuby         = "ruby"
	TagEndRuby      = "endruby"
	TagWait         = "l"
	TagTextStyle    = "textstyle"
	TagEndTextStyle = "endtextstyle"
	TagInlineImage  = "inlineimage"
	TagEmoji        = "emoji"
)

const wordIf = "if"

// defaultSignWords maps the sign characters that may lead a tag to the
// command words they stand for.
var defaultSignWords = map[Token]string{
	Plus:        "add",
	Minus:       "del",
	Asterisk:    "all",
	Sharp:       "sync",
	Exclamation: "nosync",
	Ampersand:   "nowait",
}

// signTokens lists the characters AddSignWord accepts.
var signTokens = map[rune]Token{
	'=': Equal,
	'!': Exclamation,
	'&': Ampersand,
	'+': Plus,
	'-': Minus,
	'*': Asterisk,
	'/': Slash,
	'%': Percent,
	'^': Chevron,
	'~': Tilde,
	'?': Question,
	',': Comma,
	';': Semicolon,
	'#': Sharp,
	'@': At,
	'|': VertLine,
}
