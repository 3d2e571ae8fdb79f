/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package script parses the line-oriented scenario dialect into a
// structured document.
//
// Each physical line of input produces exactly one entry in the document.
// Lines starting with a sigil are directives:
//
//	>>>                  begin transition
//	<<< [effect] attrs   end transition
//	@name[/alias] attrs  character cue
//	#label[|description] label
//	1.text|target        choice (the next line holds its options)
//	>target [if cond]    jump to another scenario
//	<=name ... =>        fixed tag name for the tags in between
//	// ...               comment
//
// Everything else is body text, which may embed [tags], ruby |base《reading》,
// decorations |base{attrs}, inline images :(file) and emoji :name:.
package script

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Option configures a Parser.
type Option func(*Parser)

// WithLogger routes parse diagnostics to l.
func WithLogger(l *slog.Logger) Option {
	return func(p *Parser) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithStrict makes every warning count as an error.
func WithStrict(strict bool) Option {
	return func(p *Parser) { p.strict = strict }
}

// Parser turns scenario text into a Document. A Parser is reusable but not
// safe for concurrent use.
type Parser struct {
	logger    *slog.Logger
	lex       *Lexer
	signWords map[Token]string
	strict    bool

	doc  *Document
	line int

	// pending tag and where it started
	tag          *Tag
	tagLine      int
	tagAppended  bool
	tagNamed     bool
	multiLineTag bool

	lineAttribute bool
	hasSelectLine bool
	textAttribute bool
	rubyStack     []*Dict
	fixName       string

	diags    []Diagnostic
	errCount int
	first    Diagnostic
	unclosed bool
}

func NewParser(opts ...Option) *Parser {
	p := &Parser{
		logger:    slog.New(slog.DiscardHandler),
		signWords: make(map[Token]string, len(defaultSignWords)),
	}
	for tok, w := range defaultSignWords {
		p.signWords[tok] = w
	}
	for _, opt := range opts {
		opt(p)
	}
	p.lex = NewLexer(p)
	p.doc = NewDocument()
	return p
}

// AddSignWord registers the command word a sign character stands for when
// it leads a tag, as in [+chara] for [chara add].
func (p *Parser) AddSignWord(sign rune, word string) error {
	tok, ok := signTokens[sign]
	if !ok {
		return fmt.Errorf("%w: '%c'", ErrSignNotAllowed, sign)
	}
	if word == "" {
		return fmt.Errorf("script: empty command word for sign '%c'", sign)
	}
	if w, ok := p.signWords[tok]; ok {
		p.logger.Warn("sign word already registered", "sign", string(sign), "word", w, "rejected", word)
		return fmt.Errorf("%w: '%c' means %q", ErrSignRegistered, sign, w)
	}
	p.signWords[tok] = word
	return nil
}

// Diagnostics returns the warnings and errors of the last parse.
func (p *Parser) Diagnostics() []Diagnostic { return p.diags }

// Warning implements Reporter.
func (p *Parser) Warning(msg string) { p.report(slog.LevelWarn, p.line, msg) }

// Error implements Reporter.
func (p *Parser) Error(msg string) { p.report(slog.LevelError, p.line, msg) }

func (p *Parser) warnf(format string, args ...any) {
	p.report(slog.LevelWarn, p.line, fmt.Sprintf(format, args...))
}

func (p *Parser) errorf(format string, args ...any) {
	p.report(slog.LevelError, p.line, fmt.Sprintf(format, args...))
}

func (p *Parser) report(level slog.Level, line int, msg string) {
	if p.strict && level < slog.LevelError {
		level = slog.LevelError
	}
	d := Diagnostic{Level: level, Line: line + 1, Message: msg}
	p.diags = append(p.diags, d)
	p.logger.Log(context.Background(), level, msg, slog.Int("line", d.Line))
	if level >= slog.LevelError {
		p.errCount++
		if p.errCount == 1 {
			p.first = d
		}
	}
}

func (p *Parser) reset() {
	p.lex.Free()
	p.doc = NewDocument()
	p.line = 0
	p.tag = nil
	p.tagLine, p.tagAppended, p.tagNamed, p.multiLineTag = 0, false, false, false
	p.lineAttribute, p.hasSelectLine, p.textAttribute = false, false, false
	p.rubyStack = p.rubyStack[:0]
	p.fixName = ""
	p.diags = nil
	p.errCount = 0
	p.first = Diagnostic{}
	p.unclosed = false
}

// ParseText parses a whole scenario. It returns *FatalError when a literal
// is unterminated or an invalid character appears inside a tag, and
// *ParseError when any error was recorded. No document is returned with an
// error.
func (p *Parser) ParseText(text string) (doc *Document, err error) {
	p.reset()
	defer func() {
		if r := recover(); r != nil {
			fe, ok := r.(*FatalError)
			if !ok {
				panic(r)
			}
			fe.Line = p.line + 1
			p.logger.Error(fe.Message, slog.Int("line", fe.Line))
			p.tag = nil
			doc, err = nil, fe
		}
	}()

	for i, line := range SplitLines(text) {
		p.line = i
		p.doc.SetCurrentLine(i)
		p.parseLine(line)
	}
	if p.multiLineTag {
		p.unclosed = true
		p.multiLineTag = false
		p.tag = nil
		p.report(slog.LevelError, p.tagLine, "tag is not closed with ']'")
	}
	if p.errCount > 0 {
		return nil, &ParseError{
			Line:        p.first.Line,
			Message:     p.first.Message,
			Count:       p.errCount,
			Diagnostics: p.diags,
			Unclosed:    p.unclosed,
		}
	}
	return p.doc, nil
}

func (p *Parser) parseLine(text string) {
	p.rubyStack = p.rubyStack[:0]
	p.textAttribute, p.lineAttribute = false, false
	if text == "" {
		p.doc.SetValue(0)
		return
	}

	if p.multiLineTag {
		if strings.TrimSpace(text) == "" {
			p.doc.SetValue(0)
			return
		}
		p.doc.SetVoid()
		p.lex.Reset(text)
		if p.runTag() {
			p.parseBody(p.lex.TextToken())
		}
		return
	}

	p.lex.Reset(text)
	tok, h := p.lex.FirstToken()

	if p.hasSelectLine {
		switch tok {
		case Select:
			p.parseSelect(h)
			return
		case EOL:
			p.doc.SetValue(0)
			return
		case LineComments:
			p.doc.SetVoid()
			return
		}
		p.hasSelectLine = false
		p.parseSelOpt()
		return
	}

	switch tok {
	case EOL:
		p.doc.SetValue(0)
	case BeginTrans:
		p.doc.SetTag(NewTag(TagBeginTrans))
	case EndTrans:
		p.parseTransition()
	case At:
		p.parseCharacter()
	case Label:
		p.parseLabel()
	case Select:
		p.parseSelect(h)
		p.hasSelectLine = true
	case NextScenario:
		p.parseNext()
	case LineComments:
		p.doc.SetVoid()
	case BeginFixName:
		p.fixName = ""
		if h := p.lex.ReadToSpace(); h >= 0 {
			p.fixName = p.lex.String(h)
		}
		p.doc.SetVoid()
	case EndFixName:
		p.fixName = ""
		p.doc.SetVoid()
	default:
		p.parseBody(tok, h)
	}
}

func (p *Parser) parseBody(tok Token, h int) {
	for p.parseSegment(tok, h) {
		tok, h = p.lex.TextToken()
	}
}

// parseSegment handles one free-text token and reports whether the body
// continues.
func (p *Parser) parseSegment(tok Token, h int) bool {
	p.textAttribute = false
	switch tok {
	case EOL:
		return false
	case Text:
		p.doc.AddValueToCurrentLine(p.lex.Value(h))
	case BeginTag:
		return p.parseTag()
	case VertLine:
		d := NewDict()
		p.rubyStack = append(p.rubyStack, d)
		p.doc.AddValueToCurrentLine(DictValue(d))
	case BeginRuby:
		if !p.lex.HasAhead('》') {
			p.errorf("'》' missing")
			return true
		}
		rh := p.lex.ReadToCharStrict('》')
		if rh < 0 {
			p.lex.SkipChar('》')
			p.errorf("a reading must be written between '《' and '》'")
			return true
		}
		d := p.popRuby()
		if d == nil {
			p.errorf("opening '|' missing")
			return true
		}
		t := WrapTag(d)
		t.SetTagName(TagRuby)
		t.SetAttribute(KeyText, p.lex.Value(rh))
		p.doc.AddTagToCurrentLine(NewTag(TagEndRuby))
	case EndRuby:
		d := p.popRuby()
		if d == nil {
			p.errorf("opening '|' missing")
			return true
		}
		WrapTag(d).SetTagName(TagRuby)
		p.doc.AddTagToCurrentLine(NewTag(TagEndRuby))
	case BeginTextDecoration:
		p.parseDecoration()
	case WaitReturn:
		p.doc.AddTagToCurrentLine(NewTag(TagWait))
	case InnerImage:
		ih := p.lex.ReadToCharStrict(')')
		if ih < 0 {
			p.errorf("an image name closed with ')' must follow ':('")
			return true
		}
		t := NewTag(TagInlineImage)
		t.SetAttribute(KeyStorage, p.lex.Value(ih))
		p.doc.AddTagToCurrentLine(t)
	case Colon:
		eh := p.lex.ReadToCharStrict(':')
		if eh < 0 {
			p.errorf("emoji name is not closed with ':'")
			return true
		}
		t := NewTag(TagEmoji)
		t.SetAttribute(KeyStorage, p.lex.Value(eh))
		p.doc.AddTagToCurrentLine(t)
	default:
		p.errorf("unknown syntax")
		return false
	}
	return true
}

func (p *Parser) popRuby() *Dict {
	n := len(p.rubyStack)
	if n == 0 {
		return nil
	}
	d := p.rubyStack[n-1]
	p.rubyStack = p.rubyStack[:n-1]
	return d
}

// skipPast consumes the line up to and including r.
func (p *Parser) skipPast(r rune) {
	if p.lex.ReadToChar(r) < 0 {
		p.lex.SkipChar(r)
	}
}

// parseDecoration fills the innermost '|' placeholder from {attrs}.
func (p *Parser) parseDecoration() {
	if !p.lex.HasAhead('}') {
		p.errorf("'}' missing")
		return
	}
	d := p.popRuby()
	if d == nil {
		p.errorf("opening '|' missing")
		p.skipPast('}')
		return
	}
	saved := p.tag
	p.tag = WrapTag(d)
	p.tag.SetTagName(TagTextStyle)
	p.textAttribute, p.lineAttribute = true, true
	end := p.parseAttributes()
	p.textAttribute, p.lineAttribute = false, false
	if end == EOL {
		p.errorf("text decoration is not closed with '}'")
	}
	p.doc.AddTagToCurrentLine(NewTag(TagEndTextStyle))
	p.tag = saved
}

// parseTag starts a bracketed tag in body text and reports whether the tag
// was closed on this line.
func (p *Parser) parseTag() bool {
	p.tag = NewTag("")
	p.tag.createDict()
	p.tagLine, p.tagAppended, p.tagNamed = p.line, false, false
	if p.fixName != "" {
		p.tag.SetTagName(p.fixName)
	}
	return p.runTag()
}

// runTag drives the pending tag through its head and attribute list. When
// the line ends first the tag stays pending for the next line.
func (p *Parser) runTag() bool {
	if !p.tagNamed {
		switch p.parseTagHead() {
		case EOL:
			p.suspendTag()
			return false
		case RBracket:
			p.closeTag()
			return true
		}
		p.tagNamed = true
	}
	if p.parseAttributes() == EOL {
		p.suspendTag()
		return false
	}
	p.closeTag()
	return true
}

// parseTagHead reads sign words and the tag name. It returns EOL or
// RBracket when the tag cannot continue on this line, Symbol otherwise.
func (p *Parser) parseTagHead() Token {
	for {
		tok, h := p.lex.InTagToken()
		if w, ok := p.signWords[tok]; ok {
			p.tag.AddCommand(w)
			continue
		}
		switch tok {
		case EOL, RBracket:
			return tok
		case Symbol:
			if p.tag.Name() == "" {
				p.tag.SetTagName(p.lex.String(h))
				return Symbol
			}
		}
		p.lex.Unlex(tok, h)
		return Symbol
	}
}

func (p *Parser) suspendTag() {
	p.multiLineTag = true
	if !p.tagAppended {
		p.doc.AddTagToCurrentLine(p.tag)
		p.tagAppended = true
	}
}

func (p *Parser) closeTag() {
	p.multiLineTag = false
	if p.tag.Name() == "" {
		p.report(slog.LevelError, p.tagLine, "tag name is missing")
	}
	if !p.tagAppended {
		p.doc.AddTagToCurrentLine(p.tag)
	}
	p.tag = nil
}

// unlexEnd pushes back a token that ends the attribute list so that an
// error in a sub-rule does not swallow it.
func (p *Parser) unlexEnd(tok Token, h int) {
	if tok == EOL || tok == RBracket || (tok == RBrace && p.textAttribute) {
		p.lex.Unlex(tok, h)
	}
}

// parseAttributes reads attributes into the pending tag and returns the
// token that ended the list: RBracket, RBrace inside a decoration, or EOL.
func (p *Parser) parseAttributes() Token {
	for {
		tok, h := p.lex.InTagToken()
		switch tok {
		case Symbol:
			p.parseAttribute(p.lex.String(h), false)
		case Dollar:
			nt, nh := p.lex.InTagToken()
			if nt != Symbol {
				p.errorf("a parameter name must follow '$'")
				p.unlexEnd(nt, nh)
				continue
			}
			p.parseAttribute(p.lex.String(nh), true)
		case RBracket:
			if p.textAttribute {
				p.errorf("text decoration is closed with ']'")
				return RBracket
			}
			p.lineAttribute = false
			p.multiLineTag = false
			return RBracket
		case RBrace:
			if p.textAttribute {
				return RBrace
			}
			p.errorf("uninterpretable symbol in tag")
		case EOL:
			if p.lineAttribute {
				p.lineAttribute = false
			} else {
				p.multiLineTag = true
			}
			return EOL
		default:
			if !p.parseSpecialAttribute(tok, h) {
				p.errorf("uninterpretable symbol in tag")
			}
		}
	}
}

func (p *Parser) setValue(name string, v Value, isParam bool) {
	if p.tag.set(name, v, isParam) {
		p.duplicate(name, isParam)
	}
}

func (p *Parser) duplicate(name string, isParam bool) {
	if isParam {
		p.warnf("parameter %q is set more than once", name)
		return
	}
	p.warnf("attribute %q is set more than once", name)
}

// parseAttribute resolves name=value, or a bare name that is a command word
// (or, for a parameter, a null parameter).
func (p *Parser) parseAttribute(name string, isParam bool) {
	tok, h := p.lex.InTagToken()
	if tok != Equal {
		p.lex.Unlex(tok, h)
		if isParam {
			p.setValue(name, NullValue(), true)
		} else {
			p.tag.AddCommand(name)
		}
		return
	}

	tok, h = p.lex.InTagToken()
	switch tok {
	case ConstVal, SingleText, DoubleText, Number, Octet:
		p.setValue(name, p.lex.Value(h), isParam)
	case Plus, Minus:
		nt, nh := p.lex.InTagToken()
		if nt != Number {
			sign := '+'
			if tok == Minus {
				sign = '-'
			}
			p.errorf("a number must follow '%c'", sign)
			p.unlexEnd(nt, nh)
			return
		}
		v := p.lex.Value(nh)
		if tok == Minus {
			v = v.Negate()
		}
		p.setValue(name, v, isParam)
	case Symbol:
		p.parseValueSymbol(name, p.lex.String(h), isParam)
	case Slash:
		p.setValue(name, p.lex.Value(p.lex.ReadRegExp()), isParam)
	default:
		p.errorf("a value must follow '%s='", name)
		p.unlexEnd(tok, h)
	}
}

// parseValueSymbol resolves a symbolic value: a reference (ref or
// dotted.ref) or a file property (file::prop, dotted.file::prop).
func (p *Parser) parseValueSymbol(name, first string, isParam bool) {
	parts := []string{first}
	tok, h := p.lex.InTagToken()
	for tok == Dot {
		p.lex.SetNextIsBareWord()
		nt, nh := p.lex.InTagToken()
		if nt != Symbol {
			p.errorf("a name must follow '.'")
			p.unlexEnd(nt, nh)
			return
		}
		parts = append(parts, p.lex.String(nh))
		tok, h = p.lex.InTagToken()
	}
	if tok == DoubleColon {
		p.parseFileProp(name, strings.Join(parts, "."), isParam)
		return
	}
	p.lex.Unlex(tok, h)
	if p.tag.SetReference(name, strings.Join(parts, "."), isParam) {
		p.duplicate(name, isParam)
	}
}

func (p *Parser) parseFileProp(name, file string, isParam bool) {
	var parts []string
	for {
		p.lex.SetNextIsBareWord()
		tok, h := p.lex.InTagToken()
		if tok != Symbol {
			p.errorf("a property name must follow %q", file+"::")
			p.unlexEnd(tok, h)
			return
		}
		parts = append(parts, p.lex.String(h))
		tok, h = p.lex.InTagToken()
		if tok != Dot {
			p.lex.Unlex(tok, h)
			break
		}
	}
	if p.tag.SetFileProperty(name, file, strings.Join(parts, "."), isParam) {
		p.duplicate(name, isParam)
	}
}

// parseSpecialAttribute handles the shorthand forms 'voice', "storage",
// <time>, {wait} and (fade).
func (p *Parser) parseSpecialAttribute(tok Token, h int) bool {
	switch tok {
	case SingleText:
		p.setValue(KeyVoice, p.lex.Value(h), false)
	case DoubleText:
		p.setValue(KeyStorage, p.lex.Value(h), false)
	case LT:
		p.parseNumberAttribute(KeyTime, '<', '>', GT)
	case LBrace:
		p.parseNumberAttribute(KeyWait, '{', '}', RBrace)
	case LParen:
		p.parseNumberAttribute(KeyFade, '(', ')', RParen)
	default:
		return false
	}
	return true
}

func (p *Parser) parseNumberAttribute(key string, open, closing rune, closeTok Token) {
	tok, h := p.lex.InTagToken()
	if tok != Number {
		p.errorf("a number must follow '%c'", open)
		p.unlexEnd(tok, h)
		return
	}
	p.setValue(key, p.lex.Value(h), false)
	if tok, h = p.lex.InTagToken(); tok != closeTok {
		p.errorf("'%c' is not closed with '%c'", open, closing)
		p.unlexEnd(tok, h)
	}
}

// parseSelOpt parses the line after a choice as the choice's options.
func (p *Parser) parseSelOpt() {
	p.lex.Rewind()
	p.tag = NewTag(TagSelOpt)
	p.lineAttribute = true
	p.parseAttributes()
	p.doc.SetTag(p.tag)
	p.tag = nil
}

func (p *Parser) parseTransition() {
	p.tag = NewTag(TagEndTrans)
	p.lineAttribute = true
	tok, h := p.lex.InTagToken()
	if tok == Symbol {
		nt, nh := p.lex.InTagToken()
		if nt == Equal {
			p.lex.Unlex(tok, h)
		} else {
			p.setValue(KeyTrans, p.lex.Value(h), false)
		}
		p.lex.Unlex(nt, nh)
	} else {
		p.lex.Unlex(tok, h)
	}
	p.parseAttributes()
	p.doc.SetTag(p.tag)
	p.tag = nil
}

func (p *Parser) parseCharacter() {
	p.tag = NewTag(TagCharName)
	tok, h := p.lex.InTagToken()
	switch tok {
	case Symbol, SingleText, DoubleText:
		p.setValue(KeyName, p.lex.Value(h), false)
		if nt, nh := p.lex.InTagToken(); nt == Slash {
			at, ah := p.lex.InTagToken()
			switch at {
			case Symbol, SingleText, DoubleText:
				p.setValue(KeyAlias, p.lex.Value(ah), false)
			default:
				p.setValue(KeyAlias, VoidValue(), false)
				p.lex.Unlex(at, ah)
			}
		} else {
			p.lex.Unlex(nt, nh)
		}
		p.lineAttribute = true
		p.parseAttributes()
	default:
		p.errorf("a name must follow '@'")
	}
	p.doc.SetTag(p.tag)
	p.tag = nil
}

func (p *Parser) parseLabel() {
	p.tag = NewTag(TagLabel)
	tok, h := p.lex.InTagToken()
	named := tok == Symbol
	if named {
		p.tag.SetValue(KeyLabel, p.lex.Value(h))
		tok, _ = p.lex.InTagToken()
	}
	switch {
	case tok == VertLine:
		if desc := p.lex.RemainString(); desc != "" {
			p.tag.SetText(KeyDescription, desc)
		}
	case tok != EOL:
		p.errorf("uninterpretable symbol after label")
	case !named:
		p.errorf("a label name or '|' must follow '#'")
	}
	p.doc.SetTag(p.tag)
	p.tag = nil
}

// parseSelect parses "N.text|target|attrs". h holds the choice number.
func (p *Parser) parseSelect(h int) {
	p.tag = NewTag(TagSelect)
	p.tag.SetValue(KeyNumber, p.lex.Value(h))
	switch {
	case p.lex.SkipChar('*'):
		p.tag.SetValue(KeyText, NullValue())
		if !p.lex.SkipChar('|') {
			p.errorf("'|' must follow '*'")
		}
	case p.lex.SkipChar('|'):
		if ih := p.lex.ReadToVerline(); ih >= 0 {
			p.tag.SetValue(KeyImage, p.lex.Value(ih))
		} else {
			p.errorf("an image name must follow '|'")
		}
	default:
		if th := p.lex.ReadToVerline(); th >= 0 {
			p.tag.SetValue(KeyText, p.lex.Value(th))
		}
	}
	if th := p.lex.ReadToVerline(); th >= 0 {
		p.tag.SetValue(KeyTarget, p.lex.Value(th))
	}
	p.lineAttribute = true
	p.parseAttributes()
	p.doc.SetTag(p.tag)
	p.tag = nil
}

func (p *Parser) parseNext() {
	p.tag = NewTag(TagNext)
	if th := p.lex.ReadToSpace(); th >= 0 {
		p.tag.SetValue(KeyTarget, p.lex.Value(th))
	} else {
		p.errorf("a target must follow '>'")
	}
	if wh := p.lex.ReadToSpace(); wh >= 0 && p.lex.String(wh) == wordIf {
		if cond := strings.TrimSpace(p.lex.RemainString()); cond != "" {
			p.tag.SetText(KeyCond, cond)
		} else {
			p.errorf("condition missing after if")
		}
	}
	p.doc.SetTag(p.tag)
	p.tag = nil
}

// ParseText parses text with a fresh default parser.
func ParseText(text string) (*Document, error) {
	return NewParser().ParseText(text)
}
