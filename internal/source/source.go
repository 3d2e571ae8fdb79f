/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package source reads scenario files from disk and decodes them to UTF-8
// text for the parser.
package source

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/spf13/afero"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	applog "goscenario/internal/log"
	"goscenario/internal/script"
)

var (
	ErrUnknownEncoding = errors.New("source: unknown encoding")
	ErrInvalidUTF8     = errors.New("source: file is not valid UTF-8")
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// Loader reads scenario files through an afero filesystem. Files carrying a
// byte order mark are decoded accordingly; all others use Encoding.
type Loader struct {
	fs       afero.Fs
	encoding string
	parser   *script.Parser
}

// NewLoader returns a loader on the OS filesystem. An empty encoding means
// UTF-8.
func NewLoader(enc string) *Loader {
	return &Loader{fs: afero.NewOsFs(), encoding: enc}
}

// SetFS replaces the filesystem, e.g. with afero.NewMemMapFs in tests.
func (l *Loader) SetFS(fs afero.Fs) { l.fs = fs }

func (l *Loader) FS() afero.Fs { return l.fs }

// SetParser sets the parser LoadScenario uses; a default parser otherwise.
func (l *Loader) SetParser(p *script.Parser) { l.parser = p }

// Load reads path and returns its text.
func (l *Loader) Load(path string) (string, error) {
	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return "", fmt.Errorf("source: read %s: %w", path, err)
	}
	text, err := Decode(data, l.encoding)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return text, nil
}

// LoadScenario reads and parses a scenario file. Parse failures are
// returned wrapped with the path; errors.As finds the *script.ParseError.
func (l *Loader) LoadScenario(path string) (*script.Document, error) {
	text, err := l.Load(path)
	if err != nil {
		return nil, err
	}
	p := l.parser
	if p == nil {
		p = script.NewParser(script.WithLogger(applog.WithComponent("script")))
	}
	doc, err := p.ParseText(text)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// LoadScenario reads a UTF-8 (or BOM-marked) scenario file from the OS
// filesystem and parses it.
func LoadScenario(path string) (*script.Document, error) {
	return NewLoader("").LoadScenario(path)
}

// Decode converts raw file bytes to a string. A BOM wins over enc.
func Decode(data []byte, enc string) (string, error) {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		return checkUTF8(data[len(bomUTF8):])
	case bytes.HasPrefix(data, bomUTF16LE):
		return decodeWith(unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM), data)
	case bytes.HasPrefix(data, bomUTF16BE):
		return decodeWith(unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM), data)
	}
	e, err := Lookup(enc)
	if err != nil {
		return "", err
	}
	if e == nil {
		return checkUTF8(data)
	}
	return decodeWith(e, data)
}

// Lookup resolves an encoding name. It returns a nil encoding for UTF-8.
func Lookup(name string) (encoding.Encoding, error) {
	switch n := strings.ToLower(strings.TrimSpace(name)); n {
	case "", "utf-8", "utf8":
		return nil, nil
	case "utf-16le", "utf16le":
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM), nil
	case "utf-16be", "utf16be":
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM), nil
	case "shift_jis", "shift-jis", "sjis", "cp932", "windows-31j":
		return japanese.ShiftJIS, nil
	case "euc-jp", "eucjp":
		return japanese.EUCJP, nil
	default:
		e, err := htmlindex.Get(n)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
		}
		return e, nil
	}
}

func decodeWith(e encoding.Encoding, data []byte) (string, error) {
	out, _, err := transform.Bytes(e.NewDecoder(), data)
	if err != nil {
		return "", fmt.Errorf("source: decode: %w", err)
	}
	return string(out), nil
}

func checkUTF8(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", ErrInvalidUTF8
	}
	return string(data), nil
}
