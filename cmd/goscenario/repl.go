/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"goscenario/internal/config"
	"goscenario/internal/script"
	"goscenario/internal/undo"
)

const (
	historyFile = ".goscenario_history"
	promptMain  = "sce> "
	promptCont  = "...> "
	sessionKey  = "session"
)

const replHelp = `Type scenario lines; a tag left open continues on the next line.
Accepted lines are appended to the session scenario and printed as JSON.
Commands:
  :help          this text
  :show          print the whole session document
  :undo, :redo   take back or restore the last accepted input
  :reset         start an empty session
  :save <file>   write the session scenario source to file
  :json          print indented JSON (toggle)
  :lex           print tokens instead of documents (toggle)
  :quit, :exit   leave
`

// replSession is one interactive session. buf holds the accepted source
// lines, each terminated by a newline.
type replSession struct {
	pc     config.ParserConfig
	out    io.Writer
	lex    bool
	indent bool
	buf    string
	hist   *undo.Manager
}

func newReplSession(pc config.ParserConfig, out io.Writer) *replSession {
	return &replSession{pc: pc, out: out, hist: undo.NewManager(undo.Config{MaxPerKey: 200})}
}

// needsMore reports whether src ends inside an unclosed tag and the prompt
// should ask for another line.
func (s *replSession) needsMore(src string) bool {
	p, err := s.pc.NewParser(nil)
	if err != nil {
		return false
	}
	_, perr := p.ParseText(src)
	return script.IsIncomplete(perr)
}

// eval parses src after the session lines. On success src joins the
// session and the new lines are printed; otherwise the diagnostics are.
func (s *replSession) eval(src string) {
	if s.lex {
		lexemes, err := script.Tokenize(src)
		for _, lx := range lexemes {
			_, _ = fmt.Fprintln(s.out, lx)
		}
		if err != nil {
			_, _ = fmt.Fprintln(s.out, err)
		}
		return
	}
	candidate := s.buf + src + "\n"
	doc, ok := s.parse(candidate)
	if !ok {
		return
	}
	s.hist.Push(undo.Snapshot{Key: sessionKey, Text: s.buf})
	start := len(script.SplitLines(s.buf))
	s.buf = candidate
	for i := start; i < doc.Len(); i++ {
		s.print(doc.Line(i))
	}
}

func (s *replSession) parse(text string) (*script.Document, bool) {
	p, err := s.pc.NewParser(nil)
	if err != nil {
		_, _ = fmt.Fprintln(s.out, err)
		return nil, false
	}
	doc, perr := p.ParseText(text)
	for _, d := range p.Diagnostics() {
		_, _ = fmt.Fprintln(s.out, d)
	}
	if perr != nil {
		var fe *script.FatalError
		if errors.As(perr, &fe) {
			_, _ = fmt.Fprintln(s.out, "fatal:", fe)
		}
		return nil, false
	}
	return doc, true
}

func (s *replSession) print(v any) {
	var (
		data []byte
		err  error
	)
	if s.indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		_, _ = fmt.Fprintln(s.out, err)
		return
	}
	_, _ = fmt.Fprintln(s.out, string(data))
}

// command runs a ':' command and reports whether the session should end.
func (s *replSession) command(line string) (exit bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	switch strings.ToLower(fields[0]) {
	case ":help":
		_, _ = fmt.Fprint(s.out, replHelp)
	case ":quit", ":exit":
		return true
	case ":show":
		if doc, ok := s.parse(s.buf); ok {
			s.print(doc)
		}
	case ":undo":
		prev, ok := s.hist.Undo(sessionKey, s.buf)
		if !ok {
			_, _ = fmt.Fprintln(s.out, "nothing to undo")
			return false
		}
		s.buf = prev.Text
		_, _ = fmt.Fprintf(s.out, "%d line(s)\n", len(script.SplitLines(s.buf)))
	case ":redo":
		next, ok := s.hist.Redo(sessionKey, s.buf)
		if !ok {
			_, _ = fmt.Fprintln(s.out, "nothing to redo")
			return false
		}
		s.buf = next.Text
		_, _ = fmt.Fprintf(s.out, "%d line(s)\n", len(script.SplitLines(s.buf)))
	case ":reset":
		s.hist.Push(undo.Snapshot{Key: sessionKey, Text: s.buf})
		s.buf = ""
		_, _ = fmt.Fprintln(s.out, "session cleared")
	case ":save":
		if len(fields) < 2 {
			_, _ = fmt.Fprintln(s.out, "usage: :save <file>")
			return false
		}
		if err := os.WriteFile(fields[1], []byte(s.buf), 0o644); err != nil {
			_, _ = fmt.Fprintln(s.out, err)
			return false
		}
		_, _ = fmt.Fprintf(s.out, "saved %s\n", fields[1])
	case ":json":
		s.indent = !s.indent
		_, _ = fmt.Fprintf(s.out, "indented JSON: %v\n", s.indent)
	case ":lex":
		s.lex = !s.lex
		_, _ = fmt.Fprintf(s.out, "token mode: %v\n", s.lex)
	default:
		_, _ = fmt.Fprintln(s.out, "unknown command. Type :help for help.")
	}
	return false
}

// readScenario reads lines until the buffer no longer ends inside an open
// tag. ok is false on end of input.
func (s *replSession) readScenario(ln *liner.State) (string, bool) {
	var b strings.Builder
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if err != nil {
			// Ctrl+C drops the pending input.
			return "", true
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
		src := b.String()
		if strings.HasPrefix(strings.TrimSpace(src), ":") || !s.needsMore(src) {
			return src, true
		}
	}
}

func cmdRepl() *cobra.Command {
	var pf parserFlags
	var cmd = &cobra.Command{
		Use:   "repl",
		Short: "parse scenario lines interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := newReplSession(pf.config(), cmd.OutOrStdout())
			if _, err := s.pc.NewParser(nil); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(s.out, "goscenario repl. Type :help for help, Ctrl+D to leave.")

			ln := liner.NewLiner()
			defer ln.Close()
			ln.SetCtrlCAborts(true)

			var histPath string
			if home, err := os.UserHomeDir(); err == nil {
				histPath = filepath.Join(home, historyFile)
				if f, err := os.Open(histPath); err == nil {
					_, _ = ln.ReadHistory(f)
					_ = f.Close()
				}
			}

			for {
				src, ok := s.readScenario(ln)
				if !ok {
					_, _ = fmt.Fprintln(s.out)
					break
				}
				if strings.TrimSpace(src) == "" {
					continue
				}
				ln.AppendHistory(strings.ReplaceAll(src, "\n", " "))
				if strings.HasPrefix(strings.TrimSpace(src), ":") {
					if s.command(src) {
						break
					}
					continue
				}
				s.eval(src)
			}

			if histPath != "" {
				if f, err := os.Create(histPath); err == nil {
					_, _ = ln.WriteHistory(f)
					_ = f.Close()
				}
			}
			return nil
		},
	}
	pf.add(cmd)
	return cmd
}
