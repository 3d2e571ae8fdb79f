/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package log provides the slog-based logging used by every goscenario
// package. Records go to a console handler (pretty text or JSON) and,
// optionally, to a rotating JSON log file. Records logged with a context
// carrying a scenario path get a "scenario" attribute.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"goscenario/internal/version"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Options controls logger initialization.
// Values can be provided directly or via environment variables:
//   - GSC_LOG_LEVEL=debug|info|warn|error
//   - GSC_LOG_FORMAT=console|json
//   - GSC_LOG_FILE=<path> (enables file logging with rotation)
//   - GSC_LOG_SOURCE=true|false (include source)
//
// Defaults: INFO level, console format on stderr, no source.
type Options struct {
	Level     string
	Format    string // "console" or "json"
	AddSource bool
	File      string // optional path for rotated JSON logs
	MaxSizeMB int    // rotation size, 10 when zero

	// Console receives console output; os.Stderr when nil.
	Console io.Writer
}

var (
	defaultLoggerMu sync.RWMutex
	defaultLogger   *slog.Logger
	fileWriter      *lj.Logger
)

// L returns the application logger, initializing it from the environment on
// first use.
func L() *slog.Logger {
	defaultLoggerMu.RLock()
	l := defaultLogger
	defaultLoggerMu.RUnlock()
	if l != nil {
		return l
	}
	Init(FromEnv())
	defaultLoggerMu.RLock()
	defer defaultLoggerMu.RUnlock()
	return defaultLogger
}

// Init configures the application logger and installs it as slog.Default.
// A previously opened log file is closed.
func Init(opts Options) {
	lvl := ParseLevel(opts.Level)
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	var handlers []slog.Handler
	if strings.EqualFold(strings.TrimSpace(opts.Format), "json") {
		handlers = append(handlers, slog.NewJSONHandler(console, &slog.HandlerOptions{Level: lvl, AddSource: opts.AddSource}))
	} else {
		handlers = append(handlers, &prettyTextHandler{opts: prettyOpts{Level: lvl, AddSource: opts.AddSource}, w: console, mu: &sync.Mutex{}})
	}

	var fw *lj.Logger
	if path := strings.TrimSpace(opts.File); path != "" {
		size := opts.MaxSizeMB
		if size <= 0 {
			size = 10
		}
		fw = &lj.Logger{Filename: path, MaxSize: size, MaxBackups: 3, MaxAge: 28, Compress: true}
		handlers = append(handlers, slog.NewJSONHandler(fw, &slog.HandlerOptions{Level: lvl, AddSource: opts.AddSource}))
	}

	var h slog.Handler = handlers[0]
	if len(handlers) > 1 {
		h = &multi{hs: handlers}
	}
	logger := slog.New(&scenarioHandler{next: h}).With(
		slog.String("app", "goscenario"),
		slog.String("ver", version.String()),
	)

	defaultLoggerMu.Lock()
	if fileWriter != nil {
		_ = fileWriter.Close()
	}
	fileWriter = fw
	defaultLogger = logger
	defaultLoggerMu.Unlock()
	slog.SetDefault(logger)
}

// Close flushes and closes the log file, if any.
func Close() error {
	defaultLoggerMu.Lock()
	defer defaultLoggerMu.Unlock()
	if fileWriter == nil {
		return nil
	}
	err := fileWriter.Close()
	fileWriter = nil
	return err
}

// FromEnv builds Options from environment variables.
func FromEnv() Options {
	return Options{
		Level:     getenv("GSC_LOG_LEVEL", "info"),
		Format:    getenv("GSC_LOG_FORMAT", "console"),
		AddSource: strings.EqualFold(getenv("GSC_LOG_SOURCE", "false"), "true"),
		File:      os.Getenv("GSC_LOG_FILE"),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// WithComponent returns a logger with the component attribute pre-set.
func WithComponent(name string) *slog.Logger { return L().With(slog.String("component", name)) }

// WithOperation annotates the logger with an operation name.
func WithOperation(l *slog.Logger, op string) *slog.Logger { return l.With(slog.String("op", op)) }

// ParseLevel converts a level name to a slog level; unknown names give INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type scenarioKey struct{}

// WithScenario returns a context whose log records carry the scenario path.
func WithScenario(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, scenarioKey{}, path)
}

// ScenarioFrom returns the scenario path stored by WithScenario.
func ScenarioFrom(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	p, ok := ctx.Value(scenarioKey{}).(string)
	return p, ok
}

// scenarioHandler adds the scenario attribute from the record's context.
type scenarioHandler struct{ next slog.Handler }

func (s *scenarioHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return s.next.Enabled(ctx, level)
}

func (s *scenarioHandler) Handle(ctx context.Context, r slog.Record) error {
	if p, ok := ScenarioFrom(ctx); ok {
		r = r.Clone()
		r.AddAttrs(slog.String("scenario", p))
	}
	return s.next.Handle(ctx, r)
}

func (s *scenarioHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &scenarioHandler{next: s.next.WithAttrs(attrs)}
}

func (s *scenarioHandler) WithGroup(name string) slog.Handler {
	return &scenarioHandler{next: s.next.WithGroup(name)}
}

// multi fans records out to several handlers.
type multi struct{ hs []slog.Handler }

func (m *multi) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.hs {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multi) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range m.hs {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *multi) WithAttrs(attrs []slog.Attr) slog.Handler {
	res := make([]slog.Handler, len(m.hs))
	for i, h := range m.hs {
		res[i] = h.WithAttrs(attrs)
	}
	return &multi{hs: res}
}

func (m *multi) WithGroup(name string) slog.Handler {
	res := make([]slog.Handler, len(m.hs))
	for i, h := range m.hs {
		res[i] = h.WithGroup(name)
	}
	return &multi{hs: res}
}

// prettyTextHandler prints one line per record for terminals:
//
//	15:04:05 WRN message key=value scenario=intro.sce line=3
type prettyTextHandler struct {
	opts   prettyOpts
	w      io.Writer
	mu     *sync.Mutex
	attrs  []string
	prefix string
}

type prettyOpts struct {
	Level     slog.Leveler
	AddSource bool
}

func (h *prettyTextHandler) Enabled(_ context.Context, level slog.Level) bool {
	threshold := slog.LevelInfo
	if h.opts.Level != nil {
		threshold = h.opts.Level.Level()
	}
	return level >= threshold
}

func (h *prettyTextHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	b.WriteString(ts.Format(time.TimeOnly))
	b.WriteByte(' ')
	b.WriteString(levelString(r.Level))
	b.WriteByte(' ')
	b.WriteString(r.Message)
	for _, a := range h.attrs {
		b.WriteByte(' ')
		b.WriteString(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		b.WriteByte(' ')
		b.WriteString(formatAttr(h.prefix, a))
		return true
	})
	if h.opts.AddSource && r.PC != 0 {
		f, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		if f.File != "" {
			b.WriteString(" src=")
			b.WriteString(f.File)
			b.WriteByte(':')
			b.WriteString(strconv.Itoa(f.Line))
		}
	}
	b.WriteByte('\n')

	if h.mu != nil {
		h.mu.Lock()
		defer h.mu.Unlock()
	}
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *prettyTextHandler) clone() *prettyTextHandler {
	c := *h
	c.attrs = append([]string(nil), h.attrs...)
	return &c
}

func (h *prettyTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := h.clone()
	for _, a := range attrs {
		c.attrs = append(c.attrs, formatAttr(h.prefix, a))
	}
	return c
}

func (h *prettyTextHandler) WithGroup(name string) slog.Handler {
	c := h.clone()
	c.prefix = h.prefix + name + "."
	return c
}

func levelString(l slog.Level) string {
	switch l {
	case slog.LevelDebug:
		return "DBG"
	case slog.LevelInfo:
		return "INF"
	case slog.LevelWarn:
		return "WRN"
	case slog.LevelError:
		return "ERR"
	default:
		return l.String()
	}
}

func formatAttr(prefix string, a slog.Attr) string {
	return prefix + a.Key + "=" + attrValueString(a.Value.Resolve())
}

func attrValueString(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		if s == "" || strings.ContainsAny(s, " \t\"=") {
			return strconv.Quote(s)
		}
		return s
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	default:
		return v.String()
	}
}
