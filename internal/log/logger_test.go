/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package log

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func lastJSONLine(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var last string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if s := strings.TrimSpace(sc.Text()); s != "" {
			last = s
		}
	}
	if last == "" {
		t.Fatalf("no log lines found")
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(last), &m); err != nil {
		t.Fatalf("unmarshal json log: %v", err)
	}
	return m
}

// TestInitWritesRotatedJSONFile checks the file handler and the static and
// contextual attributes.
func TestInitWritesRotatedJSONFile(t *testing.T) {
	fpath := filepath.Join(t.TempDir(), "goscenario.log")
	var console bytes.Buffer
	Init(Options{Level: "debug", Format: "console", File: fpath, Console: &console})
	t.Cleanup(func() { _ = Close() })

	l := WithOperation(WithComponent("compile"), "parse")
	ctx := WithScenario(context.Background(), "intro.sce")
	l.WarnContext(ctx, "attribute set twice", slog.Int("line", 3))
	if err := Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	b, err := os.ReadFile(fpath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	m := lastJSONLine(t, b)
	want := map[string]any{
		"app":       "goscenario",
		"component": "compile",
		"op":        "parse",
		"msg":       "attribute set twice",
		"scenario":  "intro.sce",
		"level":     "WARN",
	}
	for k, v := range want {
		if m[k] != v {
			t.Fatalf("%s = %v, want %v", k, m[k], v)
		}
	}
	if _, ok := m["ver"].(string); !ok {
		t.Fatalf("missing ver attr")
	}
	if m["line"] != float64(3) {
		t.Fatalf("line = %v, want 3", m["line"])
	}

	out := console.String()
	if !strings.Contains(out, "WRN attribute set twice") || !strings.Contains(out, "scenario=intro.sce") {
		t.Fatalf("console output = %q", out)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("GSC_LOG_LEVEL", "warn")
	t.Setenv("GSC_LOG_FORMAT", "json")
	t.Setenv("GSC_LOG_SOURCE", "true")
	t.Setenv("GSC_LOG_FILE", "")

	opts := FromEnv()
	if opts.Level != "warn" || opts.Format != "json" || !opts.AddSource || opts.File != "" {
		t.Fatalf("FromEnv mismatch: %+v", opts)
	}
	if v := getenv("GSC_SURELY_UNSET_VAR", "fallback"); v != "fallback" {
		t.Fatalf("getenv fallback = %q", v)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug, " WARN ": slog.LevelWarn, "warning": slog.LevelWarn,
		"error": slog.LevelError, "": slog.LevelInfo, "loud": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestPrettyTextHandler(t *testing.T) {
	var buf bytes.Buffer
	h := &prettyTextHandler{opts: prettyOpts{Level: slog.LevelWarn}, w: &buf}

	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatalf("info should not be enabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Fatalf("error should be enabled at warn level")
	}

	h2 := h.WithAttrs([]slog.Attr{slog.String("k", "v")}).WithGroup("grp")
	r := slog.NewRecord(time.Now(), slog.LevelError, "boom", 0)
	r.AddAttrs(slog.Int("n", 42), slog.Float64("pi", 3.14), slog.Bool("ok", true), slog.String("msg", "two words"))
	if err := h2.Handle(context.Background(), r); err != nil {
		t.Fatalf("handle error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"ERR boom", " k=v", "grp.n=42", "grp.pi=3.14", "grp.ok=true", `grp.msg="two words"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q is missing %q", out, want)
		}
	}
}
