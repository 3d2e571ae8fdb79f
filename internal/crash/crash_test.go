/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package crash

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"goscenario/internal/telemetry"
	"goscenario/internal/workspace"
)

func TestWriteReportCreatesFileInTemp(t *testing.T) {
	path, report, err := writeReport(nil, "boom", []byte("stacktrace"))
	if err != nil {
		t.Fatalf("writeReport error: %v", err)
	}
	t.Cleanup(func() { _ = os.Remove(path) })
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !bytes.Equal(b, report) {
		t.Fatalf("returned report differs from the file")
	}
	s := string(b)
	if !strings.HasPrefix(s, "goscenario crash report\n") {
		t.Fatalf("report header missing")
	}
	if !strings.Contains(s, "Panic: boom") {
		t.Fatalf("panic content missing: %s", s)
	}
}

func TestRecoverWritesIntoWorkspaceBackups(t *testing.T) {
	var out bytes.Buffer
	oldErr, oldExit := stderr, exitFn
	stderr = &out
	code := 0
	exitFn = func(c int) { code = c }
	defer func() { stderr, exitFn = oldErr, oldExit }()
	telemetry.SetDefault(telemetry.Config{})

	ws, err := workspace.Init(t.TempDir(), workspace.Manifest{})
	if err != nil {
		t.Fatal(err)
	}
	func() {
		defer Recover(ws)
		panic("boom")
	}()

	if code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
	files, _ := os.ReadDir(ws.BackupsDir())
	var found string
	for _, f := range files {
		if strings.HasPrefix(f.Name(), "crash-") && strings.HasSuffix(f.Name(), ".log") {
			found = filepath.Join(ws.BackupsDir(), f.Name())
		}
	}
	if found == "" {
		t.Fatalf("expected crash report under backups dir")
	}
	b, _ := os.ReadFile(found)
	if !bytes.Contains(b, []byte("Panic: boom")) || !bytes.Contains(b, []byte("Workspace: "+ws.Root)) {
		t.Fatalf("report = %s", b)
	}
	if !strings.Contains(out.String(), found) {
		t.Fatalf("stderr does not name the report: %q", out.String())
	}
}

func TestRecoverWithoutPanicIsNoop(t *testing.T) {
	oldExit := exitFn
	exitFn = func(int) { t.Fatalf("exit called without a panic") }
	defer func() { exitFn = oldExit }()
	func() {
		defer Recover(nil)
	}()
}

func TestReportWithoutWorkspace(t *testing.T) {
	var out bytes.Buffer
	oldErr, oldExit := stderr, exitFn
	stderr = &out
	code := 0
	exitFn = func(c int) { code = c }
	defer func() { stderr, exitFn = oldErr, oldExit }()
	telemetry.SetDefault(telemetry.Config{})

	func() {
		defer func() {
			if r := recover(); r != nil {
				Report(nil, r)
			}
		}()
		panic("late")
	}()
	if code != 2 || !strings.Contains(out.String(), os.TempDir()) {
		t.Fatalf("code = %d, stderr = %q", code, out.String())
	}
	path := strings.TrimSpace(strings.TrimPrefix(strings.SplitN(out.String(), "\n", 2)[0], "A fatal error occurred. A crash report was saved to:"))
	_ = os.Remove(path)
}
