/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package crash turns a panic in a command into a crash report.
package crash

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	applog "goscenario/internal/log"
	"goscenario/internal/telemetry"
	"goscenario/internal/version"
	"goscenario/internal/workspace"
)

// exitFn is used to allow testing of Recover without terminating the test process.
var (
	exitFn           = os.Exit
	stderr io.Writer = os.Stderr
)

// Recover captures a panic, logs it with the stack trace, writes a report
// file into the workspace backups folder (or the temp dir without a
// workspace), uploads it when telemetry is opted in and exits with code 2.
//
// Usage: defer crash.Recover(ws)
func Recover(ws *workspace.Workspace) {
	if r := recover(); r != nil {
		Report(ws, r)
	}
}

// Report does the work of Recover for a panic value recovered by the
// caller, for call sites where the workspace is only known after the
// deferred call was set up.
func Report(ws *workspace.Workspace, r any) {
	l := applog.WithComponent("crash")
	stack := debug.Stack()
	l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

	reportPath, report, err := writeReport(ws, r, stack)
	if err != nil {
		l.Error("write crash report failed", slog.Any("err", err))
	}
	tc := telemetry.Default()
	tc.UploadCrash(report)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	tc.Flush(ctx)
	cancel()

	_, _ = fmt.Fprintf(stderr, "A fatal error occurred. A crash report was saved to: %s\n", reportPath)
	_, _ = fmt.Fprintf(stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH)
	_ = applog.Close()
	exitFn(2)
}

func writeReport(ws *workspace.Workspace, panicVal any, stack []byte) (string, []byte, error) {
	dir := os.TempDir()
	if ws != nil && ws.Root != "" {
		dir = ws.BackupsDir()
		_ = os.MkdirAll(dir, 0o755)
	}
	path := filepath.Join(dir, fmt.Sprintf("crash-%s.log", time.Now().Format("20060102-150405.000")))

	var buf bytes.Buffer
	_, _ = fmt.Fprintf(&buf, "goscenario crash report\n")
	_, _ = fmt.Fprintf(&buf, "Timestamp: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(&buf, "Version: %s\n", version.String())
	_, _ = fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if ws != nil {
		_, _ = fmt.Fprintf(&buf, "Workspace: %s\n", ws.Root)
		_, _ = fmt.Fprintf(&buf, "Manifest: %s\n", ws.ManifestPath)
	}
	_, _ = fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	_, _ = fmt.Fprintf(&buf, "Stack:\n%s\n", stack)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return path, buf.Bytes(), err
	}
	defer func() {
		if err := f.Close(); err != nil {
			applog.WithComponent("crash").Error("failed to close crash report file", slog.Any("err", err), slog.String("path", path))
		}
	}()
	if _, err := f.Write(buf.Bytes()); err != nil {
		return path, buf.Bytes(), err
	}
	_ = f.Sync()
	return path, buf.Bytes(), nil
}
