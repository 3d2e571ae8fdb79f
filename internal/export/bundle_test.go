/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"archive/zip"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"goscenario/internal/script"
	"goscenario/internal/workspace"
)

const harbor = `@alice
Welcome to the harbor.
#harbor|The harbor at dawn
`

func compiledWorkspace(t *testing.T) *workspace.Workspace {
	t.Helper()
	ws, err := workspace.Init(t.TempDir(), workspace.Manifest{Name: "demo"})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := os.WriteFile(ws.Abs("scenarios/harbor.sce"), []byte(harbor), 0o644); err != nil {
		t.Fatal(err)
	}
	results, err := ws.CompileAll(context.Background(), workspace.CompileOptions{NoIndex: true})
	if err != nil || len(results) != 1 || !results[0].OK() {
		t.Fatalf("CompileAll = %+v, %v", results, err)
	}
	return ws
}

func readZip(t *testing.T, path string) map[string]string {
	t.Helper()
	rd, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	defer func() { _ = rd.Close() }()
	files := map[string]string{}
	for _, f := range rd.File {
		r, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		data, err := io.ReadAll(r)
		_ = r.Close()
		if err != nil {
			t.Fatalf("read %s: %v", f.Name, err)
		}
		files[f.Name] = string(data)
	}
	return files
}

func TestExportBundle(t *testing.T) {
	ws := compiledWorkspace(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	out, info, err := ExportBundle(ws, "release", BundleOptions{Transcripts: true, Now: now})
	if err != nil {
		t.Fatalf("ExportBundle: %v", err)
	}
	if want := filepath.Join(ws.Root, ExportsDirName, "release.zip"); out != want {
		t.Fatalf("path = %q, want %q", out, want)
	}
	if info.Name != "demo" || len(info.Scenarios) != 1 || info.Scenarios[0].Lines != 3 {
		t.Fatalf("info = %+v", info)
	}

	files := readZip(t, out)
	doc, ok := files["documents/scenarios/harbor.json"]
	if !ok {
		t.Fatalf("document missing; entries = %v", files)
	}
	var d script.Document
	if err := json.Unmarshal([]byte(doc), &d); err != nil {
		t.Fatalf("document: %v", err)
	}
	if got := script.LineText(d.Line(1)); got != "Welcome to the harbor." {
		t.Fatalf("line 2 = %q", got)
	}
	if got, want := files["transcripts/scenarios/harbor.txt"], "alice: Welcome to the harbor.\n== harbor: The harbor at dawn\n"; got != want {
		t.Fatalf("transcript = %q, want %q", got, want)
	}
	var manifest BundleInfo
	if err := json.Unmarshal([]byte(files["bundle.json"]), &manifest); err != nil {
		t.Fatalf("bundle.json: %v", err)
	}
	if !manifest.CreatedAt.Equal(now) || manifest.Scenarios[0].Document != "documents/scenarios/harbor.json" {
		t.Fatalf("manifest = %+v", manifest)
	}
	if !strings.HasPrefix(manifest.Generator, "goscenario ") {
		t.Fatalf("generator = %q", manifest.Generator)
	}
}

func TestExportBundleRequiresCompile(t *testing.T) {
	ws, err := workspace.Init(t.TempDir(), workspace.Manifest{})
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := ExportBundle(ws, "x.zip", BundleOptions{}); err == nil {
		t.Fatalf("expected error for an empty workspace")
	}
	if err := os.WriteFile(ws.Abs("scenarios/a.sce"), []byte("hi\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, _, err = ExportBundle(ws, "x.zip", BundleOptions{})
	if err == nil || !strings.Contains(err.Error(), "not compiled") {
		t.Fatalf("err = %v, want not compiled", err)
	}
}
