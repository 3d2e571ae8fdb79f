/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package workspace

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"

	"goscenario/internal/config"
)

func TestInitCreatesStructureAndManifest(t *testing.T) {
	fs := afero.NewMemMapFs()
	ws, err := InitFS(fs, "/novel", Manifest{})
	if err != nil {
		t.Fatalf("InitFS error: %v", err)
	}
	for _, d := range []string{"scenarios", "build", BackupsDirName} {
		if ok, _ := afero.DirExists(fs, filepath.Join("/novel", d)); !ok {
			t.Fatalf("expected directory %s", d)
		}
	}
	b, err := afero.ReadFile(fs, ws.ManifestPath)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var got Manifest
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal manifest: %v", err)
	}
	want := Manifest{Name: "novel", Sources: []string{"scenarios/*.sce"}, Output: "build"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("manifest mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveCreatesBackupAndOpenFallsBack(t *testing.T) {
	fs := afero.NewMemMapFs()
	ws, err := InitFS(fs, "/novel", Manifest{Name: "Harbor"})
	if err != nil {
		t.Fatalf("InitFS error: %v", err)
	}
	ws.Manifest.Encoding = "shift_jis"
	if err := ws.Save(); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	ents, err := afero.ReadDir(fs, ws.BackupsDir())
	if err != nil {
		t.Fatalf("read backups dir: %v", err)
	}
	var baks int
	for _, e := range ents {
		if strings.HasPrefix(e.Name(), ManifestFileName+".") && strings.HasSuffix(e.Name(), ".bak") {
			baks++
		}
	}
	if baks == 0 {
		t.Fatalf("expected a backup file")
	}

	if err := afero.WriteFile(fs, ws.ManifestPath, []byte("{broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	re, err := OpenFS(fs, "/novel")
	if err != nil {
		t.Fatalf("OpenFS should fall back to the backup: %v", err)
	}
	if re.Manifest.Name != "Harbor" {
		t.Fatalf("name = %q, want Harbor", re.Manifest.Name)
	}
}

func TestOpenWithoutManifestOrBackup(t *testing.T) {
	fs := afero.NewMemMapFs()
	if _, err := OpenFS(fs, "/empty"); err == nil {
		t.Fatalf("expected error for a directory without manifest")
	}
}

func TestSourcesAndCompiledPath(t *testing.T) {
	fs := afero.NewMemMapFs()
	ws, err := InitFS(fs, "/novel", Manifest{Sources: []string{"scenarios/*.sce", "extra/*.sce", "scenarios/a.sce"}})
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{"scenarios/b.sce", "scenarios/a.sce", "scenarios/notes.txt", "extra/c.sce"} {
		if err := afero.WriteFile(fs, ws.Abs(p), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	got, err := ws.Sources()
	if err != nil {
		t.Fatalf("Sources: %v", err)
	}
	if diff := cmp.Diff([]string{"extra/c.sce", "scenarios/a.sce", "scenarios/b.sce"}, got); diff != "" {
		t.Fatalf("sources (-want +got):\n%s", diff)
	}
	if got, want := ws.CompiledPath("extra/c.sce"), filepath.Join("/novel", "build", "extra", "c.json"); got != want {
		t.Fatalf("CompiledPath = %q, want %q", got, want)
	}
}

func TestParserConfigMergesManifest(t *testing.T) {
	ws := &Workspace{Manifest: Manifest{Encoding: "euc-jp", SignWords: map[string]string{"!": "now"}}}
	pc := ws.ParserConfig(config.ParserConfig{Encoding: "utf-8", SignWords: map[string]string{"?": "query", "!": "bang"}})
	want := config.ParserConfig{Encoding: "euc-jp", SignWords: map[string]string{"?": "query", "!": "now"}}
	if diff := cmp.Diff(want, pc); diff != "" {
		t.Fatalf("parser config (-want +got):\n%s", diff)
	}
}

func TestFindWalksUp(t *testing.T) {
	root := t.TempDir()
	if _, err := Init(root, Manifest{}); err != nil {
		t.Fatal(err)
	}
	deep := filepath.Join(root, "scenarios", "chapter1")
	if err := os.MkdirAll(deep, 0o755); err != nil {
		t.Fatal(err)
	}
	got, err := Find(deep)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	want, _ := filepath.Abs(root)
	if got != want {
		t.Fatalf("Find = %q, want %q", got, want)
	}
}
