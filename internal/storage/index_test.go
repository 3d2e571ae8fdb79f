/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"goscenario/internal/script"

	_ "modernc.org/sqlite"
)

const sceneA = `@alice/Al
Hello there, wanderer.[l]
Welcome to the harbor.

#harbor|The harbor at dawn
Gulls circle overhead.
1.Walk to the pier|pier
2.Return home|home
`

const sceneB = `@bob
The pier creaks.
>harbor if visited == 0
`

// openTestIndex returns an index in a temp workspace with sceneA and sceneB indexed.
func openTestIndex(t testing.TB) (*sql.DB, string) {
	t.Helper()
	root := t.TempDir()
	db, err := InitOrOpenIndex(root)
	if err != nil {
		t.Fatalf("InitOrOpenIndex error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()
	for _, s := range []struct{ path, text string }{{"scenes/a.sce", sceneA}, {"scenes/b.sce", sceneB}} {
		doc, err := script.ParseText(s.text)
		if err != nil {
			t.Fatalf("ParseText(%s): %v", s.path, err)
		}
		if err := IndexScenario(ctx, db, s.path, s.text, doc); err != nil {
			t.Fatalf("IndexScenario(%s): %v", s.path, err)
		}
	}
	return db, root
}

func TestIndexInitCreatesWALAndMetaVersion(t *testing.T) {
	root := t.TempDir()
	db, err := InitOrOpenIndex(root)
	if err != nil {
		t.Fatalf("InitOrOpenIndex error: %v", err)
	}
	defer db.Close()
	if _, err := os.Stat(IndexPath(root)); err != nil {
		t.Fatalf("index file missing: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	var mode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode;").Scan(&mode); err != nil {
		t.Fatalf("read journal_mode: %v", err)
	}
	if mode != "wal" && mode != "WAL" {
		t.Fatalf("expected WAL mode, got %s", mode)
	}
	var cnt int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('meta','version')").Scan(&cnt); err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	if cnt != 2 {
		t.Fatalf("expected 2 meta tables, got %d", cnt)
	}
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('scenarios','documents','fts_documents','labels','links','snapshots')").Scan(&cnt); err != nil {
		t.Fatalf("query core tables: %v", err)
	}
	if cnt != 6 {
		t.Fatalf("expected 6 core tables, got %d", cnt)
	}
	if v, err := SchemaVersion(ctx, db); err != nil || v != schemaVersion {
		t.Fatalf("SchemaVersion = %d, %v; want %d", v, err, schemaVersion)
	}
}

func TestIndexScenarioStoresDocument(t *testing.T) {
	db, _ := openTestIndex(t)
	ctx := context.Background()

	got, err := LoadDocument(ctx, db, "scenes/a.sce")
	if err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
	want, _ := script.ParseText(sceneA)
	// the stored copy went through JSON, so void lines come back as null
	if got.Len() != want.Len() {
		t.Fatalf("lines = %d, want %d", got.Len(), want.Len())
	}
	for i := range want.Lines() {
		if script.LineText(got.Line(i)) != script.LineText(want.Line(i)) {
			t.Fatalf("line %d text = %q, want %q", i+1, script.LineText(got.Line(i)), script.LineText(want.Line(i)))
		}
	}

	if _, err := LoadDocument(ctx, db, "nope.sce"); !errors.Is(err, ErrNotIndexed) {
		t.Fatalf("err = %v, want ErrNotIndexed", err)
	}

	infos, err := ListScenarios(ctx, db)
	if err != nil {
		t.Fatalf("ListScenarios: %v", err)
	}
	if len(infos) != 2 || infos[0].Path != "scenes/a.sce" || infos[0].Lines != want.Len() || infos[0].SHA256 != Hash(sceneA) {
		t.Fatalf("infos = %+v", infos)
	}
	if sum, ok, err := ScenarioHash(ctx, db, "scenes/b.sce"); err != nil || !ok || sum != Hash(sceneB) {
		t.Fatalf("ScenarioHash = %q, %v, %v", sum, ok, err)
	}
}

func TestReindexReplacesRows(t *testing.T) {
	db, _ := openTestIndex(t)
	ctx := context.Background()
	text := "@carol\nOnly this now.\n"
	doc, _ := script.ParseText(text)
	if err := IndexScenario(ctx, db, "scenes/a.sce", text, doc); err != nil {
		t.Fatalf("IndexScenario: %v", err)
	}
	res, err := Search(ctx, db, SearchQuery{Text: "harbor"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res) != 0 {
		t.Fatalf("stale rows after re-index: %+v", res)
	}
	labels, _ := LabelsOf(ctx, db, "scenes/a.sce")
	if len(labels) != 0 {
		t.Fatalf("stale labels: %+v", labels)
	}

	removed, err := RemoveScenario(ctx, db, "scenes/a.sce")
	if err != nil || !removed {
		t.Fatalf("RemoveScenario = %v, %v", removed, err)
	}
	if removed, _ := RemoveScenario(ctx, db, "scenes/a.sce"); removed {
		t.Fatalf("second remove reported a scenario")
	}
	infos, _ := ListScenarios(ctx, db)
	if len(infos) != 1 {
		t.Fatalf("scenarios after remove = %+v", infos)
	}
}

func TestExtractRows(t *testing.T) {
	doc, err := script.ParseText(sceneA)
	if err != nil {
		t.Fatal(err)
	}
	docs, labels, links := Extract(doc)
	wantDocs := []Row{
		{Line: 1, Type: TypeCharName, Character: "alice", Text: "alice Al"},
		{Line: 2, Type: TypeText, Character: "alice", Text: "Hello there, wanderer."},
		{Line: 3, Type: TypeText, Character: "alice", Text: "Welcome to the harbor."},
		{Line: 5, Type: TypeLabel, Text: "harbor The harbor at dawn"},
		{Line: 6, Type: TypeText, Text: "Gulls circle overhead."},
		{Line: 7, Type: TypeSelect, Text: "Walk to the pier"},
		{Line: 8, Type: TypeSelect, Text: "Return home"},
	}
	if diff := cmp.Diff(wantDocs, docs); diff != "" {
		t.Fatalf("rows (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Label{{Name: "harbor", Line: 5, Description: "The harbor at dawn"}}, labels); diff != "" {
		t.Fatalf("labels (-want +got):\n%s", diff)
	}
	wantLinks := []Link{
		{Line: 7, Kind: "select", Target: "pier"},
		{Line: 8, Kind: "select", Target: "home"},
	}
	if diff := cmp.Diff(wantLinks, links); diff != "" {
		t.Fatalf("links (-want +got):\n%s", diff)
	}
}
