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
	"strings"
	"testing"
	"time"
)

func TestSnapshotsCRUD(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	db, err := InitOrOpenIndex(root)
	if err != nil {
		t.Fatalf("InitOrOpenIndex error: %v", err)
	}
	defer db.Close()

	const path = "scenes/a.sce"
	if _, ok, err := LatestSnapshot(ctx, db, path); err != nil || ok {
		t.Fatalf("LatestSnapshot on empty history = %v, %v", ok, err)
	}
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	long := strings.Repeat("Hello world.\n", 200)
	saved, err := SaveSnapshot(ctx, db, path, long, base)
	if err != nil || !saved {
		t.Fatalf("SaveSnapshot = %v, %v", saved, err)
	}
	// same content again is skipped
	if saved, _ := SaveSnapshot(ctx, db, path, long, base.Add(time.Second)); saved {
		t.Fatalf("identical snapshot was stored")
	}
	s, ok, err := LatestSnapshot(ctx, db, path)
	if err != nil || !ok || s.Text != long || !s.TS.Equal(base) || s.SHA256 != Hash(long) {
		t.Fatalf("LatestSnapshot = %+v, %v, %v", s.TS, ok, err)
	}

	for i := 0; i < 5; i++ {
		text := string(rune('a' + i))
		if _, err := SaveSnapshot(ctx, db, path, text, base.Add(time.Duration(i+1)*time.Minute)); err != nil {
			t.Fatalf("SaveSnapshot %d: %v", i, err)
		}
	}
	// another scenario's history is separate
	if _, err := SaveSnapshot(ctx, db, "scenes/b.sce", "b", base); err != nil {
		t.Fatal(err)
	}
	list, err := ListSnapshots(ctx, db, path, 10)
	if err != nil || len(list) != 6 {
		t.Fatalf("ListSnapshots got %d err %v", len(list), err)
	}
	if list[0].Text != "e" {
		t.Fatalf("newest snapshot = %q, want %q", list[0].Text, "e")
	}
	n, err := PruneSnapshots(ctx, db, path, 3)
	if err != nil {
		t.Fatalf("PruneSnapshots: %v", err)
	}
	if n != 3 {
		t.Fatalf("deleted %d, want 3", n)
	}
	list, err = ListSnapshots(ctx, db, path, 10)
	if err != nil || len(list) != 3 {
		t.Fatalf("ListSnapshots after prune got %d err %v", len(list), err)
	}
	if other, _ := ListSnapshots(ctx, db, "scenes/b.sce", 10); len(other) != 1 {
		t.Fatalf("prune touched another scenario: %d", len(other))
	}
}

func TestCompressRoundTrip(t *testing.T) {
	in := []byte(strings.Repeat("「こんにちは」", 100))
	blob, err := compress(in)
	if err != nil {
		t.Fatal(err)
	}
	if len(blob) >= len(in) {
		t.Fatalf("compressed %d bytes to %d", len(in), len(blob))
	}
	out, err := decompress(blob)
	if err != nil || string(out) != string(in) {
		t.Fatalf("decompress mismatch: %v", err)
	}
	if _, err := decompress([]byte("not zstd")); err == nil {
		t.Fatalf("expected error for garbage input")
	}
}
