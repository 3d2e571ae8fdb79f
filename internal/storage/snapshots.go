/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// language=SQL
// dialect=SQLite
const insertSnapshotSQL = `INSERT INTO snapshots(path, ts, sha256, text_blob) VALUES (?, ?, ?, ?)`

// language=SQL
// dialect=SQLite
const selectLatestSnapshotSQL = `SELECT ts, sha256, text_blob FROM snapshots WHERE path = ? ORDER BY ts DESC, id DESC LIMIT 1`

// language=SQL
// dialect=SQLite
const listSnapshotsSQL = `SELECT ts, sha256, text_blob FROM snapshots WHERE path = ? ORDER BY ts DESC, id DESC LIMIT ?`

// language=SQL
// dialect=SQLite
const pruneOldSnapshotsSQL = `DELETE FROM snapshots WHERE path = ? AND id NOT IN (
	SELECT id FROM snapshots WHERE path = ? ORDER BY ts DESC, id DESC LIMIT ?
)`

// tsLayout is fixed width so that timestamps sort as text.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Snapshot is one saved version of a scenario source.
type Snapshot struct {
	Path   string
	TS     time.Time
	SHA256 string
	Text   string
}

// SaveSnapshot stores the source text of a scenario, zstd compressed. It
// does nothing and returns false when the latest snapshot has the same
// content.
func SaveSnapshot(ctx context.Context, db *sql.DB, path, text string, ts time.Time) (bool, error) {
	if path == "" {
		return false, errors.New("scenario path is required")
	}
	sum := Hash(text)
	var last string
	err := db.QueryRowContext(ctx, `SELECT sha256 FROM snapshots WHERE path = ? ORDER BY ts DESC, id DESC LIMIT 1`, path).Scan(&last)
	switch {
	case err == nil && last == sum:
		return false, nil
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return false, err
	}
	blob, err := compress([]byte(text))
	if err != nil {
		return false, err
	}
	if _, err := db.ExecContext(ctx, insertSnapshotSQL, path, ts.UTC().Format(tsLayout), sum, blob); err != nil {
		return false, fmt.Errorf("insert snapshot: %w", err)
	}
	return true, nil
}

// LatestSnapshot returns the newest snapshot of path, or ok=false if none.
func LatestSnapshot(ctx context.Context, db *sql.DB, path string) (Snapshot, bool, error) {
	row := db.QueryRowContext(ctx, selectLatestSnapshotSQL, path)
	s, err := scanSnapshot(row.Scan, path)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}
	return s, true, nil
}

// ListSnapshots returns up to limit most recent snapshots of path, newest first.
func ListSnapshots(ctx context.Context, db *sql.DB, path string, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, listSnapshotsSQL, path, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows.Scan, path)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// PruneSnapshots keeps at most keepLast snapshots of path and deletes older ones.
func PruneSnapshots(ctx context.Context, db *sql.DB, path string, keepLast int) (int64, error) {
	if keepLast <= 0 {
		return 0, nil
	}
	res, err := db.ExecContext(ctx, pruneOldSnapshotsSQL, path, path, keepLast)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanSnapshot(scan func(dest ...any) error, path string) (Snapshot, error) {
	var tsStr string
	var blob []byte
	s := Snapshot{Path: path}
	if err := scan(&tsStr, &s.SHA256, &blob); err != nil {
		return s, err
	}
	s.TS, _ = time.Parse(tsLayout, tsStr)
	text, err := decompress(blob)
	if err != nil {
		return s, err
	}
	s.Text = string(text)
	return s, nil
}
