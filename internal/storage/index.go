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
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	applog "goscenario/internal/log"
	"goscenario/internal/version"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

const (
	// IndexDirName stores all per-workspace derived data under the workspace root.
	IndexDirName  = ".gsc"
	IndexFileName = "index.sqlite"

	// schemaVersion tracks the local SQLite schema for the embedded index.
	// Bump this when you perform breaking schema changes and add migrations.
	schemaVersion = 2
)

// Rebuilder repopulates a freshly created index, typically by re-parsing
// every scenario of the workspace.
type Rebuilder func(ctx context.Context, db *sql.DB) error

// IndexPath returns the full path to the workspace's embedded index database file.
func IndexPath(root string) string {
	return filepath.Join(root, IndexDirName, IndexFileName)
}

// InitOrOpenIndex ensures that the per-workspace SQLite index exists at .gsc/index.sqlite,
// opens the database, enables WAL mode, and ensures the meta/version tables exist.
// The returned *sql.DB is ready for use. Callers close it when no longer needed.
func InitOrOpenIndex(root string) (*sql.DB, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "index_init").With(
		slog.String("root", root),
	)
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("workspace root is required")
	}
	if err := os.MkdirAll(filepath.Join(root, IndexDirName), 0o755); err != nil {
		l.Error("create .gsc dir failed", slog.Any("err", err))
		return nil, fmt.Errorf("create .gsc dir: %w", err)
	}

	path := IndexPath(root)
	// Convert to forward slashes for the SQLite URI.
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		l.Error("sqlite open failed", slog.Any("err", err))
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		l.Error("enable WAL failed", slog.Any("err", err))
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON;"); err != nil {
		l.Warn("enable foreign_keys failed", slog.Any("err", err))
	}

	if err := ensureMetaAndVersion(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure meta/version failed", slog.Any("err", err))
		return nil, err
	}
	if err := ensureIndexSchema(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure index schema failed", slog.Any("err", err))
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		l.Error("run migrations failed", slog.Any("err", err))
		return nil, err
	}

	l.Debug("index ready", slog.String("path", path))
	return db, nil
}

func ensureMetaAndVersion(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS version (
			id          INTEGER PRIMARY KEY CHECK(id=1),
			schema      INTEGER NOT NULL,
			app         TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	appv := version.String()
	var curSchema int
	err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&curSchema)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.ExecContext(ctx, `INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, ?, ?, ?, ?)`, schemaVersion, appv, now, now); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		// keep the stored schema for migrations
		if _, err := db.ExecContext(ctx, `UPDATE version SET app=?, updated_at=? WHERE id=1`, appv, now); err != nil {
			return fmt.Errorf("update version: %w", err)
		}
	}
	return nil
}

// SchemaVersion returns the schema number recorded in the index.
func SchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var cur int
	if err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return cur, nil
}

// runMigrations applies incremental schema migrations up to schemaVersion.
func runMigrations(ctx context.Context, db *sql.DB) error {
	cur, err := SchemaVersion(ctx, db)
	if err != nil {
		return err
	}
	for cur < schemaVersion {
		next := cur + 1
		switch next {
		case 2:
			// lookup indexes for where-linked and type filters
			tx, err := db.BeginTx(ctx, nil)
			if err != nil {
				return fmt.Errorf("begin migration %d: %w", next, err)
			}
			stmts := []string{
				`CREATE INDEX IF NOT EXISTS idx_links_target ON links(target);`,
				`CREATE INDEX IF NOT EXISTS idx_documents_type ON documents(type);`,
			}
			for _, q := range stmts {
				if _, err := tx.ExecContext(ctx, q); err != nil {
					_ = tx.Rollback()
					return fmt.Errorf("migration %d stmt failed: %w", next, err)
				}
			}
			if _, err := tx.ExecContext(ctx, `UPDATE version SET schema=?, updated_at=? WHERE id=1`, next, time.Now().UTC().Format(time.RFC3339)); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d update version: %w", next, err)
			}
			if err := tx.Commit(); err != nil {
				return fmt.Errorf("migration %d commit: %w", next, err)
			}
			// best-effort, outside the tx
			_, _ = db.ExecContext(ctx, `INSERT INTO fts_documents(fts_documents) VALUES('optimize')`)
		}
		cur = next
	}
	return nil
}

// ensureIndexSchema creates core index tables and FTS structures if they do not exist.
func ensureIndexSchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS scenarios (
			id         INTEGER PRIMARY KEY,
			path       TEXT    NOT NULL UNIQUE,
			sha256     TEXT    NOT NULL,
			lines      INTEGER NOT NULL,
			parsed_at  TEXT    NOT NULL,
			doc_blob   BLOB    NOT NULL
		);`,

		// One row per searchable unit: a text run, a character cue, a label, a choice.
		`CREATE TABLE IF NOT EXISTS documents (
			doc_id      INTEGER PRIMARY KEY,
			scenario_id INTEGER NOT NULL,
			line        INTEGER NOT NULL,
			type        TEXT    NOT NULL,
			character   TEXT,
			text        TEXT,
			FOREIGN KEY(scenario_id) REFERENCES scenarios(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_documents_scenario ON documents(scenario_id, line);`,

		// Contentless FTS5 index fed from documents via triggers.
		`CREATE VIRTUAL TABLE IF NOT EXISTS fts_documents USING fts5(
			text,
			content='',
			tokenize = 'unicode61'
		);`,

		`CREATE TABLE IF NOT EXISTS labels (
			scenario_id INTEGER NOT NULL,
			name        TEXT    NOT NULL,
			line        INTEGER NOT NULL,
			description TEXT,
			FOREIGN KEY(scenario_id) REFERENCES scenarios(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_labels_scenario ON labels(scenario_id, line);`,

		// Jumps out of a scenario: choices and next-scenario lines.
		`CREATE TABLE IF NOT EXISTS links (
			scenario_id INTEGER NOT NULL,
			line        INTEGER NOT NULL,
			kind        TEXT    NOT NULL,
			target      TEXT    NOT NULL,
			cond        TEXT,
			FOREIGN KEY(scenario_id) REFERENCES scenarios(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_links_target ON links(target);`,
		`CREATE INDEX IF NOT EXISTS idx_documents_type ON documents(type);`,

		// Source history, independent of the scenarios rows so it survives re-indexing.
		`CREATE TABLE IF NOT EXISTS snapshots (
			id        INTEGER PRIMARY KEY,
			path      TEXT    NOT NULL,
			ts        TEXT    NOT NULL,
			sha256    TEXT    NOT NULL,
			text_blob BLOB    NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_path_ts ON snapshots(path, ts);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure index schema: %w", err)
		}
	}
	triggers := []string{
		`CREATE TRIGGER IF NOT EXISTS documents_ai AFTER INSERT ON documents BEGIN
			INSERT INTO fts_documents(rowid, text) VALUES (new.doc_id, new.text);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS documents_ad AFTER DELETE ON documents BEGIN
			INSERT INTO fts_documents(fts_documents, rowid, text) VALUES ('delete', old.doc_id, old.text);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS documents_au AFTER UPDATE OF text ON documents BEGIN
			INSERT INTO fts_documents(fts_documents, rowid, text) VALUES ('delete', old.doc_id, old.text);
			INSERT INTO fts_documents(rowid, text) VALUES (new.doc_id, new.text);
		END;`,
	}
	for _, q := range triggers {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure fts triggers: %w", err)
		}
	}
	return nil
}

// DetectAndRebuildIndex checks for corruption or a missing schema and
// rebuilds the index with rebuild if needed. It returns true when a rebuild
// was performed. The damaged file is kept in .gsc/backups.
func DetectAndRebuildIndex(ctx context.Context, root string, rebuild Rebuilder) (bool, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "index_check").With(slog.String("root", root))
	path := IndexPath(root)
	db, err := InitOrOpenIndex(root)
	if err != nil {
		l.Warn("index unreadable, rebuilding", slog.Any("err", err))
		if rbErr := replaceIndex(ctx, root, rebuild); rbErr != nil {
			return false, fmt.Errorf("rebuild after open failure: %w (open err: %v)", rbErr, err)
		}
		return true, nil
	}
	needs := false
	var chk string
	if err := db.QueryRowContext(ctx, `PRAGMA quick_check;`).Scan(&chk); err != nil || !strings.Contains(strings.ToLower(chk), "ok") {
		needs = true
	}
	if !needs {
		if _, err := db.ExecContext(ctx, `SELECT 1 FROM documents LIMIT 1;`); err != nil {
			needs = true
		}
	}
	_ = db.Close()
	if !needs {
		return false, nil
	}
	l.Warn("index failed quick_check, rebuilding", slog.String("path", path))
	if err := replaceIndex(ctx, root, rebuild); err != nil {
		return false, err
	}
	return true, nil
}

func replaceIndex(ctx context.Context, root string, rebuild Rebuilder) error {
	path := IndexPath(root)
	backupIndexFile(path)
	for _, suffix := range []string{"", "-wal", "-shm"} {
		_ = os.Remove(path + suffix)
	}
	db, err := InitOrOpenIndex(root)
	if err != nil {
		return err
	}
	defer db.Close()
	if rebuild == nil {
		return nil
	}
	return rebuild(ctx, db)
}

// backupIndexFile copies the current index file into a timestamped backup in .gsc/backups.
func backupIndexFile(indexPath string) {
	bdir := filepath.Join(filepath.Dir(indexPath), "backups")
	_ = os.MkdirAll(bdir, 0o755)
	stamp := time.Now().Format("20060102-150405")
	bak := filepath.Join(bdir, fmt.Sprintf("%s.%s.bak", filepath.Base(indexPath), stamp))
	if data, err := os.ReadFile(indexPath); err == nil {
		_ = os.WriteFile(bak, data, 0o644)
	}
}

// ClearIndex removes every scenario, document, label and link. Snapshots
// are kept.
func ClearIndex(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	for _, q := range []string{
		"DELETE FROM links;",
		"DELETE FROM labels;",
		"DELETE FROM documents;",
		"DELETE FROM scenarios;",
	} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("clear index: %w", err)
		}
	}
	return tx.Commit()
}
