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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	applog "goscenario/internal/log"
	"goscenario/internal/script"
)

// ErrNotIndexed is returned for a scenario path the index does not know.
var ErrNotIndexed = errors.New("scenario is not indexed")

// Document row types.
const (
	TypeText     = "text"
	TypeCharName = "charname"
	TypeLabel    = "label"
	TypeSelect   = "select"
)

// ScenarioInfo describes one indexed scenario.
type ScenarioInfo struct {
	Path     string
	SHA256   string
	Lines    int
	ParsedAt time.Time
}

// Row is one searchable unit of a document: a text run, a character cue,
// a label or a choice.
type Row struct {
	Line      int
	Type      string
	Character string
	Text      string
}

// IndexScenario stores the compiled document of path and replaces its
// searchable rows, labels and links. source is the decoded file text; only
// its hash is kept.
func IndexScenario(ctx context.Context, db *sql.DB, path, source string, doc *script.Document) error {
	l := applog.WithOperation(applog.WithComponent("storage"), "index_scenario")
	if strings.TrimSpace(path) == "" {
		return errors.New("scenario path is required")
	}
	if doc == nil {
		return errors.New("nil document")
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	blob, err := compress(data)
	if err != nil {
		return err
	}
	docs, labels, links := Extract(doc)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(tsLayout)
	if _, err := tx.ExecContext(ctx, `INSERT INTO scenarios(path, sha256, lines, parsed_at, doc_blob) VALUES(?,?,?,?,?)
		ON CONFLICT(path) DO UPDATE SET sha256=excluded.sha256, lines=excluded.lines, parsed_at=excluded.parsed_at, doc_blob=excluded.doc_blob`,
		path, Hash(source), doc.Len(), now, blob); err != nil {
		return fmt.Errorf("upsert scenario: %w", err)
	}
	var id int64
	if err := tx.QueryRowContext(ctx, `SELECT id FROM scenarios WHERE path=?`, path).Scan(&id); err != nil {
		return fmt.Errorf("scenario id: %w", err)
	}
	if err := deleteRows(ctx, tx, id); err != nil {
		return err
	}

	insDoc, err := tx.PrepareContext(ctx, `INSERT INTO documents(scenario_id, line, type, character, text) VALUES(?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer insDoc.Close()
	for _, r := range docs {
		var ch sql.NullString
		if r.Character != "" {
			ch = sql.NullString{String: r.Character, Valid: true}
		}
		if _, err := insDoc.ExecContext(ctx, id, r.Line, r.Type, ch, r.Text); err != nil {
			return fmt.Errorf("insert document: %w", err)
		}
	}
	for _, lb := range labels {
		if _, err := tx.ExecContext(ctx, `INSERT INTO labels(scenario_id, name, line, description) VALUES(?,?,?,?)`, id, lb.Name, lb.Line, lb.Description); err != nil {
			return fmt.Errorf("insert label: %w", err)
		}
	}
	for _, lk := range links {
		if _, err := tx.ExecContext(ctx, `INSERT INTO links(scenario_id, line, kind, target, cond) VALUES(?,?,?,?,?)`, id, lk.Line, lk.Kind, lk.Target, lk.Cond); err != nil {
			return fmt.Errorf("insert link: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	l.Debug("scenario indexed", slog.String("path", path), slog.Int("rows", len(docs)), slog.Int("labels", len(labels)), slog.Int("links", len(links)))
	return nil
}

func deleteRows(ctx context.Context, tx *sql.Tx, id int64) error {
	for _, q := range []string{
		`DELETE FROM documents WHERE scenario_id=?`,
		`DELETE FROM labels WHERE scenario_id=?`,
		`DELETE FROM links WHERE scenario_id=?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return fmt.Errorf("clear scenario rows: %w", err)
		}
	}
	return nil
}

// RemoveScenario drops a scenario and its rows. It reports whether the
// scenario was indexed.
func RemoveScenario(ctx context.Context, db *sql.DB, path string) (bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	var id int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM scenarios WHERE path=?`, path).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := deleteRows(ctx, tx, id); err != nil {
		return false, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM scenarios WHERE id=?`, id); err != nil {
		return false, fmt.Errorf("delete scenario: %w", err)
	}
	return true, tx.Commit()
}

// ScenarioHash returns the source hash stored for path.
func ScenarioHash(ctx context.Context, db *sql.DB, path string) (string, bool, error) {
	var sum string
	err := db.QueryRowContext(ctx, `SELECT sha256 FROM scenarios WHERE path=?`, path).Scan(&sum)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return sum, true, nil
}

// ListScenarios returns every indexed scenario ordered by path.
func ListScenarios(ctx context.Context, db *sql.DB) ([]ScenarioInfo, error) {
	rows, err := db.QueryContext(ctx, `SELECT path, sha256, lines, parsed_at FROM scenarios ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}
	defer rows.Close()
	var out []ScenarioInfo
	for rows.Next() {
		var si ScenarioInfo
		var ts string
		if err := rows.Scan(&si.Path, &si.SHA256, &si.Lines, &ts); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		si.ParsedAt, _ = time.Parse(tsLayout, ts)
		out = append(out, si)
	}
	return out, rows.Err()
}

// LoadDocument returns the compiled document stored for path.
func LoadDocument(ctx context.Context, db *sql.DB, path string) (*script.Document, error) {
	var blob []byte
	err := db.QueryRowContext(ctx, `SELECT doc_blob FROM scenarios WHERE path=?`, path).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotIndexed, path)
	}
	if err != nil {
		return nil, err
	}
	data, err := decompress(blob)
	if err != nil {
		return nil, err
	}
	var doc script.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return &doc, nil
}

// Extract derives the searchable rows of a document. A character cue sets
// the speaker of the text lines that follow it, up to the next cue or blank
// line.
func Extract(doc *script.Document) ([]Row, []Label, []Link) {
	var (
		docs    []Row
		labels  []Label
		links   []Link
		speaker string
	)
	for i, v := range doc.Lines() {
		line := i + 1
		switch v.Kind() {
		case script.KindInt:
			speaker = ""
		case script.KindArray:
			if text := strings.TrimSpace(script.LineText(v)); text != "" {
				docs = append(docs, Row{Line: line, Type: TypeText, Character: speaker, Text: text})
			}
		case script.KindDict:
			rec := v.Dict()
			switch rec.Str(script.KeyName) {
			case script.TagCharName:
				attr, _ := rec.Get(script.KeyAttribute)
				speaker = attr.Dict().Str(script.KeyName)
				text := strings.TrimSpace(speaker + " " + attr.Dict().Str(script.KeyAlias))
				if text != "" {
					docs = append(docs, Row{Line: line, Type: TypeCharName, Character: speaker, Text: text})
				}
			case script.TagLabel:
				name, desc := rec.Str(script.KeyLabel), rec.Str(script.KeyDescription)
				if name != "" {
					labels = append(labels, Label{Name: name, Line: line, Description: desc})
				}
				if text := strings.TrimSpace(name + " " + desc); text != "" {
					docs = append(docs, Row{Line: line, Type: TypeLabel, Text: text})
				}
			case script.TagSelect:
				if text := rec.Str(script.KeyText); text != "" {
					docs = append(docs, Row{Line: line, Type: TypeSelect, Text: text})
				}
				if target := rec.Str(script.KeyTarget); target != "" {
					links = append(links, Link{Line: line, Kind: script.TagSelect, Target: target})
				}
			case script.TagNext:
				if target := rec.Str(script.KeyTarget); target != "" {
					links = append(links, Link{Line: line, Kind: script.TagNext, Target: target, Cond: rec.Str(script.KeyCond)})
				}
			}
		}
	}
	return docs, labels, links
}
