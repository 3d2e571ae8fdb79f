/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package backend

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"goscenario/internal/script"
	"goscenario/internal/storage"
)

var (
	ErrNotFound    = errors.New("scenario not found")
	ErrInvalidName = errors.New("invalid scenario name")
)

// Scenario is a catalog entry.
type Scenario struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ScenarioVersion is one published document.
type ScenarioVersion struct {
	Name        string           `json:"name"`
	Version     int64            `json:"version"`
	Lines       int              `json:"lines"`
	SHA256      string           `json:"sha256"`
	PublishedBy string           `json:"published_by,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	Document    *script.Document `json:"document"`
}

type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

type PublishResponse struct {
	Name    string `json:"name"`
	Version int64  `json:"version"`
}

// Publish stores doc as the next version of the named scenario and
// replaces its searchable rows. Publishing a document identical to the
// latest version returns that version unchanged.
func Publish(ctx context.Context, db *sql.DB, name string, doc *script.Document) (int64, error) {
	return PublishAs(ctx, db, name, doc, "")
}

// PublishAs is Publish recording the publishing subject.
func PublishAs(ctx context.Context, db *sql.DB, name string, doc *script.Document, subject string) (int64, error) {
	name = strings.Trim(strings.TrimSpace(name), "/")
	if name == "" || strings.Contains(name, "..") {
		return 0, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if doc == nil {
		return 0, errors.New("nil document")
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return 0, fmt.Errorf("encode document: %w", err)
	}
	sum := storage.Hash(string(data))

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id, cur int64
	if err := tx.QueryRowContext(ctx, `INSERT INTO scenarios(name) VALUES($1)
		ON CONFLICT(name) DO UPDATE SET name = excluded.name
		RETURNING id, version`, name).Scan(&id, &cur); err != nil {
		return 0, fmt.Errorf("upsert scenario: %w", err)
	}
	var latest string
	err = tx.QueryRowContext(ctx, `SELECT sha256 FROM scenario_versions WHERE scenario_id=$1 AND version=$2`, id, cur).Scan(&latest)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("latest version: %w", err)
	}
	if latest == sum {
		return cur, tx.Commit()
	}

	next := cur + 1
	var by sql.NullString
	if subject != "" {
		by = sql.NullString{String: subject, Valid: true}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO scenario_versions(scenario_id, version, lines, sha256, document, published_by) VALUES($1,$2,$3,$4,$5,$6)`,
		id, next, doc.Len(), sum, string(data), by); err != nil {
		return 0, fmt.Errorf("insert version: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE scenarios SET version=$2, updated_at=now() WHERE id=$1`, id, next); err != nil {
		return 0, fmt.Errorf("update scenario: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE scenario_id=$1`, id); err != nil {
		return 0, fmt.Errorf("clear documents: %w", err)
	}
	rows, _, _ := storage.Extract(doc)
	for _, r := range rows {
		var sp sql.NullString
		if r.Character != "" {
			sp = sql.NullString{String: r.Character, Valid: true}
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO documents(scenario_id, line, doc_type, speaker, raw_text) VALUES($1,$2,$3,$4,$5)`,
			id, r.Line, r.Type, sp, r.Text); err != nil {
			return 0, fmt.Errorf("insert document row: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return next, nil
}

// ListScenarios returns the catalog, most recently updated first.
func ListScenarios(ctx context.Context, db *sql.DB) ([]Scenario, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name, version, updated_at FROM scenarios WHERE version > 0 ORDER BY updated_at DESC, name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var list []Scenario
	for rows.Next() {
		var s Scenario
		if err := rows.Scan(&s.ID, &s.Name, &s.Version, &s.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// GetScenario returns the given version of a scenario, or the latest one
// when version is zero.
func GetScenario(ctx context.Context, db *sql.DB, name string, version int64) (*ScenarioVersion, error) {
	q := `SELECT s.name, v.version, v.lines, v.sha256, COALESCE(v.published_by,''), v.created_at, v.document
		FROM scenario_versions v JOIN scenarios s ON s.id = v.scenario_id
		WHERE s.name = $1`
	args := []any{name}
	if version > 0 {
		q += ` AND v.version = $2`
		args = append(args, version)
	}
	q += ` ORDER BY v.version DESC LIMIT 1`
	var (
		sv  ScenarioVersion
		raw []byte
	)
	err := db.QueryRowContext(ctx, q, args...).Scan(&sv.Name, &sv.Version, &sv.Lines, &sv.SHA256, &sv.PublishedBy, &sv.CreatedAt, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	sv.Document = &script.Document{}
	if err := json.Unmarshal(raw, sv.Document); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return &sv, nil
}

// SearchPG runs a search over the published documents using tsvector and
// the same filters as the local index, so results compare with storage.Search.
func SearchPG(ctx context.Context, db *sql.DB, q storage.SearchQuery) ([]storage.SearchResult, error) {
	var (
		args []any
		b    strings.Builder
	)
	place := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	b.WriteString("SELECT d.id, s.name, d.line, d.doc_type, COALESCE(d.speaker,''), d.raw_text ")
	b.WriteString("FROM documents d JOIN scenarios s ON s.id = d.scenario_id WHERE TRUE ")
	if t := strings.TrimSpace(q.Text); t != "" {
		b.WriteString(" AND d.search_vector @@ plainto_tsquery('simple', " + place(t) + ") ")
	}
	if len(q.Types) > 0 {
		b.WriteString(" AND d.doc_type = ANY (" + place(q.Types) + ") ")
	}
	if q.LineFrom > 0 && q.LineTo > 0 && q.LineTo >= q.LineFrom {
		b.WriteString(" AND d.line BETWEEN " + place(q.LineFrom) + " AND " + place(q.LineTo) + " ")
	} else if q.LineFrom > 0 {
		b.WriteString(" AND d.line >= " + place(q.LineFrom) + " ")
	} else if q.LineTo > 0 {
		b.WriteString(" AND d.line <= " + place(q.LineTo) + " ")
	}
	if c := strings.TrimSpace(q.Character); c != "" {
		b.WriteString(" AND lower(d.speaker) = " + place(strings.ToLower(c)) + " ")
	}
	if s := strings.TrimSpace(q.Scenario); s != "" {
		b.WriteString(" AND s.name = " + place(s) + " ")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	b.WriteString(" ORDER BY s.name, d.line, d.id")
	b.WriteString(" LIMIT " + place(limit) + " OFFSET " + place(offset))

	rows, err := db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search pg query: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []storage.SearchResult
	for rows.Next() {
		var r storage.SearchResult
		if err := rows.Scan(&r.DocID, &r.Scenario, &r.Line, &r.Type, &r.Character, &r.Snippet); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
