/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0.
 */
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// SearchQuery describes a search over the index.
// Text uses SQLite FTS5 syntax (simple terms, phrases in quotes, AND/OR/NOT).
// Filters are optional. Types restrict to row kinds: text, charname, label, select.
// LineFrom/To are inclusive; 0 means unset.
// Limit/Offset implement pagination; defaults applied if zero.
type SearchQuery struct {
	Text      string
	Character string
	Scenario  string
	Types     []string
	LineFrom  int
	LineTo    int
	Limit     int
	Offset    int
}

// SearchResult represents a single match row. The FTS table is contentless,
// so Snippet is the row text taken from documents.
type SearchResult struct {
	DocID     int64
	Scenario  string
	Line      int
	Type      string
	Character string
	Snippet   string
}

// Label is a jump target declared with '#'.
type Label struct {
	Scenario    string
	Name        string
	Line        int
	Description string
}

// Link is a jump out of a scenario: a choice or a next-scenario line.
type Link struct {
	Scenario string
	Line     int
	Kind     string
	Target   string
	Cond     string
}

// SearchIndex opens the workspace index and runs Search.
func SearchIndex(ctx context.Context, root string, q SearchQuery) ([]SearchResult, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("workspace root is required")
	}
	db, err := InitOrOpenIndex(root)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return Search(ctx, db, q)
}

// Search performs full-text search with optional filters over the index.
// When q.Text is empty, it falls back to a non-FTS scan over documents with filters applied.
func Search(ctx context.Context, db *sql.DB, q SearchQuery) ([]SearchResult, error) {
	var args []any
	var sb strings.Builder
	if strings.TrimSpace(q.Text) != "" {
		sb.WriteString("SELECT d.doc_id, s.path, d.line, d.type, COALESCE(d.character,''), d.text\n")
		sb.WriteString("FROM fts_documents JOIN documents d ON fts_documents.rowid = d.doc_id\n")
		sb.WriteString("JOIN scenarios s ON s.id = d.scenario_id\n")
		sb.WriteString("WHERE fts_documents MATCH ?\n")
		args = append(args, q.Text)
	} else {
		sb.WriteString("SELECT d.doc_id, s.path, d.line, d.type, COALESCE(d.character,''), COALESCE(d.text,'')\n")
		sb.WriteString("FROM documents d JOIN scenarios s ON s.id = d.scenario_id\nWHERE 1=1\n")
	}
	if len(q.Types) > 0 {
		sb.WriteString(" AND d.type IN (" + placeholders(len(q.Types)) + ")\n")
		for _, t := range q.Types {
			args = append(args, t)
		}
	}
	if q.LineFrom > 0 && q.LineTo > 0 && q.LineTo >= q.LineFrom {
		sb.WriteString(" AND d.line BETWEEN ? AND ?\n")
		args = append(args, q.LineFrom, q.LineTo)
	} else if q.LineFrom > 0 {
		sb.WriteString(" AND d.line >= ?\n")
		args = append(args, q.LineFrom)
	} else if q.LineTo > 0 {
		sb.WriteString(" AND d.line <= ?\n")
		args = append(args, q.LineTo)
	}
	if s := strings.TrimSpace(q.Character); s != "" {
		sb.WriteString(" AND lower(d.character) = ?\n")
		args = append(args, strings.ToLower(s))
	}
	if s := strings.TrimSpace(q.Scenario); s != "" {
		sb.WriteString(" AND s.path = ?\n")
		args = append(args, s)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	sb.WriteString("ORDER BY s.path, d.line, d.doc_id\n")
	sb.WriteString("LIMIT ? OFFSET ?")
	args = append(args, limit, offset)

	rows, err := db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()
	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		var sn sql.NullString
		if err := rows.Scan(&r.DocID, &r.Scenario, &r.Line, &r.Type, &r.Character, &sn); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r.Snippet = sn.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// LabelsOf lists the labels of one scenario in line order, or of every
// scenario when path is empty.
func LabelsOf(ctx context.Context, db *sql.DB, path string) ([]Label, error) {
	q := `SELECT s.path, l.name, l.line, COALESCE(l.description,'')
		FROM labels l JOIN scenarios s ON s.id = l.scenario_id`
	var args []any
	if path != "" {
		q += ` WHERE s.path = ?`
		args = append(args, path)
	}
	q += ` ORDER BY s.path, l.line`
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("labels query: %w", err)
	}
	defer rows.Close()
	var out []Label
	for rows.Next() {
		var lb Label
		if err := rows.Scan(&lb.Scenario, &lb.Name, &lb.Line, &lb.Description); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, lb)
	}
	return out, rows.Err()
}

// WhereLinked returns the choices and next-scenario lines that jump to target.
func WhereLinked(ctx context.Context, db *sql.DB, target string) ([]Link, error) {
	if strings.TrimSpace(target) == "" {
		return nil, errors.New("target is required")
	}
	rows, err := db.QueryContext(ctx, `SELECT s.path, k.line, k.kind, k.target, COALESCE(k.cond,'')
		FROM links k JOIN scenarios s ON s.id = k.scenario_id
		WHERE k.target = ?
		ORDER BY s.path, k.line`, target)
	if err != nil {
		return nil, fmt.Errorf("where-linked query: %w", err)
	}
	defer rows.Close()
	var out []Link
	for rows.Next() {
		var lk Link
		if err := rows.Scan(&lk.Scenario, &lk.Line, &lk.Kind, &lk.Target, &lk.Cond); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, lk)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := strings.Builder{}
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("?")
	}
	return b.String()
}
