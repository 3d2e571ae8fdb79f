/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package backend is the scenario catalog: a Postgres store of published
// documents, the HTTP server in front of it and a client for that server.
package backend

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"goscenario/internal/config"
	applog "goscenario/internal/log"
	"goscenario/internal/script"
	"goscenario/internal/storage"
	"goscenario/internal/version"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	EnvAuthSecret = "GSC_AUTH_SECRET"
	// EnvAuthKey, when set, must be presented to obtain a token.
	EnvAuthKey = "GSC_AUTH_KEY"

	devSecret    = "dev-secret-change-me"
	maxBodyBytes = 8 << 20
)

// Config holds server configuration.
type Config struct {
	DBURL string
	Addr  string // http bind address, e.g., ":8080"
	// Secret signs API tokens.
	Secret string
	// AccessKey is required by POST /api/auth/token when not empty.
	AccessKey string
}

// ConfigFrom builds the server configuration from the application config
// and the GSC_AUTH_* environment.
func ConfigFrom(app config.AppConfig) (Config, error) {
	dburl, err := app.DatabaseURL()
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		DBURL:     dburl,
		Addr:      app.Backend.Listen,
		Secret:    os.Getenv(EnvAuthSecret),
		AccessKey: os.Getenv(EnvAuthKey),
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	return cfg, nil
}

// OpenDB connects to the catalog database and applies pending migrations.
func OpenDB(ctx context.Context, dburl string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dburl)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := applyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Server serves the catalog API.
type Server struct {
	db        *sql.DB
	secret    string
	accessKey string
	log       *slog.Logger
}

// NewServer returns a server on db. An empty secret falls back to an
// insecure development secret.
func NewServer(db *sql.DB, cfg Config) *Server {
	s := &Server{db: db, secret: cfg.Secret, accessKey: cfg.AccessKey, log: applog.WithComponent("backend")}
	if s.secret == "" {
		s.secret = devSecret
		s.log.Warn("GSC_AUTH_SECRET not set; using insecure dev secret")
	}
	return s
}

// Serve runs the HTTP server until ctx is cancelled.
func Serve(ctx context.Context, cfg Config) error {
	db, err := OpenDB(ctx, cfg.DBURL)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	s := NewServer(db, cfg)
	srv := &http.Server{Addr: cfg.Addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Info("catalog server listening", slog.String("addr", cfg.Addr))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	s.log.Info("catalog server stopped")
	return nil
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("goscenario " + version.String()))
	})
	mux.HandleFunc("POST /api/auth/token", s.handleToken)
	mux.HandleFunc("GET /api/scenarios", withAuth(s.secret, s.handleList))
	mux.HandleFunc("GET /api/scenarios/{name...}", withAuth(s.secret, s.handleGet))
	mux.HandleFunc("PUT /api/scenarios/{name...}", withAuth(s.secret, s.handlePublish))
	mux.HandleFunc("GET /api/search", withAuth(s.secret, s.handleSearch))
	return mux
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if s.db == nil || s.db.PingContext(ctx) != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("db not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// POST /api/auth/token with optional JSON body { "subject", "ttl_seconds", "key" }
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Subject    string `json:"subject"`
		TTLSeconds int64  `json:"ttl_seconds"`
		Key        string `json:"key"`
	}
	b, _ := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	_ = r.Body.Close()
	_ = json.Unmarshal(b, &req)
	if s.accessKey != "" && req.Key != s.accessKey {
		writeError(w, http.StatusForbidden, errors.New("access key rejected"))
		return
	}
	if req.Subject == "" {
		req.Subject = "dev"
	}
	if req.TTLSeconds <= 0 || req.TTLSeconds > 24*3600 {
		req.TTLSeconds = 3600
	}
	exp := time.Now().Add(time.Duration(req.TTLSeconds) * time.Second)
	tok, err := signToken(s.secret, req.Subject, exp)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.log.Info("token issued", slog.String("subject", req.Subject))
	writeJSON(w, http.StatusOK, TokenResponse{Token: tok, ExpiresAt: exp.UTC().Format(time.RFC3339)})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request, _ string) {
	list, err := ListScenarios(r.Context(), s.db)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if list == nil {
		list = []Scenario{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request, _ string) {
	name := r.PathValue("name")
	ver := int64(0)
	if v := r.URL.Query().Get("version"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid version %q", v))
			return
		}
		ver = n
	}
	sv, err := GetScenario(r.Context(), s.db, name, ver)
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, sv)
	}
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request, sub string) {
	name := r.PathValue("name")
	var doc script.Document
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&doc); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode document: %w", err))
		return
	}
	ver, err := PublishAs(r.Context(), s.db, name, &doc, sub)
	if err != nil {
		if errors.Is(err, ErrInvalidName) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.log.Info("scenario published", slog.String("name", name), slog.Int64("version", ver), slog.String("subject", sub))
	writeJSON(w, http.StatusOK, PublishResponse{Name: name, Version: ver})
}

// GET /api/search?q=&type=&character=&scenario=&from=&to=&limit=&offset=
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request, _ string) {
	v := r.URL.Query()
	q := storage.SearchQuery{
		Text:      v.Get("q"),
		Character: v.Get("character"),
		Scenario:  v.Get("scenario"),
		Types:     v["type"],
	}
	for key, dst := range map[string]*int{"from": &q.LineFrom, "to": &q.LineTo, "limit": &q.Limit, "offset": &q.Offset} {
		if raw := v.Get(key); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, fmt.Errorf("invalid %s %q", key, raw))
				return
			}
			*dst = n
		}
	}
	res, err := SearchPG(r.Context(), s.db, q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if res == nil {
		res = []storage.SearchResult{}
	}
	writeJSON(w, http.StatusOK, res)
}

// applyMigrations applies embedded SQL migrations in filename order.
func applyMigrations(ctx context.Context, db *sql.DB) error {
	l := applog.WithOperation(applog.WithComponent("backend"), "migrate")
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if name := e.Name(); strings.HasSuffix(strings.ToLower(name), ".sql") {
			files = append(files, name)
		}
	}
	sort.Strings(files)

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	applied := map[int64]bool{}
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("select schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			_ = rows.Close()
			return err
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	for _, fname := range files {
		ver, err := parseVersion(fname)
		if err != nil {
			return err
		}
		if applied[ver] {
			continue
		}
		b, err := migrationsFS.ReadFile(path.Join("migrations", fname))
		if err != nil {
			return err
		}
		l.Info("applying migration", slog.String("file", fname))
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(b)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply %s: %w", fname, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, name) VALUES($1,$2)`, ver, fname); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record %s: %w", fname, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

func parseVersion(name string) (int64, error) {
	base := path.Base(name)
	prefix, _, _ := strings.Cut(base, "_")
	v, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse version from %s: %w", name, err)
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}
