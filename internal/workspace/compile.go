/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package workspace

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"goscenario/internal/config"
	applog "goscenario/internal/log"
	"goscenario/internal/script"
	"goscenario/internal/storage"
)

// CompileOptions controls CompileAll.
type CompileOptions struct {
	// Parser settings; the manifest overrides them.
	Parser config.ParserConfig
	// Force re-parses files whose source hash matches the index.
	Force bool
	// NoIndex skips the SQLite index and source history.
	NoIndex bool
	// Workers bounds parallel parsing; NumCPU when zero.
	Workers int
}

// Result is the outcome for one scenario file.
type Result struct {
	Path        string
	Output      string
	Lines       int
	Skipped     bool
	Duration    time.Duration
	Diagnostics []script.Diagnostic
	Err         error

	doc  *script.Document
	text string
	hash string
}

// OK reports whether the file compiled (or was up to date).
func (r Result) OK() bool { return r.Err == nil }

// CompileAll parses every source in parallel, writes the compiled JSON
// documents and updates the index. Parse failures are reported per file in
// the results; the returned error is for failures that stop the whole run.
func (ws *Workspace) CompileAll(ctx context.Context, opts CompileOptions) ([]Result, error) {
	l := applog.WithOperation(applog.WithComponent("workspace"), "compile").With(slog.String("workspace", ws.Manifest.Name))
	paths, err := ws.Sources()
	if err != nil {
		return nil, err
	}
	pc := ws.ParserConfig(opts.Parser)
	// fail early on a bad sign_words table instead of once per file
	if _, err := pc.NewParser(nil); err != nil {
		return nil, err
	}

	var db *sql.DB
	known := map[string]string{}
	if !opts.NoIndex {
		db, err = storage.InitOrOpenIndex(ws.Root)
		if err != nil {
			return nil, err
		}
		defer db.Close()
		infos, err := storage.ListScenarios(ctx, db)
		if err != nil {
			return nil, err
		}
		for _, si := range infos {
			known[si.Path] = si.SHA256
		}
	}

	results := make([]Result, len(paths))
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, rel := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = ws.compileOne(applog.WithScenario(gctx, rel), l, rel, pc, known, opts.Force)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}

	failed := 0
	for i := range results {
		r := &results[i]
		if r.Err != nil {
			failed++
			continue
		}
		if db == nil || r.Skipped {
			continue
		}
		if err := storage.IndexScenario(ctx, db, r.Path, r.text, r.doc); err != nil {
			return results, fmt.Errorf("index %s: %w", r.Path, err)
		}
		if _, err := storage.SaveSnapshot(ctx, db, r.Path, r.text, time.Now()); err != nil {
			return results, fmt.Errorf("snapshot %s: %w", r.Path, err)
		}
	}
	if db != nil {
		current := make(map[string]bool, len(paths))
		for _, p := range paths {
			current[p] = true
		}
		for p := range known {
			if !current[p] {
				if _, err := storage.RemoveScenario(ctx, db, p); err != nil {
					return results, fmt.Errorf("remove %s: %w", p, err)
				}
				l.Info("scenario removed from index", slog.String("path", p))
			}
		}
	}
	l.Info("compile finished", slog.Int("files", len(results)), slog.Int("failed", failed))
	return results, nil
}

func (ws *Workspace) compileOne(ctx context.Context, l *slog.Logger, rel string, pc config.ParserConfig, known map[string]string, force bool) Result {
	start := time.Now()
	r := Result{Path: rel, Output: ws.CompiledPath(rel)}
	text, err := ws.Loader(pc.Encoding).Load(ws.Abs(rel))
	if err != nil {
		r.Err = err
		l.ErrorContext(ctx, "load failed", slog.Any("err", err))
		return r
	}
	r.text, r.hash = text, storage.Hash(text)
	if !force && known[rel] == r.hash {
		if exists, _ := afero.Exists(ws.fs, r.Output); exists {
			r.Skipped = true
			l.DebugContext(ctx, "unchanged, skipped")
			return r
		}
	}

	p, err := pc.NewParser(applog.WithComponent("script").With(slog.String("scenario", rel)))
	if err != nil {
		r.Err = err
		return r
	}
	doc, err := p.ParseText(text)
	r.Diagnostics = p.Diagnostics()
	r.Duration = time.Since(start)
	if err != nil {
		r.Err = err
		l.WarnContext(ctx, "parse failed", slog.Any("err", err))
		return r
	}
	r.doc, r.Lines = doc, doc.Len()
	if _, err := ws.WriteCompiled(rel, doc); err != nil {
		r.Err = err
		l.ErrorContext(ctx, "write failed", slog.Any("err", err))
		return r
	}
	l.DebugContext(ctx, "compiled", slog.Int("lines", r.Lines), slog.Duration("took", r.Duration))
	return r
}

// WriteCompiled writes the JSON document of a scenario into the output
// directory and returns its path.
func (ws *Workspace) WriteCompiled(rel string, doc *script.Document) (string, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", rel, err)
	}
	out := ws.CompiledPath(rel)
	if err := writeAtomic(ws.fs, out, append(data, '\n')); err != nil {
		return "", fmt.Errorf("write %s: %w", out, err)
	}
	return out, nil
}

// Reindex parses every source and indexes it into db. It is the rebuild
// step for storage.DetectAndRebuildIndex; files that fail to parse are
// skipped.
func (ws *Workspace) Reindex(pc config.ParserConfig) storage.Rebuilder {
	return func(ctx context.Context, db *sql.DB) error {
		paths, err := ws.Sources()
		if err != nil {
			return err
		}
		cfg := ws.ParserConfig(pc)
		var errs []error
		for _, rel := range paths {
			text, err := ws.Loader(cfg.Encoding).Load(ws.Abs(rel))
			if err != nil {
				errs = append(errs, err)
				continue
			}
			p, err := cfg.NewParser(nil)
			if err != nil {
				return err
			}
			doc, err := p.ParseText(text)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", rel, err))
				continue
			}
			if err := storage.IndexScenario(ctx, db, rel, text, doc); err != nil {
				return err
			}
		}
		if len(errs) > 0 {
			applog.WithComponent("workspace").Warn("reindex skipped files", slog.Any("err", errors.Join(errs...)))
		}
		return nil
	}
}
