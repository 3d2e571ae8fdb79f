/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"goscenario/internal/backend"
	"goscenario/internal/config"
	"goscenario/internal/export"
	"goscenario/internal/storage"
	"goscenario/internal/telemetry"
	"goscenario/internal/workspace"
)

func cmdInit() *cobra.Command {
	var m workspace.Manifest
	var cmd = &cobra.Command{
		Use:   "init [dir]",
		Short: "create a workspace",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			abs, err := filepath.Abs(dir)
			if err != nil {
				return err
			}
			ws, err := workspace.Init(abs, m)
			if err != nil {
				return err
			}
			activeWS = ws
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created workspace %q at %s\n", ws.Manifest.Name, ws.Root)
			return nil
		},
	}
	cmd.Flags().StringVar(&m.Name, "name", "", "workspace name (default: directory name)")
	cmd.Flags().StringVarP(&m.Encoding, "encoding", "e", "", "source encoding for files without a byte order mark")
	cmd.Flags().StringSliceVar(&m.Sources, "sources", nil, "source glob patterns relative to the workspace")
	cmd.Flags().StringVar(&m.Output, "output", "", "output directory for compiled documents")
	return cmd
}

func cmdCompile() *cobra.Command {
	var pf parserFlags
	var opts workspace.CompileOptions
	var cmd = &cobra.Command{
		Use:   "compile",
		Short: "parse every scenario of the workspace and write the JSON documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd)
			if err != nil {
				return err
			}
			opts.Parser = pf.config()
			start := time.Now()
			results, err := ws.CompileAll(cmd.Context(), opts)
			if err != nil {
				return err
			}
			stats := telemetry.ParseStats{Files: len(results), Duration: time.Since(start)}
			var failed, skipped int
			out := cmd.OutOrStdout()
			for _, r := range results {
				errs, warns := writeDiagnostics(cmd.ErrOrStderr(), r.Path, r.Diagnostics)
				stats.Errors += errs
				stats.Warnings += warns
				stats.Lines += r.Lines
				switch {
				case r.Err != nil:
					failed++
					_, _ = fmt.Fprintf(out, "FAIL %s: %v\n", r.Path, r.Err)
				case r.Skipped:
					skipped++
					_, _ = fmt.Fprintf(out, "skip %s (unchanged)\n", r.Path)
				default:
					_, _ = fmt.Fprintf(out, "ok   %s -> %s (%d lines)\n", r.Path, r.Output, r.Lines)
				}
			}
			telemetry.Default().ParseCompleted(stats)
			_, _ = fmt.Fprintf(out, "%d files, %d failed, %d unchanged\n", len(results), failed, skipped)
			if failed > 0 {
				return fmt.Errorf("%d scenario(s) failed to compile", failed)
			}
			return nil
		},
	}
	pf.add(cmd)
	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "recompile files whose source did not change")
	cmd.Flags().BoolVar(&opts.NoIndex, "no-index", false, "do not update the search index")
	cmd.Flags().IntVarP(&opts.Workers, "jobs", "j", 0, "parallel parsers (default: number of CPUs)")
	return cmd
}

func cmdIndex() *cobra.Command {
	var rebuild, check bool
	var cmd = &cobra.Command{
		Use:   "index",
		Short: "check or rebuild the workspace search index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			reindex := ws.Reindex(appCfg.Parser)
			switch {
			case check:
				rebuilt, err := storage.DetectAndRebuildIndex(ctx, ws.Root, reindex)
				if err != nil {
					return err
				}
				if rebuilt {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "index was damaged and has been rebuilt")
				} else {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "index ok")
				}
				return nil
			case rebuild:
				db, err := storage.InitOrOpenIndex(ws.Root)
				if err != nil {
					return err
				}
				defer db.Close()
				if err := storage.ClearIndex(ctx, db); err != nil {
					return err
				}
				if err := reindex(ctx, db); err != nil {
					return err
				}
			}
			db, err := storage.InitOrOpenIndex(ws.Root)
			if err != nil {
				return err
			}
			defer db.Close()
			infos, err := storage.ListScenarios(ctx, db)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "SCENARIO\tLINES\tPARSED\tSHA256")
			for _, si := range infos {
				_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\t%.12s\n", si.Path, si.Lines, si.ParsedAt.Local().Format(time.DateTime), si.SHA256)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "drop and re-create the index from the sources")
	cmd.Flags().BoolVar(&check, "check", false, "run an integrity check and rebuild when damaged")
	return cmd
}

func cmdSearch() *cobra.Command {
	var q storage.SearchQuery
	var remote bool
	var cmd = &cobra.Command{
		Use:   "search [text]",
		Short: "full-text search over the workspace index or the catalog",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				q.Text = args[0]
			}
			var (
				res []storage.SearchResult
				err error
			)
			if remote {
				c, cerr := newBackendClient()
				if cerr != nil {
					return cerr
				}
				res, err = c.Search(cmd.Context(), q)
			} else {
				ws, werr := openWorkspace(cmd)
				if werr != nil {
					return werr
				}
				res, err = storage.SearchIndex(cmd.Context(), ws.Root, q)
			}
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, r := range res {
				who := r.Character
				if who == "" {
					who = "-"
				}
				_, _ = fmt.Fprintf(tw, "%s:%d\t%s\t%s\t%s\n", r.Scenario, r.Line, r.Type, who, r.Snippet)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if len(res) == 0 {
				_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "no matches")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&q.Character, "character", "c", "", "only lines spoken by this character")
	cmd.Flags().StringVarP(&q.Scenario, "scenario", "s", "", "only this scenario (workspace-relative path, or catalog name with --remote)")
	cmd.Flags().StringSliceVarP(&q.Types, "type", "t", nil, "row types: text, charname, label, select")
	cmd.Flags().IntVar(&q.LineFrom, "from", 0, "first line")
	cmd.Flags().IntVar(&q.LineTo, "to", 0, "last line")
	cmd.Flags().IntVar(&q.Limit, "limit", 0, "maximum results (default 100)")
	cmd.Flags().IntVar(&q.Offset, "offset", 0, "skip this many results")
	cmd.Flags().BoolVar(&remote, "remote", false, "search the catalog server instead of the workspace")
	return cmd
}

func cmdLabels() *cobra.Command {
	var linksTo string
	var cmd = &cobra.Command{
		Use:   "labels [scenario]",
		Short: "list labels, or the choices and jumps leading to a label",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd)
			if err != nil {
				return err
			}
			db, err := storage.InitOrOpenIndex(ws.Root)
			if err != nil {
				return err
			}
			defer db.Close()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			if linksTo != "" {
				links, err := storage.WhereLinked(cmd.Context(), db, linksTo)
				if err != nil {
					return err
				}
				for _, k := range links {
					_, _ = fmt.Fprintf(tw, "%s:%d\t%s\t%s\t%s\n", k.Scenario, k.Line, k.Kind, k.Target, k.Cond)
				}
				return tw.Flush()
			}
			path := ""
			if len(args) == 1 {
				path = filepath.ToSlash(args[0])
			}
			labels, err := storage.LabelsOf(cmd.Context(), db, path)
			if err != nil {
				return err
			}
			for _, lb := range labels {
				_, _ = fmt.Fprintf(tw, "%s:%d\t%s\t%s\n", lb.Scenario, lb.Line, lb.Name, lb.Description)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&linksTo, "links-to", "", "list the choices and jumps targeting this label")
	return cmd
}

func cmdHistory() *cobra.Command {
	var limit, show, prune int
	var cmd = &cobra.Command{
		Use:   "history <scenario>",
		Short: "list or print the saved source versions of a scenario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd)
			if err != nil {
				return err
			}
			db, err := storage.InitOrOpenIndex(ws.Root)
			if err != nil {
				return err
			}
			defer db.Close()
			path := filepath.ToSlash(args[0])
			if prune > 0 {
				n, err := storage.PruneSnapshots(cmd.Context(), db, path, prune)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed %d snapshot(s)\n", n)
				return nil
			}
			snaps, err := storage.ListSnapshots(cmd.Context(), db, path, limit)
			if err != nil {
				return err
			}
			if len(snaps) == 0 {
				return fmt.Errorf("no history for %s", path)
			}
			if show > 0 {
				if show > len(snaps) {
					return fmt.Errorf("%s has %d version(s)", path, len(snaps))
				}
				_, _ = fmt.Fprint(cmd.OutOrStdout(), snaps[show-1].Text)
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for i, s := range snaps {
				_, _ = fmt.Fprintf(tw, "%d\t%s\t%.12s\t%d bytes\n", i+1, s.TS.Local().Format(time.DateTime), s.SHA256, len(s.Text))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of versions to list")
	cmd.Flags().IntVar(&show, "show", 0, "print version N (1 is the newest)")
	cmd.Flags().IntVar(&prune, "prune", 0, "keep only the newest N versions")
	return cmd
}

// newBackendClient returns a catalog client authenticated with the stored token.
func newBackendClient() (*backend.Client, error) {
	tok, err := config.Token()
	if err != nil {
		return nil, err
	}
	return backend.NewClient(appCfg.Backend, tok), nil
}

func cmdExport() *cobra.Command {
	var opt export.BundleOptions
	var cmd = &cobra.Command{
		Use:   "export [bundle.zip] [scenario]...",
		Short: "package the compiled scenarios into a ZIP bundle",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd)
			if err != nil {
				return err
			}
			out := ws.Manifest.Name
			if len(args) > 0 {
				out = args[0]
				for _, a := range args[1:] {
					opt.Scenarios = append(opt.Scenarios, filepath.ToSlash(a))
				}
			}
			path, info, err := export.ExportBundle(ws, out, opt)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d scenario(s)\n", path, len(info.Scenarios))
			return nil
		},
	}
	cmd.Flags().BoolVar(&opt.Transcripts, "transcripts", false, "add a plain text transcript per scenario")
	return cmd
}
