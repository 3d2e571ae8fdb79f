/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/peterh/liner"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"goscenario/internal/backend"
	"goscenario/internal/config"
	applog "goscenario/internal/log"
	"goscenario/internal/script"
	"goscenario/internal/workspace"
)

func cmdServe() *cobra.Command {
	var addr string
	var cmd = &cobra.Command{
		Use:   "serve",
		Short: "run the scenario catalog server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := backend.ConfigFrom(appCfg)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return backend.Serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "listen", "", "listen address (default: backend.listen or :8080)")
	return cmd
}

// catalogName is the catalog name of a workspace scenario: its relative
// path without extension.
func catalogName(rel string) string {
	rel = filepath.ToSlash(rel)
	return strings.TrimSuffix(rel, filepath.Ext(rel))
}

// readCompiled loads the compiled document of a workspace scenario.
func readCompiled(ws *workspace.Workspace, rel string) (*script.Document, error) {
	data, err := afero.ReadFile(ws.FS(), ws.CompiledPath(rel))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s is not compiled; run goscenario compile", rel)
	}
	if err != nil {
		return nil, err
	}
	var doc script.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%s: %w", ws.CompiledPath(rel), err)
	}
	return &doc, nil
}

func cmdPublish() *cobra.Command {
	var direct bool
	var cmd = &cobra.Command{
		Use:   "publish [scenario]...",
		Short: "publish compiled scenarios to the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd)
			if err != nil {
				return err
			}
			rels := make([]string, 0, len(args))
			for _, a := range args {
				rels = append(rels, filepath.ToSlash(a))
			}
			if len(rels) == 0 {
				if rels, err = ws.Sources(); err != nil {
					return err
				}
			}
			if len(rels) == 0 {
				return errors.New("no scenarios to publish")
			}

			var publish func(ctx context.Context, name string, doc *script.Document) (int64, error)
			if direct {
				dburl, err := appCfg.DatabaseURL()
				if err != nil {
					return err
				}
				db, err := backend.OpenDB(cmd.Context(), dburl)
				if err != nil {
					return err
				}
				defer func() { _ = db.Close() }()
				publish = func(ctx context.Context, name string, doc *script.Document) (int64, error) {
					return backend.PublishAs(ctx, db, name, doc, os.Getenv("USER"))
				}
			} else {
				c, err := newBackendClient()
				if err != nil {
					return err
				}
				publish = c.Publish
			}

			l := applog.WithOperation(applog.WithComponent("cli"), "publish")
			for _, rel := range rels {
				doc, err := readCompiled(ws, rel)
				if err != nil {
					return err
				}
				name := catalogName(rel)
				ver, err := publish(cmd.Context(), name, doc)
				if err != nil {
					return fmt.Errorf("publish %s: %w", name, err)
				}
				l.Info("published", slog.String("name", name), slog.Int64("version", ver))
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s v%d\n", name, ver)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&direct, "direct", false, "write to the catalog database (backend.dsn) instead of the server")
	return cmd
}

func cmdPull() *cobra.Command {
	var ver int64
	var outputFile string
	var cmd = &cobra.Command{
		Use:   "pull <name>",
		Short: "download a published scenario document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newBackendClient()
			if err != nil {
				return err
			}
			sv, err := c.GetScenario(cmd.Context(), args[0], ver)
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(sv.Document, "", "  ")
			if err != nil {
				return err
			}
			data = append(data, '\n')
			if outputFile == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(outputFile, data, 0o644); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%s v%d (%d lines) -> %s\n", sv.Name, sv.Version, sv.Lines, outputFile)
			return nil
		},
	}
	cmd.Flags().Int64Var(&ver, "version", 0, "version to fetch (default: latest)")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "save the document to file")
	return cmd
}

func cmdLogin() *cobra.Command {
	var subject, key string
	var ttl int64
	var logout, dbPassword bool
	var cmd = &cobra.Command{
		Use:   "login",
		Short: "obtain and store a catalog token, or store the database password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch {
			case logout:
				if err := config.SetToken(""); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(out, "token removed")
				return nil
			case dbPassword:
				pw, err := promptPassword("database password: ")
				if err != nil {
					return err
				}
				if err := config.SetDatabasePassword(pw); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(out, "database password stored")
				return nil
			}
			if subject == "" {
				subject = os.Getenv("USER")
			}
			c := backend.NewClient(appCfg.Backend, "")
			tr, err := c.RequestToken(cmd.Context(), subject, key, ttl)
			if err != nil {
				return err
			}
			if err := config.SetToken(tr.Token); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(out, "logged in as %s until %s\n", subject, tr.ExpiresAt)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject (default: $USER)")
	cmd.Flags().StringVar(&key, "key", os.Getenv(backend.EnvAuthKey), "server access key")
	cmd.Flags().Int64Var(&ttl, "ttl", 0, "token lifetime in seconds (default: server default)")
	cmd.Flags().BoolVar(&logout, "logout", false, "remove the stored token")
	cmd.Flags().BoolVar(&dbPassword, "db-password", false, "prompt for the catalog database password and store it in the keyring")
	return cmd
}

func promptPassword(prompt string) (string, error) {
	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)
	pw, err := ln.PasswordPrompt(prompt)
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", errors.New("aborted")
	}
	return pw, err
}
