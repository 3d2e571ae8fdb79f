/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Command goscenario parses scenario scripts into JSON documents, manages
// workspaces of scenarios with a local search index and talks to the
// scenario catalog server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"goscenario/internal/config"
	"goscenario/internal/crash"
	applog "goscenario/internal/log"
	"goscenario/internal/telemetry"
	"goscenario/internal/version"
	"goscenario/internal/workspace"
)

var (
	// appCfg is loaded by the root command before any subcommand runs.
	appCfg = config.Defaults()
	// activeWS is the workspace a command opened, for crash reports.
	activeWS *workspace.Workspace
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			crash.Report(activeWS, r)
		}
	}()
	err := newRootCmd().Execute()
	telemetry.Default().Flush(context.Background())
	_ = applog.Close()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cmdRoot = &cobra.Command{
		Use:   "goscenario",
		Short: "scenario script compiler",
		Long:  `Parse scenario scripts into JSON documents, index and search workspaces, publish to a catalog.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			appCfg = cfg
			initLogging(cmd, cfg.Logging)
			telemetry.SetDefault(telemetry.FromConfig(cfg.General))

			if showVersion, _ := cmd.Flags().GetBool("show-version"); showVersion {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "goscenario: version %q\n", version.Core())
			}
			applog.WithComponent("cli").Debug("start", slog.String("cmd", cmd.CommandPath()), slog.Int("args", len(args)))
			return nil
		},
		SilenceUsage: true,
	}
	cmdRoot.PersistentFlags().Bool("debug", false, "log debugging information")
	cmdRoot.PersistentFlags().Bool("quiet", false, "log less information")
	cmdRoot.PersistentFlags().Bool("verbose", false, "log more information")
	cmdRoot.PersistentFlags().Bool("show-version", false, "show version")
	cmdRoot.PersistentFlags().String("log-format", "", "log format: console or json")
	cmdRoot.PersistentFlags().String("log-file", "", "also write JSON logs to this file")
	cmdRoot.PersistentFlags().StringP("workspace", "w", "", "workspace directory (default: search upwards from the current directory)")

	cmdRoot.AddCommand(cmdParse(), cmdLex(), cmdValidate())
	cmdRoot.AddCommand(cmdInit(), cmdCompile(), cmdIndex(), cmdSearch(), cmdLabels(), cmdHistory(), cmdExport())
	cmdRoot.AddCommand(cmdRepl())
	cmdRoot.AddCommand(cmdServe(), cmdPublish(), cmdPull(), cmdLogin())
	cmdRoot.AddCommand(cmdVersion())
	return cmdRoot
}

// initLogging applies the logging flags over the configured logging section.
func initLogging(cmd *cobra.Command, lc config.LoggingConfig) {
	opts := applog.Options{Level: lc.Level, Format: lc.Format, AddSource: lc.Source, File: lc.File, Console: cmd.ErrOrStderr()}
	quiet, _ := cmd.Flags().GetBool("quiet")
	verbose, _ := cmd.Flags().GetBool("verbose")
	debug, _ := cmd.Flags().GetBool("debug")
	switch {
	case debug:
		opts.Level = "debug"
		opts.AddSource = true
	case quiet:
		opts.Level = "error"
	case verbose:
		opts.Level = "info"
	case opts.Level == "":
		opts.Level = "warn"
	}
	if f, _ := cmd.Flags().GetString("log-format"); f != "" {
		opts.Format = f
	}
	if f, _ := cmd.Flags().GetString("log-file"); f != "" {
		opts.File = f
	}
	applog.Init(opts)
}

// openWorkspace opens the workspace named by --workspace, the configured
// root or the nearest one above the current directory.
func openWorkspace(cmd *cobra.Command) (*workspace.Workspace, error) {
	dir, _ := cmd.Flags().GetString("workspace")
	if dir == "" {
		dir = appCfg.Workspace.Root
	}
	if dir == "" {
		dir = "."
	}
	root, err := workspace.Find(dir)
	if err != nil {
		return nil, err
	}
	ws, err := workspace.Open(root)
	if err != nil {
		return nil, err
	}
	activeWS = ws
	return ws, nil
}

func cmdVersion() *cobra.Command {
	var core bool
	var cmd = &cobra.Command{
		Use:   "version",
		Short: "display the application's version number",
		RunE: func(cmd *cobra.Command, args []string) error {
			if core {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Core())
				return nil
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.String())
			return nil
		},
	}
	cmd.Flags().BoolVar(&core, "core", false, "print major.minor.patch only")
	return cmd
}
