/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"goscenario/internal/config"
	applog "goscenario/internal/log"
	"goscenario/internal/schema"
	"goscenario/internal/script"
	"goscenario/internal/source"
	"goscenario/internal/telemetry"
)

// parserFlags are the parser settings every parsing command accepts.
type parserFlags struct {
	encoding string
	strict   bool
}

func (pf *parserFlags) add(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&pf.encoding, "encoding", "e", "", "source encoding when the file has no byte order mark (utf-8, utf-16le, utf-16be, shift_jis, euc-jp)")
	cmd.Flags().BoolVar(&pf.strict, "strict", false, "treat warnings as errors")
}

func (pf *parserFlags) config() config.ParserConfig {
	pc := appCfg.Parser
	if pf.encoding != "" {
		pc.Encoding = pf.encoding
	}
	if pf.strict {
		pc.Strict = true
	}
	return pc
}

func writeDiagnostics(w io.Writer, name string, diags []script.Diagnostic) (errs, warns int) {
	for _, d := range diags {
		if d.Level >= slog.LevelError {
			errs++
		} else {
			warns++
		}
		_, _ = fmt.Fprintf(w, "%s: %s\n", name, d)
	}
	return errs, warns
}

func cmdParse() *cobra.Command {
	var pf parserFlags
	var outputFile string
	var indent, check bool
	var cmd = &cobra.Command{
		Use:   "parse <scenario-file>",
		Short: "parse a scenario file into a JSON document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l := applog.WithOperation(applog.WithComponent("cli"), "parse")
			pc := pf.config()
			start := time.Now()
			text, err := source.NewLoader(pc.Encoding).Load(args[0])
			if err != nil {
				return err
			}
			p, err := pc.NewParser(applog.WithComponent("script").With(slog.String("scenario", args[0])))
			if err != nil {
				return err
			}
			doc, perr := p.ParseText(text)
			errs, warns := writeDiagnostics(cmd.ErrOrStderr(), args[0], p.Diagnostics())
			stats := telemetry.ParseStats{Files: 1, Errors: errs, Warnings: warns, Duration: time.Since(start)}
			if doc != nil {
				stats.Lines = doc.Len()
			}
			telemetry.Default().ParseCompleted(stats)
			if perr != nil {
				var fe *script.FatalError
				if errors.As(perr, &fe) {
					_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%s: fatal: %v\n", args[0], fe)
				}
				return fmt.Errorf("%s: %w", args[0], perr)
			}
			if check {
				if err := schema.ValidateDocument(doc); err != nil {
					return err
				}
			}

			var data []byte
			if indent {
				data, err = json.MarshalIndent(doc, "", "  ")
			} else {
				data, err = json.Marshal(doc)
			}
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
			l.Info("document written", slog.String("path", outputFile), slog.Int("bytes", len(data)), slog.Int("lines", doc.Len()))
			return nil
		},
	}
	pf.add(cmd)
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "save the document to file")
	cmd.Flags().BoolVar(&indent, "indent", false, "indent the JSON output")
	cmd.Flags().BoolVar(&check, "check", false, "validate the document against the JSON schema")
	return cmd
}

func cmdLex() *cobra.Command {
	var pf parserFlags
	var cmd = &cobra.Command{
		Use:   "lex <scenario-file>",
		Short: "print the tokens of a scenario file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := source.NewLoader(pf.config().Encoding).Load(args[0])
			if err != nil {
				return err
			}
			lexemes, err := script.Tokenize(text)
			for _, lx := range lexemes {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), lx)
			}
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&pf.encoding, "encoding", "e", "", "source encoding when the file has no byte order mark")
	return cmd
}

func cmdValidate() *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "validate <document.json>...",
		Short: "check JSON documents against the scenario document schema",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var failed int
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				if err := schema.Validate(data); err != nil {
					failed++
					var ve *schema.ValidationError
					if errors.As(err, &ve) {
						for _, p := range ve.Problems {
							_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", path, p)
						}
					} else {
						_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
					}
					continue
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", path)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d documents failed validation", failed, len(args))
			}
			return nil
		},
	}
	return cmd
}
