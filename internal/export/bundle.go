/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package export packages compiled workspace scenarios for distribution.
package export

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"goscenario/internal/script"
	"goscenario/internal/storage"
	"goscenario/internal/version"
	"goscenario/internal/workspace"
)

// ExportsDirName receives bundles written with a relative path.
const ExportsDirName = "exports"

// BundleOptions controls bundle export.
type BundleOptions struct {
	// Scenarios limits the bundle to these workspace-relative paths; all
	// sources when empty.
	Scenarios []string
	// Transcripts adds a plain text transcript per scenario.
	Transcripts bool
	// Now stamps the bundle; time.Now when zero.
	Now time.Time
}

// BundleEntry describes one scenario in bundle.json.
type BundleEntry struct {
	Path       string `json:"path"`
	Document   string `json:"document"`
	Transcript string `json:"transcript,omitempty"`
	Lines      int    `json:"lines"`
	SHA256     string `json:"sha256"`
}

// BundleInfo is written as bundle.json at the archive root.
type BundleInfo struct {
	Name      string        `json:"name"`
	Generator string        `json:"generator"`
	CreatedAt time.Time     `json:"created_at"`
	Scenarios []BundleEntry `json:"scenarios"`
}

// ExportBundle writes the compiled documents of ws into a ZIP archive at
// outPath and returns the bundle description. A relative outPath is placed
// under the workspace exports folder and ".zip" is appended when missing.
// Scenarios that were never compiled are an error.
func ExportBundle(ws *workspace.Workspace, outPath string, opt BundleOptions) (string, BundleInfo, error) {
	if ws == nil {
		return "", BundleInfo{}, errors.New("workspace is nil")
	}
	rels := opt.Scenarios
	if len(rels) == 0 {
		var err error
		if rels, err = ws.Sources(); err != nil {
			return "", BundleInfo{}, err
		}
	}
	if len(rels) == 0 {
		return "", BundleInfo{}, errors.New("no scenarios to export")
	}
	if !filepath.IsAbs(outPath) {
		outPath = filepath.Join(ws.Root, ExportsDirName, outPath)
	}
	if !strings.HasSuffix(strings.ToLower(outPath), ".zip") {
		outPath += ".zip"
	}
	now := opt.Now
	if now.IsZero() {
		now = time.Now()
	}
	info := BundleInfo{Name: ws.Manifest.Name, Generator: "goscenario " + version.String(), CreatedAt: now.UTC()}

	zw, f, err := createZip(outPath)
	if err != nil {
		return "", BundleInfo{}, err
	}
	defer func() { _ = f.Close() }()

	for _, rel := range rels {
		rel = filepath.ToSlash(rel)
		data, err := afero.ReadFile(ws.FS(), ws.CompiledPath(rel))
		if errors.Is(err, os.ErrNotExist) {
			return "", BundleInfo{}, fmt.Errorf("%s is not compiled", rel)
		}
		if err != nil {
			return "", BundleInfo{}, err
		}
		var doc script.Document
		if err := json.Unmarshal(data, &doc); err != nil {
			return "", BundleInfo{}, fmt.Errorf("%s: %w", rel, err)
		}
		base := strings.TrimSuffix(rel, path.Ext(rel))
		e := BundleEntry{Path: rel, Document: "documents/" + base + ".json", Lines: doc.Len(), SHA256: storage.Hash(string(data))}
		if err := addZipFile(zw, e.Document, data); err != nil {
			return "", BundleInfo{}, fmt.Errorf("zip add document: %w", err)
		}
		if opt.Transcripts {
			e.Transcript = "transcripts/" + base + ".txt"
			if err := addZipFile(zw, e.Transcript, []byte(Transcript(&doc))); err != nil {
				return "", BundleInfo{}, fmt.Errorf("zip add transcript: %w", err)
			}
		}
		info.Scenarios = append(info.Scenarios, e)
	}

	manifest, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return "", BundleInfo{}, fmt.Errorf("build manifest: %w", err)
	}
	if err := addZipFile(zw, "bundle.json", append(manifest, '\n')); err != nil {
		return "", BundleInfo{}, fmt.Errorf("zip add manifest: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", BundleInfo{}, fmt.Errorf("close zip: %w", err)
	}
	return outPath, info, nil
}

func createZip(outPath string) (*zip.Writer, *os.File, error) {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return nil, nil, fmt.Errorf("ensure out dir: %w", err)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return nil, nil, fmt.Errorf("create bundle: %w", err)
	}
	return zip.NewWriter(f), f, nil
}

func addZipFile(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
