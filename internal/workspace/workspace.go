/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package workspace manages a directory of scenario files described by a
// goscenario.json manifest. The manifest is written transactionally with a
// timestamped backup of the previous version.
package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"

	"goscenario/internal/config"
	"goscenario/internal/source"
)

const (
	ManifestFileName = "goscenario.json"
	BackupsDirName   = "backups"
	ScenariosDirName = "scenarios"
	DefaultOutput    = "build"
)

// Manifest is the persisted description of a workspace.
type Manifest struct {
	Name string `json:"name"`
	// Sources are glob patterns relative to the workspace root.
	Sources []string `json:"sources"`
	// Output receives the compiled JSON documents.
	Output    string            `json:"output"`
	Encoding  string            `json:"encoding,omitempty"`
	Strict    bool              `json:"strict,omitempty"`
	SignWords map[string]string `json:"sign_words,omitempty"`
}

// Workspace is an opened workspace. Root is the directory holding
// goscenario.json.
type Workspace struct {
	Root         string
	ManifestPath string
	Manifest     Manifest

	fs afero.Fs
}

func (m *Manifest) applyDefaults(root string) {
	if strings.TrimSpace(m.Name) == "" {
		m.Name = filepath.Base(root)
	}
	if len(m.Sources) == 0 {
		m.Sources = []string{ScenariosDirName + "/*.sce"}
	}
	if strings.TrimSpace(m.Output) == "" {
		m.Output = DefaultOutput
	}
}

// Init creates a workspace at root with the scenarios, output and backups
// folders and writes the manifest.
func Init(root string, m Manifest) (*Workspace, error) {
	return InitFS(afero.NewOsFs(), root, m)
}

// InitFS is Init on an explicit filesystem.
func InitFS(fs afero.Fs, root string, m Manifest) (*Workspace, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("root path is required")
	}
	m.applyDefaults(root)
	for _, d := range []string{root, filepath.Join(root, ScenariosDirName), filepath.Join(root, m.Output), filepath.Join(root, BackupsDirName)} {
		if err := fs.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", d, err)
		}
	}
	ws := &Workspace{Root: root, ManifestPath: filepath.Join(root, ManifestFileName), Manifest: m, fs: fs}
	if err := ws.Save(); err != nil {
		return nil, err
	}
	return ws, nil
}

// Open loads the workspace at root. If the manifest cannot be read or
// parsed, the latest backup is used.
func Open(root string) (*Workspace, error) {
	return OpenFS(afero.NewOsFs(), root)
}

func OpenFS(fs afero.Fs, root string) (*Workspace, error) {
	mpath := filepath.Join(root, ManifestFileName)
	ws := &Workspace{Root: root, ManifestPath: mpath, fs: fs}
	b, err := afero.ReadFile(fs, mpath)
	if err == nil {
		err = json.Unmarshal(b, &ws.Manifest)
	}
	if err != nil {
		m, berr := ws.latestBackup()
		if berr != nil {
			return nil, fmt.Errorf("open manifest: %w; backup attempt: %v", err, berr)
		}
		ws.Manifest = *m
	}
	ws.Manifest.applyDefaults(root)
	return ws, nil
}

// Find walks up from dir to the nearest directory holding a manifest.
func Find(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(abs, ManifestFileName)); err == nil {
			return abs, nil
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", fmt.Errorf("no %s found in %s or its parents", ManifestFileName, dir)
		}
		abs = parent
	}
}

// FS returns the filesystem the workspace lives on.
func (ws *Workspace) FS() afero.Fs { return ws.fs }

func (ws *Workspace) BackupsDir() string { return filepath.Join(ws.Root, BackupsDirName) }

func (ws *Workspace) OutputDir() string { return filepath.Join(ws.Root, ws.Manifest.Output) }

// ParserConfig merges the manifest's parser settings over the user's.
func (ws *Workspace) ParserConfig(user config.ParserConfig) config.ParserConfig {
	pc := user
	if ws.Manifest.Encoding != "" {
		pc.Encoding = ws.Manifest.Encoding
	}
	if ws.Manifest.Strict {
		pc.Strict = true
	}
	if len(ws.Manifest.SignWords) > 0 {
		merged := make(map[string]string, len(user.SignWords)+len(ws.Manifest.SignWords))
		for k, v := range user.SignWords {
			merged[k] = v
		}
		for k, v := range ws.Manifest.SignWords {
			merged[k] = v
		}
		pc.SignWords = merged
	}
	return pc
}

// Loader returns a source loader on the workspace filesystem.
func (ws *Workspace) Loader(enc string) *source.Loader {
	l := source.NewLoader(enc)
	l.SetFS(ws.fs)
	return l
}

// Sources returns the scenario files matched by the manifest, as sorted
// slash-separated paths relative to the root.
func (ws *Workspace) Sources() ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, pat := range ws.Manifest.Sources {
		matches, err := afero.Glob(ws.fs, filepath.Join(ws.Root, filepath.FromSlash(pat)))
		if err != nil {
			return nil, fmt.Errorf("source pattern %q: %w", pat, err)
		}
		for _, m := range matches {
			if fi, err := ws.fs.Stat(m); err != nil || fi.IsDir() {
				continue
			}
			rel, err := filepath.Rel(ws.Root, m)
			if err != nil {
				return nil, err
			}
			rel = filepath.ToSlash(rel)
			if !seen[rel] {
				seen[rel] = true
				out = append(out, rel)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// Abs resolves a workspace-relative slash path.
func (ws *Workspace) Abs(rel string) string {
	return filepath.Join(ws.Root, filepath.FromSlash(rel))
}

// CompiledPath is where the JSON document of a scenario is written.
func (ws *Workspace) CompiledPath(rel string) string {
	base := strings.TrimSuffix(rel, path.Ext(rel)) + ".json"
	return filepath.Join(ws.OutputDir(), filepath.FromSlash(base))
}

// Save writes the manifest with transactional semantics and a timestamped
// backup of the previous manifest (if present).
func (ws *Workspace) Save() error {
	if ws.Root == "" || ws.ManifestPath == "" {
		return errors.New("invalid workspace: missing paths")
	}
	data, err := json.MarshalIndent(ws.Manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	data = append(data, '\n')

	bdir := ws.BackupsDir()
	if err := ws.fs.MkdirAll(bdir, 0o755); err != nil {
		return fmt.Errorf("ensure backups dir: %w", err)
	}
	if exists, _ := afero.Exists(ws.fs, ws.ManifestPath); exists {
		stamp := time.Now().Format("20060102-150405.000")
		bpath := filepath.Join(bdir, fmt.Sprintf("%s.%s.bak", ManifestFileName, stamp))
		if cerr := copyFile(ws.fs, ws.ManifestPath, bpath); cerr != nil {
			return fmt.Errorf("backup current manifest: %w", cerr)
		}
	}
	if err := writeAtomic(ws.fs, ws.ManifestPath, data); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// writeAtomic writes to a temp file in the same directory, then renames it
// over the target.
func writeAtomic(fs afero.Fs, target string, data []byte) error {
	dir := filepath.Dir(target)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	temp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d-%d", filepath.Base(target), os.Getpid(), rand.Int()))
	if err := writeFileSync(fs, temp, data); err != nil {
		_ = fs.Remove(temp)
		return err
	}
	// On Windows, replace by removing destination first if needed
	if exists, _ := afero.Exists(fs, target); exists {
		_ = fs.Remove(target)
	}
	if err := fs.Rename(temp, target); err != nil {
		_ = fs.Remove(temp)
		return err
	}
	return nil
}

// writeFileSync writes data to a file and flushes it to disk.
func writeFileSync(fs afero.Fs, name string, data []byte) (err error) {
	f, err := fs.OpenFile(name, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

func copyFile(fs afero.Fs, src, dst string) error {
	data, err := afero.ReadFile(fs, src)
	if err != nil {
		return err
	}
	return writeFileSync(fs, dst, data)
}

// latestBackup reads the newest timestamped manifest backup.
func (ws *Workspace) latestBackup() (*Manifest, error) {
	ents, err := afero.ReadDir(ws.fs, ws.BackupsDir())
	if err != nil {
		return nil, fmt.Errorf("read backups dir: %w", err)
	}
	var candidates []string
	for _, e := range ents {
		name := e.Name()
		if strings.HasPrefix(name, ManifestFileName+".") && strings.HasSuffix(name, ".bak") {
			candidates = append(candidates, filepath.Join(ws.BackupsDir(), name))
		}
	}
	if len(candidates) == 0 {
		return nil, errors.New("no backups found")
	}
	sort.Strings(candidates) // timestamp in name yields lexicographic order
	b, err := afero.ReadFile(ws.fs, candidates[len(candidates)-1])
	if err != nil {
		return nil, fmt.Errorf("read latest backup: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parse latest backup: %w", err)
	}
	return &m, nil
}
