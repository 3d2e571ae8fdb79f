/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package config loads the per-user goscenario configuration. The YAML file
// holds preferences; environment variables override it at runtime; secrets
// live in the OS keychain.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"

	"goscenario/internal/script"
)

// ParserConfig controls how scenario files are read and parsed.
type ParserConfig struct {
	// Encoding used for files without a byte order mark:
	// utf-8, utf-16le, utf-16be or shift_jis.
	Encoding string `yaml:"encoding"`
	// SignWords adds sign characters that may lead a tag, e.g. "?": "query".
	SignWords map[string]string `yaml:"sign_words,omitempty"`
	// Strict treats warnings as errors.
	Strict bool `yaml:"strict"`
}

type WorkspaceConfig struct {
	// Root is the default workspace directory for commands run outside one.
	Root string `yaml:"root"`
}

type BackendConfig struct {
	BaseURL     string `yaml:"base_url"`
	TimeoutMs   int    `yaml:"timeout_ms"`
	TLSInsecure bool   `yaml:"tls_insecure"`
	// DSN of the catalog database used by serve and publish. The password
	// is kept in the keychain and spliced in by DatabaseURL.
	DSN    string `yaml:"dsn"`
	Listen string `yaml:"listen"`
}

type GeneralConfig struct {
	TelemetryOptIn bool   `yaml:"telemetry_opt_in"`
	TelemetryURL   string `yaml:"telemetry_url"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

// AppConfig is the user-editable configuration persisted to config.yaml.
//
// config_version: bump when the structure changes in a backward-incompatible way.
type AppConfig struct {
	ConfigVersion int             `yaml:"config_version"`
	Parser        ParserConfig    `yaml:"parser"`
	Workspace     WorkspaceConfig `yaml:"workspace"`
	General       GeneralConfig   `yaml:"general"`
	Backend       BackendConfig   `yaml:"backend"`
	Logging       LoggingConfig   `yaml:"logging"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		Parser:        ParserConfig{Encoding: "utf-8"},
		General:       GeneralConfig{},
		Backend:       BackendConfig{BaseURL: "http://localhost:8080", TimeoutMs: 15000, Listen: ":8080"},
		Logging:       LoggingConfig{Level: "info", Format: "console"},
	}
}

// Env var names used as overrides.
const (
	EnvConfigPath       = "GSC_CONFIG"
	EnvEncoding         = "GSC_ENCODING"
	EnvStrict           = "GSC_STRICT"
	EnvWorkspace        = "GSC_WORKSPACE"
	EnvBackendURL       = "GSC_BACKEND_URL"
	EnvBackendTimeoutMs = "GSC_BACKEND_TIMEOUT_MS"
	EnvBackendTLSInsec  = "GSC_TLS_INSECURE"
	EnvDatabaseURL      = "GSC_DATABASE_URL"
	EnvTelemetryOptIn   = "GSC_TELEMETRY_OPT_IN"
	EnvTelemetryURL     = "GSC_TELEMETRY_URL"
	EnvLogLevel         = "GSC_LOG_LEVEL"
	EnvLogFormat        = "GSC_LOG_FORMAT"
	EnvLogSource        = "GSC_LOG_SOURCE"
	EnvLogFile          = "GSC_LOG_FILE"
)

// Keychain service and keys.
const (
	keyringService    = "goscenario"
	keyringToken      = "backend_token"
	keyringDBPassword = "database_password"
)

// SecretStore abstracts the keychain so tests can run without one.
type SecretStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

// osKeyring stores secrets in the OS keychain via github.com/zalando/go-keyring.
type osKeyring struct{}

func (osKeyring) Get(service, key string) (string, error) { return keyring.Get(service, key) }
func (osKeyring) Set(service, key, value string) error    { return keyring.Set(service, key, value) }
func (osKeyring) Delete(service, key string) error        { return keyring.Delete(service, key) }

var secrets SecretStore = osKeyring{}

// ConfigPath returns the per-user config file path. GSC_CONFIG overrides it.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p, nil
	}
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "goscenario")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "goscenario")
	default:
		if x := os.Getenv("XDG_CONFIG_HOME"); x != "" {
			base = filepath.Join(x, "goscenario")
		} else {
			base = filepath.Join(os.Getenv("HOME"), ".config", "goscenario")
		}
	}
	if base == "" || base == "goscenario" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads the user config file (if present), applies defaults and merges
// environment overrides.
func Load() (AppConfig, error) {
	path, err := ConfigPath()
	if err != nil {
		return Defaults(), err
	}
	return LoadFrom(path)
}

// LoadFrom is Load for an explicit file. A missing file is not an error; a
// malformed one is.
func LoadFrom(path string) (AppConfig, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
		mergeInto(&cfg, &fileCfg)
	case !errors.Is(err, os.ErrNotExist):
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// Save writes the user config YAML.
func Save(cfg AppConfig) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTo(path, cfg)
}

func SaveTo(path string, cfg AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Token returns the backend API token from the keychain, or "" if none is
// stored.
func Token() (string, error) { return getSecret(keyringToken) }

// SetToken stores the backend API token; an empty token deletes it.
func SetToken(tok string) error { return setSecret(keyringToken, tok) }

// DatabasePassword returns the catalog database password from the keychain.
func DatabasePassword() (string, error) { return getSecret(keyringDBPassword) }

func SetDatabasePassword(pw string) error { return setSecret(keyringDBPassword, pw) }

func getSecret(key string) (string, error) {
	v, err := secrets.Get(keyringService, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	return v, err
}

func setSecret(key, value string) error {
	if value == "" {
		err := secrets.Delete(keyringService, key)
		if errors.Is(err, keyring.ErrNotFound) {
			return nil
		}
		return err
	}
	return secrets.Set(keyringService, key, value)
}

// DatabaseURL returns the DSN with the keychain password filled in when the
// DSN has none. GSC_DATABASE_URL wins over both.
func (c AppConfig) DatabaseURL() (string, error) {
	if v := strings.TrimSpace(os.Getenv(EnvDatabaseURL)); v != "" {
		return v, nil
	}
	dsn := strings.TrimSpace(c.Backend.DSN)
	if dsn == "" {
		return "", errors.New("config: backend.dsn is not set")
	}
	pw, err := DatabasePassword()
	if err != nil || pw == "" {
		return dsn, nil
	}
	return withPassword(dsn, pw), nil
}

// withPassword inserts pw into a postgres:// URL that has a user but no password.
func withPassword(dsn, pw string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return dsn
	}
	userinfo, host, ok := strings.Cut(rest, "@")
	if !ok || strings.Contains(userinfo, ":") {
		return dsn
	}
	return scheme + "://" + userinfo + ":" + pw + "@" + host
}

// NewParser builds a scenario parser configured from the parser section.
func (c ParserConfig) NewParser(l *slog.Logger) (*script.Parser, error) {
	p := script.NewParser(script.WithLogger(l), script.WithStrict(c.Strict))
	signs := make([]string, 0, len(c.SignWords))
	for s := range c.SignWords {
		signs = append(signs, s)
	}
	sort.Strings(signs)
	for _, s := range signs {
		r, size := utf8.DecodeRuneInString(s)
		if size == 0 || size != len(s) {
			return nil, fmt.Errorf("config: sign %q must be a single character", s)
		}
		if err := p.AddSignWord(r, c.SignWords[s]); err != nil {
			return nil, fmt.Errorf("config: sign_words: %w", err)
		}
	}
	return p, nil
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	if v := strings.TrimSpace(src.Parser.Encoding); v != "" {
		dst.Parser.Encoding = strings.ToLower(v)
	}
	if len(src.Parser.SignWords) > 0 {
		dst.Parser.SignWords = src.Parser.SignWords
	}
	dst.Parser.Strict = src.Parser.Strict
	if v := strings.TrimSpace(src.Workspace.Root); v != "" {
		dst.Workspace.Root = v
	}
	// booleans: copy directly from src (file) so user preferences persist
	dst.General.TelemetryOptIn = src.General.TelemetryOptIn
	if v := strings.TrimSpace(src.General.TelemetryURL); v != "" {
		dst.General.TelemetryURL = v
	}
	if src.Backend.BaseURL != "" {
		dst.Backend.BaseURL = src.Backend.BaseURL
	}
	if src.Backend.TimeoutMs != 0 {
		dst.Backend.TimeoutMs = src.Backend.TimeoutMs
	}
	dst.Backend.TLSInsecure = src.Backend.TLSInsecure
	if src.Backend.DSN != "" {
		dst.Backend.DSN = src.Backend.DSN
	}
	if src.Backend.Listen != "" {
		dst.Backend.Listen = src.Backend.Listen
	}
	if v := strings.TrimSpace(src.Logging.Level); v != "" {
		dst.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(src.Logging.Format); v != "" {
		dst.Logging.Format = strings.ToLower(v)
	}
	dst.Logging.Source = src.Logging.Source
	if v := strings.TrimSpace(src.Logging.File); v != "" {
		dst.Logging.File = v
	}
}

func truthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvEncoding)); v != "" {
		cfg.Parser.Encoding = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvStrict)); v != "" {
		cfg.Parser.Strict = truthy(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvWorkspace)); v != "" {
		cfg.Workspace.Root = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvBackendURL)); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvBackendTimeoutMs)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Backend.TimeoutMs = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvBackendTLSInsec)); v != "" {
		cfg.Backend.TLSInsecure = truthy(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvTelemetryOptIn)); v != "" {
		cfg.General.TelemetryOptIn = truthy(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvTelemetryURL)); v != "" {
		cfg.General.TelemetryURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		cfg.Logging.Source = truthy(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

var envKeys = map[string]string{
	"parser.encoding":          EnvEncoding,
	"parser.strict":            EnvStrict,
	"workspace.root":           EnvWorkspace,
	"backend.base_url":         EnvBackendURL,
	"backend.timeout_ms":       EnvBackendTimeoutMs,
	"backend.tls_insecure":     EnvBackendTLSInsec,
	"backend.dsn":              EnvDatabaseURL,
	"general.telemetry_opt_in": EnvTelemetryOptIn,
	"general.telemetry_url":    EnvTelemetryURL,
	"logging.level":            EnvLogLevel,
	"logging.format":           EnvLogFormat,
	"logging.source":           EnvLogSource,
	"logging.file":             EnvLogFile,
}

// EnvOverrideFor returns the env var name if the field is overridden by
// an environment variable.
func EnvOverrideFor(key string) (string, bool) {
	env, ok := envKeys[key]
	if !ok || os.Getenv(env) == "" {
		return "", false
	}
	return env, true
}

// Timeout returns the backend request timeout.
func (b BackendConfig) Timeout() time.Duration {
	if b.TimeoutMs <= 0 {
		return time.Duration(Defaults().Backend.TimeoutMs) * time.Millisecond
	}
	return time.Duration(b.TimeoutMs) * time.Millisecond
}
