/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package telemetry provides a tiny, opt-in event sender for anonymous
// usage metrics and optional crash uploads. Events carry counts only; no
// scenario text or path ever leaves the machine.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"goscenario/internal/config"
	applog "goscenario/internal/log"
	"goscenario/internal/version"
)

// EventParseCompleted is sent after a parse or compile run.
const EventParseCompleted = "parse_completed"

// Config holds runtime configuration for telemetry and crash uploads.
// All telemetry is strictly opt-in and disabled by default.
//
// Environment variables (read by FromEnv):
//   - GSC_TELEMETRY_OPT_IN: "1", "true", "yes" to enable metrics
//   - GSC_TELEMETRY_URL: URL to POST JSON events to
//   - GSC_CRASH_UPLOAD_URL: URL to POST crash reports to
//   - GSC_TELEMETRY_TIMEOUT_MS: request timeout, default 1500ms
//   - GSC_TELEMETRY_DEBUG: if set, logs send attempts
//
// If no URLs are set, events are dropped, even if opt-in is true.
type Config struct {
	OptIn        bool
	EventsURL    string
	CrashURL     string
	Timeout      time.Duration
	DebugLogging bool
}

func FromEnv() Config {
	cfg := Config{
		OptIn:        parseBool(os.Getenv(config.EnvTelemetryOptIn)),
		EventsURL:    strings.TrimSpace(os.Getenv(config.EnvTelemetryURL)),
		CrashURL:     strings.TrimSpace(os.Getenv("GSC_CRASH_UPLOAD_URL")),
		Timeout:      1500 * time.Millisecond,
		DebugLogging: os.Getenv("GSC_TELEMETRY_DEBUG") != "",
	}
	if ms := strings.TrimSpace(os.Getenv("GSC_TELEMETRY_TIMEOUT_MS")); ms != "" {
		if v, err := time.ParseDuration(ms + "ms"); err == nil {
			cfg.Timeout = v
		}
	}
	return cfg
}

// FromConfig layers the user's general settings under the environment.
func FromConfig(g config.GeneralConfig) Config {
	cfg := FromEnv()
	if os.Getenv(config.EnvTelemetryOptIn) == "" {
		cfg.OptIn = g.TelemetryOptIn
	}
	if cfg.EventsURL == "" {
		cfg.EventsURL = strings.TrimSpace(g.TelemetryURL)
	}
	return cfg
}

func parseBool(v string) bool {
	s := strings.ToLower(strings.TrimSpace(v))
	return s == "1" || s == "true" || s == "yes" || s == "on"
}

// Client is a minimal async sender; it drops events silently on errors.
// Event never blocks; the queue is bounded.
type Client struct {
	cfg     Config
	log     *slog.Logger
	cli     *http.Client
	q       chan map[string]any
	once    sync.Once
	closed  chan struct{}
	pending sync.WaitGroup
}

var (
	defaultMu     sync.Mutex
	defaultClient *Client
)

// Default returns the package-level client, creating it from the
// environment on first use.
func Default() *Client {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultClient == nil {
		defaultClient = New(FromEnv())
	}
	return defaultClient
}

// SetDefault installs a client built from cfg as the package default and
// closes the previous one.
func SetDefault(cfg Config) *Client {
	c := New(cfg)
	defaultMu.Lock()
	old := defaultClient
	defaultClient = c
	defaultMu.Unlock()
	if old != nil {
		old.Close()
	}
	return c
}

// New constructs a client.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 1500 * time.Millisecond
	}
	c := &Client{
		cfg:    cfg,
		log:    applog.WithComponent("telemetry"),
		cli:    &http.Client{Timeout: cfg.Timeout},
		q:      make(chan map[string]any, 64),
		closed: make(chan struct{}),
	}
	go c.loop()
	return c
}

// Enabled reports whether anonymous telemetry is enabled and an endpoint is configured.
func (c *Client) Enabled() bool { return c != nil && c.cfg.OptIn && c.cfg.EventsURL != "" }

// Event queues a small JSON event if enabled. Props must not carry content.
func (c *Client) Event(name string, props map[string]any) {
	if !c.Enabled() || name == "" {
		return
	}
	payload := map[string]any{
		"name":    name,
		"ts":      time.Now().UTC().Format(time.RFC3339Nano),
		"version": version.String(),
		"os":      runtime.GOOS,
		"arch":    runtime.GOARCH,
	}
	for k, v := range props {
		if _, reserved := payload[k]; !reserved {
			payload[k] = v
		}
	}
	c.pending.Add(1)
	select {
	case c.q <- payload:
	default:
		c.pending.Done() // queue full
	}
}

// ParseStats are the counts reported by ParseCompleted.
type ParseStats struct {
	Files    int
	Lines    int
	Errors   int
	Warnings int
	Duration time.Duration
}

// ParseCompleted sends a parse_completed event.
func (c *Client) ParseCompleted(s ParseStats) {
	c.Event(EventParseCompleted, map[string]any{
		"files":       s.Files,
		"lines":       s.Lines,
		"errors":      s.Errors,
		"warnings":    s.Warnings,
		"duration_ms": s.Duration.Milliseconds(),
	})
}

// Flush waits until queued events and crash uploads are sent, ctx is done
// or two seconds have passed.
func (c *Client) Flush(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	done := make(chan struct{})
	go func() {
		c.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
	}
}

// Close stops the background goroutine.
func (c *Client) Close() { c.once.Do(func() { close(c.closed) }) }

func (c *Client) loop() {
	for {
		select {
		case <-c.closed:
			return
		case item := <-c.q:
			c.post(c.cfg.EventsURL, "application/json", mustJSON(item), "event")
			c.pending.Done()
		}
	}
}

func mustJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

func (c *Client) post(url, contentType string, body []byte, what string) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := c.cli.Do(req)
	if err != nil {
		if c.cfg.DebugLogging {
			c.log.Debug("telemetry send failed", slog.String("what", what), slog.Any("err", err))
		}
		return
	}
	_ = resp.Body.Close()
	if c.cfg.DebugLogging {
		c.log.Debug("telemetry sent", slog.String("what", what), slog.Int("status", resp.StatusCode))
	}
}

// UploadCrash posts a serialized crash report to the crash URL if opted in.
func (c *Client) UploadCrash(report []byte) {
	if c == nil || !c.cfg.OptIn || c.cfg.CrashURL == "" {
		return
	}
	c.pending.Add(1)
	go func(b []byte) {
		defer c.pending.Done()
		c.post(c.cfg.CrashURL, "text/plain; charset=utf-8", b, "crash")
	}(append([]byte(nil), report...))
}
