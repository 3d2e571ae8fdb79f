/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package backend

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"goscenario/internal/config"
	"goscenario/internal/script"
	"goscenario/internal/storage"
)

// Client is a minimal HTTP client for the catalog API.
type Client struct {
	BaseURL string
	Token   string // bearer token
	client  *http.Client
}

// NewClient creates a new backend client. baseURL may include a trailing slash; it will be normalized.
func NewClient(cfg config.BackendConfig, token string) *Client {
	hc := &http.Client{Timeout: cfg.Timeout()}
	if cfg.TLSInsecure {
		hc.Transport = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}} //nolint:gosec // opt-in for self-signed dev servers
	}
	return &Client{
		BaseURL: strings.TrimRight(cfg.BaseURL, "/"),
		Token:   token,
		client:  hc,
	}
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	Path   string
	Status int
	Msg    string
}

func (e *StatusError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("server %s %s: %d %s", e.Method, e.Path, e.Status, e.Msg)
	}
	return fmt.Sprintf("server %s %s: %d", e.Method, e.Path, e.Status)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, dest any) error {
	u, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return err
	}
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		se := &StatusError{Method: method, Path: u.Path, Status: resp.StatusCode}
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(b, &e) == nil && e.Error != "" {
			se.Msg = e.Error
		} else {
			se.Msg = strings.TrimSpace(string(b))
		}
		return se
	}
	if dest == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

// RequestToken asks the server for an API token.
func (c *Client) RequestToken(ctx context.Context, subject, key string, ttlSeconds int64) (TokenResponse, error) {
	var tr TokenResponse
	req := map[string]any{"subject": subject, "ttl_seconds": ttlSeconds}
	if key != "" {
		req["key"] = key
	}
	err := c.doJSON(ctx, http.MethodPost, "/api/auth/token", req, &tr)
	return tr, err
}

// ListScenarios returns the published scenarios.
func (c *Client) ListScenarios(ctx context.Context) ([]Scenario, error) {
	var list []Scenario
	if err := c.doJSON(ctx, http.MethodGet, "/api/scenarios", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// GetScenario fetches a published version; version 0 means the latest.
func (c *Client) GetScenario(ctx context.Context, name string, version int64) (*ScenarioVersion, error) {
	p := "/api/scenarios/" + escapeName(name)
	if version > 0 {
		p += "?version=" + strconv.FormatInt(version, 10)
	}
	var sv ScenarioVersion
	if err := c.doJSON(ctx, http.MethodGet, p, nil, &sv); err != nil {
		return nil, err
	}
	return &sv, nil
}

// Publish uploads doc as the next version of name.
func (c *Client) Publish(ctx context.Context, name string, doc *script.Document) (int64, error) {
	var pr PublishResponse
	if err := c.doJSON(ctx, http.MethodPut, "/api/scenarios/"+escapeName(name), doc, &pr); err != nil {
		return 0, err
	}
	return pr.Version, nil
}

// Search runs a catalog search.
func (c *Client) Search(ctx context.Context, q storage.SearchQuery) ([]storage.SearchResult, error) {
	v := url.Values{}
	if q.Text != "" {
		v.Set("q", q.Text)
	}
	if q.Character != "" {
		v.Set("character", q.Character)
	}
	if q.Scenario != "" {
		v.Set("scenario", q.Scenario)
	}
	for _, t := range q.Types {
		v.Add("type", t)
	}
	for key, n := range map[string]int{"from": q.LineFrom, "to": q.LineTo, "limit": q.Limit, "offset": q.Offset} {
		if n > 0 {
			v.Set(key, strconv.Itoa(n))
		}
	}
	var res []storage.SearchResult
	if err := c.doJSON(ctx, http.MethodGet, "/api/search?"+v.Encode(), nil, &res); err != nil {
		return nil, err
	}
	return res, nil
}

// escapeName escapes each path segment of a scenario name.
func escapeName(name string) string {
	parts := strings.Split(strings.Trim(name, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
