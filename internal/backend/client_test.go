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
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"goscenario/internal/config"
	"goscenario/internal/script"
	"goscenario/internal/storage"
)

func TestClientAgainstFakeServer(t *testing.T) {
	var gotAuth, gotQuery, gotPath string
	var published script.Document
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/scenarios", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		writeJSON(w, http.StatusOK, []Scenario{{ID: 1, Name: "chapter1/intro", Version: 3}})
	})
	mux.HandleFunc("GET /api/scenarios/{name...}", func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath() + "?" + r.URL.RawQuery
		doc, _ := script.ParseText("Hello.")
		writeJSON(w, http.StatusOK, ScenarioVersion{Name: r.PathValue("name"), Version: 2, Lines: 1, Document: doc})
	})
	mux.HandleFunc("PUT /api/scenarios/{name...}", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&published)
		writeJSON(w, http.StatusOK, PublishResponse{Name: r.PathValue("name"), Version: 4})
	})
	mux.HandleFunc("GET /api/search", func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		writeJSON(w, http.StatusOK, []storage.SearchResult{{DocID: 9, Scenario: "chapter1/intro", Line: 1, Type: "text", Snippet: "Hello."}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx := context.Background()
	c := NewClient(config.BackendConfig{BaseURL: srv.URL}, "tok")
	list, err := c.ListScenarios(ctx)
	if err != nil || len(list) != 1 || list[0].Name != "chapter1/intro" {
		t.Fatalf("ListScenarios = %+v, %v", list, err)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("Authorization = %q", gotAuth)
	}

	sv, err := c.GetScenario(ctx, "chapter1/the intro", 2)
	if err != nil {
		t.Fatalf("GetScenario: %v", err)
	}
	if gotPath != "/api/scenarios/chapter1/the%20intro?version=2" {
		t.Fatalf("request path = %q", gotPath)
	}
	if sv.Name != "chapter1/the intro" || script.LineText(sv.Document.Line(0)) != "Hello." {
		t.Fatalf("scenario = %+v", sv)
	}

	doc, _ := script.ParseText("@alice\nHi.")
	if v, err := c.Publish(ctx, "intro", doc); err != nil || v != 4 {
		t.Fatalf("Publish = %d, %v", v, err)
	}
	if !published.Equal(doc) {
		t.Fatalf("server received %v", published.Value())
	}

	res, err := c.Search(ctx, storage.SearchQuery{Text: "hello", Types: []string{"text", "select"}, Limit: 5})
	if err != nil || len(res) != 1 || res[0].DocID != 9 {
		t.Fatalf("Search = %+v, %v", res, err)
	}
	if gotQuery != "limit=5&q=hello&type=text&type=select" {
		t.Fatalf("query = %q", gotQuery)
	}
}

func TestClientStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusTeapot)
	}))
	defer srv.Close()
	_, err := NewClient(config.BackendConfig{BaseURL: srv.URL}, "").ListScenarios(context.Background())
	se, ok := err.(*StatusError)
	if !ok || se.Status != http.StatusTeapot || se.Msg != "nope" {
		t.Fatalf("err = %#v", err)
	}
}
