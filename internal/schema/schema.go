/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package schema checks compiled scenario documents against the embedded
// JSON schema.
package schema

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	gojsonschema "github.com/xeipuuv/gojsonschema"

	"goscenario/internal/script"
)

//go:embed scenario.schema.json
var schemaJSON []byte

// Bytes returns the raw schema.
func Bytes() []byte { return append([]byte(nil), schemaJSON...) }

var (
	compileOnce sync.Once
	compiled    *gojsonschema.Schema
	compileErr  error
)

func load() (*gojsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiled, compileErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	})
	return compiled, compileErr
}

// ValidationError lists every schema violation of one document.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return "schema: " + e.Problems[0]
	}
	return fmt.Sprintf("schema: %d problems: %s", len(e.Problems), strings.Join(e.Problems, "; "))
}

// Validate checks a JSON-encoded document.
func Validate(data []byte) error {
	s, err := load()
	if err != nil {
		return fmt.Errorf("schema: compile: %w", err)
	}
	result, err := s.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema: validate: %w", err)
	}
	if result.Valid() {
		return nil
	}
	ve := &ValidationError{}
	for _, e := range result.Errors() {
		ve.Problems = append(ve.Problems, e.String())
	}
	return ve
}

// ValidateDocument encodes doc and validates it.
func ValidateDocument(doc *script.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("schema: encode: %w", err)
	}
	return Validate(data)
}
