/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"strings"

	"goscenario/internal/script"
	"goscenario/internal/storage"
)

// Transcript renders the readable text of a document, one row per line:
//
//	== harbor: The harbor at dawn
//	alice: Welcome to the harbor.
//	  * Jump
//
// Character cues only set the speaker and are not printed.
func Transcript(doc *script.Document) string {
	rows, labels, _ := storage.Extract(doc)
	byLine := make(map[int]storage.Label, len(labels))
	for _, lb := range labels {
		byLine[lb.Line] = lb
	}
	var b strings.Builder
	for _, r := range rows {
		switch r.Type {
		case storage.TypeCharName:
			continue
		case storage.TypeLabel:
			lb := byLine[r.Line]
			b.WriteString("== ")
			b.WriteString(lb.Name)
			if lb.Description != "" {
				b.WriteString(": ")
				b.WriteString(lb.Description)
			}
		case storage.TypeSelect:
			b.WriteString("  * ")
			b.WriteString(r.Text)
		default:
			if r.Character != "" {
				b.WriteString(r.Character)
				b.WriteString(": ")
			}
			b.WriteString(r.Text)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
