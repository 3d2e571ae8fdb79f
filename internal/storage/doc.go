/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package storage manages the per-workspace embedded SQLite index at
// <workspace>/.gsc/index.sqlite. It keeps the compiled document of every
// scenario (zstd compressed), an FTS5 index over text runs and directive
// lines, label and link tables, and a compressed history of scenario
// sources. The index is derived from the scenario files and can always be
// rebuilt.
package storage
