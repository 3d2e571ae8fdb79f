/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package version holds the goscenario release version.
package version

import (
	"github.com/maloquacious/semver"
)

var version = semver.Version{
	Major: 0,
	Minor: 3,
	Patch: 0,
	Build: semver.Commit(),
}

// Version returns the release version with the build commit, if known.
func Version() semver.Version {
	return version
}

// String returns the full version string including build metadata.
func String() string { return version.String() }

// Core returns major.minor.patch without build metadata.
func Core() string { return version.Core() }
