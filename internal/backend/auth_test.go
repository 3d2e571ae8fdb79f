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
	"errors"
	"strings"
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	now := time.Now()
	tok, err := signToken("s3cret", "writer", now.Add(time.Hour))
	if err != nil {
		t.Fatalf("signToken: %v", err)
	}
	sub, err := verifyToken("s3cret", tok, now)
	if err != nil || sub != "writer" {
		t.Fatalf("verifyToken = %q, %v; want writer", sub, err)
	}

	cases := []struct {
		name   string
		secret string
		token  string
		at     time.Time
		want   error
	}{
		{"wrong secret", "other", tok, now, ErrTokenSignature},
		{"expired", "s3cret", tok, now.Add(2 * time.Hour), ErrTokenExpired},
		{"no dot", "s3cret", strings.ReplaceAll(tok, ".", ""), now, ErrTokenFormat},
		{"extra part", "s3cret", tok + ".x", now, ErrTokenFormat},
		{"bad base64", "s3cret", "!!!." + strings.SplitN(tok, ".", 2)[1], now, ErrTokenFormat},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := verifyToken(tc.secret, tc.token, tc.at); !errors.Is(err, tc.want) {
				t.Fatalf("verifyToken err = %v, want %v", err, tc.want)
			}
		})
	}
}
