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
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

// Token errors.
var (
	ErrTokenFormat    = errors.New("invalid token format")
	ErrTokenSignature = errors.New("bad signature")
	ErrTokenExpired   = errors.New("token expired")
)

type tokenClaims struct {
	Sub string `json:"sub"`
	Exp int64  `json:"exp"` // unix seconds
}

// signToken returns base64url(claims) "." base64url(hmac-sha256(claims)).
func signToken(secret, subject string, exp time.Time) (string, error) {
	b, err := json.Marshal(tokenClaims{Sub: subject, Exp: exp.Unix()})
	if err != nil {
		return "", err
	}
	h := hmac.New(sha256.New, []byte(secret))
	_, _ = h.Write(b)
	return base64.RawURLEncoding.EncodeToString(b) + "." + base64.RawURLEncoding.EncodeToString(h.Sum(nil)), nil
}

// verifyToken checks the signature and expiry and returns the subject.
func verifyToken(secret, token string, now time.Time) (string, error) {
	payload, sig, ok := strings.Cut(token, ".")
	if !ok || strings.Contains(sig, ".") {
		return "", ErrTokenFormat
	}
	payloadB, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return "", ErrTokenFormat
	}
	sigB, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return "", ErrTokenFormat
	}
	h := hmac.New(sha256.New, []byte(secret))
	_, _ = h.Write(payloadB)
	if !hmac.Equal(h.Sum(nil), sigB) {
		return "", ErrTokenSignature
	}
	var claims tokenClaims
	if err := json.Unmarshal(payloadB, &claims); err != nil {
		return "", ErrTokenFormat
	}
	if claims.Exp < now.Unix() {
		return "", ErrTokenExpired
	}
	if claims.Sub == "" {
		claims.Sub = "dev"
	}
	return claims.Sub, nil
}

func withAuth(secret string, next func(w http.ResponseWriter, r *http.Request, subject string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		const prefix = "bearer "
		if len(auth) < len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("missing bearer token"))
			return
		}
		sub, err := verifyToken(secret, strings.TrimSpace(auth[len(prefix):]), time.Now())
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("invalid token"))
			return
		}
		next(w, r, sub)
	}
}
