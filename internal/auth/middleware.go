/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package auth implements the optional shared API-key gate. When no key is
// configured every request passes; when one is set, management endpoints
// require it via the X-API-Key header or an api_key query parameter (the
// latter mainly for the WebSocket upgrade, where custom headers are not
// available to browsers).
package auth

import (
	"crypto/subtle"
	"net/http"
)

// HeaderName is the API key request header.
const HeaderName = "X-API-Key"

// QueryParam is the API key query parameter fallback.
const QueryParam = "api_key"

// Gate validates the shared API key.
type Gate struct {
	key string
}

// NewGate returns a gate for the configured key. An empty key disables
// authentication entirely.
func NewGate(key string) *Gate {
	return &Gate{key: key}
}

// Enabled reports whether a key is configured.
func (g *Gate) Enabled() bool {
	return g.key != ""
}

// Authorize checks the request's credentials.
func (g *Gate) Authorize(r *http.Request) bool {
	if g.key == "" {
		return true
	}
	presented := r.Header.Get(HeaderName)
	if presented == "" {
		presented = r.URL.Query().Get(QueryParam)
	}
	if presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(g.key)) == 1
}

// Middleware rejects unauthorized requests with 401.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.Authorize(r) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
