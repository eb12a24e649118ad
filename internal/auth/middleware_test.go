/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestGateDisabledAllowsEverything(t *testing.T) {
	g := NewGate("")
	if g.Enabled() {
		t.Fatal("empty key should disable the gate")
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/channels", nil)
	g.Middleware(okHandler()).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestGateHeaderKey(t *testing.T) {
	g := NewGate("sekrit")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/channels", nil)
	req.Header.Set(HeaderName, "sekrit")
	g.Middleware(okHandler()).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestGateQueryParamFallback(t *testing.T) {
	g := NewGate("sekrit")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ws?api_key=sekrit", nil)
	g.Middleware(okHandler()).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestGateRejectsWrongOrMissingKey(t *testing.T) {
	g := NewGate("sekrit")

	for _, tc := range []struct {
		name string
		set  func(r *http.Request)
	}{
		{"missing", func(r *http.Request) {}},
		{"wrong header", func(r *http.Request) { r.Header.Set(HeaderName, "nope") }},
	} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/channels", nil)
		tc.set(req)
		g.Middleware(okHandler()).ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: status = %d, want 401", tc.name, rec.Code)
		}
	}
}
