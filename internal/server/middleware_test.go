/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSecurityHeaders(t *testing.T) {
	handler := securityHeadersMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
	if got := rec.Header().Get("Strict-Transport-Security"); got != "" {
		t.Errorf("HSTS set on plain HTTP: %q", got)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("Strict-Transport-Security"); got == "" {
		t.Error("HSTS missing on forwarded HTTPS")
	}
}

func TestIsStreamingPath(t *testing.T) {
	cases := []struct {
		path    string
		upgrade string
		want    bool
	}{
		{path: "/api/stream/proxy/hls1/main/0.ts", want: true},
		{path: "/api/stream/item1", want: true},
		{path: "/api/iptv/channel/3", want: true},
		{path: "/ws", want: true},
		{path: "/api/channels", upgrade: "websocket", want: true},
		{path: "/api/channels", want: false},
		{path: "/api/iptv/playlist.m3u", want: false},
	}
	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodGet, tc.path, nil)
		if tc.upgrade != "" {
			r.Header.Set("Upgrade", tc.upgrade)
		}
		if got := isStreamingPath(r); got != tc.want {
			t.Errorf("isStreamingPath(%s, upgrade=%q) = %v, want %v", tc.path, tc.upgrade, got, tc.want)
		}
	}
}
