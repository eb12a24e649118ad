/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/friendsincode/prevue/internal/auth"
	"github.com/friendsincode/prevue/internal/clock"
	"github.com/friendsincode/prevue/internal/crypto"
	"github.com/friendsincode/prevue/internal/db"
	"github.com/friendsincode/prevue/internal/events"
	"github.com/friendsincode/prevue/internal/iptv"
	"github.com/friendsincode/prevue/internal/library"
	"github.com/friendsincode/prevue/internal/materializer"
	"github.com/friendsincode/prevue/internal/models"
	"github.com/friendsincode/prevue/internal/presets"
	"github.com/friendsincode/prevue/internal/scheduler"
	"github.com/friendsincode/prevue/internal/sessions"
	"github.com/friendsincode/prevue/internal/store"
	"github.com/friendsincode/prevue/internal/stream"
	"github.com/friendsincode/prevue/internal/tuner"
	"github.com/friendsincode/prevue/internal/upstream"
)

type stubRuntime struct{}

func (stubRuntime) Client() *upstream.Client                      { return nil }
func (stubRuntime) RefreshActiveServer(context.Context) error     { return nil }
func (stubRuntime) SyncLibrary(context.Context) error             { return nil }

func newTestAPI(t *testing.T, apiKey string) (*API, *store.Store, http.Handler) {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	logger := zerolog.Nop()
	st := store.New(gdb, logger)
	idx := library.NewIndex()
	catalog, err := presets.Load()
	if err != nil {
		t.Fatalf("presets: %v", err)
	}
	bus := events.NewBus()
	aligner := clock.NewAligner(4, 24)
	encryptor, err := crypto.NewEncryptor("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("encryptor: %v", err)
	}
	registry := sessions.NewRegistry(logger)

	a := New(Deps{
		Store:        st,
		Index:        idx,
		Gate:         auth.NewGate(apiKey),
		Encryptor:    encryptor,
		Runtime:      stubRuntime{},
		Materializer: materializer.New(st, idx, catalog, nil, bus, logger),
		Scheduler:    scheduler.New(st, idx, aligner, bus, logger),
		Tuner:        tuner.New(st, aligner),
		Proxy:        stream.NewProxy(func() *upstream.Client { return nil }, registry, logger),
		Sessions:     registry,
		IPTV:         iptv.New(st, aligner, nil, logger),
		Bus:          bus,
		Aligner:      aligner,
		AllowPrivate: true,
		Logger:       logger,
	})
	router := chi.NewRouter()
	a.Routes(router)
	return a, st, router
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGatePublicAndProtectedRoutes(t *testing.T) {
	_, _, h := newTestAPI(t, "sekrit")

	if rec := doJSON(t, h, http.MethodGet, "/api/health", nil, nil); rec.Code != http.StatusOK {
		t.Errorf("health without key = %d", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodGet, "/api/auth/status", nil, nil); rec.Code != http.StatusOK {
		t.Errorf("auth status without key = %d", rec.Code)
	} else if !bytes.Contains(rec.Body.Bytes(), []byte(`"auth_required":true`)) {
		t.Errorf("auth status body = %s", rec.Body.String())
	}
	if rec := doJSON(t, h, http.MethodGet, "/api/channels", nil, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("channels without key = %d", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodGet, "/api/channels", nil, map[string]string{auth.HeaderName: "sekrit"}); rec.Code != http.StatusOK {
		t.Errorf("channels with key = %d", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodGet, "/api/channels?api_key=sekrit", nil, nil); rec.Code != http.StatusOK {
		t.Errorf("channels with query key = %d", rec.Code)
	}
}

func TestServerUpdate(t *testing.T) {
	_, st, h := newTestAPI(t, "")

	server := &models.Server{Name: "Den", URL: "http://media.local", Username: "alice", AccessToken: "enc", UserID: "u1"}
	if err := st.CreateServer(context.Background(), server); err != nil {
		t.Fatalf("seed server: %v", err)
	}

	rec := doJSON(t, h, http.MethodPut, "/api/servers/"+server.ID, map[string]any{"name": "Living Room"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("rename = %d: %s", rec.Code, rec.Body.String())
	}
	updated, err := st.GetServer(context.Background(), server.ID)
	if err != nil {
		t.Fatalf("GetServer: %v", err)
	}
	if updated.Name != "Living Room" || updated.URL != "http://media.local" || updated.Username != "alice" {
		t.Errorf("updated = %+v", updated)
	}

	// A new URL invalidates the stored token; without a password there is
	// nothing to re-authenticate with.
	rec = doJSON(t, h, http.MethodPut, "/api/servers/"+server.ID, map[string]any{"url": "http://other.local"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("url change without password = %d: %s", rec.Code, rec.Body.String())
	}
	if rec = doJSON(t, h, http.MethodPut, "/api/servers/"+server.ID, map[string]any{"username": "bob"}, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("username change without password = %d", rec.Code)
	}

	if rec = doJSON(t, h, http.MethodPut, "/api/servers/no-such", map[string]any{"name": "x"}, nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown server = %d", rec.Code)
	}
}

func TestChannelCRUD(t *testing.T) {
	_, _, h := newTestAPI(t, "")

	rec := doJSON(t, h, http.MethodPost, "/api/channels", map[string]any{
		"name":     "Late Night",
		"item_ids": []string{"m1", "m2"},
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d: %s", rec.Code, rec.Body.String())
	}
	var created models.Channel
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Kind != models.ChannelCustom || created.Number != 1 {
		t.Errorf("created = %+v", created)
	}

	rec = doJSON(t, h, http.MethodPut, "/api/channels/"+created.ID, map[string]any{"name": "After Dark"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("update = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet, "/api/channels/"+created.ID, nil, nil)
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte("After Dark")) {
		t.Errorf("get = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodDelete, "/api/channels/"+created.ID, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete = %d", rec.Code)
	}
	if rec = doJSON(t, h, http.MethodGet, "/api/channels/"+created.ID, nil, nil); rec.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d", rec.Code)
	}
}

func TestSettingsRejectUnknownKey(t *testing.T) {
	_, _, h := newTestAPI(t, "")

	rec := doJSON(t, h, http.MethodPut, "/api/settings", map[string]any{"no_such_setting": true}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown key = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPut, "/api/settings", map[string]any{"iptv_enabled": true}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("known key = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet, "/api/settings", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get = %d", rec.Code)
	}
	var resp settingsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(resp.Values[models.SettingIPTVEnabled]) != "true" {
		t.Errorf("iptv_enabled = %s", resp.Values[models.SettingIPTVEnabled])
	}
	if resp.Docs[models.SettingRatingFilter] == "" {
		t.Error("rating_filter docs missing")
	}
}

func TestSettingsRejectMalformedRatingFilter(t *testing.T) {
	_, _, h := newTestAPI(t, "")
	rec := doJSON(t, h, http.MethodPut, "/api/settings", map[string]any{
		"rating_filter": "not-an-object",
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed rating_filter = %d", rec.Code)
	}
}

func TestIPTVDisabledReturns403(t *testing.T) {
	_, _, h := newTestAPI(t, "")
	for _, path := range []string{"/api/iptv/playlist.m3u", "/api/iptv/epg.xml", "/api/iptv/channel/1"} {
		if rec := doJSON(t, h, http.MethodGet, path, nil, nil); rec.Code != http.StatusForbidden {
			t.Errorf("%s = %d, want 403", path, rec.Code)
		}
	}
}

func TestIPTVChannelNothingAiring(t *testing.T) {
	_, st, h := newTestAPI(t, "")
	ctx := context.Background()
	if err := st.SetSetting(ctx, models.SettingIPTVEnabled, true); err != nil {
		t.Fatalf("set: %v", err)
	}
	ch := &models.Channel{Name: "Action", Kind: models.ChannelAuto}
	if err := st.CreateChannel(ctx, ch); err != nil {
		t.Fatalf("create channel: %v", err)
	}

	rec := doJSON(t, h, http.MethodGet, "/api/iptv/channel/1", nil, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}
}

func TestScheduleNowNothingAiring(t *testing.T) {
	_, st, h := newTestAPI(t, "")
	ch := &models.Channel{Name: "Action", Kind: models.ChannelAuto}
	if err := st.CreateChannel(context.Background(), ch); err != nil {
		t.Fatalf("create channel: %v", err)
	}
	rec := doJSON(t, h, http.MethodGet, "/api/schedule/"+ch.ID+"/now", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestStatsEmpty(t *testing.T) {
	_, _, h := newTestAPI(t, "")
	rec := doJSON(t, h, http.MethodGet, "/api/stats", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats = %d", rec.Code)
	}
	var resp statsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.SinceDays != 7 {
		t.Errorf("since_days = %d", resp.SinceDays)
	}
}

func TestScheduleAllEmptyChannels(t *testing.T) {
	_, st, h := newTestAPI(t, "")
	ch := &models.Channel{Name: "Action", Kind: models.ChannelAuto}
	if err := st.CreateChannel(context.Background(), ch); err != nil {
		t.Fatalf("create channel: %v", err)
	}
	rec := doJSON(t, h, http.MethodGet, "/api/schedule", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("schedule = %d", rec.Code)
	}
	var out []channelSchedule
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 || out[0].Channel.ID != ch.ID {
		t.Errorf("schedule = %+v", out)
	}
}
