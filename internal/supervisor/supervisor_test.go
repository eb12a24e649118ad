/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/friendsincode/prevue/internal/clock"
	"github.com/friendsincode/prevue/internal/config"
	"github.com/friendsincode/prevue/internal/crypto"
	"github.com/friendsincode/prevue/internal/db"
	"github.com/friendsincode/prevue/internal/events"
	"github.com/friendsincode/prevue/internal/library"
	"github.com/friendsincode/prevue/internal/materializer"
	"github.com/friendsincode/prevue/internal/models"
	"github.com/friendsincode/prevue/internal/presets"
	"github.com/friendsincode/prevue/internal/scheduler"
	"github.com/friendsincode/prevue/internal/sessions"
	"github.com/friendsincode/prevue/internal/store"
)

const hourTicks = int64(3600) * 10_000_000

func newTestSupervisor(t *testing.T) (*Supervisor, *store.Store, *library.Index) {
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
	enc, err := crypto.NewEncryptor("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("encryptor: %v", err)
	}
	bus := events.NewBus()
	aligner := clock.NewAligner(4, 24)
	cfg := &config.Config{AllowPrivateURLs: true}

	sup := New(cfg, st, idx, enc,
		scheduler.New(st, idx, aligner, bus, logger),
		materializer.New(st, idx, catalog, nil, bus, logger),
		sessions.NewRegistry(logger),
		bus, logger)
	return sup, st, idx
}

// fakeUpstream serves just enough Jellyfin surface for boot: system info and
// a movie library.
func fakeUpstream(t *testing.T, movies int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/System/Info", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Version":"10.9.0"}`))
	})
	mux.HandleFunc("/Users/u1/Items", func(w http.ResponseWriter, r *http.Request) {
		items := make([]map[string]any, 0, movies)
		for i := 0; i < movies; i++ {
			items = append(items, map[string]any{
				"Id":             fmt.Sprintf("m%d", i+1),
				"Name":           fmt.Sprintf("Movie %d", i+1),
				"Type":           "Movie",
				"RunTimeTicks":   2 * hourTicks,
				"Genres":         []string{"Action"},
				"OfficialRating": "PG-13",
				"ProductionYear": 2000 + i,
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"Items":            items,
			"TotalRecordCount": movies,
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func seedServer(t *testing.T, sup *Supervisor, st *store.Store, url string) {
	t.Helper()
	token, err := sup.encryptor.Encrypt("tok")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	server := &models.Server{Name: "home", URL: url, Username: "u", AccessToken: token, UserID: "u1"}
	if err := st.CreateServer(context.Background(), server); err != nil {
		t.Fatalf("create server: %v", err)
	}
}

func TestRefreshActiveServerWithoutServer(t *testing.T) {
	sup, _, _ := newTestSupervisor(t)
	if err := sup.RefreshActiveServer(context.Background()); err != nil {
		t.Fatalf("RefreshActiveServer: %v", err)
	}
	if sup.Client() != nil {
		t.Error("client should be nil without an active server")
	}
}

func TestBootSyncsMaterializesAndSchedules(t *testing.T) {
	sup, st, idx := newTestSupervisor(t)
	srv := fakeUpstream(t, 3)
	seedServer(t, sup, st, srv.URL)

	ctx := context.Background()
	sup.boot(ctx)

	if idx.Size() != 3 {
		t.Fatalf("index size = %d, want 3", idx.Size())
	}
	channels, err := st.ListChannels(ctx)
	if err != nil {
		t.Fatalf("ListChannels: %v", err)
	}
	if len(channels) != 1 || channels[0].Name != "Action" {
		t.Fatalf("channels = %+v", channels)
	}

	// Boot extension covers at least 24h from the current block start.
	aligner := clock.NewAligner(4, 24)
	now := time.Now().UTC()
	blocks, err := st.GetScheduleBlocksInRange(ctx, channels[0].ID,
		aligner.BlockStart(now), now.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("blocks: %v", err)
	}
	if len(blocks) == 0 {
		t.Fatal("no schedule blocks generated at boot")
	}
}

func TestBootRehydratesWhenUpstreamDown(t *testing.T) {
	sup, st, idx := newTestSupervisor(t)
	srv := fakeUpstream(t, 0)
	seedServer(t, sup, st, srv.URL)

	ctx := context.Background()
	server, err := st.GetActiveServer(ctx)
	if err != nil {
		t.Fatalf("active server: %v", err)
	}
	cached := []library.Item{
		{ID: "m1", Kind: library.KindMovie, Name: "Cached Movie", RunTimeTicks: 2 * hourTicks},
	}
	if err := st.ReplaceLibraryCache(ctx, server.ID, cached); err != nil {
		t.Fatalf("cache: %v", err)
	}
	srv.Close() // upstream goes away before boot

	sup.boot(ctx)

	if idx.Size() != 1 {
		t.Fatalf("index size = %d, want 1 from cache", idx.Size())
	}
	if _, ok := idx.Get("m1"); !ok {
		t.Error("cached item missing from index")
	}
}

func TestSyncDue(t *testing.T) {
	sup, st, _ := newTestSupervisor(t)
	srv := fakeUpstream(t, 1)
	seedServer(t, sup, st, srv.URL)

	ctx := context.Background()
	if err := sup.RefreshActiveServer(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	// Never synced: due immediately under the default interval.
	if !sup.syncDue(ctx) {
		t.Error("expected sync due with zero lastSyncAt")
	}

	sup.mu.Lock()
	sup.lastSyncAt = time.Now()
	sup.mu.Unlock()
	if sup.syncDue(ctx) {
		t.Error("sync should not be due right after a sync")
	}

	// Explicit zero disables periodic sync entirely.
	if err := st.SetSetting(ctx, models.SettingSyncIntervalHours, 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	sup.mu.Lock()
	sup.lastSyncAt = time.Time{}
	sup.mu.Unlock()
	if sup.syncDue(ctx) {
		t.Error("sync_interval_hours=0 should disable periodic sync")
	}
}
