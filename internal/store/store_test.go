/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/friendsincode/prevue/internal/db"
	"github.com/friendsincode/prevue/internal/library"
	"github.com/friendsincode/prevue/internal/models"
)

func newTestStore(t *testing.T) *Store {
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
	return New(gdb, zerolog.Nop())
}

func TestFirstServerBecomesActive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &models.Server{Name: "a", URL: "http://a"}
	if err := s.CreateServer(ctx, first); err != nil {
		t.Fatalf("CreateServer: %v", err)
	}
	second := &models.Server{Name: "b", URL: "http://b"}
	if err := s.CreateServer(ctx, second); err != nil {
		t.Fatalf("CreateServer: %v", err)
	}

	active, err := s.GetActiveServer(ctx)
	if err != nil {
		t.Fatalf("GetActiveServer: %v", err)
	}
	if active.ID != first.ID {
		t.Errorf("active = %s, want first server", active.Name)
	}

	if err := s.ActivateServer(ctx, second.ID); err != nil {
		t.Fatalf("ActivateServer: %v", err)
	}
	active, err = s.GetActiveServer(ctx)
	if err != nil {
		t.Fatalf("GetActiveServer: %v", err)
	}
	if active.ID != second.ID {
		t.Errorf("active = %s after activation", active.Name)
	}
	var count int64
	s.DB().Model(&models.Server{}).Where("is_active = ?", true).Count(&count)
	if count != 1 {
		t.Errorf("active count = %d", count)
	}
}

func TestChannelNumbering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, name := range []string{"Action", "Comedy", "Drama"} {
		ch := &models.Channel{Name: name, Kind: models.ChannelAuto}
		if err := s.CreateChannel(ctx, ch); err != nil {
			t.Fatalf("CreateChannel(%s): %v", name, err)
		}
		if ch.Number != i+1 {
			t.Errorf("channel %s number = %d, want %d", name, ch.Number, i+1)
		}
	}

	// Deleting the middle channel must not renumber; the next create takes max+1.
	comedy, err := s.GetChannelByNumber(ctx, 2)
	if err != nil {
		t.Fatalf("GetChannelByNumber: %v", err)
	}
	if err := s.DeleteChannel(ctx, comedy.ID); err != nil {
		t.Fatalf("DeleteChannel: %v", err)
	}
	next := &models.Channel{Name: "SciFi", Kind: models.ChannelCustom}
	if err := s.CreateChannel(ctx, next); err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}
	if next.Number != 4 {
		t.Errorf("number after delete = %d, want 4", next.Number)
	}
}

func TestUpsertScheduleBlockIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ch := &models.Channel{Name: "Movies", Kind: models.ChannelAuto}
	if err := s.CreateChannel(ctx, ch); err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}

	start := time.Date(2026, 8, 25, 4, 0, 0, 0, time.UTC)
	block := &models.ScheduleBlock{
		ChannelID:  ch.ID,
		BlockStart: start,
		BlockEnd:   start.Add(24 * time.Hour),
		Seed:       "abc",
		Programs: []models.ScheduleProgram{{
			Kind: models.ProgramEntry, ItemID: "m1", Title: "Heat",
			StartTime: start, EndTime: start.Add(2 * time.Hour), DurationMs: 2 * 3600 * 1000,
		}},
	}
	if err := s.UpsertScheduleBlock(ctx, block); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	firstCreated := block.CreatedAt

	again := &models.ScheduleBlock{
		ChannelID:  ch.ID,
		BlockStart: start,
		BlockEnd:   start.Add(24 * time.Hour),
		Seed:       "abc",
		Programs:   block.Programs,
	}
	if err := s.UpsertScheduleBlock(ctx, again); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	var count int64
	s.DB().Model(&models.ScheduleBlock{}).Count(&count)
	if count != 1 {
		t.Fatalf("block count = %d, want 1", count)
	}
	if again.ID != block.ID {
		t.Errorf("upsert changed id %s -> %s", block.ID, again.ID)
	}
	if again.CreatedAt.Before(firstCreated) {
		t.Errorf("created_at went backwards")
	}
}

func TestItemsScheduledBetween(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ch := &models.Channel{Name: "Movies", Kind: models.ChannelAuto}
	if err := s.CreateChannel(ctx, ch); err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}
	start := time.Date(2026, 8, 25, 4, 0, 0, 0, time.UTC)
	block := &models.ScheduleBlock{
		ChannelID:  ch.ID,
		BlockStart: start,
		BlockEnd:   start.Add(24 * time.Hour),
		Programs: []models.ScheduleProgram{
			{Kind: models.ProgramEntry, ItemID: "m1", StartTime: start, EndTime: start.Add(2 * time.Hour)},
			{Kind: models.InterstitialEntry, StartTime: start.Add(2 * time.Hour), EndTime: start.Add(2*time.Hour + 5*time.Minute)},
			{Kind: models.ProgramEntry, ItemID: "m2", StartTime: start.Add(20 * time.Hour), EndTime: start.Add(22 * time.Hour)},
		},
	}
	if err := s.UpsertScheduleBlock(ctx, block); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	items, err := s.ItemsScheduledBetween(ctx, ch.ID, start, start.Add(8*time.Hour))
	if err != nil {
		t.Fatalf("ItemsScheduledBetween: %v", err)
	}
	if _, ok := items["m1"]; !ok {
		t.Error("m1 missing from window")
	}
	if _, ok := items["m2"]; ok {
		t.Error("m2 outside window but returned")
	}
	if len(items) != 1 {
		t.Errorf("len(items) = %d", len(items))
	}
}

func TestDeleteActiveServerCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	server := &models.Server{Name: "a", URL: "http://a"}
	if err := s.CreateServer(ctx, server); err != nil {
		t.Fatalf("CreateServer: %v", err)
	}
	ch := &models.Channel{Name: "Action", Kind: models.ChannelAuto}
	if err := s.CreateChannel(ctx, ch); err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}
	start := time.Date(2026, 8, 25, 4, 0, 0, 0, time.UTC)
	if err := s.UpsertScheduleBlock(ctx, &models.ScheduleBlock{
		ChannelID: ch.ID, BlockStart: start, BlockEnd: start.Add(24 * time.Hour),
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.ReplaceLibraryCache(ctx, server.ID, []library.Item{{ID: "m1", Kind: library.KindMovie, Name: "Heat"}}); err != nil {
		t.Fatalf("ReplaceLibraryCache: %v", err)
	}

	if err := s.DeleteServer(ctx, server.ID); err != nil {
		t.Fatalf("DeleteServer: %v", err)
	}
	for _, tc := range []struct {
		name  string
		model any
	}{
		{"channels", &models.Channel{}},
		{"blocks", &models.ScheduleBlock{}},
		{"library cache", &models.LibraryCacheEntry{}},
		{"servers", &models.Server{}},
	} {
		var count int64
		s.DB().Model(tc.model).Count(&count)
		if count != 0 {
			t.Errorf("%s count = %d after active server delete", tc.name, count)
		}
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetSetting(ctx, "iptv_enabled"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing key err = %v", err)
	}
	if err := s.SetSetting(ctx, "iptv_enabled", true); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	var enabled bool
	if err := s.GetSettingInto(ctx, "iptv_enabled", &enabled); err != nil || !enabled {
		t.Fatalf("GetSettingInto: %v enabled=%v", err, enabled)
	}

	// Overwrite in place.
	if err := s.SetSetting(ctx, "iptv_enabled", false); err != nil {
		t.Fatalf("SetSetting overwrite: %v", err)
	}
	if err := s.GetSettingInto(ctx, "iptv_enabled", &enabled); err != nil || enabled {
		t.Fatalf("after overwrite: %v enabled=%v", err, enabled)
	}
	var count int64
	s.DB().Model(&models.Setting{}).Count(&count)
	if count != 1 {
		t.Errorf("settings rows = %d", count)
	}
}

func TestLibraryCacheSkipsCorruptRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	server := &models.Server{Name: "a", URL: "http://a"}
	if err := s.CreateServer(ctx, server); err != nil {
		t.Fatalf("CreateServer: %v", err)
	}
	if err := s.ReplaceLibraryCache(ctx, server.ID, []library.Item{
		{ID: "m1", Kind: library.KindMovie, Name: "Heat"},
		{ID: "m2", Kind: library.KindMovie, Name: "Ronin"},
	}); err != nil {
		t.Fatalf("ReplaceLibraryCache: %v", err)
	}
	s.DB().Model(&models.LibraryCacheEntry{}).
		Where("item_id = ?", "m2").
		Update("payload", []byte("{not json"))

	items, err := s.LoadLibraryCache(ctx, server.ID)
	if err != nil {
		t.Fatalf("LoadLibraryCache: %v", err)
	}
	if len(items) != 1 || items[0].ID != "m1" {
		t.Errorf("items = %+v", items)
	}
}

func TestWatchSessionTouch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 25, 20, 0, 0, 0, time.UTC)
	nowUTC = func() time.Time { return base }
	defer func() { nowUTC = func() time.Time { return time.Now().UTC() } }()

	session := &models.WatchSession{
		ChannelID: "ch1", ChannelName: "Action", ItemID: "m1", Title: "Heat",
	}
	if err := s.CreateWatchSession(ctx, session); err != nil {
		t.Fatalf("CreateWatchSession: %v", err)
	}

	nowUTC = func() time.Time { return base.Add(2 * time.Minute) }
	if err := s.TouchWatchSession(ctx, session.ID, models.WatchEventProgress, 120_000); err != nil {
		t.Fatalf("TouchWatchSession: %v", err)
	}
	var got models.WatchSession
	if err := s.DB().First(&got, "id = ?", session.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.WatchedMs != (2 * time.Minute).Milliseconds() {
		t.Errorf("watched_ms = %d", got.WatchedMs)
	}

	// A gap past the cap contributes nothing.
	nowUTC = func() time.Time { return base.Add(2*time.Minute + 30*time.Minute) }
	if err := s.TouchWatchSession(ctx, session.ID, models.WatchEventProgress, 240_000); err != nil {
		t.Fatalf("TouchWatchSession: %v", err)
	}
	if err := s.DB().First(&got, "id = ?", session.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.WatchedMs != (2 * time.Minute).Milliseconds() {
		t.Errorf("watched_ms after capped gap = %d", got.WatchedMs)
	}

	rows, err := s.TopChannels(ctx, base.Add(-time.Hour), 5)
	if err != nil {
		t.Fatalf("TopChannels: %v", err)
	}
	if len(rows) != 1 || rows[0].ChannelID != "ch1" {
		t.Errorf("rows = %+v", rows)
	}
}
