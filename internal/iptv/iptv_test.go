/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package iptv

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/friendsincode/prevue/internal/clock"
	"github.com/friendsincode/prevue/internal/db"
	"github.com/friendsincode/prevue/internal/models"
	"github.com/friendsincode/prevue/internal/store"
)

func newTestEmitter(t *testing.T) (*Emitter, *store.Store) {
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
	st := store.New(gdb, zerolog.Nop())
	e := New(st, clock.NewAligner(4, 24), nil, zerolog.Nop())
	e.now = func() time.Time { return time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC) }
	return e, st
}

func seedChannel(t *testing.T, st *store.Store) *models.Channel {
	t.Helper()
	ctx := context.Background()
	ch := &models.Channel{Name: "Action", Kind: models.ChannelAuto}
	if err := st.CreateChannel(ctx, ch); err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}
	start := time.Date(2026, 8, 25, 4, 0, 0, 0, time.UTC)
	block := &models.ScheduleBlock{
		ChannelID:  ch.ID,
		BlockStart: start,
		BlockEnd:   start.Add(24 * time.Hour),
		Programs: []models.ScheduleProgram{
			{Kind: models.ProgramEntry, ItemID: "m1", Title: "Heat", Year: 1995, Rating: "R",
				StartTime: start.Add(7 * time.Hour), EndTime: start.Add(10 * time.Hour), DurationMs: 3 * 3_600_000},
			{Kind: models.InterstitialEntry, Title: "Coming Up Next",
				StartTime: start.Add(10 * time.Hour), EndTime: start.Add(10*time.Hour + 5*time.Minute), DurationMs: 5 * 60_000},
		},
	}
	if err := st.UpsertScheduleBlock(ctx, block); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	return ch
}

func TestPlaylist(t *testing.T) {
	e, st := newTestEmitter(t)
	ch := seedChannel(t, st)

	out, err := e.Playlist(context.Background(), "http://prevue.local:3080/")
	if err != nil {
		t.Fatalf("Playlist: %v", err)
	}
	if !strings.HasPrefix(out, `#EXTM3U url-tvg="http://prevue.local:3080/api/iptv/epg.xml"`) {
		t.Errorf("header wrong: %s", out)
	}
	if !strings.Contains(out, `tvg-id="ch-1"`) || !strings.Contains(out, `tvg-chno="1"`) {
		t.Errorf("tvg attributes missing: %s", out)
	}
	if !strings.Contains(out, `tvg-logo="" group-title=`) {
		t.Errorf("tvg-logo attribute missing: %s", out)
	}
	if !strings.Contains(out, ",Action\n") {
		t.Errorf("display name missing: %s", out)
	}
	if !strings.Contains(out, "http://prevue.local:3080/api/iptv/channel/"+ChannelID(ch.Number)[3:]) {
		t.Errorf("stream URL missing: %s", out)
	}
}

func TestEPG(t *testing.T) {
	e, st := newTestEmitter(t)
	seedChannel(t, st)

	out, err := e.EPG(context.Background(), "http://prevue.local:3080", 12)
	if err != nil {
		t.Fatalf("EPG: %v", err)
	}
	if !strings.Contains(out, `<channel id="ch-1">`) {
		t.Errorf("channel element missing: %s", out)
	}
	// 11:00 UTC start rendered in XMLTV layout.
	if !strings.Contains(out, `start="20260825110000 +0000"`) {
		t.Errorf("programme start missing: %s", out)
	}
	if !strings.Contains(out, "<title>Heat</title>") {
		t.Errorf("title missing: %s", out)
	}
	if !strings.Contains(out, "<value>R</value>") {
		t.Errorf("rating missing: %s", out)
	}
	// Interstitials appear as bare titled entries.
	if !strings.Contains(out, "<title>Coming Up Next</title>") {
		t.Errorf("interstitial missing: %s", out)
	}
}
