/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/prevue/internal/clock"
	"github.com/friendsincode/prevue/internal/library"
	"github.com/friendsincode/prevue/internal/models"
)

func TestExtendSchedulesCovers24Hours(t *testing.T) {
	items := movies(10, 2)
	st := newTestStore(t)
	idx := library.NewIndex()
	idx.Replace(items)
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	ctx := context.Background()
	ch := &models.Channel{Name: "Movies", Kind: models.ChannelAuto, ItemIDs: ids}
	if err := st.CreateChannel(ctx, ch); err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}

	s := New(st, idx, clock.NewAligner(4, 24), nil, zerolog.Nop())
	// 10:30, well inside the block that started at 04:00. Covering now+24h
	// needs both the current and the next block.
	now := time.Date(2026, 8, 25, 10, 30, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	if err := s.ExtendSchedules(ctx); err != nil {
		t.Fatalf("ExtendSchedules: %v", err)
	}
	blocks, err := st.GetScheduleBlocksInRange(ctx, ch.ID, now, now.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("GetScheduleBlocksInRange: %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("blocks in horizon = %d, want 2", len(blocks))
	}
	if !blocks[0].BlockStart.UTC().Equal(time.Date(2026, 8, 25, 4, 0, 0, 0, time.UTC)) {
		t.Errorf("first block starts %v", blocks[0].BlockStart)
	}
	if blocks[1].BlockEnd.UTC().Before(now.Add(24 * time.Hour)) {
		t.Errorf("coverage ends %v, want at least %v", blocks[1].BlockEnd, now.Add(24*time.Hour))
	}

	// A second pass regenerates nothing and changes nothing.
	before := blocks[0].Seed
	if err := s.ExtendSchedules(ctx); err != nil {
		t.Fatalf("second ExtendSchedules: %v", err)
	}
	blocks, _ = st.GetScheduleBlocksInRange(ctx, ch.ID, now, now.Add(24*time.Hour))
	if len(blocks) != 2 || blocks[0].Seed != before {
		t.Errorf("idempotent extension violated")
	}
}

func TestMaintainSchedulesEagerNearBoundary(t *testing.T) {
	items := movies(10, 2)
	st := newTestStore(t)
	idx := library.NewIndex()
	idx.Replace(items)
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	ctx := context.Background()
	ch := &models.Channel{Name: "Movies", Kind: models.ChannelAuto, ItemIDs: ids}
	if err := st.CreateChannel(ctx, ch); err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}

	s := New(st, idx, clock.NewAligner(4, 24), nil, zerolog.Nop())
	// 03:30, thirty minutes from the block boundary at 04:00.
	now := time.Date(2026, 8, 26, 3, 30, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	if err := s.MaintainSchedules(ctx); err != nil {
		t.Fatalf("MaintainSchedules: %v", err)
	}
	// Current block (started Aug 25 04:00), next (Aug 26 04:00), and the
	// eager block after next (Aug 27 04:00).
	afterNext := time.Date(2026, 8, 27, 4, 0, 0, 0, time.UTC)
	if _, err := st.GetScheduleBlock(ctx, ch.ID, afterNext); err != nil {
		t.Errorf("eager block missing: %v", err)
	}
}

func TestRegenerateAllReplacesBlocks(t *testing.T) {
	items := movies(10, 2)
	st := newTestStore(t)
	idx := library.NewIndex()
	idx.Replace(items)
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	ctx := context.Background()
	ch := &models.Channel{Name: "Movies", Kind: models.ChannelAuto, ItemIDs: ids}
	if err := st.CreateChannel(ctx, ch); err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}
	s := New(st, idx, clock.NewAligner(4, 24), nil, zerolog.Nop())
	now := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	if err := s.ExtendSchedules(ctx); err != nil {
		t.Fatalf("ExtendSchedules: %v", err)
	}
	if err := s.RegenerateAll(ctx); err != nil {
		t.Fatalf("RegenerateAll: %v", err)
	}
	blocks, err := st.GetScheduleBlocksInRange(ctx, ch.ID, now, now.Add(24*time.Hour))
	if err != nil || len(blocks) == 0 {
		t.Fatalf("blocks after regenerate = %d, err %v", len(blocks), err)
	}
}
