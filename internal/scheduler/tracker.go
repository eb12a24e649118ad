/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"sync"
	"time"

	"github.com/friendsincode/prevue/internal/models"
)

// GlobalTracker records when each item airs across all channels so extension
// passes avoid scheduling the same title on two channels at once. Nil trackers
// are valid and track nothing (single-channel generation).
type GlobalTracker struct {
	mu        sync.Mutex
	intervals map[string][]interval
}

type interval struct {
	start, end time.Time
}

// NewGlobalTracker returns an empty tracker.
func NewGlobalTracker() *GlobalTracker {
	return &GlobalTracker{intervals: map[string][]interval{}}
}

// Preload adds every non-interstitial program of the given blocks.
func (t *GlobalTracker) Preload(blocks []models.ScheduleBlock) {
	for _, block := range blocks {
		for _, program := range block.Programs {
			if program.IsInterstitial() || program.ItemID == "" {
				continue
			}
			t.Add(program.ItemID, program.StartTime, program.EndTime)
		}
	}
}

// Conflicts reports whether the item already airs somewhere during [start, end).
func (t *GlobalTracker) Conflicts(itemID string, start, end time.Time) bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, iv := range t.intervals[itemID] {
		if iv.end.After(start) && iv.start.Before(end) {
			return true
		}
	}
	return false
}

// Add records an airing.
func (t *GlobalTracker) Add(itemID string, start, end time.Time) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.intervals[itemID] = append(t.intervals[itemID], interval{start, end})
}
