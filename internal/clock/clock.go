/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package clock maps wall-clock instants onto schedule block boundaries.
// All functions are pure and must stay bit-identical across releases: block
// seeds and persisted schedules both depend on their output.
package clock

import "time"

// Upstream reports durations in 100-nanosecond ticks.
const ticksPerMillisecond = 10_000

// Aligner derives block boundaries from a daily start hour and block length.
type Aligner struct {
	DayStartHour int
	BlockHours   int
}

// NewAligner returns an Aligner. Out-of-range values fall back to the
// defaults (hour 4, 24-hour blocks) rather than erroring; config validates
// the real inputs at boot.
func NewAligner(dayStartHour, blockHours int) Aligner {
	if dayStartHour < 0 || dayStartHour > 23 {
		dayStartHour = 4
	}
	if blockHours < 1 {
		blockHours = 24
	}
	return Aligner{DayStartHour: dayStartHour, BlockHours: blockHours}
}

// BlockStart returns the largest instant not after t whose local hour equals
// the day start hour with zero minutes, seconds, and sub-seconds.
func (a Aligner) BlockStart(t time.Time) time.Time {
	start := time.Date(t.Year(), t.Month(), t.Day(), a.DayStartHour, 0, 0, 0, t.Location())
	if start.After(t) {
		start = start.AddDate(0, 0, -1)
	}
	return start
}

// BlockEnd returns the end of the block beginning at start.
func (a Aligner) BlockEnd(start time.Time) time.Time {
	return start.Add(time.Duration(a.BlockHours) * time.Hour)
}

// NextBlockStart returns the start of the following block.
func (a Aligner) NextBlockStart(start time.Time) time.Time {
	return a.BlockEnd(start)
}

// BlockDurationMs returns the block length in milliseconds.
func (a Aligner) BlockDurationMs() int64 {
	return int64(a.BlockHours) * 3_600_000
}

// SnapTo15Min rounds t to the nearest quarter hour, zeroing seconds and
// sub-seconds.
func SnapTo15Min(t time.Time) time.Time {
	return t.Round(15 * time.Minute)
}

// SnapForwardTo15Min rounds t up to the next quarter hour. An instant already
// on a boundary (ignoring sub-minute noise) is returned truncated, not moved.
func SnapForwardTo15Min(t time.Time) time.Time {
	truncated := t.Truncate(15 * time.Minute)
	if truncated.Equal(t) {
		return truncated
	}
	return truncated.Add(15 * time.Minute)
}

// TicksToMs converts Upstream 100-ns ticks to milliseconds, rounding half up.
func TicksToMs(ticks int64) int64 {
	if ticks < 0 {
		return 0
	}
	return (ticks + ticksPerMillisecond/2) / ticksPerMillisecond
}

// MsToTicks converts milliseconds to Upstream 100-ns ticks.
func MsToTicks(ms int64) int64 {
	return ms * ticksPerMillisecond
}
