/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package tuner answers "what is on channel X right now". It is a pure read
// layer over persisted schedule blocks.
package tuner

import (
	"context"
	"errors"
	"time"

	"github.com/friendsincode/prevue/internal/clock"
	"github.com/friendsincode/prevue/internal/models"
	"github.com/friendsincode/prevue/internal/store"
)

// ErrNothingAiring is returned when no program covers the requested instant,
// usually because generation has not caught up yet.
var ErrNothingAiring = errors.New("tuner: nothing airing")

// Tuning is the result of resolving a channel at an instant: the airing
// program, the one after it when known, and how far into the program the
// viewer joins.
type Tuning struct {
	Channel *models.Channel         `json:"channel"`
	Program *models.ScheduleProgram `json:"program"`
	Next    *models.ScheduleProgram `json:"next,omitempty"`
	SeekMs  int64                   `json:"seek_ms"`
}

// Tuner resolves channels to airing programs.
type Tuner struct {
	store   *store.Store
	aligner clock.Aligner
}

// New constructs a tuner.
func New(st *store.Store, aligner clock.Aligner) *Tuner {
	return &Tuner{store: st, aligner: aligner}
}

// Resolve finds what airs on the channel at now. The next program may come
// from the following block.
func (t *Tuner) Resolve(ctx context.Context, channelID string, now time.Time) (*Tuning, error) {
	channel, err := t.store.GetChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	now = now.UTC()

	// Current and next block cover every case including a program that
	// straddles the boundary.
	current := t.aligner.BlockStart(now)
	blocks, err := t.store.GetScheduleBlocksInRange(ctx, channelID,
		current, t.aligner.BlockEnd(t.aligner.NextBlockStart(current)))
	if err != nil {
		return nil, err
	}

	var programs []models.ScheduleProgram
	for _, block := range blocks {
		programs = append(programs, block.Programs...)
	}
	for i := range programs {
		p := &programs[i]
		if p.StartTime.After(now) || !p.EndTime.After(now) {
			continue
		}
		tuning := &Tuning{
			Channel: channel,
			Program: p,
			SeekMs:  now.Sub(p.StartTime).Milliseconds(),
		}
		if i+1 < len(programs) {
			tuning.Next = &programs[i+1]
		}
		return tuning, nil
	}
	return nil, ErrNothingAiring
}

// ResolveByNumber is Resolve keyed by tuner channel number, used by IPTV
// clients.
func (t *Tuner) ResolveByNumber(ctx context.Context, number int, now time.Time) (*Tuning, error) {
	channel, err := t.store.GetChannelByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	return t.Resolve(ctx, channel.ID, now)
}
