/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/prevue/internal/clock"
	"github.com/friendsincode/prevue/internal/events"
	"github.com/friendsincode/prevue/internal/library"
	"github.com/friendsincode/prevue/internal/models"
	"github.com/friendsincode/prevue/internal/store"
	"github.com/friendsincode/prevue/internal/telemetry"
)

// eagerExtendWindow: when the current block ends this soon, maintenance also
// generates the block after next so tuners never race the generator.
const eagerExtendWindow = time.Hour

// retainWindow is how long expired blocks stay queryable before cleanup.
const retainWindow = 24 * time.Hour

// Scheduler owns block generation across all channels: extension, periodic
// maintenance, and full regeneration.
type Scheduler struct {
	store   *store.Store
	aligner clock.Aligner
	gen     *Generator
	bus     *events.Bus
	logger  zerolog.Logger

	now func() time.Time
}

// New constructs the scheduler service.
func New(st *store.Store, idx *library.Index, aligner clock.Aligner, bus *events.Bus, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		store:   st,
		aligner: aligner,
		gen:     NewGenerator(aligner, idx, st, logger),
		bus:     bus,
		logger:  logger.With().Str("component", "scheduler").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ratingFilter loads the global rating filter; absent means inactive.
func (s *Scheduler) ratingFilter(ctx context.Context) *models.RatingFilter {
	var filter models.RatingFilter
	err := s.store.GetSettingInto(ctx, models.SettingRatingFilter, &filter)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn().Err(err).Msg("rating filter load failed, scheduling without it")
		}
		return nil
	}
	return &filter
}

// horizonStarts lists the block starts needed to cover 24 hours of programming
// from the aligned start of the current block.
func (s *Scheduler) horizonStarts(now time.Time) []time.Time {
	var starts []time.Time
	target := now.Add(24 * time.Hour)
	for t := s.aligner.BlockStart(now); t.Before(target); t = s.aligner.NextBlockStart(t) {
		starts = append(starts, t)
	}
	return starts
}

// ExtendSchedules makes sure every channel has blocks covering at least the
// next 24 hours. Existing blocks are kept; missing ones are generated against
// a shared tracker preloaded with everything already persisted in the window,
// channels in id order, so cross-channel de-duplication holds across runs.
func (s *Scheduler) ExtendSchedules(ctx context.Context) error {
	now := s.now()
	starts := s.horizonStarts(now)
	if len(starts) == 0 {
		return nil
	}
	windowEnd := s.aligner.BlockEnd(starts[len(starts)-1])

	channels, err := s.store.ListChannels(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: list channels: %w", err)
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i].ID < channels[j].ID })

	existing, err := s.store.GetAllBlocksInRange(ctx, starts[0], windowEnd)
	if err != nil {
		return fmt.Errorf("scheduler: load existing blocks: %w", err)
	}
	tracker := NewGlobalTracker()
	tracker.Preload(existing)

	have := map[string]map[time.Time]bool{}
	for _, block := range existing {
		if have[block.ChannelID] == nil {
			have[block.ChannelID] = map[time.Time]bool{}
		}
		have[block.ChannelID][block.BlockStart.UTC()] = true
	}

	rating := s.ratingFilter(ctx)
	generated := 0
	for i := range channels {
		channel := &channels[i]
		for _, start := range starts {
			if have[channel.ID][start.UTC()] {
				continue
			}
			if err := s.generateAndStore(ctx, channel, start, tracker, rating); err != nil {
				telemetry.SchedulerErrorsTotal.WithLabelValues("extend").Inc()
				return err
			}
			generated++
		}
		runtime.Gosched()
	}

	if generated > 0 {
		s.logger.Info().Int("blocks", generated).Int("channels", len(channels)).Msg("schedules extended")
		if s.bus != nil {
			s.bus.Publish(events.EventScheduleExtended, events.Payload{"blocks": generated})
		}
	}
	return nil
}

func (s *Scheduler) generateAndStore(ctx context.Context, channel *models.Channel, start time.Time, tracker *GlobalTracker, rating *models.RatingFilter) error {
	began := time.Now()
	block, err := s.gen.GenerateBlock(ctx, channel, start, tracker, rating)
	if err != nil {
		return fmt.Errorf("scheduler: generate block for %s: %w", channel.Name, err)
	}
	if err := s.store.UpsertScheduleBlock(ctx, block); err != nil {
		return fmt.Errorf("scheduler: store block for %s: %w", channel.Name, err)
	}
	telemetry.ScheduleBlocksGeneratedTotal.WithLabelValues(channel.Name).Inc()
	telemetry.ScheduleBuildDuration.WithLabelValues(channel.Name).Observe(time.Since(began).Seconds())
	if s.bus != nil {
		s.bus.Publish(events.EventGenerationProgress, events.Payload{
			"step":    "schedule",
			"message": "Scheduled " + channel.Name,
		})
	}
	return nil
}

// MaintainSchedules is the periodic pass: guarantee current and next blocks
// per channel, generate eagerly near a block boundary, then drop expired
// blocks.
func (s *Scheduler) MaintainSchedules(ctx context.Context) error {
	if err := s.ExtendSchedules(ctx); err != nil {
		return err
	}

	now := s.now()
	current := s.aligner.BlockStart(now)
	if s.aligner.BlockEnd(current).Sub(now) < eagerExtendWindow {
		afterNext := s.aligner.NextBlockStart(s.aligner.NextBlockStart(current))
		if err := s.ensureBlockAt(ctx, afterNext); err != nil {
			return err
		}
	}

	return s.CleanOldBlocks(ctx)
}

func (s *Scheduler) ensureBlockAt(ctx context.Context, start time.Time) error {
	channels, err := s.store.ListChannels(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: list channels: %w", err)
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i].ID < channels[j].ID })

	existing, err := s.store.GetAllBlocksInRange(ctx, start, s.aligner.BlockEnd(start))
	if err != nil {
		return err
	}
	tracker := NewGlobalTracker()
	tracker.Preload(existing)
	have := map[string]bool{}
	for _, block := range existing {
		if block.BlockStart.UTC().Equal(start.UTC()) {
			have[block.ChannelID] = true
		}
	}

	rating := s.ratingFilter(ctx)
	for i := range channels {
		if have[channels[i].ID] {
			continue
		}
		if err := s.generateAndStore(ctx, &channels[i], start, tracker, rating); err != nil {
			telemetry.SchedulerErrorsTotal.WithLabelValues("eager").Inc()
			return err
		}
		runtime.Gosched()
	}
	return nil
}

// CleanOldBlocks deletes blocks that ended more than a day ago.
func (s *Scheduler) CleanOldBlocks(ctx context.Context) error {
	affected, err := s.store.CleanOldScheduleBlocks(ctx, s.now().Add(-retainWindow))
	if err != nil {
		telemetry.SchedulerErrorsTotal.WithLabelValues("cleanup").Inc()
		return fmt.Errorf("scheduler: clean old blocks: %w", err)
	}
	if affected > 0 {
		s.logger.Debug().Int64("blocks", affected).Msg("expired blocks cleaned")
	}
	return nil
}

// RegenerateAll wipes every block and rebuilds the 24-hour horizon. Channel
// regeneration calls this after materialization.
func (s *Scheduler) RegenerateAll(ctx context.Context) error {
	if err := s.store.DeleteAllScheduleBlocks(ctx); err != nil {
		return fmt.Errorf("scheduler: delete blocks: %w", err)
	}
	return s.ExtendSchedules(ctx)
}
