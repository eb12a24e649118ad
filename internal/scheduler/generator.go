/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scheduler generates deterministic 24-hour programming blocks.
// A block is fully determined by its seed (channel id + block start) and the
// channel's item list: regenerating with the same inputs yields byte-identical
// programs.
package scheduler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/prevue/internal/clock"
	"github.com/friendsincode/prevue/internal/library"
	"github.com/friendsincode/prevue/internal/models"
	"github.com/friendsincode/prevue/internal/rng"
	"github.com/friendsincode/prevue/internal/store"
)

const (
	maxFailedAttempts = 50
	relaxedPassAt     = 25
	moviePoolSize     = 20
	maxTailIterations = 100

	interstitialMs  = 5 * 60 * 1000
	tailThresholdMs = 30 * 60 * 1000

	cooldownWindow      = 24 * time.Hour
	movieCooldownWindow = 8 * time.Hour

	// episodeRunChance is the odds of starting an episode run on a mixed
	// channel instead of a movie.
	episodeRunChance = 0.6

	episodeRunMin = 2
	episodeRunMax = 5

	yieldEvery = 10
)

// Rating buckets keep kids and adult content from airing back to back.
const (
	bucketKids  = "kids"
	bucketAdult = "adult"
)

var kidsRatings = map[string]bool{
	"G": true, "PG": true,
	"TV-Y": true, "TV-Y7": true, "TV-Y7-FV": true,
	"TV-G": true, "TV-PG": true,
}

func bucketOf(rating string) string {
	if kidsRatings[strings.ToUpper(rating)] {
		return bucketKids
	}
	return bucketAdult
}

// BlockSeed derives the block seed. The hex form is persisted for inspection;
// the raw digest seeds the RNG.
func BlockSeed(channelID string, blockStart time.Time) (string, [32]byte) {
	digest := sha256.Sum256([]byte(channelID + blockStart.UTC().Format(time.RFC3339)))
	return hex.EncodeToString(digest[:]), digest
}

// Generator builds schedule blocks for channels.
type Generator struct {
	aligner clock.Aligner
	index   *library.Index
	store   *store.Store
	logger  zerolog.Logger
}

// NewGenerator constructs a generator.
func NewGenerator(aligner clock.Aligner, idx *library.Index, st *store.Store, logger zerolog.Logger) *Generator {
	return &Generator{
		aligner: aligner,
		index:   idx,
		store:   st,
		logger:  logger.With().Str("component", "scheduler").Logger(),
	}
}

// GenerateBlock builds the block starting at blockStart for one channel.
// tracker may be nil. The global rating filter, when active, drops denied and
// unrated items before scheduling.
func (g *Generator) GenerateBlock(ctx context.Context, channel *models.Channel, blockStart time.Time, tracker *GlobalTracker, rating *models.RatingFilter) (*models.ScheduleBlock, error) {
	blockStart = blockStart.UTC()
	blockEnd := g.aligner.BlockEnd(blockStart)
	seedHex, digest := BlockSeed(channel.ID, blockStart)

	b := &blockBuilder{
		rng:       rng.New(digest),
		tracker:   tracker,
		blockEnd:  blockEnd,
		cursor:    blockStart,
		series:    map[string][]library.Item{},
		used:      map[string]bool{},
		seriesUse: map[string]int{},
		epIdx:     map[string]int{},
	}

	for _, item := range g.index.Resolve(channel.ItemIDs) {
		if item.DurationMs() <= 0 {
			continue
		}
		if rating.Active() && rating.Denies(item.OfficialRating) {
			continue
		}
		if item.IsEpisode() {
			key := item.SeriesID
			if key == "" {
				key = item.ID
			}
			b.series[key] = append(b.series[key], item)
		} else if item.IsMovie() {
			b.movies = append(b.movies, item)
		}
	}
	for key := range b.series {
		b.seriesKeys = append(b.seriesKeys, key)
	}
	sort.Strings(b.seriesKeys)
	for _, key := range b.seriesKeys {
		eps := b.series[key]
		sort.Slice(eps, func(i, j int) bool {
			if eps[i].SeasonIndex != eps[j].SeasonIndex {
				return eps[i].SeasonIndex < eps[j].SeasonIndex
			}
			if eps[i].EpisodeIndex != eps[j].EpisodeIndex {
				return eps[i].EpisodeIndex < eps[j].EpisodeIndex
			}
			return eps[i].ID < eps[j].ID
		})
	}
	sort.Slice(b.movies, func(i, j int) bool { return b.movies[i].ID < b.movies[j].ID })
	b.movieOnly = len(b.movies) > 0 && len(b.seriesKeys) == 0

	// Deterministic random starting offsets into each series.
	for _, key := range b.seriesKeys {
		b.epIdx[key] = b.rng.IntN(len(b.series[key]))
	}

	window := cooldownWindow
	if b.movieOnly {
		window = movieCooldownWindow
	}
	cooldown, err := g.store.ItemsScheduledBetween(ctx, channel.ID, blockStart.Add(-window), blockStart)
	if err != nil {
		return nil, fmt.Errorf("scheduler: load cooldown window: %w", err)
	}
	b.cooldown = cooldown

	b.run()
	b.titleInterstitials()

	return &models.ScheduleBlock{
		ChannelID:  channel.ID,
		BlockStart: blockStart,
		BlockEnd:   blockEnd,
		Seed:       seedHex,
		Programs:   b.programs,
	}, nil
}

// blockBuilder carries the generation state for one block.
type blockBuilder struct {
	rng     *rng.RNG
	tracker *GlobalTracker

	series     map[string][]library.Item
	seriesKeys []string
	movies     []library.Item
	movieOnly  bool
	cooldown   map[string]struct{}

	blockEnd time.Time
	cursor   time.Time
	programs []models.ScheduleProgram

	used         map[string]bool
	seriesUse    map[string]int
	epIdx        map[string]int
	lastItemID   string
	lastSeriesID string
	lastBucket   string
}

func (b *blockBuilder) remainingMs() int64 {
	return b.blockEnd.Sub(b.cursor).Milliseconds()
}

func (b *blockBuilder) run() {
	if len(b.seriesKeys) == 0 && len(b.movies) == 0 {
		// Nothing schedulable: one interstitial covers the block so consumers
		// still see an entry at every instant.
		if b.remainingMs() > 0 {
			b.emitInterstitial(b.remainingMs())
		}
		return
	}

	failed := 0
	iterations := 0
	for b.cursor.Before(b.blockEnd) && failed < maxFailedAttempts {
		iterations++
		if iterations%yieldEvery == 0 {
			runtime.Gosched()
		}

		wantEpisodes := len(b.seriesKeys) > 0 &&
			(len(b.movies) == 0 || (!b.movieOnly && b.rng.Float64() < episodeRunChance))

		scheduled := false
		if wantEpisodes {
			scheduled = b.scheduleEpisodeRun()
		}
		if !scheduled && len(b.movies) > 0 {
			scheduled = b.scheduleMovie(false)
			if !scheduled && b.movieOnly {
				scheduled = b.scheduleMovie(true)
			}
		}
		if scheduled {
			failed = 0
			continue
		}

		failed++
		if failed == relaxedPassAt {
			if b.scheduleAnyRelaxed() {
				failed = 0
				continue
			}
			if b.remainingMs() < tailThresholdMs {
				b.emitInterstitial(b.remainingMs())
				return
			}
		}
		if b.remainingMs() <= interstitialMs {
			b.emitInterstitial(b.remainingMs())
			return
		}
		b.emitInterstitial(interstitialMs)
	}

	b.fillTail()
}

// scheduleEpisodeRun picks a series from the least-used tier and airs a short
// run of consecutive slots from it.
func (b *blockBuilder) scheduleEpisodeRun() bool {
	if len(b.seriesKeys) == 0 {
		return false
	}

	minUsed := -1
	for _, key := range b.seriesKeys {
		if minUsed == -1 || b.seriesUse[key] < minUsed {
			minUsed = b.seriesUse[key]
		}
	}
	var tier, preferred []string
	for _, key := range b.seriesKeys {
		if b.seriesUse[key] > minUsed+1 {
			continue
		}
		tier = append(tier, key)
		if key != b.lastSeriesID && !b.nextEpisodeCoolingDown(key) {
			preferred = append(preferred, key)
		}
	}
	pool := preferred
	if len(pool) == 0 {
		pool = tier
	}
	key := pool[b.rng.IntN(len(pool))]

	runLen := episodeRunMin + b.rng.IntN(episodeRunMax-episodeRunMin+1)
	count := 0
	for i := 0; i < runLen; i++ {
		ep, ok := b.nextEpisode(key)
		if !ok {
			break
		}
		if count == 0 && b.crossesBucket(ep) {
			// Another bucket just aired; only cross when the channel has no
			// same-bucket alternative at all.
			if b.sameBucketExists(b.lastBucket) {
				return false
			}
		}
		b.emitProgram(ep)
		count++
	}
	if count > 0 {
		b.seriesUse[key]++
		b.lastSeriesID = key
		return true
	}
	return false
}

// nextEpisode scans the series from its rotating offset for an episode that
// fits the remaining time without cooldown or cross-channel conflict,
// preferring episodes not yet aired in this block.
func (b *blockBuilder) nextEpisode(key string) (library.Item, bool) {
	eps := b.series[key]
	start := b.epIdx[key]
	for pass := 0; pass < 2; pass++ {
		for n := 0; n < len(eps); n++ {
			idx := (start + n) % len(eps)
			ep := eps[idx]
			if ep.DurationMs() > b.remainingMs() {
				continue
			}
			if _, cooling := b.cooldown[ep.ID]; cooling {
				continue
			}
			if b.tracker.Conflicts(ep.ID, b.cursor, b.cursor.Add(time.Duration(ep.DurationMs())*time.Millisecond)) {
				continue
			}
			if pass == 0 && b.used[ep.ID] {
				continue
			}
			b.epIdx[key] = (idx + 1) % len(eps)
			return ep, true
		}
	}
	return library.Item{}, false
}

func (b *blockBuilder) nextEpisodeCoolingDown(key string) bool {
	eps := b.series[key]
	if len(eps) == 0 {
		return true
	}
	_, cooling := b.cooldown[eps[b.epIdx[key]].ID]
	return cooling
}

// scheduleMovie ranks fitting movies and picks uniformly from the best tier.
// The primary pass excludes cooldown items entirely; relaxCooldown admits them
// ranked last (movie-only channels with small libraries).
func (b *blockBuilder) scheduleMovie(relaxCooldown bool) bool {
	type candidate struct {
		item library.Item
		cool int
		used int
		last int
	}
	remaining := b.remainingMs()
	var candidates []candidate
	for _, movie := range b.movies {
		if movie.DurationMs() > remaining {
			continue
		}
		_, cooling := b.cooldown[movie.ID]
		if cooling && !relaxCooldown {
			continue
		}
		if b.tracker.Conflicts(movie.ID, b.cursor, b.cursor.Add(time.Duration(movie.DurationMs())*time.Millisecond)) {
			continue
		}
		c := candidate{item: movie}
		if cooling {
			c.cool = 1
		}
		if b.used[movie.ID] {
			c.used = 1
		}
		if movie.ID == b.lastItemID {
			c.last = 1
		}
		candidates = append(candidates, c)
	}
	if len(candidates) == 0 {
		return false
	}

	// Stay inside the current rating bucket when the channel offers a choice.
	if b.lastBucket != "" {
		var same []candidate
		for _, c := range candidates {
			if bucketOf(c.item.OfficialRating) == b.lastBucket {
				same = append(same, c)
			}
		}
		if len(same) > 0 {
			candidates = same
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		ci, cj := candidates[i], candidates[j]
		if ci.cool != cj.cool {
			return ci.cool < cj.cool
		}
		if ci.used != cj.used {
			return ci.used < cj.used
		}
		if ci.last != cj.last {
			return ci.last < cj.last
		}
		if ci.item.DurationMs() != cj.item.DurationMs() {
			return ci.item.DurationMs() > cj.item.DurationMs()
		}
		return ci.item.ID < cj.item.ID
	})
	pool := candidates
	if len(pool) > moviePoolSize {
		pool = pool[:moviePoolSize]
	}
	b.emitProgram(pool[b.rng.IntN(len(pool))].item)
	return true
}

// scheduleAnyRelaxed ignores buckets and cooldowns (but never cross-channel
// conflicts) and airs the longest fitting item.
func (b *blockBuilder) scheduleAnyRelaxed() bool {
	best, ok := b.longestFitting()
	if !ok {
		return false
	}
	b.emitProgram(best)
	return true
}

func (b *blockBuilder) longestFitting() (library.Item, bool) {
	remaining := b.remainingMs()
	var best library.Item
	found := false
	consider := func(item library.Item) {
		if item.DurationMs() > remaining {
			return
		}
		if b.tracker.Conflicts(item.ID, b.cursor, b.cursor.Add(time.Duration(item.DurationMs())*time.Millisecond)) {
			return
		}
		if !found || item.DurationMs() > best.DurationMs() ||
			(item.DurationMs() == best.DurationMs() && item.ID < best.ID) {
			best = item
			found = true
		}
	}
	for _, movie := range b.movies {
		consider(movie)
	}
	for _, key := range b.seriesKeys {
		for _, ep := range b.series[key] {
			consider(ep)
		}
	}
	return best, found
}

// fillTail closes out the block: longest fitting items while they exist, then
// one interstitial covering whatever is left.
func (b *blockBuilder) fillTail() {
	for iter := 0; iter < maxTailIterations && b.cursor.Before(b.blockEnd); iter++ {
		best, ok := b.longestFitting()
		if !ok {
			b.emitInterstitial(b.remainingMs())
			return
		}
		b.emitProgram(best)
	}
	if b.cursor.Before(b.blockEnd) {
		b.emitInterstitial(b.remainingMs())
	}
}

func (b *blockBuilder) crossesBucket(item library.Item) bool {
	return b.lastBucket != "" && bucketOf(item.OfficialRating) != b.lastBucket
}

func (b *blockBuilder) sameBucketExists(bucket string) bool {
	for _, movie := range b.movies {
		if bucketOf(movie.OfficialRating) == bucket {
			return true
		}
	}
	for _, key := range b.seriesKeys {
		for _, ep := range b.series[key] {
			if bucketOf(ep.OfficialRating) == bucket {
				return true
			}
		}
	}
	return false
}

func (b *blockBuilder) emitProgram(item library.Item) {
	duration := item.DurationMs()
	end := b.cursor.Add(time.Duration(duration) * time.Millisecond)
	program := models.ScheduleProgram{
		Kind:       models.ProgramEntry,
		ItemID:     item.ID,
		Title:      item.Name,
		Year:       item.ProductionYear,
		Rating:     item.OfficialRating,
		ThumbURL:   item.PrimaryImageURL,
		BannerURL:  item.BackdropImageURL,
		StartTime:  b.cursor,
		EndTime:    end,
		DurationMs: duration,
	}
	if item.IsEpisode() {
		program.ContentType = library.KindEpisode
		program.SeriesID = item.SeriesID
		if item.SeriesName != "" {
			program.Title = item.SeriesName
			program.Subtitle = item.Name
		}
		if item.SeasonIndex > 0 && item.EpisodeIndex > 0 {
			program.Subtitle = fmt.Sprintf("S%02dE%02d %s", item.SeasonIndex, item.EpisodeIndex, item.Name)
		}
	} else {
		program.ContentType = library.KindMovie
	}
	b.programs = append(b.programs, program)
	b.tracker.Add(item.ID, b.cursor, end)
	b.used[item.ID] = true
	b.lastItemID = item.ID
	b.lastBucket = bucketOf(item.OfficialRating)
	b.cursor = end
}

func (b *blockBuilder) emitInterstitial(durationMs int64) {
	if durationMs <= 0 {
		return
	}
	end := b.cursor.Add(time.Duration(durationMs) * time.Millisecond)
	b.programs = append(b.programs, models.ScheduleProgram{
		Kind:       models.InterstitialEntry,
		StartTime:  b.cursor,
		EndTime:    end,
		DurationMs: durationMs,
	})
	// An interstitial is a clean break for the bucket rule.
	b.lastBucket = ""
	b.lastItemID = ""
	b.lastSeriesID = ""
	b.cursor = end
}

// titleInterstitials names each gap after the program that follows it.
func (b *blockBuilder) titleInterstitials() {
	for i := range b.programs {
		if !b.programs[i].IsInterstitial() {
			continue
		}
		title := "Coming Up Next"
		if i+1 < len(b.programs) && !b.programs[i+1].IsInterstitial() {
			title = "Next Up: " + b.programs[i+1].Title
		}
		b.programs[i].Title = title
	}
}
