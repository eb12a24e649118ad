/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package materializer turns presets and filters into concrete channels with
// resolved item lists. Regeneration replaces auto and preset channels; custom
// channels and their names always survive.
package materializer

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/prevue/internal/events"
	"github.com/friendsincode/prevue/internal/library"
	"github.com/friendsincode/prevue/internal/models"
	"github.com/friendsincode/prevue/internal/presets"
	"github.com/friendsincode/prevue/internal/store"
	"github.com/friendsincode/prevue/internal/upstream"
)

const (
	// minChannelMs is the content floor for a channel: anything under four
	// hours would loop too visibly inside one block.
	minChannelMs = 4 * 3600 * 1000

	// castCrewMinMs is the relaxed floor for director/actor/composer channels.
	castCrewMinMs = 2 * 3600 * 1000

	eraMinItems      = 10
	directorMinItems = 2
	actorMinItems    = 5
	composerMinItems = 3
	studioMinItems   = 5
	talentLimit      = 10

	// actorTopBilled limits actor channels to top-billed credits so extras
	// don't earn channels.
	actorTopBilled = 3
)

// DefaultPresetID is materialized when no presets are selected.
const DefaultPresetID = "auto-genres"

// ContainerSource resolves Upstream collections and playlists. Nil when no
// server is connected; container presets then materialize nothing.
type ContainerSource interface {
	GetCollections(ctx context.Context) ([]upstream.Container, error)
	GetPlaylists(ctx context.Context) ([]upstream.Container, error)
	GetContainerItemIDs(ctx context.Context, containerID string) ([]string, error)
}

// Materializer builds channels from the preset catalog and library index.
type Materializer struct {
	store      *store.Store
	index      *library.Index
	catalog    *presets.Catalog
	containers ContainerSource
	bus        *events.Bus
	logger     zerolog.Logger

	now func() time.Time
}

// New constructs a materializer. containers may be nil.
func New(st *store.Store, idx *library.Index, cat *presets.Catalog, containers ContainerSource, bus *events.Bus, logger zerolog.Logger) *Materializer {
	return &Materializer{
		store:      st,
		index:      idx,
		catalog:    cat,
		containers: containers,
		bus:        bus,
		logger:     logger.With().Str("component", "materializer").Logger(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetContainerSource swaps the Upstream container source, used when the active
// server changes.
func (m *Materializer) SetContainerSource(src ContainerSource) {
	m.containers = src
}

type settings struct {
	Global   GlobalFilters
	Selected []models.SelectedPreset
}

func (m *Materializer) loadSettings(ctx context.Context) settings {
	s := settings{Global: GlobalFilters{MoviesOn: true, EpisodesOn: true}}

	var genres []string
	if err := m.store.GetSettingInto(ctx, models.SettingGenreFilter, &genres); err == nil {
		s.Global.Genres = genres
	}
	var rating models.RatingFilter
	if err := m.store.GetSettingInto(ctx, models.SettingRatingFilter, &rating); err == nil {
		s.Global.Rating = &rating
	}
	var types []string
	if err := m.store.GetSettingInto(ctx, models.SettingContentTypes, &types); err == nil && len(types) > 0 {
		s.Global.MoviesOn = containsFold(types, "movies")
		s.Global.EpisodesOn = containsFold(types, "tv")
	}
	var separate bool
	if err := m.store.GetSettingInto(ctx, models.SettingSeparateContentTypes, &separate); err == nil {
		s.Global.SeparateKind = separate
	}
	var selected []models.SelectedPreset
	if err := m.store.GetSettingInto(ctx, models.SettingSelectedPresets, &selected); err == nil {
		s.Selected = selected
	}
	return s
}

// draft is a channel before numbering and name dedup.
type draft struct {
	Name  string
	Items []library.Item
}

// Regenerate rebuilds all auto/preset channels from the current settings,
// presets, and library snapshot.
func (m *Materializer) Regenerate(ctx context.Context) error {
	now := m.now()
	cfg := m.loadSettings(ctx)

	existing, err := m.store.ListChannels(ctx)
	if err != nil {
		return fmt.Errorf("materializer: list channels: %w", err)
	}
	taken := map[string]bool{}
	for _, ch := range existing {
		if ch.Kind == models.ChannelCustom {
			taken[strings.ToLower(ch.Name)] = true
		}
	}

	if err := m.store.DeleteChannelsByKind(ctx, models.ChannelAuto, models.ChannelPreset); err != nil {
		return fmt.Errorf("materializer: clear generated channels: %w", err)
	}

	selections := cfg.Selected
	defaulted := false
	if len(selections) == 0 {
		selections = []models.SelectedPreset{{ID: DefaultPresetID}}
		defaulted = true
	}

	var channels []*models.Channel
	for _, sel := range selections {
		preset, ok := m.catalog.Get(sel.ID)
		if !ok {
			m.logger.Warn().Str("preset", sel.ID).Msg("unknown preset selected, skipping")
			continue
		}
		m.publishProgress("materialize", "Building "+preset.Name, len(channels), 0)
		drafts := m.buildPreset(ctx, preset, cfg, now)

		copies := sel.Count
		if copies < 1 {
			copies = 1
		}
		for copyIdx := 1; copyIdx <= copies; copyIdx++ {
			for _, d := range drafts {
				name := d.Name
				if copyIdx > 1 {
					name += " " + strconv.Itoa(copyIdx)
				}
				kind := models.ChannelPreset
				if defaulted {
					kind = models.ChannelAuto
				}
				channels = append(channels, &models.Channel{
					Name:     uniqueName(taken, name),
					Kind:     kind,
					PresetID: preset.ID,
					ItemIDs:  itemIDs(d.Items),
				})
			}
		}
	}

	for _, ch := range channels {
		ch.CreatedAt = now
		ch.UpdatedAt = now
	}
	if err := m.store.CreateChannels(ctx, channels); err != nil {
		return fmt.Errorf("materializer: create channels: %w", err)
	}

	m.logger.Info().Int("channels", len(channels)).Bool("defaulted", defaulted).Msg("channels regenerated")
	if m.bus != nil {
		m.bus.Publish(events.EventChannelsRegenerated, events.Payload{"count": len(channels)})
	}
	return nil
}

func (m *Materializer) buildPreset(ctx context.Context, preset presets.Preset, cfg settings, now time.Time) []draft {
	if !preset.Dynamic {
		return m.buildStatic(preset, cfg, now)
	}
	switch preset.Source {
	case presets.SourceGenres:
		return m.splitByKind(m.buildGrouped(m.leadGenreGroups(cfg), minChannelMs, 1, 0, nil), cfg)
	case presets.SourceEras:
		return m.splitByKind(m.buildEras(cfg), cfg)
	case presets.SourceDirectors:
		return m.splitByKind(m.buildGrouped(m.peopleGroups(library.RoleDirector, 0, cfg), castCrewMinMs,
			directorMinItems, talentLimit, m.catalog.Priority[presets.SourceDirectors]), cfg)
	case presets.SourceActors:
		return m.splitByKind(m.buildGrouped(m.peopleGroups(library.RoleActor, actorTopBilled, cfg), castCrewMinMs,
			actorMinItems, talentLimit, m.catalog.Priority[presets.SourceActors]), cfg)
	case presets.SourceComposers:
		return m.splitByKind(m.buildGrouped(m.peopleGroups(library.RoleComposer, 0, cfg), castCrewMinMs,
			composerMinItems, talentLimit, m.catalog.Priority[presets.SourceComposers]), cfg)
	case presets.SourceStudios:
		return m.splitByKind(m.buildGrouped(m.studioGroups(cfg), minChannelMs, studioMinItems, talentLimit, nil), cfg)
	case presets.SourceCollections:
		// Containers are human curation; they never split.
		return m.buildContainers(ctx, cfg, false)
	case presets.SourcePlaylists:
		return m.buildContainers(ctx, cfg, true)
	default:
		return nil
	}
}

// splitByKind applies the content-type separation to drafts: each becomes up
// to two channels, "<name> Movies" and "<name> TV", every half gated on the
// four hour floor independently. When separation is off, or one kind is
// disabled globally, drafts pass through whole so the lineup folds back to
// single channels.
func (m *Materializer) splitByKind(drafts []draft, cfg settings) []draft {
	if !cfg.Global.SeparateKind || !cfg.Global.MoviesOn || !cfg.Global.EpisodesOn {
		return drafts
	}
	var out []draft
	for _, d := range drafts {
		var movies, episodes []library.Item
		for _, item := range d.Items {
			if item.IsMovie() {
				movies = append(movies, item)
			} else if item.IsEpisode() {
				episodes = append(episodes, item)
			}
		}
		if totalMs(movies) >= minChannelMs {
			out = append(out, draft{Name: d.Name + " Movies", Items: movies})
		}
		if totalMs(episodes) >= minChannelMs {
			out = append(out, draft{Name: d.Name + " TV", Items: episodes})
		}
	}
	return out
}

func (m *Materializer) buildStatic(preset presets.Preset, cfg settings, now time.Time) []draft {
	var items []library.Item
	for _, item := range m.index.All() {
		if cfg.Global.Allows(item) && MatchesFilter(item, preset.Filter, now) {
			items = append(items, item)
		}
	}

	// A filter pinned to one kind never splits; the name stays as authored.
	split := cfg.Global.SeparateKind &&
		cfg.Global.MoviesOn && cfg.Global.EpisodesOn &&
		preset.Filter.MoviesAllowed() && preset.Filter.EpisodesAllowed()
	if !split {
		if totalMs(items) < minChannelMs {
			return nil
		}
		return []draft{{Name: preset.Name, Items: items}}
	}
	return m.splitByKind([]draft{{Name: preset.Name, Items: items}}, cfg)
}

func (m *Materializer) leadGenreGroups(cfg settings) map[string][]library.Item {
	groups := map[string][]library.Item{}
	for genre, items := range m.index.Genres() {
		for _, item := range items {
			if cfg.Global.Allows(item) {
				groups[genre] = append(groups[genre], item)
			}
		}
	}
	return groups
}

func (m *Materializer) peopleGroups(role string, topBilled int, cfg settings) map[string][]library.Item {
	groups := map[string][]library.Item{}
	for name, items := range m.index.PeopleIndex(role, topBilled) {
		for _, item := range items {
			if cfg.Global.Allows(item) {
				groups[name] = append(groups[name], item)
			}
		}
	}
	return groups
}

func (m *Materializer) studioGroups(cfg settings) map[string][]library.Item {
	groups := map[string][]library.Item{}
	for name, items := range m.index.Studios() {
		for _, item := range items {
			if cfg.Global.Allows(item) {
				groups[name] = append(groups[name], item)
			}
		}
	}
	return groups
}

// buildGrouped turns name→items groups into drafts: drop groups under the item
// and duration thresholds, rank priority names first then by count descending,
// cap at limit (0 = unlimited).
func (m *Materializer) buildGrouped(groups map[string][]library.Item, minMs int64, minItems, limit int, priority []string) []draft {
	type candidate struct {
		name  string
		items []library.Item
	}
	var candidates []candidate
	for name, items := range groups {
		if len(items) < minItems || totalMs(items) < minMs {
			continue
		}
		candidates = append(candidates, candidate{name, items})
	}
	sort.Slice(candidates, func(i, j int) bool {
		pi, pj := priorityRank(priority, candidates[i].name), priorityRank(priority, candidates[j].name)
		if pi != pj {
			return pi < pj
		}
		if len(candidates[i].items) != len(candidates[j].items) {
			return len(candidates[i].items) > len(candidates[j].items)
		}
		return candidates[i].name < candidates[j].name
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]draft, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, draft{Name: c.name, Items: c.items})
	}
	return out
}

// priorityRank returns the curated-list position of name, or a rank past the
// end for names not on the list.
func priorityRank(priority []string, name string) int {
	for i, p := range priority {
		if strings.EqualFold(p, name) {
			return i
		}
	}
	return len(priority)
}

func (m *Materializer) buildEras(cfg settings) []draft {
	type bucket struct {
		decade int
		items  []library.Item
	}
	var buckets []bucket
	for decade, items := range m.index.Decades() {
		var kept []library.Item
		for _, item := range items {
			if cfg.Global.Allows(item) {
				kept = append(kept, item)
			}
		}
		if len(kept) < eraMinItems || totalMs(kept) < minChannelMs {
			continue
		}
		buckets = append(buckets, bucket{decade, kept})
	}
	sort.Slice(buckets, func(i, j int) bool {
		if len(buckets[i].items) != len(buckets[j].items) {
			return len(buckets[i].items) > len(buckets[j].items)
		}
		return buckets[i].decade < buckets[j].decade
	})
	out := make([]draft, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, draft{Name: eraName(b.decade), Items: b.items})
	}
	return out
}

// eraName renders 1990 as "90s Channel" and 2010 as "2010s Channel".
func eraName(decade int) string {
	if decade < 2000 {
		return fmt.Sprintf("%02ds Channel", decade%100)
	}
	return fmt.Sprintf("%ds Channel", decade)
}

func (m *Materializer) buildContainers(ctx context.Context, cfg settings, playlist bool) []draft {
	if m.containers == nil {
		return nil
	}
	var (
		containers []upstream.Container
		err        error
	)
	if playlist {
		containers, err = m.containers.GetPlaylists(ctx)
	} else {
		containers, err = m.containers.GetCollections(ctx)
	}
	if err != nil {
		m.logger.Warn().Err(err).Bool("playlist", playlist).Msg("container listing failed")
		return nil
	}

	var out []draft
	for _, container := range containers {
		ids, err := m.containers.GetContainerItemIDs(ctx, container.ID)
		if err != nil {
			m.logger.Warn().Err(err).Str("container", container.Name).Msg("container items fetch failed")
			continue
		}
		var items []library.Item
		for _, item := range m.index.Resolve(ids) {
			if cfg.Global.Allows(item) {
				items = append(items, item)
			}
		}
		// Playlists are deliberate human curation; they skip the duration floor.
		if !playlist && totalMs(items) < minChannelMs {
			continue
		}
		if len(items) == 0 {
			continue
		}
		out = append(out, draft{Name: container.Name, Items: items})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ItemsForFilter resolves a channel filter into an ordered item-id list, used
// when creating or updating custom channels. Collection/playlist membership is
// resolved against Upstream first, then the filter applies.
func (m *Materializer) ItemsForFilter(ctx context.Context, f *models.ChannelFilter) ([]string, error) {
	now := m.now()
	cfg := m.loadSettings(ctx)

	var pool []library.Item
	switch {
	case f != nil && f.CollectionID != "":
		pool = append(pool, m.resolveContainer(ctx, f.CollectionID)...)
	case f != nil && f.PlaylistID != "":
		pool = append(pool, m.resolveContainer(ctx, f.PlaylistID)...)
	default:
		pool = m.index.All()
	}

	var ids []string
	for _, item := range pool {
		if cfg.Global.Allows(item) && MatchesFilter(item, f, now) {
			ids = append(ids, item.ID)
		}
	}
	return ids, nil
}

func (m *Materializer) resolveContainer(ctx context.Context, containerID string) []library.Item {
	if m.containers == nil {
		return nil
	}
	ids, err := m.containers.GetContainerItemIDs(ctx, containerID)
	if err != nil {
		m.logger.Warn().Err(err).Str("container", containerID).Msg("container resolve failed")
		return nil
	}
	return m.index.Resolve(ids)
}

func (m *Materializer) publishProgress(step, message string, current, total int) {
	if m.bus == nil {
		return
	}
	payload := events.Payload{"step": step, "message": message}
	if total > 0 {
		payload["current"] = current
		payload["total"] = total
	}
	m.bus.Publish(events.EventGenerationProgress, payload)
}

// uniqueName claims name in taken, suffixing " (2)", " (3)", ... on collision.
func uniqueName(taken map[string]bool, name string) string {
	candidate := name
	for n := 2; taken[strings.ToLower(candidate)]; n++ {
		candidate = fmt.Sprintf("%s (%d)", name, n)
	}
	taken[strings.ToLower(candidate)] = true
	return candidate
}

func itemIDs(items []library.Item) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return ids
}

func totalMs(items []library.Item) int64 {
	var total int64
	for _, item := range items {
		total += item.DurationMs()
	}
	return total
}
