/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package materializer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/friendsincode/prevue/internal/db"
	"github.com/friendsincode/prevue/internal/library"
	"github.com/friendsincode/prevue/internal/models"
	"github.com/friendsincode/prevue/internal/presets"
	"github.com/friendsincode/prevue/internal/store"
)

const hourTicks = int64(3600) * 10_000_000

func newTestStore(t *testing.T) *store.Store {
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
	return store.New(gdb, zerolog.Nop())
}

// movieLibrary builds n two-hour movies per genre.
func movieLibrary(genres map[string]int) []library.Item {
	var items []library.Item
	for genre, n := range genres {
		for i := 0; i < n; i++ {
			items = append(items, library.Item{
				ID:           fmt.Sprintf("%s-%d", genre, i),
				Kind:         library.KindMovie,
				Name:         fmt.Sprintf("%s Movie %d", genre, i),
				Genres:       []string{genre},
				RunTimeTicks: 2 * hourTicks,
			})
		}
	}
	return items
}

func newMaterializer(t *testing.T, items []library.Item) (*Materializer, *store.Store) {
	t.Helper()
	st := newTestStore(t)
	idx := library.NewIndex()
	idx.Replace(items)
	cat, err := presets.Load()
	if err != nil {
		t.Fatalf("presets.Load: %v", err)
	}
	m := New(st, idx, cat, nil, nil, zerolog.Nop())
	m.now = func() time.Time { return time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC) }
	return m, st
}

func TestRegenerateDefaultGenreChannels(t *testing.T) {
	// Action has plenty, Western is under the four hour floor.
	m, st := newMaterializer(t, movieLibrary(map[string]int{"Action": 5, "Comedy": 3, "Western": 1}))
	ctx := context.Background()

	if err := m.Regenerate(ctx); err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	channels, err := st.ListChannels(ctx)
	if err != nil {
		t.Fatalf("ListChannels: %v", err)
	}
	byName := map[string]models.Channel{}
	for _, ch := range channels {
		if ch.Kind != models.ChannelAuto {
			t.Errorf("channel %s kind = %s, want auto", ch.Name, ch.Kind)
		}
		byName[ch.Name] = ch
	}
	if _, ok := byName["Action"]; !ok {
		t.Error("missing Action channel")
	}
	if _, ok := byName["Comedy"]; !ok {
		t.Error("missing Comedy channel")
	}
	if _, ok := byName["Western"]; ok {
		t.Error("Western channel created below duration floor")
	}
	// Largest genre gets the lowest number.
	if byName["Action"].Number > byName["Comedy"].Number {
		t.Errorf("Action number %d > Comedy %d", byName["Action"].Number, byName["Comedy"].Number)
	}
	if len(byName["Action"].ItemIDs) != 5 {
		t.Errorf("Action items = %d", len(byName["Action"].ItemIDs))
	}
}

func TestRegeneratePreservesCustomChannels(t *testing.T) {
	m, st := newMaterializer(t, movieLibrary(map[string]int{"Action": 5}))
	ctx := context.Background()

	custom := &models.Channel{Name: "Action", Kind: models.ChannelCustom, ItemIDs: []string{"Action-0"}}
	if err := st.CreateChannel(ctx, custom); err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}
	if err := m.Regenerate(ctx); err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	channels, _ := st.ListChannels(ctx)
	var names []string
	for _, ch := range channels {
		names = append(names, ch.Name)
	}
	if len(channels) != 2 {
		t.Fatalf("channels = %v", names)
	}
	// Custom keeps the name; the generated one gets suffixed.
	found := map[string]bool{}
	for _, ch := range channels {
		found[ch.Name] = true
	}
	if !found["Action"] || !found["Action (2)"] {
		t.Errorf("names = %v", names)
	}
}

func TestRegenerateSelectedStaticPresetWithSplit(t *testing.T) {
	items := movieLibrary(map[string]int{"Comedy": 4})
	for i := 0; i < 10; i++ {
		items = append(items, library.Item{
			ID:           fmt.Sprintf("ep-%d", i),
			Kind:         library.KindEpisode,
			Name:         fmt.Sprintf("Ep %d", i),
			SeriesID:     "s1",
			Genres:       []string{"Comedy"},
			RunTimeTicks: hourTicks / 2,
		})
	}
	m, st := newMaterializer(t, items)
	ctx := context.Background()

	if err := st.SetSetting(ctx, models.SettingSelectedPresets, []models.SelectedPreset{{ID: "comedy"}}); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	if err := st.SetSetting(ctx, models.SettingSeparateContentTypes, true); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	if err := m.Regenerate(ctx); err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	channels, _ := st.ListChannels(ctx)
	found := map[string]models.Channel{}
	for _, ch := range channels {
		found[ch.Name] = ch
		if ch.Kind != models.ChannelPreset || ch.PresetID != "comedy" {
			t.Errorf("channel %s kind=%s preset=%s", ch.Name, ch.Kind, ch.PresetID)
		}
	}
	movies, ok := found["Comedy Movies"]
	if !ok {
		t.Fatal("missing Comedy Movies")
	}
	tv, ok := found["Comedy TV"]
	if !ok {
		t.Fatal("missing Comedy TV")
	}
	if len(movies.ItemIDs) != 4 || len(tv.ItemIDs) != 10 {
		t.Errorf("movies=%d tv=%d", len(movies.ItemIDs), len(tv.ItemIDs))
	}
}

func TestRegenerateDynamicGenreSplit(t *testing.T) {
	// Action carries both kinds above the floor; Comedy's episodes stay under
	// four hours so only its movie half materializes.
	items := movieLibrary(map[string]int{"Action": 3, "Comedy": 3})
	for i := 0; i < 10; i++ {
		items = append(items, library.Item{
			ID:           fmt.Sprintf("act-ep-%d", i),
			Kind:         library.KindEpisode,
			Name:         fmt.Sprintf("Act Ep %d", i),
			SeriesID:     "s1",
			Genres:       []string{"Action"},
			RunTimeTicks: hourTicks / 2,
		})
	}
	items = append(items, library.Item{
		ID:           "com-ep-0",
		Kind:         library.KindEpisode,
		Name:         "Com Ep 0",
		SeriesID:     "s2",
		Genres:       []string{"Comedy"},
		RunTimeTicks: hourTicks / 2,
	})
	m, st := newMaterializer(t, items)
	ctx := context.Background()

	if err := st.SetSetting(ctx, models.SettingSeparateContentTypes, true); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	if err := m.Regenerate(ctx); err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	channels, _ := st.ListChannels(ctx)
	found := map[string]models.Channel{}
	for _, ch := range channels {
		found[ch.Name] = ch
	}
	if _, ok := found["Action Movies"]; !ok {
		t.Error("missing Action Movies")
	}
	if tv, ok := found["Action TV"]; !ok {
		t.Error("missing Action TV")
	} else if len(tv.ItemIDs) != 10 {
		t.Errorf("Action TV items = %d", len(tv.ItemIDs))
	}
	if _, ok := found["Comedy Movies"]; !ok {
		t.Error("missing Comedy Movies")
	}
	if _, ok := found["Comedy TV"]; ok {
		t.Error("Comedy TV created below the four hour floor")
	}
	if _, ok := found["Action"]; ok {
		t.Error("unsplit Action channel left behind")
	}
}

func TestDynamicSplitFoldsBackWhenOneKindDisabled(t *testing.T) {
	items := movieLibrary(map[string]int{"Action": 3})
	for i := 0; i < 10; i++ {
		items = append(items, library.Item{
			ID:           fmt.Sprintf("act-ep-%d", i),
			Kind:         library.KindEpisode,
			Genres:       []string{"Action"},
			SeriesID:     "s1",
			RunTimeTicks: hourTicks / 2,
		})
	}
	m, st := newMaterializer(t, items)
	ctx := context.Background()

	if err := st.SetSetting(ctx, models.SettingSeparateContentTypes, true); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	if err := st.SetSetting(ctx, models.SettingContentTypes, []string{"movies"}); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	if err := m.Regenerate(ctx); err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	channels, _ := st.ListChannels(ctx)
	if len(channels) != 1 || channels[0].Name != "Action" {
		names := make([]string, 0, len(channels))
		for _, ch := range channels {
			names = append(names, ch.Name)
		}
		t.Errorf("channels = %v, want single Action", names)
	}
	for _, id := range channels[0].ItemIDs {
		if len(id) > 6 && id[:6] == "act-ep" {
			t.Errorf("episode %s survived the movies-only toggle", id)
		}
	}
}

func TestRegenerateMultiplicity(t *testing.T) {
	m, st := newMaterializer(t, movieLibrary(map[string]int{"Action": 5}))
	ctx := context.Background()

	if err := st.SetSetting(ctx, models.SettingSelectedPresets, []models.SelectedPreset{{ID: "action", Count: 2}}); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	if err := m.Regenerate(ctx); err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	channels, _ := st.ListChannels(ctx)
	found := map[string]bool{}
	for _, ch := range channels {
		found[ch.Name] = true
	}
	if !found["Action"] || !found["Action 2"] {
		t.Errorf("channels = %v", found)
	}
}

func TestGlobalRatingFilterIsDenyList(t *testing.T) {
	items := movieLibrary(map[string]int{"Action": 5})
	items[0].OfficialRating = "R"
	items[1].OfficialRating = "R"
	items[2].OfficialRating = "PG"
	items[3].OfficialRating = "PG"
	items[4].OfficialRating = "PG"
	m, st := newMaterializer(t, items)
	ctx := context.Background()

	// Mode "allow" still denies the listed ratings, and unrated items too.
	if err := st.SetSetting(ctx, models.SettingRatingFilter,
		models.RatingFilter{Mode: "allow", Ratings: []string{"R"}}); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	if err := m.Regenerate(ctx); err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	channels, _ := st.ListChannels(ctx)
	if len(channels) != 1 {
		t.Fatalf("channels = %d", len(channels))
	}
	if got := len(channels[0].ItemIDs); got != 3 {
		t.Errorf("surviving items = %d, want 3 PG", got)
	}
}

func TestMatchesFilterBehaviorFlags(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	old := now.AddDate(0, 0, -90)
	recent := now.AddDate(0, 0, -3)

	watched := library.Item{ID: "a", Kind: library.KindMovie, RunTimeTicks: 2 * hourTicks,
		UserData: library.UserData{Played: true, LastPlayedAt: &recent}}
	fresh := library.Item{ID: "b", Kind: library.KindMovie, RunTimeTicks: 2 * hourTicks,
		DateCreated: recent}
	stale := library.Item{ID: "c", Kind: library.KindMovie, RunTimeTicks: 2 * hourTicks,
		DateCreated: old, UserData: library.UserData{LastPlayedAt: &old}}

	unwatched := &models.ChannelFilter{Unwatched: true}
	if MatchesFilter(watched, unwatched, now) {
		t.Error("watched item passed unwatched filter")
	}
	if !MatchesFilter(fresh, unwatched, now) {
		t.Error("unwatched item failed unwatched filter")
	}

	added := &models.ChannelFilter{AddedWithinDays: 30}
	if !MatchesFilter(fresh, added, now) || MatchesFilter(stale, added, now) {
		t.Error("added_within_days filter wrong")
	}

	notRecently := &models.ChannelFilter{NotWatchedDays: 30}
	if MatchesFilter(watched, notRecently, now) {
		t.Error("recently watched item passed not_watched_days")
	}
	if !MatchesFilter(stale, notRecently, now) {
		t.Error("stale item failed not_watched_days")
	}
}

func TestEraName(t *testing.T) {
	for decade, want := range map[int]string{
		1950: "50s Channel",
		1990: "90s Channel",
		2000: "2000s Channel",
		2010: "2010s Channel",
	} {
		if got := eraName(decade); got != want {
			t.Errorf("eraName(%d) = %q, want %q", decade, got, want)
		}
	}
}
