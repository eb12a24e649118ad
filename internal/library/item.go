/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package library holds the in-memory snapshot of the Upstream media library.
package library

import (
	"time"

	"github.com/friendsincode/prevue/internal/clock"
)

// Item kinds. Upstream exposes more types; only these two are scheduled.
const (
	KindMovie   = "movie"
	KindEpisode = "episode"
)

// Person roles as Upstream reports them.
const (
	RoleActor    = "Actor"
	RoleDirector = "Director"
	RoleComposer = "Composer"
)

// Person is one credited name on an item. Order in Item.People is billing
// order.
type Person struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// UserData carries per-user playback state from Upstream.
type UserData struct {
	Played           bool       `json:"played"`
	IsFavorite       bool       `json:"is_favorite"`
	PlayedPercentage float64    `json:"played_percentage"`
	LastPlayedAt     *time.Time `json:"last_played_at,omitempty"`
}

// Item is one library entry, an immutable snapshot refreshed by sync. The
// first genre is the lead genre and drives genre channel partitioning.
type Item struct {
	ID             string    `json:"id"`
	Kind           string    `json:"kind"`
	Name           string    `json:"name"`
	SeriesID       string    `json:"series_id,omitempty"`
	SeriesName     string    `json:"series_name,omitempty"`
	SeasonIndex    int       `json:"season_index,omitempty"`
	EpisodeIndex   int       `json:"episode_index,omitempty"`
	RunTimeTicks   int64     `json:"run_time_ticks"`
	Genres         []string  `json:"genres,omitempty"`
	OfficialRating string    `json:"official_rating,omitempty"`
	ProductionYear int       `json:"production_year,omitempty"`
	DateCreated    time.Time `json:"date_created,omitempty"`
	Overview       string    `json:"overview,omitempty"`
	Studios        []string  `json:"studios,omitempty"`
	People         []Person  `json:"people,omitempty"`
	Tags           []string  `json:"tags,omitempty"`
	PrimaryImageURL  string  `json:"primary_image_url,omitempty"`
	BackdropImageURL string  `json:"backdrop_image_url,omitempty"`
	UserData       UserData  `json:"user_data"`
}

// DurationMs returns the runtime in milliseconds. Zero means unknown, which
// the scheduler treats as unschedulable.
func (i Item) DurationMs() int64 {
	return clock.TicksToMs(i.RunTimeTicks)
}

// LeadGenre returns the first genre, or empty when the item has none.
func (i Item) LeadGenre() string {
	if len(i.Genres) == 0 {
		return ""
	}
	return i.Genres[0]
}

// IsMovie reports whether the item is a movie.
func (i Item) IsMovie() bool { return i.Kind == KindMovie }

// IsEpisode reports whether the item is a series episode.
func (i Item) IsEpisode() bool { return i.Kind == KindEpisode }

// Decade returns the item's production decade (1990 for 1994), or 0 when the
// year is unknown.
func (i Item) Decade() int {
	if i.ProductionYear <= 0 {
		return 0
	}
	return (i.ProductionYear / 10) * 10
}
