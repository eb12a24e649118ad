/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"
)

// Server is an Upstream media server registration. At most one server is
// active at a time; the active server owns all channels and schedules.
type Server struct {
	ID          string `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string `gorm:"index" json:"name"`
	URL         string `json:"url"`
	Username    string `json:"username"`
	AccessToken string `gorm:"type:text" json:"-"` // encrypted at rest, iv:tag:data hex
	UserID      string `json:"user_id"`            // Upstream user id bound to the token
	IsActive    bool   `gorm:"index" json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ChannelKind distinguishes how a channel came to exist.
type ChannelKind string

const (
	ChannelAuto   ChannelKind = "auto"   // materialized from the auto-genres default
	ChannelPreset ChannelKind = "preset" // materialized from a selected preset
	ChannelCustom ChannelKind = "custom" // user-built; survives regeneration
)

// Channel is one linear TV channel. ItemIDs are weak references into the
// library snapshot: ids that no longer resolve are skipped at schedule time,
// never rejected on write.
type Channel struct {
	ID        string         `gorm:"type:uuid;primaryKey" json:"id"`
	Number    int            `gorm:"uniqueIndex" json:"number"`
	Name      string         `gorm:"uniqueIndex" json:"name"`
	Kind      ChannelKind    `gorm:"type:varchar(16);index" json:"kind"`
	PresetID  string         `gorm:"index" json:"preset_id,omitempty"`
	Filter    *ChannelFilter `gorm:"type:jsonb;serializer:json" json:"filter,omitempty"`
	ItemIDs   []string       `gorm:"type:jsonb;serializer:json" json:"item_ids"`
	SortOrder int            `json:"sort_order"`
	AIPrompt  string         `gorm:"type:text" json:"ai_prompt,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// ChannelFilter is a composable predicate over library items. Zero values
// mean "no constraint"; content-type toggles use pointers so an absent toggle
// reads as allowed.
type ChannelFilter struct {
	Genres          []string `json:"genres,omitempty"`
	ExcludeGenres   []string `json:"exclude_genres,omitempty"`
	Ratings         []string `json:"ratings,omitempty"`
	ExcludeRatings  []string `json:"exclude_ratings,omitempty"`
	YearFrom        int      `json:"year_from,omitempty"`
	YearTo          int      `json:"year_to,omitempty"`
	MinDurationMs   int64    `json:"min_duration_ms,omitempty"`
	MaxDurationMs   int64    `json:"max_duration_ms,omitempty"`
	Studios         []string `json:"studios,omitempty"`
	Directors       []string `json:"directors,omitempty"`
	Actors          []string `json:"actors,omitempty"`
	Composers       []string `json:"composers,omitempty"`
	Unwatched       bool     `json:"unwatched,omitempty"`
	Favorites       bool     `json:"favorites,omitempty"`
	ContinueWatching bool    `json:"continue_watching,omitempty"`
	NotWatchedDays  int      `json:"not_watched_days,omitempty"`
	CollectionID    string   `json:"collection_id,omitempty"`
	PlaylistID      string   `json:"playlist_id,omitempty"`
	Movies          *bool    `json:"movies,omitempty"`
	Episodes        *bool    `json:"episodes,omitempty"`
	AddedWithinDays int      `json:"added_within_days,omitempty"`
}

// MoviesAllowed reports whether the filter admits movies.
func (f *ChannelFilter) MoviesAllowed() bool {
	return f == nil || f.Movies == nil || *f.Movies
}

// EpisodesAllowed reports whether the filter admits episodes.
func (f *ChannelFilter) EpisodesAllowed() bool {
	return f == nil || f.Episodes == nil || *f.Episodes
}

// ScheduleBlock holds one generated block of programming for a channel.
// (ChannelID, BlockStart) is the natural key; regeneration upserts in place.
type ScheduleBlock struct {
	ID         string            `gorm:"type:uuid;primaryKey" json:"id"`
	ChannelID  string            `gorm:"type:uuid;uniqueIndex:idx_blocks_channel_start;index" json:"channel_id"`
	BlockStart time.Time         `gorm:"uniqueIndex:idx_blocks_channel_start;index" json:"block_start"`
	BlockEnd   time.Time         `gorm:"index" json:"block_end"`
	Seed       string            `json:"seed"`
	Programs   []ScheduleProgram `gorm:"type:jsonb;serializer:json" json:"programs"`
	CreatedAt  time.Time         `json:"created_at"`
}

// ProgramKind tags schedule entries.
type ProgramKind string

const (
	ProgramEntry     ProgramKind = "program"
	InterstitialEntry ProgramKind = "interstitial"
)

// ScheduleProgram is one entry in a block. Interstitials carry no item id and
// fill gaps the scheduler could not cover with real content.
type ScheduleProgram struct {
	Kind        ProgramKind `json:"kind"`
	ItemID      string      `json:"item_id,omitempty"`
	Title       string      `json:"title"`
	Subtitle    string      `json:"subtitle,omitempty"`
	ContentType string      `json:"content_type,omitempty"`
	SeriesID    string      `json:"series_id,omitempty"`
	Year        int         `json:"year,omitempty"`
	Rating      string      `json:"rating,omitempty"`
	ThumbURL    string      `json:"thumb_url,omitempty"`
	BannerURL   string      `json:"banner_url,omitempty"`
	StartTime   time.Time   `json:"start_time"`
	EndTime     time.Time   `json:"end_time"`
	DurationMs  int64       `json:"duration_ms"`
}

// IsInterstitial reports whether the entry is a gap filler.
func (p ScheduleProgram) IsInterstitial() bool {
	return p.Kind == InterstitialEntry
}

// Setting is one persisted configuration value, JSON-encoded. Known keys are
// enumerated at the API boundary; unknown keys are rejected there.
type Setting struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LibraryCacheEntry is one library item snapshotted into the database so the
// index can rehydrate without an Upstream round trip on boot.
type LibraryCacheEntry struct {
	ServerID  string    `gorm:"type:uuid;primaryKey"`
	ItemID    string    `gorm:"primaryKey"`
	Kind      string    `gorm:"type:varchar(16);index"`
	Payload   []byte    `gorm:"type:jsonb"`
	UpdatedAt time.Time
}
