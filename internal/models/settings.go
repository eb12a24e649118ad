/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "strings"

// Setting keys accepted by the settings API. Anything else is rejected.
const (
	SettingUpstreamURL          = "upstream_url"
	SettingGenreFilter          = "genre_filter"
	SettingRatingFilter         = "rating_filter"
	SettingContentTypes         = "content_types"
	SettingSeparateContentTypes = "separate_content_types"
	SettingSelectedPresets      = "selected_presets"
	SettingIPTVEnabled          = "iptv_enabled"
	SettingStreamQuality        = "stream_quality"
	SettingSyncIntervalHours    = "sync_interval_hours"
)

// KnownSettings maps each accepted key to its documentation string, served by
// the settings API.
var KnownSettings = map[string]string{
	SettingUpstreamURL:          "Base URL of the upstream media server.",
	SettingGenreFilter:          "List of genres the library is restricted to. Empty allows all.",
	SettingRatingFilter:         `Rating filter {"mode","ratings"}. Historical quirk kept for compatibility: mode "allow" behaves as a deny list — listed ratings are excluded, and while any filter is set, unrated items are excluded too.`,
	SettingContentTypes:         `Enabled content types, subset of ["movies","tv"]. Empty allows both.`,
	SettingSeparateContentTypes: "When true, presets matching both movies and episodes split into separate Movies/TV channels.",
	SettingSelectedPresets:      `Preset selections [{"id","count"}] used on channel regeneration. Empty selects auto-genres.`,
	SettingIPTVEnabled:          "Enables the M3U playlist and XMLTV guide endpoints.",
	SettingStreamQuality:        `Transcode quality: "auto", or a bitrate preset name.`,
	SettingSyncIntervalHours:    "Hours between automatic library syncs. 0 disables.",
}

// RatingFilter restricts which official ratings are schedulable. The mode
// field is kept for wire compatibility; both modes treat Ratings as a deny
// list (see KnownSettings docs).
type RatingFilter struct {
	Mode    string   `json:"mode,omitempty"`
	Ratings []string `json:"ratings,omitempty"`
}

// Active reports whether the filter constrains anything.
func (f *RatingFilter) Active() bool {
	return f != nil && len(f.Ratings) > 0
}

// Denies reports whether an item with the given official rating is excluded.
// While a filter is active, missing and "Not Rated" ratings are denied.
func (f *RatingFilter) Denies(rating string) bool {
	if !f.Active() {
		return false
	}
	if rating == "" || strings.EqualFold(rating, "not rated") || strings.EqualFold(rating, "nr") {
		return true
	}
	for _, r := range f.Ratings {
		if strings.EqualFold(r, rating) {
			return true
		}
	}
	return false
}

// SelectedPreset is one entry of the selected_presets setting. Count > 1
// materializes that many copies of the preset's channels.
type SelectedPreset struct {
	ID    string `json:"id"`
	Count int    `json:"count,omitempty"`
}
