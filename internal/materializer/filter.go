/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package materializer

import (
	"strings"
	"time"

	"github.com/friendsincode/prevue/internal/library"
	"github.com/friendsincode/prevue/internal/models"
)

// GlobalFilters are the library-wide constraints from settings, applied on top
// of every preset and channel filter.
type GlobalFilters struct {
	Genres       []string
	Rating       *models.RatingFilter
	MoviesOn     bool
	EpisodesOn   bool
	SeparateKind bool
}

// Allows reports whether an item survives the global filters.
func (g GlobalFilters) Allows(item library.Item) bool {
	if item.IsMovie() && !g.MoviesOn {
		return false
	}
	if item.IsEpisode() && !g.EpisodesOn {
		return false
	}
	if g.Rating.Denies(item.OfficialRating) {
		return false
	}
	if len(g.Genres) > 0 && !anyGenreMatches(item.Genres, g.Genres) {
		return false
	}
	return true
}

// MatchesFilter evaluates a channel filter against one item. Collection and
// playlist membership is not evaluated here; those resolve against Upstream
// before matching.
func MatchesFilter(item library.Item, f *models.ChannelFilter, now time.Time) bool {
	if f == nil {
		return true
	}
	if item.IsMovie() && !f.MoviesAllowed() {
		return false
	}
	if item.IsEpisode() && !f.EpisodesAllowed() {
		return false
	}
	if len(f.Genres) > 0 && !anyGenreMatches(item.Genres, f.Genres) {
		return false
	}
	if len(f.ExcludeGenres) > 0 && anyGenreMatches(item.Genres, f.ExcludeGenres) {
		return false
	}
	if len(f.Ratings) > 0 && !containsFold(f.Ratings, item.OfficialRating) {
		return false
	}
	if len(f.ExcludeRatings) > 0 && containsFold(f.ExcludeRatings, item.OfficialRating) {
		return false
	}
	if f.YearFrom > 0 && (item.ProductionYear == 0 || item.ProductionYear < f.YearFrom) {
		return false
	}
	if f.YearTo > 0 && (item.ProductionYear == 0 || item.ProductionYear > f.YearTo) {
		return false
	}
	if f.MinDurationMs > 0 && item.DurationMs() < f.MinDurationMs {
		return false
	}
	if f.MaxDurationMs > 0 && (item.DurationMs() == 0 || item.DurationMs() > f.MaxDurationMs) {
		return false
	}
	if len(f.Studios) > 0 && !anyFoldIntersect(item.Studios, f.Studios) {
		return false
	}
	if len(f.Directors) > 0 && !hasPersonAny(item, library.RoleDirector, f.Directors, 0) {
		return false
	}
	if len(f.Actors) > 0 && !hasPersonAny(item, library.RoleActor, f.Actors, 0) {
		return false
	}
	if len(f.Composers) > 0 && !hasPersonAny(item, library.RoleComposer, f.Composers, 0) {
		return false
	}
	if f.Unwatched && item.UserData.Played {
		return false
	}
	if f.Favorites && !item.UserData.IsFavorite {
		return false
	}
	if f.ContinueWatching {
		pct := item.UserData.PlayedPercentage
		if item.UserData.Played || pct <= 0 || pct >= 95 {
			return false
		}
	}
	if f.NotWatchedDays > 0 && item.UserData.LastPlayedAt != nil {
		cutoff := now.AddDate(0, 0, -f.NotWatchedDays)
		if item.UserData.LastPlayedAt.After(cutoff) {
			return false
		}
	}
	if f.AddedWithinDays > 0 {
		cutoff := now.AddDate(0, 0, -f.AddedWithinDays)
		if item.DateCreated.IsZero() || item.DateCreated.Before(cutoff) {
			return false
		}
	}
	return true
}

// anyGenreMatches is a case-insensitive substring match over every genre, so
// "Sci-Fi" hits "Sci-Fi & Fantasy" and vice versa.
func anyGenreMatches(genres, wanted []string) bool {
	for _, g := range genres {
		lg := strings.ToLower(g)
		for _, w := range wanted {
			if w == "" {
				continue
			}
			lw := strings.ToLower(w)
			if strings.Contains(lg, lw) || strings.Contains(lw, lg) {
				return true
			}
		}
	}
	return false
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(h, needle) {
			return true
		}
	}
	return false
}

func anyFoldIntersect(a, b []string) bool {
	for _, x := range a {
		if containsFold(b, x) {
			return true
		}
	}
	return false
}

func hasPersonAny(item library.Item, role string, names []string, topBilled int) bool {
	seen := 0
	for _, p := range item.People {
		if topBilled > 0 && seen >= topBilled {
			break
		}
		if strings.EqualFold(p.Role, library.RoleActor) {
			seen++
		}
		if !strings.EqualFold(p.Role, role) {
			continue
		}
		if containsFold(names, p.Name) {
			return true
		}
	}
	return false
}
