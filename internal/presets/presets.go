/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package presets ships the built-in channel preset catalog. The catalog is a
// YAML file compiled into the binary; there is no runtime editing surface.
package presets

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/friendsincode/prevue/internal/models"
)

//go:embed presets.yaml
var catalogYAML []byte

// DynamicSource enumerates what a dynamic preset expands over.
type DynamicSource string

const (
	SourceGenres      DynamicSource = "genres"
	SourceEras        DynamicSource = "eras"
	SourceDirectors   DynamicSource = "directors"
	SourceActors      DynamicSource = "actors"
	SourceComposers   DynamicSource = "composers"
	SourceStudios     DynamicSource = "studios"
	SourceCollections DynamicSource = "collections"
	SourcePlaylists   DynamicSource = "playlists"
)

// Preset is one catalog entry. Static presets carry a filter; dynamic presets
// carry a source the materializer expands.
type Preset struct {
	ID          string
	Name        string
	Description string
	Dynamic     bool
	Source      DynamicSource
	Filter      *models.ChannelFilter
}

// Catalog is the parsed preset set.
type Catalog struct {
	Static  []Preset
	Dynamic []Preset

	// Priority pins curated names to the front of cast/crew rankings,
	// keyed by dynamic source.
	Priority map[DynamicSource][]string

	byID map[string]Preset
}

// Get looks up a preset by id across both kinds.
func (c *Catalog) Get(id string) (Preset, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// All returns static presets followed by dynamic ones.
func (c *Catalog) All() []Preset {
	out := make([]Preset, 0, len(c.Static)+len(c.Dynamic))
	out = append(out, c.Static...)
	out = append(out, c.Dynamic...)
	return out
}

type wireFilter struct {
	Genres          []string `yaml:"genres"`
	ExcludeGenres   []string `yaml:"exclude_genres"`
	Ratings         []string `yaml:"ratings"`
	ExcludeRatings  []string `yaml:"exclude_ratings"`
	YearFrom        int      `yaml:"year_from"`
	YearTo          int      `yaml:"year_to"`
	MinDurationMs   int64    `yaml:"min_duration_ms"`
	MaxDurationMs   int64    `yaml:"max_duration_ms"`
	Studios         []string `yaml:"studios"`
	Directors       []string `yaml:"directors"`
	Actors          []string `yaml:"actors"`
	Composers       []string `yaml:"composers"`
	Unwatched       bool     `yaml:"unwatched"`
	Favorites       bool     `yaml:"favorites"`
	AddedWithinDays int      `yaml:"added_within_days"`
	Movies          *bool    `yaml:"movies"`
	Episodes        *bool    `yaml:"episodes"`
}

func (w *wireFilter) toModel() *models.ChannelFilter {
	if w == nil {
		return nil
	}
	return &models.ChannelFilter{
		Genres:          w.Genres,
		ExcludeGenres:   w.ExcludeGenres,
		Ratings:         w.Ratings,
		ExcludeRatings:  w.ExcludeRatings,
		YearFrom:        w.YearFrom,
		YearTo:          w.YearTo,
		MinDurationMs:   w.MinDurationMs,
		MaxDurationMs:   w.MaxDurationMs,
		Studios:         w.Studios,
		Directors:       w.Directors,
		Actors:          w.Actors,
		Composers:       w.Composers,
		Unwatched:       w.Unwatched,
		Favorites:       w.Favorites,
		AddedWithinDays: w.AddedWithinDays,
		Movies:          w.Movies,
		Episodes:        w.Episodes,
	}
}

type wirePreset struct {
	ID          string      `yaml:"id"`
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Source      string      `yaml:"source"`
	Filter      *wireFilter `yaml:"filter"`
}

type wireCatalog struct {
	Static   []wirePreset        `yaml:"static"`
	Dynamic  []wirePreset        `yaml:"dynamic"`
	Priority map[string][]string `yaml:"priority"`
}

var (
	loadOnce sync.Once
	loaded   *Catalog
	loadErr  error
)

// Load parses the embedded catalog. Parsed once per process.
func Load() (*Catalog, error) {
	loadOnce.Do(func() {
		loaded, loadErr = parse(catalogYAML)
	})
	return loaded, loadErr
}

func parse(data []byte) (*Catalog, error) {
	var wire wireCatalog
	if err := yaml.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("presets: parse catalog: %w", err)
	}
	cat := &Catalog{
		Priority: map[DynamicSource][]string{},
		byID:     map[string]Preset{},
	}
	for _, w := range wire.Static {
		if w.ID == "" || w.Name == "" {
			return nil, fmt.Errorf("presets: static preset missing id or name: %+v", w)
		}
		p := Preset{ID: w.ID, Name: w.Name, Description: w.Description, Filter: w.Filter.toModel()}
		if _, dup := cat.byID[p.ID]; dup {
			return nil, fmt.Errorf("presets: duplicate preset id %q", p.ID)
		}
		cat.Static = append(cat.Static, p)
		cat.byID[p.ID] = p
	}
	for _, w := range wire.Dynamic {
		source := DynamicSource(w.Source)
		switch source {
		case SourceGenres, SourceEras, SourceDirectors, SourceActors,
			SourceComposers, SourceStudios, SourceCollections, SourcePlaylists:
		default:
			return nil, fmt.Errorf("presets: unknown dynamic source %q", w.Source)
		}
		p := Preset{ID: w.ID, Name: w.Name, Description: w.Description, Dynamic: true, Source: source}
		if _, dup := cat.byID[p.ID]; dup {
			return nil, fmt.Errorf("presets: duplicate preset id %q", p.ID)
		}
		cat.Dynamic = append(cat.Dynamic, p)
		cat.byID[p.ID] = p
	}
	for key, names := range wire.Priority {
		cat.Priority[DynamicSource(key)] = names
	}
	return cat, nil
}
