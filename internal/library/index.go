/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package library

import (
	"strings"
	"sync/atomic"
)

// Index is the process-wide library snapshot. Sync and rehydration build a
// fresh snapshot and swap it in atomically; readers never observe a partially
// built index. Accessors return items in snapshot order so callers stay
// deterministic.
type Index struct {
	snap atomic.Pointer[snapshot]
}

type snapshot struct {
	items map[string]Item
	order []string
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	idx := &Index{}
	idx.snap.Store(&snapshot{items: map[string]Item{}})
	return idx
}

// Replace swaps in a new snapshot built from items. Duplicate ids keep the
// last occurrence.
func (x *Index) Replace(items []Item) {
	s := &snapshot{
		items: make(map[string]Item, len(items)),
		order: make([]string, 0, len(items)),
	}
	for _, it := range items {
		if it.ID == "" {
			continue
		}
		if _, dup := s.items[it.ID]; !dup {
			s.order = append(s.order, it.ID)
		}
		s.items[it.ID] = it
	}
	x.snap.Store(s)
}

// Size returns the number of items in the snapshot.
func (x *Index) Size() int {
	return len(x.snap.Load().order)
}

// Get looks up one item.
func (x *Index) Get(id string) (Item, bool) {
	it, ok := x.snap.Load().items[id]
	return it, ok
}

// All returns every item in snapshot order.
func (x *Index) All() []Item {
	s := x.snap.Load()
	out := make([]Item, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id])
	}
	return out
}

// Resolve maps ids to items, silently skipping ids that no longer exist.
// Channel item lists hold weak references; this is where they get filtered.
func (x *Index) Resolve(ids []string) []Item {
	s := x.snap.Load()
	out := make([]Item, 0, len(ids))
	for _, id := range ids {
		if it, ok := s.items[id]; ok {
			out = append(out, it)
		}
	}
	return out
}

// Genres maps lead genre to items. Only the first genre counts here so a
// movie tagged "Action, Comedy" lands on exactly one genre channel.
func (x *Index) Genres() map[string][]Item {
	s := x.snap.Load()
	out := make(map[string][]Item)
	for _, id := range s.order {
		it := s.items[id]
		if g := it.LeadGenre(); g != "" {
			out[g] = append(out[g], it)
		}
	}
	return out
}

// ItemsWithGenre returns items whose genre list matches any alias,
// case-insensitive substring. Unlike Genres this scans all genres, not just
// the lead one; preset filters want the wide net.
func (x *Index) ItemsWithGenre(aliases ...string) []Item {
	s := x.snap.Load()
	var out []Item
	for _, id := range s.order {
		it := s.items[id]
		if genreMatchesAny(it.Genres, aliases) {
			out = append(out, it)
		}
	}
	return out
}

func genreMatchesAny(genres, aliases []string) bool {
	for _, g := range genres {
		lg := strings.ToLower(g)
		for _, a := range aliases {
			if a == "" {
				continue
			}
			if strings.Contains(lg, strings.ToLower(a)) {
				return true
			}
		}
	}
	return false
}

// PeopleIndex maps person name to items for one role. topBilled limits how
// deep into the billing order to look (0 = unlimited); actor channels only
// count the top three billed names per item.
func (x *Index) PeopleIndex(role string, topBilled int) map[string][]Item {
	s := x.snap.Load()
	out := make(map[string][]Item)
	for _, id := range s.order {
		it := s.items[id]
		seen := 0
		credited := map[string]bool{}
		for _, p := range it.People {
			if topBilled > 0 && seen >= topBilled {
				break
			}
			if strings.EqualFold(p.Role, RoleActor) {
				seen++
			}
			if !strings.EqualFold(p.Role, role) || p.Name == "" {
				continue
			}
			if credited[p.Name] {
				continue
			}
			credited[p.Name] = true
			out[p.Name] = append(out[p.Name], it)
		}
	}
	return out
}

// Studios maps studio name to items.
func (x *Index) Studios() map[string][]Item {
	s := x.snap.Load()
	out := make(map[string][]Item)
	for _, id := range s.order {
		it := s.items[id]
		for _, st := range it.Studios {
			if st != "" {
				out[st] = append(out[st], it)
			}
		}
	}
	return out
}

// Decades buckets items by production decade. Items without a year are
// excluded.
func (x *Index) Decades() map[int][]Item {
	s := x.snap.Load()
	out := make(map[int][]Item)
	for _, id := range s.order {
		it := s.items[id]
		if d := it.Decade(); d > 0 {
			out[d] = append(out[d], it)
		}
	}
	return out
}
