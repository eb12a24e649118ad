/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"time"

	"github.com/friendsincode/prevue/internal/store"
)

type statsResponse struct {
	SinceDays   int                       `json:"since_days"`
	TopChannels []store.ChannelWatchTotal `json:"top_channels"`
	TopItems    []store.ItemWatchTotal    `json:"top_items"`
	ByDay       []store.DayWatchTotal     `json:"watch_time_by_day"`
}

// handleStats aggregates watch sessions over the last ?days= (default 7).
func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 7)
	since := time.Now().UTC().AddDate(0, 0, -days)

	topChannels, err := a.store.TopChannels(r.Context(), since, 10)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	topItems, err := a.store.TopItems(r.Context(), since, 10)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	byDay, err := a.store.WatchTimeByDay(r.Context(), since)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		SinceDays:   days,
		TopChannels: topChannels,
		TopItems:    topItems,
		ByDay:       byDay,
	})
}
