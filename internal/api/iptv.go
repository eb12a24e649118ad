/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/prevue/internal/iptv"
	"github.com/friendsincode/prevue/internal/models"
	"github.com/friendsincode/prevue/internal/store"
	"github.com/friendsincode/prevue/internal/tuner"
)

// iptvEnabled reads the iptv_enabled setting; unset means disabled.
func (a *API) iptvEnabled(r *http.Request) bool {
	var enabled bool
	if err := a.store.GetSettingInto(r.Context(), models.SettingIPTVEnabled, &enabled); err != nil {
		return false
	}
	return enabled
}

// requestBaseURL is the externally reachable address embedded in IPTV output.
func (a *API) requestBaseURL(r *http.Request) string {
	if a.baseURL != "" {
		return a.baseURL
	}
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func (a *API) handleIPTVPlaylist(w http.ResponseWriter, r *http.Request) {
	if !a.iptvEnabled(r) {
		writeError(w, http.StatusForbidden, "iptv_disabled", "enable iptv_enabled in settings")
		return
	}
	playlist, err := a.iptv.Playlist(r.Context(), a.requestBaseURL(r))
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	w.Header().Set("Content-Type", "audio/x-mpegurl")
	_, _ = w.Write([]byte(playlist))
}

func (a *API) handleIPTVEPG(w http.ResponseWriter, r *http.Request) {
	if !a.iptvEnabled(r) {
		writeError(w, http.StatusForbidden, "iptv_disabled", "enable iptv_enabled in settings")
		return
	}
	epg, err := a.iptv.EPG(r.Context(), a.requestBaseURL(r), queryInt(r, "hours", iptv.DefaultEPGHours))
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	_, _ = w.Write([]byte(epg))
}

// handleIPTVChannel streams whatever airs on a tuner number right now. IPTV
// players treat the playlist URL as a live feed, so the master playlist is
// served directly with the in-progress seek applied.
func (a *API) handleIPTVChannel(w http.ResponseWriter, r *http.Request) {
	if !a.iptvEnabled(r) {
		writeError(w, http.StatusForbidden, "iptv_disabled", "enable iptv_enabled in settings")
		return
	}
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_channel_number", "channel number must be an integer")
		return
	}

	tuning, err := a.tuner.ResolveByNumber(r.Context(), number, time.Now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", "no such channel")
		case errors.Is(err, tuner.ErrNothingAiring):
			// Generation may still be catching up; tell the player to retry.
			w.Header().Set("Retry-After", "30")
			writeError(w, http.StatusServiceUnavailable, "nothing_airing", "no program covers the current time")
		default:
			a.writeStoreError(w, err)
		}
		return
	}
	if tuning.Program.ItemID == "" {
		w.Header().Set("Retry-After", strconv.FormatInt(int64(time.Until(tuning.Program.EndTime)/time.Second)+1, 10))
		writeError(w, http.StatusServiceUnavailable, "interstitial_airing", "channel is between programs")
		return
	}

	params := a.masterParams(r)
	params.SeekMs = tuning.SeekMs
	if err := a.proxy.Master(r.Context(), w, tuning.Program.ItemID, params); err != nil {
		a.logger.Error().Err(err).Int("channel", number).Msg("iptv channel stream failed")
		a.writeUpstreamError(w, err)
	}
}
