/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/prevue/internal/models"
	"github.com/friendsincode/prevue/internal/stream"
	"github.com/friendsincode/prevue/internal/tuner"
)

// qualityBitrates maps stream_quality preset names to target video bitrates.
// "auto" (or anything unknown) leaves the bitrate unset so Upstream may
// direct-stream.
var qualityBitrates = map[string]int{
	"1080p": 8_000_000,
	"720p":  4_000_000,
	"480p":  1_500_000,
}

type playbackResponse struct {
	*tuner.Tuning
	StreamURL      string `json:"stream_url,omitempty"`
	WatchSessionID string `json:"watch_session_id,omitempty"`
}

// handlePlayback tunes a channel: resolve what airs now, open a watch session,
// and hand the UI the stream URL to fetch.
func (a *API) handlePlayback(w http.ResponseWriter, r *http.Request) {
	tuning, err := a.tuner.Resolve(r.Context(), chi.URLParam(r, "channelID"), time.Now().UTC())
	if err != nil {
		if errors.Is(err, tuner.ErrNothingAiring) {
			writeError(w, http.StatusNotFound, "nothing_airing", "no program covers the current time")
			return
		}
		a.writeStoreError(w, err)
		return
	}

	resp := playbackResponse{Tuning: tuning}
	if tuning.Program.ItemID != "" {
		resp.StreamURL = a.streamURL(tuning, r.URL.Query())

		session := &models.WatchSession{
			ChannelID:   tuning.Channel.ID,
			ChannelName: tuning.Channel.Name,
			ItemID:      tuning.Program.ItemID,
			Title:       tuning.Program.Title,
			ContentType: tuning.Program.ContentType,
		}
		if err := a.store.CreateWatchSession(r.Context(), session); err != nil {
			// Stats are best-effort; playback still works.
			a.logger.Warn().Err(err).Msg("watch session create failed")
		} else {
			resp.WatchSessionID = session.ID
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// streamURL builds the /api/stream master URL for a tuning, carrying the
// caller's quality knobs through.
func (a *API) streamURL(tuning *tuner.Tuning, query url.Values) string {
	q := url.Values{}
	q.Set("seekMs", strconv.FormatInt(tuning.SeekMs, 10))
	for _, key := range []string{"bitrate", "maxWidth", "audioStreamIndex"} {
		if v := query.Get(key); v != "" {
			q.Set(key, v)
		}
	}
	return fmt.Sprintf("/api/stream/%s?%s", url.PathEscape(tuning.Program.ItemID), q.Encode())
}

// handleStreamMaster serves the rewritten master playlist for one item.
func (a *API) handleStreamMaster(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")
	params := a.masterParams(r)

	err := a.proxy.Master(r.Context(), w, itemID, params)
	if err == nil {
		return
	}
	if errors.Is(err, stream.ErrNoUpstream) {
		writeError(w, http.StatusBadGateway, "no_upstream", "no active server")
		return
	}
	a.logger.Error().Err(err).Str("item_id", itemID).Msg("master playlist failed")
	a.writeUpstreamError(w, err)
}

func (a *API) masterParams(r *http.Request) stream.MasterParams {
	params := stream.MasterParams{
		SeekMs:           int64(queryInt(r, "seekMs", 0)),
		BitrateBps:       queryInt(r, "bitrate", 0),
		MaxWidth:         queryInt(r, "maxWidth", 0),
		AudioStreamIndex: -1,
	}
	if v := r.URL.Query().Get("audioStreamIndex"); v != "" {
		if idx, err := strconv.Atoi(v); err == nil && idx >= 0 {
			params.AudioStreamIndex = idx
		}
	}
	if params.BitrateBps == 0 {
		params.BitrateBps = a.configuredBitrate(r)
	}
	return params
}

// configuredBitrate reads the stream_quality setting when the request carries
// no explicit bitrate.
func (a *API) configuredBitrate(r *http.Request) int {
	var quality string
	if err := a.store.GetSettingInto(r.Context(), models.SettingStreamQuality, &quality); err != nil {
		return 0
	}
	return qualityBitrates[strings.ToLower(quality)]
}

func (a *API) handleStreamProxy(w http.ResponseWriter, r *http.Request) {
	subpath := chi.URLParam(r, "*")
	a.proxy.ServeProxy(w, r, subpath)
}

type streamStopRequest struct {
	ItemID         string `json:"item_id"`
	PlaySessionID  string `json:"play_session_id,omitempty"`
	PositionMs     int64  `json:"position_ms,omitempty"`
	WatchSessionID string `json:"watch_session_id,omitempty"`
}

func (a *API) handleStreamStop(w http.ResponseWriter, r *http.Request) {
	var req streamStopRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if req.ItemID == "" {
		writeError(w, http.StatusBadRequest, "missing_fields", "item_id is required")
		return
	}
	a.proxy.Stop(r.Context(), req.ItemID, req.PlaySessionID, req.PositionMs)
	if req.WatchSessionID != "" {
		if err := a.store.TouchWatchSession(r.Context(), req.WatchSessionID, models.WatchEventStop, req.PositionMs); err != nil {
			a.logger.Debug().Err(err).Msg("watch session stop record failed")
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

type streamProgressRequest struct {
	ItemID         string `json:"item_id"`
	PlaySessionID  string `json:"play_session_id,omitempty"`
	PositionMs     int64  `json:"position_ms"`
	Paused         bool   `json:"paused,omitempty"`
	WatchSessionID string `json:"watch_session_id,omitempty"`
}

// handleStreamProgress forwards a progress heartbeat to Upstream and folds it
// into the watch session. Both legs are best-effort; the response is always
// 200 so a flaky report never interrupts playback.
func (a *API) handleStreamProgress(w http.ResponseWriter, r *http.Request) {
	var req streamProgressRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if req.ItemID == "" {
		writeError(w, http.StatusBadRequest, "missing_fields", "item_id is required")
		return
	}

	a.sessions.Touch(req.ItemID)
	if client := a.runtime.Client(); client != nil {
		session, tracked := a.sessions.Get(req.ItemID)
		mediaSourceID := ""
		playSessionID := req.PlaySessionID
		if tracked {
			mediaSourceID = session.MediaSourceID
			if playSessionID == "" {
				playSessionID = session.PlaySessionID
			}
		}
		if playSessionID != "" {
			if err := client.ReportPlaybackProgress(r.Context(), req.ItemID, mediaSourceID, playSessionID, req.PositionMs, req.Paused); err != nil {
				a.logger.Debug().Err(err).Msg("progress report failed")
			}
		}
	}
	if req.WatchSessionID != "" {
		if err := a.store.TouchWatchSession(r.Context(), req.WatchSessionID, models.WatchEventProgress, req.PositionMs); err != nil {
			a.logger.Debug().Err(err).Msg("watch session progress record failed")
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
