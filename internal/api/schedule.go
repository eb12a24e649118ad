/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/prevue/internal/models"
	"github.com/friendsincode/prevue/internal/tuner"
)

type channelSchedule struct {
	Channel  models.Channel           `json:"channel"`
	Programs []models.ScheduleProgram `json:"programs"`
}

// handleScheduleAll returns the guide for every channel over the next
// ?hours= (default 24).
func (a *API) handleScheduleAll(w http.ResponseWriter, r *http.Request) {
	hours := queryInt(r, "hours", 24)
	now := time.Now().UTC()
	from, to := now, now.Add(time.Duration(hours)*time.Hour)

	channels, err := a.store.ListChannels(r.Context())
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	out := make([]channelSchedule, 0, len(channels))
	for _, ch := range channels {
		programs, err := a.programsInRange(r.Context(), ch.ID, from, to)
		if err != nil {
			a.writeStoreError(w, err)
			return
		}
		out = append(out, channelSchedule{Channel: ch, Programs: programs})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleScheduleChannel(w http.ResponseWriter, r *http.Request) {
	channel, err := a.store.GetChannel(r.Context(), chi.URLParam(r, "channelID"))
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	hours := queryInt(r, "hours", 24)
	now := time.Now().UTC()
	programs, err := a.programsInRange(r.Context(), channel.ID, now, now.Add(time.Duration(hours)*time.Hour))
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, channelSchedule{Channel: *channel, Programs: programs})
}

func (a *API) handleScheduleNow(w http.ResponseWriter, r *http.Request) {
	tuning, err := a.tuner.Resolve(r.Context(), chi.URLParam(r, "channelID"), time.Now().UTC())
	if err != nil {
		if errors.Is(err, tuner.ErrNothingAiring) {
			writeError(w, http.StatusNotFound, "nothing_airing", "no program covers the current time")
			return
		}
		a.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tuning)
}

func (a *API) handleScheduleRegenerate(w http.ResponseWriter, r *http.Request) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		if err := a.scheduler.RegenerateAll(ctx); err != nil {
			a.logger.Error().Err(err).Msg("schedule regeneration failed")
		}
		a.invalidateOutputs()
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "regenerating"})
}

// programsInRange flattens a channel's blocks to the programs overlapping
// [from, to).
func (a *API) programsInRange(ctx context.Context, channelID string, from, to time.Time) ([]models.ScheduleProgram, error) {
	blocks, err := a.store.GetScheduleBlocksInRange(ctx, channelID, a.aligner.BlockStart(from), to)
	if err != nil {
		return nil, err
	}
	programs := []models.ScheduleProgram{}
	for _, block := range blocks {
		for _, p := range block.Programs {
			if p.EndTime.After(from) && p.StartTime.Before(to) {
				programs = append(programs, p)
			}
		}
	}
	return programs, nil
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			return parsed
		}
	}
	return def
}
