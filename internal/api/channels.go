/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/prevue/internal/models"
)

type channelRequest struct {
	Name     string                `json:"name"`
	Filter   *models.ChannelFilter `json:"filter,omitempty"`
	ItemIDs  []string              `json:"item_ids,omitempty"`
	AIPrompt string                `json:"ai_prompt,omitempty"`
}

func (a *API) handleChannelsList(w http.ResponseWriter, r *http.Request) {
	channels, err := a.store.ListChannels(r.Context())
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, channels)
}

func (a *API) handleChannelsGet(w http.ResponseWriter, r *http.Request) {
	channel, err := a.store.GetChannel(r.Context(), chi.URLParam(r, "channelID"))
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, channel)
}

func (a *API) handleChannelsCreate(w http.ResponseWriter, r *http.Request) {
	var req channelRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "missing_fields", "name is required")
		return
	}

	itemIDs := req.ItemIDs
	if len(itemIDs) == 0 && req.Filter != nil {
		resolved, err := a.materializer.ItemsForFilter(r.Context(), req.Filter)
		if err != nil {
			a.writeStoreError(w, err)
			return
		}
		itemIDs = resolved
	}
	channel := &models.Channel{
		Name:     req.Name,
		Kind:     models.ChannelCustom,
		Filter:   req.Filter,
		ItemIDs:  itemIDs,
		AIPrompt: req.AIPrompt,
	}
	if err := a.store.CreateChannel(r.Context(), channel); err != nil {
		a.writeStoreError(w, err)
		return
	}
	a.afterChannelMutation()
	writeJSON(w, http.StatusCreated, channel)
}

func (a *API) handleChannelsUpdate(w http.ResponseWriter, r *http.Request) {
	channel, err := a.store.GetChannel(r.Context(), chi.URLParam(r, "channelID"))
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	var req channelRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	if req.Name != "" {
		channel.Name = req.Name
	}
	if req.Filter != nil {
		channel.Filter = req.Filter
	}
	if len(req.ItemIDs) > 0 {
		channel.ItemIDs = req.ItemIDs
	} else if req.Filter != nil {
		resolved, err := a.materializer.ItemsForFilter(r.Context(), req.Filter)
		if err != nil {
			a.writeStoreError(w, err)
			return
		}
		channel.ItemIDs = resolved
	}
	if req.AIPrompt != "" {
		channel.AIPrompt = req.AIPrompt
	}

	if err := a.store.UpdateChannel(r.Context(), channel); err != nil {
		a.writeStoreError(w, err)
		return
	}
	a.afterChannelMutation()
	writeJSON(w, http.StatusOK, channel)
}

func (a *API) handleChannelsDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.store.DeleteChannel(r.Context(), chi.URLParam(r, "channelID")); err != nil {
		a.writeStoreError(w, err)
		return
	}
	a.invalidateOutputs()
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleChannelsRegenerate rebuilds the auto/preset channel lineup from the
// current settings, then regenerates all schedules. Long-running, so it runs
// off the request path and the caller gets a 202.
func (a *API) handleChannelsRegenerate(w http.ResponseWriter, r *http.Request) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		if err := a.materializer.Regenerate(ctx); err != nil {
			a.logger.Error().Err(err).Msg("channel regeneration failed")
			return
		}
		if err := a.scheduler.RegenerateAll(ctx); err != nil {
			a.logger.Error().Err(err).Msg("schedule regeneration failed")
		}
		a.invalidateOutputs()
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "regenerating"})
}

// afterChannelMutation extends schedules to cover the changed lineup and drops
// stale IPTV outputs.
func (a *API) afterChannelMutation() {
	a.invalidateOutputs()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if err := a.scheduler.ExtendSchedules(ctx); err != nil {
			a.logger.Error().Err(err).Msg("schedule extension after channel change failed")
		}
	}()
}

func (a *API) invalidateOutputs() {
	if a.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.cache.InvalidateOutputs(ctx)
}
