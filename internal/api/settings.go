/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"net/http"

	"github.com/friendsincode/prevue/internal/events"
	"github.com/friendsincode/prevue/internal/models"
)

type settingsResponse struct {
	Values map[string]json.RawMessage `json:"values"`
	Docs   map[string]string          `json:"docs"`
}

func (a *API) handleSettingsGet(w http.ResponseWriter, r *http.Request) {
	stored, err := a.store.AllSettings(r.Context())
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	values := make(map[string]json.RawMessage, len(models.KnownSettings))
	for key := range models.KnownSettings {
		if v, ok := stored[key]; ok {
			values[key] = v
		}
	}
	writeJSON(w, http.StatusOK, settingsResponse{Values: values, Docs: models.KnownSettings})
}

// handleSettingsPut updates one or more settings. Unknown keys reject the
// whole request so typos never silently create dead settings.
func (a *API) handleSettingsPut(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var incoming map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	for key := range incoming {
		if _, ok := models.KnownSettings[key]; !ok {
			writeError(w, http.StatusBadRequest, "unknown_setting", "unknown setting key: "+key)
			return
		}
	}
	if err := a.validateSettings(incoming); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_setting", err.Error())
		return
	}

	for key, value := range incoming {
		if err := a.store.SetSetting(r.Context(), key, value); err != nil {
			a.writeStoreError(w, err)
			return
		}
	}
	a.invalidateOutputs()
	a.bus.Publish(events.EventSettingsChanged, events.Payload{"keys": settingKeys(incoming)})
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// validateSettings type-checks the structured settings before anything is
// written.
func (a *API) validateSettings(incoming map[string]json.RawMessage) error {
	if raw, ok := incoming[models.SettingRatingFilter]; ok {
		var f models.RatingFilter
		if err := json.Unmarshal(raw, &f); err != nil {
			return err
		}
	}
	if raw, ok := incoming[models.SettingSelectedPresets]; ok {
		var selections []models.SelectedPreset
		if err := json.Unmarshal(raw, &selections); err != nil {
			return err
		}
	}
	if raw, ok := incoming[models.SettingGenreFilter]; ok {
		var genres []string
		if err := json.Unmarshal(raw, &genres); err != nil {
			return err
		}
	}
	if raw, ok := incoming[models.SettingContentTypes]; ok {
		var kinds []string
		if err := json.Unmarshal(raw, &kinds); err != nil {
			return err
		}
	}
	if raw, ok := incoming[models.SettingIPTVEnabled]; ok {
		var enabled bool
		if err := json.Unmarshal(raw, &enabled); err != nil {
			return err
		}
	}
	if raw, ok := incoming[models.SettingSyncIntervalHours]; ok {
		var hours int
		if err := json.Unmarshal(raw, &hours); err != nil {
			return err
		}
	}
	return nil
}

func settingKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// handleFactoryReset wipes servers, channels, schedules, settings, and the
// library cache. The in-memory index is cleared too so stale items cannot
// leak into new channels.
func (a *API) handleFactoryReset(w http.ResponseWriter, r *http.Request) {
	if err := a.store.FactoryReset(r.Context()); err != nil {
		a.writeStoreError(w, err)
		return
	}
	a.index.Replace(nil)
	a.invalidateOutputs()
	a.logger.Info().Msg("factory reset completed")
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}
