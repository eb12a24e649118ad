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

	"github.com/friendsincode/prevue/internal/events"
	"github.com/friendsincode/prevue/internal/models"
	"github.com/friendsincode/prevue/internal/upstream"
)

type serverCreateRequest struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type serverUpdateRequest struct {
	Name     string `json:"name,omitempty"`
	URL      string `json:"url,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

type serverReauthRequest struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password"`
}

func (a *API) handleServersList(w http.ResponseWriter, r *http.Request) {
	servers, err := a.store.ListServers(r.Context())
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, servers)
}

func (a *API) handleServersGet(w http.ResponseWriter, r *http.Request) {
	server, err := a.store.GetServer(r.Context(), chi.URLParam(r, "serverID"))
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, server)
}

func (a *API) handleServersCreate(w http.ResponseWriter, r *http.Request) {
	var req serverCreateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if req.URL == "" || req.Username == "" {
		writeError(w, http.StatusBadRequest, "missing_fields", "url and username are required")
		return
	}

	auth, err := upstream.Authenticate(r.Context(), req.URL, req.Username, req.Password, a.allowPrivate, a.logger)
	if err != nil {
		a.writeUpstreamError(w, err)
		return
	}
	encrypted, err := a.encryptor.Encrypt(auth.AccessToken)
	if err != nil {
		a.logger.Error().Err(err).Msg("token encryption failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "could not protect access token")
		return
	}

	name := req.Name
	if name == "" {
		name = req.URL
	}
	server := &models.Server{
		Name:        name,
		URL:         req.URL,
		Username:    req.Username,
		AccessToken: encrypted,
		UserID:      auth.UserID,
	}
	if err := a.store.CreateServer(r.Context(), server); err != nil {
		a.writeStoreError(w, err)
		return
	}
	if server.IsActive {
		a.refreshAndSyncAsync()
	}
	writeJSON(w, http.StatusCreated, server)
}

func (a *API) handleServersUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "serverID")
	var req serverUpdateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	server, err := a.store.GetServer(r.Context(), id)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}

	// A changed URL or username invalidates the stored token, so those edits
	// need the password to re-authenticate. Renames do not.
	connectionChanged := (req.URL != "" && req.URL != server.URL) ||
		(req.Username != "" && req.Username != server.Username)
	if connectionChanged && req.Password == "" {
		writeError(w, http.StatusBadRequest, "password_required", "changing url or username requires the password")
		return
	}

	if req.Name != "" {
		server.Name = req.Name
	}
	if req.URL != "" {
		server.URL = req.URL
	}
	if req.Username != "" {
		server.Username = req.Username
	}

	reauthed := false
	if req.Password != "" {
		auth, err := upstream.Authenticate(r.Context(), server.URL, server.Username, req.Password, a.allowPrivate, a.logger)
		if err != nil {
			a.writeUpstreamError(w, err)
			return
		}
		encrypted, err := a.encryptor.Encrypt(auth.AccessToken)
		if err != nil {
			a.logger.Error().Err(err).Msg("token encryption failed")
			writeError(w, http.StatusInternalServerError, "internal_error", "could not protect access token")
			return
		}
		server.AccessToken = encrypted
		server.UserID = auth.UserID
		reauthed = true
	}

	if err := a.store.UpdateServer(r.Context(), server); err != nil {
		a.writeStoreError(w, err)
		return
	}
	if server.IsActive && reauthed {
		a.refreshAndSyncAsync()
	}
	writeJSON(w, http.StatusOK, server)
}

func (a *API) handleServersDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "serverID")
	server, err := a.store.GetServer(r.Context(), id)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	if err := a.store.DeleteServer(r.Context(), id); err != nil {
		a.writeStoreError(w, err)
		return
	}
	if server.IsActive {
		// The active connection is gone; drop the client and let the
		// supervisor notice there is nothing to serve.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = a.runtime.RefreshActiveServer(ctx)
		}()
	}
	a.bus.Publish(events.EventServerDeleted, events.Payload{"server_id": id})
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (a *API) handleServersTest(w http.ResponseWriter, r *http.Request) {
	client, err := a.clientFor(r.Context(), chi.URLParam(r, "serverID"))
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	if err := client.TestConnection(r.Context()); err != nil {
		a.writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handleServersReauthenticate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "serverID")
	var req serverReauthRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	server, err := a.store.GetServer(r.Context(), id)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	username := server.Username
	if req.Username != "" {
		username = req.Username
	}

	auth, err := upstream.Authenticate(r.Context(), server.URL, username, req.Password, a.allowPrivate, a.logger)
	if err != nil {
		a.writeUpstreamError(w, err)
		return
	}
	encrypted, err := a.encryptor.Encrypt(auth.AccessToken)
	if err != nil {
		a.logger.Error().Err(err).Msg("token encryption failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "could not protect access token")
		return
	}

	server.Username = username
	server.AccessToken = encrypted
	server.UserID = auth.UserID
	if err := a.store.UpdateServer(r.Context(), server); err != nil {
		a.writeStoreError(w, err)
		return
	}
	if server.IsActive {
		a.refreshAndSyncAsync()
	}
	writeJSON(w, http.StatusOK, server)
}

func (a *API) handleServersActivate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "serverID")
	if err := a.store.ActivateServer(r.Context(), id); err != nil {
		a.writeStoreError(w, err)
		return
	}
	a.bus.Publish(events.EventServerActivated, events.Payload{"server_id": id})
	a.refreshAndSyncAsync()
	writeJSON(w, http.StatusOK, map[string]string{"status": "activated"})
}

// clientFor builds a one-off client for the given server row, decrypting its
// stored token. Used by test; the active server's long-lived client comes from
// the runtime instead.
func (a *API) clientFor(ctx context.Context, serverID string) (*upstream.Client, error) {
	server, err := a.store.GetServer(ctx, serverID)
	if err != nil {
		return nil, err
	}
	token, err := a.encryptor.Decrypt(server.AccessToken)
	if err != nil {
		return nil, err
	}
	return upstream.New(upstream.Options{
		BaseURL:          server.URL,
		AccessToken:      token,
		UserID:           server.UserID,
		AllowPrivateURLs: a.allowPrivate,
		Logger:           a.logger,
	})
}

// refreshAndSyncAsync rebuilds the runtime client for the active server and
// kicks a library sync off the request path.
func (a *API) refreshAndSyncAsync() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if err := a.runtime.RefreshActiveServer(ctx); err != nil {
			a.logger.Error().Err(err).Msg("refresh active server failed")
			return
		}
		if err := a.runtime.SyncLibrary(ctx); err != nil {
			a.logger.Error().Err(err).Msg("post-activation sync failed")
		}
	}()
}
