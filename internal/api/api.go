/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api exposes the management HTTP surface: servers, channels,
// schedules, playback, settings, IPTV outputs, stats, and the WebSocket push
// feed. Handlers are thin; domain logic lives in the services they call.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/prevue/internal/auth"
	"github.com/friendsincode/prevue/internal/cache"
	"github.com/friendsincode/prevue/internal/clock"
	"github.com/friendsincode/prevue/internal/crypto"
	"github.com/friendsincode/prevue/internal/events"
	"github.com/friendsincode/prevue/internal/iptv"
	"github.com/friendsincode/prevue/internal/library"
	"github.com/friendsincode/prevue/internal/materializer"
	"github.com/friendsincode/prevue/internal/scheduler"
	"github.com/friendsincode/prevue/internal/sessions"
	"github.com/friendsincode/prevue/internal/store"
	"github.com/friendsincode/prevue/internal/stream"
	"github.com/friendsincode/prevue/internal/tuner"
	"github.com/friendsincode/prevue/internal/upstream"
)

// Runtime is the slice of the supervisor the API drives: the live Upstream
// client and the actions that follow a server change.
type Runtime interface {
	Client() *upstream.Client
	RefreshActiveServer(ctx context.Context) error
	SyncLibrary(ctx context.Context) error
}

// Deps collects everything the API needs. All fields are required unless
// noted.
type Deps struct {
	Store        *store.Store
	Index        *library.Index
	Gate         *auth.Gate
	Encryptor    *crypto.Encryptor
	Runtime      Runtime
	Materializer *materializer.Materializer
	Scheduler    *scheduler.Scheduler
	Tuner        *tuner.Tuner
	Proxy        *stream.Proxy
	Sessions     *sessions.Registry
	IPTV         *iptv.Emitter
	Cache        *cache.Cache // may be nil
	Bus          *events.Bus
	Aligner      clock.Aligner
	AllowPrivate bool
	BaseURL      string // public base URL override; empty derives from the request
	Logger       zerolog.Logger
}

// API is the HTTP handler set.
type API struct {
	store        *store.Store
	index        *library.Index
	gate         *auth.Gate
	encryptor    *crypto.Encryptor
	runtime      Runtime
	materializer *materializer.Materializer
	scheduler    *scheduler.Scheduler
	tuner        *tuner.Tuner
	proxy        *stream.Proxy
	sessions     *sessions.Registry
	iptv         *iptv.Emitter
	cache        *cache.Cache
	bus          *events.Bus
	aligner      clock.Aligner
	allowPrivate bool
	baseURL      string
	logger       zerolog.Logger
}

// New creates the API handler set.
func New(deps Deps) *API {
	return &API{
		store:        deps.Store,
		index:        deps.Index,
		gate:         deps.Gate,
		encryptor:    deps.Encryptor,
		runtime:      deps.Runtime,
		materializer: deps.Materializer,
		scheduler:    deps.Scheduler,
		tuner:        deps.Tuner,
		proxy:        deps.Proxy,
		sessions:     deps.Sessions,
		iptv:         deps.IPTV,
		cache:        deps.Cache,
		bus:          deps.Bus,
		aligner:      deps.Aligner,
		allowPrivate: deps.AllowPrivate,
		baseURL:      deps.BaseURL,
		logger:       deps.Logger.With().Str("component", "api").Logger(),
	}
}

// Routes mounts all API routes on the router. Health and auth status stay
// outside the gate so probes and the UI login screen work without a key.
func (a *API) Routes(r chi.Router) {
	r.Get("/api/health", a.handleHealth)
	r.Get("/api/auth/status", a.handleAuthStatus)

	r.Group(func(pr chi.Router) {
		pr.Use(a.gate.Middleware)

		pr.Route("/api/servers", func(r chi.Router) {
			r.Get("/", a.handleServersList)
			r.Post("/", a.handleServersCreate)
			r.Route("/{serverID}", func(r chi.Router) {
				r.Get("/", a.handleServersGet)
				r.Put("/", a.handleServersUpdate)
				r.Delete("/", a.handleServersDelete)
				r.Post("/test", a.handleServersTest)
				r.Post("/reauthenticate", a.handleServersReauthenticate)
				r.Post("/activate", a.handleServersActivate)
			})
		})

		pr.Route("/api/channels", func(r chi.Router) {
			r.Get("/", a.handleChannelsList)
			r.Post("/", a.handleChannelsCreate)
			r.Post("/regenerate", a.handleChannelsRegenerate)
			r.Route("/{channelID}", func(r chi.Router) {
				r.Get("/", a.handleChannelsGet)
				r.Put("/", a.handleChannelsUpdate)
				r.Delete("/", a.handleChannelsDelete)
			})
		})

		pr.Route("/api/schedule", func(r chi.Router) {
			r.Get("/", a.handleScheduleAll)
			r.Post("/regenerate", a.handleScheduleRegenerate)
			r.Get("/{channelID}", a.handleScheduleChannel)
			r.Get("/{channelID}/now", a.handleScheduleNow)
		})

		pr.Get("/api/playback/{channelID}", a.handlePlayback)

		pr.Route("/api/stream", func(r chi.Router) {
			r.Post("/stop", a.handleStreamStop)
			r.Post("/progress", a.handleStreamProgress)
			r.Get("/proxy/*", a.handleStreamProxy)
			r.Get("/{itemID}", a.handleStreamMaster)
		})

		pr.Route("/api/settings", func(r chi.Router) {
			r.Get("/", a.handleSettingsGet)
			r.Put("/", a.handleSettingsPut)
			r.Post("/factory-reset", a.handleFactoryReset)
		})

		pr.Route("/api/iptv", func(r chi.Router) {
			r.Get("/playlist.m3u", a.handleIPTVPlaylist)
			r.Get("/epg.xml", a.handleIPTVEPG)
			r.Get("/channel/{number}", a.handleIPTVChannel)
		})

		pr.Get("/api/stats", a.handleStats)
		pr.Get("/ws", a.handleWebSocket)
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"library_items": a.index.Size(),
	})
}

func (a *API) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"auth_required": a.gate.Enabled(),
	})
}

// writeJSON serializes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError emits {"error": code, "message": msg}. Codes are stable
// snake_case strings the UI switches on.
func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"error": code, "message": msg})
}

// writeStoreError maps store errors onto HTTP statuses.
func (a *API) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "resource not found")
		return
	}
	a.logger.Error().Err(err).Msg("store error")
	writeError(w, http.StatusInternalServerError, "internal_error", "database operation failed")
}

// writeUpstreamError maps Upstream client failures onto HTTP statuses.
func (a *API) writeUpstreamError(w http.ResponseWriter, err error) {
	var statusErr *upstream.StatusError
	switch {
	case errors.Is(err, upstream.ErrAuthExpired):
		writeError(w, http.StatusUnauthorized, "upstream_auth_expired", "upstream authentication expired, re-authenticate the server")
	case errors.As(err, &statusErr):
		writeError(w, http.StatusBadGateway, "upstream_error", err.Error())
	default:
		writeError(w, http.StatusBadGateway, "upstream_unreachable", err.Error())
	}
}

func decodeBody(r *http.Request, out any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}
