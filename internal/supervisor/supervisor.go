/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package supervisor owns the background lifecycle: the active Upstream
// client, library syncs, channel materialization on first run, schedule
// maintenance, and idle-session reaping. The API calls into it when the
// active server changes; everything else runs on timers.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/prevue/internal/config"
	"github.com/friendsincode/prevue/internal/crypto"
	"github.com/friendsincode/prevue/internal/events"
	"github.com/friendsincode/prevue/internal/library"
	"github.com/friendsincode/prevue/internal/materializer"
	"github.com/friendsincode/prevue/internal/models"
	"github.com/friendsincode/prevue/internal/scheduler"
	"github.com/friendsincode/prevue/internal/sessions"
	"github.com/friendsincode/prevue/internal/store"
	"github.com/friendsincode/prevue/internal/telemetry"
	"github.com/friendsincode/prevue/internal/upstream"
)

const (
	maintainInterval  = 15 * time.Minute
	extendInterval    = 4 * time.Hour
	syncCheckInterval = time.Hour

	defaultSyncIntervalHours = 12
)

// Supervisor wires the long-running services together.
type Supervisor struct {
	cfg          *config.Config
	store        *store.Store
	index        *library.Index
	encryptor    *crypto.Encryptor
	scheduler    *scheduler.Scheduler
	materializer *materializer.Materializer
	sessions     *sessions.Registry
	bus          *events.Bus
	logger       zerolog.Logger

	mu         sync.RWMutex
	client     *upstream.Client
	lastSyncAt time.Time
}

// New constructs a supervisor.
func New(cfg *config.Config, st *store.Store, idx *library.Index, enc *crypto.Encryptor,
	sched *scheduler.Scheduler, mat *materializer.Materializer, reg *sessions.Registry,
	bus *events.Bus, logger zerolog.Logger) *Supervisor {
	return &Supervisor{
		cfg:          cfg,
		store:        st,
		index:        idx,
		encryptor:    enc,
		scheduler:    sched,
		materializer: mat,
		sessions:     reg,
		bus:          bus,
		logger:       logger.With().Str("component", "supervisor").Logger(),
	}
}

// Client returns the current Upstream client, or nil when no server is
// active.
func (s *Supervisor) Client() *upstream.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}

// RefreshActiveServer rebuilds the Upstream client from the active server row.
// No active server is not an error; the client simply becomes nil.
func (s *Supervisor) RefreshActiveServer(ctx context.Context) error {
	server, err := s.store.GetActiveServer(ctx)
	if errors.Is(err, store.ErrNotFound) {
		s.setClient(nil)
		s.logger.Info().Msg("no active server configured")
		return nil
	}
	if err != nil {
		return err
	}

	token, err := s.encryptor.Decrypt(server.AccessToken)
	if err != nil {
		s.setClient(nil)
		return fmt.Errorf("supervisor: decrypt access token: %w", err)
	}
	client, err := upstream.New(upstream.Options{
		BaseURL:          server.URL,
		AccessToken:      token,
		UserID:           server.UserID,
		AllowPrivateURLs: s.cfg.AllowPrivateURLs,
		Logger:           s.logger,
	})
	if err != nil {
		s.setClient(nil)
		return fmt.Errorf("supervisor: build client: %w", err)
	}
	s.setClient(client)
	s.logger.Info().Str("server", server.Name).Str("url", server.URL).Msg("active server client ready")
	return nil
}

func (s *Supervisor) setClient(client *upstream.Client) {
	s.mu.Lock()
	s.client = client
	s.mu.Unlock()
}

// SyncLibrary pulls the full library from Upstream, swaps the in-memory
// index, and snapshots it to the database cache.
func (s *Supervisor) SyncLibrary(ctx context.Context) error {
	client := s.Client()
	if client == nil {
		return errors.New("supervisor: no active server to sync from")
	}
	server, err := s.store.GetActiveServer(ctx)
	if err != nil {
		return err
	}

	started := time.Now()
	items, err := client.SyncLibrary(ctx, func(p upstream.SyncProgress) {
		s.bus.Publish(events.EventGenerationProgress, events.Payload{
			"step":    "library_sync",
			"message": fmt.Sprintf("fetched %d of %d items", p.Fetched, p.Total),
			"current": p.Fetched,
			"total":   p.Total,
		})
	})
	if err != nil {
		return fmt.Errorf("supervisor: library sync: %w", err)
	}
	telemetry.LibrarySyncDuration.Observe(time.Since(started).Seconds())
	telemetry.LibraryItemsTotal.Set(float64(len(items)))

	s.index.Replace(items)
	if err := s.store.ReplaceLibraryCache(ctx, server.ID, items); err != nil {
		// The in-memory index is already live; a stale cache only affects
		// the next cold boot.
		s.logger.Warn().Err(err).Msg("library cache snapshot failed")
	}

	s.mu.Lock()
	s.lastSyncAt = time.Now()
	s.mu.Unlock()

	s.bus.Publish(events.EventLibrarySynced, events.Payload{"items": len(items)})
	s.logger.Info().Int("items", len(items)).Dur("took", time.Since(started)).Msg("library synced")
	return nil
}

// rehydrate loads the last library snapshot from the database. Used when
// Upstream is unreachable at boot so schedules keep working offline.
func (s *Supervisor) rehydrate(ctx context.Context) {
	server, err := s.store.GetActiveServer(ctx)
	if err != nil {
		return
	}
	items, err := s.store.LoadLibraryCache(ctx, server.ID)
	if err != nil || len(items) == 0 {
		return
	}
	s.index.Replace(items)
	telemetry.LibraryItemsTotal.Set(float64(len(items)))
	s.logger.Info().Int("items", len(items)).Msg("library index rehydrated from cache")
}

// Start runs the boot sequence, then the maintenance loops until ctx ends.
func (s *Supervisor) Start(ctx context.Context) {
	s.boot(ctx)

	go s.sessions.RunReaper(ctx, func() sessions.Stopper {
		if client := s.Client(); client != nil {
			return client
		}
		return nil
	})
	go s.maintainLoop(ctx)
	go s.extendLoop(ctx)
	go s.syncLoop(ctx)
}

func (s *Supervisor) boot(ctx context.Context) {
	if err := s.RefreshActiveServer(ctx); err != nil {
		s.logger.Error().Err(err).Msg("active server setup failed")
	}

	if client := s.Client(); client != nil {
		if err := client.TestConnection(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("upstream unreachable at boot, using cached library")
			s.rehydrate(ctx)
		} else if err := s.SyncLibrary(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("boot library sync failed, using cached library")
			s.rehydrate(ctx)
		}
	} else {
		s.rehydrate(ctx)
	}

	if s.index.Size() > 0 {
		channels, err := s.store.ListChannels(ctx)
		if err != nil {
			s.logger.Error().Err(err).Msg("channel lookup failed at boot")
		} else if len(channels) == 0 {
			s.logger.Info().Msg("no channels yet, materializing defaults")
			if err := s.materializer.Regenerate(ctx); err != nil {
				s.logger.Error().Err(err).Msg("default channel materialization failed")
			}
		}
	}

	if err := s.scheduler.ExtendSchedules(ctx); err != nil {
		s.logger.Error().Err(err).Msg("boot schedule extension failed")
	}
}

func (s *Supervisor) maintainLoop(ctx context.Context) {
	ticker := time.NewTicker(maintainInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.scheduler.MaintainSchedules(ctx); err != nil {
				s.logger.Error().Err(err).Msg("schedule maintenance failed")
			}
		}
	}
}

func (s *Supervisor) extendLoop(ctx context.Context) {
	ticker := time.NewTicker(extendInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.scheduler.ExtendSchedules(ctx); err != nil {
				s.logger.Error().Err(err).Msg("schedule extension failed")
			}
		}
	}
}

// syncLoop re-syncs the library when sync_interval_hours has elapsed. The
// setting is re-read every check so changes apply without a restart.
func (s *Supervisor) syncLoop(ctx context.Context) {
	ticker := time.NewTicker(syncCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.syncDue(ctx) {
				continue
			}
			if err := s.SyncLibrary(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("periodic library sync failed")
			}
		}
	}
}

func (s *Supervisor) syncDue(ctx context.Context) bool {
	if s.Client() == nil {
		return false
	}
	interval := defaultSyncIntervalHours
	var configured int
	if err := s.store.GetSettingInto(ctx, models.SettingSyncIntervalHours, &configured); err == nil {
		interval = configured
	}
	if interval <= 0 {
		return false
	}
	s.mu.RLock()
	last := s.lastSyncAt
	s.mu.RUnlock()
	return time.Since(last) >= time.Duration(interval)*time.Hour
}
