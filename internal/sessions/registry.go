/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package sessions tracks live Upstream transcode sessions keyed by item so
// the proxy can re-use them and the reaper can stop the abandoned ones.
package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/prevue/internal/telemetry"
)

const (
	// ReapInterval is how often the reaper scans.
	ReapInterval = 2 * time.Minute

	// idleTimeout is how long without a proxy hit before a session counts as
	// abandoned. HLS clients poll every few seconds, so five minutes is
	// generous.
	idleTimeout = 5 * time.Minute
)

// Session is one live playback against Upstream.
type Session struct {
	ItemID         string
	PlaySessionID  string
	MediaSourceID  string
	StartedAt      time.Time
	LastActivityAt time.Time
}

// Stopper ends remote playback. The Upstream client implements it.
type Stopper interface {
	StopPlaybackSession(ctx context.Context, itemID, mediaSourceID, playSessionID string, positionMs int64) error
	DeleteTranscodingJob(ctx context.Context, playSessionID string) error
}

// Registry is the in-process session table. Entries are weak: losing one only
// costs a renegotiation with Upstream.
type Registry struct {
	mu      sync.Mutex
	byItem  map[string]*Session
	logger  zerolog.Logger
	nowFunc func() time.Time
}

// NewRegistry constructs an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		byItem:  map[string]*Session{},
		logger:  logger.With().Str("component", "sessions").Logger(),
		nowFunc: func() time.Time { return time.Now().UTC() },
	}
}

// Track registers (or replaces) the session for an item.
func (r *Registry) Track(itemID, playSessionID, mediaSourceID string) *Session {
	now := r.nowFunc()
	session := &Session{
		ItemID:         itemID,
		PlaySessionID:  playSessionID,
		MediaSourceID:  mediaSourceID,
		StartedAt:      now,
		LastActivityAt: now,
	}
	r.mu.Lock()
	r.byItem[itemID] = session
	size := len(r.byItem)
	r.mu.Unlock()
	telemetry.ActiveTranscodeSessions.Set(float64(size))
	return session
}

// Get returns the session for an item.
func (r *Registry) Get(itemID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byItem[itemID]
	if !ok {
		return nil, false
	}
	copied := *s
	return &copied, true
}

// Touch marks the session as active now.
func (r *Registry) Touch(itemID string) {
	r.mu.Lock()
	if s, ok := r.byItem[itemID]; ok {
		s.LastActivityAt = r.nowFunc()
	}
	r.mu.Unlock()
}

// Drop removes the session for an item.
func (r *Registry) Drop(itemID string) {
	r.mu.Lock()
	delete(r.byItem, itemID)
	size := len(r.byItem)
	r.mu.Unlock()
	telemetry.ActiveTranscodeSessions.Set(float64(size))
}

// All returns a snapshot of every tracked session.
func (r *Registry) All() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Session, 0, len(r.byItem))
	for _, s := range r.byItem {
		out = append(out, *s)
	}
	return out
}

// Reap stops and drops sessions idle past the timeout. Cleanup against
// Upstream is best-effort; a failed stop still drops the local entry since
// Upstream garbage-collects its own idle transcodes eventually.
func (r *Registry) Reap(ctx context.Context, stopper Stopper) int {
	now := r.nowFunc()
	var idle []Session
	r.mu.Lock()
	for itemID, s := range r.byItem {
		if now.Sub(s.LastActivityAt) > idleTimeout {
			idle = append(idle, *s)
			delete(r.byItem, itemID)
		}
	}
	size := len(r.byItem)
	r.mu.Unlock()
	telemetry.ActiveTranscodeSessions.Set(float64(size))

	for _, s := range idle {
		if stopper != nil {
			if err := stopper.StopPlaybackSession(ctx, s.ItemID, s.MediaSourceID, s.PlaySessionID, 0); err != nil {
				r.logger.Debug().Err(err).Str("item_id", s.ItemID).Msg("stop playback during reap failed")
			}
			if err := stopper.DeleteTranscodingJob(ctx, s.PlaySessionID); err != nil {
				r.logger.Debug().Err(err).Str("item_id", s.ItemID).Msg("delete transcode during reap failed")
			}
		}
		telemetry.SessionsReapedTotal.Inc()
		r.logger.Info().Str("item_id", s.ItemID).
			Time("last_activity", s.LastActivityAt).
			Msg("idle transcode session reaped")
	}
	return len(idle)
}

// RunReaper reaps on a ticker until the context ends.
func (r *Registry) RunReaper(ctx context.Context, stopper func() Stopper) {
	ticker := time.NewTicker(ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Reap(ctx, stopper())
		}
	}
}
