/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/friendsincode/prevue/internal/models"
)

// CreateWatchSession records the start of a viewing.
func (s *Store) CreateWatchSession(ctx context.Context, session *models.WatchSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = nowUTC()
	}
	session.LastSeenAt = session.StartedAt
	return s.write(func() error {
		return s.db.WithContext(ctx).Create(session).Error
	})
}

// TouchWatchSession advances a session's last-seen time and watched duration,
// and appends the progress event.
func (s *Store) TouchWatchSession(ctx context.Context, sessionID string, kind models.WatchEventKind, positionMs int64) error {
	return s.write(func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var session models.WatchSession
			if err := tx.First(&session, "id = ?", sessionID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrNotFound
				}
				return err
			}
			now := nowUTC()
			watched := session.WatchedMs
			if delta := now.Sub(session.LastSeenAt); delta > 0 && delta < 10*time.Minute {
				watched += delta.Milliseconds()
			}
			if err := tx.Model(&models.WatchSession{}).Where("id = ?", sessionID).
				Updates(map[string]any{"last_seen_at": now, "watched_ms": watched}).Error; err != nil {
				return err
			}
			return tx.Create(&models.WatchEvent{
				ID:         uuid.NewString(),
				SessionID:  sessionID,
				Kind:       kind,
				PositionMs: positionMs,
				CreatedAt:  now,
			}).Error
		})
	})
}

// LatestWatchSessionForItem returns the most recent session for an item, used
// to attach progress reports that arrive without a session id.
func (s *Store) LatestWatchSessionForItem(ctx context.Context, itemID string) (*models.WatchSession, error) {
	var session models.WatchSession
	err := s.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order("started_at DESC").
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// ChannelWatchTotal is one row of the top-channels aggregate.
type ChannelWatchTotal struct {
	ChannelID   string `json:"channel_id"`
	ChannelName string `json:"channel_name"`
	WatchedMs   int64  `json:"watched_ms"`
	Sessions    int    `json:"sessions"`
}

// ItemWatchTotal is one row of the top-items aggregate.
type ItemWatchTotal struct {
	ItemID    string `json:"item_id"`
	Title     string `json:"title"`
	WatchedMs int64  `json:"watched_ms"`
	Sessions  int    `json:"sessions"`
}

// DayWatchTotal is one row of the per-day aggregate.
type DayWatchTotal struct {
	Day       string `json:"day"`
	WatchedMs int64  `json:"watched_ms"`
}

// TopChannels aggregates watch time per channel since the given instant.
func (s *Store) TopChannels(ctx context.Context, since time.Time, limit int) ([]ChannelWatchTotal, error) {
	var rows []ChannelWatchTotal
	err := s.db.WithContext(ctx).Model(&models.WatchSession{}).
		Select("channel_id, channel_name, SUM(watched_ms) AS watched_ms, COUNT(*) AS sessions").
		Where("started_at >= ?", since).
		Group("channel_id, channel_name").
		Order("watched_ms DESC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

// TopItems aggregates watch time per item since the given instant.
func (s *Store) TopItems(ctx context.Context, since time.Time, limit int) ([]ItemWatchTotal, error) {
	var rows []ItemWatchTotal
	err := s.db.WithContext(ctx).Model(&models.WatchSession{}).
		Select("item_id, title, SUM(watched_ms) AS watched_ms, COUNT(*) AS sessions").
		Where("started_at >= ?", since).
		Group("item_id, title").
		Order("watched_ms DESC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

// WatchTimeByDay aggregates watch time per calendar day since the given
// instant. DATE() works across the supported dialects.
func (s *Store) WatchTimeByDay(ctx context.Context, since time.Time) ([]DayWatchTotal, error) {
	var rows []DayWatchTotal
	err := s.db.WithContext(ctx).Model(&models.WatchSession{}).
		Select("DATE(started_at) AS day, SUM(watched_ms) AS watched_ms").
		Where("started_at >= ?", since).
		Group("DATE(started_at)").
		Order("day ASC").
		Scan(&rows).Error
	return rows, err
}
