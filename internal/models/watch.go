/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// WatchSession records one continuous viewing of a channel, updated by
// playback progress reports. Aggregations over these rows back /api/stats.
type WatchSession struct {
	ID          string    `gorm:"type:uuid;primaryKey" json:"id"`
	ChannelID   string    `gorm:"type:uuid;index" json:"channel_id"`
	ChannelName string    `json:"channel_name"`
	ItemID      string    `gorm:"index" json:"item_id"`
	Title       string    `json:"title"`
	ContentType string    `gorm:"type:varchar(16)" json:"content_type"`
	StartedAt   time.Time `gorm:"index" json:"started_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	WatchedMs   int64     `json:"watched_ms"`
}

// WatchEventKind enumerates playback lifecycle events.
type WatchEventKind string

const (
	WatchEventStart    WatchEventKind = "start"
	WatchEventProgress WatchEventKind = "progress"
	WatchEventStop     WatchEventKind = "stop"
)

// WatchEvent is a single playback lifecycle report tied to a watch session.
type WatchEvent struct {
	ID         string         `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID  string         `gorm:"type:uuid;index" json:"session_id"`
	Kind       WatchEventKind `gorm:"type:varchar(16)" json:"kind"`
	PositionMs int64          `json:"position_ms"`
	CreatedAt  time.Time      `gorm:"index" json:"created_at"`
}
