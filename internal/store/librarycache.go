/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package store

import (
	"context"
	"encoding/json"

	"gorm.io/gorm"

	"github.com/friendsincode/prevue/internal/library"
	"github.com/friendsincode/prevue/internal/models"
)

// ReplaceLibraryCache swaps the persisted library snapshot for a server in
// one transaction. The cache exists so the index can rehydrate on boot
// without an Upstream round trip.
func (s *Store) ReplaceLibraryCache(ctx context.Context, serverID string, items []library.Item) error {
	return s.write(func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("server_id = ?", serverID).Delete(&models.LibraryCacheEntry{}).Error; err != nil {
				return err
			}
			now := nowUTC()
			// Insert in batches to keep statement sizes sane on large libraries.
			const batch = 500
			for start := 0; start < len(items); start += batch {
				end := start + batch
				if end > len(items) {
					end = len(items)
				}
				rows := make([]models.LibraryCacheEntry, 0, end-start)
				for _, item := range items[start:end] {
					payload, err := json.Marshal(item)
					if err != nil {
						return err
					}
					rows = append(rows, models.LibraryCacheEntry{
						ServerID:  serverID,
						ItemID:    item.ID,
						Kind:      item.Kind,
						Payload:   payload,
						UpdatedAt: now,
					})
				}
				if err := tx.Create(&rows).Error; err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// LoadLibraryCache reads the persisted snapshot back. Rows that fail to
// decode are skipped; a corrupt row should not block boot.
func (s *Store) LoadLibraryCache(ctx context.Context, serverID string) ([]library.Item, error) {
	var rows []models.LibraryCacheEntry
	if err := s.db.WithContext(ctx).Where("server_id = ?", serverID).Find(&rows).Error; err != nil {
		return nil, err
	}
	items := make([]library.Item, 0, len(rows))
	for _, row := range rows {
		var item library.Item
		if err := json.Unmarshal(row.Payload, &item); err != nil {
			s.logger.Warn().Str("item_id", row.ItemID).Err(err).Msg("skipping corrupt library cache row")
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// ClearLibraryCache drops the snapshot for a server.
func (s *Store) ClearLibraryCache(ctx context.Context, serverID string) error {
	return s.write(func() error {
		return s.db.WithContext(ctx).
			Where("server_id = ?", serverID).
			Delete(&models.LibraryCacheEntry{}).Error
	})
}
