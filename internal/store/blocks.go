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

// UpsertScheduleBlock inserts or replaces the block keyed by
// (channel_id, block_start). Calling it twice with the same arguments leaves
// one row carrying the later created_at.
func (s *Store) UpsertScheduleBlock(ctx context.Context, block *models.ScheduleBlock) error {
	return s.write(func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var existing models.ScheduleBlock
			err := tx.First(&existing, "channel_id = ? AND block_start = ?",
				block.ChannelID, block.BlockStart).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				if block.ID == "" {
					block.ID = uuid.NewString()
				}
				block.CreatedAt = nowUTC()
				return tx.Create(block).Error
			case err != nil:
				return err
			default:
				block.ID = existing.ID
				block.CreatedAt = nowUTC()
				return tx.Model(&models.ScheduleBlock{}).Where("id = ?", existing.ID).
					Updates(map[string]any{
						"block_end":  block.BlockEnd,
						"seed":       block.Seed,
						"programs":   block.Programs,
						"created_at": block.CreatedAt,
					}).Error
			}
		})
	})
}

// GetScheduleBlock returns the block starting exactly at blockStart.
func (s *Store) GetScheduleBlock(ctx context.Context, channelID string, blockStart time.Time) (*models.ScheduleBlock, error) {
	var block models.ScheduleBlock
	err := s.db.WithContext(ctx).
		First(&block, "channel_id = ? AND block_start = ?", channelID, blockStart).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &block, nil
}

// GetScheduleBlocksInRange returns blocks for one channel overlapping
// [from, to), ordered by start.
func (s *Store) GetScheduleBlocksInRange(ctx context.Context, channelID string, from, to time.Time) ([]models.ScheduleBlock, error) {
	var blocks []models.ScheduleBlock
	err := s.db.WithContext(ctx).
		Where("channel_id = ? AND block_end > ? AND block_start < ?", channelID, from, to).
		Order("block_start ASC").
		Find(&blocks).Error
	return blocks, err
}

// GetAllBlocksInRange returns every channel's blocks overlapping [from, to).
// The schedule extension pass uses this to preload the cross-channel tracker.
func (s *Store) GetAllBlocksInRange(ctx context.Context, from, to time.Time) ([]models.ScheduleBlock, error) {
	var blocks []models.ScheduleBlock
	err := s.db.WithContext(ctx).
		Where("block_end > ? AND block_start < ?", from, to).
		Order("channel_id ASC, block_start ASC").
		Find(&blocks).Error
	return blocks, err
}

// ItemsScheduledBetween returns the set of item ids aired on the channel with
// a start time inside [from, to). This backs the scheduler's cooldown window.
func (s *Store) ItemsScheduledBetween(ctx context.Context, channelID string, from, to time.Time) (map[string]struct{}, error) {
	blocks, err := s.GetScheduleBlocksInRange(ctx, channelID, from, to)
	if err != nil {
		return nil, err
	}
	items := make(map[string]struct{})
	for _, block := range blocks {
		for _, program := range block.Programs {
			if program.IsInterstitial() || program.ItemID == "" {
				continue
			}
			if !program.StartTime.Before(from) && program.StartTime.Before(to) {
				items[program.ItemID] = struct{}{}
			}
		}
	}
	return items, nil
}

// CleanOldScheduleBlocks deletes blocks that ended before the cutoff.
func (s *Store) CleanOldScheduleBlocks(ctx context.Context, cutoff time.Time) (int64, error) {
	var affected int64
	err := s.write(func() error {
		result := s.db.WithContext(ctx).
			Where("block_end < ?", cutoff).
			Delete(&models.ScheduleBlock{})
		affected = result.RowsAffected
		return result.Error
	})
	return affected, err
}

// DeleteAllScheduleBlocks wipes every block. Regeneration starts from here.
func (s *Store) DeleteAllScheduleBlocks(ctx context.Context) error {
	return s.write(func() error {
		return s.db.WithContext(ctx).Where("1 = 1").Delete(&models.ScheduleBlock{}).Error
	})
}
