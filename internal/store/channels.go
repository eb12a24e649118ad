/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/friendsincode/prevue/internal/models"
)

// ListChannels returns all channels ordered by number.
func (s *Store) ListChannels(ctx context.Context) ([]models.Channel, error) {
	var channels []models.Channel
	err := s.db.WithContext(ctx).Order("number ASC").Find(&channels).Error
	return channels, err
}

// GetChannel returns one channel by id.
func (s *Store) GetChannel(ctx context.Context, id string) (*models.Channel, error) {
	var channel models.Channel
	err := s.db.WithContext(ctx).First(&channel, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &channel, nil
}

// GetChannelByNumber returns one channel by its tuner number.
func (s *Store) GetChannelByNumber(ctx context.Context, number int) (*models.Channel, error) {
	var channel models.Channel
	err := s.db.WithContext(ctx).First(&channel, "number = ?", number).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &channel, nil
}

// CreateChannel inserts a channel, allocating the next channel number inside
// the same transaction as the insert so concurrent creates cannot collide.
func (s *Store) CreateChannel(ctx context.Context, channel *models.Channel) error {
	if channel.ID == "" {
		channel.ID = uuid.NewString()
	}
	return s.write(func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if channel.Number == 0 {
				var maxNumber int
				row := tx.Model(&models.Channel{}).Select("COALESCE(MAX(number), 0)").Row()
				if err := row.Scan(&maxNumber); err != nil {
					return err
				}
				channel.Number = maxNumber + 1
			}
			return tx.Create(channel).Error
		})
	})
}

// CreateChannels inserts several channels in one transaction, numbering them
// sequentially from max+1 in slice order.
func (s *Store) CreateChannels(ctx context.Context, channels []*models.Channel) error {
	if len(channels) == 0 {
		return nil
	}
	return s.write(func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var maxNumber int
			row := tx.Model(&models.Channel{}).Select("COALESCE(MAX(number), 0)").Row()
			if err := row.Scan(&maxNumber); err != nil {
				return err
			}
			for _, channel := range channels {
				if channel.ID == "" {
					channel.ID = uuid.NewString()
				}
				if channel.Number == 0 {
					maxNumber++
					channel.Number = maxNumber
				}
				if err := tx.Create(channel).Error; err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// UpdateChannel persists user-editable channel fields.
func (s *Store) UpdateChannel(ctx context.Context, channel *models.Channel) error {
	return s.write(func() error {
		result := s.db.WithContext(ctx).Model(&models.Channel{}).
			Where("id = ?", channel.ID).
			Updates(map[string]any{
				"name":       channel.Name,
				"filter":     channel.Filter,
				"item_ids":   channel.ItemIDs,
				"sort_order": channel.SortOrder,
				"ai_prompt":  channel.AIPrompt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// DeleteChannel removes a channel and its schedule blocks.
func (s *Store) DeleteChannel(ctx context.Context, id string) error {
	return s.write(func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("channel_id = ?", id).Delete(&models.ScheduleBlock{}).Error; err != nil {
				return err
			}
			result := tx.Delete(&models.Channel{}, "id = ?", id)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return ErrNotFound
			}
			return nil
		})
	})
}

// DeleteChannelsByKind bulk-removes channels of the given kinds with their
// blocks. Regeneration uses this to clear auto and preset channels while
// custom ones survive.
func (s *Store) DeleteChannelsByKind(ctx context.Context, kinds ...models.ChannelKind) error {
	if len(kinds) == 0 {
		return nil
	}
	return s.write(func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var ids []string
			if err := tx.Model(&models.Channel{}).Where("kind IN ?", kinds).
				Pluck("id", &ids).Error; err != nil {
				return err
			}
			if len(ids) == 0 {
				return nil
			}
			if err := tx.Where("channel_id IN ?", ids).Delete(&models.ScheduleBlock{}).Error; err != nil {
				return err
			}
			return tx.Where("id IN ?", ids).Delete(&models.Channel{}).Error
		})
	})
}
