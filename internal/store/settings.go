/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package store

import (
	"context"
	"encoding/json"
	"errors"

	"gorm.io/gorm"

	"github.com/friendsincode/prevue/internal/models"
)

// GetSetting returns the raw JSON value for a key, or ErrNotFound.
func (s *Store) GetSetting(ctx context.Context, key string) (json.RawMessage, error) {
	var setting models.Setting
	err := s.db.WithContext(ctx).First(&setting, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(setting.Value), nil
}

// GetSettingInto unmarshals the setting value into out. A missing key leaves
// out untouched and returns ErrNotFound.
func (s *Store) GetSettingInto(ctx context.Context, key string, out any) error {
	raw, err := s.GetSetting(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// SetSetting stores a JSON-serializable value under key.
func (s *Store) SetSetting(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.write(func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var existing models.Setting
			err := tx.First(&existing, "key = ?", key).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				return tx.Create(&models.Setting{Key: key, Value: string(data), UpdatedAt: nowUTC()}).Error
			case err != nil:
				return err
			default:
				return tx.Model(&models.Setting{}).Where("key = ?", key).
					Updates(map[string]any{"value": string(data), "updated_at": nowUTC()}).Error
			}
		})
	})
}

// AllSettings returns every persisted key with its raw JSON value.
func (s *Store) AllSettings(ctx context.Context) (map[string]json.RawMessage, error) {
	var settings []models.Setting
	if err := s.db.WithContext(ctx).Find(&settings).Error; err != nil {
		return nil, err
	}
	out := make(map[string]json.RawMessage, len(settings))
	for _, setting := range settings {
		out[setting.Key] = json.RawMessage(setting.Value)
	}
	return out, nil
}
