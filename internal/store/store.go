/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package store holds every persistent row: servers, channels, schedule
// blocks, settings, the library cache, and watch history. All writes funnel
// through one mutex; SQLite is a single-writer database and the serialization
// keeps multi-table transactions from contending.
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/prevue/internal/models"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("store: not found")

// Store wraps the database with typed operations.
type Store struct {
	db     *gorm.DB
	logger zerolog.Logger

	writeMu sync.Mutex
}

// New wraps an open gorm handle.
func New(db *gorm.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "store").Logger(),
	}
}

// DB exposes the underlying handle for read-only queries in tests.
func (s *Store) DB() *gorm.DB { return s.db }

// write runs fn under the writer lock.
func (s *Store) write(fn func() error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return fn()
}

// --- Servers ---

// ListServers returns all registered Upstream servers.
func (s *Store) ListServers(ctx context.Context) ([]models.Server, error) {
	var servers []models.Server
	err := s.db.WithContext(ctx).Order("created_at ASC").Find(&servers).Error
	return servers, err
}

// GetServer returns one server by id.
func (s *Store) GetServer(ctx context.Context, id string) (*models.Server, error) {
	var server models.Server
	err := s.db.WithContext(ctx).First(&server, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &server, nil
}

// GetActiveServer returns the active server, or ErrNotFound when none is set.
func (s *Store) GetActiveServer(ctx context.Context) (*models.Server, error) {
	var server models.Server
	err := s.db.WithContext(ctx).First(&server, "is_active = ?", true).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &server, nil
}

// CreateServer inserts a server. The first server registered becomes active.
func (s *Store) CreateServer(ctx context.Context, server *models.Server) error {
	if server.ID == "" {
		server.ID = uuid.NewString()
	}
	return s.write(func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var count int64
			if err := tx.Model(&models.Server{}).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				server.IsActive = true
			}
			return tx.Create(server).Error
		})
	})
}

// UpdateServer persists changed fields of a server row.
func (s *Store) UpdateServer(ctx context.Context, server *models.Server) error {
	return s.write(func() error {
		result := s.db.WithContext(ctx).Model(&models.Server{}).
			Where("id = ?", server.ID).
			Updates(map[string]any{
				"name":         server.Name,
				"url":          server.URL,
				"username":     server.Username,
				"access_token": server.AccessToken,
				"user_id":      server.UserID,
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

// ActivateServer makes the given server the single active one.
func (s *Store) ActivateServer(ctx context.Context, id string) error {
	return s.write(func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var server models.Server
			if err := tx.First(&server, "id = ?", id).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrNotFound
				}
				return err
			}
			if err := tx.Model(&models.Server{}).Where("is_active = ?", true).
				Update("is_active", false).Error; err != nil {
				return err
			}
			return tx.Model(&models.Server{}).Where("id = ?", id).
				Update("is_active", true).Error
		})
	})
}

// DeleteServer removes a server. Deleting the active server also removes all
// channels and schedule blocks, since they were built against its library.
// Everything happens in one transaction.
func (s *Store) DeleteServer(ctx context.Context, id string) error {
	return s.write(func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var server models.Server
			if err := tx.First(&server, "id = ?", id).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrNotFound
				}
				return err
			}
			if server.IsActive {
				if err := tx.Where("1 = 1").Delete(&models.ScheduleBlock{}).Error; err != nil {
					return err
				}
				if err := tx.Where("1 = 1").Delete(&models.Channel{}).Error; err != nil {
					return err
				}
			}
			if err := tx.Where("server_id = ?", id).Delete(&models.LibraryCacheEntry{}).Error; err != nil {
				return err
			}
			return tx.Delete(&models.Server{}, "id = ?", id).Error
		})
	})
}

// --- Factory reset ---

// FactoryReset wipes every table in one transaction.
func (s *Store) FactoryReset(ctx context.Context) error {
	s.logger.Warn().Msg("factory reset requested, wiping all data")
	return s.write(func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for _, model := range []any{
				&models.WatchEvent{},
				&models.WatchSession{},
				&models.ScheduleBlock{},
				&models.Channel{},
				&models.LibraryCacheEntry{},
				&models.Setting{},
				&models.Server{},
			} {
				if err := tx.Where("1 = 1").Delete(model).Error; err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// nowUTC is separated for test injection.
var nowUTC = func() time.Time { return time.Now().UTC() }
