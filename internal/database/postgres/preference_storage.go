package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Preference — одна настройка, соответствует таблице preferences в бд
type Preference struct {
	Key       string    `gorm:"column:key;primaryKey"`
	Value     string    `gorm:"column:value"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (Preference) TableName() string {
	return "preferences"
}

// GormPreferenceStorage реализует preferences.Store с использованием GORM
type GormPreferenceStorage struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewGormPreferenceStorage создает новый экземпляр GormPreferenceStorage
func NewGormPreferenceStorage(db *gorm.DB, logger *slog.Logger) *GormPreferenceStorage {
	return &GormPreferenceStorage{db: db, logger: logger}
}

// Get возвращает значение настройки по ключу
func (s *GormPreferenceStorage) Get(ctx context.Context, key string) (string, bool, error) {
	var pref Preference
	result := s.db.WithContext(ctx).Where("key = ?", key).Take(&pref)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("ошибка при чтении настройки %s с GORM: %w", key, result.Error)
	}
	return pref.Value, true, nil
}

// Set создает или обновляет настройку
func (s *GormPreferenceStorage) Set(ctx context.Context, key, value string) error {
	pref := Preference{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&pref)
	if result.Error != nil {
		return fmt.Errorf("ошибка при сохранении настройки %s с GORM: %w", key, result.Error)
	}
	s.logger.Debug("preference saved", "key", key)
	return nil
}
