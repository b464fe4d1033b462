package sql

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"melodyverse/internal/entity"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrSettingNotFound 表示配置键不存在。
var ErrSettingNotFound = errors.New("setting not found")

// GetSetting 读取单个配置项。
func (r *GormRepository) GetSetting(ctx context.Context, key string) (string, error) {
	if r == nil || r.db == nil {
		return "", fmt.Errorf("repository not initialised")
	}
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return "", fmt.Errorf("setting key is empty")
	}
	var setting entity.DbSetting
	if err := r.db.WithContext(ctx).Where("key = ?", trimmed).First(&setting).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrSettingNotFound
		}
		return "", err
	}
	return setting.Value, nil
}

// SetSetting 写入或更新配置项。
func (r *GormRepository) SetSetting(ctx context.Context, key, value string) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return fmt.Errorf("setting key is empty")
	}
	setting := entity.DbSetting{Key: trimmed, Value: value}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&setting).Error
}

// ListSettings 返回全部配置项。
func (r *GormRepository) ListSettings(ctx context.Context) ([]entity.DbSetting, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	var settings []entity.DbSetting
	err := r.db.WithContext(ctx).Order("key ASC").Find(&settings).Error
	return settings, err
}
