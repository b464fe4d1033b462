package sql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"melodyverse/internal/entity"

	"gorm.io/gorm"
)

// InsertWebhookEvent 记录一次网关回调，(provider, provider_event_id) 唯一。
// 返回 false 表示该事件已存在，调用方应按无操作确认处理。
func (r *GormRepository) InsertWebhookEvent(ctx context.Context, event *entity.DbWebhookEvent) (bool, error) {
	if r == nil || r.db == nil {
		return false, fmt.Errorf("repository not initialised")
	}
	if event == nil {
		return false, fmt.Errorf("event is nil")
	}
	if event.Provider == "" || event.ProviderEventID == "" {
		return false, fmt.Errorf("provider and event id are required")
	}

	err := r.db.WithContext(ctx).Create(event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// DeleteWebhookEvent 删除事件占位行。事件套用失败时释放唯一键，
// 网关的下一次重试才能重新处理。
func (r *GormRepository) DeleteWebhookEvent(ctx context.Context, id uint) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if id == 0 {
		return fmt.Errorf("invalid event id")
	}
	return r.db.WithContext(ctx).Delete(&entity.DbWebhookEvent{}, id).Error
}

// MarkWebhookEventProcessed 标记事件处理结束，processingError 为空表示成功。
func (r *GormRepository) MarkWebhookEventProcessed(ctx context.Context, id uint, processingError string) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if id == 0 {
		return fmt.Errorf("invalid event id")
	}
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&entity.DbWebhookEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"processed_at":     now,
			"processing_error": processingError,
		}).Error
}
