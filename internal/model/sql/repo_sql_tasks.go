package sql

import (
	"context"
	"fmt"
	"strings"
	"time"

	"melodyverse/internal/entity"
	"melodyverse/internal/entity/dto"

	"gorm.io/gorm"
)

// CreateGenerationTaskCharged 在同一事务内扣减积分、追加流水并创建任务。
//
// 供应商已接受任务后才会走到这里；若此刻并发消费导致余额不足，
// 整个事务回滚，不产生任务也不产生流水。
func (r *GormRepository) CreateGenerationTaskCharged(ctx context.Context, task *entity.DbGenerationTask) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if task == nil {
		return fmt.Errorf("task is nil")
	}
	if task.CreditCost <= 0 {
		return fmt.Errorf("credit cost must be positive")
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := conditionalDebit(tx, task.UserID, task.CreditCost); err != nil {
			return err
		}
		if err := tx.Create(task).Error; err != nil {
			return err
		}
		entry := entity.DbLedgerEntry{
			UserID:        task.UserID,
			Delta:         -task.CreditCost,
			Reason:        entity.LedgerReasonGenerationCharge,
			RelatedTaskID: &task.ID,
		}
		return tx.Create(&entry).Error
	})
}

// GetGenerationTask retrieves a task by primary key.
func (r *GormRepository) GetGenerationTask(ctx context.Context, id uint) (*entity.DbGenerationTask, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	if id == 0 {
		return nil, fmt.Errorf("invalid task id")
	}
	var task entity.DbGenerationTask
	if err := r.db.WithContext(ctx).First(&task, id).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// GetGenerationTaskByExternalCode retrieves a task by the provider-assigned code.
func (r *GormRepository) GetGenerationTaskByExternalCode(ctx context.Context, code string) (*entity.DbGenerationTask, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var task entity.DbGenerationTask
	if err := r.db.WithContext(ctx).Where("external_task_code = ?", trimmed).First(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// FindGenerationTaskByExternalPrefix 按前缀模糊匹配任务。
// 上游重试时可能携带追加了后缀的任务code，这里做兜底匹配。
func (r *GormRepository) FindGenerationTaskByExternalPrefix(ctx context.Context, prefix string) (*entity.DbGenerationTask, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	trimmed := strings.TrimSpace(prefix)
	if len(trimmed) < 8 { // 过短的前缀会误匹配
		return nil, gorm.ErrRecordNotFound
	}
	var task entity.DbGenerationTask
	err := r.db.WithContext(ctx).
		Where("external_task_code LIKE ?", trimmed+"%").
		Order("created_at DESC").
		First(&task).Error
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// UpdateGenerationTask updates a task with the provided fields.
func (r *GormRepository) UpdateGenerationTask(ctx context.Context, id uint, updates entity.TaskUpdates) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if id == 0 {
		return fmt.Errorf("invalid task id")
	}
	fields := updates.ToMap()
	if len(fields) == 0 {
		return fmt.Errorf("no updates provided")
	}
	return r.db.WithContext(ctx).Model(&entity.DbGenerationTask{}).Where("id = ?", id).Updates(fields).Error
}

// TransitionGenerationTask 对未终态任务套用更新，返回是否有行被更新。
//
// WHERE 条件排除了 completed/failed，终态不会被迟到或重复的回调回退，
// 对同一终态负载的二次套用是无操作。
func (r *GormRepository) TransitionGenerationTask(ctx context.Context, id uint, updates entity.TaskUpdates) (bool, error) {
	if r == nil || r.db == nil {
		return false, fmt.Errorf("repository not initialised")
	}
	if id == 0 {
		return false, fmt.Errorf("invalid task id")
	}
	fields := updates.ToMap()
	if len(fields) == 0 {
		return false, fmt.Errorf("no updates provided")
	}
	result := r.db.WithContext(ctx).
		Model(&entity.DbGenerationTask{}).
		Where("id = ? AND status NOT IN ?", id, []string{entity.TaskStatusCompleted, entity.TaskStatusFailed}).
		Updates(fields)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListGenerationTasks retrieves paginated generation tasks.
func (r *GormRepository) ListGenerationTasks(ctx context.Context, params *dto.TaskQuery) ([]entity.DbGenerationTask, *entity.Meta, error) {
	if r == nil || r.db == nil {
		return nil, nil, fmt.Errorf("repository not initialised")
	}

	query := r.db.WithContext(ctx).Model(&entity.DbGenerationTask{})
	if params != nil {
		if !params.IncludeAll && params.UserID > 0 {
			query = query.Where("user_id = ?", params.UserID)
		}
		if trimmed := strings.TrimSpace(params.Status); trimmed != "" && trimmed != "all" {
			query = query.Where("status = ?", trimmed)
		}
	}

	var totalCount int64
	if err := query.Count(&totalCount).Error; err != nil {
		return nil, nil, err
	}

	page, pageSize := 1, 20
	if params != nil {
		page, pageSize = normalisePage(params.Page, params.PageSize)
	}

	var tasks []entity.DbGenerationTask
	if err := query.Order("created_at DESC, id DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&tasks).Error; err != nil {
		return nil, nil, err
	}

	meta := r.calculatePagination(totalCount, page, pageSize)
	return tasks, meta, nil
}

// ListStaleGenerationTasks 返回超过给定时间仍未到终态的任务。
func (r *GormRepository) ListStaleGenerationTasks(ctx context.Context, olderThan time.Time, limit int) ([]entity.DbGenerationTask, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	if limit <= 0 {
		limit = 50
	}
	var tasks []entity.DbGenerationTask
	err := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", []string{entity.TaskStatusPending, entity.TaskStatusProcessing}, olderThan).
		Order("updated_at ASC").
		Limit(limit).
		Find(&tasks).Error
	return tasks, err
}

// DeleteGenerationTask removes a task by ID.
func (r *GormRepository) DeleteGenerationTask(ctx context.Context, id uint) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if id == 0 {
		return fmt.Errorf("invalid task id")
	}
	result := r.db.WithContext(ctx).Delete(&entity.DbGenerationTask{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
