package sql

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"melodyverse/internal/entity"
	"melodyverse/internal/entity/dto"

	"gorm.io/gorm"
)

// ErrInsufficientCredits 表示条件扣减未命中任何行（余额不足）。
var ErrInsufficientCredits = errors.New("insufficient credits")

// DebitCredits 原子扣减积分并追加流水。
//
// 扣减通过单条条件更新完成（credits >= amount 才生效），避免
// 读取-校验-写入模式下两个并发请求同时通过校验导致的透支。
func (r *GormRepository) DebitCredits(ctx context.Context, userID uint, amount int64, reason string, relatedTaskID *uint, reference string) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if userID == 0 {
		return fmt.Errorf("invalid user id")
	}
	if amount <= 0 {
		return fmt.Errorf("debit amount must be positive")
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := conditionalDebit(tx, userID, amount); err != nil {
			return err
		}
		entry := entity.DbLedgerEntry{
			UserID:        userID,
			Delta:         -amount,
			Reason:        reason,
			RelatedTaskID: relatedTaskID,
			Reference:     reference,
		}
		return tx.Create(&entry).Error
	})
}

// CreditCredits 增加积分并追加流水。
func (r *GormRepository) CreditCredits(ctx context.Context, userID uint, amount int64, reason string, reference string) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if userID == 0 {
		return fmt.Errorf("invalid user id")
	}
	if amount <= 0 {
		return fmt.Errorf("credit amount must be positive")
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&entity.DbUser{}).
			Where("id = ?", userID).
			UpdateColumn("credits", gorm.Expr("credits + ?", amount))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		entry := entity.DbLedgerEntry{
			UserID:    userID,
			Delta:     amount,
			Reason:    reason,
			Reference: reference,
		}
		return tx.Create(&entry).Error
	})
}

// conditionalDebit 执行条件扣减，RowsAffected 为 0 视为余额不足。
func conditionalDebit(tx *gorm.DB, userID uint, amount int64) error {
	result := tx.Model(&entity.DbUser{}).
		Where("id = ? AND credits >= ?", userID, amount).
		UpdateColumn("credits", gorm.Expr("credits - ?", amount))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrInsufficientCredits
	}
	return nil
}

// LedgerBalance 从流水推导余额（审计用，物化余额应与之一致）。
func (r *GormRepository) LedgerBalance(ctx context.Context, userID uint) (int64, error) {
	if r == nil || r.db == nil {
		return 0, fmt.Errorf("repository not initialised")
	}
	var balance int64
	err := r.db.WithContext(ctx).
		Model(&entity.DbLedgerEntry{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(delta), 0)").
		Scan(&balance).Error
	return balance, err
}

// ListLedgerEntries retrieves paginated ledger entries for an account.
func (r *GormRepository) ListLedgerEntries(ctx context.Context, params *dto.LedgerQuery) ([]entity.DbLedgerEntry, *entity.Meta, error) {
	if r == nil || r.db == nil {
		return nil, nil, fmt.Errorf("repository not initialised")
	}

	query := r.db.WithContext(ctx).Model(&entity.DbLedgerEntry{})
	if params != nil {
		if params.UserID > 0 {
			query = query.Where("user_id = ?", params.UserID)
		}
		if trimmed := strings.TrimSpace(params.Reason); trimmed != "" {
			query = query.Where("reason = ?", trimmed)
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

	var entries []entity.DbLedgerEntry
	if err := query.Order("created_at DESC, id DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&entries).Error; err != nil {
		return nil, nil, err
	}

	meta := r.calculatePagination(totalCount, page, pageSize)
	return entries, meta, nil
}
