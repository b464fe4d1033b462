package sql

import (
	"context"
	"fmt"

	"melodyverse/internal/entity"
	"melodyverse/internal/entity/dto"
)

// CreateCommission inserts a commission row.
// free_referral_activated 来源受 (affiliate, referred, source) 唯一索引保护，
// 并发重复插入会返回 gorm.ErrDuplicatedKey。
func (r *GormRepository) CreateCommission(ctx context.Context, commission *entity.DbCommission) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if commission == nil {
		return fmt.Errorf("commission is nil")
	}
	if commission.AmountEarned < 0 {
		return fmt.Errorf("commission amount must not be negative")
	}
	return r.db.WithContext(ctx).Create(commission).Error
}

// HasFreeReferralCommission reports whether the pair already earned the
// one-off referral commission.
func (r *GormRepository) HasFreeReferralCommission(ctx context.Context, affiliateID, referredID uint) (bool, error) {
	if r == nil || r.db == nil {
		return false, fmt.Errorf("repository not initialised")
	}
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.DbCommission{}).
		Where("affiliate_id = ? AND referred_id = ? AND source_event = ?",
			affiliateID, referredID, entity.CommissionSourceFreeReferral).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListCommissions retrieves paginated commissions for an affiliate.
func (r *GormRepository) ListCommissions(ctx context.Context, params *dto.CommissionQuery) ([]entity.DbCommission, *entity.Meta, error) {
	if r == nil || r.db == nil {
		return nil, nil, fmt.Errorf("repository not initialised")
	}

	query := r.db.WithContext(ctx).Model(&entity.DbCommission{})
	if params != nil && params.AffiliateID > 0 {
		query = query.Where("affiliate_id = ?", params.AffiliateID)
	}

	var totalCount int64
	if err := query.Count(&totalCount).Error; err != nil {
		return nil, nil, err
	}

	page, pageSize := 1, 20
	if params != nil {
		page, pageSize = normalisePage(params.Page, params.PageSize)
	}

	var commissions []entity.DbCommission
	if err := query.Order("created_at DESC, id DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&commissions).Error; err != nil {
		return nil, nil, err
	}

	meta := r.calculatePagination(totalCount, page, pageSize)
	return commissions, meta, nil
}

// SumCommissions 统计推广人的累计佣金。
func (r *GormRepository) SumCommissions(ctx context.Context, affiliateID uint) (float64, error) {
	if r == nil || r.db == nil {
		return 0, fmt.Errorf("repository not initialised")
	}
	var total float64
	err := r.db.WithContext(ctx).
		Model(&entity.DbCommission{}).
		Where("affiliate_id = ?", affiliateID).
		Select("COALESCE(SUM(amount_earned), 0)").
		Scan(&total).Error
	return total, err
}
