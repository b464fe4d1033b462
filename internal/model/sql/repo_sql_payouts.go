package sql

import (
	"context"
	"fmt"
	"strings"

	"melodyverse/internal/entity"
	"melodyverse/internal/entity/dto"
)

// CreatePayoutRequest inserts a payout request.
func (r *GormRepository) CreatePayoutRequest(ctx context.Context, request *entity.DbPayoutRequest) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if request == nil {
		return fmt.Errorf("payout request is nil")
	}
	return r.db.WithContext(ctx).Create(request).Error
}

// GetPayoutRequest retrieves a payout request by primary key.
func (r *GormRepository) GetPayoutRequest(ctx context.Context, id uint) (*entity.DbPayoutRequest, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	if id == 0 {
		return nil, fmt.Errorf("invalid payout request id")
	}
	var request entity.DbPayoutRequest
	if err := r.db.WithContext(ctx).First(&request, id).Error; err != nil {
		return nil, err
	}
	return &request, nil
}

// SumReservedPayouts 统计仍占用可提现余额的申请金额（非 rejected）。
func (r *GormRepository) SumReservedPayouts(ctx context.Context, affiliateID uint) (float64, error) {
	if r == nil || r.db == nil {
		return 0, fmt.Errorf("repository not initialised")
	}
	var total float64
	err := r.db.WithContext(ctx).
		Model(&entity.DbPayoutRequest{}).
		Where("affiliate_id = ? AND status <> ?", affiliateID, entity.PayoutStatusRejected).
		Select("COALESCE(SUM(requested_amount), 0)").
		Scan(&total).Error
	return total, err
}

// ListPayoutRequests retrieves paginated payout requests.
func (r *GormRepository) ListPayoutRequests(ctx context.Context, params *dto.PayoutQuery) ([]entity.DbPayoutRequest, *entity.Meta, error) {
	if r == nil || r.db == nil {
		return nil, nil, fmt.Errorf("repository not initialised")
	}

	query := r.db.WithContext(ctx).Model(&entity.DbPayoutRequest{})
	if params != nil {
		if !params.IncludeAll && params.AffiliateID > 0 {
			query = query.Where("affiliate_id = ?", params.AffiliateID)
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

	var requests []entity.DbPayoutRequest
	if err := query.Order("created_at DESC, id DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&requests).Error; err != nil {
		return nil, nil, err
	}

	meta := r.calculatePagination(totalCount, page, pageSize)
	return requests, meta, nil
}

// TransitionPayoutRequest 仅当当前状态在 fromStatuses 内时套用更新，
// 返回是否有行被更新。状态机只前进，不回退。
func (r *GormRepository) TransitionPayoutRequest(ctx context.Context, id uint, fromStatuses []string, updates entity.PayoutUpdates) (bool, error) {
	if r == nil || r.db == nil {
		return false, fmt.Errorf("repository not initialised")
	}
	if id == 0 {
		return false, fmt.Errorf("invalid payout request id")
	}
	if len(fromStatuses) == 0 {
		return false, fmt.Errorf("no source statuses provided")
	}
	fields := updates.ToMap()
	if len(fields) == 0 {
		return false, fmt.Errorf("no updates provided")
	}
	result := r.db.WithContext(ctx).
		Model(&entity.DbPayoutRequest{}).
		Where("id = ? AND status IN ?", id, fromStatuses).
		Updates(fields)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
