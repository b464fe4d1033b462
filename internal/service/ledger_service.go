package service

import (
	"context"
	"errors"
	"fmt"

	"melodyverse/internal/entity"
	"melodyverse/internal/entity/dto"
	"melodyverse/internal/model"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// LedgerService 积分账本服务。users.credits 是日常读写的物化余额，
// 流水累加值用于审计核对，两者在存储层的同一事务内维护。
type LedgerService struct {
	repo model.Repository
}

func NewLedgerService(repo model.Repository) *LedgerService {
	return &LedgerService{repo: repo}
}

// Balance 返回用户当前积分余额（物化列）。
func (s *LedgerService) Balance(ctx context.Context, userID uint) (int64, error) {
	if s == nil || s.repo == nil {
		return 0, fmt.Errorf("ledger service not initialised")
	}
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return user.Credits, nil
}

// DerivedBalance 从流水汇总余额，用于审计核对，应与物化余额一致。
func (s *LedgerService) DerivedBalance(ctx context.Context, userID uint) (int64, error) {
	if s == nil || s.repo == nil {
		return 0, fmt.Errorf("ledger service not initialised")
	}
	return s.repo.LedgerBalance(ctx, userID)
}

// History 返回用户的积分流水。
func (s *LedgerService) History(ctx context.Context, query *dto.LedgerQuery) ([]entity.DbLedgerEntry, *entity.Meta, error) {
	if s == nil || s.repo == nil {
		return nil, nil, fmt.Errorf("ledger service not initialised")
	}
	return s.repo.ListLedgerEntries(ctx, query)
}

// AdminAdjust 管理员手工调整积分。delta 可正可负，负向调整同样受
// 余额不足约束（不允许调成负余额）。
func (s *LedgerService) AdminAdjust(ctx context.Context, req dto.AdjustCreditsRequest) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("ledger service not initialised")
	}
	if req.Delta == 0 {
		return fmt.Errorf("%w: delta must not be zero", ErrInvalidInput)
	}

	if _, err := s.repo.GetUserByID(ctx, req.UserID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: user %d", ErrNotFound, req.UserID)
		}
		return err
	}

	var err error
	if req.Delta > 0 {
		err = s.repo.CreditCredits(ctx, req.UserID, req.Delta, entity.LedgerReasonAdminAdjustment, req.Note)
	} else {
		err = s.repo.DebitCredits(ctx, req.UserID, -req.Delta, entity.LedgerReasonAdminAdjustment, nil, req.Note)
	}
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"user_id": req.UserID,
		"delta":   req.Delta,
	}).Info("admin_credit_adjustment")
	return nil
}

// ApplyPurchase 对购买积分包的支付事件入账。
func (s *LedgerService) ApplyPurchase(ctx context.Context, userID uint, credits int64, reference string) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("ledger service not initialised")
	}
	if credits <= 0 {
		return fmt.Errorf("%w: credit amount must be positive", ErrInvalidInput)
	}
	return s.repo.CreditCredits(ctx, userID, credits, entity.LedgerReasonPurchaseCredit, reference)
}

// ApplySubscriptionGrant 对订阅套餐的月度积分额度入账。额度为零的套餐不产生流水。
func (s *LedgerService) ApplySubscriptionGrant(ctx context.Context, userID uint, credits int64, reference string) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("ledger service not initialised")
	}
	if credits <= 0 {
		return nil
	}
	return s.repo.CreditCredits(ctx, userID, credits, entity.LedgerReasonSubscriptionGrant, reference)
}
