package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"melodyverse/internal/entity"
	"melodyverse/internal/entity/dto"
	"melodyverse/internal/model"
	"melodyverse/internal/settings"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AffiliateService 推广分成服务：佣金入账、可提余额、提现申请与审核。
type AffiliateService struct {
	repo     model.Repository
	settings *settings.Provider

	// 串行化提现申请的余额校验与落库，防止并发申请合计超出可提余额
	payoutMu sync.Mutex
}

func NewAffiliateService(repo model.Repository, settingsProvider *settings.Provider) *AffiliateService {
	return &AffiliateService{repo: repo, settings: settingsProvider}
}

// ResolveReferralCode 通过推荐码找到推荐人，码无效时返回 nil 而非报错，
// 注册流程不因无效推荐码中断。
func (s *AffiliateService) ResolveReferralCode(ctx context.Context, code string) (*entity.DbUser, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("affiliate service not initialised")
	}
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return nil, nil
	}
	affiliate, err := s.repo.GetUserByReferralCode(ctx, trimmed)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return affiliate, nil
}

// RecordFreeReferralActivation 给推荐人记一笔固定金额的激活佣金。
// 对 (推荐人, 被推荐人) 幂等：重复触发不会重复入账。
func (s *AffiliateService) RecordFreeReferralActivation(ctx context.Context, affiliateID, referredID uint) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("affiliate service not initialised")
	}
	if affiliateID == 0 || referredID == 0 || affiliateID == referredID {
		return fmt.Errorf("%w: invalid referral pair", ErrInvalidInput)
	}

	// 费率缺失时整个操作失败，绝不按零费率入账
	amount, err := s.settings.FreeReferralAmount(ctx)
	if err != nil {
		return err
	}

	exists, err := s.repo.HasFreeReferralCommission(ctx, affiliateID, referredID)
	if err != nil {
		return err
	}
	if exists {
		logrus.WithFields(logrus.Fields{
			"affiliate_id": affiliateID,
			"referred_id":  referredID,
		}).Info("duplicate free referral commission ignored")
		return nil
	}

	commission := &entity.DbCommission{
		AffiliateID:  affiliateID,
		ReferredID:   referredID,
		AmountEarned: amount,
		SourceEvent:  entity.CommissionSourceFreeReferral,
	}
	if err := s.repo.CreateCommission(ctx, commission); err != nil {
		// 并发触发时靠唯一索引兜底
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			logrus.WithFields(logrus.Fields{
				"affiliate_id": affiliateID,
				"referred_id":  referredID,
			}).Info("duplicate free referral commission ignored")
			return nil
		}
		return err
	}

	logrus.WithFields(logrus.Fields{
		"affiliate_id":  affiliateID,
		"referred_id":   referredID,
		"amount_earned": amount,
	}).Info("free_referral_commission_recorded")
	return nil
}

// RecordSubscriptionCommission 按配置比例给推荐人记一笔订阅分成。
// 以网关交易参考号幂等：同一笔订阅支付只入账一次。
func (s *AffiliateService) RecordSubscriptionCommission(ctx context.Context, referredID uint, subscriptionAmountUSD float64, sourceRef string) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("affiliate service not initialised")
	}
	if subscriptionAmountUSD <= 0 {
		return nil
	}

	referred, err := s.repo.GetUserByID(ctx, referredID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if referred.ReferredByID == nil || *referred.ReferredByID == 0 {
		return nil
	}
	affiliateID := *referred.ReferredByID

	percent, err := s.settings.SubscriptionCommissionPercent(ctx)
	if err != nil {
		return err
	}
	amount := subscriptionAmountUSD * percent / 100
	if amount <= 0 {
		return nil
	}

	commission := &entity.DbCommission{
		AffiliateID:  affiliateID,
		ReferredID:   referredID,
		AmountEarned: amount,
		SourceEvent:  entity.CommissionSourceSubscription,
		SourceRef:    strings.TrimSpace(sourceRef),
	}
	if err := s.repo.CreateCommission(ctx, commission); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			logrus.WithFields(logrus.Fields{
				"affiliate_id": affiliateID,
				"referred_id":  referredID,
				"source_ref":   sourceRef,
			}).Info("duplicate subscription commission ignored")
			return nil
		}
		return err
	}

	logrus.WithFields(logrus.Fields{
		"affiliate_id":  affiliateID,
		"referred_id":   referredID,
		"amount_earned": amount,
		"source_ref":    sourceRef,
	}).Info("subscription_commission_recorded")
	return nil
}

// AvailableBalance 可提现余额 = 累计佣金 − 所有未被拒绝的提现申请金额。
func (s *AffiliateService) AvailableBalance(ctx context.Context, affiliateID uint) (float64, error) {
	if s == nil || s.repo == nil {
		return 0, fmt.Errorf("affiliate service not initialised")
	}

	earned, err := s.repo.SumCommissions(ctx, affiliateID)
	if err != nil {
		return 0, err
	}
	reserved, err := s.repo.SumReservedPayouts(ctx, affiliateID)
	if err != nil {
		return 0, err
	}
	return earned - reserved, nil
}

// ReferralInfo 汇总推荐码、邀请人数、累计与可提佣金。
func (s *AffiliateService) ReferralInfo(ctx context.Context, userID uint) (*dto.ReferralInfoResponse, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("affiliate service not initialised")
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user %d", ErrNotFound, userID)
		}
		return nil, err
	}

	referredCount, err := s.repo.CountReferredUsers(ctx, userID)
	if err != nil {
		return nil, err
	}
	earned, err := s.repo.SumCommissions(ctx, userID)
	if err != nil {
		return nil, err
	}
	available, err := s.AvailableBalance(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &dto.ReferralInfoResponse{
		ReferralCode:     user.ReferralCode,
		ReferredCount:    referredCount,
		LifetimeEarned:   earned,
		AvailableBalance: available,
	}, nil
}

// RequestPayout 创建提现申请。不移动资金，结算由审核方线下完成。
func (s *AffiliateService) RequestPayout(ctx context.Context, affiliateID uint, req dto.PayoutRequestCreate) (*entity.DbPayoutRequest, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("affiliate service not initialised")
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}

	minimum, err := s.settings.PayoutMinimum(ctx)
	if err != nil {
		return nil, err
	}
	if req.Amount < minimum {
		return nil, fmt.Errorf("%w: minimum is %.2f", ErrBelowMinimumPayout, minimum)
	}

	feePercent, err := s.settings.PayoutFeePercent(ctx)
	if err != nil {
		return nil, err
	}

	s.payoutMu.Lock()
	defer s.payoutMu.Unlock()

	available, err := s.AvailableBalance(ctx, affiliateID)
	if err != nil {
		return nil, err
	}
	if req.Amount > available {
		return nil, fmt.Errorf("%w: available %.2f", ErrInsufficientPayoutBalance, available)
	}

	payout := &entity.DbPayoutRequest{
		AffiliateID:     affiliateID,
		RequestedAmount: req.Amount,
		Status:          entity.PayoutStatusPending,
		FeePercent:      feePercent,
	}
	if err := s.repo.CreatePayoutRequest(ctx, payout); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"payout_id":        payout.ID,
		"affiliate_id":     affiliateID,
		"requested_amount": req.Amount,
	}).Info("payout_requested")
	return payout, nil
}

// ReviewPayout 审核方推进提现状态。只允许向前流转：
// pending → approved/rejected，approved → paid。
func (s *AffiliateService) ReviewPayout(ctx context.Context, payoutID uint, decision, notes string) (*entity.DbPayoutRequest, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("affiliate service not initialised")
	}

	payout, err := s.repo.GetPayoutRequest(ctx, payoutID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: payout %d", ErrNotFound, payoutID)
		}
		return nil, err
	}

	var fromStatuses []string
	var target string
	switch decision {
	case dto.PayoutDecisionApprove:
		fromStatuses = []string{entity.PayoutStatusPending}
		target = entity.PayoutStatusApproved
	case dto.PayoutDecisionReject:
		fromStatuses = []string{entity.PayoutStatusPending}
		target = entity.PayoutStatusRejected
	case dto.PayoutDecisionMarkPaid:
		fromStatuses = []string{entity.PayoutStatusApproved}
		target = entity.PayoutStatusPaid
	default:
		return nil, fmt.Errorf("%w: unknown decision %q", ErrInvalidInput, decision)
	}

	now := time.Now().UTC()
	updates := entity.PayoutUpdates{
		Status:      &target,
		ProcessedAt: &now,
	}
	if trimmed := strings.TrimSpace(notes); trimmed != "" {
		updates.ReviewerNotes = &trimmed
	}

	applied, err := s.repo.TransitionPayoutRequest(ctx, payoutID, fromStatuses, updates)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, fmt.Errorf("%w: payout %d is %s", ErrInvalidTransition, payoutID, payout.Status)
	}

	logrus.WithFields(logrus.Fields{
		"payout_id": payoutID,
		"decision":  decision,
	}).Info("payout_reviewed")

	return s.repo.GetPayoutRequest(ctx, payoutID)
}

// ListCommissions 查询佣金明细。
func (s *AffiliateService) ListCommissions(ctx context.Context, query *dto.CommissionQuery) ([]entity.DbCommission, *entity.Meta, error) {
	if s == nil || s.repo == nil {
		return nil, nil, fmt.Errorf("affiliate service not initialised")
	}
	return s.repo.ListCommissions(ctx, query)
}

// ListPayouts 查询提现申请。
func (s *AffiliateService) ListPayouts(ctx context.Context, query *dto.PayoutQuery) ([]entity.DbPayoutRequest, *entity.Meta, error) {
	if s == nil || s.repo == nil {
		return nil, nil, fmt.Errorf("affiliate service not initialised")
	}
	return s.repo.ListPayoutRequests(ctx, query)
}
