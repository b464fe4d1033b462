package service

import (
	"context"
	"errors"
	"math"
	"testing"

	"melodyverse/internal/entity"
	"melodyverse/internal/entity/dto"
	"melodyverse/internal/model"
)

func newAffiliateService(repo model.Repository) *AffiliateService {
	return NewAffiliateService(repo, newTestSettings(repo))
}

func linkReferral(t *testing.T, repo model.Repository, referredID, affiliateID uint) {
	t.Helper()
	if err := repo.UpdateUser(context.Background(), referredID, entity.UserUpdates{ReferredByID: &affiliateID}); err != nil {
		t.Fatalf("link referral: %v", err)
	}
}

func TestResolveReferralCode(t *testing.T) {
	repo := newTestRepo(t)
	svc := newAffiliateService(repo)
	affiliate := createTestUser(t, repo, "affiliate@example.com")
	ctx := context.Background()

	resolved, err := svc.ResolveReferralCode(ctx, affiliate.ReferralCode)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved == nil || resolved.ID != affiliate.ID {
		t.Fatalf("resolved = %+v, want affiliate %d", resolved, affiliate.ID)
	}

	// 无效码不报错,注册流程据此静默跳过
	for _, code := range []string{"", "   ", "no-such-code"} {
		resolved, err := svc.ResolveReferralCode(ctx, code)
		if err != nil {
			t.Fatalf("resolve %q: %v", code, err)
		}
		if resolved != nil {
			t.Fatalf("resolve %q = %+v, want nil", code, resolved)
		}
	}
}

func TestFreeReferralCommissionIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	svc := newAffiliateService(repo)
	affiliate := createTestUser(t, repo, "promoter@example.com")
	referred := createTestUser(t, repo, "newcomer@example.com")
	ctx := context.Background()

	if err := svc.RecordFreeReferralActivation(ctx, affiliate.ID, referred.ID); err != nil {
		t.Fatalf("first activation: %v", err)
	}
	// 重复触发不报错也不重复入账
	if err := svc.RecordFreeReferralActivation(ctx, affiliate.ID, referred.ID); err != nil {
		t.Fatalf("duplicate activation: %v", err)
	}

	total, err := repo.SumCommissions(ctx, affiliate.ID)
	if err != nil {
		t.Fatalf("sum commissions: %v", err)
	}
	if total != 0.10 {
		t.Errorf("total commissions = %v, want 0.10", total)
	}

	if err := svc.RecordFreeReferralActivation(ctx, affiliate.ID, affiliate.ID); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("self-referral should be rejected, got %v", err)
	}
}

func TestSubscriptionCommission(t *testing.T) {
	repo := newTestRepo(t)
	svc := newAffiliateService(repo)
	affiliate := createTestUser(t, repo, "earner@example.com")
	referred := createTestUser(t, repo, "subscriber@example.com")
	orphan := createTestUser(t, repo, "orphan@example.com")
	linkReferral(t, repo, referred.ID, affiliate.ID)
	ctx := context.Background()

	// 默认比例 10%,$20 订阅产生 $2 佣金
	if err := svc.RecordSubscriptionCommission(ctx, referred.ID, 20, "ref_sub_1"); err != nil {
		t.Fatalf("record commission: %v", err)
	}
	total, err := repo.SumCommissions(ctx, affiliate.ID)
	if err != nil {
		t.Fatalf("sum commissions: %v", err)
	}
	if total != 2 {
		t.Errorf("total = %v, want 2", total)
	}

	// 同一笔交易参考号重复投递只入账一次
	if err := svc.RecordSubscriptionCommission(ctx, referred.ID, 20, "ref_sub_1"); err != nil {
		t.Fatalf("duplicate commission: %v", err)
	}
	total, _ = repo.SumCommissions(ctx, affiliate.ID)
	if total != 2 {
		t.Errorf("total after replay = %v, want 2", total)
	}

	// 无推荐人的用户订阅不产生佣金
	if err := svc.RecordSubscriptionCommission(ctx, orphan.ID, 20, "ref_sub_2"); err != nil {
		t.Fatalf("orphan subscription: %v", err)
	}
	// 不存在的用户静默忽略
	if err := svc.RecordSubscriptionCommission(ctx, 9999, 20, "ref_sub_3"); err != nil {
		t.Fatalf("missing user: %v", err)
	}
}

// 两笔并发提现申请合计不得超过可提余额
func TestConcurrentPayoutRequestsCannotOverReserve(t *testing.T) {
	repo := newTestRepo(t)
	svc := newAffiliateService(repo)
	affiliate := createTestUser(t, repo, "racing@example.com")
	referred := createTestUser(t, repo, "referred-racing@example.com")
	linkReferral(t, repo, referred.ID, affiliate.ID)
	ctx := context.Background()

	// $151 订阅 × 10% = $15.10 佣金,只容得下一笔 $10 提现
	if err := svc.RecordSubscriptionCommission(ctx, referred.ID, 151, "ref_race_1"); err != nil {
		t.Fatalf("record commission: %v", err)
	}

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := svc.RequestPayout(ctx, affiliate.ID, dto.PayoutRequestCreate{Amount: 10})
			results <- err
		}()
	}

	var succeeded, rejected int
	for i := 0; i < 2; i++ {
		switch err := <-results; {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrInsufficientPayoutBalance):
			rejected++
		default:
			t.Fatalf("unexpected payout error: %v", err)
		}
	}
	if succeeded != 1 || rejected != 1 {
		t.Fatalf("succeeded = %d, rejected = %d, want exactly one of each", succeeded, rejected)
	}

	available, err := svc.AvailableBalance(ctx, affiliate.ID)
	if err != nil {
		t.Fatalf("available balance: %v", err)
	}
	if math.Abs(available-5.10) > 1e-9 {
		t.Errorf("available = %v, want 5.10 (one reservation only)", available)
	}
}

func TestAvailableBalanceSubtractsReservedPayouts(t *testing.T) {
	repo := newTestRepo(t)
	svc := newAffiliateService(repo)
	affiliate := createTestUser(t, repo, "balance@example.com")
	referred := createTestUser(t, repo, "referred-balance@example.com")
	linkReferral(t, repo, referred.ID, affiliate.ID)
	ctx := context.Background()

	// $151 订阅 × 10% = $15.10 佣金
	if err := svc.RecordSubscriptionCommission(ctx, referred.ID, 151, "ref_bal_1"); err != nil {
		t.Fatalf("record commission: %v", err)
	}

	payout, err := svc.RequestPayout(ctx, affiliate.ID, dto.PayoutRequestCreate{Amount: 10})
	if err != nil {
		t.Fatalf("request payout: %v", err)
	}
	if payout.Status != entity.PayoutStatusPending {
		t.Errorf("payout status = %q, want pending", payout.Status)
	}
	if payout.FeePercent != 5 {
		t.Errorf("fee percent = %v, want 5 (snapshot of current setting)", payout.FeePercent)
	}

	available, err := svc.AvailableBalance(ctx, affiliate.ID)
	if err != nil {
		t.Fatalf("available balance: %v", err)
	}
	if math.Abs(available-5.10) > 1e-9 {
		t.Errorf("available = %v, want 5.10", available)
	}

	// 可提余额不足
	if _, err := svc.RequestPayout(ctx, affiliate.ID, dto.PayoutRequestCreate{Amount: 15}); !errors.Is(err, ErrInsufficientPayoutBalance) {
		t.Fatalf("expected ErrInsufficientPayoutBalance, got %v", err)
	}
	// 低于最低提现额
	if _, err := svc.RequestPayout(ctx, affiliate.ID, dto.PayoutRequestCreate{Amount: 5}); !errors.Is(err, ErrBelowMinimumPayout) {
		t.Fatalf("expected ErrBelowMinimumPayout, got %v", err)
	}

	// 被拒绝的申请释放占用的余额
	if _, err := svc.ReviewPayout(ctx, payout.ID, dto.PayoutDecisionReject, "insufficient docs"); err != nil {
		t.Fatalf("reject payout: %v", err)
	}
	available, _ = svc.AvailableBalance(ctx, affiliate.ID)
	if math.Abs(available-15.10) > 1e-9 {
		t.Errorf("available after rejection = %v, want 15.10", available)
	}
}

func TestReviewPayoutTransitions(t *testing.T) {
	repo := newTestRepo(t)
	svc := newAffiliateService(repo)
	affiliate := createTestUser(t, repo, "payee@example.com")
	referred := createTestUser(t, repo, "referred-payee@example.com")
	linkReferral(t, repo, referred.ID, affiliate.ID)
	ctx := context.Background()

	if err := svc.RecordSubscriptionCommission(ctx, referred.ID, 500, "ref_rev_1"); err != nil {
		t.Fatalf("record commission: %v", err)
	}
	payout, err := svc.RequestPayout(ctx, affiliate.ID, dto.PayoutRequestCreate{Amount: 20})
	if err != nil {
		t.Fatalf("request payout: %v", err)
	}

	// pending 不能直接标记已打款
	if _, err := svc.ReviewPayout(ctx, payout.ID, dto.PayoutDecisionMarkPaid, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for pending→paid, got %v", err)
	}

	approved, err := svc.ReviewPayout(ctx, payout.ID, dto.PayoutDecisionApprove, "ok")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != entity.PayoutStatusApproved {
		t.Errorf("status = %q, want approved", approved.Status)
	}
	if approved.ProcessedAt == nil {
		t.Error("processed_at not set on approval")
	}

	// 已通过的申请不能再拒绝
	if _, err := svc.ReviewPayout(ctx, payout.ID, dto.PayoutDecisionReject, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for approved→rejected, got %v", err)
	}

	paid, err := svc.ReviewPayout(ctx, payout.ID, dto.PayoutDecisionMarkPaid, "wire sent")
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if paid.Status != entity.PayoutStatusPaid {
		t.Errorf("status = %q, want paid", paid.Status)
	}

	if _, err := svc.ReviewPayout(ctx, payout.ID, "escalate", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown decision, got %v", err)
	}
	if _, err := svc.ReviewPayout(ctx, 9999, dto.PayoutDecisionApprove, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReferralInfo(t *testing.T) {
	repo := newTestRepo(t)
	svc := newAffiliateService(repo)
	affiliate := createTestUser(t, repo, "info@example.com")
	first := createTestUser(t, repo, "first@example.com")
	second := createTestUser(t, repo, "second@example.com")
	linkReferral(t, repo, first.ID, affiliate.ID)
	linkReferral(t, repo, second.ID, affiliate.ID)
	ctx := context.Background()

	if err := svc.RecordFreeReferralActivation(ctx, affiliate.ID, first.ID); err != nil {
		t.Fatalf("activation: %v", err)
	}
	if err := svc.RecordFreeReferralActivation(ctx, affiliate.ID, second.ID); err != nil {
		t.Fatalf("activation: %v", err)
	}

	info, err := svc.ReferralInfo(ctx, affiliate.ID)
	if err != nil {
		t.Fatalf("referral info: %v", err)
	}
	if info.ReferralCode != affiliate.ReferralCode {
		t.Errorf("referral code = %q, want %q", info.ReferralCode, affiliate.ReferralCode)
	}
	if info.ReferredCount != 2 {
		t.Errorf("referred count = %d, want 2", info.ReferredCount)
	}
	if info.LifetimeEarned != 0.20 {
		t.Errorf("lifetime earned = %v, want 0.20", info.LifetimeEarned)
	}
	if info.AvailableBalance != 0.20 {
		t.Errorf("available = %v, want 0.20", info.AvailableBalance)
	}

	if _, err := svc.ReferralInfo(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
