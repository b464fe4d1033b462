package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"melodyverse/internal/entity"
	"melodyverse/internal/model"
	"melodyverse/internal/payment"
)

// 测试用网关不配置密钥,验签被跳过,聚焦事件处理语义。
func newPaymentService(repo model.Repository) *PaymentService {
	settingsProvider := newTestSettings(repo)
	ledger := NewLedgerService(repo)
	affiliate := NewAffiliateService(repo, settingsProvider)
	return NewPaymentService(repo, settingsProvider, ledger, affiliate,
		payment.NewStripeGateway(""), payment.NewPaystackGateway(""))
}

func stripeCreditsEvent(eventID string, userID uint, credits int64) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_%s",
			"amount_total": 999,
			"metadata": {"user_id": "%d", "purchase_type": "credits", "credit_amount": "%d"}
		}}
	}`, eventID, eventID, userID, credits))
}

func stripeSubscriptionEvent(eventID string, userID uint, amountCents int64, planID string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_%s",
			"amount_total": %d,
			"metadata": {"user_id": "%d", "purchase_type": "subscription", "plan_id": %q, "credit_amount": "100"}
		}}
	}`, eventID, eventID, amountCents, userID, planID))
}

func TestHandleWebhookCreditPurchase(t *testing.T) {
	repo := newTestRepo(t)
	svc := newPaymentService(repo)
	user := createTestUser(t, repo, "purchaser@example.com")
	ctx := context.Background()

	payload := stripeCreditsEvent("evt_1", user.ID, 50)
	if err := svc.HandleWebhook(ctx, "stripe", http.Header{}, payload); err != nil {
		t.Fatalf("handle webhook: %v", err)
	}
	if balance := mustBalance(t, repo, user.ID); balance != 50 {
		t.Errorf("balance = %d, want 50", balance)
	}

	// 网关重试同一事件,不重复入账
	if err := svc.HandleWebhook(ctx, "stripe", http.Header{}, payload); err != nil {
		t.Fatalf("duplicate webhook: %v", err)
	}
	if balance := mustBalance(t, repo, user.ID); balance != 50 {
		t.Errorf("balance after replay = %d, want 50", balance)
	}
}

// 首次投递套用失败时,占位行必须释放,否则网关重试被当成重复事件
// 吞掉,已付款的积分就永远丢失。
func TestHandleWebhookFailedApplyAllowsRetry(t *testing.T) {
	repo := newTestRepo(t)
	svc := newPaymentService(repo)
	ctx := context.Background()

	// 事件指向尚不存在的用户,首次入账失败
	const lateUserID = 42
	payload := stripeCreditsEvent("evt_retry_1", lateUserID, 50)
	if err := svc.HandleWebhook(ctx, "stripe", http.Header{}, payload); err == nil {
		t.Fatal("expected first delivery to fail for missing user")
	}

	// 用户补建后,网关重试同一事件必须重新处理并入账
	user := &entity.DbUser{
		ID:           lateUserID,
		Email:        "late-user@example.com",
		DisplayName:  "Test User",
		PasswordHash: "not-a-real-hash",
		Role:         entity.UserRoleUser,
		IsActive:     true,
		ReferralCode: "code-late-user",
	}
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := svc.HandleWebhook(ctx, "stripe", http.Header{}, payload); err != nil {
		t.Fatalf("retry after failed apply: %v", err)
	}
	if balance := mustBalance(t, repo, lateUserID); balance != 50 {
		t.Errorf("balance after retry = %d, want 50", balance)
	}

	// 入账成功后的再次投递仍然去重
	if err := svc.HandleWebhook(ctx, "stripe", http.Header{}, payload); err != nil {
		t.Fatalf("duplicate after success: %v", err)
	}
	if balance := mustBalance(t, repo, lateUserID); balance != 50 {
		t.Errorf("balance after duplicate = %d, want 50", balance)
	}
}

func TestHandleWebhookSubscription(t *testing.T) {
	repo := newTestRepo(t)
	svc := newPaymentService(repo)
	affiliate := createTestUser(t, repo, "sub-affiliate@example.com")
	subscriber := createTestUser(t, repo, "sub-user@example.com")
	linkReferral(t, repo, subscriber.ID, affiliate.ID)
	ctx := context.Background()

	// $20 订阅:订户得 100 积分,推荐人按 10% 得 $2 佣金
	payload := stripeSubscriptionEvent("evt_sub_1", subscriber.ID, 2000, "pro-monthly")
	if err := svc.HandleWebhook(ctx, "stripe", http.Header{}, payload); err != nil {
		t.Fatalf("handle webhook: %v", err)
	}

	if balance := mustBalance(t, repo, subscriber.ID); balance != 100 {
		t.Errorf("subscriber balance = %d, want 100", balance)
	}
	earned, err := repo.SumCommissions(ctx, affiliate.ID)
	if err != nil {
		t.Fatalf("sum commissions: %v", err)
	}
	if earned != 2 {
		t.Errorf("commission = %v, want 2", earned)
	}

	// 重放既不重复发积分也不重复发佣金
	if err := svc.HandleWebhook(ctx, "stripe", http.Header{}, payload); err != nil {
		t.Fatalf("duplicate webhook: %v", err)
	}
	if balance := mustBalance(t, repo, subscriber.ID); balance != 100 {
		t.Errorf("subscriber balance after replay = %d, want 100", balance)
	}
	earned, _ = repo.SumCommissions(ctx, affiliate.ID)
	if earned != 2 {
		t.Errorf("commission after replay = %v, want 2", earned)
	}
}

func TestHandleWebhookIgnoredEvent(t *testing.T) {
	repo := newTestRepo(t)
	svc := newPaymentService(repo)
	ctx := context.Background()

	payload := []byte(`{"id": "evt_other", "type": "invoice.created", "data": {"object": {}}}`)
	if err := svc.HandleWebhook(ctx, "stripe", http.Header{}, payload); err != nil {
		t.Fatalf("ignored event should return nil, got %v", err)
	}
}

func TestHandleWebhookUnknownGateway(t *testing.T) {
	repo := newTestRepo(t)
	svc := newPaymentService(repo)

	err := svc.HandleWebhook(context.Background(), "flutterwave", http.Header{}, []byte(`{}`))
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestHandleWebhookDisabledGateway(t *testing.T) {
	repo := newTestRepo(t)
	svc := newPaymentService(repo)
	ctx := context.Background()

	if err := repo.SetSetting(ctx, model.SettingGatewayStripeEnabled, "false"); err != nil {
		t.Fatalf("disable gateway: %v", err)
	}
	err := svc.HandleWebhook(ctx, "stripe", http.Header{}, stripeCreditsEvent("evt_off", 1, 10))
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for disabled gateway, got %v", err)
	}
}

func TestHandleWebhookPaystackCharge(t *testing.T) {
	repo := newTestRepo(t)
	svc := newPaymentService(repo)
	user := createTestUser(t, repo, "paystack@example.com")
	ctx := context.Background()

	payload := []byte(fmt.Sprintf(`{
		"event": "charge.success",
		"data": {
			"reference": "ps_ref_1",
			"amount": 999,
			"metadata": {"user_id": "%d", "purchase_type": "credits", "credit_amount": "25"}
		}
	}`, user.ID))
	if err := svc.HandleWebhook(ctx, "paystack", http.Header{}, payload); err != nil {
		t.Fatalf("paystack webhook: %v", err)
	}
	if balance := mustBalance(t, repo, user.ID); balance != 25 {
		t.Errorf("balance = %d, want 25", balance)
	}
}
