package service

import (
	"context"
	"errors"
	"testing"

	"melodyverse/internal/entity"
	"melodyverse/internal/entity/dto"
	"melodyverse/internal/model"
)

func TestAdminAdjustCreditAndDebit(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewLedgerService(repo)
	user := createTestUser(t, repo, "adjusted@example.com")
	ctx := context.Background()

	if err := svc.AdminAdjust(ctx, dto.AdjustCreditsRequest{UserID: user.ID, Delta: 20, Note: "welcome bonus"}); err != nil {
		t.Fatalf("credit adjust: %v", err)
	}
	if balance := mustBalance(t, repo, user.ID); balance != 20 {
		t.Errorf("balance = %d, want 20", balance)
	}

	if err := svc.AdminAdjust(ctx, dto.AdjustCreditsRequest{UserID: user.ID, Delta: -8, Note: "correction"}); err != nil {
		t.Fatalf("debit adjust: %v", err)
	}
	if balance := mustBalance(t, repo, user.ID); balance != 12 {
		t.Errorf("balance = %d, want 12", balance)
	}

	entries, _, err := svc.History(ctx, &dto.LedgerQuery{UserID: user.ID, Reason: entity.LedgerReasonAdminAdjustment})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 adjustment entries, got %d", len(entries))
	}

	// 物化余额与流水推导余额必须一致
	materialized, err := svc.Balance(ctx, user.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	derived, err := svc.DerivedBalance(ctx, user.ID)
	if err != nil {
		t.Fatalf("derived balance: %v", err)
	}
	if materialized != derived {
		t.Errorf("materialized balance %d != derived balance %d", materialized, derived)
	}
}

func TestAdminAdjustRejectsOverdraft(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewLedgerService(repo)
	user := createTestUser(t, repo, "shallow@example.com")
	grantCredits(t, repo, user.ID, 5)

	err := svc.AdminAdjust(context.Background(), dto.AdjustCreditsRequest{UserID: user.ID, Delta: -6})
	if !errors.Is(err, model.ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}
	if balance := mustBalance(t, repo, user.ID); balance != 5 {
		t.Errorf("balance = %d, want 5 (untouched)", balance)
	}
}

func TestAdminAdjustValidation(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewLedgerService(repo)
	ctx := context.Background()

	if err := svc.AdminAdjust(ctx, dto.AdjustCreditsRequest{UserID: 1, Delta: 0}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for zero delta, got %v", err)
	}
	if err := svc.AdminAdjust(ctx, dto.AdjustCreditsRequest{UserID: 9999, Delta: 5}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing user, got %v", err)
	}
	if _, err := svc.Balance(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for balance of missing user, got %v", err)
	}
}

// 余额 5、成本 5 的两笔扣减只能成功一笔：条件更新保证第二笔未命中任何行。
func TestDebitNoOverdraft(t *testing.T) {
	repo := newTestRepo(t)
	user := createTestUser(t, repo, "racer@example.com")
	grantCredits(t, repo, user.ID, 5)
	ctx := context.Background()

	if err := repo.DebitCredits(ctx, user.ID, 5, entity.LedgerReasonGenerationCharge, nil, ""); err != nil {
		t.Fatalf("first debit: %v", err)
	}
	err := repo.DebitCredits(ctx, user.ID, 5, entity.LedgerReasonGenerationCharge, nil, "")
	if !errors.Is(err, model.ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}
	if balance := mustBalance(t, repo, user.ID); balance != 0 {
		t.Errorf("balance = %d, want 0", balance)
	}

	// 被拒绝的扣减不产生流水
	entries, _, err := repo.ListLedgerEntries(ctx, &dto.LedgerQuery{UserID: user.ID, Reason: entity.LedgerReasonGenerationCharge})
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 charge entry, got %d", len(entries))
	}
}

func TestApplyPurchaseAndSubscriptionGrant(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewLedgerService(repo)
	user := createTestUser(t, repo, "buyer@example.com")
	ctx := context.Background()

	if err := svc.ApplyPurchase(ctx, user.ID, 50, "ch_123"); err != nil {
		t.Fatalf("apply purchase: %v", err)
	}
	if err := svc.ApplyPurchase(ctx, user.ID, 0, "ch_124"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for zero purchase, got %v", err)
	}

	// 零额度订阅不产生流水
	if err := svc.ApplySubscriptionGrant(ctx, user.ID, 0, "sub_1"); err != nil {
		t.Fatalf("zero subscription grant should be a no-op: %v", err)
	}
	if err := svc.ApplySubscriptionGrant(ctx, user.ID, 30, "sub_2"); err != nil {
		t.Fatalf("subscription grant: %v", err)
	}

	if balance := mustBalance(t, repo, user.ID); balance != 80 {
		t.Errorf("balance = %d, want 80", balance)
	}
}
