package service

import (
	"context"
	"path/filepath"
	"testing"

	"melodyverse/internal/config"
	"melodyverse/internal/entity"
	"melodyverse/internal/model"
	"melodyverse/internal/settings"
)

func newTestRepo(t *testing.T) model.Repository {
	t.Helper()
	repo, err := model.InitRepository(&config.Config{
		DBType: "sqlite",
		DBPath: filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("init repository: %v", err)
	}
	if err := model.SeedDefaultSettings(context.Background(), repo); err != nil {
		t.Fatalf("seed settings: %v", err)
	}
	return repo
}

func newTestSettings(repo model.Repository) *settings.Provider {
	return settings.NewProvider(repo)
}

func createTestUser(t *testing.T, repo model.Repository, email string) *entity.DbUser {
	t.Helper()
	user := &entity.DbUser{
		Email:        email,
		DisplayName:  "Test User",
		PasswordHash: "not-a-real-hash",
		Role:         entity.UserRoleUser,
		IsActive:     true,
		ReferralCode: "code-" + email,
	}
	if err := repo.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return user
}

func grantCredits(t *testing.T, repo model.Repository, userID uint, amount int64) {
	t.Helper()
	if err := repo.CreditCredits(context.Background(), userID, amount, entity.LedgerReasonPurchaseCredit, "test-seed"); err != nil {
		t.Fatalf("grant credits: %v", err)
	}
}

func mustBalance(t *testing.T, repo model.Repository, userID uint) int64 {
	t.Helper()
	balance, err := repo.LedgerBalance(context.Background(), userID)
	if err != nil {
		t.Fatalf("ledger balance: %v", err)
	}
	return balance
}
