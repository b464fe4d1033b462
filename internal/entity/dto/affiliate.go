package dto

import (
	"melodyverse/internal/entity/common"
	"time"
)

// ReferralInfoResponse summarises an affiliate's referral performance.
type ReferralInfoResponse struct {
	ReferralCode     string  `json:"referral_code"`
	ReferralLink     string  `json:"referral_link"`
	ReferredCount    int64   `json:"referred_count"`
	LifetimeEarned   float64 `json:"lifetime_earned"`
	AvailableBalance float64 `json:"available_balance"`
}

// CommissionSummary describes one earned commission.
type CommissionSummary struct {
	ID           uint      `json:"id"`
	ReferredID   uint      `json:"referred_id"`
	SourceEvent  string    `json:"source_event"`
	AmountEarned float64   `json:"amount_earned"`
	CreatedAt    time.Time `json:"created_at"`
}

// CommissionQuery supports listing commissions with pagination.
type CommissionQuery struct {
	common.BaseParams
	AffiliateID uint `json:"-"`
}

// PayoutRequestCreate is the payload for requesting a payout.
type PayoutRequestCreate struct {
	Amount float64 `json:"amount" binding:"required,gt=0"`
}

// PayoutSummary describes one payout request.
type PayoutSummary struct {
	ID              uint       `json:"id"`
	AffiliateID     uint       `json:"affiliate_id"`
	RequestedAmount float64    `json:"requested_amount"`
	FeePercent      float64    `json:"fee_percent"`
	Status          string     `json:"status"`
	ReviewerNotes   string     `json:"reviewer_notes,omitempty"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// PayoutQuery supports listing payout requests with pagination.
type PayoutQuery struct {
	common.BaseParams
	AffiliateID uint   `json:"-"`
	IncludeAll  bool   `json:"-"`
	Status      string `json:"status" form:"status" query:"status"`
}

// 提现审核动作
const (
	PayoutDecisionApprove  = "approve"
	PayoutDecisionReject   = "reject"
	PayoutDecisionMarkPaid = "mark_paid"
)

// PayoutReviewRequest is the admin payload for reviewing a payout request.
type PayoutReviewRequest struct {
	Decision string `json:"decision" binding:"required"` // approve、reject 或 mark_paid
	Notes    string `json:"notes,omitempty"`
}
