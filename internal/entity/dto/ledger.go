package dto

import (
	"melodyverse/internal/entity/common"
	"time"
)

// BalanceResponse reports the credit balance of an account.
type BalanceResponse struct {
	UserID  uint  `json:"user_id"`
	Credits int64 `json:"credits"`
}

// LedgerEntrySummary describes one balance-affecting event.
type LedgerEntrySummary struct {
	ID            uint      `json:"id"`
	Delta         int64     `json:"delta"`
	Reason        string    `json:"reason"`
	RelatedTaskID *uint     `json:"related_task_id,omitempty"`
	Reference     string    `json:"reference,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// LedgerQuery supports listing ledger entries with pagination.
type LedgerQuery struct {
	common.BaseParams
	UserID uint   `json:"-"`
	Reason string `json:"reason" form:"reason" query:"reason"`
}

// AdjustCreditsRequest is the admin payload for manual credit adjustments.
type AdjustCreditsRequest struct {
	UserID uint   `json:"user_id" binding:"required"`
	Delta  int64  `json:"delta" binding:"required"`
	Note   string `json:"note,omitempty"`
}
