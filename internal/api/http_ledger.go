package api

import (
	"context"
	"net/http"
	"time"

	"melodyverse/internal/entity/converter"
	"melodyverse/internal/entity/dto"

	"github.com/gin-gonic/gin"
)

// GetBalance 查询当前用户的积分余额。
func (h *HTTPHandler) GetBalance(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		Unauthorized(c, "authentication required")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	balance, err := h.ledgerService.Balance(ctx, user.ID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.BalanceResponse{UserID: user.ID, Credits: balance})
}

// ListLedgerEntries 查询当前用户的积分流水。
func (h *HTTPHandler) ListLedgerEntries(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		Unauthorized(c, "authentication required")
		return
	}

	var query dto.LedgerQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		BadRequest(c, ErrCodeInvalidRequest, "invalid query parameters")
		return
	}
	query.UserID = user.ID

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	entries, meta, err := h.ledgerService.History(ctx, &query)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": converter.LedgerEntriesToSummaries(entries),
		"meta":    meta,
	})
}

// AdjustCredits 管理员手工调整用户积分。
func (h *HTTPHandler) AdjustCredits(c *gin.Context) {
	var req dto.AdjustCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	if err := h.ledgerService.AdminAdjust(ctx, req); err != nil {
		respondServiceError(c, err)
		return
	}

	balance, err := h.ledgerService.Balance(ctx, req.UserID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.BalanceResponse{UserID: req.UserID, Credits: balance})
}
