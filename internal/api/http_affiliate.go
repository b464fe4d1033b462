package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"melodyverse/internal/entity/converter"
	"melodyverse/internal/entity/dto"

	"github.com/gin-gonic/gin"
)

// GetReferralInfo 返回当前用户的推荐码与佣金概览。
func (h *HTTPHandler) GetReferralInfo(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		Unauthorized(c, "authentication required")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	info, err := h.affiliateService.ReferralInfo(ctx, user.ID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if h.cfg.PublicBaseURL != "" {
		info.ReferralLink = normalisePublicBase(h.cfg.PublicBaseURL) + "/?ref=" + info.ReferralCode
	}

	c.JSON(http.StatusOK, info)
}

// ListCommissions 查询当前用户赚取的佣金记录。
func (h *HTTPHandler) ListCommissions(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		Unauthorized(c, "authentication required")
		return
	}

	var query dto.CommissionQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		BadRequest(c, ErrCodeInvalidRequest, "invalid query parameters")
		return
	}
	query.AffiliateID = user.ID

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	commissions, meta, err := h.affiliateService.ListCommissions(ctx, &query)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"commissions": converter.CommissionsToSummaries(commissions),
		"meta":        meta,
	})
}

// RequestPayout 发起提现申请。
func (h *HTTPHandler) RequestPayout(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		Unauthorized(c, "authentication required")
		return
	}

	var req dto.PayoutRequestCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	payout, err := h.affiliateService.RequestPayout(ctx, user.ID, req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, converter.PayoutToSummary(payout))
}

// ListPayouts 查询提现申请。管理员可带 all=1 查看全部。
func (h *HTTPHandler) ListPayouts(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		Unauthorized(c, "authentication required")
		return
	}

	var query dto.PayoutQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		BadRequest(c, ErrCodeInvalidRequest, "invalid query parameters")
		return
	}
	query.AffiliateID = user.ID
	query.IncludeAll = user.IsAdmin() && c.Query("all") == "1"

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	payouts, meta, err := h.affiliateService.ListPayouts(ctx, &query)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"payouts": converter.PayoutsToSummaries(payouts),
		"meta":    meta,
	})
}

// ReviewPayout 管理员审核提现:通过、拒绝或标记已打款。
func (h *HTTPHandler) ReviewPayout(c *gin.Context) {
	payoutID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || payoutID == 0 {
		BadRequest(c, ErrCodeInvalidRequest, "invalid payout id")
		return
	}

	var req dto.PayoutReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	payout, err := h.affiliateService.ReviewPayout(ctx, uint(payoutID), req.Decision, req.Notes)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, converter.PayoutToSummary(payout))
}
