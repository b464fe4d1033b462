package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"melodyverse/internal/payment"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const maxCallbackBody = 1 << 20

// GenerationCallback 接收歌曲生成供应商的回调。
// 无论处理结果如何都返回 200，避免供应商对同一事件重试风暴；
// 失败原因记入日志，兜底巡检会补偿丢失的结果。
func (h *HTTPHandler) GenerationCallback(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBody))
	if err != nil {
		logrus.WithError(err).Warn("failed to read generation callback body")
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := h.generationService.Reconcile(ctx, body); err != nil {
		logrus.WithError(err).Warn("generation callback reconcile failed")
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// PaymentWebhook 接收支付网关回调。验签失败返回 4xx；
// 重复事件和无关事件按成功确认。
func (h *HTTPHandler) PaymentWebhook(c *gin.Context) {
	gatewayName := c.Param("gateway")

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBody))
	if err != nil {
		BadRequest(c, ErrCodeInvalidRequest, "failed to read webhook body")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := h.paymentService.HandleWebhook(ctx, gatewayName, c.Request.Header, body); err != nil {
		switch {
		case errors.Is(err, payment.ErrBadSignature):
			ErrorResponse(c, http.StatusUnauthorized, ErrCodeUnauthorized, "signature verification failed")
		case errors.Is(err, payment.ErrMalformedEvent):
			BadRequest(c, ErrCodeInvalidRequest, err.Error())
		default:
			logrus.WithError(err).WithField("gateway", gatewayName).Error("payment webhook processing failed")
			respondServiceError(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
