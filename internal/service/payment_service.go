package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"melodyverse/internal/entity"
	"melodyverse/internal/model"
	"melodyverse/internal/payment"
	"melodyverse/internal/settings"

	"github.com/sirupsen/logrus"
)

// PaymentService 处理支付网关回调：验签、按事件号去重、入账积分并触发订阅分成。
type PaymentService struct {
	repo      model.Repository
	settings  *settings.Provider
	ledger    *LedgerService
	affiliate *AffiliateService
	gateways  map[string]payment.Gateway
}

func NewPaymentService(repo model.Repository, settingsProvider *settings.Provider, ledger *LedgerService, affiliate *AffiliateService, gateways ...payment.Gateway) *PaymentService {
	byName := make(map[string]payment.Gateway, len(gateways))
	for _, gateway := range gateways {
		if gateway != nil {
			byName[gateway.Name()] = gateway
		}
	}
	return &PaymentService{
		repo:      repo,
		settings:  settingsProvider,
		ledger:    ledger,
		affiliate: affiliate,
		gateways:  byName,
	}
}

// HandleWebhook 处理一条支付回调。
// 重复投递的事件按事件号去重，返回 nil 让网关停止重试。
func (s *PaymentService) HandleWebhook(ctx context.Context, gatewayName string, header http.Header, body []byte) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("payment service not initialised")
	}

	gateway, ok := s.gateways[gatewayName]
	if !ok {
		return fmt.Errorf("%w: unknown gateway %q", ErrInvalidInput, gatewayName)
	}

	enabled, err := s.settings.GatewayEnabled(ctx, gatewayName)
	if err != nil {
		return err
	}
	if !enabled {
		return fmt.Errorf("%w: gateway %q is disabled", ErrInvalidInput, gatewayName)
	}

	event, err := gateway.ParseEvent(header, body)
	if err != nil {
		if errors.Is(err, payment.ErrIgnoredEvent) {
			logrus.WithField("gateway", gatewayName).Debug("payment webhook event ignored")
			return nil
		}
		return err
	}

	webhookEvent := &entity.DbWebhookEvent{
		Provider:        event.Provider,
		ProviderEventID: event.EventID,
		Payload:         string(body),
	}
	created, err := s.repo.InsertWebhookEvent(ctx, webhookEvent)
	if err != nil {
		return err
	}
	if !created {
		logrus.WithFields(logrus.Fields{
			"gateway":  gatewayName,
			"event_id": event.EventID,
		}).Info("duplicate payment webhook ignored")
		return nil
	}

	if err := s.applyEvent(ctx, event); err != nil {
		// 套用失败时必须释放占位行，否则网关重试会被当成重复事件
		// 吞掉，已付款的订单就永远入不了账
		s.releaseEvent(ctx, webhookEvent.ID, err)
		return err
	}
	s.markProcessed(ctx, webhookEvent.ID, "")
	return nil
}

// releaseEvent 删除套用失败事件的占位行，让下一次投递重新处理。
// 删除失败时保留失败原因，便于人工排查后手动放行。
func (s *PaymentService) releaseEvent(ctx context.Context, eventID uint, applyErr error) {
	if eventID == 0 {
		return
	}
	if err := s.repo.DeleteWebhookEvent(ctx, eventID); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"webhook_event_id": eventID,
			"apply_error":      applyErr.Error(),
		}).Error("release failed webhook event failed, retries will be swallowed")
		s.markProcessed(ctx, eventID, applyErr.Error())
	}
}

func (s *PaymentService) applyEvent(ctx context.Context, event *payment.Event) error {
	logEntry := logrus.WithFields(logrus.Fields{
		"gateway":       event.Provider,
		"event_id":      event.EventID,
		"user_id":       event.UserID,
		"purchase_type": event.PurchaseType,
	})

	switch event.PurchaseType {
	case payment.PurchaseTypeCredits:
		if err := s.ledger.ApplyPurchase(ctx, event.UserID, event.CreditAmount, event.Reference); err != nil {
			return err
		}
		logEntry.WithField("credit_amount", event.CreditAmount).Info("credit_purchase_applied")
		return nil

	case payment.PurchaseTypeSubscription:
		if err := s.ledger.ApplySubscriptionGrant(ctx, event.UserID, event.CreditAmount, event.Reference); err != nil {
			return err
		}
		if err := s.affiliate.RecordSubscriptionCommission(ctx, event.UserID, event.AmountUSD, event.Reference); err != nil {
			return err
		}
		logEntry.WithFields(logrus.Fields{
			"plan_id":    event.PlanID,
			"amount_usd": event.AmountUSD,
		}).Info("subscription_payment_applied")
		return nil

	default:
		return fmt.Errorf("%w: unknown purchase type %q", ErrInvalidInput, event.PurchaseType)
	}
}

func (s *PaymentService) markProcessed(ctx context.Context, eventID uint, processingError string) {
	if eventID == 0 {
		return
	}
	if err := s.repo.MarkWebhookEventProcessed(ctx, eventID, processingError); err != nil {
		logrus.WithError(err).WithField("webhook_event_id", eventID).Warn("mark webhook event processed failed")
	}
}
