package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// StripeGateway 解析 Stripe Checkout 的回调。
type StripeGateway struct {
	webhookSecret string
}

func NewStripeGateway(webhookSecret string) *StripeGateway {
	return &StripeGateway{webhookSecret: strings.TrimSpace(webhookSecret)}
}

func (g *StripeGateway) Name() string {
	return "stripe"
}

func (g *StripeGateway) ParseEvent(header http.Header, body []byte) (*Event, error) {
	if err := g.verifySignature(header.Get("Stripe-Signature"), body); err != nil {
		return nil, err
	}

	parsed := gjson.ParseBytes(body)
	eventType := parsed.Get("type").String()
	if eventType != "checkout.session.completed" {
		return nil, fmt.Errorf("%w: %s", ErrIgnoredEvent, eventType)
	}

	eventID := strings.TrimSpace(parsed.Get("id").String())
	if eventID == "" {
		return nil, fmt.Errorf("%w: missing event id", ErrMalformedEvent)
	}

	session := parsed.Get("data.object")
	metadata := session.Get("metadata")

	event := &Event{
		Provider:  g.Name(),
		EventID:   eventID,
		Reference: session.Get("id").String(),
		AmountUSD: session.Get("amount_total").Float() / 100,
	}
	if err := fillFromMetadata(event, metadata); err != nil {
		return nil, err
	}
	return event, nil
}

// verifySignature 校验 Stripe-Signature 头：对 "<t>.<body>" 做 HMAC-SHA256，
// 与任意一个 v1 签名比对。密钥未配置时跳过校验（仅限开发环境）。
func (g *StripeGateway) verifySignature(header string, body []byte) error {
	if g.webhookSecret == "" {
		return nil
	}
	if strings.TrimSpace(header) == "" {
		return fmt.Errorf("%w: missing Stripe-Signature header", ErrBadSignature)
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return fmt.Errorf("%w: malformed Stripe-Signature header", ErrBadSignature)
	}

	mac := hmac.New(sha256.New, []byte(g.webhookSecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(expected), []byte(signature)) {
			return nil
		}
	}
	return fmt.Errorf("%w: no matching v1 signature", ErrBadSignature)
}

// fillFromMetadata 从网关透传的 metadata 中提取用户与购买信息。
func fillFromMetadata(event *Event, metadata gjson.Result) error {
	userID := metadata.Get("user_id").Uint()
	if userID == 0 {
		return fmt.Errorf("%w: metadata missing user_id", ErrMalformedEvent)
	}
	event.UserID = uint(userID)

	purchaseType := strings.TrimSpace(metadata.Get("purchase_type").String())
	switch purchaseType {
	case PurchaseTypeCredits:
		credits := metadata.Get("credit_amount").Int()
		if credits <= 0 {
			return fmt.Errorf("%w: metadata missing credit_amount", ErrMalformedEvent)
		}
		event.PurchaseType = PurchaseTypeCredits
		event.CreditAmount = credits
	case PurchaseTypeSubscription:
		planID := strings.TrimSpace(metadata.Get("plan_id").String())
		if planID == "" {
			return fmt.Errorf("%w: metadata missing plan_id", ErrMalformedEvent)
		}
		event.PurchaseType = PurchaseTypeSubscription
		event.PlanID = planID
		// 订阅套餐附带的月度积分额度，可为空
		event.CreditAmount = metadata.Get("credit_amount").Int()
	default:
		return fmt.Errorf("%w: unknown purchase_type %q", ErrMalformedEvent, purchaseType)
	}
	return nil
}
