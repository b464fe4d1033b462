package payment

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// PaystackGateway 解析 Paystack 的回调。
type PaystackGateway struct {
	webhookSecret string
}

func NewPaystackGateway(webhookSecret string) *PaystackGateway {
	return &PaystackGateway{webhookSecret: strings.TrimSpace(webhookSecret)}
}

func (g *PaystackGateway) Name() string {
	return "paystack"
}

func (g *PaystackGateway) ParseEvent(header http.Header, body []byte) (*Event, error) {
	if err := g.verifySignature(header.Get("X-Paystack-Signature"), body); err != nil {
		return nil, err
	}

	parsed := gjson.ParseBytes(body)
	eventType := parsed.Get("event").String()
	if eventType != "charge.success" {
		return nil, fmt.Errorf("%w: %s", ErrIgnoredEvent, eventType)
	}

	data := parsed.Get("data")
	reference := strings.TrimSpace(data.Get("reference").String())
	if reference == "" {
		return nil, fmt.Errorf("%w: missing transaction reference", ErrMalformedEvent)
	}

	event := &Event{
		Provider:  g.Name(),
		EventID:   reference, // Paystack 以交易参考号作为幂等键
		Reference: reference,
		// Paystack 金额以最小货币单位计
		AmountUSD: data.Get("amount").Float() / 100,
	}
	if err := fillFromMetadata(event, data.Get("metadata")); err != nil {
		return nil, err
	}
	return event, nil
}

// verifySignature 校验 X-Paystack-Signature：对回调体本身做 HMAC-SHA512。
// 密钥未配置时跳过校验（仅限开发环境）。
func (g *PaystackGateway) verifySignature(header string, body []byte) error {
	if g.webhookSecret == "" {
		return nil
	}
	signature := strings.TrimSpace(header)
	if signature == "" {
		return fmt.Errorf("%w: missing X-Paystack-Signature header", ErrBadSignature)
	}

	mac := hmac.New(sha512.New, []byte(g.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("%w: signature mismatch", ErrBadSignature)
	}
	return nil
}
