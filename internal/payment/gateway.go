package payment

import (
	"errors"
	"net/http"
)

var (
	// ErrIgnoredEvent 表示该事件类型与积分/订阅无关，确认收到但不做任何处理。
	ErrIgnoredEvent = errors.New("webhook event ignored")
	// ErrBadSignature 表示回调签名校验失败。
	ErrBadSignature = errors.New("webhook signature verification failed")
	// ErrMalformedEvent 表示事件载荷缺少必需字段。
	ErrMalformedEvent = errors.New("webhook event malformed")
)

// 购买类型
const (
	PurchaseTypeCredits      = "credits"
	PurchaseTypeSubscription = "subscription"
)

// Event 是各网关回调归一化后的支付完成事件。
type Event struct {
	Provider     string  // 网关标识：stripe / paystack
	EventID      string  // 网关侧事件号，幂等去重的依据
	PurchaseType string  // credits 或 subscription
	UserID       uint    // 购买用户
	CreditAmount int64   // 积分包购买时的积分数
	PlanID       string  // 订阅购买时的套餐标识
	AmountUSD    float64 // 实付金额（美元）
	Reference    string  // 网关侧交易参考号
}

// Gateway 定义一个支付网关的回调解析能力。
type Gateway interface {
	// Name 返回网关标识，与 settings 中的开关键对应。
	Name() string
	// ParseEvent 校验签名并把回调体解析为统一事件。
	// 与业务无关的事件返回 ErrIgnoredEvent。
	ParseEvent(header http.Header, body []byte) (*Event, error)
}
