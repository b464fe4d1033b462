package settings

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"melodyverse/internal/model"
)

// ErrSettingUnavailable 表示必需的业务参数缺失或非法，调用方必须拒绝本次操作而不是套用默认值。
var ErrSettingUnavailable = errors.New("required setting unavailable")

// Provider 提供带类型的业务参数读取。所有金额、费率、开关都以 settings 表为唯一来源。
type Provider struct {
	repo model.Repository
}

func NewProvider(repo model.Repository) *Provider {
	return &Provider{repo: repo}
}

func (p *Provider) rawValue(ctx context.Context, key string) (string, error) {
	if p == nil || p.repo == nil {
		return "", fmt.Errorf("%w: settings provider not initialised", ErrSettingUnavailable)
	}
	value, err := p.repo.GetSetting(ctx, key)
	if err != nil {
		if errors.Is(err, model.ErrSettingNotFound) {
			return "", fmt.Errorf("%w: %s", ErrSettingUnavailable, key)
		}
		return "", err
	}
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrSettingUnavailable, key)
	}
	return trimmed, nil
}

func (p *Provider) floatValue(ctx context.Context, key string) (float64, error) {
	raw, err := p.rawValue(ctx, key)
	if err != nil {
		return 0, err
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s is not numeric", ErrSettingUnavailable, key)
	}
	if parsed < 0 {
		return 0, fmt.Errorf("%w: %s must not be negative", ErrSettingUnavailable, key)
	}
	return parsed, nil
}

func (p *Provider) intValue(ctx context.Context, key string) (int64, error) {
	raw, err := p.rawValue(ctx, key)
	if err != nil {
		return 0, err
	}
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s is not an integer", ErrSettingUnavailable, key)
	}
	if parsed < 0 {
		return 0, fmt.Errorf("%w: %s must not be negative", ErrSettingUnavailable, key)
	}
	return parsed, nil
}

// GenerationCost 单次生成扣减的积分数。
func (p *Provider) GenerationCost(ctx context.Context) (int64, error) {
	return p.intValue(ctx, model.SettingGenerationCost)
}

// FreeReferralAmount 被推荐人完成首次激活时推荐人的一次性奖励金额（美元）。
func (p *Provider) FreeReferralAmount(ctx context.Context) (float64, error) {
	return p.floatValue(ctx, model.SettingReferralAmount)
}

// SubscriptionCommissionPercent 被推荐人付费订阅时推荐人的分成比例（百分数）。
func (p *Provider) SubscriptionCommissionPercent(ctx context.Context) (float64, error) {
	percent, err := p.floatValue(ctx, model.SettingSubscriptionPercent)
	if err != nil {
		return 0, err
	}
	if percent > 100 {
		return 0, fmt.Errorf("%w: %s exceeds 100", ErrSettingUnavailable, model.SettingSubscriptionPercent)
	}
	return percent, nil
}

// PayoutMinimum 申请提现的最低金额（美元）。
func (p *Provider) PayoutMinimum(ctx context.Context) (float64, error) {
	return p.floatValue(ctx, model.SettingPayoutMinimum)
}

// PayoutFeePercent 提现手续费比例（百分数），在申请时快照到提现单上。
func (p *Provider) PayoutFeePercent(ctx context.Context) (float64, error) {
	percent, err := p.floatValue(ctx, model.SettingPayoutFeePercent)
	if err != nil {
		return 0, err
	}
	if percent > 100 {
		return 0, fmt.Errorf("%w: %s exceeds 100", ErrSettingUnavailable, model.SettingPayoutFeePercent)
	}
	return percent, nil
}

// GatewayEnabled 指定支付网关是否开放接收回调。
func (p *Provider) GatewayEnabled(ctx context.Context, gateway string) (bool, error) {
	var key string
	switch gateway {
	case "stripe":
		key = model.SettingGatewayStripeEnabled
	case "paystack":
		key = model.SettingGatewayPaystackEnable
	default:
		return false, fmt.Errorf("%w: unknown gateway %s", ErrSettingUnavailable, gateway)
	}
	raw, err := p.rawValue(ctx, key)
	if err != nil {
		return false, err
	}
	enabled, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s is not a boolean", ErrSettingUnavailable, key)
	}
	return enabled, nil
}
