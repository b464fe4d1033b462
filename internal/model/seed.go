package model

import (
	"context"
	"errors"
)

// 配置键。运营参数统一放在 settings 表，代码中不保留硬编码兜底值，
// 缺失时业务侧按 fail-closed 处理。
const (
	SettingGenerationCost        = "generation_cost"                // 单次生成消耗的积分
	SettingReferralAmount        = "affiliate_referral_amount"      // 免费推荐激活的固定佣金（美元）
	SettingSubscriptionPercent   = "affiliate_subscription_percent" // 订阅佣金比例（%）
	SettingPayoutMinimum         = "payout_minimum"                 // 最低提现金额（美元）
	SettingPayoutFeePercent      = "payout_fee_percent"             // 提现手续费比例（%）
	SettingGatewayStripeEnabled  = "gateway_stripe_enabled"         // Stripe 回调开关
	SettingGatewayPaystackEnable = "gateway_paystack_enabled"       // Paystack 回调开关
)

var defaultSettings = map[string]string{
	SettingGenerationCost:        "5",
	SettingReferralAmount:        "0.10",
	SettingSubscriptionPercent:   "10",
	SettingPayoutMinimum:         "10",
	SettingPayoutFeePercent:      "5",
	SettingGatewayStripeEnabled:  "true",
	SettingGatewayPaystackEnable: "true",
}

// SeedDefaultSettings ensures the operational settings exist in the database.
// 只补齐缺失的键，不覆盖已有值。
func SeedDefaultSettings(ctx context.Context, repo Repository) error {
	if repo == nil {
		return nil
	}

	for key, value := range defaultSettings {
		_, err := repo.GetSetting(ctx, key)
		switch {
		case err == nil:
			continue
		case errors.Is(err, ErrSettingNotFound):
			if err := repo.SetSetting(ctx, key, value); err != nil {
				return err
			}
		default:
			return err
		}
	}
	return nil
}

// IsKnownSettingKey 判断是否为受支持的配置键。
func IsKnownSettingKey(key string) bool {
	_, ok := defaultSettings[key]
	return ok
}

// SettingExpectedType 返回配置键的预期取值说明，供管理端展示。
func SettingExpectedType(key string) string {
	switch key {
	case SettingGenerationCost:
		return "integer"
	case SettingReferralAmount, SettingPayoutMinimum:
		return "decimal"
	case SettingSubscriptionPercent, SettingPayoutFeePercent:
		return "percent"
	case SettingGatewayStripeEnabled, SettingGatewayPaystackEnable:
		return "boolean"
	default:
		return "string"
	}
}
