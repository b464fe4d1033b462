package service

import "errors"

// 业务层哨兵错误，API 层据此映射错误码。
var (
	// ErrInvalidInput 表示请求参数不满足业务前置条件。
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound 表示目标对象不存在。
	ErrNotFound = errors.New("not found")
	// ErrPermissionDenied 表示当前用户无权操作目标对象。
	ErrPermissionDenied = errors.New("permission denied")
	// ErrBelowMinimumPayout 表示提现金额低于运营配置的最低门槛。
	ErrBelowMinimumPayout = errors.New("payout amount below minimum")
	// ErrInsufficientPayoutBalance 表示可提现余额不足。
	ErrInsufficientPayoutBalance = errors.New("insufficient payout balance")
	// ErrInvalidTransition 表示对象当前状态不允许该操作。
	ErrInvalidTransition = errors.New("invalid state transition")
)
