package model

import (
	"context"
	"time"

	"melodyverse/internal/entity"
	"melodyverse/internal/entity/dto"
	"melodyverse/internal/model/sql"
)

// 存储层哨兵错误（由 sql 实现定义，这里统一暴露）
var (
	// ErrInsufficientCredits 表示条件扣减未命中任何行（余额不足）。
	ErrInsufficientCredits = sql.ErrInsufficientCredits
	// ErrSettingNotFound 表示配置键不存在。
	ErrSettingNotFound = sql.ErrSettingNotFound
)

// Repository 定义数据库操作接口
type Repository interface {
	// 用户管理
	CreateUser(ctx context.Context, user *entity.DbUser) error
	UpdateUser(ctx context.Context, id uint, updates entity.UserUpdates) error
	GetUserByEmail(ctx context.Context, email string) (*entity.DbUser, error)
	GetUserByID(ctx context.Context, id uint) (*entity.DbUser, error)
	GetUserByReferralCode(ctx context.Context, code string) (*entity.DbUser, error)
	ListUsers(ctx context.Context, params *dto.UserQuery) ([]entity.DbUser, *entity.Meta, error)
	DeleteUser(ctx context.Context, id uint) error
	CountUsers(ctx context.Context) (int64, error)
	CountReferredUsers(ctx context.Context, affiliateID uint) (int64, error)

	// 积分流水。DebitCredits/CreditCredits 在同一事务内更新物化余额并追加流水。
	DebitCredits(ctx context.Context, userID uint, amount int64, reason string, relatedTaskID *uint, reference string) error
	CreditCredits(ctx context.Context, userID uint, amount int64, reason string, reference string) error
	LedgerBalance(ctx context.Context, userID uint) (int64, error)
	ListLedgerEntries(ctx context.Context, params *dto.LedgerQuery) ([]entity.DbLedgerEntry, *entity.Meta, error)

	// 生成任务。CreateGenerationTaskCharged 在同一事务内扣减积分并创建任务。
	CreateGenerationTaskCharged(ctx context.Context, task *entity.DbGenerationTask) error
	GetGenerationTask(ctx context.Context, id uint) (*entity.DbGenerationTask, error)
	GetGenerationTaskByExternalCode(ctx context.Context, code string) (*entity.DbGenerationTask, error)
	FindGenerationTaskByExternalPrefix(ctx context.Context, prefix string) (*entity.DbGenerationTask, error)
	UpdateGenerationTask(ctx context.Context, id uint, updates entity.TaskUpdates) error
	TransitionGenerationTask(ctx context.Context, id uint, updates entity.TaskUpdates) (bool, error)
	ListGenerationTasks(ctx context.Context, params *dto.TaskQuery) ([]entity.DbGenerationTask, *entity.Meta, error)
	ListStaleGenerationTasks(ctx context.Context, olderThan time.Time, limit int) ([]entity.DbGenerationTask, error)
	DeleteGenerationTask(ctx context.Context, id uint) error

	// 推广佣金
	CreateCommission(ctx context.Context, commission *entity.DbCommission) error
	HasFreeReferralCommission(ctx context.Context, affiliateID, referredID uint) (bool, error)
	ListCommissions(ctx context.Context, params *dto.CommissionQuery) ([]entity.DbCommission, *entity.Meta, error)
	SumCommissions(ctx context.Context, affiliateID uint) (float64, error)

	// 提现申请
	CreatePayoutRequest(ctx context.Context, request *entity.DbPayoutRequest) error
	GetPayoutRequest(ctx context.Context, id uint) (*entity.DbPayoutRequest, error)
	SumReservedPayouts(ctx context.Context, affiliateID uint) (float64, error)
	ListPayoutRequests(ctx context.Context, params *dto.PayoutQuery) ([]entity.DbPayoutRequest, *entity.Meta, error)
	TransitionPayoutRequest(ctx context.Context, id uint, fromStatuses []string, updates entity.PayoutUpdates) (bool, error)

	// 运营配置
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	ListSettings(ctx context.Context) ([]entity.DbSetting, error)

	// 支付网关回调事件。InsertWebhookEvent 对 (provider, event id) 去重，
	// 返回 false 表示该事件已被记录过。
	InsertWebhookEvent(ctx context.Context, event *entity.DbWebhookEvent) (bool, error)
	MarkWebhookEventProcessed(ctx context.Context, id uint, processingError string) error
	DeleteWebhookEvent(ctx context.Context, id uint) error
}
