package entity

// Re-export persistence and common types so callers can depend on the entity
// package alone.

import (
	"melodyverse/internal/entity/common"
	"melodyverse/internal/entity/db"
)

// Type aliases for common types
type StringArray = common.StringArray
type JSONMap = common.JSONMap
type Response = common.Response
type ResponseItems = common.ResponseItems
type Meta = common.Meta
type BaseParams = common.BaseParams

// Type aliases for persisted entities
type DbUser = db.User
type DbGenerationTask = db.GenerationTask
type DbLedgerEntry = db.LedgerEntry
type DbCommission = db.Commission
type DbPayoutRequest = db.PayoutRequest
type DbSetting = db.Setting
type DbWebhookEvent = db.WebhookEvent

// Constants
const (
	UserRoleSuperAdmin = db.UserRoleSuperAdmin
	UserRoleAdmin      = db.UserRoleAdmin
	UserRoleUser       = db.UserRoleUser

	TaskStatusPending    = db.TaskStatusPending
	TaskStatusProcessing = db.TaskStatusProcessing
	TaskStatusCompleted  = db.TaskStatusCompleted
	TaskStatusFailed     = db.TaskStatusFailed

	GenerationModePrompt = db.GenerationModePrompt
	GenerationModeLyrics = db.GenerationModeLyrics

	LedgerReasonGenerationCharge  = db.LedgerReasonGenerationCharge
	LedgerReasonAdminAdjustment   = db.LedgerReasonAdminAdjustment
	LedgerReasonPurchaseCredit    = db.LedgerReasonPurchaseCredit
	LedgerReasonSubscriptionGrant = db.LedgerReasonSubscriptionGrant

	CommissionSourceFreeReferral = db.CommissionSourceFreeReferral
	CommissionSourceSubscription = db.CommissionSourceSubscription

	PayoutStatusPending  = db.PayoutStatusPending
	PayoutStatusApproved = db.PayoutStatusApproved
	PayoutStatusRejected = db.PayoutStatusRejected
	PayoutStatusPaid     = db.PayoutStatusPaid
)
