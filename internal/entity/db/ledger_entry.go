package db

import "time"

const (
	LedgerReasonGenerationCharge  = "generation_charge"
	LedgerReasonAdminAdjustment   = "admin_adjustment"
	LedgerReasonPurchaseCredit    = "purchase_credit"
	LedgerReasonSubscriptionGrant = "subscription_grant"
)

// LedgerEntry 是不可变的积分流水记录，只追加、不更新、不删除。
// 账户余额永远等于该账户所有 Delta 之和。
type LedgerEntry struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	UserID uint  `gorm:"column:user_id;index;not null" json:"user_id"`
	User   *User `gorm:"foreignKey:UserID" json:"-"`

	Delta  int64  `gorm:"column:delta;not null" json:"delta"`
	Reason string `gorm:"column:reason;type:varchar(64);index;not null" json:"reason"`

	RelatedTaskID *uint `gorm:"column:related_task_id;index" json:"related_task_id,omitempty"`

	// Reference 保存支付网关回调等外部事件的关联ID，用于幂等对账
	Reference string `gorm:"column:reference;type:varchar(255);index" json:"reference,omitempty"`
}

// TableName 指定表名
func (LedgerEntry) TableName() string {
	return "ledger_entries"
}
