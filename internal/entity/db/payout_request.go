package db

import "time"

const (
	PayoutStatusPending  = "pending"
	PayoutStatusApproved = "approved"
	PayoutStatusRejected = "rejected"
	PayoutStatusPaid     = "paid"
)

// PayoutRequest 是推广人针对未结算佣金发起的提现申请。
// 状态只能前进：pending → approved/rejected，approved → paid。
type PayoutRequest struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	AffiliateID uint  `gorm:"column:affiliate_id;index;not null" json:"affiliate_id"`
	Affiliate   *User `gorm:"foreignKey:AffiliateID" json:"-"`

	RequestedAmount float64 `gorm:"column:requested_amount;not null" json:"requested_amount"`
	FeePercent      float64 `gorm:"column:fee_percent;not null" json:"fee_percent"` // 申请时刻的手续费快照

	Status        string     `gorm:"column:status;type:varchar(32);index;not null" json:"status"`
	ReviewerNotes string     `gorm:"column:reviewer_notes;type:text" json:"reviewer_notes"`
	ProcessedAt   *time.Time `gorm:"column:processed_at" json:"processed_at,omitempty"`
}

// TableName 指定表名
func (PayoutRequest) TableName() string {
	return "payout_requests"
}

// Reserved reports whether the request still counts against the affiliate's
// available balance.
func (p *PayoutRequest) Reserved() bool {
	return p != nil && p.Status != PayoutStatusRejected
}
