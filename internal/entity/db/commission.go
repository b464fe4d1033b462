package db

import "time"

const (
	CommissionSourceFreeReferral = "free_referral_activated"
	CommissionSourceSubscription = "subscription_commission"
)

// Commission 记录推广人因被推荐账户的合格行为而获得的佣金，写入后不可变。
//
// 对 free_referral_activated 来源，(affiliate, referred) 组合唯一，
// 重复触发同一事件不会产生第二条佣金。
type Commission struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	AffiliateID uint  `gorm:"column:affiliate_id;index;not null;uniqueIndex:ux_commission_pair_source,priority:1" json:"affiliate_id"`
	Affiliate   *User `gorm:"foreignKey:AffiliateID" json:"-"`

	ReferredID uint  `gorm:"column:referred_id;not null;uniqueIndex:ux_commission_pair_source,priority:2" json:"referred_id"`
	Referred   *User `gorm:"foreignKey:ReferredID" json:"-"`

	SourceEvent string `gorm:"column:source_event;type:varchar(64);not null;uniqueIndex:ux_commission_pair_source,priority:3" json:"source_event"`

	// SourceRef 区分同一来源下的不同订阅周期，免费推荐恒为空串
	SourceRef string `gorm:"column:source_ref;type:varchar(255);not null;default:'';uniqueIndex:ux_commission_pair_source,priority:4" json:"source_ref,omitempty"`

	AmountEarned float64 `gorm:"column:amount_earned;not null" json:"amount_earned"`
}

// TableName 指定表名
func (Commission) TableName() string {
	return "affiliate_commissions"
}
