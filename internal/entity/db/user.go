package db

import "time"

const (
	UserRoleSuperAdmin = "super_admin"
	UserRoleAdmin      = "admin"
	UserRoleUser       = "user"
)

// User 表示持久化的用户账户。
//
// Credits 是物化的积分余额，只允许通过 repository 的条件更新修改，
// 始终与 ledger_entries 中该账户 delta 之和一致。
type User struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Email        string    `gorm:"column:email;type:varchar(255);uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"column:password_hash;type:varchar(255);not null" json:"-"`
	DisplayName  string    `gorm:"column:display_name;type:varchar(255)" json:"display_name"`
	Role         string    `gorm:"column:role;type:varchar(50);index;not null" json:"role"`
	IsActive     bool      `gorm:"column:is_active;not null;default:true" json:"is_active"`

	Credits int64 `gorm:"column:credits;not null;default:0" json:"credits"`

	ReferralCode string `gorm:"column:referral_code;type:varchar(64);uniqueIndex" json:"referral_code"`
	ReferredByID *uint  `gorm:"column:referred_by_id;index" json:"referred_by_id,omitempty"`
}

// TableName 指定表名。
func (User) TableName() string {
	return "users"
}
