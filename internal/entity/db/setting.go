package db

import "time"

// Setting 是运营配置的键值存储（佣金比例、提现门槛、网关开关等）。
type Setting struct {
	Key       string    `gorm:"column:key;type:varchar(128);primarykey" json:"key"`
	Value     string    `gorm:"column:value;type:text;not null" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 指定表名
func (Setting) TableName() string {
	return "settings"
}
