package db

import (
	"melodyverse/internal/entity/common"
	"time"
)

const (
	TaskStatusPending    = "pending"
	TaskStatusProcessing = "processing"
	TaskStatusCompleted  = "completed"
	TaskStatusFailed     = "failed"
)

const (
	GenerationModePrompt = "prompt"
	GenerationModeLyrics = "lyrics"
)

// GenerationTask stores one requested song generation and its lifecycle.
//
// ExternalTaskCode is assigned by the provider on acceptance and is immutable
// afterwards. Status only moves forward: pending → processing → completed/failed.
type GenerationTask struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID uint  `gorm:"column:user_id;index" json:"user_id"`
	User   *User `gorm:"foreignKey:UserID" json:"-"`

	Prompt       string `gorm:"column:prompt;type:text" json:"prompt"`
	Style        string `gorm:"column:style;type:varchar(255)" json:"style"`
	Title        string `gorm:"column:title;type:varchar(255)" json:"title"`
	Mode         string `gorm:"column:mode;type:varchar(32);index" json:"mode"`
	Instrumental bool   `gorm:"column:instrumental" json:"instrumental"`
	Model        string `gorm:"column:model;type:varchar(64)" json:"model"`

	Status string `gorm:"column:status;type:varchar(32);index;not null" json:"status"`

	ExternalTaskCode string `gorm:"column:external_task_code;type:varchar(255);uniqueIndex" json:"external_task_code"` // 外部（第三方）任务code

	AudioURL   string             `gorm:"column:audio_url;type:text" json:"audio_url"`     // 供应商返回的主音频地址
	TrackURLs  common.StringArray `gorm:"column:track_urls;type:json" json:"track_urls"`   // 一次生成可能返回多条音轨
	StoredPath string             `gorm:"column:stored_path;type:text" json:"stored_path"` // 落盘到存储后端的相对路径
	Duration   float64            `gorm:"column:duration" json:"duration"`

	CreditCost   int64  `gorm:"column:credit_cost;not null" json:"credit_cost"`
	ErrorMessage string `gorm:"column:error_message;type:text" json:"error_message"`

	CallbackPayload common.JSONMap `gorm:"column:callback_payload;type:json" json:"-"` // 最近一次回调原始负载，排障用
}

// TableName 指定表名
func (GenerationTask) TableName() string {
	return "generation_tasks"
}

// IsTerminal reports whether the task reached a final state.
func (t *GenerationTask) IsTerminal() bool {
	return t != nil && (t.Status == TaskStatusCompleted || t.Status == TaskStatusFailed)
}
