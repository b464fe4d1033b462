package entity

import "time"

// UserUpdates 用户更新字段
type UserUpdates struct {
	DisplayName  *string
	Role         *string
	PasswordHash *string
	IsActive     *bool
	ReferredByID *uint
}

// ToMap 转换为 GORM 更新 map（内部使用）
func (u UserUpdates) ToMap() map[string]interface{} {
	updates := make(map[string]interface{})
	if u.DisplayName != nil {
		updates["display_name"] = *u.DisplayName
	}
	if u.Role != nil {
		updates["role"] = *u.Role
	}
	if u.PasswordHash != nil {
		updates["password_hash"] = *u.PasswordHash
	}
	if u.IsActive != nil {
		updates["is_active"] = *u.IsActive
	}
	if u.ReferredByID != nil {
		updates["referred_by_id"] = *u.ReferredByID
	}
	return updates
}

// IsEmpty 检查是否没有任何更新字段
func (u UserUpdates) IsEmpty() bool {
	return len(u.ToMap()) == 0
}

// TaskUpdates 生成任务更新字段
type TaskUpdates struct {
	Status          *string
	AudioURL        *string
	TrackURLs       *StringArray
	StoredPath      *string
	Duration        *float64
	Title           *string
	ErrorMessage    *string
	CallbackPayload *JSONMap
}

// ToMap 转换为 GORM 更新 map（内部使用）
func (u TaskUpdates) ToMap() map[string]interface{} {
	updates := make(map[string]interface{})
	if u.Status != nil {
		updates["status"] = *u.Status
	}
	if u.AudioURL != nil {
		updates["audio_url"] = *u.AudioURL
	}
	if u.TrackURLs != nil {
		updates["track_urls"] = *u.TrackURLs
	}
	if u.StoredPath != nil {
		updates["stored_path"] = *u.StoredPath
	}
	if u.Duration != nil {
		updates["duration"] = *u.Duration
	}
	if u.Title != nil {
		updates["title"] = *u.Title
	}
	if u.ErrorMessage != nil {
		updates["error_message"] = *u.ErrorMessage
	}
	if u.CallbackPayload != nil {
		updates["callback_payload"] = *u.CallbackPayload
	}
	return updates
}

// IsEmpty 检查是否没有任何更新字段
func (u TaskUpdates) IsEmpty() bool {
	return len(u.ToMap()) == 0
}

// PayoutUpdates 提现申请更新字段
type PayoutUpdates struct {
	Status        *string
	ReviewerNotes *string
	ProcessedAt   *time.Time
}

// ToMap 转换为 GORM 更新 map（内部使用）
func (u PayoutUpdates) ToMap() map[string]interface{} {
	updates := make(map[string]interface{})
	if u.Status != nil {
		updates["status"] = *u.Status
	}
	if u.ReviewerNotes != nil {
		updates["reviewer_notes"] = *u.ReviewerNotes
	}
	if u.ProcessedAt != nil {
		updates["processed_at"] = *u.ProcessedAt
	}
	return updates
}

// IsEmpty 检查是否没有任何更新字段
func (u PayoutUpdates) IsEmpty() bool {
	return len(u.ToMap()) == 0
}
