package db

import "time"

// WebhookEvent 记录支付网关回调事件，(provider, provider_event_id) 唯一，
// 用于保证每个外部事件只被套用一次。
type WebhookEvent struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Provider        string `gorm:"column:provider;type:varchar(32);not null;uniqueIndex:ux_webhook_provider_event,priority:1" json:"provider"`
	ProviderEventID string `gorm:"column:provider_event_id;type:varchar(255);not null;uniqueIndex:ux_webhook_provider_event,priority:2" json:"provider_event_id"`
	EventType       string `gorm:"column:event_type;type:varchar(128)" json:"event_type"`
	Payload         string `gorm:"column:payload;type:text" json:"-"`

	ProcessedAt     *time.Time `gorm:"column:processed_at" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"column:processing_error;type:text" json:"processing_error,omitempty"`
}

// TableName 指定表名
func (WebhookEvent) TableName() string {
	return "webhook_events"
}
