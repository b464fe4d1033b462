package dto

import (
	"melodyverse/internal/entity/common"
	"time"
)

// GenerateSongRequest is the request payload for song generation.
type GenerateSongRequest struct {
	Prompt       string `json:"prompt" binding:"required"`
	Style        string `json:"style,omitempty"`
	Title        string `json:"title,omitempty"`
	Mode         string `json:"mode,omitempty"` // prompt 或 lyrics，默认 prompt
	Instrumental bool   `json:"instrumental,omitempty"`
	Model        string `json:"model,omitempty"` // 留空使用服务端默认模型
}

// TaskSummary describes a generation task to clients.
type TaskSummary struct {
	ID               uint      `json:"id"`
	Status           string    `json:"status"`
	Prompt           string    `json:"prompt"`
	Style            string    `json:"style,omitempty"`
	Title            string    `json:"title,omitempty"`
	Mode             string    `json:"mode"`
	Instrumental     bool      `json:"instrumental"`
	Model            string    `json:"model,omitempty"`
	ExternalTaskCode string    `json:"external_task_code,omitempty"`
	AudioURL         string    `json:"audio_url,omitempty"`
	TrackURLs        []string  `json:"track_urls,omitempty"`
	StoredURL        string    `json:"stored_url,omitempty"`
	Duration         float64   `json:"duration,omitempty"`
	CreditCost       int64     `json:"credit_cost"`
	ErrorMessage     string    `json:"error_message,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TaskQuery supports listing generation tasks with pagination.
type TaskQuery struct {
	common.BaseParams
	UserID     uint   `json:"-"`
	IncludeAll bool   `json:"-"` // 管理端可查看全部用户
	Status     string `json:"status" form:"status" query:"status"`
}
