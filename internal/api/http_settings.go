package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"melodyverse/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type settingEntry struct {
	Key          string    `json:"key"`
	Value        string    `json:"value"`
	ExpectedType string    `json:"expected_type"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type settingUpdateRequest struct {
	Value string `json:"value" binding:"required"`
}

// ListSettings 管理员查看全部运营配置。
func (h *HTTPHandler) ListSettings(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	rows, err := h.repo.ListSettings(ctx)
	if err != nil {
		logrus.WithError(err).Error("failed to list settings")
		InternalError(c, "failed to load settings")
		return
	}

	entries := make([]settingEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, settingEntry{
			Key:          row.Key,
			Value:        row.Value,
			ExpectedType: model.SettingExpectedType(row.Key),
			UpdatedAt:    row.UpdatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"settings": entries})
}

// UpdateSetting 管理员更新单个配置键。值按原样存储，
// 读取方负责解析并在值非法时拒绝相关操作。
func (h *HTTPHandler) UpdateSetting(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		BadRequest(c, ErrCodeInvalidRequest, "setting key is required")
		return
	}
	if !model.IsKnownSettingKey(key) {
		NotFound(c, ErrCodeNotFound, "unknown setting key")
		return
	}

	var req settingUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.repo.SetSetting(ctx, key, strings.TrimSpace(req.Value)); err != nil {
		logrus.WithError(err).Error("failed to update setting")
		InternalError(c, "failed to update setting")
		return
	}

	logrus.WithFields(logrus.Fields{
		"setting_key": key,
	}).Info("setting_updated")

	c.JSON(http.StatusOK, gin.H{"key": key, "value": strings.TrimSpace(req.Value)})
}
