package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"melodyverse/internal/entity/converter"
	"melodyverse/internal/entity/dto"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// GenerateSong 提交一次歌曲生成。
func (h *HTTPHandler) GenerateSong(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		Unauthorized(c, "authentication required")
		return
	}

	var req dto.GenerateSongRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 60*time.Second)
	defer cancel()

	task, err := h.generationService.SubmitGeneration(ctx, user.ID, req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, converter.TaskToSummary(task, h.publicURL(task.StoredPath)))
}

// ListTasks 查询当前用户的生成任务，管理员可带 all=1 查看全部。
func (h *HTTPHandler) ListTasks(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		Unauthorized(c, "authentication required")
		return
	}

	var query dto.TaskQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		BadRequest(c, ErrCodeInvalidRequest, "invalid query parameters")
		return
	}
	query.UserID = user.ID
	query.IncludeAll = user.IsAdmin() && c.Query("all") == "1"

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	tasks, meta, err := h.repo.ListGenerationTasks(ctx, &query)
	if err != nil {
		logrus.WithError(err).Error("failed to list generation tasks")
		InternalError(c, "failed to load tasks")
		return
	}

	summaries := make([]dto.TaskSummary, 0, len(tasks))
	for idx := range tasks {
		summaries = append(summaries, converter.TaskToSummary(&tasks[idx], h.publicURL(tasks[idx].StoredPath)))
	}

	c.JSON(http.StatusOK, gin.H{"tasks": summaries, "meta": meta})
}

// GetTask 查询单个任务。非终态任务顺带向供应商拉一次最新状态，
// 作为回调丢失时的同步兜底。
func (h *HTTPHandler) GetTask(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		Unauthorized(c, "authentication required")
		return
	}

	taskID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || taskID == 0 {
		BadRequest(c, ErrCodeInvalidRequest, "invalid task id")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	task, err := h.generationService.PollStatus(ctx, user.ID, uint(taskID), user.IsAdmin())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, converter.TaskToSummary(task, h.publicURL(task.StoredPath)))
}

// DeleteTask 删除一个任务记录，不退积分。
func (h *HTTPHandler) DeleteTask(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		Unauthorized(c, "authentication required")
		return
	}

	taskID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || taskID == 0 {
		BadRequest(c, ErrCodeInvalidRequest, "invalid task id")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	task, err := h.repo.GetGenerationTask(ctx, uint(taskID))
	if err != nil {
		NotFound(c, ErrCodeTaskNotFound, "task not found")
		return
	}
	if task.UserID != user.ID && !user.IsAdmin() {
		Forbidden(c, "access denied")
		return
	}

	if err := h.repo.DeleteGenerationTask(ctx, uint(taskID)); err != nil {
		logrus.WithError(err).WithField("task_id", taskID).Error("failed to delete task")
		InternalError(c, "failed to delete task")
		return
	}

	c.Status(http.StatusNoContent)
}

// GenerationEvents 订阅生成完成事件（SSE）。以用户号为客户端标识。
func (h *HTTPHandler) GenerationEvents(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		Unauthorized(c, "authentication required")
		return
	}

	clientID := strconv.FormatUint(uint64(user.ID), 10)
	ch := make(chan sseMessage, 8)
	h.registerSSEClient(clientID, ch)
	defer h.unregisterSSEClient(clientID, ch)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.Flush()

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-keepalive.C:
			c.SSEvent("ping", gin.H{"ts": time.Now().Unix()})
			c.Writer.Flush()
		case msg := <-ch:
			c.SSEvent(msg.event, msg.data)
			c.Writer.Flush()
		}
	}
}
