package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"melodyverse/internal/entity"
	"melodyverse/internal/entity/dto"
	"melodyverse/internal/model"
	"melodyverse/internal/settings"
	"melodyverse/internal/songapi"
	"melodyverse/internal/storage"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	promptModeMaxChars = 400
	lyricsModeMaxChars = 5000
	// 低配模型在歌词模式下的上限更低
	lyricsModeBasicMaxChars = 3000

	downloadTimeout = 5 * time.Minute
	maxAudioBytes   = 100 << 20
)

// GenerationService 歌曲生成服务，封装提交、回调对账与兜底轮询。
type GenerationService struct {
	repo       model.Repository
	storage    storage.Storage
	songClient *songapi.Client
	settings   *settings.Provider

	callbackBaseURL string

	// notifyFunc 用于通知生成完成事件（由调用方设置）
	notifyFunc func(clientID string, taskID uint, status string, errMsg string)
}

// NewGenerationService 创建生成服务实例
func NewGenerationService(repo model.Repository, store storage.Storage, songClient *songapi.Client, settingsProvider *settings.Provider, callbackBaseURL string) *GenerationService {
	return &GenerationService{
		repo:            repo,
		storage:         store,
		songClient:      songClient,
		settings:        settingsProvider,
		callbackBaseURL: strings.TrimRight(strings.TrimSpace(callbackBaseURL), "/"),
	}
}

// SetNotifyFunc 设置通知函数（用于 SSE 推送）
func (s *GenerationService) SetNotifyFunc(fn func(clientID string, taskID uint, status string, errMsg string)) {
	s.notifyFunc = fn
}

// SubmitGeneration 校验参数、调用供应商并在同一事务中扣减积分、创建任务。
// 先调供应商后扣费：供应商拒绝时不产生任何扣减和任务记录。
func (s *GenerationService) SubmitGeneration(ctx context.Context, userID uint, req dto.GenerateSongRequest) (*entity.DbGenerationTask, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("generation service not initialised")
	}

	mode := strings.TrimSpace(req.Mode)
	if mode == "" {
		mode = entity.GenerationModePrompt
	}
	if err := validatePromptSpec(mode, req); err != nil {
		return nil, err
	}

	cost, err := s.settings.GenerationCost(ctx)
	if err != nil {
		return nil, err
	}
	if cost <= 0 {
		return nil, fmt.Errorf("%w: generation cost must be positive", settings.ErrSettingUnavailable)
	}

	// 提前拦截明显的余额不足，避免白白占用供应商额度；
	// 最终仍以事务内的条件扣减为准。
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if user.Credits < cost {
		return nil, model.ErrInsufficientCredits
	}

	externalTaskCode, err := s.songClient.Submit(ctx, songapi.SubmitRequest{
		Prompt:       req.Prompt,
		Style:        req.Style,
		Title:        req.Title,
		Instrumental: req.Instrumental,
		CustomMode:   mode == entity.GenerationModeLyrics,
		Model:        req.Model,
		CallbackURL:  s.callbackURL(),
	})
	if err != nil {
		return nil, err
	}

	task := &entity.DbGenerationTask{
		UserID:           userID,
		Prompt:           req.Prompt,
		Style:            strings.TrimSpace(req.Style),
		Title:            strings.TrimSpace(req.Title),
		Mode:             mode,
		Instrumental:     req.Instrumental,
		Model:            strings.TrimSpace(req.Model),
		Status:           entity.TaskStatusPending,
		ExternalTaskCode: externalTaskCode,
		CreditCost:       cost,
	}

	if err := s.repo.CreateGenerationTaskCharged(ctx, task); err != nil {
		// 供应商已接单但扣费失败（并发下余额被用掉）。任务不落库，
		// 供应商侧结果到达时会按 TaskNotFound 软忽略。
		logrus.WithError(err).WithFields(logrus.Fields{
			"user_id":            userID,
			"external_task_code": externalTaskCode,
		}).Warn("charge failed after provider accepted task")
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"task_id":            task.ID,
		"user_id":            userID,
		"external_task_code": externalTaskCode,
		"credit_cost":        cost,
	}).Info("generation_task_submitted")

	return task, nil
}

func validatePromptSpec(mode string, req dto.GenerateSongRequest) error {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return fmt.Errorf("%w: prompt is required", ErrInvalidInput)
	}

	switch mode {
	case entity.GenerationModePrompt:
		if len([]rune(prompt)) > promptModeMaxChars {
			return fmt.Errorf("%w: prompt exceeds %d characters", ErrInvalidInput, promptModeMaxChars)
		}
	case entity.GenerationModeLyrics:
		if strings.TrimSpace(req.Title) == "" {
			return fmt.Errorf("%w: title is required in lyrics mode", ErrInvalidInput)
		}
		limit := lyricsModeMaxChars
		if isBasicModel(req.Model) {
			limit = lyricsModeBasicMaxChars
		}
		if len([]rune(prompt)) > limit {
			return fmt.Errorf("%w: lyrics exceed %d characters", ErrInvalidInput, limit)
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidInput, mode)
	}
	return nil
}

// isBasicModel 判断模型是否属于低配档位（歌词长度上限更低）。
func isBasicModel(model string) bool {
	normalized := strings.ToUpper(strings.TrimSpace(model))
	return normalized == "" || strings.HasPrefix(normalized, "V3")
}

func (s *GenerationService) callbackURL() string {
	if s.callbackBaseURL == "" {
		return ""
	}
	return s.callbackBaseURL + "/api/callbacks/generation"
}

// Reconcile 处理供应商回调。任务找不到时返回 nil（软忽略），
// 终态任务不会被后到的中间态回调拉回。
func (s *GenerationService) Reconcile(ctx context.Context, payload []byte) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("generation service not initialised")
	}

	record, err := songapi.ParseCallback(payload)
	if err != nil {
		logrus.WithError(err).Warn("generation callback unparseable")
		return err
	}

	task, err := s.lookupTask(ctx, record.ExternalTaskID)
	if err != nil {
		return err
	}
	if task == nil {
		// 供应商可能对已删除或已处理的任务重复投递
		logrus.WithField("external_task_code", record.ExternalTaskID).Info("generation callback for unknown task ignored")
		return nil
	}

	return s.applyRecord(ctx, task, record, payload)
}

// lookupTask 先按外部任务号精确查找，找不到时退化为前缀匹配，
// 容忍上游重试时信封携带的任务号被截断或拼接后缀。
func (s *GenerationService) lookupTask(ctx context.Context, externalTaskCode string) (*entity.DbGenerationTask, error) {
	code := strings.TrimSpace(externalTaskCode)
	if code == "" {
		return nil, nil
	}

	task, err := s.repo.GetGenerationTaskByExternalCode(ctx, code)
	if err == nil {
		return task, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	task, err = s.repo.FindGenerationTaskByExternalPrefix(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return task, nil
}

// applyRecord 把归一化后的回调结果落到任务行上。
func (s *GenerationService) applyRecord(ctx context.Context, task *entity.DbGenerationTask, record *songapi.CallbackRecord, rawPayload []byte) error {
	logEntry := logrus.WithFields(logrus.Fields{
		"task_id":            task.ID,
		"external_task_code": task.ExternalTaskCode,
		"stage":              record.Stage,
	})

	var updates entity.TaskUpdates
	if len(rawPayload) > 0 {
		snapshot := entity.JSONMap{"raw": string(rawPayload)}
		updates.CallbackPayload = &snapshot
	}

	switch record.Stage {
	case songapi.StageComplete:
		status := entity.TaskStatusCompleted
		audioURL := record.PrimaryAudioURL()
		trackURLs := entity.StringArray(record.AudioURLs())
		updates.Status = &status
		updates.AudioURL = &audioURL
		updates.TrackURLs = &trackURLs
		if len(record.Tracks) > 0 {
			if title := strings.TrimSpace(record.Tracks[0].Title); title != "" && strings.TrimSpace(task.Title) == "" {
				updates.Title = &title
			}
			if duration := record.Tracks[0].Duration; duration > 0 {
				updates.Duration = &duration
			}
		}

		applied, err := s.repo.TransitionGenerationTask(ctx, task.ID, updates)
		if err != nil {
			return err
		}
		if !applied {
			logEntry.Info("generation callback ignored, task already terminal")
			return nil
		}
		logEntry.Info("generation_task_completed")

		// 音频落盘与通知不阻塞回调响应
		go s.persistAudio(task.ID, audioURL)
		s.notifyComplete(task, entity.TaskStatusCompleted, "")
		return nil

	case songapi.StageProcessing:
		status := entity.TaskStatusProcessing
		updates.Status = &status
		applied, err := s.repo.TransitionGenerationTask(ctx, task.ID, updates)
		if err != nil {
			return err
		}
		if !applied {
			logEntry.Info("stale processing callback ignored, task already terminal")
		}
		return nil

	default:
		// 显式失败和无法识别的载荷统一按失败处理，避免任务悬挂
		status := entity.TaskStatusFailed
		errMsg := strings.TrimSpace(record.ErrorMessage)
		if errMsg == "" {
			errMsg = "generation failed"
		}
		updates.Status = &status
		updates.ErrorMessage = &errMsg

		applied, err := s.repo.TransitionGenerationTask(ctx, task.ID, updates)
		if err != nil {
			return err
		}
		if !applied {
			logEntry.Info("failure callback ignored, task already terminal")
			return nil
		}
		logEntry.WithField("error_message", errMsg).Info("generation_task_failed")
		s.notifyComplete(task, entity.TaskStatusFailed, errMsg)
		return nil
	}
}

// PollStatus 主动向供应商查询任务状态，语义与回调对账一致，可安全重复调用。
func (s *GenerationService) PollStatus(ctx context.Context, userID, taskID uint, isAdmin bool) (*entity.DbGenerationTask, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("generation service not initialised")
	}

	task, err := s.repo.GetGenerationTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: task %d", ErrNotFound, taskID)
		}
		return nil, err
	}
	if !isAdmin && task.UserID != userID {
		return nil, fmt.Errorf("%w: task %d", ErrPermissionDenied, taskID)
	}

	// 终态任务只做快照读
	if task.IsTerminal() || task.ExternalTaskCode == "" {
		return task, nil
	}

	record, err := s.songClient.QueryTask(ctx, task.ExternalTaskCode)
	if err != nil {
		logrus.WithError(err).WithField("task_id", task.ID).Warn("poll provider status failed")
		return task, nil
	}

	if err := s.applyRecord(ctx, task, record, nil); err != nil {
		return nil, err
	}
	return s.repo.GetGenerationTask(ctx, taskID)
}

// SweepStale 轮询长时间停留在非终态的任务：先问供应商要结果，
// 超过失败时限仍无结果的任务直接判失败。由定时任务驱动。
func (s *GenerationService) SweepStale(ctx context.Context, staleAfter, failAfter time.Duration, limit int) {
	if s == nil || s.repo == nil {
		return
	}

	tasks, err := s.repo.ListStaleGenerationTasks(ctx, time.Now().Add(-staleAfter), limit)
	if err != nil {
		logrus.WithError(err).Error("list stale generation tasks failed")
		return
	}

	for _, task := range tasks {
		logEntry := logrus.WithFields(logrus.Fields{
			"task_id":            task.ID,
			"external_task_code": task.ExternalTaskCode,
		})

		if task.ExternalTaskCode != "" {
			record, err := s.songClient.QueryTask(ctx, task.ExternalTaskCode)
			if err == nil {
				current := task
				if err := s.applyRecord(ctx, &current, record, nil); err != nil {
					logEntry.WithError(err).Warn("sweep apply record failed")
				}
				continue
			}
			logEntry.WithError(err).Warn("sweep provider query failed")
		}

		if time.Since(task.CreatedAt) > failAfter {
			status := entity.TaskStatusFailed
			errMsg := "timed out waiting for provider result"
			applied, err := s.repo.TransitionGenerationTask(ctx, task.ID, entity.TaskUpdates{
				Status:       &status,
				ErrorMessage: &errMsg,
			})
			if err != nil {
				logEntry.WithError(err).Warn("sweep fail transition failed")
				continue
			}
			if applied {
				logEntry.Info("generation_task_timed_out")
				current := task
				s.notifyComplete(&current, entity.TaskStatusFailed, errMsg)
			}
		}
	}
}

// persistAudio 下载供应商返回的音频并转存到自有存储。
// 下载失败只记日志，任务保持已完成状态（供应商地址仍可用）。
func (s *GenerationService) persistAudio(taskID uint, audioURL string) {
	if s == nil || s.storage == nil || strings.TrimSpace(audioURL) == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), downloadTimeout)
	defer cancel()

	data, contentType, err := downloadAudio(ctx, audioURL)
	if err != nil {
		logrus.WithError(err).WithField("task_id", taskID).Warn("download generated audio failed")
		return
	}

	storedPath, err := s.storage.Save(ctx, data, storage.SaveOptions{
		Category:  "songs",
		Extension: audioExtension(audioURL, contentType),
	})
	if err != nil {
		logrus.WithError(err).WithField("task_id", taskID).Warn("persist generated audio failed")
		return
	}

	if err := s.repo.UpdateGenerationTask(ctx, taskID, entity.TaskUpdates{StoredPath: &storedPath}); err != nil {
		logrus.WithError(err).WithField("task_id", taskID).Warn("record stored path failed")
		return
	}

	logrus.WithFields(logrus.Fields{
		"task_id":     taskID,
		"stored_path": storedPath,
	}).Info("generation_audio_persisted")
}

func downloadAudio(ctx context.Context, audioURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, "", fmt.Errorf("download audio http %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return nil, "", err
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func audioExtension(audioURL, contentType string) string {
	if ext := strings.TrimPrefix(path.Ext(strippedURLPath(audioURL)), "."); ext != "" {
		return ext
	}
	switch {
	case strings.Contains(contentType, "mpeg"), strings.Contains(contentType, "mp3"):
		return "mp3"
	case strings.Contains(contentType, "wav"):
		return "wav"
	case strings.Contains(contentType, "ogg"):
		return "ogg"
	case strings.Contains(contentType, "flac"):
		return "flac"
	case strings.Contains(contentType, "mp4"), strings.Contains(contentType, "m4a"):
		return "m4a"
	default:
		return "mp3"
	}
}

func strippedURLPath(rawURL string) string {
	if idx := strings.IndexAny(rawURL, "?#"); idx >= 0 {
		rawURL = rawURL[:idx]
	}
	return rawURL
}

func (s *GenerationService) notifyComplete(task *entity.DbGenerationTask, status, errMsg string) {
	if s == nil || s.notifyFunc == nil || task == nil {
		return
	}
	// SSE 以用户号为客户端标识
	s.notifyFunc(fmt.Sprintf("%d", task.UserID), task.ID, status, errMsg)
}
