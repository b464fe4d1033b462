package api

import (
	"errors"
	"strings"
	"sync"
	"time"

	"melodyverse/internal/auth"
	"melodyverse/internal/config"
	"melodyverse/internal/model"
	"melodyverse/internal/payment"
	"melodyverse/internal/service"
	"melodyverse/internal/settings"
	"melodyverse/internal/songapi"
	"melodyverse/internal/storage"

	"github.com/gin-gonic/gin"
)

// HTTPHandler HTTP 请求处理器
type HTTPHandler struct {
	cfg               config.Config
	repo              model.Repository
	storage           storage.Storage
	storagePublicBase string
	authManager       *auth.Manager

	// 服务层
	generationService *service.GenerationService
	ledgerService     *service.LedgerService
	affiliateService  *service.AffiliateService
	paymentService    *service.PaymentService

	// SSE 客户端管理
	sseClients map[string][]chan sseMessage
	sseMu      sync.Mutex
}

// NewHTTPHandler 创建 HTTP 处理器实例
func NewHTTPHandler(cfg config.Config, repo model.Repository, store storage.Storage, songClient *songapi.Client) (*HTTPHandler, error) {
	expiry := time.Duration(cfg.JWTExpirationMinutes) * time.Minute
	authManager, err := auth.NewManager(cfg.JWTSecret, cfg.JWTIssuer, expiry)
	if err != nil {
		return nil, err
	}

	settingsProvider := settings.NewProvider(repo)

	generationSvc := service.NewGenerationService(repo, store, songClient, settingsProvider, cfg.PublicBaseURL)
	ledgerSvc := service.NewLedgerService(repo)
	affiliateSvc := service.NewAffiliateService(repo, settingsProvider)
	paymentSvc := service.NewPaymentService(repo, settingsProvider, ledgerSvc, affiliateSvc,
		payment.NewStripeGateway(cfg.StripeWebhookSecret),
		payment.NewPaystackGateway(cfg.PaystackWebhookSecret),
	)

	handler := &HTTPHandler{
		cfg:               cfg,
		repo:              repo,
		storage:           store,
		storagePublicBase: normalisePublicBase(cfg.StoragePublicBaseURL),
		authManager:       authManager,
		generationService: generationSvc,
		ledgerService:     ledgerSvc,
		affiliateService:  affiliateSvc,
		paymentService:    paymentSvc,
		sseClients:        make(map[string][]chan sseMessage),
	}

	// 设置 SSE 通知回调
	generationSvc.SetNotifyFunc(handler.notifyGenerationComplete)

	return handler, nil
}

// GenerationService 暴露生成服务，供定时巡检等外围组件使用。
func (h *HTTPHandler) GenerationService() *service.GenerationService {
	return h.generationService
}

// normalisePublicBase 规范化公共 URL 基础路径
func normalisePublicBase(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		trimmed = "/files"
	}
	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		return strings.TrimRight(trimmed, "/")
	}
	if !strings.HasPrefix(trimmed, "/") {
		trimmed = "/" + trimmed
	}
	return strings.TrimRight(trimmed, "/")
}

// notifyGenerationComplete 通知生成完成（用于 SSE 推送）
func (h *HTTPHandler) notifyGenerationComplete(clientID string, taskID uint, status string, errMsg string) {
	if strings.TrimSpace(clientID) == "" {
		return
	}
	payload := gin.H{
		"task_id": taskID,
		"status":  status,
	}
	if trimmed := strings.TrimSpace(errMsg); trimmed != "" {
		payload["error"] = trimmed
	}
	h.publishSSEMessage(clientID, sseMessage{
		event: "generation_completed",
		data:  payload,
	})
}

// respondServiceError 把业务层错误映射为统一的 API 错误响应。
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, model.ErrInsufficientCredits):
		ErrorResponse(c, 402, ErrCodeInsufficientCredits, "insufficient credits")
	case errors.Is(err, songapi.ErrProviderUnavailable):
		ErrorResponse(c, 502, ErrCodeProviderUnavailable, "generation provider unavailable, try again later")
	case errors.Is(err, songapi.ErrProviderRejected):
		ErrorResponse(c, 422, ErrCodeProviderRejected, err.Error())
	case errors.Is(err, settings.ErrSettingUnavailable):
		ErrorResponse(c, 503, ErrCodeSettingsUnavailable, "required settings are missing or invalid")
	case errors.Is(err, service.ErrBelowMinimumPayout):
		ErrorResponse(c, 400, ErrCodeBelowMinimumPayout, err.Error())
	case errors.Is(err, service.ErrInsufficientPayoutBalance):
		ErrorResponse(c, 400, ErrCodeInsufficientPayoutBalance, err.Error())
	case errors.Is(err, service.ErrInvalidTransition):
		Conflict(c, ErrCodeInvalidTransition, err.Error())
	case errors.Is(err, service.ErrPermissionDenied):
		Forbidden(c, "access denied")
	case errors.Is(err, service.ErrNotFound):
		NotFound(c, ErrCodeNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidInput):
		BadRequest(c, ErrCodeInvalidRequest, err.Error())
	default:
		InternalError(c, "internal error")
	}
}
