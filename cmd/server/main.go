package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"melodyverse/internal/api"
	"melodyverse/internal/config"
	"melodyverse/internal/model"
	"melodyverse/internal/songapi"
	"melodyverse/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

func main() {
	// 初始化配置
	cfg, err := config.ParseConfig()
	if err != nil {
		logrus.WithError(err).Error("Failed to parse config")
		return
	}

	// 初始化logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	repo, err := model.InitRepository(&cfg)
	if err != nil {
		logrus.WithError(err).Error("failed to initialise repository")
		return
	}

	if repo != nil {
		if err := model.SeedDefaultSettings(context.Background(), repo); err != nil {
			logrus.WithError(err).Warn("failed to seed default settings")
		}
	}

	store, err := storage.NewStorage(cfg)
	if err != nil {
		logrus.WithError(err).Error("failed to initialise storage")
		return
	}

	songClient, err := songapi.NewClient(cfg)
	if err != nil {
		logrus.WithError(err).Error("failed to initialise song api client")
		return
	}

	httpHandler, err := api.NewHTTPHandler(cfg, repo, store, songClient)
	if err != nil {
		logrus.WithError(err).Error("failed to initialise http handler")
		return
	}

	// 定时补偿：轮询长时间未收到回调的任务
	sweeper := cron.New()
	sweepSpec := fmt.Sprintf("@every %dm", cfg.SweepIntervalMinutes)
	_, err = sweeper.AddFunc(sweepSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		httpHandler.GenerationService().SweepStale(ctx,
			time.Duration(cfg.SweepStaleAfterMinutes)*time.Minute,
			time.Duration(cfg.SweepFailAfterMinutes)*time.Minute,
			50)
	})
	if err != nil {
		logrus.WithError(err).Error("failed to schedule reconcile sweep")
		return
	}
	sweeper.Start()
	defer sweeper.Stop()

	// 设置Gin模式
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// 添加中间件
	r.Use(LoggingMiddleware())
	r.Use(CORSMiddleware())
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	apiGroup := r.Group("/api")

	authGroup := apiGroup.Group("/auth")
	authGroup.GET("/status", httpHandler.AuthStatus)
	authGroup.POST("/register", httpHandler.Register)
	authGroup.POST("/login", httpHandler.Login)
	authGroup.GET("/me", httpHandler.AuthMiddleware(), httpHandler.Me)

	// 回调不走鉴权，由各自的签名/任务归属校验保护
	callbacks := apiGroup.Group("/callbacks")
	callbacks.POST("/generation", httpHandler.GenerationCallback)
	callbacks.POST("/payments/:gateway", httpHandler.PaymentWebhook)

	protected := apiGroup.Group("")
	protected.Use(httpHandler.AuthMiddleware())
	protected.POST("/generations", httpHandler.GenerateSong)
	protected.GET("/generations", httpHandler.ListTasks)
	protected.GET("/generations/events", httpHandler.GenerationEvents)
	protected.GET("/generations/:id", httpHandler.GetTask)
	protected.DELETE("/generations/:id", httpHandler.DeleteTask)

	protected.GET("/ledger/balance", httpHandler.GetBalance)
	protected.GET("/ledger/entries", httpHandler.ListLedgerEntries)

	protected.GET("/affiliate/referral", httpHandler.GetReferralInfo)
	protected.GET("/affiliate/commissions", httpHandler.ListCommissions)
	protected.POST("/affiliate/payouts", httpHandler.RequestPayout)
	protected.GET("/affiliate/payouts", httpHandler.ListPayouts)

	userAdmin := protected.Group("/users")
	userAdmin.Use(httpHandler.RequireAdmin())
	userAdmin.GET("", httpHandler.ListUsers)
	userAdmin.POST("", httpHandler.CreateUser)
	userAdmin.PATCH(":id", httpHandler.UpdateUser)
	userAdmin.DELETE(":id", httpHandler.DeleteUser)

	admin := protected.Group("/admin")
	admin.Use(httpHandler.RequireAdmin())
	admin.POST("/credits/adjust", httpHandler.AdjustCredits)
	admin.POST("/payouts/:id/review", httpHandler.ReviewPayout)
	admin.GET("/settings", httpHandler.ListSettings)
	admin.PUT("/settings/:key", httpHandler.UpdateSetting)

	if localProvider, ok := store.(storage.LocalBaseDirProvider); ok {
		publicPrefix := strings.TrimSpace(cfg.StoragePublicBaseURL)
		if publicPrefix == "" {
			publicPrefix = "/files"
		}
		if !strings.HasPrefix(publicPrefix, "http://") && !strings.HasPrefix(publicPrefix, "https://") {
			if !strings.HasPrefix(publicPrefix, "/") {
				publicPrefix = "/" + publicPrefix
			}
			r.Static(publicPrefix, localProvider.LocalBaseDir())
		}
	}

	serverHost := fmt.Sprintf("0.0.0.0:%s", cfg.HTTPPort)
	logger.WithField("host", serverHost).Info("服务器启动")
	// 创建HTTP服务器
	httpServer := &http.Server{
		Addr:         serverHost,
		Handler:      r,
		ReadTimeout:  900 * time.Second,
		WriteTimeout: 900 * time.Second,
		IdleTimeout:  1200 * time.Second,
	}
	err = httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		logger.WithError(err).Error("服务器启动失败")
	}
}

// CORSMiddleware CORS跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		c.Header("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// LoggingMiddleware 日志记录中间件
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		// 处理请求
		c.Next()
		// 记录请求结束
		duration := time.Since(start)
		logrus.WithFields(logrus.Fields{
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"status":    c.Writer.Status(),
			"duration":  duration.String(),
			"size":      c.Writer.Size(),
			"client_ip": c.ClientIP(),
		}).Info("http_request")
	}
}
