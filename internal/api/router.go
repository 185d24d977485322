package api

import (
	"strings"
	"sync"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/d60-Lab/community-messaging/config"
	_ "github.com/d60-Lab/community-messaging/docs"
	"github.com/d60-Lab/community-messaging/internal/api/handler"
	"github.com/d60-Lab/community-messaging/internal/api/middleware"
)

const wsPath = "/api/v1/ws"

var registerOnce sync.Once

// registerValidators 注册自定义校验规则 notblank
func registerValidators() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
				return strings.TrimSpace(fl.Field().String()) != ""
			})
		}
	})
}

// NewRouter 组装路由与中间件
func NewRouter(cfg *config.Config, h *handler.Handler, tokens *middleware.TokenIssuer, limiter *middleware.UserRateLimiter) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	registerValidators()

	r := gin.New()
	r.Use(gin.Recovery(), middleware.Logger())
	if cfg.Sentry.DSN != "" {
		r.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	if cfg.Tracing.Enabled {
		r.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	}
	// websocket 握手不能经过 gzip
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{wsPath})))

	r.GET("/health", handler.Health)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := r.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		auth.POST("/register", h.Register)
		auth.POST("/login", h.Login)
	}

	authed := v1.Group("")
	authed.Use(middleware.Auth(tokens))
	{
		authed.GET("/ws", h.ServeWS)

		messages := authed.Group("/messages")
		messages.POST("", middleware.RateLimit(limiter), h.SendMessage)
		messages.PUT("/:id", h.EditMessage)
		messages.DELETE("/:id", h.DeleteMessage)
		messages.GET("/unread-count", h.UnreadCount)
		messages.GET("/with/:user_id", h.ListConversationMessages)
		messages.POST("/with/:user_id/read", h.MarkConversationRead)
		messages.DELETE("/with/:user_id", h.DeleteConversation)

		authed.GET("/conversations", h.ListConversations)

		blocks := authed.Group("/blocks")
		blocks.GET("", h.ListBlocked)
		blocks.POST("/:user_id", h.BlockUser)
		blocks.DELETE("/:user_id", h.UnblockUser)
		blocks.GET("/:user_id/status", h.BlockStatus)

		authed.GET("/notifications", h.ListNotifications)
	}

	return r
}
