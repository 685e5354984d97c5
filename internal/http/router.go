package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dm-chat/internal/service"
)

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(
	logger *zap.Logger,
	jwtSvc *service.JWTService,
	authH *AuthHandler,
	userH *UserHandler,
	messageH *MessageHandler,
	uploadH *UploadHandler,
	wsH *WSHandler,
	uploadDir string,
) *gin.Engine {
	r := gin.New()

	r.Use(zapLoggerMiddleware(logger), gin.Recovery())

	api := r.Group("/api")
	api.POST("/signup", authH.Signup)
	api.POST("/signin", authH.Signin)
	api.POST("/auth/refresh", authH.Refresh)
	api.POST("/auth/logout", authH.Logout)

	authed := api.Group("")
	authed.Use(JWTAuthMiddleware(jwtSvc))
	authed.GET("/users", userH.ListUsers)
	authed.GET("/messages/:receiverId", messageH.GetConversation)
	authed.DELETE("/messages", messageH.PurgeMessages)
	authed.POST("/upload", uploadH.Upload)

	// El WebSocket autentica por token en la query, no por header.
	r.GET("/ws", wsH.Serve)

	r.Static("/uploads", uploadDir)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
