package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"dm-chat/internal/config"
	"dm-chat/internal/db"
	apihttp "dm-chat/internal/http"
	"dm-chat/internal/presence"
	"dm-chat/internal/repository"
	"dm-chat/internal/service"
	"dm-chat/internal/ws"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()
	if err := db.Ping(ctx, pool); err != nil {
		logger.Fatal("db ping", zap.Error(err))
	}

	userRepo := repository.NewPgUserRepository(pool)
	messageStore := repository.NewPgMessageStore(pool)

	var (
		tokenStore  service.RefreshTokenStore
		sendLimiter service.SendRateLimiter
	)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
		} else {
			tokenStore = service.NewRedisRefreshTokenStore(redisClient)
			sendLimiter = service.NewRedisSendRateLimiter(
				redisClient,
				time.Duration(cfg.SendRateWindowSecs)*time.Second,
				cfg.SendRateMax,
			)
		}
		cancel()
	}

	jwtSvc := service.NewJWTService(
		cfg.JWTSecret,
		time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute,
		time.Duration(cfg.JWTRefreshTTLMinutes)*time.Minute,
		tokenStore,
	)
	userSvc := service.NewUserService(logger, userRepo)

	registry := presence.NewRegistry()
	hub := ws.NewHub(logger)
	chatSvc := service.NewChatService(logger, messageStore, registry, hub, sendLimiter)
	gateway := ws.NewGateway(logger, chatSvc, hub)

	uploadSvc, err := service.NewUploadService(cfg.UploadDir, cfg.BaseURL)
	if err != nil {
		logger.Fatal("upload dir", zap.Error(err))
	}

	authHandler := apihttp.NewAuthHandler(logger, userSvc, jwtSvc)
	userHandler := apihttp.NewUserHandler(logger, userSvc)
	messageHandler := apihttp.NewMessageHandler(logger, chatSvc)
	uploadHandler := apihttp.NewUploadHandler(logger, uploadSvc)
	wsHandler := apihttp.NewWSHandler(logger, jwtSvc, gateway)

	router := apihttp.NewRouter(logger, jwtSvc, authHandler, userHandler, messageHandler, uploadHandler, wsHandler, cfg.UploadDir)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting server", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}
