// Package main runs the issue tracker HTTP server with WebSocket fan-out and
// graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/trackhive/backend/config"
	"github.com/trackhive/backend/internal/auth"
	"github.com/trackhive/backend/internal/authz"
	"github.com/trackhive/backend/internal/issues"
	"github.com/trackhive/backend/internal/memberships"
	"github.com/trackhive/backend/internal/middleware"
	"github.com/trackhive/backend/internal/organizations"
	"github.com/trackhive/backend/internal/projects"
	"github.com/trackhive/backend/internal/realtime"
	"github.com/trackhive/backend/pkg/database"
	"github.com/trackhive/backend/pkg/redis"
	"github.com/trackhive/backend/pkg/response"
	"github.com/trackhive/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			Bucket:               cfg.AWS.AttachmentsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("attachment storage disabled", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	bus := realtime.NewRedisBus(rdb.Client, logger)
	hub := realtime.NewHub(logger, bus)

	authzEngine := authz.NewEngine(authz.NewRepository(pool))

	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	orgRepo := organizations.NewRepository(pool)
	orgHandler := organizations.NewHandler(orgRepo, authzEngine)

	membershipRepo := memberships.NewRepository(pool)
	membershipHandler := memberships.NewHandler(membershipRepo)

	projectRepo := projects.NewRepository(pool)
	projectHandler := projects.NewHandler(projectRepo, authzEngine)

	issueRepo := issues.NewRepository(pool)
	var uploads issues.Uploader
	if s3Client != nil {
		uploads = s3Client
	}
	issueHandler := issues.NewHandler(issueRepo, authzEngine, bus, uploads, logger)

	wsValidate := func(token string) (uuid.UUID, error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return uuid.Nil, err
		}
		return claims.UserID, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	v1 := router.Group("/api/v1")

	authGroup := v1.Group("/auth")
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
	}

	api := v1.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.POST("/organizations", orgHandler.Create)
		api.GET("/organizations", orgHandler.List)
		api.GET("/organizations/:id", orgHandler.Get)
		api.PATCH("/organizations/:id", orgHandler.Update)
		api.DELETE("/organizations/:id", orgHandler.Delete)
		api.GET("/organizations/:id/members", orgHandler.Members)

		api.GET("/memberships", membershipHandler.List)
		api.GET("/memberships/:id", membershipHandler.Get)

		api.POST("/projects", projectHandler.Create)
		api.GET("/projects", projectHandler.List)
		api.GET("/projects/:id", projectHandler.Get)
		api.PATCH("/projects/:id", projectHandler.Update)
		api.DELETE("/projects/:id", projectHandler.Delete)

		api.POST("/issues", issueHandler.Create)
		api.GET("/issues", issueHandler.List)
		api.GET("/issues/:id", issueHandler.Get)
		api.PATCH("/issues/:id", issueHandler.Update)
		api.DELETE("/issues/:id", issueHandler.Delete)
		api.POST("/issues/:id/upload", issueHandler.Upload)
		api.GET("/issues/:id/attachments", issueHandler.Attachments)
	}

	// WebSocket (token in query; no Authorization header on the handshake)
	router.GET("/ws/projects/:project_id", realtime.ServeProjectWS(hub, authzEngine, wsValidate, logger))
	router.GET("/ws/notifications", realtime.ServeNotificationsWS(logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
