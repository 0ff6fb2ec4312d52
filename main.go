// File: campushub/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campushub/config"
	"campushub/cron"
	"campushub/database"
	assignmentRepo "campushub/database/repository/assignment"
	notificationRepo "campushub/database/repository/notification"
	userRepoPkg "campushub/database/repository/user"
	"campushub/handlers"
	"campushub/middleware"
	"campushub/realtime"
	"campushub/routes"
	"campushub/services/notification"
	"campushub/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

func main() {
	config.LoadConfig()
	logger := utils.GetLogger()

	database.InitDB()
	utils.InitCache()
	utils.InitAuthCache()
	utils.InitQueue()
	utils.FirebaseInit()

	// Create the Gin router.
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.ErrorHandler())
	router.Use(gin.Logger())
	router.Use(middleware.RateLimitMiddleware())

	// repositories.
	notifRepo := notificationRepo.NewMongoNotificationRepo()
	userRepo := userRepoPkg.NewMongoUserRepo()
	assignRepo := assignmentRepo.NewMongoAssignmentRepo()

	// realtime fan-out layer.
	registry := realtime.NewRegistry(logger)
	offlineQueue := notification.NewRedisOfflineQueue(utils.GetQueueClient())

	// delivery channels.
	channels := &notification.MultiChannelSender{
		Email:  notification.NewSMTPEmailProvider(),
		SMS:    notification.NewHTTPSMSGateway(),
		Push:   &notification.FCMPushProvider{Client: utils.FCMClient},
		Logger: logger,
	}

	notificationService := notification.NewDefaultNotificationService(
		registry,
		offlineQueue,
		notifRepo,
		userRepo,
		notification.NewTemplateEngine(),
		channels,
		logger,
	)

	// scheduler: due-scan, reminder sweep, cleanup, one-shot timers.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler := cron.NewScheduler(
		notifRepo,
		assignRepo,
		notificationService,
		cron.NewRedisMarkerStore(utils.GetCacheClient()),
		logger,
	)
	notificationService.Armer = scheduler
	scheduler.Start(ctx)

	// handlers.
	wsHandler := realtime.NewHandler(registry, offlineQueue, notificationService, logger)
	notificationHandler := handlers.NewNotificationHandler(notificationService, logger)

	routes.RegisterRoutes(router, notificationHandler, wsHandler)

	utils.StartHealthMonitor(
		[]*redis.Client{utils.GetCacheClient(), utils.GetAuthCacheClient(), utils.GetQueueClient()},
		database.MongoClient,
	)

	// Start the HTTP server.
	port := config.AppConfig.AppPort
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    "0.0.0.0:" + port,
		Handler: router,
	}

	logger.Sugar().Infof("Starting server on %s...", srv.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Sugar().Fatalf("main: server failed to start: %v", err)
		}
	}()

	// Wait for an OS signal to gracefully shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Sugar().Info("main: server is shutting down...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Sugar().Fatalf("main: server forced to shutdown: %v", err)
	}

	logger.Sugar().Info("main: server stopped gracefully")
}
