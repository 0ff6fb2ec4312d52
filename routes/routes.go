package routes

import (
	"time"

	"campushub/handlers"
	"campushub/middleware"
	"campushub/realtime"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RegisterNotificationRoutes registers the notification producer/consumer
// endpoints. Everything here requires authentication.
func RegisterNotificationRoutes(r *gin.Engine, nh *handlers.NotificationHandler) {
	api := r.Group("/api/notifications")
	{
		api.Use(middleware.JWTAuthMiddleware())
		api.POST("", nh.CreateNotificationHandler)
		api.GET("", nh.ListNotificationsHandler)
		api.DELETE("/:id", nh.CancelNotificationHandler)
		api.PATCH("/:id/read", nh.MarkReadHandler)
	}
}

// RegisterRealtimeRoutes registers the websocket endpoint. The handshake
// itself authenticates, so no middleware sits in front of the upgrade.
func RegisterRealtimeRoutes(r *gin.Engine, wsHandler *realtime.Handler) {
	r.GET("/ws", wsHandler.ServeWS)
}

// RegisterRoutes wires CORS and all endpoint groups.
func RegisterRoutes(r *gin.Engine, nh *handlers.NotificationHandler, wsHandler *realtime.Handler) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	RegisterNotificationRoutes(r, nh)
	RegisterRealtimeRoutes(r, wsHandler)

	r.GET("/health", handlers.HealthHandler)
}
