package notification

import "github.com/gin-gonic/gin"

// RegisterRoutes registers all notification-related routes. ws must
// authenticate from the query string.
func RegisterRoutes(protected, ws *gin.RouterGroup, handler *Handler) {
	notifGroup := protected.Group("/notifications")
	{
		notifGroup.GET("", handler.GetNotifications)
		notifGroup.PATCH("/:id/read", handler.MarkAsRead)
		notifGroup.POST("/read-all", handler.MarkAllAsRead)
	}

	ws.GET("/ws/notifications", handler.Stream)
}
