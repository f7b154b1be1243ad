package notifications

import (
	"gvteway/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

// SetupNotificationRoutes configures the admin notification routes
func SetupNotificationRoutes(rg *gin.RouterGroup, controller *Controller) {
	admin := rg.Group("/admin/notifications")
	admin.Use(middleware.JWTAuth(), middleware.RequireAdmin())
	{
		admin.GET("", controller.ListRecent)
	}
}
