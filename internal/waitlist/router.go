package waitlist

import (
	"gvteway/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

// SetupWaitlistRoutes configures all waitlist-related routes following
// the same pattern as other modules
func SetupWaitlistRoutes(rg *gin.RouterGroup, controller *Controller) {
	waitlist := rg.Group("/waitlist")
	{
		// Health check - no auth required
		waitlist.GET("/health", controller.HealthCheck)

		// Authenticated user operations
		authenticated := waitlist.Group("")
		authenticated.Use(middleware.JWTAuth(), middleware.RequireRoles("USER", "ADMIN"))
		{
			authenticated.POST("", controller.JoinWaitlist)
			authenticated.DELETE("/:entry_id", controller.LeaveWaitlist)
			authenticated.GET("/position/:event_id/:ticket_type_id", controller.GetPosition)
			authenticated.POST("/purchased", controller.MarkPurchased)
		}
	}

	// Admin and job-trigger routes. The expiry sweep and cleanup are
	// plain idempotent endpoints so an external scheduler can drive them.
	adminWaitlist := rg.Group("/admin/waitlist")
	adminWaitlist.Use(middleware.JWTAuth(), middleware.RequireAdmin())
	{
		adminWaitlist.GET("/stats/:event_id", controller.GetStats)
		adminWaitlist.GET("/conversion/:event_id", controller.GetConversionRate)
		adminWaitlist.POST("/notify/:event_id/:ticket_type_id", controller.NotifyWaitlist)
		adminWaitlist.POST("/reorder/:event_id/:ticket_type_id", controller.ReorderPriorities)
		adminWaitlist.POST("/expire", controller.ExpireNotifications)
		adminWaitlist.POST("/cleanup/:event_id", controller.CleanupWaitlist)
		adminWaitlist.POST("/batch-join", controller.BatchJoin)
	}
}
