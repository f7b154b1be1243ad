// api/routes/router.go
package routes

import (
	"net/http"
	"time"

	"gvteway/internal/clock"
	"gvteway/internal/events"
	"gvteway/internal/memberships"
	"gvteway/internal/notifications"
	"gvteway/internal/shared/config"
	"gvteway/internal/shared/database"
	"gvteway/internal/waitlist"
	"gvteway/pkg/cache"

	"github.com/gin-gonic/gin"
)

// Router holds all route dependencies
type Router struct {
	config              *config.Config
	db                  *database.DB
	notificationService notifications.Service

	waitlistService waitlist.Service
	waitlistRepo    waitlist.Repository
}

// NewRouter creates a new router instance
func NewRouter(cfg *config.Config, db *database.DB, notificationService notifications.Service) *Router {
	return &Router{
		config:              cfg,
		db:                  db,
		notificationService: notificationService,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	r.setupHealthRoutes(engine)

	api := engine.Group(r.config.GetAPIBasePath())
	{
		r.setupWaitlistRoutes(api)
		r.setupNotificationRoutes(api)
	}
}

// WaitlistService exposes the wired service for the background job
// processor in main
func (r *Router) WaitlistService() waitlist.Service {
	return r.waitlistService
}

// WaitlistRepository exposes the wired repository for the background
// job processor in main
func (r *Router) WaitlistRepository() waitlist.Repository {
	return r.waitlistRepo
}

// setupHealthRoutes sets up health check and system status routes
func (r *Router) setupHealthRoutes(engine *gin.Engine) {
	engine.GET("/health", func(c *gin.Context) {
		if err := r.db.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"error":     err.Error(),
				"timestamp": time.Now(),
				"service":   "gvteway-backend",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"service":   "gvteway-backend",
		})
	})

	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
			"version": r.config.APIVersion,
		})
	})
}

// setupWaitlistRoutes configures the waitlist module and its routes
func (r *Router) setupWaitlistRoutes(rg *gin.RouterGroup) {
	pg := r.db.GetPostgreSQL()

	membershipService := memberships.NewService(memberships.NewRepository(pg))
	eventService := events.NewService(events.NewRepository(pg))

	var gateway waitlist.NotificationGateway
	if r.notificationService != nil {
		gateway = r.notificationService.Gateway()
	}

	r.waitlistRepo = waitlist.NewRepository(pg)
	r.waitlistService = waitlist.NewService(
		r.waitlistRepo,
		gateway,
		membershipService,
		eventService,
		clock.NewSystem(),
		cache.NewService(r.db.GetRedisClient()),
		nil,
	)

	controller := waitlist.NewController(r.waitlistService)
	waitlist.SetupWaitlistRoutes(rg, controller)
}

// setupNotificationRoutes configures the admin notification routes
func (r *Router) setupNotificationRoutes(rg *gin.RouterGroup) {
	if r.notificationService == nil {
		return
	}
	controller := notifications.NewController(r.notificationService)
	notifications.SetupNotificationRoutes(rg, controller)
}
