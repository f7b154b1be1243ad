package notifications

import (
	"net/http"
	"strconv"

	"gvteway/internal/shared/utils/response"
	"gvteway/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Controller handles the admin notification endpoints
type Controller struct {
	service Service
	log     *logger.Logger
}

// NewController creates a new notifications controller
func NewController(service Service) *Controller {
	return &Controller{
		service: service,
		log:     logger.GetDefault(),
	}
}

// ListRecent returns the most recently queued notifications
// GET /admin/notifications?limit=50
func (ctrl *Controller) ListRecent(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			response.RespondJSON(c, "error", http.StatusBadRequest, "limit must be between 1 and 500", nil, nil)
			return
		}
		limit = parsed
	}

	records, err := ctrl.service.ListRecent(c.Request.Context(), limit)
	if err != nil {
		ctrl.log.ErrorWithContext(c.Request.Context(), "failed to list notifications", err, nil)
		response.RespondJSON(c, "error", http.StatusInternalServerError, "failed to list notifications", nil, nil)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Notifications retrieved successfully", records, nil)
}
