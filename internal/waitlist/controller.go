package waitlist

import (
	"errors"
	"net/http"

	"gvteway/internal/shared/utils/response"
	"gvteway/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type Controller struct {
	service   Service
	validator *validator.Validate
}

func NewController(service Service) *Controller {
	return &Controller{
		service:   service,
		validator: validator.New(),
	}
}

// statusForError maps domain errors onto HTTP status codes
func statusForError(err error) int {
	switch {
	case errors.Is(err, ErrAlreadyOnWaitlist):
		return http.StatusConflict
	case errors.Is(err, ErrEntryNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrConcurrentModification):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	// Domain violations are expected outcomes; anything else is worth a
	// server-side error log before it leaves as a 5xx/503.
	if !IsDomainError(err) {
		logger.GetDefault().ErrorWithContext(c.Request.Context(), "waitlist request failed", err, map[string]interface{}{
			"path": c.FullPath(),
		})
	}
	response.RespondJSON(c, "error", statusForError(err), err.Error(), nil, nil)
}

// callerID extracts the authenticated user's id set by the JWT middleware
func callerID(c *gin.Context) (uuid.UUID, bool) {
	userIDStr, exists := c.Get("user_id")
	if !exists {
		response.RespondJSON(c, "error", http.StatusUnauthorized, "User not authenticated", nil, nil)
		return uuid.Nil, false
	}

	userID, err := uuid.Parse(userIDStr.(string))
	if err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid user ID", nil, nil)
		return uuid.Nil, false
	}

	return userID, true
}

func pathUUID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid "+param, nil, nil)
		return uuid.Nil, false
	}
	return id, true
}

func (c *Controller) JoinWaitlist(ctx *gin.Context) {
	var request JoinWaitlistRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	if err := c.validator.Struct(&request); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Validation failed", nil, err.Error())
		return
	}

	userID, ok := callerID(ctx)
	if !ok {
		return
	}

	result, err := c.service.JoinWaitlist(ctx.Request.Context(), request.EventID, userID, request.TicketTypeID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusCreated, "Successfully joined waitlist", result, nil)
}

func (c *Controller) LeaveWaitlist(ctx *gin.Context) {
	entryID, ok := pathUUID(ctx, "entry_id")
	if !ok {
		return
	}

	userID, ok := callerID(ctx)
	if !ok {
		return
	}

	if err := c.service.LeaveWaitlist(ctx.Request.Context(), entryID, userID); err != nil {
		respondError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Successfully left waitlist", nil, nil)
}

func (c *Controller) GetPosition(ctx *gin.Context) {
	eventID, ok := pathUUID(ctx, "event_id")
	if !ok {
		return
	}
	ticketTypeID, ok := pathUUID(ctx, "ticket_type_id")
	if !ok {
		return
	}

	userID, ok := callerID(ctx)
	if !ok {
		return
	}

	position, err := c.service.GetPosition(ctx.Request.Context(), userID, eventID, ticketTypeID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	if position == nil {
		response.RespondJSON(ctx, "error", http.StatusNotFound, "Not on the waitlist for this ticket type", nil, nil)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Waitlist position", position, nil)
}

func (c *Controller) MarkPurchased(ctx *gin.Context) {
	var request MarkPurchasedRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	if err := c.validator.Struct(&request); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Validation failed", nil, err.Error())
		return
	}

	userID, ok := callerID(ctx)
	if !ok {
		return
	}

	if err := c.service.MarkPurchased(ctx.Request.Context(), userID, request.EventID, request.TicketTypeID); err != nil {
		respondError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Purchase recorded", nil, nil)
}

func (c *Controller) NotifyWaitlist(ctx *gin.Context) {
	eventID, ok := pathUUID(ctx, "event_id")
	if !ok {
		return
	}
	ticketTypeID, ok := pathUUID(ctx, "ticket_type_id")
	if !ok {
		return
	}

	var request NotifyWaitlistRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	if err := c.validator.Struct(&request); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Validation failed", nil, err.Error())
		return
	}

	result, err := c.service.NotifyWaitlist(ctx.Request.Context(), eventID, ticketTypeID, request.AvailableCount)
	if err != nil {
		respondError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Waitlist notifications dispatched", result, nil)
}

func (c *Controller) GetStats(ctx *gin.Context) {
	eventID, ok := pathUUID(ctx, "event_id")
	if !ok {
		return
	}

	stats, err := c.service.GetStats(ctx.Request.Context(), eventID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Waitlist statistics", stats, nil)
}

func (c *Controller) GetConversionRate(ctx *gin.Context) {
	eventID, ok := pathUUID(ctx, "event_id")
	if !ok {
		return
	}

	conversion, err := c.service.GetConversionRate(ctx.Request.Context(), eventID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Waitlist conversion analytics", conversion, nil)
}

func (c *Controller) ReorderPriorities(ctx *gin.Context) {
	eventID, ok := pathUUID(ctx, "event_id")
	if !ok {
		return
	}
	ticketTypeID, ok := pathUUID(ctx, "ticket_type_id")
	if !ok {
		return
	}

	updated, err := c.service.ReorderPriorities(ctx.Request.Context(), eventID, ticketTypeID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Waitlist priorities recomputed", gin.H{
		"updated": updated,
	}, nil)
}

func (c *Controller) ExpireNotifications(ctx *gin.Context) {
	expired, err := c.service.ExpireNotifications(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Expired stale notifications", gin.H{
		"expired": expired,
	}, nil)
}

func (c *Controller) CleanupWaitlist(ctx *gin.Context) {
	eventID, ok := pathUUID(ctx, "event_id")
	if !ok {
		return
	}

	result, err := c.service.CleanupWaitlist(ctx.Request.Context(), eventID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Waitlist cleanup finished", result, nil)
}

func (c *Controller) BatchJoin(ctx *gin.Context) {
	var request BatchJoinRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	if err := c.validator.Struct(&request); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Validation failed", nil, err.Error())
		return
	}

	result, err := c.service.BatchJoin(ctx.Request.Context(), request.Requests)
	if err != nil {
		respondError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Batch join processed", result, nil)
}

func (c *Controller) HealthCheck(ctx *gin.Context) {
	response.RespondJSON(ctx, "success", http.StatusOK, "waitlist service healthy", nil, nil)
}
