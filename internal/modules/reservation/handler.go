package reservation

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"smartcampus/internal/domain"
	"smartcampus/internal/middleware"
	"smartcampus/internal/modules/resource"
	"smartcampus/internal/pkg/interval"
	"smartcampus/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// CreateReservation handles POST /api/v1/reservations
func (h *Handler) CreateReservation(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	var req CreateReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "resource_id, start_time, end_time and purpose are required")
		return
	}

	r, err := h.service.Create(c.Request.Context(), actor, req)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"reservation": r})
}

// ListMyReservations handles GET /api/v1/reservations
func (h *Handler) ListMyReservations(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	q, ok := bindListQuery(c)
	if !ok {
		return
	}

	items, err := h.service.ListMine(c.Request.Context(), actor, q)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"reservations": items, "count": len(items)})
}

// GetReservation handles GET /api/v1/reservations/:id
func (h *Handler) GetReservation(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := resource.ParseID(c)
	if !ok {
		return
	}

	r, err := h.service.Get(c.Request.Context(), actor, id)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"reservation": r})
}

// RescheduleReservation handles PUT /api/v1/reservations/:id
func (h *Handler) RescheduleReservation(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := resource.ParseID(c)
	if !ok {
		return
	}

	var req UpdateReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "start_time and end_time are required")
		return
	}

	r, err := h.service.Reschedule(c.Request.Context(), actor, id, req)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"reservation": r})
}

// ApproveReservation handles PUT /api/v1/reservations/:id/approve
func (h *Handler) ApproveReservation(c *gin.Context) {
	h.decide(c, h.service.Approve)
}

// RejectReservation handles PUT /api/v1/reservations/:id/reject
func (h *Handler) RejectReservation(c *gin.Context) {
	h.decide(c, h.service.Reject)
}

// CancelReservation handles DELETE /api/v1/reservations/:id
func (h *Handler) CancelReservation(c *gin.Context) {
	h.decide(c, h.service.Cancel)
}

type decisionFunc func(ctx context.Context, actor domain.Actor, id int64, notes string) (*domain.Reservation, error)

func (h *Handler) decide(c *gin.Context, apply decisionFunc) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := resource.ParseID(c)
	if !ok {
		return
	}

	var req DecisionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
			return
		}
	}

	r, err := apply(c.Request.Context(), actor, id, req.Notes)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"reservation": r})
}

// CheckConflicts handles POST /api/v1/reservations/check-conflicts
func (h *Handler) CheckConflicts(c *gin.Context) {
	var req CheckConflictsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "resource_id, start_time and end_time are required")
		return
	}

	a, err := h.service.CheckConflicts(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"has_conflicts": !a.Available,
		"availability":  a,
	})
}

// GetAvailability handles GET /api/v1/resources/:id/availability?start=...&end=...
func (h *Handler) GetAvailability(c *gin.Context) {
	id, ok := resource.ParseID(c)
	if !ok {
		return
	}

	start, err1 := time.Parse(time.RFC3339, c.Query("start"))
	end, err2 := time.Parse(time.RFC3339, c.Query("end"))
	if err1 != nil || err2 != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "start and end must be RFC3339 timestamps")
		return
	}
	iv, err := interval.New(start, end)
	if err != nil {
		writeError(c, err)
		return
	}

	a, err := h.service.CachedAvailability(c.Request.Context(), id, iv)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"availability": a})
}

// ListResourceReservations handles GET /api/v1/resources/:id/reservations
func (h *Handler) ListResourceReservations(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := resource.ParseID(c)
	if !ok {
		return
	}
	q, ok := bindListQuery(c)
	if !ok {
		return
	}

	items, err := h.service.ListForResource(c.Request.Context(), actor, id, q)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"reservations": items, "count": len(items)})
}

func actorOrAbort(c *gin.Context) (domain.Actor, bool) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
	}
	return actor, ok
}

func bindListQuery(c *gin.Context) (ListReservationsQuery, bool) {
	q := ListReservationsQuery{Status: c.Query("status")}

	for name, dst := range map[string]**time.Time{"from": &q.From, "to": &q.To} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", name+" must be an RFC3339 timestamp")
			return q, false
		}
		*dst = &t
	}

	for name, dst := range map[string]*int{"limit": &q.Limit, "offset": &q.Offset} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", name+" must be a non-negative integer")
			return q, false
		}
		*dst = n
	}
	return q, true
}

func writeError(c *gin.Context, err error) {
	var (
		werr *resource.WindowError
		cerr *CapacityError
		terr *TransitionError
	)
	switch {
	case errors.Is(err, ErrInvalidInterval):
		response.Error(c, http.StatusBadRequest, "INVALID_INTERVAL", "End time must be after start time")
	case errors.Is(err, ErrValidation):
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request")
	case errors.Is(err, ErrResourceNotFound):
		response.Error(c, http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found")
	case errors.Is(err, ErrReservationNotFound):
		response.Error(c, http.StatusNotFound, "RESERVATION_NOT_FOUND", "Reservation not found")
	case errors.As(err, &werr):
		response.ErrorWithDetails(c, http.StatusUnprocessableEntity, "OUTSIDE_AVAILABILITY_WINDOW",
			"Requested time is outside the resource's open hours", werr)
	case errors.As(err, &cerr):
		response.ErrorWithDetails(c, http.StatusConflict, "CAPACITY_EXCEEDED",
			"Resource is fully booked for the requested time", cerr.Availability)
	case errors.As(err, &terr):
		response.ErrorWithDetails(c, http.StatusConflict, "INVALID_TRANSITION",
			"Reservation cannot change to the requested status", gin.H{"from": terr.From, "to": terr.To})
	case errors.Is(err, ErrForbidden):
		response.Error(c, http.StatusForbidden, "FORBIDDEN", "You are not allowed to do this")
	case errors.Is(err, ErrConcurrentUpdate):
		response.Error(c, http.StatusConflict, "CONCURRENT_UPDATE", "Reservation changed while processing, try again")
	default:
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}
