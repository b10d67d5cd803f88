package reservation

import "github.com/gin-gonic/gin"

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	reservations := rg.Group("/reservations")
	{
		reservations.POST("/check-conflicts", h.CheckConflicts)
		reservations.POST("", h.CreateReservation)
		reservations.GET("", h.ListMyReservations)
		reservations.GET("/:id", h.GetReservation)
		reservations.PUT("/:id", h.RescheduleReservation)
		reservations.PUT("/:id/approve", h.ApproveReservation)
		reservations.PUT("/:id/reject", h.RejectReservation)
		reservations.DELETE("/:id", h.CancelReservation)
	}

	resources := rg.Group("/resources")
	{
		resources.GET("/:id/availability", h.GetAvailability)
		resources.GET("/:id/reservations", h.ListResourceReservations)
	}
}
