package resource

import (
	"smartcampus/internal/middleware"

	"github.com/gin-gonic/gin"
)

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	resources := rg.Group("/resources")
	{
		resources.GET("", h.ListResources)
		resources.GET("/:id", h.GetResource)
		resources.POST("", middleware.AdminOnly(), h.CreateResource)
		resources.PUT("/:id", middleware.AdminOnly(), h.UpdateResource)
	}
}
