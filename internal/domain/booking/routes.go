package booking

import (
	"github.com/gin-gonic/gin"

	"salonbook/internal/middleware"
	"salonbook/internal/pkg/identity"
)

// RegisterRoutes mounts booking endpoints. reserveGuards run before the
// create handler, typically the reservation rate limiter; providerGroup must
// already require a provider token.
func (h *Handler) RegisterRoutes(protected, providerGroup *gin.RouterGroup, reserveGuards ...gin.HandlerFunc) {
	create := append([]gin.HandlerFunc{middleware.RequireRole(identity.RoleCustomer)}, reserveGuards...)
	protected.POST("/bookings", append(create, h.CreateBooking)...)

	protected.GET("/bookings/me", middleware.RequireRole(identity.RoleCustomer), h.GetMyBookings)
	protected.GET("/bookings/:id", h.GetBooking)
	protected.PATCH("/bookings/:id/status", h.UpdateStatus)
	protected.PATCH("/bookings/:id/payment", h.MarkPaid)

	providerGroup.GET("/bookings", h.GetProviderBookings)
}
