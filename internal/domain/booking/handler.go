package booking

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"salonbook/internal/domain/provider"
	"salonbook/internal/middleware"
	"salonbook/internal/pkg/response"
	"salonbook/internal/pkg/validator"
)

type Handler struct {
	guard   *Guard
	service *Service
}

func NewHandler(guard *Guard, service *Service) *Handler {
	return &Handler{guard: guard, service: service}
}

type intervalRequest struct {
	Start time.Time  `json:"start" validate:"required"`
	End   *time.Time `json:"end"`
}

type itemRequest struct {
	ProviderServiceID int64 `json:"providerServiceId" validate:"required,gt=0"`
}

type createBookingRequest struct {
	ProviderID      int64           `json:"providerId" validate:"required,gt=0"`
	Mode            provider.Mode   `json:"mode" validate:"required,oneof=HOME SALON"`
	Interval        intervalRequest `json:"interval"`
	Items           []itemRequest   `json:"items" validate:"required,min=1,max=20,dive"`
	GroupSize       int             `json:"groupSize" validate:"required,gte=1"`
	PaymentMethod   string          `json:"paymentMethod" validate:"required,max=32"`
	CouponCode      string          `json:"couponCode" validate:"max=64"`
	CustomerAddress string          `json:"customerAddress" validate:"max=500"`
}

func (h *Handler) CreateBooking(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)

	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	if errs := validator.Validate(req); errs != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid booking request", errs)
		return
	}

	in := ReserveRequest{
		ProviderID:      req.ProviderID,
		CustomerUserID:  actor.UserID,
		Mode:            req.Mode,
		Start:           req.Interval.Start,
		GroupSize:       req.GroupSize,
		PaymentMethod:   req.PaymentMethod,
		CouponCode:      req.CouponCode,
		CustomerAddress: req.CustomerAddress,
	}
	if req.Interval.End != nil {
		in.End = *req.Interval.End
	}
	for _, it := range req.Items {
		in.ServiceIDs = append(in.ServiceIDs, it.ProviderServiceID)
	}

	b, err := h.guard.Reserve(c.Request.Context(), in)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, b)
}

type statusRequest struct {
	Action Action `json:"action" binding:"required,oneof=confirm reject start_trip start_service complete cancel"`
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "action must be one of confirm, reject, start_trip, start_service, complete, cancel")
		return
	}

	actor, _ := middleware.ActorFrom(c)
	b, err := h.service.ChangeStatus(c.Request.Context(), actor, id, req.Action)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, b)
}

type paymentRequest struct {
	Status PaymentStatus `json:"status" binding:"required,oneof=PAID"`
}

func (h *Handler) MarkPaid(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "status must be PAID")
		return
	}

	actor, _ := middleware.ActorFrom(c)
	b, err := h.service.MarkPaid(c.Request.Context(), actor, id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, b)
}

func (h *Handler) GetBooking(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	actor, _ := middleware.ActorFrom(c)
	b, err := h.service.Get(c.Request.Context(), actor, id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, b)
}

func (h *Handler) GetMyBookings(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	limit, offset := pageParams(c)
	rows, total, err := h.service.ListForCustomer(c.Request.Context(), actor, limit, offset)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"bookings": rows, "total": total})
}

func (h *Handler) GetProviderBookings(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	limit, offset := pageParams(c)
	rows, total, err := h.service.ListForProvider(c.Request.Context(), actor, Status(c.Query("status")), limit, offset)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"bookings": rows, "total": total})
}

func bookingID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid booking ID")
		return 0, false
	}
	return id, true
}

func pageParams(c *gin.Context) (int, int) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	return limit, offset
}
