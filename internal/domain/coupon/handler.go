package coupon

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"salonbook/internal/pkg/response"
	"salonbook/internal/pkg/validator"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(protected, admin *gin.RouterGroup) {
	protected.POST("/coupons/validate", h.Validate)

	admin.POST("/coupons", h.Create)
	admin.PATCH("/coupons/:code/status", h.UpdateStatus)
}

type validateRequest struct {
	Code     string `json:"code" binding:"required"`
	Subtotal int64  `json:"subtotal" binding:"gte=0"`
}

func (h *Handler) Validate(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	discount, err := h.service.Apply(c.Request.Context(), req.Code, req.Subtotal)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"valid": true, "discount": discount})
}

func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	if errs := validator.Validate(req); errs != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid coupon", errs)
		return
	}
	cp, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, cp)
}

type statusRequest struct {
	Status Status `json:"status" binding:"required,oneof=active inactive"`
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "status must be active or inactive")
		return
	}
	cp, err := h.service.SetStatus(c.Request.Context(), c.Param("code"), req.Status)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, cp)
}
