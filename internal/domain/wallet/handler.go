package wallet

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"salonbook/internal/middleware"
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
	protected.GET("/wallet/:ownerUserId", h.GetWallet)

	admin.GET("/wallets/:ownerUserId/audit", h.Audit)
	admin.POST("/wallets/:ownerUserId/transactions", h.PostAdjustment)
}

func ownerParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("ownerUserId"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid owner user ID")
		return 0, false
	}
	return id, true
}

// GetWallet is readable by the owner and by admins.
func (h *Handler) GetWallet(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "User not authenticated")
		return
	}
	ownerID, ok := ownerParam(c)
	if !ok {
		return
	}
	if ownerID != actor.UserID && !actor.IsAdmin() {
		response.Error(c, http.StatusForbidden, "FORBIDDEN", "You can only view your own wallet")
		return
	}

	st, err := h.service.Statement(c.Request.Context(), ownerID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, st)
}

func (h *Handler) Audit(c *gin.Context) {
	ownerID, ok := ownerParam(c)
	if !ok {
		return
	}
	report, err := h.service.Audit(c.Request.Context(), ownerID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, report)
}

type adjustmentRequest struct {
	Type   TxnType `json:"type" validate:"required,oneof=credit debit"`
	Amount int64   `json:"amount" validate:"required,gt=0"`
	Ref    string  `json:"ref" validate:"required,max=128"`
	Note   string  `json:"note" validate:"max=255"`
}

// PostAdjustment records a manual ledger line. Debits never overdraw.
func (h *Handler) PostAdjustment(c *gin.Context) {
	ownerID, ok := ownerParam(c)
	if !ok {
		return
	}
	var req adjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	if errs := validator.Validate(req); errs != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid adjustment", errs)
		return
	}

	wallet, txn, err := h.service.Post(c.Request.Context(), PostRequest{
		OwnerUserID: ownerID,
		Type:        req.Type,
		Amount:      req.Amount,
		Ref:         "adjustment:" + req.Ref,
		Note:        req.Note,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"wallet": wallet, "transaction": txn})
}
