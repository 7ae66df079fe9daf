package availability

import (
	"iter"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"salonbook/internal/middleware"
	"salonbook/internal/pkg/response"
	"salonbook/internal/pkg/validator"
)

type Handler struct {
	resolver *Resolver
	service  *Service
}

func NewHandler(resolver *Resolver, service *Service) *Handler {
	return &Handler{resolver: resolver, service: service}
}

// RegisterRoutes mounts the public slot query and the provider-owned
// management endpoints. providerGroup must already require a provider token.
func (h *Handler) RegisterRoutes(public, providerGroup *gin.RouterGroup) {
	public.GET("/availability", h.GetAvailability)

	providerGroup.GET("/availability-rules", h.ListRules)
	providerGroup.POST("/availability-rules", h.CreateRule)
	providerGroup.DELETE("/availability-rules/:id", h.DeleteRule)
	providerGroup.GET("/blocked-times", h.ListBlocked)
	providerGroup.POST("/blocked-times", h.CreateBlocked)
	providerGroup.DELETE("/blocked-times/:id", h.DeleteBlocked)
}

// GetAvailability accepts from/to as YYYY-MM-DD (provider-local days) or
// RFC 3339 timestamps.
func (h *Handler) GetAvailability(c *gin.Context) {
	providerID, err := strconv.ParseInt(c.Query("providerId"), 10, 64)
	if err != nil || providerID <= 0 {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "providerId is required")
		return
	}
	from, to := c.Query("from"), c.Query("to")
	if from == "" || to == "" {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "from and to are required")
		return
	}

	var slots iter.Seq[Slot]
	fromTS, errFrom := time.Parse(time.RFC3339, from)
	toTS, errTo := time.Parse(time.RFC3339, to)
	if errFrom == nil && errTo == nil {
		slots, err = h.resolver.ComputeOpenSlots(c.Request.Context(), providerID, fromTS, toTS)
	} else {
		slots, err = h.resolver.ComputeOpenSlotsOnDates(c.Request.Context(), providerID, from, to)
	}
	if err != nil {
		response.FromError(c, err)
		return
	}

	out := make([]Slot, 0)
	for s := range slots {
		out = append(out, s)
	}
	response.Success(c, http.StatusOK, out)
}

type createRuleRequest struct {
	DayOfWeek   int    `json:"dayOfWeek" validate:"min=0,max=6"`
	StartTime   string `json:"startTime" validate:"required,hhmm"`
	EndTime     string `json:"endTime" validate:"required,hhmm"`
	SlotSizeMin int    `json:"slotSizeMin" validate:"required,gt=0,lte=720"`
	IsActive    *bool  `json:"isActive"`
}

func (h *Handler) CreateRule(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)

	var req createRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	if errs := validator.Validate(req); errs != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid availability rule", errs)
		return
	}

	rule := &Rule{
		DayOfWeek:   req.DayOfWeek,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		SlotSizeMin: req.SlotSizeMin,
		IsActive:    req.IsActive == nil || *req.IsActive,
	}
	if err := h.service.AddRule(c.Request.Context(), actor.ProviderID, rule); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, rule)
}

func (h *Handler) ListRules(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	rules, err := h.service.ListRules(c.Request.Context(), actor.ProviderID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, rules)
}

func (h *Handler) DeleteRule(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid rule ID")
		return
	}
	if err := h.service.DeleteRule(c.Request.Context(), actor.ProviderID, id); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": id})
}

type createBlockedRequest struct {
	StartAt time.Time `json:"startAt" validate:"required"`
	EndAt   time.Time `json:"endAt" validate:"required,gtfield=StartAt"`
	Reason  string    `json:"reason" validate:"max=255"`
}

func (h *Handler) CreateBlocked(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)

	var req createBlockedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	if errs := validator.Validate(req); errs != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid blocked time", errs)
		return
	}

	b := &BlockedTime{StartAt: req.StartAt, EndAt: req.EndAt, Reason: req.Reason}
	if err := h.service.AddBlocked(c.Request.Context(), actor.ProviderID, b); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, b)
}

// ListBlocked defaults to the next 90 days.
func (h *Handler) ListBlocked(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)

	from := time.Now().UTC()
	to := from.AddDate(0, 0, 90)
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "from must be RFC 3339")
			return
		}
		from = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "to must be RFC 3339")
			return
		}
		to = t
	}

	rows, err := h.service.ListBlocked(c.Request.Context(), actor.ProviderID, from, to)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, rows)
}

func (h *Handler) DeleteBlocked(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid blocked time ID")
		return
	}
	if err := h.service.DeleteBlocked(c.Request.Context(), actor.ProviderID, id); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": id})
}
