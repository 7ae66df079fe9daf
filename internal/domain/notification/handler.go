package notification

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"salonbook/internal/middleware"
	"salonbook/internal/pkg/response"
)

type Handler struct {
	repo     *Repository
	registry *Registry
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewHandler builds the notification handler. With no allowed origins,
// sameOrigin decides between requiring the page host to match and accepting
// any browser origin.
func NewHandler(repo *Repository, registry *Registry, allowedOrigins []string, sameOrigin bool, log *zap.Logger) *Handler {
	return &Handler{
		repo:     repo,
		registry: registry,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins, sameOrigin),
		},
	}
}

func originChecker(allowedOrigins []string, sameOrigin bool) func(*http.Request) bool {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins[o] = true
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		switch {
		case origin == "":
			return true
		case len(origins) > 0:
			return origins[origin]
		case sameOrigin:
			u, err := url.Parse(origin)
			return err == nil && strings.EqualFold(u.Host, r.Host)
		default:
			return true
		}
	}
}

// GetNotifications returns the caller's notifications, newest first.
func (h *Handler) GetNotifications(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "User not authenticated")
		return
	}

	limit := 20
	if s := c.Query("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = min(v, 100)
		}
	}
	offset := 0
	if s := c.Query("offset"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			offset = v
		}
	}

	items, unread, total, err := h.repo.ListByUser(c.Request.Context(), actor.UserID, limit, offset)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, ListResponse{Notifications: items, UnreadCount: unread, Total: total})
}

func (h *Handler) MarkAsRead(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "User not authenticated")
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid notification ID")
		return
	}
	if err := h.repo.MarkAsRead(c.Request.Context(), id, actor.UserID); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"id": id, "is_read": true})
}

func (h *Handler) MarkAllAsRead(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "User not authenticated")
		return
	}
	n, err := h.repo.MarkAllAsRead(c.Request.Context(), actor.UserID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"updated": n})
}

// Stream upgrades to a websocket that receives the caller's notifications.
func (h *Handler) Stream(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "User not authenticated")
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Int64("user_id", actor.UserID), zap.Error(err))
		return
	}
	h.registry.Serve(conn, actor.UserID)
}
