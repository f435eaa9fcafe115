package dashboard

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/firesafely/marketplace/internal/notifications"
	"github.com/firesafely/marketplace/internal/verification"
	"github.com/firesafely/marketplace/pkg/common"
	"github.com/firesafely/marketplace/pkg/middleware"
)

// Handler exposes the verification aggregator and notification
// synchronizer over the dashboard's HTTP surface.
type Handler struct {
	registry *Registry
}

func NewHandler(registry *Registry) *Handler {
	return &Handler{registry: registry}
}

// RegisterRoutes mounts the dashboard API under the given group, which
// must already run the session middleware.
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	v := api.Group("/verification")
	{
		v.GET("", h.getVerification)
		v.POST("/:kind/evidence", h.submitEvidence)
	}

	n := api.Group("/notifications")
	{
		n.GET("", h.listNotifications)
		n.GET("/unread-count", h.unreadCount)
		n.GET("/stream", h.streamNotifications)
		n.POST("/:id/read", h.markNotificationRead)
		n.POST("/read-all", h.markAllNotificationsRead)
		n.DELETE("/:id", h.deleteNotification)
		n.DELETE("", h.deleteAllNotifications)
	}

	api.DELETE("/session", h.logout)
}

// components resolves the caller's state bundle from the credentials the
// session middleware extracted.
func (h *Handler) components(c *gin.Context) *components {
	return h.registry.forSession(middleware.SessionToken(c), middleware.ProfessionalID(c))
}

func (h *Handler) getVerification(c *gin.Context) {
	comps := h.components(c)

	state := comps.verification.State()
	if c.Query("refresh") == "1" || state.RefreshedAt.IsZero() {
		refreshed, err := comps.verification.RefreshAll(c.Request.Context())
		if err != nil {
			common.HandleError(c, err)
			return
		}
		state = refreshed
	}
	common.SuccessResponse(c, state)
}

func (h *Handler) submitEvidence(c *gin.Context) {
	comps := h.components(c)

	kind := verification.RequirementKind(c.Param("kind"))
	if !kind.Valid() {
		common.ErrorResponse(c, http.StatusBadRequest, "unknown requirement kind")
		return
	}

	var targetID int64
	if raw := c.PostForm("target_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			common.ErrorResponse(c, http.StatusBadRequest, "target_id must be an integer")
			return
		}
		targetID = id
	}

	fileHeader, err := c.FormFile("document")
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "document file is required")
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		common.HandleError(c, err)
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	state, err := comps.verification.SubmitEvidence(c.Request.Context(), kind, targetID, verification.Upload{
		FileName:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Content:     content,
	})
	if err != nil {
		common.HandleError(c, err)
		return
	}
	common.SuccessResponse(c, state)
}

func (h *Handler) listNotifications(c *gin.Context) {
	comps := h.components(c)

	selector := notifications.Selector(c.DefaultQuery("view", string(notifications.SelectorAll)))
	view, err := comps.notifications.LoadView(c.Request.Context(), selector)
	if err != nil {
		common.HandleError(c, err)
		return
	}
	common.SuccessResponse(c, view)
}

func (h *Handler) unreadCount(c *gin.Context) {
	comps := h.components(c)
	common.SuccessResponse(c, gin.H{"unread_count": comps.notifications.UnreadCount()})
}

func (h *Handler) markNotificationRead(c *gin.Context) {
	comps := h.components(c)
	id, ok := notificationID(c)
	if !ok {
		return
	}
	view, err := comps.notifications.MarkRead(c.Request.Context(), id)
	if err != nil {
		common.HandleError(c, err)
		return
	}
	common.SuccessResponse(c, view)
}

func (h *Handler) markAllNotificationsRead(c *gin.Context) {
	comps := h.components(c)
	view, err := comps.notifications.MarkAllRead(c.Request.Context())
	if err != nil {
		common.HandleError(c, err)
		return
	}
	common.SuccessResponse(c, view)
}

func (h *Handler) deleteNotification(c *gin.Context) {
	comps := h.components(c)
	id, ok := notificationID(c)
	if !ok {
		return
	}
	view, err := comps.notifications.DeleteOne(c.Request.Context(), id)
	if err != nil {
		common.HandleError(c, err)
		return
	}
	common.SuccessResponse(c, view)
}

func (h *Handler) deleteAllNotifications(c *gin.Context) {
	comps := h.components(c)
	view, err := comps.notifications.DeleteAll(c.Request.Context())
	if err != nil {
		common.HandleError(c, err)
		return
	}
	common.SuccessResponse(c, view)
}

// logout drops the caller's cached state so the next login starts clean.
func (h *Handler) logout(c *gin.Context) {
	h.registry.drop(middleware.ProfessionalID(c))
	common.SuccessResponse(c, gin.H{"logged_out": true})
}

func notificationID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		common.ErrorResponse(c, http.StatusBadRequest, "notification id must be a positive integer")
		return 0, false
	}
	return id, true
}
