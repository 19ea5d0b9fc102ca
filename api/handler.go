// Package api exposes the moderation client over HTTP.
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	modguard "github.com/heibot/modguard"
	"github.com/heibot/modguard/client"
	"github.com/heibot/modguard/queue"
)

// Handler serves the moderation API.
type Handler struct {
	client *client.Client
	logger *zap.Logger
}

// NewHandler creates a new Handler.
func NewHandler(c *client.Client, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{client: c, logger: logger}
}

// Register registers all moderation routes on the given router group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/messages/evaluate", h.EvaluateMessage)
	rg.POST("/content/render", h.RenderContent)

	users := rg.Group("/users/:id")
	{
		users.POST("/sanctions", h.ApplySanction)
		users.GET("/status", h.UserStatus)
		users.GET("/history", h.UserHistory)
		users.PUT("/shadow-ban", h.SetShadowBan)
		users.GET("/reputation", h.UserReputation)
		users.POST("/reputation/events", h.RecordActivity)
	}

	q := rg.Group("/queue")
	{
		q.GET("", h.ListQueue)
		q.GET("/next", h.NextQueueItem)
		q.POST("/:id/disposition", h.Disposition)
	}

	f := rg.Group("/filters")
	{
		f.GET("", h.ListFilters)
		f.PUT("/:id", h.UpsertFilter)
		f.DELETE("/:id", h.DeleteFilter)
	}
}

type evaluateRequest struct {
	Text     string               `json:"text" binding:"required"`
	Identity modguard.Identity    `json:"identity"`
	Content  modguard.ContentMeta `json:"content"`
}

// EvaluateMessage handles POST /messages/evaluate.
func (h *Handler) EvaluateMessage(c *gin.Context) {
	var req evaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Identity.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "identity.id is required"})
		return
	}

	res, err := h.client.EvaluateMessage(c.Request.Context(), req.Text, req.Identity, req.Content)
	if err != nil {
		h.fail(c, "evaluate message", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// RenderContent handles POST /content/render.
func (h *Handler) RenderContent(c *gin.Context) {
	var req client.RenderInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.client.Render(c.Request.Context(), req)
	if err != nil {
		h.fail(c, "render content", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type sanctionRequest struct {
	Action          modguard.ActionType `json:"action" binding:"required"`
	Reason          string              `json:"reason"`
	DurationMinutes *int                `json:"duration_minutes"`
	ModeratorID     string              `json:"moderator_id"`
}

// ApplySanction handles POST /users/:id/sanctions.
func (h *Handler) ApplySanction(c *gin.Context) {
	var req sanctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status, err := h.client.ApplySanction(c.Request.Context(), client.SanctionInput{
		TargetUserID:    c.Param("id"),
		Action:          req.Action,
		Reason:          req.Reason,
		DurationMinutes: req.DurationMinutes,
		ModeratorID:     req.ModeratorID,
	})
	if err != nil {
		h.fail(c, "apply sanction", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

// UserStatus handles GET /users/:id/status.
func (h *Handler) UserStatus(c *gin.Context) {
	status, err := h.client.UserStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "get user status", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    status,
		"can_post":  status.CanPost(timeNow()),
		"effective": status.EffectiveStatus(timeNow()),
	})
}

// UserHistory handles GET /users/:id/history.
func (h *Handler) UserHistory(c *gin.Context) {
	actions, err := h.client.UserHistory(c.Request.Context(), c.Param("id"), queryLimit(c))
	if err != nil {
		h.fail(c, "list user history", err)
		return
	}
	if actions == nil {
		actions = []modguard.ModerationAction{}
	}
	c.JSON(http.StatusOK, gin.H{"actions": actions, "count": len(actions)})
}

type shadowBanRequest struct {
	ShadowBanned bool `json:"shadow_banned"`
}

// SetShadowBan handles PUT /users/:id/shadow-ban.
func (h *Handler) SetShadowBan(c *gin.Context) {
	var req shadowBanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status, err := h.client.SetShadowBan(c.Request.Context(), c.Param("id"), req.ShadowBanned)
	if err != nil {
		h.fail(c, "set shadow ban", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

// UserReputation handles GET /users/:id/reputation.
func (h *Handler) UserReputation(c *gin.Context) {
	standing, err := h.client.UserReputation(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "get reputation", err)
		return
	}
	c.JSON(http.StatusOK, standing)
}

type activityRequest struct {
	Activity modguard.ActivityType `json:"activity" binding:"required"`
}

// RecordActivity handles POST /users/:id/reputation/events.
func (h *Handler) RecordActivity(c *gin.Context) {
	var req activityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	change, err := h.client.RecordActivity(c.Request.Context(), c.Param("id"), req.Activity)
	if err != nil {
		h.fail(c, "record activity", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"event":          change.Event,
		"level":          change.Level,
		"previous_level": change.Previous,
	})
}

// ListQueue handles GET /queue.
func (h *Handler) ListQueue(c *gin.Context) {
	items, err := h.client.PendingQueue(c.Request.Context(), queryLimit(c))
	if err != nil {
		h.fail(c, "list queue", err)
		return
	}
	if items == nil {
		items = []modguard.QueueItem{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

// NextQueueItem handles GET /queue/next.
func (h *Handler) NextQueueItem(c *gin.Context) {
	item, err := h.client.NextQueueItem(c.Request.Context())
	if errors.Is(err, modguard.ErrQueueEmpty) {
		c.Status(http.StatusNoContent)
		return
	}
	if err != nil {
		h.fail(c, "dequeue", err)
		return
	}
	c.JSON(http.StatusOK, item)
}

type dispositionRequest struct {
	Outcome         modguard.Outcome `json:"outcome" binding:"required"`
	Notes           string           `json:"notes"`
	DurationMinutes *int             `json:"duration_minutes"`
	ModeratorID     string           `json:"moderator_id"`
}

// Disposition handles POST /queue/:id/disposition.
func (h *Handler) Disposition(c *gin.Context) {
	var req dispositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.client.Dispose(c.Request.Context(), queue.Disposition{
		ItemID:          c.Param("id"),
		Outcome:         req.Outcome,
		Notes:           req.Notes,
		DurationMinutes: req.DurationMinutes,
		ModeratorID:     req.ModeratorID,
	})
	if err != nil {
		h.fail(c, "dispose queue item", err)
		return
	}

	body := gin.H{"success": true, "item": res.Item}
	if res.Sanction != nil {
		body["author_status"] = res.Sanction.Status()
	}
	c.JSON(http.StatusOK, body)
}

// ListFilters handles GET /filters.
func (h *Handler) ListFilters(c *gin.Context) {
	list, err := h.client.ListFilters(c.Request.Context())
	if err != nil {
		h.fail(c, "list filters", err)
		return
	}
	if list == nil {
		list = []modguard.ContentFilter{}
	}
	c.JSON(http.StatusOK, gin.H{"filters": list, "count": len(list)})
}

type filterRequest struct {
	Type     modguard.FilterType `json:"type" binding:"required"`
	Pattern  string              `json:"pattern" binding:"required"`
	IsRegex  bool                `json:"is_regex"`
	Severity int                 `json:"severity" binding:"required"`
	Active   *bool               `json:"active"`
}

// UpsertFilter handles PUT /filters/:id.
func (h *Handler) UpsertFilter(c *gin.Context) {
	var req filterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	f, err := h.client.UpsertFilter(c.Request.Context(), modguard.ContentFilter{
		ID:       c.Param("id"),
		Type:     req.Type,
		Pattern:  req.Pattern,
		IsRegex:  req.IsRegex,
		Severity: req.Severity,
		Active:   active,
	})
	if err != nil {
		h.fail(c, "upsert filter", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"filter": f})
}

// DeleteFilter handles DELETE /filters/:id.
func (h *Handler) DeleteFilter(c *gin.Context) {
	if err := h.client.DeleteFilter(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, "delete filter", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// fail maps err to a status code and writes it. Internal errors are logged
// and reported without detail.
func (h *Handler) fail(c *gin.Context, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(op, zap.Error(err))
		c.JSON(status, gin.H{"error": op + " failed"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case modguard.IsValidationError(err),
		errors.Is(err, modguard.ErrInvalidAction),
		errors.Is(err, modguard.ErrInvalidOutcome),
		errors.Is(err, modguard.ErrEmptyText):
		return http.StatusBadRequest
	case modguard.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, modguard.ErrQueueItemClosed),
		errors.Is(err, modguard.ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func queryLimit(c *gin.Context) int {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return limit
}
