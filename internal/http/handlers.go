package http

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/maestro/backend/internal/events"
	"github.com/GriffinCanCode/maestro/backend/internal/providers/terminal"
	"github.com/GriffinCanCode/maestro/backend/internal/shared/types"
)

// Version is reported by the root and health endpoints
const Version = "0.3.0"

// Handlers contains all HTTP handlers
type Handlers struct {
	provider *terminal.Provider
	manager  *terminal.Manager
	hub      *events.Hub
	started  time.Time
}

// NewHandlers creates a new handler set
func NewHandlers(provider *terminal.Provider, hub *events.Hub) *Handlers {
	return &Handlers{
		provider: provider,
		manager:  provider.Manager(),
		hub:      hub,
		started:  time.Now(),
	}
}

// Root handles the liveness check
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "maestro-pty",
		"version": Version,
	})
}

// Health handles the detailed health check
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"version":  Version,
		"uptime":   time.Since(h.started).Round(time.Second).String(),
		"sessions": h.manager.Count(),
		"events": gin.H{
			"published":          h.hub.Published(),
			"stalled":            h.hub.Stalled(),
			"status_subscribers": h.hub.Subscribers(types.StatusTopic),
		},
		"commands": h.provider.Commands(),
	})
}

// ListSessions lists live sessions
func (h *Handlers) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, h.manager.List())
}

// SpawnSession starts a shell. The body is optional.
func (h *Handlers) SpawnSession(c *gin.Context) {
	var req types.SpawnArgs
	if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
		respondError(c, types.NewPtyError(types.CodeInvalidRequest, "%v", err))
		return
	}

	id, err := h.manager.SpawnMode(req.Cwd, req.Mode)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// KillSession terminates a session
func (h *Handlers) KillSession(c *gin.Context) {
	id, err := parseSessionID(c)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.manager.Kill(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "id": id})
}

// UpdateStatus applies a status change to a session
func (h *Handlers) UpdateStatus(c *gin.Context) {
	id, err := parseSessionID(c)
	if err != nil {
		respondError(c, err)
		return
	}

	var req struct {
		Status types.Status `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, types.NewPtyError(types.CodeInvalidRequest, "%v", err))
		return
	}

	changed, err := h.manager.UpdateStatus(id, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "changed": changed})
}

// AssignBranch records the branch a session works on
func (h *Handlers) AssignBranch(c *gin.Context) {
	id, err := parseSessionID(c)
	if err != nil {
		respondError(c, err)
		return
	}

	var req struct {
		Branch       string  `json:"branch" binding:"required"`
		WorktreePath *string `json:"worktree_path"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, types.NewPtyError(types.CodeInvalidRequest, "%v", err))
		return
	}

	meta, err := h.manager.AssignBranch(id, req.Branch, req.WorktreePath)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, meta)
}

// Invoke runs any backend command with the raw JSON body as arguments
func (h *Handlers) Invoke(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		respondError(c, types.NewPtyError(types.CodeInvalidRequest, "read body: %v", err))
		return
	}

	result, err := h.provider.Execute(c.Request.Context(), c.Param("command"), body)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}
