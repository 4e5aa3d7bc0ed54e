// Package rest is the submission and admin surface of the hub: task
// submission and inspection, dead-letter management, queue stats, the agent
// registry snapshot, and runtime config keys.
package rest

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agentcom/agentcom/internal/agent"
	"github.com/agentcom/agentcom/internal/common/logger"
	"github.com/agentcom/agentcom/internal/queue"
	"github.com/agentcom/agentcom/internal/storage"
)

type Handlers struct {
	queue    *queue.Service
	registry *agent.Registry
	config   storage.Table
	logger   *logger.Logger
}

func NewHandlers(q *queue.Service, registry *agent.Registry, config storage.Table, log *logger.Logger) *Handlers {
	return &Handlers{
		queue:    q,
		registry: registry,
		config:   config,
		logger:   log.WithFields(zap.String("component", "rest_api")),
	}
}

// RegisterRoutes mounts the API under /api/v1.
func RegisterRoutes(router *gin.Engine, q *queue.Service, registry *agent.Registry, config storage.Table, log *logger.Logger) {
	h := NewHandlers(q, registry, config, log)
	api := router.Group("/api/v1")
	api.POST("/tasks", h.httpSubmitTask)
	api.GET("/tasks", h.httpListTasks)
	api.GET("/tasks/:id", h.httpGetTask)
	api.POST("/tasks/:id/retry", h.httpRetryTask)
	api.POST("/tasks/:id/reclaim", h.httpReclaimTask)
	api.DELETE("/tasks/:id", h.httpPurgeTask)
	api.GET("/stats", h.httpStats)
	api.GET("/agents", h.httpListAgents)
	api.GET("/config/:key", h.httpGetConfig)
	api.PUT("/config/:key", h.httpPutConfig)
}

type submitTaskRequest struct {
	Description        string         `json:"description"`
	Priority           string         `json:"priority,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	MaxRetries         int            `json:"max_retries,omitempty"`
	CompleteByMs       int64          `json:"complete_by_ms,omitempty"`
	NeededCapabilities []string       `json:"needed_capabilities,omitempty"`
	DependsOn          []string       `json:"depends_on,omitempty"`
	Repo               string         `json:"repo,omitempty"`
	AssignTo           string         `json:"assign_to,omitempty"`
}

func (h *Handlers) httpSubmitTask(c *gin.Context) {
	var body submitTaskRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	task, err := h.queue.Submit(c.Request.Context(), queue.SubmitParams{
		Description:        body.Description,
		Metadata:           body.Metadata,
		Priority:           body.Priority,
		MaxRetries:         body.MaxRetries,
		CompleteByMs:       body.CompleteByMs,
		NeededCapabilities: body.NeededCapabilities,
		DependsOn:          body.DependsOn,
		Repo:               body.Repo,
		AssignTo:           body.AssignTo,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (h *Handlers) httpGetTask(c *gin.Context) {
	task, err := h.queue.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

type listTasksResponse struct {
	Tasks []*queue.Task `json:"tasks"`
	Total int           `json:"total"`
}

func (h *Handlers) httpListTasks(c *gin.Context) {
	tasks, err := h.queue.List(c.Request.Context(), queue.Filter{
		Status:   c.Query("status"),
		Priority: c.Query("priority"),
		Assignee: c.Query("assignee"),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, listTasksResponse{Tasks: tasks, Total: len(tasks)})
}

func (h *Handlers) httpRetryTask(c *gin.Context) {
	task, err := h.queue.RetryDeadLetter(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

type reclaimTaskRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (h *Handlers) httpReclaimTask(c *gin.Context) {
	// The body is optional; an empty request reclaims with the default
	// reason.
	var body reclaimTaskRequest
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	reason := body.Reason
	if reason == "" {
		reason = "manual"
	}
	task, err := h.queue.Reclaim(c.Request.Context(), c.Param("id"), reason)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *Handlers) httpPurgeTask(c *gin.Context) {
	if err := h.queue.PurgeDeadLetter(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) httpStats(c *gin.Context) {
	stats, err := h.queue.Stats(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

type listAgentsResponse struct {
	Agents []*agent.Agent `json:"agents"`
	Total  int            `json:"total"`
}

func (h *Handlers) httpListAgents(c *gin.Context) {
	agents := h.registry.ListAll(c.Request.Context())
	c.JSON(http.StatusOK, listAgentsResponse{Agents: agents, Total: len(agents)})
}

type configEntry struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

func (h *Handlers) httpGetConfig(c *gin.Context) {
	key := c.Param("key")
	var value any
	if err := h.config.Get(c.Request.Context(), key, &value); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, configEntry{Key: key, Value: value})
}

type putConfigRequest struct {
	Value any `json:"value"`
}

func (h *Handlers) httpPutConfig(c *gin.Context) {
	key := c.Param("key")
	var body putConfigRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if err := h.config.Put(c.Request.Context(), key, body.Value); err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.logger.Info("Config key updated", zap.String("key", key))
	c.JSON(http.StatusOK, configEntry{Key: key, Value: body.Value})
}
