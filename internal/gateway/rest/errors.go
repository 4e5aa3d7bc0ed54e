package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agentcom/agentcom/internal/agent"
	"github.com/agentcom/agentcom/internal/common/logger"
	"github.com/agentcom/agentcom/internal/queue"
	"github.com/agentcom/agentcom/internal/storage"
)

// respondError maps service errors onto HTTP statuses. Unrecognized errors
// are logged and reported as a generic 500 so storage details stay out of
// responses.
func respondError(c *gin.Context, log *logger.Logger, err error) {
	var invalidState *queue.InvalidStateError
	switch {
	case errors.Is(err, queue.ErrNotFound),
		errors.Is(err, agent.ErrAgentNotFound),
		errors.Is(err, storage.ErrKeyNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, queue.ErrInvalidParams):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, queue.ErrNotAssigned),
		errors.Is(err, queue.ErrStaleGeneration),
		errors.As(err, &invalidState):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		log.WithContext(c.Request.Context()).Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "request failed"})
	}
}
