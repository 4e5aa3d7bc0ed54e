package websocket

import (
	"github.com/gin-gonic/gin"

	"github.com/agentcom/agentcom/internal/common/logger"
)

// Gateway bundles the agent-facing WebSocket surface.
type Gateway struct {
	Hub     *Hub
	Handler *Handler
	logger  *logger.Logger
}

// NewGateway wires the hub and connection handler over shared
// collaborators.
func NewGateway(deps Deps, opts Options, log *logger.Logger) *Gateway {
	if log == nil {
		log = logger.Default()
	}
	hub := NewHub(deps.Queue, deps.EventBus, log)
	handler := NewHandler(hub, deps, opts, log)
	return &Gateway{Hub: hub, Handler: handler, logger: log}
}

// Start begins relaying assignment events to sessions.
func (g *Gateway) Start() error {
	return g.Hub.Start()
}

// Stop drops the relay subscription and closes every live session.
func (g *Gateway) Stop() {
	g.Hub.Stop()
}

// SetupRoutes adds the agent WebSocket endpoint to the Gin engine.
func (g *Gateway) SetupRoutes(router *gin.Engine) {
	router.GET("/ws", g.Handler.HandleAgentConnection)
}
