package websocket

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/agentcom/agentcom/internal/common/logger"
)

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkWebSocketOrigin,
}

// checkWebSocketOrigin validates the Origin header to prevent cross-site
// WebSocket hijacking. Non-browser clients send no Origin and are
// admitted; browsers must be same-origin or localhost.
func checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if strings.HasPrefix(origin, "http://localhost") ||
		strings.HasPrefix(origin, "https://localhost") ||
		strings.HasPrefix(origin, "http://127.0.0.1") ||
		strings.HasPrefix(origin, "https://127.0.0.1") {
		return true
	}

	host := r.Host
	if host == "" {
		host = r.URL.Host
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}

	// Compare hosts ignoring ports, careful with IPv6 literals.
	requestHost := host
	if colonIdx := strings.LastIndex(requestHost, ":"); colonIdx != -1 {
		if !strings.Contains(requestHost, "]") || colonIdx > strings.Index(requestHost, "]") {
			requestHost = requestHost[:colonIdx]
		}
	}
	return originURL.Hostname() == requestHost
}

// Handler upgrades HTTP requests into agent sessions.
type Handler struct {
	hub    *Hub
	deps   Deps
	opts   Options
	logger *logger.Logger
}

// NewHandler creates the upgrade handler.
func NewHandler(hub *Hub, deps Deps, opts Options, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Default()
	}
	return &Handler{
		hub:    hub,
		deps:   deps,
		opts:   opts,
		logger: log.WithFields(zap.String("component", "ws_handler")),
	}
}

// HandleAgentConnection upgrades the request and serves the session until
// the connection drops. Identity is established by the first frame, not
// the HTTP request.
func (h *Handler) HandleAgentConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection", zap.Error(err))
		return
	}

	h.logger.Debug("WebSocket connection established",
		zap.String("remote_addr", c.Request.RemoteAddr))

	session := NewSession(conn, h.hub, h.deps, h.opts, h.logger)
	go session.WritePump()
	session.ReadPump(c.Request.Context())
}
