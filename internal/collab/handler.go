package collab

import (
	"csvlens-be/internal/pkg/auth"
	"csvlens-be/internal/pkg/logger"
	"csvlens-be/internal/pkg/serverutils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// Handler exposes the collaboration endpoints: the websocket upgrade and the
// admin-facing active-session stats.
type Handler struct {
	hub      *Hub
	verifier auth.TokenVerifier
	stats    *PresenceReporter
	logger   logger.ILogger
}

func NewHandler(hub *Hub, verifier auth.TokenVerifier, stats *PresenceReporter, log logger.ILogger) *Handler {
	return &Handler{
		hub:      hub,
		verifier: verifier,
		stats:    stats,
		logger:   log,
	}
}

// ServeWs is the connection auth gate. A missing or invalid token does NOT
// close the connection; it proceeds as degraded and is rejected later at the
// point of joining a session.
func (h *Handler) ServeWs(c *fiber.Ctx) error {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		authHeader := c.Get("Authorization")
		if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
			tokenStr = authHeader[7:]
		}
	}

	var identity *auth.Identity
	authenticated := false

	if tokenStr == "" {
		h.logger.Warn("CollabHandler", "Connection without token, proceeding degraded", map[string]interface{}{
			"ip": c.IP(),
		})
	} else if verified, err := h.verifier.Verify(tokenStr); err != nil {
		h.logger.Warn("CollabHandler", "Token verification failed, proceeding degraded", map[string]interface{}{
			"ip":    c.IP(),
			"error": err.Error(),
		})
	} else {
		identity = verified
		authenticated = true
	}

	if websocket.IsWebSocketUpgrade(c) {
		return websocket.New(func(ws *websocket.Conn) {
			ServeClient(h.hub, ws, identity, authenticated, h.logger)
		})(c)
	}
	return fiber.ErrUpgradeRequired
}

// ActiveSessions reports live per-document participant counts from the Redis
// mirror.
func (h *Handler) ActiveSessions(c *fiber.Ctx) error {
	if h.stats == nil {
		return c.JSON(fiber.Map{"sessions": map[string]int64{}})
	}
	sessions, err := h.stats.ActiveSessions(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"sessions": sessions})
}

func (h *Handler) RegisterRoutes(router fiber.Router) {
	collab := router.Group("/collab")
	collab.Get("/ws", h.ServeWs)
	collab.Get("/active", serverutils.JwtMiddleware, h.ActiveSessions)
}
