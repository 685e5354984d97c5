package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"dm-chat/internal/service"
	"dm-chat/internal/ws"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// El token autentica la sesión; el origen no se restringe.
		return true
	},
}

// WSHandler autentica y promueve conexiones al gateway en tiempo real.
type WSHandler struct {
	logger  *zap.Logger
	jwtServ *service.JWTService
	gateway *ws.Gateway
}

func NewWSHandler(logger *zap.Logger, jwtServ *service.JWTService, gateway *ws.Gateway) *WSHandler {
	return &WSHandler{logger: logger, jwtServ: jwtServ, gateway: gateway}
}

// Serve maneja GET /ws?token=... El handshake WebSocket no lleva headers, el
// access token viaja en la query y fija la identidad de la sesión entera.
func (h *WSHandler) Serve(c *gin.Context) {
	claims, err := h.jwtServ.ParseAccessToken(c.Query("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}

	h.gateway.HandleConnection(c.Request.Context(), conn, claims.UserID)
}
