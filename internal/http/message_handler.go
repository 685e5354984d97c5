package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dm-chat/internal/service"
)

// MessageHandler expone la consulta de historial de conversaciones.
type MessageHandler struct {
	logger   *zap.Logger
	chatServ *service.ChatService
}

func NewMessageHandler(logger *zap.Logger, chatServ *service.ChatService) *MessageHandler {
	return &MessageHandler{logger: logger, chatServ: chatServ}
}

// GetConversation maneja GET /api/messages/:receiverId: el historial entre
// el usuario autenticado y el interlocutor, ordenado, con citas resueltas.
func (h *MessageHandler) GetConversation(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	counterpartID := c.Param("receiverId")
	if counterpartID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing receiver id"})
		return
	}

	messages, err := h.chatServ.History(c.Request.Context(), claims.UserID, counterpartID)
	if err != nil {
		h.logger.Error("list conversation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// PurgeMessages maneja DELETE /api/messages: vacía el historial completo.
func (h *MessageHandler) PurgeMessages(c *gin.Context) {
	if err := h.chatServ.Purge(c.Request.Context()); err != nil {
		h.logger.Error("purge failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not purge messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "purged"})
}
