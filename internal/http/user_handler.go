package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dm-chat/internal/service"
)

// UserHandler expone el directorio de usuarios.
type UserHandler struct {
	logger   *zap.Logger
	userServ *service.UserService
}

func NewUserHandler(logger *zap.Logger, userServ *service.UserService) *UserHandler {
	return &UserHandler{logger: logger, userServ: userServ}
}

// ListUsers maneja GET /api/users: todos los usuarios menos el que consulta.
func (h *UserHandler) ListUsers(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	users, err := h.userServ.List(c.Request.Context(), claims.UserID)
	if err != nil {
		h.logger.Error("list users failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list users"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"users": users})
}
