package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dm-chat/internal/service"
)

// UploadHandler recibe adjuntos y devuelve la referencia opaca que los
// mensajes almacenan verbatim.
type UploadHandler struct {
	logger     *zap.Logger
	uploadServ *service.UploadService
}

func NewUploadHandler(logger *zap.Logger, uploadServ *service.UploadService) *UploadHandler {
	return &UploadHandler{logger: logger, uploadServ: uploadServ}
}

// Upload maneja POST /api/upload (multipart, campo "file").
func (h *UploadHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file uploaded"})
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		h.logger.Error("open upload failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read file"})
		return
	}
	defer src.Close()

	result, err := h.uploadServ.Save(fileHeader.Filename, src)
	if err != nil {
		h.logger.Error("save upload failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store file"})
		return
	}

	c.JSON(http.StatusOK, result)
}
