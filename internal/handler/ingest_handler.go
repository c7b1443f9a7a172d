package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"kb-vectorizer/internal/model"
	"kb-vectorizer/internal/repository"
	"kb-vectorizer/internal/service"
	"kb-vectorizer/pkg/log"
)

// IngestHandler 负责在文档内容变化后重新提取文本。
type IngestHandler struct {
	ingestService service.IngestService
}

// NewIngestHandler 创建一个新的 IngestHandler 实例。
func NewIngestHandler(ingestService service.IngestService) *IngestHandler {
	return &IngestHandler{ingestService: ingestService}
}

// IngestUpload 解析文档的上传文件。
func (h *IngestHandler) IngestUpload(c *gin.Context) {
	status, err := h.ingestService.IngestUploadedFile(c.Request.Context(), c.Param("id"))
	h.respond(c, status, err)
}

// IngestEditor 解析文档的编辑器内容。
func (h *IngestHandler) IngestEditor(c *gin.Context) {
	status, err := h.ingestService.IngestEditorContent(c.Request.Context(), c.Param("id"))
	h.respond(c, status, err)
}

func (h *IngestHandler) respond(c *gin.Context, status *model.DocumentStatus, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{
			"code":    http.StatusOK,
			"message": "文档文本已更新",
			"data":    status,
		})
	case errors.Is(err, repository.ErrDocumentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "文档不存在"})
	case errors.Is(err, service.ErrNoContentSource):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrIngestUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		log.Errorf("[IngestHandler] 文档解析失败, documentID: %s, error: %v", c.Param("id"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "文档解析失败"})
	}
}
