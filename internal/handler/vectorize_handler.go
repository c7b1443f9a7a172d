// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"kb-vectorizer/internal/pipeline"
	"kb-vectorizer/internal/repository"
	"kb-vectorizer/internal/service"
	"kb-vectorizer/pkg/log"
)

// VectorizeHandler 负责处理向量化批处理、触发与状态查询的内部请求。
type VectorizeHandler struct {
	vectorizeService service.VectorizeService
}

// NewVectorizeHandler 创建一个新的 VectorizeHandler 实例。
func NewVectorizeHandler(vectorizeService service.VectorizeService) *VectorizeHandler {
	return &VectorizeHandler{vectorizeService: vectorizeService}
}

// RunBatch 同步执行一次批处理，请求体可选。
// 只要批处理本身执行完毕就返回 200，单篇文档的失败体现在 errors 中。
func (h *VectorizeHandler) RunBatch(c *gin.Context) {
	var opts pipeline.BatchOptions
	if !bindOptionalJSON(c, &opts) {
		return
	}
	h.runBatch(c, opts)
}

// OrgRunBatch 对指定组织的知识库执行一次批处理。
func (h *VectorizeHandler) OrgRunBatch(c *gin.Context) {
	var opts pipeline.BatchOptions
	if !bindOptionalJSON(c, &opts) {
		return
	}
	opts.OrganizationID = c.Param("orgId")
	h.runBatch(c, opts)
}

func (h *VectorizeHandler) runBatch(c *gin.Context, opts pipeline.BatchOptions) {
	result, err := h.vectorizeService.RunBatch(c.Request.Context(), opts)
	if err != nil {
		log.Errorf("[VectorizeHandler] 批处理执行失败, organization: %q, error: %v", opts.OrganizationID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "批处理执行失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "批处理执行完成",
		"data":    result,
	})
}

// Trigger 异步提交一次批处理并立即返回。
func (h *VectorizeHandler) Trigger(c *gin.Context) {
	var req service.TriggerRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	if req.Reason == "" {
		req.Reason = "api"
	}
	triggerID := h.vectorizeService.Trigger(c.Request.Context(), req)
	c.JSON(http.StatusAccepted, gin.H{
		"code":    http.StatusAccepted,
		"message": "向量化任务已提交",
		"data":    gin.H{"triggerId": triggerID},
	})
}

// Status 返回向量化进度，可按 organizationId 过滤。
func (h *VectorizeHandler) Status(c *gin.Context) {
	summary, err := h.vectorizeService.Progress(c.Request.Context(), c.Query("organizationId"))
	if err != nil {
		log.Error("[VectorizeHandler] 查询向量化进度失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询向量化进度失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    summary,
	})
}

// DocumentStatus 返回单个文档的向量化状态。
func (h *VectorizeHandler) DocumentStatus(c *gin.Context) {
	status, err := h.vectorizeService.DocumentStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "文档不存在"})
			return
		}
		log.Error("[VectorizeHandler] 查询文档状态失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询文档状态失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    status,
	})
}

// bindOptionalJSON 解析可选的 JSON 请求体，空请求体视为零值。解析失败时已写入 400 响应。
func bindOptionalJSON(c *gin.Context, obj interface{}) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求参数"})
		return false
	}
	return true
}
