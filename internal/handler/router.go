package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"kb-vectorizer/internal/middleware"
)

// RegisterRoutes 注册内部接口、指标与健康检查路由。
// ingest 为 nil 时不注册文档解析路由。
func RegisterRoutes(r *gin.Engine, apiKey string, vectorize *VectorizeHandler, ingest *IngestHandler) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	internal := r.Group("/api/internal")
	internal.Use(middleware.InternalAuth(apiKey))
	{
		internal.POST("/vectorize", vectorize.RunBatch)
		internal.POST("/vectorize/trigger", vectorize.Trigger)
		internal.GET("/vectorize/status", vectorize.Status)
		internal.POST("/organizations/:orgId/knowledge-base/vectorize", vectorize.OrgRunBatch)

		documents := internal.Group("/documents/:id")
		{
			documents.GET("/vectorization", vectorize.DocumentStatus)
			if ingest != nil {
				documents.POST("/ingest/upload", ingest.IngestUpload)
				documents.POST("/ingest/editor", ingest.IngestEditor)
			}
		}
	}
}
