package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"kb-vectorizer/pkg/log"
)

// APIKeyHeader 是内部接口使用的共享密钥请求头。
const APIKeyHeader = "x-api-key"

// InternalAuth 创建一个 Gin 中间件，校验 x-api-key 请求头。
// 未配置密钥时拒绝所有请求。
func InternalAuth(apiKey string) gin.HandlerFunc {
	if apiKey == "" {
		log.Warnf("[InternalAuth] 未配置 internal.api_key, 所有内部接口将拒绝访问")
	}
	expected := []byte(apiKey)
	return func(c *gin.Context) {
		provided := []byte(c.GetHeader(APIKeyHeader))
		if len(expected) == 0 || subtle.ConstantTimeCompare(provided, expected) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}
