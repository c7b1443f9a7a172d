// Package middleware 存放 Gin 框架的中间件。
package middleware

import (
	"bytes"
	"time"

	"github.com/gin-gonic/gin"
	"kb-vectorizer/pkg/log"
)

// 响应体超过该长度时截断后再记录。
const maxLoggedBody = 2048

// bodyLogWriter 用于捕获响应体
type bodyLogWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

// Write 实现了 io.Writer 接口，将响应写入 gin.ResponseWriter 和一个内部的 buffer
func (w bodyLogWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// RequestLogger 是一个 Gin 中间件，记录请求的状态码、耗时与响应摘要。
// 请求体可能包含文档内容，不做记录。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		blw := &bodyLogWriter{body: bytes.NewBufferString(""), ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		responseBody := blw.body.String()
		if len(responseBody) > maxLoggedBody {
			responseBody = responseBody[:maxLoggedBody] + "...(truncated)"
		}

		log.Infow("HTTP Request Log",
			"statusCode", c.Writer.Status(),
			"latency", time.Since(startTime).String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"responseBody", responseBody,
		)
	}
}
