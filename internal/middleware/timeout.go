package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
)

// Timeout 返回一个 Gin 中间件，为每个请求的 Context 设置截止时间。
// 超时后下游的 Redis/DB 调用会随 Context 取消而失败。
func Timeout(d time.Duration) gin.HandlerFunc {
	if d <= 0 {
		panic("timeout duration must be positive for Timeout middleware")
	}
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
