package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CronSecretMiddleware 保护定时任务入口。外部调度器通常只能拼 URL，
// 因此同时接受 ?key= 与 X-Cron-Key。未配置密钥时一律拒绝。
func CronSecretMiddleware(secret string) gin.HandlerFunc {
	secret = strings.TrimSpace(secret)
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader("X-Cron-Key"))
		if key == "" {
			key = strings.TrimSpace(c.Query("key"))
		}
		if secret == "" || key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
