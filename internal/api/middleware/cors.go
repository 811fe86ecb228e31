package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CORSMiddleware 为 pathPrefix 下的请求回显允许的来源，并直接应答预检请求。
// 需挂在 engine 上，否则未注册 OPTIONS 路由的预检会先被 404。
func CORSMiddleware(allowedOrigin, pathPrefix string) gin.HandlerFunc {
	allowedOrigin = strings.TrimSpace(allowedOrigin)
	return func(c *gin.Context) {
		if !strings.HasPrefix(c.Request.URL.Path, pathPrefix) {
			c.Next()
			return
		}

		origin := c.GetHeader("Origin")
		if allowedOrigin != "" && origin != "" && (allowedOrigin == "*" || origin == allowedOrigin) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Correlation-ID")
			h.Set("Access-Control-Max-Age", "86400")
			h.Add("Vary", "Origin")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
