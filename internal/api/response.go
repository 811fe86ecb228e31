package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"cvbuilder/internal/api/middleware"
	"cvbuilder/internal/errcode"
)

func Error(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

func AbortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

func Unauthorized(c *gin.Context)           { Error(c, http.StatusUnauthorized, "unauthorized") }
func BadRequest(c *gin.Context, msg string) { Error(c, http.StatusBadRequest, msg) }
func Forbidden(c *gin.Context, msg string)  { Error(c, http.StatusForbidden, msg) }
func NotFound(c *gin.Context, msg string)   { Error(c, http.StatusNotFound, msg) }
func Conflict(c *gin.Context, msg string)   { Error(c, http.StatusConflict, msg) }
func Internal(c *gin.Context, msg string)   { Error(c, http.StatusInternalServerError, msg) }

// Success 输出 {"success": true, key: value}。
func Success(c *gin.Context, status int, key string, value any) {
	c.JSON(status, gin.H{"success": true, key: value})
}

// Fail 把服务层错误映射为响应。5xx 的内部原因只写日志，不返回给客户端。
func Fail(c *gin.Context, err error) {
	status := errcode.HTTPStatus(err)
	logger := middleware.LoggerFromContext(c)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", slog.Any("error", err))
	} else {
		logger.Debug("request rejected", slog.Int("status", status), slog.Any("error", err))
	}
	Error(c, status, errcode.Message(err))
}
