package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"cvbuilder/internal/api/middleware"
	"cvbuilder/internal/pagination"
)

func userIDFromContext(c *gin.Context) (uint, bool) {
	value, exists := c.Get(middleware.UserIDKey)
	if !exists {
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, v != 0
	case int:
		if v <= 0 {
			return 0, false
		}
		return uint(v), true
	case uint64:
		return uint(v), v != 0
	default:
		return 0, false
	}
}

// parseIDParam 解析路径中的正整数 ID。
func parseIDParam(c *gin.Context, name string) (uint, bool) {
	return parseUintQuery(c.Param(name))
}

func parseUintQuery(raw string) (uint, bool) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// paginationFromQuery 读取 page 与 limit，非法值回落到默认值。
func paginationFromQuery(c *gin.Context) pagination.Params {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	return pagination.Params{Page: page, Limit: limit}.Normalize()
}

// pageResponse 输出分页结果。
func pageResponse[T any](c *gin.Context, key string, page pagination.Page[T]) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		key:       page.Items,
		"total":   page.Total,
		"page":    page.Page,
		"limit":   page.Limit,
		"pages":   page.Pages,
	})
}
