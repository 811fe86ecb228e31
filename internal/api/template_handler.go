package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"cvbuilder/internal/content"
)

// ListTemplates 返回模板目录，kind 默认为 cv。
func ListTemplates(c *gin.Context) {
	kind := content.Kind(c.DefaultQuery("kind", string(content.KindCV)))
	switch kind {
	case content.KindCV, content.KindCoverLetter:
	default:
		BadRequest(c, "kind must be cv or cover-letter")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"kind":      kind,
		"default":   content.DefaultTemplate(kind),
		"templates": content.Templates(kind),
	})
}
