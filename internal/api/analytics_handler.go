package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"cvbuilder/internal/database"
)

// documentRecorder 由 document.Service 实现，只允许记录属于调用者的文档。
type documentRecorder interface {
	Record(ctx context.Context, userID, id uint, action string, metadata map[string]any) error
}

// AnalyticsHandler 接收客户端上报的查看与下载事件。
type AnalyticsHandler struct {
	recorders map[string]documentRecorder
}

func NewAnalyticsHandler(cvs, letters documentRecorder) *AnalyticsHandler {
	return &AnalyticsHandler{recorders: map[string]documentRecorder{
		database.DocumentTypeCV:          cvs,
		database.DocumentTypeCoverLetter: letters,
	}}
}

type analyticsEventRequest struct {
	DocumentType string         `json:"documentType" binding:"required"`
	DocumentID   uint           `json:"documentId" binding:"required"`
	Action       string         `json:"action" binding:"required"`
	Metadata     map[string]any `json:"metadata"`
}

// RecordEvent 校验文档归属后异步写入事件，立即返回 202。
func (h *AnalyticsHandler) RecordEvent(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var req analyticsEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	recorder, ok := h.recorders[req.DocumentType]
	if !ok {
		BadRequest(c, "documentType must be CV or CoverLetter")
		return
	}
	if err := recorder.Record(c.Request.Context(), userID, req.DocumentID, req.Action, req.Metadata); err != nil {
		Fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"success": true})
}
