package api

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"cvbuilder/internal/database"
	"cvbuilder/internal/document"
	"cvbuilder/internal/metrics"
	"cvbuilder/internal/pagination"
)

// DocumentHandler 为 CV 与求职信提供同一套 REST 接口。
type DocumentHandler[T any, P document.Record[T]] struct {
	svc    *document.Service[T, P]
	single string
	plural string
	view   func(P) any
}

func NewCVHandler(svc *document.CVService) *DocumentHandler[database.CV, *database.CV] {
	return &DocumentHandler[database.CV, *database.CV]{svc: svc, single: "cv", plural: "cvs", view: newCVView}
}

func NewCoverLetterHandler(svc *document.CoverLetterService) *DocumentHandler[database.CoverLetter, *database.CoverLetter] {
	return &DocumentHandler[database.CoverLetter, *database.CoverLetter]{svc: svc, single: "coverLetter", plural: "coverLetters", view: newCoverLetterView}
}

type saveDocumentRequest struct {
	ID           *uint           `json:"id"`
	Title        *string         `json:"title"`
	Template     *string         `json:"template"`
	AccentColor  *string         `json:"accentColor"`
	FontFamily   *string         `json:"fontFamily"`
	Preview      *string         `json:"preview"`
	Data         json.RawMessage `json:"data"`
	SectionOrder []string        `json:"sectionOrder"`
}

func (r saveDocumentRequest) input() document.SaveInput {
	data := bytes.TrimSpace(r.Data)
	if bytes.Equal(data, []byte("null")) {
		data = nil
	}
	return document.SaveInput{
		ID:           r.ID,
		Title:        r.Title,
		Template:     r.Template,
		AccentColor:  r.AccentColor,
		FontFamily:   r.FontFamily,
		Preview:      r.Preview,
		Data:         data,
		SectionOrder: r.SectionOrder,
	}
}

// Save 处理 POST（可带 id 实现 upsert）与 PUT /:id。
func (h *DocumentHandler[T, P]) Save(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var req saveDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if c.Param("id") != "" {
		id, ok := parseIDParam(c, "id")
		if !ok {
			BadRequest(c, "invalid id")
			return
		}
		req.ID = &id
	}

	doc, created, err := h.svc.Save(c.Request.Context(), userID, req.input())
	if err != nil {
		Fail(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	Success(c, status, h.single, h.view(doc))
}

// List 返回当前用户的全部文档摘要。
func (h *DocumentHandler[T, P]) List(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	docs, err := h.svc.List(c.Request.Context(), userID)
	if err != nil {
		Fail(c, err)
		return
	}
	items := make([]documentView, 0, len(docs))
	for i := range docs {
		items = append(items, newDocumentView(P(&docs[i]).Meta()))
	}
	Success(c, http.StatusOK, h.plural, items)
}

// Get 返回单个文档。
func (h *DocumentHandler[T, P]) Get(c *gin.Context) {
	h.withDocumentID(c, func(userID, id uint) {
		doc, err := h.svc.Get(c.Request.Context(), userID, id)
		if err != nil {
			Fail(c, err)
			return
		}
		Success(c, http.StatusOK, h.single, h.view(doc))
	})
}

type renameRequest struct {
	Title string `json:"title"`
}

// Rename 修改标题。
func (h *DocumentHandler[T, P]) Rename(c *gin.Context) {
	h.withDocumentID(c, func(userID, id uint) {
		var req renameRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			BadRequest(c, err.Error())
			return
		}
		doc, err := h.svc.Rename(c.Request.Context(), userID, id, req.Title)
		if err != nil {
			Fail(c, err)
			return
		}
		Success(c, http.StatusOK, h.single, newDocumentView(doc.Meta()))
	})
}

// Copy 复制文档。
func (h *DocumentHandler[T, P]) Copy(c *gin.Context) {
	h.withDocumentID(c, func(userID, id uint) {
		doc, err := h.svc.Copy(c.Request.Context(), userID, id)
		if err != nil {
			Fail(c, err)
			return
		}
		Success(c, http.StatusCreated, h.single, h.view(doc))
	})
}

// Delete 删除文档。
func (h *DocumentHandler[T, P]) Delete(c *gin.Context) {
	h.withDocumentID(c, func(userID, id uint) {
		if err := h.svc.Delete(c.Request.Context(), userID, id); err != nil {
			Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	})
}

// Download 返回供客户端渲染的完整文档，需要有效订阅。
func (h *DocumentHandler[T, P]) Download(c *gin.Context) {
	h.withDocumentID(c, func(userID, id uint) {
		doc, err := h.svc.Download(c.Request.Context(), userID, id)
		if err != nil {
			Fail(c, err)
			return
		}
		metrics.DocumentDownloaded(h.svc.Kind().DocumentType)
		Success(c, http.StatusOK, h.single, h.view(doc))
	})
}

// AdminList 分页列出所有用户的文档。
func (h *DocumentHandler[T, P]) AdminList(c *gin.Context) {
	q := document.ListQuery{
		Params:    paginationFromQuery(c),
		Template:  c.Query("template"),
		Search:    c.Query("search"),
		SortBy:    c.Query("sortBy"),
		SortOrder: c.Query("sortOrder"),
	}
	if raw := c.Query("userId"); raw != "" {
		id, ok := parseUintQuery(raw)
		if !ok {
			BadRequest(c, "invalid userId")
			return
		}
		q.UserID = id
	}

	page, err := h.svc.ListAll(c.Request.Context(), q)
	if err != nil {
		Fail(c, err)
		return
	}
	views := pagination.Map(page, func(doc T) documentView {
		return newDocumentView(P(&doc).Meta())
	})
	pageResponse(c, h.plural, views)
}

func (h *DocumentHandler[T, P]) withDocumentID(c *gin.Context, fn func(userID, id uint)) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		BadRequest(c, "invalid id")
		return
	}
	fn(userID, id)
}
