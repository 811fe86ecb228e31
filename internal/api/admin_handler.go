package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"cvbuilder/internal/analytics"
	"cvbuilder/internal/api/middleware"
	"cvbuilder/internal/auth"
	"cvbuilder/internal/database"
	"cvbuilder/internal/pagination"
	"cvbuilder/internal/storage"
	"cvbuilder/internal/subscription"
)

// userDocuments 由 document.Service 实现。
type userDocuments interface {
	DeleteAllForUser(ctx context.Context, userID uint) (int64, error)
	Count(ctx context.Context, userID uint) (int64, error)
}

// assetCleaner 由 *storage.Client 实现。
type assetCleaner interface {
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// eventCounter 由 *analytics.Store 实现。
type eventCounter interface {
	CountByAction(ctx context.Context, userID uint) ([]analytics.Count, error)
	CountForDocument(ctx context.Context, documentType string, documentID uint) (map[string]int64, error)
}

// AdminHandler 提供用户管理与全站统计，路由层要求 admin 角色。
type AdminHandler struct {
	db      *gorm.DB
	cvs     userDocuments
	letters userDocuments
	subs    *subscription.Service
	events  eventCounter
	assets  assetCleaner
}

func NewAdminHandler(db *gorm.DB, cvs, letters userDocuments, subs *subscription.Service, events eventCounter, assets assetCleaner) *AdminHandler {
	return &AdminHandler{
		db:      db,
		cvs:     cvs,
		letters: letters,
		subs:    subs,
		events:  events,
		assets:  assets,
	}
}

// ListUsers 分页列出用户，支持按姓名或邮箱搜索以及角色、状态过滤。
func (h *AdminHandler) ListUsers(c *gin.Context) {
	params := paginationFromQuery(c)
	query := h.db.WithContext(c.Request.Context()).Model(&database.User{})

	if search := strings.TrimSpace(c.Query("search")); search != "" {
		like := pagination.ContainsPattern(search)
		query = query.Where("(LOWER(name) LIKE ? "+pagination.LikeEscape+" OR LOWER(email) LIKE ? "+pagination.LikeEscape+")", like, like)
	}
	if role := c.Query("role"); role != "" {
		if !isValidRole(role) {
			BadRequest(c, "invalid role")
			return
		}
		query = query.Where("role = ?", role)
	}
	if status := c.Query("status"); status != "" {
		if !isValidUserStatus(status) {
			BadRequest(c, "invalid status")
			return
		}
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		middleware.LoggerFromContext(c).Error("count users failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	var users []database.User
	if err := query.Order("created_at DESC, id DESC").
		Offset(params.Offset()).
		Limit(params.Limit).
		Find(&users).Error; err != nil {
		middleware.LoggerFromContext(c).Error("list users failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	page := pagination.NewPage(users, total, params)
	pageResponse(c, "users", pagination.Map(page, newUserView))
}

type updateRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// UpdateRole 修改用户角色，管理员不能降级自己。
func (h *AdminHandler) UpdateRole(c *gin.Context) {
	var req updateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if !isValidRole(req.Role) {
		BadRequest(c, "invalid role")
		return
	}
	h.withTargetUser(c, func(adminID uint, user *database.User) {
		if user.ID == adminID && req.Role != database.RoleAdmin {
			Forbidden(c, "cannot change your own role")
			return
		}
		h.updateUser(c, user, "role", req.Role)
	})
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateStatus 启用、停用或封禁用户，管理员不能停用自己。
func (h *AdminHandler) UpdateStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if !isValidUserStatus(req.Status) {
		BadRequest(c, "invalid status")
		return
	}
	h.withTargetUser(c, func(adminID uint, user *database.User) {
		if user.ID == adminID && req.Status != database.StatusActive {
			Forbidden(c, "cannot change your own status")
			return
		}
		h.updateUser(c, user, "status", req.Status)
	})
}

type resetPasswordRequest struct {
	Password string `json:"password" binding:"required"`
}

// ResetPassword 由管理员直接设置新密码。
func (h *AdminHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		BadRequest(c, err.Error())
		return
	}
	h.withTargetUser(c, func(_ uint, user *database.User) {
		hashed, err := auth.HashPassword(req.Password)
		if err != nil {
			middleware.LoggerFromContext(c).Error("reset password: hash failed", slog.Any("error", err))
			Internal(c, "internal error")
			return
		}
		if err := h.db.WithContext(c.Request.Context()).Model(user).Update("password_hash", hashed).Error; err != nil {
			middleware.LoggerFromContext(c).Error("reset password: update failed", slog.Any("error", err))
			Internal(c, "internal error")
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	})
}

// DeleteUser 删除账号及其文档和上传资源。订阅与付款记录保留用于对账。
func (h *AdminHandler) DeleteUser(c *gin.Context) {
	h.withTargetUser(c, func(adminID uint, user *database.User) {
		if user.ID == adminID {
			Forbidden(c, "cannot delete your own account")
			return
		}
		ctx := c.Request.Context()
		logger := middleware.LoggerFromContext(c).With(slog.Uint64("target_user_id", uint64(user.ID)))

		cvs, err := h.cvs.DeleteAllForUser(ctx, user.ID)
		if err != nil {
			Fail(c, err)
			return
		}
		letters, err := h.letters.DeleteAllForUser(ctx, user.ID)
		if err != nil {
			Fail(c, err)
			return
		}
		if err := h.db.WithContext(ctx).Unscoped().Delete(&database.User{}, user.ID).Error; err != nil {
			logger.Error("delete user failed", slog.Any("error", err))
			Internal(c, "internal error")
			return
		}

		assets := 0
		if h.assets != nil {
			n, err := h.assets.DeletePrefix(ctx, storage.UserAssetPrefix(user.ID))
			if err != nil {
				logger.Error("delete user assets failed", slog.Any("error", err))
			}
			assets = n
		}

		logger.Info("user deleted",
			slog.Int64("cvs", cvs),
			slog.Int64("cover_letters", letters),
			slog.Int("assets", assets),
		)
		c.JSON(http.StatusOK, gin.H{
			"success":             true,
			"deletedCVs":          cvs,
			"deletedCoverLetters": letters,
			"deletedAssets":       assets,
		})
	})
}

// Stats 返回全站计数、有效订阅数与收入。
func (h *AdminHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()

	var users int64
	if err := h.db.WithContext(ctx).Model(&database.User{}).Count(&users).Error; err != nil {
		middleware.LoggerFromContext(c).Error("count users failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	cvs, err := h.cvs.Count(ctx, 0)
	if err != nil {
		Fail(c, err)
		return
	}
	letters, err := h.letters.Count(ctx, 0)
	if err != nil {
		Fail(c, err)
		return
	}
	subs, err := h.subs.Stats(ctx)
	if err != nil {
		Fail(c, err)
		return
	}
	events, err := h.events.CountByAction(ctx, 0)
	if err != nil {
		middleware.LoggerFromContext(c).Error("count events failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"stats": gin.H{
			"users":               users,
			"cvs":                 cvs,
			"coverLetters":        letters,
			"activeSubscriptions": subs.ActiveSubscriptions,
			"payments":            subs.TotalPayments,
			"revenue":             subs.Revenue,
			"events":              events,
		},
	})
}

// DocumentEvents 返回单个文档各动作的次数：GET /v1/admin/events?documentType=CV&documentId=1。
func (h *AdminHandler) DocumentEvents(c *gin.Context) {
	documentType := c.Query("documentType")
	if documentType != database.DocumentTypeCV && documentType != database.DocumentTypeCoverLetter {
		BadRequest(c, "invalid documentType")
		return
	}
	documentID, ok := parseUintQuery(c.Query("documentId"))
	if !ok {
		BadRequest(c, "invalid documentId")
		return
	}

	counts, err := h.events.CountForDocument(c.Request.Context(), documentType, documentID)
	if err != nil {
		middleware.LoggerFromContext(c).Error("count document events failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"documentType": documentType,
		"documentId":   documentID,
		"counts":       counts,
	})
}

func (h *AdminHandler) withTargetUser(c *gin.Context, fn func(adminID uint, user *database.User)) {
	adminID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		BadRequest(c, "invalid id")
		return
	}
	var user database.User
	if err := h.db.WithContext(c.Request.Context()).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "user not found")
			return
		}
		middleware.LoggerFromContext(c).Error("load user failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	fn(adminID, &user)
}

func (h *AdminHandler) updateUser(c *gin.Context, user *database.User, column, value string) {
	if err := h.db.WithContext(c.Request.Context()).Model(user).Update(column, value).Error; err != nil {
		middleware.LoggerFromContext(c).Error("update user failed", slog.String("column", column), slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	switch column {
	case "role":
		user.Role = value
	case "status":
		user.Status = value
	}
	middleware.LoggerFromContext(c).Info("user updated",
		slog.Uint64("target_user_id", uint64(user.ID)),
		slog.String(column, value),
	)
	Success(c, http.StatusOK, "user", newUserView(*user))
}

func isValidRole(role string) bool {
	return role == database.RoleAdmin || role == database.RoleUser
}

func isValidUserStatus(status string) bool {
	switch status {
	case database.StatusActive, database.StatusInactive, database.StatusSuspended:
		return true
	}
	return false
}
