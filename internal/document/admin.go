package document

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"cvbuilder/internal/errcode"
	"cvbuilder/internal/pagination"
)

// ListQuery 是管理端跨用户查询文档的条件。
type ListQuery struct {
	pagination.Params
	UserID    uint
	Template  string
	Search    string
	SortBy    string
	SortOrder string
}

var sortableColumns = map[string]string{
	"lastEdited": "last_edited",
	"createdAt":  "created_at",
	"title":      "title",
	"template":   "template",
}

// ListAll 分页返回所有用户的文档，供管理员使用。
func (s *Service[T, P]) ListAll(ctx context.Context, q ListQuery) (pagination.Page[T], error) {
	params := q.Params.Normalize()

	column, ok := sortableColumns[q.SortBy]
	if q.SortBy == "" {
		column, ok = "last_edited", true
	}
	if !ok {
		return pagination.Page[T]{}, errcode.Invalid("sortBy must be one of lastEdited, createdAt, title, template")
	}
	direction := "DESC"
	switch strings.ToLower(q.SortOrder) {
	case "", "desc":
	case "asc":
		direction = "ASC"
	default:
		return pagination.Page[T]{}, errcode.Invalid("sortOrder must be asc or desc")
	}

	query := s.db.WithContext(ctx).Model(P(new(T)))
	if q.UserID != 0 {
		query = query.Where("user_id = ?", q.UserID)
	}
	if tpl := strings.TrimSpace(q.Template); tpl != "" {
		query = query.Where("template = ?", tpl)
	}
	if search := strings.TrimSpace(q.Search); search != "" {
		query = query.Where("LOWER(title) LIKE ? "+pagination.LikeEscape, pagination.ContainsPattern(search))
	}

	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return pagination.Page[T]{}, errcode.Failure("failed to count "+s.kind.Noun+"s", err)
	}

	var docs []T
	if err := query.
		Order(column + " " + direction).
		Order("id " + direction).
		Limit(params.Limit).
		Offset(params.Offset()).
		Find(&docs).Error; err != nil {
		return pagination.Page[T]{}, errcode.Failure("failed to list "+s.kind.Noun+"s", err)
	}
	return pagination.NewPage(docs, total, params), nil
}

// DeleteAllForUser 物理删除某用户的全部文档（含已软删除的），返回删除条数。
func (s *Service[T, P]) DeleteAllForUser(ctx context.Context, userID uint) (int64, error) {
	result := s.db.WithContext(ctx).Unscoped().Where("user_id = ?", userID).Delete(P(new(T)))
	if result.Error != nil {
		return 0, errcode.Failure("failed to delete "+s.kind.Noun+"s", result.Error)
	}
	return result.RowsAffected, nil
}

// Count 返回文档总数，userID 为 0 时统计全部。
func (s *Service[T, P]) Count(ctx context.Context, userID uint) (int64, error) {
	query := s.db.WithContext(ctx).Model(P(new(T)))
	if userID != 0 {
		query = query.Where("user_id = ?", userID)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return 0, errcode.Failure("failed to count "+s.kind.Noun+"s", err)
	}
	return total, nil
}
