package document

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gorm.io/gorm"

	"cvbuilder/internal/analytics"
	"cvbuilder/internal/content"
	"cvbuilder/internal/database"
	"cvbuilder/internal/errcode"
)

// Record 约束可由 Service 管理的文档模型（*database.CV、*database.CoverLetter）。
type Record[T any] interface {
	*T
	Meta() *database.DocumentMeta
	SetBody(raw []byte) error
	Body() any
}

// sectionOrderer 只有 CV 实现。
type sectionOrderer interface {
	SetSectionOrder(order []string)
}

// Entitlements 判断用户是否已为某类文档付费。
type Entitlements interface {
	HasAccess(ctx context.Context, userID uint, kind content.Kind) (bool, error)
}

// Kind 描述一类文档在日志、分析与默认值上的差异。
type Kind struct {
	Content      content.Kind
	DocumentType string
	Noun         string
	DefaultTitle string
}

var (
	CVKind = Kind{
		Content:      content.KindCV,
		DocumentType: database.DocumentTypeCV,
		Noun:         "cv",
		DefaultTitle: "Untitled CV",
	}
	CoverLetterKind = Kind{
		Content:      content.KindCoverLetter,
		DocumentType: database.DocumentTypeCoverLetter,
		Noun:         "cover letter",
		DefaultTitle: "Untitled Cover Letter",
	}
)

const copyTitlePrefix = "Copy of "

var accentColorPattern = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)

// Service 实现按所有者隔离的文档增删改查。
type Service[T any, P Record[T]] struct {
	db           *gorm.DB
	kind         Kind
	recorder     analytics.Recorder
	entitlements Entitlements
	now          func() time.Time
}

// NewService 构造文档服务；recorder 与 entitlements 可为 nil。
func NewService[T any, P Record[T]](db *gorm.DB, kind Kind, recorder analytics.Recorder, entitlements Entitlements) *Service[T, P] {
	if recorder == nil {
		recorder = analytics.Nop{}
	}
	return &Service[T, P]{
		db:           db,
		kind:         kind,
		recorder:     recorder,
		entitlements: entitlements,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// CVService 是 CV 的服务实例类型。
type CVService = Service[database.CV, *database.CV]

// CoverLetterService 是求职信的服务实例类型。
type CoverLetterService = Service[database.CoverLetter, *database.CoverLetter]

func NewCVService(db *gorm.DB, recorder analytics.Recorder, entitlements Entitlements) *CVService {
	return NewService[database.CV](db, CVKind, recorder, entitlements)
}

func NewCoverLetterService(db *gorm.DB, recorder analytics.Recorder, entitlements Entitlements) *CoverLetterService {
	return NewService[database.CoverLetter](db, CoverLetterKind, recorder, entitlements)
}

// Kind 返回服务管理的文档类型。
func (s *Service[T, P]) Kind() Kind { return s.kind }

// SaveInput 是一次保存的字段集合。nil 表示未提供、保持原值。
type SaveInput struct {
	ID           *uint
	Title        *string
	Template     *string
	AccentColor  *string
	FontFamily   *string
	Preview      *string
	Data         []byte
	SectionOrder []string
}

// Save 没有 ID 时为调用者新建文档，有 ID 时仅在归属匹配时更新。
// 返回值 created 表示是否新建。
func (s *Service[T, P]) Save(ctx context.Context, userID uint, in SaveInput) (P, bool, error) {
	if in.ID == nil {
		rec, err := s.create(ctx, userID, in)
		return rec, true, err
	}

	rec, err := s.find(ctx, userID, *in.ID)
	if err != nil {
		return nil, false, err
	}
	if err := s.apply(ctx, userID, rec, in); err != nil {
		return nil, false, err
	}
	rec.Meta().LastEdited = s.now()

	if err := s.db.WithContext(ctx).Save(rec).Error; err != nil {
		return nil, false, errcode.Failure("failed to save "+s.kind.Noun, err)
	}

	s.record(ctx, userID, rec.Meta().ID, database.ActionEdit, nil)
	return rec, false, nil
}

func (s *Service[T, P]) create(ctx context.Context, userID uint, in SaveInput) (P, error) {
	var doc T
	rec := P(&doc)
	now := s.now()

	meta := rec.Meta()
	meta.UserID = userID
	meta.Title = s.kind.DefaultTitle
	meta.Template = content.DefaultTemplate(s.kind.Content)
	meta.AccentColor = content.DefaultAccentColor
	meta.FontFamily = content.DefaultFontFamily
	meta.CreatedAt = now
	meta.LastEdited = now
	if err := rec.SetBody(nil); err != nil {
		return nil, errcode.Failure("failed to initialise "+s.kind.Noun, err)
	}
	if so, ok := any(rec).(sectionOrderer); ok {
		so.SetSectionOrder(nil)
	}

	if err := s.apply(ctx, userID, rec, in); err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, errcode.Failure("failed to create "+s.kind.Noun, err)
	}

	s.record(ctx, userID, meta.ID, database.ActionCreate, nil)
	return rec, nil
}

// apply 合并 SaveInput 中出现的字段。
func (s *Service[T, P]) apply(ctx context.Context, userID uint, rec P, in SaveInput) error {
	meta := rec.Meta()

	if in.Title != nil {
		title, err := content.NormalizeTitle(*in.Title)
		if err != nil {
			return errcode.Invalid(err.Error())
		}
		meta.Title = title
	}
	if in.Template != nil {
		template := strings.TrimSpace(*in.Template)
		if !content.IsValidTemplate(s.kind.Content, template) {
			return errcode.Invalid(fmt.Sprintf("unknown template %q", template))
		}
		if template != meta.Template && isPremium(s.kind.Content, template) {
			if err := s.requireEntitlement(ctx, userID); err != nil {
				return err
			}
		}
		meta.Template = template
	}
	if in.AccentColor != nil {
		color := strings.TrimSpace(*in.AccentColor)
		if !accentColorPattern.MatchString(color) {
			return errcode.Invalid("accent color must be a hex color")
		}
		meta.AccentColor = color
	}
	if in.FontFamily != nil {
		font := strings.TrimSpace(*in.FontFamily)
		if font == "" || len(font) > 64 {
			return errcode.Invalid("font family must be 1-64 characters")
		}
		meta.FontFamily = font
	}
	if in.Preview != nil {
		meta.Preview = *in.Preview
	}
	if len(in.Data) > 0 {
		if err := rec.SetBody(in.Data); err != nil {
			return errcode.Invalid("invalid document data")
		}
	}
	if in.SectionOrder != nil {
		if so, ok := any(rec).(sectionOrderer); ok {
			so.SetSectionOrder(in.SectionOrder)
		}
	}
	return nil
}

// List 返回调用者的全部文档，按最后编辑时间倒序。
func (s *Service[T, P]) List(ctx context.Context, userID uint) ([]T, error) {
	var docs []T
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("last_edited DESC").
		Order("id DESC").
		Find(&docs).Error; err != nil {
		return nil, errcode.Failure("failed to list "+s.kind.Noun+"s", err)
	}
	return docs, nil
}

// Get 返回调用者拥有的单个文档，并记录一次查看。
func (s *Service[T, P]) Get(ctx context.Context, userID, id uint) (P, error) {
	rec, err := s.find(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	s.record(ctx, userID, id, database.ActionView, nil)
	return rec, nil
}

// Rename 修改标题，不影响创建时间。
func (s *Service[T, P]) Rename(ctx context.Context, userID, id uint, title string) (P, error) {
	normalized, err := content.NormalizeTitle(title)
	if err != nil {
		return nil, errcode.Invalid(err.Error())
	}

	rec, err := s.find(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	meta := rec.Meta()
	meta.Title = normalized
	meta.LastEdited = s.now()
	if err := s.db.WithContext(ctx).
		Model(rec).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"title":       meta.Title,
			"last_edited": meta.LastEdited,
		}).Error; err != nil {
		return nil, errcode.Failure("failed to rename "+s.kind.Noun, err)
	}

	s.record(ctx, userID, id, database.ActionEdit, map[string]any{"field": "title"})
	return rec, nil
}

// Copy 复制调用者拥有的文档，标题加上 "Copy of " 前缀。
func (s *Service[T, P]) Copy(ctx context.Context, userID, id uint) (P, error) {
	original, err := s.find(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	dup := *original
	rec := P(&dup)
	now := s.now()

	meta := rec.Meta()
	meta.ID = 0
	meta.UserID = userID
	meta.Title = content.TruncateTitle(copyTitlePrefix + original.Meta().Title)
	meta.CreatedAt = now
	meta.UpdatedAt = now
	meta.DeletedAt = gorm.DeletedAt{}
	meta.LastEdited = now

	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, errcode.Failure("failed to copy "+s.kind.Noun, err)
	}

	s.record(ctx, userID, meta.ID, database.ActionCreate, map[string]any{"copiedFrom": id})
	return rec, nil
}

// Delete 删除调用者拥有的文档。影响行数为 0 时统一返回 NotFound，
// 不区分"不存在"与"属于他人"。
func (s *Service[T, P]) Delete(ctx context.Context, userID, id uint) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(P(new(T)))
	if result.Error != nil {
		return errcode.Failure("failed to delete "+s.kind.Noun, result.Error)
	}
	if result.RowsAffected == 0 {
		return s.notFound()
	}
	return nil
}

// Download 返回完整文档供客户端渲染，要求对应类型的有效订阅。
func (s *Service[T, P]) Download(ctx context.Context, userID, id uint) (P, error) {
	rec, err := s.find(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireEntitlement(ctx, userID); err != nil {
		return nil, err
	}
	s.record(ctx, userID, id, database.ActionDownload, map[string]any{"template": rec.Meta().Template})
	return rec, nil
}

// Record 记录客户端上报的行为，仅限调用者自己的文档。
func (s *Service[T, P]) Record(ctx context.Context, userID, id uint, action string, metadata map[string]any) error {
	switch action {
	case database.ActionView, database.ActionDownload:
	default:
		return errcode.Invalid("action must be view or download")
	}
	if _, err := s.find(ctx, userID, id); err != nil {
		return err
	}
	s.record(ctx, userID, id, action, metadata)
	return nil
}

func (s *Service[T, P]) find(ctx context.Context, userID, id uint) (P, error) {
	var doc T
	rec := P(&doc)
	if err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, s.notFound()
		}
		return nil, errcode.Failure("failed to query "+s.kind.Noun, err)
	}
	return rec, nil
}

func (s *Service[T, P]) requireEntitlement(ctx context.Context, userID uint) error {
	if s.entitlements == nil {
		return nil
	}
	ok, err := s.entitlements.HasAccess(ctx, userID, s.kind.Content)
	if err != nil {
		return errcode.Failure("failed to check subscription", err)
	}
	if !ok {
		return errcode.Denied("subscription required")
	}
	return nil
}

func (s *Service[T, P]) record(ctx context.Context, userID, id uint, action string, metadata map[string]any) {
	s.recorder.Record(ctx, analytics.Event{
		DocumentType: s.kind.DocumentType,
		DocumentID:   id,
		UserID:       userID,
		Action:       action,
		Metadata:     metadata,
		Timestamp:    s.now(),
	})
}

func (s *Service[T, P]) notFound() error {
	return errcode.Missing(s.kind.Noun + " not found")
}

func isPremium(kind content.Kind, id string) bool {
	for _, t := range content.Templates(kind) {
		if t.ID == id {
			return t.Premium
		}
	}
	return false
}
