package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"cvbuilder/internal/database"
)

// ErrInvalidEvent 表示事件字段不在允许的取值内，重试没有意义。
var ErrInvalidEvent = errors.New("invalid analytics event")

// Store 负责分析事件的追加与简单统计。
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Validate 检查文档类型与动作。
func Validate(ev Event) error {
	switch ev.DocumentType {
	case database.DocumentTypeCV, database.DocumentTypeCoverLetter:
	default:
		return fmt.Errorf("%w: document type %q", ErrInvalidEvent, ev.DocumentType)
	}
	switch ev.Action {
	case database.ActionDownload, database.ActionView, database.ActionCreate, database.ActionEdit:
	default:
		return fmt.Errorf("%w: action %q", ErrInvalidEvent, ev.Action)
	}
	if ev.DocumentID == 0 {
		return fmt.Errorf("%w: document id missing", ErrInvalidEvent)
	}
	return nil
}

// Append 写入一条事件。
func (s *Store) Append(ctx context.Context, ev Event) error {
	if err := Validate(ev); err != nil {
		return err
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	var metadata datatypes.JSON
	if len(ev.Metadata) > 0 {
		raw, err := json.Marshal(ev.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		metadata = datatypes.JSON(raw)
	}

	row := database.AnalyticsEvent{
		DocumentType: ev.DocumentType,
		DocumentID:   ev.DocumentID,
		UserID:       ev.UserID,
		Action:       ev.Action,
		Metadata:     metadata,
		Timestamp:    ev.Timestamp,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert analytics event: %w", err)
	}
	return nil
}

// Count 是按文档类型与动作分组的计数。
type Count struct {
	DocumentType string `json:"documentType"`
	Action       string `json:"action"`
	Count        int64  `json:"count"`
}

// CountByAction 统计事件数；userID 为 0 时统计全部用户。
func (s *Store) CountByAction(ctx context.Context, userID uint) ([]Count, error) {
	query := s.db.WithContext(ctx).
		Model(&database.AnalyticsEvent{}).
		Select("document_type, action, COUNT(*) AS count").
		Group("document_type, action").
		Order("document_type, action")
	if userID != 0 {
		query = query.Where("user_id = ?", userID)
	}

	var counts []Count
	if err := query.Scan(&counts).Error; err != nil {
		return nil, fmt.Errorf("count analytics events: %w", err)
	}
	return counts, nil
}

// CountForDocument 返回单个文档各动作的次数。
func (s *Store) CountForDocument(ctx context.Context, documentType string, documentID uint) (map[string]int64, error) {
	var rows []Count
	if err := s.db.WithContext(ctx).
		Model(&database.AnalyticsEvent{}).
		Select("document_type, action, COUNT(*) AS count").
		Where("document_type = ? AND document_id = ?", documentType, documentID).
		Group("document_type, action").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("count document events: %w", err)
	}

	result := make(map[string]int64, len(rows))
	for _, r := range rows {
		result[r.Action] = r.Count
	}
	return result, nil
}
