package database

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"cvbuilder/internal/content"
)

// 角色与账号状态。
const (
	RoleAdmin = "admin"
	RoleUser  = "user"

	StatusActive    = "active"
	StatusInactive  = "inactive"
	StatusSuspended = "suspended"
)

// User 表示系统中的账号信息。PasswordHash 永不序列化。
type User struct {
	gorm.Model
	Name         string `gorm:"size:128"`
	Email        string `gorm:"uniqueIndex;size:255;not null"`
	PasswordHash string `gorm:"size:255" json:"-"`
	Role         string `gorm:"size:16;default:user;index"`
	Status       string `gorm:"size:16;default:active;index"`
	LastLoginAt  *time.Time
}

// DocumentMeta 是 CV 与求职信共享的列。UserID 创建后不可修改。
type DocumentMeta struct {
	gorm.Model
	UserID      uint      `gorm:"index;not null;<-:create"`
	Title       string    `gorm:"size:100;not null"`
	Template    string    `gorm:"size:32;index"`
	AccentColor string    `gorm:"size:16"`
	FontFamily  string    `gorm:"size:64"`
	Preview     string    `gorm:"size:512"`
	LastEdited  time.Time `gorm:"index"`
}

// Meta 让具体文档类型以统一方式暴露公共列。
func (m *DocumentMeta) Meta() *DocumentMeta { return m }

// CV 表示用户创建的简历。
type CV struct {
	DocumentMeta
	Data         datatypes.JSONType[content.CVData] `gorm:"type:jsonb"`
	SectionOrder datatypes.JSONSlice[string]        `gorm:"type:jsonb"`
}

// CoverLetter 表示用户创建的求职信。
type CoverLetter struct {
	DocumentMeta
	Data datatypes.JSONType[content.CoverLetterData] `gorm:"type:jsonb"`
}

// 订阅套餐、可解锁的文档类型与状态。
const (
	PlanMonthly   = "monthly"
	PlanQuarterly = "quarterly"
	PlanYearly    = "yearly"
	PlanTrial     = "trial"

	TypeCV          = "cv"
	TypeCoverLetter = "cover-letter"
	TypeAll         = "all"

	SubscriptionActive   = "active"
	SubscriptionExpired  = "expired"
	SubscriptionCanceled = "canceled"
)

// Subscription 记录一次付费获得的使用权。只追加与改状态，不做物理删除。
type Subscription struct {
	gorm.Model
	UserID           uint      `gorm:"index;not null"`
	Email            string    `gorm:"size:255"`
	Plan             string    `gorm:"size:16;not null"`
	Type             string    `gorm:"size:16;not null"`
	StartDate        time.Time `gorm:"not null"`
	EndDate          time.Time `gorm:"index;not null"`
	Amount           int64     `gorm:"not null"`
	Currency         string    `gorm:"size:8"`
	Status           string    `gorm:"size:16;index;not null"`
	PaymentReference string    `gorm:"uniqueIndex;size:128"`
}

// 支付状态。
const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
	PaymentFailed    = "failed"
)

// Payment 记录网关确认过的一笔付款，Amount 为最小货币单位。
type Payment struct {
	gorm.Model
	UserID      uint   `gorm:"index;not null"`
	Amount      int64  `gorm:"not null"`
	Currency    string `gorm:"size:8"`
	Status      string `gorm:"size:16;index"`
	Source      string `gorm:"size:32"`
	Reference   string `gorm:"uniqueIndex;size:128"`
	PaymentDate time.Time
}

// 分析事件的文档类型与动作。
const (
	DocumentTypeCV          = "CV"
	DocumentTypeCoverLetter = "CoverLetter"

	ActionDownload = "download"
	ActionView     = "view"
	ActionCreate   = "create"
	ActionEdit     = "edit"
)

// AnalyticsEvent 是只追加的行为日志，不使用软删除。
type AnalyticsEvent struct {
	ID           uint           `gorm:"primaryKey"`
	DocumentType string         `gorm:"size:16;index:idx_analytics_document"`
	DocumentID   uint           `gorm:"index:idx_analytics_document"`
	UserID       uint           `gorm:"index"`
	Action       string         `gorm:"size:16;index"`
	Metadata     datatypes.JSON `gorm:"type:jsonb"`
	Timestamp    time.Time      `gorm:"index"`
}

// Models 列出需要迁移的全部表。
func Models() []any {
	return []any{
		&User{},
		&CV{},
		&CoverLetter{},
		&Subscription{},
		&Payment{},
		&AnalyticsEvent{},
	}
}
