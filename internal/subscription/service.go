package subscription

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cvbuilder/internal/content"
	"cvbuilder/internal/database"
	"cvbuilder/internal/errcode"
)

// PaymentSource 标记由支付网关确认的付款。
const PaymentSource = "paystack"

// Service 管理订阅状态机：开通、到期、取消与时长修正。
type Service struct {
	db      *gorm.DB
	catalog Catalog
	now     func() time.Time
}

type Option func(*Service)

// WithClock 替换当前时间来源，测试使用。
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(db *gorm.DB, catalog Catalog, opts ...Option) *Service {
	s := &Service{
		db:      db,
		catalog: catalog,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Catalog 返回套餐目录。
func (s *Service) Catalog() Catalog { return s.catalog }

// Entitlement 是某类文档的付费状态。
type Entitlement struct {
	Active        bool
	RemainingDays int
	Subscription  *database.Subscription
}

// Entitlement 只依据 end_date 判断，未被清扫的过期行不会授予权限。
func (s *Service) Entitlement(ctx context.Context, userID uint, subType string) (Entitlement, error) {
	now := s.now()

	var sub database.Subscription
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND end_date > ? AND type IN ?", userID, database.SubscriptionActive, now, coveringTypes(subType)).
		Order("end_date DESC").
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Entitlement{}, nil
	}
	if err != nil {
		return Entitlement{}, errcode.Failure("failed to check subscription", err)
	}
	return Entitlement{
		Active:        true,
		RemainingDays: remainingDays(sub.EndDate, now),
		Subscription:  &sub,
	}, nil
}

// HasAccess 实现文档服务需要的权限判断。
func (s *Service) HasAccess(ctx context.Context, userID uint, kind content.Kind) (bool, error) {
	ent, err := s.Entitlement(ctx, userID, TypeFor(kind))
	if err != nil {
		return false, err
	}
	return ent.Active, nil
}

// Status 汇总用户对两类文档的付费状态。
type Status struct {
	HasCV          bool                   `json:"hasCV"`
	HasCoverLetter bool                   `json:"hasCoverLetter"`
	RemainingDays  int                    `json:"remainingDays"`
	Subscription   *database.Subscription `json:"subscription"`
}

func (s *Service) Status(ctx context.Context, userID uint) (Status, error) {
	cv, err := s.Entitlement(ctx, userID, database.TypeCV)
	if err != nil {
		return Status{}, err
	}
	letter, err := s.Entitlement(ctx, userID, database.TypeCoverLetter)
	if err != nil {
		return Status{}, err
	}

	status := Status{HasCV: cv.Active, HasCoverLetter: letter.Active}
	governing := cv
	if letter.Active && (!cv.Active || letter.Subscription.EndDate.After(cv.Subscription.EndDate)) {
		governing = letter
	}
	if governing.Active {
		status.RemainingDays = governing.RemainingDays
		status.Subscription = governing.Subscription
	}
	return status, nil
}

// History 返回用户的全部订阅，新的在前。
func (s *Service) History(ctx context.Context, userID uint) ([]database.Subscription, error) {
	var subs []database.Subscription
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&subs).Error; err != nil {
		return nil, errcode.Failure("failed to load subscriptions", err)
	}
	return subs, nil
}

// Cancel 把用户自己的有效订阅置为 canceled，终态不可回退。
func (s *Service) Cancel(ctx context.Context, userID, id uint) (*database.Subscription, error) {
	var sub database.Subscription
	if err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errcode.Missing("subscription not found")
		}
		return nil, errcode.Failure("failed to load subscription", err)
	}
	if sub.Status != database.SubscriptionActive {
		return nil, errcode.Invalid("only active subscriptions can be canceled")
	}

	result := s.db.WithContext(ctx).
		Model(&database.Subscription{}).
		Where("id = ? AND status = ?", sub.ID, database.SubscriptionActive).
		Update("status", database.SubscriptionCanceled)
	if result.Error != nil {
		return nil, errcode.Failure("failed to cancel subscription", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, errcode.Invalid("only active subscriptions can be canceled")
	}
	sub.Status = database.SubscriptionCanceled
	return &sub, nil
}

// ExpireOverdue 批量把已过期的 active 订阅置为 expired，返回影响行数。
func (s *Service) ExpireOverdue(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&database.Subscription{}).
		Where("status = ? AND end_date < ?", database.SubscriptionActive, s.now()).
		Update("status", database.SubscriptionExpired)
	if result.Error != nil {
		return 0, errcode.Failure("failed to expire subscriptions", result.Error)
	}
	return result.RowsAffected, nil
}

// FixDurations 按套餐时长重算有效订阅的到期时间，仅在不一致时写入。
func (s *Service) FixDurations(ctx context.Context) (int64, error) {
	var subs []database.Subscription
	if err := s.db.WithContext(ctx).
		Where("status = ?", database.SubscriptionActive).
		Find(&subs).Error; err != nil {
		return 0, errcode.Failure("failed to load subscriptions", err)
	}

	var fixed int64
	for _, sub := range subs {
		want, err := EndDate(sub.Plan, sub.StartDate)
		if err != nil {
			continue
		}
		if want.Equal(sub.EndDate) {
			continue
		}
		if err := s.db.WithContext(ctx).
			Model(&database.Subscription{}).
			Where("id = ?", sub.ID).
			Update("end_date", want).Error; err != nil {
			return fixed, errcode.Failure("failed to fix subscription duration", err)
		}
		fixed++
	}
	return fixed, nil
}

// Purchase 是一笔已被网关确认的付款。
type Purchase struct {
	UserID    uint
	Email     string
	Plan      string
	Type      string
	Amount    int64
	Currency  string
	Reference string
	PaidAt    time.Time
}

// Activate 记录付款并开通订阅，按付款流水号幂等。
// 已有覆盖该类型的有效订阅时，新订阅从其到期时间起算。
func (s *Service) Activate(ctx context.Context, p Purchase) (*database.Subscription, bool, error) {
	p.Reference = strings.TrimSpace(p.Reference)
	if p.Reference == "" {
		return nil, false, errcode.Invalid("payment reference is required")
	}
	if !IsKnownPlan(p.Plan) {
		return nil, false, errcode.Invalid("unknown plan")
	}
	if !IsValidType(p.Type) {
		return nil, false, errcode.Invalid("unknown subscription type")
	}
	if p.Currency == "" {
		p.Currency = s.catalog.Currency()
	}
	now := s.now()
	if p.PaidAt.IsZero() {
		p.PaidAt = now
	}

	var (
		sub     database.Subscription
		created bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("payment_reference = ?", p.Reference).First(&sub).Error
		if err == nil {
			if sub.UserID != p.UserID {
				return errcode.Duplicate("payment reference already used")
			}
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		payment := database.Payment{
			UserID:      p.UserID,
			Amount:      p.Amount,
			Currency:    p.Currency,
			Status:      database.PaymentCompleted,
			Source:      PaymentSource,
			Reference:   p.Reference,
			PaymentDate: p.PaidAt,
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&payment).Error; err != nil {
			return err
		}

		start := now
		var current database.Subscription
		err = tx.Where("user_id = ? AND status = ? AND end_date > ?", p.UserID, database.SubscriptionActive, now).
			Where("type IN ?", coveringTypes(p.Type)).
			Order("end_date DESC").
			First(&current).Error
		switch {
		case err == nil:
			start = current.EndDate
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		end, err := EndDate(p.Plan, start)
		if err != nil {
			return err
		}
		sub = database.Subscription{
			UserID:           p.UserID,
			Email:            strings.ToLower(strings.TrimSpace(p.Email)),
			Plan:             p.Plan,
			Type:             p.Type,
			StartDate:        start,
			EndDate:          end,
			Amount:           p.Amount,
			Currency:         p.Currency,
			Status:           database.SubscriptionActive,
			PaymentReference: p.Reference,
		}
		if err := tx.Create(&sub).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// 同一流水号的并发核验，另一请求已完成开通。
		var existing database.Subscription
		if s.db.WithContext(ctx).Where("payment_reference = ? AND user_id = ?", p.Reference, p.UserID).First(&existing).Error == nil {
			return &existing, false, nil
		}
	}
	if err != nil {
		var coded *errcode.Error
		if errors.As(err, &coded) {
			return nil, false, err
		}
		return nil, false, errcode.Failure("failed to activate subscription", err)
	}
	return &sub, created, nil
}

// Stats 是管理端看板上的订阅与收入数据。
type Stats struct {
	ActiveSubscriptions int64   `json:"activeSubscriptions"`
	TotalPayments       int64   `json:"totalPayments"`
	Revenue             float64 `json:"revenue"`
}

// Stats 汇总有效订阅数与已完成付款的总额（主货币单位）。
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	db := s.db.WithContext(ctx)
	if err := db.Model(&database.Subscription{}).
		Where("status = ? AND end_date > ?", database.SubscriptionActive, s.now()).
		Count(&stats.ActiveSubscriptions).Error; err != nil {
		return Stats{}, errcode.Failure("failed to count subscriptions", err)
	}

	var totals struct {
		Count int64
		Sum   int64
	}
	if err := db.Model(&database.Payment{}).
		Select("COUNT(*) AS count, COALESCE(SUM(amount), 0) AS sum").
		Where("status = ?", database.PaymentCompleted).
		Scan(&totals).Error; err != nil {
		return Stats{}, errcode.Failure("failed to sum payments", err)
	}
	stats.TotalPayments = totals.Count
	stats.Revenue = float64(totals.Sum) / 100
	return stats, nil
}

// coveringTypes 返回能覆盖 want 的订阅类型。
func coveringTypes(want string) []string {
	if want == database.TypeAll {
		return []string{database.TypeAll}
	}
	return []string{want, database.TypeAll}
}

// remainingDays 向上取整，不足一天按一天计。
func remainingDays(end, now time.Time) int {
	left := end.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Hours() / 24))
}
