package subscription

import (
	"fmt"
	"time"

	"cvbuilder/internal/config"
	"cvbuilder/internal/content"
	"cvbuilder/internal/database"
)

// Plan 是一个可展示的套餐。
type Plan struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	DurationDays int    `json:"durationDays"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

// EndDate 返回从 start 起算的到期时间。年付按日历年计算。
func EndDate(plan string, start time.Time) (time.Time, error) {
	switch plan {
	case database.PlanMonthly:
		return start.AddDate(0, 0, 30), nil
	case database.PlanQuarterly:
		return start.AddDate(0, 0, 90), nil
	case database.PlanYearly:
		return start.AddDate(1, 0, 0), nil
	case database.PlanTrial:
		return start.AddDate(0, 0, 7), nil
	default:
		return time.Time{}, fmt.Errorf("unknown plan %q", plan)
	}
}

// IsKnownPlan 判断套餐是否有定义的时长。
func IsKnownPlan(plan string) bool {
	_, err := EndDate(plan, time.Time{})
	return err == nil
}

// IsValidType 判断订阅可解锁的文档类型。
func IsValidType(t string) bool {
	switch t {
	case database.TypeCV, database.TypeCoverLetter, database.TypeAll:
		return true
	}
	return false
}

// TypeFor 把文档类型映射为订阅类型。
func TypeFor(kind content.Kind) string {
	if kind == content.KindCoverLetter {
		return database.TypeCoverLetter
	}
	return database.TypeCV
}

// Catalog 组合套餐时长与配置中的价格。
type Catalog struct {
	prices   config.PlanPrices
	currency string
}

func NewCatalog(prices config.PlanPrices, currency string) Catalog {
	return Catalog{prices: prices, currency: currency}
}

// Plans 返回可购买的套餐，试用不在其中。
func (c Catalog) Plans() []Plan {
	return []Plan{
		{ID: database.PlanMonthly, Name: "Monthly", DurationDays: 30, Amount: c.prices.Monthly, Currency: c.currency},
		{ID: database.PlanQuarterly, Name: "Quarterly", DurationDays: 90, Amount: c.prices.Quarterly, Currency: c.currency},
		{ID: database.PlanYearly, Name: "Yearly", DurationDays: 365, Amount: c.prices.Yearly, Currency: c.currency},
	}
}

// Price 返回套餐价格（最小货币单位）。
func (c Catalog) Price(plan string) (int64, error) {
	for _, p := range c.Plans() {
		if p.ID == plan {
			if p.Amount <= 0 {
				return 0, fmt.Errorf("plan %q has no configured price", plan)
			}
			return p.Amount, nil
		}
	}
	return 0, fmt.Errorf("plan %q is not purchasable", plan)
}

// Currency 返回默认币种。
func (c Catalog) Currency() string { return c.currency }
