package api

import (
	"time"

	"cvbuilder/internal/content"
	"cvbuilder/internal/database"
)

type userView struct {
	ID          uint       `json:"id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Role        string     `json:"role"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

func newUserView(u database.User) userView {
	return userView{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		Role:        u.Role,
		Status:      u.Status,
		CreatedAt:   u.CreatedAt,
		LastLoginAt: u.LastLoginAt,
	}
}

// documentView 是列表中使用的摘要，不含正文。
type documentView struct {
	ID          uint      `json:"id"`
	UserID      uint      `json:"userId"`
	Title       string    `json:"title"`
	Template    string    `json:"template"`
	AccentColor string    `json:"accentColor"`
	FontFamily  string    `json:"fontFamily"`
	Preview     string    `json:"preview,omitempty"`
	LastEdited  time.Time `json:"lastEdited"`
	CreatedAt   time.Time `json:"createdAt"`
}

func newDocumentView(m *database.DocumentMeta) documentView {
	return documentView{
		ID:          m.ID,
		UserID:      m.UserID,
		Title:       m.Title,
		Template:    m.Template,
		AccentColor: m.AccentColor,
		FontFamily:  m.FontFamily,
		Preview:     m.Preview,
		LastEdited:  m.LastEdited,
		CreatedAt:   m.CreatedAt,
	}
}

type cvView struct {
	documentView
	Data         content.CVData `json:"data"`
	SectionOrder []string       `json:"sectionOrder"`
}

func newCVView(cv *database.CV) any {
	return cvView{
		documentView: newDocumentView(&cv.DocumentMeta),
		Data:         cv.Data.Data(),
		SectionOrder: []string(cv.SectionOrder),
	}
}

type coverLetterView struct {
	documentView
	Data content.CoverLetterData `json:"data"`
}

func newCoverLetterView(l *database.CoverLetter) any {
	return coverLetterView{
		documentView: newDocumentView(&l.DocumentMeta),
		Data:         l.Data.Data(),
	}
}

type subscriptionView struct {
	ID               uint      `json:"id"`
	Plan             string    `json:"plan"`
	Type             string    `json:"type"`
	Status           string    `json:"status"`
	StartDate        time.Time `json:"startDate"`
	EndDate          time.Time `json:"endDate"`
	Amount           float64   `json:"amount"`
	Currency         string    `json:"currency"`
	PaymentReference string    `json:"paymentReference"`
}

// newSubscriptionView 金额换算为主货币单位。
func newSubscriptionView(s *database.Subscription) *subscriptionView {
	if s == nil {
		return nil
	}
	return &subscriptionView{
		ID:               s.ID,
		Plan:             s.Plan,
		Type:             s.Type,
		Status:           s.Status,
		StartDate:        s.StartDate,
		EndDate:          s.EndDate,
		Amount:           float64(s.Amount) / 100,
		Currency:         s.Currency,
		PaymentReference: s.PaymentReference,
	}
}
