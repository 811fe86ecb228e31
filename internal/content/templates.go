package content

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"
)

// Kind 区分两类文档。
type Kind string

const (
	KindCV          Kind = "cv"
	KindCoverLetter Kind = "cover-letter"
)

// MaxTitleLength 是文档标题的最大字符数。
const MaxTitleLength = 100

const (
	DefaultAccentColor = "#2563eb"
	DefaultFontFamily  = "Inter"
)

// Template 描述一个可选模板。
type Template struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Premium bool   `json:"premium"`
}

var cvTemplates = []Template{
	{ID: "modern", Name: "Modern"},
	{ID: "classic", Name: "Classic"},
	{ID: "minimal", Name: "Minimal"},
	{ID: "professional", Name: "Professional"},
	{ID: "creative", Name: "Creative", Premium: true},
	{ID: "executive", Name: "Executive", Premium: true},
}

var coverLetterTemplates = []Template{
	{ID: "classic", Name: "Classic"},
	{ID: "modern", Name: "Modern"},
	{ID: "minimal", Name: "Minimal"},
	{ID: "professional", Name: "Professional", Premium: true},
}

// Templates 返回指定类型的模板目录副本。
func Templates(kind Kind) []Template {
	switch kind {
	case KindCoverLetter:
		return slices.Clone(coverLetterTemplates)
	default:
		return slices.Clone(cvTemplates)
	}
}

// DefaultTemplate 是新建文档时使用的模板。
func DefaultTemplate(kind Kind) string {
	return Templates(kind)[0].ID
}

// IsValidTemplate 判断模板是否属于该类型的目录。
func IsValidTemplate(kind Kind, id string) bool {
	return slices.ContainsFunc(Templates(kind), func(t Template) bool { return t.ID == id })
}

// NormalizeTitle 去除首尾空白并校验长度。
func NormalizeTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", fmt.Errorf("title is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return "", fmt.Errorf("title must be at most %d characters", MaxTitleLength)
	}
	return title, nil
}

// TruncateTitle 按字符截断，用于生成的标题（例如副本）。
func TruncateTitle(title string) string {
	if utf8.RuneCountInString(title) <= MaxTitleLength {
		return title
	}
	return string([]rune(title)[:MaxTitleLength])
}
