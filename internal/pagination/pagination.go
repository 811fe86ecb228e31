package pagination

import "strings"

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params 是 1 起始的分页参数。
type Params struct {
	Page  int
	Limit int
}

// Normalize 填充默认值并限制上限。
func (p Params) Normalize() Params {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}

// Offset 返回 SQL OFFSET。调用前应先 Normalize。
func (p Params) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Page 是分页结果。
type Page[T any] struct {
	Items []T
	Total int64
	Page  int
	Limit int
	Pages int
}

// NewPage 根据总数计算页数。
func NewPage[T any](items []T, total int64, p Params) Page[T] {
	pages := 0
	if p.Limit > 0 {
		pages = int((total + int64(p.Limit) - 1) / int64(p.Limit))
	}
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, Total: total, Page: p.Page, Limit: p.Limit, Pages: pages}
}

// Map 转换分页条目，保留分页信息。
func Map[T, U any](p Page[T], fn func(T) U) Page[U] {
	items := make([]U, 0, len(p.Items))
	for _, item := range p.Items {
		items = append(items, fn(item))
	}
	return Page[U]{Items: items, Total: p.Total, Page: p.Page, Limit: p.Limit, Pages: p.Pages}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// LikeEscape 是配合 ContainsPattern 使用的 ESCAPE 子句。
const LikeEscape = `ESCAPE '\'`

// ContainsPattern 把搜索词转成按字面子串匹配的 LIKE 模式，需与 LikeEscape 一起使用。
func ContainsPattern(search string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(search)) + "%"
}
