package database

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"cvbuilder/internal/content"
)

// SetBody 解码客户端提交的 CV 正文。
func (c *CV) SetBody(raw []byte) error {
	var data content.CVData
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			return fmt.Errorf("decode cv data: %w", err)
		}
	}
	c.Data = datatypes.NewJSONType(data)
	return nil
}

// Body 返回 CV 正文。
func (c *CV) Body() any { return c.Data.Data() }

// SetSectionOrder 设置区块顺序；nil 表示恢复默认。
func (c *CV) SetSectionOrder(order []string) {
	if order == nil {
		order = content.DefaultSectionOrder()
	}
	c.SectionOrder = datatypes.JSONSlice[string](order)
}

// SetBody 解码客户端提交的求职信正文。
func (l *CoverLetter) SetBody(raw []byte) error {
	var data content.CoverLetterData
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			return fmt.Errorf("decode cover letter data: %w", err)
		}
	}
	l.Data = datatypes.NewJSONType(data)
	return nil
}

// Body 返回求职信正文。
func (l *CoverLetter) Body() any { return l.Data.Data() }
