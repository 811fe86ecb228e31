package content

import (
	"encoding/json"
	"reflect"
	"strings"
)

// 去掉方法集的别名类型，避免编解码时递归。
type (
	cvDataFields          CVData
	coverLetterDataFields CoverLetterData
)

var (
	cvDataKeys          = jsonKeys(reflect.TypeOf(cvDataFields{}))
	coverLetterDataKeys = jsonKeys(reflect.TypeOf(coverLetterDataFields{}))
)

// UnmarshalJSON 解码已知区块，其余顶层键收进 Extensions。
func (d *CVData) UnmarshalJSON(b []byte) error {
	var fields cvDataFields
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	ext, err := unknownKeys(b, cvDataKeys)
	if err != nil {
		return err
	}
	fields.Extensions = ext
	*d = CVData(fields)
	return nil
}

// MarshalJSON 把 Extensions 平铺回顶层。
func (d CVData) MarshalJSON() ([]byte, error) {
	return marshalWithExtensions(cvDataFields(d), d.Extensions, cvDataKeys)
}

func (d *CoverLetterData) UnmarshalJSON(b []byte) error {
	var fields coverLetterDataFields
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	ext, err := unknownKeys(b, coverLetterDataKeys)
	if err != nil {
		return err
	}
	fields.Extensions = ext
	*d = CoverLetterData(fields)
	return nil
}

func (d CoverLetterData) MarshalJSON() ([]byte, error) {
	return marshalWithExtensions(coverLetterDataFields(d), d.Extensions, coverLetterDataKeys)
}

func unknownKeys(b []byte, known map[string]bool) (map[string]any, error) {
	var all map[string]any
	if err := json.Unmarshal(b, &all); err != nil {
		return nil, err
	}
	var ext map[string]any
	for k, v := range all {
		if known[k] {
			continue
		}
		if ext == nil {
			ext = make(map[string]any)
		}
		ext[k] = v
	}
	return ext, nil
}

// 已知字段优先，同名的扩展键被忽略。
func marshalWithExtensions(v any, ext map[string]any, known map[string]bool) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil || len(ext) == 0 {
		return b, err
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(b, &merged); err != nil {
		return nil, err
	}
	for k, val := range ext {
		if known[k] {
			continue
		}
		raw, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		merged[k] = raw
	}
	return json.Marshal(merged)
}

func jsonKeys(t reflect.Type) map[string]bool {
	keys := make(map[string]bool, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		keys[name] = true
	}
	return keys
}
