package entity

import "strings"

// ReferenceData 主题、语气等参考数据的值对象
type ReferenceData struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// IsZero 未设置
func (r ReferenceData) IsZero() bool {
	return strings.TrimSpace(r.ID) == ""
}

// Language 目标语言值对象
type Language struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// NormalizedCode 大写去空白后的语言代码
func (l Language) NormalizedCode() string {
	return strings.ToUpper(strings.TrimSpace(l.Code))
}
