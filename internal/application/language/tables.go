// Package language 根据目标语言决定生成与翻译策略
package language

import "strings"

// Provider 翻译提供商标识
type Provider string

const (
	ProviderNone   Provider = ""
	ProviderDeepL  Provider = "deepl"
	ProviderGoogle Provider = "google"
)

// MaxTranslatableLength 单次翻译请求的默认最大字符数
const MaxTranslatableLength = 5000

// GenerationFallbackLanguage 翻译档位下的生成语言
const GenerationFallbackLanguage = "FR"

// ProviderTable 单个提供商支持的语言及其代码映射
type ProviderTable struct {
	Provider Provider
	// Supported 内部语言代码集合（大写）
	Supported map[string]struct{}
	// Remap 内部代码到提供商代码的映射，未命中时使用 DefaultCode
	Remap map[string]string
	// DefaultCode 未在 Remap 中的代码如何转换
	DefaultCode func(code string) string
}

// TargetCode 返回提供商使用的目标语言代码
func (t ProviderTable) TargetCode(code string) string {
	if mapped, ok := t.Remap[code]; ok {
		return mapped
	}
	if t.DefaultCode != nil {
		return t.DefaultCode(code)
	}
	return code
}

// Supports 是否支持该语言
func (t ProviderTable) Supports(code string) bool {
	_, ok := t.Supported[code]
	return ok
}

// Tables 语言表
type Tables struct {
	Direct                map[string]struct{}
	Primary               ProviderTable
	Fallback              ProviderTable
	MaxTranslatableLength int
}

func setOf(codes ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		m[c] = struct{}{}
	}
	return m
}

// DefaultTables 内置语言表
func DefaultTables() Tables {
	return Tables{
		Direct: setOf("FR", "EN", "ES", "DE", "IT"),
		Primary: ProviderTable{
			Provider: ProviderDeepL,
			Supported: setOf(
				"AR", "BG", "CS", "DA", "EL", "ET", "FI", "HU", "ID", "JA", "KO",
				"LT", "LV", "NB", "NL", "NO", "PL", "PT", "RO", "RU", "SK", "SL",
				"SV", "TR", "UK", "ZH",
			),
			Remap: map[string]string{
				"PT": "PT-PT",
				"NO": "NB",
				"ZH": "ZH-HANS",
			},
		},
		Fallback: ProviderTable{
			Provider: ProviderGoogle,
			Supported: setOf(
				"AF", "AM", "AZ", "BE", "BN", "BS", "CA", "CEB", "CO", "CY", "EO",
				"EU", "FA", "FIL", "FY", "GA", "GD", "GL", "GU", "HA", "HAW", "HE",
				"HI", "HMN", "HR", "HT", "HY", "IG", "IS", "JV", "KA", "KK", "KM",
				"KN", "KU", "KY", "LB", "LI", "LO", "MG", "MI", "MK", "ML", "MN",
				"MR", "MS", "MT", "MY", "NE", "NY", "PA", "PS", "SD", "SI", "SM",
				"SN", "SO", "SQ", "SR", "ST", "SU", "SW", "TA", "TE", "TG", "TH",
				"TL", "UR", "UZ", "VI", "XH", "YI", "YO", "ZU",
			),
			Remap: map[string]string{
				"HE":  "iw",
				"JV":  "jw",
				"FIL": "tl",
			},
			DefaultCode: strings.ToLower,
		},
		MaxTranslatableLength: MaxTranslatableLength,
	}
}
