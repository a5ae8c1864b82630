package language

import (
	"fmt"
	"strings"

	apperrors "fable-ai-api/pkg/errors"
)

// Tier 语言档位
type Tier int

const (
	// TierDirect 直接以目标语言生成
	TierDirect Tier = 1
	// TierPrimaryTranslate 法语生成后经主提供商翻译
	TierPrimaryTranslate Tier = 2
	// TierFallbackTranslate 法语生成后经备用提供商翻译
	TierFallbackTranslate Tier = 3
)

func (t Tier) String() string {
	switch t {
	case TierDirect:
		return "direct"
	case TierPrimaryTranslate:
		return "primary"
	case TierFallbackTranslate:
		return "fallback"
	default:
		return "unknown"
	}
}

// NeedsTranslation 是否需要翻译步骤
func (t Tier) NeedsTranslation() bool {
	return t == TierPrimaryTranslate || t == TierFallbackTranslate
}

// Resolution 档位决策
type Resolution struct {
	Code               string
	Tier               Tier
	GenerationLanguage string
	Provider           Provider
	ProviderCode       string
	// SourceCode 翻译源语言（提供商格式）
	SourceCode string
}

// TranslationValidationError 目标语言无法处理，属于永久错误
type TranslationValidationError struct {
	Code   string
	Reason string
}

func (e *TranslationValidationError) Error() string {
	return fmt.Sprintf("translation validation failed for %q: %s", e.Code, e.Reason)
}

// ErrorKind 实现 apperrors.Kinded
func (e *TranslationValidationError) ErrorKind() apperrors.Kind {
	return apperrors.KindProvider
}

// Resolver 语言档位解析器，无状态，可并发使用
type Resolver struct {
	tables Tables
}

// NewResolver 创建解析器
func NewResolver(tables Tables) *Resolver {
	if tables.MaxTranslatableLength <= 0 {
		tables.MaxTranslatableLength = MaxTranslatableLength
	}
	return &Resolver{tables: tables}
}

// Tables 返回使用中的语言表
func (r *Resolver) Tables() Tables {
	return r.tables
}

// Resolve 解析目标语言
func (r *Resolver) Resolve(code string) (Resolution, error) {
	norm := strings.ToUpper(strings.TrimSpace(code))
	if norm == "" {
		return Resolution{}, &TranslationValidationError{Code: code, Reason: "empty language code"}
	}

	if _, ok := r.tables.Direct[norm]; ok {
		return Resolution{
			Code:               norm,
			Tier:               TierDirect,
			GenerationLanguage: norm,
		}, nil
	}
	if r.tables.Primary.Supports(norm) {
		return r.translated(norm, TierPrimaryTranslate, r.tables.Primary), nil
	}
	if r.tables.Fallback.Supports(norm) {
		return r.translated(norm, TierFallbackTranslate, r.tables.Fallback), nil
	}
	return Resolution{}, &TranslationValidationError{Code: norm, Reason: "language is not supported by any tier"}
}

func (r *Resolver) translated(code string, tier Tier, table ProviderTable) Resolution {
	return Resolution{
		Code:               code,
		Tier:               tier,
		GenerationLanguage: GenerationFallbackLanguage,
		Provider:           table.Provider,
		ProviderCode:       table.TargetCode(code),
		SourceCode:         table.TargetCode(GenerationFallbackLanguage),
	}
}
