package story

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	maxSlugBaseLength = 80
	maxSlugAttempts   = 5
	fallbackSlugBase  = "story"
)

// SlugChecker 查询 slug 是否已被占用
type SlugChecker interface {
	SlugExists(ctx context.Context, slug string) (bool, error)
}

// Slugify 去掉变音符号并转为小写 kebab-case，只保留 ASCII 字母与数字
func Slugify(title string) string {
	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(folder, title)
	if err != nil {
		folded = title
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimRight(b.String(), "-")
	if len(slug) > maxSlugBaseLength {
		slug = strings.TrimRight(slug[:maxSlugBaseLength], "-")
	}
	return slug
}

// SlugGenerator 生成全局唯一的 slug
type SlugGenerator struct {
	checker SlugChecker
	suffix  func() string
}

// NewSlugGenerator 创建 slug 生成器
func NewSlugGenerator(checker SlugChecker) *SlugGenerator {
	return &SlugGenerator{
		checker: checker,
		suffix: func() string {
			return strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
		},
	}
}

// Generate 基于标题生成 slug；被占用或 forceSuffix 时追加随机后缀
func (g *SlugGenerator) Generate(ctx context.Context, title string, forceSuffix bool) (string, error) {
	base := Slugify(title)
	if base == "" {
		base = fallbackSlugBase
	}

	candidate := base
	if forceSuffix {
		candidate = base + "-" + g.suffix()
	}
	for i := 0; i < maxSlugAttempts; i++ {
		taken, err := g.checker.SlugExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check slug %q: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
		candidate = base + "-" + g.suffix()
	}
	return "", fmt.Errorf("no free slug for %q after %d attempts: %w", base, maxSlugAttempts, ErrDuplicateSlug)
}
