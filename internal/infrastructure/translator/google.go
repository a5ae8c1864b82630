package translator

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	translate "google.golang.org/api/translate/v2"

	"fable-ai-api/internal/application/language"
	"fable-ai-api/internal/application/translation"
	"fable-ai-api/internal/config"
	"fable-ai-api/pkg/tracer"
)

// googleMaxLength 单次请求建议上限
const googleMaxLength = 5000

// Google Cloud Translation v2
type Google struct {
	svc       *translate.Service
	maxLength int
}

var _ translation.Provider = (*Google)(nil)

// NewGoogle 使用 API key 认证，base_url 仅用于测试或代理
func NewGoogle(ctx context.Context, cfg config.TranslatorConfig, maxLength int) (*Google, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("google translate api key is required")
	}
	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.BaseURL))
	}
	svc, err := translate.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create google translate service: %w", err)
	}
	if maxLength <= 0 || maxLength > googleMaxLength {
		maxLength = googleMaxLength
	}
	return &Google{svc: svc, maxLength: maxLength}, nil
}

func (g *Google) Name() string { return string(language.ProviderGoogle) }

func (g *Google) MaxTextLength() int { return g.maxLength }

func (g *Google) Translate(ctx context.Context, text, sourceCode, targetCode string) (string, error) {
	ctx, span := tracer.Start(ctx, "translator.Google.Translate")
	defer span.End()
	span.SetAttributes(
		attribute.String("translation.source", sourceCode),
		attribute.String("translation.target", targetCode),
	)

	resp, err := g.svc.Translations.List([]string{text}, strings.ToLower(targetCode)).
		Source(strings.ToLower(sourceCode)).
		Format("text").
		Context(ctx).
		Do()
	if err != nil {
		span.RecordError(err)
		return "", g.classify(err)
	}
	if len(resp.Translations) == 0 {
		return "", &translation.ProviderError{Provider: g.Name(), Transient: true, Err: errors.New("empty translations")}
	}
	// format=text 仍可能带实体编码
	return html.UnescapeString(resp.Translations[0].TranslatedText), nil
}

func (g *Google) classify(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &translation.ProviderError{
			Provider:   g.Name(),
			Transient:  translation.IsTransientStatus(gerr.Code),
			StatusCode: gerr.Code,
			Err:        err,
		}
	}
	// 非 HTTP 错误多为网络问题
	return &translation.ProviderError{Provider: g.Name(), Transient: !errors.Is(err, context.Canceled), Err: err}
}
