// Package translator 翻译提供商适配器
package translator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"fable-ai-api/internal/application/language"
	"fable-ai-api/internal/application/translation"
	"fable-ai-api/internal/config"
	"fable-ai-api/pkg/tracer"
)

const (
	deeplFreeURL = "https://api-free.deepl.com"
	deeplProURL  = "https://api.deepl.com"
)

// DeepL DeepL v2 文本翻译
type DeepL struct {
	baseURL    string
	apiKey     string
	maxLength  int
	httpClient *http.Client
}

var _ translation.Provider = (*DeepL)(nil)

// NewDeepL 未配置 base_url 时按密钥后缀选择免费版或专业版地址
func NewDeepL(cfg config.TranslatorConfig, maxLength int, timeout time.Duration) (*DeepL, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("deepl api key is required")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = deeplProURL
		if strings.HasSuffix(cfg.APIKey, ":fx") {
			baseURL = deeplFreeURL
		}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &DeepL{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		maxLength:  maxLength,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (d *DeepL) Name() string { return string(language.ProviderDeepL) }

func (d *DeepL) MaxTextLength() int { return d.maxLength }

type deeplRequest struct {
	Text       []string `json:"text"`
	SourceLang string   `json:"source_lang,omitempty"`
	TargetLang string   `json:"target_lang"`
}

type deeplResponse struct {
	Translations []struct {
		DetectedSourceLanguage string `json:"detected_source_language"`
		Text                   string `json:"text"`
	} `json:"translations"`
}

type deeplErrorBody struct {
	Message string `json:"message"`
}

// Translate 调用 POST /v2/translate
func (d *DeepL) Translate(ctx context.Context, text, sourceCode, targetCode string) (string, error) {
	ctx, span := tracer.Start(ctx, "translator.DeepL.Translate")
	defer span.End()
	span.SetAttributes(
		attribute.String("translation.source", sourceCode),
		attribute.String("translation.target", targetCode),
		attribute.Int("translation.length", len(text)),
	)

	body, err := json.Marshal(deeplRequest{
		Text:       []string{text},
		SourceLang: strings.ToUpper(sourceCode),
		TargetLang: strings.ToUpper(targetCode),
	})
	if err != nil {
		return "", d.fail(err, 0, false)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/v2/translate", bytes.NewReader(body))
	if err != nil {
		return "", d.fail(err, 0, false)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "DeepL-Auth-Key "+d.apiKey)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		// 网络错误与超时可重试
		return "", d.fail(err, 0, true)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", d.fail(err, resp.StatusCode, true)
	}

	if resp.StatusCode != http.StatusOK {
		var eb deeplErrorBody
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &eb) == nil && eb.Message != "" {
			msg = eb.Message
		}
		perr := d.fail(fmt.Errorf("deepl: %s", msg), resp.StatusCode, translation.IsTransientStatus(resp.StatusCode))
		span.RecordError(perr)
		return "", perr
	}

	var out deeplResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", d.fail(fmt.Errorf("decode response: %w", err), resp.StatusCode, false)
	}
	if len(out.Translations) == 0 {
		return "", d.fail(errors.New("empty translations"), resp.StatusCode, true)
	}
	return out.Translations[0].Text, nil
}

func (d *DeepL) fail(err error, status int, transient bool) error {
	return &translation.ProviderError{Provider: d.Name(), Transient: transient, StatusCode: status, Err: err}
}
