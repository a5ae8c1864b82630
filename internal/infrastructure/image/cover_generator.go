// Package image 封面图生成
package image

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"

	"fable-ai-api/internal/config"
	"fable-ai-api/internal/domain/service"
	"fable-ai-api/pkg/tracer"
)

const defaultPromptTemplate = "A soft watercolor cover illustration for a children's story titled \"{title}\". {synopsis} No text or lettering."

// ErrNoImage 接口未返回图片
var ErrNoImage = errors.New("image api returned no image")

// CoverGenerator 基于 OpenAI Images 接口生成封面
type CoverGenerator struct {
	client   *openai.Client
	model    string
	size     string
	template string
	timeout  time.Duration
}

var _ service.CoverImageGenerator = (*CoverGenerator)(nil)

// NewCoverGenerator 创建封面生成器
func NewCoverGenerator(cfg *config.ImageConfig) (*CoverGenerator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("image api key is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	g := &CoverGenerator{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    cfg.Model,
		size:     cfg.Size,
		template: cfg.PromptTemplate,
		timeout:  cfg.Timeout,
	}
	if g.model == "" {
		g.model = openai.CreateImageModelDallE3
	}
	if g.size == "" {
		g.size = openai.CreateImageSize1024x1024
	}
	if g.template == "" {
		g.template = defaultPromptTemplate
	}
	if g.timeout <= 0 {
		g.timeout = 60 * time.Second
	}
	return g, nil
}

// GenerateCover 返回图片 URL
func (g *CoverGenerator) GenerateCover(ctx context.Context, title, synopsis string) (string, error) {
	ctx, span := tracer.Start(ctx, "image.CoverGenerator.GenerateCover")
	defer span.End()
	span.SetAttributes(attribute.String("image.model", g.model))

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         g.prompt(title, synopsis),
		Model:          g.model,
		Size:           g.size,
		N:              1,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("create cover image: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		span.RecordError(ErrNoImage)
		return "", ErrNoImage
	}
	return resp.Data[0].URL, nil
}

func (g *CoverGenerator) prompt(title, synopsis string) string {
	return strings.TrimSpace(strings.NewReplacer(
		"{title}", strings.TrimSpace(title),
		"{synopsis}", strings.TrimSpace(synopsis),
	).Replace(g.template))
}
