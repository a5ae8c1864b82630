package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"go.opentelemetry.io/otel/attribute"

	"fable-ai-api/internal/domain/service"
	"fable-ai-api/pkg/tracer"
)

// ErrEmptyCompletion 模型返回空内容
var ErrEmptyCompletion = errors.New("llm returned empty completion")

// StoryGenerator 以 ChatModel 生成整篇故事
type StoryGenerator struct {
	factory  ChatModelFactory
	provider string
	template *StoryTemplate
}

var _ service.StoryTextGenerator = (*StoryGenerator)(nil)

// NewStoryGenerator provider 为空时使用工厂默认 provider
func NewStoryGenerator(factory ChatModelFactory, provider string, template *StoryTemplate) *StoryGenerator {
	return &StoryGenerator{factory: factory, provider: provider, template: template}
}

func (g *StoryGenerator) GenerateStory(ctx context.Context, p service.StoryPrompt) (string, error) {
	ctx, span := tracer.Start(ctx, "llm.StoryGenerator.GenerateStory")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", g.provider),
		attribute.String("story.language", p.Language),
		attribute.Int("story.chapters", p.NumberOfChapters),
	)

	if p.NumberOfChapters <= 0 {
		return "", fmt.Errorf("number of chapters must be positive, got %d", p.NumberOfChapters)
	}

	chatModel, err := g.factory.Get(ctx, g.provider)
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	msgs, err := g.template.Format(ctx, p)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("format story prompt: %w", err)
	}

	ctx = WithProvider(ctx, g.provider)
	ctx = einocb.InitCallbacks(ctx, &einocb.RunInfo{
		Name:      "story_generate",
		Type:      "ChatModel",
		Component: components.ComponentOfChatModel,
	})

	out, err := chatModel.Generate(ctx, msgs)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("llm generate: %w", err)
	}
	if out == nil || strings.TrimSpace(out.Content) == "" {
		span.RecordError(ErrEmptyCompletion)
		return "", ErrEmptyCompletion
	}
	return out.Content, nil
}
