package llm

import (
	"context"
	"embed"
	"fmt"
	"os"
	"strings"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"fable-ai-api/internal/domain/service"
)

//go:embed templates/*.txt
var templatesFS embed.FS

const (
	defaultSystemTemplate = "templates/story.system.txt"
	defaultUserTemplate   = "templates/story.user.txt"
)

// StoryTemplate 故事生成提示词（FString 格式）
type StoryTemplate struct {
	tpl einoprompt.ChatTemplate
}

// LoadStoryTemplate 读取提示词文件，路径为空时使用内置模板
func LoadStoryTemplate(systemFile, userFile string) (*StoryTemplate, error) {
	system, err := readTemplate(systemFile, defaultSystemTemplate)
	if err != nil {
		return nil, err
	}
	user, err := readTemplate(userFile, defaultUserTemplate)
	if err != nil {
		return nil, err
	}
	return &StoryTemplate{
		tpl: einoprompt.FromMessages(
			schema.FString,
			schema.SystemMessage(system),
			schema.UserMessage(user),
		),
	}, nil
}

func readTemplate(path, embedded string) (string, error) {
	var (
		b   []byte
		err error
	)
	if strings.TrimSpace(path) != "" {
		b, err = os.ReadFile(path)
	} else {
		b, err = templatesFS.ReadFile(embedded)
	}
	if err != nil {
		return "", fmt.Errorf("read prompt template: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// Format 渲染消息列表
func (t *StoryTemplate) Format(ctx context.Context, p service.StoryPrompt) ([]*schema.Message, error) {
	vars := map[string]any{
		"language":           p.Language,
		"number_of_chapters": p.NumberOfChapters,
		"child_age":          p.ChildAge,
		"protagonist":        strings.TrimSpace(p.Protagonist),
		"species":            strings.TrimSpace(p.Species),
		"theme":              strings.TrimSpace(p.Theme),
		"theme_description":  strings.TrimSpace(p.ThemeDescription),
		"tone":               strings.TrimSpace(p.Tone),
		"tone_description":   strings.TrimSpace(p.ToneDescription),
		"title_hint":         hint("Use this title: ", p.Title),
		"synopsis_hint":      hint("Follow this synopsis: ", p.Synopsis),
	}
	return t.tpl.Format(ctx, vars)
}

func hint(prefix, value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	return prefix + value
}
