package service

import "context"

// StoryPrompt 文本生成输入
type StoryPrompt struct {
	// Language 生成语言代码，翻译档位下固定为 FR
	Language         string
	Title            string
	Synopsis         string
	Protagonist      string
	Species          string
	ChildAge         int
	NumberOfChapters int
	Theme            string
	ThemeDescription string
	Tone             string
	ToneDescription  string
}

// StoryTextGenerator 调用 LLM 生成整篇故事原文
type StoryTextGenerator interface {
	GenerateStory(ctx context.Context, prompt StoryPrompt) (string, error)
}

// CoverImageGenerator 生成封面图，返回可访问的 URL
type CoverImageGenerator interface {
	GenerateCover(ctx context.Context, title, synopsis string) (string, error)
}
