package entity

import "strings"

// ChapterImage 章节插图
type ChapterImage struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Chapter 故事章节，挂载后不可变
type Chapter struct {
	Position int           `json:"position"`
	Title    string        `json:"title"`
	Content  string        `json:"content"`
	Image    *ChapterImage `json:"image,omitempty"`
}

// NewChapters 按给定顺序生成 1..N 的章节
func NewChapters(parts []ChapterDraft) []Chapter {
	chapters := make([]Chapter, 0, len(parts))
	for i, p := range parts {
		chapters = append(chapters, Chapter{
			Position: i + 1,
			Title:    strings.TrimSpace(p.Title),
			Content:  strings.TrimSpace(p.Content),
		})
	}
	return chapters
}

// ChapterDraft 尚未定位的章节内容
type ChapterDraft struct {
	Title   string
	Content string
}

func cloneChapters(in []Chapter) []Chapter {
	if in == nil {
		return []Chapter{}
	}
	out := make([]Chapter, len(in))
	for i, c := range in {
		out[i] = c
		if c.Image != nil {
			img := *c.Image
			out[i].Image = &img
		}
	}
	return out
}

// validateChapterPositions 位置必须从 1 开始连续递增且不重复
func validateChapterPositions(chapters []Chapter) error {
	for i, c := range chapters {
		if c.Position != i+1 {
			return violation("chapters", "chapter at index %d has position %d, want %d", i, c.Position, i+1)
		}
	}
	return nil
}
