// Package chapterparse 将模型生成的整段文本解析为有序章节与结尾
package chapterparse

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// headerPattern 行首的章节标题，允许前置 markdown 标记
	// g1: 章节号, g2: 标题
	headerPattern = regexp.MustCompile(`(?im)^[ \t#>*_]*(?:chapter|chapitre)[ \t]+(\d+)[ \t*_]*[:.\-–—][ \t]*(.*)$`)

	// conclusionPattern 行首的结尾标记，冒号可省略（独占一行的标题）
	conclusionPattern = regexp.MustCompile(`(?im)^[ \t#>*_]*(?:conclusion|[ée]pilogue)[ \t*_]*(?::|$)[ \t*_]*`)

	titleLinePattern    = regexp.MustCompile(`(?im)^[ \t#>*_]*(?:title|titre)[ \t*_]*:[ \t*_]*(.+)$`)
	synopsisLinePattern = regexp.MustCompile(`(?im)^[ \t#>*_]*(?:synopsis|résumé|resume|summary)[ \t*_]*:[ \t*_]*(.+)$`)

	markupReplacer = strings.NewReplacer("**", "", "__", "", "*", "")
)

// Chapter 解析出的章节
type Chapter struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Result 解析结果，两个字段总是存在
type Result struct {
	Chapters   []Chapter `json:"chapters"`
	Conclusion string    `json:"conclusion"`
}

// Preamble 第一个章节之前的标题与简介
type Preamble struct {
	Title    string
	Synopsis string
}

type header struct {
	start, end int
	title      string
}

// Parse 解析生成文本，从不返回错误
// 没有识别到章节时返回空章节列表，由调用方按数据质量问题处理
func Parse(text string) Result {
	text = normalizeNewlines(text)
	headers := findHeaders(text)

	res := Result{Chapters: make([]Chapter, 0, len(headers))}
	if len(headers) == 0 {
		res.Conclusion = searchConclusion(text, nil)
		return res
	}

	for i, h := range headers {
		bodyEnd := len(text)
		if i+1 < len(headers) {
			bodyEnd = headers[i+1].start
		}
		res.Chapters = append(res.Chapters, Chapter{
			Title:   h.title,
			Content: text[h.end:bodyEnd],
		})
	}

	// 最后一章内的结尾标记优先
	last := &res.Chapters[len(res.Chapters)-1]
	if loc := conclusionPattern.FindStringIndex(last.Content); loc != nil {
		res.Conclusion = strings.TrimSpace(last.Content[loc[1]:])
		last.Content = last.Content[:loc[0]]
	} else {
		res.Conclusion = searchConclusion(text, headers)
	}

	for i := range res.Chapters {
		res.Chapters[i].Content = strings.TrimSpace(res.Chapters[i].Content)
	}
	return res
}

// ParsePreamble 提取第一个章节之前的 Title/Synopsis 行
func ParsePreamble(text string) Preamble {
	text = normalizeNewlines(text)
	if headers := findHeaders(text); len(headers) > 0 {
		text = text[:headers[0].start]
	}
	var p Preamble
	if m := titleLinePattern.FindStringSubmatch(text); m != nil {
		p.Title = cleanTitle(m[1])
	}
	if m := synopsisLinePattern.FindStringSubmatch(text); m != nil {
		p.Synopsis = strings.TrimSpace(markupReplacer.Replace(m[1]))
	}
	return p
}

// Format 以规范格式输出，Parse(Format(r)) 得到相同的标题与正文
func Format(r Result) string {
	var b strings.Builder
	for i, c := range r.Chapters {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Chapter %d: %s\n\n%s", i+1, c.Title, c.Content)
	}
	if r.Conclusion != "" {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("Conclusion: ")
		b.WriteString(r.Conclusion)
	}
	return b.String()
}

func findHeaders(text string) []header {
	matches := headerPattern.FindAllStringSubmatchIndex(text, -1)
	headers := make([]header, 0, len(matches))
	for _, m := range matches {
		headers = append(headers, header{
			start: m[0],
			end:   m[1],
			title: cleanTitle(text[m[4]:m[5]]),
		})
	}
	return headers
}

// searchConclusion 在全文中查找结尾标记，截取到下一个章节标题或文本末尾
func searchConclusion(text string, headers []header) string {
	loc := conclusionPattern.FindStringIndex(text)
	if loc == nil {
		return ""
	}
	end := len(text)
	for _, h := range headers {
		if h.start >= loc[1] {
			end = h.start
			break
		}
	}
	return strings.TrimSpace(text[loc[1]:end])
}

// cleanTitle 只对标题去除加粗/标题标记
func cleanTitle(s string) string {
	s = markupReplacer.Replace(s)
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "#_"))
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}
