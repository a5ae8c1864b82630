package translation

import (
	"regexp"
	"unicode/utf8"
)

// Chunk 一段待翻译文本及其后的原始分隔符
type Chunk struct {
	Text string
	Sep  string
}

type boundary struct {
	re *regexp.Regexp
	// group 分隔符所在的捕获组，0 表示整个匹配
	group int
}

// 依次按段落、句子、单词切分；走到单词级别意味着有句子被截断
var boundaries = []boundary{
	{re: regexp.MustCompile(`\n[ \t]*\n\s*`)},
	{re: regexp.MustCompile(`[.!?…]+["'»”’)\]]*(\s+)`), group: 1},
	{re: regexp.MustCompile(`\s+`)},
}

const wordLevel = 2

// SplitText 将文本切分为不超过 max 个字符的块
// 第二个返回值表示是否有单个句子超长而被按单词切开
func SplitText(text string, max int) ([]Chunk, bool) {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return []Chunk{{Text: text}}, false
	}
	return splitLevel(text, max, 0)
}

// JoinChunks 按原顺序与原分隔符拼接
func JoinChunks(chunks []Chunk) string {
	n := 0
	for _, c := range chunks {
		n += len(c.Text) + len(c.Sep)
	}
	b := make([]byte, 0, n)
	for _, c := range chunks {
		b = append(b, c.Text...)
		b = append(b, c.Sep...)
	}
	return string(b)
}

func splitLevel(text string, max, level int) ([]Chunk, bool) {
	if level >= len(boundaries) {
		return hardCut(text, max), true
	}
	cut := level >= wordLevel

	pieces := splitKeep(text, boundaries[level])
	out := make([]Chunk, 0, len(pieces))
	for _, p := range pieces {
		if utf8.RuneCountInString(p.Text) <= max {
			out = append(out, p)
			continue
		}
		sub, subCut := splitLevel(p.Text, max, level+1)
		sub[len(sub)-1].Sep += p.Sep
		out = append(out, sub...)
		cut = cut || subCut
	}
	return pack(out, max), cut
}

// splitKeep 按边界切分并保留分隔符
func splitKeep(text string, b boundary) []Chunk {
	var out []Chunk
	pos := 0
	for _, m := range b.re.FindAllStringSubmatchIndex(text, -1) {
		s, e := m[2*b.group], m[2*b.group+1]
		if s < 0 {
			continue
		}
		if s == pos && len(out) > 0 {
			out[len(out)-1].Sep += text[s:e]
		} else {
			out = append(out, Chunk{Text: text[pos:s], Sep: text[s:e]})
		}
		pos = e
	}
	if pos < len(text) || len(out) == 0 {
		out = append(out, Chunk{Text: text[pos:]})
	}
	return out
}

// pack 贪心合并相邻块
func pack(pieces []Chunk, max int) []Chunk {
	out := make([]Chunk, 0, len(pieces))
	for _, p := range pieces {
		if n := len(out); n > 0 {
			last := out[n-1]
			merged := last.Text + last.Sep + p.Text
			if utf8.RuneCountInString(merged) <= max {
				out[n-1] = Chunk{Text: merged, Sep: p.Sep}
				continue
			}
		}
		out = append(out, p)
	}
	return out
}

func hardCut(text string, max int) []Chunk {
	var out []Chunk
	runes := []rune(text)
	for len(runes) > max {
		out = append(out, Chunk{Text: string(runes[:max])})
		runes = runes[max:]
	}
	return append(out, Chunk{Text: string(runes)})
}
