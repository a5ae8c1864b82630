package translation

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitText_ShortTextIsOneChunk(t *testing.T) {
	chunks, cut := SplitText("Bonjour.", 100)
	require.Len(t, chunks, 1)
	assert.False(t, cut)
	assert.Equal(t, "Bonjour.", chunks[0].Text)
}

func TestSplitText_ParagraphsFirst(t *testing.T) {
	p1 := strings.Repeat("a", 40)
	p2 := strings.Repeat("b", 40)
	p3 := strings.Repeat("c", 40)
	text := p1 + "\n\n" + p2 + "\n \n" + p3

	chunks, cut := SplitText(text, 90)
	assert.False(t, cut)
	require.Len(t, chunks, 2)
	assert.Equal(t, p1+"\n\n"+p2, chunks[0].Text)
	assert.Equal(t, p3, chunks[1].Text)
	assert.Equal(t, text, JoinChunks(chunks))
}

func TestSplitText_SentencesInsideLongParagraph(t *testing.T) {
	text := "Le renard dort. La lune brille! Tout est calme? Oui."
	chunks, cut := SplitText(text, 20)
	assert.False(t, cut)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Text), 20)
		trimmed := strings.TrimSpace(c.Text)
		assert.Contains(t, ".!?", trimmed[len(trimmed)-1:], "chunk %q ends mid-sentence", c.Text)
	}
	assert.Equal(t, text, JoinChunks(chunks))
}

func TestSplitText_OverlongSentenceSplitsOnWords(t *testing.T) {
	text := "un deux trois quatre cinq six sept huit neuf dix"
	chunks, cut := SplitText(text, 12)
	assert.True(t, cut)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Text), 12)
		assert.NotContains(t, c.Text, "  ")
	}
	assert.Equal(t, text, JoinChunks(chunks))
}

func TestSplitText_MultibyteLengthInRunes(t *testing.T) {
	text := strings.Repeat("é", 10) + ". " + strings.Repeat("à", 10) + "."
	chunks, _ := SplitText(text, 12)
	require.Len(t, chunks, 2)
	assert.Equal(t, text, JoinChunks(chunks))
}

func TestSplitText_PreservesOrderRoundTrip(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 50; i++ {
		b.WriteString("Il était une fois un petit renard curieux. ")
		if i%7 == 0 {
			b.WriteString("\n\n")
		}
	}
	text := b.String()
	chunks, _ := SplitText(text, 200)
	assert.Greater(t, len(chunks), 1)
	assert.Equal(t, text, JoinChunks(chunks))
}
