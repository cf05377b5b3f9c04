package review

import (
	"bytes"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"

	"github.com/gokatarajesh/quiz-review/internal/question"
)

func TestRenderCardProducesPNG(t *testing.T) {
	q := batchOf(1)[0]
	data, err := RenderCard(q)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, cardWidth, img.Bounds().Dx())
	assert.Greater(t, img.Bounds().Dy(), 2*cardPadding)
}

func TestRenderCardGrowsWithText(t *testing.T) {
	short := batchOf(1)[0]
	long := short
	long.Question = strings.Repeat("a fairly long question body ", 40)

	shortPNG, err := RenderCard(short)
	require.NoError(t, err)
	longPNG, err := RenderCard(long)
	require.NoError(t, err)

	a, err := png.Decode(bytes.NewReader(shortPNG))
	require.NoError(t, err)
	b, err := png.Decode(bytes.NewReader(longPNG))
	require.NoError(t, err)
	assert.Greater(t, b.Bounds().Dy(), a.Bounds().Dy())
}

func TestRenderCardBooleanQuestion(t *testing.T) {
	q := question.Question{
		HistoryID:        9,
		Category:         "Science & Nature",
		Type:             question.TypeBoolean,
		Difficulty:       question.DifficultyMedium,
		Question:         "Water boils at 100C at sea level.",
		CorrectAnswer:    "True",
		IncorrectAnswers: []string{"False"},
	}
	data, err := RenderCard(q)
	require.NoError(t, err)
	_, err = png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
}

func TestWrapTextFitsWidth(t *testing.T) {
	face := basicfont.Face7x13
	text := "The quick brown fox jumps over the lazy dog and keeps running across the field"
	lines := wrapText(face, text, 140)

	require.Greater(t, len(lines), 1)
	for _, l := range lines {
		assert.LessOrEqual(t, font.MeasureString(face, l).Ceil(), 140, l)
	}
	assert.Equal(t, strings.Fields(text), strings.Fields(strings.Join(lines, " ")))
}

func TestWrapTextSplitsLongWords(t *testing.T) {
	face := basicfont.Face7x13
	word := strings.Repeat("x", 50)
	lines := wrapText(face, "start "+word, 70)

	assert.Equal(t, "start", lines[0])
	assert.Equal(t, word, strings.Join(lines[1:], ""))
	for _, l := range lines {
		assert.LessOrEqual(t, font.MeasureString(face, l).Ceil(), 70)
	}
}

func TestWrapTextLinesHaveNoPadding(t *testing.T) {
	face := basicfont.Face7x13
	// 7px glyphs: 70px holds exactly ten runes, so these words split with no remainder
	for _, text := range []string{
		"ab " + strings.Repeat("y", 20) + " cd",
		strings.Repeat("z", 10) + " " + strings.Repeat("w", 30),
		"one " + strings.Repeat("q", 10),
	} {
		for _, l := range wrapText(face, text, 70) {
			assert.NotEmpty(t, l, text)
			assert.Equal(t, strings.TrimSpace(l), l, text)
		}
	}
}

func TestWrapTextNarrowWidthStillProgresses(t *testing.T) {
	lines := wrapText(basicfont.Face7x13, "héllo", 1)
	assert.Equal(t, []string{"h", "é", "l", "l", "o"}, lines)
}

func TestWrapTextEmpty(t *testing.T) {
	assert.Empty(t, wrapText(basicfont.Face7x13, "   ", 100))
}

func TestArtifactStoreSaveAndOpen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "captures")
	store := NewArtifactStore(dir)

	path, err := store.Save(4, []byte("first"))
	require.NoError(t, err)
	assert.Equal(t, store.Path(4), path)
	assert.True(t, strings.HasSuffix(path, "question_4.png"))

	_, err = store.Save(4, []byte("second"))
	require.NoError(t, err)

	f, err := store.Open(4)
	require.NoError(t, err)
	defer f.Close()
	buf := new(bytes.Buffer)
	_, err = buf.ReadFrom(f)
	require.NoError(t, err)
	assert.Equal(t, "second", buf.String())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "question_4.png", entries[0].Name())
}

func TestArtifactStoreOpenMissing(t *testing.T) {
	store := NewArtifactStore(t.TempDir())
	_, err := store.Open(99)
	assert.ErrorIs(t, err, ErrCaptureNotFound)
}
