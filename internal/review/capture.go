package review

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"unicode/utf8"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/gokatarajesh/quiz-review/internal/question"
)

const (
	cardWidth   = 640
	cardPadding = 24
	lineGap     = 6
)

var (
	cardBackground = color.RGBA{R: 0xfa, G: 0xfa, B: 0xfa, A: 0xff}
	cardText       = color.RGBA{R: 0x22, G: 0x22, B: 0x22, A: 0xff}
	cardMuted      = color.RGBA{R: 0x77, G: 0x77, B: 0x77, A: 0xff}
	cardCorrect    = color.RGBA{R: 0x1b, G: 0x7f, B: 0x3b, A: 0xff}
)

type cardLine struct {
	text string
	ink  color.Color
}

// RenderCard draws q as a PNG: metadata header, wrapped question text, then
// the options with the correct one highlighted.
func RenderCard(q question.Question) ([]byte, error) {
	face := basicfont.Face7x13
	maxWidth := cardWidth - 2*cardPadding

	var lines []cardLine
	add := func(text string, ink color.Color) {
		for _, l := range wrapText(face, text, maxWidth) {
			lines = append(lines, cardLine{text: l, ink: ink})
		}
	}

	add(fmt.Sprintf("#%d  %s | %s | %s", q.HistoryID, q.Category, q.Type, q.Difficulty), cardMuted)
	lines = append(lines, cardLine{})
	add(q.Question, cardText)
	lines = append(lines, cardLine{})
	for i, opt := range q.Options() {
		ink := color.Color(cardText)
		prefix := "  "
		if opt == q.CorrectAnswer {
			ink = cardCorrect
			prefix = "* "
		}
		add(fmt.Sprintf("%s%c) %s", prefix, 'A'+i, opt), ink)
	}

	lineHeight := face.Metrics().Height.Ceil() + lineGap
	height := 2*cardPadding + len(lines)*lineHeight

	img := image.NewRGBA(image.Rect(0, 0, cardWidth, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(cardBackground), image.Point{}, draw.Src)

	ascent := face.Metrics().Ascent.Ceil()
	for i, l := range lines {
		if l.text == "" {
			continue
		}
		d := &font.Drawer{
			Dst:  img,
			Src:  image.NewUniform(l.ink),
			Face: face,
			Dot:  fixed.P(cardPadding, cardPadding+i*lineHeight+ascent),
		}
		d.DrawString(l.text)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode capture: %w", err)
	}
	return buf.Bytes(), nil
}

// wrapText breaks text on spaces so each line fits maxWidth pixels. Words
// longer than a line are split by rune.
func wrapText(face font.Face, text string, maxWidth int) []string {
	fits := func(s string) bool {
		return font.MeasureString(face, s).Ceil() <= maxWidth
	}

	var lines []string
	var current string
	for _, word := range strings.Fields(text) {
		for !fits(word) {
			head := splitToFit(word, fits)
			if current != "" {
				lines = append(lines, current)
				current = ""
			}
			lines = append(lines, head)
			word = word[len(head):]
		}
		if word == "" {
			continue
		}
		candidate := word
		if current != "" {
			candidate = current + " " + word
		}
		if fits(candidate) {
			current = candidate
			continue
		}
		lines = append(lines, current)
		current = word
	}
	if current != "" {
		lines = append(lines, current)
	}
	return lines
}

func splitToFit(word string, fits func(string) bool) string {
	cut := 0
	for cut < len(word) {
		_, size := utf8.DecodeRuneInString(word[cut:])
		if !fits(word[:cut+size]) {
			break
		}
		cut += size
	}
	if cut == 0 {
		_, cut = utf8.DecodeRuneInString(word)
	}
	return word[:cut]
}
