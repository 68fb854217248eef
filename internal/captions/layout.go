package captions

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"

	"github.com/ubongpr7/hooks/internal/sheets"
)

// ErrRenderCaption wraps any caption layout failure. It aborts only the
// segment being rendered, never the whole batch.
var ErrRenderCaption = errors.New("caption render failed")

// Params describes one caption overlay to lay out.
type Params struct {
	// HookText is the raw hook text of the row; its spacing drives how
	// inter-word spacing is reproduced.
	HookText string
	// Width and Height are the output video dimensions.
	Width, Height int
	// BoxColor fills the top caption band (or the portrait chips).
	BoxColor sheets.Color
	// TextColor substitutes for words whose spreadsheet color is unset.
	TextColor sheets.Color
	// Words is the row's ordered word-color data, the authoritative word
	// sequence for highlighting.
	Words []sheets.WordColor
	// Portrait selects the tiktok chip layout instead of full-width bands.
	Portrait bool
}

// Box is a filled rectangle behind caption text. Radius only affects
// placement math; the renderer draws square corners.
type Box struct {
	X, Y, W, H int
	Radius     int
	Color      sheets.Color
}

// Word is one positioned, colored caption word.
type Word struct {
	Text     string
	Color    sheets.Color
	FontSize int
	X, Y     int
}

// Overlay is a fully positioned caption plan, consumed by the segment
// composer as ffmpeg filter input. It carries no duration; the caller binds
// it to the segment's audio length.
type Overlay struct {
	Width, Height int
	Boxes         []Box
	Words         []Word
}

// span is one matched caption word with its resolved color and whether the
// source text had a space after it.
type span struct {
	text  string
	color sheets.Color
	space bool
}

// Engine computes caption overlays from word-color data and target geometry.
type Engine struct {
	m   Measurer
	log *logrus.Logger
}

// NewEngine returns a caption layout engine.
func NewEngine(log *logrus.Logger) *Engine {
	return &Engine{m: NewMeasurer(), log: log}
}

// Build lays out the caption overlay for one hook row.
func (e *Engine) Build(p Params) (*Overlay, error) {
	overlay, err := e.build(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRenderCaption, err)
	}
	return overlay, nil
}

func (e *Engine) build(p Params) (*Overlay, error) {
	origParts := SplitHookText(p.HookText)

	// The color-annotated words are the authoritative word sequence; the
	// caption text is reassembled from them, not from the raw hook text.
	var annotated []string
	for _, wc := range p.Words {
		annotated = append(annotated, wc.Text)
	}
	if len(annotated) == 0 {
		return nil, errors.New("no word color data for row")
	}
	parts := SplitHookText(strings.Join(annotated, " "))
	if parts[0] == "" {
		return nil, errors.New("empty caption text")
	}
	e.log.Debugf("Hook text parts: %v", parts)

	w := float64(p.Width)
	h := float64(p.Height)
	xScale := w / 360
	yScale := h / 450
	maxWidth := w - 100

	bandH := math.Round(40 * yScale)
	fontSize1 := math.Round(15 * xScale)
	if p.Portrait {
		fontSize1 += 18
	}
	if p.Width == 1920 && p.Height == 1080 {
		fontSize1 -= 20
	}

	// Shrink portrait text until it fits the band; otherwise grow the band.
	textH1 := e.m.BlockHeight(parts[0], fontSize1, maxWidth)
	if textH1 > bandH-10 {
		if p.Portrait {
			for textH1 > bandH-10 && fontSize1 > 1 {
				fontSize1--
				textH1 = e.m.BlockHeight(parts[0], fontSize1, maxWidth)
			}
		} else {
			bandH = textH1 + 10
		}
	}

	firstLine, secondLine := parts[0], ""
	if p.Portrait {
		firstLine, secondLine = e.breakLine(parts[0], fontSize1, maxWidth)
	}

	origFirst := parts[0]
	if len(origParts) > 0 {
		origFirst = collapseSpaces(origParts[0])
	}
	spans1 := matchWordColors(p.Words, parts[0], origFirst, p.TextColor, false)
	if len(spans1) == 0 {
		return nil, errors.New("no caption words matched color data")
	}

	overlay := &Overlay{Width: p.Width, Height: p.Height}

	yOffset := (bandH - textH1) / 2
	var group1End float64

	if p.Portrait {
		const paddingTop = 570.0
		yOffset += paddingTop / 2

		group1End = e.placeChips(overlay, chipLayout{
			spans:     spans1,
			firstLine: firstLine,
			hasSecond: secondLine != "",
			fontSize:  fontSize1,
			y:         yOffset,
			radius:    20,
			hPadding:  50,
			vPadding:  30,
			boxColor:  p.BoxColor,
		})
	} else {
		overlay.Boxes = append(overlay.Boxes, Box{X: 0, Y: 0, W: p.Width, H: int(bandH), Color: p.BoxColor})
		lines := e.wrapSpans(spans1, fontSize1, maxWidth)
		e.placeLines(overlay, lines, fontSize1, yOffset)
		group1End = bandH
	}

	if len(parts) > 1 && parts[1] != "" {
		if err := e.buildSecondGroup(overlay, p, parts[1], xScale, yScale, group1End); err != nil {
			return nil, err
		}
	}

	return overlay, nil
}

// buildSecondGroup lays out the line group after the " - " separator. It runs
// the same fit/break/match steps at a smaller size. Unset here means white,
// overridden to black, the opposite polarity of group 1; that asymmetry is
// intentional and matched to the reference behavior.
func (e *Engine) buildSecondGroup(overlay *Overlay, p Params, part string, xScale, yScale, group1End float64) error {
	const xMargin = 5.0
	w := float64(p.Width)
	maxWidth := w - 100

	bandH := math.Round(30 * yScale)
	fontSize := math.Round(15 * 0.6 * xScale)
	switch {
	case p.Portrait:
		fontSize += 18 * 0.6
	case p.Width == 1920 && p.Height == 1080:
		fontSize -= 20 * 0.6
	default:
		fontSize += 6
	}

	textH := e.m.BlockHeight(part, fontSize, w-xMargin*2)
	if textH > bandH {
		if p.Portrait {
			for textH > bandH && fontSize > 1 {
				fontSize--
				textH = e.m.BlockHeight(part, fontSize, maxWidth*0.8)
			}
		} else {
			bandH = textH
		}
	}

	firstLine := part
	if p.Portrait {
		firstLine, _ = e.breakLine(part, fontSize, maxWidth*0.8)
	}

	spans := matchWordColors(p.Words, part, collapseSpaces(part), sheets.Color{}, true)
	if len(spans) == 0 {
		return errors.New("no caption words matched color data for second group")
	}

	white := sheets.Color{R: 255, G: 255, B: 255}

	if p.Portrait {
		const secondPartMargin = 20.0
		e.placeChips(overlay, chipLayout{
			spans:     spans,
			firstLine: firstLine,
			hasSecond: firstLine != part,
			fontSize:  fontSize,
			y:         group1End + secondPartMargin,
			radius:    15,
			hPadding:  40,
			vPadding:  20,
			boxColor:  white,
		})
		return nil
	}

	overlay.Boxes = append(overlay.Boxes, Box{X: 0, Y: int(group1End), W: p.Width, H: int(bandH), Color: white})
	lines := e.wrapSpans(spans, fontSize, w-xMargin*2)
	e.placeLines(overlay, lines, fontSize, group1End+(bandH-textH)/2)
	return nil
}

// breakLine reproduces the portrait wrap heuristic: render growing prefixes
// until the estimated height exceeds a single line, then break at the last
// whitespace before that point.
func (e *Engine) breakLine(part string, fontSize, maxWidth float64) (first, second string) {
	first = part
	runes := []rune(part)
	singleLine := e.m.LineHeight(fontSize)

	for i := range runes {
		prefix := strings.TrimSpace(string(runes[:i+1]))
		if e.m.BlockHeight(prefix, fontSize, maxWidth) > singleLine {
			for j := i; j > 0; j-- {
				if unicode.IsSpace(runes[j]) {
					first = strings.TrimSpace(string(runes[:j]))
					second = strings.TrimSpace(string(runes[j+1:]))
					break
				}
			}
			break
		}
	}
	return first, second
}

// matchWordColors walks the ordered word-color data, matching each annotated
// word against the next expected word of the line group (case-insensitive
// after capitalization). Group 1 reproduces the source text's inter-word
// spacing; group 2 (invertPolarity) always appends a space and flips the
// unset-color rule from black to white.
func matchWordColors(words []sheets.WordColor, part, origPart string, fallback sheets.Color, invertPolarity bool) []span {
	expected := strings.Fields(part)
	var spans []span
	wordIndex := 0
	charIndex := 0

	for _, wc := range words {
		if wordIndex >= len(expected) {
			break
		}
		word := Capitalize(wc.Text)
		if word != Capitalize(expected[wordIndex]) {
			continue
		}

		color := wc.Color
		if invertPolarity {
			if color.IsWhite() {
				color = sheets.Color{}
			}
		} else if color.IsBlack() {
			color = fallback
		}

		s := span{text: word, color: color, space: invertPolarity}
		if !invertPolarity {
			charIndex += len([]rune(word))
			if charIndex < len([]rune(origPart)) && []rune(origPart)[charIndex] == ' ' {
				s.space = true
				charIndex++
			}
		}

		spans = append(spans, s)
		wordIndex++
	}
	return spans
}

// wrapSpans packs spans into rendered lines no wider than maxWidth.
func (e *Engine) wrapSpans(spans []span, fontSize, maxWidth float64) [][]span {
	var lines [][]span
	var current []span
	var width float64
	space := e.m.TextWidth(" ", fontSize)

	for _, s := range spans {
		ww := e.m.TextWidth(s.text, fontSize)
		if len(current) > 0 && width+ww > maxWidth {
			lines = append(lines, current)
			current = nil
			width = 0
		}
		current = append(current, s)
		width += ww
		if s.space {
			width += space
		}
	}
	if len(current) > 0 {
		lines = append(lines, current)
	}
	return lines
}

// lineWidth is the rendered width of one line of spans, trailing space
// excluded.
func (e *Engine) lineWidth(line []span, fontSize float64) float64 {
	var width float64
	space := e.m.TextWidth(" ", fontSize)
	for i, s := range line {
		width += e.m.TextWidth(s.text, fontSize)
		if s.space && i < len(line)-1 {
			width += space
		}
	}
	return width
}

// placeLines centers each line horizontally and emits positioned words.
func (e *Engine) placeLines(overlay *Overlay, lines [][]span, fontSize, y float64) {
	space := e.m.TextWidth(" ", fontSize)
	lineH := e.m.LineHeight(fontSize)

	for i, line := range lines {
		x := (float64(overlay.Width) - e.lineWidth(line, fontSize)) / 2
		lineY := y + float64(i)*lineH
		for _, s := range line {
			overlay.Words = append(overlay.Words, Word{
				Text:     s.text,
				Color:    s.color,
				FontSize: int(math.Round(fontSize)),
				X:        int(math.Round(x)),
				Y:        int(math.Round(lineY)),
			})
			x += e.m.TextWidth(s.text, fontSize)
			if s.space {
				x += space
			}
		}
	}
}

type chipLayout struct {
	spans     []span
	firstLine string
	hasSecond bool
	fontSize  float64
	y         float64
	radius    int
	hPadding  float64
	vPadding  float64
	boxColor  sheets.Color
}

// placeChips emits the portrait "chip" composition: one rounded background
// per rendered line, horizontally centered and vertically stacked with the
// second chip tucked under the first by the corner radius. Returns the y
// coordinate where the group ends.
func (e *Engine) placeChips(overlay *Overlay, c chipLayout) float64 {
	firstCount := len(strings.Split(c.firstLine, " "))
	if firstCount > len(c.spans) {
		firstCount = len(c.spans)
	}
	lines := [][]span{c.spans[:firstCount]}
	if c.hasSecond && firstCount < len(c.spans) {
		lines = append(lines, c.spans[firstCount:])
	}

	lineH := e.m.LineHeight(c.fontSize)
	chipH := lineH + c.vPadding
	end := c.y + chipH

	var secondY float64
	if len(lines) > 1 {
		secondY = c.y + chipH - float64(c.radius) - 1
		end = secondY + chipH
	}

	// Background boxes first so text renders on top of them.
	for i, line := range lines {
		chipW := e.lineWidth(line, c.fontSize) + c.hPadding
		y := c.y
		if i == 1 {
			y = secondY
		}
		overlay.Boxes = append(overlay.Boxes, Box{
			X:      int(math.Round((float64(overlay.Width) - chipW) / 2)),
			Y:      int(math.Round(y)),
			W:      int(math.Round(chipW)),
			H:      int(math.Round(chipH)),
			Radius: c.radius,
			Color:  c.boxColor,
		})
	}

	for i, line := range lines {
		y := c.y
		if i == 1 {
			y = secondY
		}
		e.placeLines(overlay, [][]span{line}, c.fontSize, y+c.vPadding/2)
	}

	return end
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
