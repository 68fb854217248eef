package captions

import "strings"

// Measurer estimates rendered text dimensions without a raster pipeline.
// Advances are modeled as a fixed fraction of the font size, which is close
// enough for the caption font's average glyph width; every layout decision
// (shrink-to-fit, band growth, portrait line breaking) keys off these
// estimates consistently, so the output stays self-coherent.
type Measurer struct {
	// AdvanceRatio is the average horizontal advance of one glyph,
	// expressed as a fraction of the font size.
	AdvanceRatio float64
	// LineHeightRatio is the height of one text line as a fraction of the
	// font size.
	LineHeightRatio float64
}

// NewMeasurer returns a Measurer tuned for the caption font.
func NewMeasurer() Measurer {
	return Measurer{AdvanceRatio: 0.56, LineHeightRatio: 1.2}
}

// TextWidth estimates the width of s rendered on a single line.
func (m Measurer) TextWidth(s string, fontSize float64) float64 {
	return float64(len([]rune(s))) * fontSize * m.AdvanceRatio
}

// LineHeight is the height of a single rendered text line.
func (m Measurer) LineHeight(fontSize float64) float64 {
	return fontSize * m.LineHeightRatio
}

// WrapWords greedily packs words into lines no wider than maxWidth. A word
// wider than maxWidth still occupies its own line.
func (m Measurer) WrapWords(words []string, fontSize, maxWidth float64) [][]string {
	var lines [][]string
	var current []string
	var width float64
	space := m.TextWidth(" ", fontSize)

	for _, w := range words {
		ww := m.TextWidth(w, fontSize)
		if len(current) > 0 && width+space+ww > maxWidth {
			lines = append(lines, current)
			current = nil
			width = 0
		}
		if len(current) > 0 {
			width += space
		}
		current = append(current, w)
		width += ww
	}
	if len(current) > 0 {
		lines = append(lines, current)
	}
	return lines
}

// BlockHeight estimates the rendered height of text wrapped to maxWidth.
func (m Measurer) BlockHeight(text string, fontSize, maxWidth float64) float64 {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}
	lines := m.WrapWords(words, fontSize, maxWidth)
	return float64(len(lines)) * m.LineHeight(fontSize)
}
