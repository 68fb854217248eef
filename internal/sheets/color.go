package sheets

import (
	"fmt"
	"strconv"
	"strings"
)

// Color is an RGB triple as extracted from spreadsheet text formatting.
// The zero value (black) doubles as "no explicit color"; downstream caption
// rendering substitutes the job's default text color for it.
type Color struct {
	R, G, B uint8
}

// IsBlack reports whether the color is unset/black.
func (c Color) IsBlack() bool {
	return c.R == 0 && c.G == 0 && c.B == 0
}

// IsWhite reports whether the color is pure white.
func (c Color) IsWhite() bool {
	return c.R == 255 && c.G == 255 && c.B == 255
}

// Hex renders the color as "#rrggbb".
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// ParseHexColor converts a "#rrggbb" string to a Color.
func ParseHexColor(hex string) (Color, error) {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 {
		return Color{}, fmt.Errorf("invalid hex color %q", hex)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("invalid hex color %q: %w", hex, err)
	}
	return Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

// WordColor is one word of a spreadsheet cell together with its text color.
// Slice order is the sheet's reading order and must be preserved end-to-end.
type WordColor struct {
	Text  string
	Color Color
}
