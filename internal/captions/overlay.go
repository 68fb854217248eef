package captions

import (
	"fmt"

	"github.com/ubongpr7/hooks/internal/ffmpeg"
)

// FilterOptions control how an overlay is rendered into filter expressions.
type FilterOptions struct {
	// FontFile is an optional path to a TTF/OTF file. When empty, drawtext
	// falls back to the fontconfig default.
	FontFile string
}

// Filters flattens the overlay into a sequence of drawbox/drawtext filter
// expressions, boxes first so text lands on top. The caller joins them into
// its filter graph.
func (o *Overlay) Filters(opts FilterOptions) []string {
	filters := make([]string, 0, len(o.Boxes)+len(o.Words))

	for _, b := range o.Boxes {
		filters = append(filters, fmt.Sprintf(
			"drawbox=x=%d:y=%d:w=%d:h=%d:color=%s:t=fill",
			b.X, b.Y, b.W, b.H, b.Color.Hex(),
		))
	}

	for _, w := range o.Words {
		f := fmt.Sprintf(
			"drawtext=text='%s':x=%d:y=%d:fontsize=%d:fontcolor=%s",
			ffmpeg.EscapeFilterText(w.Text), w.X, w.Y, w.FontSize, w.Color.Hex(),
		)
		if opts.FontFile != "" {
			f += ":fontfile=" + opts.FontFile
		}
		filters = append(filters, f)
	}

	return filters
}
