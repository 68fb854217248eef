package compose

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ubongpr7/hooks/internal/captions"
	"github.com/ubongpr7/hooks/internal/ffmpeg"
)

// watermarkPadding is added to the caption overlay width when sizing the
// watermark, so it spans well past the caption band.
const watermarkPadding = 650

// Request describes one segment render: trimmed source clips laid back to
// back, the synthesized narration as the only audio track, and the caption
// overlay burned in on top.
type Request struct {
	// Clips are the source slices to concatenate, in order.
	Clips []string
	// AudioPath is the narration file; its duration is the output duration.
	AudioPath     string
	AudioDuration float64
	// Width and Height are the output dimensions.
	Width, Height int
	// Overlay is the positioned caption plan.
	Overlay *captions.Overlay
	// FontFile optionally points the caption text at a specific font.
	FontFile string
	// WatermarkPath, when set, composites a centered watermark image.
	WatermarkPath string
	OutputPath    string
}

// Composer renders hook segments with a single ffmpeg invocation per
// segment.
type Composer struct {
	runner *ffmpeg.Runner
	prober *ffmpeg.Prober
	log    *logrus.Logger
}

// NewComposer returns a Composer using the ffmpeg binaries on PATH.
func NewComposer(log *logrus.Logger) *Composer {
	return &Composer{runner: ffmpeg.NewRunner(), prober: ffmpeg.NewProber(), log: log}
}

// UsableClips filters the request's clip list down to files that exist and
// probe to a positive duration. Unusable clips are logged and skipped; the
// row only fails when nothing is left.
func (c *Composer) UsableClips(ctx context.Context, clips []string) []string {
	usable := make([]string, 0, len(clips))
	for _, clip := range clips {
		if _, err := os.Stat(clip); err != nil {
			c.log.WithField("clip", clip).Error("Source clip missing, skipping")
			continue
		}
		dur, err := c.prober.Duration(ctx, clip)
		if err != nil || dur <= 0 {
			c.log.WithField("clip", clip).Error("Source clip has no playable duration, skipping")
			continue
		}
		usable = append(usable, clip)
	}
	return usable
}

// Compose runs the segment render. onFrames receives encoder frame-count
// deltas for progress tracking and may be nil.
func (c *Composer) Compose(ctx context.Context, req Request, onFrames func(delta int64)) error {
	if len(req.Clips) == 0 {
		return errors.New("no usable clips for segment")
	}
	if req.AudioDuration <= 0 {
		return fmt.Errorf("invalid narration duration %f", req.AudioDuration)
	}

	args := BuildComposeArgs(req)
	c.log.WithFields(logrus.Fields{
		"output": req.OutputPath,
		"clips":  len(req.Clips),
	}).Info("Encoding segment")
	return c.runner.Run(ctx, args, onFrames)
}

// BuildComposeArgs assembles the full ffmpeg argument list for a segment.
// Each clip is trimmed to an equal share of the narration, center-cropped to
// the target aspect and scaled, then the clips are concatenated, captions
// and the optional watermark are drawn, and the narration is mapped in as
// the sole audio track.
func BuildComposeArgs(req Request) []string {
	n := len(req.Clips)
	clipDur := req.AudioDuration / float64(n)

	args := []string{"-y"}
	for _, clip := range req.Clips {
		args = append(args, "-i", clip)
	}
	args = append(args, "-i", req.AudioPath)
	audioIdx := n

	wmIdx := -1
	if req.WatermarkPath != "" {
		args = append(args, "-loop", "1", "-i", req.WatermarkPath)
		wmIdx = n + 1
	}

	var fc strings.Builder
	for i := range req.Clips {
		fmt.Fprintf(&fc,
			"[%d:v]trim=duration=%.3f,setpts=PTS-STARTPTS,"+
				"crop=w=min(iw\\,ih*%d/%d):h=min(ih\\,iw*%d/%d),"+
				"scale=%d:%d,setsar=1[v%d];",
			i, clipDur, req.Width, req.Height, req.Height, req.Width,
			req.Width, req.Height, i)
	}
	for i := range req.Clips {
		fmt.Fprintf(&fc, "[v%d]", i)
	}
	fmt.Fprintf(&fc, "concat=n=%d:v=1:a=0[base]", n)

	last := "base"
	if req.Overlay != nil {
		filters := req.Overlay.Filters(captions.FilterOptions{FontFile: req.FontFile})
		if len(filters) > 0 {
			fmt.Fprintf(&fc, ";[base]%s[cap]", strings.Join(filters, ","))
			last = "cap"
		}
	}
	if wmIdx >= 0 {
		wmWidth := req.Width + watermarkPadding
		if req.Overlay != nil {
			wmWidth = req.Overlay.Width + watermarkPadding
		}
		fmt.Fprintf(&fc, ";[%d:v]scale=%d:-1[wm];[%s][wm]overlay=x=(W-w)/2:y=(H-h)/2[marked]",
			wmIdx, wmWidth, last)
		last = "marked"
	}

	args = append(args,
		"-filter_complex", fc.String(),
		"-map", "["+last+"]",
		"-map", fmt.Sprintf("%d:a", audioIdx),
		"-t", fmt.Sprintf("%.3f", req.AudioDuration),
		"-c:v", "libx264",
		"-c:a", "aac",
		"-pix_fmt", "yuv420p",
		"-r", "30",
		req.OutputPath,
	)
	return args
}
