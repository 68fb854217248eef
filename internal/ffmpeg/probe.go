package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// FFProbeOutput defines the structure for ffprobe JSON output relevant to duration.
type FFProbeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Prober answers media questions via ffprobe.
type Prober struct {
	Binary string
}

// NewProber returns a Prober using the ffprobe on PATH.
func NewProber() *Prober {
	return &Prober{Binary: "ffprobe"}
}

// Duration returns the container duration of a media file.
func (p *Prober) Duration(ctx context.Context, filePath string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, p.Binary,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		filePath,
	)

	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe failed: %v, stderr: %s", err, stderr.String())
	}

	var probed FFProbeOutput
	if err := json.Unmarshal(out.Bytes(), &probed); err != nil {
		return 0, fmt.Errorf("error unmarshalling ffprobe output: %w", err)
	}

	return ParseDuration(probed.Format.Duration)
}

// ParseDuration converts ffprobe's format.duration string to a time.Duration.
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("could not retrieve duration from ffprobe output")
	}
	seconds, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("error parsing duration string %q: %w", s, err)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// Resolution returns the width and height of the first video stream, each
// rounded up to the nearest even number as required by the encoders we use.
func (p *Prober) Resolution(ctx context.Context, filePath string) (width, height int, err error) {
	cmd := exec.CommandContext(ctx, p.Binary,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "csv=p=0:s=x",
		filePath,
	)

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, 0, fmt.Errorf("ffprobe failed for %s: %v, stderr: %s", filePath, err, stderr.String())
	}

	return ParseResolution(out.String())
}

// ParseResolution parses ffprobe "WxH" output and rounds both dimensions up
// to even values.
func ParseResolution(out string) (width, height int, err error) {
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		line = strings.TrimSpace(line)
		if !strings.Contains(line, "x") {
			continue
		}
		parts := strings.SplitN(line, "x", 3)
		w, errW := strconv.Atoi(strings.TrimSpace(parts[0]))
		h, errH := strconv.Atoi(strings.TrimSpace(parts[1]))
		if errW != nil || errH != nil {
			return 0, 0, fmt.Errorf("error parsing resolution %q", line)
		}
		return EvenRound(w), EvenRound(h), nil
	}
	return 0, 0, fmt.Errorf("could not determine resolution")
}

// EvenRound rounds n up to the nearest even number.
func EvenRound(n int) int {
	if n%2 != 0 {
		return n + 1
	}
	return n
}

// FrameCount counts decoded video frames in a file. Returns 0 when the count
// cannot be determined; callers treat that as "unknown", not fatal.
func (p *Prober) FrameCount(ctx context.Context, filePath string) int64 {
	cmd := exec.CommandContext(ctx, p.Binary,
		"-v", "error",
		"-select_streams", "v:0",
		"-count_frames",
		"-show_entries", "stream=nb_read_frames",
		"-of", "csv=p=0",
		filePath,
	)

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0
	}
	n, err := strconv.ParseInt(strings.TrimSpace(out.String()), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// HasAudio reports whether the file contains at least one audio stream.
func (p *Prober) HasAudio(ctx context.Context, filePath string) bool {
	cmd := exec.CommandContext(ctx, p.Binary,
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=codec_type",
		"-of", "csv=p=0",
		filePath,
	)

	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return false
	}
	return strings.TrimSpace(out.String()) == "audio"
}
