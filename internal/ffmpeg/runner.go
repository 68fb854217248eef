package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

var frameLine = regexp.MustCompile(`frame=\s*(\d+)`)

// progressFlushThreshold is how many new frames accumulate before a delta is
// reported to the caller. Matches the cadence progress consumers expect.
const progressFlushThreshold = 150

// Runner executes ffmpeg and streams frame-count progress back to the caller.
// The exit code is the sole failure signal; stderr text is diagnostic only.
type Runner struct {
	Binary string
}

// NewRunner returns a Runner using the ffmpeg on PATH.
func NewRunner() *Runner {
	return &Runner{Binary: "ffmpeg"}
}

// Run executes ffmpeg with the given arguments. onFrames, when non-nil, is
// called with frame-count deltas parsed from the encoder's stderr progress
// lines; a final delta is flushed when the process exits.
func (r *Runner) Run(ctx context.Context, args []string, onFrames func(delta int64)) error {
	cmd := exec.CommandContext(ctx, r.Binary, args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("attaching ffmpeg stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting ffmpeg: %w", err)
	}

	var tail []string
	var frames, reported int64
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	scanner.Split(scanProgressLines)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		tail = append(tail, line)
		if len(tail) > 20 {
			tail = tail[1:]
		}
		if n, ok := ParseFrameCount(line); ok {
			frames = n
			if onFrames != nil && frames-reported >= progressFlushThreshold {
				onFrames(frames - reported)
				reported = frames
			}
		}
	}
	scanErr := scanner.Err()
	if scanErr != nil {
		// Keep the pipe drained so the encoder cannot block on stderr.
		io.Copy(io.Discard, stderr)
	}

	if onFrames != nil && frames > reported {
		onFrames(frames - reported)
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg failed: %v, stderr: %s", err, strings.Join(tail, "\n"))
	}
	if scanErr != nil {
		return fmt.Errorf("reading ffmpeg progress: %w", scanErr)
	}
	return nil
}

// scanProgressLines splits stderr on both \r and \n. ffmpeg rewrites its
// periodic "frame= N ..." stats line in place with carriage returns and only
// terminates it with a newline when the encode ends, so newline-only
// splitting would surface the whole progress stream as one line.
func scanProgressLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// ParseFrameCount extracts the running frame counter from an ffmpeg progress
// line ("frame=  123 fps=...").
func ParseFrameCount(line string) (int64, bool) {
	m := frameLine.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// EscapeFilterText escapes a string for use inside a drawtext filter value.
func EscapeFilterText(s string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
		`:`, `\:`,
		`%`, `\%`,
		`,`, `\,`,
		`[`, `\[`,
		`]`, `\]`,
		`;`, `\;`,
	)
	return replacer.Replace(s)
}
