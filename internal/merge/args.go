package merge

import "fmt"

// BuildPreprocessArgs normalizes one input to the reference resolution:
// scale down preserving aspect, pad to center, force yuv420p at 30fps. An
// input without an audio stream gets a silent stereo track so the concat
// filter always sees matching stream layouts.
func BuildPreprocessArgs(input, output string, width, height int, hasAudio bool) []string {
	args := []string{"-y", "-i", input}
	if !hasAudio {
		args = append(args, "-f", "lavfi", "-i", "anullsrc=channel_layout=stereo:sample_rate=44100")
	}

	vf := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,format=yuv420p",
		width, height, width, height)
	args = append(args, "-vf", vf,
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-c:a", "aac",
	)
	if !hasAudio {
		args = append(args, "-shortest")
	}
	args = append(args,
		"-pix_fmt", "yuv420p",
		"-r", "30",
		output,
	)
	return args
}

// BuildConcatArgs joins the preprocessed inputs back to back with a full
// re-encode through the concat filter.
func BuildConcatArgs(inputs []string, output string) []string {
	args := []string{"-y"}
	for _, in := range inputs {
		args = append(args, "-i", in)
	}

	var fc string
	for i := range inputs {
		fc += fmt.Sprintf("[%d:v][%d:a]", i, i)
	}
	fc += fmt.Sprintf("concat=n=%d:v=1:a=1[outv][outa]", len(inputs))

	args = append(args,
		"-filter_complex", fc,
		"-map", "[outv]",
		"-map", "[outa]",
		"-c:v", "libx264",
		"-preset", "superfast",
		"-c:a", "aac",
		"-pix_fmt", "yuv420p",
		"-r", "30",
		output,
	)
	return args
}
