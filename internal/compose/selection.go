package compose

import "math"

// SelectClips picks the source clips for one hook row. The pool is walked in
// a rotating window: row N starts at position N modulo the pool size, and the
// window covers one clip per two seconds of narration, clamped to the clips
// remaining after the start position. Every row yields at least one clip.
func SelectClips(pool []string, rowIndex int, audioDuration float64) []string {
	if len(pool) == 0 {
		return nil
	}

	start := rowIndex % len(pool)
	num := int(math.Round(audioDuration / 2))
	if num < 1 {
		num = 1
	}
	if start+num > len(pool) {
		num = len(pool) - start
	}
	return pool[start : start+num]
}
