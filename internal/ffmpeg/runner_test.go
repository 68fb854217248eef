package ffmpeg

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// fakeEncoder writes a shell script standing in for ffmpeg and returns a
// Runner pointed at it.
func fakeEncoder(t *testing.T, body string) *Runner {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake encoder scripts need a POSIX shell")
	}
	script := filepath.Join(t.TempDir(), "fake-ffmpeg")
	if err := os.WriteFile(script, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return &Runner{Binary: script}
}

func TestRunCarriageReturnProgress(t *testing.T) {
	// ffmpeg rewrites the stats line with \r and only ends it with \n when
	// the encode finishes.
	r := fakeEncoder(t, `i=150
while [ $i -le 1350 ]; do
  printf 'frame=  %d fps= 30 q=28.0 size=     512kB time=00:00:05.00\r' "$i" 1>&2
  i=$((i+150))
done
printf 'frame= 1500 fps= 30 q=-1.0 Lsize=    1024kB time=00:00:50.00\n' 1>&2
`)

	var total int64
	var flushes int
	err := r.Run(context.Background(), nil, func(delta int64) {
		total += delta
		flushes++
	})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1500 {
		t.Errorf("reported frame deltas sum to %d, want 1500", total)
	}
	if flushes < 2 {
		t.Errorf("flushes = %d, want the stream reported incrementally", flushes)
	}
}

func TestRunFlushesRemainderBelowThreshold(t *testing.T) {
	r := fakeEncoder(t, `printf 'frame=   42 fps= 30 q=28.0\r' 1>&2
printf 'frame=   90 fps= 30 q=-1.0 Lsize= 12kB\n' 1>&2
`)

	var total int64
	if err := r.Run(context.Background(), nil, func(delta int64) { total += delta }); err != nil {
		t.Fatal(err)
	}
	if total != 90 {
		t.Errorf("reported frame deltas sum to %d, want 90", total)
	}
}

func TestRunFailureCarriesStderrTail(t *testing.T) {
	r := fakeEncoder(t, `printf 'frame=  150 fps= 30\r' 1>&2
echo 'Conversion failed!' 1>&2
exit 1
`)

	err := r.Run(context.Background(), nil, nil)
	if err == nil {
		t.Fatal("expected error for nonzero exit")
	}
	if !strings.Contains(err.Error(), "Conversion failed!") {
		t.Errorf("error = %v, want stderr tail included", err)
	}
}
