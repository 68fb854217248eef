package models

import "testing"

func TestOutputDimensions(t *testing.T) {
	tests := []struct {
		aspect string
		w, h   int
		ok     bool
	}{
		{AspectSquare, 1080, 1080, true},
		{AspectVertical, 1080, 1350, true},
		{AspectTikTok, 1080, 1920, true},
		{AspectLandscape, 1920, 1080, true},
		{"cinema", 0, 0, false},
		{"", 0, 0, false},
	}
	for _, tt := range tests {
		job := &HookJob{AspectRatio: tt.aspect}
		w, h, ok := job.OutputDimensions()
		if w != tt.w || h != tt.h || ok != tt.ok {
			t.Errorf("OutputDimensions(%q) = %d, %d, %v, want %d, %d, %v",
				tt.aspect, w, h, ok, tt.w, tt.h, tt.ok)
		}
	}
}
