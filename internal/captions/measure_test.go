package captions

import (
	"math"
	"reflect"
	"testing"
)

func TestTextWidth(t *testing.T) {
	m := NewMeasurer()
	got := m.TextWidth("abcd", 10)
	want := 4 * 10 * m.AdvanceRatio
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("TextWidth = %v, want %v", got, want)
	}
}

func TestWrapWords(t *testing.T) {
	m := NewMeasurer()
	words := []string{"aa", "bb", "cc"}

	tests := []struct {
		name     string
		maxWidth float64
		want     [][]string
	}{
		{"one word per line", 25, [][]string{{"aa"}, {"bb"}, {"cc"}}},
		{"two words fit", 30, [][]string{{"aa", "bb"}, {"cc"}}},
		{"all fit", 100, [][]string{{"aa", "bb", "cc"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.WrapWords(words, 10, tt.maxWidth); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("WrapWords = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWrapWordsOversizedWord(t *testing.T) {
	m := NewMeasurer()
	got := m.WrapWords([]string{"短", "averyverylongword"}, 10, 20)
	if len(got) != 2 {
		t.Fatalf("expected oversized word on its own line, got %v", got)
	}
}

func TestBlockHeight(t *testing.T) {
	m := NewMeasurer()

	got := m.BlockHeight("aa bb cc", 10, 30)
	want := 2 * m.LineHeight(10)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("BlockHeight = %v, want %v", got, want)
	}

	if got := m.BlockHeight("   ", 10, 30); got != 0 {
		t.Errorf("BlockHeight of blank text = %v, want 0", got)
	}
}
