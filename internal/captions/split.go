package captions

import "strings"

// Capitalize uppercases the first rune of a word and lowercases the rest,
// matching the normalization applied when hook words are compared against the
// spreadsheet's color-annotated words.
func Capitalize(word string) string {
	if word == "" {
		return word
	}
	runes := []rune(strings.ToLower(word))
	runes[0] = []rune(strings.ToUpper(string(runes[0])))[0]
	return string(runes)
}

// SplitHookText capitalizes every word of the hook and splits it into one or
// two line groups on the last " - " separator. The part before the separator
// becomes the top caption band, the part after becomes the bottom one.
func SplitHookText(hookText string) []string {
	words := strings.Fields(hookText)
	for i, w := range words {
		words[i] = Capitalize(w)
	}
	text := strings.Join(words, " ")

	if strings.Contains(text, " - ") {
		lastDash := strings.LastIndex(text, "-")
		line1 := strings.TrimSpace(text[:lastDash])
		line2 := strings.TrimSpace(text[lastDash+1:])
		return []string{line1, line2}
	}
	return []string{text}
}
