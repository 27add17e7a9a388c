package ui

import "unicode/utf8"

// maxInputLen is the maximum number of runes allowed in form inputs.
const maxInputLen = 256

// editRune processes a keystroke for inline text editing. Handles backspace
// (rune-aware) and single printable characters; non-printable keys leave the
// text unchanged.
func editRune(text string, key string) string {
	switch key {
	case "backspace":
		if len(text) > 0 {
			runes := []rune(text)
			return string(runes[:len(runes)-1])
		}
		return text
	default:
		if utf8.RuneCountInString(key) == 1 {
			if utf8.RuneCountInString(text) >= maxInputLen {
				return text
			}
			return text + key
		}
		return text
	}
}

// maskRunes renders a password field as bullets.
func maskRunes(text string) string {
	out := make([]rune, 0, utf8.RuneCountInString(text))
	for range text {
		out = append(out, '•')
	}
	return string(out)
}
