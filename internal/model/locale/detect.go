package locale

import (
	"unicode"

	"github.com/abadojack/whatlanggo"
)

// Detect guesses the locale of free text. ok is false when the text gives no usable signal.
func Detect(text string) (Locale, bool) {
	hasLetter := false
	for _, r := range text {
		if unicode.IsLetter(r) {
			hasLetter = true
			break
		}
	}
	if !hasLetter {
		return "", false
	}

	info := whatlanggo.Detect(text)
	if info.Lang == whatlanggo.Tam || info.Script == unicode.Tamil {
		return Tamil, true
	}
	if info.Script == unicode.Latin {
		return English, true
	}
	return "", false
}
