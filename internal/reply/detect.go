// ABOUTME: Language/style detection for inbound messages.
// ABOUTME: Mixed-script and code-switch detection runs before single-script checks.

package reply

import (
	"strings"
	"unicode"
)

// Language is the detected style category of a message.
type Language string

const (
	// LangHinglish is romanized Hindi mixed with English, or any Devanagari
	// plus Latin mix. It is also the fallback category.
	LangHinglish Language = "hinglish"
	LangHindi    Language = "hindi"
	LangEnglish  Language = "english"
)

// codeSwitchMarkers are romanized Hindi words whose presence in Latin-script
// text marks it as code-switched rather than English.
var codeSwitchMarkers = map[string]struct{}{
	"hai": {}, "nahi": {}, "kya": {}, "bhai": {}, "acha": {}, "accha": {},
	"haan": {}, "yaar": {}, "kaise": {}, "kaisa": {}, "thik": {}, "theek": {},
	"matlab": {}, "abhi": {}, "bahut": {}, "kyu": {}, "kyun": {}, "mera": {},
	"tera": {}, "kuch": {}, "nhi": {}, "hain": {}, "karo": {}, "raha": {},
}

// Detect classifies the message's style. Mixed content is checked first so a
// code-switched message is never misclassified as monolingual; single-script
// checks follow in fixed priority (Devanagari, then Latin); anything else
// falls back to the mixed category.
func Detect(text string) Language {
	hasDevanagari := false
	hasLatin := false
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Devanagari, r):
			hasDevanagari = true
		case unicode.IsLetter(r) && r < 0x250:
			hasLatin = true
		}
	}

	if hasDevanagari && hasLatin {
		return LangHinglish
	}
	if hasLatin && containsCodeSwitchMarker(text) {
		return LangHinglish
	}
	if hasDevanagari {
		return LangHindi
	}
	if hasLatin {
		return LangEnglish
	}
	return LangHinglish
}

// containsCodeSwitchMarker reports whether any word of the text is a known
// romanized Hindi marker.
func containsCodeSwitchMarker(text string) bool {
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'()")
		if _, ok := codeSwitchMarkers[word]; ok {
			return true
		}
	}
	return false
}
