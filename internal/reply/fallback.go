// ABOUTME: Fixed fallback replies used when the completion service fails.
// ABOUTME: Selected by detected style so the failure mode stays in character.

package reply

import "math/rand/v2"

// fallbacks holds the per-style fixed replies substituted when the completion
// call times out, errors or returns an unusable payload.
var fallbacks = map[Language][]string{
	LangHinglish: {
		"Arre yaar, network thoda slow hai. Baad mein baat karte hain?",
		"Ek min, abhi thoda busy hoon. Thodi der mein reply karta hoon.",
		"Haan bolo, sorry thoda late reply ho raha hai aaj.",
	},
	LangHindi: {
		"अरे, अभी थोड़ा व्यस्त हूँ। बाद में बात करते हैं?",
		"एक मिनट, थोड़ी देर में जवाब देता हूँ।",
	},
	LangEnglish: {
		"Hey, I'm a bit tied up right now. Can I get back to you in a bit?",
		"Sorry, slow replies today. What's up?",
	},
}

// apologyFallback is sent by the pipeline when reply delivery itself fails.
const apologyFallback = "Sorry yaar, kuch gadbad ho gayi. Try again in a bit?"

// fallbackFor picks a fallback reply for the detected style.
func fallbackFor(lang Language) string {
	options, ok := fallbacks[lang]
	if !ok {
		options = fallbacks[LangHinglish]
	}
	return options[rand.IntN(len(options))]
}

// ApologyFallback returns the fixed apology sent after a delivery failure.
func ApologyFallback() string {
	return apologyFallback
}
