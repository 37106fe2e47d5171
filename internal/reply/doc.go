// Package reply generates conversational replies to incoming messages.
//
// # Engine
//
// The Engine ties the pieces together:
//
//	engine := reply.NewEngine(history, limiter, completer, maxReplyLen, logger)
//	text, err := engine.GenerateReply(ctx, body, contactID, displayName)
//
// One call runs the full path: rate-limit check, language detection, prompt
// assembly from recent history, completion call, sanitation, history append.
// A rate-limit denial returns ErrRateLimited and records nothing; a completion
// failure falls back to a canned reply in the detected language and is still
// recorded as a turn.
//
// # Language Detection
//
// Detection is a script heuristic, checked in order: Devanagari mixed with
// Latin text, Latin text containing Hindi code-switch markers, pure
// Devanagari, pure Latin. Mixed-script and marker matches win before the
// monolingual buckets, and unscored input defaults to the mixed category.
//
// # Sanitation
//
// Model output is parsed as markdown (goldmark) and reduced to plain text:
// emphasis and code fences are stripped to their contents, runs of blank
// lines collapse to one, and anything past the length cap is truncated on a
// rune boundary with an ellipsis.
//
// # Gemini
//
// GeminiClient is the production Completer. Every request carries fixed
// generation parameters and safety thresholds from config and runs under the
// configured timeout.
package reply
