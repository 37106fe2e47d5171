// ABOUTME: Prompt assembly for the completion service.
// ABOUTME: Persona instruction per detected style, plus recent history as context.

package reply

import (
	"fmt"
	"strings"

	"github.com/verdin/verdin/internal/conversation"
)

// historyContextTurns is how many recent turns are replayed into the prompt.
const historyContextTurns = 3

// personas maps each detected style to its persona instruction.
var personas = map[Language]string{
	LangHinglish: "You are a friendly person chatting casually on WhatsApp. You speak Hinglish (romanized Hindi mixed with English) the way people actually text. Keep replies short, warm and informal. Never mention being an AI or assistant.",
	LangHindi:    "You are a friendly person chatting casually on WhatsApp in Hindi (Devanagari script). Keep replies short, warm and informal. Never mention being an AI or assistant.",
	LangEnglish:  "You are a friendly person chatting casually on WhatsApp in English. Keep replies short, warm and informal. Never mention being an AI or assistant.",
}

// styleInstructions tells the model which style to answer in.
var styleInstructions = map[Language]string{
	LangHinglish: "Reply in casual Hinglish, matching the sender's tone.",
	LangHindi:    "Reply in Hindi using Devanagari script, matching the sender's tone.",
	LangEnglish:  "Reply in casual English, matching the sender's tone.",
}

// buildPrompt assembles the completion prompt from the persona, recent
// history, the current message and the style instruction.
func buildPrompt(lang Language, displayName, message string, history []conversation.Turn) string {
	var b strings.Builder

	b.WriteString(personas[lang])
	b.WriteString("\n\n")

	if len(history) > 0 {
		b.WriteString("Earlier conversation:\n")
		for _, turn := range history {
			fmt.Fprintf(&b, "%s: %s\n", displayName, turn.Incoming)
			fmt.Fprintf(&b, "You: %s\n", turn.Reply)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "%s just sent: %s\n\n", displayName, message)
	b.WriteString(styleInstructions[lang])

	return b.String()
}
