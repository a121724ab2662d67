package refine

import (
	"fmt"
	"strings"
)

// Output formats accepted by Refine.
const (
	FormatParagraphs = "paragraphs"
	FormatBullets    = "bullets"
	FormatNotes      = "notes"
)

// formatInstructions maps an output format to its rewrite rule.
var formatInstructions = map[string]string{
	FormatParagraphs: "Rewrite the text as clean prose paragraphs. Split paragraphs at topic changes.",
	FormatBullets:    "Rewrite the text as a flat bulleted list, one statement per bullet, each starting with \"- \".",
	FormatNotes:      "Rewrite the text as meeting notes with short headings, key points and action items.",
}

// NormalizeFormat returns a supported format, defaulting to paragraphs.
func NormalizeFormat(format string) string {
	f := strings.ToLower(strings.TrimSpace(format))
	if _, ok := formatInstructions[f]; ok {
		return f
	}
	return FormatParagraphs
}

func buildRefineSystemPrompt(format string) string {
	return strings.TrimSpace(fmt.Sprintf(`You clean up raw speech-to-text output from a long recording.
Rules:
- fix punctuation, casing and obvious recognition errors
- remove filler words and false starts
- keep the speaker's meaning; never add facts
- keep bracketed markers such as [chunk 3 untranscribed: 14:00-21:00] verbatim
- return only the rewritten text
%s`, formatInstructions[NormalizeFormat(format)]))
}

func buildSummarySystemPrompt() string {
	return strings.TrimSpace(`You summarize transcripts of long recordings.
Return a short title line, then 3-8 bullet points covering decisions, open questions and action items.
Use only information present in the transcript.`)
}
