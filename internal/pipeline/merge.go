package pipeline

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"longform-transcriber/internal/chunking"
)

// chunkSeparator joins consecutive chunk texts.
const chunkSeparator = "\n\n"

// Merge joins chunk texts in slice order, which is chunk index order.
// Overlapping speech at chunk edges is not deduplicated.
func Merge(texts []string) string {
	parts := lo.FilterMap(texts, func(text string, _ int) (string, bool) {
		text = strings.TrimSpace(text)
		return text, text != ""
	})
	return strings.Join(parts, chunkSeparator)
}

// FallbackTranscript is the text kept for a chunk whose transcription failed.
func FallbackTranscript(chunk chunking.Chunk) string {
	return fmt.Sprintf(
		"[chunk %d untranscribed: %s-%s]",
		chunk.Index+1,
		clock(chunk.StartTime),
		clock(chunk.EndTime),
	)
}

// clock formats seconds as m:ss or h:mm:ss.
func clock(sec float64) string {
	total := int(sec)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
