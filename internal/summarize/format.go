// Package summarize turns an ordered message stream into a prompt and a
// summary.
package summarize

import (
	"fmt"
	"strings"
	"time"

	"github.com/solvaholic/wadigest/internal/classify"
	"github.com/solvaholic/wadigest/internal/normalize"
)

// Formatted is a prompt-ready message block
type Formatted struct {
	Text  string
	Lines int

	// Confidence is ConfidenceDegraded when the block came from the
	// emergency field scan, else ConfidenceClean
	Confidence normalize.Confidence
}

// FormatForPrompt renders one "[time] sender: text" line per message in the
// given order. Callers sort with normalize.SortByTime first.
func FormatForPrompt(msgs []normalize.CanonicalMessage, loc *time.Location) string {
	return Format(msgs, loc).Text
}

// Format is FormatForPrompt with provenance. If no line can be produced for
// a non-empty input it falls back to EmergencyScan.
func Format(msgs []normalize.CanonicalMessage, loc *time.Location) Formatted {
	var b strings.Builder
	lines := 0
	for _, m := range msgs {
		text := strings.TrimSpace(m.Text)
		if text == "" {
			continue
		}
		if lines > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "[%s] %s: %s", normalize.FormatTime(m.Timestamp, m.RawTime, loc), sender(m), text)
		lines++
	}

	if lines > 0 || len(msgs) == 0 {
		return Formatted{Text: b.String(), Lines: lines, Confidence: normalize.ConfidenceClean}
	}
	return EmergencyScan(msgs)
}

// EmergencyScan is the degraded extraction path: one "sender: value" line per
// message that has any string field longer than two characters
func EmergencyScan(msgs []normalize.CanonicalMessage) Formatted {
	var out []string
	for _, m := range msgs {
		if v, ok := normalize.EmergencyText(m); ok {
			out = append(out, fmt.Sprintf("%s: %s", sender(m), v))
		}
	}
	return Formatted{Text: strings.Join(out, "\n"), Lines: len(out), Confidence: normalize.ConfidenceDegraded}
}

// PlainLines renders "sender: text" lines, used for local fallback summaries
func PlainLines(msgs []normalize.CanonicalMessage) string {
	var out []string
	for _, m := range msgs {
		if text := strings.TrimSpace(m.Text); text != "" {
			out = append(out, fmt.Sprintf("%s: %s", sender(m), text))
		}
	}
	return strings.Join(out, "\n")
}

var highlightTitles = map[classify.Type]string{
	classify.TypeDecision:     "Decisions",
	classify.TypeAction:       "Action items",
	classify.TypeQuestion:     "Questions",
	classify.TypeAnnouncement: "Announcements",
}

// highlightConfidence is the minimum classifier confidence for a highlight
const highlightConfidence = 0.5

// HighlightSections lists the messages the classifier picked out, one titled
// section per category. It is empty when nothing stood out.
func HighlightSections(msgs []normalize.CanonicalMessage) string {
	h := classify.Highlight(msgs, highlightConfidence)
	if h.Len() == 0 {
		return ""
	}
	var sections []string
	for _, t := range classify.Types {
		if len(h[t]) == 0 {
			continue
		}
		lines := []string{highlightTitles[t] + ":"}
		for _, m := range h[t] {
			lines = append(lines, fmt.Sprintf("- %s: %s", sender(m), strings.TrimSpace(m.Text)))
		}
		sections = append(sections, strings.Join(lines, "\n"))
	}
	return strings.Join(sections, "\n\n")
}

func sender(m normalize.CanonicalMessage) string {
	if s := strings.TrimSpace(m.Sender); s != "" {
		return s
	}
	return "Unknown"
}
