package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solvaholic/wadigest/internal/normalize"
)

func clean(text string) *normalize.CanonicalMessage {
	return &normalize.CanonicalMessage{Text: text, Confidence: normalize.ConfidenceClean}
}

func types(cs []Classification) []Type {
	var out []Type
	for _, c := range cs {
		out = append(out, c.Type)
	}
	return out
}

func TestClassifyMessage(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []Type
	}{
		{"question with starter", "How do I reset the router?", []Type{TypeQuestion}},
		{"question mark only", "tomorrow at 8?", []Type{TypeQuestion}},
		{"hebrew question", "מתי הפגישה?", []Type{TypeQuestion, TypeAnnouncement}},
		{"decision", "We decided to order pizza", []Type{TypeDecision}},
		{"hebrew decision", "סוכם שנפגשים ביום שני", []Type{TypeDecision}},
		{"action with due date", "please send the slides by friday", []Type{TypeAction}},
		{"assignment", "I'll bring the drinks, don't forget the cups", []Type{TypeAction}},
		{"announcement", "Reminder everyone: the pool is closed", []Type{TypeAnnouncement}},
		{"plain chatter", "haha nice", nil},
		{"empty", "   ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, types(ClassifyMessage(clean(tt.text))))
		})
	}
}

func TestClassifyMessageConfidence(t *testing.T) {
	cs := ClassifyMessage(clean("How do I configure this?"))
	require.Len(t, cs, 1)
	assert.InDelta(t, 0.9, cs[0].Confidence, 1e-9)
	assert.Equal(t, []string{"question_mark", "question_starter:how do"}, cs[0].Signals)

	// capped
	cs = ClassifyMessage(clean("📢 heads up everyone, announcement"))
	require.Len(t, cs, 1)
	assert.Equal(t, TypeAnnouncement, cs[0].Type)
	assert.Equal(t, 1.0, cs[0].Confidence)
}

func TestClassifySkipsNonCleanText(t *testing.T) {
	for _, c := range []normalize.Confidence{normalize.ConfidencePlaceholder, normalize.ConfidenceSalvaged, normalize.ConfidenceDegraded, ""} {
		msg := &normalize.CanonicalMessage{Text: "Can someone help?", Confidence: c}
		assert.Nil(t, ClassifyMessage(msg), c)
	}
}

func TestHighlight(t *testing.T) {
	msgs := []normalize.CanonicalMessage{
		*clean("What time is the meeting?"),
		*clean("haha"),
		*clean("we agreed on 7pm"),
		*clean("tomorrow at 8?"),
	}

	h := Highlight(msgs, 0.5)
	require.Len(t, h[TypeQuestion], 1)
	assert.Equal(t, "What time is the meeting?", h[TypeQuestion][0].Text)
	require.Len(t, h[TypeDecision], 1)
	assert.Equal(t, "we agreed on 7pm", h[TypeDecision][0].Text)
	require.Len(t, h[TypeAnnouncement], 1)
	assert.Equal(t, 3, h.Len())

	assert.Equal(t, 4, Highlight(msgs, 0).Len())
	assert.Zero(t, Highlight(nil, 0).Len())
}
