package summarize

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solvaholic/wadigest/internal/llm"
	"github.com/solvaholic/wadigest/internal/normalize"
)

func ts(v int64) *int64 { return &v }

type fakeLLM struct {
	reply string
	err   error
	req   llm.Request
	calls int
}

func (f *fakeLLM) Complete(ctx context.Context, req llm.Request) (string, error) {
	f.calls++
	f.req = req
	return f.reply, f.err
}

func sample() []normalize.CanonicalMessage {
	return []normalize.CanonicalMessage{
		{ID: "1", Sender: "Alice", Text: "hello", Timestamp: ts(1700000000)},
		{ID: "2", Sender: "Bob", Text: "[IMAGE]", Timestamp: ts(1700000060)},
		{ID: "3", Sender: "", Text: "late", RawTime: "yesterday"},
		{ID: "4", Sender: "Dan", Text: "who?"},
	}
}

func TestFormatForPrompt(t *testing.T) {
	got := FormatForPrompt(sample(), time.UTC)
	want := strings.Join([]string{
		"[2023-11-14 22:13:20] Alice: hello",
		"[2023-11-14 22:14:20] Bob: [IMAGE]",
		"[yesterday] Unknown: late",
		"[Unknown time] Dan: who?",
	}, "\n")
	assert.Equal(t, want, got)
}

func TestFormatUsesLocation(t *testing.T) {
	loc := time.FixedZone("IST", 2*3600)
	got := FormatForPrompt([]normalize.CanonicalMessage{{Sender: "A", Text: "x", Timestamp: ts(1700000000)}}, loc)
	assert.Equal(t, "[2023-11-15 00:13:20] A: x", got)
}

func TestFormatEmergencyScan(t *testing.T) {
	msgs := []normalize.CanonicalMessage{
		{ID: "1", Sender: "Alice", Text: "  ", Raw: normalize.RawMessage{"idMessage": "1", "body": "rescued words"}},
		{ID: "2", Sender: "Bob", Text: "", Raw: normalize.RawMessage{"idMessage": "2", "x": "no"}},
	}
	f := Format(msgs, time.UTC)
	assert.Equal(t, normalize.ConfidenceDegraded, f.Confidence)
	assert.Equal(t, "Alice: rescued words", f.Text)
	assert.Equal(t, 1, f.Lines)
}

func TestFormatEmpty(t *testing.T) {
	f := Format(nil, time.UTC)
	assert.Empty(t, f.Text)
	assert.Equal(t, normalize.ConfidenceClean, f.Confidence)
}

func TestSummarize(t *testing.T) {
	fake := &fakeLLM{reply: "  the digest  "}
	s := New(fake, Options{Language: "english", MaxTokens: 500, Temperature: 0.3}, zerolog.Nop())
	s.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 0, 0, time.UTC) }

	res := s.Summarize(context.Background(), sample())

	assert.Equal(t, "the digest", res.Text)
	assert.False(t, res.Fallback)
	assert.Equal(t, 4, res.MessageCount)
	assert.Equal(t, int64(1700000000), *res.Start)
	assert.Equal(t, int64(1700000060), *res.End)

	assert.Equal(t, DefaultSystemPrompt, fake.req.System)
	assert.Equal(t, 500, fake.req.MaxTokens)
	assert.InDelta(t, 0.3, fake.req.Temperature, 1e-9)
	assert.Contains(t, fake.req.User, "in english")
	assert.Contains(t, fake.req.User, "It contains 4 messages from 2023-11-14 22:13:20 to 2023-11-14 22:14:20")
	assert.Contains(t, fake.req.User, "generated at 2024-01-02 03:04")
	assert.Contains(t, fake.req.User, "[2023-11-14 22:13:20] Alice: hello")
}

func TestSummarizeNoMessages(t *testing.T) {
	fake := &fakeLLM{reply: "x"}
	res := New(fake, Options{}, zerolog.Nop()).Summarize(context.Background(), nil)
	assert.Equal(t, NoMessages, res.Text)
	assert.Equal(t, 0, fake.calls)
}

func TestSummarizeFallbackByKind(t *testing.T) {
	kinds := []llm.Kind{llm.KindRateLimit, llm.KindInvalidRequest, llm.KindConnection, llm.KindAPI}
	for _, kind := range kinds {
		t.Run(string(kind), func(t *testing.T) {
			fake := &fakeLLM{err: &llm.Error{Kind: kind, Message: "x"}}
			res := New(fake, Options{}, zerolog.Nop()).Summarize(context.Background(), sample())

			require.True(t, res.Fallback)
			assert.Equal(t, kind, res.FailureKind)
			assert.True(t, strings.HasPrefix(res.Text, fallbackHeaders[kind]))
			assert.Contains(t, res.Text, "Alice: hello\nBob: [IMAGE]\nUnknown: late\nDan: who?")
		})
	}
}

func TestSummarizeFallbackOnUnclassifiedAndEmpty(t *testing.T) {
	res := New(&fakeLLM{err: errors.New("boom")}, Options{}, zerolog.Nop()).Summarize(context.Background(), sample())
	assert.True(t, res.Fallback)
	assert.Equal(t, llm.KindAPI, res.FailureKind)

	res = New(&fakeLLM{reply: "   "}, Options{}, zerolog.Nop()).Summarize(context.Background(), sample())
	assert.True(t, res.Fallback)
	assert.Equal(t, llm.KindAPI, res.FailureKind)
}

func TestBuildPromptAppendsMessages(t *testing.T) {
	s := New(&fakeLLM{}, Options{Prompt: "Summarize in {language}."}, zerolog.Nop())
	p := s.BuildPrompt("A: hi", 1, nil, nil)
	assert.Equal(t, "Summarize in hebrew.\n\nCONVERSATION:\nA: hi\n\nSUMMARY:", p)
}

func TestFallbackHighlights(t *testing.T) {
	msgs := []normalize.CanonicalMessage{
		{ID: "1", Sender: "Alice", Text: "We decided to meet on Friday", Confidence: normalize.ConfidenceClean, Timestamp: ts(1700000000)},
		{ID: "2", Sender: "Bob", Text: "Can someone bring the projector?", Confidence: normalize.ConfidenceClean, Timestamp: ts(1700000060)},
		{ID: "3", Sender: "Carol", Text: "please send the slides by friday", Confidence: normalize.ConfidenceClean, Timestamp: ts(1700000120)},
		{ID: "4", Sender: "Dan", Text: "[IMAGE]", Confidence: normalize.ConfidencePlaceholder, Timestamp: ts(1700000180)},
	}
	res := New(&fakeLLM{err: &llm.Error{Kind: llm.KindConnection}}, Options{}, zerolog.Nop()).Summarize(context.Background(), msgs)
	require.True(t, res.Fallback)

	want := "Decisions:\n- Alice: We decided to meet on Friday\n\n" +
		"Action items:\n- Carol: please send the slides by friday\n\n" +
		"Questions:\n- Bob: Can someone bring the projector?"
	assert.Contains(t, res.Text, want)
	assert.True(t, strings.HasSuffix(res.Text, "Dan: [IMAGE]"))
	assert.Less(t, strings.Index(res.Text, "Decisions:"), strings.Index(res.Text, "Alice: We decided to meet on Friday\nBob:"))
}

func TestHighlightSectionsEmpty(t *testing.T) {
	assert.Empty(t, HighlightSections(sample()))
}
