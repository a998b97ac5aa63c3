package summarize

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/solvaholic/wadigest/internal/llm"
	"github.com/solvaholic/wadigest/internal/normalize"
)

// NoMessages is returned as the summary text for an empty input
const NoMessages = "No messages to summarize"

// DefaultSystemPrompt frames the completion
const DefaultSystemPrompt = "You are a helpful assistant that summarizes WhatsApp group conversations."

// DefaultPrompt is the user prompt template. Placeholders: {language},
// {count}, {timestamp}, {period} and {messages}.
const DefaultPrompt = `Summarize the following WhatsApp group conversation in {language}.
It contains {count} messages from {period}. Summary generated at {timestamp}.

Structure the summary as:
1. Main topics discussed
2. Decisions or conclusions
3. Important messages (with sender where relevant)
4. Tasks or action items
5. Notable events or updates

Skip empty sections. Be concise and refer only to the messages below.

CONVERSATION:
{messages}

SUMMARY:`

var fallbackHeaders = map[llm.Kind]string{
	llm.KindRateLimit:      "Summary unavailable: the language model is rate limited. Messages follow.",
	llm.KindInvalidRequest: "Summary unavailable: the language model rejected the request. Messages follow.",
	llm.KindConnection:     "Summary unavailable: the language model could not be reached. Messages follow.",
	llm.KindAPI:            "Summary unavailable: the language model returned an error. Messages follow.",
}

// Options configure a Summarizer
type Options struct {
	Language     string
	Prompt       string // template, empty uses DefaultPrompt
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
	Location     *time.Location
}

// Result is the outcome of Summarize. When Fallback is set, Text is a local
// digest of the messages and FailureKind tells why the model was not used.
type Result struct {
	Text         string
	MessageCount int
	Fallback     bool
	FailureKind  llm.Kind
	Err          error
	Confidence   normalize.Confidence
	Start        *int64
	End          *int64
}

// Summarizer formats messages and asks the model for a summary. It never
// fails; provider errors produce a fallback summary.
type Summarizer struct {
	llm  llm.Completer
	opts Options
	log  zerolog.Logger
	now  func() time.Time
}

// New creates a Summarizer
func New(c llm.Completer, opts Options, log zerolog.Logger) *Summarizer {
	if opts.Language == "" {
		opts.Language = "hebrew"
	}
	if strings.TrimSpace(opts.Prompt) == "" {
		opts.Prompt = DefaultPrompt
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 2000
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Summarizer{llm: c, opts: opts, log: log, now: time.Now}
}

// Summarize summarizes msgs, which must already be in chronological order
func (s *Summarizer) Summarize(ctx context.Context, msgs []normalize.CanonicalMessage) Result {
	if len(msgs) == 0 {
		s.log.Warn().Msg("No messages provided for summary generation")
		return Result{Text: NoMessages, Confidence: normalize.ConfidenceClean}
	}

	res := Result{MessageCount: len(msgs)}
	res.Start, res.End = span(msgs)

	formatted := Format(msgs, s.opts.Location)
	res.Confidence = formatted.Confidence
	if formatted.Confidence == normalize.ConfidenceDegraded {
		s.log.Warn().Int("messages", len(msgs)).Int("lines", formatted.Lines).Msg("Formatting produced no lines, using emergency field scan")
	}
	if formatted.Text == "" {
		s.log.Warn().Int("messages", len(msgs)).Msg("No text-like content in any message")
		return s.fallback(res, msgs, &llm.Error{Kind: llm.KindInvalidRequest, Message: "no text content to summarize"})
	}

	prompt := s.BuildPrompt(formatted.Text, len(msgs), res.Start, res.End)
	s.log.Info().Int("messages", len(msgs)).Int("prompt_chars", len(prompt)).Msg("Generating summary")

	text, err := s.llm.Complete(ctx, llm.Request{
		System:      s.opts.SystemPrompt,
		User:        prompt,
		MaxTokens:   s.opts.MaxTokens,
		Temperature: s.opts.Temperature,
	})
	if err == nil && strings.TrimSpace(text) == "" {
		err = &llm.Error{Kind: llm.KindAPI, Message: "empty completion"}
	}
	if err != nil {
		return s.fallback(res, msgs, err)
	}

	res.Text = strings.TrimSpace(text)
	return res
}

func (s *Summarizer) fallback(res Result, msgs []normalize.CanonicalMessage, err error) Result {
	kind := llm.KindOf(err)
	s.log.Error().Err(err).Str("kind", string(kind)).Msg("Summary generation failed, using fallback summary")

	body := PlainLines(msgs)
	if body == "" {
		body = EmergencyScan(msgs).Text
	}
	if hl := HighlightSections(msgs); hl != "" {
		body = hl + "\n\n" + body
	}

	res.Fallback = true
	res.FailureKind = kind
	res.Err = err
	res.Text = strings.TrimSpace(fallbackHeaders[kind] + "\n\n" + body)
	return res
}

// BuildPrompt fills the prompt template. A template without {messages} gets
// the conversation appended.
func (s *Summarizer) BuildPrompt(messages string, count int, start, end *int64) string {
	tmpl := s.opts.Prompt
	if !strings.Contains(tmpl, "{messages}") {
		tmpl += "\n\nCONVERSATION:\n{messages}\n\nSUMMARY:"
	}

	period := "an unknown period"
	if start != nil && end != nil {
		period = normalize.FormatTime(start, "", s.opts.Location) + " to " + normalize.FormatTime(end, "", s.opts.Location)
	}

	r := strings.NewReplacer(
		"{language}", s.opts.Language,
		"{count}", strconv.Itoa(count),
		"{timestamp}", s.now().In(s.opts.Location).Format("2006-01-02 15:04"),
		"{period}", period,
		"{messages}", messages,
	)
	return r.Replace(tmpl)
}

// span returns the first and last resolved timestamps
func span(msgs []normalize.CanonicalMessage) (start, end *int64) {
	for _, m := range msgs {
		if m.Timestamp == nil {
			continue
		}
		if start == nil || *m.Timestamp < *start {
			start = m.Timestamp
		}
		if end == nil || *m.Timestamp > *end {
			end = m.Timestamp
		}
	}
	return start, end
}
