// Package classify tags chat messages a digest should call out: questions,
// decisions, action items and announcements.
package classify

import (
	"regexp"
	"strings"

	"github.com/solvaholic/wadigest/internal/normalize"
)

// Type is a highlight category
type Type string

const (
	TypeQuestion     Type = "question"
	TypeDecision     Type = "decision"
	TypeAction       Type = "action_item"
	TypeAnnouncement Type = "announcement"
)

// Types lists the categories in presentation order
var Types = []Type{TypeDecision, TypeAction, TypeQuestion, TypeAnnouncement}

// Classification represents a message classification with confidence score
type Classification struct {
	Type       Type     `json:"type"`
	Confidence float64  `json:"confidence"` // 0.0 to 1.0
	Signals    []string `json:"signals"`    // what triggered this classification
}

// ClassifyMessage returns every category msg matches. Placeholders such as
// [IMAGE] and salvaged records are not classified.
func ClassifyMessage(msg *normalize.CanonicalMessage) []Classification {
	if msg.Confidence != normalize.ConfidenceClean {
		return nil
	}
	content := strings.ToLower(strings.TrimSpace(msg.Text))
	if content == "" {
		return nil
	}

	var out []Classification
	for _, fn := range []func(string) *Classification{classifyQuestion, classifyDecision, classifyAction, classifyAnnouncement} {
		if c := fn(content); c != nil {
			out = append(out, *c)
		}
	}
	return out
}

// rule is one group of phrases; the first match adds weight once
type rule struct {
	signal  string
	weight  float64
	phrases []string
}

func score(content string, rules []rule) (float64, []string) {
	var signals []string
	confidence := 0.0
	for _, r := range rules {
		for _, p := range r.phrases {
			if strings.Contains(content, p) {
				signals = append(signals, r.signal+":"+p)
				confidence += r.weight
				break
			}
		}
	}
	return confidence, signals
}

func result(t Type, confidence, threshold float64, signals []string) *Classification {
	if len(signals) == 0 || confidence < threshold {
		return nil
	}
	if confidence > 1.0 {
		confidence = 1.0
	}
	return &Classification{Type: t, Confidence: confidence, Signals: signals}
}

var questionStarters = []string{
	"how do", "how can", "how to", "what is", "what's", "what are", "what time",
	"where is", "where do", "when is", "when do", "why is", "why does",
	"who can", "who is", "who knows", "can someone", "can anyone",
	"is there", "are there", "does anyone", "has anyone", "should we", "should i",
	"anyone know", "מה ", "מתי", "איפה", "למה", "מי ", "האם", "איך",
}

// classifyQuestion detects if a message is asking a question
func classifyQuestion(content string) *Classification {
	var signals []string
	confidence := 0.0

	if strings.Contains(content, "?") {
		signals = append(signals, "question_mark")
		confidence += 0.4
	}
	for _, starter := range questionStarters {
		if strings.HasPrefix(content, starter) {
			signals = append(signals, "question_starter:"+strings.TrimSpace(starter))
			confidence += 0.5
			break
		}
	}
	c, s := score(content, []rule{{
		signal: "help_phrase", weight: 0.2,
		phrases: []string{"anyone else", "any ideas", "need help", "not working", "צריך עזרה"},
	}})
	return result(TypeQuestion, confidence+c, 0.4, append(signals, s...))
}

// classifyDecision detects agreements and conclusions
func classifyDecision(content string) *Classification {
	confidence, signals := score(content, []rule{
		{signal: "decision_phrase", weight: 0.6, phrases: []string{
			"we decided", "it's decided", "decided to", "we agreed", "agreed on", "final decision",
			"we're going with", "we will go with", "let's go with", "approved",
			"החלטנו", "הוחלט", "סוכם", "סגרנו",
		}},
		{signal: "consensus", weight: 0.2, phrases: []string{"everyone agrees", "all agreed", "so it's settled", "settled", "מוסכם"}},
	})
	return result(TypeDecision, confidence, 0.5, signals)
}

var dueDate = regexp.MustCompile(`\b(by|until|before|due) (tomorrow|tonight|today|monday|tuesday|wednesday|thursday|friday|saturday|sunday|next week|\d{1,2}[./]\d{1,2})`)

// classifyAction detects tasks and requests
func classifyAction(content string) *Classification {
	confidence, signals := score(content, []rule{
		{signal: "request", weight: 0.4, phrases: []string{
			"please ", "pls ", "can you", "could you", "don't forget", "make sure", "remember to",
			"need to", "needs to", "has to", "must ", "todo", "to do:", "action item",
			"בבקשה", "צריך ל", "לא לשכוח", "תזכרו",
		}},
		{signal: "assignment", weight: 0.3, phrases: []string{"i'll ", "i will ", "will take care", "on it", "אני אדאג", "אני על זה"}},
	})
	if dueDate.MatchString(content) {
		signals = append(signals, "due_date")
		confidence += 0.3
	}
	return result(TypeAction, confidence, 0.4, signals)
}

// classifyAnnouncement detects notices addressed to the whole group
func classifyAnnouncement(content string) *Classification {
	confidence, signals := score(content, []rule{
		{signal: "notice", weight: 0.5, phrases: []string{
			"announcement", "reminder", "heads up", "fyi", "important:", "attention",
			"update:", "meeting", "event", "schedule change", "cancelled", "canceled", "postponed",
			"הודעה", "תזכורת", "חשוב", "שימו לב", "עדכון", "פגישה", "בוטל", "נדחה",
		}},
		{signal: "addressing_all", weight: 0.3, phrases: []string{"everyone", "all members", "@all", "hi all", "hello all", "לכולם", "חברים"}},
	})
	if strings.HasPrefix(content, "📢") || strings.HasPrefix(content, "❗") {
		signals = append(signals, "notice_emoji")
		confidence += 0.3
	}
	return result(TypeAnnouncement, confidence, 0.5, signals)
}

// Highlights maps each category to the messages that matched it, in input
// order
type Highlights map[Type][]normalize.CanonicalMessage

// Highlight classifies msgs and keeps matches at or above minConfidence.
// A message may appear under several categories.
func Highlight(msgs []normalize.CanonicalMessage, minConfidence float64) Highlights {
	h := make(Highlights)
	for i := range msgs {
		for _, c := range ClassifyMessage(&msgs[i]) {
			if c.Confidence >= minConfidence {
				h[c.Type] = append(h[c.Type], msgs[i])
			}
		}
	}
	return h
}

// Len is the number of highlighted entries
func (h Highlights) Len() int {
	n := 0
	for _, msgs := range h {
		n += len(msgs)
	}
	return n
}
