package normalize

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrMalformed is returned by extraction when a type container has the
// wrong shape
var ErrMalformed = errors.New("malformed message payload")

const (
	// maxQuoteDepth bounds recursion into nested quoted messages
	maxQuoteDepth = 3
	// maxQuoteRunes caps the quoted preview
	maxQuoteRunes = 100

	defaultReaction = "👍"
)

// genericTextKeys is scanned, in order, for records of unrecognized type
var genericTextKeys = []string{"textMessage", "text", "caption", "message", "content"}

// quotedTextKeys is scanned when a quoted payload has no recognizable type
var quotedTextKeys = append([]string{"conversation"}, genericTextKeys...)

// extraction is the outcome of text extraction for one record
type extraction struct {
	text       string // final text, possibly with tags and quote prefix
	body       string // the author's own text, used for command detection
	quoted     string
	confidence Confidence
}

// extract dispatches on the resolved kind
func extract(env envelope, depth int) (extraction, error) {
	if err := checkShape(env); err != nil {
		return extraction{}, err
	}

	if env.format == FormatDirect {
		return extractDirect(env, depth), nil
	}
	return extractTyped(env, depth), nil
}

// extractTyped applies the per-kind rules to an already shape-checked
// envelope
func extractTyped(env envelope, depth int) extraction {
	switch env.kind {
	case KindText:
		return extractText(env)
	case KindExtendedText:
		return extractExtended(env, depth)
	case KindImage, KindVideo, KindDocument, KindAudio:
		return extractMedia(env)
	case KindSticker:
		return placeholder("[STICKER]")
	case KindLocation:
		return extractLocation(env)
	case KindContact:
		return extractContact(env)
	case KindReaction:
		return extractReaction(env)
	case KindPoll:
		return extractPoll(env)
	default:
		return extractGeneric(env)
	}
}

// checkShape rejects a <tag>Data container that is present but not an object
func checkShape(env envelope) error {
	if env.tag == "" || env.data == nil {
		return nil
	}
	v, ok := env.data[env.tag+"Data"]
	if !ok || v == nil {
		return nil
	}
	if _, isMap := mapField(env.data, env.tag+"Data"); !isMap {
		return fmt.Errorf("%w: %sData is %T", ErrMalformed, env.tag, v)
	}
	return nil
}

func clean(text string) extraction {
	return extraction{text: text, body: text, confidence: ConfidenceClean}
}

func placeholder(tag string) extraction {
	return extraction{text: tag, confidence: ConfidencePlaceholder}
}

func extractDirect(env envelope, depth int) extraction {
	if b, _ := env.raw["isDeleted"].(bool); b {
		return placeholder("[DELETED MESSAGE]")
	}

	var ex extraction
	switch env.kind {
	case KindText, KindExtendedText:
		ex = clean(firstString([]map[string]any{env.raw}, "text", "textMessage"))
		if q := quotedText(env, depth); q != "" {
			ex.quoted = q
			ex.text = strings.TrimSpace(fmt.Sprintf("[QUOTE: %s] %s", q, ex.body))
		}
	default:
		// a direct record with a media or other tag; reuse the typed rules
		ex = extractTyped(env, depth)
		if ex.body == "" {
			ex.body = firstString([]map[string]any{env.raw}, "text", "textMessage")
		}
	}

	if ex.text == "" {
		return extractGeneric(env)
	}
	if b, _ := env.raw["isEdited"].(bool); b {
		ex.text = "[EDITED] " + ex.text
	}
	return ex
}

func extractText(env envelope) extraction {
	maps := append(env.containers(), env.raw, env.data)
	text := firstString(maps, "textMessage", "text", "conversation")
	if text == "" {
		return extractGeneric(env)
	}
	return clean(text)
}

func extractExtended(env envelope, depth int) extraction {
	body := ""
	if s, ok := stringField(env.raw, "extendedTextMessage"); ok {
		body = s
	}
	if body == "" {
		maps := append(env.containers(), env.raw)
		body = firstString(maps, "text", "textMessage", "caption", "conversation")
	}

	ex := clean(body)
	if q := quotedText(env, depth); q != "" {
		ex.quoted = q
		ex.text = strings.TrimSpace(fmt.Sprintf("[QUOTE: %s] %s", q, body))
	}
	if ex.text == "" {
		return extractGeneric(env)
	}
	return ex
}

var mediaLabels = map[Kind]string{
	KindImage:    "IMAGE",
	KindVideo:    "VIDEO",
	KindDocument: "DOCUMENT",
	KindAudio:    "AUDIO",
}

func extractMedia(env envelope) extraction {
	maps := append(env.containers(), env.raw)
	caption := firstString(maps, "caption")
	if caption == "" && env.kind == KindDocument {
		caption = firstString(maps, "fileName", "title")
	}

	text := strings.TrimSpace(fmt.Sprintf("[%s] %s", mediaLabels[env.kind], caption))
	if caption == "" {
		return placeholder(text)
	}
	return extraction{text: text, body: caption, confidence: ConfidenceClean}
}

func extractLocation(env envelope) extraction {
	maps := append(env.containers(), env.raw)
	var parts []string
	if name := firstString(maps, "nameLocation", "name"); name != "" {
		parts = append(parts, strings.TrimSpace(name))
	}
	if addr := firstString(maps, "address"); addr != "" {
		parts = append(parts, strings.TrimSpace(addr))
	}
	if len(parts) == 0 {
		for _, m := range maps {
			lat, lon := scalarString(m["latitude"]), scalarString(m["longitude"])
			if lat != "" && lon != "" {
				parts = append(parts, lat+", "+lon)
				break
			}
		}
	}
	if len(parts) == 0 {
		return placeholder("[LOCATION]")
	}
	return extraction{text: "[LOCATION] " + strings.Join(parts, " "), confidence: ConfidenceClean}
}

func extractContact(env envelope) extraction {
	maps := append(env.containers(), env.raw)
	name := firstString(maps, "displayName", "name")
	if name == "" {
		for _, m := range maps {
			if arr, ok := m["contacts"].([]any); ok && len(arr) > 0 {
				if c, ok := arr[0].(map[string]any); ok {
					name = firstString([]map[string]any{c}, "displayName", "name")
				}
			}
			if name != "" {
				break
			}
		}
	}
	if name == "" {
		return placeholder("[CONTACT] Unknown contact")
	}
	return extraction{text: "[CONTACT] " + strings.TrimSpace(name), confidence: ConfidenceClean}
}

func extractReaction(env envelope) extraction {
	maps := env.containers()
	if c, ok := mapField(env.raw, "reactionMessage"); ok {
		maps = append(maps, c)
	}
	if c, ok := mapField(env.data, "reactionMessage"); ok {
		maps = append(maps, c)
	}
	maps = append(maps, env.raw)

	emoji := firstString(maps, "emoji", "text", "reaction")
	if emoji == "" {
		emoji = defaultReaction
	}
	target := ""
	for _, m := range maps {
		if key, ok := mapField(m, "key"); ok {
			target = scalarString(key["id"])
		}
		if target == "" {
			target = firstString([]map[string]any{m}, "stanzaId", "messageId")
		}
		if target != "" {
			break
		}
	}
	if target == "" {
		if q, ok := mapField(env.data, "quotedMessage"); ok {
			target = scalarString(q["stanzaId"])
		}
	}

	if target != "" {
		return placeholder(fmt.Sprintf("[REACTION: %s to message %s]", emoji, target))
	}
	return placeholder(fmt.Sprintf("[REACTION: %s]", emoji))
}

func extractPoll(env envelope) extraction {
	maps := append(env.containers(), env.raw)
	name := firstString(maps, "name", "pollName", "title")
	if name == "" {
		return placeholder("[POLL]")
	}
	return extraction{text: "[POLL] " + strings.TrimSpace(name), body: name, confidence: ConfidenceClean}
}

// extractGeneric scans well-known text fields, then falls back to a tag
// placeholder so the result is never empty
func extractGeneric(env envelope) extraction {
	maps := []map[string]any{env.raw}
	if env.data != nil {
		maps = append(maps, env.data)
	}
	if text := firstString(maps, genericTextKeys...); text != "" {
		return clean(text)
	}
	if env.tag != "" {
		return placeholder("[" + strings.ToUpper(env.tag) + "]")
	}
	return placeholder("[UNKNOWN MESSAGE TYPE]")
}

// quotedText resolves the replied-to message, if any, by running the same
// extraction over the quoted payload
func quotedText(env envelope, depth int) string {
	if depth >= maxQuoteDepth {
		return ""
	}

	var payload map[string]any
	for _, src := range append(env.containers(), env.data, env.raw) {
		if q, ok := mapField(src, "quotedMessage"); ok {
			payload = q
			break
		}
	}
	if payload == nil {
		return ""
	}

	qenv, ok := resolve(RawMessage(payload))
	if !ok {
		// quotes often carry a bare <tag>Data container, the shape
		// messageData has on a full record
		if wrapped, wok := resolve(RawMessage{"messageData": payload}); wok && wrapped.format == FormatInferred {
			qenv, ok = wrapped, true
		}
	}
	if !ok {
		text := firstString([]map[string]any{payload}, quotedTextKeys...)
		return truncate(strings.TrimSpace(text), maxQuoteRunes)
	}
	ex, err := extract(qenv, depth+1)
	if err != nil {
		return ""
	}
	return truncate(strings.TrimSpace(ex.text), maxQuoteRunes)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
