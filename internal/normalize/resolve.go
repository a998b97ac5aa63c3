package normalize

import "strings"

// Format is the payload shape a record was recognized as
type Format int

const (
	// FormatUnknown records carry no type indicator
	FormatUnknown Format = iota
	// FormatDirect records are flat {type: incoming|outgoing, text, ...}
	FormatDirect
	// FormatTyped records carry a typeMessage tag somewhere
	FormatTyped
	// FormatInferred records were typed from the containers they carry
	FormatInferred
)

// envelope is the resolved discriminator for one record. It is computed once
// and then dispatched on by extract.
type envelope struct {
	format Format
	kind   Kind
	tag    string // gateway tag, e.g. "imageMessage" or "quotedMessage"
	raw    RawMessage
	data   map[string]any // messageData, nil if absent
}

var kindByTag = map[string]Kind{
	"textMessage":          KindText,
	"conversation":         KindText,
	"extendedTextMessage":  KindExtendedText,
	"quotedMessage":        KindExtendedText,
	"imageMessage":         KindImage,
	"videoMessage":         KindVideo,
	"documentMessage":      KindDocument,
	"audioMessage":         KindAudio,
	"stickerMessage":       KindSticker,
	"locationMessage":      KindLocation,
	"liveLocationMessage":  KindLocation,
	"contactMessage":       KindContact,
	"contactsArrayMessage": KindContact,
	"reactionMessage":      KindReaction,
	"pollMessage":          KindPoll,
	"pollCreationMessage":  KindPoll,
	"pollUpdateMessage":    KindPoll,
	"systemMessage":        KindSystem,
	"notificationMessage":  KindSystem,
	"protocolMessage":      KindSystem,
	"callLogMessage":       KindSystem,
	"groupNotification":    KindSystem,
	"e2eNotification":      KindSystem,
	"revokedMessage":       KindSystem,
}

// dataKeys is the probe order for step (d): <tag>Data inside messageData
var dataKeys = []string{
	"textMessage",
	"extendedTextMessage",
	"quotedMessage",
	"imageMessage",
	"videoMessage",
	"documentMessage",
	"audioMessage",
	"stickerMessage",
	"locationMessage",
	"contactMessage",
	"reactionMessage",
	"pollMessage",
}

// containerKeys is the probe order for step (f): top-level type containers
var containerKeys = []string{
	"extendedTextMessage",
	"imageMessage",
	"videoMessage",
	"documentMessage",
	"audioMessage",
	"stickerMessage",
	"locationMessage",
	"contactMessage",
}

// KindOf maps a gateway type tag to its canonical kind
func KindOf(tag string) Kind {
	if k, ok := kindByTag[tag]; ok {
		return k
	}
	return KindUnknown
}

// resolve determines the record's type. The first matching rule wins:
//
//	(a) type incoming/outgoing with a text-bearing field: direct format
//	(b) typeMessage at top level
//	(c) messageData.typeMessage or messageData.type
//	(d) a <tag>Data key inside messageData
//	(e) reactionMessage / pollCreationMessage containers
//	(f) top-level type containers (textMessage string, imageMessage object, ...)
//
// ok is false when no rule matched.
func resolve(raw RawMessage) (envelope, bool) {
	env := envelope{raw: raw}
	env.data, _ = mapField(raw, "messageData")

	if t, _ := raw["type"].(string); t == "incoming" || t == "outgoing" {
		if hasTextField(raw) {
			env.format = FormatDirect
			env.tag, _ = stringField(raw, "typeMessage")
			env.kind = KindText
			if k := KindOf(env.tag); k != KindUnknown {
				env.kind = k
			}
			return env, true
		}
	}

	if tag, ok := stringField(raw, "typeMessage"); ok {
		return env.typed(tag), true
	}

	if tag, ok := stringField(env.data, "typeMessage"); ok {
		return env.typed(tag), true
	}
	if tag, ok := stringField(env.data, "type"); ok {
		return env.typed(tag), true
	}

	for _, tag := range dataKeys {
		if _, ok := env.data[tag+"Data"]; ok {
			return env.inferred(tag), true
		}
	}

	for _, tag := range []string{"reactionMessage", "pollCreationMessage"} {
		if _, ok := mapField(raw, tag); ok {
			return env.inferred(tag), true
		}
		if _, ok := mapField(env.data, tag); ok {
			return env.inferred(tag), true
		}
	}

	if _, ok := stringField(raw, "textMessage"); ok {
		return env.inferred("textMessage"), true
	}
	for _, tag := range containerKeys {
		if _, ok := raw[tag]; ok {
			return env.inferred(tag), true
		}
	}

	return env, false
}

func (e envelope) typed(tag string) envelope {
	e.format = FormatTyped
	e.tag = strings.TrimSpace(tag)
	e.kind = KindOf(e.tag)
	return e
}

func (e envelope) inferred(tag string) envelope {
	e.format = FormatInferred
	e.tag = tag
	e.kind = KindOf(tag)
	return e
}

// hasTextField reports whether a direct-format record carries text
func hasTextField(raw RawMessage) bool {
	for _, key := range []string{"text", "textMessage"} {
		if _, ok := raw[key].(string); ok {
			return true
		}
	}
	return false
}

// hasReference reports whether the record names a chat or a sender
func hasReference(raw RawMessage) bool {
	if _, ok := stringField(raw, "chatId"); ok {
		return true
	}
	if _, ok := stringField(raw, "senderName"); ok {
		return true
	}
	if _, ok := stringField(raw, "sender"); ok {
		return true
	}
	_, ok := mapField(raw, "senderData")
	return ok
}

// containers lists the objects that may hold the payload for the envelope's
// tag, most specific first
func (e envelope) containers() []map[string]any {
	var out []map[string]any
	add := func(m map[string]any, key string) {
		if c, ok := mapField(m, key); ok {
			out = append(out, c)
		}
	}
	// the quotedMessage container holds the replied-to payload, not this body
	if e.tag != "" && e.tag != "quotedMessage" {
		add(e.data, e.tag+"Data")
		add(e.data, e.tag)
		add(e.raw, e.tag+"Data")
		add(e.raw, e.tag)
	}
	switch e.kind {
	case KindImage, KindVideo, KindDocument, KindAudio, KindSticker:
		add(e.data, "fileMessageData")
		add(e.raw, "fileMessageData")
	case KindExtendedText:
		add(e.data, "extendedTextMessageData")
	case KindPoll:
		add(e.data, "pollMessageData")
		add(e.raw, "pollCreationMessage")
	}
	return out
}
