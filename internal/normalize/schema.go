package normalize

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RawMessage is an unnormalized chat-history record as returned by the
// gateway. Records arrive in several shapes; see resolve.go.
type RawMessage map[string]any

// MessageID returns the gateway identifier of the record (idMessage, then id)
func (r RawMessage) MessageID() string {
	for _, key := range []string{"idMessage", "id"} {
		if id := scalarString(r[key]); id != "" {
			return id
		}
	}
	return ""
}

// Kind is the canonical message type tag
type Kind string

const (
	KindText         Kind = "textMessage"
	KindExtendedText Kind = "extendedTextMessage"
	KindImage        Kind = "imageMessage"
	KindVideo        Kind = "videoMessage"
	KindDocument     Kind = "documentMessage"
	KindAudio        Kind = "audioMessage"
	KindSticker      Kind = "stickerMessage"
	KindLocation     Kind = "locationMessage"
	KindContact      Kind = "contactMessage"
	KindReaction     Kind = "reactionMessage"
	KindPoll         Kind = "pollMessage"
	KindSystem       Kind = "systemMessage"
	KindUnknown      Kind = "unknown"
)

// Confidence tells how the text of a CanonicalMessage was obtained
type Confidence string

const (
	// ConfidenceClean means the text came from the message's own content
	ConfidenceClean Confidence = "clean"
	// ConfidencePlaceholder means a type tag such as [STICKER] stands in for content
	ConfidencePlaceholder Confidence = "placeholder"
	// ConfidenceSalvaged means extraction failed and [MESSAGE: <type>] was emitted
	ConfidenceSalvaged Confidence = "salvaged"
	// ConfidenceDegraded means the text was found by the emergency field scan
	ConfidenceDegraded Confidence = "degraded"
)

// CanonicalMessage is the normalized, immutable unit fed to the summarizer.
// Timestamp is epoch seconds, nil when unresolvable; RawTime then keeps the
// original value. TypeTag is the tag as sent by the gateway.
type CanonicalMessage struct {
	ID          string     `json:"id"`
	ChatID      string     `json:"chat_id,omitempty"`
	Sender      string     `json:"sender"`
	SenderID    string     `json:"sender_id,omitempty"`
	Text        string     `json:"text"`
	MessageType Kind       `json:"message_type"`
	TypeTag     string     `json:"type_tag,omitempty"`
	Timestamp   *int64     `json:"timestamp"`
	RawTime     string     `json:"raw_time,omitempty"`
	QuotedText  *string    `json:"quoted_text"`
	Outgoing    bool       `json:"outgoing,omitempty"`
	Confidence  Confidence `json:"confidence"`

	// Raw is the source record, kept read-only for the emergency text scan
	Raw RawMessage `json:"-"`
}

// MessageID implements Identified
func (m CanonicalMessage) MessageID() string {
	return m.ID
}

// Time returns the message time and whether it is known
func (m CanonicalMessage) Time() (time.Time, bool) {
	if m.Timestamp == nil {
		return time.Time{}, false
	}
	return time.Unix(*m.Timestamp, 0), true
}

// SchemaVersion of CanonicalMessage as persisted by the repository
const SchemaVersion = "1.0"

// scalarString renders strings and numbers as strings; other values yield ""
func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case fmt.Stringer:
		return t.String()
	default:
		return ""
	}
}

// stringField returns raw[key] when it is a non-blank string
func stringField(m map[string]any, key string) (string, bool) {
	if m == nil {
		return "", false
	}
	s, ok := m[key].(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

// mapField returns raw[key] when it is an object
func mapField(m map[string]any, key string) (map[string]any, bool) {
	if m == nil {
		return nil, false
	}
	switch v := m[key].(type) {
	case map[string]any:
		return v, true
	case RawMessage:
		return v, true
	default:
		return nil, false
	}
}

// firstString returns the first non-blank string found under keys in maps,
// scanning maps in order
func firstString(maps []map[string]any, keys ...string) string {
	for _, m := range maps {
		for _, k := range keys {
			if s, ok := stringField(m, k); ok {
				return s
			}
		}
	}
	return ""
}
