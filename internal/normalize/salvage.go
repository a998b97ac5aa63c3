package normalize

import (
	"slices"
	"strings"
	"unicode/utf8"
)

// minSalvageLen is the shortest string, in characters, the emergency scan
// accepts
const minSalvageLen = 3

func salvageable(s string) bool {
	return utf8.RuneCountInString(s) >= minSalvageLen
}

// identityKeys never carry message content
var identityKeys = map[string]bool{
	"id":            true,
	"idMessage":     true,
	"chatId":        true,
	"sender":        true,
	"senderId":      true,
	"senderName":    true,
	"type":          true,
	"typeMessage":   true,
	"statusMessage": true,
	"downloadUrl":   true,
	"jpegThumbnail": true,
	"mimeType":      true,
	"stanzaId":      true,
	"participant":   true,
}

// EmergencyText is the degraded extraction path. It returns the first string
// field longer than two characters found on the message, checking the
// canonical text first and then the raw record in key order (one level of
// nesting). ok is false when no such field exists.
func EmergencyText(m CanonicalMessage) (string, bool) {
	if s := strings.TrimSpace(m.Text); salvageable(s) {
		return s, true
	}
	if m.QuotedText != nil {
		if s := strings.TrimSpace(*m.QuotedText); salvageable(s) {
			return s, true
		}
	}
	return scanStrings(m.Raw, 1)
}

func scanStrings(m map[string]any, depth int) (string, bool) {
	keys := make([]string, 0, len(m))
	for k := range m {
		if !identityKeys[k] {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	for _, k := range keys {
		if s, ok := m[k].(string); ok {
			if s = strings.TrimSpace(s); salvageable(s) {
				return s, true
			}
		}
	}
	if depth <= 0 {
		return "", false
	}
	for _, k := range keys {
		if nested, ok := mapField(m, k); ok {
			if s, ok := scanStrings(nested, depth-1); ok {
				return s, true
			}
		}
	}
	return "", false
}
