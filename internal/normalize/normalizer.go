package normalize

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/solvaholic/wadigest/internal/logger"
)

// Mode controls what the normalizer filters
type Mode int

const (
	// Strict drops commands and system, poll, reaction and sticker records
	Strict Mode = iota
	// Permissive keeps every identifiable record as-is
	Permissive
)

func (m Mode) String() string {
	if m == Permissive {
		return "permissive"
	}
	return "strict"
}

// DefaultCommandPrefixes mark bot commands
var DefaultCommandPrefixes = []string{"!", "/", ".", "#"}

// Rejection is the reason a record was filtered
type Rejection string

const (
	RejectNone         Rejection = ""
	RejectUnidentified Rejection = "unidentified"
	RejectType         Rejection = "filtered_type"
	RejectCommand      Rejection = "command"
	RejectExtraction   Rejection = "extraction_error"
)

// filteredKinds are dropped in strict mode
var filteredKinds = map[Kind]bool{
	KindSystem:   true,
	KindPoll:     true,
	KindReaction: true,
	KindSticker:  true,
}

// idNamespace scopes synthesized message ids
var idNamespace = uuid.MustParse("6f1c5a8e-3b1d-4f6e-9a57-0c2b8e4d7a31")

// Options configure a Normalizer
type Options struct {
	Mode            Mode
	CommandPrefixes []string // nil uses DefaultCommandPrefixes

	// DisableSalvage drops records whose extraction fails instead of
	// emitting a [MESSAGE: <type>] placeholder
	DisableSalvage bool

	// Workers bounds NormalizeAll concurrency; 0 uses GOMAXPROCS
	Workers int

	Logger *zerolog.Logger
}

// Normalizer turns raw gateway records into canonical messages. It is safe
// for concurrent use.
type Normalizer struct {
	mode     Mode
	prefixes []string
	salvage  bool
	workers  int
	log      zerolog.Logger
}

// New creates a Normalizer
func New(opts Options) *Normalizer {
	n := &Normalizer{
		mode:     opts.Mode,
		prefixes: opts.CommandPrefixes,
		salvage:  !opts.DisableSalvage,
		workers:  opts.Workers,
	}
	if n.prefixes == nil {
		n.prefixes = DefaultCommandPrefixes
	}
	if n.workers <= 0 {
		n.workers = runtime.GOMAXPROCS(0)
	}
	if opts.Logger != nil {
		n.log = *opts.Logger
	} else {
		n.log = logger.Component("normalize")
	}
	return n
}

// Mode reports the filtering mode
func (n *Normalizer) Mode() Mode {
	return n.mode
}

// Normalize converts one record. It returns nil when the record is filtered.
func (n *Normalizer) Normalize(raw RawMessage) *CanonicalMessage {
	msg, _ := n.normalize(raw)
	return msg
}

func (n *Normalizer) normalize(raw RawMessage) (*CanonicalMessage, Rejection) {
	if len(raw) == 0 {
		return nil, RejectUnidentified
	}

	env, ok := resolve(raw)
	if !ok {
		if !hasReference(raw) {
			n.log.Debug().Str("id", raw.MessageID()).Msg("Skipping unidentified record")
			return nil, RejectUnidentified
		}
		env = envelope{format: FormatUnknown, kind: KindUnknown, raw: raw}
		env.data, _ = mapField(raw, "messageData")
	}

	if n.mode == Strict && filteredKinds[env.kind] {
		n.log.Debug().Str("id", raw.MessageID()).Str("type", env.tag).Msg("Skipping filtered message type")
		return nil, RejectType
	}

	ex, err := safeExtract(env)
	if err != nil {
		if !n.salvage {
			n.log.Warn().Err(err).Str("id", raw.MessageID()).Str("type", env.tag).Msg("Dropping message after extraction error")
			return nil, RejectExtraction
		}
		n.log.Warn().Err(err).Str("id", raw.MessageID()).Str("type", env.tag).Msg("Salvaging message after extraction error")
		ex = extraction{text: fmt.Sprintf("[MESSAGE: %s]", typeLabel(env)), confidence: ConfidenceSalvaged}
	}

	if n.mode == Strict && n.isCommand(ex.body) {
		n.log.Debug().Str("id", raw.MessageID()).Msg("Skipping command")
		return nil, RejectCommand
	}

	if strings.TrimSpace(ex.text) == "" {
		ex = placeholder("[UNKNOWN MESSAGE TYPE]")
	}

	msg := &CanonicalMessage{
		ID:          raw.MessageID(),
		ChatID:      chatID(raw),
		Sender:      senderName(raw),
		SenderID:    senderID(raw),
		Text:        ex.text,
		MessageType: env.kind,
		TypeTag:     env.tag,
		Outgoing:    isOutgoing(raw),
		Confidence:  ex.confidence,
		Raw:         raw,
	}
	if msg.ID == "" {
		msg.ID = synthesizeID(raw)
	}
	if ex.quoted != "" {
		q := ex.quoted
		msg.QuotedText = &q
	}
	msg.Timestamp, msg.RawTime = ParseTimestamp(raw["timestamp"])
	return msg, RejectNone
}

// safeExtract runs extraction and converts a panic into an error
func safeExtract(env envelope) (ex extraction, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic during extraction: %v", ErrMalformed, r)
		}
	}()
	return extract(env, 0)
}

func typeLabel(env envelope) string {
	if env.tag != "" {
		return env.tag
	}
	return string(env.kind)
}

// isCommand reports whether text starts with a command prefix
func (n *Normalizer) isCommand(text string) bool {
	text = strings.TrimLeft(text, " \t\r\n")
	if text == "" {
		return false
	}
	for _, p := range n.prefixes {
		if p != "" && strings.HasPrefix(text, p) {
			return true
		}
	}
	return false
}

func senderName(raw RawMessage) string {
	maps := []map[string]any{raw}
	if sd, ok := mapField(raw, "senderData"); ok {
		maps = append(maps, sd)
	}
	if name := firstString(maps, "senderName", "senderContactName", "pushName"); name != "" {
		return strings.TrimSpace(name)
	}
	return "Unknown"
}

func senderID(raw RawMessage) string {
	maps := []map[string]any{raw}
	if sd, ok := mapField(raw, "senderData"); ok {
		maps = append(maps, sd)
	}
	return firstString(maps, "senderId", "sender")
}

func chatID(raw RawMessage) string {
	maps := []map[string]any{raw}
	if sd, ok := mapField(raw, "senderData"); ok {
		maps = append(maps, sd)
	}
	return firstString(maps, "chatId")
}

func isOutgoing(raw RawMessage) bool {
	t, _ := raw["type"].(string)
	return t == "outgoing"
}

// synthesizeID derives a stable id from the record content. encoding/json
// sorts map keys, so equal records always get the same id.
func synthesizeID(raw RawMessage) string {
	data, err := json.Marshal(raw)
	if err != nil {
		return "synthetic-" + uuid.NewString()
	}
	return "synthetic-" + uuid.NewSHA1(idNamespace, data).String()
}

// Stats summarizes one NormalizeAll pass
type Stats struct {
	Total     int               `json:"total"`
	Accepted  int               `json:"accepted"`
	Salvaged  int               `json:"salvaged"`
	Rejected  map[Rejection]int `json:"rejected"`
	ByType    map[Kind]int      `json:"by_type"`
	Discarded map[string]int    `json:"discarded_types"`
}

// Dropped is the number of filtered records
func (s Stats) Dropped() int {
	return s.Total - s.Accepted
}

// NormalizeAll normalizes raws concurrently and returns the accepted
// messages in input order
func (n *Normalizer) NormalizeAll(ctx context.Context, raws []RawMessage) ([]CanonicalMessage, Stats) {
	type result struct {
		msg    *CanonicalMessage
		reason Rejection
		tag    string
	}
	results := make([]result, len(raws))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n.workers)
	for i := range raws {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			msg, reason := n.normalize(raws[i])
			results[i] = result{msg: msg, reason: reason}
			if reason != RejectNone {
				if env, ok := resolve(raws[i]); ok {
					results[i].tag = typeLabel(env)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		n.log.Warn().Err(err).Msg("Normalization interrupted")
	}

	stats := Stats{
		Total:     len(raws),
		Rejected:  make(map[Rejection]int),
		ByType:    make(map[Kind]int),
		Discarded: make(map[string]int),
	}
	out := make([]CanonicalMessage, 0, len(raws))
	for _, r := range results {
		if r.msg == nil {
			reason := r.reason
			if reason == RejectNone {
				// never ran because the context was cancelled
				reason = RejectUnidentified
			}
			stats.Rejected[reason]++
			if r.tag != "" {
				stats.Discarded[r.tag]++
			}
			continue
		}
		stats.Accepted++
		stats.ByType[r.msg.MessageType]++
		if r.msg.Confidence == ConfidenceSalvaged {
			stats.Salvaged++
		}
		out = append(out, *r.msg)
	}

	n.log.Debug().
		Int("total", stats.Total).
		Int("accepted", stats.Accepted).
		Int("salvaged", stats.Salvaged).
		Str("mode", n.mode.String()).
		Msg("Normalized messages")
	return out, stats
}
