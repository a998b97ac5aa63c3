// Package digest runs the fetch, normalize, sort and summarize pipeline for
// one chat and hands the result to persistence, sending and publishing.
package digest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/solvaholic/wadigest/internal/db"
	"github.com/solvaholic/wadigest/internal/events"
	"github.com/solvaholic/wadigest/internal/gateway"
	"github.com/solvaholic/wadigest/internal/logger"
	"github.com/solvaholic/wadigest/internal/normalize"
	"github.com/solvaholic/wadigest/internal/summarize"
)

// ErrNoMessages is returned when no source yields a message to summarize
var ErrNoMessages = errors.New("no messages to summarize")

// Source tells where the summarized messages came from
type Source string

const (
	SourceGateway Source = "gateway"
	SourceStore   Source = "store"
	SourceCache   Source = "cache"
)

// HistorySource assembles raw chat history. *gateway.Assembler implements it.
type HistorySource interface {
	AssembleHistory(ctx context.Context, chatID string, targetCount, minCount int) gateway.History
}

// Summarizer produces a summary and never fails
type Summarizer interface {
	Summarize(ctx context.Context, msgs []normalize.CanonicalMessage) summarize.Result
}

// Store is the repository. *db.DB implements it.
type Store interface {
	StoreMessages(chatID string, msgs []normalize.CanonicalMessage) (int, error)
	GetMessages(q db.MessageQuery) ([]normalize.CanonicalMessage, error)
	LatestTimestamp(chatID string) (*int64, error)
	StoreSummary(s *db.Summary) error
}

// HistoryCache keeps raw history snapshots. *cache.Store implements it.
type HistoryCache interface {
	SaveHistory(chatID string, msgs []normalize.RawMessage) error
	LoadHistory(chatID string, since time.Time) ([]normalize.RawMessage, error)
}

// Sender posts text to a chat. *gateway.Client implements it.
type Sender interface {
	SendMessage(ctx context.Context, chatID, text string, purpose gateway.Purpose) (*gateway.SendResult, error)
}

// Publisher announces new summaries. *events.AMQPPublisher implements it.
type Publisher interface {
	PublishSummary(ctx context.Context, s events.SummaryCreated) error
}

// Config holds the pipeline thresholds
type Config struct {
	TargetCount int // messages requested per fetch
	MinCount    int // unique messages the assembler tries to reach

	// MinForSummary triggers the fetch-more loop when fewer normalized
	// messages are available
	MinForSummary int
	MoreAttempts  int

	Model string // recorded with stored summaries
}

// DefaultConfig returns the stock thresholds
func DefaultConfig() Config {
	return Config{TargetCount: 800, MinCount: 500, MinForSummary: 200, MoreAttempts: 3}
}

// Service runs digests
type Service struct {
	history    HistorySource
	normalizer *normalize.Normalizer
	summarizer Summarizer

	store     Store
	cache     HistoryCache
	sender    Sender
	publisher Publisher

	cfg Config
	log zerolog.Logger
	now func() time.Time
}

// Option customizes a Service
type Option func(*Service)

// WithStore enables persistence and the repository fallback
func WithStore(s Store) Option {
	return func(svc *Service) { svc.store = s }
}

// WithCache enables raw history snapshots and the cache fallback
func WithCache(c HistoryCache) Option {
	return func(svc *Service) { svc.cache = c }
}

// WithSender enables posting summaries back to the chat
func WithSender(s Sender) Option {
	return func(svc *Service) { svc.sender = s }
}

// WithPublisher enables summary events
func WithPublisher(p Publisher) Option {
	return func(svc *Service) { svc.publisher = p }
}

// WithConfig replaces DefaultConfig
func WithConfig(cfg Config) Option {
	return func(svc *Service) { svc.cfg = cfg }
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(svc *Service) { svc.log = l }
}

// New creates a Service
func New(history HistorySource, n *normalize.Normalizer, s Summarizer, opts ...Option) *Service {
	svc := &Service{
		history:    history,
		normalizer: n,
		summarizer: s,
		cfg:        DefaultConfig(),
		log:        logger.Component("digest"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// RunOptions select the window and delivery of one digest
type RunOptions struct {
	// Since drops messages older than this instant; zero keeps everything
	Since time.Time
	// Send posts the summary to the chat, subject to the sender's policy
	Send bool
}

// Report describes one Run
type Report struct {
	ChatID    string              `json:"chat_id"`
	Source    Source              `json:"source"`
	Fetched   int                 `json:"fetched"`
	Requests  int                 `json:"requests"`
	Attempts  int                 `json:"more_attempts"`
	Stats     normalize.Stats     `json:"normalize"`
	Messages  int                 `json:"messages"`
	Stored    int                 `json:"stored"`
	Summary   summarize.Result    `json:"-"`
	SummaryID int64               `json:"summary_id,omitempty"`
	Sent      *gateway.SendResult `json:"sent,omitempty"`
	Published bool                `json:"published"`
	Warnings  []string            `json:"warnings,omitempty"`
}

func (r *Report) warn(log zerolog.Logger, err error, msg string) {
	log.Warn().Err(err).Str("chat_id", r.ChatID).Msg(msg)
	r.Warnings = append(r.Warnings, fmt.Sprintf("%s: %v", msg, err))
}

// Run produces a digest for chatID. Only ErrNoMessages (or a cancelled
// context) fails a run; storage, sending and publishing are best effort and
// their failures are recorded in Report.Warnings.
func (s *Service) Run(ctx context.Context, chatID string, opts RunOptions) (*Report, error) {
	rep := &Report{ChatID: chatID}
	log := s.log.With().Str("chat_id", chatID).Logger()

	msgs, err := s.collect(ctx, rep, opts.Since)
	if err != nil {
		return rep, err
	}
	if len(msgs) == 0 {
		msgs = s.fallback(ctx, rep, opts.Since)
	}
	if len(msgs) == 0 {
		log.Warn().Msg("No messages found in any source")
		return rep, fmt.Errorf("%w for %s", ErrNoMessages, chatID)
	}
	if len(msgs) < s.cfg.MinForSummary {
		log.Warn().Int("messages", len(msgs)).Int("min", s.cfg.MinForSummary).Msg("Summarizing fewer messages than the minimum")
	}

	ordered := normalize.SortByTime(msgs)
	rep.Messages = len(ordered)
	log.Info().Str("source", string(rep.Source)).Int("messages", rep.Messages).Msg("Summarizing messages")

	rep.Summary = s.summarizer.Summarize(ctx, ordered)

	s.persist(rep, ordered)
	s.send(ctx, rep, opts.Send)
	s.publish(ctx, rep)
	return rep, nil
}

// collect assembles history from the gateway, then runs the fetch-more loop
// while fewer than MinForSummary messages are in the window
func (s *Service) collect(ctx context.Context, rep *Report, since time.Time) ([]normalize.CanonicalMessage, error) {
	h := s.history.AssembleHistory(ctx, rep.ChatID, s.cfg.TargetCount, s.cfg.MinCount)
	rep.Requests += h.Requests
	if h.Err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		rep.warn(s.log, h.Err, "History assembly stopped early")
	}
	if len(h.Messages) == 0 {
		return nil, nil
	}

	rep.Source = SourceGateway
	raws := h.Messages
	msgs := s.normalizeWindow(ctx, rep, raws, since)

	for attempt := 1; attempt <= s.cfg.MoreAttempts && len(msgs) < s.cfg.MinForSummary; attempt++ {
		count := s.cfg.TargetCount << attempt
		minCount := s.cfg.MinForSummary * (attempt + 1)
		s.log.Info().
			Str("chat_id", rep.ChatID).
			Int("attempt", attempt).
			Int("count", count).
			Int("min_count", minCount).
			Int("have", len(msgs)).
			Msg("Fetching more messages")

		more := s.history.AssembleHistory(ctx, rep.ChatID, count, minCount)
		rep.Attempts++
		rep.Requests += more.Requests
		fresh := normalize.Dedupe(raws, more.Messages)
		if len(fresh) > 0 {
			raws = append(raws, fresh...)
			msgs = normalize.Merge(msgs, s.normalizeWindow(ctx, rep, fresh, since))
		}
		if more.Err != nil {
			rep.warn(s.log, more.Err, "Fetching more messages failed")
			break
		}
		if len(fresh) == 0 {
			break
		}
	}

	rep.Fetched = len(raws)
	if s.cache != nil {
		if err := s.cache.SaveHistory(rep.ChatID, raws); err != nil {
			rep.warn(s.log, err, "Failed to cache history")
		}
	}
	return msgs, nil
}

// fallback reads the repository, then the raw cache
func (s *Service) fallback(ctx context.Context, rep *Report, since time.Time) []normalize.CanonicalMessage {
	if s.store != nil {
		q := db.MessageQuery{ChatID: rep.ChatID}
		if !since.IsZero() {
			start := since.Unix()
			q.Start = &start
		}
		msgs, err := s.store.GetMessages(q)
		if err != nil {
			rep.warn(s.log, err, "Failed to read stored messages")
		} else if len(msgs) > 0 {
			s.log.Info().Str("chat_id", rep.ChatID).Int("messages", len(msgs)).Msg("Using stored messages")
			rep.Source = SourceStore
			return msgs
		}
	}

	if s.cache != nil {
		raws, err := s.cache.LoadHistory(rep.ChatID, since)
		if err != nil {
			rep.warn(s.log, err, "Failed to read history cache")
		} else if len(raws) > 0 {
			s.log.Info().Str("chat_id", rep.ChatID).Int("records", len(raws)).Msg("Using cached history")
			rep.Source = SourceCache
			rep.Fetched = len(raws)
			return s.normalizeWindow(ctx, rep, raws, since)
		}
	}
	return nil
}

// normalizeWindow normalizes raws, adds to the report stats and drops
// messages older than since. Messages without a timestamp are kept.
func (s *Service) normalizeWindow(ctx context.Context, rep *Report, raws []normalize.RawMessage, since time.Time) []normalize.CanonicalMessage {
	msgs, stats := s.normalizer.NormalizeAll(ctx, raws)
	rep.Stats = addStats(rep.Stats, stats)
	return InWindow(msgs, since)
}

// InWindow keeps messages at or after since. Unresolved timestamps are kept.
func InWindow(msgs []normalize.CanonicalMessage, since time.Time) []normalize.CanonicalMessage {
	if since.IsZero() {
		return msgs
	}
	cutoff := since.Unix()
	out := msgs[:0:0]
	for _, m := range msgs {
		if m.Timestamp == nil || *m.Timestamp >= cutoff {
			out = append(out, m)
		}
	}
	return out
}

func addStats(a, b normalize.Stats) normalize.Stats {
	if a.Rejected == nil {
		a.Rejected = make(map[normalize.Rejection]int)
		a.ByType = make(map[normalize.Kind]int)
		a.Discarded = make(map[string]int)
	}
	a.Total += b.Total
	a.Accepted += b.Accepted
	a.Salvaged += b.Salvaged
	for k, v := range b.Rejected {
		a.Rejected[k] += v
	}
	for k, v := range b.ByType {
		a.ByType[k] += v
	}
	for k, v := range b.Discarded {
		a.Discarded[k] += v
	}
	return a
}

func (s *Service) persist(rep *Report, msgs []normalize.CanonicalMessage) {
	if s.store == nil {
		return
	}
	if rep.Source != SourceStore {
		n, err := s.store.StoreMessages(rep.ChatID, msgs)
		if err != nil {
			rep.warn(s.log, err, "Failed to store messages")
		}
		rep.Stored = n
	}

	res := rep.Summary
	if res.MessageCount == 0 {
		return
	}
	sum := &db.Summary{
		ChatID:       rep.ChatID,
		Text:         res.Text,
		StartTime:    res.Start,
		EndTime:      res.End,
		MessageCount: res.MessageCount,
		Model:        s.cfg.Model,
		Fallback:     res.Fallback,
		FailureKind:  string(res.FailureKind),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.StoreSummary(sum); err != nil {
		rep.warn(s.log, err, "Failed to store summary")
		return
	}
	rep.SummaryID = sum.ID
}

func (s *Service) send(ctx context.Context, rep *Report, enabled bool) {
	if !enabled || s.sender == nil {
		return
	}
	res, err := s.sender.SendMessage(ctx, rep.ChatID, rep.Summary.Text, gateway.PurposeSummary)
	if err != nil {
		rep.warn(s.log, err, "Failed to send summary")
		return
	}
	rep.Sent = res
}

func (s *Service) publish(ctx context.Context, rep *Report) {
	if s.publisher == nil {
		return
	}
	res := rep.Summary
	ev := events.SummaryCreated{
		ChatID:       rep.ChatID,
		SummaryID:    rep.SummaryID,
		Text:         res.Text,
		MessageCount: res.MessageCount,
		StartTime:    res.Start,
		EndTime:      res.End,
		Model:        s.cfg.Model,
		Fallback:     res.Fallback,
		FailureKind:  string(res.FailureKind),
		Source:       string(rep.Source),
	}
	if err := s.publisher.PublishSummary(ctx, ev); err != nil {
		rep.warn(s.log, err, "Failed to publish summary event")
		return
	}
	rep.Published = true
}
