package digest

import (
	"context"
	"fmt"

	"github.com/solvaholic/wadigest/internal/normalize"
)

// FetchReport describes one Fetch
type FetchReport struct {
	ChatID   string          `json:"chat_id"`
	Fetched  int             `json:"fetched"`
	Stats    normalize.Stats `json:"normalize"`
	Latest   *int64          `json:"previous_latest,omitempty"`
	New      int             `json:"new"`
	Stored   int             `json:"stored"`
	Warnings []string        `json:"warnings,omitempty"`
}

// Fetch pulls history for chatID and stores the messages newer than the
// newest one already in the repository. Messages without a resolved
// timestamp are stored only when the repository has none for the chat.
func (s *Service) Fetch(ctx context.Context, chatID string) (*FetchReport, error) {
	if s.store == nil {
		return nil, fmt.Errorf("fetch requires a message store")
	}
	rep := &FetchReport{ChatID: chatID}

	latest, err := s.store.LatestTimestamp(chatID)
	if err != nil {
		return rep, fmt.Errorf("failed to read latest stored message: %w", err)
	}
	rep.Latest = latest

	h := s.history.AssembleHistory(ctx, chatID, s.cfg.TargetCount, s.cfg.MinCount)
	if h.Err != nil && len(h.Messages) == 0 {
		return rep, fmt.Errorf("failed to fetch history: %w", h.Err)
	}
	if h.Err != nil {
		s.log.Warn().Err(h.Err).Str("chat_id", chatID).Msg("History assembly stopped early")
		rep.Warnings = append(rep.Warnings, h.Err.Error())
	}
	rep.Fetched = len(h.Messages)

	if s.cache != nil {
		if err := s.cache.SaveHistory(chatID, h.Messages); err != nil {
			s.log.Warn().Err(err).Str("chat_id", chatID).Msg("Failed to cache history")
			rep.Warnings = append(rep.Warnings, err.Error())
		}
	}

	msgs, stats := s.normalizer.NormalizeAll(ctx, h.Messages)
	rep.Stats = stats

	fresh := newerThan(msgs, latest)
	rep.New = len(fresh)
	if len(fresh) == 0 {
		s.log.Info().Str("chat_id", chatID).Msg("No new messages")
		return rep, nil
	}

	n, err := s.store.StoreMessages(chatID, normalize.SortByTime(fresh))
	if err != nil {
		return rep, fmt.Errorf("failed to store messages: %w", err)
	}
	rep.Stored = n
	s.log.Info().Str("chat_id", chatID).Int("stored", n).Msg("Stored new messages")
	return rep, nil
}

func newerThan(msgs []normalize.CanonicalMessage, latest *int64) []normalize.CanonicalMessage {
	if latest == nil {
		return msgs
	}
	var out []normalize.CanonicalMessage
	for _, m := range msgs {
		if m.Timestamp != nil && *m.Timestamp > *latest {
			out = append(out, m)
		}
	}
	return out
}
