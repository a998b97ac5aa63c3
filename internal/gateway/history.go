package gateway

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/solvaholic/wadigest/internal/normalize"
)

const (
	// MaxPaginationRounds bounds the extra fetches of AssembleHistory
	MaxPaginationRounds = 5
	// SmallChatThreshold is the page size below which a chat is treated as
	// small or new and fetched once more with a larger count
	SmallChatThreshold = 10
	// largeMinCount is the minCount above which the first request asks for
	// twice the minimum
	largeMinCount = 500
	// defaultHistoryCount is used when no target count is given
	defaultHistoryCount = 100
)

// HistoryRequest is one getChatHistory call. LastMessageID is the
// pagination cursor, the oldest message already retrieved.
type HistoryRequest struct {
	ChatID        string `json:"chatId"`
	Count         int    `json:"count"`
	LastMessageID string `json:"lastMessageId,omitempty"`
}

// HistoryFetcher fetches one page of chat history. *Client implements it.
type HistoryFetcher interface {
	FetchHistory(ctx context.Context, req HistoryRequest) ([]normalize.RawMessage, error)
}

// FetchHistory issues one getChatHistory request. The gateway returns a JSON
// array of records, newest first; anything else is an empty page.
func (c *Client) FetchHistory(ctx context.Context, req HistoryRequest) ([]normalize.RawMessage, error) {
	var body any
	if err := c.call(ctx, http.MethodPost, "getChatHistory", req, &body); err != nil {
		return nil, err
	}

	var items []any
	switch v := body.(type) {
	case []any:
		items = v
	case map[string]any:
		// some deployments wrap the page
		items, _ = v["messages"].([]any)
	}

	page := make([]normalize.RawMessage, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			page = append(page, normalize.RawMessage(m))
		}
	}
	c.log.Debug().Str("chat_id", req.ChatID).Int("count", req.Count).Int("received", len(page)).Msg("Fetched chat history")
	return page, nil
}

// History is the result of AssembleHistory. Err holds the failure that
// stopped assembly early, if any; Messages is valid either way.
type History struct {
	Messages []normalize.RawMessage
	Requests int
	Rounds   int
	Err      error
}

// Assembler accumulates enough unique history to reach a minimum count
type Assembler struct {
	fetcher   HistoryFetcher
	maxRounds int
	log       zerolog.Logger
}

// NewAssembler creates an Assembler over fetcher
func NewAssembler(fetcher HistoryFetcher, log zerolog.Logger) *Assembler {
	return &Assembler{fetcher: fetcher, maxRounds: MaxPaginationRounds, log: log}
}

// Assembler returns an Assembler over this client
func (c *Client) Assembler() *Assembler {
	return NewAssembler(c, c.log)
}

// AssembleHistory fetches up to targetCount messages and keeps paginating
// until minCount unique messages are collected, a round brings nothing new
// or the round budget is spent. It never fails: a gateway error stops
// assembly and is reported in History.Err next to what was collected.
func (a *Assembler) AssembleHistory(ctx context.Context, chatID string, targetCount, minCount int) History {
	count := targetCount
	if minCount > largeMinCount {
		count = max(targetCount, 2*minCount)
	}
	if count <= 0 {
		count = defaultHistoryCount
	}

	var h History
	page, err := a.fetch(ctx, &h, HistoryRequest{ChatID: chatID, Count: count})
	if err != nil {
		h.Err = err
		a.log.Warn().Err(err).Str("chat_id", chatID).Msg("Initial history fetch failed")
		return h
	}
	h.Messages = normalize.Dedupe(nil, page)

	if len(h.Messages) >= minCount {
		return h
	}

	if len(h.Messages) < SmallChatThreshold {
		alt := max(500, 3*minCount)
		a.log.Info().Str("chat_id", chatID).Int("received", len(h.Messages)).Int("count", alt).Msg("Few messages returned, retrying with a larger count")
		page, err := a.fetch(ctx, &h, HistoryRequest{ChatID: chatID, Count: alt})
		if err != nil {
			h.Err = err
			a.log.Warn().Err(err).Str("chat_id", chatID).Msg("Alternative history fetch failed")
			return h
		}
		if uniq := normalize.Dedupe(nil, page); len(uniq) > len(h.Messages) {
			h.Messages = uniq
		}
		return h
	}

	a.paginate(ctx, &h, chatID, count, minCount)
	a.log.Info().
		Str("chat_id", chatID).
		Int("messages", len(h.Messages)).
		Int("rounds", h.Rounds).
		Int("min_count", minCount).
		Msg("Assembled history")
	return h
}

// paginate requests older pages using the last collected message as the
// cursor and merges unseen ids into h
func (a *Assembler) paginate(ctx context.Context, h *History, chatID string, count, minCount int) {
	for round := 0; round < a.maxRounds && len(h.Messages) < minCount; round++ {
		cursor := ""
		if n := len(h.Messages); n > 0 {
			cursor = h.Messages[n-1].MessageID()
		}

		req := HistoryRequest{ChatID: chatID, Count: count * (round + 1), LastMessageID: cursor}
		page, err := a.fetch(ctx, h, req)
		h.Rounds++
		if err != nil {
			h.Err = err
			a.log.Warn().Err(err).Str("chat_id", chatID).Int("round", round+1).Msg("Pagination stopped by gateway error")
			return
		}

		fresh := normalize.Dedupe(h.Messages, page)
		a.log.Debug().Str("chat_id", chatID).Int("round", round+1).Int("new", len(fresh)).Msg("Pagination round")
		if len(fresh) == 0 {
			return
		}
		h.Messages = append(h.Messages, fresh...)
	}
}

func (a *Assembler) fetch(ctx context.Context, h *History, req HistoryRequest) ([]normalize.RawMessage, error) {
	h.Requests++
	return a.fetcher.FetchHistory(ctx, req)
}
