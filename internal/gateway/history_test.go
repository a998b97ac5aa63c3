package gateway

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solvaholic/wadigest/internal/normalize"
)

// chatArchive is a fake gateway holding ids newest first. A request returns
// up to Count messages older than LastMessageID (or the newest ones). With
// ignoreCursor it always serves from the newest message.
type chatArchive struct {
	ids          []string
	ignoreCursor bool
	failAfter    int
	requests     []HistoryRequest
}

func (f *chatArchive) FetchHistory(ctx context.Context, req HistoryRequest) ([]normalize.RawMessage, error) {
	f.requests = append(f.requests, req)
	if f.failAfter > 0 && len(f.requests) > f.failAfter {
		return nil, errors.New("gateway unreachable")
	}

	start := 0
	if req.LastMessageID != "" && !f.ignoreCursor {
		for i, id := range f.ids {
			if id == req.LastMessageID {
				start = i + 1
				break
			}
		}
	}
	end := min(start+req.Count, len(f.ids))

	var page []normalize.RawMessage
	for _, id := range f.ids[start:end] {
		page = append(page, normalize.RawMessage{"idMessage": id})
	}
	return page, nil
}

func archive(n int) *chatArchive {
	f := &chatArchive{}
	for i := n; i > 0; i-- {
		f.ids = append(f.ids, fmt.Sprintf("m%03d", i))
	}
	return f
}

func ids(msgs []normalize.RawMessage) []string {
	var out []string
	for _, m := range msgs {
		out = append(out, m.MessageID())
	}
	return out
}

type pageFetcher struct {
	pages    map[string][]string
	requests []HistoryRequest
}

func (p *pageFetcher) FetchHistory(ctx context.Context, req HistoryRequest) ([]normalize.RawMessage, error) {
	p.requests = append(p.requests, req)
	var page []normalize.RawMessage
	for _, id := range p.pages[req.LastMessageID] {
		page = append(page, normalize.RawMessage{"idMessage": id})
	}
	return page, nil
}

func TestPaginateMergesOverlappingPages(t *testing.T) {
	f := &pageFetcher{pages: map[string][]string{
		"3": {"3", "4", "5"},
		"5": {"5"},
	}}
	a := NewAssembler(f, zerolog.Nop())

	h := History{Messages: []normalize.RawMessage{{"idMessage": "1"}, {"idMessage": "2"}, {"idMessage": "3"}}}
	a.paginate(context.Background(), &h, "1@g.us", 3, 100)

	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, ids(h.Messages))
	assert.Equal(t, 2, h.Rounds)
	assert.Equal(t, "3", f.requests[0].LastMessageID)
	assert.Equal(t, 3, f.requests[0].Count)
	assert.Equal(t, 6, f.requests[1].Count)
	assert.NoError(t, h.Err)
}

func TestAssembleHistoryReachesMinimum(t *testing.T) {
	f := archive(300)
	a := NewAssembler(f, zerolog.Nop())

	h := a.AssembleHistory(context.Background(), "1@g.us", 100, 250)

	require.NoError(t, h.Err)
	assert.GreaterOrEqual(t, len(h.Messages), 250)
	assert.Len(t, normalize.Dedupe(nil, h.Messages), len(h.Messages))
	assert.Equal(t, 100, f.requests[0].Count)
	assert.Equal(t, "m201", f.requests[1].LastMessageID)
	assert.Equal(t, 100, f.requests[1].Count)
	assert.Equal(t, 200, f.requests[2].Count)
}

func TestAssembleHistoryLargeMinimumDoublesFirstRequest(t *testing.T) {
	f := archive(2000)
	a := NewAssembler(f, zerolog.Nop())

	h := a.AssembleHistory(context.Background(), "1@g.us", 800, 600)

	require.NoError(t, h.Err)
	assert.Len(t, h.Messages, 1200)
	assert.Equal(t, 1200, f.requests[0].Count)
	assert.Equal(t, 1, h.Requests)
}

func TestAssembleHistoryExhaustsSmallChat(t *testing.T) {
	f := archive(12)
	f.ignoreCursor = true
	a := NewAssembler(f, zerolog.Nop())

	h := a.AssembleHistory(context.Background(), "1@g.us", 800, 1000)

	require.NoError(t, h.Err)
	assert.Len(t, h.Messages, 12)
	assert.Len(t, normalize.Dedupe(nil, h.Messages), 12)
	assert.Equal(t, 2000, f.requests[0].Count)
}

func TestAssembleHistoryRoundBudget(t *testing.T) {
	f := archive(10000)
	a := NewAssembler(f, zerolog.Nop())

	// pages of 20, 20, 40, 60, 80, 100 cannot reach 500
	h := a.AssembleHistory(context.Background(), "1@g.us", 20, 500)

	require.NoError(t, h.Err)
	assert.Equal(t, MaxPaginationRounds, h.Rounds)
	assert.Equal(t, MaxPaginationRounds+1, h.Requests)
	assert.Len(t, h.Messages, 20+20+40+60+80+100)
}

func TestAssembleHistoryTinyChatAlternativeFetch(t *testing.T) {
	f := &pageFetcher{pages: map[string][]string{"": {"a", "b"}}}
	a := NewAssembler(f, zerolog.Nop())

	h := a.AssembleHistory(context.Background(), "1@g.us", 100, 200)

	assert.Equal(t, []string{"a", "b"}, ids(h.Messages))
	require.Len(t, f.requests, 2)
	assert.Equal(t, 600, f.requests[1].Count)
}

func TestAssembleHistoryKeepsPartialResultOnError(t *testing.T) {
	f := archive(500)
	f.failAfter = 2
	a := NewAssembler(f, zerolog.Nop())

	h := a.AssembleHistory(context.Background(), "1@g.us", 50, 400)

	assert.Error(t, h.Err)
	assert.Len(t, h.Messages, 100)
	assert.Equal(t, 3, h.Requests)
}

func TestAssembleHistoryInitialFailure(t *testing.T) {
	a := NewAssembler(failingFetcher{}, zerolog.Nop())

	h := a.AssembleHistory(context.Background(), "1@g.us", 50, 10)
	assert.Error(t, h.Err)
	assert.Empty(t, h.Messages)
}

type failingFetcher struct{}

func (failingFetcher) FetchHistory(ctx context.Context, req HistoryRequest) ([]normalize.RawMessage, error) {
	return nil, errors.New("down")
}
