package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solvaholic/wadigest/internal/normalize"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func ts(v int64) *int64 { return &v }

func msg(id string, at *int64, text string) normalize.CanonicalMessage {
	return normalize.CanonicalMessage{
		ID:          id,
		Sender:      "Alice",
		SenderID:    "111@c.us",
		Text:        text,
		MessageType: normalize.KindText,
		TypeTag:     "textMessage",
		Timestamp:   at,
		Confidence:  normalize.ConfidenceClean,
		Raw:         normalize.RawMessage{"idMessage": id, "textMessage": text},
	}
}

func TestOpenIsReentrant(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, path, db.Path())
}

func TestStoreMessagesIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	chat := "123@g.us"

	batch := []normalize.CanonicalMessage{
		msg("a", ts(200), "second"),
		msg("b", ts(100), "first"),
		msg("c", nil, "unknown time"),
	}
	n, err := db.StoreMessages(chat, batch)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	batch[0].Text = "second, edited"
	_, err = db.StoreMessages(chat, batch)
	require.NoError(t, err)

	got, err := db.GetMessages(MessageQuery{ChatID: chat})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"b", "a", "c"}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, "second, edited", got[1].Text)
	assert.Nil(t, got[2].Timestamp)
	assert.Equal(t, chat, got[0].ChatID)
	assert.Equal(t, normalize.KindText, got[0].MessageType)
	assert.Equal(t, "first", got[0].Raw["textMessage"])
}

func TestStoreMessagesEmpty(t *testing.T) {
	db := openTestDB(t)
	n, err := db.StoreMessages("x@g.us", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGetMessagesWindowAndLimit(t *testing.T) {
	db := openTestDB(t)
	chat := "123@g.us"
	quoted := "original"
	m := msg("q", ts(150), "reply")
	m.QuotedText = &quoted

	_, err := db.StoreMessages(chat, []normalize.CanonicalMessage{
		msg("1", ts(100), "one"),
		m,
		msg("2", ts(200), "two"),
		msg("3", ts(300), "three"),
	})
	require.NoError(t, err)
	_, err = db.StoreMessages("other@g.us", []normalize.CanonicalMessage{msg("9", ts(250), "elsewhere")})
	require.NoError(t, err)

	got, err := db.GetMessages(MessageQuery{ChatID: chat, Start: ts(150), End: ts(250)})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "q", got[0].ID)
	require.NotNil(t, got[0].QuotedText)
	assert.Equal(t, "original", *got[0].QuotedText)
	assert.Equal(t, "2", got[1].ID)

	got, err = db.GetMessages(MessageQuery{ChatID: chat, Limit: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2", got[0].ID)
	assert.Equal(t, "3", got[1].ID)
}

func TestLatestTimestamp(t *testing.T) {
	db := openTestDB(t)

	latest, err := db.LatestTimestamp("123@g.us")
	require.NoError(t, err)
	assert.Nil(t, latest)

	_, err = db.StoreMessages("123@g.us", []normalize.CanonicalMessage{msg("1", ts(100), "a"), msg("2", ts(300), "b"), msg("3", nil, "c")})
	require.NoError(t, err)

	latest, err = db.LatestTimestamp("123@g.us")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, int64(300), *latest)
}

func TestSummaries(t *testing.T) {
	db := openTestDB(t)

	first := &Summary{ChatID: "123@g.us", Text: "old", MessageCount: 5, Model: "gpt-4o-mini", CreatedAt: time.Now().UTC().Add(-time.Hour)}
	require.NoError(t, db.StoreSummary(first))
	assert.NotZero(t, first.ID)

	second := &Summary{ChatID: "123@g.us", Text: "new", StartTime: ts(100), EndTime: ts(200), MessageCount: 7, Fallback: true, FailureKind: "rate_limit"}
	require.NoError(t, db.StoreSummary(second))
	require.NoError(t, db.StoreSummary(&Summary{ChatID: "other@g.us", Text: "x", MessageCount: 1}))

	got, err := db.RecentSummaries("123@g.us", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0].Text)
	assert.True(t, got[0].Fallback)
	assert.Equal(t, "rate_limit", got[0].FailureKind)
	assert.Equal(t, int64(100), *got[0].StartTime)
	assert.Equal(t, "old", got[1].Text)
	assert.Nil(t, got[1].StartTime)
	assert.Equal(t, "gpt-4o-mini", got[1].Model)

	all, err := db.RecentSummaries("", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestGroups(t *testing.T) {
	db := openTestDB(t)
	owner := "972500000000@c.us"

	require.NoError(t, db.SaveGroup(&Group{ID: "2@g.us", Name: "Beta", Owner: &owner, Participants: 12}))
	require.NoError(t, db.SaveGroup(&Group{ID: "1@g.us", Name: "Alpha"}))
	// a contacts refresh carries no owner or size
	require.NoError(t, db.SaveGroup(&Group{ID: "2@g.us", Name: "Beta renamed"}))

	g, err := db.GetGroup("2@g.us")
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Equal(t, "Beta renamed", g.Name)
	require.NotNil(t, g.Owner)
	assert.Equal(t, owner, *g.Owner)
	assert.Equal(t, 12, g.Participants)

	missing, err := db.GetGroup("nope@g.us")
	require.NoError(t, err)
	assert.Nil(t, missing)

	groups, err := db.ListGroups()
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "Alpha", groups[0].Name)
}

func TestRateLimits(t *testing.T) {
	db := openTestDB(t)
	db.SetRateLimitPolicy(RateLimitPolicy{Window: time.Hour, MaxRequests: 3, SafetyLimit: 2})
	instance := "1101"

	for i := 0; i < 2; i++ {
		ok, err := db.CheckRateLimit("greenapi", &instance, "getChatHistory")
		require.NoError(t, err)
		require.True(t, ok, "call %d", i)
		require.NoError(t, db.RecordRequest("greenapi", &instance, "getChatHistory"))
	}

	ok, err := db.CheckRateLimit("greenapi", &instance, "getChatHistory")
	require.NoError(t, err)
	assert.False(t, ok)

	// other endpoints are tracked separately
	ok, err = db.CheckRateLimit("greenapi", &instance, "sendMessage")
	require.NoError(t, err)
	assert.True(t, ok)

	rl, err := db.GetRateLimitStatus("greenapi", &instance, "getChatHistory")
	require.NoError(t, err)
	require.NotNil(t, rl)
	assert.Equal(t, 2, rl.RequestsMade)
	assert.Equal(t, 3600, rl.WindowDurationSeconds)

	all, err := db.RateLimits()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRateLimitWindowExpiry(t *testing.T) {
	db := openTestDB(t)
	instance := "1101"
	require.NoError(t, db.InitRateLimit("greenapi", &instance, "getContacts", 1, 1, 1))
	require.NoError(t, db.RecordRequest("greenapi", &instance, "getContacts"))

	_, err := db.Exec(`UPDATE rate_limits SET window_start = ?`, time.Now().UTC().Add(-time.Minute))
	require.NoError(t, err)

	ok, err := db.CheckRateLimit("greenapi", &instance, "getContacts")
	require.NoError(t, err)
	assert.True(t, ok)

	rl, err := db.GetRateLimitStatus("greenapi", &instance, "getContacts")
	require.NoError(t, err)
	assert.Zero(t, rl.RequestsMade)
}

func TestStats(t *testing.T) {
	db := openTestDB(t)
	_, err := db.StoreMessages("1@g.us", []normalize.CanonicalMessage{msg("a", ts(1700000000), "x"), msg("b", ts(1700000100), "y")})
	require.NoError(t, err)
	_, err = db.StoreMessages("2@g.us", []normalize.CanonicalMessage{msg("a", nil, "z")})
	require.NoError(t, err)
	require.NoError(t, db.StoreSummary(&Summary{ChatID: "1@g.us", Text: "s", MessageCount: 2}))
	require.NoError(t, db.SaveGroup(&Group{ID: "1@g.us", Name: "One"}))

	stats, err := db.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.MessageCount)
	assert.Equal(t, int64(2), stats.ChatCount)
	assert.Equal(t, int64(1), stats.SummaryCount)
	assert.Equal(t, int64(1), stats.GroupCount)
	require.NotNil(t, stats.EarliestMessage)
	assert.Equal(t, int64(1700000000), stats.EarliestMessage.Unix())
	assert.Equal(t, int64(1700000100), stats.LatestMessage.Unix())
}
