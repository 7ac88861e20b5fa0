package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cross/domain/book"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testTrade(price, size int64, ts time.Time) book.Trade {
	return book.Trade{
		TakerOrderID: 2,
		MakerOrderID: 1,
		Price:        price,
		Size:         size,
		Buyer:        "alice",
		Seller:       "bob",
		Timestamp:    ts,
	}
}

func TestUserRoundTrip(t *testing.T) {
	s := openTestStore(t)

	_, exists, err := s.GetUser("alice")
	require.NoError(t, err)
	assert.False(t, exists)

	rec := UserRecord{Username: "alice", PasswordHash: "deadbeef", RegisteredAt: time.Now()}
	require.NoError(t, s.SaveUser(rec))

	got, exists, err := s.GetUser("alice")
	require.NoError(t, err)
	require.True(t, exists)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "deadbeef", got.PasswordHash)
}

func TestPersistTradesFoldsDailyStats(t *testing.T) {
	s := openTestStore(t)

	day := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	require.NoError(t, s.PersistTrades([]book.Trade{
		testTrade(100_000, 5, day),
		testTrade(110_000, 3, day.Add(time.Hour)),
		testTrade(95_000, 2, day.Add(2*time.Hour)),
	}))

	hist, err := s.PriceHistory("032026")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	d := hist[0]
	assert.Equal(t, "2026-03-10", d.Day)
	assert.Equal(t, int64(100_000), d.Open)
	assert.Equal(t, int64(110_000), d.High)
	assert.Equal(t, int64(95_000), d.Low)
	assert.Equal(t, int64(95_000), d.Close)
	assert.Equal(t, int64(10), d.Volume)
	assert.Equal(t, int64(3), d.Trades)
}

func TestPriceHistorySelectsMonth(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.PersistTrades([]book.Trade{
		testTrade(100_000, 1, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)),
		testTrade(100_000, 1, time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)),
		testTrade(100_000, 1, time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)),
	}))

	march, err := s.PriceHistory("032026")
	require.NoError(t, err)
	assert.Len(t, march, 2)

	april, err := s.PriceHistory("042026")
	require.NoError(t, err)
	assert.Len(t, april, 1)

	_, err = s.PriceHistory("3/2026")
	assert.Error(t, err)
}

func TestOutboxLifecycle(t *testing.T) {
	s := openTestStore(t)

	ts := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.PersistTrades([]book.Trade{
		testTrade(100_000, 1, ts),
		testTrade(101_000, 1, ts),
	}))

	var pending []OutboxRecord
	require.NoError(t, s.ScanPending(func(rec OutboxRecord) error {
		pending = append(pending, rec)
		return nil
	}))
	require.Len(t, pending, 2)
	assert.Equal(t, OutboxNew, pending[0].State)
	assert.NotEmpty(t, pending[0].Payload)

	require.NoError(t, s.MarkSent(pending[0].Seq))
	require.NoError(t, s.MarkAcked(pending[0].Seq))

	pending = nil
	require.NoError(t, s.ScanPending(func(rec OutboxRecord) error {
		pending = append(pending, rec)
		return nil
	}))
	require.Len(t, pending, 1, "acked records are skipped")

	require.NoError(t, s.PurgeAcked())
	pending = nil
	require.NoError(t, s.ScanPending(func(rec OutboxRecord) error {
		pending = append(pending, rec)
		return nil
	}))
	assert.Len(t, pending, 1, "purge must only remove acked records")
}

func TestSequencesSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	ts := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.PersistTrades([]book.Trade{testTrade(100_000, 1, ts)}))
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.PersistTrades([]book.Trade{testTrade(101_000, 1, ts)}))

	var seqs []uint64
	require.NoError(t, s.ScanPending(func(rec OutboxRecord) error {
		seqs = append(seqs, rec.Seq)
		return nil
	}))
	require.Len(t, seqs, 2)
	assert.Greater(t, seqs[1], seqs[0], "appends must resume after the last used sequence")
}

func TestLogOrderUpdate(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.LogOrderUpdate(book.OrderUpdate{
		OrderID: 7, Owner: "alice", Status: book.Filled, Size: 5,
	}))
}
