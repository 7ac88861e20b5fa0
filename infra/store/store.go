package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"

	"cross/domain/book"
)

// Store is the venue's durable side: users, the trade log, the per-order
// audit trail, daily price statistics, and the notification outbox drained
// by the broadcaster. One pebble DB, partitioned by key prefix:
//
//	user/<name>            registered users
//	trade/<seq>            executed trades, append only
//	audit/<seq>            order state changes, append only
//	stats/<yyyy-mm-dd>     daily OHLC aggregates
//	outbox/<seq>           pending broadcast records with delivery state
//
// Resting orders are deliberately NOT persisted; a restart loses the book.
type Store struct {
	db *pebble.DB

	tradeSeq  atomic.Uint64
	auditSeq  atomic.Uint64
	outboxSeq atomic.Uint64
}

// -------------------- Records --------------------

type OutboxState uint8

const (
	OutboxNew OutboxState = iota
	OutboxSent
	OutboxAcked
)

// OutboxRecord wraps one broadcast payload with its delivery state.
// binary header: [state:1][attempts:4][lastAttempt:8], payload follows.
type OutboxRecord struct {
	Seq         uint64
	State       OutboxState
	Attempts    uint32
	LastAttempt int64
	Payload     []byte
}

const outboxHeaderLen = 1 + 4 + 8

func encodeOutbox(r OutboxRecord) []byte {
	buf := make([]byte, outboxHeaderLen+len(r.Payload))
	buf[0] = byte(r.State)
	binary.BigEndian.PutUint32(buf[1:5], r.Attempts)
	binary.BigEndian.PutUint64(buf[5:13], uint64(r.LastAttempt))
	copy(buf[outboxHeaderLen:], r.Payload)
	return buf
}

func decodeOutbox(seq uint64, b []byte) (OutboxRecord, error) {
	if len(b) < outboxHeaderLen {
		return OutboxRecord{}, errors.New("outbox record too short")
	}
	return OutboxRecord{
		Seq:         seq,
		State:       OutboxState(b[0]),
		Attempts:    binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Payload:     append([]byte(nil), b[outboxHeaderLen:]...),
	}, nil
}

// UserRecord is a registered participant.
type UserRecord struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"passwordHash"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// DailyStats aggregates one trading day.
type DailyStats struct {
	Day    string `json:"day"` // yyyy-mm-dd
	Open   int64  `json:"open"`
	High   int64  `json:"high"`
	Low    int64  `json:"low"`
	Close  int64  `json:"close"`
	Volume int64  `json:"volume"`
	Trades int64  `json:"trades"`
}

// -------------------- Open / Close --------------------

func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	s := &Store{db: db}
	s.tradeSeq.Store(s.lastSeq("trade/"))
	s.auditSeq.Store(s.lastSeq("audit/"))
	s.outboxSeq.Store(s.lastSeq("outbox/"))
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// lastSeq finds the highest used sequence under a prefix so appends resume
// after a restart.
func (s *Store) lastSeq(prefix string) uint64 {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: []byte(prefix + "~"),
	})
	if err != nil {
		return 0
	}
	defer iter.Close()
	if !iter.Last() {
		return 0
	}
	seq, err := parseSeqKey(prefix, iter.Key())
	if err != nil {
		return 0
	}
	return seq
}

// -------------------- Trades --------------------

// PersistTrades appends a completed batch to the trade log, refreshes the
// daily stats, and queues one outbox record per trade for the broadcaster.
// The whole batch commits atomically.
func (s *Store) PersistTrades(trades []book.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	// Indexed so daily stats folded earlier in the batch read back correctly.
	batch := s.db.NewIndexedBatch()
	defer batch.Close()

	for _, t := range trades {
		payload, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("encode trade: %w", err)
		}
		tseq := s.tradeSeq.Add(1)
		if err := batch.Set(seqKey("trade/", tseq), payload, nil); err != nil {
			return err
		}
		oseq := s.outboxSeq.Add(1)
		rec := OutboxRecord{State: OutboxNew, Payload: payload}
		if err := batch.Set(seqKey("outbox/", oseq), encodeOutbox(rec), nil); err != nil {
			return err
		}
		if err := s.foldDailyStats(batch, t); err != nil {
			return err
		}
	}
	return batch.Commit(pebble.Sync)
}

func (s *Store) foldDailyStats(batch *pebble.Batch, t book.Trade) error {
	day := t.Timestamp.UTC().Format("2006-01-02")
	key := []byte("stats/" + day)

	stats := DailyStats{Day: day, Open: t.Price, High: t.Price, Low: t.Price}
	// Read through the batch first so multiple trades of one commit fold.
	if val, closer, err := batch.Get(key); err == nil {
		err = json.Unmarshal(val, &stats)
		closer.Close()
		if err != nil {
			return fmt.Errorf("decode daily stats: %w", err)
		}
	} else if val, closer, err := s.db.Get(key); err == nil {
		err = json.Unmarshal(val, &stats)
		closer.Close()
		if err != nil {
			return fmt.Errorf("decode daily stats: %w", err)
		}
	}

	if t.Price > stats.High {
		stats.High = t.Price
	}
	if t.Price < stats.Low {
		stats.Low = t.Price
	}
	stats.Close = t.Price
	stats.Volume += t.Size
	stats.Trades++

	out, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return batch.Set(key, out, nil)
}

// PriceHistory returns the daily aggregates for a month given as MMYYYY,
// the request format the venue protocol uses.
func (s *Store) PriceHistory(month string) ([]DailyStats, error) {
	if len(month) != 6 {
		return nil, errors.New("month must be MMYYYY")
	}
	prefix := "stats/" + month[2:6] + "-" + month[0:2]
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: []byte(prefix + "~"),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []DailyStats
	for iter.First(); iter.Valid(); iter.Next() {
		var d DailyStats
		if err := json.Unmarshal(iter.Value(), &d); err != nil {
			return nil, fmt.Errorf("decode daily stats: %w", err)
		}
		out = append(out, d)
	}
	return out, iter.Error()
}

// -------------------- Order audit --------------------

// LogOrderUpdate appends one order state change to the audit trail.
func (s *Store) LogOrderUpdate(u book.OrderUpdate) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode order update: %w", err)
	}
	seq := s.auditSeq.Add(1)
	return s.db.Set(seqKey("audit/", seq), payload, pebble.Sync)
}

// -------------------- Users --------------------

func (s *Store) SaveUser(u UserRecord) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return s.db.Set([]byte("user/"+u.Username), payload, pebble.Sync)
}

func (s *Store) GetUser(username string) (UserRecord, bool, error) {
	val, closer, err := s.db.Get([]byte("user/" + username))
	if errors.Is(err, pebble.ErrNotFound) {
		return UserRecord{}, false, nil
	}
	if err != nil {
		return UserRecord{}, false, err
	}
	defer closer.Close()
	var u UserRecord
	if err := json.Unmarshal(val, &u); err != nil {
		return UserRecord{}, false, fmt.Errorf("decode user: %w", err)
	}
	return u, true, nil
}

// -------------------- Outbox --------------------

// ScanPending visits outbox records not yet acked, in sequence order.
func (s *Store) ScanPending(fn func(rec OutboxRecord) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("outbox/"),
		UpperBound: []byte("outbox/~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		seq, err := parseSeqKey("outbox/", iter.Key())
		if err != nil {
			return err
		}
		rec, err := decodeOutbox(seq, iter.Value())
		if err != nil {
			return err
		}
		if rec.State == OutboxAcked {
			continue
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return iter.Error()
}

// MarkSent flips an outbox record to SENT and bumps its attempt count.
func (s *Store) MarkSent(seq uint64) error {
	return s.setOutboxState(seq, OutboxSent)
}

// MarkAcked flips an outbox record to ACKED; acked records are skipped by
// ScanPending and reclaimed by PurgeAcked.
func (s *Store) MarkAcked(seq uint64) error {
	return s.setOutboxState(seq, OutboxAcked)
}

func (s *Store) setOutboxState(seq uint64, state OutboxState) error {
	key := seqKey("outbox/", seq)
	val, closer, err := s.db.Get(key)
	if err != nil {
		return err
	}
	rec, err := decodeOutbox(seq, val)
	closer.Close()
	if err != nil {
		return err
	}
	rec.State = state
	rec.Attempts++
	rec.LastAttempt = time.Now().UnixNano()
	return s.db.Set(key, encodeOutbox(rec), pebble.Sync)
}

// PurgeAcked deletes acked outbox records.
func (s *Store) PurgeAcked() error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("outbox/"),
		UpperBound: []byte("outbox/~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	batch := s.db.NewBatch()
	defer batch.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		if len(iter.Value()) >= 1 && OutboxState(iter.Value()[0]) == OutboxAcked {
			key := append([]byte(nil), iter.Key()...)
			if err := batch.Delete(key, nil); err != nil {
				return err
			}
		}
	}
	if err := iter.Error(); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

// -------------------- Keys --------------------

func seqKey(prefix string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefix, seq))
}

func parseSeqKey(prefix string, key []byte) (uint64, error) {
	var seq uint64
	_, err := fmt.Sscanf(string(key[len(prefix):]), "%d", &seq)
	return seq, err
}
