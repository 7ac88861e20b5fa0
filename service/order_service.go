package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"cross/domain/book"
	"cross/infra/sequence"
	"cross/metrics"
)

// Validation failures, rejected before any book mutation.
var (
	ErrInvalidSize  = errors.New("size must be a positive integer")
	ErrInvalidPrice = errors.New("price must be a positive integer")
	ErrInvalidSide  = errors.New("unknown order side")
	ErrInvalidOwner = errors.New("owner must not be empty")
)

// TradeSink durably records completed trade batches.
type TradeSink interface {
	PersistTrades(trades []book.Trade) error
}

// OrderUpdateSink records per-order state changes for audit.
type OrderUpdateSink interface {
	LogOrderUpdate(u book.OrderUpdate) error
}

// TradeNotifier tells both counterparties about one execution.
type TradeNotifier interface {
	NotifyTrade(user string, t book.Trade) error
}

// TradeFeed streams completed batches to external consumers.
type TradeFeed interface {
	PublishTrades(ctx context.Context, trades []book.Trade) error
}

// Sinks groups the engine's outbound collaborators. Any of them may be nil.
// Delivery is best effort: a sink failure is logged and never turns a
// completed match into a reported error.
type Sinks struct {
	Trades   TradeSink
	Updates  OrderUpdateSink
	Notifier TradeNotifier
	Feed     TradeFeed
}

const feedPublishTimeout = 2 * time.Second

/*
OrderService is the only write entry point into the engine.

Every mutating operation takes the book mutex for its full duration,
cascades included, so concurrent callers observe the book as a serial
sequence of whole operations. The event batch an operation produced is
dispatched to the sinks only after the mutex is released.
*/
type OrderService struct {
	mu    sync.Mutex
	book  *book.Book
	seq   *sequence.Sequencer
	sinks Sinks
	met   *metrics.Metrics
	log   *zap.Logger
}

func NewOrderService(b *book.Book, seq *sequence.Sequencer, sinks Sinks, met *metrics.Metrics, log *zap.Logger) *OrderService {
	if log == nil {
		log = zap.NewNop()
	}
	return &OrderService{book: b, seq: seq, sinks: sinks, met: met, log: log}
}

//
// ──────────────────────────────────────────────────────────
// Commands
// ──────────────────────────────────────────────────────────
//

// SubmitLimit rests a limit order and runs the crossing pass. The returned
// id is assigned before the book is touched and is never reused.
func (s *OrderService) SubmitLimit(owner string, side book.Side, size, price int64) (uint64, error) {
	if err := validate(owner, side, size, price); err != nil {
		s.met.OrderRejected("validation")
		return 0, err
	}
	o := &book.Order{
		ID:        s.seq.Next(),
		Owner:     owner,
		Side:      side,
		Type:      book.Limit,
		Price:     price,
		Size:      size,
		Remaining: size,
	}

	s.mu.Lock()
	ev := s.book.InsertLimit(o)
	s.mu.Unlock()

	s.met.OrderSubmitted("limit", side.String())
	s.dispatch(ev)
	return o.ID, nil
}

// SubmitMarket executes a market order all-or-nothing. On
// book.ErrInsufficientLiquidity the book is unchanged; the consumed id is
// still returned so the rejection is addressable.
func (s *OrderService) SubmitMarket(owner string, side book.Side, size int64) (uint64, error) {
	if err := validate(owner, side, size, 1); err != nil {
		s.met.OrderRejected("validation")
		return 0, err
	}
	o := &book.Order{
		ID:        s.seq.Next(),
		Owner:     owner,
		Side:      side,
		Type:      book.Market,
		Size:      size,
		Remaining: size,
	}

	s.mu.Lock()
	ev, err := s.book.ExecuteMarket(o)
	s.mu.Unlock()

	if err != nil {
		s.met.OrderRejected("liquidity")
		return o.ID, err
	}
	s.met.OrderSubmitted("market", side.String())
	s.dispatch(ev)
	return o.ID, nil
}

// SubmitStop rests a stop order; it is always accepted, though it may
// trigger (and execute or be dropped) before this call returns.
func (s *OrderService) SubmitStop(owner string, side book.Side, size, stopPrice int64) (uint64, error) {
	if err := validate(owner, side, size, stopPrice); err != nil {
		s.met.OrderRejected("validation")
		return 0, err
	}
	o := &book.Order{
		ID:        s.seq.Next(),
		Owner:     owner,
		Side:      side,
		Type:      book.Stop,
		StopPrice: stopPrice,
		Size:      size,
		Remaining: size,
	}

	s.mu.Lock()
	ev := s.book.InsertStop(o)
	s.mu.Unlock()

	s.met.OrderSubmitted("stop", side.String())
	s.dispatch(ev)
	return o.ID, nil
}

// Cancel removes a resting order owned by owner. Returns
// book.ErrOrderNotFound or book.ErrNotOwner without touching the book.
func (s *OrderService) Cancel(id uint64, owner string) error {
	if owner == "" {
		return ErrInvalidOwner
	}

	s.mu.Lock()
	ev, err := s.book.Cancel(id, owner)
	s.mu.Unlock()

	if err != nil {
		return err
	}
	s.dispatch(ev)
	return nil
}

//
// ──────────────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────────────
//

func (s *OrderService) Depth() (bids, asks int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book.Depth()
}

func (s *OrderService) Spread() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book.Spread()
}

func (s *OrderService) MarketPrice() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book.MarketPrice()
}

//
// ──────────────────────────────────────────────────────────
// Internals
// ──────────────────────────────────────────────────────────
//

func validate(owner string, side book.Side, size, price int64) error {
	if owner == "" {
		return ErrInvalidOwner
	}
	if side != book.Bid && side != book.Ask {
		return ErrInvalidSide
	}
	if size <= 0 {
		return ErrInvalidSize
	}
	if price <= 0 {
		return ErrInvalidPrice
	}
	return nil
}

// dispatch hands a finalized event batch to the sinks. Runs outside the
// book mutex; every failure is logged and swallowed.
func (s *OrderService) dispatch(ev *book.Events) {
	if ev == nil {
		return
	}
	if ev.Exhausted {
		s.log.Error("matching iteration guard tripped; book state suspect",
			zap.Int("trades", len(ev.Trades)))
	}

	var volume int64
	for _, t := range ev.Trades {
		volume += t.Size
	}
	s.met.TradesExecuted(len(ev.Trades), volume)
	s.met.SetMarketPrice(s.MarketPrice())
	bids, asks := s.Depth()
	s.met.SetBookDepth(bids, asks)

	if len(ev.Trades) > 0 {
		if s.sinks.Trades != nil {
			if err := s.sinks.Trades.PersistTrades(ev.Trades); err != nil {
				s.log.Error("trade sink failed", zap.Error(err))
			}
		}
		if s.sinks.Notifier != nil {
			for _, t := range ev.Trades {
				if err := s.sinks.Notifier.NotifyTrade(t.Buyer, t); err != nil {
					s.log.Warn("buyer notification failed",
						zap.String("user", t.Buyer), zap.Error(err))
				}
				if err := s.sinks.Notifier.NotifyTrade(t.Seller, t); err != nil {
					s.log.Warn("seller notification failed",
						zap.String("user", t.Seller), zap.Error(err))
				}
			}
		}
		if s.sinks.Feed != nil {
			ctx, cancel := context.WithTimeout(context.Background(), feedPublishTimeout)
			if err := s.sinks.Feed.PublishTrades(ctx, ev.Trades); err != nil {
				s.log.Warn("trade feed publish failed", zap.Error(err))
			}
			cancel()
		}
	}
	if s.sinks.Updates != nil {
		for _, u := range ev.Updates {
			if err := s.sinks.Updates.LogOrderUpdate(u); err != nil {
				s.log.Warn("order audit sink failed",
					zap.Uint64("order_id", u.OrderID), zap.Error(err))
			}
		}
	}
}
