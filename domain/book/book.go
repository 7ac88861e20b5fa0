package book

import "errors"

var (
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrOrderNotFound         = errors.New("order does not exist or is already finalized")
	ErrNotOwner              = errors.New("order belongs to a different user")
)

// Book holds the four order pools for the single traded instrument plus the
// market price that gates stop activation. It is NOT safe for concurrent
// use; every caller goes through the service mutex.
type Book struct {
	bids     *rbTree // resting limit buys, best = max
	asks     *rbTree // resting limit sells, best = min
	bidStops *rbTree // stop buys keyed by stop price
	askStops *rbTree // stop sells keyed by stop price

	// marketPrice is floor((bestBid+bestAsk)/2) as of the last trade
	// batch. 0 means undefined: no stop evaluation happens until both
	// sides have been populated at least once.
	marketPrice int64

	index map[uint64]*Order // resting orders only, all four pools
}

func New() *Book {
	return &Book{
		bids:     newRBTree(),
		asks:     newRBTree(),
		bidStops: newRBTree(),
		askStops: newRBTree(),
		index:    make(map[uint64]*Order),
	}
}

// BestBid returns the highest-priority resting bid limit order, or nil.
func (b *Book) BestBid() *Order {
	lvl := b.bids.maxLevel()
	if lvl == nil {
		return nil
	}
	return lvl.head
}

// BestAsk returns the highest-priority resting ask limit order, or nil.
func (b *Book) BestAsk() *Order {
	lvl := b.asks.minLevel()
	if lvl == nil {
		return nil
	}
	return lvl.head
}

// Spread returns bestAsk - bestBid. ok is false when either side is empty.
// A negative spread is the transient condition that provokes matching.
func (b *Book) Spread() (spread int64, ok bool) {
	bid, ask := b.BestBid(), b.BestAsk()
	if bid == nil || ask == nil {
		return 0, false
	}
	return ask.Price - bid.Price, true
}

// MarketPrice returns the reference price, 0 while undefined.
func (b *Book) MarketPrice() int64 { return b.marketPrice }

// Depth returns the number of resting limit orders per side.
func (b *Book) Depth() (bids, asks int) {
	b.bids.ascend(func(l *priceLevel) bool { bids += l.OrderCount; return true })
	b.asks.ascend(func(l *priceLevel) bool { asks += l.OrderCount; return true })
	return bids, asks
}

// Lookup returns the resting order with the given id, or nil.
func (b *Book) Lookup(id uint64) *Order { return b.index[id] }

// pool returns the tree an order of the given type/side rests in.
func (b *Book) pool(typ OrderType, side Side) *rbTree {
	if typ == Stop {
		if side == Bid {
			return b.bidStops
		}
		return b.askStops
	}
	if side == Bid {
		return b.bids
	}
	return b.asks
}

// restingKey is the price a resting order is bucketed under.
func restingKey(o *Order) int64 {
	if o.Type == Stop {
		return o.StopPrice
	}
	return o.Price
}

// rest appends o to the tail of its price bucket, preserving time priority.
func (b *Book) rest(o *Order) {
	lvl := b.pool(o.Type, o.Side).upsertLevel(restingKey(o))
	lvl.enqueue(o)
	b.index[o.ID] = o
}

// removeResting unlinks o from its pool, dropping the level if it emptied.
// No-op for orders that are not resting.
func (b *Book) removeResting(o *Order) {
	lvl := o.level
	if lvl == nil {
		return
	}
	lvl.unlink(o)
	if lvl.empty() {
		b.pool(o.Type, o.Side).deleteLevel(lvl.Price)
	}
	delete(b.index, o.ID)
}

// InsertLimit rests a limit order and runs the crossing pass.
func (b *Book) InsertLimit(o *Order) *Events {
	ev := &Events{}
	o.Status = Resting
	b.rest(o)
	b.matchLimitOrders(ev)
	return ev
}

// InsertStop rests a stop order and immediately evaluates it against the
// current market price, which may trigger it (and anything it cascades
// into) before this call returns.
func (b *Book) InsertStop(o *Order) *Events {
	ev := &Events{}
	o.Status = Resting
	b.rest(o)
	if b.marketPrice != 0 {
		if o.Side == Bid {
			b.checkBidStops(b.marketPrice, ev)
		} else {
			b.checkAskStops(b.marketPrice, ev)
		}
	}
	return ev
}

// ExecuteMarket runs the all-or-nothing sweep for a market order. On
// ErrInsufficientLiquidity the book is untouched and the order never rested.
func (b *Book) ExecuteMarket(o *Order) (*Events, error) {
	ev := &Events{}
	if !b.sweep(o, ev) {
		return ev, ErrInsufficientLiquidity
	}
	return ev, nil
}

// Cancel removes a resting order on behalf of its owner. A cancelled limit
// order re-runs the crossing pass; removing an order cannot create a cross,
// but the pass is cheap and keeps the post-condition unconditional.
func (b *Book) Cancel(id uint64, owner string) (*Events, error) {
	o := b.index[id]
	if o == nil {
		return nil, ErrOrderNotFound
	}
	if o.Owner != owner {
		return nil, ErrNotOwner
	}
	ev := &Events{}
	o.Status = Cancelled
	b.removeResting(o)
	ev.addUpdate(o)
	if o.Type == Limit {
		b.matchLimitOrders(ev)
	}
	return ev, nil
}
