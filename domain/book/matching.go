package book

import "time"

// maxMatchIterations bounds every matching loop in one operation, cascades
// included. Hitting it means the book is corrupted; the pass stops instead
// of holding the lock forever, and Events.Exhausted is raised.
const maxMatchIterations = 100_000

func (e *Events) spend() bool {
	e.iters++
	if e.iters > maxMatchIterations {
		e.Exhausted = true
		return false
	}
	return true
}

// matchLimitOrders repeatedly crosses the best bid against the best ask
// while bestBid.Price >= bestAsk.Price. The execution price is always the
// resting ask's limit price; that is the venue's tie-break convention, not
// an average. The batch of trades the loop produced is accounted into the
// market price once, at the end of the pass.
func (b *Book) matchLimitOrders(ev *Events) {
	before := len(ev.Trades)
	for {
		if !ev.spend() {
			break
		}
		bid, ask := b.BestBid(), b.BestAsk()
		if bid == nil || ask == nil || bid.Price < ask.Price {
			break
		}

		size := min(bid.Remaining, ask.Remaining)
		taker, maker := bid, ask
		if ask.ID > bid.ID {
			taker, maker = ask, bid
		}
		ev.addTrade(Trade{
			TakerOrderID: taker.ID,
			MakerOrderID: maker.ID,
			Price:        ask.Price,
			Size:         size,
			Buyer:        bid.Owner,
			Seller:       ask.Owner,
			Timestamp:    time.Now(),
		})
		b.fill(bid, size, ev)
		b.fill(ask, size, ev)
	}
	if len(ev.Trades) > before {
		b.updateMarketPrice(ev)
	}
}

// fill decrements a matched order and removes it from its pool the moment
// it reaches zero remaining size.
func (b *Book) fill(o *Order, size int64, ev *Events) {
	o.Remaining -= size
	if o.level != nil {
		o.level.reduce(size)
	}
	if o.Remaining == 0 {
		o.Status = Filled
		b.removeResting(o)
	} else {
		o.Status = PartiallyFilled
	}
	ev.addUpdate(o)
}

type sweepSlice struct {
	maker *Order
	size  int64
}

// sweep executes an incoming market-style order all-or-nothing. The first
// phase only records prospective slices against resting orders; nothing in
// the book is mutated until the incoming size is known to be fully
// consumable. If the opposite side runs out first the slices are discarded
// and the book is left byte-for-byte unchanged.
//
// Each slice executes at the resting (maker) level's price.
func (b *Book) sweep(o *Order, ev *Events) bool {
	need := o.Remaining
	var slices []sweepSlice

	collect := func(lvl *priceLevel) bool {
		for m := lvl.head; m != nil && need > 0; m = m.next {
			if !ev.spend() {
				return false
			}
			take := min(need, m.Remaining)
			slices = append(slices, sweepSlice{maker: m, size: take})
			need -= take
		}
		return need > 0
	}
	if o.Side == Bid {
		b.asks.ascend(collect)
	} else {
		b.bids.descend(collect)
	}

	if need > 0 {
		return false
	}

	for _, s := range slices {
		buyer, seller := o.Owner, s.maker.Owner
		if o.Side == Ask {
			buyer, seller = s.maker.Owner, o.Owner
		}
		ev.addTrade(Trade{
			TakerOrderID: o.ID,
			MakerOrderID: s.maker.ID,
			Price:        s.maker.Price,
			Size:         s.size,
			Buyer:        buyer,
			Seller:       seller,
			Timestamp:    time.Now(),
		})
		b.fill(s.maker, s.size, ev)
	}
	o.Remaining = 0
	o.Status = Filled
	ev.addUpdate(o)

	b.updateMarketPrice(ev)
	// Consuming resting liquidity cannot normally create a new cross, but
	// the pass runs unconditionally for state consistency.
	b.matchLimitOrders(ev)
	return true
}

// updateMarketPrice recomputes the midpoint after a trade batch and kicks
// off the stop pass for whichever direction the price moved. While either
// side is empty the price keeps its last defined value and nothing is
// evaluated.
func (b *Book) updateMarketPrice(ev *Events) {
	bid, ask := b.BestBid(), b.BestAsk()
	if bid == nil || ask == nil {
		return
	}
	old := b.marketPrice
	b.marketPrice = (bid.Price + ask.Price) / 2
	switch {
	case old == 0:
		// First definition: no previous value to compare against, so
		// both pools get one evaluation at the newly defined price.
		b.checkBidStops(b.marketPrice, ev)
		b.checkAskStops(b.marketPrice, ev)
	case b.marketPrice < old:
		b.checkBidStops(b.marketPrice, ev)
	case b.marketPrice > old:
		b.checkAskStops(b.marketPrice, ev)
	}
}
