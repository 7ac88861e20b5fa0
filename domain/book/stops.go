package book

// Stop activation. The stop pools are price-ordered, so each pass walks
// contiguous eligible levels from the eligible end and exits at the first
// ineligible one. The price parameter is fixed for the duration of one
// pass; a cascade that moves the market price again spawns its own pass
// through updateMarketPrice before control returns here.

// checkBidStops activates bid-side stop orders, which trigger on a falling
// market: eligible once marketPrice <= stopPrice. Highest stop prices are
// eligible first, so the walk descends.
func (b *Book) checkBidStops(price int64, ev *Events) {
	for {
		if !ev.spend() {
			return
		}
		lvl := b.bidStops.maxLevel()
		if lvl == nil || lvl.Price < price {
			return
		}
		o := lvl.head
		b.removeResting(o)
		b.trigger(o, ev)
	}
}

// checkAskStops activates ask-side stop orders, which trigger on a rising
// market: eligible once marketPrice >= stopPrice. Lowest stop prices are
// eligible first, so the walk ascends.
func (b *Book) checkAskStops(price int64, ev *Events) {
	for {
		if !ev.spend() {
			return
		}
		lvl := b.askStops.minLevel()
		if lvl == nil || lvl.Price > price {
			return
		}
		o := lvl.head
		b.removeResting(o)
		b.trigger(o, ev)
	}
}

// trigger converts an activated stop order into an immediate all-or-nothing
// sweep. A stop whose sweep aborts for lack of liquidity is dropped rather
// than requeued (confirmed venue policy); the owner still gets a
// cancellation update so the drop is observable.
func (b *Book) trigger(o *Order, ev *Events) {
	if !b.sweep(o, ev) {
		o.Status = Cancelled
		ev.addUpdate(o)
	}
}
