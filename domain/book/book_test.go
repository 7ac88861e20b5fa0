package book

import "testing"

var nextTestID uint64

func newOrder(owner string, side Side, typ OrderType, size, price int64) *Order {
	nextTestID++
	o := &Order{
		ID:        nextTestID,
		Owner:     owner,
		Side:      side,
		Type:      typ,
		Size:      size,
		Remaining: size,
	}
	switch typ {
	case Stop:
		o.StopPrice = price
	case Limit:
		o.Price = price
	}
	return o
}

func limit(b *Book, owner string, side Side, size, price int64) (*Order, *Events) {
	o := newOrder(owner, side, Limit, size, price)
	return o, b.InsertLimit(o)
}

func stop(b *Book, owner string, side Side, size, stopPrice int64) (*Order, *Events) {
	o := newOrder(owner, side, Stop, size, stopPrice)
	return o, b.InsertStop(o)
}

func market(b *Book, owner string, side Side, size int64) (*Order, *Events, error) {
	o := newOrder(owner, side, Market, size, 0)
	ev, err := b.ExecuteMarket(o)
	return o, ev, err
}

func TestBestBidAskEmpty(t *testing.T) {
	b := New()
	if b.BestBid() != nil || b.BestAsk() != nil {
		t.Error("empty book should have no best orders")
	}
	if _, ok := b.Spread(); ok {
		t.Error("spread should be undefined on an empty book")
	}
}

func TestInsertLimitPriority(t *testing.T) {
	b := New()
	first, _ := limit(b, "alice", Bid, 5, 100_000)
	second, _ := limit(b, "bob", Bid, 5, 100_000)
	higher, _ := limit(b, "carol", Bid, 5, 101_000)

	if b.BestBid() != higher {
		t.Error("best bid should be the highest price")
	}
	b.removeResting(higher)
	if b.BestBid() != first {
		t.Error("ties must resolve to earliest arrival")
	}
	b.removeResting(first)
	if b.BestBid() != second {
		t.Error("second arrival should surface after first removed")
	}
}

func TestSpread(t *testing.T) {
	b := New()
	limit(b, "alice", Bid, 5, 100_000)
	limit(b, "bob", Ask, 5, 103_000)

	spread, ok := b.Spread()
	if !ok || spread != 3_000 {
		t.Fatalf("spread = %d, %v; want 3000, true", spread, ok)
	}
}

func TestDepthCountsBothSides(t *testing.T) {
	b := New()
	limit(b, "alice", Bid, 5, 100_000)
	limit(b, "alice", Bid, 5, 99_000)
	limit(b, "bob", Ask, 5, 104_000)

	bids, asks := b.Depth()
	if bids != 2 || asks != 1 {
		t.Fatalf("depth = %d/%d, want 2/1", bids, asks)
	}
}

func TestCancelOwnOrder(t *testing.T) {
	b := New()
	o, _ := limit(b, "alice", Bid, 5, 100_000)

	ev, err := b.Cancel(o.ID, "alice")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if o.Status != Cancelled {
		t.Error("order should be cancelled")
	}
	if b.Lookup(o.ID) != nil {
		t.Error("cancelled order should leave the book")
	}
	if len(ev.Updates) != 1 || ev.Updates[0].Status != Cancelled {
		t.Errorf("expected one cancellation update, got %+v", ev.Updates)
	}
}

func TestCancelWrongOwner(t *testing.T) {
	b := New()
	o, _ := limit(b, "alice", Bid, 5, 100_000)

	if _, err := b.Cancel(o.ID, "mallory"); err != ErrNotOwner {
		t.Fatalf("err = %v, want ErrNotOwner", err)
	}
	if b.Lookup(o.ID) != o || o.Status != Resting {
		t.Error("order must be untouched after ownership violation")
	}
}

func TestCancelUnknownOrder(t *testing.T) {
	b := New()
	if _, err := b.Cancel(42, "alice"); err != ErrOrderNotFound {
		t.Fatalf("err = %v, want ErrOrderNotFound", err)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	b := New()
	o, _ := limit(b, "alice", Bid, 5, 100_000)

	if _, err := b.Cancel(o.ID, "alice"); err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	if _, err := b.Cancel(o.ID, "alice"); err != ErrOrderNotFound {
		t.Fatalf("second cancel err = %v, want ErrOrderNotFound", err)
	}
}

func TestCancelStopOrder(t *testing.T) {
	b := New()
	o, _ := stop(b, "alice", Bid, 5, 100_000)

	if _, err := b.Cancel(o.ID, "alice"); err != nil {
		t.Fatalf("cancel stop: %v", err)
	}
	if b.bidStops.Size() != 0 {
		t.Error("stop pool should be empty")
	}
}
