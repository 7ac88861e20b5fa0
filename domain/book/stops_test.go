package book

import "testing"

func TestStopRestsWhilePriceUndefined(t *testing.T) {
	b := New()
	s, ev := stop(b, "alice", Bid, 5, 1_000_000)

	if len(ev.Trades) != 0 || len(ev.Updates) != 0 {
		t.Fatal("stop inserted before any trade must not do anything")
	}
	if b.Lookup(s.ID) != s || s.Status != Resting {
		t.Error("stop must rest untouched")
	}
}

func TestStopRestsWhenNotEligible(t *testing.T) {
	b := New()
	limit(b, "alice", Bid, 10, 100_000)
	limit(b, "bob", Ask, 10, 110_000)
	limit(b, "carol", Bid, 5, 110_000) // defines market price 105000

	// Falling trigger at 100000 is below the current 105000.
	s, ev := stop(b, "dave", Bid, 5, 100_000)
	if len(ev.Trades) != 0 {
		t.Fatal("ineligible stop must not trigger")
	}
	if b.Lookup(s.ID) != s {
		t.Error("stop must stay in its pool")
	}
}

func TestBidStopTriggersOnFall(t *testing.T) {
	b := New()
	b0, _ := limit(b, "alice", Bid, 10, 100_000)
	a0, _ := limit(b, "bob", Ask, 10, 110_000)
	limit(b, "carol", Bid, 5, 110_000) // market price 105000

	s1, _ := stop(b, "dave", Bid, 5, 100_000)
	b3, _ := limit(b, "erin", Bid, 10, 80_000)

	// Selling through the 100000 bid drops the midpoint to 95000, below
	// the stop price, so the stop fires and sweeps the remaining ask.
	_, ev := limit(b, "frank", Ask, 10, 90_000)

	if len(ev.Trades) != 2 {
		t.Fatalf("trades = %d, want 2", len(ev.Trades))
	}
	if ev.Trades[0].Size != 10 || ev.Trades[0].Price != 90_000 {
		t.Errorf("crossing trade = %d @ %d", ev.Trades[0].Size, ev.Trades[0].Price)
	}
	st := ev.Trades[1]
	if st.TakerOrderID != s1.ID || st.Size != 5 || st.Price != 110_000 {
		t.Errorf("stop trade = taker %d size %d price %d, want %d/5/110000",
			st.TakerOrderID, st.Size, st.Price, s1.ID)
	}
	if s1.Status != Filled {
		t.Errorf("stop status = %v, want Filled", s1.Status)
	}
	if b0.Status != Filled || a0.Status != Filled {
		t.Error("swept counterparties should be filled")
	}
	if b.MarketPrice() != 95_000 {
		t.Errorf("market price = %d, want 95000", b.MarketPrice())
	}
	bids, asks := b.Depth()
	if bids != 1 || asks != 0 || b.Lookup(b3.ID) == nil {
		t.Error("only the 80000 bid should remain")
	}
}

func TestAskStopTriggersOnRise(t *testing.T) {
	b := New()
	limit(b, "alice", Bid, 10, 90_000)
	limit(b, "bob", Ask, 10, 100_000)
	limit(b, "carol", Ask, 10, 110_000)
	limit(b, "dave", Bid, 5, 100_000) // market price 95000

	s2, _ := stop(b, "erin", Ask, 5, 98_000)

	// Lifting the rest of the 100000 ask moves the midpoint to 108000,
	// above the stop price; the stop sells into the freshly rested bid.
	b2, ev := limit(b, "frank", Bid, 10, 106_000)

	if len(ev.Trades) != 2 {
		t.Fatalf("trades = %d, want 2", len(ev.Trades))
	}
	st := ev.Trades[1]
	if st.TakerOrderID != s2.ID || st.Size != 5 || st.Price != 106_000 {
		t.Errorf("stop trade = taker %d size %d price %d, want %d/5/106000",
			st.TakerOrderID, st.Size, st.Price, s2.ID)
	}
	if s2.Status != Filled || b2.Status != Filled {
		t.Error("stop and swept bid should be filled")
	}
	if b.MarketPrice() != 100_000 {
		t.Errorf("market price = %d, want 100000", b.MarketPrice())
	}
}

// A triggered stop's own sweep moves the market price again, which can
// activate stops on the other side before the submitting call returns.
func TestStopCascadeAcrossSides(t *testing.T) {
	b := New()
	b0, _ := limit(b, "alice", Bid, 10, 78_000)
	limit(b, "bob", Ask, 10, 100_000)
	a3, _ := limit(b, "carol", Ask, 10, 120_000)

	// Both stops go in while the price is still undefined.
	s4, _ := stop(b, "dave", Bid, 9, 84_000)
	s5, _ := stop(b, "erin", Ask, 2, 90_000)

	limit(b, "frank", Bid, 5, 100_000) // first definition: 89000, neither fires
	if b.MarketPrice() != 89_000 {
		t.Fatalf("market price = %d, want 89000", b.MarketPrice())
	}

	limit(b, "grace", Ask, 10, 90_000)
	_, ev := limit(b, "heidi", Bid, 7, 90_000)

	// Fall to 84000 fires the bid stop; its buy sweep clears two ask
	// levels and lifts the midpoint to 99000, which fires the ask stop.
	if s4.Status != Filled {
		t.Errorf("bid stop = %v, want Filled", s4.Status)
	}
	if s5.Status != Filled {
		t.Errorf("cascaded ask stop = %v, want Filled", s5.Status)
	}
	if len(ev.Trades) != 5 {
		t.Fatalf("trades = %d, want 5", len(ev.Trades))
	}
	last := ev.Trades[len(ev.Trades)-1]
	if last.TakerOrderID != s5.ID || last.Price != 78_000 || last.Size != 2 {
		t.Errorf("cascade trade = taker %d size %d price %d", last.TakerOrderID, last.Size, last.Price)
	}
	if b.MarketPrice() != 99_000 {
		t.Errorf("market price = %d, want 99000", b.MarketPrice())
	}
	if b0.Remaining != 8 || a3.Remaining != 9 {
		t.Errorf("survivors = bid %d ask %d, want 8 and 9", b0.Remaining, a3.Remaining)
	}
}

func TestStopWalkStopsAtFirstIneligible(t *testing.T) {
	b := New()
	limit(b, "alice", Bid, 10, 100_000)
	limit(b, "bob", Ask, 10, 110_000)
	limit(b, "carol", Bid, 5, 110_000) // market price 105000

	s1, _ := stop(b, "dave", Bid, 5, 100_000)
	low, _ := stop(b, "dave", Bid, 5, 84_000)
	limit(b, "erin", Bid, 10, 80_000)

	limit(b, "frank", Ask, 10, 90_000) // price falls to 95000

	if s1.Status != Filled {
		t.Errorf("eligible stop = %v, want Filled", s1.Status)
	}
	if b.Lookup(low.ID) != low || low.Status != Resting {
		t.Error("stop below the new price must keep resting")
	}
}

func TestAbortedStopIsDropped(t *testing.T) {
	b := New()
	limit(b, "alice", Bid, 10, 100_000)
	a0, _ := limit(b, "bob", Ask, 10, 110_000)
	limit(b, "carol", Bid, 5, 110_000) // market price 105000, ask remaining 5

	s1, _ := stop(b, "dave", Bid, 50, 100_000)
	limit(b, "erin", Bid, 10, 80_000)

	_, ev := limit(b, "frank", Ask, 10, 90_000)

	if s1.Status != Cancelled {
		t.Fatalf("oversized stop = %v, want Cancelled", s1.Status)
	}
	if b.Lookup(s1.ID) != nil {
		t.Error("dropped stop must leave its pool")
	}
	if a0.Remaining != 5 || b.Lookup(a0.ID) != a0 {
		t.Error("aborted sweep must leave the ask untouched")
	}
	var sawCancel bool
	for _, u := range ev.Updates {
		if u.OrderID == s1.ID && u.Status == Cancelled {
			sawCancel = true
		}
	}
	if !sawCancel {
		t.Error("owner must see a cancellation update for the dropped stop")
	}
}
