package book

import "time"

type Side uint8

const (
	Bid Side = iota
	Ask
)

func (s Side) String() string {
	if s == Bid {
		return "bid"
	}
	return "ask"
}

// Opposite returns the book side a taker on s consumes from.
func (s Side) Opposite() Side {
	if s == Bid {
		return Ask
	}
	return Bid
}

type OrderType uint8

const (
	Limit OrderType = iota
	Market
	Stop
)

func (t OrderType) String() string {
	switch t {
	case Limit:
		return "limit"
	case Market:
		return "market"
	case Stop:
		return "stop"
	default:
		return "unknown"
	}
}

type Status uint8

const (
	Resting Status = iota
	PartiallyFilled
	Filled
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Resting:
		return "resting"
	case PartiallyFilled:
		return "partial"
	case Filled:
		return "filled"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == Filled || s == Cancelled
}

// Order is the single order record for all three variants. Price is the
// limit price of a Limit order, StopPrice the trigger threshold of a Stop
// order; a Market order carries neither. Dispatch is always on Type.
type Order struct {
	ID        uint64
	Owner     string
	Side      Side
	Type      OrderType
	Price     int64
	StopPrice int64
	Size      int64
	Remaining int64
	Status    Status

	level *priceLevel
	next  *Order
	prev  *Order
}

// Trade is one execution between exactly two orders.
type Trade struct {
	TakerOrderID uint64
	MakerOrderID uint64
	Price        int64
	Size         int64
	Buyer        string
	Seller       string
	Timestamp    time.Time
}

// OrderUpdate is a per-order state change surfaced to the audit sink.
type OrderUpdate struct {
	OrderID   uint64
	Owner     string
	Side      Side
	Type      OrderType
	Status    Status
	Size      int64
	Remaining int64
}

// Events is everything one mutating book operation produced, cascades
// included. The caller hands it to the sinks after releasing the book lock;
// nothing inside the batch is surfaced individually.
type Events struct {
	Trades  []Trade
	Updates []OrderUpdate

	// Exhausted is set when a matching pass hit the iteration guard.
	// It indicates book corruption and must be surfaced loudly.
	Exhausted bool

	iters int
}

func (e *Events) addTrade(t Trade) { e.Trades = append(e.Trades, t) }
func (e *Events) addUpdate(o *Order) {
	e.Updates = append(e.Updates, OrderUpdate{
		OrderID:   o.ID,
		Owner:     o.Owner,
		Side:      o.Side,
		Type:      o.Type,
		Status:    o.Status,
		Size:      o.Size,
		Remaining: o.Remaining,
	})
}
