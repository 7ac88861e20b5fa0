package book

// priceLevel is one FIFO bucket of resting orders sharing a price. Orders
// are kept in strict arrival order; nothing ever reorders them except
// removal.
type priceLevel struct {
	Price      int64
	head       *Order
	tail       *Order
	TotalQty   int64
	OrderCount int
}

func (p *priceLevel) enqueue(o *Order) {
	if p.head == nil {
		p.head = o
		p.tail = o
	} else {
		p.tail.next = o
		o.prev = p.tail
		p.tail = o
	}
	o.level = p
	p.TotalQty += o.Remaining
	p.OrderCount++
}

func (p *priceLevel) unlink(o *Order) {
	if o.prev != nil {
		o.prev.next = o.next
	} else {
		p.head = o.next
	}
	if o.next != nil {
		o.next.prev = o.prev
	} else {
		p.tail = o.prev
	}
	o.next, o.prev, o.level = nil, nil, nil
	p.TotalQty -= o.Remaining
	p.OrderCount--
}

// reduce accounts a fill of size against o without unlinking it.
func (p *priceLevel) reduce(size int64) {
	p.TotalQty -= size
}

func (p *priceLevel) empty() bool { return p.head == nil }
