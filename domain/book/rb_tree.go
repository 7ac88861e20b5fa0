package book

// Red-black tree of price levels. Each of the four order pools owns one
// tree; min/max give the best price in O(log n) and the in-order walks give
// priority traversal for sweeps and stop activation.

type rbColor uint8

const (
	red   rbColor = 0
	black rbColor = 1
)

type rbNode struct {
	key    int64
	level  *priceLevel
	color  rbColor
	left   *rbNode
	right  *rbNode
	parent *rbNode
}

type rbTree struct {
	root *rbNode
	nil  *rbNode // sentinel (black)
	size int
}

func newRBTree() *rbTree {
	sentinel := &rbNode{color: black}
	return &rbTree{root: sentinel, nil: sentinel}
}

func (t *rbTree) Size() int { return t.size }

func (t *rbTree) findLevel(price int64) *priceLevel {
	n := t.root
	for n != t.nil {
		if price < n.key {
			n = n.left
		} else if price > n.key {
			n = n.right
		} else {
			return n.level
		}
	}
	return nil
}

// upsertLevel returns the level at price, creating it if absent.
func (t *rbTree) upsertLevel(price int64) *priceLevel {
	y := t.nil
	x := t.root
	for x != t.nil {
		y = x
		if price < x.key {
			x = x.left
		} else if price > x.key {
			x = x.right
		} else {
			return x.level
		}
	}

	pl := &priceLevel{Price: price}
	z := &rbNode{key: price, level: pl, color: red, left: t.nil, right: t.nil, parent: y}
	if y == t.nil {
		t.root = z
	} else if z.key < y.key {
		y.left = z
	} else {
		y.right = z
	}
	t.insertFixup(z)
	t.size++
	return pl
}

func (t *rbTree) deleteLevel(price int64) bool {
	z := t.searchNode(price)
	if z == t.nil {
		return false
	}
	t.deleteNode(z)
	t.size--
	return true
}

func (t *rbTree) minLevel() *priceLevel {
	n := t.minNode(t.root)
	if n == t.nil {
		return nil
	}
	return n.level
}

func (t *rbTree) maxLevel() *priceLevel {
	n := t.maxNode(t.root)
	if n == t.nil {
		return nil
	}
	return n.level
}

func (t *rbTree) ascend(fn func(*priceLevel) bool) {
	for n := t.minNode(t.root); n != t.nil; n = t.next(n) {
		if !fn(n.level) {
			return
		}
	}
}

func (t *rbTree) descend(fn func(*priceLevel) bool) {
	for n := t.maxNode(t.root); n != t.nil; n = t.prev(n) {
		if !fn(n.level) {
			return
		}
	}
}

/******************** internal helpers ********************/

func (t *rbTree) searchNode(price int64) *rbNode {
	n := t.root
	for n != t.nil {
		if price < n.key {
			n = n.left
		} else if price > n.key {
			n = n.right
		} else {
			return n
		}
	}
	return t.nil
}

func (t *rbTree) minNode(n *rbNode) *rbNode {
	if n == t.nil {
		return t.nil
	}
	for n.left != t.nil {
		n = n.left
	}
	return n
}

func (t *rbTree) maxNode(n *rbNode) *rbNode {
	if n == t.nil {
		return t.nil
	}
	for n.right != t.nil {
		n = n.right
	}
	return n
}

func (t *rbTree) next(n *rbNode) *rbNode {
	if n == nil || n == t.nil {
		return t.nil
	}
	if n.right != t.nil {
		return t.minNode(n.right)
	}
	p := n.parent
	for p != t.nil && n == p.right {
		n = p
		p = p.parent
	}
	return p
}

func (t *rbTree) prev(n *rbNode) *rbNode {
	if n == nil || n == t.nil {
		return t.nil
	}
	if n.left != t.nil {
		return t.maxNode(n.left)
	}
	p := n.parent
	for p != t.nil && n == p.left {
		n = p
		p = p.parent
	}
	return p
}

func (t *rbTree) leftRotate(x *rbNode) {
	y := x.right
	x.right = y.left
	if y.left != t.nil {
		y.left.parent = x
	}
	y.parent = x.parent
	if x.parent == t.nil {
		t.root = y
	} else if x == x.parent.left {
		x.parent.left = y
	} else {
		x.parent.right = y
	}
	y.left = x
	x.parent = y
}

func (t *rbTree) rightRotate(y *rbNode) {
	x := y.left
	y.left = x.right
	if x.right != t.nil {
		x.right.parent = y
	}
	x.parent = y.parent
	if y.parent == t.nil {
		t.root = x
	} else if y == y.parent.right {
		y.parent.right = x
	} else {
		y.parent.left = x
	}
	x.right = y
	y.parent = x
}

func (t *rbTree) insertFixup(z *rbNode) {
	for z.parent.color == red {
		if z.parent == z.parent.parent.left {
			y := z.parent.parent.right
			if y.color == red {
				z.parent.color = black
				y.color = black
				z.parent.parent.color = red
				z = z.parent.parent
			} else {
				if z == z.parent.right {
					z = z.parent
					t.leftRotate(z)
				}
				z.parent.color = black
				z.parent.parent.color = red
				t.rightRotate(z.parent.parent)
			}
		} else {
			y := z.parent.parent.left
			if y.color == red {
				z.parent.color = black
				y.color = black
				z.parent.parent.color = red
				z = z.parent.parent
			} else {
				if z == z.parent.left {
					z = z.parent
					t.rightRotate(z)
				}
				z.parent.color = black
				z.parent.parent.color = red
				t.leftRotate(z.parent.parent)
			}
		}
	}
	t.root.color = black
}

func (t *rbTree) transplant(u, v *rbNode) {
	if u.parent == t.nil {
		t.root = v
	} else if u == u.parent.left {
		u.parent.left = v
	} else {
		u.parent.right = v
	}
	v.parent = u.parent
}

func (t *rbTree) deleteNode(z *rbNode) {
	y := z
	yOrigColor := y.color
	var x *rbNode

	if z.left == t.nil {
		x = z.right
		t.transplant(z, z.right)
	} else if z.right == t.nil {
		x = z.left
		t.transplant(z, z.left)
	} else {
		y = t.minNode(z.right)
		yOrigColor = y.color
		x = y.right
		if y.parent == z {
			x.parent = y
		} else {
			t.transplant(y, y.right)
			y.right = z.right
			y.right.parent = y
		}
		t.transplant(z, y)
		y.left = z.left
		y.left.parent = y
		y.color = z.color
	}

	if yOrigColor == black {
		t.deleteFixup(x)
	}
}

func (t *rbTree) deleteFixup(x *rbNode) {
	for x != t.root && x.color == black {
		if x == x.parent.left {
			w := x.parent.right
			if w.color == red {
				w.color = black
				x.parent.color = red
				t.leftRotate(x.parent)
				w = x.parent.right
			}
			if w.left.color == black && w.right.color == black {
				w.color = red
				x = x.parent
			} else {
				if w.right.color == black {
					w.left.color = black
					w.color = red
					t.rightRotate(w)
					w = x.parent.right
				}
				w.color = x.parent.color
				x.parent.color = black
				w.right.color = black
				t.leftRotate(x.parent)
				x = t.root
			}
		} else {
			w := x.parent.left
			if w.color == red {
				w.color = black
				x.parent.color = red
				t.rightRotate(x.parent)
				w = x.parent.left
			}
			if w.right.color == black && w.left.color == black {
				w.color = red
				x = x.parent
			} else {
				if w.left.color == black {
					w.right.color = black
					w.color = red
					t.leftRotate(x.parent)
					w = x.parent.left
				}
				w.color = x.parent.color
				x.parent.color = black
				w.left.color = black
				t.rightRotate(x.parent)
				x = t.root
			}
		}
	}
	x.color = black
}
