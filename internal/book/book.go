package book

import (
	"backxchange/internal/order"
	"backxchange/pkg/types"
)

// OrderBook is a triple-indexed store used for both the Open Book and the
// Closed Book: a single owning map from id to Order, plus
// index-only slices by insertion time and by symbol. Moving an order
// between an Open Book and a Closed Book is a Remove+Insert pair, which the
// matching engine treats as a map-key migration rather than a copy.
type OrderBook struct {
	byID map[string]*order.Order
	byTime []string
	bySymbol map[types.Symbol][]string
}

// New builds an empty OrderBook.
func New() *OrderBook {
	return &OrderBook{
		byID: make(map[string]*order.Order),
		bySymbol: make(map[types.Symbol][]string),
	}
}

// Insert adds o to the book, indexed by id, time, and symbol.
func (b *OrderBook) Insert(o *order.Order) {
	b.byID[o.ID] = o
	b.byTime = append(b.byTime, o.ID)
	b.bySymbol[o.Symbol] = append(b.bySymbol[o.Symbol], o.ID)
}

// Remove deletes the order with id from every index. Returns false if id is
// not present.
func (b *OrderBook) Remove(id string) bool {
	o, ok := b.byID[id]
	if !ok {
		return false
	}
	delete(b.byID, id)
	b.byTime = removeID(b.byTime, id)
	b.bySymbol[o.Symbol] = removeID(b.bySymbol[o.Symbol], id)
	if len(b.bySymbol[o.Symbol]) == 0 {
		delete(b.bySymbol, o.Symbol)
	}
	return true
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// Get returns the order with id, if present.
func (b *OrderBook) Get(id string) (*order.Order, bool) {
	o, ok := b.byID[id]
	return o, ok
}

// Len reports the number of orders currently in the book.
func (b *OrderBook) Len() int {
	return len(b.byID)
}

// Snapshot returns a copy of every id currently in the book, insertion-time
// ordered. The matching engine takes this snapshot before iterating so that
// fills that move orders between books during the pass are safe.
func (b *OrderBook) Snapshot() []string {
	ids := make([]string, len(b.byTime))
	copy(ids, b.byTime)
	return ids
}

// List returns orders in insertion order, truncated to the most recent limit
// entries when limit > 0, optionally filtered to one symbol. An unknown symbol returns an empty
// list.
func (b *OrderBook) List(symbol types.Symbol, limit int) []*order.Order {
	var ids []string
	if symbol == "" {
		ids = b.byTime
	} else {
		ids = b.bySymbol[symbol]
	}
	return b.ordersFor(mostRecent(ids, limit))
}

// ListIDs is the id-only variant of List.
func (b *OrderBook) ListIDs(symbol types.Symbol, limit int) []string {
	var ids []string
	if symbol == "" {
		ids = b.byTime
	} else {
		ids = b.bySymbol[symbol]
	}
	return mostRecent(ids, limit)
}

func mostRecent(ids []string, limit int) []string {
	if limit <= 0 || limit >= len(ids) {
		out := make([]string, len(ids))
		copy(out, ids)
		return out
	}
	out := make([]string, limit)
	copy(out, ids[len(ids)-limit:])
	return out
}

func (b *OrderBook) ordersFor(ids []string) []*order.Order {
	out := make([]*order.Order, 0, len(ids))
	for _, id := range ids {
		if o, ok := b.byID[id]; ok {
			out = append(out, o)
		}
	}
	return out
}
