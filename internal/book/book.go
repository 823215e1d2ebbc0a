// Package book implements the aggregated order book: one key-ordered map
// per side, each price level tracking every venue's contribution so the
// book can be rebuilt correctly regardless of which venue last touched it.
package book

import (
	"errors"
	"sort"
	"sync"

	"github.com/emirpasic/gods/maps/treemap"

	"github.com/BullionBear/aggbook/internal/ticks"
	"github.com/BullionBear/aggbook/internal/venue"
)

func int64Comparator(a, b interface{}) int {
	x, y := a.(int64), b.(int64)
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}

func reverseInt64Comparator(a, b interface{}) int {
	return -int64Comparator(a, b)
}

// contribution is one venue's standing quantity at a price level, and the
// update ID of the delta (or snapshot) that last set it.
type contribution struct {
	qty      ticks.Qty
	updateID int64
}

// level is a price level shared across venues.
type level struct {
	byVenue map[venue.ID]contribution
}

func newLevel() *level {
	return &level{byVenue: make(map[venue.ID]contribution, 2)}
}

func (l *level) set(id venue.ID, qty ticks.Qty, updateID int64) {
	l.byVenue[id] = contribution{qty: qty, updateID: updateID}
}

func (l *level) clear(id venue.ID) {
	delete(l.byVenue, id)
}

func (l *level) empty() bool { return len(l.byVenue) == 0 }

// dominant returns the total quantity at this level and the origin venue
// chosen by the dominance rule: the venue with the largest standing
// quantity, ties broken by a fixed venue.ID ordering rather than arrival
// order, so the result depends only on the venues' standing contributions
// and not on which adapter happened to write this price first.
func (l *level) dominant() (qty ticks.Qty, origin venue.ID) {
	ids := make([]venue.ID, 0, len(l.byVenue))
	for id := range l.byVenue {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var total ticks.Qty
	var best ticks.Qty = -1
	for _, id := range ids {
		c := l.byVenue[id]
		total += c.qty
		if c.qty > best {
			best = c.qty
			origin = id
		}
	}
	return total, origin
}

// Entry is one row of a top-N read.
type Entry struct {
	Price  ticks.Price
	Qty    ticks.Qty
	Origin venue.ID
}

// ErrCrossed is returned when the aggregated book's best bid is not
// strictly below its best ask. Per the design notes this is never silently
// tolerated — callers must treat it as a desync.
var ErrCrossed = errors.New("book: crossed aggregated book")

// Book is the aggregated, multi-venue order book for a single symbol. A
// single RWMutex guards both sides so a top-N read always sees a
// consistent cross-bucket snapshot; ApplyBatch and ApplySnapshot apply an
// entire batch under one lock acquisition so a reader can never observe a
// partially-applied batch.
type Book struct {
	mu   sync.RWMutex
	bids *treemap.Map // key int64(Price) desc
	asks *treemap.Map // key int64(Price) asc
}

// New creates an empty aggregated book.
func New() *Book {
	return &Book{
		bids: treemap.NewWith(reverseInt64Comparator),
		asks: treemap.NewWith(int64Comparator),
	}
}

func (b *Book) tree(side venue.Side) *treemap.Map {
	if side == venue.Bid {
		return b.bids
	}
	return b.asks
}

// ApplySet upserts one venue's contribution at (side, price). A zero qty is
// equivalent to ApplyClear. This is its own bounded write critical section;
// callers applying more than one delta as a unit must use ApplyBatch instead
// so the whole batch is atomic under a single lock acquisition.
func (b *Book) ApplySet(id venue.ID, side venue.Side, price ticks.Price, qty ticks.Qty, updateID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.applySetLocked(id, side, price, qty, updateID)
}

func (b *Book) applySetLocked(id venue.ID, side venue.Side, price ticks.Price, qty ticks.Qty, updateID int64) {
	if qty == 0 {
		b.applyClearLocked(id, side, price)
		return
	}
	t := b.tree(side)
	key := int64(price)
	var lv *level
	if v, ok := t.Get(key); ok {
		lv = v.(*level)
	} else {
		lv = newLevel()
		t.Put(key, lv)
	}
	lv.set(id, qty, updateID)
}

// ApplyClear removes one venue's contribution at (side, price). The bucket
// itself is removed once no venue contributes to it, satisfying the
// no-zero-qty-levels invariant.
func (b *Book) ApplyClear(id venue.ID, side venue.Side, price ticks.Price) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.applyClearLocked(id, side, price)
}

func (b *Book) applyClearLocked(id venue.ID, side venue.Side, price ticks.Price) {
	t := b.tree(side)
	key := int64(price)
	v, ok := t.Get(key)
	if !ok {
		return
	}
	lv := v.(*level)
	lv.clear(id)
	if lv.empty() {
		t.Remove(key)
	}
}

// ApplyBatch applies every delta in one venue's batch under a single lock
// acquisition, so the whole batch is one bounded write critical section and
// no reader (TopN, CheckCrossed) can observe a partially-applied batch.
func (b *Book) ApplyBatch(id venue.ID, deltas []venue.Delta, updateID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, d := range deltas {
		b.applySetLocked(id, d.Side, d.Price, d.Qty, updateID)
	}
}

// ClearVenue removes every level's contribution from one venue, pruning
// any level left with no contributors. The supervisor does not call it: a
// fault from either venue clears the whole book with ClearAll.
func (b *Book) ClearVenue(id venue.ID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clearVenueLocked(id)
}

func (b *Book) clearVenueLocked(id venue.ID) {
	for _, t := range []*treemap.Map{b.bids, b.asks} {
		var empty []interface{}
		it := t.Iterator()
		for it.Next() {
			lv := it.Value().(*level)
			lv.clear(id)
			if lv.empty() {
				empty = append(empty, it.Key())
			}
		}
		for _, k := range empty {
			t.Remove(k)
		}
	}
}

// ApplySnapshot replaces one venue's entire contribution on both sides
// under a single lock acquisition, so a bootstrap snapshot is one bounded
// write critical section and no reader can observe it half-applied.
func (b *Book) ApplySnapshot(id venue.ID, bids, asks []venue.Delta, updateID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clearVenueLocked(id)
	for _, d := range bids {
		b.applySetLocked(id, venue.Bid, d.Price, d.Qty, updateID)
	}
	for _, d := range asks {
		b.applySetLocked(id, venue.Ask, d.Price, d.Qty, updateID)
	}
}

// ClearAll empties both sides. Called on every joint adapter restart so the
// next session starts from a clean snapshot.
func (b *Book) ClearAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bids.Clear()
	b.asks.Clear()
}

// TopN returns up to n levels on the given side, best price first, with
// each level's total quantity and dominant origin venue.
func (b *Book) TopN(side venue.Side, n int) []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t := b.tree(side)
	out := make([]Entry, 0, n)
	it := t.Iterator()
	for it.Next() && len(out) < n {
		lv := it.Value().(*level)
		qty, origin := lv.dominant()
		out = append(out, Entry{Price: ticks.Price(it.Key().(int64)), Qty: qty, Origin: origin})
	}
	return out
}

// CheckCrossed reports ErrCrossed if the best bid is not strictly below the
// best ask. Must be called, and satisfied, before any retention pruning.
func (b *Book) CheckCrossed() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bestBid, hasBid := b.bids.Min()
	bestAsk, hasAsk := b.asks.Min() // asks ordered ascending, so Min is best ask
	if !hasBid || !hasAsk {
		return nil
	}
	if bestBid.(int64) >= bestAsk.(int64) {
		return ErrCrossed
	}
	return nil
}

// Prune discards levels beyond the first k on each side, freeing memory in
// deployments that configure a retention cap. Callers must run
// CheckCrossed first; pruning before detecting a crossed book could hide
// the very condition that should trigger a desync.
func (b *Book) Prune(k int) {
	if k <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, side := range []venue.Side{venue.Bid, venue.Ask} {
		t := b.tree(side)
		if t.Size() <= k {
			continue
		}
		keys := t.Keys() // already in comparator order
		drop := keys[k:]
		for _, key := range drop {
			t.Remove(key)
		}
	}
}
