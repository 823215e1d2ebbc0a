package book

import (
	"testing"

	"github.com/BullionBear/aggbook/internal/ticks"
	"github.com/BullionBear/aggbook/internal/venue"
)

func TestApplySetDominanceRuleTieBreaksByVenueID(t *testing.T) {
	b := New()
	// Bitstamp writes this price first; the tie-break must still land on
	// Binance, since it depends on venue.ID ordering, not arrival order.
	b.ApplySet(venue.Bitstamp, venue.Bid, 100, 5, 1)
	b.ApplySet(venue.Binance, venue.Bid, 100, 5, 1)

	top := b.TopN(venue.Bid, 1)
	if len(top) != 1 {
		t.Fatalf("expected one level, got %d", len(top))
	}
	if top[0].Origin != venue.Binance {
		t.Fatalf("expected binance to win the tie by venue.ID ordering, got %s", top[0].Origin)
	}
	if top[0].Qty != 10 {
		t.Fatalf("expected combined qty 10, got %d", top[0].Qty)
	}
}

func TestApplySetDominanceRuleIndependentOfInterleaving(t *testing.T) {
	a := New()
	a.ApplySet(venue.Binance, venue.Bid, 100, 5, 1)
	a.ApplySet(venue.Bitstamp, venue.Bid, 100, 5, 1)

	c := New()
	c.ApplySet(venue.Bitstamp, venue.Bid, 100, 5, 1)
	c.ApplySet(venue.Binance, venue.Bid, 100, 5, 1)

	topA := a.TopN(venue.Bid, 1)
	topC := c.TopN(venue.Bid, 1)
	if topA[0].Origin != topC[0].Origin {
		t.Fatalf("dominance tie-break must not depend on write order: got %s vs %s", topA[0].Origin, topC[0].Origin)
	}
}

func TestApplySetDominanceRuleLargerQtyWins(t *testing.T) {
	b := New()
	b.ApplySet(venue.Binance, venue.Ask, 100, 3, 1)
	b.ApplySet(venue.Bitstamp, venue.Ask, 100, 7, 1)

	top := b.TopN(venue.Ask, 1)
	if top[0].Origin != venue.Bitstamp {
		t.Fatalf("expected bitstamp (larger qty) to dominate, got %s", top[0].Origin)
	}
}

func TestApplySetZeroQtyRemovesLevel(t *testing.T) {
	b := New()
	b.ApplySet(venue.Binance, venue.Bid, 100, 5, 1)
	b.ApplySet(venue.Binance, venue.Bid, 100, 0, 2)

	if top := b.TopN(venue.Bid, 10); len(top) != 0 {
		t.Fatalf("expected level removed after zero qty, got %+v", top)
	}
}

func TestApplyClearRemovesOnlyOneVenuesContribution(t *testing.T) {
	b := New()
	b.ApplySet(venue.Binance, venue.Bid, 100, 5, 1)
	b.ApplySet(venue.Bitstamp, venue.Bid, 100, 3, 1)
	b.ApplyClear(venue.Binance, venue.Bid, 100)

	top := b.TopN(venue.Bid, 10)
	if len(top) != 1 || top[0].Qty != 3 || top[0].Origin != venue.Bitstamp {
		t.Fatalf("expected only bitstamp's 3 remaining, got %+v", top)
	}
}

func TestClearVenuePrunesEmptyLevels(t *testing.T) {
	b := New()
	b.ApplySet(venue.Binance, venue.Bid, 100, 5, 1)
	b.ApplySet(venue.Bitstamp, venue.Bid, 100, 3, 1)
	b.ApplySet(venue.Binance, venue.Bid, 99, 2, 1)

	b.ClearVenue(venue.Binance)

	top := b.TopN(venue.Bid, 10)
	if len(top) != 1 || top[0].Price != 100 || top[0].Origin != venue.Bitstamp {
		t.Fatalf("expected only bitstamp's level at 100 to survive, got %+v", top)
	}
}

func TestTopNOrdering(t *testing.T) {
	b := New()
	for _, p := range []ticks.Price{100, 102, 101} {
		b.ApplySet(venue.Binance, venue.Bid, p, 1, 1)
		b.ApplySet(venue.Binance, venue.Ask, p, 1, 1)
	}
	bids := b.TopN(venue.Bid, 10)
	if bids[0].Price != 102 || bids[1].Price != 101 || bids[2].Price != 100 {
		t.Fatalf("expected bids descending, got %+v", bids)
	}
	asks := b.TopN(venue.Ask, 10)
	if asks[0].Price != 100 || asks[1].Price != 101 || asks[2].Price != 102 {
		t.Fatalf("expected asks ascending, got %+v", asks)
	}
}

func TestCheckCrossedDetectsCrossedBook(t *testing.T) {
	b := New()
	b.ApplySet(venue.Binance, venue.Bid, 101, 1, 1)
	b.ApplySet(venue.Bitstamp, venue.Ask, 100, 1, 1)

	if err := b.CheckCrossed(); err != ErrCrossed {
		t.Fatalf("expected ErrCrossed, got %v", err)
	}
}

func TestCheckCrossedAllowsNormalBook(t *testing.T) {
	b := New()
	b.ApplySet(venue.Binance, venue.Bid, 99, 1, 1)
	b.ApplySet(venue.Bitstamp, venue.Ask, 100, 1, 1)

	if err := b.CheckCrossed(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestClearAllEmptiesBothSides(t *testing.T) {
	b := New()
	b.ApplySet(venue.Binance, venue.Bid, 100, 1, 1)
	b.ApplySet(venue.Binance, venue.Ask, 101, 1, 1)
	b.ClearAll()

	if len(b.TopN(venue.Bid, 10)) != 0 || len(b.TopN(venue.Ask, 10)) != 0 {
		t.Fatal("expected both sides empty after ClearAll")
	}
}

func TestApplySnapshotAppliesBothSidesUnderOneLock(t *testing.T) {
	b := New()
	b.ApplySnapshot(venue.Binance,
		[]venue.Delta{{Price: 100, Qty: 5}, {Price: 99, Qty: 2}},
		[]venue.Delta{{Price: 101, Qty: 3}},
		1)

	bids := b.TopN(venue.Bid, 10)
	asks := b.TopN(venue.Ask, 10)
	if len(bids) != 2 || len(asks) != 1 {
		t.Fatalf("expected snapshot to populate both sides, got bids=%+v asks=%+v", bids, asks)
	}
	if bids[0].Price != 100 || asks[0].Price != 101 {
		t.Fatalf("unexpected snapshot levels: bids=%+v asks=%+v", bids, asks)
	}
}

func TestApplyBatchAppliesEveryDeltaUnderOneLock(t *testing.T) {
	b := New()
	b.ApplySet(venue.Binance, venue.Bid, 100, 5, 1)

	b.ApplyBatch(venue.Binance, []venue.Delta{
		{Side: venue.Bid, Price: 100, Qty: 0}, // removes the level
		{Side: venue.Bid, Price: 99, Qty: 4},
	}, 2)

	top := b.TopN(venue.Bid, 10)
	if len(top) != 1 || top[0].Price != 99 || top[0].Qty != 4 {
		t.Fatalf("expected only the new level at 99, got %+v", top)
	}
}

func TestPruneRetainsOnlyTopK(t *testing.T) {
	b := New()
	for i := ticks.Price(0); i < 20; i++ {
		b.ApplySet(venue.Binance, venue.Bid, 100+i, 1, 1)
	}
	if err := b.CheckCrossed(); err != nil {
		t.Fatalf("unexpected crossed book: %v", err)
	}
	b.Prune(5)
	if top := b.TopN(venue.Bid, 100); len(top) != 5 {
		t.Fatalf("expected 5 retained levels, got %d", len(top))
	}
}
