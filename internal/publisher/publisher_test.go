package publisher

import (
	"io"
	"testing"

	"github.com/BullionBear/aggbook/internal/book"
	"github.com/BullionBear/aggbook/internal/ticks"
	"github.com/BullionBear/aggbook/internal/venue"
	"github.com/BullionBear/aggbook/internal/xlog"
)

func testLogger() xlog.Logger {
	return xlog.New(xlog.WithOutput(io.Discard))
}

func buildBook() *book.Book {
	b := book.New()
	b.ApplySet(venue.Binance, venue.Bid, 100_00000000, 1_00000000, 1)
	b.ApplySet(venue.Bitstamp, venue.Ask, 101_00000000, 2_00000000, 1)
	return b
}

func TestPublishDeliversSummaryToSubscriber(t *testing.T) {
	p := New(10, testLogger())
	ch, unsubscribe := p.Subscribe()
	defer unsubscribe()

	p.Publish(buildBook(), ticks.DefaultScale)

	select {
	case summary := <-ch:
		if summary.Spread != 1 {
			t.Fatalf("expected spread 1, got %v", summary.Spread)
		}
		if len(summary.Bids) != 1 || summary.Bids[0].Exchange != "binance" {
			t.Fatalf("unexpected bids: %+v", summary.Bids)
		}
	default:
		t.Fatal("expected a summary to be immediately available")
	}
}

// TestSlowSubscriberConflatesToLatest mirrors the contract's slow-subscriber
// scenario: three rapid summaries arrive before the subscriber reads once,
// and only the latest must be observed.
func TestSlowSubscriberConflatesToLatest(t *testing.T) {
	p := New(10, testLogger())
	ch, unsubscribe := p.Subscribe()
	defer unsubscribe()

	for i := 0; i < 3; i++ {
		b := book.New()
		b.ApplySet(venue.Binance, venue.Bid, ticks.Price(100+i), 1, int64(i+1))
		p.Publish(b, ticks.DefaultScale)
	}

	select {
	case summary := <-ch:
		if len(summary.Bids) != 1 || summary.Bids[0].Price != ticks.Price(102).Float(ticks.DefaultScale) {
			t.Fatalf("expected only the latest summary (price 102 ticks) to survive conflation, got %+v", summary.Bids)
		}
	default:
		t.Fatal("expected the conflated summary to be available")
	}

	select {
	case <-ch:
		t.Fatal("expected no second summary queued behind the conflated one")
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	p := New(10, testLogger())
	ch, unsubscribe := p.Subscribe()
	unsubscribe()

	if _, ok := <-ch; ok {
		t.Fatal("expected channel closed after unsubscribe")
	}
}

func TestPublishSkipsEvictedSubscribersWithoutBlocking(t *testing.T) {
	p := New(10, testLogger())
	_, unsubscribe := p.Subscribe()
	unsubscribe()

	// Must not panic or block sending to a subscriber that already
	// unsubscribed.
	p.Publish(buildBook(), ticks.DefaultScale)
}
