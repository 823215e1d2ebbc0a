// Package publisher fans out top-of-book summaries to subscribers without
// ever blocking on a slow reader: each subscriber gets a single-slot
// latest-wins channel, generalized from a fire-and-forget subscribe/publish
// pattern into one that actually conflates instead of piling up.
package publisher

import (
	"sync"

	"github.com/BullionBear/aggbook/internal/book"
	"github.com/BullionBear/aggbook/internal/ticks"
	"github.com/BullionBear/aggbook/internal/venue"
	"github.com/BullionBear/aggbook/internal/xlog"
)

// Level is one row of a published summary.
type Level struct {
	Exchange string
	Price    float64
	Amount   float64
}

// Summary is the outbound top-of-book view for one batch.
type Summary struct {
	Spread float64
	Bids   []Level
	Asks   []Level
}

// subscriber holds one consumer's single-slot mailbox.
type subscriber struct {
	ch chan *Summary
}

// Publisher computes a Summary from the aggregated book on every notify and
// fans it out to all current subscribers. It never blocks: a subscriber
// that is not keeping up has its pending summary replaced, not queued.
type Publisher struct {
	n      int
	log    xlog.Logger
	mirror *NATSMirror
	mu     sync.Mutex
	subs   map[int]*subscriber
	next   int
}

// Option configures a Publisher built by New.
type Option func(*Publisher)

// WithNATSMirror republishes every summary onto a JetStream subject in
// addition to the subscriber channel fan-out.
func WithNATSMirror(m *NATSMirror) Option {
	return func(p *Publisher) { p.mirror = m }
}

// New builds a Publisher that reads the top n levels on each side.
func New(n int, log xlog.Logger, opts ...Option) *Publisher {
	p := &Publisher{
		n:    n,
		log:  log,
		subs: make(map[int]*subscriber),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Subscribe registers a new subscriber and returns its receive channel and
// an unsubscribe function. The channel has capacity 1: a pending summary is
// replaced, never queued, so a subscriber always reads the most recent
// state once it catches up.
func (p *Publisher) Subscribe() (<-chan *Summary, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.next
	p.next++
	sub := &subscriber{ch: make(chan *Summary, 1)}
	p.subs[id] = sub
	return sub.ch, func() { p.unsubscribe(id) }
}

func (p *Publisher) unsubscribe(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sub, ok := p.subs[id]; ok {
		close(sub.ch)
		delete(p.subs, id)
	}
}

// Publish computes the current summary from b at the given scale and
// conflate-sends it to every subscriber. It must never be called while a
// book write lease is held by the caller.
func (p *Publisher) Publish(b *book.Book, scale ticks.Scale) {
	summary := p.buildSummary(b, scale)

	if p.mirror != nil {
		if err := p.mirror.publish(summary); err != nil {
			p.log.Warn("nats mirror publish failed", xlog.Err(err))
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for id, sub := range p.subs {
		select {
		case sub.ch <- summary:
		default:
			// Drop the stale pending summary in favor of the new one.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- summary:
			default:
				p.log.Warn("subscriber send window missed twice, dropping update", xlog.Int("subscriber", id))
			}
		}
	}
}

func (p *Publisher) buildSummary(b *book.Book, scale ticks.Scale) *Summary {
	bids := b.TopN(venue.Bid, p.n)
	asks := b.TopN(venue.Ask, p.n)

	summary := &Summary{
		Bids: make([]Level, len(bids)),
		Asks: make([]Level, len(asks)),
	}
	for i, e := range bids {
		summary.Bids[i] = Level{Exchange: string(e.Origin), Price: e.Price.Float(scale), Amount: e.Qty.Float(scale)}
	}
	for i, e := range asks {
		summary.Asks[i] = Level{Exchange: string(e.Origin), Price: e.Price.Float(scale), Amount: e.Qty.Float(scale)}
	}
	if len(bids) > 0 && len(asks) > 0 {
		summary.Spread = asks[0].Price.Float(scale) - bids[0].Price.Float(scale)
	}
	return summary
}
