// Package supervisor runs the two venue adapters as one joint session: it
// waits for both to reach Synced before publishing anything, and on any
// fault from either one tears both down, clears the aggregated book, and
// restarts the pair after a bounded exponential backoff.
package supervisor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/google/uuid"

	"github.com/BullionBear/aggbook/internal/book"
	"github.com/BullionBear/aggbook/internal/publisher"
	"github.com/BullionBear/aggbook/internal/ticks"
	"github.com/BullionBear/aggbook/internal/venue"
	"github.com/BullionBear/aggbook/internal/xlog"
)

// LifecycleTopic is the EventBus topic a Supervisor publishes phase
// transitions on. Handlers receive the Event below.
const LifecycleTopic = "supervisor:lifecycle"

// Event describes one lifecycle transition for one session.
type Event struct {
	SessionID string
	Phase     string
	Err       error
}

const (
	phaseConnecting = "connecting"
	phaseLive       = "live"
	phaseTearing    = "tearing"
	phaseDesynced   = "desynced"
)

// Config controls restart backoff and retention.
type Config struct {
	Scale        ticks.Scale
	RetentionCap int
	BackoffBase  time.Duration
	BackoffMax   time.Duration
}

func (c Config) withDefaults() Config {
	if c.BackoffBase <= 0 {
		c.BackoffBase = 250 * time.Millisecond
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 4 * time.Second
	}
	return c
}

// Supervisor owns the aggregated book and drives the Binance/Bitstamp
// adapters through repeated sessions for as long as its context lives.
type Supervisor struct {
	cfg      Config
	log      xlog.Logger
	book     *book.Book
	pub      *publisher.Publisher
	adapters []venue.Adapter
	bus      EventBus.Bus

	mu      sync.Mutex
	pending map[venue.ID]struct{} // venues not yet Synced this session
}

// New builds a Supervisor over adapters, publishing aggregated summaries to
// pub and lifecycle events on its own EventBus.
func New(cfg Config, log xlog.Logger, b *book.Book, pub *publisher.Publisher, adapters ...venue.Adapter) *Supervisor {
	return &Supervisor{
		cfg:      cfg.withDefaults(),
		log:      log,
		book:     b,
		pub:      pub,
		adapters: adapters,
		bus:      EventBus.New(),
	}
}

// Subscribe registers handler for every lifecycle Event.
func (s *Supervisor) Subscribe(handler func(Event)) error {
	return s.bus.Subscribe(LifecycleTopic, handler)
}

func (s *Supervisor) emit(sessionID, phase string, err error) {
	s.log.Info("session phase transition", xlog.String("session_id", sessionID), xlog.String("phase", phase), xlog.Err(err))
	s.bus.Publish(LifecycleTopic, Event{SessionID: sessionID, Phase: phase, Err: err})
}

// Run drives sessions back to back, restarting after backoff, until ctx is
// cancelled or an adapter reports a Fatal fault, which Run returns.
func (s *Supervisor) Run(ctx context.Context) error {
	backoff := s.cfg.BackoffBase
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		sessionID := uuid.NewString()
		err := s.runSession(ctx, sessionID)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.emit(sessionID, phaseTearing, err)
		s.book.ClearAll()

		var fault *venue.Fault
		if errors.As(err, &fault) && fault.Kind == venue.Fatal {
			return fault
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > s.cfg.BackoffMax {
			backoff = s.cfg.BackoffMax
		}
	}
}

// runSession runs one generation of both adapters concurrently and returns
// once either one faults or ctx is cancelled. A fault from one adapter
// cancels the other.
func (s *Supervisor) runSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	s.pending = make(map[venue.ID]struct{}, len(s.adapters))
	for _, a := range s.adapters {
		s.pending[a.ID()] = struct{}{}
	}
	s.mu.Unlock()

	s.emit(sessionID, phaseConnecting, nil)

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := &sessionWriter{
		sup:       s,
		sessionID: sessionID,
		cancel:    cancel,
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(s.adapters))
	for _, a := range s.adapters {
		wg.Add(1)
		go func(a venue.Adapter) {
			defer wg.Done()
			errs <- a.Start(sessionCtx, w)
		}(a)
	}

	go func() {
		wg.Wait()
		close(errs)
	}()

	var first error
	for err := range errs {
		if err != nil && first == nil {
			first = err
			cancel() // a fault from one adapter must tear down the other
		}
	}
	return first
}

// sessionWriter bridges one session's adapters to the aggregated book and
// the publisher, and marks every adapter Synced before the book is live.
type sessionWriter struct {
	sup       *Supervisor
	sessionID string
	cancel    context.CancelFunc

	mu      sync.Mutex
	live    bool
}

func (w *sessionWriter) Snapshot(ctx context.Context, id venue.ID, bids, asks []venue.Delta, updateID int64) error {
	w.sup.book.ApplySnapshot(id, bids, asks, updateID)
	w.markSynced(id)
	return w.afterWrite(ctx)
}

func (w *sessionWriter) Apply(ctx context.Context, batch venue.Batch) error {
	w.sup.book.ApplyBatch(batch.Venue, batch.Deltas, batch.UpdateID)
	return w.afterWrite(ctx)
}

func (w *sessionWriter) afterWrite(ctx context.Context) error {
	if err := w.sup.book.CheckCrossed(); err != nil {
		return err
	}
	w.sup.book.Prune(w.sup.cfg.RetentionCap)

	w.mu.Lock()
	live := w.live
	w.mu.Unlock()
	if live {
		w.sup.pub.Publish(w.sup.book, w.sup.cfg.Scale)
	}
	return nil
}

func (w *sessionWriter) markSynced(id venue.ID) {
	w.sup.mu.Lock()
	delete(w.sup.pending, id)
	allSynced := len(w.sup.pending) == 0
	w.sup.mu.Unlock()

	if allSynced {
		w.mu.Lock()
		w.live = true
		w.mu.Unlock()
		w.sup.emit(w.sessionID, phaseLive, nil)
	}
}

func (w *sessionWriter) Fault(fault *venue.Fault) {
	phase := phaseTearing
	if fault.Kind == venue.Desync {
		phase = phaseDesynced
	}
	w.sup.emit(w.sessionID, phase, fault)
	w.cancel()
}
