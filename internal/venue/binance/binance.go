// Package binance implements the Binance venue adapter: REST snapshot plus
// diff-depth WebSocket stream, reconciled under the (U, u) range continuity
// rule, grounded in the depth-event handling of a single-venue order book
// but generalized to report through venue.SessionWriter instead of owning
// its own book.
package binance

import (
	"context"
	"fmt"
	"time"

	goBinance "github.com/adshao/go-binance/v2"

	"github.com/BullionBear/aggbook/internal/ticks"
	"github.com/BullionBear/aggbook/internal/venue"
	"github.com/BullionBear/aggbook/internal/xlog"
)

// Config configures one Adapter instance.
type Config struct {
	Symbol      string
	Scale       ticks.Scale
	RESTBaseURL string
	WSBaseURL   string
	// SnapshotTimeout bounds the REST snapshot fetch. Per the contract this
	// defaults to 5s.
	SnapshotTimeout time.Duration
}

// Adapter bootstraps and streams Binance's diff-depth feed for one symbol.
type Adapter struct {
	cfg Config
	log xlog.Logger
}

// New builds a Binance venue adapter.
func New(cfg Config, log xlog.Logger) *Adapter {
	if cfg.SnapshotTimeout <= 0 {
		cfg.SnapshotTimeout = 5 * time.Second
	}
	return &Adapter{cfg: cfg, log: log.With(xlog.String("venue", string(venue.Binance)))}
}

func (a *Adapter) ID() venue.ID { return venue.Binance }

// Start runs the bootstrap-then-stream session described by the venue
// adapter contract: open the WebSocket first so no delta is dropped while
// the REST snapshot is in flight, fetch the snapshot, apply it, drain the
// buffered deltas under the continuity rule, then flip to Synced.
func (a *Adapter) Start(ctx context.Context, w venue.SessionWriter) error {
	client := goBinance.NewClient("", "")
	if a.cfg.RESTBaseURL != "" {
		client.BaseURL = a.cfg.RESTBaseURL
	}

	events := make(chan *goBinance.WsDepthEvent, 1024)
	wsErrs := make(chan error, 1)

	streamCtx, cancelStream := context.WithCancel(ctx)
	defer cancelStream()

	doneC, stopC, err := goBinance.WsDepthServe100Ms(a.cfg.Symbol, func(event *goBinance.WsDepthEvent) {
		select {
		case events <- event:
		case <-streamCtx.Done():
		}
	}, func(err error) {
		select {
		case wsErrs <- err:
		default:
		}
	})
	if err != nil {
		f := &venue.Fault{Venue: venue.Binance, Kind: venue.Disconnected, Err: fmt.Errorf("open depth stream: %w", err)}
		w.Fault(f)
		return f
	}
	defer func() {
		select {
		case <-doneC:
		default:
			close(stopC)
			<-doneC
		}
	}()

	snapCtx, cancelSnap := context.WithTimeout(ctx, a.cfg.SnapshotTimeout)
	snapshot, err := client.NewDepthService().Symbol(a.cfg.Symbol).Limit(1000).Do(snapCtx)
	cancelSnap()
	if err != nil {
		f := &venue.Fault{Venue: venue.Binance, Kind: venue.Disconnected, Err: fmt.Errorf("fetch snapshot: %w", err)}
		w.Fault(f)
		return f
	}

	bids, err := convertLevels(snapshot.Bids, a.cfg.Scale)
	if err != nil {
		f := &venue.Fault{Venue: venue.Binance, Kind: venue.Desync, Err: err}
		w.Fault(f)
		return f
	}
	asks, err := convertLevels(snapshot.Asks, a.cfg.Scale)
	if err != nil {
		f := &venue.Fault{Venue: venue.Binance, Kind: venue.Desync, Err: err}
		w.Fault(f)
		return f
	}
	if err := w.Snapshot(ctx, venue.Binance, bids, asks, snapshot.LastUpdateID); err != nil {
		// The only error a SessionWriter returns here is a crossed aggregated
		// book, which is a desync of the session, not an unrecoverable fault.
		f := &venue.Fault{Venue: venue.Binance, Kind: venue.Desync, Err: err}
		w.Fault(f)
		return f
	}

	continuity := venue.NewBinanceContinuity(snapshot.LastUpdateID)

	a.log.Info("bootstrap complete", xlog.Int64("snapshot_update_id", snapshot.LastUpdateID))

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-wsErrs:
			f := &venue.Fault{Venue: venue.Binance, Kind: venue.Disconnected, Err: err}
			w.Fault(f)
			return f
		case event := <-events:
			if event.LastUpdateID <= snapshot.LastUpdateID {
				continue // already covered by the snapshot, discard per the drain rule
			}
			if err := continuity.Check(event.FirstUpdateID, event.LastUpdateID); err != nil {
				f := &venue.Fault{Venue: venue.Binance, Kind: venue.Desync, Err: err}
				w.Fault(f)
				return f
			}
			batch, err := convertBatch(event, a.cfg.Scale)
			if err != nil {
				f := &venue.Fault{Venue: venue.Binance, Kind: venue.Desync, Err: err}
				w.Fault(f)
				return f
			}
			if err := w.Apply(ctx, batch); err != nil {
				f := &venue.Fault{Venue: venue.Binance, Kind: venue.Desync, Err: err}
				w.Fault(f)
				return f
			}
		}
	}
}

func convertLevels(src []goBinance.Bid, scale ticks.Scale) ([]venue.Delta, error) {
	out := make([]venue.Delta, 0, len(src))
	for _, lv := range src {
		qty, err := ticks.ParseQty(lv.Quantity, scale)
		if err != nil {
			return nil, fmt.Errorf("binance: %w", err)
		}
		if qty == 0 {
			continue // zero-qty entries in a snapshot never persist
		}
		price, err := ticks.ParsePrice(lv.Price, scale)
		if err != nil {
			return nil, fmt.Errorf("binance: %w", err)
		}
		out = append(out, venue.Delta{Price: price, Qty: qty})
	}
	return out, nil
}

func convertBatch(event *goBinance.WsDepthEvent, scale ticks.Scale) (venue.Batch, error) {
	deltas := make([]venue.Delta, 0, len(event.Bids)+len(event.Asks))
	for _, lv := range event.Bids {
		d, err := convertDelta(venue.Bid, lv, scale)
		if err != nil {
			return venue.Batch{}, err
		}
		deltas = append(deltas, d)
	}
	for _, lv := range event.Asks {
		d, err := convertDelta(venue.Ask, lv, scale)
		if err != nil {
			return venue.Batch{}, err
		}
		deltas = append(deltas, d)
	}
	return venue.Batch{Venue: venue.Binance, UpdateID: event.LastUpdateID, Deltas: deltas}, nil
}

func convertDelta(side venue.Side, lv goBinance.Bid, scale ticks.Scale) (venue.Delta, error) {
	price, err := ticks.ParsePrice(lv.Price, scale)
	if err != nil {
		return venue.Delta{}, fmt.Errorf("binance: %w", err)
	}
	qty, err := ticks.ParseQty(lv.Quantity, scale)
	if err != nil {
		return venue.Delta{}, fmt.Errorf("binance: %w", err)
	}
	return venue.Delta{Side: side, Price: price, Qty: qty}, nil
}
