// Package bitstamp implements the Bitstamp venue adapter. Bitstamp has no
// vendor SDK anywhere in this module's dependency lineage, so the adapter
// talks the WebSocket and REST protocols directly, in the same dial/read
// loop/idle-timeout shape a hand-rolled WebSocket client elsewhere in this
// codebase uses for Binance's user-data stream.
package bitstamp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BullionBear/aggbook/internal/ticks"
	"github.com/BullionBear/aggbook/internal/venue"
	"github.com/BullionBear/aggbook/internal/xlog"
)

// Config configures one Adapter instance.
type Config struct {
	Symbol          string
	Scale           ticks.Scale
	RESTBaseURL     string
	WSBaseURL       string
	SnapshotTimeout time.Duration
	// IdleTimeout disconnects the stream if no message arrives for this
	// long. Per the contract this defaults to 30s.
	IdleTimeout time.Duration
	// AllowGaps mirrors the venue's own no-gap-guarantee declaration for
	// its diff stream.
	AllowGaps bool
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.RESTBaseURL == "" {
		out.RESTBaseURL = "https://www.bitstamp.net/api/v2"
	}
	if out.WSBaseURL == "" {
		out.WSBaseURL = "wss://ws.bitstamp.net"
	}
	if out.SnapshotTimeout <= 0 {
		out.SnapshotTimeout = 5 * time.Second
	}
	if out.IdleTimeout <= 0 {
		out.IdleTimeout = 30 * time.Second
	}
	return out
}

// Adapter bootstraps and streams Bitstamp's diff-order-book feed for one
// symbol.
type Adapter struct {
	cfg    Config
	log    xlog.Logger
	client *http.Client
}

// New builds a Bitstamp venue adapter.
func New(cfg Config, log xlog.Logger) *Adapter {
	cfg = cfg.withDefaults()
	return &Adapter{
		cfg:    cfg,
		log:    log.With(xlog.String("venue", string(venue.Bitstamp))),
		client: &http.Client{Timeout: cfg.SnapshotTimeout},
	}
}

func (a *Adapter) ID() venue.ID { return venue.Bitstamp }

type snapshotResponse struct {
	Microtimestamp string     `json:"microtimestamp"`
	Bids           [][]string `json:"bids"`
	Asks           [][]string `json:"asks"`
}

type wsEnvelope struct {
	Event   string  `json:"event"`
	Channel string  `json:"channel"`
	Data    wsDelta `json:"data"`
}

type wsDelta struct {
	Microtimestamp string     `json:"microtimestamp"`
	Bids           [][]string `json:"bids"`
	Asks           [][]string `json:"asks"`
}

func (a *Adapter) channel() string { return "diff_order_book_" + a.cfg.Symbol }

// Start runs the bootstrap-then-stream session: open the WebSocket and
// subscribe first so no diff is dropped while the REST snapshot is in
// flight, fetch the snapshot, apply it, drain the buffered diffs under the
// monotonic-sequence continuity rule, then flip to Synced.
func (a *Adapter) Start(ctx context.Context, w venue.SessionWriter) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, a.cfg.WSBaseURL, nil)
	if err != nil {
		f := &venue.Fault{Venue: venue.Bitstamp, Kind: venue.Disconnected, Err: fmt.Errorf("dial: %w", err)}
		w.Fault(f)
		return f
	}
	defer conn.Close()

	sub := map[string]interface{}{
		"event": "bts:subscribe",
		"data":  map[string]string{"channel": a.channel()},
	}
	if err := conn.WriteJSON(sub); err != nil {
		f := &venue.Fault{Venue: venue.Bitstamp, Kind: venue.Disconnected, Err: fmt.Errorf("subscribe: %w", err)}
		w.Fault(f)
		return f
	}

	events := make(chan wsDelta, 1024)
	readErrs := make(chan error, 1)
	readerCtx, cancelReader := context.WithCancel(ctx)
	defer cancelReader()

	go a.readLoop(readerCtx, conn, events, readErrs)

	snapCtx, cancelSnap := context.WithTimeout(ctx, a.cfg.SnapshotTimeout)
	microID, bids, asks, err := a.fetchSnapshot(snapCtx)
	cancelSnap()
	if err != nil {
		f := &venue.Fault{Venue: venue.Bitstamp, Kind: venue.Disconnected, Err: err}
		w.Fault(f)
		return f
	}
	if err := w.Snapshot(ctx, venue.Bitstamp, bids, asks, microID); err != nil {
		// The only error a SessionWriter returns here is a crossed aggregated
		// book, which is a desync of the session, not an unrecoverable fault.
		f := &venue.Fault{Venue: venue.Bitstamp, Kind: venue.Desync, Err: err}
		w.Fault(f)
		return f
	}

	continuity := venue.NewBitstampContinuity(microID, a.cfg.AllowGaps)
	a.log.Info("bootstrap complete", xlog.Int64("snapshot_update_id", microID))

	idle := time.NewTimer(a.cfg.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErrs:
			f := &venue.Fault{Venue: venue.Bitstamp, Kind: venue.Disconnected, Err: err}
			w.Fault(f)
			return f
		case <-idle.C:
			f := &venue.Fault{Venue: venue.Bitstamp, Kind: venue.Disconnected, Err: fmt.Errorf("no message for %s", a.cfg.IdleTimeout)}
			w.Fault(f)
			return f
		case d := <-events:
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(a.cfg.IdleTimeout)

			seq, err := parseMicrotimestamp(d.Microtimestamp)
			if err != nil {
				f := &venue.Fault{Venue: venue.Bitstamp, Kind: venue.Desync, Err: err}
				w.Fault(f)
				return f
			}
			if seq <= microID {
				continue // covered by the snapshot, discard per the drain rule
			}
			if err := continuity.Check(seq); err != nil {
				f := &venue.Fault{Venue: venue.Bitstamp, Kind: venue.Desync, Err: err}
				w.Fault(f)
				return f
			}
			batch, err := convertBatch(d, seq, a.cfg.Scale)
			if err != nil {
				f := &venue.Fault{Venue: venue.Bitstamp, Kind: venue.Desync, Err: err}
				w.Fault(f)
				return f
			}
			if err := w.Apply(ctx, batch); err != nil {
				f := &venue.Fault{Venue: venue.Bitstamp, Kind: venue.Desync, Err: err}
				w.Fault(f)
				return f
			}
		}
	}
}

func (a *Adapter) readLoop(ctx context.Context, conn *websocket.Conn, events chan<- wsDelta, errs chan<- error) {
	for {
		var env wsEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			select {
			case <-ctx.Done():
			case errs <- fmt.Errorf("read: %w", err):
			}
			return
		}
		if env.Event != "data" {
			continue
		}
		select {
		case events <- env.Data:
		case <-ctx.Done():
			return
		}
	}
}

func (a *Adapter) fetchSnapshot(ctx context.Context) (microID int64, bids, asks []venue.Delta, err error) {
	url := fmt.Sprintf("%s/order_book/%s/", a.cfg.RESTBaseURL, a.cfg.Symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("bitstamp: fetch snapshot: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, nil, nil, fmt.Errorf("bitstamp: snapshot status %d", resp.StatusCode)
	}

	var snap snapshotResponse
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return 0, nil, nil, fmt.Errorf("bitstamp: decode snapshot: %w", err)
	}
	microID, err = parseMicrotimestamp(snap.Microtimestamp)
	if err != nil {
		return 0, nil, nil, err
	}
	if bids, err = convertLevelPairs(snap.Bids, a.cfg.Scale); err != nil {
		return 0, nil, nil, err
	}
	if asks, err = convertLevelPairs(snap.Asks, a.cfg.Scale); err != nil {
		return 0, nil, nil, err
	}
	return microID, bids, asks, nil
}

func parseMicrotimestamp(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bitstamp: parse microtimestamp %q: %w", s, err)
	}
	return v, nil
}

func convertLevelPairs(pairs [][]string, scale ticks.Scale) ([]venue.Delta, error) {
	out := make([]venue.Delta, 0, len(pairs))
	for _, pair := range pairs {
		if len(pair) != 2 {
			return nil, fmt.Errorf("bitstamp: malformed level pair %v", pair)
		}
		qty, err := ticks.ParseQty(pair[1], scale)
		if err != nil {
			return nil, fmt.Errorf("bitstamp: %w", err)
		}
		if qty == 0 {
			continue
		}
		price, err := ticks.ParsePrice(pair[0], scale)
		if err != nil {
			return nil, fmt.Errorf("bitstamp: %w", err)
		}
		out = append(out, venue.Delta{Price: price, Qty: qty})
	}
	return out, nil
}

func convertBatch(d wsDelta, seq int64, scale ticks.Scale) (venue.Batch, error) {
	bids, err := convertSideDeltas(venue.Bid, d.Bids, scale)
	if err != nil {
		return venue.Batch{}, err
	}
	asks, err := convertSideDeltas(venue.Ask, d.Asks, scale)
	if err != nil {
		return venue.Batch{}, err
	}
	deltas := make([]venue.Delta, 0, len(bids)+len(asks))
	deltas = append(deltas, bids...)
	deltas = append(deltas, asks...)
	return venue.Batch{Venue: venue.Bitstamp, UpdateID: seq, Deltas: deltas}, nil
}

func convertSideDeltas(side venue.Side, pairs [][]string, scale ticks.Scale) ([]venue.Delta, error) {
	out := make([]venue.Delta, 0, len(pairs))
	for _, pair := range pairs {
		if len(pair) != 2 {
			return nil, fmt.Errorf("bitstamp: malformed delta pair %v", pair)
		}
		price, err := ticks.ParsePrice(pair[0], scale)
		if err != nil {
			return nil, fmt.Errorf("bitstamp: %w", err)
		}
		qty, err := ticks.ParseQty(pair[1], scale)
		if err != nil {
			return nil, fmt.Errorf("bitstamp: %w", err)
		}
		out = append(out, venue.Delta{Side: side, Price: price, Qty: qty})
	}
	return out, nil
}
