// Package venue defines the contract every exchange adapter implements:
// bootstrap a synced depth stream, apply deltas under the venue's own
// continuity rule, and surface faults without ever retrying internally.
package venue

import (
	"context"
	"fmt"

	"github.com/BullionBear/aggbook/internal/ticks"
)

// ID identifies a venue contributing to the aggregated book.
type ID string

const (
	Binance  ID = "binance"
	Bitstamp ID = "bitstamp"
)

// Side is one side of the book.
type Side int

const (
	Bid Side = iota
	Ask
)

func (s Side) String() string {
	if s == Bid {
		return "bid"
	}
	return "ask"
}

// Phase is where a venue's stream sits in the bootstrap/continuity
// lifecycle.
type Phase int

const (
	AwaitingSnapshot Phase = iota
	Synced
	Desynced
)

// Delta is a single price-level mutation. Qty == 0 removes the venue's
// contribution at Price; any other value inserts or overwrites it.
type Delta struct {
	Side  Side
	Price ticks.Price
	Qty   ticks.Qty
}

// Batch is a set of deltas that must be applied atomically under one
// write-lock critical section, tagged with the venue-local update ID that
// produced them.
type Batch struct {
	Venue    ID
	UpdateID int64
	Deltas   []Delta
}

// FaultKind classifies why an adapter stopped.
type FaultKind int

const (
	// Disconnected marks a transient transport failure. The supervisor
	// restarts both adapters after a backoff.
	Disconnected FaultKind = iota
	// Desync marks a sequencing or protocol violation: the stream can no
	// longer be trusted to reconstruct the book. The supervisor restarts
	// both adapters after clearing the book.
	Desync
	// Fatal marks an unrecoverable internal error. The process exits.
	Fatal
)

func (k FaultKind) String() string {
	switch k {
	case Disconnected:
		return "disconnected"
	case Desync:
		return "desync"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Fault is what an adapter reports when it can no longer continue.
type Fault struct {
	Venue ID
	Kind  FaultKind
	Err   error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("venue %s: %s: %v", f.Venue, f.Kind, f.Err)
}

// SessionWriter is how an adapter publishes its bootstrap snapshot, its
// steady-state delta batches, and any fault, to the session that owns it.
// Implementations must treat Snapshot/Apply as bounded, non-blocking write
// critical sections: no I/O and no unbounded allocation while the book's
// lock is held.
type SessionWriter interface {
	// Snapshot replaces the venue's entire contribution with bids/asks,
	// tagged with the snapshot's update ID.
	Snapshot(ctx context.Context, venueID ID, bids, asks []Delta, updateID int64) error
	// Apply applies one continuity-valid delta batch.
	Apply(ctx context.Context, batch Batch) error
	// Fault reports that the adapter can no longer continue and is about
	// to return from Start.
	Fault(fault *Fault)
}

// Adapter bootstraps and streams one venue's depth feed.
type Adapter interface {
	ID() ID
	// Start runs until ctx is cancelled or a fault ends the session. It
	// never retries internally; the caller (the supervisor) decides
	// whether and when to call Start again.
	Start(ctx context.Context, w SessionWriter) error
}
