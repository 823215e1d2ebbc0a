package venue

import "errors"

// ErrSequenceGap is returned by a continuity check when a delta cannot be
// applied without losing information — the caller must desync.
var ErrSequenceGap = errors.New("venue: sequence gap")

// BinanceContinuity implements the (U, u) range continuity rule: the first
// delta after a snapshot must straddle the snapshot's update ID
// (U <= snapshotID+1 <= u); every later delta's U must be exactly one past
// the previous delta's u.
type BinanceContinuity struct {
	snapshotID int64
	prevU      int64
	started    bool
}

// NewBinanceContinuity seeds the rule with the snapshot's update ID.
func NewBinanceContinuity(snapshotUpdateID int64) *BinanceContinuity {
	return &BinanceContinuity{snapshotID: snapshotUpdateID}
}

// Check validates a delta's (U, u) range and, if valid, advances the rule's
// state so the next delta is checked against this one.
func (c *BinanceContinuity) Check(U, u int64) error {
	if !c.started {
		if !(U <= c.snapshotID+1 && c.snapshotID+1 <= u) {
			return ErrSequenceGap
		}
		c.started = true
		c.prevU = u
		return nil
	}
	if U != c.prevU+1 {
		return ErrSequenceGap
	}
	c.prevU = u
	return nil
}

// BitstampContinuity implements the single monotonic sequence-number rule:
// the first delta's sequence must exceed the snapshot's update ID; every
// later delta's sequence must exceed the previous one. When allowGaps is
// set (the venue declares no gap guarantee) a gap is tolerated as long as
// strict monotonicity holds; otherwise any gap is a desync.
type BitstampContinuity struct {
	snapshotID int64
	prevSeq    int64
	started    bool
	allowGaps  bool
}

// NewBitstampContinuity seeds the rule with the snapshot's update ID.
func NewBitstampContinuity(snapshotUpdateID int64, allowGaps bool) *BitstampContinuity {
	return &BitstampContinuity{snapshotID: snapshotUpdateID, allowGaps: allowGaps}
}

// Check validates a delta's sequence number.
func (c *BitstampContinuity) Check(seq int64) error {
	if !c.started {
		if seq <= c.snapshotID {
			return ErrSequenceGap
		}
		c.started = true
		c.prevSeq = seq
		return nil
	}
	if seq <= c.prevSeq {
		return ErrSequenceGap
	}
	if !c.allowGaps && seq != c.prevSeq+1 {
		return ErrSequenceGap
	}
	c.prevSeq = seq
	return nil
}
