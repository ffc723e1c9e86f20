package wal

import (
	"time"

	"github.com/meetcleo/cdc-pipeline/pkg/log"
)

// Rotator decides when the current epoch should be swapped for a fresh
// one. Rotation only ever happens on a COMMIT boundary: a changed-data
// line can never be split across two epochs, since the aggregator keys
// its ChangeSets by epoch and a row's INSERT/UPDATE/DELETE must all be
// visible to the same aggregation pass as the COMMIT that closes it.
type Rotator struct {
	interval     time.Duration
	dir          string
	current      *Epoch
	nextNumber   uint64
	lastRotateAt time.Time
	now          func() time.Time

	// pendingSwap is set once a COMMIT line has been written to the
	// closing epoch; the very next call to ObserveLine emits the SwapWal
	// signal before any line of the new epoch is processed.
	pendingSwap bool
}

// SwapWal is returned by ObserveLine exactly once, on the call immediately
// following the COMMIT that closed the previous epoch, before the new
// epoch has accepted any lines. Callers must register the new epoch with
// the aggregator before processing the line that produced this result.
type SwapWal struct {
	Closed *Epoch
	Opened *Epoch
}

// NewRotator opens (or resumes into) the first epoch in dir and returns
// a Rotator that rotates every interval, bounded to COMMIT boundaries.
func NewRotator(dir string, interval time.Duration, startNumber uint64) (*Rotator, error) {
	ep, err := OpenEpoch(dir, startNumber)
	if err != nil {
		return nil, err
	}
	return &Rotator{
		interval:     interval,
		dir:          dir,
		current:      ep,
		nextNumber:   startNumber + 1,
		lastRotateAt: time.Now(),
		now:          time.Now,
	}, nil
}

// Current returns the epoch currently accepting writes.
func (r *Rotator) Current() *Epoch {
	return r.current
}

// ObserveCommit must be called after a COMMIT line is durably written to
// the current epoch. If the rotation interval has elapsed, it marks a
// swap pending; the swap itself happens on the next ObserveLine call, so
// the COMMIT line and everything before it stays in the closing epoch.
func (r *Rotator) ObserveCommit() {
	if r.now().Sub(r.lastRotateAt) >= r.interval {
		r.pendingSwap = true
	}
}

// ObserveLine must be called before a non-continuation line is routed to
// the aggregator. If a swap was armed by the previous COMMIT, it performs
// the rotation and returns the SwapWal describing it; otherwise it
// returns (SwapWal{}, false) and the caller proceeds as normal.
func (r *Rotator) ObserveLine() (SwapWal, bool, error) {
	if !r.pendingSwap {
		return SwapWal{}, false, nil
	}
	r.pendingSwap = false

	closed := r.current
	opened, err := OpenEpoch(r.dir, r.nextNumber)
	if err != nil {
		// Keep writing into the old epoch rather than lose data; try
		// again on the next commit boundary.
		log.Errorf("wal: rotate to epoch %d failed, staying on %d: %v", r.nextNumber, closed.Number, err)
		return SwapWal{}, false, err
	}
	r.nextNumber++
	r.current = opened
	r.lastRotateAt = r.now()
	return SwapWal{Closed: closed, Opened: opened}, true, nil
}
