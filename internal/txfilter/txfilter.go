// Package txfilter drops transactions that are too old to be worth
// reflecting into the warehouse, e.g. a long-running backfill COMMIT
// that arrives minutes after the stream restarted. Grounded on
// original_source/src/transaction_filter.rs.
package txfilter

import "time"

// Filter rejects transactions whose commit timestamp is older than
// MaxAge relative to Now (overridable in tests).
type Filter struct {
	MaxAge time.Duration
	Now    func() time.Time
}

func New(maxAge time.Duration) *Filter {
	return &Filter{MaxAge: maxAge, Now: time.Now}
}

// Allow reports whether a transaction committed at commitTime should
// still be applied. A zero commitTime (no timestamp available) is
// always allowed, since test_decoding's BEGIN/COMMIT lines carry no
// timestamp by default and this filter only activates when one is
// supplied out of band (e.g. from a COMMIT's wrapping envelope).
func (f *Filter) Allow(commitTime time.Time) bool {
	if commitTime.IsZero() || f.MaxAge <= 0 {
		return true
	}
	return f.Now().Sub(commitTime) <= f.MaxAge
}
