package entitlement

import (
	"errors"
	"sort"
	"time"

	"github.com/xraph/entitle/pack"
)

// Sentinel errors shared by store and cache backends.
var (
	ErrNotFound    = errors.New("entitle: not found")
	ErrCacheMiss   = errors.New("entitle: cache miss")
	ErrStoreClosed = errors.New("entitle: store closed")
)

// Record is the durable statement of what one client owns.
type Record struct {
	// Packs holds individual pack identifiers, sorted, without duplicates.
	// It never contains pack.Bundle or pack.Subscription.
	Packs              []pack.ID `json:"packs"`
	SubscriptionActive bool      `json:"subscriptionActive"`

	// Bundle records that the bundle tag was granted, so the record can be
	// re-expanded against a catalog that has grown since the purchase.
	Bundle bool `json:"bundle,omitempty"`

	LastUpdated time.Time `json:"lastUpdated"`
}

// Result is the client-facing view of a record.
type Result struct {
	Packs              []pack.ID `json:"packs"`
	SubscriptionActive bool      `json:"subscriptionActive"`
}

// EmptyResult returns a result with no packs and no subscription.
// Packs is a non-nil empty slice so it encodes as [].
func EmptyResult() Result {
	return Result{Packs: []pack.ID{}}
}

// IsEmpty reports whether the result grants nothing.
func (r Result) IsEmpty() bool {
	return len(r.Packs) == 0 && !r.SubscriptionActive
}

// Has reports whether the record holds pack p.
func (r *Record) Has(p pack.ID) bool {
	i := sort.Search(len(r.Packs), func(i int) bool { return r.Packs[i] >= p })
	return i < len(r.Packs) && r.Packs[i] == p
}

// IsEmpty reports whether the record grants nothing.
func (r *Record) IsEmpty() bool {
	return r == nil || (len(r.Packs) == 0 && !r.SubscriptionActive && !r.Bundle)
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Packs = append([]pack.ID(nil), r.Packs...)
	return &c
}

// Result projects the record for clients. When the bundle was granted the
// current catalog is unioned in, so packs added later are owned too.
func (r *Record) Result(catalog []pack.ID) Result {
	out := EmptyResult()
	if r == nil {
		return out
	}
	view := r.Clone()
	if view.Bundle {
		for _, p := range catalog {
			view.add(p)
		}
		view.SubscriptionActive = true
	}
	out.Packs = append(out.Packs, view.Packs...)
	out.SubscriptionActive = view.SubscriptionActive
	return out
}

// Merge unions other into r. LastUpdated is left untouched.
func (r *Record) Merge(other *Record) {
	if other == nil {
		return
	}
	for _, p := range other.Packs {
		r.add(p)
	}
	r.SubscriptionActive = r.SubscriptionActive || other.SubscriptionActive
	r.Bundle = r.Bundle || other.Bundle
}

// add inserts p keeping Packs sorted. Reserved tags are ignored.
func (r *Record) add(p pack.ID) bool {
	if p == "" || p.IsReserved() {
		return false
	}
	i := sort.Search(len(r.Packs), func(i int) bool { return r.Packs[i] >= p })
	if i < len(r.Packs) && r.Packs[i] == p {
		return false
	}
	r.Packs = append(r.Packs, "")
	copy(r.Packs[i+1:], r.Packs[i:])
	r.Packs[i] = p
	return true
}

// Normalize sorts and de-duplicates Packs and drops reserved tags, for
// records read from a backend that may have been written by hand.
func (r *Record) Normalize() {
	packs := r.Packs
	r.Packs = make([]pack.ID, 0, len(packs))
	for _, p := range packs {
		if p == pack.Bundle {
			r.Bundle = true
			r.SubscriptionActive = true
			continue
		}
		if p == pack.Subscription {
			r.SubscriptionActive = true
			continue
		}
		r.add(p)
	}
}

// CacheEntry is a memoized reconciliation result.
type CacheEntry struct {
	Result     Result    `json:"result"`
	CapturedAt time.Time `json:"capturedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// IsExpired reports whether the entry is stale at the given time.
func (e CacheEntry) IsExpired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}
