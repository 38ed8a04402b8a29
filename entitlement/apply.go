package entitlement

import "github.com/xraph/entitle/pack"

// Apply folds one confirmed purchase into r and reports whether anything
// changed. The same rule serves webhook grants and restore reconciliation:
//
//   - pack.Bundle: every catalog pack, subscription on, bundle flag set
//   - pack.Subscription: subscription on, packs untouched
//   - anything else: the pack is added if absent
//
// Apply is idempotent.
func Apply(r *Record, p pack.ID, catalog []pack.ID) bool {
	changed := false
	switch p {
	case "":
		return false
	case pack.Bundle:
		for _, c := range catalog {
			if r.add(c) {
				changed = true
			}
		}
		if !r.SubscriptionActive || !r.Bundle {
			changed = true
		}
		r.SubscriptionActive = true
		r.Bundle = true
	case pack.Subscription:
		changed = !r.SubscriptionActive
		r.SubscriptionActive = true
	default:
		changed = r.add(p)
	}
	return changed
}
