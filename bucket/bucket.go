// Package bucket implements the uniqueness-bucketing routine shared by the
// call-graph and flow-graph matching drivers: group items by a feature key,
// commit a pair only when the key's bucket has exactly one member on each
// side, and hand every colliding bucket to the caller so a finer drill-down
// step can retry on just that subset.
package bucket

import (
	"cmp"
	"slices"
)

// FindUnique groups primary and secondary items by the key returned by keyOf
// (ok=false skips an item with no usable feature value), then walks the keys
// in ascending order — map iteration order is randomized per run, and the
// whole matcher must produce bit-identical results on identical inputs, so
// bucket visiting order has to be pinned down here.
//
// For every key whose primary bucket and secondary bucket both have exactly
// one member, FindUnique calls commit; a false return from commit leaves the
// pair uncommitted but does not stop the scan. For every key whose buckets
// exist on both sides but are not uniquely sized, it calls ambiguous (when
// non-nil) with that single key's two bucket slices, so a caller holding a
// finer drill-down feature can recurse on the colliding subset. FindUnique
// reports whether at least one pair was committed by either path.
func FindUnique[K cmp.Ordered, T any](
	primary, secondary []T,
	keyOf func(T) (K, bool),
	commit func(p, s T) bool,
	ambiguous func(primary, secondary []T) bool,
) bool {
	pBuckets := make(map[K][]T)
	keys := make([]K, 0, len(primary))
	for _, p := range primary {
		if k, ok := keyOf(p); ok {
			if _, seen := pBuckets[k]; !seen {
				keys = append(keys, k)
			}
			pBuckets[k] = append(pBuckets[k], p)
		}
	}
	sBuckets := make(map[K][]T)
	for _, s := range secondary {
		if k, ok := keyOf(s); ok {
			sBuckets[k] = append(sBuckets[k], s)
		}
	}
	slices.Sort(keys)

	committed := false
	for _, k := range keys {
		ps := pBuckets[k]
		ss, ok := sBuckets[k]
		if !ok {
			continue
		}
		if len(ps) == 1 && len(ss) == 1 {
			if commit(ps[0], ss[0]) {
				committed = true
			}
			continue
		}
		if ambiguous != nil && ambiguous(ps, ss) {
			committed = true
		}
	}
	return committed
}
