package incremental

import (
	"github.com/binarydiff/matcher/fixedpoint"
	"github.com/binarydiff/matcher/matchdriver"
	"github.com/binarydiff/matcher/step"
)

// Rematch performs an incremental re-match: every fixed point not
// produced by the manual step is discarded — via Store.Remove,
// which already resets the transient FlowGraph/BasicBlockFixedPoint
// back-pointers on both sides — and the driver is re-entered with opts'
// step list over whatever the manual matches left unmatched. Manual
// entries survive untouched and the driver's bucket-uniqueness steps can
// never reassign a vertex already part of a fixed point, so they act as
// ground truth for the rerun.
func Rematch(ctx *step.MatchingContext, opts matchdriver.Options) {
	for _, fp := range ctx.Store.Snapshot() {
		if fp.MatchingStep() == step.ManualStepName {
			continue
		}
		ctx.Store.Remove(fp)
	}
	matchdriver.Run(ctx, opts)
}

// DiscardedCount reports how many non-manual fixed points a Rematch call
// would discard, without mutating the store; useful for a caller (e.g. the
// CLI) reporting what an incremental run is about to throw away.
func DiscardedCount(store *fixedpoint.Store) int {
	n := 0
	for _, fp := range store.All() {
		if fp.MatchingStep() != step.ManualStepName {
			n++
		}
	}
	return n
}
