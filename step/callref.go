package step

import (
	"github.com/binarydiff/matcher/fixedpoint"
	"github.com/binarydiff/matcher/model"
)

// CallReferenceMatching matches callees through their already-matched
// callers: for the function fixed point fp, walk matched basic blocks
// inside fp.Primary and, for each call site, follow the corresponding
// position in fp.Secondary's matched basic block.
// When both callees are currently unmatched, one cheap feature must agree
// before the pair is committed: the callees' names when both have one,
// otherwise their function MD-index (see callRefFeatureAgrees). Returns true if at least one new fixed point was
// committed.
func CallReferenceMatching(ctx *MatchingContext, fp *fixedpoint.FixedPoint) bool {
	committed := false
	for _, bb := range fp.BasicBlockFixedPoints() {
		pTargets := fp.Primary.CallTargets(bb.PrimaryVertex)
		sTargets := fp.Secondary.CallTargets(bb.SecondaryVertex)
		n := len(pTargets)
		if len(sTargets) < n {
			n = len(sTargets)
		}
		for i := 0; i < n; i++ {
			pv := ctx.Primary.GetVertex(pTargets[i])
			sv := ctx.Secondary.GetVertex(sTargets[i])
			if pv == model.InvalidIndex || sv == model.InvalidIndex {
				continue
			}
			if !isUnmatchedCandidate(ctx.Primary, pv) || !isUnmatchedCandidate(ctx.Secondary, sv) {
				continue
			}
			if !callRefFeatureAgrees(ctx, pv, sv) {
				continue
			}
			if commitFunctionPair(ctx, "function: call reference matching", pv, sv) {
				committed = true
			}
		}
	}
	return committed
}

// callRefFeatureAgrees is the single feature gate a callee pair must pass
// before call-reference matching commits it: it
// compares the callees' real names when both have one, and otherwise falls
// back to comparing their rounded MD-index.
func callRefFeatureAgrees(ctx *MatchingContext, pv, sv uint32) bool {
	if ctx.Primary.HasRealName(pv) && ctx.Secondary.HasRealName(sv) {
		return ctx.Primary.Name(pv) == ctx.Secondary.Name(sv)
	}
	return roundKey(ctx.Primary.FunctionMDTopDown(pv)) == roundKey(ctx.Secondary.FunctionMDTopDown(sv))
}
