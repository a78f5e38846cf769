package matchdriver

import (
	"github.com/binarydiff/matcher/blockmatch"
	"github.com/binarydiff/matcher/classify"
	"github.com/binarydiff/matcher/model"
	"github.com/binarydiff/matcher/score"
	"github.com/binarydiff/matcher/step"
)

// Options bundles the driver's configurable inputs: the ordered call-graph
// step list, the ordered flow-graph step list run inside every
// committed function pair, and the step-weight table the scorer
// uses for per-pair confidence.
type Options struct {
	CallGraphSteps []step.Step
	BlockSteps     []blockmatch.Step
	StepWeights    score.StepWeights
}

// DefaultOptions returns the default step lists and weight table.
func DefaultOptions() Options {
	return Options{
		CallGraphSteps: step.DefaultSteps(nil),
		BlockSteps:     blockmatch.DefaultSteps(),
		StepWeights:    score.DefaultStepWeights(),
	}
}

// Run executes the iterative matching driver over ctx:
// an outer loop over the ordered call-graph step list (each step receives
// the steps after it as its drill-down list, so colliding feature buckets
// are retried with finer features before the outer loop ever advances), an
// inner do-while loop that propagates every existing fixed point's
// still-unmatched children then parents to the current step until no more
// commits happen,
// and — for every fixed point the step discovered — basic-block matching,
// call-reference matching (which may itself discover further fixed points
// processed in turn) and scoring. Classification runs once, after the
// whole step list is exhausted.
func Run(ctx *step.MatchingContext, opts Options) {
	for k, s := range opts.CallGraphSteps {
		remaining := opts.CallGraphSteps[k+1:]
		ctx.NewFixedPoints = nil

		s.FindFixedPoints(ctx, allUnmatched(ctx.Primary), allUnmatched(ctx.Secondary), remaining)

		for {
			moreFound := false

			for _, fp := range ctx.Store.All() {
				pChildren := unmatchedOf(ctx.Primary, childrenOf(ctx.Primary, fp.Primary.CallGraphVertex()))
				sChildren := unmatchedOf(ctx.Secondary, childrenOf(ctx.Secondary, fp.Secondary.CallGraphVertex()))
				if len(pChildren) > 0 && len(sChildren) > 0 && s.FindFixedPoints(ctx, pChildren, sChildren, remaining) {
					moreFound = true
				}
			}

			for _, fp := range ctx.Store.All() {
				pParents := unmatchedOf(ctx.Primary, parentsOf(ctx.Primary, fp.Primary.CallGraphVertex()))
				sParents := unmatchedOf(ctx.Secondary, parentsOf(ctx.Secondary, fp.Secondary.CallGraphVertex()))
				if len(pParents) > 0 && len(sParents) > 0 && s.FindFixedPoints(ctx, pParents, sParents, remaining) {
					moreFound = true
				}
			}

			if !moreFound {
				break
			}
		}

		// ctx.NewFixedPoints grows as call-reference matching commits more
		// pairs; the index-based loop picks those up in the same pass
		// instead of requiring a second step-list iteration to reach them.
		for i := 0; i < len(ctx.NewFixedPoints); i++ {
			fp := ctx.NewFixedPoints[i]
			blockmatch.RunForPair(fp, opts.BlockSteps)
			step.CallReferenceMatching(ctx, fp)

			h := score.HistogramForFixedPoint(fp)
			confidence := score.PairConfidence(h, opts.StepWeights)
			fp.SetConfidence(confidence)
			fp.SetSimilarity(score.FunctionSimilarity(fp, confidence))
		}
	}

	for _, fp := range ctx.Store.All() {
		classify.Classify(fp)
	}
}

// allUnmatched returns every vertex in g with no function fixed point yet.
func allUnmatched(g *model.CallGraph) []uint32 {
	var out []uint32
	for v := uint32(0); v < uint32(g.VertexCount()); v++ {
		if step.UnmatchedCandidate(g, v) {
			out = append(out, v)
		}
	}
	return out
}

// unmatchedOf filters vs down to the vertices of g with no fixed point yet.
func unmatchedOf(g *model.CallGraph, vs []uint32) []uint32 {
	var out []uint32
	for _, v := range vs {
		if step.UnmatchedCandidate(g, v) {
			out = append(out, v)
		}
	}
	return out
}

// childrenOf returns the call targets of v, skipping self-loops (a
// recursive function's own vertex must never re-enter its own propagation
// set) and duplicate edges (only the surviving edge of a parallel set
// contributes to the propagation lists).
func childrenOf(g *model.CallGraph, v uint32) []uint32 {
	edges := g.OutEdges(v)
	out := make([]uint32, 0, len(edges))
	for _, e := range edges {
		if g.IsCircular(e) || g.IsDuplicate(e) {
			continue
		}
		_, dst := g.EdgeEndpoints(e)
		out = append(out, dst)
	}
	return out
}

// parentsOf returns the callers of v, skipping self-loops and duplicate
// edges, mirroring childrenOf.
func parentsOf(g *model.CallGraph, v uint32) []uint32 {
	edges := g.InEdges(v)
	out := make([]uint32, 0, len(edges))
	for _, e := range edges {
		if g.IsCircular(e) || g.IsDuplicate(e) {
			continue
		}
		src, _ := g.EdgeEndpoints(e)
		out = append(out, src)
	}
	return out
}
