package step

import (
	"github.com/binarydiff/matcher/fixedpoint"
	"github.com/binarydiff/matcher/model"
)

// MatchingContext holds everything a call-graph matching step needs that
// spans a single diff: the two call graphs, the fixed-point store they
// share, the running set of function fixed points discovered by the step
// currently executing (consumed by call-reference matching), and the
// per-graph edge-feature caches built lazily by the edge-keyed steps.
type MatchingContext struct {
	Primary   *model.CallGraph
	Secondary *model.CallGraph
	Store     *fixedpoint.Store

	// NewFixedPoints accumulates every fixed point committed by the step
	// currently running. The driver drains and resets it after each step so
	// call-reference matching only ever sees that step's discoveries.
	NewFixedPoints []*fixedpoint.FixedPoint

	// MinHashInstructions is the config-driven minimum instruction count the
	// "function: hash matching" step requires before trusting a function's
	// instruction-byte hash. Zero means "use the built-in default"
	// (minHashedInstructions), so a zero-value MatchingContext behaves
	// exactly as before config wiring existed.
	MinHashInstructions int

	edgeFeatureCache map[edgeCacheKey][]edgeFeature
}

type edgeCacheKey struct {
	graph    *model.CallGraph
	inverted bool
}

// edgeFeature is one call-graph edge's cached MD-index feature, keyed by the
// function-vertex pair it connects.
type edgeFeature struct {
	source, target uint32
	value          float64
}

// NewMatchingContext builds a fresh context for one diff.
func NewMatchingContext(primary, secondary *model.CallGraph, store *fixedpoint.Store) *MatchingContext {
	return &MatchingContext{
		Primary:          primary,
		Secondary:        secondary,
		Store:            store,
		edgeFeatureCache: make(map[edgeCacheKey][]edgeFeature),
	}
}

// edgeFeatures returns (building and memoizing on first use) the per-edge MD
// index feature vector for g, in the top-down or bottom-up direction. The
// cache lives on the context and never needs explicit invalidation: a
// CallGraph's edge set never changes after construction.
func (ctx *MatchingContext) edgeFeatures(g *model.CallGraph, inverted bool) []edgeFeature {
	key := edgeCacheKey{graph: g, inverted: inverted}
	if cached, ok := ctx.edgeFeatureCache[key]; ok {
		return cached
	}
	out := make([]edgeFeature, g.EdgeCount())
	for e := 0; e < g.EdgeCount(); e++ {
		src, dst := g.EdgeEndpoints(uint32(e))
		value := g.EdgeMDTopDown(uint32(e))
		if inverted {
			value = g.EdgeMDBottomUp(uint32(e))
		}
		out[e] = edgeFeature{source: src, target: dst, value: value}
	}
	ctx.edgeFeatureCache[key] = out
	return out
}

// commitFunctionPair asserts that call-graph vertex pv (primary) and sv
// (secondary) are the same function. It fails silently (returns false) if
// either side has no attached flow graph or the store already considers one
// side matched; on success the new fixed point is recorded on the context.
func commitFunctionPair(ctx *MatchingContext, stepName string, pv, sv uint32) bool {
	pf := ctx.Primary.FlowGraph(pv)
	sf := ctx.Secondary.FlowGraph(sv)
	if pf == nil || sf == nil {
		return false
	}
	fp, ok := ctx.Store.Add(pf, sf, stepName)
	if !ok {
		return false
	}
	ctx.NewFixedPoints = append(ctx.NewFixedPoints, fp)
	return true
}

func isUnmatchedCandidate(g *model.CallGraph, v uint32) bool {
	fg := g.FlowGraph(v)
	return fg != nil && fg.FixedPoint() == nil
}

// UnmatchedCandidate reports whether call-graph vertex v carries a flow
// graph that is not yet part of a fixed point, exported for the driver's
// propagation loop.
func UnmatchedCandidate(g *model.CallGraph, v uint32) bool { return isUnmatchedCandidate(g, v) }

// candidateSet builds a membership set for a vertex-index slice, used by
// edge-keyed steps to restrict edges to the currently relevant subgraph.
func candidateSet(vs []uint32) map[uint32]bool {
	set := make(map[uint32]bool, len(vs))
	for _, v := range vs {
		set[v] = true
	}
	return set
}
