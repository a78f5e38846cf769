// Package fixedpoint is the matcher's fixed-point store: the set of
// asserted function matches, each with a nested, ordered set
// of asserted basic-block matches, and the per-match metadata (matching
// step, similarity, confidence, change flags) the scorer and classifier fill
// in later.
//
// A FixedPoint declares "these two functions are the same"; a
// BasicBlockFixedPoint nests inside it and declares the same thing one
// level down, for a pair of basic blocks. Store keeps function fixed points
// sorted by (primary address, secondary address) and basic-block fixed
// points sorted by (primary vertex, secondary vertex).
//
// Store also installs the transient back-pointers from model.FlowGraph to
// its FixedPoint (and from a basic-block vertex to its
// BasicBlockFixedPoint), so the matcher can check in O(1) whether a vertex
// is already consumed — see model.FlowGraph.FixedPoint /
// BasicBlockFixedPoint.
package fixedpoint
