// Package blockmatch is the basic-block matcher: inside one committed
// function fixed point, it runs the same bucket-uniqueness driver one
// level down, over a flow-graph step list, then aligns
// instructions inside every matched basic-block pair with the Longest
// Common Subsequence algorithm.
package blockmatch
