// Package step implements the call-graph matching steps: the ordered list
// of feature extractors the driver tries in sequence,
// each bucketing unmatched functions by some feature value and committing a
// pair whenever a bucket is uniquely sized 1 on both sides (see package
// bucket). Steps are reentrant and hold no per-instance mutable state; any
// caching lives on the MatchingContext, scoped to one diff.
package step
