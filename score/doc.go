// Package score is the scorer: it tallies per-side and
// per-pair counts of functions, basic blocks, instructions and edges,
// builds the matching-step histogram, and computes per-function and
// per-pair similarity/confidence plus the whole-diff global similarity.
package score
