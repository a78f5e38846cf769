// Package bindiff is the root entry point wiring the whole matcher
// together: construct two call graphs with their topology already
// calculated, call Diff to run the full driver/scorer/classifier pipeline
// over them, or BatchRun a set of pairs concurrently over a bounded worker
// pool.
package bindiff
