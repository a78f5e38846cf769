// Package matchdriver is the orchestrating driver: it
// runs the ordered call-graph step list over the unmatched function
// population, propagates each discovery across the call graph's matched
// neighborhood, follows up every new fixed point with call-reference
// matching, matches basic blocks inside each committed pair, scores it,
// and classifies changes once the step list is exhausted.
package matchdriver
